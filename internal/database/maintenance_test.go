package database

import (
	"path/filepath"
	"testing"
)

func TestEnsureSeedData_IsIdempotent(t *testing.T) {
	db := newTestDB(t)

	first, err := db.IsFirstRun()
	if err != nil {
		t.Fatalf("IsFirstRun returned error: %v", err)
	}
	if !first {
		t.Fatal("expected first run on empty database")
	}

	for range 2 {
		if err := db.EnsureSeedData("hash"); err != nil {
			t.Fatalf("EnsureSeedData returned error: %v", err)
		}
	}

	admins, err := db.Select("users", SelectQuery{Where: Fields{"username": DefaultAdminUsername}})
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if len(admins) != 1 {
		t.Fatalf("expected one admin, got %d", len(admins))
	}
	if admins[0].String("role") != RoleAdmin || admins[0].String("email") != DefaultAdminEmail {
		t.Fatalf("unexpected admin row %v", admins[0])
	}

	level, err := db.GetSetting("log.level")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if level != "info" {
		t.Fatalf("expected log.level info, got %q", level)
	}
}

func TestSettings_DefaultsDoNotOverwrite(t *testing.T) {
	db := newTestDB(t)

	if err := db.SetSetting("dashboard.recent_limit", "25"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("InitializeDefaults returned error: %v", err)
	}

	var limit int
	if err := db.GetSettingJSON("dashboard.recent_limit", &limit); err != nil {
		t.Fatalf("GetSettingJSON returned error: %v", err)
	}
	if limit != 25 {
		t.Fatalf("expected existing value 25 to be kept, got %d", limit)
	}

	all, err := db.GetAllSettings()
	if err != nil {
		t.Fatalf("GetAllSettings returned error: %v", err)
	}
	if len(all) != len(DefaultSettings) {
		t.Fatalf("expected %d settings, got %d", len(DefaultSettings), len(all))
	}
	if all["collector.enabled"] != "true" {
		t.Fatalf("expected collector.enabled to be stored as true, got %q", all["collector.enabled"])
	}

	if err := db.DeleteSetting("dashboard.recent_limit"); err != nil {
		t.Fatalf("DeleteSetting returned error: %v", err)
	}
	if v, _ := db.GetSetting("dashboard.recent_limit"); v != "" {
		t.Fatalf("expected deleted setting to read empty, got %q", v)
	}
}

func TestBackup_WritesUsableCopy(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema returned error: %v", err)
	}
	createProduct(t, db, "Chair", 10, 1)

	dest := filepath.Join(dir, "backup.db")
	if err := db.Backup(dest); err != nil {
		t.Fatalf("Backup returned error: %v", err)
	}
	if err := db.Backup(dest); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for existing destination, got %v", err)
	}

	copyDB, err := Open(dest)
	if err != nil {
		t.Fatalf("failed to open backup: %v", err)
	}
	defer copyDB.Close()

	products, err := copyDB.ListProducts("")
	if err != nil {
		t.Fatalf("ListProducts on backup returned error: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Chair" {
		t.Fatalf("unexpected products in backup: %+v", products)
	}
}

func TestTableInfo(t *testing.T) {
	db := newTestDB(t)

	cols, err := db.TableInfo("products")
	if err != nil {
		t.Fatalf("TableInfo returned error: %v", err)
	}
	if len(cols) != 8 {
		t.Fatalf("expected 8 product columns, got %d", len(cols))
	}
	if cols[0].Name != "id" || !cols[0].PrimaryKey {
		t.Fatalf("expected id primary key first, got %+v", cols[0])
	}
	if cols[4].Name != "category" || cols[4].Default != "'General'" {
		t.Fatalf("unexpected category column %+v", cols[4])
	}

	if _, err := db.TableInfo("products; DROP TABLE products"); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := db.Optimize(); err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
}

func TestMetrics_PruneAndLatest(t *testing.T) {
	db := newTestDB(t)
	old := mustParseTime(t, "2024-01-01T00:00:00.000Z")
	recent := mustParseTime(t, "2024-02-01T00:00:00.000Z")

	for _, m := range []struct {
		name string
		at   string
	}{
		{"cpu", "2024-01-01T00:00:00.000Z"},
		{"cpu", "2024-02-01T00:00:00.000Z"},
		{"mem", "2024-02-02T00:00:00.000Z"},
	} {
		if _, err := db.RecordMetric(m.name, 1, mustParseTime(t, m.at)); err != nil {
			t.Fatalf("RecordMetric returned error: %v", err)
		}
	}

	latest, err := db.LatestMetrics()
	if err != nil {
		t.Fatalf("LatestMetrics returned error: %v", err)
	}
	if len(latest) != 2 || latest[0].Name != "cpu" || !latest[0].RecordedAt.Equal(recent) {
		t.Fatalf("unexpected latest metrics %+v", latest)
	}

	pruned, err := db.PruneMetrics(old.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("PruneMetrics returned error: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 metric pruned, got %d", pruned)
	}

	cpu, err := db.ListMetrics("cpu", old)
	if err != nil {
		t.Fatalf("ListMetrics returned error: %v", err)
	}
	if len(cpu) != 1 {
		t.Fatalf("expected 1 cpu sample left, got %d", len(cpu))
	}
}
