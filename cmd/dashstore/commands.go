package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/dashstore/internal/auth"
	"github.com/saltyorg/dashstore/internal/collector"
	"github.com/saltyorg/dashstore/internal/config"
	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/logging"
	"github.com/saltyorg/dashstore/internal/report"
	"github.com/saltyorg/dashstore/internal/sampledata"
	"github.com/saltyorg/dashstore/internal/web"
)

func initCmd() *cobra.Command {
	var adminPassword string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the schema, default settings and the admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			admin, err := db.GetUserByUsername(database.DefaultAdminUsername)
			if err != nil {
				return err
			}

			generated := false
			if adminPassword == "" {
				adminPassword = os.Getenv("ADMIN_PASSWORD")
			}
			if admin == nil && adminPassword == "" {
				adminPassword = rand.Text()
				generated = true
			}
			if admin == nil && len(adminPassword) < auth.MinPasswordLength {
				return fmt.Errorf("admin password must be at least %d characters", auth.MinPasswordLength)
			}

			hash := ""
			if admin == nil {
				if hash, err = auth.HashPassword(adminPassword); err != nil {
					return err
				}
			}
			if err := db.EnsureSeedData(hash); err != nil {
				return err
			}

			if generated {
				fmt.Printf("Created admin user %q with password: %s\n", database.DefaultAdminUsername, adminPassword)
			}
			log.Info().Str("database", db.Path()).Msg("Database initialized")
			return nil
		},
	}

	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "Password for the default admin user (or set ADMIN_PASSWORD env var; generated when empty)")
	return cmd
}

func sampleCmd() *cobra.Command {
	opts := sampledata.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Fill the database with random demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := sampledata.Generate(db, opts)
			if err != nil {
				return err
			}
			fmt.Printf("Created %d users, %d products and %d orders\n", res.Users, res.Products, res.Orders)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Users, "users", opts.Users, "Number of users")
	cmd.Flags().IntVar(&opts.Products, "products", opts.Products, "Number of products")
	cmd.Flags().IntVar(&opts.Orders, "orders", opts.Orders, "Number of orders")
	cmd.Flags().IntVar(&opts.Days, "days", opts.Days, "Spread order dates over this many past days")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	return cmd
}

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and run the metrics collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, opts, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if listen != "" {
				opts.ListenAddr = listen
			}
			if firstRun, err := db.IsFirstRun(); err == nil && firstRun {
				log.Warn().Msg("No users exist yet. Run 'dashstore init' to create the admin user")
			}

			log.Info().
				Str("version", version).
				Str("listen", opts.ListenAddr).
				Str("database", opts.DBPath).
				Msg("Starting Dashstore")

			server := web.NewServer(db, opts.ListenAddr, opts.Timeouts)
			server.Handlers().SetVersionInfo(version, commit, date)

			loader := config.NewLoader(db)
			logFile := opts.LogFile
			if logFile == "" {
				logFile = logging.FilePathForDB(opts.DBPath)
			}

			coll := collector.New(db, collector.LoadConfig(loader), server.SSEBroker())
			if started, err := coll.Start(); err != nil {
				return err
			} else if !started {
				log.Info().Msg("Metrics collector disabled")
			}
			defer coll.Stop()

			server.Handlers().SetSettingsHook(func() {
				if verbosity == 0 && opts.LogLevel == "" {
					logging.Apply(loader.String("log.level", "info"), loader, logFile)
				}
				cfg := collector.LoadConfig(loader)
				if err := coll.UpdateConfig(cfg); err != nil {
					log.Error().Err(err).Msg("Failed to apply collector settings")
				} else if cfg.Enabled && !coll.IsRunning() {
					if _, err := coll.Start(); err != nil {
						log.Error().Err(err).Msg("Failed to start metrics collector")
					}
				}
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := server.Start(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}

			log.Info().Msg("Dashstore stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on (or set LISTEN_ADDR env var)")
	return cmd
}

func reportCmd() *cobra.Command {
	var (
		format string
		since  string
		limit  int
		output string
	)

	kinds := make([]string, 0, len(report.Kinds()))
	for _, k := range report.Kinds() {
		kinds = append(kinds, string(k))
	}

	cmd := &cobra.Command{
		Use:       "report <" + strings.Join(kinds, "|") + ">",
		Short:     "Print a report",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := report.Kind(args[0])
			if !slices.Contains(report.Kinds(), kind) {
				return fmt.Errorf("unknown report kind %q", args[0])
			}
			f := report.Format(format)
			if !slices.Contains(report.Formats(), f) {
				return fmt.Errorf("unknown format %q", format)
			}
			sinceTime, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}

			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rep, err := report.Build(db, kind, report.Options{Since: sinceTime, Limit: limit})
			if err != nil {
				return err
			}

			out := os.Stdout
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				out = file
			}
			return report.Write(out, rep, f)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatTable), "Output format: csv, json or table")
	cmd.Flags().StringVar(&since, "since", "", "Only rows newer than a date (2006-01-02) or a duration ago (72h)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (0 for all)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

// parseSince accepts an empty string, a date or a duration before now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: use a date like 2006-01-02 or a duration like 72h", s)
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Write a consistent copy of the database to a new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			start := time.Now()
			if err := db.Backup(args[0]); err != nil {
				return err
			}
			log.Info().Str("path", args[0]).Dur("duration", time.Since(start)).Msg("Backup written")
			return nil
		},
	}
}

func maintainCmd() *cobra.Command {
	var vacuum bool

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Prune old metrics and optimize the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			coll := collector.New(db, collector.LoadConfig(config.NewLoader(db)), nil)
			pruned, err := coll.Maintain()
			if err != nil {
				return err
			}
			if vacuum {
				if err := db.Vacuum(); err != nil {
					return err
				}
			}
			fmt.Printf("Pruned %d metric samples\n", pruned)
			return nil
		},
	}

	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Also rebuild the database file to reclaim space")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var (
		email    string
		fullName string
		role     string
		password string
	)
	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := auth.NewService(db).Register(database.NewUser{
				Username: args[0],
				Email:    email,
				FullName: fullName,
				Role:     role,
			}, password)
			if err != nil {
				return err
			}
			fmt.Printf("Created user %q (id %d, role %s)\n", user.Username, user.ID, user.Role)
			return nil
		},
	}
	addCmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	addCmd.Flags().StringVar(&fullName, "name", "", "Full name")
	addCmd.Flags().StringVar(&role, "role", database.RoleUser, "Role: user, manager or admin")
	addCmd.Flags().StringVar(&password, "password", "", "Password (required)")
	_ = addCmd.MarkFlagRequired("email")
	_ = addCmd.MarkFlagRequired("password")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			users, err := db.ListUsers()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Username", "Email", "Role", "Active", "Last login"})
			for _, u := range users {
				lastLogin := "-"
				if u.LastLogin != nil {
					lastLogin = u.LastLogin.Local().Format("2006-01-02 15:04")
				}
				t.AppendRow(table.Row{u.ID, u.Username, u.Email, u.Role, u.Active, lastLogin})
			}
			t.Render()
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}
