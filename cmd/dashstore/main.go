package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/dashstore/internal/config"
	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	dbPath    string
	verbosity int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dashstore",
		Short:         "Dashstore - embedded business data store",
		Long:          `Dashstore keeps users, products, orders and metrics in a single SQLite file and serves reports and a JSON API over them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(verbosity)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (or set DB_PATH env var)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(
		initCmd(),
		sampleCmd(),
		serveCmd(),
		reportCmd(),
		backupCmd(),
		maintainCmd(),
		userCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("dashstore %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// openStore loads startup options, opens the database, brings the schema up
// to date and switches logging to the stored settings.
func openStore() (*database.DB, config.Options, error) {
	opts := config.LoadOptions()
	if dbPath != "" {
		opts.DBPath = dbPath
	}

	db, err := database.Open(opts.DBPath)
	if err != nil {
		return nil, opts, err
	}
	if err := db.EnsureSchema(); err != nil {
		_ = db.Close()
		return nil, opts, err
	}

	loader := config.NewLoader(db)
	level := opts.LogLevel
	switch {
	case verbosity > 0:
		level = logging.LevelFromVerbosity(verbosity).String()
	case level == "":
		level = loader.String("log.level", "info")
	}
	logFile := opts.LogFile
	if logFile == "" {
		logFile = logging.FilePathForDB(opts.DBPath)
	}
	logging.Apply(level, loader, logFile)

	log.Debug().Str("database", opts.DBPath).Msg("Database opened")
	return db, opts, nil
}
