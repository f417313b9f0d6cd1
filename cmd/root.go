// Package cmd implements the facc command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"facc/audit"
	"facc/backup"
	"facc/config"
	"facc/database"
	"facc/store"
)

var (
	jsonOutput bool
	rootCmd    = &cobra.Command{
		Use:   "facc",
		Short: "FACC requisitions backend",
		Long: `facc serves the requisitions API and administers its data:
backups, user accounts and the audit trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running without a subcommand starts the server
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// app is the wiring shared by the server and the admin commands.
type app struct {
	cfg      *config.Config
	store    store.Store
	recorder *audit.Recorder
	backups  *backup.Service
}

func loadConfig() (*config.Config, error) {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return config.Load()
}

// openApp opens the store named by cfg and prepares it for use. afterChange
// runs after every successful store write and after a restore.
func openApp(ctx context.Context, cfg *config.Config, afterChange func()) (*app, error) {
	var opts []store.Option
	var backupOpts []backup.Option
	if afterChange != nil {
		opts = append(opts, store.WithOnChange(afterChange))
		backupOpts = append(backupOpts, backup.WithAfterRestore(afterChange))
	}

	s, err := database.OpenStore(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := database.Bootstrap(ctx, s); err != nil {
		s.Close()
		return nil, fmt.Errorf("bootstrap store: %w", err)
	}

	recorder := audit.NewRecorder(s)
	backups, err := backup.NewService(cfg.BackupDir, database.NewSnapshotter(s), recorder, backupOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: s, recorder: recorder, backups: backups}, nil
}

// cliActor attributes command line actions to no user.
func cliActor() audit.Actor {
	return audit.Actor{IP: "cli", UserAgent: "facc-cli"}
}

// openAdmin opens the app for a one-shot command.
func openAdmin(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openApp(ctx, cfg, nil)
}
