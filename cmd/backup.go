package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage data backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the data into a new backup file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		filename, err := a.backups.Create(cmd.Context(), cliActor())
		if err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
		if jsonOutput {
			return outputJSON(map[string]string{"filename": filename})
		}
		fmt.Printf("Created %s\n", filename)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup files, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		backups, err := a.backups.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(backups)
		}
		if len(backups) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, b := range backups {
			fmt.Printf("%-50s %10d  %s\n", b.Filename, b.Size, b.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <filename>",
	Short: "Replace all data with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		if err := a.backups.Restore(cmd.Context(), cliActor(), args[0]); err != nil {
			return fmt.Errorf("restore %s: %w", args[0], err)
		}
		if jsonOutput {
			return outputJSON(map[string]string{"restored": args[0]})
		}
		fmt.Printf("Restored %s\n", args[0])
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a backup file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		if err := a.backups.Delete(cmd.Context(), cliActor(), args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]string{"deleted": args[0]})
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupDeleteCmd)
	rootCmd.AddCommand(backupCmd)
}
