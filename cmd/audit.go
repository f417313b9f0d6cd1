package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"facc/audit"
)

var (
	auditFilter audit.Filter
	auditPage   int
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditPage < 1 || auditLimit < 1 {
			return fmt.Errorf("--page and --limit must be positive")
		}
		a, err := openAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		result, err := audit.NewQuery(a.store).Find(cmd.Context(), auditFilter, auditPage, auditLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(result)
		}

		for _, l := range result.Logs {
			who := "-"
			if l.UserEmail != "" {
				who = l.UserEmail
			}
			entity := l.EntityType
			if l.EntityID != nil {
				entity = fmt.Sprintf("%s#%d", l.EntityType, *l.EntityID)
			}
			fmt.Printf("%6d  %s  %-8s %-24s %s\n", l.ID, l.CreatedAt, l.ActionType, entity, who)
		}
		p := result.Pagination
		fmt.Printf("page %d/%d, %d entries\n", p.Page, p.Pages, p.Total)
		return nil
	},
}

func init() {
	f := auditListCmd.Flags()
	f.StringVar(&auditFilter.StartDate, "start-date", "", "earliest created_at, inclusive")
	f.StringVar(&auditFilter.EndDate, "end-date", "", "latest created_at, inclusive")
	f.Int64Var(&auditFilter.UserID, "user", 0, "acting user id")
	f.StringVar(&auditFilter.ActionType, "action-type", "", "action type")
	f.StringVar(&auditFilter.EntityType, "entity-type", "", "entity type")
	f.Int64Var(&auditFilter.EntityID, "entity-id", 0, "entity id")
	f.IntVar(&auditPage, "page", 1, "page number")
	f.IntVar(&auditLimit, "limit", audit.DefaultLimit, "entries per page")

	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}
