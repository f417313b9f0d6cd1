package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"facc/controllers"
	"facc/database"
)

var newUser controllers.CreateUserRequest

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		user, err := controllers.CreateUserAccount(cmd.Context(), a.store, a.recorder, cliActor(), newUser)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(user)
		}
		fmt.Printf("Created user %d (%s, %s)\n", user.ID, user.Email, user.Role)
		return nil
	},
}

func init() {
	f := userCreateCmd.Flags()
	f.StringVar(&newUser.Name, "name", "", "first name")
	f.StringVar(&newUser.Lastname, "lastname", "", "last name")
	f.StringVar(&newUser.Email, "email", "", "login email")
	f.StringVar(&newUser.Password, "password", "", "initial password")
	f.StringVar(&newUser.Role, "role", database.RolePromotor, "one of: "+strings.Join(database.Roles, ", "))
	userCreateCmd.MarkFlagRequired("email")
	userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}
