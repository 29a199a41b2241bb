package cmd

import (
	"time"

	"guardget/models"
	"guardget/utils"

	"github.com/spf13/cobra"
)

var (
	userName      string
	userEmail     string
	userPhone     string
	userKeyholder string
	tokenTTL      time.Duration
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.identity.CreateUser(ctx, &models.User{
			Name:           userName,
			Email:          userEmail,
			PhoneNumber:    userPhone,
			KeyholderPhone: userKeyholder,
		})
		if err != nil {
			return err
		}
		cmd.Printf("created user %s (%s)\n", user.ID, user.Email)
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue a bearer token for a user, revoking the previous one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.identity.ResolveByEmail(ctx, userEmail)
		if err != nil {
			return err
		}
		token, err := a.identity.IssueToken(ctx, user.ID, tokenTTL)
		if err != nil {
			return err
		}
		cmd.Println(token)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "display name")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	userAddCmd.Flags().StringVar(&userPhone, "phone", "", "phone number")
	userAddCmd.Flags().StringVar(&userKeyholder, "keyholder", "", "phone that receives transfer codes, defaults to --phone")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("name")

	userTokenCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	userTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", utils.BearerTokenTTL, "token lifetime")
	_ = userTokenCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd, userTokenCmd)
	rootCmd.AddCommand(userCmd)
}
