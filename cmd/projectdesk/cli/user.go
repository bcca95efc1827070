package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/projectdesk/projectdesk/internal/model"
	"github.com/projectdesk/projectdesk/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  "Create and list user accounts directly against the directory store, bypassing the HTTP API.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user account",
		Example: `  projectdesk user create --username alice --email alice@example.com
  projectdesk user create --username ops --email ops@example.com --admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(username, email, password, admin)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username, 3-50 characters (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin privileges")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runUserCreate(username, email, password string, admin bool) error {
	if n := len(username); n < 3 || n > 50 {
		return fmt.Errorf("username must be 3-50 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address: %q", email)
	}

	// Prompt for password if not provided
	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if password != string(confirmBytes) {
			return fmt.Errorf("passwords do not match")
		}
	}

	cfg := authConfigFromViper()
	if len(password) < cfg.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", cfg.MinPasswordLength)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	authSvc, err := service.NewAuthService(st, cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if _, err := st.FindUserByUsernameOrEmail(ctx, username, email); err == nil {
		return fmt.Errorf("username or email already in use")
	}

	hash, err := authSvc.HashPassword(password)
	if err != nil {
		return err
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Admin:        admin,
	}
	if err := st.CreateUser(ctx, user); err != nil {
		return err
	}

	fmt.Printf("Created user %q (id %d)\n", username, user.ID)
	return nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No users found. The server creates the admin account on first start.")
		return nil
	}

	fmt.Printf("%-6s %-24s %-30s %-6s\n", "ID", "USERNAME", "EMAIL", "ADMIN")
	for _, u := range users {
		fmt.Printf("%-6d %-24s %-30s %-6v\n", u.ID, u.Username, u.Email, u.Admin)
	}
	return nil
}
