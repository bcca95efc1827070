package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projectdesk",
		Short: "Multi-tenant user and project backend",
		Long: `Projectdesk: a small multi-tenant backend for user accounts and per-user
projects behind stateless bearer-token authentication.

The server bootstraps a single protected admin account on first start and
exposes a JSON API for login, user management (admin-only), and projects
(owner-or-admin).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./projectdesk.yaml)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("projectdesk")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.projectdesk")
	}

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.dsn", "")
	viper.SetDefault("auth.secret", "")
	viper.SetDefault("auth.algorithm", "HS256")
	viper.SetDefault("auth.token_ttl", "30m")
	viper.SetDefault("auth.min_password_length", 8)
	viper.SetDefault("bootstrap.admin_email", "admin@example.com")
	viper.SetDefault("bootstrap.admin_password", "")

	viper.SetEnvPrefix("PROJECTDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
