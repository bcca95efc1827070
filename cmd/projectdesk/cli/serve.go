package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/projectdesk/projectdesk/internal/server"
	"github.com/projectdesk/projectdesk/internal/service"
	"github.com/projectdesk/projectdesk/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		host   string
		port   int
		driver string
		dsn    string
		dev    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the projectdesk API server",
		Long:  "Start the HTTP server. Bootstraps the protected admin account before accepting traffic.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&driver, "driver", "", "Storage driver: sqlite or postgres")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Storage DSN (sqlite file path or postgres URL)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("storage.driver", cmd.Flags().Lookup("driver"))
	viper.BindPFlag("storage.dsn", cmd.Flags().Lookup("dsn"))

	return cmd
}

func runServe(dev bool) error {
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	st, err := openStore()
	if err != nil {
		return err
	}
	logger.Info("directory store initialized",
		"driver", st.Driver(),
	)

	authCfg := authConfigFromViper()
	if authCfg.Secret == "" {
		authCfg.Secret = "projectdesk-dev-secret-change-me"
		logger.Warn("auth.secret not configured, using development fallback")
	}

	authSvc, err := service.NewAuthService(st, authCfg)
	if err != nil {
		st.Close()
		return err
	}

	// The protected admin must exist before the first request; a bootstrap
	// failure aborts startup.
	if err := authSvc.Bootstrap(context.Background(), logger); err != nil {
		st.Close()
		return err
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = viper.GetString("server.host")
	srvCfg.Port = viper.GetInt("server.port")

	srv := server.New(srvCfg, st, authSvc, logger)
	return srv.ListenAndServe()
}

// openStore opens the directory store from the effective storage settings.
func openStore() (*store.Store, error) {
	return store.New(viper.GetString("storage.driver"), viper.GetString("storage.dsn"))
}

// authConfigFromViper builds the immutable auth configuration once; it is
// passed by value into the services, never read back from viper.
func authConfigFromViper() service.Config {
	return service.Config{
		Secret:            viper.GetString("auth.secret"),
		Algorithm:         viper.GetString("auth.algorithm"),
		TokenTTL:          viper.GetDuration("auth.token_ttl"),
		MinPasswordLength: viper.GetInt("auth.min_password_length"),
		AdminEmail:        viper.GetString("bootstrap.admin_email"),
		AdminPassword:     viper.GetString("bootstrap.admin_password"),
	}
}
