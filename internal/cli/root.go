// Package cli provides the command-line interface for bizchat.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bizlink/bizchat-go/internal/api"
	"github.com/bizlink/bizchat-go/internal/auth"
	"github.com/bizlink/bizchat-go/internal/config"
	"github.com/bizlink/bizchat-go/internal/realtime"
	"github.com/bizlink/bizchat-go/internal/session"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configFile   string
	accessToken  string
	refreshToken string
	verbose      bool

	// Shared state built in the persistent pre-run
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	authClient *auth.Client
	apiClient  *api.Client
	sessions   *session.Manager
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bizchat",
	Short: "Realtime chat client for the business platform",
	Long: `Bizchat is the terminal client for the business platform's realtime
conversation layer: chat with customers and partner businesses, watch
notifications, and exercise the same socket protocol the web app uses.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)

		if accessToken == "" {
			accessToken = os.Getenv("BIZCHAT_TOKEN")
		}
		if refreshToken == "" {
			refreshToken = os.Getenv("BIZCHAT_REFRESH_TOKEN")
		}

		authClient = auth.NewClient(cfg.APIBaseURL, accessToken, refreshToken)
		apiClient = api.New(cfg.APIBaseURL, authClient)
		sessions = session.NewManager(realtime.Options{
			URL:           cfg.SocketURL,
			Path:          cfg.SocketPath,
			AckTimeout:    cfg.AckTimeout,
			AutoReconnect: true,
		}, logger)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sessions != nil {
			if err := sessions.Release(); err != nil {
				logger.Warn("failed to close session", "error", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// acquireSession resolves the identity and opens (or reuses) the
// realtime connection.
func acquireSession(ctx context.Context) (*realtime.Conn, auth.Identity, error) {
	identity, err := authClient.Me(ctx)
	if err != nil {
		return nil, auth.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	conn, err := sessions.Acquire(ctx, authClient, identity, func() {
		exitWithError("session is unrecoverable, log in again")
	})
	if err != nil {
		return nil, identity, err
	}
	return conn, identity, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", "", "bearer access token (or BIZCHAT_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&refreshToken, "refresh-token", "", "refresh token (or BIZCHAT_REFRESH_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(advisorCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
