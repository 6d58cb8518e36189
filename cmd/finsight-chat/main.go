package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tickerlab/finsight/internal/shell/apiclient"
	"github.com/tickerlab/finsight/internal/tui"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverURL string
		token     string
		sessionID string
		debug     bool
	)

	cmd := &cobra.Command{
		Use:          "finsight-chat",
		Short:        "Terminal chat for the Finsight research assistant",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger, cleanup, err := setupLogger(debug)
			if err != nil {
				return err
			}
			defer cleanup()

			if token == "" {
				token = os.Getenv("FINSIGHT_TOKEN")
			}

			client := apiclient.New(apiclient.Config{
				BaseURL: serverURL,
				Token:   token,
			})

			return tui.Run(tui.Deps{
				API:     client,
				Session: sessionID,
				Logger:  logger,
				Debug:   debug,
			})
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "Finsight server base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for a protected server (or FINSIGHT_TOKEN)")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session by ID")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose logging to finsight-chat.log")
	return cmd
}

// setupLogger writes to a local file in debug mode. The TUI owns the
// terminal, so nothing may log to stdout while it runs.
func setupLogger(debug bool) (*slog.Logger, func(), error) {
	if !debug {
		return slog.New(slog.NewJSONHandler(io.Discard, nil)), func() {}, nil
	}

	f, err := os.OpenFile("finsight-chat.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	return logger, func() { _ = f.Close() }, nil
}
