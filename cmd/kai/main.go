// Command kai runs the Kai video-call companion server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-kai/internal/config"
	"github.com/teslashibe/go-kai/internal/log"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "kai",
		Short: "Video-call companion that reacts to your mood and talks back",
		Long: strings.TrimSpace(`kai serves a browser client that streams webcam frames and chat text
over a websocket. Each frame is classified for facial emotion, chat is answered
by a language model (or a human operator over Telegram) and replies are spoken
with text-to-speech.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kai %s\n", version)
		},
	}
}

func newServeCommand() *cobra.Command {
	var (
		envFile  string
		port     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Example: strings.Join([]string{
			"  kai serve",
			"  kai serve --port 8080 --log-level debug",
			"  kai serve --env-file /etc/kai.env",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log.Init(cfg.LogLevel)
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file with settings and API keys")
	cmd.Flags().IntVarP(&port, "port", "p", 5000, "Listen port (overrides PORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.Component("main")
	logger.Info("starting kai", "version", version, "addr", cfg.Addr())

	app, err := build(cfg, version)
	if err != nil {
		return err
	}
	defer app.Close()

	go app.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("goodbye")
	return nil
}
