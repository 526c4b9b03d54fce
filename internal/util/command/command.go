// Package command provides shared plumbing for CLI subcommands that need a
// fully initialized server.
package command

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/api/router"
	"github/chapool/vault-relayer/internal/config"
)

// NewSubcommandGroup returns a command that only exists to group its
// subcommands; invoking it directly prints usage.
func NewSubcommandGroup(name string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use: name,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				log.Error().Err(err).Msg("Failed to print help")
			}
		},
	}

	cmd.AddCommand(subcommands...)

	return cmd
}

// WithServer initializes a server from the given config, runs f against it
// and shuts the server down again. The global logger is configured from the
// config before f runs.
func WithServer(ctx context.Context, cfg config.Server, f func(ctx context.Context, s *api.Server) error) error {
	ConfigureLogger(cfg.Logger)

	s, err := api.InitNewServer(cfg)
	if err != nil {
		return err
	}

	router.Init(s)

	defer func() {
		if errs := s.Shutdown(ctx); len(errs) > 0 {
			log.Error().Errs("errors", errs).Msg("Errors while shutting down server")
		}
	}()

	return f(ctx, s)
}

// ConfigureLogger applies the log level and output format to the global
// logger.
func ConfigureLogger(cfg config.LoggerServer) {
	log.Logger = log.Logger.Level(cfg.Level)
	zerolog.SetGlobalLevel(cfg.Level)

	if cfg.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
			w.TimeFormat = "15:04:05"
		}))
	}
}
