package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"binday/internal/config"
	"binday/internal/model"
	"binday/internal/scraper"
)

// parseCmd reads a payload captured with `binday raw` from stdin. It needs
// no council configuration.
func parseCmd() *cobra.Command {
	var (
		all bool
		at  string
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a raw collection data payload from stdin",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFiles(envFile)
			level, err := config.ParseLevel(config.Getenv("LOG_LEVEL", "info"))
			if err != nil {
				return err
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}

			now := time.Now()
			if at != "" {
				now, err = model.ParseDate(at, time.Local)
				if err != nil {
					return fmt.Errorf("parsing --at: %w", err)
				}
			}

			var collections []model.Collection
			if all {
				collections, err = scraper.ParseAll(raw, time.Local)
			} else {
				window := time.Duration(config.DefaultWindowDays) * 24 * time.Hour
				if days > 0 {
					window = time.Duration(days) * 24 * time.Hour
				}
				collections, err = scraper.Parse(raw, now, window)
			}
			if err != nil {
				return err
			}
			logger.Debug("payload parsed", "collections", len(collections))

			return write(cmd.OutOrStdout(), collections)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "print every known collection, ignoring the window")
	cmd.Flags().StringVar(&at, "at", "", "evaluate the window from this date (YYYY-MM-DD) instead of today")
	return cmd
}
