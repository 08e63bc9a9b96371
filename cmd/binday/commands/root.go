package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"binday/internal/config"
	"binday/internal/model"
	"binday/internal/report"
	"binday/internal/scraper"
)

const fetchTimeout = 60 * time.Second

var (
	envFile string
	uprn    string
	days    int
	asJSON  bool

	cfg    *config.Config
	logger *slog.Logger
)

// Execute runs the binday command tree.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "binday",
		Short:        "Show upcoming bin collections for a property",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
		RunE: runNext,
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&uprn, "uprn", "", "property reference number (overrides UPRN)")
	root.PersistentFlags().IntVar(&days, "days", 0, "days ahead to report (overrides WINDOW_DAYS)")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print collections as JSON")

	root.AddCommand(rawCmd(), parseCmd())
	return root
}

func loadConfig() error {
	config.LoadEnvFiles(envFile)
	if uprn != "" {
		os.Setenv("UPRN", uprn)
	}

	c, err := config.Load()
	if err != nil {
		return err
	}
	if days > 0 {
		c.Window = time.Duration(days) * 24 * time.Hour
	}

	cfg = c
	logger = c.NewLogger()
	slog.SetDefault(logger)
	return nil
}

// runNext fetches the schedule and prints the collections due in the window.
// Fetch failures are logged and end the run without output.
func runNext(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
	defer cancel()

	s, err := scraper.FromConfig(cfg, logger)
	if err != nil {
		return err
	}

	raw, err := s.FetchRaw(ctx)
	if err != nil {
		logger.Error("Error fetching bin collection data", "uprn", cfg.UPRN, "err", err)
		logger.Error("Failed to retrieve bin collection data.")
		return nil
	}

	upcoming, err := scraper.Parse(raw, time.Now(), cfg.Window)
	if err != nil {
		return err
	}
	logger.Debug("collections parsed", "due", len(upcoming))

	return write(cmd.OutOrStdout(), upcoming)
}

func write(w io.Writer, collections []model.Collection) error {
	if asJSON {
		return report.WriteJSON(w, collections)
	}
	return report.Write(w, collections)
}
