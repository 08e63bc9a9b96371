package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"binday/internal/scraper"
)

// rawCmd prints the unparsed data API response, for capturing fixtures or
// checking an upstream format change.
func rawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "raw",
		Short: "Print the raw collection data payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
			defer cancel()

			s, err := scraper.FromConfig(cfg, logger)
			if err != nil {
				return err
			}

			raw, err := s.FetchRaw(ctx)
			if err != nil {
				return fmt.Errorf("fetching bin collection data: %w", err)
			}

			_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
			return err
		},
	}
}
