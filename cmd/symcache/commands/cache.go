package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/symcache/internal/ui/output"
	"go.trai.ch/symcache/internal/ui/report"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the local cache",
	}

	cmd.AddCommand(c.newCacheStatsCmd())
	cmd.AddCommand(c.newCacheSweepCmd())
	cmd.AddCommand(c.newCacheCleanCmd())

	return cmd
}

func (c *CLI) newCacheStatsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(s Service) error {
				stats, err := s.Stats()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				return report.New(output.NewPlain(cmd.OutOrStdout())).Stats(stats)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the statistics as JSON")
	return cmd
}

func (c *CLI) newCacheSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict least recently used entries until the cache fits its budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(s Service) error {
				stats, err := s.Sweep()
				if err != nil {
					return err
				}
				return report.New(output.NewPlain(cmd.OutOrStdout())).Sweep(stats)
			})
		},
	}
}

func (c *CLI) newCacheCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove every cache entry that is not in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(s Service) error {
				stats, err := s.Clean()
				if err != nil {
					return err
				}
				return report.New(output.NewPlain(cmd.OutOrStdout())).Sweep(stats)
			})
		},
	}
}
