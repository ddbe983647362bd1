package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/ui/output"
	"go.trai.ch/symcache/internal/ui/report"
	"go.trai.ch/zerr"
)

// sourceFlags are the per-request source overrides shared by commands
// that resolve modules.
type sourceFlags struct {
	dirs     []string
	layout   string
	strategy string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.dirs, "symbols", "s", nil,
		"Symbol directory to search instead of the configured sources (repeatable)")
	cmd.Flags().StringVar(&f.layout, "layout", string(domain.LayoutBreakpad), "Directory layout of --symbols directories")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "Fetch strategy: sequential or race (default from config)")
}

func (f *sourceFlags) sources() []domain.SourceConfig {
	out := make([]domain.SourceConfig, 0, len(f.dirs))
	for i, dir := range f.dirs {
		out = append(out, domain.SourceConfig{
			ID:     fmt.Sprintf("dir%d", i+1),
			Type:   domain.SourceFilesystem,
			Layout: domain.SourceLayout(f.layout),
			Path:   dir,
		})
	}
	return out
}

func (f *sourceFlags) fetchStrategy() (domain.FetchStrategy, error) {
	switch s := domain.FetchStrategy(f.strategy); s {
	case "", domain.StrategySequential, domain.StrategyRace:
		return s, nil
	default:
		return "", zerr.With(domain.ErrInvalidConfig, "strategy", f.strategy)
	}
}

func (c *CLI) newSymbolicateCmd() *cobra.Command {
	var (
		srcs      sourceFlags
		asJSON    bool
		maxFrames int
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "symbolicate <dump>",
		Short: "Walk and symbolicate the threads of a crash dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := srcs.fetchStrategy()
			if err != nil {
				return err
			}
			return c.withService(cmd, func(s Service) error {
				res, err := s.Symbolicate(cmd.Context(), domain.SymbolicationRequest{
					DumpRef:   args[0],
					Sources:   srcs.sources(),
					Strategy:  strategy,
					MaxFrames: maxFrames,
					Timeout:   timeout,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				return report.New(output.NewPlain(cmd.OutOrStdout())).Result(res)
			})
		},
	}

	srcs.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().IntVar(&maxFrames, "max-frames", 0, "Maximum frames per thread (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Request timeout (default from config)")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
