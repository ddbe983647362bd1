package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/symcache/internal/app"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/ui/output"
	"go.trai.ch/symcache/internal/ui/report"
	"go.trai.ch/zerr"
)

func (c *CLI) newLookupCmd() *cobra.Command {
	var (
		srcs    sourceFlags
		asJSON  bool
		codeID  string
		offsets []string
	)
	cmd := &cobra.Command{
		Use:   "lookup <debug-id> <name>",
		Short: "Resolve one module and optionally symbolicate offsets in it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := srcs.fetchStrategy()
			if err != nil {
				return err
			}
			offs, err := parseOffsets(offsets)
			if err != nil {
				return err
			}
			req := app.LookupRequest{
				Module: domain.ModuleDescriptor{
					Name:    args[1],
					DebugID: args[0],
					CodeID:  codeID,
				},
				Sources:  srcs.sources(),
				Strategy: strategy,
				Offsets:  offs,
			}
			return c.withService(cmd, func(s Service) error {
				res, err := s.Lookup(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				return report.New(output.NewPlain(cmd.OutOrStdout())).Lookup(&res.Module, res.Frames)
			})
		},
	}

	srcs.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&codeID, "code-id", "", "Code id of the module")
	cmd.Flags().StringSliceVarP(&offsets, "offset", "o", nil, "Module-relative address to symbolicate, hex (repeatable)")

	return cmd
}

func parseOffsets(in []string) ([]uint64, error) {
	out := make([]uint64, 0, len(in))
	for _, s := range in {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "invalid offset"), "offset", s)
		}
		out = append(out, v)
	}
	return out, nil
}
