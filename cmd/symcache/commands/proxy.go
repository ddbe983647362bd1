package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newProxyCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve cached debug files over HTTP in symbol server layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(s Service) error {
				return s.ServeProxy(cmd.Context(), listen, cmd.ErrOrStderr())
			})
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on (default from config)")
	return cmd
}
