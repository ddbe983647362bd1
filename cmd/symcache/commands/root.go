// Package commands implements the CLI commands for symcache.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/symcache/internal/app"
	"go.trai.ch/symcache/internal/build"
	"go.trai.ch/symcache/internal/core/domain"
)

// Service is an opened cache with its symbolication engines.
type Service interface {
	Symbolicate(ctx context.Context, req domain.SymbolicationRequest) (*domain.SymbolicationResult, error)
	Lookup(ctx context.Context, req app.LookupRequest) (*app.LookupResult, error)
	Stats() (domain.CacheStats, error)
	Sweep() (domain.SweepStats, error)
	Clean() (domain.SweepStats, error)
	ServeProxy(ctx context.Context, addr string, accessLog io.Writer) error
	Close() error
}

// Application represents the application logic interface.
type Application interface {
	Open(ctx context.Context, opts app.OpenOptions) (Service, error)
	SetJSONLogs(enabled bool)
}

// FromApp adapts the application to the CLI.
func FromApp(a *app.App) Application {
	return appAdapter{app: a}
}

type appAdapter struct {
	app *app.App
}

func (a appAdapter) Open(ctx context.Context, opts app.OpenOptions) (Service, error) {
	s, err := a.app.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a appAdapter) SetJSONLogs(enabled bool) {
	a.app.SetJSONLogs(enabled)
}

// CLI represents the command line interface for symcache.
type CLI struct {
	app        Application
	rootCmd    *cobra.Command
	configPath string
	jsonLogs   bool
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "symcache",
		Short:         "Fetch-through symbol cache and crash symbolicator",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to symcache.yaml (default: discovered from the working directory)")
	rootCmd.PersistentFlags().BoolVar(&c.jsonLogs, "json-logs", false, "Write logs as JSON")
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		if c.jsonLogs {
			c.app.SetJSONLogs(true)
		}
	}

	rootCmd.AddCommand(c.newSymbolicateCmd())
	rootCmd.AddCommand(c.newLookupCmd())
	rootCmd.AddCommand(c.newCacheCmd())
	rootCmd.AddCommand(c.newProxyCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// withService opens the configured cache for the duration of fn.
func (c *CLI) withService(cmd *cobra.Command, fn func(Service) error) (err error) {
	s, err := c.app.Open(cmd.Context(), app.OpenOptions{ConfigPath: c.configPath})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
