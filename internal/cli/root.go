// Package cli defines the cobra commands of the anjoman client.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/soheil-star01/anjoman/internal/app"
	"github.com/soheil-star01/anjoman/internal/pkg/config"
	"github.com/soheil-star01/anjoman/internal/present"
)

// OpenFunc builds the application for one invocation.
type OpenFunc func(configPath string, logOut io.Writer) (*app.App, error)

// Options configures Run.
type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// Open defaults to loading configuration from disk and environment.
	Open OpenFunc
}

// env carries per-invocation state shared by the commands.
type env struct {
	opts       Options
	configPath string
	app        *app.App
	printer    *present.Printer
}

func (e *env) interactive() bool {
	f, ok := e.opts.In.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (e *env) open() error {
	if e.app != nil {
		return nil
	}
	a, err := e.opts.Open(e.configPath, e.opts.Err)
	if err != nil {
		return err
	}
	e.app = a
	return nil
}

func (e *env) close(ctx context.Context) error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close(ctx)
	e.app = nil
	return err
}

// Open loads configuration and builds the application.
func Open(configPath string, logOut io.Writer) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := app.NewLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "anjoman",
		Short: "Convene a council of AI agents to deliberate on an issue",
		Long: `anjoman is a client for a multi-agent deliberation backend.

It proposes a council of agents for an issue, lets you review their roles
and models, then runs rounds of discussion within a budget you set while
you steer each round with guidance.

Getting started:
  anjoman keys set openai sk-...     Store a provider key
  anjoman new "Should we migrate?"   Start a session
  anjoman list                       Show past sessions
  anjoman resume <id>                Continue a session
  anjoman models                     Show approximate model pricing`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.open()
		},
	}
	root.CompletionOptions.HiddenDefaultCmd = true
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "config file (default ./"+config.DefaultFile+" when present)")

	root.SetIn(e.opts.In)
	root.SetOut(e.opts.Out)
	root.SetErr(e.opts.Err)

	root.AddCommand(newNewCmd(e))
	root.AddCommand(newResumeCmd(e))
	root.AddCommand(newListCmd(e))
	root.AddCommand(newShowCmd(e))
	root.AddCommand(newDeleteCmd(e))
	root.AddCommand(newModelsCmd(e))
	root.AddCommand(newKeysCmd(e))
	return root
}

// Run executes the command line args and releases the application afterwards.
func Run(ctx context.Context, args []string, opts Options) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Open == nil {
		opts.Open = Open
	}

	e := &env{opts: opts, printer: present.New(opts.Out)}
	root := newRootCmd(e)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := e.close(context.WithoutCancel(ctx)); err == nil {
		err = cerr
	}
	return err
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute(ctx context.Context) int {
	if err := Run(ctx, os.Args[1:], Options{}); err != nil {
		present.New(os.Stderr).Error(err)
		return 1
	}
	return 0
}
