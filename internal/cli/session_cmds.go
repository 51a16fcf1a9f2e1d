package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

type newFlags struct {
	budget     float64
	agents     int
	preference string
	yes        bool
	rounds     int
	complete   bool
}

func newNewCmd(e *env) *cobra.Command {
	var f newFlags
	cmd := &cobra.Command{
		Use:   "new [issue...]",
		Short: "Start a deliberation session on an issue",
		Long: `Ask the backend to propose a council for the issue, review the proposal,
then steer rounds of discussion until you complete the session.

Without --rounds the session runs interactively, reading commands from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(cmd, e, strings.Join(args, " "), f)
		},
	}
	cmd.Flags().Float64VarP(&f.budget, "budget", "b", 0, "spend ceiling in USD (default from config)")
	cmd.Flags().IntVarP(&f.agents, "agents", "n", 0, "number of agents (default: backend decides)")
	cmd.Flags().StringVarP(&f.preference, "preference", "p", "", "model preference: budget, balanced, performance (default from config)")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "accept the proposed council without review")
	cmd.Flags().IntVar(&f.rounds, "rounds", 0, "run this many rounds unattended, accepting each suggestion")
	cmd.Flags().BoolVar(&f.complete, "complete", false, "complete the session after the unattended rounds")
	return cmd
}

func runNew(cmd *cobra.Command, e *env, issue string, f newFlags) error {
	ctx := cmd.Context()
	a := e.app
	ctl := a.NewSession()
	sh := newShell(e, ctl)

	if strings.TrimSpace(issue) == "" {
		line, ok := sh.read("Issue: ")
		if !ok {
			return errors.New("an issue is required")
		}
		issue = line
	}

	creds, err := a.Credentials(ctx)
	if err != nil {
		return err
	}

	req := domain.ProposeRequest{
		Issue:       issue,
		Budget:      a.Config.Session.DefaultBudget,
		Preference:  domain.ModelPreference(a.Config.Session.ModelPreference),
		Credentials: creds,
	}
	if cmd.Flags().Changed("budget") {
		req.Budget = f.budget
	}
	if cmd.Flags().Changed("agents") {
		n := f.agents
		req.AgentCount = &n
	}
	if f.preference != "" {
		req.Preference = domain.ModelPreference(f.preference)
	}

	e.printer.Disclaimer()
	if err := ctl.RequestProposal(ctx, req); err != nil {
		if errors.Is(err, domain.ErrNoCredentials) {
			e.printer.Info("Store a key with: anjoman keys set <provider> <key>")
		}
		return err
	}

	if f.yes {
		e.printer.Proposal(ctl.Review())
		if err := ctl.ConfirmProposal(ctx); err != nil {
			return err
		}
	} else {
		created, err := sh.review(ctx)
		if err != nil {
			return err
		}
		if !created {
			e.printer.Info("Proposal discarded.")
			return nil
		}
	}

	s := ctl.Session()
	e.printer.Info("Session %s created.", s.ID)
	e.printer.Agents(s.Agents)
	sh.showBudget()

	if f.rounds > 0 {
		return sh.autopilot(ctx, f.rounds, f.complete)
	}
	return sh.run(ctx)
}

func newResumeCmd(e *env) *cobra.Command {
	var rounds int
	var complete bool
	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Continue an existing session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			creds, err := e.app.Credentials(ctx)
			if err != nil {
				return err
			}
			ctl := e.app.NewSession()
			if err := ctl.Open(ctx, args[0], creds); err != nil {
				return err
			}
			sh := newShell(e, ctl)
			sh.showSession()
			if rounds > 0 {
				return sh.autopilot(ctx, rounds, complete)
			}
			return sh.run(ctx)
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 0, "run this many rounds unattended, accepting each suggestion")
	cmd.Flags().BoolVar(&complete, "complete", false, "complete the session after the unattended rounds")
	return cmd
}

func newShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session with every round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl := e.app.NewSession()
			if err := ctl.Open(cmd.Context(), args[0], nil); err != nil {
				return err
			}
			newShell(e, ctl).showSession()
			return nil
		},
	}
}

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := e.app.NewRegistry().List(cmd.Context())
			if err != nil {
				return err
			}
			e.printer.SessionList(items)
			return nil
		},
	}
}

func newModelsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show approximate model pricing published by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, err := e.app.Pricing.ModelPricing(cmd.Context())
			if err != nil {
				return err
			}
			e.printer.Pricing(pl)
			return nil
		},
	}
}

func newDeleteCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <session-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a session after confirmation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg := e.app.NewRegistry()
			if _, err := reg.List(ctx); err != nil {
				return err
			}

			sh := newShell(e, nil)
			confirm := func(it domain.SessionListItem) (bool, error) {
				if yes {
					return true, nil
				}
				label := it.ID
				if it.Issue != "" {
					label += " (" + it.Issue + ")"
				}
				answer, _ := sh.read(fmt.Sprintf("Delete session %s? [y/N] ", label))
				switch strings.ToLower(strings.TrimSpace(answer)) {
				case "y", "yes":
					return true, nil
				}
				return false, nil
			}

			items, err := reg.Delete(ctx, args[0], confirm)
			if errors.Is(err, domain.ErrNotConfirmed) {
				e.printer.Info("Not deleted.")
				return nil
			}
			if err != nil {
				return err
			}
			e.printer.Info("Deleted %s.", args[0])
			e.printer.SessionList(items)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
