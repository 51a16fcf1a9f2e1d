package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soheil-star01/anjoman/internal/core/domain"
	"github.com/soheil-star01/anjoman/internal/present"
	"github.com/soheil-star01/anjoman/internal/session"
)

const (
	reviewPrompt  = "[c]onfirm  [m]odel N ID  [r]ole N TEXT  [s]tyle N TEXT  [l]ist models  [q]uit > "
	sessionPrompt = "[i]terate  [g]uide TEXT  N pick  [c]omplete  [s]how  [r]efresh  [q]uit > "
)

// shell reads line commands. It works the same on a terminal and on a
// piped script; only the prompts are suppressed off a terminal.
type shell struct {
	e      *env
	ctl    *session.Controller
	p      *present.Printer
	lines  *bufio.Scanner
	out    io.Writer
	prompt bool
}

func newShell(e *env, ctl *session.Controller) *shell {
	return &shell{
		e:      e,
		ctl:    ctl,
		p:      e.printer,
		lines:  bufio.NewScanner(e.opts.In),
		out:    e.opts.Out,
		prompt: e.interactive(),
	}
}

// read returns the next line. ok is false at end of input.
func (sh *shell) read(prompt string) (line string, ok bool) {
	if sh.prompt {
		fmt.Fprint(sh.out, prompt)
	}
	if !sh.lines.Scan() {
		return "", false
	}
	return strings.TrimRight(sh.lines.Text(), "\r\n"), true
}

func splitCommand(line string) (cmd, rest string) {
	line = strings.TrimSpace(line)
	cmd, rest, _ = strings.Cut(line, " ")
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}

// indexArg parses "N REST" with N 1-based.
func indexArg(rest string) (int, string, error) {
	n, arg, _ := strings.Cut(strings.TrimSpace(rest), " ")
	i, err := strconv.Atoi(n)
	if err != nil || i < 1 {
		return 0, "", fmt.Errorf("expected an agent number, got %q", n)
	}
	return i - 1, strings.TrimSpace(arg), nil
}

// review runs the proposal review loop. It returns true when the session
// was created and false when the proposal was discarded.
func (sh *shell) review(ctx context.Context) (bool, error) {
	show := true
	for {
		rc := sh.ctl.Review()
		if rc == nil {
			return false, fmt.Errorf("no proposal under review (state %s)", sh.ctl.State())
		}
		if show {
			sh.p.Proposal(rc)
			show = false
		}

		line, ok := sh.read(reviewPrompt)
		if !ok {
			return false, sh.ctl.CancelProposal()
		}
		cmd, rest := splitCommand(line)

		var err error
		switch cmd {
		case "":
			continue
		case "c", "confirm":
			if err := sh.ctl.ConfirmProposal(ctx); err != nil {
				// Edits survive a failed confirm; the user may retry.
				sh.p.Error(err)
				continue
			}
			return true, nil
		case "m", "model":
			var i int
			var id string
			if i, id, err = indexArg(rest); err == nil {
				err = rc.SetModel(i, id)
			}
			show = err == nil
		case "r", "role":
			var i int
			var role string
			if i, role, err = indexArg(rest); err == nil {
				err = rc.SetRole(i, role)
			}
			show = err == nil
		case "s", "style":
			var i int
			var style string
			if i, style, err = indexArg(rest); err == nil {
				err = rc.SetStyle(i, style)
			}
			show = err == nil
		case "l", "list":
			sh.p.Models(rc.ModelsByProvider())
		case "q", "quit":
			return false, sh.ctl.CancelProposal()
		default:
			sh.p.Info("unknown command %q", cmd)
		}
		if err != nil {
			sh.p.Error(err)
		}
	}
}

func (sh *shell) models() []string {
	s := sh.ctl.Session()
	if s == nil {
		return nil
	}
	models := make([]string, 0, len(s.Agents))
	for _, a := range s.Agents {
		models = append(models, a.Model)
	}
	return models
}

func (sh *shell) choices() []present.Choice {
	s := sh.ctl.Session()
	if s == nil {
		return nil
	}
	last, ok := s.LastIteration()
	if !ok {
		return nil
	}
	return present.Choices(last.Summary.Suggestion, sh.e.app.Segmenter)
}

func (sh *shell) showBudget() {
	s := sh.ctl.Session()
	if s == nil {
		return
	}
	st, err := sh.ctl.BudgetStatus()
	if err != nil {
		sh.p.Error(err)
		return
	}
	sh.p.Budget(s.Budget, st)
}

func (sh *shell) showSession() {
	s := sh.ctl.Session()
	if s == nil {
		return
	}
	st, err := sh.ctl.BudgetStatus()
	if err != nil {
		sh.p.Error(err)
		return
	}
	sh.p.Session(s, st)
}

func (sh *shell) stage(text string) {
	sh.ctl.SetGuidance(text)
	sh.p.Info("Guidance for the next round: %s", text)
	sh.p.Tokens(sh.e.app.Tokens.Count(text, sh.models()...))
}

func (sh *shell) iterate(ctx context.Context) error {
	err := sh.ctl.RequestIteration(ctx, session.IterateInput{
		Guidance:         sh.ctl.Guidance(),
		AcceptSuggestion: true,
	})
	if err != nil {
		return err
	}
	if last, ok := sh.ctl.Session().LastIteration(); ok {
		sh.p.Iteration(last)
	}
	sh.showBudget()
	return nil
}

func (sh *shell) resumeHint() {
	if s := sh.ctl.Session(); s != nil && !sh.ctl.State().Terminal() {
		sh.p.Info("Session %s is still active. Resume with: anjoman resume %s", s.ID, s.ID)
	}
}

// run is the guidance loop for an open session.
func (sh *shell) run(ctx context.Context) error {
	offer := true
	for {
		switch sh.ctl.State() {
		case session.StateCompleted:
			sh.p.Info("Session completed.")
			return nil
		case session.StateError:
			return sh.ctl.Err()
		}

		if offer {
			if err := sh.ctl.CanIterate(); err != nil {
				sh.p.Error(err)
				if errors.Is(err, domain.ErrBudgetExceeded) {
					sh.p.Info("The budget is spent. Complete the session with 'c'.")
				}
			} else if choices := sh.choices(); len(choices) > 0 {
				sh.p.Info("Pick a direction for the next round:")
				sh.p.Choices(choices)
			}
			offer = false
		}

		line, ok := sh.read(sessionPrompt)
		if !ok {
			sh.resumeHint()
			return nil
		}
		cmd, rest := splitCommand(line)

		switch cmd {
		case "":
			continue
		case "i", "iterate":
			if err := sh.iterate(ctx); err != nil {
				sh.p.Error(err)
				continue
			}
			offer = true
		case "g", "guide":
			if rest == "" {
				sh.ctl.SetGuidance("")
				sh.p.Info("Guidance cleared.")
				continue
			}
			sh.stage(rest)
		case "c", "complete":
			if err := sh.ctl.RequestComplete(ctx); err != nil {
				sh.p.Error(err)
			}
		case "s", "show":
			sh.showSession()
		case "r", "refresh":
			if err := sh.ctl.Refresh(ctx); err != nil {
				sh.p.Error(err)
				continue
			}
			sh.showBudget()
			offer = true
		case "q", "quit":
			sh.resumeHint()
			return nil
		default:
			n, err := strconv.Atoi(cmd)
			if err != nil {
				sh.p.Info("unknown command %q", cmd)
				continue
			}
			choices := sh.choices()
			if n < 1 || n > len(choices) {
				sh.p.Info("no direction numbered %d", n)
				continue
			}
			sh.stage(choices[n-1].Guidance)
		}
	}
}

// autopilot runs rounds without input, accepting the moderator's suggestion.
func (sh *shell) autopilot(ctx context.Context, rounds int, complete bool) error {
	for i := 0; i < rounds; i++ {
		if err := sh.ctl.CanIterate(); err != nil {
			if errors.Is(err, domain.ErrBudgetExceeded) {
				sh.p.Info("Budget spent after %d rounds.", i)
				break
			}
			return err
		}
		if err := sh.iterate(ctx); err != nil {
			return err
		}
	}
	if !complete {
		sh.resumeHint()
		return nil
	}
	if err := sh.ctl.RequestComplete(ctx); err != nil {
		return err
	}
	sh.p.Info("Session completed.")
	return nil
}
