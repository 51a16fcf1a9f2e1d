// Package review holds the user-editable copy of a proposed agent roster
// until it is confirmed or cancelled.
package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

// ProviderGroup is one provider's slice of the model catalog.
type ProviderGroup struct {
	Provider string
	Models   []domain.ModelInfo
}

// Controller edits a roster copy-on-write. The proposal it was built from is
// never mutated, so dropping the controller discards every edit.
// A Controller is not safe for concurrent use.
type Controller struct {
	proposed  []domain.Agent
	agents    []domain.Agent
	catalog   []domain.ModelInfo
	rationale string
	closed    bool
}

// New starts a review of p.
func New(p *domain.Proposal) *Controller {
	agents := append([]domain.Agent(nil), p.Agents...)
	return &Controller{
		proposed:  agents,
		agents:    agents,
		catalog:   append([]domain.ModelInfo(nil), p.Models...),
		rationale: p.Rationale,
	}
}

// Len returns the roster size. It never changes during a review.
func (c *Controller) Len() int { return len(c.agents) }

// Rationale is the backend's explanation of the roster.
func (c *Controller) Rationale() string { return c.rationale }

// Agents returns a copy of the current, possibly edited, roster.
func (c *Controller) Agents() []domain.Agent {
	return append([]domain.Agent(nil), c.agents...)
}

// Proposed returns a copy of the roster as proposed.
func (c *Controller) Proposed() []domain.Agent {
	return append([]domain.Agent(nil), c.proposed...)
}

// Edited reports whether any set call changed the roster.
func (c *Controller) Edited() bool {
	for i := range c.agents {
		if c.agents[i] != c.proposed[i] {
			return true
		}
	}
	return false
}

// Closed reports whether Confirm or Cancel has been called.
func (c *Controller) Closed() bool { return c.closed }

// SetModel assigns modelID to the agent at index. When the catalog is
// non-empty the model must be listed in it.
func (c *Controller) SetModel(index int, modelID string) error {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return domain.ErrValidation("model must not be empty").WithCode(domain.CodeUnknownModel).WithParam("model")
	}
	if len(c.catalog) > 0 {
		if _, ok := c.LookupModel(modelID); !ok {
			return domain.ErrValidation(fmt.Sprintf("model %q is not in the catalog", modelID)).
				WithCode(domain.CodeUnknownModel).
				WithParam("model")
		}
	}
	return c.replace(index, func(a *domain.Agent) { a.Model = modelID })
}

// SetRole renames the agent at index.
func (c *Controller) SetRole(index int, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return domain.ErrValidation("role must not be empty").WithParam("role")
	}
	return c.replace(index, func(a *domain.Agent) { a.Role = role })
}

// SetStyle sets the agent's style descriptor. An empty style clears it.
func (c *Controller) SetStyle(index int, style string) error {
	style = strings.TrimSpace(style)
	return c.replace(index, func(a *domain.Agent) { a.Style = style })
}

func (c *Controller) replace(index int, edit func(*domain.Agent)) error {
	if c.closed {
		return domain.ErrState("review is closed").WithCode(domain.CodeReviewClosed)
	}
	if index < 0 || index >= len(c.agents) {
		return domain.ErrValidation(fmt.Sprintf("agent index %d out of range [0, %d)", index, len(c.agents))).
			WithCode(domain.CodeIndexOutOfRange).
			WithParam("index")
	}

	next := append([]domain.Agent(nil), c.agents...)
	a := next[index]
	edit(&a)
	next[index] = a
	c.agents = next
	return nil
}

// Confirm closes the review and hands over the edited roster.
func (c *Controller) Confirm() ([]domain.Agent, error) {
	if c.closed {
		return nil, domain.ErrState("review is closed").WithCode(domain.CodeReviewClosed)
	}
	c.closed = true
	return c.Agents(), nil
}

// Cancel closes the review and drops every edit. It never calls the backend.
func (c *Controller) Cancel() {
	c.closed = true
	c.agents = c.proposed
}

// LookupModel finds a catalog entry by id.
func (c *Controller) LookupModel(modelID string) (domain.ModelInfo, bool) {
	for _, m := range c.catalog {
		if m.ModelID == modelID {
			return m, true
		}
	}
	return domain.ModelInfo{}, false
}

// ModelsByProvider groups the catalog by provider, sorted by provider name
// with catalog order kept inside each group. It is computed on each call.
func (c *Controller) ModelsByProvider() []ProviderGroup {
	index := make(map[string]int)
	var groups []ProviderGroup
	for _, m := range c.catalog {
		i, ok := index[m.Provider]
		if !ok {
			i = len(groups)
			index[m.Provider] = i
			groups = append(groups, ProviderGroup{Provider: m.Provider})
		}
		groups[i].Models = append(groups[i].Models, m)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Provider < groups[j].Provider })
	return groups
}
