// Package budget derives display and gating flags from a server budget snapshot.
package budget

import (
	"fmt"
	"math"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

// DefaultWarningThreshold applies when the backend omits the threshold.
const DefaultWarningThreshold = 0.8

// Level is the coarse state of a budget.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelExceeded
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	case LevelExceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// Status is the result of evaluating a budget.
type Status struct {
	// PercentUsed is used/total*100, unclamped.
	PercentUsed float64
	IsWarning   bool
	IsExceeded  bool
}

// DisplayPercent clamps PercentUsed to [0, 100] for progress bars.
func (s Status) DisplayPercent() float64 {
	return math.Max(0, math.Min(100, s.PercentUsed))
}

// Level folds the flags into one value. Exceeded wins over warning.
func (s Status) Level() Level {
	switch {
	case s.IsExceeded:
		return LevelExceeded
	case s.IsWarning:
		return LevelWarning
	default:
		return LevelOK
	}
}

// Evaluate computes the budget flags. total must be positive and finite,
// used must be non-negative and finite, threshold must lie in (0, 1).
func Evaluate(used, total, threshold float64) (Status, error) {
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return Status{}, domain.ErrValidation(fmt.Sprintf("total budget must be positive, got %v", total)).
			WithCode(domain.CodeInvalidBudget).
			WithParam("total_budget")
	}
	if math.IsNaN(used) || math.IsInf(used, 0) || used < 0 {
		return Status{}, domain.ErrValidation(fmt.Sprintf("used budget must be non-negative, got %v", used)).
			WithCode(domain.CodeInvalidBudget).
			WithParam("used")
	}
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return Status{}, domain.ErrValidation(fmt.Sprintf("warning threshold must be in (0, 1), got %v", threshold)).
			WithCode(domain.CodeInvalidThreshold).
			WithParam("warning_threshold")
	}

	ratio := used / total
	return Status{
		PercentUsed: ratio * 100,
		IsWarning:   ratio >= threshold,
		IsExceeded:  used >= total,
	}, nil
}

// EvaluateBudget evaluates a snapshot, substituting the default threshold when it is unset.
func EvaluateBudget(b domain.Budget) (Status, error) {
	return EvaluateBudgetWith(b, DefaultWarningThreshold)
}

// EvaluateBudgetWith is EvaluateBudget with a caller-chosen fallback threshold.
func EvaluateBudgetWith(b domain.Budget, fallback float64) (Status, error) {
	threshold := b.WarningThreshold
	if threshold == 0 {
		threshold = fallback
	}
	return Evaluate(b.Used, b.TotalBudget, threshold)
}

// ValidateTotal checks a user-entered budget ceiling before it is sent anywhere.
func ValidateTotal(total float64) error {
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return domain.ErrValidation(fmt.Sprintf("budget must be a positive amount, got %v", total)).
			WithCode(domain.CodeInvalidBudget).
			WithParam("budget")
	}
	return nil
}
