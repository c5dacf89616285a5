package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// ForceActivationEvaluator answers INTEGER decisions. Force activation is
// the common case; any other integer prompt gets the maximum so the game
// never stalls on an unanswered number.
type ForceActivationEvaluator struct{}

// NewForceActivationEvaluator returns the integer-decision evaluator.
func NewForceActivationEvaluator() *ForceActivationEvaluator {
	return &ForceActivationEvaluator{}
}

func (*ForceActivationEvaluator) Name() string { return "ForceActivation" }

func (*ForceActivationEvaluator) CanEvaluate(ctx *DecisionContext) bool {
	return ctx.Decision.Type == swccg.DecisionInteger
}

func (e *ForceActivationEvaluator) Evaluate(ctx *DecisionContext) []*EvaluatedAction {
	board := ctx.Board
	d := ctx.Decision
	textLower := strings.ToLower(d.Text)

	minVal := d.Min
	maxVal := d.Max
	if maxVal == 0 {
		// Some prompts omit max; the default value is the next best bound.
		maxVal = d.DefaultValue
	}

	// Opponent activation is their force spent, not ours. Answer max even
	// when both bounds are absent and max resolves to zero.
	if strings.Contains(textLower, "allow opponent to activate") ||
		strings.Contains(textLower, "opponent to activate") {
		action := &EvaluatedAction{
			ActionID:    strconv.Itoa(maxVal),
			Type:        ActionActivate,
			Score:       50,
			DisplayText: fmt.Sprintf("Allow opponent to activate %d force", maxVal),
		}
		action.AddReasoning("Allowing opponent max activation (they'll waste force)", 0)
		return []*EvaluatedAction{action}
	}

	if maxVal == 0 && minVal == 0 {
		// An unknown prompt with no bounds at all: zero reads as a refusal
		// and can reprompt forever, so offer one.
		maxVal = 1
	}

	if board == nil {
		action := &EvaluatedAction{
			ActionID:    strconv.Itoa(maxVal),
			Type:        ActionActivate,
			Score:       50,
			DisplayText: fmt.Sprintf("INTEGER response: %d (no board state)", maxVal),
		}
		action.AddReasoning("No board state available, defaulting to max", 0)
		return []*EvaluatedAction{action}
	}

	var amount int
	if strings.Contains(textLower, "force to activate") || strings.Contains(textLower, "activate force") {
		amount = board.ForceToActivate(maxVal)
	} else {
		amount = maxVal
	}
	amount = max(minVal, min(amount, maxVal))

	action := &EvaluatedAction{
		ActionID:    strconv.Itoa(amount),
		Type:        ActionActivate,
		Score:       50,
		DisplayText: fmt.Sprintf("Activate %d of %d force", amount, maxVal),
	}

	if board.My.ForcePile > 12 {
		action.AddReasoning(fmt.Sprintf("Force pile high (%d) - conserving", board.My.ForcePile), 0)
	}
	if reserve := board.LifeForce(); reserve <= 20 {
		action.AddReasoning(fmt.Sprintf("Reserve low (%d) - saving for destiny", reserve), 0)
	}

	switch {
	case amount == maxVal:
		action.AddReasoning("Activating full amount available", 10)
	case amount == 0:
		action.AddReasoning("Skipping activation this turn", -10)
	default:
		action.AddReasoning(fmt.Sprintf("Activating partial (%d/%d)", amount, maxVal), 0)
	}

	// ForceToActivate caps the whole turn, so record what this answer spends.
	board.ForceActivated += amount

	return []*EvaluatedAction{action}
}
