package bot

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// ActionType classifies what an evaluated option would do. The classification
// feeds chat hooks and move tracking, not the score itself.
type ActionType string

const (
	ActionDeploy     ActionType = "deploy"
	ActionPass       ActionType = "pass"
	ActionActivate   ActionType = "activate_force"
	ActionBattle     ActionType = "battle"
	ActionMove       ActionType = "move"
	ActionDraw       ActionType = "draw"
	ActionSelectCard ActionType = "select_card"
	ActionArbitrary  ActionType = "arbitrary"

	ActionFireWeapon        ActionType = "fire_weapon"
	ActionBattleDestiny     ActionType = "battle_destiny"
	ActionSubstituteDestiny ActionType = "substitute_destiny"
	ActionCancelDamage      ActionType = "cancel_damage"

	ActionForceDrain  ActionType = "force_drain"
	ActionRaceDestiny ActionType = "race_destiny"
	ActionReact       ActionType = "react"
	ActionSteal       ActionType = "steal"
	ActionSabacc      ActionType = "sabacc"
	ActionCancel      ActionType = "cancel"
	ActionEmbark      ActionType = "embark"

	ActionUnknown ActionType = "unknown"
)

// DecisionContext carries everything an evaluator needs to score the options
// of one server decision. Board and Strategy may be nil early in a game;
// evaluators fall back to neutral scores when they are.
type DecisionContext struct {
	Board    *swccg.BoardState
	Strategy *Strategy
	Decision *swccg.Decision
	Phase    string
	Turn     int
	IsMyTurn bool
}

// EvaluatedAction is one scored option. Reasoning keeps the adjustments in
// order so the chosen line can be reconstructed from the log.
type EvaluatedAction struct {
	ActionID    string
	Type        ActionType
	Score       float64
	Reasoning   []string
	DisplayText string
	CardName    string
	DeployCost  int
}

// AddReasoning records why the score moved. A zero delta notes context
// without changing the score.
func (a *EvaluatedAction) AddReasoning(reason string, delta float64) {
	if delta != 0 {
		reason = fmt.Sprintf("%s (%+.1f)", reason, delta)
		a.Score += delta
	}
	a.Reasoning = append(a.Reasoning, reason)
}

// ReasoningText joins the reasoning notes for logging and chat.
func (a *EvaluatedAction) ReasoningText() string {
	return strings.Join(a.Reasoning, " | ")
}

// Evaluator scores the options of decisions it understands. CanEvaluate
// gates which decisions reach Evaluate; returning no actions is valid.
type Evaluator interface {
	Name() string
	CanEvaluate(ctx *DecisionContext) bool
	Evaluate(ctx *DecisionContext) []*EvaluatedAction
}

// CombinedEvaluator runs every applicable evaluator over a decision and
// keeps the single highest-scoring action across all of them. Ties go to
// the evaluator that ran first.
type CombinedEvaluator struct {
	evaluators []Evaluator
	log        zerolog.Logger
}

// NewCombinedEvaluator builds a combined evaluator; order matters for ties.
func NewCombinedEvaluator(log zerolog.Logger, evaluators ...Evaluator) *CombinedEvaluator {
	return &CombinedEvaluator{evaluators: evaluators, log: log}
}

// EvaluateDecision returns the best action, or nil when no evaluator applied.
func (c *CombinedEvaluator) EvaluateDecision(ctx *DecisionContext) *EvaluatedAction {
	var all []*EvaluatedAction
	for _, ev := range c.evaluators {
		if !ev.CanEvaluate(ctx) {
			continue
		}
		actions := ev.Evaluate(ctx)
		for _, a := range actions {
			c.log.Debug().
				Str("evaluator", ev.Name()).
				Str("action", a.DisplayText).
				Float64("score", a.Score).
				Msg("Scored option")
		}
		all = append(all, actions...)
	}
	if len(all) == 0 {
		c.log.Warn().Str("text", ctx.Decision.Text).Msg("No evaluator produced actions")
		return nil
	}

	best := all[0]
	for _, a := range all[1:] {
		if a.Score > best.Score {
			best = a
		}
	}
	c.log.Info().
		Str("action", best.DisplayText).
		Float64("score", best.Score).
		Str("reasoning", best.ReasoningText()).
		Msg("Best action")
	return best
}

// PassEvaluator offers the do-nothing answer so that taking an action always
// has to beat staying put. The pass score climbs when resources are tight
// and force should be saved for the draw phase.
type PassEvaluator struct{}

// NewPassEvaluator returns the pass evaluator.
func NewPassEvaluator() *PassEvaluator { return &PassEvaluator{} }

func (*PassEvaluator) Name() string { return "Pass" }

func (*PassEvaluator) CanEvaluate(ctx *DecisionContext) bool {
	return !ctx.Decision.NoPass
}

func (*PassEvaluator) Evaluate(ctx *DecisionContext) []*EvaluatedAction {
	action := &EvaluatedAction{
		ActionID:    "",
		Type:        ActionPass,
		Score:       5,
		DisplayText: "Pass / Do nothing",
	}
	action.AddReasoning("Default pass option", 0)

	board := ctx.Board
	if board == nil {
		return []*EvaluatedAction{action}
	}

	if board.My.ForcePile < 3 {
		action.AddReasoning("Low on Force - prefer to pass", 5)
	}
	if board.ReserveDeckLow() {
		action.AddReasoning("Reserve deck low - conserve cards", 3)
	}

	// A thin hand means force is better spent on the draw phase.
	hand := board.HandSize()
	if hand < 5 {
		action.AddReasoning(fmt.Sprintf("Small hand (%d) - save force for drawing", hand), 15)
	} else if hand < 7 {
		action.AddReasoning(fmt.Sprintf("Hand below target (%d/7) - conserve force", hand), 8)
	}

	if strings.Contains(strings.ToLower(ctx.Phase), "move") && board.My.ForcePile <= 4 && hand < 7 {
		action.AddReasoning("Move phase + low force + small hand - pass to draw", 10)
	}

	return []*EvaluatedAction{action}
}
