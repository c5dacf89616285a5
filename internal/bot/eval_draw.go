package bot

import (
	"fmt"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

const drawActionText = "Draw card into hand from Force Pile"

// Draw thresholds.
const (
	targetHandSize           = 7
	lowReserveThreshold      = 6
	smallHandThreshold       = 5
	aggressiveForceThreshold = 10

	// Below this much total force left, the effective hand cap shrinks.
	deckSizeForFullHand = 12
	// From this turn on, keep a little force back for reactions.
	forceReserveTurn    = 4
	smallHandForReserve = 6

	// Hand caps used when no strategy is wired, matching the stock tuning.
	maxHandDefault = 16
	softCapDefault = 12
)

// DrawEvaluator scores the draw-phase card draw. It balances filling the
// hand against decking out and against spending the force the opponent's
// turn will need.
type DrawEvaluator struct{}

// NewDrawEvaluator returns the draw evaluator.
func NewDrawEvaluator() *DrawEvaluator { return &DrawEvaluator{} }

func (*DrawEvaluator) Name() string { return "Draw" }

func (*DrawEvaluator) CanEvaluate(ctx *DecisionContext) bool {
	t := ctx.Decision.Type
	if t != swccg.DecisionCardActionChoice && t != swccg.DecisionActionChoice {
		return false
	}
	for _, text := range ctx.Decision.ActionTexts {
		if text == drawActionText {
			return true
		}
	}
	return false
}

func (e *DrawEvaluator) Evaluate(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	d := ctx.Decision

	for i, actionID := range d.ActionIDs {
		if d.ActionText(i) != drawActionText {
			continue
		}

		action := &EvaluatedAction{
			ActionID:    actionID,
			Type:        ActionDraw,
			DisplayText: drawActionText,
		}

		if ctx.Board != nil {
			rankDraw(action, ctx.Board, ctx.Strategy)
		} else {
			action.AddReasoning("No board state - neutral draw", 0)
		}

		actions = append(actions, action)
	}
	return actions
}

// rankDraw accumulates every reason for and against drawing; the deltas are
// additive rather than first-match so competing pressures balance out.
func rankDraw(action *EvaluatedAction, board *swccg.BoardState, strat *Strategy) {
	handSize := board.HandSize()
	reserve := board.LifeForce()
	forcePile := board.My.ForcePile
	turn := board.TurnNumber

	// A shrinking deck shrinks the hand worth holding.
	effectiveMaxHand := maxHandDefault
	if reserve < deckSizeForFullHand {
		deficit := deckSizeForFullHand - reserve
		effectiveMaxHand = max(6, maxHandDefault-deficit)
		if handSize >= effectiveMaxHand {
			penalty := badDelta * 2 * float64(handSize-effectiveMaxHand+1)
			action.AddReasoning(
				fmt.Sprintf("Low deck (%d) - effective max hand %d", reserve, effectiveMaxHand),
				penalty)
		}
	}

	if turn >= forceReserveTurn {
		forceToReserve := 2
		if handSize < smallHandForReserve {
			forceToReserve = 1
		}
		if forcePile <= forceToReserve {
			action.AddReasoning(
				fmt.Sprintf("Turn %d: reserve %d force for reactions", turn, forceToReserve),
				badDelta*1.5)
		}
	}

	if reserve <= lowReserveThreshold {
		action.AddReasoning(
			fmt.Sprintf("Low reserve (%d) - avoid drawing", reserve),
			badDelta*float64(lowReserveThreshold-reserve))
	}

	if handSize < targetHandSize && reserve > 10 && forcePile > 1 {
		action.AddReasoning(
			fmt.Sprintf("Hand size %d < %d - draw to fill", handSize, targetHandSize),
			goodDelta)
	}

	if handSize <= smallHandThreshold && reserve > 4 && forcePile > 1 {
		action.AddReasoning(fmt.Sprintf("Small hand (%d) - draw cards", handSize), goodDelta)
	}

	if forcePile > aggressiveForceThreshold {
		action.AddReasoning(fmt.Sprintf("High force pile (%d) - YOLO draw", forcePile), goodDelta)
	}

	if forcePile > 5 && handSize <= 4 {
		action.AddReasoning("Weak hand - draw even on hold", goodDelta)
	}

	if strat != nil {
		if penalty := strat.HandSizePenalty(handSize, true); penalty < 0 {
			action.AddReasoning(fmt.Sprintf("Hand size %d above soft cap", handSize), penalty)
		}
		if strat.ShouldDrawForLocations(handSize) {
			action.AddReasoning(
				fmt.Sprintf("Low force gen (%d) - draw for locations", strat.ForceGeneration),
				goodDelta)
		}
	} else {
		if handSize >= effectiveMaxHand {
			overflow := handSize - effectiveMaxHand
			action.AddReasoning(
				fmt.Sprintf("Hand full (%d/%d) - avoid drawing", handSize, effectiveMaxHand),
				badDelta*float64(overflow))
		} else if handSize >= softCapDefault {
			overflow := handSize - softCapDefault
			action.AddReasoning(
				fmt.Sprintf("Hand getting full (%d)", handSize),
				badDelta*float64(overflow)*0.5)
		}
	}

	if forcePile == 1 {
		action.AddReasoning("Last force - save it", badDelta)
	}
}
