package bot

import (
	"fmt"
	"strings"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Move thresholds.
const (
	powerDiffForFlee    = 2
	powerDiffForBuildup = 12
	overkillThreshold   = 4
	contestPowerMargin  = 2
)

// moveTriggerKeywords decide whether a decision contains movement at all;
// moveActionKeywords are the subset the evaluator will actually score.
// "Move to"/"Move from" show up inside other actions' flavor text, so they
// gate evaluation but are not scored on their own.
var (
	moveTriggerKeywords = []string{
		"Move using", "Shuttle", "Docking bay transit", "Transport",
		"Take off", "Land", "Move to", "Move from",
	}
	moveActionKeywords = []string{
		"Move using", "Shuttle", "Docking bay transit", "Transport",
		"Take off", "Land",
	}
)

// MoveEvaluator scores movement actions: fleeing bad fights, spreading from
// won locations, and contesting adjacent enemy presence. Cards already asked
// to move this turn are vetoed so move prompts cannot ping-pong.
type MoveEvaluator struct {
	pendingMoves map[string]bool
}

// NewMoveEvaluator returns a move evaluator with empty move tracking.
func NewMoveEvaluator() *MoveEvaluator {
	return &MoveEvaluator{pendingMoves: make(map[string]bool)}
}

func (*MoveEvaluator) Name() string { return "Move" }

func (*MoveEvaluator) CanEvaluate(ctx *DecisionContext) bool {
	t := ctx.Decision.Type
	if t != swccg.DecisionCardActionChoice && t != swccg.DecisionActionChoice {
		return false
	}
	for _, text := range ctx.Decision.ActionTexts {
		if containsAny(text, moveTriggerKeywords) {
			return true
		}
	}
	return false
}

func (e *MoveEvaluator) Evaluate(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board
	d := ctx.Decision

	for i, actionID := range d.ActionIDs {
		text := d.ActionText(i)
		if !containsAny(text, moveActionKeywords) {
			continue
		}

		action := &EvaluatedAction{
			ActionID:    actionID,
			Type:        ActionMove,
			DisplayText: text,
		}

		cardID := d.CardID(i)
		if cardID != "" && e.pendingMoves[cardID] {
			action.AddReasoning("Already tried moving this card", veryBadDelta)
			actions = append(actions, action)
			continue
		}

		if board != nil && cardID != "" {
			if card, ok := board.CardsInPlay[cardID]; ok {
				rankMoveFrom(action, board, card.LocationIndex, ctx.Strategy)
			} else {
				action.AddReasoning("Card not found in play", badDelta)
			}
		} else {
			action.AddReasoning("No board state or card ID", 0)
		}

		actions = append(actions, action)
	}
	return actions
}

// ResetPendingMoves clears move tracking at turn start.
func (e *MoveEvaluator) ResetPendingMoves() {
	e.pendingMoves = make(map[string]bool)
}

// TrackMove notes that a move was issued for this card.
func (e *MoveEvaluator) TrackMove(cardID string) {
	if cardID != "" {
		e.pendingMoves[cardID] = true
	}
}

// rankMoveFrom scores moving a card off its current location.
func rankMoveFrom(action *EvaluatedAction, board *swccg.BoardState, locIdx int, strat *Strategy) {
	if locIdx < 0 || locIdx >= len(board.Locations) {
		action.AddReasoning("Invalid location index", badDelta)
		return
	}

	myPower := board.MyPowerAt(locIdx)
	theirPower := board.TheirPowerAt(locIdx)
	myCardCount := board.MyCardCountAt(locIdx)
	powerDiff := myPower - theirPower

	if strat != nil {
		switch {
		case strat.ThreatAt(locIdx) == ThreatRetreat:
			action.AddReasoning(fmt.Sprintf("Strategic retreat - badly outmatched (%d)", powerDiff), veryGoodDelta)
			return
		case strat.ThreatAt(locIdx) == ThreatDangerous:
			action.AddReasoning(fmt.Sprintf("Dangerous location - retreat recommended (%d)", powerDiff), goodDelta*2)
			return
		case strat.IsDangerous(locIdx):
			action.AddReasoning("Retreating from danger zone", goodDelta)
			return
		}
	}

	if theirPower-myPower > powerDiffForFlee && theirPower > 0 {
		action.AddReasoning(fmt.Sprintf("Enemy stronger (%d vs %d) - flee", theirPower, myPower), goodDelta)
		return
	}

	if powerDiff >= powerDiffForBuildup && myCardCount >= 3 {
		action.AddReasoning(fmt.Sprintf("Strong presence (%d) - spread out", myPower), goodDelta*float64(powerDiff)/10)
		return
	}

	// With overkill here, a neighbor the opponent holds is worth contesting.
	if powerDiff >= overkillThreshold {
		if adjIdx, adjTheirPower, canOverpower, ok := findContestOpportunity(board, locIdx); ok {
			if canOverpower {
				bonus := goodDelta*2 + float64(powerDiff-overkillThreshold)*0.5
				action.AddReasoning(
					fmt.Sprintf("Contest adjacent loc %d (they have %d, we have overkill +%d)", adjIdx, adjTheirPower, powerDiff),
					bonus)
				return
			}
			action.AddReasoning(
				fmt.Sprintf("Could contest loc %d (they have %d)", adjIdx, adjTheirPower),
				goodDelta)
			return
		}
	}

	if theirPower == 0 && myPower >= powerDiffForBuildup && myCardCount >= 1 {
		if adjacentClear(board, locIdx) {
			action.AddReasoning("Adjacent locations clear - spread", goodDelta)
		} else {
			action.AddReasoning("Adjacent locations not safe", badDelta)
		}
		return
	}

	action.AddReasoning("No good reason to move", badDelta)
}

// findContestOpportunity looks one slot left and right for enemy presence
// worth moving into. A moving card is assumed to bring about 4 power.
func findContestOpportunity(board *swccg.BoardState, locIdx int) (adjIdx, theirPower int, canOverpower, found bool) {
	const estimatedMovePower = 4

	bestScore := 0
	for _, adj := range []int{locIdx - 1, locIdx + 1} {
		if adj < 0 || adj >= len(board.Locations) {
			continue
		}

		adjTheirs := board.TheirPowerAt(adj)
		if adjTheirs <= 0 {
			continue
		}
		ourThere := board.MyPowerAt(adj)

		potential := ourThere + estimatedMovePower
		overpower := potential > adjTheirs+contestPowerMargin

		// Bigger enemy stacks are more valuable to break up.
		score := adjTheirs
		if overpower {
			score += 10
		}
		if ourThere == 0 {
			score += 5
		}

		if score > bestScore {
			bestScore = score
			adjIdx, theirPower, canOverpower, found = adj, adjTheirs, overpower, true
		}
	}
	return adjIdx, theirPower, canOverpower, found
}

// adjacentClear reports whether either neighbor is free of enemy power.
func adjacentClear(board *swccg.BoardState, locIdx int) bool {
	if locIdx > 0 && board.TheirPowerAt(locIdx-1) == 0 {
		return true
	}
	if locIdx < len(board.Locations)-1 && board.TheirPowerAt(locIdx+1) == 0 {
		return true
	}
	return false
}

// containsAny reports whether s contains any of the substrings.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
