package bot

import (
	"fmt"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Battle thresholds.
const (
	powerDiffForBattle = 4
	abilityTestHigh    = 4
	abilityTestLow     = 3
)

// BattleEvaluator scores "Initiate battle" actions by the power and ability
// picture at the battle location.
type BattleEvaluator struct{}

// NewBattleEvaluator returns the battle evaluator.
func NewBattleEvaluator() *BattleEvaluator { return &BattleEvaluator{} }

func (*BattleEvaluator) Name() string { return "Battle" }

func (*BattleEvaluator) CanEvaluate(ctx *DecisionContext) bool {
	t := ctx.Decision.Type
	if t != swccg.DecisionCardActionChoice && t != swccg.DecisionActionChoice {
		return false
	}
	for _, text := range ctx.Decision.ActionTexts {
		if text == "Initiate battle" {
			return true
		}
	}
	return false
}

func (e *BattleEvaluator) Evaluate(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board
	d := ctx.Decision

	for i, actionID := range d.ActionIDs {
		if d.ActionText(i) != "Initiate battle" {
			continue
		}

		action := &EvaluatedAction{
			ActionID:    actionID,
			Type:        ActionBattle,
			DisplayText: d.ActionText(i),
		}

		switch {
		case board == nil:
			action.AddReasoning("No board state - cautious", badDelta)
		case d.CardID(i) == "":
			action.AddReasoning("No card ID for battle location", 0)
		default:
			if card, ok := board.CardsInPlay[d.CardID(i)]; ok {
				rankBattleAt(action, board, card.LocationIndex, ctx.Strategy)
			} else if len(board.Locations) > 0 {
				rankBattleAt(action, board, 0, ctx.Strategy)
			} else {
				action.AddReasoning("No location info", 0)
			}
		}

		actions = append(actions, action)
	}
	return actions
}

// rankBattleAt scores a battle at one location. The threat grade decides
// when the strategy has one; otherwise the raw power and ability numbers do.
func rankBattleAt(action *EvaluatedAction, board *swccg.BoardState, locIdx int, strat *Strategy) {
	myPower := board.MyPowerAt(locIdx)
	theirPower := board.TheirPowerAt(locIdx)
	myAbility := board.MyAbilityAt(locIdx)
	myCardCount := board.MyCardCountAt(locIdx)

	powerDiff := myPower - theirPower
	abilityTest := myAbility >= abilityTestHigh || myCardCount >= abilityTestLow

	// Battle destiny comes off the reserve deck.
	if board.My.ReserveDeck <= 0 {
		action.AddReasoning("No reserve cards for destiny - avoid battle", veryBadDelta)
		return
	}

	if strat != nil {
		switch strat.ThreatAt(locIdx) {
		case ThreatCrush:
			action.AddReasoning(fmt.Sprintf("Overwhelming advantage (+%d) - crush them!", powerDiff), veryGoodDelta)
			return
		case ThreatFavorable:
			action.AddReasoning(fmt.Sprintf("Good battle odds (+%d)", powerDiff), goodDelta*2)
			return
		case ThreatRisky:
			// Better to fight now than let them reinforce.
			action.AddReasoning("Contested location - preemptive battle", goodDelta)
			return
		case ThreatDangerous:
			action.AddReasoning(fmt.Sprintf("Dangerous odds (%d) - avoid battle", powerDiff), badDelta*2)
			return
		case ThreatRetreat:
			action.AddReasoning(fmt.Sprintf("Terrible odds (%d) - definitely avoid!", powerDiff), veryBadDelta)
			return
		}
	}

	switch {
	case powerDiff >= -powerDiffForBattle && abilityTest:
		action.AddReasoning(fmt.Sprintf("Power diff %d with ability %d - good chance", powerDiff, myAbility), goodDelta)
	case powerDiff > powerDiffForBattle || (abilityTest && powerDiff >= 0):
		action.AddReasoning(fmt.Sprintf("Power diff %d - can crush opponent", powerDiff), goodDelta)
	case powerDiff > 2:
		action.AddReasoning(fmt.Sprintf("Power diff %d - risky without ability, trying anyway", powerDiff), goodDelta)
	default:
		action.AddReasoning(fmt.Sprintf("Power diff %d - avoid battle", powerDiff), badDelta)
	}
}
