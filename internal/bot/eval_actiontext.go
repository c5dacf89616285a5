package bot

import (
	"fmt"
	"strings"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Text-ranking bands. These are wider than the board evaluators' deltas
// because text matches carry less certainty than board math.
const (
	textVeryGood = 50.0
	textGood     = 30.0
	textBad      = -30.0
	textVeryBad  = -50.0
)

// rareActionTexts are actions seen once in a blue moon; they stay neutral so
// the more common options around them decide the turn.
var rareActionTexts = []string{
	"Naboo: Boss Nass", "Tatooine: Watto", "Tatooine: Mos Espa",
	"Lock s-foils", "Exchange card in hand",
}

// ActionTextEvaluator is the catch-all ranking over action text patterns.
// The specialized evaluators own deploy, battle, move and draw; everything
// else lands here. A ranked pattern assigns its band outright, so it also
// clears the reserve-check pre-penalty; only unranked patterns keep it.
type ActionTextEvaluator struct{}

// NewActionTextEvaluator returns the text-pattern evaluator.
func NewActionTextEvaluator() *ActionTextEvaluator { return &ActionTextEvaluator{} }

func (*ActionTextEvaluator) Name() string { return "ActionText" }

func (*ActionTextEvaluator) CanEvaluate(ctx *DecisionContext) bool {
	t := ctx.Decision.Type
	return t == swccg.DecisionCardActionChoice || t == swccg.DecisionActionChoice
}

func (e *ActionTextEvaluator) Evaluate(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board
	strat := ctx.Strategy

	for i, actionID := range ctx.Decision.ActionIDs {
		text := ctx.Decision.ActionText(i)
		lower := strings.ToLower(text)

		action := &EvaluatedAction{
			ActionID:    actionID,
			Type:        ActionUnknown,
			DisplayText: text,
		}

		// Repeated reserve peeks burn the turn; charge for extras up front.
		if strat != nil && (strings.Contains(lower, "reserve") || strings.Contains(lower, "peek")) {
			if !strat.ShouldCheckReserve() {
				action.Score += textBad
				action.AddReasoning(
					fmt.Sprintf("Already checked reserve %dx this turn", strat.ReserveChecksThisTurn),
					textBad)
			}
		}

		switch {
		case text == "Activate Force":
			action.Type = ActionActivate
			if board != nil {
				want := board.ForceToActivate(board.Activation)
				if board.My.ForcePile < want {
					action.Score = textVeryGood
					action.AddReasoning("Need to activate more force", textVeryGood)
				} else {
					action.Score = textVeryBad
					action.AddReasoning("Reserving force for destiny draws", textVeryBad)
				}
			} else {
				action.Score = textGood
				action.AddReasoning("Default activate", textGood)
			}

		case text == "Force drain":
			action.Type = ActionForceDrain
			if board != nil && board.UnderBattleOrder() {
				action.Score = textBad
				action.AddReasoning("Under Battle Order - drain costs extra", textBad)
			} else {
				action.Score = textVeryGood
				action.AddReasoning("Force drain is good", textVeryGood)
			}

		case text == "Draw race destiny":
			action.Type = ActionRaceDestiny
			action.Score = textVeryGood
			action.AddReasoning("Race destiny always high priority", textVeryGood)

		case text == "Initiate battle":
			action.Type = ActionBattle
			// BattleEvaluator owns the detailed odds.
			action.Score = textGood
			action.AddReasoning("Battle option available", textGood)

		case strings.Contains(text, "Fire"):
			action.Type = ActionFireWeapon
			action.Score = textVeryGood
			action.AddReasoning("Firing weapons always high priority", textVeryGood)

		case strings.Contains(text, "Reduce target's defense value") ||
			strings.Contains(lower, "reduce target's defense"):
			// Defense reduction with no enemies around only hurts our own.
			if board != nil && len(board.ContestedLocations()) > 0 {
				action.Score = textGood
				action.AddReasoning("Force Lightning - opponents present", textGood)
			} else {
				action.Score = textVeryBad
				action.AddReasoning("Force Lightning - no opponents, would hurt own cards!", textVeryBad)
			}

		case strings.Contains(lower, "add") && strings.Contains(lower, "battle destiny"):
			action.Type = ActionBattleDestiny
			action.Score = textVeryGood
			action.AddReasoning("Adding battle destiny is great", textVeryGood)

		case strings.Contains(lower, "substitute destiny"):
			action.Type = ActionSubstituteDestiny
			action.Score = textGood
			action.AddReasoning("Substituting destiny is good", textGood)

		case strings.Contains(lower, "react"):
			action.Type = ActionReact
			action.Score = textVeryGood
			action.AddReasoning("Reacting is always good", textVeryGood)

		case strings.Contains(lower, "steal"):
			action.Type = ActionSteal
			action.Score = textGood
			action.AddReasoning("Stealing is good", textGood)

		case strings.Contains(lower, "play sabacc"):
			action.Type = ActionSabacc
			action.Score = textGood
			action.AddReasoning("Playing sabacc", textGood)

		case strings.Contains(lower, "cancel your"):
			action.Type = ActionCancel
			action.Score = textVeryBad
			action.AddReasoning("Never cancel own cards", textVeryBad)

		case strings.HasPrefix(lower, "cancel") || strings.Contains(lower, "to cancel"):
			action.Type = ActionCancel
			action.AddReasoning("Cancel action - neutral", 0)

		case strings.Contains(text, "Cancel all remaining battle damage"):
			action.Type = ActionCancelDamage
			action.Score = textGood
			action.AddReasoning("Cancelling battle damage", textGood)

		case strings.Contains(text, "Take") && strings.Contains(text, "into hand"):
			if strings.Contains(lower, "palpatine") {
				action.Score = textBad
				action.AddReasoning("Avoid taking Palpatine", textBad)
			} else {
				action.Score = textGood
				action.AddReasoning("Taking card into hand", textGood)
			}

		case strings.Contains(text, "Prevent") && strings.Contains(text, "from battling or moving"):
			action.Score = textGood
			action.AddReasoning("Preventing opponent actions", textGood)

		case strings.Contains(text, "LOST: Reveal opponent's hand"):
			if board != nil && board.Their.Hand > 6 {
				action.Score = textVeryGood
				action.AddReasoning("Opponent has many cards - reveal worth it", textVeryGood)
			} else {
				action.Score = textVeryBad
				action.AddReasoning("Opponent has few cards - save reveal", textVeryBad)
			}

		case strings.Contains(lower, "stardust") || strings.Contains(lower, "on the edge"):
			action.Score = textVeryBad
			action.AddReasoning("Known dangerous card", textVeryBad)

		case text == drawActionText:
			action.Type = ActionDraw
			action.Score = textGood
			action.AddReasoning("Drawing cards is good", textGood)

		case containsAny(text, []string{"Move using", "Shuttle", "Docking bay transit", "Transport"}):
			action.Type = ActionMove
			action.AddReasoning("Movement option (see MoveEvaluator)", 0)

		case text == "Take off" || text == "Land":
			action.Type = ActionMove
			action.AddReasoning("Take off/Land option (see MoveEvaluator)", 0)

		case strings.Contains(text, "Make opponent lose"):
			action.Score = textGood
			action.AddReasoning("Making opponent lose force", textGood)

		case strings.Contains(text, "Deploy docking bay"):
			action.Score = textGood
			action.AddReasoning("Deploying docking bay", textGood)

		case strings.Contains(text, "Deploy") && strings.Contains(text, "from"):
			action.Score = textBad
			action.AddReasoning("Deploying from reserve - risky", textBad)

		case containsAny(text, rareActionTexts):
			action.AddReasoning("Rare action - neutral priority", 0)

		case strings.Contains(lower, "place card from hand in used pile"):
			action.AddReasoning("Rare action - neutral priority", 0)

		case strings.Contains(text, "Embark"):
			action.Type = ActionMove
			action.AddReasoning("Embark action", 0)

		case containsAny(text, []string{"Disembark", "Relocate", "Transfer"}):
			action.Type = ActionMove
			action.Score = textVeryBad
			action.AddReasoning("Usually avoid disembark/relocate/transfer", textVeryBad)

		case strings.Contains(text, "Ship-dock"):
			action.Score = textVeryBad
			action.AddReasoning("Avoid ship-docking", textVeryBad)

		case strings.Contains(text, "Place in Lost Pile"):
			action.Score = textVeryBad
			action.AddReasoning("Avoid losing cards", textVeryBad)

		case strings.Contains(text, "Grab"):
			action.Score = textGood
			action.AddReasoning("Grabbing card", textGood)

		case strings.Contains(text, "Break cover"):
			action.AddReasoning("Break cover - check whose spy", 0)

		case strings.Contains(lower, "retrieve") || strings.Contains(text, "Place out of play to retrieve"):
			if board != nil && board.My.LostPile > 15 {
				action.Score = textGood
				action.AddReasoning("High lost pile - retrieve worth it", textGood)
			} else {
				action.Score = textBad
				action.AddReasoning("Low lost pile - save retrieve", textBad)
			}

		case strings.Contains(text, "Objective"):
			action.Score = textVeryGood
			action.AddReasoning("Objective action", textVeryGood)

		case strings.Contains(text, "Play a Defensive Shield"):
			action.Score = textVeryGood
			action.AddReasoning("Defensive shield", textVeryGood)

		case strings.HasPrefix(text, "Deploy on"):
			if strings.Contains(lower, "projection") && strings.Contains(lower, "side") {
				action.Score = textVeryBad
				action.AddReasoning("Never put projection on side of table", textVeryBad)
			} else {
				action.Score = textGood
				action.AddReasoning("Deploy on location/table", textGood)
			}

		case strings.HasPrefix(text, "Deploy unique"):
			action.Score = textGood
			action.AddReasoning("Special battleground deploy", textGood)

		case strings.HasPrefix(text, "USED: Peek at top"):
			action.Score = textGood
			action.AddReasoning("Peek for card advantage", textGood)

		case strings.Contains(lower, "add ") && len(text) < 50:
			action.Score = textGood
			action.AddReasoning("Add to something", textGood)

		case strings.Contains(text, "Cancel Force drain"):
			if ctx.IsMyTurn {
				action.Score = textVeryBad
				action.AddReasoning("Don't cancel own force drain", textVeryBad)
			} else {
				action.Score = textGood
				action.AddReasoning("Cancel opponent's force drain", textGood)
			}

		case strings.Contains(text, "Peek at top of opponent's Reserve Deck"):
			action.Score = textBad
			action.AddReasoning("Peeking rarely worth it", textBad)

		default:
			action.AddReasoning("Unknown action type", 0)
		}

		actions = append(actions, action)
	}
	return actions
}
