package bot

import (
	"fmt"
	"strings"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// CardSelectionEvaluator ranks CARD_SELECTION decisions. The server reuses
// this decision type for very different questions (where to deploy, what to
// lose, what to forfeit, what to cancel), so the prompt text picks the
// handler and the card list is scored per handler.
type CardSelectionEvaluator struct {
	db *swccg.CardDB
}

// NewCardSelectionEvaluator returns a card-selection evaluator backed by the
// card database for location icons and card metadata.
func NewCardSelectionEvaluator(db *swccg.CardDB) *CardSelectionEvaluator {
	return &CardSelectionEvaluator{db: db}
}

func (*CardSelectionEvaluator) Name() string { return "CardSelection" }

func (*CardSelectionEvaluator) CanEvaluate(ctx *DecisionContext) bool {
	return ctx.Decision.Type == swccg.DecisionCardSelection
}

func (e *CardSelectionEvaluator) Evaluate(ctx *DecisionContext) []*EvaluatedAction {
	if len(ctx.Decision.CardIDs) == 0 {
		return nil
	}
	lower := strings.ToLower(ctx.Decision.Text)

	switch {
	case strings.Contains(lower, "choose card to set sabacc value"):
		return e.flatRank(ctx, ActionSabacc, veryBadDelta,
			"Set sabacc value (card %s)", "Avoid setting sabacc value")
	case strings.Contains(lower, "choose") && strings.Contains(lower, "clone"):
		return e.flatRank(ctx, ActionSabacc, veryBadDelta,
			"Clone sabacc value (card %s)", "Avoid cloning sabacc cards")
	case strings.Contains(lower, "choose where to deploy"):
		return e.rankDeployTargets(ctx)
	case strings.Contains(lower, "force to lose or") && strings.Contains(lower, "forfeit"):
		// Combined prompt; must run before the individual lose/forfeit cases.
		return e.rankForceLossOrForfeit(ctx)
	case strings.Contains(lower, "choose force to lose"):
		return e.rankForceLoss(ctx)
	case containsAny(lower, []string{"move", "transport", "transit"}):
		return e.rankMoveDestinations(ctx)
	case strings.Contains(lower, "choose a card from battle to forfeit"):
		return e.rankForfeit(ctx, lower)
	case strings.Contains(lower, "if desired") && !ctx.Decision.NoPass:
		return e.flatRank(ctx, ActionSelectCard, veryBadDelta,
			"Optional action (card %s)", "Optional action - prefer to pass")
	case strings.Contains(lower, "choose a pilot"):
		return e.rankPilots(ctx)
	case strings.Contains(lower, "choose card to cancel"):
		return e.rankCancelTargets(ctx)
	case strings.Contains(lower, "choose card from hand"):
		return e.flatRank(ctx, ActionSelectCard, goodDelta,
			"Select card %s from hand", "Selecting card from hand")
	case strings.Contains(lower, "choose") && strings.Contains(lower, "location") &&
		strings.Contains(lower, "deploy"):
		return e.flatRank(ctx, ActionSelectCard, goodDelta,
			"Deploy to location %s", "Location deployment")
	default:
		return e.flatRank(ctx, ActionUnknown, 0, "Select card %s", "Unknown selection type - neutral")
	}
}

// flatRank gives every offered card the same band. Used for prompts where
// the answer depends on the prompt, not on which card is picked.
func (e *CardSelectionEvaluator) flatRank(ctx *DecisionContext, typ ActionType, delta float64, displayFmt, reason string) []*EvaluatedAction {
	actions := make([]*EvaluatedAction, 0, len(ctx.Decision.CardIDs))
	for _, cardID := range ctx.Decision.CardIDs {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        typ,
			Score:       delta,
			DisplayText: fmt.Sprintf(displayFmt, cardID),
		}
		action.AddReasoning(reason, delta)
		actions = append(actions, action)
	}
	return actions
}

// rankDeployTargets scores "choose where to deploy". Force icons dominate:
// own icons pay for everything else, opponent icons are drain targets.
func (e *CardSelectionEvaluator) rankDeployTargets(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board

	for _, cardID := range ctx.Decision.CardIDs {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionSelectCard,
			DisplayText: "Deploy to " + cardID,
		}
		if board == nil {
			action.AddReasoning("No board state", 0)
			actions = append(actions, action)
			continue
		}
		card := board.CardsInPlay[cardID]
		if card == nil {
			action.AddReasoning("Location info not found", 0)
			actions = append(actions, action)
			continue
		}
		if idx := card.LocationIndex; idx >= 0 && idx < len(board.Locations) {
			loc := board.Locations[idx]
			myPower := board.MyPowerAt(idx)
			theirPower := board.TheirPowerAt(idx)
			action.DisplayText = "Deploy to " + loc.DisplayName()

			mySide := board.MySide
			if mySide == swccg.SideNone {
				mySide = swccg.SideDark
			}
			if meta := e.db.Get(loc.BlueprintID); meta != nil {
				myIcons := meta.ForceIconsFor(mySide)
				theirIcons := meta.ForceIconsFor(mySide.Opposite())
				if myIcons > 0 {
					action.AddReasoning(
						fmt.Sprintf("%d %s icon(s) for activation", myIcons, mySide),
						float64(myIcons)*goodDelta*2)
				}
				if theirIcons > 0 {
					action.AddReasoning(
						fmt.Sprintf("%d opponent icon(s) = drain potential", theirIcons),
						float64(theirIcons)*goodDelta)
				}
			}

			if theirPower > 0 {
				diff := myPower - theirPower
				switch {
				case diff >= 0:
					action.AddReasoning(
						fmt.Sprintf("We match or exceed enemy power (%d vs %d)", myPower, theirPower),
						goodDelta*2)
				case diff >= -6:
					action.AddReasoning(
						fmt.Sprintf("Can catch up to enemy (%d vs %d)", myPower, theirPower),
						goodDelta)
				default:
					action.AddReasoning(
						fmt.Sprintf("Enemy too strong here (%d vs %d)", myPower, theirPower),
						badDelta)
				}
			} else {
				switch {
				case myPower >= 12:
					action.AddReasoning("Already have strong presence", badDelta)
				case myPower > 0:
					action.AddReasoning("Bolster existing presence", goodDelta)
				default:
					action.AddReasoning("New location - spread out", goodDelta)
				}
			}
		}
		actions = append(actions, action)
	}
	return actions
}

// rankForceLoss scores "choose force to lose": shed from a fat hand, keep
// the force pile, and in play prefer the cheapest forfeit.
func (e *CardSelectionEvaluator) rankForceLoss(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board

	for _, cardID := range ctx.Decision.CardIDs {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionSelectCard,
			DisplayText: "Lose card " + cardID,
		}
		if board != nil {
			if card := board.CardsInPlay[cardID]; card != nil {
				action.DisplayText = "Lose " + cardDisplayName(card, cardID)
				switch card.Zone {
				case swccg.ZoneHand:
					if board.HandSize() >= 15 {
						action.AddReasoning("Many cards in hand", goodDelta)
					} else if board.HandSize() <= 5 {
						action.AddReasoning("Few cards in hand", badDelta)
					}
					if card.Type == "Interrupt" || card.Type == "Effect" || card.Type == "Weapon" {
						action.AddReasoning("Low-value card type in hand", goodDelta)
					}
				case swccg.ZoneForcePile:
					action.AddReasoning("Avoid losing from force pile", badDelta)
				default:
					action.AddReasoning(
						fmt.Sprintf("Forfeit value %d", card.Forfeit),
						float64(20-card.Forfeit))
				}
			}
			life := board.LifeForce()
			if life < 10 {
				action.AddReasoning("Low on life - be careful", badDelta)
			} else if life >= 30 {
				action.AddReasoning("Plenty of life left", goodDelta)
			}
		}
		actions = append(actions, action)
	}
	return actions
}

// rankMoveDestinations scores destination picks for move, transport and
// transit prompts.
func (e *CardSelectionEvaluator) rankMoveDestinations(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board

	for _, cardID := range ctx.Decision.CardIDs {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionMove,
			DisplayText: "Move to " + cardID,
		}
		if board != nil {
			card := board.CardsInPlay[cardID]
			if card != nil && card.LocationIndex >= 0 && card.LocationIndex < len(board.Locations) {
				idx := card.LocationIndex
				loc := board.Locations[idx]
				myPower := board.MyPowerAt(idx)
				theirPower := board.TheirPowerAt(idx)
				action.DisplayText = "Move to " + loc.DisplayName()

				switch {
				case myPower >= theirPower && theirPower > 0:
					action.AddReasoning("We have power advantage", goodDelta)
				case theirPower-myPower <= 2 && theirPower > 0:
					action.AddReasoning("Can help out here", goodDelta)
				case theirPower == 0:
					action.AddReasoning("Unoccupied - can force drain", goodDelta)
				default:
					action.AddReasoning(
						fmt.Sprintf("Enemy too strong (%d power)", theirPower),
						badDelta*float64(theirPower))
				}
			}
		}
		actions = append(actions, action)
	}
	return actions
}

// rankForfeit scores "choose a card from battle to forfeit": cheapest
// forfeit first, and skip the whole thing when it is optional.
func (e *CardSelectionEvaluator) rankForfeit(ctx *DecisionContext, lower string) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board
	isOptional := strings.Contains(lower, "if desired")

	for _, cardID := range ctx.Decision.CardIDs {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionSelectCard,
			DisplayText: "Forfeit " + cardID,
		}
		if isOptional {
			action.Score = veryBadDelta
			action.AddReasoning("Optional forfeit - avoid", veryBadDelta)
		} else if board != nil {
			if card := board.CardsInPlay[cardID]; card != nil {
				action.AddReasoning(
					fmt.Sprintf("Forfeit value %d", card.Forfeit),
					goodDelta*float64(20-card.Forfeit))
				action.DisplayText = "Forfeit " + cardDisplayName(card, cardID)
			}
		}
		actions = append(actions, action)
	}
	return actions
}

// rankForceLossOrForfeit handles the combined battle-damage prompt: pay from
// the reserve deck or forfeit cards from the battle. Pilots come off their
// ships before anything else; after that the power differential and reserve
// depth decide whether cards or force absorb the damage.
func (e *CardSelectionEvaluator) rankForceLossOrForfeit(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board

	powerDiff := 0
	if board != nil && board.BattleLocation >= 0 {
		powerDiff = board.MyPowerAt(board.BattleLocation) - board.TheirPowerAt(board.BattleLocation)
	}
	reserve := 30
	if board != nil {
		reserve = board.My.ReserveDeck
	}
	// Badly losing means the survivors get beat up again next turn anyway.
	preferForfeit := powerDiff <= -5 || reserve <= 15

	// Partition the offered cards. Force-loss rows are virtual cards with a
	// "-1_" blueprint (or no board entry at all); the rest are real cards
	// standing in the battle.
	var forceOptions []string
	var pilotsOnShips, shipsWithPilots, standalone []*swccg.CardInPlay
	for _, cardID := range ctx.Decision.CardIDs {
		var card *swccg.CardInPlay
		if board != nil {
			card = board.CardsInPlay[cardID]
		}
		if card == nil || card.BlueprintID == "" || strings.HasPrefix(card.BlueprintID, "-1_") {
			forceOptions = append(forceOptions, cardID)
			continue
		}
		meta := e.db.Get(card.BlueprintID)
		isShip := meta != nil && (meta.IsStarship() || meta.IsVehicle())
		switch {
		case card.TargetCardID != "":
			pilotsOnShips = append(pilotsOnShips, card)
		case isShip && len(card.Attached) > 0:
			shipsWithPilots = append(shipsWithPilots, card)
		default:
			standalone = append(standalone, card)
		}
	}

	for _, cardID := range forceOptions {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionSelectCard,
			Score:       50,
			DisplayText: "Lose Force from reserve",
		}
		if preferForfeit {
			action.AddReasoning("Badly losing battle - prefer forfeit", -30)
		} else {
			action.AddReasoning("Force loss is acceptable", 0)
		}
		if reserve <= 10 {
			action.AddReasoning(fmt.Sprintf("Low reserve (%d) - avoid force loss", reserve), -40)
		} else if reserve <= 20 {
			action.AddReasoning(fmt.Sprintf("Medium reserve (%d)", reserve), -10)
		}
		actions = append(actions, action)
	}

	for _, card := range pilotsOnShips {
		action := &EvaluatedAction{
			ActionID:    card.CardID,
			Type:        ActionSelectCard,
			Score:       100,
			DisplayText: "Forfeit pilot " + cardDisplayName(card, card.CardID),
		}
		action.AddReasoning("Pilot on ship - forfeit first!", 50)
		action.AddReasoning(fmt.Sprintf("Forfeit value %d", card.Forfeit), float64(20-card.Forfeit))
		actions = append(actions, action)
	}

	for _, card := range shipsWithPilots {
		action := &EvaluatedAction{
			ActionID:    card.CardID,
			Type:        ActionSelectCard,
			Score:       -50,
			DisplayText: "Forfeit ship " + cardDisplayName(card, card.CardID),
		}
		action.AddReasoning("Ship has pilots - forfeit pilots first!", -100)
		actions = append(actions, action)
	}

	for _, card := range standalone {
		action := &EvaluatedAction{
			ActionID:    card.CardID,
			Type:        ActionSelectCard,
			Score:       40,
			DisplayText: "Forfeit " + cardDisplayName(card, card.CardID),
		}
		if preferForfeit {
			action.AddReasoning("Badly losing - forfeit preferred", 20)
		}
		action.AddReasoning(fmt.Sprintf("Forfeit value %d", card.Forfeit), float64(10-card.Forfeit)*2)
		if meta := e.db.Get(card.BlueprintID); meta != nil {
			if (meta.IsStarship() || meta.IsVehicle()) && !preferForfeit {
				action.AddReasoning("Ship/vehicle - prefer force loss", -15)
			}
			if meta.Unique {
				action.AddReasoning("Unique card - valuable", -10)
			}
		}
		actions = append(actions, action)
	}

	return actions
}

// rankPilots scores "choose a pilot" prompts. Piloting an empty ship is
// nearly always right, so everything ranks at the top band.
func (e *CardSelectionEvaluator) rankPilots(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board

	for _, cardID := range ctx.Decision.CardIDs {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionDeploy,
			Score:       veryGoodDelta,
			DisplayText: "Deploy pilot " + cardID,
		}
		if board != nil {
			if card := board.CardsInPlay[cardID]; card != nil {
				action.DisplayText = "Deploy pilot " + cardDisplayName(card, cardID)
				action.AddReasoning("Pilot deployment is good", veryGoodDelta)
			}
		}
		actions = append(actions, action)
	}
	return actions
}

// rankCancelTargets scores "choose card to cancel": theirs, not ours.
func (e *CardSelectionEvaluator) rankCancelTargets(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board

	for _, cardID := range ctx.Decision.CardIDs {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionCancel,
			DisplayText: "Cancel card " + cardID,
		}
		if board != nil {
			if card := board.CardsInPlay[cardID]; card != nil {
				if card.Owner == board.MyName {
					action.AddReasoning("Don't cancel own cards", badDelta)
				} else {
					action.AddReasoning("Cancel opponent's cards", goodDelta)
				}
				action.DisplayText = "Cancel " + cardDisplayName(card, cardID)
			}
		}
		actions = append(actions, action)
	}
	return actions
}

// cardDisplayName prefers the tracked title and falls back to the card ID.
func cardDisplayName(card *swccg.CardInPlay, cardID string) string {
	if card != nil && card.Title != "" {
		return card.Title
	}
	return cardID
}
