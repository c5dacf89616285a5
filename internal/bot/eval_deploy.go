package bot

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Score deltas shared by the board evaluators, strongest approval to
// strongest veto.
const (
	veryGoodDelta = 999.0
	goodDelta     = 10.0
	badDelta      = -10.0
	veryBadDelta  = -999.0
)

// cardHintRe pulls the blueprint id out of the cardHint markup the server
// embeds in action text, e.g.
// "Deploy <div class='cardHint' value='7_305'>•OS-72-1</div>".
var cardHintRe = regexp.MustCompile(`value='([^']+)'`)

// BlueprintFromActionText extracts the blueprint id embedded in an action's
// HTML, or "" when the text carries none.
func BlueprintFromActionText(text string) string {
	if m := cardHintRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// DeployEvaluator scores deployment decisions: which card to put down, where
// to put it, and which card to pull when a search effect offers a choice.
// With a planner attached, the turn's deploy plan outranks the per-card
// heuristics.
type DeployEvaluator struct {
	db      *swccg.CardDB
	planner *DeployPlanner
}

// NewDeployEvaluator builds a deploy evaluator over the card registry.
// The planner may be nil, which leaves the per-card heuristics on their own.
func NewDeployEvaluator(db *swccg.CardDB, planner *DeployPlanner) *DeployEvaluator {
	return &DeployEvaluator{db: db, planner: planner}
}

func (*DeployEvaluator) Name() string { return "Deploy" }

// CanEvaluate claims deploy-phase decisions. Card selections are only
// claimed when the prompt is about deploying, so forfeit and sabacc
// selections stay with the card selection evaluator.
func (*DeployEvaluator) CanEvaluate(ctx *DecisionContext) bool {
	text := strings.ToLower(ctx.Decision.Text)
	if ctx.Decision.Type == swccg.DecisionCardSelection {
		return strings.Contains(text, "deploy") || strings.Contains(text, "where to")
	}
	return strings.Contains(strings.ToLower(ctx.Phase), "deploy") ||
		strings.Contains(text, "deploy")
}

func (e *DeployEvaluator) Evaluate(ctx *DecisionContext) []*EvaluatedAction {
	switch ctx.Decision.Type {
	case swccg.DecisionCardActionChoice, swccg.DecisionActionChoice:
		return e.evaluateDeployActions(ctx)
	case swccg.DecisionCardSelection:
		return e.evaluateLocationChoice(ctx)
	case swccg.DecisionArbitraryCards:
		return e.evaluateCardChoice(ctx)
	}
	return nil
}

// evaluateDeployActions scores "Deploy <card>" rows of an action choice.
// Non-deploy rows are left for the other evaluators.
func (e *DeployEvaluator) evaluateDeployActions(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board
	d := ctx.Decision

	for i, actionID := range d.ActionIDs {
		text := d.ActionText(i)
		if !strings.Contains(text, "Deploy") && !strings.Contains(text, "Reserve Deck") {
			continue
		}

		action := &EvaluatedAction{
			ActionID:    actionID,
			Type:        ActionDeploy,
			Score:       50,
			DisplayText: text,
		}

		// Searching the Reserve Deck mid-deploy is slow and loop-prone.
		if strings.Contains(text, "Reserve Deck") {
			action.AddReasoning("Reserve Deck deploy - risky", -30)
			actions = append(actions, action)
			continue
		}

		blueprint := BlueprintFromActionText(text)
		if blueprint == "" {
			action.AddReasoning("Deploy action (card unknown)", 0)
			actions = append(actions, action)
			continue
		}

		card := e.lookup(blueprint)
		if card == nil {
			action.AddReasoning("Card metadata not found", -10)
			actions = append(actions, action)
			continue
		}

		action.CardName = card.Title
		action.DeployCost = card.DeployValue()
		action.Score += scoreCardDeployment(card, board, ctx.Strategy)
		action.AddReasoning("Card: "+card.Title, 0)

		if e.planner != nil {
			force := 0
			if board != nil {
				force = board.My.ForcePile
			}
			if delta, why := e.planner.CardScore(blueprint, force); delta != 0 {
				action.AddReasoning(why, delta)
			}
		}

		if board != nil && board.My.ForcePile < card.DeployValue() {
			action.AddReasoning(
				fmt.Sprintf("Can't afford! Need %d, have %d", card.DeployValue(), board.My.ForcePile),
				-100)
		}

		actions = append(actions, action)
	}
	return actions
}

// evaluateLocationChoice scores a "choose where to deploy" card selection,
// where each card id is a location on the table, or a ship a planned pilot
// should board.
func (e *DeployEvaluator) evaluateLocationChoice(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	board := ctx.Board

	var inst *DeployInstruction
	if e.planner != nil {
		inst = e.planner.InstructionFor(BlueprintFromActionText(ctx.Decision.Text))
	}

	for _, cardID := range ctx.Decision.CardIDs {
		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionSelectCard,
			Score:       50,
			DisplayText: fmt.Sprintf("Deploy to location (card %s)", cardID),
		}

		if inst != nil {
			switch cardID {
			case inst.AboardShipCardID:
				action.AddReasoning("Boarding the ship this pilot was planned to crew", 150)
			case inst.TargetLocationID:
				action.AddReasoning("Planned deployment target", 80)
			case inst.BackupTargetID:
				action.AddReasoning("Planned fallback target", 40)
			}
		}

		if board != nil {
			if loc := board.LocationByCardID(cardID); loc != nil {
				action.DisplayText = "Deploy to " + loc.DisplayName()
				action.Score += scoreDeploymentLocation(loc, board, ctx.Strategy)
				if e.planner != nil {
					if bonus := e.planner.LocationBonus(loc.Index); bonus != 0 {
						action.AddReasoning("Plan target ranking", bonus)
					}
				}
			} else {
				action.AddReasoning("Location not found in board state", -5)
			}
		}

		actions = append(actions, action)
	}
	return actions
}

// evaluateCardChoice scores an arbitrary-cards selection in a deploy
// context, such as pulling a card from the Reserve Deck.
func (e *DeployEvaluator) evaluateCardChoice(ctx *DecisionContext) []*EvaluatedAction {
	var actions []*EvaluatedAction
	d := ctx.Decision

	for i, cardID := range d.CardIDs {
		if !d.IsSelectable(i) {
			continue
		}

		action := &EvaluatedAction{
			ActionID:    cardID,
			Type:        ActionSelectCard,
			Score:       50,
			DisplayText: fmt.Sprintf("Select card %s", cardID),
		}

		if card := e.lookup(d.Blueprint(i)); card != nil {
			action.CardName = card.Title
			action.DisplayText = "Select " + card.Title

			// A reserve search should come back with board development.
			if strings.Contains(ctx.Decision.Text, "Reserve Deck") {
				if card.IsLocation() {
					action.AddReasoning("Location card", 10)
				} else if card.DefensiveShield {
					action.AddReasoning("Defensive Shield", 5)
				}
			}
		}

		actions = append(actions, action)
	}
	return actions
}

func (e *DeployEvaluator) lookup(blueprint string) *swccg.Card {
	if e.db == nil || blueprint == "" {
		return nil
	}
	return e.db.Get(blueprint)
}

// scoreCardDeployment ranks a card for deployment. Locations and creatures
// outrank everything; the rest weighs power against the force left over.
func scoreCardDeployment(card *swccg.Card, board *swccg.BoardState, strat *Strategy) float64 {
	score := 0.0

	if card.IsLocation() {
		score += veryGoodDelta
		if strat != nil {
			score += strat.LocationDeployBonus()
		}
		return score
	}

	if card.IsCreature() {
		return score + veryGoodDelta
	}

	if card.IsWeapon() || card.IsDevice() {
		if board != nil && hasWeaponlessWarrior(board) {
			return score + goodDelta
		}
		return score + badDelta
	}

	if (card.IsStarship() || card.IsVehicle()) && !card.HasPermanentPilot() {
		if card.IsStarship() && board != nil && !hasSpaceLocation(board) {
			return score + veryBadDelta
		}
		if board != nil && pilotInHand(board, card.DeployValue()) {
			return score + goodDelta*float64(card.PowerValue())
		}
		return score + badDelta
	}

	// Pure pilots sit uselessly on the ground; hold them for ships.
	isPurePilot := false
	landDeploy := card.IsVehicle() || card.IsCharacter()
	if card.IsPilot() && !card.IsWarrior() && landDeploy && card.PowerValue() <= 4 {
		isPurePilot = true
	}
	if card.IsWarrior() && card.IsPilot() && card.PowerValue() <= 3 {
		isPurePilot = true
	}
	if card.IsVehicle() || card.IsStarship() {
		isPurePilot = false
	}

	if board != nil {
		forceAfter := board.My.ForcePile - card.DeployValue()
		switch {
		case isPurePilot:
			score += badDelta
		case forceAfter >= 1:
			score += goodDelta * float64(card.PowerValue())
		default:
			score += badDelta
		}
	}

	if p := card.PowerValue(); p >= 5 {
		score += 10
	} else if p >= 3 {
		score += 5
	}
	if a := card.AbilityValue(); a >= 4 {
		score += 8
	} else if a >= 2 {
		score += 4
	}

	if strat != nil {
		score += strat.FocusDeployBonus(card.Type)
	}

	return score
}

// hasWeaponlessWarrior reports whether any of my warriors in play is missing
// a weapon to equip.
func hasWeaponlessWarrior(board *swccg.BoardState) bool {
	db := board.DB()
	if db == nil {
		return false
	}
	for _, c := range board.CardsInPlay {
		if c.Owner != board.MyName {
			continue
		}
		meta := db.Get(c.BlueprintID)
		if meta == nil || !meta.IsWarrior() {
			continue
		}
		armed := false
		for _, attached := range c.Attached {
			if am := db.Get(attached.BlueprintID); am != nil && am.IsWeapon() {
				armed = true
				break
			}
		}
		if !armed {
			return true
		}
	}
	return false
}

// hasSpaceLocation reports whether any space location is on the table.
func hasSpaceLocation(board *swccg.BoardState) bool {
	for _, loc := range board.Locations {
		if loc != nil && loc.IsSpace {
			return true
		}
	}
	return false
}

// pilotInHand reports whether the hand holds a pilot costing no more than
// the ship it would board.
func pilotInHand(board *swccg.BoardState, maxCost int) bool {
	db := board.DB()
	if db == nil {
		return false
	}
	for _, c := range board.Hand {
		if meta := db.Get(c.BlueprintID); meta != nil && meta.IsPilot() && meta.DeployValue() <= maxCost {
			return true
		}
	}
	return false
}

// scoreDeploymentLocation ranks a location for receiving a deployment.
// Drain potential dominates; overkill at already-won locations is punished
// so force spreads across the table.
func scoreDeploymentLocation(loc *swccg.LocationInPlay, board *swccg.BoardState, strat *Strategy) float64 {
	score := 0.0

	theirSide := board.MySide.Opposite()
	theirIcons := 0
	if db := board.DB(); db != nil {
		if card := db.Get(loc.BlueprintID); card != nil {
			theirIcons = card.ForceIconsFor(theirSide)
		}
	}

	// Force drains need opponent icons under my presence.
	if theirIcons > 0 {
		score += 15 + float64(theirIcons)*5
	} else if len(loc.MyCards) > 0 {
		score -= 5
	}

	if strat != nil {
		if priority := strat.LocationPriorityAt(loc.Index); priority != nil {
			score += priority.Score * 0.5
			switch priority.Threat {
			case ThreatDangerous:
				score -= 15
			case ThreatRetreat:
				score -= 30
			}
		}
	}

	myPower := board.MyPowerAt(loc.Index)
	theirPower := board.TheirPowerAt(loc.Index)
	powerDiff := myPower - theirPower

	// Past a comfortable lead, more power here is wasted.
	switch {
	case powerDiff >= 8:
		score += -40 - float64(powerDiff-8)*2
	case powerDiff >= 4:
		score += -20 - float64(powerDiff-4)*2
	}

	switch {
	case len(loc.TheirCards) > 0:
		if powerDiff < 0 {
			score += 15 + float64(-powerDiff)*1.5
		} else if powerDiff < 4 {
			score += 8
		}
	case len(loc.MyCards) > 0:
		if theirIcons > 0 {
			score += 3
		}
	}

	if len(loc.MyCards) == 0 && len(loc.TheirCards) == 0 {
		if theirIcons > 0 {
			score += 10
		} else {
			score += 2
		}
	}

	return score
}
