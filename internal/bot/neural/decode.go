package neural

import (
	"fmt"
	"sort"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Placement is one decoded deployment: a hand card and where it goes. An
// empty TargetCardID means the card plays to the table itself, which is
// how locations deploy.
type Placement struct {
	BlueprintID  string
	CardName     string
	TargetCardID string
	TargetName   string
	Reason       string

	Power      int
	DeployCost int
	Ability    int
}

// Plan is a policy action decoded into domain terms. Strategy matches the
// deploy planner's posture names so the bot can adopt the plan directly.
type Plan struct {
	Strategy   string
	Reason     string
	Confidence float32

	// TargetIndex is the location slot the plan aims at, -1 when none.
	TargetIndex int
	Placements  []Placement
}

// Decode turns a policy action into a concrete plan against the current
// board. Any action the board cannot honor decodes to a hold.
func Decode(action int, board *swccg.BoardState, confidence float32) Plan {
	switch {
	case action >= ActionDeployLocStart && action <= ActionDeployLocEnd:
		return locationPlan(board, action-ActionDeployLocStart, confidence)
	case action == ActionDeployLocationCard:
		return locationCardPlan(board, confidence)
	case action == ActionEstablishGround:
		return establishPlan(board, confidence, false)
	case action == ActionEstablishSpace:
		return establishPlan(board, confidence, true)
	case action == ActionReinforceBest:
		return reinforcePlan(board, confidence)
	default:
		return holdPlan(confidence)
	}
}

func holdPlan(confidence float32) Plan {
	return Plan{
		Strategy:    "HOLD_BACK",
		Reason:      fmt.Sprintf("Neural: hold back (confidence=%.2f)", confidence),
		Confidence:  confidence,
		TargetIndex: -1,
	}
}

// locationPlan lines up the strongest affordable cards for one location,
// spending down to a one-force battle reserve. Cards too expensive for
// what is left are skipped, not dropped, so a cheap follow-up still makes
// the plan.
func locationPlan(board *swccg.BoardState, idx int, confidence float32) Plan {
	loc := board.Location(idx)
	if loc == nil {
		return holdPlan(confidence)
	}
	ground := loc.IsGround || loc.IsSite
	deployable := deployableFor(board, ground, loc.IsSpace)
	if len(deployable) == 0 {
		return holdPlan(confidence)
	}

	myPower := board.MyPowerAt(idx)
	theirPower := board.TheirPowerAt(idx)
	strategy, posture := "ESTABLISH", "establish"
	switch {
	case theirPower > 0 && myPower > 0:
		strategy, posture = "REINFORCE", "reinforce"
	case theirPower > 0:
		strategy, posture = "ESTABLISH", "contest"
	case myPower > 0:
		strategy, posture = "REINFORCE", "strengthen"
	}

	name := loc.DisplayName()
	var placements []Placement
	remaining := board.My.ForcePile - 1
	for _, c := range deployable {
		if c.deploy > remaining {
			continue
		}
		placements = append(placements, Placement{
			BlueprintID:  c.blueprintID,
			CardName:     c.title,
			TargetCardID: loc.CardID,
			TargetName:   name,
			Reason:       fmt.Sprintf("Neural: %s at %s", posture, name),
			Power:        c.power,
			DeployCost:   c.deploy,
			Ability:      c.ability,
		})
		remaining -= c.deploy
	}

	return Plan{
		Strategy:    strategy,
		Reason:      fmt.Sprintf("Neural: %s at %s (confidence=%.2f)", posture, name, confidence),
		Confidence:  confidence,
		TargetIndex: idx,
		Placements:  placements,
	}
}

// locationCardPlan puts the first location card in hand on the table.
func locationCardPlan(board *swccg.BoardState, confidence float32) Plan {
	for _, c := range resolveHand(board) {
		if !c.isLocation {
			continue
		}
		name := c.title
		if name == "" {
			name = "Location"
		}
		return Plan{
			Strategy:    "DEPLOY_LOCATIONS",
			Reason:      fmt.Sprintf("Neural: deploy location (confidence=%.2f)", confidence),
			Confidence:  confidence,
			TargetIndex: -1,
			Placements: []Placement{{
				BlueprintID: c.blueprintID,
				CardName:    name,
				Reason:      "Neural: deploy location",
				DeployCost:  c.deploy,
			}},
		}
	}
	return holdPlan(confidence)
}

// establishPlan picks the best unoccupied location in the given domain,
// preferring spots with opponent force icons to drain, then defers to the
// location plan.
func establishPlan(board *swccg.BoardState, confidence float32, space bool) Plan {
	db := board.DB()
	theirSide := board.MySide.Opposite()

	best, bestIcons := -1, 0
	for i, loc := range board.Locations {
		if loc == nil || !domainMatch(loc, space) {
			continue
		}
		if board.MyPowerAt(i) > 0 {
			continue
		}
		icons := locationIcons(db.Get(loc.BlueprintID), theirSide)
		if icons > bestIcons {
			best, bestIcons = i, icons
		}
	}
	if best == -1 {
		for i, loc := range board.Locations {
			if loc == nil || !domainMatch(loc, space) {
				continue
			}
			if board.MyPowerAt(i) == 0 {
				best = i
				break
			}
		}
	}
	if best == -1 {
		return holdPlan(confidence)
	}
	return locationPlan(board, best, confidence)
}

// reinforcePlan shores up the location where we are furthest behind while
// still present, or contests an enemy-only location when nothing we hold
// is threatened.
func reinforcePlan(board *swccg.BoardState, confidence float32) Plan {
	worst, worstDiff := -1, 0
	for i, loc := range board.Locations {
		if loc == nil {
			continue
		}
		myPower := board.MyPowerAt(i)
		if myPower == 0 {
			continue
		}
		if diff := myPower - board.TheirPowerAt(i); diff < worstDiff {
			worst, worstDiff = i, diff
		}
	}
	if worst == -1 {
		for i, loc := range board.Locations {
			if loc == nil {
				continue
			}
			if board.TheirPowerAt(i) > 0 && board.MyPowerAt(i) == 0 {
				worst = i
				break
			}
		}
	}
	if worst == -1 {
		return holdPlan(confidence)
	}
	return locationPlan(board, worst, confidence)
}

// deployableFor lists affordable hand cards that can take the given
// location type, strongest first.
func deployableFor(board *swccg.BoardState, ground, space bool) []handCard {
	force := board.My.ForcePile
	var out []handCard
	for _, c := range resolveHand(board) {
		if c.deploy > force {
			continue
		}
		switch {
		case ground && (c.isCharacter || c.isVehicle):
			out = append(out, c)
		case !ground && space && c.isStarship:
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].power > out[j].power })
	return out
}

func domainMatch(loc *swccg.LocationInPlay, space bool) bool {
	if space {
		return loc.IsSpace
	}
	return loc.IsGround || loc.IsSite
}
