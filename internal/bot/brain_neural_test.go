package bot

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/bot/neural"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

// newTestNeuralBrain builds a neural brain with no policy loaded, which is
// enough to exercise plan adoption and history tracking.
func newTestNeuralBrain(db *swccg.CardDB) *NeuralBrain {
	return &NeuralBrain{
		StaticBrain: NewStaticBrain(db, zerolog.Nop()),
		log:         zerolog.Nop(),
	}
}

func TestNewNeuralBrainMissingModel(t *testing.T) {
	orig := GonnxModelPath
	defer func() { GonnxModelPath = orig }()
	GonnxModelPath = "/nonexistent"

	if _, err := NewNeuralBrain(plannerTestDB(), zerolog.Nop()); err == nil {
		t.Fatal("expected an error when the model file is missing")
	}
}

func TestNeuralFallsBackToStatic(t *testing.T) {
	orig := GonnxModelPath
	defer func() { GonnxModelPath = orig }()
	GonnxModelPath = "/nonexistent"

	b := newNeuralOrFallback(plannerTestDB(), zerolog.Nop())
	if b.PersonalityName() != "Static" {
		t.Errorf("fallback brain = %q, want Static", b.PersonalityName())
	}
}

func TestBrainForName(t *testing.T) {
	orig := GonnxModelPath
	defer func() { GonnxModelPath = orig }()
	GonnxModelPath = "/nonexistent"

	db := plannerTestDB()
	cases := []struct {
		name string
		want string
	}{
		{"static", "Static"},
		{"", "Static"},
		{"Astrogator", "Astrogator"},
		{" neural ", "Static"}, // model missing, falls back
		{"sithlord", "Static"},
	}
	for _, tc := range cases {
		got := BrainForName(tc.name, db, nil, zerolog.Nop()).PersonalityName()
		if got != tc.want {
			t.Errorf("BrainForName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNeuralAdoptPlan(t *testing.T) {
	db := plannerTestDB()
	brain := newTestNeuralBrain(db)
	board := plannerBoard(db, 7, 4,
		[]string{"char_luke", "char_wedge", "loc_echo_base"},
		[]plannerLoc{{cardID: "loc1", blueprint: "loc_ice_plains", site: "Hoth: Ice Plains"}})

	plan := brain.adoptPlan(neural.Plan{
		Strategy:    "ESTABLISH",
		Reason:      "Neural: establish at Hoth: Ice Plains (confidence=0.80)",
		Confidence:  0.8,
		TargetIndex: 0,
		Placements: []neural.Placement{
			{BlueprintID: "char_luke", CardName: "Luke Skywalker",
				TargetCardID: "loc1", TargetName: "Hoth: Ice Plains",
				Reason: "Neural: establish at Hoth: Ice Plains",
				Power:  4, DeployCost: 4, Ability: 4},
			{BlueprintID: "loc_echo_base", CardName: "Hoth: Echo Base",
				Reason: "Neural: deploy location"},
		},
	}, board)

	if plan.Strategy != DeployEstablish {
		t.Errorf("strategy = %q, want %q", plan.Strategy, DeployEstablish)
	}
	if got := brain.planner.Plan(); got != plan {
		t.Fatal("adopted plan must be installed on the planner")
	}
	if same := brain.planner.EnsurePlan(board); same != plan {
		t.Error("EnsurePlan must keep the installed plan for the turn")
	}
	if len(plan.Instructions) != 2 {
		t.Fatalf("instructions = %d, want 2", len(plan.Instructions))
	}
	if plan.Instructions[0].Priority != PriorityShip {
		t.Errorf("targeted placement priority = %d, want %d",
			plan.Instructions[0].Priority, PriorityShip)
	}
	if plan.Instructions[1].Priority != PriorityLocation {
		t.Errorf("location placement priority = %d, want %d",
			plan.Instructions[1].Priority, PriorityLocation)
	}
	if plan.ForceToSpend != 4 || plan.OriginalPlanCost != 4 {
		t.Errorf("budget = %d/%d, want 4/4", plan.ForceToSpend, plan.OriginalPlanCost)
	}
	if plan.ForceReserved != 1 {
		t.Errorf("reserved = %d, want 1", plan.ForceReserved)
	}
	if len(plan.TargetLocations) != 1 || plan.TargetLocations[0] != 0 {
		t.Errorf("target locations = %v, want [0]", plan.TargetLocations)
	}
	if brain.hist.ConsecutiveHoldTurns != 0 {
		t.Errorf("hold streak = %d after a deploy plan", brain.hist.ConsecutiveHoldTurns)
	}
}

func TestNeuralHoldStreak(t *testing.T) {
	db := plannerTestDB()
	brain := newTestNeuralBrain(db)
	board := plannerBoard(db, 5, 3, nil, nil)

	hold := neural.Plan{Strategy: "HOLD_BACK", TargetIndex: -1}
	brain.adoptPlan(hold, board)
	brain.adoptPlan(hold, board)
	if brain.hist.ConsecutiveHoldTurns != 2 {
		t.Errorf("hold streak = %d, want 2", brain.hist.ConsecutiveHoldTurns)
	}
	if !brain.heldTurn {
		t.Error("held flag should be set for this turn")
	}

	brain.adoptPlan(neural.Plan{Strategy: "ESTABLISH", TargetIndex: -1}, board)
	if brain.hist.ConsecutiveHoldTurns != 0 {
		t.Errorf("hold streak = %d after deploying, want 0", brain.hist.ConsecutiveHoldTurns)
	}
}

func TestNeuralHoldFailureFromLifeRace(t *testing.T) {
	db := plannerTestDB()
	brain := newTestNeuralBrain(db)
	board := plannerBoard(db, 10, 3, nil, nil)
	board.Their = swccg.Piles{ForcePile: 10, UsedPile: 10, ReserveDeck: 30}
	brain.OnTurnStart(3, board)

	// Holding while losing life force three times as fast is a failure.
	brain.heldTurn = true
	board.My.ReserveDeck -= 6
	board.Their.ReserveDeck -= 2
	brain.OnTurnStart(4, board)
	if !brain.hist.HoldFailedLastTurn {
		t.Error("losing the life race while holding must mark the hold failed")
	}
	if brain.heldTurn {
		t.Error("held flag must reset at turn start")
	}

	// An even trade is not a failure.
	brain.heldTurn = true
	board.My.ReserveDeck -= 4
	board.Their.ReserveDeck -= 4
	brain.OnTurnStart(5, board)
	if brain.hist.HoldFailedLastTurn {
		t.Error("an even trade while holding is not a failed hold")
	}
}

func TestNeuralOnGameStartResets(t *testing.T) {
	brain := newTestNeuralBrain(plannerTestDB())
	brain.planTurn = 9
	brain.hist = neural.History{ConsecutiveHoldTurns: 2, HoldFailedLastTurn: true}
	brain.heldTurn = true

	brain.OnGameStart("vader", "my deck", "")
	if brain.planTurn != 0 || brain.heldTurn {
		t.Error("game start must clear the per-game plan state")
	}
	if brain.hist != (neural.History{}) {
		t.Errorf("history = %+v, want zero", brain.hist)
	}
}

func TestNeuralPersonality(t *testing.T) {
	brain := newTestNeuralBrain(plannerTestDB())
	if brain.PersonalityName() != "Neural" {
		t.Errorf("personality = %q, want Neural", brain.PersonalityName())
	}
	if msg := brain.WelcomeMessage("vader", "deck"); !strings.Contains(msg, "vader") {
		t.Errorf("welcome message %q should greet the opponent", msg)
	}
}
