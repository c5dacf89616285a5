package neural

import (
	"fmt"
	"math"
	"testing"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

func encoderTestDB() *swccg.CardDB {
	return swccg.NewCardDBFromCards(
		&swccg.Card{BlueprintID: "char_ace", Title: "Ace Pilot", Type: "Character",
			Power: "4", Ability: "4", Deploy: "4", Destiny: "1", Forfeit: "7",
			Icons: []string{"Pilot"}, Unique: true},
		&swccg.Card{BlueprintID: "char_grunt", Title: "Snowtrooper", Type: "Character",
			Power: "2", Ability: "1", Deploy: "1", Destiny: "3", Forfeit: "2",
			Icons: []string{"Warrior"}},
		&swccg.Card{BlueprintID: "ship_wing", Title: "Gold Wing", Type: "Starship",
			Power: "3", Ability: "2", Deploy: "3", Destiny: "2", Forfeit: "4",
			Icons: []string{"Pilot"}},
		&swccg.Card{BlueprintID: "veh_speeder", Title: "Patrol Speeder", Type: "Vehicle",
			Power: "2", Ability: "1", Deploy: "2", Destiny: "4", Forfeit: "3"},
		&swccg.Card{BlueprintID: "loc_plains", Title: "Hoth: Ice Plains", Type: "Location",
			SubType: "Site", Icons: []string{"Exterior Site"},
			LightSideIcons: 2, DarkSideIcons: 1},
		&swccg.Card{BlueprintID: "loc_generators", Title: "Hoth: Main Power Generators", Type: "Location",
			SubType: "Site", Icons: []string{"Interior Site"},
			LightSideIcons: 1, DarkSideIcons: 1},
		&swccg.Card{BlueprintID: "loc_city", Title: "Bespin: Cloud City", Type: "Location",
			SubType: "Site", Icons: []string{"Exterior Site"},
			LightSideIcons: 1, DarkSideIcons: 2},
		&swccg.Card{BlueprintID: "loc_wastes", Title: "Hoth: Wastelands", Type: "Location",
			SubType: "Site", Icons: []string{"Exterior Site"},
			LightSideIcons: 1, DarkSideIcons: 0},
		&swccg.Card{BlueprintID: "loc_hoth", Title: "Hoth", Type: "Location",
			SubType: "System", Parsec: "5", LightSideIcons: 1, DarkSideIcons: 2},
	)
}

type encLoc struct {
	cardID     string
	blueprint  string
	site       string
	system     string
	myPower    int
	theirPower int
	myCards    int
	theirCards int
}

// encoderBoard builds a light-side board on my deploy phase, turn 4, with
// fixed piles: my life force 40 against their 35.
func encoderBoard(db *swccg.CardDB, force int, handBPs []string, locs []encLoc) *swccg.BoardState {
	board := swccg.NewBoardState(db, "rando")
	board.MySide = swccg.SideLight
	board.TurnPlayer = "rando"
	board.TurnNumber = 4
	board.Phase = "Deploy"
	board.My = swccg.Piles{ForcePile: force, UsedPile: 3, ReserveDeck: 30}
	board.Their = swccg.Piles{ForcePile: 5, UsedPile: 6, ReserveDeck: 24, Hand: 8}
	board.LightGeneration = 6
	board.DarkGeneration = 4
	for i, bp := range handBPs {
		board.Hand = append(board.Hand, &swccg.CardInPlay{
			CardID:      fmt.Sprintf("h%d", i+1),
			BlueprintID: bp,
		})
	}
	for i, l := range locs {
		loc := &swccg.LocationInPlay{
			CardID:      l.cardID,
			BlueprintID: l.blueprint,
			Index:       i,
			SiteName:    l.site,
			SystemName:  l.system,
			IsSite:      l.site != "",
			IsSpace:     l.site == "" && l.system != "",
			IsGround:    l.site != "",
		}
		for c := 0; c < l.myCards; c++ {
			loc.MyCards = append(loc.MyCards, &swccg.CardInPlay{})
		}
		for c := 0; c < l.theirCards; c++ {
			loc.TheirCards = append(loc.TheirCards, &swccg.CardInPlay{})
		}
		board.Locations = append(board.Locations, loc)
		board.LightPowerAt[i] = l.myPower
		board.DarkPowerAt[i] = l.theirPower
	}
	return board
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) <= 1e-5
}

func TestStateDimLayout(t *testing.T) {
	if StateDim != 640 {
		t.Errorf("StateDim = %d, want 640", StateDim)
	}
	if OffLocations != 64 || OffHandAgg != 448 || OffCards != 480 {
		t.Errorf("segment offsets = %d/%d/%d, want 64/448/480",
			OffLocations, OffHandAgg, OffCards)
	}
}

func TestEncodeBoardLength(t *testing.T) {
	f := EncodeBoard(encoderBoard(encoderTestDB(), 7, nil, nil), History{})
	if len(f) != StateDim {
		t.Fatalf("state length = %d, want %d", len(f), StateDim)
	}
}

func TestEncodeGlobals(t *testing.T) {
	db := encoderTestDB()
	board := encoderBoard(db, 7,
		[]string{"char_ace", "char_grunt", "loc_plains"},
		[]encLoc{
			{cardID: "loc1", blueprint: "loc_plains", site: "Hoth: Ice Plains", myPower: 5, theirPower: 3},
			{cardID: "loc2", blueprint: "loc_hoth", system: "Hoth", theirPower: 4},
		})
	f := EncodeBoard(board, History{ConsecutiveHoldTurns: 2, HoldFailedLastTurn: true})

	cases := []struct {
		name string
		idx  int
		want float32
	}{
		{"turn", GlobTurn, 4.0 / 20},
		{"my force", GlobMyForce, 7.0 / 20},
		{"my used", GlobMyUsed, 3.0 / 20},
		{"my reserve", GlobMyReserve, 30.0 / 60},
		{"their force", GlobTheirForce, 5.0 / 20},
		{"their used", GlobTheirUsed, 6.0 / 20},
		{"their reserve", GlobTheirReserve, 24.0 / 60},
		{"my life", GlobMyLife, 40.0 / 60},
		{"their life", GlobTheirLife, 35.0 / 60},
		{"life diff", GlobLifeDiff, 5.0 / 30},
		{"dark one-hot", GlobSideDark, 0},
		{"light one-hot", GlobSideLight, 1},
		{"hand size", GlobHandSize, 3.0 / 16},
		{"their hand", GlobTheirHand, 8.0 / 16},
		{"my power", GlobMyPower, 5.0 / 50},
		{"their power", GlobTheirPower, 7.0 / 50},
		{"power diff", GlobPowerDiff, -2.0 / 30},
		{"my generation", GlobMyGen, 6.0 / 10},
		{"their generation", GlobTheirGen, 4.0 / 10},
		{"drain gap", GlobDrainGap, -1.0 / 5},
		{"contested", GlobContested, 1.0 / 5},
		{"bleed", GlobBleed, 1.0 / 5},
		{"deploy one-hot", GlobPhase, 1},
		{"battle one-hot", GlobPhase + 1, 0},
		{"my turn", GlobMyTurn, 1},
		{"hold streak", GlobHoldStreak, 2.0 / 3},
		{"hold failed", GlobHoldFailed, 1},
	}
	for _, tc := range cases {
		if !near(f[tc.idx], tc.want) {
			t.Errorf("%s (f[%d]) = %v, want %v", tc.name, tc.idx, f[tc.idx], tc.want)
		}
	}
}

func TestEncodePhaseOneHot(t *testing.T) {
	board := encoderBoard(encoderTestDB(), 5, nil, nil)
	// Server casing varies; the encoder folds it.
	phases := []string{"Deploy", "BATTLE", "move", "Draw", "Control", "Activate"}
	for want, phase := range phases {
		board.Phase = phase
		f := EncodeBoard(board, History{})
		for i := range PhaseNames {
			expected := float32(0)
			if i == want {
				expected = 1
			}
			if f[GlobPhase+i] != expected {
				t.Errorf("phase %q slot %d = %v, want %v", phase, i, f[GlobPhase+i], expected)
			}
		}
	}
}

func TestEncodeOpponentTurn(t *testing.T) {
	board := encoderBoard(encoderTestDB(), 5, nil, nil)
	board.TurnPlayer = "vader"
	f := EncodeBoard(board, History{})
	if f[GlobMyTurn] != 0 {
		t.Errorf("my-turn flag = %v on the opponent's turn", f[GlobMyTurn])
	}
}

func TestEncodeDarkSideSwapsGeneration(t *testing.T) {
	board := encoderBoard(encoderTestDB(), 5, nil, nil)
	board.MySide = swccg.SideDark
	f := EncodeBoard(board, History{})
	if f[GlobSideDark] != 1 || f[GlobSideLight] != 0 {
		t.Errorf("side one-hot = %v/%v, want 1/0", f[GlobSideDark], f[GlobSideLight])
	}
	if !near(f[GlobMyGen], 4.0/10) || !near(f[GlobTheirGen], 6.0/10) {
		t.Errorf("generation = %v/%v, want 0.4/0.6", f[GlobMyGen], f[GlobTheirGen])
	}
}

func TestEncodeHoldStreakCapsAtOne(t *testing.T) {
	board := encoderBoard(encoderTestDB(), 5, nil, nil)
	f := EncodeBoard(board, History{ConsecutiveHoldTurns: 5})
	if f[GlobHoldStreak] != 1 {
		t.Errorf("hold streak = %v, want capped at 1", f[GlobHoldStreak])
	}
	if f[GlobHoldFailed] != 0 {
		t.Errorf("hold failed = %v, want 0", f[GlobHoldFailed])
	}
}

func TestEncodeLocationFeatures(t *testing.T) {
	db := encoderTestDB()
	board := encoderBoard(db, 7, nil, []encLoc{
		{cardID: "loc1", blueprint: "loc_plains", site: "Hoth: Ice Plains",
			myPower: 5, theirPower: 3, myCards: 2, theirCards: 1},
		{cardID: "loc2", blueprint: "loc_hoth", system: "Hoth", theirPower: 4},
		{cardID: "loc3", blueprint: "loc_generators", site: "Hoth: Main Power Generators", myPower: 2},
	})
	f := EncodeBoard(board, History{})

	cases := []struct {
		name string
		slot int
		feat int
		want float32
	}{
		{"site exists", 0, LocExists, 1},
		{"site ground", 0, LocGround, 1},
		{"site not space", 0, LocSpace, 0},
		{"site exterior", 0, LocExterior, 1},
		{"site not interior", 0, LocInterior, 0},
		{"site my power", 0, LocMyPower, 5.0 / 20},
		{"site their power", 0, LocTheirPower, 3.0 / 20},
		{"site power diff", 0, LocPowerDiff, 2.0 / 15},
		{"site my icons", 0, LocMyIcons, 2.0 / 3},
		{"site their icons", 0, LocTheirIcons, 1.0 / 3},
		{"site contested", 0, LocContested, 1},
		{"site not mine", 0, LocIControl, 0},
		{"site not draining", 0, LocAmDraining, 0},
		{"site my cards", 0, LocMyCards, 2.0 / 5},
		{"site their cards", 0, LocTheirCards, 1.0 / 5},
		{"site can deploy", 0, LocCanDeploy, 1},
		{"site is site", 0, LocIsSite, 1},
		{"site not system", 0, LocIsSystem, 0},
		{"site battleground", 0, LocBattleground, 1},

		{"system space", 1, LocSpace, 1},
		{"system not ground", 1, LocGround, 0},
		{"system exterior", 1, LocExterior, 1},
		{"system their power", 1, LocTheirPower, 4.0 / 20},
		{"system power diff", 1, LocPowerDiff, -4.0 / 15},
		{"system theirs", 1, LocTheyControl, 1},
		{"system bleeding me", 1, LocBeingDrained, 1},
		{"system is system", 1, LocIsSystem, 1},
		{"system parsec", 1, LocParsec, 5.0 / 10},
		{"system battleground", 1, LocBattleground, 1},

		{"interior site interior", 2, LocInterior, 1},
		{"interior site not exterior", 2, LocExterior, 0},
		{"interior site mine", 2, LocIControl, 1},
		{"interior site draining", 2, LocAmDraining, 1},
		{"interior site not contested", 2, LocContested, 0},
		{"interior site not battleground", 2, LocBattleground, 0},

		{"empty slot", 3, LocExists, 0},
	}
	for _, tc := range cases {
		idx := OffLocations + tc.slot*LocationFeatures + tc.feat
		if !near(f[idx], tc.want) {
			t.Errorf("%s (f[%d]) = %v, want %v", tc.name, idx, f[idx], tc.want)
		}
	}
}

func TestEncodeIconPresenceKeepsSign(t *testing.T) {
	// Power below zero encodes unopposed force icons. It scales through
	// with its sign, and it is neither control nor a contest for anyone.
	db := encoderTestDB()
	board := encoderBoard(db, 7, nil, []encLoc{
		{cardID: "loc1", blueprint: "loc_plains", site: "Hoth: Ice Plains", myPower: -2, theirPower: 3},
	})
	f := EncodeBoard(board, History{})
	base := OffLocations
	if !near(f[base+LocMyPower], -2.0/20) {
		t.Errorf("my power = %v, want %v", f[base+LocMyPower], -2.0/20)
	}
	if f[base+LocTheyControl] != 0 {
		t.Error("icon-only presence must block the opponent's control flag")
	}
	if f[base+LocContested] != 0 {
		t.Error("icon-only presence is not a contest")
	}
}

func TestEncodeSkipsNilLocationSlots(t *testing.T) {
	db := encoderTestDB()
	board := encoderBoard(db, 7, nil, []encLoc{
		{cardID: "loc1", blueprint: "loc_plains", site: "Hoth: Ice Plains"},
		{cardID: "loc2", blueprint: "loc_hoth", system: "Hoth"},
		{cardID: "loc3", blueprint: "loc_city", site: "Bespin: Cloud City"},
	})
	board.Locations[1] = nil
	f := EncodeBoard(board, History{})
	if f[OffLocations+1*LocationFeatures+LocExists] != 0 {
		t.Error("nil slot must stay zero")
	}
	if f[OffLocations+2*LocationFeatures+LocExists] != 1 {
		t.Error("slots after a nil must still encode")
	}
}

func TestEncodeHandAggregates(t *testing.T) {
	db := encoderTestDB()
	board := encoderBoard(db, 7,
		[]string{"char_ace", "char_grunt", "ship_wing", "veh_speeder", "loc_plains"}, nil)
	f := EncodeBoard(board, History{})

	cases := []struct {
		name string
		feat int
		want float32
	}{
		{"ground power", HandGroundPower, 8.0 / 30},
		{"space power", HandSpacePower, 3.0 / 30},
		{"characters", HandCharacters, 2.0 / 8},
		{"starships", HandStarships, 1.0 / 5},
		{"vehicles", HandVehicles, 1.0 / 3},
		{"locations", HandLocations, 1.0 / 3},
		{"pilots", HandPilots, 1.0 / 4},
		{"mains", HandMains, 1.0 / 3},
		{"min deploy", HandMinDeploy, 1.0 / 10},
		{"max deploy", HandMaxDeploy, 4.0 / 10},
		{"afford ground", HandAffordGround, 3.0 / 5},
		{"afford space", HandAffordSpace, 1.0 / 3},
		{"force", HandForce, 7.0 / 15},
		{"deployable", HandDeployable, 4.0 / 8},
	}
	for _, tc := range cases {
		idx := OffHandAgg + tc.feat
		if !near(f[idx], tc.want) {
			t.Errorf("%s (f[%d]) = %v, want %v", tc.name, idx, f[idx], tc.want)
		}
	}
}

func TestEncodeHandNoDeployCosts(t *testing.T) {
	// A hand of only locations leaves the deploy-cost spread at zero
	// rather than the unset sentinel.
	board := encoderBoard(encoderTestDB(), 7, []string{"loc_plains"}, nil)
	f := EncodeBoard(board, History{})
	if f[OffHandAgg+HandMinDeploy] != 0 || f[OffHandAgg+HandMaxDeploy] != 0 {
		t.Errorf("deploy spread = %v/%v, want 0/0",
			f[OffHandAgg+HandMinDeploy], f[OffHandAgg+HandMaxDeploy])
	}
}

func TestEncodeCardSlots(t *testing.T) {
	db := encoderTestDB()
	board := encoderBoard(db, 7,
		[]string{"char_ace", "char_grunt", "ship_wing", "veh_speeder", "loc_plains"}, nil)
	f := EncodeBoard(board, History{})
	slot := func(i, feat int) int { return OffCards + i*PerCardFeatures + feat }

	// Strongest first, cheaper deploy breaking power ties: ace (4), wing
	// (3), grunt (2 for 1), speeder (2 for 2).
	powers := []float32{4.0 / 10, 3.0 / 10, 2.0 / 10, 2.0 / 10}
	for i, want := range powers {
		if !near(f[slot(i, CardPower)], want) {
			t.Errorf("slot %d power = %v, want %v", i, f[slot(i, CardPower)], want)
		}
	}
	if !near(f[slot(2, CardDeploy)], 1.0/10) || !near(f[slot(3, CardDeploy)], 2.0/10) {
		t.Errorf("power tie must order by deploy: slots 2/3 deploy = %v/%v",
			f[slot(2, CardDeploy)], f[slot(3, CardDeploy)])
	}

	cases := []struct {
		name string
		idx  int
		want float32
	}{
		{"ace exists", slot(0, CardExists), 1},
		{"ace ability", slot(0, CardAbility), 4.0 / 6},
		{"ace character", slot(0, CardIsChar), 1},
		{"ace pilot", slot(0, CardIsPilot), 1},
		{"ace ground", slot(0, CardGround), 1},
		{"ace not space", slot(0, CardSpace), 0},
		{"ace affordable", slot(0, CardAffordable), 1},
		{"ace unique", slot(0, CardUnique), 1},
		{"ace efficiency", slot(0, CardEfficiency), 0.5},
		{"ace destiny", slot(0, CardDestiny), 1.0 / 7},
		{"ace forfeit", slot(0, CardForfeit), 7.0 / 8},
		{"ace remaining", slot(0, CardRemaining), 3.0 / 7},

		{"wing starship", slot(1, CardIsShip), 1},
		{"wing space", slot(1, CardSpace), 1},
		{"wing not ground", slot(1, CardGround), 0},
		{"wing not pilot", slot(1, CardIsPilot), 0},
		{"wing not unique", slot(1, CardUnique), 0},

		{"grunt efficiency", slot(2, CardEfficiency), 1},
		{"grunt remaining", slot(2, CardRemaining), 6.0 / 7},

		{"speeder vehicle", slot(3, CardIsVehicle), 1},
		{"speeder ground", slot(3, CardGround), 1},

		{"empty slot", slot(4, CardExists), 0},
	}
	for _, tc := range cases {
		if !near(f[tc.idx], tc.want) {
			t.Errorf("%s (f[%d]) = %v, want %v", tc.name, tc.idx, f[tc.idx], tc.want)
		}
	}
}

func TestEncodeCardUnaffordable(t *testing.T) {
	board := encoderBoard(encoderTestDB(), 3, []string{"char_ace"}, nil)
	f := EncodeBoard(board, History{})
	base := OffCards
	if f[base+CardExists] != 1 {
		t.Fatal("unaffordable cards still encode")
	}
	if f[base+CardAffordable] != 0 {
		t.Error("affordable flag set for a card over budget")
	}
	if f[base+CardRemaining] != 0 {
		t.Error("remaining-force feature must stay zero when over budget")
	}
	if f[OffHandAgg+HandAffordGround] != 0 {
		t.Error("afford-ground count must stay zero when over budget")
	}
}

func TestActionMaskDomains(t *testing.T) {
	db := encoderTestDB()
	board := encoderBoard(db, 7,
		[]string{"char_ace", "char_grunt", "ship_wing", "veh_speeder", "loc_plains"},
		[]encLoc{
			{cardID: "loc1", blueprint: "loc_plains", site: "Hoth: Ice Plains"},
			{cardID: "loc2", blueprint: "loc_hoth", system: "Hoth"},
		})
	mask := ActionMask(board)

	if !mask[ActionHoldBack] {
		t.Error("holding back is always legal")
	}
	if !mask[ActionDeployLocStart] {
		t.Error("ground site with ground cards must be legal")
	}
	if !mask[ActionDeployLocStart+1] {
		t.Error("system with an affordable ship must be legal")
	}
	for i := 2; i < MaxLocations; i++ {
		if mask[ActionDeployLocStart+i] {
			t.Errorf("slot %d has no location but is legal", i)
		}
	}
	if !mask[ActionDeployLocationCard] {
		t.Error("location card in hand must enable the location action")
	}
	if !mask[ActionEstablishGround] || !mask[ActionEstablishSpace] || !mask[ActionReinforceBest] {
		t.Error("meta-actions must be legal with both domains in hand")
	}
}

func TestActionMaskUnaffordableHand(t *testing.T) {
	db := encoderTestDB()
	board := encoderBoard(db, 0,
		[]string{"char_grunt", "ship_wing", "loc_plains"},
		[]encLoc{
			{cardID: "loc1", blueprint: "loc_plains", site: "Hoth: Ice Plains"},
			{cardID: "loc2", blueprint: "loc_hoth", system: "Hoth"},
		})
	mask := ActionMask(board)

	if mask[ActionDeployLocStart] || mask[ActionDeployLocStart+1] {
		t.Error("no affordable units, location targets must be illegal")
	}
	if mask[ActionEstablishGround] || mask[ActionEstablishSpace] || mask[ActionReinforceBest] {
		t.Error("no affordable units, meta-actions must be illegal")
	}
	// Locations cost nothing to aim at; affordability is the decoder's
	// problem.
	if !mask[ActionDeployLocationCard] {
		t.Error("location card should stay legal")
	}
	if !mask[ActionHoldBack] {
		t.Error("holding back is always legal")
	}
}

func TestActionMaskGroundOnlyHand(t *testing.T) {
	db := encoderTestDB()
	board := encoderBoard(db, 5,
		[]string{"char_grunt"},
		[]encLoc{
			{cardID: "loc1", blueprint: "loc_plains", site: "Hoth: Ice Plains"},
			{cardID: "loc2", blueprint: "loc_hoth", system: "Hoth"},
		})
	mask := ActionMask(board)

	if !mask[ActionDeployLocStart] || mask[ActionDeployLocStart+1] {
		t.Errorf("ground-only hand: site/system = %v/%v, want true/false",
			mask[ActionDeployLocStart], mask[ActionDeployLocStart+1])
	}
	if !mask[ActionEstablishGround] || mask[ActionEstablishSpace] {
		t.Error("ground-only hand enables only the ground establish")
	}
	if !mask[ActionReinforceBest] {
		t.Error("reinforce works with either domain")
	}
	if mask[ActionDeployLocationCard] {
		t.Error("no location card in hand")
	}
}

func TestActionMaskLocationSlotsCapAtSixteen(t *testing.T) {
	locs := make([]encLoc, 17)
	for i := range locs {
		locs[i] = encLoc{
			cardID:    fmt.Sprintf("loc%d", i+1),
			blueprint: "loc_plains",
			site:      fmt.Sprintf("Site %d", i+1),
		}
	}
	board := encoderBoard(encoderTestDB(), 5, []string{"char_grunt"}, locs)
	mask := ActionMask(board)
	for i := 0; i < MaxLocations; i++ {
		if !mask[ActionDeployLocStart+i] {
			t.Errorf("slot %d should be legal", i)
		}
	}
	if mask[ActionDeployLocationCard] {
		t.Error("the 17th location must not leak into the location-card action")
	}
}
