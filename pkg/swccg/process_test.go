package swccg

import (
	"encoding/xml"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
)

func itoa(n int) string { return strconv.Itoa(n) }

func testDB() *CardDB {
	return NewCardDBFromCards(
		&Card{BlueprintID: "1_168", Title: "•Darth Vader", Side: SideDark, Type: "Character", SubType: "Imperial",
			Power: "6", Ability: "6", Deploy: "6", Forfeit: "8", Icons: []string{"Pilot", "Warrior"}},
		&Card{BlueprintID: "1_19", Title: "•Luke Skywalker", Side: SideLight, Type: "Character", SubType: "Rebel",
			Power: "4", Ability: "4", Deploy: "4", Forfeit: "5", Icons: []string{"Warrior"}},
		&Card{BlueprintID: "1_291", Title: "•Tatooine", Side: SideDark, Type: "Location", SubType: "System", Parsec: "7"},
		&Card{BlueprintID: "1_289", Title: "Tatooine: Docking Bay 94", Side: SideDark, Type: "Location", SubType: "Site",
			Icons: []string{"Exterior Site"}},
		&Card{BlueprintID: "2_143", Title: "Tatooine: Cantina", Side: SideDark, Type: "Location", SubType: "Site",
			Icons: []string{"Interior Site"}},
		&Card{BlueprintID: "1_302", Title: "•Devastator", Side: SideDark, Type: "Starship", SubType: "Capital Starship",
			Power: "8", Deploy: "8", Forfeit: "8", Icons: []string{"Pilot", "Nav Computer"}, Hyperspeed: "6"},
	)
}

func newTestProcessor(t *testing.T) (*Processor, *BoardState) {
	t.Helper()
	board := NewBoardState(testDB(), "rando")
	return NewProcessor(board, zerolog.Nop()), board
}

func locationEvent(cardID, blueprintID string, index int, system string) *GameEvent {
	return &GameEvent{Type: EventPutCardInPlay, CardID: cardID, BlueprintID: blueprintID,
		Zone: ZoneLocations, ZoneOwnerID: "rando", LocationIndex: itoa(index), SystemName: system}
}

func cardAtEvent(cardID, blueprintID, owner string, index int) *GameEvent {
	return &GameEvent{Type: EventPutCardInPlay, CardID: cardID, BlueprintID: blueprintID,
		Zone: ZoneAtLocation, ZoneOwnerID: owner, LocationIndex: itoa(index)}
}

func attachEvent(cardID, targetCardID, blueprintID, owner string) *GameEvent {
	return &GameEvent{Type: EventPutCardInPlay, CardID: cardID, BlueprintID: blueprintID,
		Zone: ZoneAttached, ZoneOwnerID: owner, TargetCardID: targetCardID}
}


func TestProcessor_JoinSequence(t *testing.T) {
	p, board := newTestProcessor(t)

	doc := `<gameState cn="3">
		<ge type="P" participantId="rando" allParticipantIds="rando,human" side="Dark"/>
		<ge type="PCIP" cardId="5" blueprintId="1_291" zone="LOCATIONS" zoneOwnerId="rando" locationIndex="0" systemName="Tatooine"/>
		<ge type="PCIP" cardId="6" blueprintId="1_289" zone="LOCATIONS" zoneOwnerId="rando" locationIndex="1"/>
		<ge type="PCIP" cardId="12" blueprintId="1_168" zone="AT_LOCATION" zoneOwnerId="rando" locationIndex="1"/>
		<ge type="PCIP" cardId="13" blueprintId="1_19" zone="AT_LOCATION" zoneOwnerId="human" locationIndex="1"/>
		<ge type="GS" darkForceGeneration="4" lightForceGeneration="3">
			<playerZones name="rando" FORCE_PILE="6" USED_PILE="1" RESERVE_DECK="42" LOST_PILE="0" OUT_OF_PLAY="0" HAND="8" SABACC_HAND="0"/>
			<playerZones name="human" FORCE_PILE="5" USED_PILE="2" RESERVE_DECK="41" LOST_PILE="1" OUT_OF_PLAY="0" HAND="8" SABACC_HAND="0"/>
			<darkPowerAtLocations _1="6"/>
			<lightPowerAtLocations _1="4"/>
		</ge>
		<ge type="TC" participantId="rando"/>
		<ge type="GPC" phase="Activate phase of turn #2"/>
	</gameState>`

	upd, err := ParseGameUpdate([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p.ProcessAll(upd.Events)

	if board.Opponent != "human" {
		t.Errorf("opponent: expected human, got %q", board.Opponent)
	}
	if board.MySide != SideDark {
		t.Errorf("side: expected dark, got %q", board.MySide)
	}
	if len(board.Locations) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(board.Locations))
	}
	system := board.Location(0)
	if !system.IsSpace || system.IsGround {
		t.Errorf("system location should be space-only: %+v", system)
	}
	bay := board.Location(1)
	if !bay.IsGround || !bay.IsSpace {
		t.Errorf("docking bay should support ground and space: %+v", bay)
	}
	if bay.SystemName != "Tatooine" {
		t.Errorf("docking bay system name from title: expected Tatooine, got %q", bay.SystemName)
	}
	if got := board.MyCardCountAt(1); got != 1 {
		t.Errorf("my card count at 1: expected 1, got %d", got)
	}
	if got := board.TheirCardCountAt(1); got != 1 {
		t.Errorf("their card count at 1: expected 1, got %d", got)
	}
	if board.My.ReserveDeck != 42 || board.Their.ForcePile != 5 {
		t.Errorf("piles mangled: my=%+v their=%+v", board.My, board.Their)
	}
	if board.Activation != 4 {
		t.Errorf("activation should follow the dark generation: expected 4, got %d", board.Activation)
	}
	if !board.IsMyTurn() {
		t.Error("expected my turn after TC")
	}
	if board.TurnNumber != 2 {
		t.Errorf("turn number: expected 2, got %d", board.TurnNumber)
	}
	if board.MyPowerAt(1) != 6 || board.TheirPowerAt(1) != 4 {
		t.Errorf("power at 1: expected 6/4, got %d/%d", board.MyPowerAt(1), board.TheirPowerAt(1))
	}
}

func TestProcessor_GameStateOverwritesPowerMaps(t *testing.T) {
	p, board := newTestProcessor(t)
	board.MySide = SideDark

	first := &GameEvent{Type: EventGameState,
		DarkPower:  &PowerAtLocations{Attrs: attrs("_0", "6", "_1", "8")},
		LightPower: &PowerAtLocations{Attrs: attrs("_0", "3")},
	}
	p.Process(first)
	if len(board.DarkPowerAt) != 2 {
		t.Fatalf("expected 2 dark entries, got %v", board.DarkPowerAt)
	}

	// Location 1 no longer reported: the stale entry must not survive.
	second := &GameEvent{Type: EventGameState,
		DarkPower:  &PowerAtLocations{Attrs: attrs("_0", "2")},
		LightPower: &PowerAtLocations{Attrs: attrs()},
	}
	p.Process(second)
	if len(board.DarkPowerAt) != 1 || board.DarkPowerAt[0] != 2 {
		t.Errorf("dark power not overwritten: %v", board.DarkPowerAt)
	}
	if len(board.LightPowerAt) != 0 {
		t.Errorf("light power not cleared: %v", board.LightPowerAt)
	}
}

func TestProcessor_GameStateWithoutPowerKeepsMaps(t *testing.T) {
	p, board := newTestProcessor(t)
	board.DarkPowerAt[0] = 5

	p.Process(&GameEvent{Type: EventGameState, DarkForceGeneration: "6"})
	if board.DarkPowerAt[0] != 5 {
		t.Errorf("power map should survive a GS without power elements: %v", board.DarkPowerAt)
	}
	if board.DarkGeneration != 6 {
		t.Errorf("generation: expected 6, got %d", board.DarkGeneration)
	}
}

func TestProcessor_LocationInsertShiftsRight(t *testing.T) {
	p, board := newTestProcessor(t)
	board.Opponent = "human"

	p.Process(locationEvent("5", "1_291", 0, "Tatooine"))
	p.Process(locationEvent("6", "2_143", 1, ""))
	p.Process(cardAtEvent("12", "1_168", "rando", 1))

	// Server inserts the docking bay between system and cantina.
	p.Process(locationEvent("7", "1_289", 1, ""))

	if len(board.Locations) != 3 {
		t.Fatalf("expected 3 locations, got %d", len(board.Locations))
	}
	if board.Location(1).SiteName != "Tatooine: Docking Bay 94" {
		t.Errorf("inserted location wrong: %+v", board.Location(1))
	}
	cantina := board.Location(2)
	if cantina.SiteName != "Tatooine: Cantina" || cantina.Index != 2 {
		t.Errorf("shifted location not reindexed: %+v", cantina)
	}
	vader := board.CardsInPlay["12"]
	if vader.LocationIndex != 2 {
		t.Errorf("card at shifted location should follow: index %d", vader.LocationIndex)
	}
	if got := board.MyCardCountAt(2); got != 1 {
		t.Errorf("my card count at 2 after shift: expected 1, got %d", got)
	}
}

func TestProcessor_PlaceholderBeforeLocationCard(t *testing.T) {
	p, board := newTestProcessor(t)

	// Card arrives before its location card exists.
	p.Process(cardAtEvent("12", "1_168", "rando", 0))
	if board.Location(0) == nil || !board.Location(0).Placeholder() {
		t.Fatalf("expected placeholder at 0: %+v", board.Location(0))
	}

	p.Process(locationEvent("5", "2_143", 0, ""))
	loc := board.Location(0)
	if loc.Placeholder() {
		t.Fatal("placeholder should be replaced by the real location")
	}
	if got := board.MyCardCountAt(0); got != 1 {
		t.Errorf("early card lost during placeholder replacement: count %d", got)
	}
}

func TestProcessor_RemovalClearsLocationSlotInPlace(t *testing.T) {
	p, board := newTestProcessor(t)

	p.Process(locationEvent("5", "1_291", 0, "Tatooine"))
	p.Process(locationEvent("6", "2_143", 1, ""))
	p.Process(cardAtEvent("12", "1_168", "rando", 1))

	p.Process(&GameEvent{Type: EventRemoveCard, CardID: "5"})

	if len(board.Locations) != 2 {
		t.Fatalf("slot count must not change on removal: %d", len(board.Locations))
	}
	if !board.Location(0).Placeholder() {
		t.Errorf("removed location should leave a placeholder: %+v", board.Location(0))
	}
	if board.Location(1).SiteName != "Tatooine: Cantina" {
		t.Errorf("later locations must keep their index: %+v", board.Location(1))
	}
	if board.CardsInPlay["12"].LocationIndex != 1 {
		t.Errorf("cards at later locations must keep their index")
	}
}

func TestProcessor_RemovalTakesOtherCardIDs(t *testing.T) {
	p, board := newTestProcessor(t)
	board.Opponent = "human"

	p.Process(locationEvent("5", "2_143", 0, ""))
	p.Process(cardAtEvent("12", "1_168", "rando", 0))
	p.Process(cardAtEvent("13", "1_19", "human", 0))
	p.Process(cardAtEvent("14", "1_168", "rando", 0))

	p.Process(&GameEvent{Type: EventRemoveLostCard, CardID: "12", OtherCardIDs: "13, 14"})

	for _, id := range []string{"12", "13", "14"} {
		if _, ok := board.CardsInPlay[id]; ok {
			t.Errorf("card %s should be gone", id)
		}
	}
	if got := board.MyCardCountAt(0); got != 0 {
		t.Errorf("location should be empty, my count %d", got)
	}
}

func TestProcessor_SideDetectedFromHand(t *testing.T) {
	p, board := newTestProcessor(t)

	p.Process(&GameEvent{Type: EventPutCardInPlay, CardID: "20", BlueprintID: "1_19",
		Zone: ZoneHand, ZoneOwnerID: "rando"})

	if board.MySide != SideLight {
		t.Errorf("side from hand blueprint: expected light, got %q", board.MySide)
	}

	// A participant event must not be overridden by later hand cards.
	p.Process(&GameEvent{Type: EventParticipant, ParticipantID: "rando", Side: "Dark"})
	p.Process(&GameEvent{Type: EventPutCardInPlay, CardID: "21", BlueprintID: "1_19",
		Zone: ZoneHand, ZoneOwnerID: "rando"})
	if board.MySide != SideDark {
		t.Errorf("participant side should win: got %q", board.MySide)
	}
}

func TestProcessor_TurnChangeResetsActivation(t *testing.T) {
	p, board := newTestProcessor(t)
	board.ForceActivated = 5

	p.Process(&GameEvent{Type: EventTurnChange, ParticipantID: "human"})
	if board.ForceActivated != 5 {
		t.Error("opponent turn change must not reset my activation count")
	}

	p.Process(&GameEvent{Type: EventTurnChange, ParticipantID: "rando"})
	if board.ForceActivated != 0 {
		t.Errorf("my turn change should reset activation, got %d", board.ForceActivated)
	}
	if board.TurnPlayer != "rando" {
		t.Errorf("turn player: got %q", board.TurnPlayer)
	}
}

func TestProcessor_PhaseChangeCallbacks(t *testing.T) {
	p, board := newTestProcessor(t)

	var turns []int
	var phases []string
	p.RegisterTurnStart(func(turn int) { turns = append(turns, turn) })
	p.RegisterPhaseChange(func(phase string) { phases = append(phases, phase) })

	p.Process(&GameEvent{Type: EventPhaseChange, Phase: "Activate phase of turn #1"})
	p.Process(&GameEvent{Type: EventPhaseChange, Phase: "Deploy phase of turn #1"})
	p.Process(&GameEvent{Type: EventPhaseChange, Phase: "Deploy phase of turn #1"})
	p.Process(&GameEvent{Type: EventPhaseChange, Phase: "Activate phase of turn #2"})

	if board.TurnNumber != 2 {
		t.Errorf("turn number: expected 2, got %d", board.TurnNumber)
	}
	if len(turns) != 2 || turns[0] != 1 || turns[1] != 2 {
		t.Errorf("turn callbacks: expected [1 2], got %v", turns)
	}
	if len(phases) != 3 {
		t.Errorf("phase callbacks should skip repeats: got %v", phases)
	}
	if board.PhaseCount != 3 {
		t.Errorf("phase count: expected 3, got %d", board.PhaseCount)
	}
}

func TestProcessor_CatchingUpSuppressesCallbacks(t *testing.T) {
	p, _ := newTestProcessor(t)
	p.CatchingUp = true

	fired := false
	p.RegisterCardPlaced(func(cardID, blueprintID, zone, owner string) { fired = true })
	p.RegisterTurnStart(func(turn int) { fired = true })

	p.Process(cardAtEvent("12", "1_168", "rando", 0))
	p.Process(&GameEvent{Type: EventPhaseChange, Phase: "Activate phase of turn #4"})

	if fired {
		t.Error("callbacks must stay quiet while catching up")
	}

	p.CatchingUp = false
	p.Process(cardAtEvent("13", "1_168", "rando", 0))
	if !fired {
		t.Error("callbacks should fire after catch-up ends")
	}
}

func TestProcessor_BattleLifecycle(t *testing.T) {
	p, board := newTestProcessor(t)
	board.My = Piles{ForcePile: 5, UsedPile: 2, ReserveDeck: 30}

	var reported []int
	p.RegisterBattleDamage(func(damage int) { reported = append(reported, damage) })

	p.Process(&GameEvent{Type: "SB"})
	if !board.InBattle {
		t.Fatal("expected in battle after SB")
	}
	board.MarkHit("12")

	// Battle losses show up as pile updates before the battle ends.
	board.My = Piles{ForcePile: 2, UsedPile: 2, ReserveDeck: 26}
	p.Process(&GameEvent{Type: "EB"})

	if board.InBattle {
		t.Error("expected battle over after EB")
	}
	if board.IsHit("12") {
		t.Error("hits must clear when the battle ends")
	}
	if len(reported) != 1 || reported[0] != 7 {
		t.Errorf("battle damage callback: expected [7], got %v", reported)
	}

	// A battle with no losses reports nothing.
	p.Process(&GameEvent{Type: "SB"})
	p.Process(&GameEvent{Type: "EB"})
	if len(reported) != 1 {
		t.Errorf("no-loss battle should not report damage: %v", reported)
	}
}

func TestProcessor_WinnerMessage(t *testing.T) {
	p, board := newTestProcessor(t)

	p.Process(&GameEvent{Type: EventMessage, Message: "human is the winner due to: Life Force depleted"})
	if board.Winner != "human" || board.WinReason != "Life Force depleted" {
		t.Errorf("winner parse: got %q / %q", board.Winner, board.WinReason)
	}
}

func TestProcessor_LoserMessageInfersWinner(t *testing.T) {
	p, board := newTestProcessor(t)
	board.Opponent = "human"

	p.Process(&GameEvent{Type: EventMessage, Message: "human lost due to: conceding the game"})
	if board.Winner != "rando" {
		t.Errorf("expected rando to win when human lost, got %q", board.Winner)
	}

	board.Winner = ""
	p.Process(&GameEvent{Type: EventMessage, Message: "rando lost due to: Life Force depleted"})
	if board.Winner != "human" {
		t.Errorf("expected human to win when rando lost, got %q", board.Winner)
	}
}

func TestProcessor_MoveCardBetweenLocations(t *testing.T) {
	p, board := newTestProcessor(t)

	p.Process(locationEvent("5", "2_143", 0, ""))
	p.Process(locationEvent("6", "1_289", 1, ""))
	p.Process(cardAtEvent("12", "1_168", "rando", 0))

	p.Process(&GameEvent{Type: EventMoveCard, CardID: "12", Zone: ZoneAtLocation, LocationIndex: "1"})

	if got := board.MyCardCountAt(0); got != 0 {
		t.Errorf("card should leave location 0, count %d", got)
	}
	if got := board.MyCardCountAt(1); got != 1 {
		t.Errorf("card should arrive at location 1, count %d", got)
	}
	if board.CardsInPlay["12"].LocationIndex != 1 {
		t.Errorf("card index: expected 1, got %d", board.CardsInPlay["12"].LocationIndex)
	}
}

func TestProcessor_AttachAndDetach(t *testing.T) {
	p, board := newTestProcessor(t)

	p.Process(locationEvent("5", "1_291", 0, "Tatooine"))
	p.Process(cardAtEvent("20", "1_302", "rando", 0))
	p.Process(attachEvent("21", "20", "1_168", "rando"))

	ship := board.CardsInPlay["20"]
	pilot := board.CardsInPlay["21"]
	if ship == nil || pilot == nil {
		t.Fatal("both cards should be in play")
	}
	if pilot.Zone != ZoneAttached || pilot.TargetCardID != "20" {
		t.Errorf("pilot should hang off the ship: zone=%q target=%q", pilot.Zone, pilot.TargetCardID)
	}
	if !containsCard(ship.Attached, pilot) {
		t.Error("ship should list the pilot as attached")
	}
	if pilot.LocationIndex != 0 {
		t.Errorf("attached card inherits the carrier's location: got %d", pilot.LocationIndex)
	}

	p.Process(&GameEvent{Type: EventRemoveCard, CardID: "21"})

	if _, ok := board.CardsInPlay["21"]; ok {
		t.Error("pilot should be gone after removal")
	}
	if containsCard(ship.Attached, pilot) {
		t.Error("ship must not keep a stale attached entry")
	}
}

func TestProcessor_SelfAttachDropped(t *testing.T) {
	p, board := newTestProcessor(t)

	p.Process(locationEvent("5", "1_291", 0, "Tatooine"))
	p.Process(cardAtEvent("20", "1_302", "rando", 0))
	p.Process(attachEvent("20", "20", "1_302", "rando"))

	ship := board.CardsInPlay["20"]
	if ship.Zone != ZoneAtLocation || ship.TargetCardID != "" {
		t.Errorf("self-attach must leave the card where it was: zone=%q target=%q", ship.Zone, ship.TargetCardID)
	}
	if len(ship.Attached) != 0 {
		t.Errorf("self-attach must not create attached entries, got %d", len(ship.Attached))
	}
	if got := board.MyCardCountAt(0); got != 1 {
		t.Errorf("ship should still count at its location, got %d", got)
	}
}

func TestProcessor_AttachCycleDropped(t *testing.T) {
	p, board := newTestProcessor(t)

	p.Process(locationEvent("5", "1_291", 0, "Tatooine"))
	p.Process(cardAtEvent("20", "1_302", "rando", 0))
	p.Process(attachEvent("21", "20", "1_168", "rando"))
	p.Process(attachEvent("20", "21", "1_302", "rando"))

	ship := board.CardsInPlay["20"]
	pilot := board.CardsInPlay["21"]
	if ship.Zone != ZoneAtLocation || ship.TargetCardID != "" {
		t.Errorf("cycle-closing attach must be dropped: zone=%q target=%q", ship.Zone, ship.TargetCardID)
	}
	if pilot.TargetCardID != "20" || !containsCard(ship.Attached, pilot) {
		t.Error("the original attachment must survive intact")
	}
	if len(pilot.Attached) != 0 {
		t.Errorf("pilot must not end up carrying the ship, got %d entries", len(pilot.Attached))
	}
	if got := board.MyCardCountAt(0); got != 1 {
		t.Errorf("ship should still count at its location, got %d", got)
	}
}

func attrs(pairs ...string) []xml.Attr {
	out := make([]xml.Attr, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, xml.Attr{Name: xml.Name{Local: pairs[i]}, Value: pairs[i+1]})
	}
	return out
}
