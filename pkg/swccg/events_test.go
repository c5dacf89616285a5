package swccg

import "testing"

func TestParseGameUpdate_JoinDocument(t *testing.T) {
	doc := `<gameState cn="3">
		<ge type="P" participantId="rando" allParticipantIds="rando,human" side="Dark"/>
		<ge type="PCIP" cardId="5" blueprintId="1_291" zone="LOCATIONS" zoneOwnerId="rando" locationIndex="0" systemName="Tatooine"/>
		<ge type="TC" participantId="rando"/>
	</gameState>`

	upd, err := ParseGameUpdate([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if upd.ChannelNumber != 3 {
		t.Errorf("cn: expected 3, got %d", upd.ChannelNumber)
	}
	if upd.Finished {
		t.Error("join document should not be finished")
	}
	if len(upd.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(upd.Events))
	}
	if upd.Events[0].Type != EventParticipant || upd.Events[0].Side != "Dark" {
		t.Errorf("participant event mangled: %+v", upd.Events[0])
	}
	if got := upd.Events[1].LocationIdx(); got != 0 {
		t.Errorf("locationIndex: expected 0, got %d", got)
	}
}

func TestParseGameUpdate_FinishedFlag(t *testing.T) {
	upd, err := ParseGameUpdate([]byte(`<update cn="17" finished="true"><ge type="M" message="human is the winner due to: conceded"/></update>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !upd.Finished {
		t.Error("expected finished=true")
	}
	if upd.ChannelNumber != 17 {
		t.Errorf("cn: expected 17, got %d", upd.ChannelNumber)
	}
}

func TestParseGameUpdate_NestedEvents(t *testing.T) {
	// Some server responses wrap events inside container elements.
	doc := `<update cn="4"><channel><ge type="TC" participantId="human"/></channel><ge type="GPC" phase="Deploy"/></update>`
	upd, err := ParseGameUpdate([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(upd.Events) != 2 {
		t.Fatalf("expected 2 events (one nested), got %d", len(upd.Events))
	}
	if upd.Events[0].ParticipantID != "human" {
		t.Errorf("nested event lost: %+v", upd.Events[0])
	}
}

func TestParseGameUpdate_RejectsWrongRoot(t *testing.T) {
	if _, err := ParseGameUpdate([]byte(`<html><body>sign in</body></html>`)); err == nil {
		t.Error("expected error for non-update root")
	}
	if _, err := ParseGameUpdate([]byte(``)); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestParseGameUpdate_GameStateChildren(t *testing.T) {
	doc := `<update cn="9">
		<ge type="GS" darkForceGeneration="7" lightForceGeneration="6">
			<playerZones name="rando" FORCE_PILE="8" USED_PILE="2" RESERVE_DECK="40" LOST_PILE="1" OUT_OF_PLAY="0" HAND="9" SABACC_HAND="0"/>
			<playerZones name="human" FORCE_PILE="5" USED_PILE="3" RESERVE_DECK="38" LOST_PILE="4" OUT_OF_PLAY="0" HAND="7" SABACC_HAND="0"/>
			<darkPowerAtLocations _0="6" _2="-2"/>
			<lightPowerAtLocations locationIndex1="4"/>
		</ge>
	</update>`

	upd, err := ParseGameUpdate([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ev := upd.Events[0]
	if len(ev.PlayerZones) != 2 {
		t.Fatalf("expected 2 playerZones, got %d", len(ev.PlayerZones))
	}
	if ev.PlayerZones[0].Name != "rando" || ev.PlayerZones[0].ReserveDeck != 40 {
		t.Errorf("playerZones mangled: %+v", ev.PlayerZones[0])
	}

	if ev.DarkPower == nil {
		t.Fatal("darkPowerAtLocations missing")
	}
	dark := ev.DarkPower.ByIndex()
	if dark[0] != 6 || dark[2] != -2 {
		t.Errorf("dark power map: expected {0:6 2:-2}, got %v", dark)
	}
	light := ev.LightPower.ByIndex()
	if light[1] != 4 {
		t.Errorf("light power map: expected {1:4}, got %v", light)
	}
}

func TestParseGameUpdate_DecisionParameters(t *testing.T) {
	doc := `<update cn="12">
		<ge type="D" decisionType="CARD_ACTION_CHOICE" id="7" text="Choose play or Pass" noPass="false">
			<parameter name="actionId" value="0"/>
			<parameter name="actionText" value="Deploy Darth Vader"/>
			<parameter name="cardId" value="12"/>
			<parameter name="blueprintId" value="1_168"/>
			<parameter name="selectable" value="true"/>
		</ge>
	</update>`

	upd, err := ParseGameUpdate([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ev := upd.Events[0]
	if !ev.IsDecision() {
		t.Fatal("expected decision event")
	}
	if len(ev.Parameters) != 5 {
		t.Fatalf("expected 5 parameters, got %d", len(ev.Parameters))
	}
	if ev.Parameters[1].Name != "actionText" || ev.Parameters[1].Value != "Deploy Darth Vader" {
		t.Errorf("parameter mangled: %+v", ev.Parameters[1])
	}
}

func TestLocationIdx_Defaults(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", -1},
		{"3", 3},
		{"-1", -1},
		{"bogus", -1},
	}
	for _, c := range cases {
		ev := GameEvent{LocationIndex: c.raw}
		if got := ev.LocationIdx(); got != c.want {
			t.Errorf("LocationIdx(%q): expected %d, got %d", c.raw, c.want, got)
		}
	}
}
