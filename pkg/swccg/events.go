package swccg

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Game event types the server emits inside update documents.
const (
	EventPutCardInPlay     = "PCIP"
	EventReplaceCardInPlay = "RCIP"
	EventPutCardNoAnimate  = "PCIPAR"
	EventRemoveCard        = "RCFP"
	EventRemoveLostCard    = "RLFP"
	EventMoveCard          = "MCIP"
	EventGameState         = "GS"
	EventParticipant       = "P"
	EventTurnChange        = "TC"
	EventPhaseChange       = "GPC"
	EventMessage           = "M"
	EventDecision          = "D"
)

// GameEvent is one <ge> element from a gameState or update document. All
// attributes stay in wire form; numeric helpers parse on demand because the
// server omits attributes freely and sometimes sends empty strings.
type GameEvent struct {
	Type string `xml:"type,attr"`

	// Card placement / movement.
	CardID        string `xml:"cardId,attr"`
	BlueprintID   string `xml:"blueprintId,attr"`
	Zone          string `xml:"zone,attr"`
	ZoneOwnerID   string `xml:"zoneOwnerId,attr"`
	TargetCardID  string `xml:"targetCardId,attr"`
	LocationIndex string `xml:"locationIndex,attr"`
	SystemName    string `xml:"systemName,attr"`
	OtherCardIDs  string `xml:"otherCardIds,attr"`

	// Participant / turn / phase.
	ParticipantID     string `xml:"participantId,attr"`
	AllParticipantIDs string `xml:"allParticipantIds,attr"`
	Side              string `xml:"side,attr"`
	Phase             string `xml:"phase,attr"`

	// Messages.
	Message string `xml:"message,attr"`

	// Game state.
	DarkForceGeneration  string `xml:"darkForceGeneration,attr"`
	LightForceGeneration string `xml:"lightForceGeneration,attr"`

	// Decisions.
	DecisionID   string `xml:"id,attr"`
	DecisionType string `xml:"decisionType,attr"`
	Text         string `xml:"text,attr"`
	NoPass       string `xml:"noPass,attr"`

	PlayerZones []PlayerZones     `xml:"playerZones"`
	DarkPower   *PowerAtLocations `xml:"darkPowerAtLocations"`
	LightPower  *PowerAtLocations `xml:"lightPowerAtLocations"`
	Parameters  []EventParameter  `xml:"parameter"`
}

// PlayerZones carries one player's zone counts on a GS event.
type PlayerZones struct {
	Name        string `xml:"name,attr"`
	ForcePile   int    `xml:"FORCE_PILE,attr"`
	UsedPile    int    `xml:"USED_PILE,attr"`
	ReserveDeck int    `xml:"RESERVE_DECK,attr"`
	LostPile    int    `xml:"LOST_PILE,attr"`
	OutOfPlay   int    `xml:"OUT_OF_PLAY,attr"`
	Hand        int    `xml:"HAND,attr"`
	SabaccHand  int    `xml:"SABACC_HAND,attr"`
}

// PowerAtLocations holds the per-location power attributes of a GS event.
// Attribute names vary by server version ("_0", "_1" or "locationIndex0"),
// so the raw attributes are kept and decoded by ByIndex.
type PowerAtLocations struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

// ByIndex decodes the dynamic attributes into a location-index keyed map.
func (p *PowerAtLocations) ByIndex() map[int]int {
	out := make(map[int]int, len(p.Attrs))
	for _, attr := range p.Attrs {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, attr.Name.Local)
		if digits == "" {
			continue
		}
		index, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		value, err := strconv.Atoi(attr.Value)
		if err != nil {
			continue
		}
		out[index] = value
	}
	return out
}

// EventParameter is one <parameter name value> pair under a decision event.
type EventParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// LocationIdx parses the locationIndex attribute, -1 when absent or malformed.
func (e *GameEvent) LocationIdx() int {
	return atoiDefault(e.LocationIndex, -1)
}

// IsDecision reports whether the event asks the player for an answer.
func (e *GameEvent) IsDecision() bool { return e.Type == EventDecision }

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// GameUpdate is the parsed body of a join response (<gameState>) or a
// long-poll / decision response (<update>).
type GameUpdate struct {
	ChannelNumber int
	Finished      bool
	Events        []GameEvent
}

// ParseGameUpdate decodes an update document. It accepts both root element
// spellings and collects <ge> elements at any depth, matching how the web
// client reads the stream.
func ParseGameUpdate(data []byte) (*GameUpdate, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	upd := &GameUpdate{ChannelNumber: -1}

	seenRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse game update: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !seenRoot {
			seenRoot = true
			if se.Name.Local != "update" && se.Name.Local != "gameState" {
				return nil, fmt.Errorf("parse game update: unexpected root element <%s>", se.Name.Local)
			}
			for _, attr := range se.Attr {
				switch attr.Name.Local {
				case "cn":
					upd.ChannelNumber = atoiDefault(attr.Value, -1)
				case "finished":
					upd.Finished = attr.Value == "true"
				}
			}
			continue
		}

		if se.Name.Local == "ge" {
			var ev GameEvent
			if err := dec.DecodeElement(&ev, &se); err != nil {
				return nil, fmt.Errorf("parse game event: %w", err)
			}
			upd.Events = append(upd.Events, ev)
		}
	}

	if !seenRoot {
		return nil, fmt.Errorf("parse game update: empty document")
	}
	return upd, nil
}
