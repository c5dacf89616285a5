package swccg

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var (
	turnNumberRe = regexp.MustCompile(`turn #(\d+)`)
	winnerRe     = regexp.MustCompile(`^(.+?) is the winner due to: (.+)$`)
	loserRe      = regexp.MustCompile(`^(.+?) lost due to: (.+)$`)
)

// Processor folds server events into a BoardState. One processor serves one
// game and runs on the worker goroutine that owns the board.
type Processor struct {
	board *BoardState
	log   zerolog.Logger

	// CatchingUp suppresses callbacks while replaying the event backlog of a
	// rejoined game, so the bot does not re-announce old plays.
	CatchingUp bool

	onCardPlaced   func(cardID, blueprintID, zone, owner string)
	onBattleDamage func(damage int)
	onTurnStart    func(turn int)
	onPhaseChange  func(phase string)

	lifeAtBattleStart int
}

// NewProcessor creates a processor bound to a board.
func NewProcessor(board *BoardState, log zerolog.Logger) *Processor {
	return &Processor{board: board, log: log}
}

// RegisterCardPlaced sets the hook fired when a card lands on the table.
func (p *Processor) RegisterCardPlaced(fn func(cardID, blueprintID, zone, owner string)) {
	p.onCardPlaced = fn
}

// RegisterBattleDamage sets the hook fired at battle end with the life force
// the board owner lost during the battle.
func (p *Processor) RegisterBattleDamage(fn func(damage int)) {
	p.onBattleDamage = fn
}

// RegisterTurnStart sets the hook fired when the turn number advances.
func (p *Processor) RegisterTurnStart(fn func(turn int)) {
	p.onTurnStart = fn
}

// RegisterPhaseChange sets the hook fired when the phase string changes.
func (p *Processor) RegisterPhaseChange(fn func(phase string)) {
	p.onPhaseChange = fn
}

// Board returns the board this processor folds into.
func (p *Processor) Board() *BoardState { return p.board }

// ProcessAll applies a batch of events in order. Decision events are skipped;
// the caller routes those to the decision layer.
func (p *Processor) ProcessAll(events []GameEvent) {
	for i := range events {
		p.Process(&events[i])
	}
}

// Process applies one event to the board.
func (p *Processor) Process(ev *GameEvent) {
	switch ev.Type {
	case EventPutCardInPlay, EventReplaceCardInPlay, EventPutCardNoAnimate:
		p.handlePlacement(ev)
	case EventRemoveCard, EventRemoveLostCard:
		p.handleRemoval(ev)
	case EventMoveCard:
		p.board.updateCard(ev.CardID, ev.Zone, ev.LocationIdx(), ev.TargetCardID)
	case EventGameState:
		p.handleGameState(ev)
	case EventParticipant:
		p.handleParticipant(ev)
	case EventTurnChange:
		p.handleTurnChange(ev)
	case EventPhaseChange:
		p.handlePhaseChange(ev)
	case "SB", "SD", "SLC", "SA":
		if !p.board.InBattle {
			p.lifeAtBattleStart = p.board.LifeForce()
			// The server does not name the battle location; when exactly one
			// location is contested it has to be that one.
			p.board.BattleLocation = -1
			if contested := p.board.ContestedLocations(); len(contested) == 1 {
				p.board.BattleLocation = contested[0]
			}
		}
		p.board.InBattle = true
	case "EB", "EA", "ED", "ELC":
		p.handleBattleEnd()
	case EventMessage:
		p.handleMessage(ev)
	case EventDecision, "IP", "CAC":
		// Decisions are routed separately; IP and CAC are animation hints.
	default:
		p.log.Debug().Str("type", ev.Type).Msg("Unhandled event type")
	}
}

func (p *Processor) handlePlacement(ev *GameEvent) {
	if ev.Zone == ZoneLocations {
		p.placeLocation(ev)
		return
	}

	p.board.updateCardsInPlay(ev.CardID, ev.TargetCardID, ev.BlueprintID, ev.Zone, ev.ZoneOwnerID, ev.LocationIdx())

	// A card arriving in hand reveals which side we are playing before any
	// participant event does.
	if ev.Zone == ZoneHand && ev.ZoneOwnerID == p.board.MyName && p.board.MySide == SideNone {
		if db := p.board.DB(); db != nil {
			if meta := db.Get(ev.BlueprintID); meta != nil && meta.Side != SideNone {
				p.board.MySide = meta.Side
				p.log.Info().Str("side", string(meta.Side)).Msg("Detected side from hand")
			}
		}
	}

	if p.onCardPlaced != nil && !p.CatchingUp {
		p.onCardPlaced(ev.CardID, ev.BlueprintID, ev.Zone, ev.ZoneOwnerID)
	}
}

// placeLocation resolves a location card against the registry to decide the
// slot's system, site name, and which card types it can hold.
func (p *Processor) placeLocation(ev *GameEvent) {
	loc := &LocationInPlay{
		CardID:      ev.CardID,
		BlueprintID: ev.BlueprintID,
		Owner:       ev.ZoneOwnerID,
		Index:       ev.LocationIdx(),
		SystemName:  ev.SystemName,
		IsGround:    true,
	}

	var meta *Card
	if db := p.board.DB(); db != nil {
		meta = db.Get(ev.BlueprintID)
	}
	if meta != nil {
		loc.SiteName = meta.Title
		if loc.SystemName == "" {
			if i := strings.Index(meta.Title, ":"); i >= 0 {
				loc.SystemName = strings.TrimSpace(meta.Title[:i])
			} else {
				loc.SystemName = meta.Title
			}
		}

		subType := strings.ToLower(meta.SubType)
		loc.IsSite = strings.Contains(subType, "site")
		switch {
		case subType == "system" || subType == "sector":
			loc.IsSpace = true
			loc.IsGround = false
		case loc.IsSite:
			loc.IsGround = meta.IsInterior() || meta.IsExterior() || meta.HasPlanetIcon()
			loc.IsSpace = meta.HasSpaceIcon() || meta.IsStarshipSite()
			if meta.IsDockingBay() {
				loc.IsGround = true
				loc.IsSpace = true
			}
			if !loc.IsGround && !loc.IsSpace {
				loc.IsGround = true
			}
		}
	} else if loc.SystemName == "" {
		loc.SystemName = ev.BlueprintID
	}

	if loc.Index < 0 {
		p.log.Warn().Str("cardId", ev.CardID).Str("blueprintId", ev.BlueprintID).Msg("Location event without index")
		return
	}
	p.board.addLocation(loc)

	if p.onCardPlaced != nil && !p.CatchingUp {
		p.onCardPlaced(ev.CardID, ev.BlueprintID, ZoneLocations, ev.ZoneOwnerID)
	}
}

func (p *Processor) handleRemoval(ev *GameEvent) {
	p.board.removeCard(ev.CardID)
	for _, id := range strings.Split(ev.OtherCardIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			p.board.removeCard(id)
		}
	}
}

// handleGameState rebuilds the pile counts, generation, and power maps from
// scratch. The server sends the full picture, so stale entries must not
// survive the overwrite.
func (p *Processor) handleGameState(ev *GameEvent) {
	for _, zones := range ev.PlayerZones {
		piles := Piles{
			ForcePile:   zones.ForcePile,
			UsedPile:    zones.UsedPile,
			ReserveDeck: zones.ReserveDeck,
			LostPile:    zones.LostPile,
			OutOfPlay:   zones.OutOfPlay,
			Hand:        zones.Hand,
			SabaccHand:  zones.SabaccHand,
		}
		if zones.Name == p.board.MyName {
			p.board.My = piles
		} else {
			p.board.Their = piles
		}
	}

	if ev.DarkForceGeneration != "" {
		p.board.DarkGeneration = atoiDefault(ev.DarkForceGeneration, 0)
	}
	if ev.LightForceGeneration != "" {
		p.board.LightGeneration = atoiDefault(ev.LightForceGeneration, 0)
	}
	switch p.board.MySide {
	case SideDark:
		p.board.Activation = p.board.DarkGeneration
	case SideLight:
		p.board.Activation = p.board.LightGeneration
	default:
		p.board.Activation = max(p.board.DarkGeneration, p.board.LightGeneration)
	}

	if ev.DarkPower != nil {
		p.board.DarkPowerAt = ev.DarkPower.ByIndex()
	}
	if ev.LightPower != nil {
		p.board.LightPowerAt = ev.LightPower.ByIndex()
	}
}

func (p *Processor) handleParticipant(ev *GameEvent) {
	if p.board.Opponent == "" && ev.AllParticipantIDs != "" {
		for _, name := range strings.Split(ev.AllParticipantIDs, ",") {
			name = strings.TrimSpace(name)
			if name != "" && name != p.board.MyName {
				p.board.Opponent = name
				p.log.Info().Str("opponent", name).Msg("Opponent identified")
				break
			}
		}
	}
	if ev.ParticipantID == p.board.MyName && ev.Side != "" {
		p.board.MySide = ParseSide(ev.Side)
	}
}

func (p *Processor) handleTurnChange(ev *GameEvent) {
	p.board.TurnPlayer = ev.ParticipantID
	if ev.ParticipantID == p.board.MyName {
		p.board.ForceActivated = 0
	}
}

func (p *Processor) handlePhaseChange(ev *GameEvent) {
	oldPhase := p.board.Phase
	p.board.Phase = ev.Phase
	if ev.Phase != oldPhase {
		p.board.PhaseCount++
	}

	if m := turnNumberRe.FindStringSubmatch(strings.ToLower(ev.Phase)); m != nil {
		if turn, err := strconv.Atoi(m[1]); err == nil && turn != p.board.TurnNumber {
			p.board.TurnNumber = turn
			if p.onTurnStart != nil && !p.CatchingUp {
				p.onTurnStart(turn)
			}
		}
	}

	if ev.Phase != oldPhase && p.onPhaseChange != nil && !p.CatchingUp {
		p.onPhaseChange(ev.Phase)
	}
}

func (p *Processor) handleBattleEnd() {
	if p.board.InBattle {
		if damage := p.lifeAtBattleStart - p.board.LifeForce(); damage > 0 && p.onBattleDamage != nil && !p.CatchingUp {
			p.onBattleDamage(damage)
		}
	}
	p.board.InBattle = false
	p.board.BattleLocation = -1
	p.board.Damage = BattleDamage{}
	p.board.ClearHits()
}

func (p *Processor) handleMessage(ev *GameEvent) {
	msg := ev.Message
	if msg == "" {
		return
	}

	if m := winnerRe.FindStringSubmatch(msg); m != nil {
		p.board.Winner = m[1]
		p.board.WinReason = m[2]
		p.log.Info().Str("winner", m[1]).Str("reason", m[2]).Msg("Game over")
		return
	}
	if m := loserRe.FindStringSubmatch(msg); m != nil {
		if m[1] != p.board.MyName {
			p.board.Winner = p.board.MyName
		} else if p.board.Opponent != "" {
			p.board.Winner = p.board.Opponent
		} else {
			p.board.Winner = "opponent"
		}
		p.board.WinReason = m[2]
		p.log.Info().Str("loser", m[1]).Str("reason", m[2]).Msg("Game over")
	}
}
