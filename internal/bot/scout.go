package bot

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// maxLocationChecksPerTurn caps cardInfo round trips per turn. Tooltips are
// the only place the server reports drain amounts, but each fetch is a full
// HTTP request, so the scout rations them.
const maxLocationChecksPerTurn = 5

// LocationIntel is what one cardInfo tooltip revealed about a location.
type LocationIntel struct {
	CardID      string `json:"card_id"`
	MyDrain     string `json:"my_drain"`
	TheirDrain  string `json:"their_drain"`
	MyIcons     string `json:"my_icons"`
	TheirIcons  string `json:"their_icons"`
	BattleOrder bool   `json:"battle_order"`
}

// LocationScout schedules and digests cardInfo checks during the Control
// phase. It skips locations that have not seen a deployment since their
// last check, holds off entirely until the first Control phase (nothing is
// on the table before then), and prefers never-checked locations when the
// per-turn budget runs short.
type LocationScout struct {
	mySide swccg.Side
	log    zerolog.Logger

	intel map[string]LocationIntel

	checkedThisTurn map[string]bool
	checkedEver     map[string]bool
	checksThisTurn  int

	controlSeen bool
	deployCount int
	deployMark  map[string]int

	battleOrder bool
	totalChecks int
}

// NewLocationScout creates a scout for one game side.
func NewLocationScout(side swccg.Side, log zerolog.Logger) *LocationScout {
	s := &LocationScout{log: log.With().Str("component", "scout").Logger()}
	s.Reset(side)
	return s
}

// Reset clears all per-game state.
func (s *LocationScout) Reset(side swccg.Side) {
	s.mySide = side
	s.intel = make(map[string]LocationIntel)
	s.checkedThisTurn = make(map[string]bool)
	s.checkedEver = make(map[string]bool)
	s.checksThisTurn = 0
	s.controlSeen = false
	s.deployCount = 0
	s.deployMark = make(map[string]int)
	s.battleOrder = false
	s.totalChecks = 0
}

// SetSide updates the side once it is known; side detection happens after
// the first cards land in hand, which can be after the scout is built.
func (s *LocationScout) SetSide(side swccg.Side) { s.mySide = side }

// OnTurnStart resets the per-turn check budget.
func (s *LocationScout) OnTurnStart() {
	s.checkedThisTurn = make(map[string]bool)
	s.checksThisTurn = 0
}

// OnPhaseChange watches for the first Control phase, which opens checking.
func (s *LocationScout) OnPhaseChange(phase string) {
	if !s.controlSeen && strings.Contains(phase, "Control") {
		s.controlSeen = true
		s.log.Info().Msg("First Control phase, location checks enabled")
	}
}

// OnCardDeployed invalidates the cached check for a location a card just
// landed at, so the next Control phase looks at it again.
func (s *LocationScout) OnCardDeployed(locationCardID string) {
	s.deployCount++
	delete(s.deployMark, locationCardID)
}

// Due returns the locations worth a cardInfo call this turn, never-checked
// ones first, capped at the remaining per-turn budget. Empty locations and
// ones unchanged since their last check are skipped.
func (s *LocationScout) Due(board *swccg.BoardState) []*swccg.LocationInPlay {
	if !s.controlSeen || board == nil {
		return nil
	}
	remaining := maxLocationChecksPerTurn - s.checksThisTurn
	if remaining <= 0 {
		return nil
	}

	var due []*swccg.LocationInPlay
	for _, loc := range board.Locations {
		if len(due) >= remaining {
			break
		}
		if loc.Placeholder() || s.checkedThisTurn[loc.CardID] {
			continue
		}
		if mark, ok := s.deployMark[loc.CardID]; ok && mark >= s.deployCount {
			continue
		}
		if len(loc.MyCards) == 0 && len(loc.TheirCards) == 0 {
			continue
		}
		if s.checkedEver[loc.CardID] {
			due = append(due, loc)
		} else {
			due = append([]*swccg.LocationInPlay{loc}, due...)
		}
	}
	if len(due) > remaining {
		due = due[:remaining]
	}
	return due
}

// Digest parses a cardInfo tooltip and records what it says. The payload is
// flat HTML like "<div>Force drain amount (Dark): 2</div><div>...</div>";
// splitting on the div opener is how the web client reads it too.
func (s *LocationScout) Digest(cardID, html string) LocationIntel {
	s.checkedThisTurn[cardID] = true
	s.checkedEver[cardID] = true
	s.checksThisTurn++
	s.totalChecks++
	s.deployMark[cardID] = s.deployCount

	intel := LocationIntel{CardID: cardID}
	if html == "" {
		s.intel[cardID] = intel
		return intel
	}

	clean := strings.NewReplacer("<br>", "", "</br>", "", "</div>", "").Replace(html)
	battleOrderSeen := false

	for _, section := range strings.Split(clean, "<div") {
		if value, ok := drainOrIconValue(section, "Force drain amount"); ok {
			if sectionIsForSide(section, s.mySide) {
				intel.MyDrain = value
			} else {
				intel.TheirDrain = value
			}
		}
		if value, ok := drainOrIconValue(section, "Force icons"); ok {
			if sectionIsForSide(section, s.mySide) {
				intel.MyIcons = value
			} else {
				intel.TheirIcons = value
			}
		}
		if strings.Contains(section, sideLabel(s.mySide)+" side initiates") &&
			strings.Contains(section, "Force drain for +") {
			battleOrderSeen = true
			intel.BattleOrder = true
		}
	}

	if battleOrderSeen != s.battleOrder {
		if battleOrderSeen {
			s.log.Info().Msg("Under Battle Order rules, force drains cost extra")
		} else {
			s.log.Info().Msg("No longer under Battle Order rules")
		}
	}
	s.battleOrder = battleOrderSeen

	s.intel[cardID] = intel
	return intel
}

// drainOrIconValue extracts the value from a section shaped like
// ">Force drain amount (Dark): 2".
func drainOrIconValue(section, label string) (string, bool) {
	if !strings.HasPrefix(section, ">"+label+" (") {
		return "", false
	}
	_, after, found := strings.Cut(section, ": ")
	if !found {
		return "", false
	}
	return strings.TrimSpace(after), true
}

// sectionIsForSide reports whether a tooltip section names the given side.
func sectionIsForSide(section string, side swccg.Side) bool {
	return strings.Contains(section, "("+sideLabel(side)+")")
}

// sideLabel maps a side to the capitalized spelling tooltips use.
func sideLabel(side swccg.Side) string {
	if side == swccg.SideDark {
		return "Dark"
	}
	return "Light"
}

// Intel returns the last check result for a location, if any.
func (s *LocationScout) Intel(cardID string) (LocationIntel, bool) {
	intel, ok := s.intel[cardID]
	return intel, ok
}

// UnderBattleOrder reports whether the latest checks saw Battle Order text.
func (s *LocationScout) UnderBattleOrder() bool { return s.battleOrder }

// TotalChecks counts cardInfo calls made this game.
func (s *LocationScout) TotalChecks() int { return s.totalChecks }
