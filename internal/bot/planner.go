package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Tuning holds the strategy knobs the admin API can adjust between games.
// The worker goroutine applies updates between polls, so nothing here needs
// locking.
type Tuning struct {
	MaxHandSize              int     `json:"max_hand_size"`
	HandSoftCap              int     `json:"hand_soft_cap"`
	ForceGenTarget           int     `json:"force_gen_target"`
	MaxReserveChecks         int     `json:"max_reserve_checks"`
	DeployThreshold          float64 `json:"deploy_threshold"`
	BattleFavorableThreshold int     `json:"battle_favorable_threshold"`
	BattleDangerThreshold    int     `json:"battle_danger_threshold"`
	BotMode                  string  `json:"bot_mode"`
}

// DefaultTuning returns the stock strategy settings.
func DefaultTuning() Tuning {
	return Tuning{
		MaxHandSize:              16,
		HandSoftCap:              12,
		ForceGenTarget:           8,
		MaxReserveChecks:         2,
		DeployThreshold:          50,
		BattleFavorableThreshold: 2,
		BattleDangerThreshold:    -6,
		BotMode:                  "normal",
	}
}

// Game phases by turn number.
type GamePhase string

const (
	PhaseEarly GamePhase = "early" // turns 1-3: establish force generation
	PhaseMid   GamePhase = "mid"   // turns 4-8: build board presence
	PhaseLate  GamePhase = "late"  // turns 9+: consolidate and finish
)

const (
	earlyGameTurns = 3
	midGameTurns   = 8

	forceGenTargetEarly = 8
	forceGenTargetMid   = 6
	forceGenTargetLate  = 5

	minReserveToKeep         = 3
	reserveCheckCooldownTurn = 2
)

// StrategyFocus steers deployment toward ground or space forces.
type StrategyFocus string

const (
	FocusGround   StrategyFocus = "ground"
	FocusSpace    StrategyFocus = "space"
	FocusBalanced StrategyFocus = "balanced"
)

// ThreatLevel grades a contested location by power differential.
type ThreatLevel string

const (
	ThreatSafe      ThreatLevel = "safe"
	ThreatCrush     ThreatLevel = "crush"
	ThreatFavorable ThreatLevel = "favorable"
	ThreatRisky     ThreatLevel = "risky"
	ThreatDangerous ThreatLevel = "dangerous"
	ThreatRetreat   ThreatLevel = "retreat"
)

// Location priority weights.
const (
	weightForceIcon     = 20.0
	weightBattleground  = 15.0
	weightMyPresence    = 10.0
	weightEnemyPresence = 25.0
	weightEmpty         = 8.0
)

// Focus confidence dynamics.
const (
	focusConfidenceLoss = 0.3
	focusConfidenceGain = 0.2
	focusResetThreshold = 0.3
)

// LocationPriority is the strategic score for one location slot.
type LocationPriority struct {
	LocationIndex int
	Score         float64
	Reasons       []string
	Contested     bool
	Dangerous     bool
	Threat        ThreatLevel
}

func (p *LocationPriority) addReason(reason string, delta float64) {
	p.Reasons = append(p.Reasons, fmt.Sprintf("%s: %+.1f", reason, delta))
	p.Score += delta
}

// Strategy tracks game-state trends across turns and feeds strategic context
// to the evaluators: phase, force economy, location priorities, threat
// levels, and a ground/space focus that persists while it keeps working.
type Strategy struct {
	log    zerolog.Logger
	tuning *Tuning

	MySide swccg.Side
	Phase  GamePhase
	Turn   int

	ForceGeneration int
	ForceGenTarget  int
	ForceDeficit    int

	Focus            StrategyFocus
	FocusConfidence  float64
	TurnsWithFocus   int
	FocusDeployments int

	ContestedLocations []int
	DangerousLocations []int
	Priorities         []LocationPriority

	ReserveChecksThisTurn int
	CardsSeenInReserve    map[string]bool
	LastReserveCheckTurn  int

	BattlesWon  int
	BattlesLost int
}

// NewStrategy builds a strategy tracker for one side.
func NewStrategy(side swccg.Side, tuning *Tuning, log zerolog.Logger) *Strategy {
	s := &Strategy{
		log:                log,
		tuning:             tuning,
		MySide:             side,
		Phase:              PhaseEarly,
		ForceGenTarget:     tuning.ForceGenTarget,
		Focus:              FocusBalanced,
		FocusConfidence:    0.5,
		CardsSeenInReserve: map[string]bool{},
	}
	log.Info().Str("side", string(side)).Msg("Strategy initialized")
	return s
}

// Reset clears everything for a new game.
func (s *Strategy) Reset() {
	s.Phase = PhaseEarly
	s.Turn = 0
	s.ForceGeneration = 0
	s.ForceGenTarget = forceGenTargetEarly
	s.ForceDeficit = forceGenTargetEarly
	s.Focus = FocusBalanced
	s.FocusConfidence = 0.5
	s.TurnsWithFocus = 0
	s.FocusDeployments = 0
	s.ContestedLocations = nil
	s.DangerousLocations = nil
	s.Priorities = nil
	s.ReserveChecksThisTurn = 0
	s.CardsSeenInReserve = map[string]bool{}
	s.LastReserveCheckTurn = 0
	s.BattlesWon = 0
	s.BattlesLost = 0
	s.log.Info().Msg("Strategy reset for new game")
}

// StartTurn advances phase tracking at the start of each turn.
func (s *Strategy) StartTurn(turn int) {
	s.Turn = turn
	s.ReserveChecksThisTurn = 0

	switch {
	case turn <= earlyGameTurns:
		s.Phase = PhaseEarly
		s.ForceGenTarget = forceGenTargetEarly
	case turn <= midGameTurns:
		s.Phase = PhaseMid
		s.ForceGenTarget = forceGenTargetMid
	default:
		s.Phase = PhaseLate
		s.ForceGenTarget = forceGenTargetLate
	}

	if turn-s.LastReserveCheckTurn > reserveCheckCooldownTurn {
		s.CardsSeenInReserve = map[string]bool{}
	}

	s.log.Debug().Int("turn", turn).Str("phase", string(s.Phase)).
		Int("genTarget", s.ForceGenTarget).Msg("Turn started")
}

// UpdateFromBoard recalculates all strategic metrics.
func (s *Strategy) UpdateFromBoard(board *swccg.BoardState) {
	s.updateForceGeneration(board)
	s.updateLocationPriorities(board)
	s.detectFocusFromHand(board)

	s.log.Debug().
		Int("generation", s.ForceGeneration).Int("deficit", s.ForceDeficit).
		Str("focus", string(s.Focus)).Int("contested", len(s.ContestedLocations)).
		Msg("Strategy updated")
}

func (s *Strategy) locationIcons(board *swccg.BoardState, loc *swccg.LocationInPlay) int {
	card := board.DB().Get(loc.BlueprintID)
	if card == nil {
		return 0
	}
	return card.ForceIconsFor(s.MySide)
}

func (s *Strategy) updateForceGeneration(board *swccg.BoardState) {
	s.ForceGeneration = 0
	for _, loc := range board.Locations {
		if loc == nil || loc.Placeholder() {
			continue
		}
		s.ForceGeneration += s.locationIcons(board, loc)
	}

	// The server-reported generation includes card effects the icon count
	// misses; trust it when higher.
	reported := board.LightGeneration
	if s.MySide == swccg.SideDark {
		reported = board.DarkGeneration
	}
	if reported > s.ForceGeneration {
		s.ForceGeneration = reported
	}

	s.ForceDeficit = s.ForceGenTarget - s.ForceGeneration
}

func (s *Strategy) updateLocationPriorities(board *swccg.BoardState) {
	s.Priorities = s.Priorities[:0]
	s.ContestedLocations = s.ContestedLocations[:0]
	s.DangerousLocations = s.DangerousLocations[:0]

	for i, loc := range board.Locations {
		if loc == nil || loc.Placeholder() {
			continue
		}
		p := s.scoreLocation(board, loc, i)
		s.Priorities = append(s.Priorities, p)
		if p.Contested {
			s.ContestedLocations = append(s.ContestedLocations, i)
		}
		if p.Dangerous {
			s.DangerousLocations = append(s.DangerousLocations, i)
		}
	}

	sort.SliceStable(s.Priorities, func(i, j int) bool {
		return s.Priorities[i].Score > s.Priorities[j].Score
	})
}

func (s *Strategy) scoreLocation(board *swccg.BoardState, loc *swccg.LocationInPlay, index int) LocationPriority {
	p := LocationPriority{LocationIndex: index, Threat: ThreatSafe}

	if icons := s.locationIcons(board, loc); icons > 0 {
		p.addReason(fmt.Sprintf("%d force icons", icons), float64(icons)*weightForceIcon)
	}

	if loc.IsSite {
		p.addReason("battleground site", weightBattleground)
	}

	if len(loc.MyCards) > 0 {
		p.addReason(fmt.Sprintf("%d cards here", len(loc.MyCards)), weightMyPresence)
	}

	if len(loc.TheirCards) > 0 {
		p.Contested = true
		p.addReason(fmt.Sprintf("contested, %d enemies", len(loc.TheirCards)), weightEnemyPresence)

		p.Threat = s.AssessThreat(board.MyPowerAt(index), board.TheirPowerAt(index))
		if p.Threat == ThreatDangerous || p.Threat == ThreatRetreat {
			p.Dangerous = true
			p.addReason("threat: "+string(p.Threat), -10)
		}
	} else if len(loc.MyCards) == 0 {
		p.addReason("empty, easy control", weightEmpty)
	}

	return p
}

// AssessThreat grades a location by power differential.
func (s *Strategy) AssessThreat(myPower, theirPower int) ThreatLevel {
	if theirPower == 0 {
		return ThreatSafe
	}
	diff := myPower - theirPower

	favorable := s.tuning.BattleFavorableThreshold
	danger := s.tuning.BattleDangerThreshold
	crush := favorable + 4

	switch {
	case diff >= crush:
		return ThreatCrush
	case diff >= favorable:
		return ThreatFavorable
	case diff >= -favorable:
		return ThreatRisky
	case diff >= danger:
		return ThreatDangerous
	default:
		return ThreatRetreat
	}
}

// detectFocusFromHand leans toward ground or space based on what the hand
// can actually deploy. A confident focus is sticky until battles go badly.
func (s *Strategy) detectFocusFromHand(board *swccg.BoardState) {
	if s.FocusConfidence > focusResetThreshold && s.Focus != FocusBalanced {
		return
	}

	groundPower, spacePower := 0, 0
	for _, card := range board.Hand {
		switch strings.ToLower(card.Type) {
		case "character", "vehicle":
			groundPower += card.Power
		case "starship":
			spacePower += card.Power
		}
	}

	newFocus := FocusBalanced
	if float64(spacePower) > float64(groundPower)*1.5 {
		newFocus = FocusSpace
	} else if float64(groundPower) > float64(spacePower)*1.5 {
		newFocus = FocusGround
	}

	if newFocus != s.Focus {
		s.log.Info().Str("from", string(s.Focus)).Str("to", string(newFocus)).
			Msg("Strategy focus changed")
		s.Focus = newFocus
		s.TurnsWithFocus = 0
		s.FocusDeployments = 0
		s.FocusConfidence = 0.5
	} else {
		s.TurnsWithFocus++
	}
}

// OnSuccessfulDeploy builds focus confidence when deployments match it.
func (s *Strategy) OnSuccessfulDeploy(cardType string) {
	if !s.cardMatchesFocus(cardType) {
		return
	}
	s.FocusDeployments++
	if s.FocusDeployments >= 2 {
		s.FocusConfidence = min(1.0, s.FocusConfidence+focusConfidenceGain)
	}
}

// OnBattleResult updates focus confidence after a battle.
func (s *Strategy) OnBattleResult(won bool) {
	if won {
		s.BattlesWon++
		return
	}
	s.BattlesLost++
	s.FocusConfidence = max(0.0, s.FocusConfidence-focusConfidenceLoss)
	if s.FocusConfidence < focusResetThreshold {
		s.Focus = FocusBalanced
		s.log.Info().Msg("Focus reset to balanced after losses")
	}
}

func (s *Strategy) cardMatchesFocus(cardType string) bool {
	t := strings.ToLower(cardType)
	switch s.Focus {
	case FocusGround:
		return t == "character" || t == "vehicle" || t == "site"
	case FocusSpace:
		return t == "starship" || t == "system"
	}
	return false
}

// LocationPriorityAt returns the score for a location, nil when unscored.
func (s *Strategy) LocationPriorityAt(index int) *LocationPriority {
	for i := range s.Priorities {
		if s.Priorities[i].LocationIndex == index {
			return &s.Priorities[i]
		}
	}
	return nil
}

// TopPriorityLocations returns the best-scoring locations.
func (s *Strategy) TopPriorityLocations(count int) []LocationPriority {
	if count > len(s.Priorities) {
		count = len(s.Priorities)
	}
	return s.Priorities[:count]
}

// IsContested reports whether both players have cards at the location.
func (s *Strategy) IsContested(index int) bool {
	return containsInt(s.ContestedLocations, index)
}

// IsDangerous reports whether the enemy holds a meaningful power advantage.
func (s *Strategy) IsDangerous(index int) bool {
	return containsInt(s.DangerousLocations, index)
}

// ThreatAt returns the threat level at a location.
func (s *Strategy) ThreatAt(index int) ThreatLevel {
	if p := s.LocationPriorityAt(index); p != nil {
		return p.Threat
	}
	return ThreatSafe
}

// LocationDeployBonus scales the reward for deploying locations by how far
// force generation lags its target.
func (s *Strategy) LocationDeployBonus() float64 {
	switch {
	case s.ForceDeficit <= 0:
		return 0
	case s.ForceDeficit <= 2:
		return 15
	case s.ForceDeficit <= 4:
		return 30
	default:
		return 50
	}
}

// FocusDeployBonus rewards deployments matching the current focus.
func (s *Strategy) FocusDeployBonus(cardType string) float64 {
	if s.cardMatchesFocus(cardType) {
		return 15 * s.FocusConfidence
	}
	return 0
}

// ShouldCheckReserve limits reserve deck peeks per turn.
func (s *Strategy) ShouldCheckReserve() bool {
	return s.ReserveChecksThisTurn < s.tuning.MaxReserveChecks
}

// RecordReserveCheck notes a reserve peek and what it showed.
func (s *Strategy) RecordReserveCheck(cardsSeen []string) {
	s.ReserveChecksThisTurn++
	s.LastReserveCheckTurn = s.Turn
	for _, bp := range cardsSeen {
		s.CardsSeenInReserve[bp] = true
	}
}

// RecentlySeenInReserve reports whether a blueprint showed up in a recent
// reserve peek.
func (s *Strategy) RecentlySeenInReserve(blueprintID string) bool {
	return s.CardsSeenInReserve[blueprintID]
}

// ActivationAmount recommends how much force to activate this turn.
func (s *Strategy) ActivationAmount(maxAvailable, currentForce, reserveSize int) int {
	var target int
	switch s.Phase {
	case PhaseEarly:
		// Activate aggressively to deploy locations.
		target = min(maxAvailable, s.ForceGeneration+2)
	case PhaseMid:
		target = min(maxAvailable, 8)
		if reserveSize < 10 {
			target = min(target, maxAvailable-minReserveToKeep)
		}
	default:
		// Save reserve cards for destiny draws.
		target = min(maxAvailable, 4, s.ForceGeneration)
	}

	if currentForce > 12 {
		target = min(target, 2)
	}
	if reserveSize <= maxAvailable && reserveSize <= 5 {
		target = min(target, max(0, reserveSize-minReserveToKeep))
	}
	return max(0, target)
}

// EffectiveSoftCap returns the hand size where draw penalties start. Players
// overdraw early to find key pieces, then tighten up to protect life force.
func (s *Strategy) EffectiveSoftCap(hasDeployable bool) int {
	base := s.tuning.HandSoftCap
	hard := s.tuning.MaxHandSize

	var limit int
	switch {
	case s.Turn <= 3:
		limit = base + 4
	case s.Turn <= 6:
		limit = base
	default:
		limit = base - 4
	}
	if !hasDeployable {
		limit += 2
	}
	return max(4, min(limit, hard))
}

// HandSizePenalty scores drawing another card given the current hand size.
func (s *Strategy) HandSizePenalty(handSize int, hasDeployable bool) float64 {
	if handSize >= s.tuning.MaxHandSize {
		return -100
	}
	soft := s.EffectiveSoftCap(hasDeployable)
	if handSize >= soft {
		return -20 * float64(handSize-soft)
	}
	return 0
}

// ShouldDrawForLocations reports whether to dig for location cards.
func (s *Strategy) ShouldDrawForLocations(handSize int) bool {
	return s.ForceDeficit > 3 && handSize < s.EffectiveSoftCap(true)
}

// StrategyStatus is a monitoring snapshot.
type StrategyStatus struct {
	Phase                 string  `json:"phase"`
	Turn                  int     `json:"turn"`
	ForceGeneration       int     `json:"force_generation"`
	ForceDeficit          int     `json:"force_deficit"`
	Focus                 string  `json:"focus"`
	FocusConfidence       float64 `json:"focus_confidence"`
	ContestedLocations    int     `json:"contested_locations"`
	DangerousLocations    int     `json:"dangerous_locations"`
	ReserveChecksThisTurn int     `json:"reserve_checks_this_turn"`
	BattlesWon            int     `json:"battles_won"`
	BattlesLost           int     `json:"battles_lost"`
}

// Status returns the current strategy state for monitoring.
func (s *Strategy) Status() StrategyStatus {
	return StrategyStatus{
		Phase:                 string(s.Phase),
		Turn:                  s.Turn,
		ForceGeneration:       s.ForceGeneration,
		ForceDeficit:          s.ForceDeficit,
		Focus:                 string(s.Focus),
		FocusConfidence:       s.FocusConfidence,
		ContestedLocations:    len(s.ContestedLocations),
		DangerousLocations:    len(s.DangerousLocations),
		ReserveChecksThisTurn: s.ReserveChecksThisTurn,
		BattlesWon:            s.BattlesWon,
		BattlesLost:           s.BattlesLost,
	}
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
