package swccg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Wire zone names used by the GEMP server.
const (
	ZoneAtLocation  = "AT_LOCATION"
	ZoneAttached    = "ATTACHED"
	ZoneForcePile   = "FORCE_PILE"
	ZoneHand        = "HAND"
	ZoneLocations   = "LOCATIONS"
	ZoneSideOfTable = "SIDE_OF_TABLE"
)

// offBoardIndex marks cards that are in play but not at any board location
// (side of table, piles, location cards themselves).
const offBoardIndex = -999

// Battle Order (Dark) and Battle Plan (Light) blueprints. With one of these
// on either side of the table, force drains cost +3 unless the draining
// player occupies both a battleground site and a battleground system.
var battleOrderBlueprints = map[string]bool{
	"8_118":  true, // Battle Order
	"13_54":  true, // Battle Order (Defensive Shield)
	"12_129": true, // Battle Order & First Strike
	"8_35":   true, // Battle Plan
	"13_8":   true, // Battle Plan (Defensive Shield)
	"12_41":  true, // Battle Plan & Draw Their Fire
}

// CardInPlay is a single card instance on the table, in hand, or attached
// to another card.
type CardInPlay struct {
	CardID        string
	BlueprintID   string
	Zone          string
	Owner         string
	LocationIndex int
	TargetCardID  string
	Attached      []*CardInPlay

	// Denormalized from the registry when the card is first seen.
	Title   string
	Type    string
	Power   int
	Ability int
	Deploy  int
	Forfeit int
}

// LocationInPlay is one slot in the location row. Placeholder slots have an
// empty CardID until the real location card is seen.
type LocationInPlay struct {
	CardID      string
	BlueprintID string
	Owner       string
	Index       int
	SystemName  string
	SiteName    string

	IsSite   bool
	IsSpace  bool
	IsGround bool

	MyCards    []*CardInPlay
	TheirCards []*CardInPlay
}

// DisplayName returns the most specific name known for the location.
func (l *LocationInPlay) DisplayName() string {
	if l.IsSite && l.SiteName != "" {
		return l.SiteName
	}
	if l.SystemName != "" {
		return l.SystemName
	}
	return l.BlueprintID
}

// Placeholder reports whether the slot is still a placeholder with no
// known location card.
func (l *LocationInPlay) Placeholder() bool {
	return l.CardID == "" || strings.HasPrefix(l.CardID, "temp_location_")
}

// Piles holds the zone counts the server reports for one player.
type Piles struct {
	ForcePile   int
	UsedPile    int
	ReserveDeck int
	LostPile    int
	OutOfPlay   int
	Hand        int
	SabaccHand  int
}

// LifeForce is the player's remaining life force: reserve deck plus force
// pile plus used pile.
func (p Piles) LifeForce() int {
	return p.ReserveDeck + p.ForcePile + p.UsedPile
}

// BattleDamage tracks outstanding battle damage and attrition per side.
type BattleDamage struct {
	DarkAttrition  int
	DarkDamage     int
	LightAttrition int
	LightDamage    int
}

// BoardState is the full picture of one game as folded from server events.
// It is owned by a single worker goroutine; readers elsewhere only ever see
// snapshots.
type BoardState struct {
	db *CardDB

	MyName   string
	Opponent string
	MySide   Side

	CardsInPlay map[string]*CardInPlay
	Locations   []*LocationInPlay
	Hand        []*CardInPlay

	My    Piles
	Their Piles

	DarkGeneration  int
	LightGeneration int

	DarkPowerAt  map[int]int
	LightPowerAt map[int]int

	Phase          string
	PhaseCount     int
	TurnPlayer     string
	TurnNumber     int
	Activation     int
	ForceActivated int
	InBattle       bool
	// BattleLocation is the index of the location being fought over, or -1
	// when no battle is running or the location could not be inferred.
	BattleLocation int

	Damage BattleDamage

	hitCards map[string]bool

	Winner    string
	WinReason string
}

// NewBoardState creates an empty board for one game.
func NewBoardState(db *CardDB, myName string) *BoardState {
	return &BoardState{
		db:             db,
		MyName:         myName,
		CardsInPlay:    make(map[string]*CardInPlay),
		DarkPowerAt:    make(map[int]int),
		LightPowerAt:   make(map[int]int),
		hitCards:       make(map[string]bool),
		BattleLocation: -1,
	}
}

// DB returns the card registry the board resolves blueprints against.
func (b *BoardState) DB() *CardDB { return b.db }

// Reset clears all per-game state, keeping the player name and registry.
func (b *BoardState) Reset() {
	b.Opponent = ""
	b.MySide = SideNone
	b.CardsInPlay = make(map[string]*CardInPlay)
	b.Locations = nil
	b.Hand = nil
	b.My = Piles{}
	b.Their = Piles{}
	b.DarkGeneration = 0
	b.LightGeneration = 0
	b.DarkPowerAt = make(map[int]int)
	b.LightPowerAt = make(map[int]int)
	b.Phase = ""
	b.PhaseCount = 0
	b.TurnPlayer = ""
	b.TurnNumber = 0
	b.Activation = 0
	b.ForceActivated = 0
	b.InBattle = false
	b.BattleLocation = -1
	b.Damage = BattleDamage{}
	b.hitCards = make(map[string]bool)
	b.Winner = ""
	b.WinReason = ""
}

func (b *BoardState) loadMetadata(c *CardInPlay) {
	if c.BlueprintID == "" || b.db == nil {
		return
	}
	meta := b.db.Get(c.BlueprintID)
	if meta == nil {
		return
	}
	c.Title = meta.Title
	c.Type = meta.Type
	c.Power = meta.PowerValue()
	c.Ability = meta.AbilityValue()
	c.Deploy = meta.DeployValue()
	c.Forfeit = meta.ForfeitValue()
}

// updateCardsInPlay is the single entry point for all non-location card
// state changes: new sightings, zone moves, attachment changes.
func (b *BoardState) updateCardsInPlay(cardID, targetCardID, blueprintID, zone, owner string, locationIndex int) {
	switch {
	case zone == ZoneAtLocation:
		b.placeCardAtLocation(cardID, blueprintID, owner, locationIndex)
	case zone == ZoneAttached:
		b.attachCard(cardID, targetCardID, blueprintID, owner)
	case zone == ZoneLocations:
		// Locations go through addLocation.
	case zone == ZoneHand && owner == b.MyName:
		b.placeCardInHand(cardID, blueprintID, owner)
	default:
		b.placeCardOtherZone(cardID, blueprintID, zone, owner)
	}
}

func (b *BoardState) getOrCreateCard(cardID, blueprintID, zone, owner string, locationIndex int) (*CardInPlay, bool) {
	card, ok := b.CardsInPlay[cardID]
	if ok {
		b.detachFromParent(card)
		b.removeFromLocation(card)
		return card, false
	}
	card = &CardInPlay{
		CardID:        cardID,
		BlueprintID:   blueprintID,
		Zone:          zone,
		Owner:         owner,
		LocationIndex: locationIndex,
	}
	b.CardsInPlay[cardID] = card
	return card, true
}

func (b *BoardState) placeCardAtLocation(cardID, blueprintID, owner string, locationIndex int) {
	if locationIndex < 0 {
		// AT_LOCATION without an index; keep the card known but off-board.
		b.placeCardOtherZone(cardID, blueprintID, ZoneAtLocation, owner)
		return
	}
	b.ensureLocation(locationIndex)
	loc := b.Locations[locationIndex]

	card, isNew := b.getOrCreateCard(cardID, blueprintID, ZoneAtLocation, owner, locationIndex)
	card.Zone = ZoneAtLocation
	card.Owner = owner
	card.LocationIndex = locationIndex
	card.TargetCardID = ""
	if blueprintID != "" {
		card.BlueprintID = blueprintID
	}
	if isNew || card.Title == "" {
		b.loadMetadata(card)
	}

	if owner == b.Opponent {
		if !containsCard(loc.TheirCards, card) {
			loc.TheirCards = append(loc.TheirCards, card)
		}
	} else {
		if !containsCard(loc.MyCards, card) {
			loc.MyCards = append(loc.MyCards, card)
		}
	}
}

func (b *BoardState) attachCard(cardID, targetCardID, blueprintID, owner string) {
	if b.wouldCloseAttachCycle(cardID, targetCardID) {
		log.Warn().
			Str("cardId", cardID).
			Str("targetCardId", targetCardID).
			Msg("rejecting attach event that would close an attachment cycle")
		return
	}

	card, isNew := b.getOrCreateCard(cardID, blueprintID, ZoneAttached, owner, -1)
	target := b.CardsInPlay[targetCardID]
	if target == nil {
		// Target unseen so far. Keep the card known; the next event that
		// names it will place it properly.
		return
	}

	card.Zone = ZoneAttached
	card.Owner = owner
	card.TargetCardID = targetCardID
	if blueprintID != "" {
		card.BlueprintID = blueprintID
	}
	if isNew || card.Title == "" {
		b.loadMetadata(card)
	}

	if !containsCard(target.Attached, card) {
		target.Attached = append(target.Attached, card)
	}
	card.LocationIndex = target.LocationIndex
}

// wouldCloseAttachCycle reports whether attaching cardID beneath targetCardID
// would make the card its own ancestor. The attachment graph must stay a
// forest; a malformed event that closes a loop would hang every chain walk.
func (b *BoardState) wouldCloseAttachCycle(cardID, targetCardID string) bool {
	if cardID == targetCardID {
		return true
	}
	seen := map[string]bool{}
	for id := targetCardID; id != "" && !seen[id]; {
		if id == cardID {
			return true
		}
		seen[id] = true
		parent := b.CardsInPlay[id]
		if parent == nil {
			return false
		}
		id = parent.TargetCardID
	}
	return false
}

func (b *BoardState) placeCardInHand(cardID, blueprintID, owner string) {
	card, isNew := b.getOrCreateCard(cardID, blueprintID, ZoneHand, owner, -1)
	card.Zone = ZoneHand
	card.Owner = owner
	card.TargetCardID = ""
	if blueprintID != "" {
		card.BlueprintID = blueprintID
	}
	if isNew || card.Title == "" {
		b.loadMetadata(card)
	}
	if !containsCard(b.Hand, card) {
		b.Hand = append(b.Hand, card)
	}
}

func (b *BoardState) placeCardOtherZone(cardID, blueprintID, zone, owner string) {
	card, isNew := b.getOrCreateCard(cardID, blueprintID, zone, owner, offBoardIndex)
	card.Zone = zone
	card.Owner = owner
	card.LocationIndex = offBoardIndex
	card.TargetCardID = ""
	if blueprintID != "" {
		card.BlueprintID = blueprintID
	}
	if isNew || card.Title == "" {
		b.loadMetadata(card)
	}
}

func (b *BoardState) detachFromParent(card *CardInPlay) {
	if card.TargetCardID == "" {
		return
	}
	if parent := b.CardsInPlay[card.TargetCardID]; parent != nil {
		parent.Attached = removeCardFrom(parent.Attached, card)
	}
	card.TargetCardID = ""
}

func (b *BoardState) removeFromLocation(card *CardInPlay) {
	if card.LocationIndex >= 0 && card.LocationIndex < len(b.Locations) {
		if loc := b.Locations[card.LocationIndex]; loc != nil {
			loc.MyCards = removeCardFrom(loc.MyCards, card)
			loc.TheirCards = removeCardFrom(loc.TheirCards, card)
		}
	}
	b.Hand = removeCardFrom(b.Hand, card)
}

// removeCard drops a card from play entirely. Location cards clear their
// slot in place so later indexes stay valid. Removing a card that was never
// seen is a no-op.
func (b *BoardState) removeCard(cardID string) bool {
	card, ok := b.CardsInPlay[cardID]
	if !ok {
		return false
	}

	for i, loc := range b.Locations {
		if loc != nil && loc.CardID == cardID {
			loc.CardID = ""
			loc.BlueprintID = ""
			loc.SiteName = ""
			loc.SystemName = fmt.Sprintf("Empty Location %d", i)
			delete(b.CardsInPlay, cardID)
			return true
		}
	}

	b.detachFromParent(card)
	b.removeFromLocation(card)
	for _, att := range append([]*CardInPlay(nil), card.Attached...) {
		b.detachFromParent(att)
	}
	delete(b.CardsInPlay, cardID)
	return true
}

// updateCard repositions an existing card (MCIP carries no blueprint). An
// unknown card is treated as a first sighting at the new position.
func (b *BoardState) updateCard(cardID, zone string, locationIndex int, targetCardID string) {
	card := b.CardsInPlay[cardID]
	blueprint := ""
	owner := b.MyName
	if card != nil {
		blueprint = card.BlueprintID
		owner = card.Owner
		if zone == "" {
			zone = card.Zone
		}
		if locationIndex < 0 && zone == ZoneAtLocation {
			locationIndex = card.LocationIndex
		}
	}
	b.updateCardsInPlay(cardID, targetCardID, blueprint, zone, owner, locationIndex)
}

// ensureLocation pads the location row out to index, creating a placeholder
// named "Location <index>" for any slot that has no real card yet.
func (b *BoardState) ensureLocation(index int) {
	if index < 0 {
		return
	}
	for len(b.Locations) <= index {
		b.Locations = append(b.Locations, nil)
	}
	if b.Locations[index] == nil {
		b.Locations[index] = &LocationInPlay{
			BlueprintID: "unknown",
			Owner:       "unknown",
			Index:       index,
			SystemName:  fmt.Sprintf("Location %d", index),
		}
	}
}

// addLocation places a location card on the board. A placeholder at the
// same index is replaced in place, keeping any cards that arrived early.
// A real location already at the index means the server inserted a new slot
// there: existing locations shift right and reindex.
func (b *BoardState) addLocation(loc *LocationInPlay) {
	index := loc.Index

	reuse := false
	if index < len(b.Locations) && b.Locations[index] != nil {
		existing := b.Locations[index]
		if existing.Placeholder() {
			reuse = true
			loc.MyCards = existing.MyCards
			loc.TheirCards = existing.TheirCards
		}
	}

	switch {
	case reuse:
		b.Locations[index] = loc
	case index >= len(b.Locations):
		for len(b.Locations) < index {
			b.Locations = append(b.Locations, nil)
		}
		b.Locations = append(b.Locations, loc)
	default:
		b.Locations = append(b.Locations, nil)
		copy(b.Locations[index+1:], b.Locations[index:])
		b.Locations[index] = loc
		for i := index + 1; i < len(b.Locations); i++ {
			shifted := b.Locations[i]
			if shifted == nil || shifted.CardID == "" {
				continue
			}
			shifted.Index = i
			for _, c := range shifted.MyCards {
				c.LocationIndex = i
			}
			for _, c := range shifted.TheirCards {
				c.LocationIndex = i
			}
			if locCard := b.CardsInPlay[shifted.CardID]; locCard != nil {
				locCard.LocationIndex = i
			}
		}
	}

	b.CardsInPlay[loc.CardID] = &CardInPlay{
		CardID:        loc.CardID,
		BlueprintID:   loc.BlueprintID,
		Zone:          ZoneLocations,
		Owner:         loc.Owner,
		LocationIndex: offBoardIndex,
	}
}

// Location returns the location at an index, or nil when the index is out
// of range or the slot is empty.
func (b *BoardState) Location(index int) *LocationInPlay {
	if index < 0 || index >= len(b.Locations) {
		return nil
	}
	return b.Locations[index]
}

// LocationByCardID finds a location by the card ID of its location card.
func (b *BoardState) LocationByCardID(cardID string) *LocationInPlay {
	for _, loc := range b.Locations {
		if loc != nil && loc.CardID == cardID {
			return loc
		}
	}
	return nil
}

func containsCard(list []*CardInPlay, card *CardInPlay) bool {
	for _, c := range list {
		if c == card {
			return true
		}
	}
	return false
}

func removeCardFrom(list []*CardInPlay, card *CardInPlay) []*CardInPlay {
	for i, c := range list {
		if c == card {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// MyPowerAt returns my power at a location index, never negative. The server
// encodes uncontested force icons as negative readings in the raw DarkPowerAt
// and LightPowerAt maps; those mean no presence, so they clamp to zero here.
func (b *BoardState) MyPowerAt(index int) int {
	var p int
	if b.MySide == SideDark {
		p = b.DarkPowerAt[index]
	} else {
		p = b.LightPowerAt[index]
	}
	return max(0, p)
}

// TheirPowerAt returns the opponent's power at a location index, never
// negative.
func (b *BoardState) TheirPowerAt(index int) int {
	var p int
	if b.MySide == SideDark {
		p = b.LightPowerAt[index]
	} else {
		p = b.DarkPowerAt[index]
	}
	return max(0, p)
}

// TotalMyPower sums my positive power across all locations.
func (b *BoardState) TotalMyPower() int {
	total := 0
	for i := range b.Locations {
		if b.Locations[i] == nil {
			continue
		}
		if p := b.MyPowerAt(i); p > 0 {
			total += p
		}
	}
	return total
}

// TotalTheirPower sums the opponent's positive power across all locations.
func (b *BoardState) TotalTheirPower() int {
	total := 0
	for i := range b.Locations {
		if b.Locations[i] == nil {
			continue
		}
		if p := b.TheirPowerAt(i); p > 0 {
			total += p
		}
	}
	return total
}

// MyCardCountAt counts my cards at a location.
func (b *BoardState) MyCardCountAt(index int) int {
	loc := b.Location(index)
	if loc == nil {
		return 0
	}
	return len(loc.MyCards)
}

// TheirCardCountAt counts opponent cards at a location.
func (b *BoardState) TheirCardCountAt(index int) int {
	loc := b.Location(index)
	if loc == nil {
		return 0
	}
	return len(loc.TheirCards)
}

// MyPowerFromCards sums printed power of my cards at a location. The power
// map from the server can lag a placement by one update; card sums cannot.
func (b *BoardState) MyPowerFromCards(index int) int {
	loc := b.Location(index)
	if loc == nil {
		return 0
	}
	total := 0
	for _, c := range loc.MyCards {
		if c.Power > 0 {
			total += c.Power
		}
	}
	return total
}

// TheirPowerFromCards sums printed power of opponent cards at a location.
func (b *BoardState) TheirPowerFromCards(index int) int {
	loc := b.Location(index)
	if loc == nil {
		return 0
	}
	total := 0
	for _, c := range loc.TheirCards {
		if c.Power > 0 {
			total += c.Power
		}
	}
	return total
}

// MyAbilityAt sums ability of my cards at a location.
func (b *BoardState) MyAbilityAt(index int) int {
	loc := b.Location(index)
	if loc == nil {
		return 0
	}
	total := 0
	for _, c := range loc.MyCards {
		total += c.Ability
	}
	return total
}

// CanAfford reports whether the force pile covers a cost.
func (b *BoardState) CanAfford(cost int) bool { return b.My.ForcePile >= cost }

// ForceAdvantage is my force pile minus the opponent's.
func (b *BoardState) ForceAdvantage() int { return b.My.ForcePile - b.Their.ForcePile }

// PowerAdvantage is my board power minus the opponent's.
func (b *BoardState) PowerAdvantage() int { return b.TotalMyPower() - b.TotalTheirPower() }

// ReserveDeckLow reports whether the reserve deck is running out.
func (b *BoardState) ReserveDeckLow() bool { return b.My.ReserveDeck <= 14 }

// HandSize prefers the server-reported count; the tracked hand backs it up
// before the first zone snapshot arrives.
func (b *BoardState) HandSize() int {
	if b.My.Hand > 0 {
		return b.My.Hand
	}
	return len(b.Hand)
}

// ContestedLocations lists the indexes where both players have cards.
func (b *BoardState) ContestedLocations() []int {
	var out []int
	for _, loc := range b.Locations {
		if loc != nil && len(loc.MyCards) > 0 && len(loc.TheirCards) > 0 {
			out = append(out, loc.Index)
		}
	}
	return out
}

// IsMyTurn reports whether the current turn belongs to this player.
func (b *BoardState) IsMyTurn() bool { return b.TurnPlayer == b.MyName }

// LifeForce is my remaining life force.
func (b *BoardState) LifeForce() int { return b.My.LifeForce() }

// TheirLifeForce is the opponent's remaining life force.
func (b *BoardState) TheirLifeForce() int { return b.Their.LifeForce() }

// MyCardsInPlayCount counts cards I own that are in play.
func (b *BoardState) MyCardsInPlayCount() int {
	count := 0
	for _, c := range b.CardsInPlay {
		if c.Owner == b.MyName {
			count++
		}
	}
	return count
}

// MarkHit records that a card was hit this battle so weapons do not target
// it again.
func (b *BoardState) MarkHit(cardID string) { b.hitCards[cardID] = true }

// IsHit reports whether a card was already hit this battle.
func (b *BoardState) IsHit(cardID string) bool { return b.hitCards[cardID] }

// ClearHits resets hit tracking at battle end.
func (b *BoardState) ClearHits() {
	if len(b.hitCards) > 0 {
		b.hitCards = make(map[string]bool)
	}
}

// MyDamageRemaining returns outstanding battle damage against me.
func (b *BoardState) MyDamageRemaining() int {
	if b.MySide == SideLight {
		return b.Damage.LightDamage
	}
	return b.Damage.DarkDamage
}

// MyAttritionRemaining returns outstanding attrition against me.
func (b *BoardState) MyAttritionRemaining() int {
	if b.MySide == SideLight {
		return b.Damage.LightAttrition
	}
	return b.Damage.DarkAttrition
}

// ShouldConcede reports whether the position is hopeless enough to resign,
// with the reason. Hopeless means fatal pending battle damage, or life
// force nearly gone with nothing deployable and no battle to swing it.
func (b *BoardState) ShouldConcede() (bool, string) {
	myLife := b.LifeForce()
	theirLife := b.TheirLifeForce()

	damage := b.MyDamageRemaining()
	if damage > 0 && damage >= myLife {
		return true, fmt.Sprintf("fatal battle damage: %d damage against %d life force", damage, myLife)
	}

	maxForfeit := b.MyCardsInPlayCount() * 3
	leftover := b.MyAttritionRemaining() - maxForfeit
	if leftover < 0 {
		leftover = 0
	}
	if damage+leftover > 0 && damage+leftover >= myLife {
		return true, fmt.Sprintf("unsurvivable damage: %d damage plus %d leftover attrition against %d life force", damage, leftover, myLife)
	}

	if myLife >= 6 {
		return false, ""
	}

	forceAfterActivation := b.My.ForcePile
	if myLife-3 > forceAfterActivation {
		forceAfterActivation = myLife - 3
	}
	if forceAfterActivation < 0 {
		forceAfterActivation = 0
	}

	canAffordDeploy := false
	cheapest := -1
	for _, card := range b.Hand {
		if card.BlueprintID == "" || b.db == nil {
			continue
		}
		meta := b.db.Get(card.BlueprintID)
		if meta == nil {
			continue
		}
		cost := meta.DeployValue()
		if cost <= 0 {
			continue
		}
		if cheapest < 0 || cost < cheapest {
			cheapest = cost
		}
		if forceAfterActivation >= cost {
			canAffordDeploy = true
			break
		}
	}

	hasBattleChance := false
	for i, loc := range b.Locations {
		if loc == nil {
			continue
		}
		if b.MyPowerAt(i) > 0 && b.TheirPowerAt(i) > 0 {
			hasBattleChance = true
			break
		}
	}

	if !canAffordDeploy && !hasBattleChance {
		if cheapest < 0 {
			return true, fmt.Sprintf("life force critical (%d), no deployable cards, no battle opportunities", myLife)
		}
		return true, fmt.Sprintf("life force critical (%d), cheapest card costs %d with %d force available, no battle opportunities", myLife, cheapest, forceAfterActivation)
	}

	if myLife < 3 && theirLife-myLife >= 5 && !hasBattleChance {
		return true, fmt.Sprintf("life force nearly depleted (%d), opponent ahead by %d, no battle chances", myLife, theirLife-myLife)
	}

	return false, ""
}

// ForceToActivate decides how much force to activate this turn given the
// server's maximum. With a fat force pile only a trickle more comes in, and
// a thin reserve keeps three cards back for destiny draws.
func (b *BoardState) ForceToActivate(maxAvailable int) int {
	amount := maxAvailable

	if b.My.ForcePile > 12 {
		amount = 2 - b.ForceActivated
		if amount < 0 {
			amount = 0
		}
	}

	if reserve := b.LifeForce(); reserve <= amount {
		amount = reserve - 3
		if amount < 0 {
			amount = 0
		}
	}

	return amount
}

type deployOption struct {
	power int
	cost  int
}

// DeployableGroundPower totals the power this hand could put onto ground
// locations within the current force budget. Pure pilots are held back for
// ships and starships are excluded.
func (b *BoardState) DeployableGroundPower(ignoreCardID string) int {
	var options []deployOption
	for _, card := range b.Hand {
		if card.CardID == ignoreCardID || card.BlueprintID == "" || b.db == nil {
			continue
		}
		meta := b.db.Get(card.BlueprintID)
		if meta == nil || meta.IsStarship() {
			continue
		}
		power := meta.PowerValue()
		if meta.IsPilot() && !meta.IsWarrior() && power <= 4 {
			continue
		}
		if meta.IsPilot() && meta.IsWarrior() && power <= 3 {
			continue
		}
		options = append(options, deployOption{power: power, cost: meta.DeployValue()})
	}
	return b.deployablePower(options)
}

// DeployableSpacePower totals the power this hand could put into space.
// Only starships with a permanent pilot count.
func (b *BoardState) DeployableSpacePower(ignoreCardID string) int {
	var options []deployOption
	for _, card := range b.Hand {
		if card.CardID == ignoreCardID || card.BlueprintID == "" || b.db == nil {
			continue
		}
		meta := b.db.Get(card.BlueprintID)
		if meta == nil || !meta.IsStarship() || !meta.HasPermanentPilot() {
			continue
		}
		options = append(options, deployOption{power: meta.PowerValue(), cost: meta.DeployValue()})
	}
	return b.deployablePower(options)
}

// DeployablePower totals ground and space deployable power.
func (b *BoardState) DeployablePower() int {
	return b.DeployableGroundPower("") + b.DeployableSpacePower("")
}

func (b *BoardState) deployablePower(options []deployOption) int {
	budget := b.My.ForcePile - 1
	if budget <= 0 {
		return 0
	}

	sort.Slice(options, func(i, j int) bool { return options[i].power > options[j].power })

	total := 0
	spent := 0
	for _, opt := range options {
		if spent+opt.cost <= budget {
			total += opt.power
			spent += opt.cost
		}
	}

	// Greedy can strand budget on cheap boards; a small knapsack pass
	// catches those.
	if total < 6 && len(options) <= 10 {
		if dp := knapsackMaxPower(options, budget); dp > total {
			total = dp
		}
	}
	return total
}

func knapsackMaxPower(options []deployOption, budget int) int {
	if len(options) == 0 || budget <= 0 {
		return 0
	}
	size := budget + 1
	if size > 50 {
		size = 50
	}
	dp := make([]int, size)
	for _, opt := range options {
		if opt.cost > budget {
			continue
		}
		for i := len(dp) - 1; i >= opt.cost; i-- {
			if v := dp[i-opt.cost] + opt.power; v > dp[i] {
				dp[i] = v
			}
		}
	}
	best := 0
	for _, v := range dp {
		if v > best {
			best = v
		}
	}
	return best
}

// SystemNameAt extracts the system prefix of the location's name:
// "Tatooine: Mos Eisley" gives "Tatooine", a bare system card gives itself.
func (b *BoardState) SystemNameAt(index int) string {
	loc := b.Location(index)
	if loc == nil {
		return ""
	}
	name := loc.SiteName
	if name == "" {
		name = loc.SystemName
	}
	if i := strings.Index(name, ":"); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	return strings.TrimSpace(name)
}

// SameSystemLocations lists other location indexes in the same system.
func (b *BoardState) SameSystemLocations(index int) []int {
	system := b.SystemNameAt(index)
	if system == "" {
		return nil
	}
	var out []int
	for i, loc := range b.Locations {
		if i == index || loc == nil {
			continue
		}
		if b.SystemNameAt(i) == system {
			out = append(out, i)
		}
	}
	return out
}

// AdjacentLocations lists board-adjacent locations in the same system.
// Ground movement only crosses such edges; a Naboo site is never adjacent
// to a Tatooine site however the row is laid out.
func (b *BoardState) AdjacentLocations(index int) []int {
	system := b.SystemNameAt(index)
	if system == "" {
		return nil
	}
	var out []int
	for _, i := range []int{index - 1, index + 1} {
		if i < 0 || i >= len(b.Locations) || b.Locations[i] == nil {
			continue
		}
		if b.SystemNameAt(i) == system {
			out = append(out, i)
		}
	}
	return out
}

// HyperspeedDestinations lists space systems my starships at this location
// could reach, limited by the best hyperspeed present and parsec distance.
func (b *BoardState) HyperspeedDestinations(index int) []int {
	loc := b.Location(index)
	if loc == nil || !loc.IsSpace || b.db == nil {
		return nil
	}
	current := b.db.Get(loc.BlueprintID)
	if current == nil || current.Parsec == "" {
		return nil
	}
	currentParsec := current.ParsecValue()

	maxHyperspeed := 0
	for _, card := range loc.MyCards {
		meta := b.db.Get(card.BlueprintID)
		if meta == nil || !meta.IsStarship() {
			continue
		}
		if hs := meta.HyperspeedValue(); hs > maxHyperspeed {
			maxHyperspeed = hs
		}
	}
	if maxHyperspeed == 0 {
		return nil
	}

	var out []int
	for i, dest := range b.Locations {
		if i == index || dest == nil || !dest.IsSpace {
			continue
		}
		meta := b.db.Get(dest.BlueprintID)
		if meta == nil || meta.Parsec == "" {
			continue
		}
		diff := meta.ParsecValue() - currentParsec
		if diff < 0 {
			diff = -diff
		}
		if diff <= maxHyperspeed {
			out = append(out, i)
		}
	}
	return out
}

// MyCharacterCountAt counts my characters at a location. Ground movement
// costs one force per character moved.
func (b *BoardState) MyCharacterCountAt(index int) int {
	loc := b.Location(index)
	if loc == nil || b.db == nil {
		return 0
	}
	count := 0
	for _, card := range loc.MyCards {
		if meta := b.db.Get(card.BlueprintID); meta != nil && meta.IsCharacter() {
			count++
		}
	}
	return count
}

// MyStarshipCountAt counts my starships at a location.
func (b *BoardState) MyStarshipCountAt(index int) int {
	loc := b.Location(index)
	if loc == nil || b.db == nil {
		return 0
	}
	count := 0
	for _, card := range loc.MyCards {
		if meta := b.db.Get(card.BlueprintID); meta != nil && meta.IsStarship() {
			count++
		}
	}
	return count
}

// FleeDestination is one candidate location to retreat to.
type FleeDestination struct {
	Index      int
	TheirPower int
	MyPower    int
}

// FleeAnalysis summarizes whether and where units at a location can run.
type FleeAnalysis struct {
	CanFlee         bool
	Destinations    []FleeDestination
	BestDestination int
	MovementCost    int
	CanAfford       bool
	Reason          string
}

// FleeOptions analyzes retreat from a location. Space locations use
// hyperspeed reach; ground uses same-system adjacency.
func (b *BoardState) FleeOptions(index int, isSpace bool) FleeAnalysis {
	result := FleeAnalysis{BestDestination: -1, Reason: "unknown"}

	loc := b.Location(index)
	if loc == nil {
		result.Reason = "location not found"
		return result
	}

	var unitCount int
	if isSpace {
		unitCount = b.MyStarshipCountAt(index)
	} else {
		unitCount = b.MyCharacterCountAt(index)
	}
	result.MovementCost = unitCount
	result.CanAfford = b.My.ForcePile >= unitCount

	if unitCount == 0 {
		result.Reason = "no units to move"
		return result
	}
	if !result.CanAfford {
		result.Reason = fmt.Sprintf("cannot afford to move %d units with %d force", unitCount, b.My.ForcePile)
		return result
	}

	var destinations []int
	if isSpace {
		destinations = b.HyperspeedDestinations(index)
	} else {
		destinations = b.AdjacentLocations(index)
	}
	if len(destinations) == 0 {
		if isSpace {
			result.Reason = "no systems within hyperspeed range"
		} else {
			result.Reason = "no same-system adjacent locations"
		}
		return result
	}

	currentTheirs := b.TheirPowerAt(index)
	currentMine := b.MyPowerAt(index)

	bestAdvantage := 0
	for _, dest := range destinations {
		d := FleeDestination{Index: dest, TheirPower: b.TheirPowerAt(dest), MyPower: b.MyPowerAt(dest)}
		result.Destinations = append(result.Destinations, d)

		advantage := d.MyPower + currentMine - d.TheirPower
		if result.BestDestination < 0 || advantage > bestAdvantage {
			bestAdvantage = advantage
			result.BestDestination = dest
		}
	}

	result.CanFlee = result.BestDestination >= 0
	if result.CanFlee {
		destTheirs := b.TheirPowerAt(result.BestDestination)
		switch {
		case destTheirs > currentTheirs:
			result.Reason = fmt.Sprintf("can flee but destination has more enemies (%d vs %d)", destTheirs, currentTheirs)
		case destTheirs == 0:
			result.Reason = fmt.Sprintf("can flee to empty location %d", result.BestDestination)
		default:
			result.Reason = fmt.Sprintf("can flee to location with fewer enemies (%d vs %d)", destTheirs, currentTheirs)
		}
	}
	return result
}

// UnderBattleOrder reports whether Battle Order or Battle Plan sits on
// either side of the table, which taxes force drains by 3.
func (b *BoardState) UnderBattleOrder() bool {
	for _, card := range b.CardsInPlay {
		if card.Zone == ZoneSideOfTable && battleOrderBlueprints[card.BlueprintID] {
			return true
		}
	}
	return false
}

func (b *BoardState) String() string {
	return fmt.Sprintf("BoardState(locations=%d, cardsInPlay=%d, hand=%d, force=%d, power=%d)",
		len(b.Locations), len(b.CardsInPlay), len(b.Hand), b.My.ForcePile, b.TotalMyPower())
}
