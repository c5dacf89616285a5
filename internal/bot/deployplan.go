package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// DeployStrategy names the posture a deploy-phase plan takes.
type DeployStrategy string

const (
	DeployEstablish DeployStrategy = "ESTABLISH"
	DeployReinforce DeployStrategy = "REINFORCE"
	DeployOverwhelm DeployStrategy = "OVERWHELM"
	DeployHoldBack  DeployStrategy = "HOLD_BACK"
	// DeployLocationsOnly covers plans whose only instructions put location
	// cards on the table.
	DeployLocationsOnly DeployStrategy = "DEPLOY_LOCATIONS"
)

// Instruction priorities order a plan: locations first, then hulls, then
// the characters who crew and garrison them.
const (
	PriorityLocation  = 0
	PriorityShip      = 1
	PriorityCharacter = 2
)

// DeployInstruction is one planned deployment: a card from hand and where
// it should go. An empty target means the card plays to the table itself,
// which is how locations deploy.
type DeployInstruction struct {
	CardBlueprintID    string
	CardName           string
	TargetLocationID   string
	TargetLocationName string
	Priority           int
	Reason             string

	PowerContribution   int
	DeployCost          int
	AbilityContribution int

	// A pilot planned aboard a ship deploying this same phase carries the
	// ship's blueprint here. The card id is bound once the ship actually
	// hits the table; until then the pilot falls back to BackupTargetID.
	AboardShipBlueprint string
	AboardShipCardID    string
	BackupTargetID      string
}

// DeployPlan is the deploy phase laid out in advance: what to put down, in
// what order, and how much force stays in reserve for battles.
type DeployPlan struct {
	Strategy     DeployStrategy
	Reason       string
	Instructions []*DeployInstruction

	// HoldBack lists blueprints considered and deliberately kept in hand.
	HoldBack map[string]bool

	TargetLocations []int

	TotalForceAvailable int
	ForceReserved       int
	ForceToSpend        int
	OriginalPlanCost    int
	DeploymentsMade     int

	// ForceAllowExtras opens the extra-action window even when the plan
	// never completed, e.g. after it went stale mid-phase.
	ForceAllowExtras bool
}

// IsComplete reports whether every planned deployment has happened. A plan
// that never had instructions is a hold-back, not a completed plan.
func (pl *DeployPlan) IsComplete() bool {
	return len(pl.Instructions) == 0 && pl.DeploymentsMade > 0
}

// ExtraForceBudget is the force spendable on unplanned actions once the
// plan is done, keeping the battle reserve intact.
func (pl *DeployPlan) ExtraForceBudget(currentForce int) int {
	if !pl.IsComplete() {
		return 0
	}
	return max(0, currentForce-pl.ForceReserved)
}

// AllowsExtraActions reports whether unplanned deploy-phase actions may
// spend force right now.
func (pl *DeployPlan) AllowsExtraActions(currentForce int) bool {
	return pl.IsComplete() && currentForce > pl.ForceReserved
}

// RecordDeployment ticks off the instruction for a blueprint that reached
// the table. Returns false when the card was not part of the plan.
func (pl *DeployPlan) RecordDeployment(blueprintID string) bool {
	for i, inst := range pl.Instructions {
		if inst.CardBlueprintID == blueprintID {
			pl.Instructions = append(pl.Instructions[:i], pl.Instructions[i+1:]...)
			pl.DeploymentsMade++
			return true
		}
	}
	return false
}

// LocationAnalysis is one location sized up as a deployment target.
type LocationAnalysis struct {
	Index      int
	Loc        *swccg.LocationInPlay
	Name       string
	IsSpace    bool
	IsSite     bool
	MyPower    int
	TheirPower int
	MyIcons    int
	TheirIcons int
	Contested  bool
	Score      float64
}

// DeployPlanner builds one deployment plan per turn at the start of the
// deploy phase and scores the server's offers against it afterwards.
type DeployPlanner struct {
	db  *swccg.CardDB
	log zerolog.Logger

	deployThreshold int
	battleReserve   int

	plan     *DeployPlan
	planTurn int
}

// NewDeployPlanner builds a planner with the stock tuning: a deployment
// package must bring 6 power and one force stays reserved for battle.
func NewDeployPlanner(db *swccg.CardDB, log zerolog.Logger) *DeployPlanner {
	return &DeployPlanner{
		db:              db,
		log:             log.With().Str("component", "deploy_planner").Logger(),
		deployThreshold: 6,
		battleReserve:   1,
	}
}

// Plan returns the current plan, or nil before the first deploy decision
// of the turn.
func (p *DeployPlanner) Plan() *DeployPlan { return p.plan }

// Reset drops the current plan. Call at turn start.
func (p *DeployPlanner) Reset() {
	p.plan = nil
	p.planTurn = 0
}

// InstallPlan replaces the current plan wholesale, as when a policy
// network rather than CreatePlan lays out the turn. EnsurePlan keeps the
// installed plan until the turn changes.
func (p *DeployPlanner) InstallPlan(plan *DeployPlan, turn int) {
	p.plan = plan
	p.planTurn = turn
}

// EnsurePlan returns the plan for the current turn, building it on the
// first deploy decision of the phase.
func (p *DeployPlanner) EnsurePlan(board *swccg.BoardState) *DeployPlan {
	if board == nil {
		return p.plan
	}
	if p.plan != nil && p.planTurn == board.TurnNumber {
		p.refreshAgainstHand(board)
		return p.plan
	}
	p.plan = p.CreatePlan(board)
	p.planTurn = board.TurnNumber
	return p.plan
}

// refreshAgainstHand drops instructions whose card already left the hand
// without a recorded deployment: grabbed by an interrupt, lost, or never
// offered by the server. A plan that aborts before any deployment unlocks
// extra actions instead of wedging the phase.
func (p *DeployPlanner) refreshAgainstHand(board *swccg.BoardState) {
	plan := p.plan
	if plan == nil || len(plan.Instructions) == 0 {
		return
	}
	inHand := make(map[string]bool, len(board.Hand))
	for _, c := range board.Hand {
		inHand[c.BlueprintID] = true
	}
	kept := plan.Instructions[:0]
	for _, inst := range plan.Instructions {
		if inHand[inst.CardBlueprintID] {
			kept = append(kept, inst)
		} else {
			p.log.Debug().
				Str("card", inst.CardName).
				Msg("Planned card left hand, dropping instruction")
		}
	}
	if len(kept) == len(plan.Instructions) {
		return
	}
	plan.Instructions = kept
	if len(kept) == 0 && plan.DeploymentsMade == 0 {
		plan.ForceAllowExtras = true
	}
}

// CreatePlan sizes up the table and lays out this turn's deployments.
func (p *DeployPlanner) CreatePlan(board *swccg.BoardState) *DeployPlan {
	force := board.My.ForcePile
	budget := max(0, force-p.battleReserve)
	threshold := p.effectiveThreshold(board)

	plan := &DeployPlan{
		Strategy:            DeployHoldBack,
		HoldBack:            make(map[string]bool),
		TotalForceAvailable: force,
		ForceReserved:       p.battleReserve,
	}

	analyses := p.analyzeLocations(board)
	ranked := make([]*LocationAnalysis, len(analyses))
	copy(ranked, analyses)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	for _, a := range ranked {
		if a.Score > 0 && len(plan.TargetLocations) < 4 {
			plan.TargetLocations = append(plan.TargetLocations, a.Index)
		}
	}

	hand := p.classifyHand(board)
	var notes []string

	// Locations always deploy: board development costs nothing and every
	// force icon compounds.
	for _, h := range hand.locations {
		h.used = true
		plan.Instructions = append(plan.Instructions, &DeployInstruction{
			CardBlueprintID: h.blueprint,
			CardName:        h.title,
			Priority:        PriorityLocation,
			Reason:          "Develop the board",
			DeployCost:      h.meta.DeployValue(),
		})
	}

	spent := 0
	spacePkg, spaceNotes := p.buildSpacePackage(hand, ranked, threshold, budget)
	notes = append(notes, spaceNotes...)
	if spacePkg != nil {
		p.commitPackage(plan, spacePkg)
		spent += spacePkg.cost
	}

	groundPkg, groundNotes := p.buildGroundPackage(hand, ranked, threshold, budget-spent)
	notes = append(notes, groundNotes...)
	if groundPkg != nil {
		p.commitPackage(plan, groundPkg)
		spent += groundPkg.cost
	}

	for _, h := range hand.deployables() {
		if !h.used {
			plan.HoldBack[h.blueprint] = true
		}
	}

	sort.SliceStable(plan.Instructions, func(i, j int) bool {
		return plan.Instructions[i].Priority < plan.Instructions[j].Priority
	})
	plan.OriginalPlanCost = spent
	plan.ForceToSpend = spent

	p.finishPlan(plan, spacePkg, groundPkg, threshold, notes)

	p.log.Info().
		Str("strategy", string(plan.Strategy)).
		Str("reason", plan.Reason).
		Int("instructions", len(plan.Instructions)).
		Int("threshold", threshold).
		Int("cost", spent).
		Int("force", force).
		Msg("Deploy plan built")
	return plan
}

// finishPlan names the plan's strategy from what the packages target.
func (p *DeployPlanner) finishPlan(plan *DeployPlan, spacePkg, groundPkg *deployPackage, threshold int, notes []string) {
	switch {
	case len(plan.Instructions) == 0:
		plan.Strategy = DeployHoldBack
		reason := fmt.Sprintf("holding back at threshold %d", threshold)
		if len(notes) > 0 {
			reason += ": " + strings.Join(notes, "; ")
		}
		plan.Reason = reason
	case spacePkg == nil && groundPkg == nil:
		plan.Strategy = DeployLocationsOnly
		plan.Reason = fmt.Sprintf("developing the board with %d location(s)", len(plan.Instructions))
	default:
		primary := groundPkg
		if primary == nil || (spacePkg != nil && spacePkg.target.Score > primary.target.Score) {
			primary = spacePkg
		}
		my, their := primary.target.MyPower, primary.target.TheirPower
		switch {
		case my > 0 && their > 0 && my < their:
			plan.Strategy = DeployReinforce
			plan.Reason = fmt.Sprintf("reinforcing %s: %d power joins %d against %d",
				primary.target.Name, primary.power, my, their)
		case their > 0 && my+primary.power-their >= 3:
			plan.Strategy = DeployOverwhelm
			plan.Reason = fmt.Sprintf("overwhelming %s: %d power against their %d",
				primary.target.Name, my+primary.power, their)
		default:
			plan.Strategy = DeployEstablish
			plan.Reason = fmt.Sprintf("establishing at %s with %d power",
				primary.target.Name, primary.power)
		}
	}
}

// effectiveThreshold relaxes the deploy threshold when the situation calls
// for urgency: an uncontested early board rewards fast development, and a
// shrinking life force cannot wait for the perfect hand.
func (p *DeployPlanner) effectiveThreshold(board *swccg.BoardState) int {
	t := p.deployThreshold
	contested := false
	for i, loc := range board.Locations {
		if loc == nil {
			continue
		}
		if board.MyPowerAt(i) > 0 && board.TheirPowerAt(i) > 0 {
			contested = true
			break
		}
	}
	if board.TurnNumber <= 2 && !contested {
		t -= 2
	}
	switch lf := board.My.LifeForce(); {
	case lf < 10:
		t -= 3
	case lf < 20:
		t -= 2
	case lf < 30:
		t -= 1
	}
	return max(1, t)
}

// analyzeLocations sizes up every real location on the table.
func (p *DeployPlanner) analyzeLocations(board *swccg.BoardState) []*LocationAnalysis {
	var out []*LocationAnalysis
	theirSide := board.MySide.Opposite()
	for i, loc := range board.Locations {
		if loc == nil || loc.Placeholder() {
			continue
		}
		a := &LocationAnalysis{
			Index:      i,
			Loc:        loc,
			Name:       loc.DisplayName(),
			IsSpace:    loc.IsSpace,
			IsSite:     loc.IsSite,
			MyPower:    board.MyPowerAt(i),
			TheirPower: board.TheirPowerAt(i),
		}
		if p.db != nil {
			if meta := p.db.Get(loc.BlueprintID); meta != nil {
				a.MyIcons = meta.ForceIconsFor(board.MySide)
				a.TheirIcons = meta.ForceIconsFor(theirSide)
			}
		}
		a.Contested = a.MyPower > 0 && a.TheirPower > 0
		a.Score = scoreLocationAnalysis(a)
		out = append(out, a)
	}
	return out
}

// scoreLocationAnalysis ranks a location as a deployment target. Opponent
// force icons dominate: presence there is where drains hurt them.
func scoreLocationAnalysis(a *LocationAnalysis) float64 {
	var score float64
	switch {
	case a.TheirIcons > 0:
		score = 50 + 25*float64(a.TheirIcons)
	case a.TheirPower > 0:
		switch {
		case a.MyPower > a.TheirPower:
			score = 15
		case a.MyPower > 0:
			score = 10
		default:
			score = -20
		}
	default:
		if a.MyPower > 0 {
			score = -50
		} else {
			score = -30
		}
	}
	// A thin enemy beachhead on a drain location is worth snuffing out.
	if a.TheirPower > 0 && a.TheirPower < 6 && a.MyPower == 0 && a.TheirIcons > 0 {
		score += 20
	}
	// Shore up fights we are losing before opening new fronts.
	if a.Contested && a.MyPower < a.TheirPower {
		score += 12 + float64(a.TheirPower-a.MyPower)
	}
	if a.MyPower > 7 && a.TheirPower < a.MyPower {
		score -= 15
	}
	if !a.IsSpace {
		score += 2
	}
	return score
}

// handCandidate is one hand card considered for the plan.
type handCandidate struct {
	cardID    string
	blueprint string
	title     string
	meta      *swccg.Card
	used      bool
}

type classifiedHand struct {
	locations  []*handCandidate
	characters []*handCandidate
	vehicles   []*handCandidate
	starships  []*handCandidate
}

func (h *classifiedHand) deployables() []*handCandidate {
	out := make([]*handCandidate, 0,
		len(h.locations)+len(h.characters)+len(h.vehicles)+len(h.starships))
	out = append(out, h.locations...)
	out = append(out, h.characters...)
	out = append(out, h.vehicles...)
	out = append(out, h.starships...)
	return out
}

func (p *DeployPlanner) classifyHand(board *swccg.BoardState) *classifiedHand {
	hand := &classifiedHand{}
	if p.db == nil {
		return hand
	}
	for _, c := range board.Hand {
		meta := p.db.Get(c.BlueprintID)
		if meta == nil {
			continue
		}
		cand := &handCandidate{
			cardID:    c.CardID,
			blueprint: c.BlueprintID,
			title:     meta.Title,
			meta:      meta,
		}
		switch {
		case meta.IsLocation():
			hand.locations = append(hand.locations, cand)
		case meta.IsCharacter():
			hand.characters = append(hand.characters, cand)
		case meta.IsVehicle():
			hand.vehicles = append(hand.vehicles, cand)
		case meta.IsStarship():
			hand.starships = append(hand.starships, cand)
		}
	}
	return hand
}

// deployPackage is a tentative set of cards aimed at one location.
type deployPackage struct {
	target *LocationAnalysis
	picks  []*planPick
	power  int
	cost   int
}

type planPick struct {
	cand     *handCandidate
	priority int
	reason   string
	aboardBP string
	backupID string
}

func (p *DeployPlanner) commitPackage(plan *DeployPlan, pkg *deployPackage) {
	for _, pick := range pkg.picks {
		pick.cand.used = true
		plan.Instructions = append(plan.Instructions, &DeployInstruction{
			CardBlueprintID:     pick.cand.blueprint,
			CardName:            pick.cand.title,
			TargetLocationID:    pkg.target.Loc.CardID,
			TargetLocationName:  pkg.target.Name,
			Priority:            pick.priority,
			Reason:              pick.reason,
			PowerContribution:   pick.cand.meta.PowerValue(),
			DeployCost:          pick.cand.meta.DeployValue(),
			AbilityContribution: pick.cand.meta.AbilityValue(),
			AboardShipBlueprint: pick.aboardBP,
			BackupTargetID:      pick.backupID,
		})
	}
}

// buildSpacePackage assembles ships, crewing unpiloted hulls from the hand,
// against the best space system that needs presence.
func (p *DeployPlanner) buildSpacePackage(hand *classifiedHand, ranked []*LocationAnalysis, threshold, budget int) (*deployPackage, []string) {
	if len(hand.starships) == 0 {
		return nil, nil
	}
	var notes []string
	var targets []*LocationAnalysis
	for _, a := range ranked {
		if a.IsSpace {
			targets = append(targets, a)
		}
	}
	if len(targets) == 0 {
		return nil, []string{"no space locations for the starships in hand"}
	}

	ships := append([]*handCandidate{}, hand.starships...)
	sort.SliceStable(ships, func(i, j int) bool {
		return ships[i].meta.PowerValue() > ships[j].meta.PowerValue()
	})

	for _, target := range targets {
		needed := max(threshold, target.TheirPower+1) - target.MyPower
		if needed <= 0 {
			continue
		}
		pkg := &deployPackage{target: target}
		tentative := make(map[*handCandidate]bool)
		for _, ship := range ships {
			if ship.used || tentative[ship] {
				continue
			}
			if !p.restrictionAllows(ship.meta, target.Loc) {
				continue
			}
			if ship.meta.HasPermanentPilot() {
				cost := ship.meta.DeployValue()
				if pkg.cost+cost > budget {
					notes = appendNote(notes, fmt.Sprintf("cannot afford %s (%d force)", ship.title, cost))
					continue
				}
				tentative[ship] = true
				pkg.picks = append(pkg.picks, &planPick{
					cand: ship, priority: PriorityShip,
					reason: "Control space at " + target.Name,
				})
				pkg.power += ship.meta.PowerValue()
				pkg.cost += cost
			} else {
				pilot := pickPilot(hand.characters, ship.meta, tentative)
				if pilot == nil {
					notes = appendNote(notes, ship.title+" is unpiloted with no pilot in hand")
					continue
				}
				cost := ship.meta.DeployValue() + pilot.meta.DeployValue()
				if pkg.cost+cost > budget {
					notes = appendNote(notes, fmt.Sprintf("cannot afford %s with crew (%d force)", ship.title, cost))
					continue
				}
				tentative[ship] = true
				tentative[pilot] = true
				pkg.picks = append(pkg.picks,
					&planPick{
						cand: ship, priority: PriorityShip,
						reason: "Control space at " + target.Name,
					},
					&planPick{
						cand: pilot, priority: PriorityCharacter,
						reason:   "Pilot for " + ship.title,
						aboardBP: ship.blueprint,
						backupID: target.Loc.CardID,
					})
				pkg.power += ship.meta.PowerValue() + pilot.meta.PowerValue()
				pkg.cost += cost
			}
			if pkg.power >= needed {
				break
			}
		}
		if pkg.power >= needed {
			return pkg, notes
		}
		if pkg.power > 0 {
			notes = appendNote(notes, fmt.Sprintf("best space package at %s is %d power, need %d",
				target.Name, pkg.power, needed))
		}
	}
	return nil, notes
}

// buildGroundPackage assembles characters and vehicles against the best
// ground site that needs presence. Characters deploy to sites, never
// systems; vehicles need an exterior site and a crew.
func (p *DeployPlanner) buildGroundPackage(hand *classifiedHand, ranked []*LocationAnalysis, threshold, budget int) (*deployPackage, []string) {
	candidates := make([]*handCandidate, 0, len(hand.characters)+len(hand.vehicles))
	candidates = append(candidates, hand.characters...)
	candidates = append(candidates, hand.vehicles...)
	if len(candidates) == 0 {
		return nil, nil
	}
	var notes []string
	var targets []*LocationAnalysis
	for _, a := range ranked {
		if !a.IsSpace && a.IsSite {
			targets = append(targets, a)
		}
	}
	if len(targets) == 0 {
		return nil, []string{"no ground sites on the table"}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].meta.PowerValue() > candidates[j].meta.PowerValue()
	})

	for _, target := range targets {
		needed := max(threshold, target.TheirPower+1) - target.MyPower
		if needed <= 0 {
			continue
		}
		pkg := &deployPackage{target: target}
		tentative := make(map[*handCandidate]bool)
		exterior := p.locationIsExterior(target)
		for _, c := range candidates {
			if c.used || tentative[c] {
				continue
			}
			if !p.restrictionAllows(c.meta, target.Loc) {
				continue
			}
			if c.meta.IsVehicle() {
				if !exterior {
					notes = appendNote(notes, c.title+" needs an exterior site")
					continue
				}
				if !c.meta.HasPermanentPilot() {
					pilot := pickPilot(hand.characters, c.meta, tentative)
					if pilot == nil {
						notes = appendNote(notes, c.title+" is unpiloted with no pilot in hand")
						continue
					}
					cost := c.meta.DeployValue() + pilot.meta.DeployValue()
					if pkg.cost+cost > budget {
						notes = appendNote(notes, fmt.Sprintf("cannot afford %s with crew (%d force)", c.title, cost))
						continue
					}
					tentative[c] = true
					tentative[pilot] = true
					pkg.picks = append(pkg.picks,
						&planPick{cand: c, priority: PriorityShip, reason: groundReason(target)},
						&planPick{
							cand: pilot, priority: PriorityCharacter,
							reason:   "Pilot for " + c.title,
							aboardBP: c.blueprint,
							backupID: target.Loc.CardID,
						})
					pkg.power += c.meta.PowerValue() + pilot.meta.PowerValue()
					pkg.cost += cost
					if pkg.power >= needed {
						break
					}
					continue
				}
				cost := c.meta.DeployValue()
				if pkg.cost+cost > budget {
					notes = appendNote(notes, fmt.Sprintf("cannot afford %s (%d force)", c.title, cost))
					continue
				}
				tentative[c] = true
				pkg.picks = append(pkg.picks, &planPick{
					cand: c, priority: PriorityShip, reason: groundReason(target),
				})
				pkg.power += c.meta.PowerValue()
				pkg.cost += cost
			} else {
				cost := c.meta.DeployValue()
				if pkg.cost+cost > budget {
					notes = appendNote(notes, fmt.Sprintf("cannot afford %s (%d force)", c.title, cost))
					continue
				}
				tentative[c] = true
				pkg.picks = append(pkg.picks, &planPick{
					cand: c, priority: PriorityCharacter, reason: groundReason(target),
				})
				pkg.power += c.meta.PowerValue()
				pkg.cost += cost
			}
			if pkg.power >= needed {
				break
			}
		}
		if pkg.power >= needed {
			return pkg, notes
		}
		if pkg.power > 0 {
			notes = appendNote(notes, fmt.Sprintf("best ground package at %s is %d power, need %d",
				target.Name, pkg.power, needed))
		}
	}
	return nil, notes
}

func groundReason(target *LocationAnalysis) string {
	switch {
	case target.TheirPower > 0 && target.MyPower > 0:
		return "Reinforce " + target.Name
	case target.TheirPower > 0:
		return "Contest " + target.Name
	}
	return "Establish at " + target.Name
}

// pickPilot finds a pilot for an unpiloted hull, preferring the matching
// pilot when the hand holds one.
func pickPilot(characters []*handCandidate, hull *swccg.Card, tentative map[*handCandidate]bool) *handCandidate {
	var best *handCandidate
	for _, c := range characters {
		if c.used || tentative[c] || !c.meta.IsPilot() {
			continue
		}
		if c.meta.MatchesTitle(hull.Title) || hull.MatchesTitle(c.meta.Title) {
			return c
		}
		if best == nil || c.meta.PowerValue() > best.meta.PowerValue() {
			best = c
		}
	}
	return best
}

// restrictionAllows checks a card's printed deploy restriction against a
// location's system and site names.
func (p *DeployPlanner) restrictionAllows(meta *swccg.Card, loc *swccg.LocationInPlay) bool {
	names := meta.DeployRestrictionTargets()
	if len(names) == 0 {
		return true
	}
	sys := strings.ToLower(loc.SystemName)
	site := strings.ToLower(loc.SiteName)
	for _, n := range names {
		n = strings.ToLower(n)
		if n != "" && (strings.Contains(sys, n) || strings.Contains(site, n)) {
			return true
		}
	}
	return false
}

// locationIsExterior resolves the site's exterior icon. Docking bays admit
// vehicles from either designation; unknown metadata errs open and lets the
// server reject the target.
func (p *DeployPlanner) locationIsExterior(a *LocationAnalysis) bool {
	if p.db == nil {
		return true
	}
	meta := p.db.Get(a.Loc.BlueprintID)
	if meta == nil {
		return true
	}
	return meta.IsExterior() || meta.IsDockingBay()
}

func appendNote(notes []string, note string) []string {
	if len(notes) >= 4 {
		return notes
	}
	return append(notes, note)
}

// InstructionFor returns the live instruction for a blueprint, or nil.
func (p *DeployPlanner) InstructionFor(blueprintID string) *DeployInstruction {
	if p.plan == nil || blueprintID == "" {
		return nil
	}
	for _, inst := range p.plan.Instructions {
		if inst.CardBlueprintID == blueprintID {
			return inst
		}
	}
	return nil
}

// CardScore rates deploying a card right now against the plan. Planned
// cards dominate, held and unplanned cards lose to passing, and once the
// plan completes cheap support cards may spend the leftover force.
func (p *DeployPlanner) CardScore(blueprintID string, currentForce int) (float64, string) {
	plan := p.plan
	if plan == nil {
		return 0, "no deploy plan yet"
	}
	for i, inst := range plan.Instructions {
		if inst.CardBlueprintID == blueprintID {
			return 100 - float64(i)*5, "planned: " + inst.Reason
		}
	}
	if plan.HoldBack[blueprintID] {
		return -80, "holding back this card"
	}
	if plan.IsComplete() || plan.ForceAllowExtras {
		var meta *swccg.Card
		if p.db != nil {
			meta = p.db.Get(blueprintID)
		}
		if meta != nil && (meta.IsCharacter() || meta.IsVehicle() || meta.IsStarship()) {
			return -70, meta.Type + " not allowed as extra action"
		}
		if !plan.ForceAllowExtras && !plan.AllowsExtraActions(currentForce) {
			return -60, "no force left above the battle reserve"
		}
		return 25, "EXTRA ACTION: plan complete with force to spare"
	}
	return -70, "not in deployment plan"
}

// LocationBonus rates a location offer against the plan's ranked targets.
func (p *DeployPlanner) LocationBonus(index int) float64 {
	plan := p.plan
	if plan == nil || len(plan.TargetLocations) == 0 {
		return 0
	}
	for i, idx := range plan.TargetLocations {
		if idx == index {
			return 50 - float64(i)*10
		}
	}
	return -20
}

// NoteCardPlayed ticks the plan when one of my cards reaches the table and
// binds the card id onto any pilot instruction waiting to board that ship.
func (p *DeployPlanner) NoteCardPlayed(cardID, blueprintID string) {
	plan := p.plan
	if plan == nil || blueprintID == "" {
		return
	}
	for _, inst := range plan.Instructions {
		if inst.AboardShipBlueprint == blueprintID && inst.AboardShipCardID == "" {
			inst.AboardShipCardID = cardID
			p.log.Debug().
				Str("pilot", inst.CardName).
				Str("ship_card", cardID).
				Msg("Bound pilot instruction to deployed ship")
		}
	}
	if plan.RecordDeployment(blueprintID) {
		p.log.Info().
			Str("blueprint", blueprintID).
			Int("remaining", len(plan.Instructions)).
			Msg("Planned deployment made")
	}
}
