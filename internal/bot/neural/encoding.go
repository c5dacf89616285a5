package neural

import (
	"sort"
	"strings"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// History carries the deploy policy's memory between turns. The board has
// no record of the brain's own choices, so the brain tracks how long it
// has been holding back and whether the last hold lost tempo.
type History struct {
	ConsecutiveHoldTurns int
	HoldFailedLastTurn   bool
}

// EncodeBoard flattens a board into the [StateDim] vector the deploy
// policy was trained on. Values scale to roughly [0, 1]; differentials
// clamp to [-1, 1]. Missing locations and empty card slots stay zero.
func EncodeBoard(board *swccg.BoardState, hist History) []float32 {
	f := make([]float32, StateDim)
	encodeGlobals(board, hist, f)
	encodeLocations(board, f)
	encodeHand(board, f)
	return f
}

func encodeGlobals(board *swccg.BoardState, hist History, f []float32) {
	f[GlobTurn] = norm(float64(board.TurnNumber), 20)
	f[GlobMyForce] = norm(float64(board.My.ForcePile), 20)
	f[GlobMyUsed] = norm(float64(board.My.UsedPile), 20)
	f[GlobMyReserve] = norm(float64(board.My.ReserveDeck), 60)
	f[GlobTheirForce] = norm(float64(board.Their.ForcePile), 20)
	f[GlobTheirUsed] = norm(float64(board.Their.UsedPile), 20)
	f[GlobTheirReserve] = norm(float64(board.Their.ReserveDeck), 60)

	myLife := board.My.LifeForce()
	theirLife := board.Their.LifeForce()
	f[GlobMyLife] = norm(float64(myLife), 60)
	f[GlobTheirLife] = norm(float64(theirLife), 60)
	f[GlobLifeDiff] = clip(float64(myLife-theirLife), 30)

	if board.MySide == swccg.SideDark {
		f[GlobSideDark] = 1
	}
	if board.MySide == swccg.SideLight {
		f[GlobSideLight] = 1
	}

	f[GlobHandSize] = norm(float64(len(board.Hand)), 16)
	f[GlobTheirHand] = norm(float64(board.Their.Hand), 16)

	myPower := board.TotalMyPower()
	theirPower := board.TotalTheirPower()
	f[GlobMyPower] = norm(float64(myPower), 50)
	f[GlobTheirPower] = norm(float64(theirPower), 50)
	f[GlobPowerDiff] = clip(float64(myPower-theirPower), 30)

	myGen, theirGen := board.LightGeneration, board.DarkGeneration
	if board.MySide == swccg.SideDark {
		myGen, theirGen = theirGen, myGen
	}
	f[GlobMyGen] = norm(float64(myGen), 10)
	f[GlobTheirGen] = norm(float64(theirGen), 10)

	gap, contested, bleed := drainStats(board)
	f[GlobDrainGap] = clip(float64(gap), 5)
	f[GlobContested] = norm(float64(contested), 5)
	f[GlobBleed] = norm(float64(bleed), 5)

	phase := strings.ToUpper(board.Phase)
	for i, name := range PhaseNames {
		if phase == name {
			f[GlobPhase+i] = 1
		}
	}

	if board.IsMyTurn() {
		f[GlobMyTurn] = 1
	}
	f[GlobHoldStreak] = norm(float64(hist.ConsecutiveHoldTurns), 3)
	if hist.HoldFailedLastTurn {
		f[GlobHoldFailed] = 1
	}
}

func encodeLocations(board *swccg.BoardState, f []float32) {
	db := board.DB()
	for i := 0; i < MaxLocations && i < len(board.Locations); i++ {
		loc := board.Locations[i]
		if loc == nil {
			continue
		}
		base := OffLocations + i*LocationFeatures
		f[base+LocExists] = 1

		ground := loc.IsGround || loc.IsSite
		if ground {
			f[base+LocGround] = 1
		}
		if loc.IsSpace {
			f[base+LocSpace] = 1
		}

		meta := db.Get(loc.BlueprintID)
		if meta != nil && meta.IsInterior() {
			f[base+LocInterior] = 1
		}
		// Systems and unknown locations count as exterior; only a site's
		// own icons can mark it interior-only.
		exterior := true
		if loc.IsSite && meta != nil {
			exterior = meta.IsExterior()
		}
		if exterior {
			f[base+LocExterior] = 1
		}

		myPower := board.MyPowerAt(i)
		theirPower := board.TheirPowerAt(i)
		f[base+LocMyPower] = norm(float64(myPower), 20)
		f[base+LocTheirPower] = norm(float64(theirPower), 20)
		f[base+LocPowerDiff] = clip(float64(myPower-theirPower), 15)

		myIcons := locationIcons(meta, board.MySide)
		theirIcons := locationIcons(meta, board.MySide.Opposite())
		f[base+LocMyIcons] = norm(float64(myIcons), 3)
		f[base+LocTheirIcons] = norm(float64(theirIcons), 3)

		iControl := myPower > 0 && theirPower == 0
		theyControl := theirPower > 0 && myPower == 0
		if iControl {
			f[base+LocIControl] = 1
		}
		if theyControl {
			f[base+LocTheyControl] = 1
		}
		if myPower > 0 && theirPower > 0 {
			f[base+LocContested] = 1
		}
		if iControl && theirIcons > 0 {
			f[base+LocAmDraining] = 1
		}
		if theyControl && myIcons > 0 {
			f[base+LocBeingDrained] = 1
		}

		f[base+LocMyCards] = norm(float64(len(loc.MyCards)), 5)
		f[base+LocTheirCards] = norm(float64(len(loc.TheirCards)), 5)

		if ground || loc.IsSpace {
			f[base+LocCanDeploy] = 1
		}
		if loc.IsSite {
			f[base+LocIsSite] = 1
		} else {
			f[base+LocIsSystem] = 1
		}
		if meta != nil {
			f[base+LocParsec] = norm(float64(meta.ParsecValue()), 10)
		}
		if exterior || loc.IsSpace {
			f[base+LocBattleground] = 1
		}
	}
}

func encodeHand(board *swccg.BoardState, f []float32) {
	hand := resolveHand(board)
	force := board.My.ForcePile

	var (
		groundPower, spacePower                    int
		characters, starships, vehicles, locations int
		pilots, mains                              int
		affordGround, affordSpace                  int
	)
	minDeploy, maxDeploy := 99, 0

	deployable := make([]handCard, 0, len(hand))
	for _, c := range hand {
		afford := c.deploy <= force
		if c.deploy > 0 {
			minDeploy = min(minDeploy, c.deploy)
			maxDeploy = max(maxDeploy, c.deploy)
		}
		switch {
		case c.isCharacter:
			characters++
			groundPower += c.power
			if afford {
				affordGround++
			}
		case c.isStarship:
			starships++
			spacePower += c.power
			if afford {
				affordSpace++
			}
		case c.isVehicle:
			vehicles++
			groundPower += c.power
			if afford {
				affordGround++
			}
		case c.isLocation:
			locations++
		}
		if c.isPilot {
			pilots++
		}
		if c.ability >= 4 {
			mains++
		}
		if (c.isCharacter || c.isStarship || c.isVehicle) && c.power > 0 {
			deployable = append(deployable, c)
		}
	}
	if minDeploy == 99 {
		minDeploy = 0
	}

	sort.SliceStable(deployable, func(i, j int) bool {
		if deployable[i].power != deployable[j].power {
			return deployable[i].power > deployable[j].power
		}
		return deployable[i].deploy < deployable[j].deploy
	})

	base := OffHandAgg
	f[base+HandGroundPower] = norm(float64(groundPower), 30)
	f[base+HandSpacePower] = norm(float64(spacePower), 30)
	f[base+HandCharacters] = norm(float64(characters), 8)
	f[base+HandStarships] = norm(float64(starships), 5)
	f[base+HandVehicles] = norm(float64(vehicles), 3)
	f[base+HandLocations] = norm(float64(locations), 3)
	f[base+HandPilots] = norm(float64(pilots), 4)
	f[base+HandMains] = norm(float64(mains), 3)
	f[base+HandMinDeploy] = norm(float64(minDeploy), 10)
	f[base+HandMaxDeploy] = norm(float64(maxDeploy), 10)
	f[base+HandAffordGround] = norm(float64(affordGround), 5)
	f[base+HandAffordSpace] = norm(float64(affordSpace), 3)
	f[base+HandForce] = norm(float64(force), 15)
	f[base+HandDeployable] = norm(float64(len(deployable)), 8)

	for i := 0; i < MaxCardsEncoded && i < len(deployable); i++ {
		encodeCard(f, OffCards+i*PerCardFeatures, deployable[i], force)
	}
}

func encodeCard(f []float32, base int, c handCard, force int) {
	f[base+CardExists] = 1
	f[base+CardPower] = norm(float64(c.power), 10)
	f[base+CardDeploy] = norm(float64(c.deploy), 10)
	f[base+CardAbility] = norm(float64(c.ability), 6)
	if c.isCharacter {
		f[base+CardIsChar] = 1
	}
	if c.isStarship {
		f[base+CardIsShip] = 1
	}
	if c.isVehicle {
		f[base+CardIsVehicle] = 1
	}
	if c.isPilot {
		f[base+CardIsPilot] = 1
	}
	if c.isCharacter || c.isVehicle {
		f[base+CardGround] = 1
	}
	if c.isStarship {
		f[base+CardSpace] = 1
	}
	afford := c.deploy <= force
	if afford {
		f[base+CardAffordable] = 1
	}
	if c.isUnique {
		f[base+CardUnique] = 1
	}
	f[base+CardEfficiency] = norm(float64(c.power)/float64(max(c.deploy, 1)), 2)
	f[base+CardDestiny] = norm(float64(c.destiny), 7)
	f[base+CardForfeit] = norm(float64(c.forfeit), 8)
	if afford {
		remaining := float64(force-c.deploy) / float64(max(force, 1))
		f[base+CardRemaining] = float32(max(0, min(remaining, 1)))
	}
}

// ActionMask reports which of the NumActions the board currently allows.
// Holding back is always legal; location actions need an affordable hand
// card of the matching domain, and only the first MaxLocations slots are
// directly addressable.
func ActionMask(board *swccg.BoardState) [NumActions]bool {
	var mask [NumActions]bool
	mask[ActionHoldBack] = true

	force := board.My.ForcePile
	var hasGround, hasSpace, hasLocation bool
	for _, c := range resolveHand(board) {
		if c.deploy <= force {
			if c.isCharacter || c.isVehicle {
				hasGround = true
			} else if c.isStarship {
				hasSpace = true
			}
		}
		if c.isLocation {
			hasLocation = true
		}
	}

	for i := 0; i < MaxLocations && i < len(board.Locations); i++ {
		loc := board.Locations[i]
		if loc == nil {
			continue
		}
		if (loc.IsGround || loc.IsSite) && hasGround {
			mask[ActionDeployLocStart+i] = true
		} else if loc.IsSpace && hasSpace {
			mask[ActionDeployLocStart+i] = true
		}
	}

	if hasLocation {
		mask[ActionDeployLocationCard] = true
	}
	if hasGround {
		mask[ActionEstablishGround] = true
		mask[ActionReinforceBest] = true
	}
	if hasSpace {
		mask[ActionEstablishSpace] = true
		mask[ActionReinforceBest] = true
	}
	return mask
}

// drainStats sums the force-drain economy: our drain minus theirs, how
// many locations are contested, and how many are bleeding us.
func drainStats(board *swccg.BoardState) (gap, contested, bleed int) {
	db := board.DB()
	for i, loc := range board.Locations {
		if loc == nil {
			continue
		}
		meta := db.Get(loc.BlueprintID)
		myPower := board.MyPowerAt(i)
		theirPower := board.TheirPowerAt(i)
		myIcons := locationIcons(meta, board.MySide)
		theirIcons := locationIcons(meta, board.MySide.Opposite())

		if myPower > 0 && theirPower > 0 {
			contested++
		}
		if myPower > 0 && theirPower == 0 && theirIcons > 0 {
			gap += theirIcons
		}
		if theirPower > 0 && myPower == 0 && myIcons > 0 {
			gap -= myIcons
			bleed++
		}
	}
	return gap, contested, bleed
}

func locationIcons(meta *swccg.Card, side swccg.Side) int {
	if meta == nil {
		return 0
	}
	return meta.ForceIconsFor(side)
}

// handCard is one hand card resolved against the registry, carrying the
// stats the encoder and decoder read.
type handCard struct {
	blueprintID string
	title       string
	power       int
	deploy      int
	ability     int
	destiny     int
	forfeit     int

	isCharacter bool
	isStarship  bool
	isVehicle   bool
	isLocation  bool
	isPilot     bool
	isUnique    bool
}

// resolveHand reads the hand through the registry, falling back to the
// stats denormalized onto the card instance when a blueprint is unknown.
// Characters with ability 4 or higher count as unique either way.
func resolveHand(board *swccg.BoardState) []handCard {
	db := board.DB()
	out := make([]handCard, 0, len(board.Hand))
	for _, c := range board.Hand {
		hc := handCard{
			blueprintID: c.BlueprintID,
			title:       c.Title,
			power:       c.Power,
			deploy:      c.Deploy,
			ability:     c.Ability,
			forfeit:     c.Forfeit,
		}
		typ := c.Type
		if meta := db.Get(c.BlueprintID); meta != nil {
			typ = meta.Type
			hc.title = meta.Title
			hc.power = meta.PowerValue()
			hc.deploy = meta.DeployValue()
			hc.ability = meta.AbilityValue()
			hc.destiny = meta.DestinyValue()
			hc.forfeit = meta.ForfeitValue()
			hc.isPilot = meta.IsPilot()
			hc.isUnique = meta.Unique
		}
		switch typ {
		case "Character":
			hc.isCharacter = true
		case "Starship":
			hc.isStarship = true
		case "Vehicle":
			hc.isVehicle = true
		case "Location":
			hc.isLocation = true
		}
		if hc.ability >= 4 {
			hc.isUnique = true
		}
		out = append(out, hc)
	}
	return out
}

// norm scales v down and caps it at 1. Values below zero pass through, so
// icon-encoded negative power keeps its sign.
func norm(v, scale float64) float32 {
	return float32(min(v/scale, 1))
}

// clip scales v down and clamps it to [-1, 1].
func clip(v, scale float64) float32 {
	return float32(max(-1, min(v/scale, 1)))
}
