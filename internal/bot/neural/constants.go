package neural

// Segment sizes within the state vector.
const (
	GlobalFeatures        = 64
	MaxLocations          = 16
	LocationFeatures      = 24
	HandAggregateFeatures = 32
	MaxCardsEncoded       = 8
	PerCardFeatures       = 20
)

// StateDim is the length of the state vector the deploy policy consumes:
// 64 global features, 16 location slots of 24 features each, 32 hand
// aggregate features, and 8 card slots of 20 features each.
const StateDim = GlobalFeatures + MaxLocations*LocationFeatures +
	HandAggregateFeatures + MaxCardsEncoded*PerCardFeatures

// Segment offsets within the state vector: globals at 0, locations at 64,
// hand aggregates at 448, the per-card block at 480.
const (
	OffGlobal    = 0
	OffLocations = GlobalFeatures
	OffHandAgg   = OffLocations + MaxLocations*LocationFeatures
	OffCards     = OffHandAgg + HandAggregateFeatures
)

// Global feature indices, relative to OffGlobal. Scalar features divide by
// a fixed scale and cap at 1; differential features clamp to [-1, 1].
// Slots 31 and up are padding reserved for future features.
const (
	// Tempo and resources: turn /20, force and used piles /20, reserves /60.
	GlobTurn         = 0
	GlobMyForce      = 1
	GlobMyUsed       = 2
	GlobMyReserve    = 3
	GlobTheirForce   = 4
	GlobTheirUsed    = 5
	GlobTheirReserve = 6

	// Life force /60 and its differential /30.
	GlobMyLife    = 7
	GlobTheirLife = 8
	GlobLifeDiff  = 9

	// Side one-hot and hand sizes /16.
	GlobSideDark  = 10
	GlobSideLight = 11
	GlobHandSize  = 12
	GlobTheirHand = 13

	// Table power /50 with differential /30, force generation /10.
	GlobMyPower    = 14
	GlobTheirPower = 15
	GlobPowerDiff  = 16
	GlobMyGen      = 17
	GlobTheirGen   = 18

	// Drain economy: gap /5 clamped, contested and bleeding locations /5.
	GlobDrainGap  = 19
	GlobContested = 20
	GlobBleed     = 21

	// Phase one-hot block in PhaseNames order, then turn ownership and the
	// brain's own hold history (streak /3).
	GlobPhase      = 22
	GlobMyTurn     = 28
	GlobHoldStreak = 29
	GlobHoldFailed = 30
)

// PhaseNames orders the phase one-hot block starting at GlobPhase.
var PhaseNames = [6]string{"DEPLOY", "BATTLE", "MOVE", "DRAW", "CONTROL", "ACTIVATE"}

// Location feature indices within one LocationFeatures-wide slot. Power
// scales /20 with differential /15, icons /3, card counts /5, parsec /10.
// Slots 22 and 23 are padding.
const (
	LocExists   = 0
	LocGround   = 1
	LocSpace    = 2
	LocInterior = 3
	LocExterior = 4

	LocMyPower    = 5
	LocTheirPower = 6
	LocPowerDiff  = 7
	LocMyIcons    = 8
	LocTheirIcons = 9

	LocIControl     = 10
	LocTheyControl  = 11
	LocContested    = 12
	LocAmDraining   = 13
	LocBeingDrained = 14

	LocMyCards      = 15
	LocTheirCards   = 16
	LocCanDeploy    = 17
	LocIsSite       = 18
	LocIsSystem     = 19
	LocParsec       = 20
	LocBattleground = 21
)

// Hand aggregate indices, relative to OffHandAgg: summed power /30, type
// counts /8 /5 /3 /3, pilots /4, mains (ability 4+) /3, deploy-cost spread
// /10, affordable counts /5 and /3, force /15, deployables /8. Slots 14
// and up are padding.
const (
	HandGroundPower  = 0
	HandSpacePower   = 1
	HandCharacters   = 2
	HandStarships    = 3
	HandVehicles     = 4
	HandLocations    = 5
	HandPilots       = 6
	HandMains        = 7
	HandMinDeploy    = 8
	HandMaxDeploy    = 9
	HandAffordGround = 10
	HandAffordSpace  = 11
	HandForce        = 12
	HandDeployable   = 13
)

// Per-card feature indices within one PerCardFeatures-wide slot, filled
// for the top MaxCardsEncoded deployable cards sorted strongest first.
// Stats scale /10, ability /6, destiny /7, forfeit /8, efficiency (power
// per deploy) /2. Slots 16 through 19 are padding.
const (
	CardExists     = 0
	CardPower      = 1
	CardDeploy     = 2
	CardAbility    = 3
	CardIsChar     = 4
	CardIsShip     = 5
	CardIsVehicle  = 6
	CardIsPilot    = 7
	CardGround     = 8
	CardSpace      = 9
	CardAffordable = 10
	CardUnique     = 11
	CardEfficiency = 12
	CardDestiny    = 13
	CardForfeit    = 14
	CardRemaining  = 15
)

// NumActions is the size of the policy head's action space.
const NumActions = 21

// Action indices. Actions 1 through 16 deploy to the location slot at
// index action-ActionDeployLocStart; the rest are meta-actions resolved
// against the board at decode time.
const (
	ActionHoldBack           = 0
	ActionDeployLocStart     = 1
	ActionDeployLocEnd       = 16
	ActionDeployLocationCard = 17
	ActionEstablishGround    = 18
	ActionEstablishSpace     = 19
	ActionReinforceBest      = 20
)
