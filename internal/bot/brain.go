package bot

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// BrainDecision is a brain's answer to one server decision: the value to
// submit, the reasoning line for the log, and how sure the brain is (0-1).
type BrainDecision struct {
	Choice     string
	Reasoning  string
	Confidence float64
}

// Brain makes the game decisions. Implementations are swappable: the static
// evaluator stack, the astrogator personality on top of it, or the neural
// deploy planner. The worker only ever talks to this interface.
//
// MakeDecision must not block on the network; everything it needs is in the
// context. Lifecycle hooks are best-effort and may be called with a nil
// board early in a game.
type Brain interface {
	MakeDecision(ctx *DecisionContext) BrainDecision

	OnGameStart(opponentName, myDeck, theirDeckType string)
	OnGameEnd(won bool, board *swccg.BoardState)
	OnTurnStart(turn int, board *swccg.BoardState)

	PersonalityName() string
	WelcomeMessage(opponentName, deckName string) string
	GameEndMessage(won bool) string
}

// CardPlayObserver is implemented by brains that want to see cards enter
// play, e.g. to tick off a deployment plan. The worker type-asserts for it
// when folding PUT_CARD_IN_PLAY events.
type CardPlayObserver interface {
	OnCardPlayed(cardID, blueprintID string, mine bool)
}

// defaultWelcomeMessage is the greeting used by brains without their own.
func defaultWelcomeMessage(opponentName string) string {
	return fmt.Sprintf("Hello %s! Good luck!", opponentName)
}

// BrainForName builds the brain a config name asks for. The neural brain
// needs its model on disk and falls back to static when loading fails;
// unknown names get the static brain so a config typo still plays games.
func BrainForName(name string, db *swccg.CardDB, stats AstrogatorStats, log zerolog.Logger) Brain {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "astrogator":
		return NewAstrogatorBrain(db, stats, log)
	case "neural":
		return newNeuralOrFallback(db, log)
	case "", "static":
		return NewStaticBrain(db, log)
	default:
		log.Warn().Str("brain", name).Msg("Unknown brain name, using static")
		return NewStaticBrain(db, log)
	}
}
