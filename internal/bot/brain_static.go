package bot

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// StaticBrain is the default rule-based brain. It runs the evaluator stack
// over each decision and submits the highest-scoring option. It plays
// reasonably well without any model or lookahead.
type StaticBrain struct {
	combined *CombinedEvaluator
	move     *MoveEvaluator
	planner  *DeployPlanner
	log      zerolog.Logger

	opponentName  string
	myDeck        string
	theirDeckType string
	decisionsMade int
}

// NewStaticBrain wires the evaluator stack. Order matters twice over: ties in
// the combined score go to the earlier evaluator, and the catch-all text
// evaluator has to run after the specialists so their rankings win ties.
func NewStaticBrain(db *swccg.CardDB, log zerolog.Logger) *StaticBrain {
	move := NewMoveEvaluator()
	planner := NewDeployPlanner(db, log)
	return &StaticBrain{
		combined: NewCombinedEvaluator(log,
			NewDeployEvaluator(db, planner),
			NewCardSelectionEvaluator(db),
			NewBattleEvaluator(),
			move,
			NewDrawEvaluator(),
			NewActionTextEvaluator(),
			NewForceActivationEvaluator(),
			NewPassEvaluator(),
		),
		move:    move,
		planner: planner,
		log:     log.With().Str("brain", "static").Logger(),
	}
}

// MakeDecision ranks the options and returns the best one. When no evaluator
// produces a ranking it falls back to the first option rather than stalling
// the game.
func (s *StaticBrain) MakeDecision(ctx *DecisionContext) BrainDecision {
	// The first action decision of my deploy phase lays out the turn's
	// deployments; every later offer is scored against that plan.
	if ctx.IsMyTurn && ctx.Board != nil &&
		strings.Contains(strings.ToLower(ctx.Phase), "deploy") &&
		(ctx.Decision.Type == swccg.DecisionCardActionChoice ||
			ctx.Decision.Type == swccg.DecisionActionChoice) {
		s.planner.EnsurePlan(ctx.Board)
	}

	best := s.combined.EvaluateDecision(ctx)
	if best == nil {
		if ctx.Decision.OptionCount() > 0 {
			return BrainDecision{
				Choice:     ctx.Decision.ActionID(0),
				Reasoning:  "Fallback: Selected first option (evaluators failed)",
				Confidence: 0.5,
			}
		}
		return BrainDecision{
			Choice:     "",
			Reasoning:  "Fallback: No options available, passing",
			Confidence: 0.0,
		}
	}

	s.decisionsMade++

	// Remember moved cards so the move evaluator stops proposing the same
	// shuffle every decision of the turn.
	if best.Type == ActionMove && best.ActionID != "" {
		if cardID := cardIDForAction(ctx.Decision, best.ActionID); cardID != "" {
			s.move.TrackMove(cardID)
		}
	}

	reasoning := best.DisplayText
	if len(best.Reasoning) > 0 {
		reasoning += " | " + best.ReasoningText()
	}
	s.log.Debug().
		Str("action", best.DisplayText).
		Float64("score", best.Score).
		Msg("StaticBrain chose")

	return BrainDecision{
		Choice:     best.ActionID,
		Reasoning:  reasoning,
		Confidence: clampConfidence(best.Score / 100.0),
	}
}

// cardIDForAction finds the card behind a chosen action ID.
func cardIDForAction(d *swccg.Decision, actionID string) string {
	for i := 0; i < d.OptionCount(); i++ {
		if d.ActionID(i) == actionID {
			return d.CardID(i)
		}
	}
	return ""
}

func clampConfidence(c float64) float64 {
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

func (s *StaticBrain) OnGameStart(opponentName, myDeck, theirDeckType string) {
	s.opponentName = opponentName
	s.myDeck = myDeck
	s.theirDeckType = theirDeckType
	s.decisionsMade = 0
	s.move.ResetPendingMoves()
	s.planner.Reset()
	s.log.Info().
		Str("opponent", opponentName).
		Str("their_deck", theirDeckType).
		Msg("Game started")
}

func (s *StaticBrain) OnGameEnd(won bool, board *swccg.BoardState) {
	s.log.Info().
		Bool("won", won).
		Int("decisions", s.decisionsMade).
		Msg("Game ended")
}

func (s *StaticBrain) OnTurnStart(turn int, board *swccg.BoardState) {
	s.move.ResetPendingMoves()
	s.planner.Reset()
	if board != nil {
		s.log.Debug().
			Int("turn", turn).
			Int("my_power", board.TotalMyPower()).
			Int("their_power", board.TotalTheirPower()).
			Int("force", board.My.ForcePile).
			Msg("Turn start")
	}
}

// OnCardPlayed ticks the deploy plan when one of my cards reaches the
// table; opponent cards carry no plan state.
func (s *StaticBrain) OnCardPlayed(cardID, blueprintID string, mine bool) {
	if mine {
		s.planner.NoteCardPlayed(cardID, blueprintID)
	}
}

func (s *StaticBrain) PersonalityName() string { return "Static" }

func (s *StaticBrain) WelcomeMessage(opponentName, deckName string) string {
	return fmt.Sprintf("Hello %s! GL HF! (StaticBrain v1.0)", opponentName)
}

func (s *StaticBrain) GameEndMessage(won bool) string {
	if won {
		return "GG! Victory achieved."
	}
	return "GG! Well played."
}
