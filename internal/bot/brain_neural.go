package bot

import (
	"fmt"
	"strings"
	"sync"

	gonnx "github.com/advancedclimatesystems/gonnx"
	"github.com/rs/zerolog"
	"gorgonia.org/tensor"

	"github.com/SWCCGArena/rando/internal/bot/neural"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

// GonnxModelPath is the directory containing deploy_policy.onnx. Set at
// startup from the GONNX_MODEL_PATH config; empty falls back to "models".
var GonnxModelPath string

// neuralMinConfidence is the masked-softmax probability the policy must
// put on its chosen action before the brain adopts the decoded plan;
// anything less leaves the turn to the rules planner.
const neuralMinConfidence = 0.3

// NeuralBrain lays out the deploy phase with an ONNX policy network and
// delegates everything else to the static brain. Once per turn, at the
// first deploy decision, it encodes the board, runs the policy, and
// installs the decoded plan in place of the rules plan; the evaluator
// stack then scores the server's offers against it as usual. Low
// confidence or any inference failure falls through to the rules planner
// as if the network were not there.
type NeuralBrain struct {
	*StaticBrain

	policy *gonnx.Model
	mu     sync.Mutex
	log    zerolog.Logger

	planTurn int
	hist     neural.History
	heldTurn bool

	lastMyLife    int
	lastTheirLife int
}

// NewNeuralBrain loads the deploy policy from GonnxModelPath and wires it
// over a static brain.
func NewNeuralBrain(db *swccg.CardDB, log zerolog.Logger) (*NeuralBrain, error) {
	path := GonnxModelPath
	if path == "" {
		path = "models"
	}
	policy, err := gonnx.NewModelFromFile(path + "/deploy_policy.onnx")
	if err != nil {
		return nil, fmt.Errorf("load deploy policy: %w", err)
	}
	return &NeuralBrain{
		StaticBrain: NewStaticBrain(db, log),
		policy:      policy,
		log:         log.With().Str("component", "neural_brain").Logger(),
	}, nil
}

// newNeuralOrFallback builds the neural brain, dropping to the static
// brain when the model cannot load.
func newNeuralOrFallback(db *swccg.CardDB, log zerolog.Logger) Brain {
	b, err := NewNeuralBrain(db, log)
	if err != nil {
		log.Warn().Err(err).Msg("Neural brain requested but model load failed, using static")
		return NewStaticBrain(db, log)
	}
	return b
}

// MakeDecision runs the policy ahead of the first deploy decision of each
// of my turns, then scores the offer through the static evaluator stack.
func (n *NeuralBrain) MakeDecision(ctx *DecisionContext) BrainDecision {
	if n.policy != nil && ctx.IsMyTurn && ctx.Board != nil &&
		n.planTurn != ctx.Board.TurnNumber &&
		strings.Contains(strings.ToLower(ctx.Phase), "deploy") &&
		(ctx.Decision.Type == swccg.DecisionCardActionChoice ||
			ctx.Decision.Type == swccg.DecisionActionChoice) {
		n.ensurePolicyPlan(ctx.Board)
	}
	return n.StaticBrain.MakeDecision(ctx)
}

// ensurePolicyPlan encodes the board, picks an action, and installs the
// decoded plan. One inference per turn, win or lose: a failed run marks
// the turn done and the rules planner takes over.
func (n *NeuralBrain) ensurePolicyPlan(board *swccg.BoardState) {
	n.planTurn = board.TurnNumber

	logits := n.runPolicy(neural.EncodeBoard(board, n.hist))
	if logits == nil {
		return
	}
	action, confidence := neural.SelectAction(logits, neural.ActionMask(board))
	if confidence < neuralMinConfidence {
		n.log.Info().
			Int("action", action).
			Float64("confidence", float64(confidence)).
			Msg("Policy unsure, leaving the turn to the rules planner")
		return
	}

	plan := n.adoptPlan(neural.Decode(action, board, confidence), board)
	n.log.Info().
		Int("action", action).
		Float64("confidence", float64(confidence)).
		Str("strategy", string(plan.Strategy)).
		Int("placements", len(plan.Instructions)).
		Str("reason", plan.Reason).
		Msg("Adopted policy deploy plan")
}

// adoptPlan converts a decoded plan into the planner's shape, installs it
// for the rest of the turn, and tracks the hold streak the next encoding
// will see.
func (n *NeuralBrain) adoptPlan(dec neural.Plan, board *swccg.BoardState) *DeployPlan {
	plan := &DeployPlan{
		Strategy:            DeployStrategy(dec.Strategy),
		Reason:              dec.Reason,
		HoldBack:            make(map[string]bool),
		TotalForceAvailable: board.My.ForcePile,
		ForceReserved:       1,
	}
	if dec.TargetIndex >= 0 {
		plan.TargetLocations = []int{dec.TargetIndex}
	}
	cost := 0
	for _, pl := range dec.Placements {
		// Decoded placements share one rank under locations; within it the
		// decoder already ordered them strongest first.
		prio := PriorityShip
		if pl.TargetCardID == "" {
			prio = PriorityLocation
		}
		plan.Instructions = append(plan.Instructions, &DeployInstruction{
			CardBlueprintID:     pl.BlueprintID,
			CardName:            pl.CardName,
			TargetLocationID:    pl.TargetCardID,
			TargetLocationName:  pl.TargetName,
			Priority:            prio,
			Reason:              pl.Reason,
			PowerContribution:   pl.Power,
			DeployCost:          pl.DeployCost,
			AbilityContribution: pl.Ability,
		})
		cost += pl.DeployCost
	}
	plan.ForceToSpend = cost
	if dec.TargetIndex >= 0 {
		plan.OriginalPlanCost = cost
	}

	if plan.Strategy == DeployHoldBack {
		n.hist.ConsecutiveHoldTurns++
		n.heldTurn = true
	} else {
		n.hist.ConsecutiveHoldTurns = 0
	}

	n.planner.InstallPlan(plan, board.TurnNumber)
	return plan
}

// runPolicy feeds the encoded state through the model and returns the
// flat action logits, nil on any failure. The exported graph takes one
// "state" tensor of shape [1, StateDim] and yields "action_logits" of
// shape [1, NumActions].
func (n *NeuralBrain) runPolicy(state []float32) []float32 {
	stateTensor := tensor.New(
		tensor.WithShape(1, neural.StateDim),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(state),
	)

	n.mu.Lock()
	outputs, err := n.policy.Run(gonnx.Tensors{"state": stateTensor})
	n.mu.Unlock()
	if err != nil {
		n.log.Warn().Err(err).Msg("Policy run failed")
		return nil
	}

	out, ok := outputs["action_logits"]
	if !ok {
		for _, v := range outputs {
			out = v
			break
		}
	}
	if out == nil {
		n.log.Warn().Msg("Policy returned no output tensor")
		return nil
	}

	switch d := out.Data().(type) {
	case []float32:
		return d
	case []float64:
		f32 := make([]float32, len(d))
		for i, v := range d {
			f32[i] = float32(v)
		}
		return f32
	default:
		n.log.Warn().Str("type", fmt.Sprintf("%T", d)).Msg("Unexpected policy output type")
		return nil
	}
}

func (n *NeuralBrain) OnGameStart(opponentName, myDeck, theirDeckType string) {
	n.StaticBrain.OnGameStart(opponentName, myDeck, theirDeckType)
	n.planTurn = 0
	n.hist = neural.History{}
	n.heldTurn = false
	n.lastMyLife, n.lastTheirLife = 0, 0
}

// OnTurnStart settles last turn's hold: holding back while losing the
// life-force race faster than the opponent counts as a failed hold, which
// the next encoding sees.
func (n *NeuralBrain) OnTurnStart(turn int, board *swccg.BoardState) {
	n.StaticBrain.OnTurnStart(turn, board)
	if board == nil {
		return
	}
	myLife, theirLife := board.LifeForce(), board.TheirLifeForce()
	n.hist.HoldFailedLastTurn = n.heldTurn &&
		myLife-n.lastMyLife < theirLife-n.lastTheirLife
	n.heldTurn = false
	n.lastMyLife, n.lastTheirLife = myLife, theirLife
}

func (n *NeuralBrain) PersonalityName() string { return "Neural" }

func (n *NeuralBrain) WelcomeMessage(opponentName, deckName string) string {
	return fmt.Sprintf("Hello %s! GL HF! (NeuralBrain v1.0)", opponentName)
}
