package bot

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// brainDecisionTypes lists the decision types the brain evaluates.
// MULTIPLE_CHOICE prompts are fixed dialog boxes with known answers, so they
// go straight to the text table.
var brainDecisionTypes = map[string]bool{
	swccg.DecisionCardActionChoice: true,
	swccg.DecisionCardSelection:    true,
	swccg.DecisionArbitraryCards:   true,
	swccg.DecisionActionChoice:     true,
	swccg.DecisionInteger:          true,
}

// Response is the pipeline's verdict for one decision.
type Response struct {
	DecisionID string
	Value      string
	Reasoning  string
	Source     string // brain, fallback, emergency, loop, wedge, safety
	Skip       bool   // post nothing and let the channel advance
	Stuck      bool   // wedge persisted after breaking; the worker should escalate
}

// DecisionHandler turns decision requests into answers. Layer one asks the
// brain, layer two falls back to per-type rules, layer three manufactures an
// emergency answer, so something always comes out. Every layer's output runs
// through the same loop blocking, safety corrections and wedge check before
// it is submitted.
type DecisionHandler struct {
	brain   Brain
	tracker *Tracker
	log     zerolog.Logger
}

// NewDecisionHandler builds the pipeline around a brain. A nil brain skips
// layer one, which keeps the fallback rules testable on their own.
func NewDecisionHandler(brain Brain, log zerolog.Logger) *DecisionHandler {
	return &DecisionHandler{brain: brain, tracker: NewTracker(log), log: log}
}

// Tracker exposes the loop tracker for the worker's concede checks.
func (h *DecisionHandler) Tracker() *Tracker { return h.tracker }

// OnPhaseChange forwards phase transitions to the loop tracker.
func (h *DecisionHandler) OnPhaseChange(phase string) { h.tracker.OnPhaseChange(phase) }

// Reset clears per-game tracking, called between games.
func (h *DecisionHandler) Reset() { h.tracker.Clear() }

// Respond produces the answer for one decision. phaseCount counts phase
// changes since game start and gates the setup-only rules.
func (h *DecisionHandler) Respond(d *swccg.Decision, board *swccg.BoardState, strat *Strategy, phaseCount int) Response {
	h.tracker.UpdateState(board)
	if sev := h.tracker.Severity(); sev != "none" {
		h.log.Warn().Str("severity", sev).Int("repeats", h.tracker.LoopCount()).
			Str("type", d.Type).Msg("Decision loop active")
	}

	var value, reasoning, source string
	handled := false

	// A target selection that comes back after we answered it means the
	// chosen action cannot resolve; cancel instead of re-selecting.
	if d.CanPass() && h.tracker.ShouldCancelTargetSelection(d.Type, d.Text) {
		value, reasoning, source = "", "target selection bounced back, cancelling", "loop"
		handled = true
	}

	if !handled && h.brain != nil && board != nil && brainDecisionTypes[d.Type] {
		ctx := &DecisionContext{
			Board:    board,
			Strategy: strat,
			Decision: normalizeForBrain(d),
			Phase:    board.Phase,
			Turn:     board.TurnNumber,
			IsMyTurn: board.IsMyTurn(),
		}
		bd := h.brain.MakeDecision(ctx)
		// An empty choice is a deliberate pass, not a failure.
		value, reasoning, source = bd.Choice, bd.Reasoning, "brain"
		handled = true
	}

	if !handled {
		if v, why, ok := h.fallbackFor(d, phaseCount); ok {
			value, reasoning, source = v, why, "fallback"
			handled = true
		}
	}

	if !handled {
		safety := EmergencyResponse(d)
		value, reasoning, source = safety.Value, safety.Reason, "emergency"
		h.log.Warn().Str("type", d.Type).Str("reason", safety.Reason).
			Msg("No handler for decision, using emergency response")
	}

	if substituted, why := h.applyBlocked(d, value); substituted != value {
		h.log.Warn().Str("blocked", value).Str("substitute", substituted).Msg(why)
		value, reasoning, source = substituted, why, "loop"
	}

	if corrected, why := EnsureValidResponse(d, value); corrected != value {
		h.log.Warn().Str("from", value).Str("to", corrected).Msg(why)
		value, reasoning, source = corrected, why, "safety"
	}

	switch h.tracker.CheckWedge(d.Type, d.Text, d.ID, value) {
	case WedgeBreak:
		if d.Type == swccg.DecisionMultipleChoice {
			value = differentChoiceIndex(d, value)
			reasoning, source = "wedged multiple choice, random different option", "wedge"
		} else {
			// Post nothing; the server re-offers the decision on the next
			// update if it still wants one.
			return Response{DecisionID: d.ID, Skip: true, Source: "wedge",
				Reasoning: "wedged decision, skipping to let the channel advance"}
		}
	case WedgeStuck:
		return Response{DecisionID: d.ID, Skip: true, Stuck: true, Source: "wedge",
			Reasoning: "wedge persisted after breaking"}
	}

	if ok, warning := ValidateResponse(d, value); !ok {
		h.log.Warn().Str("value", value).Str("type", d.Type).Msg(warning)
	}

	// An empty answer to a cancel/done selection prompt abandons the action
	// that opened it; block that action so the next choice tries another.
	if value == "" {
		h.tracker.BlockLastActionOnCancel(d.Type, d.Text)
	}

	h.tracker.RecordDecision(d.Type, d.Text, d.ID, value)

	h.log.Info().Str("id", d.ID).Str("type", d.Type).Str("source", source).
		Str("value", value).Str("why", clip(reasoning, 120)).Msg("Decision answered")

	return Response{DecisionID: d.ID, Value: value, Reasoning: reasoning, Source: source}
}

// normalizeForBrain copies the decision with non-selectable rows removed, so
// the evaluators only rank options the server will accept. ACTION_CHOICE
// becomes CARD_ACTION_CHOICE: the rows carry the same shape and the
// evaluators treat them identically.
func normalizeForBrain(d *swccg.Decision) *swccg.Decision {
	norm := &swccg.Decision{
		ID:           d.ID,
		Type:         d.Type,
		Text:         d.Text,
		NoPass:       d.NoPass,
		Results:      d.Results,
		Min:          d.Min,
		Max:          d.Max,
		DefaultValue: d.DefaultValue,
	}
	if norm.Type == swccg.DecisionActionChoice {
		norm.Type = swccg.DecisionCardActionChoice
	}
	n := d.OptionCount()
	for i := 0; i < n; i++ {
		if !d.IsSelectable(i) {
			continue
		}
		if i < len(d.ActionIDs) {
			norm.ActionIDs = append(norm.ActionIDs, d.ActionIDs[i])
		}
		if i < len(d.ActionTexts) {
			norm.ActionTexts = append(norm.ActionTexts, d.ActionTexts[i])
		}
		if i < len(d.CardIDs) {
			norm.CardIDs = append(norm.CardIDs, d.CardIDs[i])
		}
		if i < len(d.Blueprints) {
			norm.Blueprints = append(norm.Blueprints, d.Blueprints[i])
		}
		norm.Selectable = append(norm.Selectable, true)
		if i < len(d.Preselected) {
			norm.Preselected = append(norm.Preselected, d.Preselected[i])
		}
	}
	return norm
}

// fallbackFor applies the per-type rules used when the brain is unavailable.
// The bool reports whether the type had a rule at all.
func (h *DecisionHandler) fallbackFor(d *swccg.Decision, phaseCount int) (string, string, bool) {
	switch d.Type {
	case swccg.DecisionMultipleChoice:
		v, why := fallbackMultipleChoice(d.Text)
		return v, why, true
	case swccg.DecisionCardSelection:
		if len(d.CardIDs) > 0 {
			return d.CardIDs[0], "first offered card", true
		}
		return "", "no cards offered, passing", true
	case swccg.DecisionCardActionChoice, swccg.DecisionActionChoice:
		v, why := fallbackActionChoice(d)
		return v, why, true
	case swccg.DecisionInteger:
		return strconv.Itoa(d.Max), "integer fallback, answering max", true
	case swccg.DecisionArbitraryCards:
		v, why := fallbackArbitraryCards(d, phaseCount)
		return v, why, true
	}
	return "", "", false
}

func fallbackMultipleChoice(text string) (string, string) {
	switch {
	case text == "Select OK to start game":
		return "0", "starting game"
	case strings.Contains(strings.ToLower(text), "do you want to deploy"):
		return "0", "required deploy prompt, answering yes"
	case strings.Contains(text, "Both players have chosen the same starting location"):
		return "1", "same starting location, letting opponent have it"
	case strings.Contains(text, "Do you want to allow game to be reverted"):
		return "0", "allowing revert"
	case strings.Contains(text, "Do you want to draw another sabacc card?"):
		return "0", "drawing another sabacc card"
	}
	return "0", "unknown multiple choice, first option"
}

// fallbackArbitraryCards picks the first selectable card. During setup the
// Main Power Generators site wins over anything offered before it.
func fallbackArbitraryCards(d *swccg.Decision, phaseCount int) (string, string) {
	isSetup := strings.Contains(d.Text, "Choose starting location") || phaseCount <= 1

	var first string
	for i, id := range d.CardIDs {
		if !d.IsSelectable(i) {
			continue
		}
		if first == "" {
			first = id
		}
		if isSetup && strings.Contains(d.Blueprint(i), "13_32") {
			return id, "forcing Main Power Generators as starting location"
		}
	}
	if first != "" {
		return first, "first selectable card"
	}
	return "", "no selectable cards, passing"
}

// fallbackActionChoice picks the first action, avoiding Reserve Deck deploys
// when an alternative exists: those loop when the deploy cannot resolve.
func fallbackActionChoice(d *swccg.Decision) (string, string) {
	if len(d.ActionIDs) == 0 {
		return "", "no actions offered, passing"
	}
	if len(d.ActionIDs) > 1 {
		fromReserve := false
		for _, text := range d.ActionTexts {
			if strings.Contains(text, "Reserve Deck") {
				fromReserve = true
				break
			}
		}
		if fromReserve {
			for i, text := range d.ActionTexts {
				if !strings.Contains(text, "Reserve Deck") && i < len(d.ActionIDs) {
					return d.ActionIDs[i], "avoiding Reserve Deck action"
				}
			}
		}
	}
	return d.ActionIDs[0], "first offered action"
}

// applyBlocked substitutes an answer the loop tracker has blocked. Mild
// loops take the first unblocked option; an escalated loop randomizes so the
// substitute cannot start the next loop.
func (h *DecisionHandler) applyBlocked(d *swccg.Decision, value string) (string, string) {
	blocked := h.tracker.BlockedResponses(d.Type, d.Text)
	if value == "" || !blocked[value] {
		return value, ""
	}
	var alternatives []string
	n := d.OptionCount()
	for i := 0; i < n; i++ {
		id := d.ActionID(i)
		if id == "" || id == value || blocked[id] || !d.IsSelectable(i) {
			continue
		}
		alternatives = append(alternatives, id)
	}
	if len(alternatives) == 0 {
		if d.CanPass() {
			return "", "every alternative blocked, passing"
		}
		return value, ""
	}
	if h.tracker.ShouldForceDifferentChoice() {
		return botPick(alternatives), "loop escalation, random unblocked option"
	}
	return alternatives[0], "response blocked by loop tracker, first unblocked option"
}

// differentChoiceIndex picks a random legal MULTIPLE_CHOICE index other than
// the current one. Without a results list the best available move is to
// toggle between the two indexes every dialog has.
func differentChoiceIndex(d *swccg.Decision, current string) string {
	n := len(d.Results)
	if n < 2 {
		if current == "0" {
			return "1"
		}
		return "0"
	}
	others := make([]string, 0, n-1)
	for i := 0; i < n; i++ {
		if idx := strconv.Itoa(i); idx != current {
			others = append(others, idx)
		}
	}
	return botPick(others)
}
