package bot

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Escalation thresholds for repeated decision sequences. A two-decision loop
// takes four decisions to show up at all, so the randomize threshold is low.
const (
	loopRandomizeThreshold = 2
	loopForceDifferent     = 6
	loopCritical           = 12
)

// Wedge thresholds. Submitting the identical (id, type, prompt, answer)
// tuple a third consecutive time means the answer is not advancing the game
// and repeating it never will.
const (
	wedgeThreshold     = 3
	wedgePersistWindow = 3
)

// WedgeVerdict classifies a candidate answer against the repeat rule.
type WedgeVerdict int

const (
	// WedgeNone means the answer is not a consecutive repeat.
	WedgeNone WedgeVerdict = iota
	// WedgeBreak means the answer would wedge; the caller must pick a
	// different option or skip the decision.
	WedgeBreak
	// WedgeStuck means breaking did not help for a full window; the caller
	// should escalate.
	WedgeStuck
)

// TrackedDecision is one answered decision in the rolling history.
type TrackedDecision struct {
	Type     string
	Text     string
	ID       string
	Response string
	Key      string
}

type seqEntry struct {
	key       string
	response  string
	stateHash string
}

// Tracker watches the decision/response stream for multi-decision loops.
//
// A loop usually spans several decisions: "choose action" answers with an
// action, the follow-up target selection cancels, and the server re-offers
// the same action. Single-decision repeat counting misses that, so the
// tracker matches the tail of the response sequence against itself at
// periods of two, three and four, and blocks the responses involved once a
// repeat is confirmed. Pass responses never count: declining optional
// windows is normal and cannot loop on its own.
type Tracker struct {
	log zerolog.Logger

	history    []TrackedDecision
	maxHistory int

	sequence           []seqEntry
	sequenceRepeats    int
	detectedLoopLength int

	blocked map[string]map[string]bool

	lastPhase     string
	lastStateHash string

	lastActionChoiceKey      string
	lastActionChoiceResponse string

	lastWedgeKey string
	wedgeRepeat  int
	wedgeBreaks  int
}

// NewTracker returns an empty tracker.
func NewTracker(log zerolog.Logger) *Tracker {
	return &Tracker{log: log, maxHistory: 100, blocked: map[string]map[string]bool{}}
}

func decisionKey(decisionType, text string) string {
	return decisionType + ":" + clip(text, 60)
}

// wedgeKey includes the prompt text because the server reuses decision ids
// across unrelated decisions.
func wedgeKey(decisionType, text, id, response string) string {
	return id + "|" + decisionType + "|" + clip(text, 60) + "|" + response
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// UpdateState records a board snapshot before each decision. A state change
// during a suspected loop clears the repeat count: actions that move the
// game forward are not loops, even when the prompts repeat.
func (t *Tracker) UpdateState(board *swccg.BoardState) {
	if board == nil {
		return
	}
	hash := fmt.Sprintf("%d:%d:%d:%d:%d",
		len(board.Hand), board.My.ForcePile, board.My.ReserveDeck,
		board.TurnNumber, len(board.CardsInPlay))

	if hash != t.lastStateHash {
		if t.lastStateHash != "" && t.sequenceRepeats > 0 {
			t.log.Debug().Str("from", t.lastStateHash).Str("to", hash).
				Msg("State changed, resetting loop detection")
			t.sequenceRepeats = 0
			t.detectedLoopLength = 0
			// Blocked responses stay; the loop may resume from the new state.
		}
		// A state change means the repeated answer moved the game after all.
		t.wedgeRepeat = 0
		t.wedgeBreaks = 0
		t.lastStateHash = hash
	}
}

// RecordDecision logs a decision and its response and updates loop tracking.
func (t *Tracker) RecordDecision(decisionType, text, id, response string) {
	key := decisionKey(decisionType, text)

	t.history = append(t.history, TrackedDecision{
		Type: decisionType, Text: clip(text, 100), ID: id, Response: response, Key: key,
	})
	if len(t.history) > t.maxHistory {
		t.history = t.history[len(t.history)-t.maxHistory:]
	}

	// Remember the last answered action choice so a cancelled target
	// selection can block it.
	if decisionType == swccg.DecisionCardActionChoice && response != "" {
		t.lastActionChoiceKey = key
		t.lastActionChoiceResponse = response
	}

	// Wedge counting includes empty answers: a skippable decision the server
	// keeps re-offering after a pass is wedged too.
	if wk := wedgeKey(decisionType, text, id, response); wk == t.lastWedgeKey {
		t.wedgeRepeat++
	} else {
		t.lastWedgeKey = wk
		t.wedgeRepeat = 1
		t.wedgeBreaks = 0
	}

	if response == "" {
		return
	}
	t.sequence = append(t.sequence, seqEntry{key: key, response: response, stateHash: t.lastStateHash})
	if len(t.sequence) > 20 {
		t.sequence = t.sequence[len(t.sequence)-20:]
	}
	t.checkSequenceLoop()
}

func (t *Tracker) checkSequenceLoop() {
	seq := t.sequence
	if len(seq) < 4 {
		t.sequenceRepeats = 0
		t.detectedLoopLength = 0
		return
	}

	for _, loopLen := range []int{2, 3, 4} {
		if len(seq) < loopLen*2 {
			continue
		}
		recent := seq[len(seq)-loopLen:]

		repeats := 1
		for pos := len(seq) - loopLen*2; pos >= 0; pos -= loopLen {
			if !segmentsEqual(seq[pos:pos+loopLen], recent) {
				break
			}
			repeats++
		}
		if repeats < 2 {
			continue
		}

		if repeats > t.sequenceRepeats || loopLen < t.detectedLoopLength {
			t.sequenceRepeats = repeats
			t.detectedLoopLength = loopLen

			if repeats >= loopRandomizeThreshold {
				t.log.Warn().Int("length", loopLen).Int("repeats", repeats).
					Msg("Decision loop detected")
				for _, e := range recent {
					t.log.Warn().Str("decision", clip(e.key, 50)).Str("response", e.response).
						Msg("Loop step")
					t.blockResponse(e.key, e.response)
				}
			}
		}
		return
	}

	if t.sequenceRepeats > 0 {
		t.log.Info().Int("repeats", t.sequenceRepeats).Msg("Loop broken")
		t.sequenceRepeats = 0
		t.detectedLoopLength = 0
	}
}

func segmentsEqual(a, b []seqEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *Tracker) blockResponse(key, response string) {
	if t.blocked[key] == nil {
		t.blocked[key] = map[string]bool{}
	}
	t.blocked[key][response] = true
}

// LoopCount returns how many times the current sequence has repeated.
func (t *Tracker) LoopCount() int { return t.sequenceRepeats }

// BlockedResponses returns the responses to avoid for this decision. Pass is
// never blocked.
func (t *Tracker) BlockedResponses(decisionType, text string) map[string]bool {
	key := decisionKey(decisionType, text)
	src := t.blocked[key]
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]bool, len(src))
	for r := range src {
		if r != "" {
			out[r] = true
		}
	}
	return out
}

// CheckWedge classifies the answer about to be submitted. Call once per
// decision, before RecordDecision: a WedgeBreak answer must not be recorded,
// so a persisting wedge keeps tripping here until the caller escalates.
func (t *Tracker) CheckWedge(decisionType, text, id, response string) WedgeVerdict {
	if wedgeKey(decisionType, text, id, response) != t.lastWedgeKey || t.wedgeRepeat < wedgeThreshold-1 {
		return WedgeNone
	}
	t.wedgeBreaks++
	if t.wedgeBreaks > wedgePersistWindow {
		t.log.Error().Str("decision", clip(text, 50)).Str("response", response).
			Int("breaks", t.wedgeBreaks).Msg("Wedge persists after breaking")
		return WedgeStuck
	}
	t.log.Warn().Str("decision", clip(text, 50)).Str("response", response).
		Msg("Wedged decision, breaking the repeat")
	return WedgeBreak
}

// ShouldCancelTargetSelection reports whether a target selection we already
// answered has come back, meaning the chosen action could not resolve.
func (t *Tracker) ShouldCancelTargetSelection(decisionType, text string) bool {
	if decisionType != swccg.DecisionArbitraryCards {
		return false
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "cancel") && !strings.Contains(lower, "done") {
		return false
	}
	if len(t.sequence) < 2 {
		return false
	}
	last := t.sequence[len(t.sequence)-1]
	key := decisionKey(decisionType, text)
	if last.response != "" && last.key == key {
		t.log.Info().Str("response", last.response).
			Msg("Target selection returned after selecting, cancelling")
		return true
	}
	return false
}

// Severity grades the current loop.
func (t *Tracker) Severity() string {
	switch {
	case t.sequenceRepeats < loopRandomizeThreshold:
		return "none"
	case t.sequenceRepeats < loopForceDifferent:
		return "mild"
	case t.sequenceRepeats < loopCritical:
		return "severe"
	default:
		return "critical"
	}
}

// ShouldForceDifferentChoice reports whether the loop has repeated enough to
// override the evaluators.
func (t *Tracker) ShouldForceDifferentChoice() bool {
	return t.sequenceRepeats >= loopForceDifferent
}

// ShouldConsiderConcede reports whether the loop is unrecoverable.
func (t *Tracker) ShouldConsiderConcede() bool {
	return t.sequenceRepeats >= loopCritical
}

// OnPhaseChange resets loop tracking; a phase change breaks most loops.
func (t *Tracker) OnPhaseChange(phase string) {
	if phase == t.lastPhase {
		return
	}
	t.lastPhase = phase
	t.sequenceRepeats = 0
	t.detectedLoopLength = 0
	t.blocked = map[string]map[string]bool{}
	t.sequence = t.sequence[:0]
	t.lastWedgeKey = ""
	t.wedgeRepeat = 0
	t.wedgeBreaks = 0
	t.log.Debug().Str("phase", phase).Msg("Loop tracker reset on phase change")
}

// BlockLastActionOnCancel blocks the previously chosen action when its
// target selection gets cancelled, so the next action choice tries
// something else. Returns true when an action was blocked.
func (t *Tracker) BlockLastActionOnCancel(decisionType, text string) bool {
	if decisionType != swccg.DecisionCardSelection && decisionType != swccg.DecisionArbitraryCards {
		return false
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "cancel") && !strings.Contains(lower, "done") {
		return false
	}
	if t.lastActionChoiceKey == "" || t.lastActionChoiceResponse == "" {
		return false
	}
	t.blockResponse(t.lastActionChoiceKey, t.lastActionChoiceResponse)
	t.log.Warn().Str("action", t.lastActionChoiceResponse).
		Str("decision", clip(t.lastActionChoiceKey, 50)).
		Msg("Blocking action after cancelled target selection")
	t.lastActionChoiceKey = ""
	t.lastActionChoiceResponse = ""
	return true
}

// RecentDecisions returns the newest entries from the history.
func (t *Tracker) RecentDecisions(count int) []TrackedDecision {
	if count > len(t.history) {
		count = len(t.history)
	}
	return t.history[len(t.history)-count:]
}

// Clear wipes all tracking, called at game start.
func (t *Tracker) Clear() {
	t.history = t.history[:0]
	t.sequence = t.sequence[:0]
	t.sequenceRepeats = 0
	t.detectedLoopLength = 0
	t.blocked = map[string]map[string]bool{}
	t.lastPhase = ""
	t.lastStateHash = ""
	t.lastActionChoiceKey = ""
	t.lastActionChoiceResponse = ""
	t.lastWedgeKey = ""
	t.wedgeRepeat = 0
	t.wedgeBreaks = 0
}
