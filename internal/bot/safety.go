package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// The server hangs the game forever on a missing answer but recovers from a
// bad one, so every decision must produce something. This file is the last
// line of defense under the evaluators: it corrects empty answers that the
// server would reject and manufactures a response when everything above it
// failed.

// SafetyDecision is a guaranteed-valid response.
type SafetyDecision struct {
	DecisionID   string
	Value        string
	Reason       string
	WasEmergency bool
}

var cancelKeywords = []string{"cancel", "done", "pass", "decline", "no response", "no further"}

// EnsureValidResponse corrects a response that the server would reject or
// that cannot resolve the prompt. Rules apply in order; the first match
// wins. Returns the (possibly corrected) response and a reason when it
// changed.
func EnsureValidResponse(d *swccg.Decision, response string) (string, string) {
	// Empty answer on a non-skippable decision: substitute the first option
	// that does not read like cancel or pass.
	if response == "" && d.MustChoose() {
		if forced, ok := firstNonCancelOption(d); ok {
			return forced, fmt.Sprintf("must choose, substituted first non-cancel option %q", forced)
		}
		if d.Type == swccg.DecisionMultipleChoice {
			return "0", "must choose with no options, guessing 0"
		}
		return "", "must choose but no options available"
	}

	// Cancel answer on a non-skippable decision: the server accepts it but
	// re-asks forever, so substitute the first option that is not a pass.
	if response != "" && d.MustChoose() && isCancelOption(d, response) {
		if forced, ok := firstNonCancelOption(d); ok && forced != response {
			return forced, fmt.Sprintf("cancel chosen but answer required, substituted %q", forced)
		}
	}

	// A non-selectable card slipped through: substitute a selectable one.
	// The evaluators only rank selectable options, so this fires only for
	// handler bugs or stale decisions.
	if response != "" && len(d.ActionIDs) == 0 {
		for i, id := range d.CardIDs {
			if id == response && !d.IsSelectable(i) {
				if picks := d.SelectableCards(); len(picks) > 0 {
					return picks[0], fmt.Sprintf("card %q not selectable, substituted %q", response, picks[0])
				}
			}
		}
	}

	// ACTION_CHOICE rarely accepts an empty answer even with noPass=false;
	// the server wants one of the offered action ids. Prefer an action that
	// reads like cancel or done.
	if response == "" && d.Type == swccg.DecisionActionChoice && len(d.ActionIDs) > 0 {
		for i, text := range d.ActionTexts {
			if optionTextReadsCancel(text) && i < len(d.ActionIDs) {
				return d.ActionIDs[i], fmt.Sprintf("forced cancel action %q for empty ACTION_CHOICE", d.ActionIDs[i])
			}
		}
		for i, text := range d.ActionTexts {
			lower := strings.ToLower(text)
			if (strings.Contains(lower, " - cancel") || strings.Contains(lower, " - done") || strings.Contains(lower, " - no ")) && i < len(d.ActionIDs) {
				return d.ActionIDs[i], fmt.Sprintf("forced cancel action %q for empty ACTION_CHOICE", d.ActionIDs[i])
			}
		}
		forced := d.ActionIDs[len(d.ActionIDs)-1]
		return forced, fmt.Sprintf("forced last action %q for empty ACTION_CHOICE, no cancel found", forced)
	}

	return response, ""
}

// optionTextReadsCancel reports whether the display text is a pass-flavored
// option.
func optionTextReadsCancel(text string) bool {
	lower := strings.TrimSpace(strings.ToLower(text))
	for _, kw := range cancelKeywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

// firstNonCancelOption walks the options in server order and returns the
// first selectable one whose text does not read like cancel or pass. A
// decision offering only cancel-flavored options falls back to its first
// selectable option.
func firstNonCancelOption(d *swccg.Decision) (string, bool) {
	n := d.OptionCount()
	for i := 0; i < n; i++ {
		id := d.ActionID(i)
		if id == "" || !d.IsSelectable(i) {
			continue
		}
		if optionTextReadsCancel(d.ActionText(i)) {
			continue
		}
		return id, true
	}
	for i := 0; i < n; i++ {
		if id := d.ActionID(i); id != "" && d.IsSelectable(i) {
			return id, true
		}
	}
	return "", false
}

// isCancelOption reports whether the response id maps to a cancel-flavored
// option. Card rows carry no texts, so those never match.
func isCancelOption(d *swccg.Decision, response string) bool {
	n := d.OptionCount()
	for i := 0; i < n; i++ {
		if d.ActionID(i) == response {
			return optionTextReadsCancel(d.ActionText(i))
		}
	}
	return false
}

// EmergencyResponse manufactures an answer for any decision. Called when the
// brain and the type handlers all came up empty.
func EmergencyResponse(d *swccg.Decision) SafetyDecision {
	selectable := d.SelectableCards()
	mustChoose := d.MustChoose()

	var value, reason string

	switch d.Type {
	case swccg.DecisionInteger:
		// Min preserves resources; max could burn the whole force pile.
		value = strconv.Itoa(d.Min)
		reason = "integer decision, using min"

	case swccg.DecisionMultipleChoice:
		lower := strings.ToLower(d.Text)
		if strings.Contains(lower, "concede") || strings.Contains(lower, "forfeit") || strings.Contains(lower, "surrender") {
			value, reason = "1", "concede prompt, choosing no"
		} else {
			value, reason = "0", "multiple choice, first option"
		}

	case swccg.DecisionCardActionChoice, swccg.DecisionActionChoice:
		switch {
		case len(d.ActionIDs) > 0:
			value = botPick(d.ActionIDs)
			reason = "random action"
		case !mustChoose:
			reason = "no actions, passing"
		default:
			reason = "no actions but must choose"
		}

	case swccg.DecisionCardSelection:
		switch {
		case len(selectable) > 0:
			value = botPick(selectable)
			reason = "random selectable card"
		case len(d.CardIDs) > 0:
			value = botPick(d.CardIDs)
			reason = "random card, ignoring selectable flags"
		case !mustChoose:
			reason = "no cards, passing"
		default:
			reason = "no cards but must choose"
		}

	case swccg.DecisionArbitraryCards:
		switch {
		case d.Min == 0 && d.Max == 0:
			reason = "arbitrary cards with min=0 max=0, passing"
		case len(selectable) > 0:
			n := d.Min
			if n < 1 {
				n = 1
			}
			picks := botSample(selectable, n)
			value = strings.Join(picks, ",")
			reason = fmt.Sprintf("selected %d random cards", len(picks))
		case len(d.CardIDs) > 0:
			value = botPick(d.CardIDs)
			reason = "no selectable cards, picking from all"
		case !mustChoose:
			reason = "no cards, passing"
		default:
			reason = "no cards but must choose"
		}

	default:
		switch {
		case len(d.ActionIDs) > 0:
			value = botPick(d.ActionIDs)
			reason = "unknown type, random action"
		case len(selectable) > 0:
			value = botPick(selectable)
			reason = "unknown type, random selectable card"
		case len(d.CardIDs) > 0:
			value = botPick(d.CardIDs)
			reason = "unknown type, random card"
		default:
			value = "0"
			reason = "unknown type with no options, guessing 0"
		}
	}

	if mustChoose && value == "" {
		options := selectable
		if len(options) == 0 {
			options = d.ActionIDs
		}
		if len(options) == 0 {
			options = d.CardIDs
		}
		if len(options) > 0 {
			value = botPick(options)
			reason += ", safety override forced random pick"
		}
	}

	return SafetyDecision{DecisionID: d.ID, Value: value, Reason: reason, WasEmergency: true}
}

// ValidateResponse sanity-checks a response before posting. Returns false
// with a warning when it will likely be rejected.
func ValidateResponse(d *swccg.Decision, value string) (bool, string) {
	if value == "" && d.NoPass {
		return false, "empty response but noPass=true"
	}
	if value == "" && d.Min > 0 {
		return false, fmt.Sprintf("empty response but min=%d", d.Min)
	}
	if d.Type == swccg.DecisionCardActionChoice || d.Type == swccg.DecisionActionChoice {
		if value != "" && len(d.ActionIDs) > 0 && !containsString(d.ActionIDs, value) {
			return false, fmt.Sprintf("response %q not among offered actions", value)
		}
	}
	if d.Type == swccg.DecisionCardSelection {
		if value != "" && len(d.CardIDs) > 0 && !containsString(d.CardIDs, value) {
			return false, fmt.Sprintf("response %q not among offered cards", value)
		}
	}
	return true, ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
