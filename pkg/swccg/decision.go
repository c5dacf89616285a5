package swccg

// Decision types the server sends.
const (
	DecisionInteger          = "INTEGER"
	DecisionMultipleChoice   = "MULTIPLE_CHOICE"
	DecisionActionChoice     = "ACTION_CHOICE"
	DecisionCardActionChoice = "CARD_ACTION_CHOICE"
	DecisionCardSelection    = "CARD_SELECTION"
	DecisionArbitraryCards   = "ARBITRARY_CARDS"
)

// KnownDecisionType reports whether the bot has a handler for the type.
// Unknown types still get an emergency answer so the game never stalls.
func KnownDecisionType(t string) bool {
	switch t {
	case DecisionInteger, DecisionMultipleChoice, DecisionActionChoice,
		DecisionCardActionChoice, DecisionCardSelection, DecisionArbitraryCards:
		return true
	}
	return false
}

// Decision is one parsed decision request. Parallel slices keep the server's
// option order; rows can be ragged when the server omits a parameter for some
// options, so the index accessors fill in defaults.
type Decision struct {
	ID     string
	Type   string
	Text   string
	NoPass bool

	ActionIDs   []string
	ActionTexts []string
	CardIDs     []string
	Blueprints  []string
	Selectable  []bool
	Preselected []bool

	// Results lists the choice texts of a MULTIPLE_CHOICE decision; the
	// answer for those is the index into this list, not an id.
	Results []string

	Min          int
	Max          int
	DefaultValue int
}

// ParseDecision extracts the decision request from a type=D event. The noPass
// flag appears as an attribute on some server versions and as a parameter on
// others, so both spellings are honored.
func ParseDecision(ev *GameEvent) *Decision {
	d := &Decision{
		ID:     ev.DecisionID,
		Type:   ev.DecisionType,
		Text:   ev.Text,
		NoPass: ev.NoPass == "true",
	}
	for _, param := range ev.Parameters {
		switch param.Name {
		case "actionId":
			d.ActionIDs = append(d.ActionIDs, param.Value)
		case "actionText":
			d.ActionTexts = append(d.ActionTexts, param.Value)
		case "cardId":
			d.CardIDs = append(d.CardIDs, param.Value)
		case "blueprintId":
			d.Blueprints = append(d.Blueprints, param.Value)
		case "selectable":
			d.Selectable = append(d.Selectable, param.Value == "true")
		case "preselected":
			d.Preselected = append(d.Preselected, param.Value == "true")
		case "results":
			d.Results = append(d.Results, param.Value)
		case "noPass":
			if param.Value == "true" {
				d.NoPass = true
			}
		case "min":
			d.Min = atoiDefault(param.Value, 0)
		case "max":
			d.Max = atoiDefault(param.Value, 0)
		case "defaultValue":
			d.DefaultValue = atoiDefault(param.Value, 0)
		}
	}
	return d
}

// OptionCount is the number of options across the action and card rows.
func (d *Decision) OptionCount() int {
	return max(len(d.ActionIDs), len(d.CardIDs))
}

// ActionID returns the action id at i, falling back to the card id.
func (d *Decision) ActionID(i int) string {
	if i < len(d.ActionIDs) {
		return d.ActionIDs[i]
	}
	if i < len(d.CardIDs) {
		return d.CardIDs[i]
	}
	return ""
}

// ActionText returns the display text at i, empty when the server sent none.
func (d *Decision) ActionText(i int) string {
	if i < len(d.ActionTexts) {
		return d.ActionTexts[i]
	}
	return ""
}

// CardID returns the card id at i.
func (d *Decision) CardID(i int) string {
	if i < len(d.CardIDs) {
		return d.CardIDs[i]
	}
	return ""
}

// Blueprint returns the blueprint id at i.
func (d *Decision) Blueprint(i int) string {
	if i < len(d.Blueprints) {
		return d.Blueprints[i]
	}
	return ""
}

// IsSelectable defaults to true when the server omitted the flag.
func (d *Decision) IsSelectable(i int) bool {
	if i < len(d.Selectable) {
		return d.Selectable[i]
	}
	return true
}

// IsPreselected defaults to false when the server omitted the flag.
func (d *Decision) IsPreselected(i int) bool {
	if i < len(d.Preselected) {
		return d.Preselected[i]
	}
	return false
}

// SelectableCards lists the real choices: selectable and not preselected.
func (d *Decision) SelectableCards() []string {
	var out []string
	for i, id := range d.CardIDs {
		if d.IsSelectable(i) && !d.IsPreselected(i) {
			out = append(out, id)
		}
	}
	return out
}

// MustChoose reports whether an empty answer would be rejected.
func (d *Decision) MustChoose() bool {
	return d.NoPass || d.Min >= 1
}

// CanPass is the inverse of MustChoose.
func (d *Decision) CanPass() bool { return !d.MustChoose() }
