// Package swccg models Star Wars CCG games as seen by a GEMP client:
// card metadata, board state folded from server events, and the decision
// requests the server asks a player to answer.
package swccg

import (
	"regexp"
	"strconv"
	"strings"
)

// Side represents one of the two sides of the Force.
type Side string

const (
	SideDark  Side = "dark"
	SideLight Side = "light"
	SideNone  Side = ""
)

// ParseSide normalizes a side string from the server ("DARK", "Light", ...).
func ParseSide(s string) Side {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dark":
		return SideDark
	case "light":
		return SideLight
	}
	return SideNone
}

// Opposite returns the opposing side.
func (s Side) Opposite() Side {
	switch s {
	case SideDark:
		return SideLight
	case SideLight:
		return SideDark
	}
	return SideNone
}

// Card holds the printed metadata for one card, keyed by its blueprint ID
// (the gempId, e.g. "7_163"). Combat stats keep their raw printed form,
// which may be "*", "X", or numeric.
type Card struct {
	BlueprintID string
	Title       string
	Side        Side
	Type        string
	SubType     string

	Power   string
	Ability string
	Deploy  string
	Forfeit string
	Destiny string

	Parsec       string
	SystemOrbits string

	Hyperspeed string
	Landspeed  string
	Maneuver   string
	Armor      string

	LightSideIcons int
	DarkSideIcons  int

	Gametext string
	Lore     string

	Characteristics []string
	Icons           []string

	Matching    string
	Counterpart string

	Rarity string
	Set    string

	Unique          bool
	DefensiveShield bool
}

func statValue(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// PowerValue returns power as an int, 0 when not numeric.
func (c *Card) PowerValue() int { return statValue(c.Power) }

// AbilityValue returns ability as an int, 0 when not numeric.
func (c *Card) AbilityValue() int { return statValue(c.Ability) }

// DeployValue returns deploy cost as an int, 0 when not numeric.
func (c *Card) DeployValue() int { return statValue(c.Deploy) }

// ForfeitValue returns forfeit as an int, 0 when not numeric.
func (c *Card) ForfeitValue() int { return statValue(c.Forfeit) }

// DestinyValue returns destiny as an int, 0 when not numeric.
func (c *Card) DestinyValue() int { return statValue(c.Destiny) }

// ParsecValue returns the parsec number as an int, 0 when not numeric.
func (c *Card) ParsecValue() int { return statValue(c.Parsec) }

// HyperspeedValue returns hyperspeed as an int, 0 when not numeric.
func (c *Card) HyperspeedValue() int { return statValue(c.Hyperspeed) }

func (c *Card) IsCharacter() bool { return c.Type == "Character" }
func (c *Card) IsStarship() bool  { return c.Type == "Starship" }
func (c *Card) IsVehicle() bool   { return c.Type == "Vehicle" }
func (c *Card) IsLocation() bool  { return c.Type == "Location" }
func (c *Card) IsEffect() bool    { return c.Type == "Effect" }
func (c *Card) IsInterrupt() bool { return c.Type == "Interrupt" }
func (c *Card) IsWeapon() bool    { return c.Type == "Weapon" }
func (c *Card) IsDevice() bool    { return c.Type == "Device" }
func (c *Card) IsCreature() bool  { return c.Type == "Creature" }

// IsDroid reports whether the card is a droid character.
func (c *Card) IsDroid() bool {
	return c.IsCharacter() && strings.Contains(strings.ToLower(c.SubType), "droid")
}

// ProvidesPresence reports whether the card on its own gives presence at a
// location. Presence requires a character with ability above zero; droids
// typically have ability 0 and do not qualify.
func (c *Card) ProvidesPresence() bool {
	return c.IsCharacter() && c.AbilityValue() > 0
}

func (c *Card) hasIcon(substr string) bool {
	for _, icon := range c.Icons {
		if strings.Contains(strings.ToLower(icon), substr) {
			return true
		}
	}
	return false
}

// IsPilot reports whether the card is a pilot character. Ships with
// permanent pilots also carry the pilot icon but are not pilots themselves;
// use HasPermanentPilot for those.
func (c *Card) IsPilot() bool {
	return c.IsCharacter() && c.hasIcon("pilot")
}

// IsWarrior reports whether the card carries the warrior icon.
func (c *Card) IsWarrior() bool { return c.hasIcon("warrior") }

// HasPermanentPilot reports whether a starship or vehicle has a built-in
// pilot. Ships without it deploy unpiloted and have no power until crewed.
func (c *Card) HasPermanentPilot() bool {
	if !c.IsStarship() && !c.IsVehicle() {
		return false
	}
	return c.hasIcon("pilot")
}

func (c *Card) IsInterior() bool    { return c.hasIcon("interior") }
func (c *Card) IsExterior() bool    { return c.hasIcon("exterior") }
func (c *Card) HasPlanetIcon() bool { return c.hasIcon("planet") }

// ForceIconsFor returns the number of force icons the location provides to
// the given side.
func (c *Card) ForceIconsFor(side Side) int {
	switch side {
	case SideDark:
		return c.DarkSideIcons
	case SideLight:
		return c.LightSideIcons
	}
	return 0
}

// HasSpaceIcon reports whether the location carries a space or starship icon.
func (c *Card) HasSpaceIcon() bool {
	return c.hasIcon("space") || c.hasIcon("starship")
}

// IsDockingBay reports whether the location is a docking bay, which admits
// both starships and ground units.
func (c *Card) IsDockingBay() bool {
	if strings.Contains(strings.ToLower(c.Title), "docking bay") {
		return true
	}
	return c.hasIcon("docking")
}

var starshipSitePrefixes = []string{
	"executor:", "home one:", "death star:", "super star destroyer:",
	"star destroyer:", "blockade runner:", "millennium falcon:",
}

// IsStarshipSite reports whether the location is a site aboard a starship.
func (c *Card) IsStarshipSite() bool {
	title := strings.ToLower(c.Title)
	for _, prefix := range starshipSitePrefixes {
		if strings.Contains(title, prefix) {
			return true
		}
	}
	return false
}

// deployRestrictionRe matches gametext clauses like "Deploys only on
// Tatooine" or "Deploy only to Hoth or Endor".
var deployRestrictionRe = regexp.MustCompile(`(?i)deploys? only (?:on|to|at) ([^.;:(]+)`)

// restrictionSuffixes are qualifier tails that name a kind of place rather
// than the place itself.
var restrictionSuffixes = []string{" sites", " site", " locations", " location", " system"}

// DeployRestrictionTargets extracts the place names a card's gametext
// restricts deployment to. Empty means unrestricted. The parse is
// best-effort: a clause it cannot read leaves the card unrestricted and the
// server rejects any misplay.
func (c *Card) DeployRestrictionTargets() []string {
	m := deployRestrictionRe.FindStringSubmatch(c.Gametext)
	if m == nil {
		return nil
	}
	clause := m[1]
	if i := strings.Index(strings.ToLower(clause), " as "); i >= 0 {
		clause = clause[:i]
	}
	clause = strings.ReplaceAll(clause, " or ", ",")
	clause = strings.ReplaceAll(clause, " and ", ",")
	var out []string
	for _, part := range strings.Split(clause, ",") {
		part = strings.Trim(part, " .•<>")
		lower := strings.ToLower(part)
		for _, suffix := range restrictionSuffixes {
			if strings.HasSuffix(lower, suffix) {
				part = strings.TrimSpace(part[:len(part)-len(suffix)])
				break
			}
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MatchesTitle reports whether the card's matching text names the given
// title (or the reverse). Used as a soft preference when pairing pilots
// with their matching ships.
func (c *Card) MatchesTitle(title string) bool {
	if c.Matching == "" || title == "" {
		return false
	}
	m := strings.ToLower(c.Matching)
	t := strings.ToLower(strings.TrimLeft(title, "•<>"))
	return strings.Contains(m, t) || strings.Contains(t, strings.TrimLeft(m, "•<>"))
}
