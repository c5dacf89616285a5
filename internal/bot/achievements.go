package bot

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

// AchievementStore persists achievement unlocks per opponent. Implementations
// absorb and log their own storage failures; the game never stops for stats.
type AchievementStore interface {
	// HasAchievement reports whether the player already unlocked the key.
	HasAchievement(player, key string) bool
	// UnlockAchievement records the unlock and returns whether it was new
	// plus the player's new total.
	UnlockAchievement(player, key string) (bool, int)
	// AchievementCount returns how many achievements the player has.
	AchievementCount(player string) int
}

// Achievement trigger kinds. The card triggers are matched during board
// scans; damage and the game-end triggers are awarded by key.
const (
	trigCardInPlay    = "card_in_play"
	trigMyCard        = "my_card"
	trigTheirCard     = "their_card"
	trigCardsTogether = "cards_together"
	trigCardsAtSite   = "cards_at_site"
	trigCardKilled    = "card_killed"
	trigCardKilledBy  = "card_killed_by"
	trigHandSize      = "hand_size"
	trigLocations     = "locations_controlled"
	trigDamage        = "damage"
	trigRouteScore    = "route_score"
	trigFirstRoute    = "first_route_score"
	trigComeback      = "comeback"
	trigSpeedrun      = "speedrun"
	trigForceLeft     = "force_remaining"
	trigGamesPlayed   = "games_played"
	trigAchievements  = "achievements"
	trigAstScore      = "ast_score"
	trigWinStreak     = "win_streak"
)

// AchievementDef is one unlockable achievement. Titles are matched as
// lowercase substrings against card titles on the board.
type AchievementDef struct {
	Key        string
	Quote      string
	Trigger    string
	CardMatch  string   // single-card triggers
	Cards      []string // multi-card triggers and killed-by witnesses
	CardType   string   // restrict to a card type, empty = any
	SiteFilter string   // cards_at_site location name substring
	Threshold  int      // numeric triggers
}

// achievementDefs is scanned in order, so award order is deterministic.
var achievementDefs = []AchievementDef{
	// Single card appearances.
	{Key: "achievement_bossk", Quote: "Thinking takes too long. Action gets things done.", Trigger: trigCardInPlay, CardMatch: "bossk", CardType: "Character"},
	{Key: "achievement_fortuna", Quote: "I take you to Jabba now.", Trigger: trigCardInPlay, CardMatch: "fortuna", CardType: "Character"},
	{Key: "achievement_jyn", Quote: "If we can make it to the ground, we'll take the next chance. And the next. On and on until we win... or the chances are spent.", Trigger: trigCardInPlay, CardMatch: "jyn", CardType: "Character"},
	{Key: "achievement_poe", Quote: "Permission to hop in an X-Wing and blow something up?", Trigger: trigCardInPlay, CardMatch: "poe", CardType: "Character"},
	{Key: "achievement_chirrut", Quote: "I'm one with the Force, and the Force is with me.", Trigger: trigCardInPlay, CardMatch: "chirrut", CardType: "Character"},
	{Key: "achievement_kylo", Quote: "Forgive me. I feel it again... the call from light.", Trigger: trigCardInPlay, CardMatch: "kylo ren", CardType: "Character"},
	{Key: "achievement_saber", Quote: "An elegant weapon, from a more civilized age.", Trigger: trigCardInPlay, CardMatch: "lightsaber", CardType: "Weapon"},
	{Key: "achievement_dooku", Quote: "Twice the pride, double the fall.", Trigger: trigCardInPlay, CardMatch: "dooku"},
	{Key: "achievement_sidious", Quote: "Power! Unlimited Power!", Trigger: trigCardInPlay, CardMatch: "sidious"},
	{Key: "achievement_kenobi", Quote: "Hello there.", Trigger: trigCardInPlay, CardMatch: "general kenobi"},
	{Key: "achievement_rey", Quote: "The garbage'll do!", Trigger: trigCardInPlay, CardMatch: "rey", CardType: "Character"},
	{Key: "achievement_ackbar", Quote: "It's a trap!", Trigger: trigCardInPlay, CardMatch: "ackbar"},
	{Key: "achievement_ahsoka", Quote: "I am no Jedi.", Trigger: trigCardInPlay, CardMatch: "ahsoka", CardType: "Character"},
	{Key: "achievement_jango", Quote: "I'm just a simple man trying to make my way in the universe.", Trigger: trigCardInPlay, CardMatch: "jango", CardType: "Character"},
	{Key: "achievement_watto", Quote: "Mind tricks don't work on me.", Trigger: trigCardInPlay, CardMatch: "watto", CardType: "Character"},
	{Key: "achievement_quigon", Quote: "There's always a bigger fish.", Trigger: trigCardInPlay, CardMatch: "qui-gon", CardType: "Character"},
	{Key: "achievement_kamino", Quote: "It Ought To Be Here... But It Isn't...", Trigger: trigCardInPlay, CardMatch: "kamino", CardType: "Location"},
	{Key: "achievement_yoda", Quote: "Do. Or do not. There is no try.", Trigger: trigCardInPlay, CardMatch: "yoda", CardType: "Character"},
	{Key: "achievement_lando", Quote: "Everything you've heard about me is true.", Trigger: trigCardInPlay, CardMatch: "lando", CardType: "Character"},
	{Key: "achievement_thrawn", Quote: "To defeat an enemy, you must know them. Not simply their battle tactics, but their history, philosophy, art.", Trigger: trigCardInPlay, CardMatch: "thrawn", CardType: "Character"},
	{Key: "achievement_dash", Quote: "The name's Dash. Dash Rendar. Freelance.", Trigger: trigCardInPlay, CardMatch: "dash rendar", CardType: "Character"},
	{Key: "achievement_ig88", Quote: "Bounty hunting is a complicated profession.", Trigger: trigCardInPlay, CardMatch: "ig-88", CardType: "Character"},
	{Key: "achievement_dengar", Quote: "I've been waiting for this a long time, Solo.", Trigger: trigCardInPlay, CardMatch: "dengar", CardType: "Character"},
	{Key: "achievement_4lom", Quote: "Protocol dictates I must inform you: you are worth more dead.", Trigger: trigCardInPlay, CardMatch: "4-lom", CardType: "Character"},
	{Key: "achievement_greedo", Quote: "Oota goota, Solo?", Trigger: trigCardInPlay, CardMatch: "greedo", CardType: "Character"},
	{Key: "achievement_grievous", Quote: "Your lightsabers will make a fine addition to my collection.", Trigger: trigCardInPlay, CardMatch: "grievous", CardType: "Character"},
	{Key: "achievement_mace", Quote: "This party's over.", Trigger: trigCardInPlay, CardMatch: "mace windu", CardType: "Character"},
	{Key: "achievement_rex", Quote: "In my book, experience outranks everything.", Trigger: trigCardInPlay, CardMatch: "captain rex", CardType: "Character"},
	{Key: "achievement_piett", Quote: "Intensify forward firepower!", Trigger: trigCardInPlay, CardMatch: "piett", CardType: "Character"},
	{Key: "achievement_veers", Quote: "Maximum firepower!", Trigger: trigCardInPlay, CardMatch: "veers", CardType: "Character"},
	{Key: "achievement_phasma", Quote: "You were always scum.", Trigger: trigCardInPlay, CardMatch: "phasma", CardType: "Character"},
	{Key: "achievement_mando", Quote: "This is the way.", Trigger: trigCardInPlay, CardMatch: "din djarin", CardType: "Character"},
	{Key: "achievement_grogu", Quote: "That's not a toy!", Trigger: trigCardInPlay, CardMatch: "grogu", CardType: "Character"},
	{Key: "achievement_hera", Quote: "If all you do is fight for your own life, then your life is worth nothing.", Trigger: trigCardInPlay, CardMatch: "hera syndulla", CardType: "Character"},
	{Key: "achievement_hondo", Quote: "This effort is no longer profitable!", Trigger: trigCardInPlay, CardMatch: "hondo", CardType: "Character"},
	{Key: "achievement_krennic", Quote: "We were on the verge of greatness. We were this close.", Trigger: trigCardInPlay, CardMatch: "krennic", CardType: "Character"},

	// Ships and locations, any type.
	{Key: "achievement_tydirium", Quote: "I was about to clear them.", Trigger: trigCardInPlay, CardMatch: "tydirium"},
	{Key: "achievement_deathstar", Quote: "That's no moon.", Trigger: trigCardInPlay, CardMatch: "death star"},
	{Key: "achievement_executor", Quote: "The Emperor is not as forgiving as I am.", Trigger: trigCardInPlay, CardMatch: "executor"},
	{Key: "achievement_slavei", Quote: "Put Captain Solo in the cargo hold.", Trigger: trigCardInPlay, CardMatch: "slave i"},
	{Key: "achievement_ghost", Quote: "Spectre-1, standing by.", Trigger: trigCardInPlay, CardMatch: "ghost"},
	{Key: "achievement_tantive", Quote: "There'll be no escape for the Princess this time.", Trigger: trigCardInPlay, CardMatch: "tantive"},
	{Key: "achievement_outrider", Quote: "She may not look like much, but she's got it where it counts.", Trigger: trigCardInPlay, CardMatch: "outrider"},
	{Key: "achievement_chimaera", Quote: "Thrawn's flagship looms overhead.", Trigger: trigCardInPlay, CardMatch: "chimaera"},
	{Key: "achievement_homeone", Quote: "May the Force be with us.", Trigger: trigCardInPlay, CardMatch: "home one"},
	{Key: "achievement_devastator", Quote: "There she is! Set for stun.", Trigger: trigCardInPlay, CardMatch: "devastator"},
	{Key: "achievement_scimitar", Quote: "At last we will reveal ourselves to the Jedi.", Trigger: trigCardInPlay, CardMatch: "scimitar"},
	{Key: "achievement_starkiller", Quote: "It's another Death Star.", Trigger: trigCardInPlay, CardMatch: "starkiller base"},

	// Ownership-specific.
	{Key: "achievement_falcon", Quote: "It's the ship that made the Kessel run in less than 12 parsecs.", Trigger: trigMyCard, CardMatch: "falcon"},
	{Key: "achievement_boba", Quote: "boba fett? boba fett?! where??", Trigger: trigTheirCard, CardMatch: "boba"},
	{Key: "achievement_womprat", Quote: "I used to bullseye womp rats in my T-16 back home, they're not much bigger than two meters.", Trigger: trigTheirCard, CardMatch: "womp rat"},

	// Card combinations at one location.
	{Key: "achievement_anakin_kenobi", Quote: "It's Over, Anakin. I Have The High Ground.", Trigger: trigCardsTogether, Cards: []string{"anakin", "kenobi"}},
	{Key: "achievement_emperor_luke", Quote: "Now, young Skywalker, you will die.", Trigger: trigCardsTogether, Cards: []string{"emperor", "skywalker"}},
	{Key: "achievement_leia_chew", Quote: "Would somebody get this big walking carpet out of my way?", Trigger: trigCardsTogether, Cards: []string{"leia", "chew"}},
	{Key: "achievement_jabba_luke", Quote: "Your mind powers won't work on me boy.", Trigger: trigCardsTogether, Cards: []string{"jabba", "luke"}},
	{Key: "achievement_leia_tarkin", Quote: "I recognized your foul stench when I was brought onboard.", Trigger: trigCardsTogether, Cards: []string{"tarkin", "leia"}},
	{Key: "achievement_vader_motti", Quote: "I find your lack of faith disturbing.", Trigger: trigCardsTogether, Cards: []string{"vader", "motti"}},
	{Key: "achievement_3po_r2", Quote: "Oh, my dear friend. How I've missed you.", Trigger: trigCardsTogether, Cards: []string{"c-3", "r2-d2"}},
	{Key: "achievement_luke_obi", Quote: "The Force will be with you. Always.", Trigger: trigCardsTogether, Cards: []string{"obi", "luke"}},
	{Key: "achievement_leia_obi", Quote: "Help me Obi-Wan, you're our only hope.", Trigger: trigCardsTogether, Cards: []string{"leia", "obi"}},
	{Key: "achievement_leia_luke", Quote: "Aren't you a little short for a stormtrooper?", Trigger: trigCardsTogether, Cards: []string{"leia", "luke"}},
	{Key: "achievement_vader_obi", Quote: "If you strike me down, I shall become more powerful than you can possibly imagine.", Trigger: trigCardsTogether, Cards: []string{"vader", "obi"}},
	{Key: "achievement_werehome", Quote: "Chewie, we're home.", Trigger: trigCardsTogether, Cards: []string{"chew", "han", "falcon"}},
	{Key: "achievement_fettlegacy", Quote: "I'm just a simple man, like my father before me.", Trigger: trigCardsTogether, Cards: []string{"jango", "boba"}},
	{Key: "achievement_maul_kenobi", Quote: "I have been waiting for you.", Trigger: trigCardsTogether, Cards: []string{"maul", "kenobi"}},
	{Key: "achievement_grievous_kenobi", Quote: "General Kenobi! You are a bold one.", Trigger: trigCardsTogether, Cards: []string{"grievous", "kenobi"}},
	{Key: "achievement_bounty_hunters", Quote: "We don't need that scum.", Trigger: trigCardsTogether, Cards: []string{"bossk", "dengar"}},
	{Key: "achievement_stompy", Quote: "Imperial walkers on the north ridge!", Trigger: trigCardsTogether, Cards: []string{"blizzard 1", "blizzard 2"}},
	{Key: "achievement_rogue_squadron", Quote: "Lock S-foils in attack position.", Trigger: trigCardsTogether, Cards: []string{"red 5", "red leader"}},
	{Key: "achievement_gold_squadron", Quote: "Stay on target!", Trigger: trigCardsTogether, Cards: []string{"gold leader", "gold 1"}},
	{Key: "achievement_imperial_navy", Quote: "Concentrate all fire on that Super Star Destroyer!", Trigger: trigCardsTogether, Cards: []string{"executor", "chimaera"}},

	// Location-specific combos.
	{Key: "achievement_leia_han_hoth", Quote: "Why, you stuck-up, half-witted, scruffy-looking nerf herder!", Trigger: trigCardsAtSite, Cards: []string{"leia", "han"}, SiteFilter: "hoth"},
	{Key: "achievement_sand", Quote: "I Don't Like Sand. It's Coarse And Rough And Irritating. And It Gets Everywhere.", Trigger: trigCardsAtSite, Cards: []string{"anakin"}, SiteFilter: "tatooine"},

	// Casualties.
	{Key: "achievement_r2_killed", Quote: "We're doomed.", Trigger: trigCardKilled, CardMatch: "r2-d2"},
	{Key: "achievement_chewie_killed", Quote: "Will somebody get this big walking carpet out of my way.", Trigger: trigCardKilled, CardMatch: "chew"},
	{Key: "achievement_han_boba", Quote: "He's no good to me dead.", Trigger: trigCardKilledBy, CardMatch: "han", Cards: []string{"boba"}},

	// Board thresholds.
	{Key: "achievement_collector", Quote: "Impressive collection you have there.", Trigger: trigHandSize, Threshold: 8},
	{Key: "achievement_fortress", Quote: "The galaxy trembles at your dominance.", Trigger: trigLocations, Threshold: 5},

	// Combat.
	{Key: "achievement_60_damage", Quote: "We seem to be made to suffer. It's our lot in life.", Trigger: trigDamage, Threshold: 60},

	// Route score.
	{Key: "achievement_perfect_route", Quote: "A hyperspace route this good could fund a rebellion!", Trigger: trigRouteScore, Threshold: 50},
	{Key: "achievement_first_sellable", Quote: "Your first sellable route! I knew you had potential.", Trigger: trigFirstRoute, Threshold: 30},
	{Key: "achievement_comeback", Quote: "From the brink of failure to profit!", Trigger: trigComeback, Threshold: 30},
	{Key: "achievement_speedrun", Quote: "The Kessel Run has nothing on this!", Trigger: trigSpeedrun, Threshold: 5},
	{Key: "achievement_economist", Quote: "A credit saved is a credit earned.", Trigger: trigForceLeft, Threshold: 15},

	// Meta.
	{Key: "achievement_regular", Quote: "A regular customer! The droid remembers you.", Trigger: trigGamesPlayed, Threshold: 10},
	{Key: "achievement_veteran", Quote: "You've logged more hyperspace hours than most pilots.", Trigger: trigGamesPlayed, Threshold: 50},
	{Key: "achievement_legend", Quote: "Your name echoes across the trade routes.", Trigger: trigGamesPlayed, Threshold: 100},
	{Key: "achievement_hot_streak", Quote: "Three in a row! The Force is strong with you.", Trigger: trigWinStreak, Threshold: 3},
	{Key: "achievement_perfectionist", Quote: "Achievement unlocked: achievement unlocker.", Trigger: trigAchievements, Threshold: 50},
	{Key: "achievement_highroller", Quote: "The traders speak your name with reverence.", Trigger: trigAstScore, Threshold: 500},
}

var achievementsByKey = buildAchievementIndex()

func buildAchievementIndex() map[string]*AchievementDef {
	idx := make(map[string]*AchievementDef, len(achievementDefs))
	for i := range achievementDefs {
		idx[achievementDefs[i].Key] = &achievementDefs[i]
	}
	return idx
}

// TotalAchievements is the denominator shown in unlock messages.
var TotalAchievements = len(achievementDefs)

// boardCard is one title seen on the board during a scan.
type boardCard struct {
	cardType string
	mine     bool
	theirs   bool
}

// AchievementTracker awards achievements to the opponent as they play.
// Per-game state separates "already announced this game" from the persisted
// per-player unlock set, so quotes fire at most once per game even without
// a store behind them.
type AchievementTracker struct {
	store AchievementStore
	log   zerolog.Logger

	onBoardPreviously map[string]bool
	triggeredThisGame map[string]bool
	unlockedThisGame  int
	lowestRoute       int
	hasLowestRoute    bool
}

// NewAchievementTracker builds a tracker. store may be nil, in which case
// quotes are still produced but nothing persists.
func NewAchievementTracker(store AchievementStore, log zerolog.Logger) *AchievementTracker {
	return &AchievementTracker{
		store:             store,
		log:               log.With().Str("component", "achievements").Logger(),
		onBoardPreviously: map[string]bool{},
		triggeredThisGame: map[string]bool{},
	}
}

// Reset clears per-game tracking for a new game.
func (t *AchievementTracker) Reset() {
	t.onBoardPreviously = map[string]bool{}
	t.triggeredThisGame = map[string]bool{}
	t.unlockedThisGame = 0
	t.lowestRoute = 0
	t.hasLowestRoute = false
}

// UnlockedThisGame is how many achievements were newly unlocked this game.
func (t *AchievementTracker) UnlockedThisGame() int { return t.unlockedThisGame }

// RecordRouteScore tracks the low-water mark of the opponent's route score,
// which the comeback achievement compares against the final score.
func (t *AchievementTracker) RecordRouteScore(score int) {
	if !t.hasLowestRoute || score < t.lowestRoute {
		t.lowestRoute = score
		t.hasLowestRoute = true
	}
}

// CheckBoard scans the board for card and threshold achievements and returns
// the unlock messages to send.
func (t *AchievementTracker) CheckBoard(board *swccg.BoardState, opponent string) []string {
	if board == nil {
		return nil
	}
	var messages []string

	cards := t.cardsOnBoard(board)

	for i := range achievementDefs {
		def := &achievementDefs[i]
		switch def.Trigger {
		case trigCardInPlay, trigMyCard, trigTheirCard:
			if msg, ok := t.checkSingleCard(def, cards, opponent); ok {
				messages = append(messages, msg)
			}
		case trigCardsTogether, trigCardsAtSite:
			if msg, ok := t.checkCombo(def, board, opponent); ok {
				messages = append(messages, msg)
			}
		}
	}

	messages = append(messages, t.checkKilledCards(cards, opponent)...)
	messages = append(messages, t.checkBoardThresholds(board, opponent)...)

	t.onBoardPreviously = make(map[string]bool, len(cards))
	for title := range cards {
		t.onBoardPreviously[title] = true
	}
	return messages
}

// cardsOnBoard collects every titled card at a location, lowercased, along
// with its type and which side it is on. Location cards count too.
func (t *AchievementTracker) cardsOnBoard(board *swccg.BoardState) map[string]boardCard {
	cards := map[string]boardCard{}
	for _, loc := range board.Locations {
		if loc == nil || loc.Placeholder() {
			continue
		}
		if name := loc.DisplayName(); name != "" {
			entry := cards[strings.ToLower(name)]
			entry.cardType = "Location"
			cards[strings.ToLower(name)] = entry
		}
		for _, c := range loc.MyCards {
			if c.Title == "" {
				continue
			}
			entry := cards[strings.ToLower(c.Title)]
			entry.cardType = c.Type
			entry.mine = true
			cards[strings.ToLower(c.Title)] = entry
		}
		for _, c := range loc.TheirCards {
			if c.Title == "" {
				continue
			}
			entry := cards[strings.ToLower(c.Title)]
			entry.cardType = c.Type
			entry.theirs = true
			cards[strings.ToLower(c.Title)] = entry
		}
	}
	return cards
}

func (t *AchievementTracker) checkSingleCard(def *AchievementDef, cards map[string]boardCard, opponent string) (string, bool) {
	if t.triggeredThisGame[def.Key] || def.CardMatch == "" {
		return "", false
	}
	for title, card := range cards {
		if !cardTitleMatches(title, def.CardMatch, def.CardType, card.cardType) {
			continue
		}
		if def.Trigger == trigMyCard && !card.mine {
			continue
		}
		if def.Trigger == trigTheirCard && !card.theirs {
			continue
		}
		return t.award(def, opponent)
	}
	return "", false
}

// cardTitleMatches applies the substring and type filters. Location-type
// achievements without a colon in the match want the system card, not one of
// its sites, and site titles always carry a colon.
func cardTitleMatches(title, match, requiredType, actualType string) bool {
	if !strings.Contains(title, match) {
		return false
	}
	if requiredType != "" {
		req := strings.TrimSuffix(strings.ToLower(requiredType), "s")
		act := strings.TrimSuffix(strings.ToLower(actualType), "s")
		if req != act {
			return false
		}
	}
	if requiredType == "Location" && !strings.Contains(match, ":") && strings.Contains(title, ":") {
		return false
	}
	return true
}

func (t *AchievementTracker) checkCombo(def *AchievementDef, board *swccg.BoardState, opponent string) (string, bool) {
	if t.triggeredThisGame[def.Key] || len(def.Cards) == 0 {
		return "", false
	}
	for _, loc := range board.Locations {
		if loc == nil || loc.Placeholder() {
			continue
		}
		if def.Trigger == trigCardsAtSite && def.SiteFilter != "" {
			if !strings.Contains(strings.ToLower(loc.DisplayName()), def.SiteFilter) {
				continue
			}
		}
		var here []string
		for _, c := range loc.MyCards {
			if c.Title != "" {
				here = append(here, strings.ToLower(c.Title))
			}
		}
		for _, c := range loc.TheirCards {
			if c.Title != "" {
				here = append(here, strings.ToLower(c.Title))
			}
		}
		if containsAllSubstrings(here, def.Cards) {
			return t.award(def, opponent)
		}
	}
	return "", false
}

func containsAllSubstrings(titles, required []string) bool {
	for _, req := range required {
		found := false
		for _, title := range titles {
			if strings.Contains(title, req) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(required) > 0
}

// checkKilledCards fires when a tracked title was on the board last scan and
// is gone now. killed-by variants also need a witness still standing.
func (t *AchievementTracker) checkKilledCards(current map[string]boardCard, opponent string) []string {
	var messages []string
	var removed []string
	for title := range t.onBoardPreviously {
		if _, still := current[title]; !still {
			removed = append(removed, title)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	for i := range achievementDefs {
		def := &achievementDefs[i]
		if def.Trigger != trigCardKilled && def.Trigger != trigCardKilledBy {
			continue
		}
		if t.triggeredThisGame[def.Key] || def.CardMatch == "" {
			continue
		}
		gone := false
		for _, title := range removed {
			if strings.Contains(title, def.CardMatch) {
				gone = true
				break
			}
		}
		if !gone {
			continue
		}
		if def.Trigger == trigCardKilledBy {
			witness := false
			for _, killer := range def.Cards {
				for title := range current {
					if strings.Contains(title, killer) {
						witness = true
						break
					}
				}
			}
			if !witness {
				continue
			}
		}
		if msg, ok := t.award(def, opponent); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

// checkBoardThresholds covers the hand-size and board-control achievements,
// both judged from the opponent's side of the table.
func (t *AchievementTracker) checkBoardThresholds(board *swccg.BoardState, opponent string) []string {
	var messages []string

	if def, ok := achievementsByKey["achievement_collector"]; ok && !t.triggeredThisGame[def.Key] {
		if board.Their.Hand >= def.Threshold {
			if msg, awarded := t.award(def, opponent); awarded {
				messages = append(messages, msg)
			}
		}
	}

	if def, ok := achievementsByKey["achievement_fortress"]; ok && !t.triggeredThisGame[def.Key] {
		controlled := 0
		for _, loc := range board.Locations {
			if loc == nil || loc.Placeholder() {
				continue
			}
			if len(loc.TheirCards) > 0 && len(loc.MyCards) == 0 {
				controlled++
			}
		}
		if controlled >= def.Threshold {
			if msg, awarded := t.award(def, opponent); awarded {
				messages = append(messages, msg)
			}
		}
	}

	return messages
}

// RecordDamage checks the single-battle damage achievement.
func (t *AchievementTracker) RecordDamage(damage int, opponent string) (string, bool) {
	def, ok := achievementsByKey["achievement_60_damage"]
	if !ok || t.triggeredThisGame[def.Key] || damage < def.Threshold {
		return "", false
	}
	return t.award(def, opponent)
}

// CheckGameEnd awards the score and meta achievements. won means the
// opponent beat the bot; player is their stats row after the game was
// recorded. winStreak is their current consecutive-win count.
func (t *AchievementTracker) CheckGameEnd(opponent string, won bool, routeScore, turns, forceRemaining, winStreak int, player *model.PlayerStats) []string {
	if t.store == nil || player == nil {
		return nil
	}
	var messages []string
	awardKey := func(key string) {
		def, ok := achievementsByKey[key]
		if !ok || t.triggeredThisGame[key] {
			return
		}
		if msg, awarded := t.award(def, opponent); awarded {
			messages = append(messages, msg)
		}
	}

	if won && routeScore >= 50 {
		awardKey("achievement_perfect_route")
	}
	if won && routeScore >= 30 {
		awardKey("achievement_first_sellable")
	}
	if won && routeScore >= 30 && t.hasLowestRoute && t.lowestRoute < 0 {
		awardKey("achievement_comeback")
	}
	if won && turns <= 5 {
		awardKey("achievement_speedrun")
	}
	if won && forceRemaining >= 15 {
		awardKey("achievement_economist")
	}
	if winStreak >= 3 {
		awardKey("achievement_hot_streak")
	}

	if player.GamesPlayed >= 10 {
		awardKey("achievement_regular")
	}
	if player.GamesPlayed >= 50 {
		awardKey("achievement_veteran")
	}
	if player.GamesPlayed >= 100 {
		awardKey("achievement_legend")
	}
	if player.TotalAstScore >= 500 {
		awardKey("achievement_highroller")
	}
	if t.store.AchievementCount(opponent) >= 50 {
		awardKey("achievement_perfectionist")
	}

	return messages
}

// Count returns the opponent's persisted achievement count.
func (t *AchievementTracker) Count(opponent string) int {
	if t.store == nil {
		return 0
	}
	return t.store.AchievementCount(opponent)
}

// award marks the achievement triggered for this game, persists the unlock
// when a store is present, and formats the announcement.
func (t *AchievementTracker) award(def *AchievementDef, opponent string) (string, bool) {
	t.triggeredThisGame[def.Key] = true

	if t.store == nil {
		t.unlockedThisGame++
		return fmt.Sprintf("%s (1/%d)", def.Quote, TotalAchievements), true
	}
	if t.store.HasAchievement(opponent, def.Key) {
		return "", false
	}
	newly, total := t.store.UnlockAchievement(opponent, def.Key)
	if !newly {
		return "", false
	}
	t.unlockedThisGame++
	t.log.Info().Str("player", opponent).Str("achievement", def.Key).Msg("Achievement unlocked")
	return fmt.Sprintf("%s (%d/%d)", def.Quote, total, TotalAchievements), true
}
