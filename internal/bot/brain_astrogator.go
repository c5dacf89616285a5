package bot

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/pkg/swccg"
)

// AstrogatorStats supplies persisted route scores for chat context. A nil
// provider is fine; the astrogator falls back to deck origin stories.
type AstrogatorStats interface {
	PlayerTotalScore(player string) (int, bool)
	DeckRecord(deck string) (best int, holder string, ok bool)
	PlayerDeckBest(player, deck string) (int, bool)
	GlobalRecord(metric string) (value int, holder string, ok bool)
}

// Deck origin stories for the welcome message.
var deckOrigins = []string{
	"in the outer rim",
	"from an imperial spy on Eriadu",
	"from a very upset Wookiee",
	"while exploring some old Jedi ruins",
	"in a crashed X-wing on Dagobah",
	"etched into this creepy old Sith knife",
	"in the memory banks of some old R2 unit",
	"while touring the debris field of Alderaan. Too soon?",
	"from this weird guy who won't take his helmet off",
	"from a scavenger on Jakku",
	"in the dumped garbage of a Star Destroyer",
	"from a bounty hunter who disintegrated the previous owner",
	"deep in the bowels of a tauntaun. I thought it smelled bad on the outside.",
	"in the bones of a krayt dragon",
	"from a tiny green baby who kept trying to eat it",
	"from this blue guy who said he had his own Star Destroyer",
	"on Mustafar. I have the high ground now.",
	"from a princess who hid it in a droid",
	"in a trash compactor. There was something alive down there.",
	"from a smuggler who made the Kessel Run in 12 parsecs. Allegedly.",
	"on Endor. The Ewoks wanted to cook me.",
	"from a moisture farmer with dreams of being a pilot",
	"in Cloud City. The deal kept getting altered.",
	"from a senator who turned out to be the Senate",
}

// Route score commentary by tier, with momentum variants appended when the
// score moved since last turn.
var scoreMessages = map[string][]string{
	"profitable": {
		"Finally! A route I can actually sell.",
		"This is acceptable. Don't ruin it.",
		"I can work with this. Keep not failing.",
		"We might actually make money today. I'm as surprised as you are.",
		"The odds of you maintaining this are approximately... actually, never mind.",
		"I knew you could do it. That's a lie, but still.",
		"This is where the fun begins.",
		"Impressive. Most impressive.",
	},
	"promising": {
		"Getting closer. Nobody buys routes under 30 though.",
		"Last time I followed a route this promising I found beskar.",
		"You show promise. For a human.",
		"Almost sellable. Almost.",
		"A surprise to be sure, but a welcome one.",
		"The Force is somewhat with you, apparently.",
	},
	"weak": {
		"It's not terrible. That's the best I can say.",
		"I've seen worse. I've also seen much better.",
		"Let the hate flow through you. Channel it into winning.",
		"There is another way. It involves playing better.",
		"This route might lead to bantha poodoo.",
		"You have potential. Unrealized potential, but still.",
	},
	"weak_improving": {
		"You're improving! Against all odds.",
		"Better than last turn. The bar was low.",
		"Progress! I'll try to contain my excitement.",
	},
	"weak_declining": {
		"We were doing so well. Comparatively.",
		"I have a bad feeling about this.",
		"That's... not the direction we wanted.",
	},
	"even": {
		"You do understand we're trying to make money, right?",
		"I could probably do better playing randomly. Oh wait.",
		"This is depressing. For you. I'm a droid.",
		"Your goal is to have MORE lifeforce than me. More.",
		"Hello there, mediocrity.",
		"The dark side clouds everything.",
	},
	"even_improving": {
		"At least you're improving. Marginally.",
		"Your score is rising. So is my hope. Slightly.",
		"Better. Still not good, but better.",
	},
	"even_declining": {
		"Your score is supposed to go UP, not down.",
		"I find your lack of progress disturbing.",
		"Route score dropping. Just like my expectations.",
	},
	"behind": {
		"Wait, I'm not supposed to be winning.",
		"I'm literally playing random cards. How are you losing?",
		"Nobody ever says 'let the droid win.'",
		"You have a 73.6% chance of disappointing me further.",
		"It's a trap! The trap is your current strategy.",
		"Perhaps you should try a different approach. Any approach.",
	},
	"behind_improving": {
		"At least it's moving in the right direction.",
		"Still bad, but less bad. Progress?",
	},
	"behind_declining": {
		"And you were doing so well. By your standards.",
		"This is getting worse. That shouldn't be possible.",
	},
	"very_behind": {
		"You have approximately a 2.4% chance of turning this around.",
		"This is why droids should be in charge.",
		"I'm trying to lose. You're making it difficult.",
		"You were the chosen one! You were supposed to beat me!",
		"Do or do not. There is no... whatever this is.",
		"I suggest a new strategy. Let the Wookiee win.",
		"I've got a bad feeling about this. For you.",
		"Search your feelings. You know you're losing.",
	},
	"very_behind_improving": {
		"Better. Still terrible, but better.",
		"A new hope? Let's not get carried away.",
	},
	"very_behind_declining": {
		"Somehow, you're doing even worse now.",
		"We seem to be made to suffer. It's our lot in life.",
		"This deal is getting worse all the time.",
	},
}

var damageMessages = map[string][]string{
	"high": {
		"Now THIS is podracing!",
		"I'm not even mad. That's impressive.",
		"The Force is strong with this one.",
		"That's no moon... that's YOUR damage total!",
		"Great shot kid, that was one in a million!",
		"Witness the firepower of this fully armed deck!",
		"Everything is proceeding as I have foreseen. Mostly.",
		"I felt a great disturbance in my cards.",
	},
	"medium": {
		"Solid damage. I'll allow it.",
		"They died for a good cause. Probably.",
		"Some of those were just contractors, you know.",
		"Look at the size of that damage!",
		"Stay on target... stay on target...",
		"You came in that thing? You're braver than I thought.",
		"Not bad. Not great. But not bad.",
		"I thought they smelled bad on the outside.",
	},
	"low": {
		"Stormtrooper accuracy, I see.",
		"The Ewoks had higher kill counts, you know.",
		"Well, you tried. That's... something.",
		"These blast points... too accurate for Sand People.",
		"Only Imperial Stormtroopers are so imprecise.",
		"You may fire when ready. Or not. Apparently not.",
		"Your focus determines your reality.",
		"Into the garbage chute, flyboy.",
		"Boring conversation anyway.",
	},
}

var botWonMessages = []string{
	"I win! Don't feel bad. Actually, feel a little bad.",
	"Victory for the droid! This was not supposed to happen.",
	"I won? I was trying to help you! Sort of.",
	"Even droids get lucky sometimes. This was skill though.",
	"The student has not yet surpassed the master.",
	"Perhaps next time you'll listen to my odds calculations.",
	"I find your lack of victory disturbing.",
	"You underestimate my power! ...of random card selection.",
}

var battlePlayerCrushing = []string{
	"The odds are in your favor. I calculate 94.7% chance of victory.",
	"This should be quick. I'll try to make it entertaining.",
	"Impressive firepower. Most impressive.",
	"I appear to have made a tactical error.",
	"Well, this is unfortunate. For me.",
	"This is fine. Everything is fine.",
	"I've seen this before. It doesn't end well for me.",
	"Your overconfidence is... actually justified here.",
}

var battleBotCrushing = []string{
	"The odds are NOT in your favor. Just so you know.",
	"I have you now!",
	"You may want to reconsider your life choices.",
	"This is a mistake. I'm trying to help you realize that.",
	"I've made some calculations. They're not good. For you.",
	"Witness the firepower of this fully armed battle station!",
	"I find your lack of troops disturbing.",
	"Perhaps retreat would have been the wiser option?",
	"It's over! I have the high ground!",
	"We're both going to pretend this didn't happen, right?",
}

var battleClose = []string{
	"This should be interesting.",
	"The odds are... actually unclear here.",
	"May the Force be with you. You'll need it.",
	"A fair fight. How uncivilized.",
	"Let's see what you've got.",
	"I have a bad feeling about this.",
}

// GameEndDetail carries the persisted-record context the chat layer looks up
// before announcing the final route score.
type GameEndDetail struct {
	PlayerWon          bool
	RouteScore         int
	IsNewDeckRecord    bool
	PreviousHolder     string
	PreviousScore      int
	NewTotalScore      int
	HasNewTotal        bool
	IsNewTopAstrogator bool
}

// AstrogatorBrain plays exactly like StaticBrain but talks like a mercenary
// astrogation droid. The meta-game: the opponent earns a "route score" of
// (their life force - bot life force) - turns played, and scores of 30+ are
// "sellable". All the extra machinery here is chat.
type AstrogatorBrain struct {
	*StaticBrain
	stats AstrogatorStats
	log   zerolog.Logger

	lastRouteScore int
	hasLastRoute   bool
	lastMessages   []string
}

// NewAstrogatorBrain wraps the static evaluator stack with the astrogator
// personality. stats may be nil.
func NewAstrogatorBrain(db *swccg.CardDB, stats AstrogatorStats, log zerolog.Logger) *AstrogatorBrain {
	return &AstrogatorBrain{
		StaticBrain: NewStaticBrain(db, log),
		stats:       stats,
		log:         log.With().Str("brain", "astrogator").Logger(),
	}
}

func (a *AstrogatorBrain) PersonalityName() string { return "Astrogator" }

// RouteScore is the meta-game score: how far ahead the opponent is on life
// force, minus the turns it took them to get there.
func (a *AstrogatorBrain) RouteScore(board *swccg.BoardState) int {
	return (board.Their.LifeForce() - board.My.LifeForce()) - board.TurnNumber
}

func scoreTier(score int) string {
	switch {
	case score >= 30:
		return "profitable"
	case score >= 20:
		return "promising"
	case score >= 10:
		return "weak"
	case score >= 0:
		return "even"
	case score >= -10:
		return "behind"
	default:
		return "very_behind"
	}
}

// pickMessage chooses from a pool while avoiding the last few repeats.
func (a *AstrogatorBrain) pickMessage(pool []string) string {
	recent := a.lastMessages
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	var available []string
	for _, m := range pool {
		if !containsString(recent, m) {
			available = append(available, m)
		}
	}
	if len(available) == 0 {
		available = pool
	}
	msg := botPick(available)
	a.lastMessages = append(a.lastMessages, msg)
	if len(a.lastMessages) > 15 {
		a.lastMessages = a.lastMessages[len(a.lastMessages)-15:]
	}
	return msg
}

// WelcomeMessage introduces the meta-game. The side-specific jab uses the
// opponent deck type recorded at game start.
func (a *AstrogatorBrain) WelcomeMessage(opponentName, deckName string) string {
	var greeting string
	if a.theirDeckType == "light" {
		greeting = botPick([]string{
			fmt.Sprintf("Ah, %s. Rebel scum, I see.", opponentName),
			fmt.Sprintf("%s. A rebel. How original.", opponentName),
			fmt.Sprintf("Greetings, %s. Insurgent detected.", opponentName),
		})
	} else {
		greeting = botPick([]string{
			fmt.Sprintf("%s. An Imperial. Charming.", opponentName),
			fmt.Sprintf("Hello there, %s. Imperial entanglement incoming.", opponentName),
			fmt.Sprintf("Ah, %s. Another Imperial.", opponentName),
		})
	}

	intro := "I'm rando_cal, astrogation droid. I chart hyperspace routes " +
		"based on how badly you beat me: life force minus turns played. " +
		"Score 30+ to make it worth selling."

	optional := botPick([]string{
		"Or just play SWCCG and ignore me.",
		"Of course, you can just play SWCCG. I'll be here either way.",
		"But if math isn't your thing, just enjoy the game.",
	})

	deckContext := a.deckContextMessage(deckName, opponentName)

	return fmt.Sprintf("%s %s %s %s 'rando help' for commands. gl hf!",
		greeting, intro, optional, deckContext)
}

// PlayerScoreContext reports the opponent's cumulative astrogation score,
// with a leading space so it concatenates cleanly.
func (a *AstrogatorBrain) PlayerScoreContext(opponentName string) string {
	if a.stats == nil {
		return ""
	}
	if total, ok := a.stats.PlayerTotalScore(opponentName); ok && total > 0 {
		return fmt.Sprintf(" Your astrogation score: %d.", total)
	}
	return ""
}

func (a *AstrogatorBrain) deckContextMessage(deckName, opponentName string) string {
	if a.stats == nil {
		return fmt.Sprintf("Found this deck %s.", botPick(deckOrigins))
	}
	best, holder, ok := a.stats.DeckRecord(deckName)
	if !ok || best <= 0 {
		return fmt.Sprintf("Found this deck %s.", botPick(deckOrigins))
	}
	playerBest, hasPlayerBest := a.stats.PlayerDeckBest(opponentName, deckName)

	if holder == opponentName {
		if best > 50 {
			return fmt.Sprintf("Your record: %d. Nearly optimal.", best)
		}
		return fmt.Sprintf("Your record: %d. Room for improvement.", best)
	}
	if hasPlayerBest && playerBest > 0 {
		return fmt.Sprintf("Your best: %d. %s has %d. %d points ahead.",
			playerBest, holder, best, best-playerBest)
	}
	return fmt.Sprintf("Record: %d by %s. Beat it.", best, holder)
}

// LeaderContext names the global top astrogator, if one exists.
func (a *AstrogatorBrain) LeaderContext() string {
	if a.stats == nil {
		return ""
	}
	if value, holder, ok := a.stats.GlobalRecord("ast_score"); ok && value > 0 {
		return fmt.Sprintf("Top Astrogator: %s (%d pts).", holder, value)
	}
	return ""
}

// TurnMessage produces the per-turn route score commentary. Nothing is said
// on turn 1 or before both piles are known.
func (a *AstrogatorBrain) TurnMessage(turn int, board *swccg.BoardState) (string, bool) {
	if turn < 2 || board == nil {
		return "", false
	}
	if board.My.LifeForce() <= 0 || board.Their.LifeForce() <= 0 {
		return "", false
	}

	score := a.RouteScore(board)
	tier := scoreTier(score)

	improving := a.hasLastRoute && score > a.lastRouteScore
	declining := a.hasLastRoute && score < a.lastRouteScore
	a.lastRouteScore = score
	a.hasLastRoute = true

	prefix := fmt.Sprintf("Route score: %d", score)
	if turn == 2 {
		prefix = fmt.Sprintf("Route score: %d (your lifeforce - mine - turn#)", score)
	}

	pool := scoreMessages[tier]
	if improving {
		if extra, ok := scoreMessages[tier+"_improving"]; ok {
			pool = append(append([]string{}, pool...), extra...)
		}
	} else if declining {
		if extra, ok := scoreMessages[tier+"_declining"]; ok {
			pool = append(append([]string{}, pool...), extra...)
		}
	}

	return fmt.Sprintf("%s. %s", prefix, a.pickMessage(pool)), true
}

// DamageMessage comments on battle damage dealt to the bot. Records trump
// the tier commentary.
func (a *AstrogatorBrain) DamageMessage(damage int, isNewGlobalRecord, isNewPersonalRecord bool, previousHolder string, previousRecord int, currentPlayer string) (string, bool) {
	if damage <= 0 {
		return "", false
	}
	if isNewGlobalRecord {
		if previousHolder != "" && previousHolder != currentPlayer {
			return fmt.Sprintf("New damage record: %d! %s dethroned!", damage, previousHolder), true
		}
		return fmt.Sprintf("New damage record: %d! Impressive!", damage), true
	}
	if isNewPersonalRecord {
		if previousRecord > 0 {
			return fmt.Sprintf("Personal best: %d! (was %d)", damage, previousRecord), true
		}
		return fmt.Sprintf("Personal best: %d!", damage), true
	}

	var tier, prefix string
	switch {
	case damage > 20:
		tier, prefix = "high", fmt.Sprintf("Battle damage: %d!", damage)
	case damage > 10:
		tier, prefix = "medium", fmt.Sprintf("Battle damage: %d.", damage)
	default:
		tier, prefix = "low", fmt.Sprintf("Battle damage: %d...", damage)
	}
	return prefix + " " + a.pickMessage(damageMessages[tier]), true
}

// BattleStartMessage only speaks up for lopsided or razor-thin battles;
// ordinary fights stay quiet to avoid chat spam. Close fights get a comment
// 30% of the time.
func (a *AstrogatorBrain) BattleStartMessage(myPower, theirPower int) (string, bool) {
	powerDiff := theirPower - myPower // positive = opponent advantage

	if powerDiff >= 8 {
		return "Battle starting: " + a.pickMessage(battlePlayerCrushing), true
	}
	if powerDiff <= -8 {
		return "Battle starting: " + a.pickMessage(battleBotCrushing), true
	}
	if powerDiff >= -3 && powerDiff <= 3 && botFloat64() < 0.30 {
		return "Battle starting: " + a.pickMessage(battleClose), true
	}
	return "", false
}

// GameEndMessage satisfies the Brain interface with whatever context the
// astrogator has on hand; the chat layer calls DetailedGameEndMessage with
// the persisted records instead. won means the bot won, as everywhere else
// on the Brain interface.
func (a *AstrogatorBrain) GameEndMessage(won bool) string {
	return a.DetailedGameEndMessage(GameEndDetail{
		PlayerWon:  !won,
		RouteScore: a.lastRouteScore,
	})
}

// DetailedGameEndMessage announces the final route score with record context.
func (a *AstrogatorBrain) DetailedGameEndMessage(d GameEndDetail) string {
	if !d.PlayerWon {
		return a.pickMessage(botWonMessages)
	}

	var tier string
	switch {
	case d.RouteScore > 50:
		tier = "excellent"
	case d.RouteScore > 30:
		tier = "good"
	case d.RouteScore > 10:
		tier = "okay"
	default:
		tier = "poor"
	}

	var message string
	if d.IsNewDeckRecord {
		switch tier {
		case "excellent":
			message = fmt.Sprintf("New record! %d points! We're rich! Well, I'm rich. You get satisfaction.", d.RouteScore)
		case "good":
			message = fmt.Sprintf("Score of %d! New deck record. Not perfect, but I can sell it.", d.RouteScore)
		case "okay":
			message = fmt.Sprintf("%d is the new record. It's like being the tallest Jawa.", d.RouteScore)
		default:
			message = fmt.Sprintf("%d. That's the best anyone's done? The bar is underground.", d.RouteScore)
		}
	} else {
		holder := d.PreviousHolder
		if holder == "" {
			holder = "someone"
		}
		switch tier {
		case "excellent":
			message = fmt.Sprintf("%d! Excellent, but %s still beat you with %d.", d.RouteScore, holder, d.PreviousScore)
		case "good":
			message = fmt.Sprintf("%d. Solid, but %s has %d. So close, yet so far.", d.RouteScore, holder, d.PreviousScore)
		case "okay":
			message = fmt.Sprintf("%d. %s scored %d. You have much to learn, young Padawan.", d.RouteScore, holder, d.PreviousScore)
		default:
			message = fmt.Sprintf("%d? Really? %s got %d. I weep for the future.", d.RouteScore, holder, d.PreviousScore)
		}
	}

	if d.HasNewTotal {
		message += fmt.Sprintf(" Total: %d.", d.NewTotalScore)
	}
	if d.IsNewTopAstrogator {
		message += " You're the new top Astrogator!"
	}
	return message
}

func (a *AstrogatorBrain) OnGameStart(opponentName, myDeck, theirDeckType string) {
	a.StaticBrain.OnGameStart(opponentName, myDeck, theirDeckType)
	a.hasLastRoute = false
	a.lastRouteScore = 0
	a.lastMessages = nil
	a.log.Info().Str("opponent", opponentName).Str("deck", myDeck).Msg("New game")
}

func (a *AstrogatorBrain) OnGameEnd(won bool, board *swccg.BoardState) {
	a.StaticBrain.OnGameEnd(won, board)
	if board != nil {
		a.lastRouteScore = a.RouteScore(board)
		a.hasLastRoute = true
		a.log.Info().Bool("bot_won", won).Int("route_score", a.lastRouteScore).Msg("Game over")
	}
}
