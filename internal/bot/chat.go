package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

// minChatInterval is the floor between outbound chat lines. Anything faster
// gets queued and drained by PumpQueue.
const minChatInterval = 2 * time.Second

// chatTransport is the slice of the GEMP client the chat layer uses.
type chatTransport interface {
	PostChat(ctx context.Context, gameID, message string) error
	ChatMessages(ctx context.Context, gameID string, lastMsgID int) ([]ChatMessage, int, error)
}

// GameResult is one finished game from the opponent's perspective, handed to
// the stats store at game end.
type GameResult struct {
	PlayerName     string
	Won            bool // the opponent beat the bot
	RouteScore     int
	Damage         int
	ForceRemaining int
	TimeSeconds    int
}

// ChatStats is the persistence surface behind the chat layer. Implementations
// log and absorb their own storage failures: a false/zero return means
// "nothing recorded", and the game carries on either way.
type ChatStats interface {
	AchievementStore

	// RecordGameResult upserts the opponent's aggregate row and returns it.
	RecordGameResult(res GameResult) (*model.PlayerStats, bool)
	// RecordGame appends one game to the history table.
	RecordGame(rec *model.GameRecord)
	// UpdateDeckScore records a route score against a deck and reports
	// whether it set a new deck record.
	UpdateDeckScore(deckName, playerName string, score int) (*model.DeckStats, bool)
	// UpdatePlayerDeckScore records the player's personal best on a deck.
	UpdatePlayerDeckScore(playerName, deckName string, score int) bool
	// CheckGlobalRecord updates an all-time record if value beats it and
	// returns whether it did, plus the previous holder.
	CheckGlobalRecord(statType string, value int, playerName string) (bool, string)
	// CheckPersonalDamage updates the player's best single-battle damage
	// and returns whether it was a new personal record plus the old value.
	CheckPersonalDamage(playerName string, damage int) (bool, int)
	// PlayerRecord fetches one player's aggregates.
	PlayerRecord(playerName string) (*model.PlayerStats, bool)
	// SiteStats returns the site-wide rollup.
	SiteStats() (*model.OverallStats, bool)
	// GlobalRecord reads an all-time record without updating it.
	GlobalRecord(statType string) (int, string, bool)
	// BestRoute returns the best route score any player has flown.
	BestRoute() (int, string, bool)
	// WinStreak returns the player's current consecutive-win count.
	WinStreak(playerName string) int
	// LogChatMessage appends one outbound chat line to the log.
	LogChatMessage(entry *model.ChatLogEntry)
}

// Flavor capabilities a brain may implement beyond the Brain interface. The
// chat layer type-asserts for them and stays quiet when they are absent.
type turnCommenter interface {
	TurnMessage(turn int, board *swccg.BoardState) (string, bool)
}

type damageCommenter interface {
	DamageMessage(damage int, isNewGlobalRecord, isNewPersonalRecord bool, previousHolder string, previousRecord int, currentPlayer string) (string, bool)
}

type battleCommenter interface {
	BattleStartMessage(myPower, theirPower int) (string, bool)
}

type routeScorer interface {
	RouteScore(board *swccg.BoardState) int
}

type detailedEnder interface {
	DetailedGameEndMessage(d GameEndDetail) string
}

type queuedChat struct {
	text string
	kind string
}

// ChatManager turns game events into table talk. It throttles sends, logs
// every line to the stats store, and owns the brain's game lifecycle calls
// so welcome/end messages and stats land exactly once per game.
//
// It runs on the worker goroutine; nothing here is safe for concurrent use.
type ChatManager struct {
	client  chatTransport
	brain   Brain
	stats   ChatStats
	tracker *AchievementTracker
	log     zerolog.Logger

	gameID       string
	opponentName string
	deckName     string
	mySide       string
	opponentSide string

	currentTurn    int
	lastRouteScore int
	reportedTurns  map[int]bool

	damageReported  bool
	battleAnnounced bool
	highestDamage   int

	lastChatAt time.Time
	queue      []queuedChat

	gameStart time.Time
	now       func() time.Time
}

// NewChatManager wires the chat layer. stats may be nil; the bot still
// chats, it just remembers nothing.
func NewChatManager(client chatTransport, brain Brain, stats ChatStats, log zerolog.Logger) *ChatManager {
	var store AchievementStore
	if stats != nil {
		store = stats
	}
	return &ChatManager{
		client:        client,
		brain:         brain,
		stats:         stats,
		tracker:       NewAchievementTracker(store, log),
		log:           log.With().Str("component", "chat").Logger(),
		reportedTurns: map[int]bool{},
		now:           time.Now,
	}
}

// ResetForGame clears per-game state and starts the brain's game. The
// worker must not call brain.OnGameStart or brain.OnGameEnd itself.
func (m *ChatManager) ResetForGame(gameID, opponentName, deckName, mySide, opponentSide string) {
	m.gameID = gameID
	m.opponentName = opponentName
	m.deckName = deckName
	m.mySide = mySide
	m.opponentSide = opponentSide

	m.currentTurn = 0
	m.lastRouteScore = 0
	m.reportedTurns = map[int]bool{}

	m.damageReported = false
	m.battleAnnounced = false
	m.highestDamage = 0

	m.queue = nil
	m.gameStart = m.now()

	m.tracker.Reset()
	if m.brain != nil {
		m.brain.OnGameStart(opponentName, deckName, opponentSide)
	}

	m.log.Info().Str("game_id", gameID).Str("opponent", opponentName).Msg("Chat reset for game")
}

// OnGameStart sends the welcome line.
func (m *ChatManager) OnGameStart(ctx context.Context) {
	if m.brain == nil || m.opponentName == "" {
		return
	}
	deck := m.deckName
	if deck == "" {
		deck = "Unknown Deck"
	}
	m.send(ctx, m.brain.WelcomeMessage(m.opponentName, deck), model.ChatWelcome)
}

// OnTurnStart reports route score commentary and scans the board for
// achievements. Turns already reported are skipped, so replayed events
// after a reconnect stay quiet.
func (m *ChatManager) OnTurnStart(ctx context.Context, turn int, board *swccg.BoardState) {
	if m.reportedTurns[turn] {
		return
	}
	m.currentTurn = turn
	m.reportedTurns[turn] = true
	m.damageReported = false
	m.battleAnnounced = false

	if m.opponentName != "" {
		for _, msg := range m.tracker.CheckBoard(board, m.opponentName) {
			m.send(ctx, msg, model.ChatAchievement)
		}
	}

	if m.brain == nil || turn < 2 || board == nil {
		return
	}
	if scorer, ok := m.brain.(routeScorer); ok {
		m.lastRouteScore = scorer.RouteScore(board)
		m.tracker.RecordRouteScore(m.lastRouteScore)
	}
	if commenter, ok := m.brain.(turnCommenter); ok {
		if msg, send := commenter.TurnMessage(turn, board); send {
			m.send(ctx, msg, model.ChatTurn)
		}
	}
}

// OnCardDeployed rescans the board so card achievements fire the moment the
// card lands instead of waiting for the next turn.
func (m *ChatManager) OnCardDeployed(ctx context.Context, board *swccg.BoardState) {
	if m.opponentName == "" {
		return
	}
	for _, msg := range m.tracker.CheckBoard(board, m.opponentName) {
		m.send(ctx, msg, model.ChatAchievement)
	}
}

// OnBattleStart announces the power matchup once per battle.
func (m *ChatManager) OnBattleStart(ctx context.Context, myPower, theirPower int) {
	if m.battleAnnounced || m.brain == nil {
		return
	}
	m.battleAnnounced = true
	if commenter, ok := m.brain.(battleCommenter); ok {
		if msg, send := commenter.BattleStartMessage(myPower, theirPower); send {
			m.send(ctx, msg, model.ChatGeneral)
		}
	}
}

// OnBattleDamage tracks the game's damage high-water mark, checks records
// and the damage achievement, and reports once per battle.
func (m *ChatManager) OnBattleDamage(ctx context.Context, damage int, board *swccg.BoardState) {
	if damage <= 0 {
		return
	}
	if damage > m.highestDamage {
		m.highestDamage = damage
	}

	if m.opponentName != "" {
		if msg, ok := m.tracker.RecordDamage(damage, m.opponentName); ok {
			m.send(ctx, msg, model.ChatAchievement)
		}
	}

	var (
		isNewGlobal    bool
		isNewPersonal  bool
		previousHolder string
		previousValue  int
	)
	if m.stats != nil && m.opponentName != "" {
		isNewGlobal, previousHolder = m.stats.CheckGlobalRecord(model.RecordDamage, damage, m.opponentName)
		isNewPersonal, previousValue = m.stats.CheckPersonalDamage(m.opponentName, damage)
	}

	if m.damageReported || m.brain == nil {
		return
	}
	if commenter, ok := m.brain.(damageCommenter); ok {
		if msg, send := commenter.DamageMessage(damage, isNewGlobal, isNewPersonal, previousHolder, previousValue, m.opponentName); send {
			m.send(ctx, msg, model.ChatDamage)
			m.damageReported = true
		}
	}
}

// OnGameEnd records the game, awards end-of-game achievements, says
// goodbye, and closes out the brain. playerWon means the opponent beat the
// bot; route scores and deck records only count when they did.
func (m *ChatManager) OnGameEnd(ctx context.Context, playerWon bool, board *swccg.BoardState) {
	if m.brain == nil {
		return
	}

	routeScore := 0
	forceRemaining := 0
	if board != nil {
		if scorer, ok := m.brain.(routeScorer); ok {
			routeScore = scorer.RouteScore(board)
		}
		forceRemaining = board.My.ForcePile
	}

	durationSeconds := 0
	if !m.gameStart.IsZero() {
		durationSeconds = int(m.now().Sub(m.gameStart).Seconds())
	}

	detail := GameEndDetail{
		PlayerWon:  playerWon,
		RouteScore: routeScore,
	}

	if m.stats != nil && m.opponentName != "" {
		deckName := m.deckName
		if deckName == "" {
			deckName = "Unknown"
		}
		mySide := m.mySide
		if mySide == "" {
			mySide = "unknown"
		}
		countedScore := 0
		if playerWon {
			countedScore = routeScore
		}

		player, recorded := m.stats.RecordGameResult(GameResult{
			PlayerName:     m.opponentName,
			Won:            playerWon,
			RouteScore:     countedScore,
			Damage:         m.highestDamage,
			ForceRemaining: forceRemaining,
			TimeSeconds:    durationSeconds,
		})
		if recorded {
			detail.NewTotalScore = player.TotalAstScore
			detail.HasNewTotal = player.TotalAstScore > 0
		}

		m.stats.RecordGame(&model.GameRecord{
			OpponentName:         m.opponentName,
			DeckName:             deckName,
			MySide:               mySide,
			Won:                  playerWon,
			RouteScore:           countedScore,
			DamageDealt:          m.highestDamage,
			ForceRemaining:       forceRemaining,
			Turns:                m.currentTurn,
			DurationSeconds:      durationSeconds,
			AchievementsUnlocked: m.tracker.UnlockedThisGame(),
		})

		if playerWon {
			deckStats, newDeckRecord := m.stats.UpdateDeckScore(deckName, m.opponentName, routeScore)
			detail.IsNewDeckRecord = newDeckRecord
			if !newDeckRecord && deckStats != nil {
				detail.PreviousHolder = deckStats.BestPlayer
				detail.PreviousScore = deckStats.BestScore
			}
			m.stats.UpdatePlayerDeckScore(m.opponentName, deckName, routeScore)
			if recorded {
				detail.IsNewTopAstrogator, _ = m.stats.CheckGlobalRecord(model.RecordAstScore, detail.NewTotalScore, m.opponentName)
			}
		}

		streak := m.stats.WinStreak(m.opponentName)
		for _, msg := range m.tracker.CheckGameEnd(m.opponentName, playerWon, routeScore, m.currentTurn, forceRemaining, streak, player) {
			m.send(ctx, msg, model.ChatAchievement)
		}
	}

	var goodbye string
	if ender, ok := m.brain.(detailedEnder); ok {
		goodbye = ender.DetailedGameEndMessage(detail)
	} else {
		goodbye = m.brain.GameEndMessage(!playerWon)
	}
	m.send(ctx, goodbye, model.ChatEnd)

	// The brain's won flag is from the bot's side of the table.
	m.brain.OnGameEnd(!playerWon, board)
}

// PumpQueue sends at most one queued message, respecting the throttle. The
// worker calls it every loop iteration.
func (m *ChatManager) PumpQueue(ctx context.Context) {
	if len(m.queue) == 0 {
		return
	}
	if m.now().Sub(m.lastChatAt) < minChatInterval {
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	m.deliver(ctx, next.text, next.kind)
}

// HighestDamage is the biggest single hit seen this game.
func (m *ChatManager) HighestDamage() int { return m.highestDamage }

// send delivers a chat line now, or queues it when the throttle is hot.
func (m *ChatManager) send(ctx context.Context, text, kind string) bool {
	if text == "" {
		return false
	}
	if m.now().Sub(m.lastChatAt) < minChatInterval {
		m.log.Debug().Str("kind", kind).Msg("Chat throttled, queued")
		m.queue = append(m.queue, queuedChat{text: text, kind: kind})
		return false
	}
	return m.deliver(ctx, text, kind)
}

func (m *ChatManager) deliver(ctx context.Context, text, kind string) bool {
	if err := m.client.PostChat(ctx, m.gameID, text); err != nil {
		m.log.Warn().Err(err).Msg("Chat send failed")
		return false
	}
	m.lastChatAt = m.now()

	if m.stats != nil && m.gameID != "" {
		opponent := m.opponentName
		if opponent == "" {
			opponent = "unknown"
		}
		m.stats.LogChatMessage(&model.ChatLogEntry{
			GameID:       m.gameID,
			OpponentName: opponent,
			MessageType:  kind,
			MessageText:  text,
			TurnNumber:   m.currentTurn,
			RouteScore:   m.lastRouteScore,
		})
	}
	return true
}

// CommandHandler answers chat commands addressed to the bot. Commands use
// the "rando " prefix; everything else is ignored apart from a couple of
// easter eggs. Responses bypass the chat throttle since they are replies.
type CommandHandler struct {
	client      chatTransport
	stats       ChatStats
	botUsername string
	log         zerolog.Logger

	gameID       string
	opponentName string
	lastMsgID    int
}

// NewCommandHandler builds a handler. stats may be nil, which disables the
// leaderboard commands but keeps the easter eggs.
func NewCommandHandler(client chatTransport, stats ChatStats, botUsername string, log zerolog.Logger) *CommandHandler {
	return &CommandHandler{
		client:      client,
		stats:       stats,
		botUsername: strings.ToLower(botUsername),
		log:         log.With().Str("component", "commands").Logger(),
	}
}

// ResetForGame points the handler at a new game's chat stream.
func (h *CommandHandler) ResetForGame(gameID, opponentName string, initialMsgID int) {
	h.gameID = gameID
	h.opponentName = opponentName
	h.lastMsgID = initialMsgID
}

// Poll fetches new chat messages and handles any commands in them.
func (h *CommandHandler) Poll(ctx context.Context) {
	if h.gameID == "" {
		return
	}
	messages, lastID, err := h.client.ChatMessages(ctx, h.gameID, h.lastMsgID)
	if err != nil {
		h.log.Debug().Err(err).Msg("Chat poll failed")
		return
	}
	h.lastMsgID = lastID
	for _, msg := range messages {
		h.HandleMessage(ctx, msg.From, msg.Text)
	}
}

// HandleMessage processes a single incoming chat line.
func (h *CommandHandler) HandleMessage(ctx context.Context, username, message string) {
	from := strings.ToLower(username)
	if from == h.botUsername || from == "system" {
		return
	}

	msg := strings.ToLower(strings.TrimSpace(message))

	if strings.Contains(msg, "global thermonuclear war") {
		h.respond(ctx, "Wouldn't you prefer a good game of SWCCG?")
		return
	}
	switch msg {
	case "good luck", "good luck!", "good luck.":
		h.respond(ctx, "In my experience, there is no such thing as luck.")
		return
	}

	if !strings.HasPrefix(msg, "rando ") {
		return
	}
	command := strings.TrimSpace(strings.TrimPrefix(msg, "rando "))

	h.log.Info().Str("from", username).Str("command", command).Msg("Processing command")

	switch command {
	case "help":
		h.respond(ctx, "'rando scores' -- shows current leaderboards and your statistics, "+
			"'rando stats' -- shows your personal game statistics")
	case "scores":
		h.cmdScores(ctx, username)
	case "stats":
		h.cmdStats(ctx, username)
	default:
		h.log.Debug().Str("command", command).Msg("Unknown command")
	}
}

func (h *CommandHandler) cmdScores(ctx context.Context, username string) {
	if h.stats == nil {
		h.respond(ctx, "Stats not available.")
		return
	}

	var lines []string

	if overall, ok := h.stats.SiteStats(); ok {
		lines = append(lines, fmt.Sprintf("Total games: %d", overall.TotalGames))
	}
	if score, holder, ok := h.stats.BestRoute(); ok && holder != "" {
		lines = append(lines, fmt.Sprintf("Best route: %d by %s", score, holder))
	}
	if value, holder, ok := h.stats.GlobalRecord(model.RecordDamage); ok && holder != "" {
		lines = append(lines, fmt.Sprintf("Best damage: %d by %s", value, holder))
	}

	if player, ok := h.stats.PlayerRecord(username); ok {
		winRate := 0
		if player.GamesPlayed > 0 {
			winRate = 100 * player.Wins / player.GamesPlayed
		}
		lines = append(lines, fmt.Sprintf("Your record: %dW-%dL (%d%%)", player.Wins, player.Losses, winRate))
		if player.BestRouteScore > 0 {
			lines = append(lines, fmt.Sprintf("Your best route: %d", player.BestRouteScore))
		}
	} else {
		lines = append(lines, fmt.Sprintf("%s: No games recorded yet!", username))
	}

	h.respond(ctx, strings.Join(lines, " | "))
}

func (h *CommandHandler) cmdStats(ctx context.Context, username string) {
	if h.stats == nil {
		h.respond(ctx, "Stats not available.")
		return
	}

	player, ok := h.stats.PlayerRecord(username)
	if !ok {
		h.respond(ctx, fmt.Sprintf("%s: No games recorded yet! Play a game to get started.", username))
		return
	}

	winRate := 0
	if player.GamesPlayed > 0 {
		winRate = 100 * player.Wins / player.GamesPlayed
	}
	h.respond(ctx, fmt.Sprintf(
		"%s - Games: %d, Wins: %d, Losses: %d (%d%%), Best Route: %d, Best Damage: %d, Total Astrogation Score: %d",
		username, player.GamesPlayed, player.Wins, player.Losses, winRate,
		player.BestRouteScore, player.BestDamage, player.TotalAstScore))
}

func (h *CommandHandler) respond(ctx context.Context, message string) {
	if h.gameID == "" {
		return
	}
	if err := h.client.PostChat(ctx, h.gameID, message); err != nil {
		h.log.Warn().Err(err).Msg("Command response failed")
	}
}
