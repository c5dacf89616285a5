package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

type fakeChatTransport struct {
	posted   []string
	postErr  error
	messages []ChatMessage
	lastID   int
}

func (f *fakeChatTransport) PostChat(ctx context.Context, gameID, message string) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, message)
	return nil
}

func (f *fakeChatTransport) ChatMessages(ctx context.Context, gameID string, lastMsgID int) ([]ChatMessage, int, error) {
	return f.messages, f.lastID, nil
}

// fakeChatStats is an in-memory ChatStats for chat and achievement tests.
type fakeChatStats struct {
	unlocks      map[string][]string
	players      map[string]*model.PlayerStats
	decks        map[string]*model.DeckStats
	globals      map[string]model.GlobalRecord
	personalBest map[string]int

	results        []GameResult
	games          []*model.GameRecord
	chatLog        []*model.ChatLogEntry
	deckScoreCalls int

	overall      *model.OverallStats
	bestRoute    model.GlobalRecord
	hasBestRoute bool
	streak       int
	recordFail   bool
}

func newFakeChatStats() *fakeChatStats {
	return &fakeChatStats{
		unlocks:      map[string][]string{},
		players:      map[string]*model.PlayerStats{},
		decks:        map[string]*model.DeckStats{},
		globals:      map[string]model.GlobalRecord{},
		personalBest: map[string]int{},
	}
}

func (f *fakeChatStats) HasAchievement(player, key string) bool {
	for _, k := range f.unlocks[player] {
		if k == key {
			return true
		}
	}
	return false
}

func (f *fakeChatStats) UnlockAchievement(player, key string) (bool, int) {
	if f.HasAchievement(player, key) {
		return false, len(f.unlocks[player])
	}
	f.unlocks[player] = append(f.unlocks[player], key)
	return true, len(f.unlocks[player])
}

func (f *fakeChatStats) AchievementCount(player string) int { return len(f.unlocks[player]) }

func (f *fakeChatStats) RecordGameResult(res GameResult) (*model.PlayerStats, bool) {
	if f.recordFail {
		return nil, false
	}
	f.results = append(f.results, res)
	p := f.players[res.PlayerName]
	if p == nil {
		p = &model.PlayerStats{PlayerName: res.PlayerName}
		f.players[res.PlayerName] = p
	}
	p.GamesPlayed++
	if res.Won {
		p.Wins++
	} else {
		p.Losses++
	}
	p.TotalAstScore += res.RouteScore
	p.BestRouteScore = max(p.BestRouteScore, res.RouteScore)
	p.BestDamage = max(p.BestDamage, res.Damage)
	return p, true
}

func (f *fakeChatStats) RecordGame(rec *model.GameRecord) { f.games = append(f.games, rec) }

func (f *fakeChatStats) UpdateDeckScore(deckName, playerName string, score int) (*model.DeckStats, bool) {
	f.deckScoreCalls++
	ds := f.decks[deckName]
	if ds == nil {
		ds = &model.DeckStats{DeckName: deckName, BestScore: score, BestPlayer: playerName, GamesPlayed: 1}
		f.decks[deckName] = ds
		return ds, true
	}
	ds.GamesPlayed++
	if score > ds.BestScore {
		ds.BestScore = score
		ds.BestPlayer = playerName
		return ds, true
	}
	return ds, false
}

func (f *fakeChatStats) UpdatePlayerDeckScore(playerName, deckName string, score int) bool {
	return true
}

func (f *fakeChatStats) CheckGlobalRecord(statType string, value int, playerName string) (bool, string) {
	rec, ok := f.globals[statType]
	if !ok {
		f.globals[statType] = model.GlobalRecord{StatType: statType, Value: value, PlayerName: playerName}
		return true, ""
	}
	if value > rec.Value {
		prev := rec.PlayerName
		f.globals[statType] = model.GlobalRecord{StatType: statType, Value: value, PlayerName: playerName}
		return true, prev
	}
	return false, ""
}

func (f *fakeChatStats) CheckPersonalDamage(playerName string, damage int) (bool, int) {
	prev := f.personalBest[playerName]
	if damage > prev {
		f.personalBest[playerName] = damage
		return true, prev
	}
	return false, prev
}

func (f *fakeChatStats) PlayerRecord(playerName string) (*model.PlayerStats, bool) {
	p, ok := f.players[playerName]
	return p, ok
}

func (f *fakeChatStats) SiteStats() (*model.OverallStats, bool) {
	return f.overall, f.overall != nil
}

func (f *fakeChatStats) GlobalRecord(statType string) (int, string, bool) {
	rec, ok := f.globals[statType]
	return rec.Value, rec.PlayerName, ok
}

func (f *fakeChatStats) BestRoute() (int, string, bool) {
	return f.bestRoute.Value, f.bestRoute.PlayerName, f.hasBestRoute
}

func (f *fakeChatStats) WinStreak(playerName string) int { return f.streak }

func (f *fakeChatStats) LogChatMessage(entry *model.ChatLogEntry) {
	f.chatLog = append(f.chatLog, entry)
}

// chatTestBrain gives the chat layer deterministic flavor text.
type chatTestBrain struct {
	startedOpp string
	endWon     *bool
	turnMsg    string
	damageMsg  string
	battleMsg  string
	route      int
	detail     *GameEndDetail
}

func (b *chatTestBrain) MakeDecision(ctx *DecisionContext) BrainDecision { return BrainDecision{} }
func (b *chatTestBrain) OnGameStart(opponentName, myDeck, theirDeckType string) {
	b.startedOpp = opponentName
}
func (b *chatTestBrain) OnGameEnd(won bool, board *swccg.BoardState) { b.endWon = &won }
func (b *chatTestBrain) OnTurnStart(turn int, board *swccg.BoardState) {
}
func (b *chatTestBrain) PersonalityName() string { return "chatty" }
func (b *chatTestBrain) WelcomeMessage(opponentName, deckName string) string {
	return fmt.Sprintf("Hello %s! Flying %s.", opponentName, deckName)
}
func (b *chatTestBrain) GameEndMessage(won bool) string { return "gg" }
func (b *chatTestBrain) TurnMessage(turn int, board *swccg.BoardState) (string, bool) {
	if b.turnMsg == "" {
		return "", false
	}
	return fmt.Sprintf("%s turn %d", b.turnMsg, turn), true
}
func (b *chatTestBrain) DamageMessage(damage int, isNewGlobalRecord, isNewPersonalRecord bool, previousHolder string, previousRecord int, currentPlayer string) (string, bool) {
	if b.damageMsg == "" {
		return "", false
	}
	return fmt.Sprintf("%s %d", b.damageMsg, damage), true
}
func (b *chatTestBrain) BattleStartMessage(myPower, theirPower int) (string, bool) {
	if b.battleMsg == "" {
		return "", false
	}
	return b.battleMsg, true
}
func (b *chatTestBrain) RouteScore(board *swccg.BoardState) int { return b.route }
func (b *chatTestBrain) DetailedGameEndMessage(d GameEndDetail) string {
	b.detail = &d
	return "bye"
}

// newTestChat wires a chat manager with a clock that jumps past the
// throttle on every call, so each send goes straight out.
func newTestChat(brain Brain, stats ChatStats) (*ChatManager, *fakeChatTransport) {
	transport := &fakeChatTransport{}
	m := NewChatManager(transport, brain, stats, zerolog.Nop())
	clock := time.Unix(1000, 0)
	m.now = func() time.Time {
		clock = clock.Add(3 * time.Second)
		return clock
	}
	return m, transport
}

func logTypes(entries []*model.ChatLogEntry) []string {
	var kinds []string
	for _, e := range entries {
		kinds = append(kinds, e.MessageType)
	}
	return kinds
}

func TestChatWelcome(t *testing.T) {
	brain := &chatTestBrain{}
	stats := newFakeChatStats()
	m, transport := newTestChat(brain, stats)

	m.ResetForGame("g1", "Veers", "Heavy TIEs", "light", "dark")
	m.OnGameStart(context.Background())

	if brain.startedOpp != "Veers" {
		t.Fatalf("brain.OnGameStart not forwarded: %q", brain.startedOpp)
	}
	if len(transport.posted) != 1 || !strings.Contains(transport.posted[0], "Veers") {
		t.Fatalf("welcome not sent: %v", transport.posted)
	}
	if len(stats.chatLog) != 1 || stats.chatLog[0].MessageType != model.ChatWelcome {
		t.Fatalf("welcome not logged: %v", logTypes(stats.chatLog))
	}
	if stats.chatLog[0].GameID != "g1" || stats.chatLog[0].OpponentName != "Veers" {
		t.Fatalf("log entry context wrong: %+v", stats.chatLog[0])
	}
}

func TestChatThrottleQueuesAndPumps(t *testing.T) {
	brain := &chatTestBrain{turnMsg: "Route check:"}
	transport := &fakeChatTransport{}
	m := NewChatManager(transport, brain, nil, zerolog.Nop())

	clock := time.Unix(1000, 0)
	m.now = func() time.Time { return clock }

	m.ResetForGame("g1", "Veers", "Heavy TIEs", "light", "dark")
	m.OnGameStart(context.Background())
	if len(transport.posted) != 1 {
		t.Fatalf("first message should send immediately: %v", transport.posted)
	}

	// Within the throttle window the turn message must queue, not send.
	clock = clock.Add(500 * time.Millisecond)
	board := plannerBoard(plannerTestDB(), 5, 2, nil, nil)
	m.OnTurnStart(context.Background(), 2, board)
	if len(transport.posted) != 1 {
		t.Fatalf("second message should be throttled: %v", transport.posted)
	}
	if len(m.queue) != 1 {
		t.Fatalf("throttled message should queue: %d", len(m.queue))
	}

	// Still inside the window: pump is a no-op.
	m.PumpQueue(context.Background())
	if len(transport.posted) != 1 {
		t.Fatalf("pump sent inside throttle window: %v", transport.posted)
	}

	clock = clock.Add(2 * time.Second)
	m.PumpQueue(context.Background())
	if len(transport.posted) != 2 || !strings.Contains(transport.posted[1], "Route check:") {
		t.Fatalf("pump should drain one message: %v", transport.posted)
	}
	if len(m.queue) != 0 {
		t.Fatalf("queue should be empty: %d", len(m.queue))
	}
}

func TestChatTurnReportedOnce(t *testing.T) {
	brain := &chatTestBrain{turnMsg: "Score so far:", route: 7}
	stats := newFakeChatStats()
	m, _ := newTestChat(brain, stats)
	m.ResetForGame("g1", "Veers", "Heavy TIEs", "light", "dark")

	board := plannerBoard(plannerTestDB(), 5, 2, nil, nil)
	m.OnTurnStart(context.Background(), 2, board)
	m.OnTurnStart(context.Background(), 2, board)

	turns := 0
	for _, kind := range logTypes(stats.chatLog) {
		if kind == model.ChatTurn {
			turns++
		}
	}
	if turns != 1 {
		t.Fatalf("turn 2 reported %d times", turns)
	}
	if m.lastRouteScore != 7 {
		t.Fatalf("route score not tracked: %d", m.lastRouteScore)
	}
}

func TestChatTurnOneStaysQuiet(t *testing.T) {
	brain := &chatTestBrain{turnMsg: "Score so far:"}
	stats := newFakeChatStats()
	m, transport := newTestChat(brain, stats)
	m.ResetForGame("g1", "Veers", "Heavy TIEs", "light", "dark")

	board := plannerBoard(plannerTestDB(), 5, 1, nil, nil)
	m.OnTurnStart(context.Background(), 1, board)
	if len(transport.posted) != 0 {
		t.Fatalf("turn 1 commentary is too early: %v", transport.posted)
	}
}

func TestChatDamageOncePerBattle(t *testing.T) {
	brain := &chatTestBrain{damageMsg: "Ouch,"}
	stats := newFakeChatStats()
	m, _ := newTestChat(brain, stats)
	m.ResetForGame("g1", "Veers", "Heavy TIEs", "light", "dark")

	board := plannerBoard(plannerTestDB(), 5, 2, nil, nil)
	m.OnBattleDamage(context.Background(), 12, board)
	m.OnBattleDamage(context.Background(), 9, board)

	damages := 0
	for _, kind := range logTypes(stats.chatLog) {
		if kind == model.ChatDamage {
			damages++
		}
	}
	if damages != 1 {
		t.Fatalf("damage reported %d times in one battle", damages)
	}

	// A new turn opens a new battle window.
	m.OnTurnStart(context.Background(), 3, board)
	m.OnBattleDamage(context.Background(), 14, board)
	damages = 0
	for _, kind := range logTypes(stats.chatLog) {
		if kind == model.ChatDamage {
			damages++
		}
	}
	if damages != 2 {
		t.Fatalf("new battle should report again, got %d", damages)
	}

	if m.HighestDamage() != 14 {
		t.Fatalf("highest damage = %d, want 14", m.HighestDamage())
	}
	if best := stats.personalBest["Veers"]; best != 14 {
		t.Fatalf("personal best = %d, want 14", best)
	}
	if rec, ok := stats.globals[model.RecordDamage]; !ok || rec.Value != 14 {
		t.Fatalf("global damage record = %+v", rec)
	}
}

func TestChatZeroDamageIgnored(t *testing.T) {
	brain := &chatTestBrain{damageMsg: "Ouch,"}
	stats := newFakeChatStats()
	m, transport := newTestChat(brain, stats)
	m.ResetForGame("g1", "Veers", "Heavy TIEs", "light", "dark")

	m.OnBattleDamage(context.Background(), 0, nil)
	if len(transport.posted) != 0 || m.HighestDamage() != 0 {
		t.Fatalf("zero damage should be a no-op")
	}
}

func TestChatBattleStartOncePerBattle(t *testing.T) {
	brain := &chatTestBrain{battleMsg: "Power check!"}
	m, transport := newTestChat(brain, nil)
	m.ResetForGame("g1", "Veers", "Heavy TIEs", "light", "dark")

	m.OnBattleStart(context.Background(), 8, 5)
	m.OnBattleStart(context.Background(), 8, 5)
	if len(transport.posted) != 1 {
		t.Fatalf("battle announced %d times", len(transport.posted))
	}

	board := plannerBoard(plannerTestDB(), 5, 3, nil, nil)
	m.OnTurnStart(context.Background(), 3, board)
	m.OnBattleStart(context.Background(), 4, 9)
	if len(transport.posted) != 2 {
		t.Fatalf("next turn's battle should announce: %v", transport.posted)
	}
}

func TestChatGameEndPlayerWon(t *testing.T) {
	brain := &chatTestBrain{route: 42}
	stats := newFakeChatStats()
	m, transport := newTestChat(brain, stats)
	m.ResetForGame("g7", "Veers", "Heavy TIEs", "light", "dark")

	board := plannerBoard(plannerTestDB(), 10, 6, nil, nil)
	m.currentTurn = 6
	m.OnGameEnd(context.Background(), true, board)

	if len(stats.results) != 1 {
		t.Fatalf("game result not recorded")
	}
	res := stats.results[0]
	if !res.Won || res.RouteScore != 42 || res.ForceRemaining != 10 {
		t.Fatalf("result wrong: %+v", res)
	}
	if len(stats.games) != 1 {
		t.Fatalf("game history not recorded")
	}
	game := stats.games[0]
	if game.DeckName != "Heavy TIEs" || game.MySide != "light" || game.Turns != 6 || !game.Won {
		t.Fatalf("game record wrong: %+v", game)
	}

	ds := stats.decks["Heavy TIEs"]
	if ds == nil || ds.BestScore != 42 || ds.BestPlayer != "Veers" {
		t.Fatalf("deck record wrong: %+v", ds)
	}
	if _, ok := stats.globals[model.RecordAstScore]; !ok {
		t.Fatal("astrogation record not checked")
	}

	if brain.detail == nil || !brain.detail.PlayerWon || brain.detail.RouteScore != 42 {
		t.Fatalf("end detail wrong: %+v", brain.detail)
	}
	if !brain.detail.IsNewDeckRecord {
		t.Fatalf("first score on a deck is a deck record: %+v", brain.detail)
	}
	if brain.endWon == nil || *brain.endWon {
		t.Fatal("brain.OnGameEnd should see the bot losing")
	}

	// 42 is a sellable route, so the first-sellable achievement fires
	// before the goodbye.
	var sawAchievement, sawEnd bool
	for _, kind := range logTypes(stats.chatLog) {
		switch kind {
		case model.ChatAchievement:
			sawAchievement = true
		case model.ChatEnd:
			sawEnd = true
		}
	}
	if !sawAchievement || !sawEnd {
		t.Fatalf("expected achievement and end messages: %v", logTypes(stats.chatLog))
	}
	if transport.posted[len(transport.posted)-1] != "bye" {
		t.Fatalf("goodbye should be the last line: %v", transport.posted)
	}
}

func TestChatGameEndBotWon(t *testing.T) {
	brain := &chatTestBrain{route: 17}
	stats := newFakeChatStats()
	m, _ := newTestChat(brain, stats)
	m.ResetForGame("g8", "Veers", "Heavy TIEs", "light", "dark")

	board := plannerBoard(plannerTestDB(), 4, 9, nil, nil)
	m.OnGameEnd(context.Background(), false, board)

	if len(stats.results) != 1 || stats.results[0].Won {
		t.Fatalf("loss not recorded: %+v", stats.results)
	}
	if stats.results[0].RouteScore != 0 {
		t.Fatalf("route score only counts when the player wins: %+v", stats.results[0])
	}
	if stats.deckScoreCalls != 0 {
		t.Fatal("deck records only update when the player wins")
	}
	if brain.endWon == nil || !*brain.endWon {
		t.Fatal("brain.OnGameEnd should see the bot winning")
	}
	if brain.detail == nil || brain.detail.PlayerWon {
		t.Fatalf("end detail wrong: %+v", brain.detail)
	}
}

func TestChatGameEndWithoutStats(t *testing.T) {
	brain := &chatTestBrain{route: 12}
	m, transport := newTestChat(brain, nil)
	m.ResetForGame("g9", "Veers", "Heavy TIEs", "light", "dark")

	m.OnGameEnd(context.Background(), true, nil)

	if len(transport.posted) != 1 || transport.posted[0] != "bye" {
		t.Fatalf("goodbye should still send without stats: %v", transport.posted)
	}
	if brain.endWon == nil || *brain.endWon {
		t.Fatal("brain not notified")
	}
}

func TestChatReplayedTurnsAfterReconnect(t *testing.T) {
	brain := &chatTestBrain{turnMsg: "Score:", route: 3}
	stats := newFakeChatStats()
	m, _ := newTestChat(brain, stats)
	m.ResetForGame("g1", "Veers", "Heavy TIEs", "light", "dark")

	board := plannerBoard(plannerTestDB(), 5, 4, nil, nil)
	m.OnTurnStart(context.Background(), 2, board)
	m.OnTurnStart(context.Background(), 3, board)
	// Reconnect replays the event stream from the start.
	m.OnTurnStart(context.Background(), 2, board)
	m.OnTurnStart(context.Background(), 3, board)

	turns := 0
	for _, kind := range logTypes(stats.chatLog) {
		if kind == model.ChatTurn {
			turns++
		}
	}
	if turns != 2 {
		t.Fatalf("replayed turns must stay quiet, got %d reports", turns)
	}
}

func TestCommandHandlerEasterEggs(t *testing.T) {
	transport := &fakeChatTransport{}
	h := NewCommandHandler(transport, nil, "rando_cal", zerolog.Nop())
	h.ResetForGame("g1", "Veers", 0)

	h.HandleMessage(context.Background(), "Veers", "How about a nice game of GLOBAL THERMONUCLEAR WAR?")
	h.HandleMessage(context.Background(), "Veers", "good luck!")

	want := []string{
		"Wouldn't you prefer a good game of SWCCG?",
		"In my experience, there is no such thing as luck.",
	}
	if len(transport.posted) != 2 || transport.posted[0] != want[0] || transport.posted[1] != want[1] {
		t.Fatalf("easter eggs wrong: %v", transport.posted)
	}

	// "good luck" embedded in a longer line is not the greeting.
	h.HandleMessage(context.Background(), "Veers", "wishing you good luck today")
	if len(transport.posted) != 2 {
		t.Fatalf("partial match should not trigger: %v", transport.posted)
	}
}

func TestCommandHandlerIgnoresSelfAndSystem(t *testing.T) {
	transport := &fakeChatTransport{}
	h := NewCommandHandler(transport, nil, "Rando_Cal", zerolog.Nop())
	h.ResetForGame("g1", "Veers", 0)

	h.HandleMessage(context.Background(), "rando_cal", "rando help")
	h.HandleMessage(context.Background(), "System", "rando help")
	if len(transport.posted) != 0 {
		t.Fatalf("self/system messages must be ignored: %v", transport.posted)
	}
}

func TestCommandHandlerHelp(t *testing.T) {
	transport := &fakeChatTransport{}
	h := NewCommandHandler(transport, nil, "rando_cal", zerolog.Nop())
	h.ResetForGame("g1", "Veers", 0)

	h.HandleMessage(context.Background(), "Veers", "RANDO help")
	if len(transport.posted) != 1 || !strings.Contains(transport.posted[0], "'rando scores'") {
		t.Fatalf("help response wrong: %v", transport.posted)
	}
}

func TestCommandHandlerUnknownCommandStaysQuiet(t *testing.T) {
	transport := &fakeChatTransport{}
	h := NewCommandHandler(transport, nil, "rando_cal", zerolog.Nop())
	h.ResetForGame("g1", "Veers", 0)

	h.HandleMessage(context.Background(), "Veers", "rando dance")
	h.HandleMessage(context.Background(), "Veers", "nice move")
	if len(transport.posted) != 0 {
		t.Fatalf("unknown commands should not respond: %v", transport.posted)
	}
}

func TestCommandHandlerScores(t *testing.T) {
	transport := &fakeChatTransport{}
	stats := newFakeChatStats()
	stats.overall = &model.OverallStats{TotalGames: 17}
	stats.bestRoute = model.GlobalRecord{Value: 44, PlayerName: "Mara"}
	stats.hasBestRoute = true
	stats.globals[model.RecordDamage] = model.GlobalRecord{StatType: model.RecordDamage, Value: 58, PlayerName: "Veers"}
	stats.players["chewie"] = &model.PlayerStats{
		PlayerName: "chewie", Wins: 3, Losses: 1, GamesPlayed: 4, BestRouteScore: 31,
	}

	h := NewCommandHandler(transport, stats, "rando_cal", zerolog.Nop())
	h.ResetForGame("g1", "chewie", 0)
	h.HandleMessage(context.Background(), "chewie", "rando scores")

	want := "Total games: 17 | Best route: 44 by Mara | Best damage: 58 by Veers | " +
		"Your record: 3W-1L (75%) | Your best route: 31"
	if len(transport.posted) != 1 || transport.posted[0] != want {
		t.Fatalf("scores = %q, want %q", transport.posted, want)
	}
}

func TestCommandHandlerScoresNewPlayer(t *testing.T) {
	transport := &fakeChatTransport{}
	stats := newFakeChatStats()
	stats.overall = &model.OverallStats{TotalGames: 2}

	h := NewCommandHandler(transport, stats, "rando_cal", zerolog.Nop())
	h.ResetForGame("g1", "lobot", 0)
	h.HandleMessage(context.Background(), "lobot", "rando scores")

	want := "Total games: 2 | lobot: No games recorded yet!"
	if len(transport.posted) != 1 || transport.posted[0] != want {
		t.Fatalf("scores = %q, want %q", transport.posted, want)
	}
}

func TestCommandHandlerStats(t *testing.T) {
	transport := &fakeChatTransport{}
	stats := newFakeChatStats()
	stats.players["chewie"] = &model.PlayerStats{
		PlayerName: "chewie", Wins: 3, Losses: 1, GamesPlayed: 4,
		BestRouteScore: 31, BestDamage: 22, TotalAstScore: 87,
	}

	h := NewCommandHandler(transport, stats, "rando_cal", zerolog.Nop())
	h.ResetForGame("g1", "chewie", 0)
	h.HandleMessage(context.Background(), "chewie", "rando stats")

	want := "chewie - Games: 4, Wins: 3, Losses: 1 (75%), Best Route: 31, Best Damage: 22, Total Astrogation Score: 87"
	if len(transport.posted) != 1 || transport.posted[0] != want {
		t.Fatalf("stats = %q, want %q", transport.posted, want)
	}
}

func TestCommandHandlerStatsNewPlayer(t *testing.T) {
	transport := &fakeChatTransport{}
	stats := newFakeChatStats()

	h := NewCommandHandler(transport, stats, "rando_cal", zerolog.Nop())
	h.ResetForGame("g1", "lobot", 0)
	h.HandleMessage(context.Background(), "lobot", "rando stats")

	want := "lobot: No games recorded yet! Play a game to get started."
	if len(transport.posted) != 1 || transport.posted[0] != want {
		t.Fatalf("stats = %q, want %q", transport.posted, want)
	}
}

func TestCommandHandlerPoll(t *testing.T) {
	transport := &fakeChatTransport{
		messages: []ChatMessage{
			{From: "Veers", Text: "rando help", ID: 4},
			{From: "Veers", Text: "gg wp", ID: 5},
		},
		lastID: 5,
	}
	h := NewCommandHandler(transport, nil, "rando_cal", zerolog.Nop())
	h.ResetForGame("g1", "Veers", 2)

	h.Poll(context.Background())
	if h.lastMsgID != 5 {
		t.Fatalf("lastMsgID = %d, want 5", h.lastMsgID)
	}
	if len(transport.posted) != 1 || !strings.Contains(transport.posted[0], "'rando scores'") {
		t.Fatalf("poll should answer the help command: %v", transport.posted)
	}
}
