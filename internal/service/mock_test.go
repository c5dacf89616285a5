package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/SWCCGArena/rando/internal/model"
)

// mockStatsRepo is an in-memory StatsRepository. The failing flag makes
// every call error so the absorb-and-continue paths can be exercised.
type mockStatsRepo struct {
	mu      sync.Mutex
	failing bool

	players      map[string]*model.PlayerStats
	decks        map[string]*model.DeckStats
	playerDecks  map[string]*model.PlayerDeckStats
	globals      map[string]*model.GlobalRecord
	achievements map[string]map[string]time.Time
	games        []model.GameRecord
	chat         []model.ChatLogEntry
	streaks      map[string]int
}

func newMockStatsRepo() *mockStatsRepo {
	return &mockStatsRepo{
		players:      make(map[string]*model.PlayerStats),
		decks:        make(map[string]*model.DeckStats),
		playerDecks:  make(map[string]*model.PlayerDeckStats),
		globals:      make(map[string]*model.GlobalRecord),
		achievements: make(map[string]map[string]time.Time),
		streaks:      make(map[string]int),
	}
}

var errMockDown = errors.New("mock store down")

func (m *mockStatsRepo) fail() error {
	if m.failing {
		return errMockDown
	}
	return nil
}

func (m *mockStatsRepo) RecordGameResult(_ context.Context, playerName string, won bool, routeScore, damage, forceRemaining, timeSeconds int) (*model.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	p := m.players[playerName]
	if p == nil {
		p = &model.PlayerStats{PlayerName: playerName, FirstSeen: time.Now()}
		m.players[playerName] = p
	}
	p.GamesPlayed++
	if won {
		p.Wins++
		m.streaks[playerName]++
	} else {
		p.Losses++
		m.streaks[playerName] = 0
	}
	p.TotalAstScore += routeScore
	if routeScore > p.BestRouteScore {
		p.BestRouteScore = routeScore
	}
	if damage > p.BestDamage {
		p.BestDamage = damage
	}
	if forceRemaining > p.BestForceRemaining {
		p.BestForceRemaining = forceRemaining
	}
	p.LastSeen = time.Now()
	cp := *p
	return &cp, nil
}

func (m *mockStatsRepo) InsertGame(_ context.Context, rec *model.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	rec.ID = int64(len(m.games) + 1)
	m.games = append(m.games, *rec)
	return nil
}

func (m *mockStatsRepo) UpdateDeckScore(_ context.Context, deckName, playerName string, score int) (*model.DeckStats, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, false, err
	}
	d := m.decks[deckName]
	isRecord := d == nil || score > d.BestScore
	if d == nil {
		d = &model.DeckStats{DeckName: deckName}
		m.decks[deckName] = d
	}
	d.GamesPlayed++
	d.TotalScore += score
	if score > d.BestScore {
		d.BestScore = score
		d.BestPlayer = playerName
	}
	d.UpdatedAt = time.Now()
	cp := *d
	return &cp, isRecord, nil
}

func (m *mockStatsRepo) UpdatePlayerDeckScore(_ context.Context, playerName, deckName string, score int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	key := playerName + "/" + deckName
	p := m.playerDecks[key]
	improved := p == nil || score > p.BestScore
	if p == nil {
		p = &model.PlayerDeckStats{PlayerName: playerName, DeckName: deckName}
		m.playerDecks[key] = p
	}
	p.GamesPlayed++
	if score > p.BestScore {
		p.BestScore = score
	}
	return improved, nil
}

func (m *mockStatsRepo) CheckGlobalRecord(_ context.Context, statType string, value int, playerName string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, "", err
	}
	g := m.globals[statType]
	if g == nil {
		m.globals[statType] = &model.GlobalRecord{StatType: statType, Value: value, PlayerName: playerName}
		return true, "", nil
	}
	better := value > g.Value
	if statType == model.RecordTime {
		better = value < g.Value
	}
	if !better {
		return false, g.PlayerName, nil
	}
	previous := g.PlayerName
	g.Value = value
	g.PlayerName = playerName
	return true, previous, nil
}

func (m *mockStatsRepo) CheckPersonalDamage(_ context.Context, playerName string, damage int) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, 0, err
	}
	p := m.players[playerName]
	if p == nil {
		p = &model.PlayerStats{PlayerName: playerName}
		m.players[playerName] = p
	}
	if damage > p.BestDamage {
		previous := p.BestDamage
		p.BestDamage = damage
		return true, previous, nil
	}
	return false, p.BestDamage, nil
}

func (m *mockStatsRepo) HasAchievement(_ context.Context, playerName, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	_, ok := m.achievements[playerName][key]
	return ok, nil
}

func (m *mockStatsRepo) UnlockAchievement(_ context.Context, playerName, key string) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, 0, err
	}
	if m.achievements[playerName] == nil {
		m.achievements[playerName] = make(map[string]time.Time)
	}
	if _, ok := m.achievements[playerName][key]; ok {
		return false, len(m.achievements[playerName]), nil
	}
	m.achievements[playerName][key] = time.Now()
	return true, len(m.achievements[playerName]), nil
}

func (m *mockStatsRepo) AchievementCount(_ context.Context, playerName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	return len(m.achievements[playerName]), nil
}

func (m *mockStatsRepo) PlayerAchievements(_ context.Context, playerName string) ([]model.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []model.Achievement
	for key, at := range m.achievements[playerName] {
		out = append(out, model.Achievement{PlayerName: playerName, AchievementKey: key, UnlockedAt: at})
	}
	return out, nil
}

func (m *mockStatsRepo) InsertChatMessage(_ context.Context, entry *model.ChatLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	entry.ID = int64(len(m.chat) + 1)
	m.chat = append(m.chat, *entry)
	return nil
}

func (m *mockStatsRepo) PlayerStats(_ context.Context, playerName string) (*model.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	p := m.players[playerName]
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockStatsRepo) DeckStats(_ context.Context, deckName string) (*model.DeckStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	d := m.decks[deckName]
	if d == nil {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *mockStatsRepo) PlayerDeckBest(_ context.Context, playerName, deckName string) (*model.PlayerDeckStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	p := m.playerDecks[playerName+"/"+deckName]
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockStatsRepo) OverallStats(_ context.Context) (*model.OverallStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	s := &model.OverallStats{TotalGames: len(m.games), UniquePlayers: len(m.players)}
	for _, g := range m.games {
		if g.Won {
			s.TotalWins++
		}
	}
	s.TotalLosses = s.TotalGames - s.TotalWins
	if s.TotalGames > 0 {
		s.WinRate = float64(s.TotalWins) / float64(s.TotalGames) * 100
	}
	for _, aa := range m.achievements {
		s.TotalAchievements += len(aa)
	}
	return s, nil
}

func (m *mockStatsRepo) GlobalRecord(_ context.Context, statType string) (*model.GlobalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	g := m.globals[statType]
	if g == nil {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *mockStatsRepo) BestRoute(_ context.Context) (int, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, "", err
	}
	best, holder := 0, ""
	for _, p := range m.players {
		if p.BestRouteScore > best {
			best, holder = p.BestRouteScore, p.PlayerName
		}
	}
	return best, holder, nil
}

func (m *mockStatsRepo) WinStreak(_ context.Context, playerName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	return m.streaks[playerName], nil
}

func (m *mockStatsRepo) RecentGames(_ context.Context, limit int) ([]model.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []model.GameRecord
	for i := len(m.games) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.games[i])
	}
	return out, nil
}

func (m *mockStatsRepo) TopPlayers(_ context.Context, _ string, limit int) ([]model.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []model.PlayerStats
	for _, p := range m.players {
		if len(out) >= limit {
			break
		}
		out = append(out, *p)
	}
	return out, nil
}

// mockLiveCache is an in-memory LiveCache.
type mockLiveCache struct {
	mu       sync.Mutex
	statuses map[string]model.WorkerStatus
	boards   map[string][]byte
	traces   map[string][]model.TraceEntry
	resumes  map[string]struct {
		gameID  string
		channel int
	}
}

func newMockLiveCache() *mockLiveCache {
	return &mockLiveCache{
		statuses: make(map[string]model.WorkerStatus),
		boards:   make(map[string][]byte),
		traces:   make(map[string][]model.TraceEntry),
		resumes: make(map[string]struct {
			gameID  string
			channel int
		}),
	}
}

func (c *mockLiveCache) SetWorkerStatus(_ context.Context, status model.WorkerStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[status.Name] = status
	return nil
}

func (c *mockLiveCache) WorkerStatus(_ context.Context, name string) (*model.WorkerStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[name]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *mockLiveCache) WorkerStatuses(_ context.Context, names []string) ([]model.WorkerStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.WorkerStatus
	for _, name := range names {
		if s, ok := c.statuses[name]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *mockLiveCache) SetBoard(_ context.Context, name string, snapshot []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boards[name] = append([]byte(nil), snapshot...)
	return nil
}

func (c *mockLiveCache) Board(_ context.Context, name string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boards[name], nil
}

func (c *mockLiveCache) PushTrace(_ context.Context, name string, entry model.TraceEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traces[name] = append([]model.TraceEntry{entry}, c.traces[name]...)
	return nil
}

func (c *mockLiveCache) Trace(_ context.Context, name string, limit int) ([]model.TraceEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.traces[name]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]model.TraceEntry(nil), entries...), nil
}

func (c *mockLiveCache) SetResume(_ context.Context, name, gameID string, channel int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumes[name] = struct {
		gameID  string
		channel int
	}{gameID, channel}
	return nil
}

func (c *mockLiveCache) Resume(_ context.Context, name string) (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.resumes[name]
	if !ok {
		return "", 0, nil
	}
	return r.gameID, r.channel, nil
}

func (c *mockLiveCache) ClearResume(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resumes, name)
	return nil
}

func (c *mockLiveCache) ClearWorker(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, name)
	delete(c.boards, name)
	delete(c.traces, name)
	return nil
}

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	worker    string
	eventType string
	data      any
}

func (b *recordingBroadcaster) BroadcastWorkerEvent(workerName, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{workerName, eventType, data})
}

func (b *recordingBroadcaster) eventsOfType(eventType string) []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastEvent
	for _, e := range b.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
