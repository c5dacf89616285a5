package repository

import (
	"context"
	"encoding/json"

	"github.com/SWCCGArena/rando/internal/model"
)

// UserRepository defines admin-user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// StatsRepository defines the persistent stats store: per-opponent
// aggregates, deck and global records, achievements, game history, and the
// chat log. Lookups return nil without error when no row exists.
type StatsRepository interface {
	// RecordGameResult upserts the opponent's aggregate row after a game
	// and returns the updated row.
	RecordGameResult(ctx context.Context, playerName string, won bool, routeScore, damage, forceRemaining, timeSeconds int) (*model.PlayerStats, error)
	// InsertGame appends one finished game to the history table.
	InsertGame(ctx context.Context, rec *model.GameRecord) error
	// UpdateDeckScore records a route score flown against a deck and
	// reports whether it set a new deck record.
	UpdateDeckScore(ctx context.Context, deckName, playerName string, score int) (*model.DeckStats, bool, error)
	// UpdatePlayerDeckScore records a player's personal best on a deck.
	UpdatePlayerDeckScore(ctx context.Context, playerName, deckName string, score int) (bool, error)
	// CheckGlobalRecord updates an all-time record if value beats it,
	// returning whether it did and who held it before.
	CheckGlobalRecord(ctx context.Context, statType string, value int, playerName string) (bool, string, error)
	// CheckPersonalDamage updates the player's best single-battle damage,
	// returning whether it was a new personal best and the previous one.
	CheckPersonalDamage(ctx context.Context, playerName string, damage int) (bool, int, error)

	HasAchievement(ctx context.Context, playerName, key string) (bool, error)
	UnlockAchievement(ctx context.Context, playerName, key string) (bool, int, error)
	AchievementCount(ctx context.Context, playerName string) (int, error)
	PlayerAchievements(ctx context.Context, playerName string) ([]model.Achievement, error)

	InsertChatMessage(ctx context.Context, entry *model.ChatLogEntry) error

	PlayerStats(ctx context.Context, playerName string) (*model.PlayerStats, error)
	DeckStats(ctx context.Context, deckName string) (*model.DeckStats, error)
	PlayerDeckBest(ctx context.Context, playerName, deckName string) (*model.PlayerDeckStats, error)
	OverallStats(ctx context.Context) (*model.OverallStats, error)
	GlobalRecord(ctx context.Context, statType string) (*model.GlobalRecord, error)
	BestRoute(ctx context.Context) (int, string, error)
	WinStreak(ctx context.Context, playerName string) (int, error)
	RecentGames(ctx context.Context, limit int) ([]model.GameRecord, error)
	TopPlayers(ctx context.Context, orderBy string, limit int) ([]model.PlayerStats, error)
}

// LiveCache defines the Redis-backed live worker state: short-TTL status
// and board keys whose expiry drives the offline watchdog, a bounded
// decision trace, and resume pointers that outlive worker restarts.
type LiveCache interface {
	SetWorkerStatus(ctx context.Context, status model.WorkerStatus) error
	WorkerStatus(ctx context.Context, name string) (*model.WorkerStatus, error)
	WorkerStatuses(ctx context.Context, names []string) ([]model.WorkerStatus, error)
	SetBoard(ctx context.Context, name string, snapshot []byte) error
	Board(ctx context.Context, name string) (json.RawMessage, error)
	PushTrace(ctx context.Context, name string, entry model.TraceEntry) error
	Trace(ctx context.Context, name string, limit int) ([]model.TraceEntry, error)
	SetResume(ctx context.Context, name, gameID string, channel int) error
	Resume(ctx context.Context, name string) (gameID string, channel int, err error)
	ClearResume(ctx context.Context, name string) error
	ClearWorker(ctx context.Context, name string) error
}
