package model

import (
	"encoding/json"
	"time"
)

// User represents an admin-UI user authenticated via OAuth or dev login.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlayerStats aggregates one opponent's lifetime results against the bot.
type PlayerStats struct {
	PlayerName         string    `json:"player_name"`
	Wins               int       `json:"wins"`
	Losses             int       `json:"losses"`
	GamesPlayed        int       `json:"games_played"`
	TotalAstScore      int       `json:"total_ast_score"`
	BestRouteScore     int       `json:"best_route_score"`
	BestDamage         int       `json:"best_damage"`
	BestForceRemaining int       `json:"best_force_remaining"`
	BestTimeSeconds    int       `json:"best_time_seconds"`
	AchievementCount   int       `json:"achievement_count"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
}

// WinRate returns the player's win percentage, 0 when no games are recorded.
func (p *PlayerStats) WinRate() float64 {
	if p.GamesPlayed == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.GamesPlayed) * 100
}

// DeckStats tracks the best route score anyone has flown against a deck.
type DeckStats struct {
	DeckName    string    `json:"deck_name"`
	BestScore   int       `json:"best_score"`
	BestPlayer  string    `json:"best_player"`
	GamesPlayed int       `json:"games_played"`
	TotalScore  int       `json:"total_score"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlayerDeckStats tracks one player's personal best against one deck.
type PlayerDeckStats struct {
	PlayerName  string    `json:"player_name"`
	DeckName    string    `json:"deck_name"`
	BestScore   int       `json:"best_score"`
	GamesPlayed int       `json:"games_played"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GlobalRecord is a single all-time record (best damage, best route, ...).
type GlobalRecord struct {
	StatType   string    `json:"stat_type"`
	Value      int       `json:"value"`
	PlayerName string    `json:"player_name,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Global record stat types.
const (
	RecordDamage   = "damage"
	RecordAstScore = "ast_score"
	RecordForce    = "force"
	RecordTime     = "time"
)

// GameRecord is one finished game from the bot's point of view.
type GameRecord struct {
	ID                   int64     `json:"id"`
	OpponentName         string    `json:"opponent_name"`
	DeckName             string    `json:"deck_name"`
	MySide               string    `json:"my_side"`
	Won                  bool      `json:"won"` // true when the opponent beat the bot
	RouteScore           int       `json:"route_score"`
	DamageDealt          int       `json:"damage_dealt"`
	ForceRemaining       int       `json:"force_remaining"`
	Turns                int       `json:"turns"`
	DurationSeconds      int       `json:"duration_seconds"`
	AchievementsUnlocked int       `json:"achievements_unlocked"`
	PlayedAt             time.Time `json:"played_at"`
}

// Achievement is one unlocked achievement for one player.
type Achievement struct {
	PlayerName     string    `json:"player_name"`
	AchievementKey string    `json:"achievement_key"`
	UnlockedAt     time.Time `json:"unlocked_at"`
}

// ChatLogEntry is one outbound chat line the bot sent during a game.
type ChatLogEntry struct {
	ID           int64     `json:"id"`
	GameID       string    `json:"game_id"`
	OpponentName string    `json:"opponent_name"`
	MessageType  string    `json:"message_type"` // welcome, turn, damage, achievement, end, general
	MessageText  string    `json:"message_text"`
	TurnNumber   int       `json:"turn_number"`
	RouteScore   int       `json:"route_score"`
	SentAt       time.Time `json:"sent_at"`
}

// Chat message types recorded in the chat log.
const (
	ChatWelcome     = "welcome"
	ChatTurn        = "turn"
	ChatDamage      = "damage"
	ChatAchievement = "achievement"
	ChatEnd         = "end"
	ChatGeneral     = "general"
)

// OverallStats is the site-wide rollup shown on the admin dashboard.
type OverallStats struct {
	TotalGames        int     `json:"total_games"`
	TotalWins         int     `json:"total_wins"`
	TotalLosses       int     `json:"total_losses"`
	WinRate           float64 `json:"win_rate"`
	UniquePlayers     int     `json:"unique_players"`
	TotalAchievements int     `json:"total_achievements"`
}

// WorkerStatus is the live view of one bot worker for the admin API.
type WorkerStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	GameID    string    `json:"game_id,omitempty"`
	Opponent  string    `json:"opponent,omitempty"`
	Deck      string    `json:"deck,omitempty"`
	Turn      int       `json:"turn,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkerDetail bundles a worker's status with its latest board snapshot.
type WorkerDetail struct {
	WorkerStatus
	Board json.RawMessage `json:"board,omitempty"`
}

// TraceEntry is one decision taken by a worker, kept in a bounded ring.
type TraceEntry struct {
	Time         time.Time `json:"time"`
	GameID       string    `json:"game_id"`
	DecisionID   string    `json:"decision_id"`
	DecisionType string    `json:"decision_type"`
	Text         string    `json:"text"`
	Chosen       string    `json:"chosen"`
	Reason       string    `json:"reason"`
}
