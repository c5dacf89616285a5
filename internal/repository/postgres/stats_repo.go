package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/SWCCGArena/rando/internal/model"
)

// maxChatMessageLen caps stored chat lines; GEMP itself truncates around
// this length so anything longer is garbage anyway.
const maxChatMessageLen = 1000

// StatsRepo handles the stats store: player aggregates, deck and global
// records, achievements, game history, and the chat log.
type StatsRepo struct {
	db *sql.DB
}

// NewStatsRepo creates a StatsRepo.
func NewStatsRepo(db *sql.DB) *StatsRepo {
	return &StatsRepo{db: db}
}

const playerStatsCols = `player_name, wins, losses, games_played, total_ast_score,
	        best_route_score, best_damage, best_force_remaining, best_time_seconds,
	        achievement_count, first_seen, last_seen`

func scanPlayerStats(row *sql.Row) (*model.PlayerStats, error) {
	var p model.PlayerStats
	err := row.Scan(&p.PlayerName, &p.Wins, &p.Losses, &p.GamesPlayed, &p.TotalAstScore,
		&p.BestRouteScore, &p.BestDamage, &p.BestForceRemaining, &p.BestTimeSeconds,
		&p.AchievementCount, &p.FirstSeen, &p.LastSeen)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordGameResult upserts the opponent's aggregate row after a game. Best
// times only move downward and only when nonzero; the other bests only move
// upward.
func (r *StatsRepo) RecordGameResult(ctx context.Context, playerName string, won bool, routeScore, damage, forceRemaining, timeSeconds int) (*model.PlayerStats, error) {
	wins, losses := 0, 1
	if won {
		wins, losses = 1, 0
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO player_stats (player_name, wins, losses, games_played, total_ast_score,
		                           best_route_score, best_damage, best_force_remaining, best_time_seconds)
		 VALUES ($1, $2, $3, 1, $4, $4, $5, $6, $7)
		 ON CONFLICT (player_name) DO UPDATE SET
		     wins = player_stats.wins + EXCLUDED.wins,
		     losses = player_stats.losses + EXCLUDED.losses,
		     games_played = player_stats.games_played + 1,
		     total_ast_score = player_stats.total_ast_score + EXCLUDED.total_ast_score,
		     best_route_score = GREATEST(player_stats.best_route_score, EXCLUDED.best_route_score),
		     best_damage = GREATEST(player_stats.best_damage, EXCLUDED.best_damage),
		     best_force_remaining = GREATEST(player_stats.best_force_remaining, EXCLUDED.best_force_remaining),
		     best_time_seconds = CASE
		         WHEN EXCLUDED.best_time_seconds = 0 THEN player_stats.best_time_seconds
		         WHEN player_stats.best_time_seconds = 0 THEN EXCLUDED.best_time_seconds
		         ELSE LEAST(player_stats.best_time_seconds, EXCLUDED.best_time_seconds)
		     END,
		     last_seen = now()
		 RETURNING `+playerStatsCols,
		playerName, wins, losses, routeScore, damage, forceRemaining, timeSeconds,
	)
	p, err := scanPlayerStats(row)
	if err != nil {
		return nil, fmt.Errorf("record game result: %w", err)
	}
	return p, nil
}

// InsertGame appends one finished game to the history table. A zero PlayedAt
// means "now"; importers pass the historical timestamp through.
func (r *StatsRepo) InsertGame(ctx context.Context, rec *model.GameRecord) error {
	playedAt := rec.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO game_history (opponent_name, deck_name, my_side, won, route_score, damage_dealt,
		                           force_remaining, turns, duration_seconds, achievements_unlocked, played_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		rec.OpponentName, rec.DeckName, rec.MySide, rec.Won, rec.RouteScore, rec.DamageDealt,
		rec.ForceRemaining, rec.Turns, rec.DurationSeconds, rec.AchievementsUnlocked, playedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	rec.PlayedAt = playedAt
	return nil
}

// UpdateDeckScore records a route score flown against a deck and reports
// whether it beat the deck's previous best.
func (r *StatsRepo) UpdateDeckScore(ctx context.Context, deckName, playerName string, score int) (*model.DeckStats, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("update deck score: %w", err)
	}
	defer tx.Rollback()

	var prevBest int
	err = tx.QueryRowContext(ctx,
		`SELECT best_score FROM deck_stats WHERE deck_name = $1 FOR UPDATE`, deckName,
	).Scan(&prevBest)
	if err != nil && err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("read deck score: %w", err)
	}

	var d model.DeckStats
	err = tx.QueryRowContext(ctx,
		`INSERT INTO deck_stats (deck_name, best_score, best_player, games_played, total_score)
		 VALUES ($1, $3, $2, 1, $3)
		 ON CONFLICT (deck_name) DO UPDATE SET
		     games_played = deck_stats.games_played + 1,
		     total_score = deck_stats.total_score + EXCLUDED.total_score,
		     best_score = GREATEST(deck_stats.best_score, EXCLUDED.best_score),
		     best_player = CASE WHEN EXCLUDED.best_score > deck_stats.best_score
		                        THEN EXCLUDED.best_player ELSE deck_stats.best_player END,
		     updated_at = now()
		 RETURNING deck_name, best_score, best_player, games_played, total_score, updated_at`,
		deckName, playerName, score,
	).Scan(&d.DeckName, &d.BestScore, &d.BestPlayer, &d.GamesPlayed, &d.TotalScore, &d.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("update deck score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("update deck score: %w", err)
	}
	return &d, score > prevBest, nil
}

// UpdatePlayerDeckScore records a player's personal best against one deck,
// reporting whether it improved.
func (r *StatsRepo) UpdatePlayerDeckScore(ctx context.Context, playerName, deckName string, score int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("update player deck score: %w", err)
	}
	defer tx.Rollback()

	var prevBest int
	err = tx.QueryRowContext(ctx,
		`SELECT best_score FROM player_deck_stats WHERE player_name = $1 AND deck_name = $2 FOR UPDATE`,
		playerName, deckName,
	).Scan(&prevBest)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("read player deck score: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO player_deck_stats (player_name, deck_name, best_score, games_played)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (player_name, deck_name) DO UPDATE SET
		     games_played = player_deck_stats.games_played + 1,
		     best_score = GREATEST(player_deck_stats.best_score, EXCLUDED.best_score),
		     updated_at = now()`,
		playerName, deckName, score,
	)
	if err != nil {
		return false, fmt.Errorf("update player deck score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("update player deck score: %w", err)
	}
	return score > prevBest, nil
}

// CheckGlobalRecord updates an all-time record if value beats it. Time
// records improve downward (fastest win); everything else improves upward.
// Returns whether a new record was set and who held it before.
func (r *StatsRepo) CheckGlobalRecord(ctx context.Context, statType string, value int, playerName string) (bool, string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, "", fmt.Errorf("check global record: %w", err)
	}
	defer tx.Rollback()

	var prev int
	var holder string
	err = tx.QueryRowContext(ctx,
		`SELECT value, player_name FROM global_stats WHERE stat_type = $1 FOR UPDATE`, statType,
	).Scan(&prev, &holder)
	if err == sql.ErrNoRows {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO global_stats (stat_type, value, player_name) VALUES ($1, $2, $3)
			 ON CONFLICT (stat_type) DO NOTHING`,
			statType, value, playerName,
		)
		if err != nil {
			return false, "", fmt.Errorf("insert global record: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, "", fmt.Errorf("check global record: %w", err)
		}
		return true, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("read global record: %w", err)
	}

	beaten := value > prev
	if statType == model.RecordTime {
		beaten = value > 0 && (prev == 0 || value < prev)
	}
	if !beaten {
		return false, "", tx.Commit()
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE global_stats SET value = $2, player_name = $3, updated_at = now() WHERE stat_type = $1`,
		statType, value, playerName,
	)
	if err != nil {
		return false, "", fmt.Errorf("update global record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, "", fmt.Errorf("check global record: %w", err)
	}
	return true, holder, nil
}

// CheckPersonalDamage updates the player's best single-battle damage,
// returning whether it improved and what the previous best was. First-time
// opponents get a stats row so mid-game records stick before any game ends.
func (r *StatsRepo) CheckPersonalDamage(ctx context.Context, playerName string, damage int) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("check personal damage: %w", err)
	}
	defer tx.Rollback()

	var prev int
	err = tx.QueryRowContext(ctx,
		`SELECT best_damage FROM player_stats WHERE player_name = $1 FOR UPDATE`, playerName,
	).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return false, 0, fmt.Errorf("read personal damage: %w", err)
	}

	if damage <= prev {
		return false, prev, tx.Commit()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO player_stats (player_name, best_damage) VALUES ($1, $2)
		 ON CONFLICT (player_name) DO UPDATE SET best_damage = EXCLUDED.best_damage`,
		playerName, damage,
	)
	if err != nil {
		return false, 0, fmt.Errorf("update personal damage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("check personal damage: %w", err)
	}
	return true, prev, nil
}

// HasAchievement reports whether the player already unlocked the key.
func (r *StatsRepo) HasAchievement(ctx context.Context, playerName, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM achievements WHERE player_name = $1 AND achievement_key = $2)`,
		playerName, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has achievement: %w", err)
	}
	return exists, nil
}

// UnlockAchievement records an unlock, deduplicating on (player, key), and
// returns whether it was new plus the player's new total.
func (r *StatsRepo) UnlockAchievement(ctx context.Context, playerName, key string) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("unlock achievement: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO achievements (player_name, achievement_key) VALUES ($1, $2)
		 ON CONFLICT (player_name, achievement_key) DO NOTHING`,
		playerName, key,
	)
	if err != nil {
		return false, 0, fmt.Errorf("unlock achievement: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("unlock achievement: %w", err)
	}
	if inserted == 0 {
		if err := tx.Commit(); err != nil {
			return false, 0, fmt.Errorf("unlock achievement: %w", err)
		}
		count, err := r.AchievementCount(ctx, playerName)
		return false, count, err
	}

	var total int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO player_stats (player_name, achievement_count) VALUES ($1, 1)
		 ON CONFLICT (player_name) DO UPDATE SET achievement_count = player_stats.achievement_count + 1
		 RETURNING achievement_count`,
		playerName,
	).Scan(&total)
	if err != nil {
		return false, 0, fmt.Errorf("bump achievement count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("unlock achievement: %w", err)
	}
	return true, total, nil
}

// AchievementCount returns how many achievements the player has unlocked.
func (r *StatsRepo) AchievementCount(ctx context.Context, playerName string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT achievement_count FROM player_stats WHERE player_name = $1`, playerName,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("achievement count: %w", err)
	}
	return count, nil
}

// PlayerAchievements lists a player's unlocks, oldest first.
func (r *StatsRepo) PlayerAchievements(ctx context.Context, playerName string) ([]model.Achievement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT player_name, achievement_key, unlocked_at
		 FROM achievements WHERE player_name = $1 ORDER BY unlocked_at, achievement_key`,
		playerName,
	)
	if err != nil {
		return nil, fmt.Errorf("player achievements: %w", err)
	}
	defer rows.Close()

	var achs []model.Achievement
	for rows.Next() {
		var a model.Achievement
		if err := rows.Scan(&a.PlayerName, &a.AchievementKey, &a.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		achs = append(achs, a)
	}
	return achs, rows.Err()
}

// InsertChatMessage appends one outbound chat line to the log.
func (r *StatsRepo) InsertChatMessage(ctx context.Context, entry *model.ChatLogEntry) error {
	text := entry.MessageText
	if len(text) > maxChatMessageLen {
		text = text[:maxChatMessageLen]
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO chat_messages (game_id, opponent_name, message_type, message_text, turn_number, route_score)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, sent_at`,
		entry.GameID, entry.OpponentName, entry.MessageType, text, entry.TurnNumber, entry.RouteScore,
	).Scan(&entry.ID, &entry.SentAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// PlayerStats fetches one opponent's aggregate row, nil when unseen.
func (r *StatsRepo) PlayerStats(ctx context.Context, playerName string) (*model.PlayerStats, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+playerStatsCols+` FROM player_stats WHERE player_name = $1`, playerName,
	)
	p, err := scanPlayerStats(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("player stats: %w", err)
	}
	return p, nil
}

// DeckStats fetches one deck's record row, nil when no one has played it.
func (r *StatsRepo) DeckStats(ctx context.Context, deckName string) (*model.DeckStats, error) {
	var d model.DeckStats
	err := r.db.QueryRowContext(ctx,
		`SELECT deck_name, best_score, best_player, games_played, total_score, updated_at
		 FROM deck_stats WHERE deck_name = $1`, deckName,
	).Scan(&d.DeckName, &d.BestScore, &d.BestPlayer, &d.GamesPlayed, &d.TotalScore, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("deck stats: %w", err)
	}
	return &d, nil
}

// PlayerDeckBest fetches one player's personal best against one deck, nil
// when they have never flown it.
func (r *StatsRepo) PlayerDeckBest(ctx context.Context, playerName, deckName string) (*model.PlayerDeckStats, error) {
	var p model.PlayerDeckStats
	err := r.db.QueryRowContext(ctx,
		`SELECT player_name, deck_name, best_score, games_played, updated_at
		 FROM player_deck_stats WHERE player_name = $1 AND deck_name = $2`,
		playerName, deckName,
	).Scan(&p.PlayerName, &p.DeckName, &p.BestScore, &p.GamesPlayed, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("player deck best: %w", err)
	}
	return &p, nil
}

// OverallStats returns the site-wide rollup. Wins count from the opponents'
// side of the table, matching what the dashboard shows.
func (r *StatsRepo) OverallStats(ctx context.Context) (*model.OverallStats, error) {
	var s model.OverallStats
	err := r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM game_history),
		        (SELECT COUNT(*) FROM game_history WHERE won),
		        (SELECT COUNT(*) FROM player_stats),
		        (SELECT COUNT(*) FROM achievements)`,
	).Scan(&s.TotalGames, &s.TotalWins, &s.UniquePlayers, &s.TotalAchievements)
	if err != nil {
		return nil, fmt.Errorf("overall stats: %w", err)
	}
	s.TotalLosses = s.TotalGames - s.TotalWins
	if s.TotalGames > 0 {
		s.WinRate = float64(s.TotalWins) / float64(s.TotalGames) * 100
	}
	return &s, nil
}

// GlobalRecord reads one all-time record without updating it, nil when the
// record has never been set.
func (r *StatsRepo) GlobalRecord(ctx context.Context, statType string) (*model.GlobalRecord, error) {
	var g model.GlobalRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT stat_type, value, player_name, updated_at FROM global_stats WHERE stat_type = $1`,
		statType,
	).Scan(&g.StatType, &g.Value, &g.PlayerName, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("global record: %w", err)
	}
	return &g, nil
}

// BestRoute returns the best route score any player has flown and who flew it.
func (r *StatsRepo) BestRoute(ctx context.Context) (int, string, error) {
	var score int
	var player string
	err := r.db.QueryRowContext(ctx,
		`SELECT best_route_score, player_name FROM player_stats
		 WHERE best_route_score > 0 ORDER BY best_route_score DESC, player_name LIMIT 1`,
	).Scan(&score, &player)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("best route: %w", err)
	}
	return score, player, nil
}

// WinStreak returns the player's current consecutive-win count, newest game
// first. Scans at most the last 100 games; nobody streaks past that.
func (r *StatsRepo) WinStreak(ctx context.Context, playerName string) (int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT won FROM game_history WHERE opponent_name = $1
		 ORDER BY played_at DESC, id DESC LIMIT 100`,
		playerName,
	)
	if err != nil {
		return 0, fmt.Errorf("win streak: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var won bool
		if err := rows.Scan(&won); err != nil {
			return 0, fmt.Errorf("scan win streak: %w", err)
		}
		if !won {
			break
		}
		streak++
	}
	return streak, rows.Err()
}

// RecentGames lists the newest games first.
func (r *StatsRepo) RecentGames(ctx context.Context, limit int) ([]model.GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, opponent_name, deck_name, my_side, won, route_score, damage_dealt,
		        force_remaining, turns, duration_seconds, achievements_unlocked, played_at
		 FROM game_history ORDER BY played_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent games: %w", err)
	}
	defer rows.Close()

	var games []model.GameRecord
	for rows.Next() {
		var g model.GameRecord
		if err := rows.Scan(&g.ID, &g.OpponentName, &g.DeckName, &g.MySide, &g.Won, &g.RouteScore,
			&g.DamageDealt, &g.ForceRemaining, &g.Turns, &g.DurationSeconds, &g.AchievementsUnlocked, &g.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// TopPlayers lists the leaderboard ordered by ast_score, wins, or games.
// Unknown orderings fall back to ast_score.
func (r *StatsRepo) TopPlayers(ctx context.Context, orderBy string, limit int) ([]model.PlayerStats, error) {
	col := "total_ast_score"
	switch orderBy {
	case "wins":
		col = "wins"
	case "games":
		col = "games_played"
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+playerStatsCols+` FROM player_stats ORDER BY `+col+` DESC, player_name LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	defer rows.Close()

	var players []model.PlayerStats
	for rows.Next() {
		var p model.PlayerStats
		if err := rows.Scan(&p.PlayerName, &p.Wins, &p.Losses, &p.GamesPlayed, &p.TotalAstScore,
			&p.BestRouteScore, &p.BestDamage, &p.BestForceRemaining, &p.BestTimeSeconds,
			&p.AchievementCount, &p.FirstSeen, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}
