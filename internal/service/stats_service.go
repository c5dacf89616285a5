package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/bot"
	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/internal/repository"
)

// statsTimeout bounds every store call made from the worker goroutine. The
// stats store is off the hot path; a slow database must never stall a game.
const statsTimeout = 5 * time.Second

// StatsService adapts the persistent stats store to the context-free
// interfaces the bot's chat and brain layers consume. Every method absorbs
// storage failures: it logs, returns the zero answer, and the game carries
// on. It satisfies bot.ChatStats and bot.AstrogatorStats.
type StatsService struct {
	repo repository.StatsRepository
	log  zerolog.Logger
}

// NewStatsService wraps a stats repository.
func NewStatsService(repo repository.StatsRepository, log zerolog.Logger) *StatsService {
	return &StatsService{repo: repo, log: log.With().Str("component", "stats").Logger()}
}

func (s *StatsService) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), statsTimeout)
}

// RecordGameResult upserts the opponent's aggregate row after a game.
func (s *StatsService) RecordGameResult(res bot.GameResult) (*model.PlayerStats, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	stats, err := s.repo.RecordGameResult(ctx, res.PlayerName, res.Won,
		res.RouteScore, res.Damage, res.ForceRemaining, res.TimeSeconds)
	if err != nil {
		s.log.Error().Err(err).Str("player", res.PlayerName).Msg("Record game result failed")
		return nil, false
	}
	return stats, true
}

// RecordGame appends one game to the history table.
func (s *StatsService) RecordGame(rec *model.GameRecord) {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.repo.InsertGame(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("opponent", rec.OpponentName).Msg("Insert game failed")
	}
}

// UpdateDeckScore records a route score flown against a deck.
func (s *StatsService) UpdateDeckScore(deckName, playerName string, score int) (*model.DeckStats, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	deck, isRecord, err := s.repo.UpdateDeckScore(ctx, deckName, playerName, score)
	if err != nil {
		s.log.Error().Err(err).Str("deck", deckName).Msg("Update deck score failed")
		return nil, false
	}
	return deck, isRecord
}

// UpdatePlayerDeckScore records the player's personal best on a deck.
func (s *StatsService) UpdatePlayerDeckScore(playerName, deckName string, score int) bool {
	ctx, cancel := s.ctx()
	defer cancel()
	improved, err := s.repo.UpdatePlayerDeckScore(ctx, playerName, deckName, score)
	if err != nil {
		s.log.Error().Err(err).Str("player", playerName).Str("deck", deckName).
			Msg("Update player deck score failed")
		return false
	}
	return improved
}

// CheckGlobalRecord updates an all-time record if value beats it.
func (s *StatsService) CheckGlobalRecord(statType string, value int, playerName string) (bool, string) {
	ctx, cancel := s.ctx()
	defer cancel()
	isRecord, previous, err := s.repo.CheckGlobalRecord(ctx, statType, value, playerName)
	if err != nil {
		s.log.Error().Err(err).Str("stat", statType).Msg("Check global record failed")
		return false, ""
	}
	return isRecord, previous
}

// CheckPersonalDamage updates the player's best single-battle damage.
func (s *StatsService) CheckPersonalDamage(playerName string, damage int) (bool, int) {
	ctx, cancel := s.ctx()
	defer cancel()
	isRecord, previous, err := s.repo.CheckPersonalDamage(ctx, playerName, damage)
	if err != nil {
		s.log.Error().Err(err).Str("player", playerName).Msg("Check personal damage failed")
		return false, 0
	}
	return isRecord, previous
}

// HasAchievement reports whether the player already unlocked the key.
func (s *StatsService) HasAchievement(player, key string) bool {
	ctx, cancel := s.ctx()
	defer cancel()
	has, err := s.repo.HasAchievement(ctx, player, key)
	if err != nil {
		s.log.Error().Err(err).Str("player", player).Str("key", key).Msg("Has achievement failed")
		return false
	}
	return has
}

// UnlockAchievement records the unlock and returns whether it was new plus
// the player's new total.
func (s *StatsService) UnlockAchievement(player, key string) (bool, int) {
	ctx, cancel := s.ctx()
	defer cancel()
	isNew, total, err := s.repo.UnlockAchievement(ctx, player, key)
	if err != nil {
		s.log.Error().Err(err).Str("player", player).Str("key", key).Msg("Unlock achievement failed")
		return false, 0
	}
	return isNew, total
}

// AchievementCount returns how many achievements the player has.
func (s *StatsService) AchievementCount(player string) int {
	ctx, cancel := s.ctx()
	defer cancel()
	count, err := s.repo.AchievementCount(ctx, player)
	if err != nil {
		s.log.Error().Err(err).Str("player", player).Msg("Achievement count failed")
		return 0
	}
	return count
}

// PlayerRecord fetches one player's aggregates.
func (s *StatsService) PlayerRecord(playerName string) (*model.PlayerStats, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	stats, err := s.repo.PlayerStats(ctx, playerName)
	if err != nil {
		s.log.Error().Err(err).Str("player", playerName).Msg("Player stats failed")
		return nil, false
	}
	if stats == nil {
		return nil, false
	}
	return stats, true
}

// SiteStats returns the site-wide rollup.
func (s *StatsService) SiteStats() (*model.OverallStats, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	stats, err := s.repo.OverallStats(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Overall stats failed")
		return nil, false
	}
	return stats, true
}

// GlobalRecord reads an all-time record without updating it.
func (s *StatsService) GlobalRecord(statType string) (int, string, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	rec, err := s.repo.GlobalRecord(ctx, statType)
	if err != nil {
		s.log.Error().Err(err).Str("stat", statType).Msg("Global record failed")
		return 0, "", false
	}
	if rec == nil {
		return 0, "", false
	}
	return rec.Value, rec.PlayerName, true
}

// BestRoute returns the best route score any player has flown.
func (s *StatsService) BestRoute() (int, string, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	score, holder, err := s.repo.BestRoute(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Best route failed")
		return 0, "", false
	}
	return score, holder, score > 0
}

// WinStreak returns the player's current consecutive-win count.
func (s *StatsService) WinStreak(playerName string) int {
	ctx, cancel := s.ctx()
	defer cancel()
	streak, err := s.repo.WinStreak(ctx, playerName)
	if err != nil {
		s.log.Error().Err(err).Str("player", playerName).Msg("Win streak failed")
		return 0
	}
	return streak
}

// LogChatMessage appends one outbound chat line to the log.
func (s *StatsService) LogChatMessage(entry *model.ChatLogEntry) {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.repo.InsertChatMessage(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("type", entry.MessageType).Msg("Insert chat message failed")
	}
}

// PlayerTotalScore returns the player's lifetime route score total for the
// astrogator's chat context.
func (s *StatsService) PlayerTotalScore(player string) (int, bool) {
	stats, ok := s.PlayerRecord(player)
	if !ok {
		return 0, false
	}
	return stats.TotalAstScore, true
}

// DeckRecord returns the best route score anyone has flown against a deck.
func (s *StatsService) DeckRecord(deck string) (int, string, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	d, err := s.repo.DeckStats(ctx, deck)
	if err != nil {
		s.log.Error().Err(err).Str("deck", deck).Msg("Deck stats failed")
		return 0, "", false
	}
	if d == nil {
		return 0, "", false
	}
	return d.BestScore, d.BestPlayer, true
}

// PlayerDeckBest returns one player's personal best against one deck.
func (s *StatsService) PlayerDeckBest(player, deck string) (int, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	p, err := s.repo.PlayerDeckBest(ctx, player, deck)
	if err != nil {
		s.log.Error().Err(err).Str("player", player).Str("deck", deck).Msg("Player deck best failed")
		return 0, false
	}
	if p == nil {
		return 0, false
	}
	return p.BestScore, true
}
