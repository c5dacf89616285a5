package service

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/bot"
	"github.com/SWCCGArena/rando/internal/model"
)

func newTestStatsService(repo *mockStatsRepo) *StatsService {
	return NewStatsService(repo, zerolog.Nop())
}

func TestRecordGameResultAggregates(t *testing.T) {
	repo := newMockStatsRepo()
	svc := newTestStatsService(repo)

	stats, ok := svc.RecordGameResult(bot.GameResult{
		PlayerName: "vader", Won: true, RouteScore: 42, Damage: 7, ForceRemaining: 12, TimeSeconds: 900,
	})
	if !ok {
		t.Fatal("expected record to succeed")
	}
	if stats.Wins != 1 || stats.GamesPlayed != 1 {
		t.Errorf("expected 1 win / 1 game, got %d / %d", stats.Wins, stats.GamesPlayed)
	}
	if stats.TotalAstScore != 42 {
		t.Errorf("expected total score 42, got %d", stats.TotalAstScore)
	}

	stats, ok = svc.RecordGameResult(bot.GameResult{PlayerName: "vader", Won: false, RouteScore: 10})
	if !ok {
		t.Fatal("expected second record to succeed")
	}
	if stats.Losses != 1 || stats.TotalAstScore != 52 {
		t.Errorf("expected 1 loss and total 52, got %d / %d", stats.Losses, stats.TotalAstScore)
	}
}

func TestStatsServiceAbsorbsStoreFailures(t *testing.T) {
	repo := newMockStatsRepo()
	repo.failing = true
	svc := newTestStatsService(repo)

	if _, ok := svc.RecordGameResult(bot.GameResult{PlayerName: "x"}); ok {
		t.Error("expected failure to report not-ok")
	}
	if _, ok := svc.PlayerRecord("x"); ok {
		t.Error("expected player record miss on failure")
	}
	if _, ok := svc.SiteStats(); ok {
		t.Error("expected site stats miss on failure")
	}
	if streak := svc.WinStreak("x"); streak != 0 {
		t.Errorf("expected zero streak on failure, got %d", streak)
	}
	if isNew, _ := svc.UnlockAchievement("x", "first_win"); isNew {
		t.Error("expected achievement unlock to report false on failure")
	}
	// None of the calls above may panic or propagate errors; the worker
	// keeps playing with a dead database.
	svc.RecordGame(&model.GameRecord{OpponentName: "x"})
	svc.LogChatMessage(&model.ChatLogEntry{MessageType: model.ChatGeneral, MessageText: "gg"})
}

func TestAchievementRoundTrip(t *testing.T) {
	repo := newMockStatsRepo()
	svc := newTestStatsService(repo)

	if svc.HasAchievement("luke", "first_win") {
		t.Error("expected no achievement before unlock")
	}
	isNew, total := svc.UnlockAchievement("luke", "first_win")
	if !isNew || total != 1 {
		t.Errorf("expected new unlock with total 1, got %v / %d", isNew, total)
	}
	isNew, total = svc.UnlockAchievement("luke", "first_win")
	if isNew {
		t.Error("expected repeat unlock to report not-new")
	}
	if total != 1 {
		t.Errorf("expected total to stay 1, got %d", total)
	}
	if !svc.HasAchievement("luke", "first_win") {
		t.Error("expected achievement after unlock")
	}
	if count := svc.AchievementCount("luke"); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
}

func TestDeckAndGlobalRecords(t *testing.T) {
	repo := newMockStatsRepo()
	svc := newTestStatsService(repo)

	deck, isRecord := svc.UpdateDeckScore("Hyperdrive", "han", 80)
	if !isRecord {
		t.Error("first score should set the deck record")
	}
	if deck.BestPlayer != "han" {
		t.Errorf("expected best player han, got %s", deck.BestPlayer)
	}
	if _, isRecord = svc.UpdateDeckScore("Hyperdrive", "lando", 60); isRecord {
		t.Error("lower score should not set a record")
	}

	best, holder, ok := svc.DeckRecord("Hyperdrive")
	if !ok || best != 80 || holder != "han" {
		t.Errorf("expected 80/han, got %d/%s ok=%v", best, holder, ok)
	}
	if _, _, ok := svc.DeckRecord("Unknown Deck"); ok {
		t.Error("expected miss for unplayed deck")
	}

	if improved := svc.UpdatePlayerDeckScore("lando", "Hyperdrive", 60); !improved {
		t.Error("first personal score should improve")
	}
	score, ok := svc.PlayerDeckBest("lando", "Hyperdrive")
	if !ok || score != 60 {
		t.Errorf("expected personal best 60, got %d ok=%v", score, ok)
	}

	isRecord, previous := svc.CheckGlobalRecord(model.RecordDamage, 25, "han")
	if !isRecord || previous != "" {
		t.Errorf("expected fresh global record, got %v / %q", isRecord, previous)
	}
	isRecord, previous = svc.CheckGlobalRecord(model.RecordDamage, 30, "lando")
	if !isRecord || previous != "han" {
		t.Errorf("expected new record over han, got %v / %q", isRecord, previous)
	}
	value, holder, ok := svc.GlobalRecord(model.RecordDamage)
	if !ok || value != 30 || holder != "lando" {
		t.Errorf("expected 30/lando, got %d/%s ok=%v", value, holder, ok)
	}
}

func TestPersonalDamageRecord(t *testing.T) {
	repo := newMockStatsRepo()
	svc := newTestStatsService(repo)

	isRecord, previous := svc.CheckPersonalDamage("chewie", 10)
	if !isRecord || previous != 0 {
		t.Errorf("expected first damage to be a record, got %v / %d", isRecord, previous)
	}
	isRecord, previous = svc.CheckPersonalDamage("chewie", 8)
	if isRecord {
		t.Error("lower damage should not be a record")
	}
	if previous != 10 {
		t.Errorf("expected previous best 10, got %d", previous)
	}
}

func TestWinStreakAndBestRoute(t *testing.T) {
	repo := newMockStatsRepo()
	svc := newTestStatsService(repo)

	for i := 0; i < 3; i++ {
		svc.RecordGameResult(bot.GameResult{PlayerName: "wedge", Won: true, RouteScore: 20 + i})
	}
	if streak := svc.WinStreak("wedge"); streak != 3 {
		t.Errorf("expected streak 3, got %d", streak)
	}
	svc.RecordGameResult(bot.GameResult{PlayerName: "wedge", Won: false})
	if streak := svc.WinStreak("wedge"); streak != 0 {
		t.Errorf("expected streak reset, got %d", streak)
	}

	best, holder, ok := svc.BestRoute()
	if !ok || best != 22 || holder != "wedge" {
		t.Errorf("expected best route 22/wedge, got %d/%s ok=%v", best, holder, ok)
	}
}

func TestPlayerTotalScoreForAstrogator(t *testing.T) {
	repo := newMockStatsRepo()
	svc := newTestStatsService(repo)

	if _, ok := svc.PlayerTotalScore("nobody"); ok {
		t.Error("expected miss for unseen player")
	}
	svc.RecordGameResult(bot.GameResult{PlayerName: "biggs", Won: false, RouteScore: 15})
	svc.RecordGameResult(bot.GameResult{PlayerName: "biggs", Won: true, RouteScore: 25})
	total, ok := svc.PlayerTotalScore("biggs")
	if !ok || total != 40 {
		t.Errorf("expected total 40, got %d ok=%v", total, ok)
	}
}
