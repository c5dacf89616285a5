package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/bot"
	"github.com/SWCCGArena/rando/internal/config"
	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/internal/repository"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

// cacheTimeout bounds the advisory cache writes made from worker goroutines.
const cacheTimeout = 3 * time.Second

var (
	ErrUnknownWorker  = errors.New("unknown worker")
	ErrAlreadyRunning = errors.New("worker already running")
	ErrNotRunning     = errors.New("worker not running")
)

// WorkerDef is one registered bot seat: a name plus the config it plays
// with. Multiple seats differ in credentials, deck, or brain.
type WorkerDef struct {
	Name   string
	Config *config.Config
}

type runningWorker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// WorkerManager owns the bot workers: registration, start/stop, and the
// read side the admin API serves. It also implements bot.StatePublisher,
// fanning worker state out to the live cache and the WebSocket hub.
//
// Worker goroutines only ever touch the manager through the publisher
// methods; everything else runs on admin request goroutines.
type WorkerManager struct {
	db    *swccg.CardDB
	stats *StatsService
	cache repository.LiveCache
	hub   Broadcaster
	log   zerolog.Logger

	mu      sync.Mutex
	defs    map[string]WorkerDef
	order   []string
	running map[string]*runningWorker
}

// NewWorkerManager builds a manager. stats and cache may be nil for
// headless runs; the hub may be a NoopBroadcaster.
func NewWorkerManager(db *swccg.CardDB, stats *StatsService, cache repository.LiveCache, hub Broadcaster, log zerolog.Logger) *WorkerManager {
	if hub == nil {
		hub = NoopBroadcaster{}
	}
	return &WorkerManager{
		db:      db,
		stats:   stats,
		cache:   cache,
		hub:     hub,
		log:     log.With().Str("component", "workers").Logger(),
		defs:    make(map[string]WorkerDef),
		running: make(map[string]*runningWorker),
	}
}

// Register adds a worker definition without starting it. Re-registering a
// name replaces its config for the next start.
func (m *WorkerManager) Register(def WorkerDef) error {
	if def.Name == "" {
		return fmt.Errorf("register worker: empty name")
	}
	if def.Config == nil {
		return fmt.Errorf("register worker %s: nil config", def.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.defs[def.Name]; !known {
		m.order = append(m.order, def.Name)
	}
	m.defs[def.Name] = def
	return nil
}

// Names returns the registered worker names in registration order.
func (m *WorkerManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Running reports whether the named worker currently has a goroutine.
func (m *WorkerManager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[name]
	return ok
}

// Start spins up the named worker. The worker owns its client, board, and
// brain; the manager only holds the cancel handle.
func (m *WorkerManager) Start(name string) error {
	m.mu.Lock()
	def, known := m.defs[name]
	if !known {
		m.mu.Unlock()
		return fmt.Errorf("start worker %q: %w", name, ErrUnknownWorker)
	}
	if _, already := m.running[name]; already {
		m.mu.Unlock()
		return fmt.Errorf("start worker %q: %w", name, ErrAlreadyRunning)
	}

	wlog := m.log.With().Str("worker", name).Logger()
	client, err := bot.NewClient(def.Config.GempURL, def.Config.GempUsername,
		def.Config.RequestTimeout, def.Config.LocalFastMode, wlog)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("start worker %s: %w", name, err)
	}
	coord := bot.NewCoordinator(client, pacingFromConfig(def.Config), wlog)

	var brainStats bot.AstrogatorStats
	var chatStats bot.ChatStats
	if m.stats != nil {
		brainStats = m.stats
		chatStats = m.stats
	}
	brain := bot.BrainForName(def.Config.Brain, m.db, brainStats, wlog)

	worker := bot.NewWorker(bot.WorkerConfig{
		Name:        name,
		Config:      def.Config,
		Coordinator: coord,
		CardDB:      m.db,
		Brain:       brain,
		Stats:       chatStats,
		Publisher:   m,
	}, wlog)

	ctx, cancel := context.WithCancel(context.Background())
	rw := &runningWorker{cancel: cancel, done: make(chan struct{})}
	m.running[name] = rw
	m.mu.Unlock()

	go func() {
		defer close(rw.done)
		err := worker.Run(ctx)
		if err != nil {
			wlog.Error().Err(err).Msg("Worker exited with error")
		} else {
			wlog.Info().Msg("Worker stopped")
		}

		m.mu.Lock()
		delete(m.running, name)
		m.mu.Unlock()

		m.PublishStatus(model.WorkerStatus{
			Name:      name,
			State:     string(bot.StateStopped),
			UpdatedAt: time.Now(),
		})
	}()

	m.log.Info().Str("worker", name).Str("brain", def.Config.Brain).Msg("Worker started")
	return nil
}

// Stop cancels the named worker and waits for its goroutine to drain. The
// worker notices between suspension points, so this returns within one
// poll interval.
func (m *WorkerManager) Stop(name string) error {
	m.mu.Lock()
	rw, ok := m.running[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("stop worker %q: %w", name, ErrNotRunning)
	}
	rw.cancel()
	<-rw.done
	return nil
}

// StopAll stops every running worker, used during shutdown.
func (m *WorkerManager) StopAll() {
	m.mu.Lock()
	var waiting []*runningWorker
	for _, rw := range m.running {
		rw.cancel()
		waiting = append(waiting, rw)
	}
	m.mu.Unlock()
	for _, rw := range waiting {
		<-rw.done
	}
}

// List returns the status of every registered worker, live data from the
// cache where present, a synthesized stopped row otherwise.
func (m *WorkerManager) List(ctx context.Context) []model.WorkerStatus {
	names := m.Names()
	byName := make(map[string]model.WorkerStatus, len(names))
	if m.cache != nil {
		statuses, err := m.cache.WorkerStatuses(ctx, names)
		if err != nil {
			m.log.Error().Err(err).Msg("Worker status lookup failed")
		}
		for _, s := range statuses {
			byName[s.Name] = s
		}
	}

	out := make([]model.WorkerStatus, 0, len(names))
	for _, name := range names {
		if s, ok := byName[name]; ok {
			out = append(out, s)
			continue
		}
		state := string(bot.StateStopped)
		if m.Running(name) {
			state = string(bot.StateConnecting)
		}
		out = append(out, model.WorkerStatus{Name: name, State: state})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Detail returns one worker's status with its latest board snapshot.
func (m *WorkerManager) Detail(ctx context.Context, name string) (*model.WorkerDetail, error) {
	m.mu.Lock()
	_, known := m.defs[name]
	m.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("worker detail %q: %w", name, ErrUnknownWorker)
	}

	detail := &model.WorkerDetail{
		WorkerStatus: model.WorkerStatus{Name: name, State: string(bot.StateStopped)},
	}
	if m.Running(name) {
		detail.State = string(bot.StateConnecting)
	}
	if m.cache == nil {
		return detail, nil
	}

	if status, err := m.cache.WorkerStatus(ctx, name); err != nil {
		m.log.Error().Err(err).Str("worker", name).Msg("Worker status lookup failed")
	} else if status != nil {
		detail.WorkerStatus = *status
	}
	if board, err := m.cache.Board(ctx, name); err != nil {
		m.log.Error().Err(err).Str("worker", name).Msg("Board lookup failed")
	} else {
		detail.Board = board
	}
	return detail, nil
}

// Board returns one worker's latest board snapshot.
func (m *WorkerManager) Board(ctx context.Context, name string) (json.RawMessage, error) {
	if m.cache == nil {
		return nil, nil
	}
	return m.cache.Board(ctx, name)
}

// Trace returns the worker's recent decisions, newest first.
func (m *WorkerManager) Trace(ctx context.Context, name string, limit int) ([]model.TraceEntry, error) {
	if m.cache == nil {
		return nil, nil
	}
	return m.cache.Trace(ctx, name, limit)
}

func pacingFromConfig(cfg *config.Config) bot.PacingConfig {
	pc := bot.DefaultPacing()
	if cfg.DelayQuick > 0 {
		pc.Quick = cfg.DelayQuick
	}
	if cfg.DelayNormal > 0 {
		pc.Normal = cfg.DelayNormal
	}
	if cfg.DelayBackground > 0 {
		pc.Background = cfg.DelayBackground
	}
	if cfg.DelayMinimum > 0 {
		pc.Min = cfg.DelayMinimum
	}
	return pc
}

// cacheCtx builds a short-lived context for advisory cache writes.
func cacheCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cacheTimeout)
}

// PublishStatus implements bot.StatePublisher.
func (m *WorkerManager) PublishStatus(status model.WorkerStatus) {
	if m.cache != nil {
		ctx, cancel := cacheCtx()
		if err := m.cache.SetWorkerStatus(ctx, status); err != nil {
			m.log.Error().Err(err).Str("worker", status.Name).Msg("Status cache write failed")
		}
		cancel()
	}
	m.hub.BroadcastWorkerEvent(status.Name, EventStatusChange, status)
}

// PublishBoard implements bot.StatePublisher.
func (m *WorkerManager) PublishBoard(name string, snapshot []byte) {
	if m.cache != nil {
		ctx, cancel := cacheCtx()
		if err := m.cache.SetBoard(ctx, name, snapshot); err != nil {
			m.log.Error().Err(err).Str("worker", name).Msg("Board cache write failed")
		}
		cancel()
	}
	m.hub.BroadcastWorkerEvent(name, EventBoardUpdate, json.RawMessage(snapshot))
}

// PublishTrace implements bot.StatePublisher.
func (m *WorkerManager) PublishTrace(name string, entry model.TraceEntry) {
	if m.cache != nil {
		ctx, cancel := cacheCtx()
		if err := m.cache.PushTrace(ctx, name, entry); err != nil {
			m.log.Error().Err(err).Str("worker", name).Msg("Trace cache write failed")
		}
		cancel()
	}
	m.hub.BroadcastWorkerEvent(name, EventDecision, entry)
}

// PublishResume implements bot.StatePublisher.
func (m *WorkerManager) PublishResume(name, gameID string, channelNumber int) {
	if m.cache == nil {
		return
	}
	ctx, cancel := cacheCtx()
	defer cancel()
	if err := m.cache.SetResume(ctx, name, gameID, channelNumber); err != nil {
		m.log.Error().Err(err).Str("worker", name).Msg("Resume cache write failed")
	}
}

// ClearResume implements bot.StatePublisher.
func (m *WorkerManager) ClearResume(name string) {
	if m.cache == nil {
		return
	}
	ctx, cancel := cacheCtx()
	defer cancel()
	if err := m.cache.ClearResume(ctx, name); err != nil {
		m.log.Error().Err(err).Str("worker", name).Msg("Resume cache clear failed")
	}
}

// PublishGameEnded implements bot.StatePublisher.
func (m *WorkerManager) PublishGameEnded(name, opponent string, botWon bool) {
	m.hub.BroadcastWorkerEvent(name, EventGameEnded, map[string]any{
		"opponent": opponent,
		"bot_won":  botWon,
	})
}
