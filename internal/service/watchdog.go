package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	redisrepo "github.com/SWCCGArena/rando/internal/repository/redis"
)

// Watchdog watches for worker status keys expiring out of Redis and tells
// the admin UI the worker went dark. A healthy worker refreshes its status
// key on every publish; silence past the TTL means the goroutine is gone
// or the process died. A polling fallback covers Redis servers without
// keyspace notifications enabled.
type Watchdog struct {
	rdb     *redis.Client
	hub     Broadcaster
	manager *WorkerManager
	log     zerolog.Logger

	pollInterval time.Duration
	lastSeen     map[string]bool
}

// NewWatchdog creates a watchdog over the shared Redis connection.
func NewWatchdog(rdb *redis.Client, hub Broadcaster, manager *WorkerManager, log zerolog.Logger) *Watchdog {
	if hub == nil {
		hub = NoopBroadcaster{}
	}
	return &Watchdog{
		rdb:          rdb,
		hub:          hub,
		manager:      manager,
		log:          log.With().Str("component", "watchdog").Logger(),
		pollInterval: 30 * time.Second,
		lastSeen:     make(map[string]bool),
	}
}

// Start runs the keyspace listener and the polling fallback until ctx ends.
func (w *Watchdog) Start(ctx context.Context) {
	go w.listenKeyspace(ctx)
	w.poll(ctx)
}

func (w *Watchdog) listenKeyspace(ctx context.Context) {
	pubsub := w.rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer pubsub.Close()

	w.log.Info().Msg("Watchdog listening for expired worker keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.handleExpiry(msg.Payload)
		}
	}
}

// handleExpiry inspects an expired key and broadcasts offline for worker
// status keys. Board and trace keys expire too; those stay quiet.
func (w *Watchdog) handleExpiry(key string) {
	name, ok := redisrepo.WorkerNameFromStatusKey(key)
	if !ok {
		return
	}
	w.log.Warn().Str("worker", name).Msg("Worker status expired, marking offline")
	w.hub.BroadcastWorkerEvent(name, EventWorkerOffline, map[string]any{"worker": name})
}

// poll compares each registered worker's cached status against the last
// sweep and broadcasts offline on a live-to-missing transition.
func (w *Watchdog) poll(ctx context.Context) {
	if w.manager == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context) {
	for _, status := range w.manager.List(ctx) {
		alive := !status.UpdatedAt.IsZero()
		if w.lastSeen[status.Name] && !alive {
			w.log.Warn().Str("worker", status.Name).Msg("Worker status missing on sweep, marking offline")
			w.hub.BroadcastWorkerEvent(status.Name, EventWorkerOffline, map[string]any{"worker": status.Name})
		}
		w.lastSeen[status.Name] = alive
	}
}
