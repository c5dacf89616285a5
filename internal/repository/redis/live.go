package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SWCCGArena/rando/internal/model"
)

// Key TTLs. Status keys are short-lived and kept alive by worker heartbeats;
// their expiry is what the offline watchdog listens for. Boards and traces
// are UI sugar that can go stale. Resume pointers must outlive a crashed
// worker so a restart can rejoin its table, but not pile up forever.
const (
	statusTTL = 90 * time.Second
	boardTTL  = time.Hour
	traceTTL  = 24 * time.Hour
	resumeTTL = 24 * time.Hour

	// traceRingSize bounds the per-worker decision trace.
	traceRingSize = 100
)

// Key patterns for live worker state.
func statusKey(name string) string { return "worker:" + name + ":status" }
func boardKey(name string) string  { return "worker:" + name + ":board" }
func traceKey(name string) string  { return "worker:" + name + ":trace" }
func resumeKey(name string) string { return "worker:" + name + ":resume" }

// WorkerNameFromStatusKey extracts the worker name from an expired-key
// notification payload, reporting whether the key was a status key at all.
func WorkerNameFromStatusKey(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, "worker:")
	if !ok {
		return "", false
	}
	name, ok = strings.CutSuffix(name, ":status")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// resumePoint is the stored shape of a resume pointer.
type resumePoint struct {
	GameID  string `json:"game_id"`
	Channel int    `json:"channel"`
}

// SetWorkerStatus stores a worker's live status under a short TTL.
func (c *Client) SetWorkerStatus(ctx context.Context, status model.WorkerStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal worker status: %w", err)
	}
	return c.rdb.Set(ctx, statusKey(status.Name), data, statusTTL).Err()
}

// WorkerStatus retrieves one worker's live status, nil when absent or expired.
func (c *Client) WorkerStatus(ctx context.Context, name string) (*model.WorkerStatus, error) {
	data, err := c.rdb.Get(ctx, statusKey(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get worker status: %w", err)
	}
	var st model.WorkerStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal worker status: %w", err)
	}
	return &st, nil
}

// WorkerStatuses retrieves the statuses for the named workers, skipping ones
// with no live key.
func (c *Client) WorkerStatuses(ctx context.Context, names []string) ([]model.WorkerStatus, error) {
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = statusKey(name)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget worker statuses: %w", err)
	}
	statuses := make([]model.WorkerStatus, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var st model.WorkerStatus
		if err := json.Unmarshal([]byte(s), &st); err != nil {
			continue
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// Heartbeat refreshes a worker's status TTL without rewriting the value.
// A missing key is not an error; the next status publish recreates it.
func (c *Client) Heartbeat(ctx context.Context, name string) error {
	return c.rdb.Expire(ctx, statusKey(name), statusTTL).Err()
}

// SetBoard stores a worker's latest board snapshot.
func (c *Client) SetBoard(ctx context.Context, name string, snapshot []byte) error {
	return c.rdb.Set(ctx, boardKey(name), snapshot, boardTTL).Err()
}

// Board retrieves a worker's latest board snapshot, nil when absent.
func (c *Client) Board(ctx context.Context, name string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, boardKey(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	return json.RawMessage(data), nil
}

// PushTrace prepends a decision to the worker's bounded trace ring.
func (c *Client) PushTrace(ctx context.Context, name string, entry model.TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal trace entry: %w", err)
	}
	key := traceKey(name)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, traceRingSize-1)
	pipe.Expire(ctx, key, traceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push trace: %w", err)
	}
	return nil
}

// Trace retrieves the newest trace entries, newest first.
func (c *Client) Trace(ctx context.Context, name string, limit int) ([]model.TraceEntry, error) {
	if limit <= 0 || limit > traceRingSize {
		limit = traceRingSize
	}
	vals, err := c.rdb.LRange(ctx, traceKey(name), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get trace: %w", err)
	}
	entries := make([]model.TraceEntry, 0, len(vals))
	for _, v := range vals {
		var e model.TraceEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SetResume stores the worker's in-progress game pointer.
func (c *Client) SetResume(ctx context.Context, name, gameID string, channel int) error {
	data, err := json.Marshal(resumePoint{GameID: gameID, Channel: channel})
	if err != nil {
		return fmt.Errorf("marshal resume point: %w", err)
	}
	return c.rdb.Set(ctx, resumeKey(name), data, resumeTTL).Err()
}

// Resume retrieves the worker's in-progress game pointer; empty gameID means
// nothing to resume.
func (c *Client) Resume(ctx context.Context, name string) (string, int, error) {
	data, err := c.rdb.Get(ctx, resumeKey(name)).Bytes()
	if err == redis.Nil {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("get resume point: %w", err)
	}
	var rp resumePoint
	if err := json.Unmarshal(data, &rp); err != nil {
		return "", 0, fmt.Errorf("unmarshal resume point: %w", err)
	}
	return rp.GameID, rp.Channel, nil
}

// ClearResume removes the worker's resume pointer once its game finishes.
func (c *Client) ClearResume(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, resumeKey(name)).Err()
}

// ClearWorker removes a stopped worker's live keys. The resume pointer is
// left alone: a stop mid-game should still be resumable after restart.
func (c *Client) ClearWorker(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, statusKey(name), boardKey(name), traceKey(name)).Err()
}
