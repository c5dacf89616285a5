package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Delay classes for outgoing requests. Decisions pick quick or normal from
// the server's noLongDelay hint so the bot appears to think; hall polling is
// background traffic; everything else keeps a minimum gap for server health.
type delayClass int

const (
	delayMin delayClass = iota
	delayQuick
	delayNormal
	delayBackground
)

// maxRequestsPerMinute is the failsafe ceiling. A bot wedged in a request
// loop is worse than a dead bot.
const maxRequestsPerMinute = 40.0

// PacingConfig holds the four delay knobs.
type PacingConfig struct {
	Quick      time.Duration
	Normal     time.Duration
	Background time.Duration
	Min        time.Duration
}

// DefaultPacing mirrors the web client's request behavior.
func DefaultPacing() PacingConfig {
	return PacingConfig{
		Quick:      750 * time.Millisecond,
		Normal:     1500 * time.Millisecond,
		Background: 30 * time.Second,
		Min:        200 * time.Millisecond,
	}
}

// RequestRecord is one entry in the rolling request history.
type RequestRecord struct {
	Time     time.Time     `json:"time"`
	Endpoint string        `json:"endpoint"`
	Duration time.Duration `json:"duration"`
	Gap      time.Duration `json:"gap"`
	Success  bool          `json:"success"`
}

// PacingMetrics is a snapshot for monitoring.
type PacingMetrics struct {
	TotalRequests  int             `json:"total_requests"`
	AvgResponse    time.Duration   `json:"avg_response"`
	AvgGap         time.Duration   `json:"avg_gap"`
	CallsPerMinute float64         `json:"calls_per_minute"`
	ElapsedMinutes float64         `json:"elapsed_minutes"`
	Recent         []RequestRecord `json:"recent_requests"`
}

// Coordinator routes every server request through delay and metric tracking.
// The worker goroutine issues most calls; the chat queue posts concurrently,
// so the bookkeeping is locked.
type Coordinator struct {
	client *Client
	cfg    PacingConfig
	log    zerolog.Logger

	mu            sync.Mutex
	lastRequest   time.Time
	totalRequests int
	totalResponse time.Duration
	totalGap      time.Duration
	started       time.Time
	history       []RequestRecord

	rateLimited   bool
	currentGameID string
}

// NewCoordinator wraps a client with pacing.
func NewCoordinator(client *Client, cfg PacingConfig, log zerolog.Logger) *Coordinator {
	log.Info().
		Dur("quick", cfg.Quick).Dur("normal", cfg.Normal).Dur("background", cfg.Background).
		Msg("Network coordinator initialized")
	return &Coordinator{client: client, cfg: cfg, log: log, started: time.Now()}
}

// Client exposes the underlying client for calls that bypass pacing.
func (n *Coordinator) Client() *Client { return n.client }

// RateLimited reports whether the failsafe has tripped.
func (n *Coordinator) RateLimited() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rateLimited
}

func (n *Coordinator) delayFor(class delayClass) time.Duration {
	switch class {
	case delayQuick:
		return n.cfg.Quick
	case delayNormal:
		return n.cfg.Normal
	case delayBackground:
		return n.cfg.Background
	default:
		return n.cfg.Min
	}
}

func (n *Coordinator) applyDelay(ctx context.Context, class delayClass) error {
	n.mu.Lock()
	elapsed := time.Since(n.lastRequest)
	wait := n.delayFor(class) - elapsed
	n.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	n.log.Debug().Dur("wait", wait).Msg("Pacing delay")
	return sleepCtx(ctx, wait)
}

func (n *Coordinator) record(endpoint string, duration time.Duration, success bool) {
	n.mu.Lock()
	now := time.Now()
	var gap time.Duration
	if !n.lastRequest.IsZero() {
		gap = now.Sub(n.lastRequest)
	}
	n.lastRequest = now

	n.totalRequests++
	n.totalResponse += duration
	n.totalGap += gap
	n.history = append(n.history, RequestRecord{
		Time: now, Endpoint: endpoint, Duration: duration, Gap: gap, Success: success,
	})
	if len(n.history) > 100 {
		n.history = n.history[len(n.history)-100:]
	}
	total := n.totalRequests
	n.mu.Unlock()

	n.log.Info().
		Int("n", total).Str("endpoint", endpoint).
		Dur("took", duration).Dur("gap", gap).Bool("ok", success).
		Msg("Request")

	if total%20 == 0 {
		n.logSummary(total)
	}
}

func (n *Coordinator) logSummary(total int) {
	n.mu.Lock()
	avgResponse := n.totalResponse / time.Duration(total)
	avgGap := time.Duration(0)
	if total > 1 {
		avgGap = n.totalGap / time.Duration(total-1)
	}
	elapsedMin := time.Since(n.started).Minutes()
	if elapsedMin < 0.1 {
		elapsedMin = 0.1
	}
	callsPerMin := float64(total) / elapsedMin
	gameID := n.currentGameID
	n.mu.Unlock()

	n.log.Info().
		Int("requests", total).Dur("avgResponse", avgResponse).Dur("avgGap", avgGap).
		Float64("callsPerMin", callsPerMin).
		Msg("Network summary")

	// Check only past 60 requests so startup bursts do not trip it.
	if total >= 60 && callsPerMin > maxRequestsPerMinute {
		n.tripRateLimit(callsPerMin, gameID)
	}
}

func (n *Coordinator) tripRateLimit(callsPerMin float64, gameID string) {
	n.mu.Lock()
	already := n.rateLimited
	n.rateLimited = true
	n.mu.Unlock()
	if already {
		return
	}

	n.log.Error().
		Float64("callsPerMin", callsPerMin).Float64("max", maxRequestsPerMinute).
		Msg("Rate limit exceeded, conceding and stopping")

	if gameID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.client.Concede(ctx, gameID); err != nil {
			n.log.Error().Err(err).Msg("Failsafe concede failed")
		}
	}
}

// Metrics returns a monitoring snapshot.
func (n *Coordinator) Metrics() PacingMetrics {
	n.mu.Lock()
	defer n.mu.Unlock()

	m := PacingMetrics{
		TotalRequests:  n.totalRequests,
		ElapsedMinutes: time.Since(n.started).Minutes(),
	}
	if n.totalRequests > 0 {
		m.AvgResponse = n.totalResponse / time.Duration(n.totalRequests)
	}
	if n.totalRequests > 1 {
		m.AvgGap = n.totalGap / time.Duration(n.totalRequests-1)
	}
	if m.ElapsedMinutes > 0.1 {
		m.CallsPerMinute = float64(n.totalRequests) / m.ElapsedMinutes
	} else {
		m.CallsPerMinute = float64(n.totalRequests) / 0.1
	}
	start := len(n.history) - 10
	if start < 0 {
		start = 0
	}
	m.Recent = append(m.Recent, n.history[start:]...)
	return m
}

// GameUpdate long-polls for events. Fast phases skip the delay entirely; the
// server paces those itself.
func (n *Coordinator) GameUpdate(ctx context.Context, gameID string, channelNumber int, fastPhase bool) ([]byte, error) {
	if !fastPhase {
		if err := n.applyDelay(ctx, delayMin); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	body, err := n.client.GameUpdate(ctx, gameID, channelNumber)
	n.record("game/update", time.Since(start), err == nil)
	return body, err
}

// PostDecision answers a decision, thinking for the normal delay unless the
// server flagged the decision as expecting a quick answer.
func (n *Coordinator) PostDecision(ctx context.Context, gameID string, channelNumber int, decisionID, value string, noLongDelay bool) ([]byte, error) {
	class := delayNormal
	if noLongDelay {
		class = delayQuick
	}
	if err := n.applyDelay(ctx, class); err != nil {
		return nil, err
	}
	start := time.Now()
	body, err := n.client.PostDecision(ctx, gameID, channelNumber, decisionID, value)
	n.record("game/decision", time.Since(start), err == nil)
	return body, err
}

// CardInfo fetches a card tooltip for location checks.
func (n *Coordinator) CardInfo(ctx context.Context, gameID, cardID string) (string, error) {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return "", err
	}
	start := time.Now()
	body, err := n.client.CardInfo(ctx, gameID, cardID)
	n.record("game/cardInfo", time.Since(start), err == nil)
	return body, err
}

// ChatMessages polls game chat.
func (n *Coordinator) ChatMessages(ctx context.Context, gameID string, lastMsgID int) ([]ChatMessage, int, error) {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return nil, lastMsgID, err
	}
	start := time.Now()
	msgs, newLast, err := n.client.ChatMessages(ctx, gameID, lastMsgID)
	n.record("chat/poll", time.Since(start), err == nil)
	return msgs, newLast, err
}

// PostChat sends a chat line.
func (n *Coordinator) PostChat(ctx context.Context, gameID, message string) error {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return err
	}
	start := time.Now()
	err := n.client.PostChat(ctx, gameID, message)
	n.record("chat/send", time.Since(start), err == nil)
	return err
}

// RegisterChat joins a game chat room.
func (n *Coordinator) RegisterChat(ctx context.Context, gameID string) (int, error) {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return 0, err
	}
	start := time.Now()
	lastID, err := n.client.RegisterChat(ctx, gameID)
	n.record("chat/register", time.Since(start), err == nil)
	return lastID, err
}

// UpdateHall polls the hall as background traffic.
func (n *Coordinator) UpdateHall(ctx context.Context, channelNumber int) ([]Table, int, error) {
	if err := n.applyDelay(ctx, delayBackground); err != nil {
		return nil, channelNumber, err
	}
	start := time.Now()
	tables, cn, err := n.client.UpdateHall(ctx, channelNumber)
	n.record("hall/update", time.Since(start), err == nil)
	return tables, cn, err
}

// HallTables fetches the full hall listing, used on login.
func (n *Coordinator) HallTables(ctx context.Context) ([]Table, int, error) {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return nil, 0, err
	}
	start := time.Now()
	tables, cn, err := n.client.HallTables(ctx)
	n.record("hall/initial", time.Since(start), err == nil)
	return tables, cn, err
}

// Login authenticates.
func (n *Coordinator) Login(ctx context.Context, password string) error {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return err
	}
	start := time.Now()
	err := n.client.Login(ctx, password)
	n.record("login", time.Since(start), err == nil)
	return err
}

// Logout clears the session.
func (n *Coordinator) Logout() {
	n.client.Logout()
	n.record("logout", 0, true)
}

// JoinGame opens a game session and tracks it for the failsafe concede.
func (n *Coordinator) JoinGame(ctx context.Context, gameID string) ([]byte, error) {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return nil, err
	}
	start := time.Now()
	body, err := n.client.JoinGame(ctx, gameID)
	n.record("game/join", time.Since(start), err == nil)
	if err == nil {
		n.mu.Lock()
		n.currentGameID = gameID
		n.mu.Unlock()
	}
	return body, err
}

// Concede forfeits the current game.
func (n *Coordinator) Concede(ctx context.Context, gameID string) error {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return err
	}
	start := time.Now()
	err := n.client.Concede(ctx, gameID)
	n.record("game/concede", time.Since(start), err == nil)
	n.mu.Lock()
	n.currentGameID = ""
	n.mu.Unlock()
	return err
}

// CreateTable creates a hall table.
func (n *Coordinator) CreateTable(ctx context.Context, deckName, tableName, format string, library bool) (string, error) {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return "", err
	}
	start := time.Now()
	id, err := n.client.CreateTable(ctx, deckName, tableName, format, library)
	n.record("hall/createTable", time.Since(start), err == nil)
	return id, err
}

// LeaveTable drops from a table.
func (n *Coordinator) LeaveTable(ctx context.Context, tableID string) error {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return err
	}
	start := time.Now()
	err := n.client.LeaveTable(ctx, tableID)
	n.record("hall/leaveTable", time.Since(start), err == nil)
	return err
}

// LeaveChat logs leaving a chat room.
func (n *Coordinator) LeaveChat(gameID string) {
	n.client.LeaveChat(gameID)
}

// LibraryDecks lists sample decks.
func (n *Coordinator) LibraryDecks(ctx context.Context) ([]Deck, error) {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return nil, err
	}
	start := time.Now()
	decks, err := n.client.LibraryDecks(ctx)
	n.record("deck/listLibrary", time.Since(start), err == nil)
	return decks, err
}

// UserDecks lists the account's decks.
func (n *Coordinator) UserDecks(ctx context.Context) ([]Deck, error) {
	if err := n.applyDelay(ctx, delayMin); err != nil {
		return nil, err
	}
	start := time.Now()
	decks, err := n.client.UserDecks(ctx)
	n.record("deck/list", time.Since(start), err == nil)
	return decks, err
}
