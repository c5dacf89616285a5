package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TableAction is what the hall currently needs from the worker.
type TableAction string

const (
	TableActionCreate TableAction = "create"
	TableActionWait   TableAction = "wait"
	TableActionJoin   TableAction = "join"
)

// TableState is where the managed table sits in its lifecycle.
type TableState string

const (
	TableNone           TableState = "no_table"
	TableCreating       TableState = "creating"
	TableWaiting        TableState = "waiting"
	TableOpponentJoined TableState = "opponent_joined"
	TableInGame         TableState = "in_game"
	TableGameEnded      TableState = "game_ended"
	TableError          TableState = "error"
)

// Table creation backoff.
const (
	tableRetryDelay    = 5 * time.Second
	tableMaxRetryDelay = 60 * time.Second
	tableMaxFailures   = 10
)

// tableCreator is the slice of the client the table manager drives. Both
// *Client and the pacing *Coordinator satisfy it.
type tableCreator interface {
	CreateTable(ctx context.Context, deckName, tableName, format string, library bool) (string, error)
}

// TableConfig is the desired table shape in the hall.
type TableConfig struct {
	TableName string
	Format    string
	// RotateDecks cycles through the deck list per created table; otherwise
	// a random deck is picked each time.
	RotateDecks   bool
	PreferLibrary bool
}

// TableStatus is a point-in-time snapshot for logs and the admin surface.
type TableStatus struct {
	State       TableState `json:"state"`
	TableID     string     `json:"table_id"`
	Deck        string     `json:"deck"`
	Failures    int        `json:"failures"`
	GamesPlayed int        `json:"games_played"`
	LastFailure string     `json:"last_failure"`
}

// TableManager keeps one table alive in the hall around the clock: it
// decides when to create a new one, backs off after creation failures,
// rotates decks, and notices when the table gains an opponent, starts a
// game, or disappears.
type TableManager struct {
	client tableCreator
	cfg    TableConfig
	log    zerolog.Logger
	now    func() time.Time

	libraryDecks []Deck
	userDecks    []Deck

	state        TableState
	tableID      string
	deckName     string
	tableCreated time.Time
	lastOpponent string
	gamesPlayed  int
	deckIndex    int

	failures      int
	lastFailure   time.Time
	failureReason string
}

// NewTableManager builds a table manager over the client. Decks are set
// separately once the hall has been fetched.
func NewTableManager(client tableCreator, cfg TableConfig, log zerolog.Logger) *TableManager {
	return &TableManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("component", "tables").Logger(),
		now:    time.Now,
		state:  TableNone,
	}
}

// SetDecks installs the deck lists the server offers.
func (m *TableManager) SetDecks(library, user []Deck) {
	m.libraryDecks = library
	m.userDecks = user
	m.log.Info().
		Int("library", len(library)).
		Int("user", len(user)).
		Msg("Decks available for table creation")
}

// RequiredAction inspects the hall table list and reports what to do next.
// Any sighting of our own live table resets the failure counter.
func (m *TableManager) RequiredAction(tables []Table, username string) TableAction {
	if mine := findOwnTable(tables, username); mine != nil {
		m.tableID = mine.ID
		m.failures = 0

		if mine.Status == "finished" {
			m.log.Info().Str("table", mine.ID).Msg("Table finished, need a new one")
			m.state = TableGameEnded
			m.tableID = ""
			return TableActionCreate
		}
		if mine.GameID != "" {
			m.state = TableInGame
			return TableActionJoin
		}
		if opp := mine.OpponentOf(username); opp != "" {
			m.state = TableOpponentJoined
			m.lastOpponent = opp
		} else {
			m.state = TableWaiting
		}
		return TableActionWait
	}

	if m.tableID != "" {
		m.log.Warn().Str("table", m.tableID).Msg("Table disappeared from the hall")
		m.tableID = ""
	}
	m.state = TableNone
	if m.shouldCreate() {
		return TableActionCreate
	}
	return TableActionWait
}

// findOwnTable returns the first live table seating the player; a finished
// one is returned only when no live table exists, so the manager can close
// it out.
func findOwnTable(tables []Table, username string) *Table {
	var finished *Table
	for i := range tables {
		t := &tables[i]
		if !t.HasPlayer(username) {
			continue
		}
		if t.Status == "finished" {
			if finished == nil {
				finished = t
			}
			continue
		}
		return t
	}
	return finished
}

// shouldCreate applies the failure backoff: doubling from 5s, capped at 60s,
// and a hard stop after ten straight failures.
func (m *TableManager) shouldCreate() bool {
	if m.failures == 0 {
		return true
	}
	if m.failures >= tableMaxFailures {
		return false
	}
	backoff := min(tableRetryDelay*time.Duration(1<<m.failures), tableMaxRetryDelay)
	remaining := backoff - m.now().Sub(m.lastFailure)
	if remaining > 0 {
		m.log.Debug().Dur("remaining", remaining).Msg("Table creation backoff active")
		return false
	}
	return true
}

// GivenUp reports whether creation failed so many times in a row that the
// worker should stop trying and go to its error state.
func (m *TableManager) GivenUp() bool { return m.failures >= tableMaxFailures }

// CreateTable creates a table with the next deck and records the outcome.
func (m *TableManager) CreateTable(ctx context.Context) (string, error) {
	m.state = TableCreating

	deck, library := m.selectDeck()
	if deck == nil {
		m.recordFailure("no decks available")
		return "", errors.New("no decks available")
	}

	tableID, err := m.client.CreateTable(ctx, deck.Name, m.cfg.TableName, m.cfg.Format, library)
	if err != nil {
		m.recordFailure(err.Error())
		return "", fmt.Errorf("create table: %w", err)
	}

	m.tableID = tableID
	m.deckName = deck.Name
	m.tableCreated = m.now()
	m.state = TableWaiting
	m.failures = 0
	m.log.Info().
		Str("table", tableID).
		Str("deck", deck.Name).
		Bool("library", library).
		Msg("Table created")
	return tableID, nil
}

// selectDeck picks the next deck, preferring whichever list the config says
// and falling back to the other when it is empty.
func (m *TableManager) selectDeck() (*Deck, bool) {
	decks, library := m.userDecks, false
	switch {
	case m.cfg.PreferLibrary && len(m.libraryDecks) > 0:
		decks, library = m.libraryDecks, true
	case len(m.userDecks) > 0:
	case len(m.libraryDecks) > 0:
		decks, library = m.libraryDecks, true
	}
	if len(decks) == 0 {
		return nil, false
	}
	if m.cfg.RotateDecks {
		m.deckIndex = (m.deckIndex + 1) % len(decks)
		return &decks[m.deckIndex], library
	}
	return &decks[botIntn(len(decks))], library
}

func (m *TableManager) recordFailure(reason string) {
	m.failures++
	m.lastFailure = m.now()
	m.failureReason = reason
	m.state = TableError
	m.log.Warn().
		Int("failures", m.failures).
		Str("reason", reason).
		Msg("Table creation failed")
}

// OnGameEnded closes out the current table after a game.
func (m *TableManager) OnGameEnded() {
	m.state = TableGameEnded
	m.gamesPlayed++
	m.tableID = ""
	m.log.Info().Int("games_played", m.gamesPlayed).Msg("Game ended")
}

// Reset clears all runtime state, e.g. after a reconnect.
func (m *TableManager) Reset() {
	m.state = TableNone
	m.tableID = ""
	m.deckName = ""
	m.tableCreated = time.Time{}
	m.failures = 0
	m.lastFailure = time.Time{}
	m.failureReason = ""
	m.log.Info().Msg("Table manager reset")
}

// State returns the lifecycle state.
func (m *TableManager) State() TableState { return m.state }

// TableID returns the current table id, "" when none.
func (m *TableManager) TableID() string { return m.tableID }

// DeckName returns the deck the current table was created with.
func (m *TableManager) DeckName() string { return m.deckName }

// LastOpponent returns the most recent opponent seen at the table.
func (m *TableManager) LastOpponent() string { return m.lastOpponent }

// Status snapshots the manager for monitoring.
func (m *TableManager) Status() TableStatus {
	return TableStatus{
		State:       m.state,
		TableID:     m.tableID,
		Deck:        m.deckName,
		Failures:    m.failures,
		GamesPlayed: m.gamesPlayed,
		LastFailure: m.failureReason,
	}
}

// Connection recovery.
const (
	connMaxFailures   = 3
	connRecoveryDelay = 5 * time.Second
)

// loginClient is the slice of the client the connection monitor needs.
type loginClient interface {
	Login(ctx context.Context, password string) error
}

// ConnectionMonitor counts consecutive transport failures and drives a
// re-login once the connection looks dead.
type ConnectionMonitor struct {
	client loginClient
	log    zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	failures         int
	lastSuccess      time.Time
	connected        bool
	recoveryAttempts int
}

// NewConnectionMonitor builds a monitor over the client's login.
func NewConnectionMonitor(client loginClient, log zerolog.Logger) *ConnectionMonitor {
	return &ConnectionMonitor{
		client:    client,
		log:       log.With().Str("component", "connmon").Logger(),
		now:       time.Now,
		sleep:     sleepCtx,
		connected: true,
	}
}

// RecordSuccess notes a request that made it through.
func (c *ConnectionMonitor) RecordSuccess() {
	c.failures = 0
	c.lastSuccess = c.now()
	c.connected = true
}

// RecordFailure notes a failed request and reports whether recovery should
// be triggered.
func (c *ConnectionMonitor) RecordFailure(reason string) bool {
	c.failures++
	c.log.Warn().Int("failures", c.failures).Str("reason", reason).Msg("Connection failure")
	if c.failures >= connMaxFailures {
		c.connected = false
		return true
	}
	return false
}

// Connected reports whether the link currently looks healthy.
func (c *ConnectionMonitor) Connected() bool { return c.connected }

// Failures returns the current consecutive-failure count.
func (c *ConnectionMonitor) Failures() int { return c.failures }

// AttemptRecovery waits out the recovery delay and re-logs-in.
func (c *ConnectionMonitor) AttemptRecovery(ctx context.Context, password string) error {
	c.recoveryAttempts++
	c.log.Info().Int("attempt", c.recoveryAttempts).Msg("Attempting connection recovery")

	if err := c.sleep(ctx, connRecoveryDelay); err != nil {
		return err
	}
	if err := c.client.Login(ctx, password); err != nil {
		c.log.Error().Err(err).Msg("Recovery login failed")
		return fmt.Errorf("recovery login: %w", err)
	}

	c.failures = 0
	c.connected = true
	c.log.Info().Msg("Connection recovered")
	return nil
}
