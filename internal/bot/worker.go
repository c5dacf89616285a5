package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/config"
	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

// WorkerState names one stage of the connect/lobby/play loop.
type WorkerState string

const (
	StateStopped    WorkerState = "stopped"
	StateConnecting WorkerState = "connecting"
	StateInLobby    WorkerState = "in_lobby"
	StateWaiting    WorkerState = "waiting_for_opponent"
	StateJoining    WorkerState = "joining"
	StatePlaying    WorkerState = "playing"
	StateGameEnded  WorkerState = "game_ended"
	StateError      WorkerState = "error"
)

const (
	gamePollInterval = time.Second
	// fastPollInterval drives the draw and activate phases, where the web
	// client also polls quickly because the decisions are trivial.
	fastPollInterval     = 250 * time.Millisecond
	hallLivenessInterval = time.Minute
	maxFoldIterations    = 100
	// preCreateDelay gives a finished table time to leave the hall before
	// we post a replacement.
	preCreateDelay     = 2 * time.Second
	loginRetryDelay    = 5 * time.Second
	loginMaxRetryDelay = time.Minute
)

const (
	concedeFarewell = "Good game! I can no longer meaningfully act, so I'll concede. Until next time!"
	loopFarewell    = "I appear to be stuck in a decision loop. Conceding to avoid hanging the game. GG!"
	maxIterFarewell = "I appear to be stuck in an unbreakable loop. Conceding to avoid hanging the game. GG!"
)

// errConceded stops an event fold after the worker has thrown in the towel.
// The server confirms the result on a later poll, which runs the normal
// game-end path.
var errConceded = errors.New("conceded")

// StatePublisher receives live worker state for the admin surface. All of
// it is advisory; a nil publisher drops everything and the worker plays on.
type StatePublisher interface {
	PublishStatus(status model.WorkerStatus)
	PublishBoard(name string, snapshot []byte)
	PublishTrace(name string, entry model.TraceEntry)
	PublishResume(name, gameID string, channelNumber int)
	ClearResume(name string)
	PublishGameEnded(name, opponent string, botWon bool)
}

// WorkerConfig wires one worker's collaborators.
type WorkerConfig struct {
	Name        string
	Config      *config.Config
	Coordinator *Coordinator
	CardDB      *swccg.CardDB
	Brain       Brain
	Stats       ChatStats
	Publisher   StatePublisher
	// SingleGame stops the worker after one game instead of returning to
	// the lobby.
	SingleGame bool
}

// Worker is one bot seat: it logs in, keeps a table alive in the hall,
// joins the game when an opponent sits down, folds server events into a
// board, answers decisions, and chats. Run owns every field; nothing here
// is safe to touch from another goroutine, so observers go through the
// StatePublisher instead.
type Worker struct {
	name  string
	cfg   *config.Config
	coord *Coordinator
	db    *swccg.CardDB

	brain    Brain
	handler  *DecisionHandler
	tables   *TableManager
	monitor  *ConnectionMonitor
	chat     *ChatManager
	commands *CommandHandler
	scout    *LocationScout
	pub      StatePublisher
	log      zerolog.Logger

	tuning     Tuning
	singleGame bool

	state     WorkerState
	lastError string

	board *swccg.BoardState
	proc  *swccg.Processor
	strat *Strategy

	gameID   string
	channel  int
	opponent string

	wasInBattle    bool
	battleLocation int
	gameFinished   bool

	hallChannel   int
	lastHallCheck time.Time

	loginFailures int
	gamesPlayed   int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker builds a worker and its per-seat collaborators around the
// shared coordinator.
func NewWorker(wc WorkerConfig, log zerolog.Logger) *Worker {
	wlog := log.With().Str("worker", wc.Name).Logger()
	w := &Worker{
		name:           wc.Name,
		cfg:            wc.Config,
		coord:          wc.Coordinator,
		db:             wc.CardDB,
		brain:          wc.Brain,
		pub:            wc.Publisher,
		log:            wlog,
		tuning:         tuningFromConfig(wc.Config),
		singleGame:     wc.SingleGame,
		state:          StateStopped,
		battleLocation: -1,
		now:            time.Now,
		sleep:          sleepCtx,
	}
	w.handler = NewDecisionHandler(wc.Brain, wlog)
	w.tables = NewTableManager(wc.Coordinator, TableConfig{
		TableName:     wc.Config.TableName,
		Format:        wc.Config.GameFormat,
		RotateDecks:   true,
		PreferLibrary: wc.Config.UseLibraryDecks,
	}, wlog)
	w.monitor = NewConnectionMonitor(wc.Coordinator, wlog)
	w.chat = NewChatManager(wc.Coordinator, wc.Brain, wc.Stats, wlog)
	w.commands = NewCommandHandler(wc.Coordinator, wc.Stats, wc.Config.GempUsername, wlog)
	w.scout = NewLocationScout(swccg.SideNone, wlog)
	return w
}

// Name returns the worker's stable identity.
func (w *Worker) Name() string { return w.name }

// Run drives the state machine until the context is cancelled or something
// unrecoverable stops it. Cancellation is a clean stop, not an error.
func (w *Worker) Run(ctx context.Context) error {
	w.setState(StateConnecting, "")
	for {
		if ctx.Err() != nil {
			w.setState(StateStopped, "")
			return nil
		}
		if w.coord.RateLimited() {
			w.fail("rate limit failsafe tripped")
			return errors.New("rate limit failsafe tripped")
		}

		var err error
		switch w.state {
		case StateConnecting:
			err = w.connect(ctx)
		case StateInLobby:
			err = w.lobby(ctx)
		case StateWaiting:
			err = w.waitOpponent(ctx)
		case StateJoining:
			err = w.join(ctx)
		case StatePlaying:
			err = w.play(ctx)
		case StateGameEnded:
			err = w.finishGame(ctx)
		case StateStopped:
			return nil
		case StateError:
			return errors.New(w.lastError)
		default:
			w.fail(fmt.Sprintf("unknown state %q", w.state))
		}
		if err != nil {
			if ctx.Err() != nil {
				w.setState(StateStopped, "")
				return nil
			}
			w.fail(err.Error())
			return err
		}
	}
}

// connect logs in, loads the deck lists and heads for the lobby. Bad
// credentials are fatal; anything else backs off and retries.
func (w *Worker) connect(ctx context.Context) error {
	if err := w.coord.Login(ctx, w.cfg.GempPassword); err != nil {
		if errors.Is(err, ErrBadCredentials) {
			w.fail("login rejected: check GEMP credentials")
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		w.loginFailures++
		delay := loginMaxRetryDelay
		if w.loginFailures < 5 {
			delay = loginRetryDelay << (w.loginFailures - 1)
		}
		w.log.Warn().Err(err).Dur("retry_in", delay).Msg("Login failed")
		return w.sleep(ctx, delay)
	}
	w.loginFailures = 0
	w.monitor.RecordSuccess()

	library, err := w.coord.LibraryDecks(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("Could not list library decks")
	}
	user, err := w.coord.UserDecks(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("Could not list user decks")
	}
	w.tables.SetDecks(filterDecks(library, w.cfg.DeckNames), filterDecks(user, w.cfg.DeckNames))

	w.setState(StateInLobby, "")
	return nil
}

// lobby keeps a table posted in the hall and notices when one of ours has
// a game attached.
func (w *Worker) lobby(ctx context.Context) error {
	hall, err := w.pollHall(ctx)
	if err != nil {
		return w.hallFailure(ctx, err)
	}
	w.monitor.RecordSuccess()

	action := w.tables.RequiredAction(hall, w.username())
	if w.tables.GivenUp() {
		w.fail("table creation failed repeatedly, giving up")
		return nil
	}
	switch action {
	case TableActionJoin:
		if own := findOwnTable(hall, w.username()); own != nil && own.GameID != "" {
			w.beginJoin(own)
			return nil
		}
	case TableActionCreate:
		if err := w.sleep(ctx, preCreateDelay); err != nil {
			return err
		}
		if _, err := w.tables.CreateTable(ctx); err != nil {
			w.log.Warn().Err(err).Msg("Table creation failed")
		} else {
			w.setState(StateWaiting, "")
			return nil
		}
	case TableActionWait:
		switch w.tables.State() {
		case TableWaiting, TableOpponentJoined:
			w.setState(StateWaiting, "")
			return nil
		}
	}
	return w.sleep(ctx, w.cfg.HallPollInterval)
}

// waitOpponent watches our posted table until a game starts, the table
// vanishes, or the opponent walks away.
func (w *Worker) waitOpponent(ctx context.Context) error {
	hall, err := w.pollHall(ctx)
	if err != nil {
		return w.hallFailure(ctx, err)
	}
	w.monitor.RecordSuccess()

	switch w.tables.RequiredAction(hall, w.username()) {
	case TableActionJoin:
		if own := findOwnTable(hall, w.username()); own != nil && own.GameID != "" {
			w.beginJoin(own)
			return nil
		}
	case TableActionCreate:
		w.setState(StateInLobby, "")
		return nil
	case TableActionWait:
		if w.tables.TableID() == "" {
			w.setState(StateInLobby, "")
			return nil
		}
		if w.tables.State() == TableOpponentJoined && w.tables.LastOpponent() != w.opponent {
			w.opponent = w.tables.LastOpponent()
			w.log.Info().Str("opponent", w.opponent).Msg("Opponent seated, waiting for game start")
		}
	}
	return w.sleep(ctx, w.cfg.HallPollInterval)
}

func (w *Worker) beginJoin(table *Table) {
	w.gameID = table.GameID
	if opp := table.OpponentOf(w.username()); opp != "" {
		w.opponent = opp
	}
	w.log.Info().Str("game", w.gameID).Str("opponent", w.opponent).Msg("Game starting")
	w.setState(StateJoining, "")
}

// hallFailure sorts a hall polling error: expired sessions go back through
// login, repeated transport failures trigger recovery, everything waits out
// the poll interval.
func (w *Worker) hallFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotLoggedIn) {
		w.log.Warn().Msg("Session expired in the hall, logging back in")
		w.setState(StateConnecting, "")
		return nil
	}
	if w.monitor.RecordFailure(err.Error()) {
		if rerr := w.monitor.AttemptRecovery(ctx, w.cfg.GempPassword); rerr != nil {
			if ctx.Err() != nil {
				return rerr
			}
			w.log.Warn().Err(rerr).Msg("Recovery attempt failed")
		}
	}
	return w.sleep(ctx, w.cfg.HallPollInterval)
}

// join fetches the initial game state, replays its history into a fresh
// board, and warms up the per-game collaborators. Every retry starts over
// with a clean board, so a half-applied join cannot leak state.
func (w *Worker) join(ctx context.Context) error {
	body, err := w.coord.JoinGame(ctx, w.gameID)
	if err != nil {
		switch {
		case errors.Is(err, ErrGameNotFound):
			w.log.Warn().Str("game", w.gameID).Msg("Game vanished before we could join")
			w.clearGame()
			w.setState(StateInLobby, "")
			return nil
		case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNotLoggedIn):
			w.log.Warn().Msg("Session expired while joining, logging back in")
			if lerr := w.coord.Login(ctx, w.cfg.GempPassword); lerr != nil {
				w.monitor.RecordFailure(lerr.Error())
			}
			return w.sleep(ctx, gamePollInterval)
		case ctx.Err() != nil:
			return err
		}
		w.log.Warn().Err(err).Msg("Join failed, retrying")
		return w.sleep(ctx, gamePollInterval)
	}

	update, err := swccg.ParseGameUpdate(body)
	if err != nil {
		return fmt.Errorf("parse initial game state: %w", err)
	}

	w.board = swccg.NewBoardState(w.db, w.username())
	w.proc = swccg.NewProcessor(w.board, w.log)
	w.strat = NewStrategy(swccg.SideNone, &w.tuning, w.log)
	w.handler.Reset()
	w.scout.Reset(swccg.SideNone)
	w.registerHooks(ctx)

	if update.ChannelNumber >= 0 {
		w.channel = update.ChannelNumber
	}
	w.gameFinished = update.Finished
	w.wasInBattle = false
	w.battleLocation = -1

	// The initial batch replays the whole game so far. Fold it quietly:
	// the processor holds chat, scout and strategy callbacks while
	// catching up, then the warm-up below brings them to the present.
	w.proc.CatchingUp = true
	err = w.foldEvents(ctx, update.Events)
	w.proc.CatchingUp = false
	if err != nil {
		return w.playFailure(ctx, err)
	}

	w.strat.MySide = w.board.MySide
	w.strat.StartTurn(w.board.TurnNumber)
	w.strat.UpdateFromBoard(w.board)
	w.scout.SetSide(w.board.MySide)
	w.scout.OnPhaseChange(w.board.Phase)
	w.handler.OnPhaseChange(w.board.Phase)

	if w.gameFinished || w.board.Winner != "" {
		w.log.Info().Str("winner", w.board.Winner).Msg("Game was already over when we joined")
		w.setState(StateGameEnded, "")
		return nil
	}

	lastMsgID := 0
	if id, cerr := w.coord.RegisterChat(ctx, w.gameID); cerr != nil {
		w.log.Warn().Err(cerr).Msg("Chat registration failed")
	} else {
		lastMsgID = id
	}

	deck := w.tables.DeckName()
	if deck == "" {
		deck = "Unknown"
	}
	mySide := string(w.board.MySide)
	if mySide == "" {
		mySide = "unknown"
	}
	oppSide := string(w.board.MySide.Opposite())
	if oppSide == "" {
		oppSide = "unknown"
	}
	w.chat.ResetForGame(w.gameID, w.opponent, deck, mySide, oppSide)
	w.chat.OnGameStart(ctx)
	w.commands.ResetForGame(w.gameID, w.opponent, lastMsgID)

	w.lastHallCheck = w.now()
	w.setState(StatePlaying, "")
	w.publishResume()
	return nil
}

// play long-polls the game channel, folds whatever arrived, and keeps the
// side channels (chat, commands, hall liveness) ticking.
func (w *Worker) play(ctx context.Context) error {
	body, err := w.coord.GameUpdate(ctx, w.gameID, w.channel, isFastPhase(w.board.Phase))
	if err != nil {
		return w.playFailure(ctx, err)
	}
	w.monitor.RecordSuccess()

	update, perr := swccg.ParseGameUpdate(body)
	if perr != nil {
		w.log.Warn().Err(perr).Msg("Unparseable game update")
		return w.sleep(ctx, gamePollInterval)
	}
	if update.ChannelNumber > w.channel {
		w.channel = update.ChannelNumber
	}
	if update.Finished {
		w.gameFinished = true
	}

	if len(update.Events) > 0 {
		if err := w.foldEvents(ctx, update.Events); err != nil {
			return w.playFailure(ctx, err)
		}
		w.runLocationChecks(ctx)
		w.noteBattles(ctx)
		w.publishBoard()
		w.publishResume()
	}

	// Command polling rides the chat endpoint, whose long poll can hold
	// the line for seconds. Skip it in fast phases so decisions keep
	// flowing.
	if !isFastPhase(w.board.Phase) {
		w.commands.Poll(ctx)
	}
	w.chat.PumpQueue(ctx)

	if w.gameFinished || w.board.Winner != "" {
		w.setState(StateGameEnded, "")
		return nil
	}

	w.checkTableLiveness(ctx)
	if w.state != StatePlaying {
		return nil
	}
	return w.sleep(ctx, w.pollInterval())
}

// playFailure sorts a mid-game error: a gone game ends it, an expired
// session resumes it, and anything else counts toward recovery.
func (w *Worker) playFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	switch {
	case errors.Is(err, ErrGameNotFound):
		w.log.Info().Str("game", w.gameID).Msg("Game no longer on the server, treating it as finished")
		w.setState(StateGameEnded, "")
		return nil
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNotLoggedIn):
		w.monitor.RecordFailure("session expired")
		return w.resumeSession(ctx)
	}
	if w.monitor.RecordFailure(err.Error()) {
		if rerr := w.monitor.AttemptRecovery(ctx, w.cfg.GempPassword); rerr != nil {
			if ctx.Err() != nil {
				return rerr
			}
			w.log.Warn().Err(rerr).Msg("Recovery attempt failed")
		} else {
			w.monitor.RecordSuccess()
		}
	}
	return w.sleep(ctx, gamePollInterval)
}

// resumeSession re-authenticates mid-game and rejoins so polling can
// continue from a fresh channel number. The board is already warm and the
// rejoin's channel number sits past the replayed history, so the initial
// batch is not folded again.
func (w *Worker) resumeSession(ctx context.Context) error {
	w.log.Warn().Str("game", w.gameID).Msg("Session expired mid-game, re-authenticating")
	if err := w.coord.Login(ctx, w.cfg.GempPassword); err != nil {
		if rerr := w.monitor.AttemptRecovery(ctx, w.cfg.GempPassword); rerr != nil {
			if ctx.Err() != nil {
				return rerr
			}
			w.fail("session expired and recovery failed")
			return nil
		}
	}
	w.monitor.RecordSuccess()

	body, err := w.coord.JoinGame(ctx, w.gameID)
	if err != nil {
		if errors.Is(err, ErrGameNotFound) {
			w.setState(StateGameEnded, "")
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		w.log.Warn().Err(err).Msg("Rejoin failed, retrying")
		return w.sleep(ctx, gamePollInterval)
	}
	update, perr := swccg.ParseGameUpdate(body)
	if perr != nil {
		w.log.Warn().Err(perr).Msg("Unparseable rejoin state")
		return w.sleep(ctx, gamePollInterval)
	}
	if update.ChannelNumber >= 0 {
		w.channel = update.ChannelNumber
	}
	if update.Finished {
		w.gameFinished = true
	}
	w.log.Info().Int("channel", w.channel).Msg("Session resumed")
	return nil
}

// foldEvents applies a batch of events to the board, answering decisions
// inline. A decision's answer brings back fresh events; those fold on the
// next pass so the rest of the current batch lands first. The pass cap
// breaks a server that keeps re-offering the same decision.
func (w *Worker) foldEvents(ctx context.Context, events []swccg.GameEvent) error {
	for pass := 0; len(events) > 0; pass++ {
		if pass >= maxFoldIterations {
			w.log.Error().Int("passes", pass).Msg("Event fold did not settle, conceding")
			return w.concede(ctx, maxIterFarewell)
		}
		var next []swccg.GameEvent
		for i := range events {
			ev := &events[i]
			if !ev.IsDecision() {
				w.proc.Process(ev)
				continue
			}
			more, err := w.answerDecision(ctx, ev)
			if errors.Is(err, errConceded) {
				return nil
			}
			if err != nil {
				return err
			}
			next = append(next, more...)
		}
		events = next
	}
	return nil
}

// answerDecision runs one decision through the concede checks and the
// handler, posts the answer, and returns the events the server sent back.
func (w *Worker) answerDecision(ctx context.Context, ev *swccg.GameEvent) ([]swccg.GameEvent, error) {
	d := swccg.ParseDecision(ev)
	if d == nil {
		return nil, nil
	}

	if should, reason := w.board.ShouldConcede(); should {
		w.log.Info().Str("reason", reason).Msg("Board is hopeless")
		if err := w.concede(ctx, concedeFarewell); err != nil {
			return nil, err
		}
		return nil, errConceded
	}
	if w.handler.Tracker().ShouldConsiderConcede() {
		w.log.Warn().Int("loops", w.handler.Tracker().LoopCount()).Msg("Decision loop will not break")
		if err := w.concede(ctx, loopFarewell); err != nil {
			return nil, err
		}
		return nil, errConceded
	}

	w.strat.UpdateFromBoard(w.board)
	resp := w.handler.Respond(d, w.board, w.strat, w.board.PhaseCount)
	w.trace(d, resp)
	if resp.Stuck {
		if err := w.concede(ctx, loopFarewell); err != nil {
			return nil, err
		}
		return nil, errConceded
	}
	if resp.Skip {
		return nil, nil
	}

	// Brain answers in slow phases get the server's "thinking" delay;
	// everything else answers quickly, like a human clicking through.
	noLong := resp.Source != "brain" || isFastPhase(w.board.Phase)
	body, err := w.coord.PostDecision(ctx, w.gameID, w.channel, resp.DecisionID, resp.Value, noLong)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotLoggedIn) || errors.Is(err, ErrGameNotFound) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		w.log.Warn().Err(err).Str("decision", resp.DecisionID).Msg("Decision post failed, the server will re-offer it")
		return nil, nil
	}

	update, perr := swccg.ParseGameUpdate(body)
	if perr != nil {
		w.log.Warn().Err(perr).Msg("Unparseable decision response")
		return nil, nil
	}
	if update.ChannelNumber > w.channel {
		w.channel = update.ChannelNumber
	}
	if update.Finished {
		w.gameFinished = true
	}
	return update.Events, nil
}

// concede posts a farewell and gives up. Game-end bookkeeping waits for the
// server to confirm the result on a later poll.
func (w *Worker) concede(ctx context.Context, farewell string) error {
	w.log.Info().Str("farewell", farewell).Msg("Conceding")
	if err := w.coord.PostChat(ctx, w.gameID, farewell); err != nil {
		w.log.Warn().Err(err).Msg("Farewell message failed")
	}
	if err := w.coord.Concede(ctx, w.gameID); err != nil {
		w.log.Warn().Err(err).Msg("Concede request failed")
	}
	return ctx.Err()
}

// registerHooks connects processor callbacks to the strategy, scout, brain
// and chat. The processor holds all of these while catching up, so history
// replays stay quiet.
func (w *Worker) registerHooks(ctx context.Context) {
	me := w.username()
	w.proc.RegisterCardPlaced(func(cardID, blueprintID, zone, owner string) {
		card := w.board.CardsInPlay[cardID]
		if card != nil && card.LocationIndex >= 0 {
			if loc := w.board.Location(card.LocationIndex); loc != nil {
				w.scout.OnCardDeployed(loc.CardID)
			}
		}
		if obs, ok := w.brain.(CardPlayObserver); ok {
			obs.OnCardPlayed(cardID, blueprintID, owner == me)
		}
		switch zone {
		case swccg.ZoneAtLocation, swccg.ZoneAttached, swccg.ZoneLocations, "STACKED_ON":
			w.chat.OnCardDeployed(ctx, w.board)
		}
		if owner == me && card != nil {
			w.strat.OnSuccessfulDeploy(card.Type)
		}
	})
	w.proc.RegisterBattleDamage(func(damage int) {
		w.chat.OnBattleDamage(ctx, damage, w.board)
	})
	w.proc.RegisterTurnStart(func(turn int) {
		w.strat.StartTurn(turn)
		w.scout.OnTurnStart()
		w.brain.OnTurnStart(turn, w.board)
		w.chat.OnTurnStart(ctx, turn, w.board)
		w.publishStatus()
	})
	w.proc.RegisterPhaseChange(func(phase string) {
		w.handler.OnPhaseChange(phase)
		w.scout.OnPhaseChange(phase)
	})
}

// noteBattles reacts to battle edges the fold exposed. On the way in it
// announces the power split; on the way out it credits the strategy with a
// result, but only a decisive one. Holding the field after clearing it is
// a win, losing everything while the opponent stands is a loss, and a
// mutual wipe or retreat says nothing useful.
func (w *Worker) noteBattles(ctx context.Context) {
	if w.board.InBattle && !w.wasInBattle {
		w.battleLocation = w.board.BattleLocation
		myPower, theirPower := w.board.TotalMyPower(), w.board.TotalTheirPower()
		if w.battleLocation >= 0 {
			myPower, theirPower = w.board.MyPowerAt(w.battleLocation), w.board.TheirPowerAt(w.battleLocation)
		}
		w.chat.OnBattleStart(ctx, myPower, theirPower)
	} else if !w.board.InBattle && w.wasInBattle && w.battleLocation >= 0 {
		survived := w.board.MyCardCountAt(w.battleLocation) > 0
		cleared := w.board.TheirCardCountAt(w.battleLocation) == 0
		switch {
		case survived && cleared:
			w.strat.OnBattleResult(true)
		case !survived && !cleared:
			w.strat.OnBattleResult(false)
		}
		w.battleLocation = -1
	}
	w.wasInBattle = w.board.InBattle
}

// runLocationChecks fetches tooltips for the locations the scout wants a
// look at. Only worth doing in a control phase, where drains are resolved.
func (w *Worker) runLocationChecks(ctx context.Context) {
	if w.board == nil || !strings.Contains(w.board.Phase, "Control") {
		return
	}
	due := w.scout.Due(w.board)
	if len(due) == 0 {
		return
	}
	for _, loc := range due {
		html, err := w.coord.CardInfo(ctx, w.gameID, loc.CardID)
		if err != nil {
			w.log.Warn().Err(err).Str("location", loc.DisplayName()).Msg("Location check failed")
			continue
		}
		intel := w.scout.Digest(loc.CardID, html)
		w.log.Info().
			Str("location", loc.DisplayName()).
			Str("my_drain", intel.MyDrain).
			Bool("battle_order", intel.BattleOrder).
			Int("checks", w.scout.TotalChecks()).
			Msg("Scouted location")
	}
}

// checkTableLiveness confirms the hall still knows about our game. GEMP can
// orphan a game when the opponent's client dies without a concede, so a
// missing or finished table ends it from our side. Skipped while the
// connection is flaky, so an outage is not mistaken for a dead table.
func (w *Worker) checkTableLiveness(ctx context.Context) {
	if w.now().Sub(w.lastHallCheck) < hallLivenessInterval || w.monitor.Failures() > 0 {
		return
	}
	w.lastHallCheck = w.now()

	hall, cn, err := w.coord.HallTables(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("Hall liveness check failed")
		return
	}
	if cn > 0 {
		w.hallChannel = cn
	}
	for i := range hall {
		if hall[i].GameID != w.gameID {
			continue
		}
		if hall[i].Status == "finished" {
			w.log.Info().Msg("Hall reports our game finished")
			w.setState(StateGameEnded, "")
		}
		return
	}
	w.log.Info().Msg("Our table is gone from the hall, treating the game as over")
	w.setState(StateGameEnded, "")
}

// finishGame settles the result, lets the chat manager say goodbye and
// record stats, tears the table down, and decides where to go next.
func (w *Worker) finishGame(ctx context.Context) error {
	botWon, how := w.determineWin()
	w.log.Info().
		Bool("won", botWon).
		Str("how", how).
		Str("opponent", w.opponent).
		Int("turns", w.boardTurn()).
		Msg("Game over")

	if w.board != nil {
		w.chat.OnGameEnd(ctx, !botWon, w.board)
	}

	tableID := w.tables.TableID()
	w.tables.OnGameEnded()
	w.gamesPlayed++

	w.coord.LeaveChat(w.gameID)
	if tableID != "" {
		if err := w.coord.LeaveTable(ctx, tableID); err != nil {
			w.log.Warn().Err(err).Str("table", tableID).Msg("Could not leave table")
		}
	}

	if w.pub != nil {
		w.pub.PublishGameEnded(w.name, w.opponent, botWon)
		w.pub.ClearResume(w.name)
	}

	w.clearGame()
	if w.singleGame {
		w.log.Info().Int("games", w.gamesPlayed).Msg("Single-game mode, stopping")
		w.setState(StateStopped, "")
		return nil
	}
	w.setState(StateInLobby, "")
	return nil
}

// determineWin decides whether we won. The winner line is authoritative;
// without one (opponent vanished, table died) remaining life force settles
// it the way the scoreboard would, ties to us.
func (w *Worker) determineWin() (bool, string) {
	if w.board == nil {
		return false, "no board"
	}
	if w.board.Winner != "" {
		return w.board.Winner == w.username(), "winner message"
	}
	return w.board.Their.LifeForce() <= w.board.My.LifeForce(), "life force totals"
}

func (w *Worker) clearGame() {
	w.gameID = ""
	w.channel = 0
	w.opponent = ""
	w.wasInBattle = false
	w.battleLocation = -1
	w.gameFinished = false
	w.board = nil
	w.proc = nil
	w.strat = nil
	w.handler.Reset()
}

// pollHall fetches the hall, incrementally when a channel is known.
func (w *Worker) pollHall(ctx context.Context) ([]Table, error) {
	var (
		tables []Table
		cn     int
		err    error
	)
	if w.hallChannel > 0 {
		tables, cn, err = w.coord.UpdateHall(ctx, w.hallChannel)
	} else {
		tables, cn, err = w.coord.HallTables(ctx)
	}
	if err != nil {
		return nil, err
	}
	if cn > 0 {
		w.hallChannel = cn
	}
	return tables, nil
}

func (w *Worker) setState(s WorkerState, lastError string) {
	if w.state == s {
		return
	}
	w.log.Info().Str("from", string(w.state)).Str("to", string(s)).Msg("State change")
	w.state = s
	w.lastError = lastError
	w.publishStatus()
}

func (w *Worker) fail(msg string) {
	w.log.Error().Str("reason", msg).Msg("Worker giving up")
	w.setState(StateError, msg)
}

func (w *Worker) username() string { return w.coord.Client().Username() }

func (w *Worker) boardTurn() int {
	if w.board == nil {
		return 0
	}
	return w.board.TurnNumber
}

func (w *Worker) pollInterval() time.Duration {
	if w.board != nil && isFastPhase(w.board.Phase) {
		return fastPollInterval
	}
	return gamePollInterval
}

func (w *Worker) publishStatus() {
	if w.pub == nil {
		return
	}
	st := model.WorkerStatus{
		Name:      w.name,
		State:     string(w.state),
		GameID:    w.gameID,
		Opponent:  w.opponent,
		Deck:      w.tables.DeckName(),
		UpdatedAt: w.now(),
	}
	if w.board != nil {
		st.Turn = w.board.TurnNumber
		st.Phase = w.board.Phase
	}
	w.pub.PublishStatus(st)
}

func (w *Worker) publishBoard() {
	if w.pub == nil || w.board == nil {
		return
	}
	snapshot, err := json.Marshal(w.board)
	if err != nil {
		w.log.Warn().Err(err).Msg("Board snapshot failed")
		return
	}
	w.pub.PublishBoard(w.name, snapshot)
}

func (w *Worker) publishResume() {
	if w.pub == nil || w.gameID == "" {
		return
	}
	w.pub.PublishResume(w.name, w.gameID, w.channel)
}

func (w *Worker) trace(d *swccg.Decision, resp Response) {
	if w.pub == nil {
		return
	}
	w.pub.PublishTrace(w.name, model.TraceEntry{
		Time:         w.now(),
		GameID:       w.gameID,
		DecisionID:   d.ID,
		DecisionType: d.Type,
		Text:         clip(d.Text, 200),
		Chosen:       resp.Value,
		Reason:       resp.Reasoning,
	})
}

// isFastPhase reports the phases the web client polls quickly in.
func isFastPhase(phase string) bool {
	p := strings.ToLower(phase)
	return strings.Contains(p, "draw") || strings.Contains(p, "activate")
}

// filterDecks keeps the configured deck names. An empty filter, or one
// matching nothing, keeps everything, so a typo cannot strand the bot with
// zero decks.
func filterDecks(decks []Deck, namesCSV string) []Deck {
	namesCSV = strings.TrimSpace(namesCSV)
	if namesCSV == "" {
		return decks
	}
	want := make(map[string]bool)
	for _, n := range strings.Split(namesCSV, ",") {
		if n = strings.TrimSpace(n); n != "" {
			want[strings.ToLower(n)] = true
		}
	}
	var kept []Deck
	for _, d := range decks {
		if want[strings.ToLower(d.Name)] {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return decks
	}
	return kept
}

// tuningFromConfig overlays the configured knobs on the defaults.
func tuningFromConfig(cfg *config.Config) Tuning {
	t := DefaultTuning()
	if cfg.MaxHandSize > 0 {
		t.MaxHandSize = cfg.MaxHandSize
	}
	if cfg.HandSoftCap > 0 {
		t.HandSoftCap = cfg.HandSoftCap
	}
	if cfg.ForceGenTarget > 0 {
		t.ForceGenTarget = cfg.ForceGenTarget
	}
	if cfg.DeployThreshold > 0 {
		t.DeployThreshold = float64(cfg.DeployThreshold)
	}
	if cfg.BattleFavorableThreshold != 0 {
		t.BattleFavorableThreshold = cfg.BattleFavorableThreshold
	}
	if cfg.BattleDangerThreshold != 0 {
		t.BattleDangerThreshold = cfg.BattleDangerThreshold
	}
	return t
}
