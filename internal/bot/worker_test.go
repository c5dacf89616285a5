package bot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/config"
	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

type fakePublisher struct {
	statuses []model.WorkerStatus
	boards   int
	traces   []model.TraceEntry
	resumes  []string
	cleared  int
	endedWon []bool
	endedOpp string
}

func (f *fakePublisher) PublishStatus(st model.WorkerStatus) { f.statuses = append(f.statuses, st) }
func (f *fakePublisher) PublishBoard(name string, snapshot []byte) { f.boards++ }
func (f *fakePublisher) PublishTrace(name string, entry model.TraceEntry) {
	f.traces = append(f.traces, entry)
}
func (f *fakePublisher) PublishResume(name, gameID string, channelNumber int) {
	f.resumes = append(f.resumes, gameID)
}
func (f *fakePublisher) ClearResume(name string) { f.cleared++ }
func (f *fakePublisher) PublishGameEnded(name, opponent string, botWon bool) {
	f.endedWon = append(f.endedWon, botWon)
	f.endedOpp = opponent
}

// fakeGemp speaks just enough of the GEMP wire protocol for a worker to
// play one scripted game: post a table, watch an opponent sit down, join,
// answer one decision, and win.
type fakeGemp struct {
	mu          sync.Mutex
	hallReads   int
	hallUpdates int
	decisions   []string
	farewells   []string
	left        []string
}

func (g *fakeGemp) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "OK")
	})
	mux.HandleFunc("/deck/libraryList", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<decks><darkDeck>Heavy Blasters</darkDeck></decks>`)
	})
	mux.HandleFunc("/deck/list", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<decks/>`)
	})
	mux.HandleFunc("/hall", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			return // table created; the next hall read shows it
		}
		g.mu.Lock()
		g.hallReads++
		n := g.hallReads
		g.mu.Unlock()
		if n == 1 {
			io.WriteString(w, `<hall channelNumber="1"/>`)
			return
		}
		io.WriteString(w, `<hall channelNumber="2">`+
			`<table id="t1" tournament="Casual - scrimmage" status="waiting" format="open" gameId="" players="rando (DARK)"/>`+
			`</hall>`)
	})
	mux.HandleFunc("/hall/update", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.hallUpdates++
		n := g.hallUpdates
		g.mu.Unlock()
		if n == 1 {
			io.WriteString(w, `<hall channelNumber="3">`+
				`<table id="t1" tournament="Casual - scrimmage" status="waiting" format="open" gameId="" players="rando (DARK),wedge (LIGHT)"/>`+
				`</hall>`)
			return
		}
		io.WriteString(w, `<hall channelNumber="4">`+
			`<table id="t1" tournament="Casual - scrimmage" status="playing" format="open" gameId="g1" players="rando (DARK),wedge (LIGHT)"/>`+
			`</hall>`)
	})
	mux.HandleFunc("/hall/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.left = append(g.left, r.URL.Path)
		g.mu.Unlock()
	})
	mux.HandleFunc("/game/g1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			io.WriteString(w, `<gameState cn="3">`+
				`<ge type="P" participantId="rando" allParticipantIds="rando,wedge" side="Dark"/>`+
				`<ge type="GS"><playerZones name="rando" FORCE_PILE="5" RESERVE_DECK="25" HAND="8"/><playerZones name="wedge" FORCE_PILE="5" RESERVE_DECK="25" HAND="8"/></ge>`+
				`<ge type="GPC" phase="Activate phase of turn #1"/>`+
				`</gameState>`)
			return
		}
		if id := r.FormValue("decisionId"); id != "" {
			g.mu.Lock()
			g.decisions = append(g.decisions, r.FormValue("decisionValue"))
			g.mu.Unlock()
			io.WriteString(w, `<update cn="5" finished="true">`+
				`<ge type="M" message="rando is the winner due to: Life Force depletion"/>`+
				`</update>`)
			return
		}
		io.WriteString(w, `<update cn="4">`+
			`<ge type="GPC" phase="Deploy phase of turn #1"/>`+
			`<ge type="D" id="d1" decisionType="MULTIPLE_CHOICE" text="Choose one"><parameter name="results" value="Yes"/><parameter name="results" value="No"/></ge>`+
			`</update>`)
	})
	mux.HandleFunc("/chat/Gameg1", func(w http.ResponseWriter, r *http.Request) {
		if msg := r.FormValue("message"); msg != "" {
			g.mu.Lock()
			g.farewells = append(g.farewells, msg)
			g.mu.Unlock()
		}
		io.WriteString(w, `<chat/>`)
	})
	return httptest.NewServer(mux)
}

func testWorkerConfig() *config.Config {
	return &config.Config{
		GempUsername:     "rando",
		GempPassword:     "pw",
		TableName:        "scrimmage",
		GameFormat:       "open",
		UseLibraryDecks:  true,
		HallPollInterval: time.Millisecond,
	}
}

func newTestWorker(t *testing.T, baseURL string) (*Worker, *fakePublisher, *fakeChatStats) {
	t.Helper()
	client, err := NewClient(baseURL, "rando", 5*time.Second, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	pub := &fakePublisher{}
	stats := newFakeChatStats()
	w := NewWorker(WorkerConfig{
		Name:        "rando",
		Config:      testWorkerConfig(),
		Coordinator: NewCoordinator(client, PacingConfig{}, zerolog.Nop()),
		Brain:       &chatTestBrain{},
		Stats:       stats,
		Publisher:   pub,
		SingleGame:  true,
	}, zerolog.Nop())
	w.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return w, pub, stats
}

func TestWorkerRun_PlaysOneGameToTheEnd(t *testing.T) {
	gemp := &fakeGemp{}
	srv := gemp.server()
	defer srv.Close()

	w, pub, stats := newTestWorker(t, srv.URL)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(pub.statuses) == 0 || pub.statuses[len(pub.statuses)-1].State != string(StateStopped) {
		t.Fatalf("expected the worker to stop after a single game, statuses=%v", pub.statuses)
	}
	sawPlaying := false
	for _, st := range pub.statuses {
		if st.State == string(StatePlaying) {
			sawPlaying = true
			if st.GameID != "g1" || st.Opponent != "wedge" {
				t.Errorf("playing status should carry the game, got %+v", st)
			}
		}
	}
	if !sawPlaying {
		t.Error("worker never reported a playing state")
	}

	if len(gemp.decisions) != 1 || gemp.decisions[0] != "0" {
		t.Errorf("expected one decision answer of 0, got %v", gemp.decisions)
	}
	if len(pub.traces) != 1 || pub.traces[0].DecisionID != "d1" {
		t.Errorf("expected a trace for decision d1, got %v", pub.traces)
	}
	if len(pub.endedWon) != 1 || !pub.endedWon[0] || pub.endedOpp != "wedge" {
		t.Errorf("expected a won game against wedge, got won=%v opp=%q", pub.endedWon, pub.endedOpp)
	}
	if pub.cleared != 1 {
		t.Errorf("expected the resume marker cleared once, got %d", pub.cleared)
	}
	if len(pub.resumes) == 0 || pub.resumes[0] != "g1" {
		t.Errorf("expected a resume marker for g1, got %v", pub.resumes)
	}
	if pub.boards == 0 {
		t.Error("expected at least one board snapshot")
	}

	if len(stats.results) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(stats.results))
	}
	if stats.results[0].PlayerName != "wedge" || stats.results[0].Won {
		t.Errorf("expected a loss recorded for wedge, got %+v", stats.results[0])
	}

	found := false
	for _, path := range gemp.left {
		if path == "/hall/t1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the worker to leave table t1, got %v", gemp.left)
	}
}

func TestLobby_LostSessionGoesBackToConnecting(t *testing.T) {
	w, _, _ := newTestWorker(t, "http://127.0.0.1:9")
	w.state = StateInLobby

	if err := w.lobby(context.Background()); err != nil {
		t.Fatalf("lobby: %v", err)
	}
	if w.state != StateConnecting {
		t.Errorf("expected connecting after a lost session, got %s", w.state)
	}
}

func TestCheckTableLiveness_EndsVanishedGame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			io.WriteString(w, "OK")
		case "/hall":
			io.WriteString(w, `<hall channelNumber="9"/>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	w, _, _ := newTestWorker(t, srv.URL)
	if err := w.coord.Login(context.Background(), "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	w.state = StatePlaying
	w.gameID = "g9"
	base := time.Unix(5000, 0)
	w.now = func() time.Time { return base }
	w.lastHallCheck = base.Add(-2 * time.Minute)

	w.checkTableLiveness(context.Background())

	if w.state != StateGameEnded {
		t.Errorf("expected game_ended for a vanished table, got %s", w.state)
	}
	if w.hallChannel != 9 {
		t.Errorf("expected the hall channel recorded, got %d", w.hallChannel)
	}
}

func TestCheckTableLiveness_SkipsWhileConnectionFlaky(t *testing.T) {
	w, _, _ := newTestWorker(t, "http://127.0.0.1:9")
	w.state = StatePlaying
	w.gameID = "g9"
	w.monitor.RecordFailure("timeout")
	base := time.Unix(5000, 0)
	w.now = func() time.Time { return base }
	w.lastHallCheck = base.Add(-2 * time.Minute)

	w.checkTableLiveness(context.Background())

	if w.state != StatePlaying {
		t.Errorf("a flaky connection must not end the game, got %s", w.state)
	}
}

func TestFoldEvents_FoldsBatchesIntoBoard(t *testing.T) {
	w, _, _ := newTestWorker(t, "http://127.0.0.1:9")
	w.board = swccg.NewBoardState(nil, "rando")
	w.proc = swccg.NewProcessor(w.board, zerolog.Nop())

	err := w.foldEvents(context.Background(), []swccg.GameEvent{
		{Type: swccg.EventTurnChange, ParticipantID: "rando"},
		{Type: swccg.EventPhaseChange, Phase: "Deploy phase of turn #2"},
	})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if w.board.Phase != "Deploy phase of turn #2" || w.board.TurnNumber != 2 {
		t.Errorf("expected the board caught up, got phase=%q turn=%d", w.board.Phase, w.board.TurnNumber)
	}
	if w.board.TurnPlayer != "rando" {
		t.Errorf("expected turn player rando, got %q", w.board.TurnPlayer)
	}
}

func TestFoldEvents_SessionErrorsBubbleUp(t *testing.T) {
	w, _, _ := newTestWorker(t, "http://127.0.0.1:9")
	w.gameID = "g1"
	w.board = swccg.NewBoardState(nil, "rando")
	w.board.My = swccg.Piles{ReserveDeck: 20}
	w.board.Their = swccg.Piles{ReserveDeck: 20}
	w.proc = swccg.NewProcessor(w.board, zerolog.Nop())
	w.strat = NewStrategy(swccg.SideDark, &w.tuning, zerolog.Nop())

	err := w.foldEvents(context.Background(), []swccg.GameEvent{{
		Type:         swccg.EventDecision,
		DecisionID:   "d1",
		DecisionType: swccg.DecisionMultipleChoice,
		Text:         "Choose one",
	}})
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected a session error to bubble out of the fold, got %v", err)
	}
}

func TestNoteBattles_DecisiveResultsOnly(t *testing.T) {
	cases := []struct {
		name     string
		myLeft   int
		theyLeft int
		wantWon  int
		wantLost int
	}{
		{"held the field", 2, 0, 1, 0},
		{"wiped out", 0, 2, 0, 1},
		{"mutual losses", 1, 1, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w, _, _ := newTestWorker(t, "http://127.0.0.1:9")
			w.board = swccg.NewBoardState(nil, "rando")
			w.strat = NewStrategy(swccg.SideDark, &w.tuning, zerolog.Nop())

			loc := &swccg.LocationInPlay{CardID: "L1", Index: 0}
			w.board.Locations = append(w.board.Locations, loc)

			w.board.InBattle = true
			w.board.BattleLocation = 0
			w.noteBattles(context.Background())
			if !w.wasInBattle || w.battleLocation != 0 {
				t.Fatalf("battle start not tracked: wasInBattle=%v loc=%d", w.wasInBattle, w.battleLocation)
			}

			for i := 0; i < c.myLeft; i++ {
				loc.MyCards = append(loc.MyCards, &swccg.CardInPlay{CardID: "m"})
			}
			for i := 0; i < c.theyLeft; i++ {
				loc.TheirCards = append(loc.TheirCards, &swccg.CardInPlay{CardID: "t"})
			}
			w.board.InBattle = false
			w.board.BattleLocation = -1
			w.noteBattles(context.Background())

			if w.strat.BattlesWon != c.wantWon || w.strat.BattlesLost != c.wantLost {
				t.Errorf("expected won=%d lost=%d, got won=%d lost=%d",
					c.wantWon, c.wantLost, w.strat.BattlesWon, w.strat.BattlesLost)
			}
			if w.wasInBattle || w.battleLocation != -1 {
				t.Errorf("battle end not tracked: wasInBattle=%v loc=%d", w.wasInBattle, w.battleLocation)
			}
		})
	}
}

func TestDetermineWin(t *testing.T) {
	w, _, _ := newTestWorker(t, "http://127.0.0.1:9")
	w.board = swccg.NewBoardState(nil, "rando")

	w.board.Winner = "rando"
	if won, how := w.determineWin(); !won || how != "winner message" {
		t.Errorf("winner line should settle it, got won=%v how=%q", won, how)
	}
	w.board.Winner = "wedge"
	if won, _ := w.determineWin(); won {
		t.Error("losing the winner line should lose the game")
	}

	w.board.Winner = ""
	w.board.My = swccg.Piles{ReserveDeck: 10}
	w.board.Their = swccg.Piles{ReserveDeck: 8}
	if won, how := w.determineWin(); !won || how != "life force totals" {
		t.Errorf("higher life force should win the fallback, got won=%v how=%q", won, how)
	}
	w.board.Their = swccg.Piles{ReserveDeck: 12}
	if won, _ := w.determineWin(); won {
		t.Error("lower life force should lose the fallback")
	}
}

func TestIsFastPhase(t *testing.T) {
	cases := []struct {
		phase string
		want  bool
	}{
		{"Activate phase of turn #1", true},
		{"Draw phase of turn #3", true},
		{"Deploy phase of turn #1", false},
		{"Control phase of turn #2", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isFastPhase(c.phase); got != c.want {
			t.Errorf("isFastPhase(%q) = %v, want %v", c.phase, got, c.want)
		}
	}
}

func TestFilterDecks(t *testing.T) {
	decks := []Deck{{Name: "Heavy Blasters"}, {Name: "Rebel Rush"}, {Name: "Sand and Sabers"}}

	if got := filterDecks(decks, ""); len(got) != 3 {
		t.Errorf("empty filter should keep everything, got %d", len(got))
	}
	got := filterDecks(decks, " rebel rush , HEAVY BLASTERS ")
	if len(got) != 2 || got[0].Name != "Heavy Blasters" || got[1].Name != "Rebel Rush" {
		t.Errorf("expected the two named decks, got %v", got)
	}
	if got := filterDecks(decks, "no such deck"); len(got) != 3 {
		t.Errorf("a filter matching nothing should keep everything, got %d", len(got))
	}
}

func TestTuningFromConfig_OverlaysOnDefaults(t *testing.T) {
	base := tuningFromConfig(&config.Config{})
	def := DefaultTuning()
	if base != def {
		t.Errorf("zero config should keep the defaults, got %+v", base)
	}

	tuned := tuningFromConfig(&config.Config{
		MaxHandSize:           20,
		DeployThreshold:       9,
		BattleDangerThreshold: -10,
	})
	if tuned.MaxHandSize != 20 || tuned.DeployThreshold != 9.0 || tuned.BattleDangerThreshold != -10 {
		t.Errorf("expected overrides applied, got %+v", tuned)
	}
	if tuned.HandSoftCap != def.HandSoftCap || tuned.ForceGenTarget != def.ForceGenTarget {
		t.Errorf("unset knobs should keep defaults, got %+v", tuned)
	}
}
