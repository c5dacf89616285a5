package bot

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

// ReplayConfig configures an offline replay of a recorded update stream.
type ReplayConfig struct {
	Username string        // participant the recording was captured as
	DeckName string        // deck label for the derived game record
	Brain    Brain         // decision maker; nil folds state without answering
	CardDB   *swccg.CardDB // card metadata; an empty DB is fine
	Tuning   Tuning        // strategy knobs, zero value means defaults
}

// ReplayResult summarizes one replayed recording.
type ReplayResult struct {
	Updates   int
	Events    int
	Decisions []model.TraceEntry
	Skipped   int      // decisions the pipeline declined to answer
	Hopeless  []string // concede reasons the board reported along the way
	Finished  bool
	Winner    string
	BotWon    bool
	WinBasis  string
	Board     *swccg.BoardState

	deck string
}

// Replay drives a recorded update stream through the same fold and decision
// pipeline the live worker uses, with nothing on the other end. The reader
// holds one or more concatenated <update> or <gameState> documents, exactly
// as they came off the wire. Decisions are answered locally so the trace
// shows what the brain would do; the answers go nowhere, the recording
// already contains what the server did next.
func Replay(ctx context.Context, cfg ReplayConfig, r io.Reader, log zerolog.Logger) (*ReplayResult, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("replay: username is required")
	}
	db := cfg.CardDB
	if db == nil {
		db = swccg.NewCardDBFromCards()
	}
	tuning := cfg.Tuning
	if tuning == (Tuning{}) {
		tuning = DefaultTuning()
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("replay: read recording: %w", err)
	}
	docs, err := splitUpdateDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("replay: recording holds no update documents")
	}

	board := swccg.NewBoardState(db, cfg.Username)
	proc := swccg.NewProcessor(board, log)
	handler := NewDecisionHandler(cfg.Brain, log)
	strat := NewStrategy(swccg.SideNone, &tuning, log)
	proc.RegisterTurnStart(func(turn int) { strat.StartTurn(turn) })

	res := &ReplayResult{Board: board, deck: cfg.DeckName}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		upd, err := swccg.ParseGameUpdate(doc)
		if err != nil {
			return nil, fmt.Errorf("replay: update %d: %w", res.Updates+1, err)
		}
		res.Updates++
		if upd.Finished {
			res.Finished = true
		}

		for i := range upd.Events {
			ev := &upd.Events[i]
			res.Events++
			if !ev.IsDecision() {
				proc.Process(ev)
				continue
			}
			d := swccg.ParseDecision(ev)
			if d == nil {
				continue
			}
			if should, reason := board.ShouldConcede(); should {
				res.Hopeless = append(res.Hopeless, reason)
			}
			strat.UpdateFromBoard(board)
			resp := handler.Respond(d, board, strat, board.PhaseCount)
			if resp.Skip {
				res.Skipped++
			}
			res.Decisions = append(res.Decisions, model.TraceEntry{
				Time:         time.Now(),
				DecisionID:   d.ID,
				DecisionType: d.Type,
				Text:         clip(d.Text, 200),
				Chosen:       resp.Value,
				Reason:       resp.Reasoning,
			})
		}
	}

	res.Winner = board.Winner
	if board.Winner != "" {
		res.BotWon, res.WinBasis = board.Winner == cfg.Username, "winner message"
	} else {
		res.BotWon, res.WinBasis = board.Their.LifeForce() <= board.My.LifeForce(), "life force totals"
	}
	return res, nil
}

// Record derives a history row from the replay, in the opponent's frame like
// the live stats path. PlayedAt stays zero so the store stamps import time;
// callers with the real date set it themselves.
func (r *ReplayResult) Record() *model.GameRecord {
	return &model.GameRecord{
		OpponentName:   r.Board.Opponent,
		DeckName:       r.deck,
		MySide:         string(r.Board.MySide),
		Won:            !r.BotWon,
		ForceRemaining: r.Board.My.ForcePile,
		Turns:          r.Board.TurnNumber,
	}
}

// splitUpdateDocuments carves a concatenated stream of XML documents into
// separate byte slices, one per root element. Leading whitespace between
// documents rides along harmlessly.
func splitUpdateDocuments(data []byte) ([][]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var docs [][]byte
	depth := 0
	var start int64
	last := int64(0)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("split recording: %w", err)
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				start = last
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				docs = append(docs, data[start:dec.InputOffset()])
			}
		}
		last = dec.InputOffset()
	}
	if depth != 0 {
		return nil, fmt.Errorf("split recording: truncated document")
	}
	return docs, nil
}
