// Command replay folds a recorded GEMP event stream offline: it replays
// the XML updates through the board projection and decision pipeline
// without a server, printing what the bot would have answered at each
// decision point. Useful for debugging projection bugs and comparing
// brains against historical games.
//
// Usage:
//
//	go run ./cmd/replay/ -input game.xml -username rando
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SWCCGArena/rando/internal/bot"
	"github.com/SWCCGArena/rando/internal/repository/postgres"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		input     string
		username  string
		deckName  string
		brainName string
		cardDir   string
		modelDir  string
		dbURL     string
		dryRun    bool
		jsonOut   bool
		debug     bool
	)

	flag.StringVar(&input, "input", "", "Recorded event stream (XML), - for stdin")
	flag.StringVar(&username, "username", "rando", "Participant the recording was captured as")
	flag.StringVar(&deckName, "deck", "", "Deck label for the derived game record")
	flag.StringVar(&brainName, "brain", "static", "Brain to answer decisions with (static, neural)")
	flag.StringVar(&cardDir, "cards", "cards", "Directory with Light.json/Dark.json")
	flag.StringVar(&modelDir, "models", "", "ONNX model directory for the neural brain")
	flag.StringVar(&dbURL, "db", "", "Database URL (or use DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", true, "Skip database writes")
	flag.BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if modelDir != "" {
		bot.GonnxModelPath = modelDir
	}

	if input == "" {
		log.Fatal().Msg("-input is required")
	}
	in := os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			log.Fatal().Err(err).Msg("Open input failed")
		}
		defer f.Close()
		in = f
	}

	cardDB, err := swccg.LoadCardDB(cardDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cardDir).Msg("Card database load failed, replaying without card metadata")
		cardDB = swccg.NewCardDBFromCards()
	}

	brain := bot.BrainForName(brainName, cardDB, nil, log.Logger)

	result, err := bot.Replay(context.Background(), bot.ReplayConfig{
		Username: username,
		DeckName: deckName,
		Brain:    brain,
		CardDB:   cardDB,
	}, in, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Replay failed")
	}

	if jsonOut {
		out, _ := json.MarshalIndent(map[string]any{
			"updates":   result.Updates,
			"events":    result.Events,
			"decisions": result.Decisions,
			"skipped":   result.Skipped,
			"hopeless":  result.Hopeless,
			"finished":  result.Finished,
			"winner":    result.Winner,
			"bot_won":   result.BotWon,
			"win_basis": result.WinBasis,
		}, "", "  ")
		fmt.Println(string(out))
	} else {
		printSummary(result)
	}

	if dryRun {
		return
	}
	if !result.Finished {
		log.Warn().Msg("Recording did not finish a game, skipping database write")
		return
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal().Msg("-db or DATABASE_URL is required without -dry-run")
	}

	db, err := postgres.Connect(dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	rec := result.Record()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := postgres.NewStatsRepo(db).InsertGame(ctx, rec); err != nil {
		log.Fatal().Err(err).Msg("Game insert failed")
	}
	log.Info().Str("opponent", rec.OpponentName).Bool("won", rec.Won).Msg("Game imported")
}

func printSummary(r *bot.ReplayResult) {
	fmt.Printf("updates:   %d\n", r.Updates)
	fmt.Printf("events:    %d\n", r.Events)
	fmt.Printf("decisions: %d answered, %d skipped\n", len(r.Decisions), r.Skipped)
	if r.Board != nil {
		fmt.Printf("board:     turn %d vs %s (%s side)\n", r.Board.TurnNumber, r.Board.Opponent, r.Board.MySide)
	}
	for _, reason := range r.Hopeless {
		fmt.Printf("hopeless:  %s\n", reason)
	}
	if r.Finished {
		fmt.Printf("result:    winner=%s botWon=%v basis=%s\n", r.Winner, r.BotWon, r.WinBasis)
	} else {
		fmt.Println("result:    game did not finish")
	}
	for _, d := range r.Decisions {
		fmt.Printf("  [%s] %s -> %s (%s)\n", d.DecisionType, trim(d.Text, 60), d.Chosen, d.Reason)
	}
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
