// Command importgames reads JSONL game history (one game per line, as
// exported by the headless runner or another instance) and imports it
// into Postgres so the admin dashboard and chat stats can see it.
//
// Usage:
//
//	go run ./cmd/importgames/ -input games.jsonl -db postgres://...
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/internal/repository/postgres"
)

// jsonGame is one exported game line. Field names match the GameRecord
// JSON the server writes.
type jsonGame struct {
	OpponentName    string `json:"opponent_name"`
	DeckName        string `json:"deck_name"`
	MySide          string `json:"my_side"`
	Won             bool   `json:"won"`
	RouteScore      int    `json:"route_score"`
	DamageDealt     int    `json:"damage_dealt"`
	ForceRemaining  int    `json:"force_remaining"`
	Turns           int    `json:"turns"`
	DurationSeconds int    `json:"duration_seconds"`
}

func main() {
	inputFile := flag.String("input", "", "Path to JSONL file")
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	aggregate := flag.Bool("aggregate", true, "Also fold games into per-player aggregates")
	flag.Parse()

	if *inputFile == "" {
		log.Fatal("-input is required")
	}
	if *dbURL == "" {
		log.Fatal("-db or DATABASE_URL is required")
	}

	db, err := postgres.Connect(*dbURL)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer db.Close()
	repo := postgres.NewStatsRepo(db)

	f, err := os.Open(*inputFile)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	imported := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		rec, err := parseGameLine(scanner.Text())
		if err != nil {
			log.Printf("line %d: %v (skipped)", lineNo, err)
			continue
		}
		if rec == nil {
			continue // blank line
		}

		if err := repo.InsertGame(ctx, rec); err != nil {
			log.Fatalf("line %d: insert game: %v", lineNo, err)
		}
		if *aggregate {
			_, err := repo.RecordGameResult(ctx, rec.OpponentName, rec.Won,
				rec.RouteScore, rec.DamageDealt, rec.ForceRemaining, rec.DurationSeconds)
			if err != nil {
				log.Fatalf("line %d: record result: %v", lineNo, err)
			}
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}

	log.Printf("imported %d games", imported)
}

// parseGameLine decodes one JSONL line into a GameRecord. Blank lines
// return nil without error.
func parseGameLine(line string) (*model.GameRecord, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	var g jsonGame
	if err := json.Unmarshal([]byte(line), &g); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if g.OpponentName == "" {
		return nil, fmt.Errorf("missing opponent_name")
	}
	if g.MySide != "dark" && g.MySide != "light" && g.MySide != "" {
		return nil, fmt.Errorf("bad my_side %q", g.MySide)
	}
	return &model.GameRecord{
		OpponentName:    g.OpponentName,
		DeckName:        g.DeckName,
		MySide:          g.MySide,
		Won:             g.Won,
		RouteScore:      g.RouteScore,
		DamageDealt:     g.DamageDealt,
		ForceRemaining:  g.ForceRemaining,
		Turns:           g.Turns,
		DurationSeconds: g.DurationSeconds,
	}, nil
}
