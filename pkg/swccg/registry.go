package swccg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// CardDB is the immutable card metadata registry, loaded once at startup
// from the swccg-card-json data files.
type CardDB struct {
	cards map[string]*Card
}

type cardFile struct {
	Cards []json.RawMessage `json:"cards"`
}

type cardEntry struct {
	GempID      string    `json:"gempId"`
	Front       *cardFace `json:"front"`
	Matching    string    `json:"matching"`
	Counterpart string    `json:"counterpart"`
	Rarity      string    `json:"rarity"`
	Set         string    `json:"set"`
}

type cardFace struct {
	Title           string   `json:"title"`
	Type            string   `json:"type"`
	SubType         string   `json:"subType"`
	Power           string   `json:"power"`
	Ability         string   `json:"ability"`
	Deploy          string   `json:"deploy"`
	Forfeit         string   `json:"forfeit"`
	Destiny         string   `json:"destiny"`
	Parsec          string   `json:"parsec"`
	SystemOrbits    string   `json:"systemOrbits"`
	Hyperspeed      string   `json:"hyperspeed"`
	Landspeed       string   `json:"landspeed"`
	Maneuver        string   `json:"maneuver"`
	Armor           string   `json:"armor"`
	LightSideIcons  int      `json:"lightSideIcons"`
	DarkSideIcons   int      `json:"darkSideIcons"`
	Gametext        string   `json:"gametext"`
	Lore            string   `json:"lore"`
	Characteristics []string `json:"characteristics"`
	Icons           []string `json:"icons"`
}

// LoadCardDB reads Dark.json and Light.json from dir. A missing or
// unreadable file is logged and skipped; an error is returned only when no
// cards could be loaded at all.
func LoadCardDB(dir string) (*CardDB, error) {
	db := &CardDB{cards: make(map[string]*Card)}

	for _, f := range []struct {
		name string
		side Side
	}{
		{"Dark.json", SideDark},
		{"Light.json", SideLight},
	} {
		path := filepath.Join(dir, f.name)
		n, err := db.loadFile(path, f.side)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to load card file")
			continue
		}
		log.Info().Int("cards", n).Str("file", f.name).Msg("Loaded card file")
	}

	if len(db.cards) == 0 {
		return nil, fmt.Errorf("no cards loaded from %s", dir)
	}
	return db, nil
}

func (db *CardDB) loadFile(path string, side Side) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	var file cardFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	loaded := 0
	for _, raw := range file.Cards {
		var entry cardEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed card entry")
			continue
		}
		if entry.GempID == "" || entry.Front == nil {
			continue
		}
		db.cards[entry.GempID] = newCard(&entry, side)
		loaded++
	}
	return loaded, nil
}

func newCard(entry *cardEntry, side Side) *Card {
	f := entry.Front
	return &Card{
		BlueprintID:     entry.GempID,
		Title:           f.Title,
		Side:            side,
		Type:            f.Type,
		SubType:         f.SubType,
		Power:           f.Power,
		Ability:         f.Ability,
		Deploy:          f.Deploy,
		Forfeit:         f.Forfeit,
		Destiny:         f.Destiny,
		Parsec:          f.Parsec,
		SystemOrbits:    f.SystemOrbits,
		Hyperspeed:      f.Hyperspeed,
		Landspeed:       f.Landspeed,
		Maneuver:        f.Maneuver,
		Armor:           f.Armor,
		LightSideIcons:  f.LightSideIcons,
		DarkSideIcons:   f.DarkSideIcons,
		Gametext:        f.Gametext,
		Lore:            f.Lore,
		Characteristics: f.Characteristics,
		Icons:           f.Icons,
		Matching:        entry.Matching,
		Counterpart:     entry.Counterpart,
		Rarity:          entry.Rarity,
		Set:             entry.Set,
		Unique:          strings.HasPrefix(f.Title, "•"),
		DefensiveShield: strings.Contains(f.Gametext, "Defensive Shield"),
	}
}

// NewCardDBFromCards builds a registry directly from cards, for tests.
func NewCardDBFromCards(cards ...*Card) *CardDB {
	db := &CardDB{cards: make(map[string]*Card, len(cards))}
	for _, c := range cards {
		db.cards[c.BlueprintID] = c
	}
	return db
}

// Get returns the card for a blueprint ID, or nil when unknown.
func (db *CardDB) Get(blueprintID string) *Card {
	if db == nil {
		return nil
	}
	return db.cards[blueprintID]
}

// Title returns the card title for a blueprint ID, falling back to the
// blueprint ID itself when the card is unknown.
func (db *CardDB) Title(blueprintID string) string {
	if c := db.Get(blueprintID); c != nil {
		return c.Title
	}
	return blueprintID
}

// Len returns the number of cards in the registry.
func (db *CardDB) Len() int {
	if db == nil {
		return 0
	}
	return len(db.cards)
}

// SearchTitle returns all cards whose title contains the given substring,
// case-insensitive.
func (db *CardDB) SearchTitle(substr string) []*Card {
	var out []*Card
	needle := strings.ToLower(substr)
	for _, c := range db.cards {
		if strings.Contains(strings.ToLower(c.Title), needle) {
			out = append(out, c)
		}
	}
	return out
}
