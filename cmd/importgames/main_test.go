package main

import "testing"

func TestParseGameLine(t *testing.T) {
	line := `{"opponent_name":"vader","deck_name":"Hyperdrive","my_side":"light","won":true,"route_score":55,"damage_dealt":9,"force_remaining":4,"turns":12,"duration_seconds":1200}`
	rec, err := parseGameLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec.OpponentName != "vader" || !rec.Won || rec.RouteScore != 55 || rec.Turns != 12 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestParseGameLineBlank(t *testing.T) {
	rec, err := parseGameLine("   ")
	if err != nil || rec != nil {
		t.Errorf("expected nil, nil for blank line, got %+v, %v", rec, err)
	}
}

func TestParseGameLineErrors(t *testing.T) {
	cases := map[string]string{
		"bad json":    `{"opponent_name":`,
		"no opponent": `{"deck_name":"Hyperdrive"}`,
		"bad side":    `{"opponent_name":"vader","my_side":"sideways"}`,
	}
	for name, line := range cases {
		if _, err := parseGameLine(line); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
