package bot

import "math/rand"

// botRng is the package-level random source behind every stochastic bot
// choice (emergency picks, chat variety, loop breaking). When nil, the
// helpers delegate to the global math/rand default. Tests seed it for
// reproducible decisions.
var botRng *rand.Rand

// SeedBotRng sets a deterministic random source.
func SeedBotRng(seed int64) {
	botRng = rand.New(rand.NewSource(seed))
}

// ResetBotRng reverts to the default global random source.
func ResetBotRng() {
	botRng = nil
}

func botFloat64() float64 {
	if botRng != nil {
		return botRng.Float64()
	}
	return rand.Float64()
}

func botIntn(n int) int {
	if botRng != nil {
		return botRng.Intn(n)
	}
	return rand.Intn(n)
}

func botPerm(n int) []int {
	if botRng != nil {
		return botRng.Perm(n)
	}
	return rand.Perm(n)
}

// botPick returns a uniformly random element, or "" for an empty slice.
func botPick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[botIntn(len(options))]
}

// botSample returns up to n distinct elements in random order.
func botSample(options []string, n int) []string {
	if n > len(options) {
		n = len(options)
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	for _, idx := range botPerm(len(options))[:n] {
		out = append(out, options[idx])
	}
	return out
}
