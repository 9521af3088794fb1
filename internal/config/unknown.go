package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each section to its valid keys. The "" section holds the
// top-level keys, including the section names themselves.
var knownKeys = map[string][]string{
	"":        {"server_url", "store", "cookie", "session", "logging", "network", "guard"},
	"store":   {"backend", "path", "redis_addr", "redis_db", "key_prefix"},
	"cookie":  {"path"},
	"session": {"clock_skew"},
	"logging": {"log_level", "log_format"},
	"network": {"connect_timeout", "data_timeout", "user_agent", "requests_per_second"},
	"guard":   {"listen", "upstream", "login_path", "public_paths"},
}

func init() {
	// Sorted for deterministic suggestions when two candidates have the same
	// edit distance.
	for _, keys := range knownKeys {
		sort.Strings(keys)
	}
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := buildKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an undecoded key, suggesting
// the closest known key in the same section.
func buildKeyError(key toml.Key) error {
	var section, field string

	switch {
	case len(key) == 1:
		field = key[0]
	case isSection(key[0]):
		section, field = key[0], key[1]
	default:
		// A table nested under an unknown top-level key: report the parent.
		field = key[0]
	}

	candidates := knownKeys[section]
	for _, k := range candidates {
		if k == field {
			return nil
		}
	}

	name := field
	if section != "" {
		name = section + "." + field
	}

	if suggestion := closestMatch(field, candidates); suggestion != "" {
		if section != "" {
			suggestion = section + "." + suggestion
		}

		return fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestion)
	}

	return fmt.Errorf("unknown config key %q", name)
}

func isSection(name string) bool {
	_, ok := knownKeys[name]

	return ok && name != ""
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
