// Package matcher finds the gallery identity closest to a probe embedding.
package matcher

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/gallery"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/vector"
)

// Match is the best identity for one probe
type Match struct {
	Key        string  `json:"key"`
	Similarity float64 `json:"similarity"`
}

// Best compares a unit probe with every entry and returns the most similar.
// Entries are expected in key order (as a gallery snapshot returns them);
// only a strictly higher similarity replaces the current best, so the
// lexicographically first key wins ties. An empty entry list is no match.
func Best(probe []float64, entries []gallery.Entry) (Match, bool, error) {
	best := Match{}
	found := false

	for _, e := range entries {
		sim, err := vector.Dot(probe, e.Vector)
		if err != nil {
			return Match{}, false, fmt.Errorf("compare with %s: %w", e.Key, err)
		}
		if !found || sim > best.Similarity {
			best = Match{Key: e.Key, Similarity: sim}
			found = true
		}
	}

	return best, found, nil
}
