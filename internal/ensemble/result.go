package ensemble

import (
	"time"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

// Evidence is the face that earned an identity a layer's vote
type Evidence struct {
	Layer      string       `json:"layer"`
	Key        string       `json:"key"`
	Similarity float64      `json:"similarity"`
	Box        provider.Box `json:"box"`
}

// LayerReport describes what one layer did during a run
type LayerReport struct {
	Name         string        `json:"name"`
	Space        string        `json:"space"`
	Faces        int           `json:"faces"`
	Embedded     int           `json:"embedded"`
	Votes        []string      `json:"votes"`
	UsedFallback bool          `json:"used_fallback,omitempty"`
	Skipped      bool          `json:"skipped,omitempty"`
	TimedOut     bool          `json:"timed_out,omitempty"`
	Error        string        `json:"error,omitempty"`
	Latency      time.Duration `json:"latency_ns"`

	err error
}

// Failed reports whether the layer errored or timed out
func (r LayerReport) Failed() bool {
	return r.err != nil
}

// Result is the outcome of one recognition run
type Result struct {
	RunID    string                  `json:"run_id"`
	Record   domain.AttendanceRecord `json:"attendance"`
	Tally    VoteTally               `json:"votes"`
	Quorum   int                     `json:"quorum"`
	Layers   []LayerReport           `json:"layers"`
	Evidence []Evidence              `json:"evidence"`
	Duration time.Duration           `json:"duration_ns"`
}

// Highlights returns, for each Present identity, its highest-similarity
// evidence across layers
func (r *Result) Highlights() []Evidence {
	best := make(map[string]Evidence)
	for _, ev := range r.Evidence {
		if r.Record[ev.Key] != domain.StatusPresent {
			continue
		}
		if cur, ok := best[ev.Key]; !ok || ev.Similarity > cur.Similarity {
			best[ev.Key] = ev
		}
	}

	out := make([]Evidence, 0, len(best))
	for _, key := range r.Record.Present() {
		if ev, ok := best[key]; ok {
			out = append(out, ev)
		}
	}
	return out
}
