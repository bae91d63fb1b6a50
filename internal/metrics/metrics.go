package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// IngestMetrics collects statistics for one ingestion run.
type IngestMetrics struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms,omitempty"`
	Scope      string        `json:"scope"`
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Tokens     int           `json:"tokens"`
	Errors     []string      `json:"errors,omitempty"`
}

// New starts tracking an ingestion run.
func New(scope string) *IngestMetrics {
	return &IngestMetrics{StartedAt: time.Now(), Scope: scope}
}

// AddDocument records one ingested document.
func (m *IngestMetrics) AddDocument(chunks, tokens int) {
	m.Documents++
	m.Chunks += chunks
	m.Tokens += tokens
}

// AddError records a per-document failure.
func (m *IngestMetrics) AddError(err error) {
	m.Errors = append(m.Errors, err.Error())
}

// Finish marks the run as complete.
func (m *IngestMetrics) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.DurationMS = m.Duration.Milliseconds()
}

// PrintSummary writes a human-readable summary.
func (m *IngestMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\nIngestion complete\n")
	fmt.Fprintf(w, "  Scope:      %s\n", m.Scope)
	fmt.Fprintf(w, "  Duration:   %s\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Documents:  %d\n", m.Documents)
	fmt.Fprintf(w, "  Chunks:     %d\n", m.Chunks)
	fmt.Fprintf(w, "  Tokens:     %d\n", m.Tokens)
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "  Errors:     %d\n", len(m.Errors))
		for _, e := range m.Errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}
}

// WriteJSON writes the metrics as indented JSON.
func (m *IngestMetrics) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
