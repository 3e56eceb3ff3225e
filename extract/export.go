package extract

import (
	"encoding/json"
	"io"
	"time"

	"github.com/hirewire/scout/errors"
)

// ResultsDocument is the export shape for a run's accumulated results.
// Produced for any run, terminal or not, so partial results are always
// reachable. Keys are snake_case like the rest of the HTTP surface and
// the stored rows; consumers expecting camelCase must map on their side.
type ResultsDocument struct {
	RunID       string        `json:"run_id"`
	JobID       string        `json:"job_id"`
	Phase       Phase         `json:"phase"`
	GeneratedAt time.Time     `json:"generated_at"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	TotalItems  int           `json:"total_items"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Items       []ItemResult  `json:"items"`
	Errors      []ErrorRecord `json:"errors"`
}

// BuildResults assembles the export document from a snapshot.
func BuildResults(snap Snapshot) ResultsDocument {
	succeeded := successCount(snap.ProcessedItems)
	return ResultsDocument{
		RunID:       snap.ID,
		JobID:       snap.Target.JobID,
		Phase:       snap.Phase,
		GeneratedAt: time.Now().UTC(),
		StartTime:   snap.StartTime,
		EndTime:     snap.EndTime,
		TotalItems:  snap.TotalItems,
		Succeeded:   succeeded,
		Failed:      len(snap.ProcessedItems) - succeeded,
		Items:       snap.ProcessedItems,
		Errors:      snap.Errors,
	}
}

// WriteResults serializes the snapshot's results as indented JSON.
func WriteResults(w io.Writer, snap Snapshot) error {
	doc := BuildResults(snap)
	if doc.Items == nil {
		doc.Items = []ItemResult{}
	}
	if doc.Errors == nil {
		doc.Errors = []ErrorRecord{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "failed to encode results")
	}
	return nil
}
