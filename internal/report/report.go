// Package report turns stored decisions into a flat CSV for review or outreach.
package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/profile"
)

// Row is the stable export schema.
type Row struct {
	URL       string
	Name      string
	Eligible  bool
	Reason    profile.Reason
	Message   string
	DecidedAt time.Time
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return []string{
		"url",
		"name",
		"eligible",
		"reason",
		"message",
		"processed_at",
	}
}

// Rows converts decisions in stored order. With eligibleOnly, only approved
// profiles are kept.
func Rows(decisions []profile.DecisionRecord, eligibleOnly bool) []Row {
	rows := make([]Row, 0, len(decisions))
	for _, d := range decisions {
		if eligibleOnly && !d.Eligible {
			continue
		}
		rows = append(rows, Row{
			URL:       d.URL,
			Name:      d.Name,
			Eligible:  d.Eligible,
			Reason:    d.Reason,
			Message:   d.Message,
			DecidedAt: d.DecidedAt,
		})
	}
	return rows
}

// WriteCSV writes rows with the Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		decidedAt := ""
		if !r.DecidedAt.IsZero() {
			decidedAt = r.DecidedAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{
			r.URL,
			r.Name,
			strconv.FormatBool(r.Eligible),
			string(r.Reason),
			r.Message,
			decidedAt,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
