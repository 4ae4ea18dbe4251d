package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Export is the document written by ExportJSON.
type Export struct {
	ExportedAt     string  `json:"exportedAt"`
	URL            string  `json:"url"`
	Hostname       string  `json:"hostname"`
	SessionID      string  `json:"sessionId"`
	TotalErrors    int     `json:"totalErrors"`
	MaxHistorySize int     `json:"maxHistorySize"`
	Errors         []Entry `json:"errors"`
}

// CSVHeader is the column row that follows the metadata rows in ExportCSV.
var CSVHeader = []string{"id", "timestamp", "type", "message", "file", "line", "column", "url", "stack", "count"}

// Snapshot captures the current entries and metadata in one consistent read.
func (l *Log) Snapshot() Export {
	l.mu.RLock()
	entries := l.ring.all()
	capacity := l.ring.capacity
	l.mu.RUnlock()

	if entries == nil {
		entries = []Entry{}
	}
	return Export{
		ExportedAt:     l.clock.Now().UTC().Format(time.RFC3339Nano),
		URL:            l.page.URL,
		Hostname:       l.page.Host,
		SessionID:      l.page.SessionID,
		TotalErrors:    len(entries),
		MaxHistorySize: capacity,
		Errors:         entries,
	}
}

// ExportJSON writes the full log plus metadata as indented JSON.
func (l *Log) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l.Snapshot()); err != nil {
		return fmt.Errorf("export json: %w", err)
	}
	return nil
}

// ExportCSV writes metadata as two-column key,value rows, then CSVHeader and
// one row per entry. Quoting follows RFC 4180.
func (l *Log) ExportCSV(w io.Writer) error {
	snap := l.Snapshot()
	cw := csv.NewWriter(w)

	meta := [][]string{
		{"exportedAt", snap.ExportedAt},
		{"url", snap.URL},
		{"hostname", snap.Hostname},
		{"sessionId", snap.SessionID},
		{"totalErrors", strconv.Itoa(snap.TotalErrors)},
		{"maxHistorySize", strconv.Itoa(snap.MaxHistorySize)},
	}
	for _, row := range meta {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV metadata: %w", err)
		}
	}
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, e := range snap.Errors {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339Nano),
			string(e.Type),
			e.Message,
			e.File,
			strconv.Itoa(e.Line),
			strconv.Itoa(e.Column),
			e.URL,
			e.Stack,
			strconv.Itoa(e.Count),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
