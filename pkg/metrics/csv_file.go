// Package metrics records per-link frame counters as CSV lines in local
// files, one file per UTC day and direction. It is deliberately minimal:
// a line per event, no aggregation, suitable for simple setups and offline
// analysis.
package metrics

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tzrikka/xdg"
)

const (
	DefaultMetricsFileIn  = "link_in_%s.csv"
	DefaultMetricsFileOut = "link_out_%s.csv"

	fileFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
	filePerms = xdg.NewFilePermissions
)

// Recorder appends frame counters to CSV files under its directory. It is
// owned by the application and shared across supervisors; a nil *Recorder
// is valid and records nothing.
type Recorder struct {
	dir string

	muIn  sync.Mutex
	muOut sync.Mutex
}

// NewRecorder returns a [Recorder] writing under dir, creating it if
// needed. An empty dir means the current working directory.
func NewRecorder(dir string) (*Recorder, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	return &Recorder{dir: dir}, nil
}

// CountInboundFrame records the outcome ("received" or "failed") of one
// inbound frame on the given link.
func (r *Recorder) CountInboundFrame(l *slog.Logger, t time.Time, linkID, outcome string) {
	if r == nil {
		return
	}

	r.muIn.Lock()
	defer r.muIn.Unlock()

	record := []string{t.Format(time.RFC3339), linkID, outcome}
	if err := r.appendToCSVFile(DefaultMetricsFileIn, t, record); err != nil {
		l.Error("metrics error: failed to count inbound frame", slog.Any("error", err),
			slog.String("link_id", linkID), slog.String("outcome", outcome))
	}
}

// CountOutboundFrame records the outcome ("sent" or "failed") of one
// outbound frame on the given link.
func (r *Recorder) CountOutboundFrame(l *slog.Logger, t time.Time, linkID, outcome string) {
	if r == nil {
		return
	}

	r.muOut.Lock()
	defer r.muOut.Unlock()

	record := []string{t.Format(time.RFC3339), linkID, outcome}
	if err := r.appendToCSVFile(DefaultMetricsFileOut, t, record); err != nil {
		l.Error("metrics error: failed to count outbound frame", slog.Any("error", err),
			slog.String("link_id", linkID), slog.String("outcome", outcome))
	}
}

func (r *Recorder) appendToCSVFile(filename string, t time.Time, record []string) error {
	filename = filepath.Join(r.dir, fmt.Sprintf(filename, t.Format(time.DateOnly)))
	f, err := os.OpenFile(filename, fileFlags, filePerms) //gosec:disable G304 // Caller-owned directory.
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return nil
}
