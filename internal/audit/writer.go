package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/applog"
	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
)

// Writer appends Entry records to an NDJSON file. Writes are guarded by
// an in-process mutex; the control plane is the log's sole writer, so
// no cross-process flock is taken.
type Writer struct {
	mu   sync.Mutex
	path string
	log  *applog.Logger
}

// NewWriter opens (creating if absent) the NDJSON file at path for
// appending.
func NewWriter(path string, log *applog.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, opserr.NewAuditError(err)
	}
	f.Close()
	return &Writer{path: path, log: log}, nil
}

// Record appends entry as one JSON line. A write failure is logged and
// returned, but the caller must never let it block or roll back the
// operation that produced the entry.
func (w *Writer) Record(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		w.logFailure(err)
		return opserr.NewAuditError(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		w.logFailure(err)
		return opserr.NewAuditError(err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		w.logFailure(err)
		return opserr.NewAuditError(err)
	}
	return nil
}

func (w *Writer) logFailure(err error) {
	if w.log != nil {
		w.log.Error(err, "audit append failed")
	}
}

// Query scans the log and returns a page of entries matching q.
// Entries are returned in on-disk (chronological) order.
func (w *Writer) Query(q Query) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nil
		}
		return Result{}, opserr.NewAuditError(err)
	}
	defer f.Close()

	var all []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		all = append(all, e)
	}

	totalAll := len(all)

	var filtered []Entry
	for _, e := range all {
		if q.Card != "" && e.Card != q.Card {
			continue
		}
		if q.Text != "" && !matchesText(e, q.Text) {
			continue
		}
		filtered = append(filtered, e)
	}
	totalFiltered := len(filtered)

	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = totalFiltered
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	page := filtered[offset:end]
	if page == nil {
		page = []Entry{}
	}

	return Result{
		Entries:       page,
		TotalAll:      totalAll,
		TotalFiltered: totalFiltered,
		HasMore:       end < totalFiltered,
	}, nil
}

func matchesText(e Entry, q string) bool {
	q = strings.ToLower(q)
	haystack := strings.ToLower(e.Actor + " " + e.Action + " " + e.Target + " " + e.Card + " " + e.Diff)
	return strings.Contains(haystack, q)
}
