package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/smazurov/cmdpanel/internal/commands"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type runResult struct {
	kind commands.ResultKind
	code *string
}

// fakeStore records log lines and results in memory.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	lines      []commands.LogLine
	results    map[int64][]runResult
	failLines  bool
	failResult bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{results: make(map[int64][]runResult)}
}

var errStoreDown = errors.New("store down")

func (s *fakeStore) CreateLogLine(_ context.Context, line *commands.LogLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLines {
		return errStoreDown
	}
	s.nextID++
	line.ID = s.nextID
	s.lines = append(s.lines, *line)
	return nil
}

func (s *fakeStore) SetLastRunResult(_ context.Context, id int64, kind commands.ResultKind, code *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failResult {
		return errStoreDown
	}
	s.results[id] = append(s.results[id], runResult{kind: kind, code: code})
	return nil
}

func (s *fakeStore) linesFor(id int64) []commands.LogLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []commands.LogLine
	for _, l := range s.lines {
		if l.CommandID == id {
			out = append(out, l)
		}
	}
	return out
}

func (s *fakeStore) textsFor(id int64, source commands.Source) []string {
	var out []string
	for _, l := range s.linesFor(id) {
		if l.Source == source {
			out = append(out, l.Text)
		}
	}
	return out
}

func (s *fakeStore) lastResult(id int64) (runResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.results[id]
	if len(rs) == 0 {
		return runResult{}, false
	}
	return rs[len(rs)-1], true
}

// statusRecorder captures the manager status seen at each command change.
type statusRecorder struct {
	mu       sync.Mutex
	mgr      *Manager
	statuses map[int64][]commands.RunStatus
	logs     map[int64]int
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{
		statuses: make(map[int64][]commands.RunStatus),
		logs:     make(map[int64]int),
	}
}

func (r *statusRecorder) CommandChanged(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mgr != nil {
		r.statuses[id] = append(r.statuses[id], r.mgr.Status(id))
	}
}

func (r *statusRecorder) CommandLogChanged(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[id]++
}

func (r *statusRecorder) seen(id int64) []commands.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]commands.RunStatus(nil), r.statuses[id]...)
}

func (r *statusRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.statuses {
		n += len(s)
	}
	for _, c := range r.logs {
		n += c
	}
	return n
}
