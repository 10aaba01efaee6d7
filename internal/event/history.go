package event

import (
	"fmt"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/gobwas/glob"
)

// maxSummaryLen bounds the payload summary kept per history entry.
const maxSummaryLen = 160

// HistoryEntry records one dispatch while the bus is in debug mode.
type HistoryEntry struct {
	Type         string
	Summary      string
	HandlerCount int
	Errors       []string
	Time         time.Time
}

// HistoryFilter selects history entries. Zero values match everything.
type HistoryFilter struct {
	// Pattern is a glob over event types, e.g. "layer.*".
	Pattern string
	// Since drops entries older than this time.
	Since time.Time
	// ErrorsOnly keeps entries where at least one handler failed.
	ErrorsOnly bool
	// Limit keeps only the most recent N matches when > 0.
	Limit int
}

// ring is a fixed-capacity FIFO of history entries.
type ring struct {
	entries []HistoryEntry
	next    int
	full    bool
}

func newRing(size int) *ring {
	return &ring{entries: make([]HistoryEntry, size)}
}

func (r *ring) push(e HistoryEntry) {
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// ordered returns entries oldest first.
func (r *ring) ordered() []HistoryEntry {
	if !r.full {
		out := make([]HistoryEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]HistoryEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// DebugEnabled reports whether dispatch history is being recorded.
func (b *Bus) DebugEnabled() bool {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	return b.history != nil
}

// SetDebug turns history recording on with the given capacity, or off when
// size <= 0. Turning it on again discards previous entries.
func (b *Bus) SetDebug(size int) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	if size <= 0 {
		b.history = nil
		return
	}
	b.history = newRing(size)
}

// History returns recorded dispatches matching filter, oldest first.
func (b *Bus) History(filter HistoryFilter) ([]HistoryEntry, error) {
	var g glob.Glob
	if filter.Pattern != "" {
		var err error
		if g, err = glob.Compile(filter.Pattern, '.'); err != nil {
			return nil, fmt.Errorf("invalid history pattern %q: %w", filter.Pattern, err)
		}
	}

	b.histMu.Lock()
	var all []HistoryEntry
	if b.history != nil {
		all = b.history.ordered()
	}
	b.histMu.Unlock()

	out := make([]HistoryEntry, 0, len(all))
	for _, e := range all {
		if g != nil && !g.Match(e.Type) {
			continue
		}
		if !filter.Since.IsZero() && e.Time.Before(filter.Since) {
			continue
		}
		if filter.ErrorsOnly && len(e.Errors) == 0 {
			continue
		}
		out = append(out, e)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// ClearHistory drops recorded entries but keeps debug mode on.
func (b *Bus) ClearHistory() {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	if b.history != nil {
		b.history = newRing(len(b.history.entries))
	}
}

func summarize(e Event) string {
	return ansi.Truncate(fmt.Sprintf("%+v", e), maxSummaryLen, "...")
}
