package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed log line.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	LayerID   string         `json:"layer_id,omitempty"`
	PluginID  string         `json:"plugin_id,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseEntry parses one JSON line written by a Logger.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid log line: %w", err)
	}

	var e Entry
	str := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}
	if ts := str("time"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Time = t
		}
	}
	e.Level = str("level")
	e.Message = str("msg")
	e.Component = str("component")
	e.LayerID = str("layer_id")
	e.PluginID = str("plugin_id")
	if len(raw) > 0 {
		e.Attrs = raw
	}
	return e, nil
}

// LogPaths returns the log file in dir and its rotated backups, oldest
// first. Only files that exist are returned.
func LogPaths(dir string) []string {
	current := filepath.Join(dir, LogFileName)
	var backups []string
	for n := 1; ; n++ {
		p := backupPath(current, n)
		if exists(p) {
			backups = append(backups, p)
		} else if exists(p + ".gz") {
			backups = append(backups, p+".gz")
		} else {
			break
		}
	}

	paths := make([]string, 0, len(backups)+1)
	for i := len(backups) - 1; i >= 0; i-- {
		paths = append(paths, backups[i])
	}
	if exists(current) {
		paths = append(paths, current)
	}
	return paths
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadLogs parses every entry in dir, rotated backups included, sorted by
// time. Lines that are not JSON are skipped.
func ReadLogs(dir string) ([]Entry, error) {
	paths := LogPaths(dir)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no log file in %s: %w", dir, os.ErrNotExist)
	}

	var entries []Entry
	for _, p := range paths {
		if err := readFile(p, func(e Entry) { entries = append(entries, e) }); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

func readFile(path string, fn func(Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return ScanEntries(r, fn)
}

// ScanEntries calls fn for every parseable line of r.
func ScanEntries(r io.Reader, fn func(Entry)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if e, err := ParseEntry(line); err == nil {
			fn(e)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log: %w", err)
	}
	return nil
}

// Filter selects entries. Zero fields match everything; set fields are
// combined with AND.
type Filter struct {
	// Level is the minimum level.
	Level     string
	Since     time.Time
	Until     time.Time
	Component string
	LayerID   string
	PluginID  string
	// Pattern is matched against the message and attribute values.
	Pattern *regexp.Regexp
}

// Match reports whether e passes f.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" {
		floor, ok := levelRank[strings.ToUpper(f.Level)]
		rank, known := levelRank[strings.ToUpper(e.Level)]
		if ok && known && rank < floor {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Time.After(f.Until) {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.LayerID != "" && e.LayerID != f.LayerID {
		return false
	}
	if f.PluginID != "" && e.PluginID != f.PluginID {
		return false
	}
	if f.Pattern != nil && !f.Pattern.MatchString(e.searchText()) {
		return false
	}
	return true
}

func (e Entry) searchText() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, k := range e.attrKeys() {
		fmt.Fprintf(&sb, " %v", e.Attrs[k])
	}
	return sb.String()
}

func (e Entry) attrKeys() []string {
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FilterEntries returns the entries matching f.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Context renders the component, layer and plugin tags as key=value pairs.
func (e Entry) Context() string {
	var parts []string
	if e.Component != "" {
		parts = append(parts, "component="+e.Component)
	}
	if e.LayerID != "" {
		parts = append(parts, "layer="+e.LayerID)
	}
	if e.PluginID != "" {
		parts = append(parts, "plugin="+e.PluginID)
	}
	return strings.Join(parts, " ")
}

// AttrString renders the remaining attributes as sorted key=value pairs.
func (e Entry) AttrString() string {
	parts := make([]string, 0, len(e.Attrs))
	for _, k := range e.attrKeys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Attrs[k]))
	}
	return strings.Join(parts, " ")
}

// String formats e as a single line.
func (e Entry) String() string {
	parts := []string{"[" + e.Time.Format("2006-01-02 15:04:05.000") + "]", e.Level, e.Message}
	if c := e.Context(); c != "" {
		parts = append(parts, c)
	}
	if a := e.AttrString(); a != "" {
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Export formats
const (
	ExportJSON = "json"
	ExportText = "text"
	ExportCSV  = "csv"
)

// Export writes entries to w as "json", "text" or "csv".
func Export(w io.Writer, entries []Entry, format string) error {
	switch strings.ToLower(format) {
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case ExportText:
		for _, e := range entries {
			if _, err := fmt.Fprintln(w, e.String()); err != nil {
				return err
			}
		}
		return nil
	case ExportCSV:
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format %q (supported: json, text, csv)", format)
	}
}

func exportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "level", "message", "component", "layer_id", "plugin_id", "attrs"}); err != nil {
		return err
	}
	for _, e := range entries {
		attrs := ""
		if len(e.Attrs) > 0 {
			if b, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(b)
			}
		}
		if err := cw.Write([]string{
			e.Time.Format(time.RFC3339Nano), e.Level, e.Message,
			e.Component, e.LayerID, e.PluginID, attrs,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
