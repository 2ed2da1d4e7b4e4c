// Package filter hides inventory records from duplicate detection and
// analysis by glob pattern.
package filter

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"declutter-go/internal/declutter"
	"declutter-go/internal/model"
)

type pattern struct {
	provider  string // empty matches every provider
	glob      string
	matchPath bool // match the full path instead of the name
}

// Matcher excludes files whose name or path matches one of its patterns.
//
// Patterns without '/' match the file name. Patterns with '/' match the
// file's cloud path. A "provider:" prefix restricts a pattern to one
// provider, e.g. "dropbox:/Camera Uploads/*".
type Matcher struct {
	patterns []pattern
}

var _ declutter.Excluder = (*Matcher)(nil)

// New parses raw patterns. Blank lines and '#' comments are skipped.
// Malformed globs are an error.
func New(raw []string) (*Matcher, error) {
	m := &Matcher{}
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || strings.HasPrefix(r, "#") {
			continue
		}

		var p pattern
		if i := strings.Index(r, ":"); i > 0 && !strings.ContainsAny(r[:i], "/*?[") {
			p.provider, r = strings.ToLower(r[:i]), r[i+1:]
		}
		p.glob = r
		p.matchPath = strings.Contains(r, "/")
		if _, err := path.Match(p.glob, ""); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", r, err)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int { return len(m.patterns) }

// Excluded reports whether f is hidden by any pattern.
func (m *Matcher) Excluded(f *model.FileRecord) bool {
	for _, p := range m.patterns {
		if p.provider != "" && p.provider != strings.ToLower(f.Provider) {
			continue
		}
		target := f.Name
		if p.matchPath {
			target = f.Path
			if target == "" {
				continue
			}
		}
		if ok, _ := path.Match(p.glob, target); ok {
			return true
		}
	}
	return false
}

// ParseFile reads one pattern per line. A missing file yields no patterns.
func ParseFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return out, nil
}
