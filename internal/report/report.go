// Package report writes and reads the plain text pairwise distance report,
// one "facetA facetB distance: <float>" line per ordered pair.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"facetree/internal/domain"
)

// ErrMalformedLine is returned by Parse in strict mode.
var ErrMalformedLine = errors.New("malformed report line")

// FormatLine renders one pair.
func FormatLine(p domain.PairDistance) string {
	return fmt.Sprintf("%s %s distance: %s", p.A, p.B, strconv.FormatFloat(p.Distance, 'g', -1, 64))
}

// Writer emits report lines as pairs are computed.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits one line and flushes so partial reports survive an abort.
func (w *Writer) Write(p domain.PairDistance) error {
	if _, err := w.w.WriteString(FormatLine(p) + "\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteAll emits every pair.
func (w *Writer) WriteAll(pairs []domain.PairDistance) error {
	for _, p := range pairs {
		if err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// Options configures Parse.
type Options struct {
	// Ignore drops every line that mentions one of these facets.
	Ignore []string
	// Strict fails on malformed lines instead of skipping them.
	Strict bool
}

// Parse reads report lines. Malformed lines are skipped and counted unless
// opts.Strict is set.
func Parse(r io.Reader, opts Options) ([]domain.PairDistance, domain.LoadStats, error) {
	var stats domain.LoadStats
	ignore := make(map[string]struct{}, len(opts.Ignore))
	for _, f := range opts.Ignore {
		ignore[f] = struct{}{}
	}
	var out []domain.PairDistance
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Lines++
		p, err := parseLine(line)
		if err != nil {
			if opts.Strict {
				return nil, stats, fmt.Errorf("line %d: %w", stats.Lines, err)
			}
			stats.Malformed++
			continue
		}
		_, skipA := ignore[p.A]
		_, skipB := ignore[p.B]
		if skipA || skipB {
			stats.Ignored++
			continue
		}
		out = append(out, p)
		stats.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// ParseFile opens path and reads it with Parse.
func ParseFile(path string, opts Options) ([]domain.PairDistance, domain.LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.LoadStats{}, fmt.Errorf("opening report: %w", err)
	}
	defer f.Close()
	return Parse(f, opts)
}

func parseLine(line string) (domain.PairDistance, error) {
	cols := strings.Fields(line)
	if len(cols) != 4 || cols[2] != "distance:" {
		return domain.PairDistance{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	d, err := strconv.ParseFloat(cols[3], 64)
	if err != nil {
		return domain.PairDistance{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	return domain.PairDistance{A: cols[0], B: cols[1], Distance: d}, nil
}
