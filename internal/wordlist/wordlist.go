// Package wordlist reads one-token-per-line lists (facet names, target
// vocabularies) and applies the word normalization shared by every loader.
package wordlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeWord folds a token to the canonical form used as a table key.
// It is safe for concurrent use.
func NormalizeWord(word string) string {
	w := norm.NFC.String(strings.TrimSpace(word))
	return cases.Lower(language.Und).String(w)
}

// Options controls how a list is read.
type Options struct {
	// Normalize folds every token with NormalizeWord.
	Normalize bool
	// KeepDuplicates returns repeated tokens as often as they occur.
	KeepDuplicates bool
}

// Read returns the non-empty tokens of r in file order, one per line.
// Lines starting with '#' are comments. Only the first field of a line is used.
// Duplicates are dropped, keeping the first occurrence, unless
// opts.KeepDuplicates is set.
func Read(r io.Reader, opts Options) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	seen := make(map[string]struct{})
	var out []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tok := strings.Fields(line)[0]
		if opts.Normalize {
			tok = NormalizeWord(tok)
		}
		if !opts.KeepDuplicates {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
		}
		out = append(out, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string, opts Options) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening word list: %w", err)
	}
	defer f.Close()
	words, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return words, nil
}

// Without returns words minus every entry of exclude, preserving order.
func Without(words, exclude []string) []string {
	if len(exclude) == 0 {
		return words
	}
	drop := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		drop[e] = struct{}{}
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := drop[w]; ok {
			continue
		}
		out = append(out, w)
	}
	return out
}
