// Package search implements the parallel regex search engine: given a
// pattern and a snapshot of a corpus cache's mapped files, it compiles the
// pattern, fans
// out across all of them concurrently, aggregates line-level hits, and
// applies a global result ceiling.
package search

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/curserve/memsearchd/pkg/corpus"
)

// DefaultCeiling is the result ceiling applied when a request does not
// specify one.
const DefaultCeiling = 1000

// maxLineLength bounds the longest single line bufio.Scanner will buffer
// before giving up on a file; pathological single-line files (minified
// assets, for instance) are scanned up to this length and then abandoned.
const maxLineLength = 10 * 1024 * 1024

// Request describes a single search query against a corpus cache.
type Request struct {
	// Pattern is the regular expression to search for.
	Pattern string
	// CaseSensitive controls whether the match is case-sensitive.
	CaseSensitive bool
	// Ceiling is the maximum number of matches to return. Zero means
	// DefaultCeiling.
	Ceiling int
}

// Match is a single (path, line, content) hit.
type Match struct {
	// Path is the match's file path, relative to the corpus root.
	Path string
	// Line is the 1-based line number within the file.
	Line int
	// Text is the matching line's content, with any trailing newline bytes
	// already stripped.
	Text string
}

// Result is the aggregate outcome of a search.
type Result struct {
	// Matches is the (possibly truncated) list of matches.
	Matches []Match
	// TotalMatches is the sum of per-file match counts after each file's own
	// ceiling-driven early stop, but before global truncation. It is an
	// approximation of the true global count, not an exact one, by design.
	TotalMatches int
	// FilesSearched is the number of files the search fanned out across.
	FilesSearched int
	// Elapsed is the wall-clock duration of the search.
	Elapsed time.Duration
}

// Run compiles pattern and searches every file in files in parallel,
// returning aggregated results relative to root. Compilation failure of the
// pattern is the sole error this function returns.
func Run(root string, files []corpus.File, req Request) (*Result, error) {
	start := time.Now()

	pattern := req.Pattern
	if !req.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "invalid regex pattern")
	}

	ceiling := req.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}

	buffers := fanOut(root, files, re, ceiling)

	var all []Match
	for _, buffer := range buffers {
		all = append(all, buffer...)
	}
	total := len(all)
	if total > ceiling {
		all = all[:ceiling]
	}

	return &Result{
		Matches:       all,
		TotalMatches:  total,
		FilesSearched: len(files),
		Elapsed:       time.Since(start),
	}, nil
}

// fanOut runs scanFile across files using a small pool of goroutines that
// each pull the next unclaimed file off a shared index, approximating a
// work-stealing pool without pulling in a dedicated scheduler dependency.
// The caller blocks until every per-file scan has completed.
func fanOut(root string, files []corpus.File, re *regexp.Regexp, ceiling int) [][]Match {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		return nil
	}

	var (
		next    int64 = -1
		mu      sync.Mutex
		buffers [][]Match
		group   errgroup.Group
	)

	for w := 0; w < workers; w++ {
		group.Go(func() error {
			for {
				i := atomic.AddInt64(&next, 1)
				if int(i) >= len(files) {
					return nil
				}
				local := scanFile(root, files[i], re, ceiling)
				if len(local) > 0 {
					mu.Lock()
					buffers = append(buffers, local)
					mu.Unlock()
				}
			}
		})
	}
	group.Wait()

	return buffers
}

// scanFile runs a line-oriented scan of a single file's mapped bytes,
// honoring the per-file ceiling as an early stop.
func scanFile(root string, f corpus.File, re *regexp.Regexp, ceiling int) []Match {
	relPath, err := filepath.Rel(root, f.Path)
	if err != nil {
		relPath = f.Path
	}

	var local []Match
	scanner := bufio.NewScanner(bytes.NewReader(f.Data))
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if re.MatchString(line) {
			local = append(local, Match{Path: relPath, Line: lineNumber, Text: line})
			if len(local) >= ceiling {
				break
			}
		}
	}

	return local
}
