package corpus

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// vcsDirectories are metadata directories that are always pruned during the
// walk, independent of anything found in .gitignore. This mirrors the
// teacher's own DefaultVCSIgnores convention.
var vcsDirectories = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
	".bzr": true,
}

// ignoreMatcher loads the full gitignore.Matcher that applies to a walk of
// root: every .gitignore found anywhere under root, plus the user's global
// git excludes file and the system-wide git excludes file. Any individual
// source that fails to load is skipped rather than treated as fatal — a
// corpus should still build even if, say, the user has no global gitconfig.
func ignoreMatcher(root string) gitignore.Matcher {
	var patterns []gitignore.Pattern

	if repoFS := osfs.New(root); repoFS != nil {
		if repoPatterns, err := gitignore.ReadPatterns(repoFS, nil); err == nil {
			patterns = append(patterns, repoPatterns...)
		}
	}

	if homeFS := osfs.New("/"); homeFS != nil {
		if globalPatterns, err := gitignore.LoadGlobalPatterns(homeFS); err == nil {
			patterns = append(patterns, globalPatterns...)
		}
		if systemPatterns, err := gitignore.LoadSystemPatterns(homeFS); err == nil {
			patterns = append(patterns, systemPatterns...)
		}
	}

	return gitignore.NewMatcher(patterns)
}

// walkFunc is invoked once for every regular file that survives VCS pruning
// and gitignore matching. It is handed the file's absolute path and its
// fs.DirEntry.
type walkFunc func(path string, entry fs.DirEntry) error

// walk performs a gitignore-aware, hidden-file-inclusive recursive walk of
// root, invoking fn for every regular file not excluded by a .gitignore,
// global git exclude, or system git exclude rule, and always pruning VCS
// metadata directories.
func walk(root string, fn walkFunc) error {
	matcher := ignoreMatcher(root)

	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}

		name := entry.Name()
		if entry.IsDir() && vcsDirectories[name] {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")

		if matcher.Match(segments, entry.IsDir()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		return fn(path, entry)
	})
}

// statRegular re-stats path and reports its size, failing if the path no
// longer names a regular file by the time it is examined.
func statRegular(path string) (size int64, ok bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}
