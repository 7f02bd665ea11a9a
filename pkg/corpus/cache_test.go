package corpus

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildAdmitsOnlyEligibleFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, "image.png"), "not a real png")
	writeFile(t, filepath.Join(root, "empty.txt"), "")

	cache, err := Build(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if got := cache.Count(); got != 1 {
		t.Fatalf("expected 1 cached file, got %d", got)
	}
}

func TestBuildRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "ignored.txt\n")
	writeFile(t, filepath.Join(root, "ignored.txt"), "should not be cached\n")
	writeFile(t, filepath.Join(root, "kept.txt"), "should be cached\n")

	cache, err := Build(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if got := cache.Count(); got != 2 {
		// .gitignore itself is admitted too (no extension rule excludes it).
		t.Fatalf("expected 2 cached files (.gitignore + kept.txt), got %d", got)
	}

	for _, f := range cache.Entries() {
		if filepath.Base(f.Path) == "ignored.txt" {
			t.Error("ignored.txt should not have been cached")
		}
	}
}

func TestBuildPrunesVCSDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")

	cache, err := Build(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if got := cache.Count(); got != 1 {
		t.Fatalf("expected 1 cached file, got %d", got)
	}
}

func TestReplaceCollapsesCanonicalAlias(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "hello\n")

	cache, err := Build(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	before := cache.Count()

	if err := os.WriteFile(path, []byte("hello\nworld\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := cache.Replace(path); err != nil {
		t.Fatal(err)
	}

	if got := cache.Count(); got != before {
		t.Fatalf("count changed across replace of an existing file: before=%d after=%d", before, got)
	}

	for _, f := range cache.Entries() {
		if f.Path == path {
			if string(f.Data) != "hello\nworld\n" {
				t.Errorf("replaced content mismatch: %q", f.Data)
			}
		}
	}
}

func TestReplaceRejectsNewlyOversizedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "hello\n")

	cache, err := Build(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	before := cache.Count()

	big := make([]byte, 51*1024*1024)
	if err := os.WriteFile(path, big, 0644); err != nil {
		t.Fatal(err)
	}
	if err := cache.Replace(path); err != nil {
		t.Fatal(err)
	}

	if got := cache.Count(); got != before-1 {
		t.Fatalf("expected count to drop by one, before=%d after=%d", before, got)
	}
}

func TestReplaceOnMissingFileIsANoop(t *testing.T) {
	root := t.TempDir()
	cache, err := Build(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if err := cache.Replace(filepath.Join(root, "does-not-exist.txt")); err != nil {
		t.Fatal(err)
	}
	if got := cache.Count(); got != 0 {
		t.Fatalf("expected empty cache, got %d", got)
	}
}

func TestRemoveDropsFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "b.txt")
	writeFile(t, path, "HELLO\n")

	cache, err := Build(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := cache.Remove(path); err != nil {
		t.Fatal(err)
	}

	if got := cache.Count(); got != 0 {
		t.Fatalf("expected 0 files after remove, got %d", got)
	}
}

func TestNoDuplicateCanonicalEntries(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "hello\n")

	cache, err := Build(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	seen := make(map[string]bool)
	for _, f := range cache.Entries() {
		c := canonicalize(f.Path)
		if seen[c] {
			t.Fatalf("duplicate canonical entry for %s", c)
		}
		seen[c] = true
	}
}
