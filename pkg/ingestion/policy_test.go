package ingestion

import "testing"

func TestAdmitRejectsEmptyFile(t *testing.T) {
	if Admit("main.go", 0) {
		t.Error("empty file should not be admitted")
	}
}

func TestAdmitRejectsOversizedFile(t *testing.T) {
	if Admit("main.go", MaximumFileSize+1) {
		t.Error("oversized file should not be admitted")
	}
}

func TestAdmitAcceptsMaximumSize(t *testing.T) {
	if !Admit("main.go", MaximumFileSize) {
		t.Error("file at exactly the maximum size should be admitted")
	}
}

func TestAdmitRejectsBinaryExtensions(t *testing.T) {
	for _, ext := range []string{"png", "jpg", "jpeg", "gif", "pdf", "zip", "tar", "gz", "so", "dylib", "dll", "exe", "bin", "o", "a"} {
		path := "artifact." + ext
		if Admit(path, 1024) {
			t.Errorf("%s should not be admitted", path)
		}
	}
}

func TestAdmitExtensionMatchIsCaseInsensitive(t *testing.T) {
	if Admit("archive.A", 1024) {
		t.Error("uppercase extension A should not be admitted")
	}
	if Admit("IMAGE.PNG", 1024) {
		t.Error("uppercase extension PNG should not be admitted")
	}
}

func TestAdmitAcceptsOrdinarySourceFiles(t *testing.T) {
	for _, path := range []string{"main.go", "lib.rs", "README.md", "Makefile", "dir/nested.py"} {
		if !Admit(path, 1024) {
			t.Errorf("%s should be admitted", path)
		}
	}
}

func TestAdmitHandlesDotfilesWithoutExtension(t *testing.T) {
	if !Admit(".gitignore", 64) {
		t.Error(".gitignore should be admitted (no extension, just a leading dot)")
	}
}
