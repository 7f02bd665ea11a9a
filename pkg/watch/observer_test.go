package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForEvent(t *testing.T, o *Observer, timeout time.Duration) Event {
	t.Helper()
	select {
	case e := <-o.Events():
		return e
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func drainNoEvent(t *testing.T, o *Observer, timeout time.Duration) {
	t.Helper()
	select {
	case e := <-o.Events():
		t.Fatalf("expected no event, got %+v", e)
	case <-time.After(timeout):
	}
}

func TestWatchEmitsFileChangedOnCreate(t *testing.T) {
	root := t.TempDir()

	o, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	o.Watch("tenant-a", root)
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(root, "new.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	event := waitForEvent(t, o, 2*time.Second)
	if event.Tenant != "tenant-a" {
		t.Fatalf("expected tenant-a, got %s", event.Tenant)
	}
	if event.Deleted {
		t.Fatal("expected a non-delete event for file creation")
	}
}

func TestWatchEmitsFileDeletedOnRemove(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	o, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	o.Watch("tenant-a", root)
	time.Sleep(50 * time.Millisecond)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	event := waitForEvent(t, o, 2*time.Second)
	if !event.Deleted {
		t.Fatal("expected a delete event for file removal")
	}
}

func TestUnwatchStopsFurtherEvents(t *testing.T) {
	root := t.TempDir()

	o, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	o.Watch("tenant-a", root)
	time.Sleep(50 * time.Millisecond)
	o.Unwatch("tenant-a")
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(root, "after-unwatch.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	drainNoEvent(t, o, 500*time.Millisecond)
}

func TestWatchRegistersNewSubdirectories(t *testing.T) {
	root := t.TempDir()

	o, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	o.Watch("tenant-a", root)
	time.Sleep(50 * time.Millisecond)

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "nested.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	event := waitForEvent(t, o, 2*time.Second)
	if event.Tenant != "tenant-a" {
		t.Fatalf("expected tenant-a for nested file, got %s", event.Tenant)
	}
}
