package fields

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write rules: %v", err)
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	if _, err := NewWatcher(nil, WatcherConfig{Path: "x.yaml"}); err == nil {
		t.Error("NewWatcher() should fail with nil sanitizer")
	}
	if _, err := NewWatcher(NewSanitizer(DefaultRules(), nil), WatcherConfig{}); err == nil {
		t.Error("NewWatcher() should fail with empty path")
	}
}

func TestWatcher_StartLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "excluded: [note]\ndates: [startDate]\n")

	s := NewSanitizer(DefaultRules(), nil)
	w, err := NewWatcher(s, WatcherConfig{Path: path})
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !w.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}
	if got := s.Rules().Excluded; len(got) != 1 || got[0] != "note" {
		t.Errorf("Excluded = %v, want [note]", got)
	}
}

func TestWatcher_StartFailsOnMissingFile(t *testing.T) {
	s := NewSanitizer(DefaultRules(), nil)
	w, err := NewWatcher(s, WatcherConfig{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err == nil {
		t.Error("Start() should fail when the rules file is missing")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "excluded: [a]\n")

	reloaded := make(chan error, 10)
	s := NewSanitizer(DefaultRules(), nil)
	w, err := NewWatcher(s, WatcherConfig{
		Path:             path,
		DebounceInterval: 50 * time.Millisecond,
		OnReload:         func(_ Rules, err error) { reloaded <- err },
	})
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	<-reloaded

	writeRules(t, path, "excluded: [b, c]\n")
	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for reload")
	}
	if got := s.Rules().Excluded; len(got) != 2 {
		t.Errorf("Excluded = %v, want [b c]", got)
	}

	// A broken file keeps the previous table.
	writeRules(t, path, "excluded: [unterminated\n")
	select {
	case err := <-reloaded:
		if err == nil {
			t.Fatal("reload of malformed file should fail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for reload")
	}
	if got := s.Rules().Excluded; len(got) != 2 {
		t.Errorf("Excluded = %v, previous rules should be kept", got)
	}
}
