package sqlstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get("tuner.state"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	want := []byte{1, 0x7b, 0x7d}
	if err := s.Put("tuner.state", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get("tuner.state")
	if err != nil || !ok {
		t.Fatalf("get after put: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStore_PutOverwritesLastWriteWins(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Put("bandit.state", []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("bandit.state", []byte("new")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get("bandit.state")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != "new" {
		t.Fatalf("expected last write to win, got %q", got)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "govcore.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put("scheduler.state", []byte("persisted")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok, err := reopened.Get("scheduler.state")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != "persisted" {
		t.Fatalf("expected value to survive reopen, got %q", got)
	}
}
