package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/bece/internal/testutil/testlog"
)

func TestFileStoreRoundTrip(t *testing.T) {
	testlog.Start(t)
	s := NewFileStore(filepath.Join(t.TempDir(), "creds", "node.cbor"))
	if _, err := s.Load(); !errors.Is(err, ErrNotProvisioned) {
		t.Fatalf("expected ErrNotProvisioned on empty store, got %v", err)
	}
	in := Credentials{SSID: "home", Password: "hunter2", ServerAddr: "192.168.1.10"}
	if err := s.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out != in {
		t.Fatalf("credentials: got=%+v want=%+v", out, in)
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if data[0] != marker {
		t.Fatalf("marker: got=%#x want=%#x", data[0], marker)
	}
}

func TestFileStoreVersionMismatchClears(t *testing.T) {
	testlog.Start(t)
	s := NewFileStore(filepath.Join(t.TempDir(), "node.cbor"))
	body, err := encMode.Marshal(record{Version: FormatVersion + 1, SSID: "x", ServerAddr: "y"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(s.Path(), append([]byte{marker}, body...), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNotProvisioned) {
		t.Fatalf("expected ErrNotProvisioned, got %v", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale store should be removed, stat err=%v", err)
	}
}

func TestFileStoreBadMarkerClears(t *testing.T) {
	testlog.Start(t)
	s := NewFileStore(filepath.Join(t.TempDir(), "node.cbor"))
	if err := os.WriteFile(s.Path(), []byte{0x00, 0x01}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNotProvisioned) {
		t.Fatalf("expected ErrNotProvisioned, got %v", err)
	}
}

func TestFileStoreClear(t *testing.T) {
	testlog.Start(t)
	s := NewFileStore(filepath.Join(t.TempDir(), "node.cbor"))
	if err := s.Clear(); err != nil {
		t.Fatalf("clear empty: %v", err)
	}
	if err := s.Save(Credentials{SSID: "a", ServerAddr: "b"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNotProvisioned) {
		t.Fatalf("expected ErrNotProvisioned after clear, got %v", err)
	}
}

func TestSaveRejectsIncompleteCredentials(t *testing.T) {
	testlog.Start(t)
	s := NewFileStore(filepath.Join(t.TempDir(), "node.cbor"))
	if err := s.Save(Credentials{SSID: "a"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
