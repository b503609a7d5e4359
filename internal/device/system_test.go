package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/bece/internal/store"
	"github.com/danmuck/bece/internal/testutil/testlog"
)

func versionServer(t *testing.T, version string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/IOT/firmware/lamp_version.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(version + "\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpdateAlreadyCurrent(t *testing.T) {
	testlog.Start(t)
	srv := versionServer(t, "1.2.0", http.StatusOK)
	logs := &lines{}
	restarted := false
	sys := NewHostSystem(HostSystemConfig{
		DeviceName:      "lamp",
		FirmwareVersion: "1.2.0",
		UpdateURL:       srv.URL + "/",
		Logs:            logs,
		OnRestart:       func() { restarted = true },
	})
	if err := sys.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := logs.all()
	if len(got) != 2 || got[0] != "Checking for updates" || got[1] != "Firmware is up-to-date" {
		t.Fatalf("update log: got=%v", got)
	}
	if restarted {
		t.Fatalf("restart must not run when current")
	}
}

func TestUpdateFlashesNewVersion(t *testing.T) {
	testlog.Start(t)
	srv := versionServer(t, "1.3.0", http.StatusOK)
	logs := &lines{}
	restarted := false
	var flashed string
	sys := NewHostSystem(HostSystemConfig{
		DeviceName:      "lamp",
		FirmwareVersion: "1.2.0",
		UpdateURL:       srv.URL,
		Logs:            logs,
		Flash: func(_ context.Context, url string) error {
			flashed = url
			return nil
		},
		OnRestart: func() { restarted = true },
	})
	if err := sys.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if flashed != srv.URL+"/IOT/firmware/lamp/firmware.txt" {
		t.Fatalf("image url: got=%q", flashed)
	}
	if !logs.has("New version available! Starting OTA") || !logs.has("Update successful. Rebooting") {
		t.Fatalf("update log: got=%v", logs.all())
	}
	if !restarted {
		t.Fatalf("restart did not run after update")
	}
}

func TestUpdateWithoutFlasherFails(t *testing.T) {
	testlog.Start(t)
	srv := versionServer(t, "2.0.0", http.StatusOK)
	logs := &lines{}
	sys := NewHostSystem(HostSystemConfig{DeviceName: "lamp", FirmwareVersion: "1.0.0", UpdateURL: srv.URL, Logs: logs})
	if err := sys.Update(context.Background()); !errors.Is(err, ErrFlashUnsupported) {
		t.Fatalf("update: got=%v want=%v", err, ErrFlashUnsupported)
	}
	if !logs.has("Update failed") {
		t.Fatalf("update log: got=%v", logs.all())
	}
}

func TestUpdateVersionCheckFailure(t *testing.T) {
	testlog.Start(t)
	srv := versionServer(t, "", http.StatusInternalServerError)
	logs := &lines{}
	sys := NewHostSystem(HostSystemConfig{DeviceName: "lamp", FirmwareVersion: "1.0.0", UpdateURL: srv.URL, Logs: logs})
	err := sys.Update(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("update: got=%v", err)
	}
	if !logs.has("Failed to check update version") {
		t.Fatalf("update log: got=%v", logs.all())
	}

	sys = NewHostSystem(HostSystemConfig{DeviceName: "lamp", Logs: logs})
	if err := sys.Update(context.Background()); err == nil {
		t.Fatalf("update without url must fail")
	}
}

func TestFactoryResetClearsStoreAndRestarts(t *testing.T) {
	testlog.Start(t)
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "creds.cbor"))
	if err := fs.Save(store.Credentials{SSID: "home", Password: "secret", ServerAddr: "10.0.0.2"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	restarted := false
	sys := NewHostSystem(HostSystemConfig{DeviceName: "lamp", Store: fs, OnRestart: func() { restarted = true }})
	if err := sys.FactoryReset(context.Background()); err != nil {
		t.Fatalf("factory reset: %v", err)
	}
	if _, err := fs.Load(); !errors.Is(err, store.ErrNotProvisioned) {
		t.Fatalf("load after reset: got=%v want=%v", err, store.ErrNotProvisioned)
	}
	if !restarted {
		t.Fatalf("restart did not run after reset")
	}
}
