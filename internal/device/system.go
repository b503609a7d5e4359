package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/bece/internal/store"
)

// System is the host side of the Restart, Update and Factory Reset
// built-ins.
type System interface {
	Restart(ctx context.Context) error
	FactoryReset(ctx context.Context) error
	Update(ctx context.Context) error
}

// Flasher installs a firmware image. Hosts that cannot flash leave it nil.
type Flasher func(ctx context.Context, imageURL string) error

var ErrFlashUnsupported = errors.New("device: firmware flashing unsupported on this host")

// HostSystemConfig wires a HostSystem.
type HostSystemConfig struct {
	DeviceName      string
	FirmwareVersion string
	// UpdateURL is the base URL serving /IOT/firmware/<name>_version.txt.
	UpdateURL string
	Store     store.Store
	Logs      LogSink
	Client    *http.Client
	Flash     Flasher
	// OnRestart stops the run loop; the supervising process restarts it.
	OnRestart func()
}

// HostSystem implements System for a node running as a host process.
type HostSystem struct {
	cfg HostSystemConfig
}

func NewHostSystem(cfg HostSystemConfig) *HostSystem {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logs == nil {
		cfg.Logs = LogFunc(func(string) {})
	}
	cfg.UpdateURL = strings.TrimRight(cfg.UpdateURL, "/")
	return &HostSystem{cfg: cfg}
}

func (s *HostSystem) Restart(context.Context) error {
	if s.cfg.OnRestart != nil {
		s.cfg.OnRestart()
	}
	return nil
}

// FactoryReset wipes stored credentials, then restarts.
func (s *HostSystem) FactoryReset(ctx context.Context) error {
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Clear(); err != nil {
			return fmt.Errorf("factory reset: %w", err)
		}
	}
	return s.Restart(ctx)
}

func (s *HostSystem) VersionURL() string {
	return fmt.Sprintf("%s/IOT/firmware/%s_version.txt", s.cfg.UpdateURL, s.cfg.DeviceName)
}

func (s *HostSystem) ImageURL() string {
	return fmt.Sprintf("%s/IOT/firmware/%s/firmware.txt", s.cfg.UpdateURL, s.cfg.DeviceName)
}

// Update compares the published version with the running one and, when
// they differ, hands the image URL to the flasher. Progress is reported
// through the log sink.
func (s *HostSystem) Update(ctx context.Context) error {
	s.cfg.Logs.Log("Checking for updates")
	if s.cfg.UpdateURL == "" {
		s.cfg.Logs.Log("Failed to check update version")
		return fmt.Errorf("update: no update url configured")
	}
	latest, err := s.fetchVersion(ctx)
	if err != nil {
		s.cfg.Logs.Log("Failed to check update version")
		return err
	}
	if latest == s.cfg.FirmwareVersion {
		s.cfg.Logs.Log("Firmware is up-to-date")
		return nil
	}
	s.cfg.Logs.Log("New version available! Starting OTA")
	flash := s.cfg.Flash
	if flash == nil {
		flash = func(context.Context, string) error { return ErrFlashUnsupported }
	}
	if err := flash(ctx, s.ImageURL()); err != nil {
		s.cfg.Logs.Log("Update failed")
		s.cfg.Logs.Log(err.Error())
		return err
	}
	s.cfg.Logs.Log("Update successful. Rebooting")
	return s.Restart(ctx)
}

func (s *HostSystem) fetchVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.VersionURL(), nil)
	if err != nil {
		return "", fmt.Errorf("update: build request: %w", err)
	}
	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("update: fetch version: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("update: fetch version: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("update: read version: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}
