// Package store persists the node's provisioning credentials.
//
// The file is one marker byte followed by a CBOR record. A missing file, a
// wrong marker or a record from another format version all read as not
// provisioned; the latter two also clear the file, like a node wiping
// stale settings on boot.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
)

const (
	marker byte = 0x42
	// FormatVersion changes whenever the record layout does.
	FormatVersion uint8 = 1
)

var (
	ErrNotProvisioned     = errors.New("store: not provisioned")
	ErrInvalidCredentials = errors.New("store: invalid credentials")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Credentials is what a node needs to reach its controller.
type Credentials struct {
	SSID       string
	Password   string
	ServerAddr string
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.SSID) == "" {
		return fmt.Errorf("%w: ssid is required", ErrInvalidCredentials)
	}
	if strings.TrimSpace(c.ServerAddr) == "" {
		return fmt.Errorf("%w: server address is required", ErrInvalidCredentials)
	}
	return nil
}

// Store loads and saves credentials.
type Store interface {
	Load() (Credentials, error)
	Save(Credentials) error
	Clear() error
}

type record struct {
	Version    uint8  `cbor:"1,keyasint"`
	SSID       string `cbor:"2,keyasint"`
	Password   string `cbor:"3,keyasint"`
	ServerAddr string `cbor:"4,keyasint"`
}

// FileStore keeps credentials in a single file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, ErrNotProvisioned
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	if len(data) == 0 || data[0] != marker {
		return Credentials{}, s.wipe("missing marker")
	}
	var rec record
	if err := cbor.Unmarshal(data[1:], &rec); err != nil {
		return Credentials{}, s.wipe("undecodable record")
	}
	if rec.Version != FormatVersion {
		log.Warn().Uint8("got", rec.Version).Uint8("want", FormatVersion).Msg("store.FileStore.Load version mismatch")
		return Credentials{}, s.wipe("version mismatch")
	}
	creds := Credentials{SSID: rec.SSID, Password: rec.Password, ServerAddr: rec.ServerAddr}
	if err := creds.Validate(); err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrNotProvisioned, err)
	}
	return creds, nil
}

func (s *FileStore) Save(c Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}
	body, err := encMode.Marshal(record{
		Version:    FormatVersion,
		SSID:       c.SSID,
		Password:   c.Password,
		ServerAddr: c.ServerAddr,
	})
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	data := append([]byte{marker}, body...)
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	log.Info().Str("path", s.path).Str("ssid", c.SSID).Str("server", c.ServerAddr).Msg("store.FileStore.Save ok")
	return nil
}

// Clear removes stored credentials. Clearing an empty store is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: clear: %w", err)
	}
	log.Info().Str("path", s.path).Msg("store.FileStore.Clear ok")
	return nil
}

func (s *FileStore) wipe(reason string) error {
	log.Warn().Str("path", s.path).Str("reason", reason).Msg("store.FileStore clearing unusable credentials")
	if err := s.Clear(); err != nil {
		return err
	}
	return ErrNotProvisioned
}
