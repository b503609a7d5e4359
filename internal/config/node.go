package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/bece/internal/logging"
)

var ErrInvalidConfig = errors.New("config: invalid node config")

// minArenaSize fits a header, a checksum and a few small arguments.
const minArenaSize = 64

// NodeConfig is the runtime configuration of one node.
type NodeConfig struct {
	DeviceName            string
	DeviceID              string
	FirmwareVersion       string
	ServerPortTCP         uint16
	ServerPortUDP         uint16
	UseUDP                bool
	ArenaSize             int
	MaxRegisteredCommands int
	MaxLoopFunctions      int
	TCPConnectionAttempts int
	ConnectTimeout        time.Duration
	ReadTimeout           time.Duration
	PollInterval          time.Duration
	CredentialsPath       string
	AdminAddr             string
	UpdateURL             string
	CompatSkipUnknownTags bool
	LogLevel              string
}

// DefaultNodeConfig mirrors the constants compiled into deployed nodes.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		DeviceName:            "bece",
		DeviceID:              "0000",
		FirmwareVersion:       "1.0.0",
		ServerPortTCP:         15000,
		ServerPortUDP:         15001,
		ArenaSize:             1024,
		MaxRegisteredCommands: 10,
		MaxLoopFunctions:      10,
		TCPConnectionAttempts: 5,
		ConnectTimeout:        5 * time.Second,
		ReadTimeout:           2 * time.Second,
		PollInterval:          10 * time.Millisecond,
		CredentialsPath:       "bece-credentials.cbor",
		LogLevel:              "info",
	}
}

// Identity is the "<name>_<id>" string the node reports as its name.
func (c NodeConfig) Identity() string {
	return c.DeviceName + "_" + c.DeviceID
}

type fileConfig struct {
	DeviceName            string `toml:"device_name"`
	DeviceID              string `toml:"device_id"`
	FirmwareVersion       string `toml:"firmware_version"`
	ServerPortTCP         int    `toml:"server_port_tcp"`
	ServerPortUDP         int    `toml:"server_port_udp"`
	UseUDP                bool   `toml:"use_udp"`
	ArenaSize             int    `toml:"arena_size"`
	MaxRegisteredCommands int    `toml:"max_registered_commands"`
	MaxLoopFunctions      int    `toml:"max_loop_functions"`
	TCPConnectionAttempts int    `toml:"tcp_connection_attempts"`
	ConnectTimeout        string `toml:"connect_timeout"`
	ReadTimeout           string `toml:"read_timeout"`
	PollInterval          string `toml:"poll_interval"`
	CredentialsPath       string `toml:"credentials_path"`
	AdminAddr             string `toml:"admin_addr"`
	UpdateURL             string `toml:"update_url"`
	CompatSkipUnknownTags bool   `toml:"compat_skip_unknown_tags"`
	LogLevel              string `toml:"log_level"`
}

// LoadNodeConfig overlays the keys present in path onto DefaultNodeConfig
// and validates the result.
func LoadNodeConfig(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("load node config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return NodeConfig{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("device_name") {
		cfg.DeviceName = strings.TrimSpace(raw.DeviceName)
	}
	if meta.IsDefined("device_id") {
		cfg.DeviceID = strings.TrimSpace(raw.DeviceID)
	}
	if meta.IsDefined("firmware_version") {
		cfg.FirmwareVersion = strings.TrimSpace(raw.FirmwareVersion)
	}
	if meta.IsDefined("server_port_tcp") {
		if cfg.ServerPortTCP, err = port("server_port_tcp", raw.ServerPortTCP); err != nil {
			return NodeConfig{}, err
		}
	}
	if meta.IsDefined("server_port_udp") {
		if cfg.ServerPortUDP, err = port("server_port_udp", raw.ServerPortUDP); err != nil {
			return NodeConfig{}, err
		}
	}
	if meta.IsDefined("use_udp") {
		cfg.UseUDP = raw.UseUDP
	}
	if meta.IsDefined("arena_size") {
		cfg.ArenaSize = raw.ArenaSize
	}
	if meta.IsDefined("max_registered_commands") {
		cfg.MaxRegisteredCommands = raw.MaxRegisteredCommands
	}
	if meta.IsDefined("max_loop_functions") {
		cfg.MaxLoopFunctions = raw.MaxLoopFunctions
	}
	if meta.IsDefined("tcp_connection_attempts") {
		cfg.TCPConnectionAttempts = raw.TCPConnectionAttempts
	}
	if meta.IsDefined("connect_timeout") {
		if cfg.ConnectTimeout, err = duration("connect_timeout", raw.ConnectTimeout); err != nil {
			return NodeConfig{}, err
		}
	}
	if meta.IsDefined("read_timeout") {
		if cfg.ReadTimeout, err = duration("read_timeout", raw.ReadTimeout); err != nil {
			return NodeConfig{}, err
		}
	}
	if meta.IsDefined("poll_interval") {
		if cfg.PollInterval, err = duration("poll_interval", raw.PollInterval); err != nil {
			return NodeConfig{}, err
		}
	}
	if meta.IsDefined("credentials_path") {
		cfg.CredentialsPath = strings.TrimSpace(raw.CredentialsPath)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("update_url") {
		cfg.UpdateURL = strings.TrimRight(strings.TrimSpace(raw.UpdateURL), "/")
	}
	if meta.IsDefined("compat_skip_unknown_tags") {
		cfg.CompatSkipUnknownTags = raw.CompatSkipUnknownTags
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if cfg.DeviceName == "" {
		return fmt.Errorf("%w: device_name is required", ErrInvalidConfig)
	}
	if cfg.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidConfig)
	}
	if cfg.ServerPortTCP == 0 {
		return fmt.Errorf("%w: server_port_tcp is required", ErrInvalidConfig)
	}
	if cfg.UseUDP && cfg.ServerPortUDP == 0 {
		return fmt.Errorf("%w: server_port_udp is required when use_udp is set", ErrInvalidConfig)
	}
	if cfg.ArenaSize < minArenaSize {
		return fmt.Errorf("%w: arena_size %d is below the %d byte minimum", ErrInvalidConfig, cfg.ArenaSize, minArenaSize)
	}
	if cfg.MaxRegisteredCommands < 0 {
		return fmt.Errorf("%w: max_registered_commands must not be negative", ErrInvalidConfig)
	}
	if cfg.MaxLoopFunctions < 0 {
		return fmt.Errorf("%w: max_loop_functions must not be negative", ErrInvalidConfig)
	}
	if cfg.TCPConnectionAttempts < 1 {
		return fmt.Errorf("%w: tcp_connection_attempts must be at least 1", ErrInvalidConfig)
	}
	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.PollInterval < 0 {
		return fmt.Errorf("%w: poll_interval must not be negative", ErrInvalidConfig)
	}
	if cfg.CredentialsPath == "" {
		return fmt.Errorf("%w: credentials_path is required", ErrInvalidConfig)
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, cfg.LogLevel)
	}
	return nil
}

func port(key string, v int) (uint16, error) {
	if v <= 0 || v > 0xFFFF {
		return 0, fmt.Errorf("%w: %s %d out of range", ErrInvalidConfig, key, v)
	}
	return uint16(v), nil
}

func duration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
