package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		return nodeTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const nodeTemplate = `device_name = "bece"
device_id = "0000"
firmware_version = "1.0.0"

server_port_tcp = 15000
server_port_udp = 15001
use_udp = false

arena_size = 1024
max_registered_commands = 10
max_loop_functions = 10

tcp_connection_attempts = 5
connect_timeout = "5s"
read_timeout = "2s"
poll_interval = "10ms"

credentials_path = "bece-credentials.cbor"
admin_addr = "127.0.0.1:9180"
update_url = ""

compat_skip_unknown_tags = false
log_level = "info"
`
