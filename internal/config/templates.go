package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "gateway", "rpcgated":
		return gatewayTemplate, nil
	case "users":
		return usersTemplate, nil
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

const gatewayTemplate = `listen = ["ws://0.0.0.0:8080", "unix:///tmp/rpcgate.sock"]
www_root = "/www"
plugin_dir = "/usr/lib/rpcgate/plugins"
password_file = "/etc/rpcgate/users.toml"
recv_timeout = "1s"
max_message_bytes = 8388608
cors_origins = ["http://localhost:3000"]
allow_file_write = false
allow_exec = false
exec_timeout = "10s"
metrics_token = ""
`

// Default credentials are admin/admin and viewer/viewer; reset them with rpcpasswd.
const usersTemplate = `[[users]]
username = "admin"
password_hash = "1d6d19b2fc51c32ba75eafb8459d6b542df4bf63dfadf3f545f3addc60391a43"

[[users.grants]]
scope = "*"
object = "*"
method = "*"
permission = "x"

[[users]]
username = "viewer"
password_hash = "1ec263d3b876e244e269e173b1119986be5dfef71c62b81d3b560a8297f27b98"

[[users.grants]]
scope = "*"
object = "*"
method = "*"
permission = "r"
`
