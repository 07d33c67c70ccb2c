package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "relay":
		return relayTemplate, nil
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

const clientTemplate = `relay_url = "ws://127.0.0.1:7400/session"
access_key = ""
identity_path = "xrsync-identity.db"
tick_interval = "20ms"
status_addr = "127.0.0.1:7401"
cors_origins = ["http://localhost:3000"]

[transport]
connect_timeout = "5s"
keepalive_interval = "1s"
backoff_initial = "200ms"
backoff_max = "60s"
backoff_multiplier = 2.0
backoff_jitter = false

[transport.tls]
ca_file = ""
cert_file = ""
key_file = ""
server_name = ""
insecure_skip_verify = false

[[devices]]
name = "Simulated head"
role = "head"
haptics = false
period = "6s"
offset = [0.0, 1.6, 0.0]

[[devices]]
name = "Simulated right hand"
role = "right"
haptics = true
period = "4s"
offset = [0.25, 1.2, 0.3]
`

const relayTemplate = `addr = ":7400"
path = "/session"
frame_interval = "20ms"
write_timeout = "5s"
send_queue = 256
access_key = ""
cors_origins = ["http://localhost:3000"]
tls_cert_file = ""
tls_key_file = ""
tls_client_ca_file = ""

[[calibrations]]
peer = 1
position = [0.0, 0.0, 0.0]
rotation = [0.0, 0.0, 0.0, 1.0]
scale = [1.0, 1.0, 1.0]
`
