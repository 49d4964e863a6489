package config

import (
	"fmt"
	"os"
)

// Template returns a commented starting configuration.
func Template() string {
	return boardTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(boardTemplate), 0o600)
}

const boardTemplate = `# board service REST endpoint
service_url = "http://127.0.0.1:8080"
device_type = "CLI"
token = ""

# optional fixed realtime socket; normally obtained by registration
# web_socket_url = "wss://mercury.example/v1/socket"
security_mode = "development"

# local key ring for content encryption ([keys] table of key url -> hex key)
key_file = "keys.toml"

max_retries = 3
ping_interval = "15s"
pong_timeout = "14s"
force_close_delay = "2s"
buffer_state_timeout = "30s"
request_timeout = "20s"

backoff_initial = "250ms"
backoff_max = "32s"
backoff_multiplier = 2.0
backoff_jitter = true

contents_per_page = 20
max_pages = 1000
`
