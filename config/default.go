package config

import (
	"fmt"
	"os"
)

// DefaultFile is the config written on first run.
const DefaultFile = `# namerace configuration

[account]
# Bearer token of the account. May be left empty and set through
# NAMERACE_ACCOUNT_TOKEN instead.
token = ""
# RFC 3339 instant the token was issued; enables the credential lifetime guard.
auth_time = ""

[race]
# Names raced in order; the queue stops at the first win.
names = []
# regular (name change) or catalog (new profile)
mode = "regular"
# Milliseconds between consecutive attempts.
spread_ms = 0
# Milliseconds to fire early. Ignored when auto_offset is true.
offset_ms = 0
auto_offset = false
calibration_samples = 1
# abort or zero
calibration_policy = "abort"
lead = "5s"
read_timeout = "10s"
# Ask the profile service for the name change cooldown before regular races.
check_eligibility = true

[resolver]
base_url = "https://mojang-api.teun.lol"
# Helps the drop-time API when it does not know the name yet.
previous_holder = ""
# RFC 3339 release instant; skips the drop-time API when set.
release = ""

[tls]
# Extra PEM roots, files or directories.
roots = []
system_roots = true

[log]
level = "info"
development = false
`

// WriteDefault writes DefaultFile to path. It never overwrites an
// existing file.
func WriteDefault(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if _, err := f.WriteString(DefaultFile); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}
