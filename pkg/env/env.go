package env

import (
	"os"
	"strings"
)

// Prefix namespaces process settings shared with other services on a host.
const Prefix = "STOCKLEDGER_"

// Get returns STOCKLEDGER_<key>, then <key>, then fallback. Blank values
// count as unset.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
