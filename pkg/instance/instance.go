package instance

import "os"

// GetID returns the process instance identifier used in logs.
func GetID() string {
	for _, key := range []string{"STOCKLEDGER_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
