package worker

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// DefaultID returns a worker identity unique to this process: the hostname
// plus a short random suffix.
func DefaultID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	host, err := os.Hostname()
	host = strings.TrimSpace(host)
	if err != nil || host == "" {
		return "worker-" + suffix
	}
	return host + "-" + suffix
}

// ResolveID returns configured when set, otherwise DefaultID.
func ResolveID(configured string) string {
	if id := strings.TrimSpace(configured); id != "" {
		return id
	}
	return DefaultID()
}
