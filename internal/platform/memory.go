package platform

import (
	"os"
	"strconv"
	"strings"
)

// DetectMemoryLimit returns the container memory limit in bytes from
// the cgroup filesystem, trying cgroup v2 then v1. Returns 0 with a
// nil error if no limit is detected (bare metal, VMs, unconstrained
// containers).
func DetectMemoryLimit() (int64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limit := strings.TrimSpace(string(data))
		if limit != "max" {
			return strconv.ParseInt(limit, 10, 64)
		}
		return 0, nil
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	}

	return 0, nil
}

// recommended session-sizing bounds and per-session memory estimate:
// the session's outbound queue plus the broker's own bookkeeping for
// whatever objects/services/channels/bus listeners it owns.
const (
	minRecommendedConnections = 100
	maxRecommendedConnections = 50000
	bytesPerSession           = 24 * 1024 // outCh buffer + per-conn maps, rough estimate
	runtimeOverheadBytes      = 64 * 1024 * 1024
	defaultRecommendation     = 10000
)

// RecommendedMaxConnections sizes ALDRIN_MAX_CONNECTIONS from a
// detected container memory limit, clamped to a sane range. Used only
// to log a suggestion at startup when the configured value looks far
// off; the broker never overrides operator-supplied configuration.
func RecommendedMaxConnections(memoryLimitBytes int64) int {
	if memoryLimitBytes == 0 {
		return defaultRecommendation
	}

	available := memoryLimitBytes - runtimeOverheadBytes
	if available < 0 {
		available = memoryLimitBytes / 2
	}

	max := int(available / bytesPerSession)
	if max < minRecommendedConnections {
		max = minRecommendedConnections
	}
	if max > maxRecommendedConnections {
		max = maxRecommendedConnections
	}
	return max
}
