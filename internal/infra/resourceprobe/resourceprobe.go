// Package resourceprobe implements the domain.ResourceProbe port: a
// best-effort read of host memory pressure from /proc/meminfo where
// available, degrading to static nominal values elsewhere. The reading
// may be stale by up to one governance cycle, which the core tolerates.
package resourceprobe

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tutu-network/govcore/internal/domain"
)

const meminfoPath = "/proc/meminfo"
const cacheTTL = 5 * time.Second

// Probe reads host resource pressure, caching readings briefly so a
// burst of snapshot calls within one cycle does not hammer procfs.
type Probe struct {
	mu       sync.Mutex
	fallback domain.ResourceSnapshot
	now      func() time.Time

	cached   domain.ResourceSnapshot
	cachedAt time.Time
}

// New creates a Probe. fallback is returned verbatim when the host
// exposes no readable /proc/meminfo.
func New(fallback domain.ResourceSnapshot) *Probe {
	if fallback.TotalMemoryGB <= 0 {
		fallback = domain.ResourceSnapshot{
			AvailableMemoryGB: 8,
			TotalMemoryGB:     16,
			AvailableDiskGB:   100,
			Thermal:           domain.ThermalNominal,
		}
	}
	return &Probe{fallback: fallback, now: time.Now}
}

// Snapshot returns the current resource reading.
func (p *Probe) Snapshot() domain.ResourceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.cachedAt.IsZero() && now.Sub(p.cachedAt) < cacheTTL {
		return p.cached
	}

	snap := p.fallback
	if data, err := os.ReadFile(meminfoPath); err == nil {
		if available, total, ok := parseMeminfo(string(data)); ok {
			snap.AvailableMemoryGB = available
			snap.TotalMemoryGB = total
		}
	}
	p.cached = snap
	p.cachedAt = now
	return snap
}

// parseMeminfo extracts MemAvailable and MemTotal (reported in kB) from
// /proc/meminfo content, converted to gigabytes.
func parseMeminfo(content string) (availableGB, totalGB float64, ok bool) {
	var availableKB, totalKB float64
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseKBLine(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availableKB = parseKBLine(line)
		}
	}
	if totalKB <= 0 {
		return 0, 0, false
	}
	if availableKB <= 0 {
		availableKB = totalKB / 2
	}
	const kbPerGB = 1024 * 1024
	return availableKB / kbPerGB, totalKB / kbPerGB, true
}

func parseKBLine(line string) float64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0
	}
	return v
}
