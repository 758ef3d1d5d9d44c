package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limits bounds one module's resource consumption while sandboxed.
type Limits struct {
	MaxMemoryBytes int64
	MaxCPUTime     time.Duration
	MaxThreads     int
	MaxFileHandles int
	MaxNetworkBps  int64
}

// DefaultLimits matches the documented defaults: 100 MB memory, 60s
// CPU, 10 threads, 50 file handles, 10 MB/s network.
func DefaultLimits() Limits {
	return Limits{
		MaxMemoryBytes: 100 * 1024 * 1024,
		MaxCPUTime:     60 * time.Second,
		MaxThreads:     10,
		MaxFileHandles: 50,
		MaxNetworkBps:  10 * 1024 * 1024,
	}
}

// ResourceLimitExceededError reports which dimension a module tripped
// and by how much.
type ResourceLimitExceededError struct {
	Dimension string
	Limit     int64
	Observed  int64
}

func (e *ResourceLimitExceededError) Error() string {
	return fmt.Sprintf("resource limit exceeded: %s limit=%d observed=%d", e.Dimension, e.Limit, e.Observed)
}

// ResourceMonitor tracks one module's live resource usage against
// Limits. Network throughput is enforced with a token-bucket limiter
// (the same golang.org/x/time/rate primitive the teacher uses for
// per-client API rate limiting), everything else by direct comparison
// against the tracked counter.
type ResourceMonitor struct {
	mu             sync.Mutex
	limits         Limits
	moduleID       string
	audit          *AuditLog
	start          time.Time
	memoryBytes    int64
	cpuTime        time.Duration
	threads        int
	fileHandles    int
	networkLimiter *rate.Limiter
}

// NewResourceMonitor builds a monitor for moduleID enforcing limits,
// recording violations to audit.
func NewResourceMonitor(moduleID string, limits Limits, audit *AuditLog) *ResourceMonitor {
	bps := limits.MaxNetworkBps
	if bps <= 0 {
		bps = DefaultLimits().MaxNetworkBps
	}
	return &ResourceMonitor{
		limits:         limits,
		moduleID:       moduleID,
		audit:          audit,
		start:          time.Now(),
		networkLimiter: rate.NewLimiter(rate.Limit(bps), int(bps)),
	}
}

// UpdateMemory records a new memory high-water mark and enforces the
// configured limit.
func (m *ResourceMonitor) UpdateMemory(ctx context.Context, bytes int64) error {
	m.mu.Lock()
	m.memoryBytes = bytes
	exceeded := m.limits.MaxMemoryBytes > 0 && bytes > m.limits.MaxMemoryBytes
	m.mu.Unlock()

	if exceeded {
		return m.violate(ctx, "memory", m.limits.MaxMemoryBytes, bytes)
	}
	return nil
}

// UpdateCPU accrues elapsed CPU time and enforces the configured
// limit, measured against a monotonic start recorded at construction.
func (m *ResourceMonitor) UpdateCPU(ctx context.Context, elapsed time.Duration) error {
	m.mu.Lock()
	m.cpuTime += elapsed
	total := m.cpuTime
	exceeded := m.limits.MaxCPUTime > 0 && total > m.limits.MaxCPUTime
	m.mu.Unlock()

	if exceeded {
		return m.violate(ctx, "cpu_time", int64(m.limits.MaxCPUTime), int64(total))
	}
	return nil
}

// UpdateThreads records the current thread count and enforces the
// configured limit.
func (m *ResourceMonitor) UpdateThreads(ctx context.Context, count int) error {
	m.mu.Lock()
	m.threads = count
	exceeded := m.limits.MaxThreads > 0 && count > m.limits.MaxThreads
	m.mu.Unlock()

	if exceeded {
		return m.violate(ctx, "threads", int64(m.limits.MaxThreads), int64(count))
	}
	return nil
}

// UpdateFileHandles records the current open file-handle count and
// enforces the configured limit.
func (m *ResourceMonitor) UpdateFileHandles(ctx context.Context, count int) error {
	m.mu.Lock()
	m.fileHandles = count
	exceeded := m.limits.MaxFileHandles > 0 && count > m.limits.MaxFileHandles
	m.mu.Unlock()

	if exceeded {
		return m.violate(ctx, "file_handles", int64(m.limits.MaxFileHandles), int64(count))
	}
	return nil
}

// AllowNetwork consumes n bytes from the network token bucket,
// returning a ResourceLimitExceededError if the module has exceeded
// its configured throughput.
func (m *ResourceMonitor) AllowNetwork(ctx context.Context, n int) error {
	if !m.networkLimiter.AllowN(time.Now(), n) {
		return m.violate(ctx, "network_bps", m.limits.MaxNetworkBps, int64(n))
	}
	return nil
}

// Snapshot returns the current tracked values for diagnostics.
type Snapshot struct {
	MemoryBytes int64
	CPUTime     time.Duration
	Threads     int
	FileHandles int
	Uptime      time.Duration
}

func (m *ResourceMonitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		MemoryBytes: m.memoryBytes,
		CPUTime:     m.cpuTime,
		Threads:     m.threads,
		FileHandles: m.fileHandles,
		Uptime:      time.Since(m.start),
	}
}

func (m *ResourceMonitor) violate(ctx context.Context, dimension string, limit, observed int64) error {
	err := &ResourceLimitExceededError{Dimension: dimension, Limit: limit, Observed: observed}
	if m.audit != nil {
		m.audit.Record(ctx, Event{
			Severity: SeverityError,
			Kind:     EventResourceLimitHit,
			ModuleID: m.moduleID,
			Detail: map[string]interface{}{
				"dimension": dimension,
				"limit":     limit,
				"observed":  observed,
			},
		})
	}
	return err
}
