// Package monitor tracks execution throughput and system resource usage for
// a running plan. It produces point-in-time snapshots with ETA and grade,
// advises the engine on worker-count changes, and summarizes the run in a
// final report.
package monitor

import (
	"sync"
	"time"
)

// Config holds monitor tuning knobs
type Config struct {
	// RollingWindow is how many recent operations feed the instantaneous rates
	RollingWindow int
	// SmoothingFactor is the EMA weight given to the newest rate reading
	SmoothingFactor float64
	// MinETASamples is the number of completed operations required before an
	// ETA is published
	MinETASamples int
	// BottleneckEvery throttles how often bottleneck classification runs
	BottleneckEvery time.Duration
	// SlowOpThreshold marks an operation as slow for disk-bottleneck detection
	SlowOpThreshold time.Duration

	CPUWarn        float64
	CPUCritical    float64
	MemoryWarn     float64
	MemoryCritical float64
	// LoadWarn is load average per CPU above which the host counts as busy
	LoadWarn float64
}

// DefaultConfig returns the standard monitor tuning
func DefaultConfig() Config {
	return Config{
		RollingWindow:   10,
		SmoothingFactor: 0.3,
		MinETASamples:   3,
		BottleneckEvery: 5 * time.Second,
		SlowOpThreshold: 5 * time.Second,
		CPUWarn:         0.75,
		CPUCritical:     0.90,
		MemoryWarn:      0.80,
		MemoryCritical:  0.95,
		LoadWarn:        1.5,
	}
}

// Trend describes where throughput is heading
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Snapshot is a point-in-time view of the run
type Snapshot struct {
	Elapsed        time.Duration `json:"elapsed"`
	TotalOps       int           `json:"total_ops"`
	CompletedOps   int           `json:"completed_ops"`
	FailedOps      int           `json:"failed_ops"`
	BytesProcessed int64         `json:"bytes_processed"`

	OpsPerSecond   float64 `json:"ops_per_second"`
	BytesPerSecond float64 `json:"bytes_per_second"`

	// ETA is only meaningful when ETAValid is true; before enough samples
	// have arrived it is reported as unavailable
	ETA      time.Duration `json:"eta"`
	ETAValid bool          `json:"eta_valid"`

	Resources   ResourceUsage `json:"resources"`
	Bottlenecks []Bottleneck  `json:"bottlenecks,omitempty"`

	Efficiency float64 `json:"efficiency"`
	Grade      string  `json:"grade"`
	Trend      Trend   `json:"trend"`
	Workers    int     `json:"workers"`
}

type sample struct {
	timestamp time.Time
	bytes     int64
	duration  time.Duration
	success   bool
}

// Monitor aggregates operation outcomes. All methods are safe for
// concurrent use. Snapshot never touches the filesystem; resource data is
// whatever the last SampleResources call observed.
type Monitor struct {
	cfg Config
	sys *SystemSampler

	mu         sync.Mutex
	started    time.Time
	stopped    time.Time
	totalOps   int
	totalBytes int64

	completed int
	failed    int
	retries   int
	bytesDone int64
	slowOps   int

	samples     []sample
	smoothedOps float64
	smoothedBps float64
	peakBps     float64
	rateHistory []float64

	resources        ResourceUsage
	bottlenecks      []Bottleneck
	lastBottleneckAt time.Time

	workers     int
	peakWorkers int
}

// New creates a monitor with the given config, filling zero fields from
// DefaultConfig
func New(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = def.RollingWindow
	}
	if cfg.SmoothingFactor <= 0 || cfg.SmoothingFactor > 1 {
		cfg.SmoothingFactor = def.SmoothingFactor
	}
	if cfg.MinETASamples <= 0 {
		cfg.MinETASamples = def.MinETASamples
	}
	if cfg.BottleneckEvery <= 0 {
		cfg.BottleneckEvery = def.BottleneckEvery
	}
	if cfg.SlowOpThreshold <= 0 {
		cfg.SlowOpThreshold = def.SlowOpThreshold
	}
	if cfg.CPUWarn <= 0 {
		cfg.CPUWarn = def.CPUWarn
	}
	if cfg.CPUCritical <= 0 {
		cfg.CPUCritical = def.CPUCritical
	}
	if cfg.MemoryWarn <= 0 {
		cfg.MemoryWarn = def.MemoryWarn
	}
	if cfg.MemoryCritical <= 0 {
		cfg.MemoryCritical = def.MemoryCritical
	}
	if cfg.LoadWarn <= 0 {
		cfg.LoadWarn = def.LoadWarn
	}
	return &Monitor{
		cfg: cfg,
		sys: NewSystemSampler(),
	}
}

// Start begins a run with the expected totals
func (m *Monitor) Start(totalOps int, totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = time.Now()
	m.stopped = time.Time{}
	m.totalOps = totalOps
	m.totalBytes = totalBytes
	m.completed = 0
	m.failed = 0
	m.retries = 0
	m.bytesDone = 0
	m.slowOps = 0
	m.samples = nil
	m.smoothedOps = 0
	m.smoothedBps = 0
	m.peakBps = 0
	m.rateHistory = nil
	m.bottlenecks = nil
}

// RecordOperation feeds one settled operation into the rolling stats
func (m *Monitor) RecordOperation(bytes int64, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.completed++
		m.bytesDone += bytes
	} else {
		m.failed++
	}
	if duration >= m.cfg.SlowOpThreshold {
		m.slowOps++
	}

	m.samples = append(m.samples, sample{
		timestamp: time.Now(),
		bytes:     bytes,
		duration:  duration,
		success:   success,
	})
	if len(m.samples) > m.cfg.RollingWindow {
		m.samples = m.samples[len(m.samples)-m.cfg.RollingWindow:]
	}

	opsRate, bytesRate := m.windowRates()
	alpha := m.cfg.SmoothingFactor
	if m.smoothedOps == 0 {
		m.smoothedOps = opsRate
		m.smoothedBps = bytesRate
	} else {
		m.smoothedOps = alpha*opsRate + (1-alpha)*m.smoothedOps
		m.smoothedBps = alpha*bytesRate + (1-alpha)*m.smoothedBps
	}
	if m.smoothedBps > m.peakBps {
		m.peakBps = m.smoothedBps
	}

	m.rateHistory = append(m.rateHistory, m.smoothedBps)
	if len(m.rateHistory) > 4*m.cfg.RollingWindow {
		m.rateHistory = m.rateHistory[len(m.rateHistory)-4*m.cfg.RollingWindow:]
	}
}

// RecordRetry counts a retry attempt
func (m *Monitor) RecordRetry() {
	m.mu.Lock()
	m.retries++
	m.mu.Unlock()
}

// SetWorkers records the live worker count and tracks its high-water mark
func (m *Monitor) SetWorkers(n int) {
	m.mu.Lock()
	m.workers = n
	if n > m.peakWorkers {
		m.peakWorkers = n
	}
	m.mu.Unlock()
}

// windowRates computes ops/s and bytes/s over the sample window. Caller
// holds the mutex.
func (m *Monitor) windowRates() (float64, float64) {
	if len(m.samples) == 0 {
		return 0, 0
	}
	span := time.Since(m.samples[0].timestamp)
	if span < 100*time.Millisecond {
		span = 100 * time.Millisecond
	}
	var bytes int64
	for _, s := range m.samples {
		bytes += s.bytes
	}
	secs := span.Seconds()
	return float64(len(m.samples)) / secs, float64(bytes) / secs
}

// SampleResources refreshes the resource reading and, on its own slower
// cadence, re-runs bottleneck classification. The engine calls this on its
// metrics tick; Snapshot itself never does I/O.
func (m *Monitor) SampleResources() {
	usage := m.sys.Sample()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = usage

	if time.Since(m.lastBottleneckAt) >= m.cfg.BottleneckEvery {
		m.lastBottleneckAt = time.Now()
		m.bottlenecks = m.classifyBottlenecks(usage)
	}
}

// Snapshot returns the current view of the run
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Elapsed:        time.Since(m.started),
		TotalOps:       m.totalOps,
		CompletedOps:   m.completed,
		FailedOps:      m.failed,
		BytesProcessed: m.bytesDone,
		OpsPerSecond:   m.smoothedOps,
		BytesPerSecond: m.smoothedBps,
		Resources:      m.resources,
		Bottlenecks:    append([]Bottleneck(nil), m.bottlenecks...),
		Efficiency:     m.efficiency(),
		Trend:          m.trend(),
		Workers:        m.workers,
	}
	snap.Grade = m.grade(snap.Efficiency, snap.Trend)
	snap.ETA, snap.ETAValid = m.eta()
	return snap
}

// eta estimates remaining time from the smoothed rates. Caller holds the
// mutex.
func (m *Monitor) eta() (time.Duration, bool) {
	settled := m.completed + m.failed
	if settled < m.cfg.MinETASamples || settled >= m.totalOps {
		return 0, false
	}

	if m.totalBytes > 0 && m.smoothedBps > 0 {
		remaining := m.totalBytes - m.bytesDone
		if remaining < 0 {
			remaining = 0
		}
		return time.Duration(float64(remaining) / m.smoothedBps * float64(time.Second)), true
	}
	if m.smoothedOps > 0 {
		remaining := m.totalOps - settled
		return time.Duration(float64(remaining) / m.smoothedOps * float64(time.Second)), true
	}
	return 0, false
}

// efficiency is the fraction of attempted operations that succeeded.
// Caller holds the mutex.
func (m *Monitor) efficiency() float64 {
	settled := m.completed + m.failed
	if settled == 0 {
		return 1.0
	}
	return float64(m.completed) / float64(settled)
}

// Advice tells the engine what to do with its worker count
type Advice struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Action is a concurrency adjustment direction
type Action string

const (
	ActionRaise Action = "raise"
	ActionLower Action = "lower"
	ActionHold  Action = "hold"
)

// Advise recommends a worker-count change based on the latest resource
// reading and throughput trend. It only recommends moves inside
// [floor, ceiling]; the engine applies them.
func (m *Monitor) Advise(current, floor, ceiling int) Advice {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.resources
	if !res.Sampled {
		return Advice{Action: ActionHold, Reason: "resource sampling unavailable"}
	}

	switch {
	case res.CPUFraction >= m.cfg.CPUCritical && current > floor:
		return Advice{Action: ActionLower, Reason: "cpu saturated"}
	case res.MemoryFraction >= m.cfg.MemoryCritical && current > floor:
		return Advice{Action: ActionLower, Reason: "memory saturated"}
	case res.LoadPerCPU >= m.cfg.LoadWarn && current > floor:
		return Advice{Action: ActionLower, Reason: "host load high"}
	}

	if current < ceiling &&
		res.CPUFraction < m.cfg.CPUWarn/2 &&
		res.MemoryFraction < m.cfg.MemoryWarn &&
		m.trend() != TrendDegrading {
		return Advice{Action: ActionRaise, Reason: "resources idle and throughput healthy"}
	}

	return Advice{Action: ActionHold, Reason: "within comfortable range"}
}

// Stop freezes the monitor and builds the final report
func (m *Monitor) Stop() *FinalReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = time.Now()
	duration := m.stopped.Sub(m.started)

	report := &FinalReport{
		Duration:           duration,
		TotalOps:           m.totalOps,
		Completed:          m.completed,
		Failed:             m.failed,
		Retries:            m.retries,
		BytesProcessed:     m.bytesDone,
		PeakBytesPerSecond: m.peakBps,
		PeakWorkers:        m.peakWorkers,
		Bottlenecks:        append([]Bottleneck(nil), m.bottlenecks...),
		Trend:              m.trend(),
	}
	if secs := duration.Seconds(); secs > 0 {
		report.AvgOpsPerSecond = float64(m.completed) / secs
		report.AvgBytesPerSecond = float64(m.bytesDone) / secs
	}
	report.Efficiency = m.efficiency()
	report.Grade = m.grade(report.Efficiency, report.Trend)
	report.Suggestions = m.suggestions(report)
	return report
}
