package monitor

import (
	"fmt"
	"time"
)

// BottleneckKind names what is holding the run back
type BottleneckKind string

const (
	BottleneckCPU    BottleneckKind = "cpu"
	BottleneckMemory BottleneckKind = "memory"
	BottleneckDisk   BottleneckKind = "disk"
)

// Severity ranks how bad a bottleneck is
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Bottleneck is one classified limiting factor
type Bottleneck struct {
	Kind     BottleneckKind `json:"kind"`
	Severity Severity       `json:"severity"`
	Detail   string         `json:"detail"`
	At       time.Time      `json:"at"`
}

// FinalReport summarizes a finished run
type FinalReport struct {
	Duration           time.Duration `json:"duration"`
	TotalOps           int           `json:"total_ops"`
	Completed          int           `json:"completed"`
	Failed             int           `json:"failed"`
	Retries            int           `json:"retries"`
	BytesProcessed     int64         `json:"bytes_processed"`
	AvgOpsPerSecond    float64       `json:"avg_ops_per_second"`
	AvgBytesPerSecond  float64       `json:"avg_bytes_per_second"`
	PeakBytesPerSecond float64       `json:"peak_bytes_per_second"`
	Efficiency         float64       `json:"efficiency"`
	Grade              string        `json:"grade"`
	Trend              Trend         `json:"trend"`
	PeakWorkers        int           `json:"peak_workers"`
	Bottlenecks        []Bottleneck  `json:"bottlenecks,omitempty"`
	Suggestions        []string      `json:"suggestions,omitempty"`
}

// classifyBottlenecks inspects the latest resource reading together with
// recent slow operations. Caller holds the mutex.
func (m *Monitor) classifyBottlenecks(res ResourceUsage) []Bottleneck {
	if !res.Sampled {
		return nil
	}

	now := time.Now()
	var found []Bottleneck

	switch {
	case res.CPUFraction >= m.cfg.CPUCritical:
		found = append(found, Bottleneck{
			Kind: BottleneckCPU, Severity: SeverityCritical, At: now,
			Detail: fmt.Sprintf("cpu at %.0f%%", res.CPUFraction*100),
		})
	case res.CPUFraction >= m.cfg.CPUWarn:
		found = append(found, Bottleneck{
			Kind: BottleneckCPU, Severity: SeverityWarning, At: now,
			Detail: fmt.Sprintf("cpu at %.0f%%", res.CPUFraction*100),
		})
	}

	switch {
	case res.MemoryFraction >= m.cfg.MemoryCritical:
		found = append(found, Bottleneck{
			Kind: BottleneckMemory, Severity: SeverityCritical, At: now,
			Detail: fmt.Sprintf("memory at %.0f%%", res.MemoryFraction*100),
		})
	case res.MemoryFraction >= m.cfg.MemoryWarn:
		found = append(found, Bottleneck{
			Kind: BottleneckMemory, Severity: SeverityWarning, At: now,
			Detail: fmt.Sprintf("memory at %.0f%%", res.MemoryFraction*100),
		})
	}

	// Slow operations while the CPU sits idle point at storage
	if m.slowOps > 0 && res.CPUFraction < m.cfg.CPUWarn/2 {
		found = append(found, Bottleneck{
			Kind: BottleneckDisk, Severity: SeverityWarning, At: now,
			Detail: fmt.Sprintf("%d operations exceeded %s with idle cpu", m.slowOps, m.cfg.SlowOpThreshold),
		})
	}

	return found
}

// trend compares the older and newer halves of the rate history. Within a
// 5% band the trend counts as stable. Caller holds the mutex.
func (m *Monitor) trend() Trend {
	if len(m.rateHistory) < 4 {
		return TrendStable
	}
	half := len(m.rateHistory) / 2
	older := mean(m.rateHistory[:half])
	newer := mean(m.rateHistory[half:])
	if older <= 0 {
		return TrendStable
	}
	switch ratio := newer / older; {
	case ratio > 1.05:
		return TrendImproving
	case ratio < 0.95:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// grade scores the run A through F. Caller holds the mutex.
func (m *Monitor) grade(efficiency float64, trend Trend) string {
	score := 100.0
	score -= (1 - efficiency) * 40

	for _, b := range m.bottlenecks {
		if b.Severity == SeverityCritical {
			score -= 25
		} else {
			score -= 10
		}
	}
	if trend == TrendDegrading {
		score -= 10
	}

	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// suggestions derives tuning hints from the final report. Caller holds the
// mutex.
func (m *Monitor) suggestions(r *FinalReport) []string {
	var out []string

	for _, b := range m.bottlenecks {
		switch b.Kind {
		case BottleneckCPU:
			out = append(out, "cpu was the limiting factor, lower concurrency or run when the host is idle")
		case BottleneckMemory:
			out = append(out, "memory pressure was high, lower concurrency or free memory before the next run")
		case BottleneckDisk:
			out = append(out, "storage was the limiting factor, raising concurrency will not help")
		}
	}

	if r.TotalOps > 0 && r.Failed*10 > r.TotalOps {
		out = append(out, "more than 10% of operations failed, investigate the errors before re-running")
	}
	if r.Retries > r.TotalOps {
		out = append(out, "operations needed frequent retries, the storage or filesystem may be flaky")
	}
	if r.Trend == TrendDegrading {
		out = append(out, "throughput degraded over the run, check for competing workloads")
	}
	if len(out) == 0 && r.Failed == 0 {
		out = append(out, "run was healthy, no tuning needed")
	}
	return out
}
