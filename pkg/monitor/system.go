package monitor

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// ResourceUsage is one reading of host utilization. Sampled is false when
// the platform exposes no readable counters (anything without procfs), in
// which case every resource-driven feature quietly disengages.
type ResourceUsage struct {
	CPUFraction    float64 `json:"cpu_fraction"`
	MemoryFraction float64 `json:"memory_fraction"`
	LoadPerCPU     float64 `json:"load_per_cpu"`
	Sampled        bool    `json:"sampled"`
}

// SystemSampler reads utilization from procfs. CPU use is derived from the
// delta between consecutive readings, so the first Sample after
// construction reports Sampled=false.
type SystemSampler struct {
	prevBusy  uint64
	prevTotal uint64
	havePrev  bool

	// overridable in tests
	statPath    string
	meminfoPath string
	loadavgPath string
}

// NewSystemSampler creates a sampler reading the default proc paths
func NewSystemSampler() *SystemSampler {
	return &SystemSampler{
		statPath:    "/proc/stat",
		meminfoPath: "/proc/meminfo",
		loadavgPath: "/proc/loadavg",
	}
}

// Sample takes a fresh reading
func (s *SystemSampler) Sample() ResourceUsage {
	cpu, cpuOK := s.sampleCPU()
	mem, memOK := s.sampleMemory()
	load, loadOK := s.sampleLoad()

	usage := ResourceUsage{Sampled: cpuOK && memOK}
	if cpuOK {
		usage.CPUFraction = cpu
	}
	if memOK {
		usage.MemoryFraction = mem
	}
	if loadOK {
		usage.LoadPerCPU = load
	}
	return usage
}

// sampleCPU computes the busy fraction from /proc/stat tick deltas
func (s *SystemSampler) sampleCPU() (float64, bool) {
	data, err := os.ReadFile(s.statPath)
	if err != nil {
		return 0, false
	}

	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, false
	}

	var total, idle uint64
	for i, f := range fields[1:] {
		v, parseErr := strconv.ParseUint(f, 10, 64)
		if parseErr != nil {
			return 0, false
		}
		total += v
		// idle is field 4, iowait field 5
		if i == 3 || i == 4 {
			idle += v
		}
	}
	busy := total - idle

	if !s.havePrev {
		s.prevBusy = busy
		s.prevTotal = total
		s.havePrev = true
		return 0, false
	}

	deltaTotal := total - s.prevTotal
	deltaBusy := busy - s.prevBusy
	s.prevBusy = busy
	s.prevTotal = total

	if deltaTotal == 0 {
		return 0, false
	}
	return float64(deltaBusy) / float64(deltaTotal), true
}

// sampleMemory computes the used fraction from /proc/meminfo
func (s *SystemSampler) sampleMemory() (float64, bool) {
	data, err := os.ReadFile(s.meminfoPath)
	if err != nil {
		return 0, false
	}

	var total, available uint64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, parseErr := strconv.ParseUint(fields[1], 10, 64)
		if parseErr != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
	}
	if total == 0 {
		return 0, false
	}
	return 1 - float64(available)/float64(total), true
}

// sampleLoad reads the 1-minute load average normalized by CPU count
func (s *SystemSampler) sampleLoad() (float64, bool) {
	data, err := os.ReadFile(s.loadavgPath)
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, false
	}
	load, parseErr := strconv.ParseFloat(fields[0], 64)
	if parseErr != nil {
		return 0, false
	}
	return load / float64(runtime.NumCPU()), true
}
