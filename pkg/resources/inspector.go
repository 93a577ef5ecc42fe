package resources

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ritzau/build-intel/pkg/logging"
)

// Inspector exposes the hardware figures used to bound build parallelism
type Inspector interface {
	// CPUCores returns the number of logical CPU cores
	CPUCores() int

	// AvailableMemory returns the memory available for new work, in bytes
	AvailableMemory() uint64
}

// SystemInspector reads live figures from the host
type SystemInspector struct{}

// NewSystemInspector creates an inspector backed by the host system
func NewSystemInspector() *SystemInspector {
	return &SystemInspector{}
}

// CPUCores returns the logical core count, falling back to the Go runtime's
// view if the platform query fails
func (s *SystemInspector) CPUCores() int {
	count, err := cpu.Counts(true)
	if err != nil || count < 1 {
		logging.Debug("cpu count query failed, using runtime value", "error", err)
		return runtime.NumCPU()
	}
	return count
}

// AvailableMemory returns available memory in bytes, or 0 when unknown
func (s *SystemInspector) AvailableMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logging.Debug("memory query failed", "error", err)
		return 0
	}
	return vm.Available
}

// StaticInspector reports fixed figures. Useful in tests and for callers
// that want to pin the resource budget regardless of the host.
type StaticInspector struct {
	Cores  int
	Memory uint64
}

func (s StaticInspector) CPUCores() int           { return s.Cores }
func (s StaticInspector) AvailableMemory() uint64 { return s.Memory }
