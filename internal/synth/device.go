package synth

import (
	"os"
	"runtime"
)

// Compute devices, in probe priority order.
const (
	DeviceAcceleratedGPU = "accelerated-gpu"
	DeviceUnifiedMemory  = "accelerated-unified-memory"
	DeviceCPU            = "cpu"
)

// DeviceProbes report backend availability. Injected so tests can force a
// device without touching the host.
type DeviceProbes struct {
	GPU           func() bool
	UnifiedMemory func() bool
}

// DetectDevice probes backends in priority order and returns the first
// available one. It never fails: the CPU is always assumed present.
func DetectDevice(probes DeviceProbes) string {
	if probes.GPU != nil && probes.GPU() {
		return DeviceAcceleratedGPU
	}
	if probes.UnifiedMemory != nil && probes.UnifiedMemory() {
		return DeviceUnifiedMemory
	}
	return DeviceCPU
}

// DefaultProbes checks for a visible NVIDIA driver and for Apple silicon
// unified memory.
func DefaultProbes() DeviceProbes {
	return DeviceProbes{
		GPU: func() bool {
			if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
				return v != "" && v != "-1"
			}
			if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
				return true
			}
			_, err := os.Stat("/dev/nvidia0")
			return err == nil
		},
		UnifiedMemory: func() bool {
			return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
		},
	}
}
