package platform

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
)

// HostSampler measures the host CPU load since the previous call
type HostSampler struct{}

// Sample returns the aggregate CPU load in percent
func (HostSampler) Sample() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, fmt.Errorf("failed to read cpu load: %w", err)
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu load reported")
	}
	return percents[0], nil
}

// FixedSampler reports a constant load
type FixedSampler float64

// Sample returns the fixed load
func (f FixedSampler) Sample() (float64, error) {
	return float64(f), nil
}
