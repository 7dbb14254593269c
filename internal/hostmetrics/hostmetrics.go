// Package hostmetrics samples host load for attachment to progress
// events. Failures degrade to an empty snapshot, metrics are cosmetic.
package hostmetrics

import (
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
)

// Snapshot returns the current host CPU, memory, and load figures as
// progress-event metadata. Any probe that fails is simply omitted.
func Snapshot() map[string]interface{} {
	snap := make(map[string]interface{})

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap["mem_used_percent"] = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		snap["load_1m"] = avg.Load1
	}

	return snap
}
