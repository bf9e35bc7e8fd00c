package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessMetrics снимает состояние процесса для /api/v1/status
type ProcessMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// NewProcessMetrics привязывается к текущему процессу
func NewProcessMetrics() *ProcessMetrics {
	pm := &ProcessMetrics{StartTime: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		pm.proc = p
	}
	return pm
}

// ProcessStats снимок ресурсов
type ProcessStats struct {
	Uptime        string  `json:"uptime"`
	MemoryMB      float64 `json:"memory_mb"`
	HeapMB        float64 `json:"heap_mb"`
	CPUPercent    float64 `json:"cpu_percent"`
	SystemCPU     float64 `json:"system_cpu_percent"`
	SystemMemUsed float64 `json:"system_memory_percent"`
	Goroutines    int     `json:"goroutines"`
	NumGC         uint32  `json:"num_gc"`
}

// Snapshot не блокируется: загрузка CPU считается от прошлого вызова
func (pm *ProcessMetrics) Snapshot() ProcessStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := ProcessStats{
		Uptime:     FormatUptime(time.Since(pm.StartTime)),
		MemoryMB:   float64(ms.Sys) / 1024 / 1024,
		HeapMB:     float64(ms.HeapAlloc) / 1024 / 1024,
		Goroutines: runtime.NumGoroutine(),
		NumGC:      ms.NumGC,
	}
	if pm.proc != nil {
		if v, err := pm.proc.CPUPercent(); err == nil {
			s.CPUPercent = v
		}
		if info, err := pm.proc.MemoryInfo(); err == nil {
			s.MemoryMB = float64(info.RSS) / 1024 / 1024
		}
	}
	if v, err := cpu.Percent(0, false); err == nil && len(v) > 0 {
		s.SystemCPU = v[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.SystemMemUsed = vm.UsedPercent
	}
	return s
}

// FormatUptime время работы в виде "1д 2ч 3м 4с"
func FormatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}
