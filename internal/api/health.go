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

// HealthReport: ответ GET /health
type HealthReport struct {
	Status     string  `json:"status"`
	Uptime     string  `json:"uptime"`
	WoodTypes  int     `json:"wood_types"`
	RSSMB      float64 `json:"rss_mb"`
	HeapMB     float64 `json:"heap_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	SystemMem  float64 `json:"system_mem_percent"`
	Goroutines int     `json:"goroutines"`
}

// processStats снимает показатели процесса через gopsutil
type processStats struct {
	startTime time.Time
	proc      *process.Process
}

func newProcessStats() *processStats {
	ps := &processStats{startTime: time.Now()}
	// Ошибка здесь означает, что метрики процесса недоступны (например, в песочнице)
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		ps.proc = proc
	}
	return ps
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

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

// fill дополняет отчёт показателями процесса и системы. Недоступные
// показатели остаются нулевыми.
func (ps *processStats) fill(r *HealthReport) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.HeapMB = float64(m.HeapAlloc) / 1024 / 1024
	r.Goroutines = runtime.NumGoroutine()
	r.Uptime = formatUptime(time.Since(ps.startTime))

	if ps.proc != nil {
		if info, err := ps.proc.MemoryInfo(); err == nil {
			r.RSSMB = float64(info.RSS) / 1024 / 1024
		}
		if pct, err := ps.proc.CPUPercent(); err == nil {
			r.CPUPercent = pct
		}
	}
	if r.CPUPercent == 0 {
		// Если не удалось получить метрику процесса, берём системную без ожидания
		if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
			r.CPUPercent = pcts[0]
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		r.SystemMem = vm.UsedPercent
	}
}
