// Package sysmetrics samples host and process resource usage for the admin API.
package sysmetrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// Sample is one point-in-time reading.
type Sample struct {
	CapturedAt        time.Time `json:"captured_at"`
	ProcessRSSBytes   int64     `json:"process_rss_bytes"`
	ProcessCPULoad    float64   `json:"process_cpu_load"`
	Goroutines        int       `json:"goroutines"`
	SystemMemoryTotal int64     `json:"system_memory_total_bytes"`
	SystemMemoryUsed  int64     `json:"system_memory_used_bytes"`
	SystemCPULoad     float64   `json:"system_cpu_load"`
	DiskPath          string    `json:"disk_path"`
	DiskTotalBytes    int64     `json:"disk_total_bytes"`
	DiskUsedBytes     int64     `json:"disk_used_bytes"`
}

// Capture reads the current usage. diskPath is the content root; "/" is used when it is unreadable.
// Fields whose reading fails are left zero.
func Capture(ctx context.Context, diskPath string) Sample {
	sample := Sample{
		CapturedAt: time.Now().UTC(),
		Goroutines: runtime.NumGoroutine(),
	}

	if memStat, errMem := mem.VirtualMemoryWithContext(ctx); errMem == nil {
		sample.SystemMemoryTotal = int64(memStat.Total)
		sample.SystemMemoryUsed = int64(memStat.Total - memStat.Available)
	} else {
		log.WithError(errMem).Debug("sysmetrics: read memory failed")
	}

	if diskPath == "" {
		diskPath = "/"
	}
	diskStat, errDisk := disk.UsageWithContext(ctx, diskPath)
	if errDisk != nil {
		diskPath = "/"
		diskStat, errDisk = disk.UsageWithContext(ctx, diskPath)
	}
	if errDisk == nil {
		sample.DiskPath = diskPath
		sample.DiskTotalBytes = int64(diskStat.Total)
		sample.DiskUsedBytes = int64(diskStat.Used)
	}

	if loads, errCPU := cpu.PercentWithContext(ctx, 0, false); errCPU == nil && len(loads) > 0 {
		sample.SystemCPULoad = loads[0] / 100.0
	}

	if proc, errProc := process.NewProcessWithContext(ctx, int32(os.Getpid())); errProc == nil {
		if rss, errRSS := proc.MemoryInfoWithContext(ctx); errRSS == nil && rss != nil {
			sample.ProcessRSSBytes = int64(rss.RSS)
		}
		if load, errLoad := proc.CPUPercentWithContext(ctx); errLoad == nil {
			sample.ProcessCPULoad = load / 100.0
		}
	}
	return sample
}
