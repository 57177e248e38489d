// Package health collects host resource metrics for the health endpoints.
package health

import (
	"context"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Metrics is a point-in-time snapshot of the rollout server host.
type Metrics struct {
	CPUUsage       float64 `json:"cpu_usage"`
	MemoryUsage    float64 `json:"memory_usage"`
	DiskUsage      float64 `json:"disk_usage"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
}

// Collector samples host resource usage.
type Collector struct {
	startTime time.Time
}

// NewCollector creates a collector anchored to the process start.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Collect gathers a metrics snapshot. A failed probe leaves its fields
// zeroed; the health endpoint should not 500 because one gauge is missing.
func (c *Collector) Collect(ctx context.Context) *Metrics {
	m := &Metrics{
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	// interval 0 compares against the previous call instead of blocking.
	if cpuPct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(cpuPct) > 0 {
		m.CPUUsage = cpuPct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemoryUsage = vm.UsedPercent
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		m.DiskUsage = du.UsedPercent
		m.DiskFreeBytes = int64(du.Free)
		m.DiskTotalBytes = int64(du.Total)
	}

	return m
}

// HostInfo describes the machine for the system health endpoint.
func HostInfo() map[string]string {
	hostname, _ := os.Hostname()
	return map[string]string{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": hostname,
		"version":  osVersion(),
	}
}

func osVersion() string {
	if runtime.GOOS != "linux" {
		return runtime.GOOS
	}
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return runtime.GOOS
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
			return strings.Trim(v, "\"")
		}
	}
	return runtime.GOOS
}
