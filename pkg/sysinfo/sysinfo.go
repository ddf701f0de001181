// Package sysinfo reports static host facts and live resource usage.
package sysinfo

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const unknown = "Unknown"

// Info describes the host. It is collected once at startup.
type Info struct {
	Hostname  string `json:"hostname"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPU       string `json:"cpu"`
	RAM       string `json:"ram"`
	GoVersion string `json:"go_version"`
}

// Status is a point-in-time resource snapshot.
type Status struct {
	Hostname    string  `json:"hostname"`
	Uptime      float64 `json:"uptime"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`
}

// Collector gathers host data through gopsutil.
type Collector struct {
	cpuSample time.Duration
	diskPath  string

	hostInfo   func(ctx context.Context) (*host.InfoStat, error)
	cpuInfo    func(ctx context.Context) ([]cpu.InfoStat, error)
	cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	memory     func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage  func(ctx context.Context, path string) (*disk.UsageStat, error)
	uptime     func(ctx context.Context) (uint64, error)
}

// NewCollector creates a collector. cpuSample is how long Status measures
// CPU usage for; zero compares against the previous call instead.
func NewCollector(cpuSample time.Duration) *Collector {
	return &Collector{
		cpuSample:  cpuSample,
		diskPath:   "/",
		hostInfo:   host.InfoWithContext,
		cpuInfo:    cpu.InfoWithContext,
		cpuPercent: cpu.PercentWithContext,
		memory:     mem.VirtualMemoryWithContext,
		diskUsage:  disk.UsageWithContext,
		uptime:     host.UptimeWithContext,
	}
}

// Info collects static host facts. Fields that cannot be determined are
// reported as "Unknown" rather than failing the whole call.
func (c *Collector) Info(ctx context.Context) Info {
	info := Info{
		Hostname:  hostname(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPU:       unknown,
		RAM:       unknown,
		GoVersion: runtime.Version(),
	}

	if h, err := c.hostInfo(ctx); err == nil {
		info.OS = strings.TrimSpace(capitalize(h.OS) + " " + h.KernelVersion)
		if h.KernelArch != "" {
			info.Arch = h.KernelArch
		}
	}
	if cpus, err := c.cpuInfo(ctx); err == nil && len(cpus) > 0 && cpus[0].ModelName != "" {
		info.CPU = cpus[0].ModelName
	}
	if vm, err := c.memory(ctx); err == nil {
		info.RAM = FormatGB(vm.Total)
	}
	return info
}

// Status samples current resource usage.
func (c *Collector) Status(ctx context.Context) (Status, error) {
	percents, err := c.cpuPercent(ctx, c.cpuSample, false)
	if err != nil {
		return Status{}, fmt.Errorf("failed to sample cpu: %w", err)
	}
	vm, err := c.memory(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read memory: %w", err)
	}
	du, err := c.diskUsage(ctx, c.diskPath)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read disk usage: %w", err)
	}
	up, err := c.uptime(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read uptime: %w", err)
	}

	var cpuUsage float64
	if len(percents) > 0 {
		cpuUsage = percents[0]
	}
	return Status{
		Hostname:    hostname(),
		Uptime:      float64(up),
		CPUUsage:    cpuUsage,
		MemoryUsage: vm.UsedPercent,
		DiskUsage:   du.UsedPercent,
	}, nil
}

// FormatGB renders a byte count as whole gibibytes, rounded down.
func FormatGB(bytes uint64) string {
	return fmt.Sprintf("%dGB", bytes/(1<<30))
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return unknown
	}
	return name
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
