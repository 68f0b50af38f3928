package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemCollector exports host-level gauges collected on scrape
type systemCollector struct {
	dataDir string

	cpuUsage    *prometheus.Desc
	memUsage    *prometheus.Desc
	memUsed     *prometheus.Desc
	memTotal    *prometheus.Desc
	diskUsage   *prometheus.Desc
	diskFree    *prometheus.Desc
}

func newSystemCollector(dataDir string) prometheus.Collector {
	if dataDir == "" {
		dataDir = "/"
	}
	return &systemCollector{
		dataDir: dataDir,
		cpuUsage: prometheus.NewDesc(
			"candyshare_system_cpu_usage_percent",
			"Host CPU usage percentage", nil, nil),
		memUsage: prometheus.NewDesc(
			"candyshare_system_memory_usage_percent",
			"Host memory usage percentage", nil, nil),
		memUsed: prometheus.NewDesc(
			"candyshare_system_memory_used_bytes",
			"Host memory used in bytes", nil, nil),
		memTotal: prometheus.NewDesc(
			"candyshare_system_memory_total_bytes",
			"Host memory total in bytes", nil, nil),
		diskUsage: prometheus.NewDesc(
			"candyshare_system_disk_usage_percent",
			"Disk usage percentage of the data directory", nil, nil),
		diskFree: prometheus.NewDesc(
			"candyshare_system_disk_free_bytes",
			"Free disk bytes on the data directory", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *systemCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuUsage
	ch <- c.memUsage
	ch <- c.memUsed
	ch <- c.memTotal
	ch <- c.diskUsage
	ch <- c.diskFree
}

// Collect implements prometheus.Collector. Failures on individual probes
// just omit that gauge from the scrape.
func (c *systemCollector) Collect(ch chan<- prometheus.Metric) {
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, percentages[0])
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.memUsage, prometheus.GaugeValue, memInfo.UsedPercent)
		ch <- prometheus.MustNewConstMetric(c.memUsed, prometheus.GaugeValue, float64(memInfo.Used))
		ch <- prometheus.MustNewConstMetric(c.memTotal, prometheus.GaugeValue, float64(memInfo.Total))
	}

	if diskInfo, err := disk.Usage(c.dataDir); err == nil {
		ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, diskInfo.UsedPercent)
		ch <- prometheus.MustNewConstMetric(c.diskFree, prometheus.GaugeValue, float64(diskInfo.Free))
	}
}
