package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsScan    int64
	errorsOI      int64
	warnsScan     int64
	warnsOI       int64
	chainScans    int64
	oiPages       int64
	alertsEmitted int64
	clusterEvents int64
	s3Writes      int64
	channels      sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "oi") {
		atomic.AddInt64(&warnsOI, 1)
	} else if strings.Contains(component, "scan") {
		atomic.AddInt64(&warnsScan, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "oi") {
		atomic.AddInt64(&errorsOI, 1)
	} else if strings.Contains(component, "scan") {
		atomic.AddInt64(&errorsScan, 1)
	}
}

// IncrementChainScan counts one completed chain scan of roughly size bytes.
func IncrementChainScan(size int) {
	atomic.AddInt64(&chainScans, 1)
	recordChannel("chain_scan", size)
}

// IncrementOIPage counts one retrieved open-interest page.
func IncrementOIPage(size int) {
	atomic.AddInt64(&oiPages, 1)
	recordChannel("oi_page", size)
}

// IncrementAlert counts one emitted unusual-activity record.
func IncrementAlert() {
	atomic.AddInt64(&alertsEmitted, 1)
}

// IncrementClusterEvent counts one emitted cluster event.
func IncrementClusterEvent() {
	atomic.AddInt64(&clusterEvents, 1)
}

// IncrementS3Write counts one persisted record batch of size bytes.
func IncrementS3Write(size int64) {
	atomic.AddInt64(&s3Writes, 1)
	recordChannel("s3_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_scan":    atomic.LoadInt64(&errorsScan),
		"errors_oi":      atomic.LoadInt64(&errorsOI),
		"warns_scan":     atomic.LoadInt64(&warnsScan),
		"warns_oi":       atomic.LoadInt64(&warnsOI),
		"chain_scans":    atomic.LoadInt64(&chainScans),
		"oi_pages":       atomic.LoadInt64(&oiPages),
		"alerts":         atomic.LoadInt64(&alertsEmitted),
		"cluster_events": atomic.LoadInt64(&clusterEvents),
		"s3_writes":      atomic.LoadInt64(&s3Writes),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memStats.Used) / 1024 / 1024,
		"disk_mb":        int64(diskStats.Used) / 1024 / 1024,
		"channels":       channelData,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsScan"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_scan"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsOI"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_oi"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsScan"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_scan"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsOI"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_oi"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ChainScans"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["chain_scans"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("OIPages"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["oi_pages"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Alerts"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["alerts"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ClusterEvents"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["cluster_events"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("S3Writes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["s3_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
