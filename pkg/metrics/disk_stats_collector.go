package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs/blockdevice"

	"github.com/storbox-io/storbox/pkg/devicemanager/types"
	"github.com/storbox-io/storbox/utils"
)

const diskSubSystem string = "disk_stats"

var (
	diskStatLabels = []string{"device"}
	readsDesc      = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, diskSubSystem, "reads_completed_total"),
		"The total number of reads completed successfully.",
		diskStatLabels,
		nil,
	)
	writesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, diskSubSystem, "writes_completed_total"),
		"The total number of writes completed successfully.",
		diskStatLabels,
		nil,
	)
	readSectorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, diskSubSystem, "read_sectors_total"),
		"The total number of sectors read successfully.",
		diskStatLabels,
		nil,
	)
	writeSectorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, diskSubSystem, "written_sectors_total"),
		"The total number of sectors written successfully.",
		diskStatLabels,
		nil,
	)
)

type diskStatsCollector struct {
	descs []typedFactorDesc
	fs    blockdevice.FS
}

func newDiskStatsCollector() (Collector, error) {
	fs, err := blockdevice.NewFS("/proc", "/sys")
	if err != nil {
		return nil, err
	}
	return &diskStatsCollector{
		descs: []typedFactorDesc{
			{desc: readsDesc, valueType: prometheus.CounterValue},
			{desc: writesDesc, valueType: prometheus.CounterValue},
			{desc: readSectorsDesc, valueType: prometheus.CounterValue},
			{desc: writeSectorsDesc, valueType: prometheus.CounterValue},
		},
		fs: fs,
	}, nil
}

func (d *diskStatsCollector) Name() string {
	return "disk_stats"
}

func (d *diskStatsCollector) Update(ch chan<- prometheus.Metric) error {
	stats, err := d.fs.ProcDiskstats()
	if err != nil {
		return err
	}
	for _, s := range stats {
		if utils.HasPrefixInSlice(types.VirtualDevicePrefixes, s.DeviceName) {
			continue
		}
		// need keep order with desc
		for i, val := range []float64{
			float64(s.ReadIOs),
			float64(s.WriteIOs),
			float64(s.ReadSectors),
			float64(s.WriteSectors),
		} {
			if i >= len(d.descs) {
				break
			}
			ch <- d.descs[i].mustNewConstMetric(val, s.DeviceName)
		}
	}
	return nil
}
