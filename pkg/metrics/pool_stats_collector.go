package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/storbox-io/storbox/pkg/devicemanager"
)

const poolSubSystem string = "pool_stats"

var (
	poolStatLabels     = []string{"mount"}
	poolTotalBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, poolSubSystem, "capacity_bytes_total"),
		"The capacity of the mount in bytes.",
		poolStatLabels,
		nil,
	)
	poolUsedBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, poolSubSystem, "capacity_bytes_used"),
		"The used bytes of the mount.",
		poolStatLabels,
		nil,
	)
	poolUsedPercentDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, poolSubSystem, "used_percent"),
		"The used percentage of the mount.",
		poolStatLabels,
		nil,
	)
)

type poolStatsCollector struct {
	descs []typedFactorDesc
	dm    *devicemanager.DeviceManager
}

func newPoolStatsCollector(dm *devicemanager.DeviceManager) (Collector, error) {
	return &poolStatsCollector{
		descs: []typedFactorDesc{
			{desc: poolTotalBytesDesc, valueType: prometheus.GaugeValue},
			{desc: poolUsedBytesDesc, valueType: prometheus.GaugeValue},
			{desc: poolUsedPercentDesc, valueType: prometheus.GaugeValue},
		},
		dm: dm,
	}, nil
}

func (p *poolStatsCollector) Name() string {
	return "pool_stats"
}

func (p *poolStatsCollector) Update(ch chan<- prometheus.Metric) error {
	pool, err := p.dm.PoolUsage()
	if err != nil {
		return err
	}
	mounts := map[string][]float64{}
	if pool.Mounted {
		mounts["storage"] = []float64{float64(pool.Total), float64(pool.Used), float64(pool.UsedPercent)}
	}

	usages, err := p.dm.DataDiskUsage()
	if err != nil {
		return err
	}
	for name, u := range usages {
		mounts[name] = []float64{float64(u.Total), float64(u.Used), float64(u.UsedPercent)}
	}

	if len(mounts) == 0 {
		return ErrNoData
	}

	for mount, values := range mounts {
		// need keep order with desc
		for i, val := range values {
			if i >= len(p.descs) {
				break
			}
			ch <- p.descs[i].mustNewConstMetric(val, mount)
		}
	}
	return nil
}
