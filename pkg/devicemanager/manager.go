package devicemanager

import (
	"fmt"
	"os"
	"sort"

	"github.com/storbox-io/storbox"
	"github.com/storbox-io/storbox/pkg/configuration"
	"github.com/storbox-io/storbox/pkg/devicemanager/device"
	"github.com/storbox-io/storbox/pkg/devicemanager/partition"
	"github.com/storbox-io/storbox/pkg/devicemanager/types"
	"github.com/storbox-io/storbox/pkg/poolconfig"
	"github.com/storbox-io/storbox/pkg/progress"
	"github.com/storbox-io/storbox/utils/exec"
	"github.com/storbox-io/storbox/utils/log"
	"github.com/storbox-io/storbox/utils/mutx"
)

// DiskMutex serializes destructive provisioning runs
const DiskMutex = "DiskMutex"

type DeviceManager struct {
	// The implementation of executing a console command
	Executor exec.Executor
	// all destructive work on local disks needs this lock
	Mutex *mutx.GlobalLocks
	// best-effort device facts
	DiskManager device.LocalDevice
	// destructive disk operations
	Partition partition.LocalPartition
	// per-disk preparation pipeline
	Preparer Preparer
	// persistent configuration commits
	Writer poolconfig.Writer

	minDiskSize uint64
	mkdirAll    func(path string) error
}

func NewDeviceManager(mutex *mutx.GlobalLocks) *DeviceManager {
	executor := &exec.CommandExecutor{}
	part := partition.NewLocalPartitionImplement(executor)
	return &DeviceManager{
		Executor:    executor,
		Mutex:       mutex,
		DiskManager: &device.LocalDeviceImplement{Executor: executor},
		Partition:   part,
		Preparer:    &DiskPreparer{Partition: part},
		Writer: &poolconfig.HostWriter{
			FstabPath:      configuration.FstabPath(),
			ParityConfPath: configuration.ParityConf(),
		},
		minDiskSize: configuration.MinDiskSize(),
	}
}

// SetupAutomatic picks the largest disk as parity, orders the rest by
// capacity descending as data disks, and provisions them.
func (dm *DeviceManager) SetupAutomatic(diskList []string, events progress.Sink) (*types.ProvisioningPlan, error) {
	if len(diskList) < 2 {
		return nil, ErrInsufficientDisks
	}

	sorted := make([]string, len(diskList))
	copy(sorted, diskList)
	sizes := map[string]uint64{}
	for _, d := range sorted {
		size, err := dm.diskSize(d)
		if err != nil {
			return nil, err
		}
		sizes[d] = size
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sizes[sorted[i]] > sizes[sorted[j]]
	})

	return dm.SetupManual(sorted[0], sorted[1:], events)
}

// SetupManual destructively provisions the given disks into a parity
// protected pool: prepare the parity disk, prepare each data disk, then
// commit mount entries, the pool entry and the parity configuration. One
// step event is emitted before each unit with a strictly increasing run
// percentage ending at 100. There is no rollback; a failing step leaves the
// host partially configured and the originating error carries the context.
func (dm *DeviceManager) SetupManual(parityDisk string, dataDisks []string, events progress.Sink) (*types.ProvisioningPlan, error) {
	if 1+len(dataDisks) < 2 {
		return nil, ErrInsufficientDisks
	}

	if !dm.Mutex.TryAcquire(DiskMutex) {
		log.Info("wait other task release mutex, please retry...")
		return nil, ErrSetupBusy
	}
	defer dm.Mutex.Release(DiskMutex)

	totalSteps := 1 + len(dataDisks) + 3
	completedSteps := 0
	step := func(kind, message string) {
		completedSteps++
		pct := float64(completedSteps) / float64(totalSteps) * 100
		events.Publish(progress.NewPercent(kind, fmt.Sprintf("%s (%d/%d)", message, completedSteps, totalSteps), pct))
	}

	step(progress.KindParity, fmt.Sprintf("Preparing parity disk %s", parityDisk))
	if err := dm.Preparer.Prepare(parityDisk, storbox.ParityLabel, events); err != nil {
		return nil, err
	}

	plan := &types.ProvisioningPlan{ParityDisk: parityDisk}
	for idx, disk := range dataDisks {
		number := idx + 1
		label := fmt.Sprintf("%s%d", storbox.DataLabelPrefix, number)
		step(progress.KindData, fmt.Sprintf("Preparing data disk %d %s", number, disk))
		if err := dm.Preparer.Prepare(disk, label, events); err != nil {
			return nil, err
		}
		plan.DataDisks = append(plan.DataDisks, types.DataDisk{Device: disk, Label: label, Number: number})
	}

	step(progress.KindFstab, "Writing mount entries")
	if err := dm.commitMountEntries(plan); err != nil {
		return nil, err
	}

	step(progress.KindPool, "Configuring storage pool")
	if err := dm.commitPoolEntry(); err != nil {
		return nil, err
	}

	step(progress.KindConfig, "Writing parity configuration")
	if err := dm.commitParityConf(plan); err != nil {
		return nil, err
	}

	log.Infof("provisioned pool: parity %s, %d data disks", plan.ParityDisk, len(plan.DataDisks))
	return plan, nil
}

func (dm *DeviceManager) diskSize(devicePath string) (uint64, error) {
	rows, err := dm.DiskManager.ListDevicesDetail(devicePath)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if row.ParentName == "" && row.Type != types.PartType {
			return row.Size, nil
		}
	}
	return 0, errNoSuchDisk(devicePath)
}

func (dm *DeviceManager) commitMountEntries(plan *types.ProvisioningPlan) error {
	mountPoints := []string{storbox.ParityMountPoint, storbox.PoolMountPoint}
	for _, d := range plan.DataDisks {
		mountPoints = append(mountPoints, poolconfig.DataMountPoint(d.Number))
	}
	mkdir := dm.mkdirAll
	if mkdir == nil {
		mkdir = func(p string) error { return os.MkdirAll(p, 0755) }
	}
	for _, mp := range mountPoints {
		if err := mkdir(mp); err != nil {
			return &poolconfig.ConfigWriteFailed{Resource: mp, Err: err}
		}
	}

	uuids := map[string]string{}
	for _, d := range append([]types.DataDisk{{Device: plan.ParityDisk}}, plan.DataDisks...) {
		uuid, err := dm.DiskManager.DiskUUID(d.Device)
		if err != nil {
			return fmt.Errorf("resolve UUID of %s: %v", d.Device, err)
		}
		uuids[d.Device] = uuid
	}

	entries := poolconfig.MountEntries(*plan, uuids)
	if err := dm.Writer.ReplaceFstabSection("mounts", entries); err != nil {
		return err
	}
	return dm.Executor.ExecuteCommand("mount", "-a")
}

func (dm *DeviceManager) commitPoolEntry() error {
	entry := poolconfig.PoolEntry(configuration.MinFreeSpace())
	if err := dm.Writer.ReplaceFstabSection("pool", entry); err != nil {
		return err
	}
	return dm.Executor.ExecuteCommand("mount", "-a")
}

func (dm *DeviceManager) commitParityConf(plan *types.ProvisioningPlan) error {
	return dm.Writer.WriteParityConf(poolconfig.ParityConf(*plan))
}

// PoolUsage reports aggregate usage of the mergerfs mount.
func (dm *DeviceManager) PoolUsage() (*types.DiskUsage, error) {
	return dm.DiskManager.DiskUsage(storbox.PoolMountPoint)
}

// DataDiskUsage reports usage per mounted data disk, keyed by mount name.
func (dm *DeviceManager) DataDiskUsage() (map[string]*types.DiskUsage, error) {
	rows, err := dm.DiskManager.ListDevicesDetail("")
	if err != nil {
		return nil, err
	}
	usages := map[string]*types.DiskUsage{}
	for _, row := range rows {
		for _, mp := range row.MountPoints {
			if !isDataMount(mp) {
				continue
			}
			u, err := dm.DiskManager.DiskUsage(mp)
			if err != nil {
				log.Warnf("usage of %s unreadable: %v", mp, err)
				continue
			}
			usages[mp[len("/mnt/"):]] = u
		}
	}
	return usages, nil
}

func isDataMount(mountPoint string) bool {
	if len(mountPoint) <= len(storbox.DataMountPrefix) {
		return false
	}
	return mountPoint[:len(storbox.DataMountPrefix)] == storbox.DataMountPrefix
}

// Health flags disks failing their SMART overall-health test and data disks
// running out of space.
func (dm *DeviceManager) Health() (string, []string) {
	overall := "healthy"
	var issues []string

	if rows, err := dm.DiskManager.ListDevicesDetail(""); err == nil {
		for _, row := range rows {
			if row.ParentName != "" || row.Type != types.DiskType {
				continue
			}
			if health, _ := dm.DiskManager.SmartHealth(row.Name); health == types.SmartFailed {
				issues = append(issues, fmt.Sprintf("%s failed its SMART overall-health test", row.Name))
				overall = "warning"
			}
		}
	}

	usages, err := dm.DataDiskUsage()
	if err != nil {
		return "unknown", append(issues, err.Error())
	}
	for name, u := range usages {
		if u.UsedPercent > 90 {
			issues = append(issues, fmt.Sprintf("%s is %d%% full", name, u.UsedPercent))
			overall = "warning"
		}
	}
	return overall, issues
}
