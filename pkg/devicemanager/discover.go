package devicemanager

import (
	"path"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/storbox-io/storbox/pkg/devicemanager/types"
	"github.com/storbox-io/storbox/utils"
	"github.com/storbox-io/storbox/utils/log"
)

// DiscoverDisks enumerates all whole disks and classifies each one as
// available for pooling or excluded with a reason. Facts that cannot be read
// degrade to Unknown/empty and never abort the inventory.
func (dm *DeviceManager) DiscoverDisks() (*types.Inventory, error) {
	rows, err := dm.DiskManager.ListDevicesDetail("")
	if err != nil {
		return nil, err
	}

	systemDisk, err := dm.DiskManager.SystemDevice()
	if err != nil {
		log.Warnf("system boot device not resolved: %v", err)
		systemDisk = ""
	}

	// partition mount points roll up to their parent disk
	childMounts := map[string][]string{}
	for _, row := range rows {
		if row.ParentName != "" {
			childMounts[row.ParentName] = append(childMounts[row.ParentName], row.MountPoints...)
		}
	}

	inv := &types.Inventory{
		Available:  []*types.LocalDisk{},
		Excluded:   []*types.LocalDisk{},
		SystemDisk: systemDisk,
	}

	for _, row := range rows {
		if row.ParentName != "" || row.Type == types.PartType {
			continue
		}
		// work on a copy, the provider may hand out cached rows
		copied := *row
		disk := &copied
		mounts := append([]string(nil), row.MountPoints...)
		disk.MountPoints = append(mounts, childMounts[disk.Name]...)
		disk.Mounted = len(disk.MountPoints) > 0
		disk.DisplaySize = humanize.Bytes(disk.Size)
		if disk.MediaType == "" {
			disk.MediaType = types.MediaUnknown
		}

		if props, err := dm.DiskManager.UdevInfo(disk.Name); err != nil {
			// go on without udev info, the disk still classifies
			log.Warnf("failed to get udev info for device %q: %v", disk.Name, err)
		} else {
			disk.Model = props["ID_MODEL"]
			disk.Serial = props["ID_SERIAL_SHORT"]
			disk.Bus = props["ID_BUS"]
		}

		if reason := dm.classify(disk, systemDisk); reason != "" {
			disk.Reason = reason
			inv.Excluded = append(inv.Excluded, disk)
		} else {
			inv.Available = append(inv.Available, disk)
		}
	}

	// largest first, enumeration order breaks ties
	sort.SliceStable(inv.Available, func(i, j int) bool {
		return inv.Available[i].Size > inv.Available[j].Size
	})

	inv.Count = types.Counts{Available: len(inv.Available), Excluded: len(inv.Excluded)}
	return inv, nil
}

// classify applies the exclusion rules in fixed priority order, first match
// wins.
func (dm *DeviceManager) classify(d *types.LocalDisk, systemDisk string) string {
	base := path.Base(d.Name)
	if utils.HasPrefixInSlice(types.VirtualDevicePrefixes, base) || d.Type == types.LoopType {
		return types.ReasonVirtualDevice
	}
	if systemDisk != "" && d.Name == systemDisk {
		return types.ReasonSystemDisk
	}
	if d.Bus == types.BusUSB {
		return types.ReasonExternalUsb
	}
	if d.Size < dm.minDiskSize {
		return types.ReasonTooSmall
	}
	for _, mp := range d.MountPoints {
		for _, sys := range types.SystemMountPaths {
			if mp == sys || strings.HasPrefix(mp, sys+"/") {
				return types.ReasonSystemMount
			}
		}
	}
	return ""
}

// DiskInfo returns one disk with its partition detail.
func (dm *DeviceManager) DiskInfo(devicePath string) (*types.LocalDisk, error) {
	rows, err := dm.DiskManager.ListDevicesDetail(devicePath)
	if err != nil {
		return nil, err
	}

	var disk *types.LocalDisk
	for _, row := range rows {
		if row.ParentName == "" && row.Type != types.PartType {
			copied := *row
			copied.MountPoints = append([]string(nil), row.MountPoints...)
			disk = &copied
			break
		}
	}
	if disk == nil {
		return nil, errNoSuchDisk(devicePath)
	}

	for _, row := range rows {
		if row.ParentName != disk.Name {
			continue
		}
		mountPoint := ""
		if len(row.MountPoints) > 0 {
			mountPoint = row.MountPoints[0]
		}
		disk.Partitions = append(disk.Partitions, types.LocalPartition{
			Name:       row.Name,
			Size:       row.Size,
			Filesystem: row.Filesystem,
			MountPoint: mountPoint,
		})
		disk.MountPoints = append(disk.MountPoints, row.MountPoints...)
	}
	disk.Mounted = len(disk.MountPoints) > 0
	disk.DisplaySize = humanize.Bytes(disk.Size)
	if disk.MediaType == "" {
		disk.MediaType = types.MediaUnknown
	}

	if props, err := dm.DiskManager.UdevInfo(disk.Name); err != nil {
		log.Warnf("failed to get udev info for device %q: %v", disk.Name, err)
	} else {
		disk.Model = props["ID_MODEL"]
		disk.Serial = props["ID_SERIAL_SHORT"]
		disk.Bus = props["ID_BUS"]
	}

	disk.Health, disk.Temperature = dm.DiskManager.SmartHealth(disk.Name)

	return disk, nil
}
