/*
   Copyright @ 2023 The storbox Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package partition

import (
	"fmt"

	"github.com/anuvu/disko"
	"github.com/anuvu/disko/linux"
	"github.com/anuvu/disko/partid"

	"github.com/storbox-io/storbox/pkg/devicemanager/device"
	"github.com/storbox-io/storbox/utils/exec"
	"github.com/storbox-io/storbox/utils/log"
)

var mysys = linux.System()

// LocalPartition is the destructive disk-operations tool. Every call is
// irreversible; callers serialize access through the disk mutex.
type LocalPartition interface {
	UmountAll(device string) error
	WipeSignatures(device string) error
	ZeroStart(device string, countMiB int) error
	CreatePartitionTable(device string) error
	CreateSinglePartition(device, name string) error
	RereadPartitions(device string) error
	FormatExt4(partition, label string) error
}

type LocalPartitionImplement struct {
	Device   device.LocalDevice
	Executor exec.Executor
}

func NewLocalPartitionImplement(executor exec.Executor) *LocalPartitionImplement {
	return &LocalPartitionImplement{
		Device:   &device.LocalDeviceImplement{Executor: executor},
		Executor: executor,
	}
}

// UmountAll unmounts every mounted partition of the disk.
func (ld *LocalPartitionImplement) UmountAll(devicePath string) error {
	rows, err := ld.Device.ListDevicesDetail(devicePath)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if !row.Mounted || row.Name == "" {
			continue
		}
		if err := ld.Executor.ExecuteCommand("umount", row.Name); err != nil {
			return fmt.Errorf("umount %s: %v", row.Name, err)
		}
	}
	return nil
}

func (ld *LocalPartitionImplement) WipeSignatures(devicePath string) error {
	out, err := ld.Executor.ExecuteCommandWithCombinedOutput("wipefs", "-af", devicePath)
	if err != nil {
		log.Errorf("wipefs %s failed: %s %v", devicePath, out, err)
		return err
	}
	return nil
}

// ZeroStart overwrites the first countMiB mebibytes so stale RAID/LVM
// metadata beyond the signature blocks cannot resurface.
func (ld *LocalPartitionImplement) ZeroStart(devicePath string, countMiB int) error {
	out, err := ld.Executor.ExecuteCommandWithCombinedOutput("dd",
		"if=/dev/zero", "of="+devicePath, "bs=1M", fmt.Sprintf("count=%d", countMiB))
	if err != nil {
		log.Errorf("zeroing %s failed: %s %v", devicePath, out, err)
		return err
	}
	return nil
}

func (ld *LocalPartitionImplement) CreatePartitionTable(devicePath string) error {
	out, err := ld.Executor.ExecuteCommandWithCombinedOutput("parted", "-s", devicePath, "mklabel", "gpt")
	if err != nil {
		log.Errorf("mklabel gpt on %s failed: %s %v", devicePath, out, err)
		return err
	}
	return nil
}

// CreateSinglePartition writes one primary partition spanning the whole
// usable space of the fresh GPT.
func (ld *LocalPartitionImplement) CreateSinglePartition(devicePath, name string) error {
	disk, err := mysys.ScanDisk(devicePath)
	if err != nil {
		log.Errorf("scan disk %s failed: %v", devicePath, err)
		return err
	}

	fs := disk.FreeSpacesWithMin(1 << 20)
	if len(fs) < 1 {
		return fmt.Errorf("disk %s has no free space for a partition", devicePath)
	}

	part := disko.Partition{
		Start:  fs[0].Start,
		Last:   fs[0].Last,
		Type:   partid.LinuxFS,
		Name:   name,
		Number: 1,
	}
	if err := mysys.CreatePartition(disk, part); err != nil {
		log.Errorf("create partition on %s failed: %v", devicePath, err)
		return err
	}
	return nil
}

// RereadPartitions forces the kernel to pick up the new table and waits for
// the device nodes to settle.
func (ld *LocalPartitionImplement) RereadPartitions(devicePath string) error {
	if err := ld.Executor.ExecuteCommand("partprobe", devicePath); err != nil {
		return err
	}
	return ld.Executor.ExecuteCommand("udevadm", "settle", "--timeout=10")
}

func (ld *LocalPartitionImplement) FormatExt4(partitionPath, label string) error {
	out, err := ld.Executor.ExecuteCommandWithCombinedOutput("mkfs.ext4", "-F", "-L", label, partitionPath)
	if err != nil {
		log.Errorf("mkfs.ext4 %s failed: %s %v", partitionPath, out, err)
		return err
	}
	log.Infof("ext4 created on %s with label %s", partitionPath, label)
	return nil
}
