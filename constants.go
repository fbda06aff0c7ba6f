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

package storbox

const (
	// Version project
	Version = "beta"

	// DefaultMinDiskSize disks below this capacity are never pooled
	DefaultMinDiskSize = 10 << 30

	// DefaultMinFreeSpace reserve kept on each data disk by the pool placement policy
	DefaultMinFreeSpace = "20G"

	// ParityMountPoint where the parity disk is mounted
	ParityMountPoint = "/mnt/parity"
	// DataMountPrefix data disks mount as /mnt/disk1, /mnt/disk2, ...
	DataMountPrefix = "/mnt/disk"
	// PoolMountPoint the mergerfs aggregate of all data disks
	PoolMountPoint = "/mnt/storage"

	// ParityLabel filesystem label of the parity disk
	ParityLabel = "parity"
	// DataLabelPrefix filesystem label prefix of data disks, disk1, disk2, ...
	DataLabelPrefix = "disk"

	// DefaultParityBin path of the snapraid binary
	DefaultParityBin = "/usr/local/bin/snapraid"
	// DefaultParityConf path of the generated snapraid configuration
	DefaultParityConf = "/etc/snapraid.conf"
	// DefaultFstabPath the persistent mount table
	DefaultFstabPath = "/etc/fstab"

	// DefaultScrubPercent scrub intensity handed to snapraid scrub -p
	DefaultScrubPercent = 10
	// DefaultMaintenanceSchedule nightly parity maintenance, cron format
	DefaultMaintenanceSchedule = "0 2 * * *"
)
