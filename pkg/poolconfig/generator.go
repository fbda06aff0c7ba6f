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

// Package poolconfig generates the persistent pool configuration: fstab
// mount entries, the mergerfs pool entry and the snapraid configuration.
// Generation is pure, everything is a deterministic function of the
// provisioning plan; committing the artifacts to the host is the writer's
// job.
package poolconfig

import (
	"fmt"
	"strings"

	"github.com/storbox-io/storbox"
	"github.com/storbox-io/storbox/pkg/devicemanager/types"
)

const (
	mountOptions = "ext4  defaults,noatime,nofail  0  2"

	parityFile  = "snapraid.parity"
	contentRoot = "/var/snapraid.content"
	contentFile = ".snapraid.content"

	blockSize = 256
	autosave  = 500
)

// temp/partial-transfer markers, platform metadata, recycle folders
var exclusions = []string{
	"*.unrecoverable",
	"/tmp/",
	"/lost+found/",
	"*.!sync",
	".AppleDouble",
	"._AppleDouble",
	".DS_Store",
	".Thumbs.db",
	".fseventsd",
	".Spotlight-V100",
	".TemporaryItems",
	".Trashes",
}

// DataMountPoint where data disk number n is mounted.
func DataMountPoint(n int) string {
	return fmt.Sprintf("%s%d", storbox.DataMountPrefix, n)
}

// MountEntries renders one fstab line per disk of the plan, parity first,
// keyed by the persistent filesystem UUIDs.
func MountEntries(plan types.ProvisioningPlan, uuids map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "UUID=%s  %s  %s\n", uuids[plan.ParityDisk], storbox.ParityMountPoint, mountOptions)
	for _, d := range plan.DataDisks {
		fmt.Fprintf(&b, "UUID=%s  %s  %s\n", uuids[d.Device], DataMountPoint(d.Number), mountOptions)
	}
	return b.String()
}

// PoolEntry renders the mergerfs fstab line aggregating all data disk mounts
// under one tree. New files land on the disk with the most free space, and
// minFree is kept unused on every member.
func PoolEntry(minFree string) string {
	return fmt.Sprintf("%s* %s fuse.mergerfs defaults,allow_other,use_ino,cache.files=partial,dropcacheonclose=true,category.create=mfs,minfreespace=%s,fsname=mergerfs 0 0\n",
		storbox.DataMountPrefix, storbox.PoolMountPoint, minFree)
}

// ParityConf renders the whole snapraid configuration for the plan: the
// parity target, one content index on the root filesystem plus one redundant
// copy per data disk, one data source line per disk, the fixed exclusion
// list, and the fixed block size and autosave threshold.
func ParityConf(plan types.ProvisioningPlan) string {
	var b strings.Builder
	b.WriteString("# SnapRAID configuration - generated by storbox\n\n")
	fmt.Fprintf(&b, "parity %s/%s\n", storbox.ParityMountPoint, parityFile)

	b.WriteString("\n")
	fmt.Fprintf(&b, "content %s\n", contentRoot)
	for _, d := range plan.DataDisks {
		fmt.Fprintf(&b, "content %s/%s\n", DataMountPoint(d.Number), contentFile)
	}

	b.WriteString("\n")
	for _, d := range plan.DataDisks {
		fmt.Fprintf(&b, "data d%d %s\n", d.Number, DataMountPoint(d.Number))
	}

	b.WriteString("\n# Exclusions\n")
	for _, e := range exclusions {
		fmt.Fprintf(&b, "exclude %s\n", e)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "block_size %d\n", blockSize)
	fmt.Fprintf(&b, "autosave %d\n", autosave)
	return b.String()
}
