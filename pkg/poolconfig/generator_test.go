package poolconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storbox-io/storbox/pkg/devicemanager/types"
)

func testPlan() types.ProvisioningPlan {
	return types.ProvisioningPlan{
		ParityDisk: "/dev/sdb",
		DataDisks: []types.DataDisk{
			{Device: "/dev/sdc", Label: "disk1", Number: 1},
			{Device: "/dev/sda", Label: "disk2", Number: 2},
		},
	}
}

func TestDataMountPoint(t *testing.T) {
	a := assert.New(t)
	a.Equal("/mnt/disk1", DataMountPoint(1))
	a.Equal("/mnt/disk12", DataMountPoint(12))
}

func TestMountEntries(t *testing.T) {
	a := assert.New(t)

	uuids := map[string]string{
		"/dev/sdb": "uuid-parity",
		"/dev/sdc": "uuid-data1",
		"/dev/sda": "uuid-data2",
	}
	entries := MountEntries(testPlan(), uuids)

	lines := strings.Split(strings.TrimSpace(entries), "\n")
	a.Len(lines, 3)

	// parity first, data disks in plan order
	a.Equal("UUID=uuid-parity  /mnt/parity  ext4  defaults,noatime,nofail  0  2", lines[0])
	a.Contains(lines[1], "UUID=uuid-data1  /mnt/disk1")
	a.Contains(lines[2], "UUID=uuid-data2  /mnt/disk2")

	for _, line := range lines {
		a.Contains(line, "nofail")
	}
}

func TestPoolEntry(t *testing.T) {
	a := assert.New(t)

	entry := PoolEntry("20G")
	a.Contains(entry, "/mnt/disk* /mnt/storage fuse.mergerfs")
	a.Contains(entry, "minfreespace=20G")
	a.Contains(entry, "category.create=mfs")
}

func TestParityConf(t *testing.T) {
	a := assert.New(t)

	conf := ParityConf(testPlan())

	a.Contains(conf, "parity /mnt/parity/snapraid.parity\n")
	a.Contains(conf, "content /var/snapraid.content\n")
	a.Contains(conf, "content /mnt/disk1/.snapraid.content\n")
	a.Contains(conf, "content /mnt/disk2/.snapraid.content\n")
	a.Contains(conf, "data d1 /mnt/disk1\n")
	a.Contains(conf, "data d2 /mnt/disk2\n")
	a.Contains(conf, "exclude /lost+found/\n")
	a.Contains(conf, "exclude .DS_Store\n")
	a.Contains(conf, "block_size 256\n")
	a.Contains(conf, "autosave 500\n")
}

func TestParityConfDeterministic(t *testing.T) {
	a := assert.New(t)
	a.Equal(ParityConf(testPlan()), ParityConf(testPlan()))
}
