package poolconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceFstabSectionAppends(t *testing.T) {
	a := assert.New(t)

	fstab := filepath.Join(t.TempDir(), "fstab")
	existing := "UUID=root-uuid  /  ext4  defaults  0  1\n"
	a.NoError(os.WriteFile(fstab, []byte(existing), 0644))

	w := &HostWriter{FstabPath: fstab}
	a.NoError(w.ReplaceFstabSection("mounts", "UUID=x  /mnt/parity  ext4  defaults  0  2\n"))

	raw, err := os.ReadFile(fstab)
	a.NoError(err)
	content := string(raw)

	// pre-existing entries survive
	a.Contains(content, "UUID=root-uuid")
	a.Contains(content, "# BEGIN storbox mounts")
	a.Contains(content, "UUID=x  /mnt/parity")
	a.Contains(content, "# END storbox mounts")
}

func TestReplaceFstabSectionIsIdempotent(t *testing.T) {
	a := assert.New(t)

	fstab := filepath.Join(t.TempDir(), "fstab")
	w := &HostWriter{FstabPath: fstab}

	a.NoError(w.ReplaceFstabSection("mounts", "UUID=old  /mnt/parity  ext4  defaults  0  2\n"))
	a.NoError(w.ReplaceFstabSection("mounts", "UUID=new  /mnt/parity  ext4  defaults  0  2\n"))

	raw, err := os.ReadFile(fstab)
	a.NoError(err)
	content := string(raw)

	// re-provisioning replaces the managed block instead of appending
	a.NotContains(content, "UUID=old")
	a.Contains(content, "UUID=new")
	a.Equal(1, strings.Count(content, "# BEGIN storbox mounts"))
	a.Equal(1, strings.Count(content, "# END storbox mounts"))
}

func TestReplaceFstabSectionsAreIndependent(t *testing.T) {
	a := assert.New(t)

	fstab := filepath.Join(t.TempDir(), "fstab")
	w := &HostWriter{FstabPath: fstab}

	a.NoError(w.ReplaceFstabSection("mounts", "UUID=m  /mnt/disk1  ext4  defaults  0  2\n"))
	a.NoError(w.ReplaceFstabSection("pool", "/mnt/disk* /mnt/storage fuse.mergerfs defaults 0 0\n"))
	a.NoError(w.ReplaceFstabSection("mounts", "UUID=m2  /mnt/disk1  ext4  defaults  0  2\n"))

	raw, err := os.ReadFile(fstab)
	a.NoError(err)
	content := string(raw)

	a.Contains(content, "fuse.mergerfs")
	a.Contains(content, "UUID=m2")
	a.NotContains(content, "UUID=m ")
}

func TestReplaceFstabSectionMissingFile(t *testing.T) {
	a := assert.New(t)

	fstab := filepath.Join(t.TempDir(), "fstab")
	w := &HostWriter{FstabPath: fstab}

	a.NoError(w.ReplaceFstabSection("pool", "entry\n"))
	raw, err := os.ReadFile(fstab)
	a.NoError(err)
	a.Contains(string(raw), "entry")
}

func TestWriteParityConf(t *testing.T) {
	a := assert.New(t)

	conf := filepath.Join(t.TempDir(), "snapraid.conf")
	w := &HostWriter{ParityConfPath: conf}

	a.NoError(w.WriteParityConf("parity /mnt/parity/snapraid.parity\n"))
	a.NoError(w.WriteParityConf("parity /mnt/parity/snapraid.parity\nblock_size 256\n"))

	raw, err := os.ReadFile(conf)
	a.NoError(err)
	a.Contains(string(raw), "block_size 256")
	a.Equal(1, strings.Count(string(raw), "parity /mnt/parity"))
}

func TestWriteParityConfUnwritable(t *testing.T) {
	a := assert.New(t)

	w := &HostWriter{ParityConfPath: filepath.Join(t.TempDir(), "missing", "snapraid.conf")}
	err := w.WriteParityConf("content")
	a.Error(err)

	var failed *ConfigWriteFailed
	a.ErrorAs(err, &failed)
}
