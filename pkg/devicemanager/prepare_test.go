package devicemanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storbox-io/storbox/pkg/progress"
)

// fakePartition records the destructive calls instead of running them.
type fakePartition struct {
	calls   []string
	failOn  string
	failErr error
}

func (f *fakePartition) call(name string) error {
	f.calls = append(f.calls, name)
	if name == f.failOn {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New(name + " failed")
	}
	return nil
}

func (f *fakePartition) UmountAll(devicePath string) error { return f.call("umount") }
func (f *fakePartition) WipeSignatures(devicePath string) error {
	return f.call("wipefs")
}
func (f *fakePartition) ZeroStart(devicePath string, countMiB int) error { return f.call("dd") }
func (f *fakePartition) CreatePartitionTable(devicePath string) error {
	return f.call("mklabel")
}
func (f *fakePartition) CreateSinglePartition(devicePath, name string) error {
	return f.call("mkpart")
}
func (f *fakePartition) RereadPartitions(devicePath string) error { return f.call("partprobe") }
func (f *fakePartition) FormatExt4(partitionPath, label string) error {
	return f.call("mkfs")
}

func collectEvents(ch chan progress.Event) []progress.Event {
	close(ch)
	out := []progress.Event{}
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestPrepareStageOrderAndPercentages(t *testing.T) {
	a := assert.New(t)

	part := &fakePartition{}
	p := &DiskPreparer{Partition: part}
	ch := make(chan progress.Event, 16)

	err := p.Prepare("/dev/sdb", "disk1", ch)
	a.NoError(err)
	a.Equal([]string{"umount", "wipefs", "dd", "mklabel", "mkpart", "partprobe", "mkfs"}, part.calls)

	events := collectEvents(ch)
	a.Len(events, 6)
	want := []float64{0, 20, 40, 60, 80, 100}
	for i, e := range events {
		a.Equal(progress.KindPrepare, e.Kind)
		if a.NotNil(e.Percent) {
			a.Equal(want[i], *e.Percent)
		}
	}
}

func TestPrepareAbortsOnFailure(t *testing.T) {
	a := assert.New(t)

	part := &fakePartition{failOn: "mklabel"}
	p := &DiskPreparer{Partition: part}
	ch := make(chan progress.Event, 16)

	err := p.Prepare("/dev/sdb", "disk1", ch)
	a.Error(err)

	var failed *PreparationFailed
	a.ErrorAs(err, &failed)
	a.Equal(StagePartitionTable, failed.Stage)
	a.Equal("/dev/sdb", failed.Disk)

	// nothing after the failing stage runs, there is no rollback either
	a.Equal([]string{"umount", "wipefs", "dd", "mklabel"}, part.calls)

	events := collectEvents(ch)
	last := events[len(events)-1]
	a.Equal(40.0, *last.Percent)
}

func TestPrepareWipeFailureCarriesStage(t *testing.T) {
	a := assert.New(t)

	part := &fakePartition{failOn: "dd"}
	p := &DiskPreparer{Partition: part}

	err := p.Prepare("/dev/sdb", "parity", nil)
	var failed *PreparationFailed
	a.ErrorAs(err, &failed)
	a.Equal(StageWipe, failed.Stage)
}
