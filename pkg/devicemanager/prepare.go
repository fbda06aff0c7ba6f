package devicemanager

import (
	"fmt"

	"github.com/storbox-io/storbox/pkg/devicemanager/device"
	"github.com/storbox-io/storbox/pkg/devicemanager/partition"
	"github.com/storbox-io/storbox/pkg/progress"
)

// Stage names carried by PreparationFailed.
const (
	StageUnmount        = "unmount"
	StageWipe           = "wipe"
	StagePartitionTable = "partition-table"
	StagePartition      = "partition"
	StageReread         = "reread"
	StageFormat         = "format"
)

// zeroedMiB of leading disk space overwritten during the wipe stage
const zeroedMiB = 100

// Preparer runs the destructive per-disk sequence. Swappable so the
// orchestrator can be tested without touching hardware.
type Preparer interface {
	Prepare(disk, label string, events progress.Sink) error
}

type DiskPreparer struct {
	Partition partition.LocalPartition
}

// Prepare turns one raw disk into a single labelled ext4 partition:
// unmount, wipe signatures, zero the first 100 MiB, fresh GPT, one primary
// partition, kernel reread, mkfs. Stage events carry cumulative percentages
// 0,20,40,60,80,100 for this disk. On failure the remaining stages are
// skipped and nothing is rolled back.
func (p *DiskPreparer) Prepare(disk, label string, events progress.Sink) error {
	events.Publish(progress.NewPercent(progress.KindPrepare, fmt.Sprintf("preparing %s", disk), 0))
	if err := p.Partition.UmountAll(disk); err != nil {
		return &PreparationFailed{Stage: StageUnmount, Disk: disk, Err: err}
	}

	events.Publish(progress.NewPercent(progress.KindPrepare, "wiping old data", 20))
	if err := p.Partition.WipeSignatures(disk); err != nil {
		return &PreparationFailed{Stage: StageWipe, Disk: disk, Err: err}
	}
	if err := p.Partition.ZeroStart(disk, zeroedMiB); err != nil {
		return &PreparationFailed{Stage: StageWipe, Disk: disk, Err: err}
	}

	events.Publish(progress.NewPercent(progress.KindPrepare, "creating partition table", 40))
	if err := p.Partition.CreatePartitionTable(disk); err != nil {
		return &PreparationFailed{Stage: StagePartitionTable, Disk: disk, Err: err}
	}

	events.Publish(progress.NewPercent(progress.KindPrepare, "creating partition", 60))
	if err := p.Partition.CreateSinglePartition(disk, label); err != nil {
		return &PreparationFailed{Stage: StagePartition, Disk: disk, Err: err}
	}
	if err := p.Partition.RereadPartitions(disk); err != nil {
		return &PreparationFailed{Stage: StageReread, Disk: disk, Err: err}
	}

	events.Publish(progress.NewPercent(progress.KindPrepare, "formatting filesystem", 80))
	if err := p.Partition.FormatExt4(device.PartitionPath(disk), label); err != nil {
		return &PreparationFailed{Stage: StageFormat, Disk: disk, Err: err}
	}

	events.Publish(progress.NewPercent(progress.KindPrepare, fmt.Sprintf("prepared %s", disk), 100))
	return nil
}
