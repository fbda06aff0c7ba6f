package devicemanager

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientDisks a pool needs one parity disk and at least one data disk
	ErrInsufficientDisks = errors.New("at least 2 disks are required")

	// ErrSetupBusy another destructive provisioning run holds the disk mutex
	ErrSetupBusy = errors.New("another provisioning operation is in progress")
)

func errNoSuchDisk(device string) error {
	return fmt.Errorf("no such disk: %s", device)
}

// PreparationFailed reports which destructive stage broke on which disk.
// Stages already applied are not rolled back.
type PreparationFailed struct {
	Stage string
	Disk  string
	Err   error
}

func (e *PreparationFailed) Error() string {
	return fmt.Sprintf("preparation of %s failed at stage %s: %v", e.Disk, e.Stage, e.Err)
}

func (e *PreparationFailed) Unwrap() error {
	return e.Err
}
