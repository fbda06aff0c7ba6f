package types

const (
	// DiskType is a whole-disk row reported by lsblk
	DiskType = "disk"
	// PartType is a partition row
	PartType = "part"
	// LoopType is a loopback row
	LoopType = "loop"

	// MediaHDD rotational media
	MediaHDD = "HDD"
	// MediaSSD solid state media
	MediaSSD = "SSD"
	// MediaUnknown rotational flag unreadable
	MediaUnknown = "Unknown"

	// BusUSB value of ID_BUS for external usb disks
	BusUSB = "usb"
)

// Exclusion reasons, in rule priority order. A disk matching several rules
// reports only the first one.
const (
	ReasonVirtualDevice = "virtual device"
	ReasonSystemDisk    = "system disk"
	ReasonExternalUsb   = "external usb disk"
	ReasonTooSmall      = "too small"
	ReasonSystemMount   = "mounted on system path"
)

// SystemMountPaths disks mounted under these are never touched
var SystemMountPaths = []string{"/boot", "/home", "/var", "/usr"}

// VirtualDevicePrefixes kernel names of devices that are not real disks
var VirtualDevicePrefixes = []string{"loop", "zram", "ram"}

// SMART overall-health verdicts. Unknown covers missing tooling and drives
// that do not answer SMART queries.
const (
	SmartPassed  = "PASSED"
	SmartFailed  = "FAILED"
	SmartUnknown = "Unknown"
)

// TemperatureUnknown reported when SMART exposes no temperature attribute
const TemperatureUnknown = "N/A"

type LocalDisk struct {
	// Name is the device path, e.g. /dev/sda
	Name string `json:"name"`
	// Size is the device capacity in bytes
	Size uint64 `json:"size"`
	// human readable capacity for display
	DisplaySize string `json:"displaySize"`
	// MediaType HDD, SSD or Unknown
	MediaType string `json:"mediaType"`
	// device model string, best effort
	Model string `json:"model"`
	// serial number, may be empty
	Serial string `json:"serial"`
	// Bus the disk is attached on, e.g. ata, usb, nvme
	Bus string `json:"bus"`
	// Type is the lsblk row type
	Type string `json:"type"`
	// Filesystem currently on the device
	Filesystem string `json:"filesystem"`
	// mount points of the disk and its partitions
	MountPoints []string `json:"mountPoints,omitempty"`
	// Mounted is true if the disk or any of its partitions is mounted
	Mounted bool `json:"mounted"`
	// parent device of a partition row, empty for whole disks
	ParentName string `json:"parentName,omitempty"`
	// SMART overall-health verdict, filled only by per-disk queries
	Health string `json:"health,omitempty"`
	// drive temperature reported by SMART, e.g. "34°C"
	Temperature string `json:"temperature,omitempty"`
	// Reason the disk was excluded, empty for available disks
	Reason string `json:"reason,omitempty"`
	// Partitions detail, filled only by per-disk queries
	Partitions []LocalPartition `json:"partitions,omitempty"`
}

type LocalPartition struct {
	Name       string `json:"name"`
	Size       uint64 `json:"size"`
	Filesystem string `json:"fstype"`
	MountPoint string `json:"mountpoint"`
}

// Inventory is the outcome of one classification pass. Every enumerated disk
// lands in exactly one of the two lists.
type Inventory struct {
	Available  []*LocalDisk `json:"available"`
	Excluded   []*LocalDisk `json:"excluded"`
	SystemDisk string       `json:"system_disk"`
	Count      Counts       `json:"count"`
}

type Counts struct {
	Available int `json:"available"`
	Excluded  int `json:"excluded"`
}

// DiskUsage of one mounted filesystem, from df.
type DiskUsage struct {
	Path        string `json:"path"`
	Total       uint64 `json:"total"`
	Used        uint64 `json:"used"`
	Available   uint64 `json:"available"`
	UsedPercent int    `json:"usage"`
	Mounted     bool   `json:"mounted"`
}

// DataDisk is one member of the provisioning plan with its pool label.
type DataDisk struct {
	Device string `json:"disk"`
	Label  string `json:"label"`
	Number int    `json:"number"`
}

// ProvisioningPlan pairs the parity disk with the ordered data disks.
type ProvisioningPlan struct {
	ParityDisk string     `json:"parity"`
	DataDisks  []DataDisk `json:"data_disks"`
}
