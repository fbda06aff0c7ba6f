package device

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/storbox-io/storbox/pkg/devicemanager/types"
	"github.com/storbox-io/storbox/utils/exec"
	"github.com/storbox-io/storbox/utils/log"
)

// LocalDevice provides best-effort facts about the block devices of this
// host. Callers must tolerate partially filled results: a disk whose udev
// properties cannot be read still classifies, with Unknown/empty fields.
type LocalDevice interface {
	// ListDevicesDetail lists lsblk rows, disks and their partitions.
	// An empty device lists everything.
	ListDevicesDetail(device string) ([]*types.LocalDisk, error)
	// UdevInfo returns the udev property map of one device
	UdevInfo(device string) (map[string]string, error)
	// SystemDevice resolves the disk backing the root (or /boot) filesystem
	SystemDevice() (string, error)
	// DiskUUID returns the filesystem UUID of the disk's first partition
	DiskUUID(device string) (string, error)
	// SmartHealth reports the SMART overall-health verdict and temperature,
	// degrading to Unknown/N/A when the tool or the drive cannot answer
	SmartHealth(device string) (string, string)
	// DiskUsage queries df for one mounted path
	DiskUsage(path string) (*types.DiskUsage, error)
}

type LocalDeviceImplement struct {
	Executor exec.Executor
}

/*
# lsblk --pairs --paths --bytes --output NAME,FSTYPE,MOUNTPOINT,SIZE,STATE,TYPE,ROTA,RO,PKNAME
NAME="/dev/sda" FSTYPE="" MOUNTPOINT="" SIZE="85899345920" STATE="running" TYPE="disk" ROTA="1" RO="0" PKNAME=""
NAME="/dev/sda1" FSTYPE="ext4" MOUNTPOINT="/" SIZE="81604378624" STATE="" TYPE="part" ROTA="1" RO="0" PKNAME="/dev/sda"
*/
func (ld *LocalDeviceImplement) ListDevicesDetail(device string) ([]*types.LocalDisk, error) {
	args := []string{"--pairs", "--paths", "--bytes", "--output", "NAME,FSTYPE,MOUNTPOINT,SIZE,STATE,TYPE,ROTA,RO,PKNAME"}
	if device != "" {
		args = append(args, device)
	}
	devices, err := ld.Executor.ExecuteCommandWithOutput("lsblk", args...)
	if err != nil {
		log.Error("exec lsblk failed: " + err.Error())
		return nil, err
	}

	return ParseDiskString(devices), nil
}

// ParseDiskString turns lsblk --pairs output into LocalDisk rows.
func ParseDiskString(diskString string) []*types.LocalDisk {
	resp := []*types.LocalDisk{}

	if diskString == "" {
		return resp
	}

	diskString = strings.ReplaceAll(diskString, "\"", "")

	rows := strings.Split(diskString, "\n")
	for _, row := range rows {
		if strings.TrimSpace(row) == "" {
			continue
		}
		tmp := types.LocalDisk{}
		fields := strings.Split(row, " ")
		for _, f := range fields {
			k := strings.SplitN(f, "=", 2)
			if len(k) != 2 {
				continue
			}
			switch k[0] {
			case "NAME":
				tmp.Name = k[1]
			case "MOUNTPOINT":
				if k[1] != "" {
					tmp.MountPoints = append(tmp.MountPoints, k[1])
					tmp.Mounted = true
				}
			case "SIZE":
				tmp.Size, _ = strconv.ParseUint(k[1], 10, 64)
			case "STATE":
				// ignored
			case "TYPE":
				tmp.Type = k[1]
			case "ROTA":
				switch k[1] {
				case "1":
					tmp.MediaType = types.MediaHDD
				case "0":
					tmp.MediaType = types.MediaSSD
				default:
					tmp.MediaType = types.MediaUnknown
				}
			case "RO":
				// ignored
			case "FSTYPE":
				tmp.Filesystem = k[1]
			case "PKNAME":
				tmp.ParentName = k[1]
			default:
				log.Warnf("undefined field %s-%s", k[0], k[1])
			}
		}

		resp = append(resp, &tmp)
	}
	return resp
}

/*
# udevadm info --query=property --name=/dev/sda
ID_MODEL=ST2000DM008
ID_SERIAL_SHORT=ZFL12ABC
ID_BUS=ata
*/
func (ld *LocalDeviceImplement) UdevInfo(device string) (map[string]string, error) {
	output, err := ld.Executor.ExecuteCommandWithOutput("udevadm", "info", "--query=property", "--name="+device)
	if err != nil {
		return nil, err
	}
	return parseUdevInfo(output), nil
}

func parseUdevInfo(output string) map[string]string {
	lines := strings.Split(output, "\n")
	result := make(map[string]string, len(lines))
	for _, v := range lines {
		pairs := strings.SplitN(v, "=", 2)
		if len(pairs) > 1 {
			result[pairs[0]] = pairs[1]
		}
	}
	return result
}

// SystemDevice finds the whole disk holding the root filesystem. Falls back
// to /boot for setups where / lives on an overlay.
func (ld *LocalDeviceImplement) SystemDevice() (string, error) {
	for _, mount := range []string{"/", "/boot"} {
		source, err := ld.Executor.ExecuteCommandWithOutput("findmnt", "-n", "-o", "SOURCE", mount)
		if err != nil || source == "" {
			continue
		}
		if !strings.HasPrefix(source, "/dev/") {
			continue
		}
		parent, err := ld.Executor.ExecuteCommandWithOutput("lsblk", "-no", "PKNAME", source)
		if err == nil && strings.TrimSpace(parent) != "" {
			return "/dev/" + path.Base(strings.TrimSpace(parent)), nil
		}
		return source, nil
	}
	return "", fmt.Errorf("unable to resolve the system boot device")
}

// DiskUUID resolves the persistent filesystem UUID of the first partition,
// the one the preparation pipeline creates.
func (ld *LocalDeviceImplement) DiskUUID(device string) (string, error) {
	uuid, err := ld.Executor.ExecuteCommandWithOutput("blkid", "-s", "UUID", "-o", "value", PartitionPath(device))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(uuid), nil
}

/*
# smartctl -H /dev/sda
SMART overall-health self-assessment test result: PASSED

# smartctl -A /dev/sda
194 Temperature_Celsius     0x0022   034   048   000    Old_age   Always       -       34
*/
func (ld *LocalDeviceImplement) SmartHealth(device string) (string, string) {
	// smartctl exits non-zero on a failing drive, the verdict is still printed
	out, _ := ld.Executor.ExecuteCommandWithOutput("smartctl", "-H", device)
	health := parseSmartHealth(out)

	attrs, _ := ld.Executor.ExecuteCommandWithOutput("smartctl", "-A", device)
	return health, parseSmartTemperature(attrs)
}

func parseSmartHealth(output string) string {
	switch {
	case strings.Contains(output, types.SmartPassed):
		return types.SmartPassed
	case strings.Contains(output, types.SmartFailed):
		return types.SmartFailed
	default:
		return types.SmartUnknown
	}
}

func parseSmartTemperature(output string) string {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 10 && fields[1] == "Temperature_Celsius" {
			return fields[9] + "°C"
		}
	}
	return types.TemperatureUnknown
}

// PartitionPath maps a whole-disk path to its first partition path,
// /dev/sda -> /dev/sda1, /dev/nvme0n1 -> /dev/nvme0n1p1.
func PartitionPath(device string) string {
	if device == "" {
		return device
	}
	last := device[len(device)-1]
	if last >= '0' && last <= '9' {
		return device + "p1"
	}
	return device + "1"
}

/*
# df -B1 --output=size,used,avail,pcent,target /mnt/storage
   1B-blocks       Used      Avail Use% Mounted on
4000000000000 1000000000 3999000000   1% /mnt/storage
*/
func (ld *LocalDeviceImplement) DiskUsage(target string) (*types.DiskUsage, error) {
	out, err := ld.Executor.ExecuteCommandWithOutput("df", "-B1", "--output=size,used,avail,pcent,target", target)
	if err != nil {
		return &types.DiskUsage{Path: target, Mounted: false}, nil
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return &types.DiskUsage{Path: target, Mounted: false}, nil
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return &types.DiskUsage{Path: target, Mounted: false}, nil
	}
	usage := &types.DiskUsage{Path: target, Mounted: true}
	usage.Total, _ = strconv.ParseUint(fields[0], 10, 64)
	usage.Used, _ = strconv.ParseUint(fields[1], 10, 64)
	usage.Available, _ = strconv.ParseUint(fields[2], 10, 64)
	usage.UsedPercent, _ = strconv.Atoi(strings.TrimSuffix(fields[3], "%"))
	return usage, nil
}
