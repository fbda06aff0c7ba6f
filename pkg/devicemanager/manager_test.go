package devicemanager

import (
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/storbox-io/storbox/pkg/devicemanager/types"
	"github.com/storbox-io/storbox/pkg/progress"
	"github.com/storbox-io/storbox/utils/mutx"
)

type fakeExec struct {
	calls [][]string
}

func (f *fakeExec) record(command string, arg ...string) {
	f.calls = append(f.calls, append([]string{command}, arg...))
}

func (f *fakeExec) ExecuteCommand(command string, arg ...string) error {
	f.record(command, arg...)
	return nil
}

func (f *fakeExec) ExecuteCommandWithOutput(command string, arg ...string) (string, error) {
	f.record(command, arg...)
	return "", nil
}

func (f *fakeExec) ExecuteCommandWithCombinedOutput(command string, arg ...string) (string, error) {
	f.record(command, arg...)
	return "", nil
}

func (f *fakeExec) ExecuteCommandWithTimeout(timeout time.Duration, command string, arg ...string) (string, error) {
	f.record(command, arg...)
	return "", nil
}

func (f *fakeExec) StartCommandWithStream(command string, arg ...string) (*exec.Cmd, io.ReadCloser, error) {
	f.record(command, arg...)
	return nil, nil, errors.New("not supported")
}

type stubPreparer struct {
	prepared [][2]string
	failOn   string
}

func (s *stubPreparer) Prepare(disk, label string, events progress.Sink) error {
	if disk == s.failOn {
		return errors.New("prepare failed on " + disk)
	}
	s.prepared = append(s.prepared, [2]string{disk, label})
	return nil
}

type fakeWriter struct {
	sections   map[string]string
	parityConf string
}

func (w *fakeWriter) ReplaceFstabSection(section, content string) error {
	w.sections[section] = content
	return nil
}

func (w *fakeWriter) WriteParityConf(content string) error {
	w.parityConf = content
	return nil
}

func newTestManager(facts *fakeFacts) (*DeviceManager, *stubPreparer, *fakeWriter, *fakeExec) {
	prep := &stubPreparer{}
	writer := &fakeWriter{sections: map[string]string{}}
	fe := &fakeExec{}
	dm := &DeviceManager{
		Executor:    fe,
		Mutex:       mutx.NewGlobalLocks(),
		DiskManager: facts,
		Preparer:    prep,
		Writer:      writer,
		minDiskSize: 10 * gib,
		mkdirAll:    func(string) error { return nil },
	}
	return dm, prep, writer, fe
}

func poolFacts() *fakeFacts {
	return &fakeFacts{
		rows: []*types.LocalDisk{
			disk("/dev/sda", 500*gib),
			disk("/dev/sdb", 2000*gib),
			disk("/dev/sdc", 1000*gib),
		},
		uuids: map[string]string{
			"/dev/sda": "uuid-sda",
			"/dev/sdb": "uuid-sdb",
			"/dev/sdc": "uuid-sdc",
		},
	}
}

func TestSetupManualRequiresTwoDisks(t *testing.T) {
	a := assert.New(t)

	dm, prep, writer, _ := newTestManager(poolFacts())

	_, err := dm.SetupManual("/dev/sdb", nil, nil)
	a.ErrorIs(err, ErrInsufficientDisks)

	// no destructive work may start
	a.Empty(prep.prepared)
	a.Empty(writer.sections)
}

func TestSetupManualBusy(t *testing.T) {
	a := assert.New(t)

	dm, prep, _, _ := newTestManager(poolFacts())
	a.True(dm.Mutex.TryAcquire(DiskMutex))
	defer dm.Mutex.Release(DiskMutex)

	_, err := dm.SetupManual("/dev/sdb", []string{"/dev/sdc"}, nil)
	a.ErrorIs(err, ErrSetupBusy)
	a.Empty(prep.prepared)
}

func TestSetupManualStepEvents(t *testing.T) {
	a := assert.New(t)

	dm, _, _, _ := newTestManager(poolFacts())
	ch := make(chan progress.Event, 64)

	plan, err := dm.SetupManual("/dev/sdb", []string{"/dev/sdc", "/dev/sda"}, ch)
	a.NoError(err)
	a.NotNil(plan)

	events := collectEvents(ch)
	a.Len(events, 6)

	wantKinds := []string{
		progress.KindParity,
		progress.KindData,
		progress.KindData,
		progress.KindFstab,
		progress.KindPool,
		progress.KindConfig,
	}
	last := 0.0
	for i, e := range events {
		a.Equal(wantKinds[i], e.Kind)
		if a.NotNil(e.Percent) {
			a.Greater(*e.Percent, last)
			last = *e.Percent
		}
	}
	a.Equal(100.0, last)
}

func TestSetupManualLabelsDataDisksInOrder(t *testing.T) {
	a := assert.New(t)

	dm, prep, _, _ := newTestManager(poolFacts())

	plan, err := dm.SetupManual("/dev/sdb", []string{"/dev/sdc", "/dev/sda"}, nil)
	a.NoError(err)

	a.Equal([][2]string{
		{"/dev/sdb", "parity"},
		{"/dev/sdc", "disk1"},
		{"/dev/sda", "disk2"},
	}, prep.prepared)

	a.Equal("/dev/sdb", plan.ParityDisk)
	a.Equal([]types.DataDisk{
		{Device: "/dev/sdc", Label: "disk1", Number: 1},
		{Device: "/dev/sda", Label: "disk2", Number: 2},
	}, plan.DataDisks)
}

func TestSetupManualCommitsConfiguration(t *testing.T) {
	a := assert.New(t)

	dm, _, writer, fe := newTestManager(poolFacts())

	_, err := dm.SetupManual("/dev/sdb", []string{"/dev/sdc"}, nil)
	a.NoError(err)

	mounts := writer.sections["mounts"]
	a.Contains(mounts, "UUID=uuid-sdb  /mnt/parity")
	a.Contains(mounts, "UUID=uuid-sdc  /mnt/disk1")

	pool := writer.sections["pool"]
	a.Contains(pool, "fuse.mergerfs")
	a.Contains(pool, "/mnt/storage")

	a.Contains(writer.parityConf, "parity /mnt/parity/snapraid.parity")
	a.Contains(writer.parityConf, "data d1 /mnt/disk1")

	// the new entries are activated right after each fstab commit
	mountCalls := 0
	for _, c := range fe.calls {
		if c[0] == "mount" && len(c) == 2 && c[1] == "-a" {
			mountCalls++
		}
	}
	a.Equal(2, mountCalls)
}

func TestSetupManualPrepareFailureStopsRun(t *testing.T) {
	a := assert.New(t)

	dm, prep, writer, _ := newTestManager(poolFacts())
	prep.failOn = "/dev/sdc"

	_, err := dm.SetupManual("/dev/sdb", []string{"/dev/sdc"}, nil)
	a.Error(err)
	a.Empty(writer.sections)
	a.Empty(writer.parityConf)

	// the mutex is free again for a retry
	a.True(dm.Mutex.TryAcquire(DiskMutex))
	dm.Mutex.Release(DiskMutex)
}

func TestSetupAutomaticOrdersBySize(t *testing.T) {
	a := assert.New(t)

	dm, prep, _, _ := newTestManager(poolFacts())

	// 500G, 2T, 1T in: largest becomes parity, the rest order by capacity
	plan, err := dm.SetupAutomatic([]string{"/dev/sda", "/dev/sdb", "/dev/sdc"}, nil)
	a.NoError(err)

	a.Equal("/dev/sdb", plan.ParityDisk)
	a.Equal([][2]string{
		{"/dev/sdb", "parity"},
		{"/dev/sdc", "disk1"},
		{"/dev/sda", "disk2"},
	}, prep.prepared)
}

func TestSetupAutomaticRequiresTwoDisks(t *testing.T) {
	a := assert.New(t)

	dm, prep, _, _ := newTestManager(poolFacts())

	_, err := dm.SetupAutomatic([]string{"/dev/sdb"}, nil)
	a.ErrorIs(err, ErrInsufficientDisks)
	a.Empty(prep.prepared)
}

func TestHealth(t *testing.T) {
	a := assert.New(t)

	facts := poolFacts()
	facts.rows = append(facts.rows,
		&types.LocalDisk{Name: "/dev/sdc1", Type: types.PartType, ParentName: "/dev/sdc", MountPoints: []string{"/mnt/disk1"}},
		&types.LocalDisk{Name: "/dev/sda1", Type: types.PartType, ParentName: "/dev/sda", MountPoints: []string{"/mnt/disk2"}},
	)
	facts.usages = map[string]*types.DiskUsage{
		"/mnt/disk1": {Path: "/mnt/disk1", UsedPercent: 95, Mounted: true},
		"/mnt/disk2": {Path: "/mnt/disk2", UsedPercent: 40, Mounted: true},
	}
	dm, _, _, _ := newTestManager(facts)

	overall, issues := dm.Health()
	a.Equal("warning", overall)
	a.Len(issues, 1)
	a.Contains(issues[0], "disk1")
}

func TestHealthFlagsSmartFailure(t *testing.T) {
	a := assert.New(t)

	facts := poolFacts()
	facts.smart = map[string][2]string{
		"/dev/sdb": {types.SmartFailed, "51°C"},
		// a drive that cannot answer smartctl is not an issue
		"/dev/sdc": {types.SmartUnknown, types.TemperatureUnknown},
	}
	dm, _, _, _ := newTestManager(facts)

	overall, issues := dm.Health()
	a.Equal("warning", overall)
	a.Len(issues, 1)
	a.Contains(issues[0], "/dev/sdb")
	a.Contains(issues[0], "SMART")
}

func TestDataDiskUsageIgnoresForeignMounts(t *testing.T) {
	a := assert.New(t)

	facts := poolFacts()
	facts.rows = append(facts.rows,
		&types.LocalDisk{Name: "/dev/sdc1", Type: types.PartType, ParentName: "/dev/sdc", MountPoints: []string{"/mnt/disk1"}},
		&types.LocalDisk{Name: "/dev/sda1", Type: types.PartType, ParentName: "/dev/sda", MountPoints: []string{"/var/lib"}},
	)
	facts.usages = map[string]*types.DiskUsage{
		"/mnt/disk1": {Path: "/mnt/disk1", UsedPercent: 10, Mounted: true},
	}
	dm, _, _, _ := newTestManager(facts)

	usages, err := dm.DataDiskUsage()
	a.NoError(err)
	a.Len(usages, 1)
	a.NotNil(usages["disk1"])
	for name := range usages {
		a.True(strings.HasPrefix(name, "disk"))
	}
}
