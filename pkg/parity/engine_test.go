package parity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/storbox-io/storbox/pkg/progress"
	"github.com/storbox-io/storbox/utils/mutx"
)

func writeTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapraid")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func drainAll(events <-chan progress.Event) []progress.Event {
	out := []progress.Event{}
	for e := range events {
		out = append(out, e)
	}
	return out
}

func TestStartSyncStreamsLinesAndCompletes(t *testing.T) {
	a := assert.New(t)

	bin := writeTool(t, `#!/bin/sh
echo "Self test..."
echo "Syncing..."
echo "100% completed"
exit 0
`)
	engine := NewEngine(bin, mutx.NewGlobalLocks())

	events, err := engine.StartSync(context.Background())
	a.NoError(err)

	got := drainAll(events)
	a.Len(got, 4)
	for _, e := range got[:3] {
		a.Equal(progress.KindSync, e.Kind)
	}
	a.Equal("Self test...", got[0].Message)
	a.Equal("100% completed", got[2].Message)

	last := got[3]
	a.Equal(progress.KindComplete, last.Kind)
	if a.NotNil(last.Success) {
		a.True(*last.Success)
	}
}

func TestStartSyncNonZeroExitEmitsError(t *testing.T) {
	a := assert.New(t)

	bin := writeTool(t, `#!/bin/sh
echo "Syncing..."
exit 2
`)
	engine := NewEngine(bin, mutx.NewGlobalLocks())

	events, err := engine.StartSync(context.Background())
	a.NoError(err)

	got := drainAll(events)
	last := got[len(got)-1]
	a.Equal(progress.KindError, last.Kind)
	a.Contains(last.Message, "exit code 2")
	if a.NotNil(last.Success) {
		a.False(*last.Success)
	}
}

// a scrub that finds errors still completes, success carries the verdict
func TestStartScrubAlwaysCompletes(t *testing.T) {
	a := assert.New(t)

	bin := writeTool(t, `#!/bin/sh
echo "Scrubbing..."
exit 1
`)
	engine := NewEngine(bin, mutx.NewGlobalLocks())

	events, err := engine.StartScrub(context.Background(), 10)
	a.NoError(err)

	got := drainAll(events)
	a.Equal(progress.KindScrub, got[0].Kind)
	last := got[len(got)-1]
	a.Equal(progress.KindComplete, last.Kind)
	if a.NotNil(last.Success) {
		a.False(*last.Success)
	}
}

func TestStartScrubPassesIntensity(t *testing.T) {
	a := assert.New(t)

	bin := writeTool(t, `#!/bin/sh
echo "args: $@"
exit 0
`)
	engine := NewEngine(bin, mutx.NewGlobalLocks())

	events, err := engine.StartScrub(context.Background(), 25)
	a.NoError(err)

	got := drainAll(events)
	a.Equal("args: scrub -p 25", got[0].Message)
}

func TestStartRejectsConcurrentAndCancels(t *testing.T) {
	a := assert.New(t)

	bin := writeTool(t, `#!/bin/sh
echo "started"
exec sleep 30
`)
	mutex := mutx.NewGlobalLocks()
	engine := NewEngine(bin, mutex)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := engine.StartSync(ctx)
	a.NoError(err)

	// wait until the process is known to run
	first := <-events
	a.Equal("started", first.Message)

	_, err = engine.StartSync(context.Background())
	a.ErrorIs(err, ErrParityBusy)
	_, err = engine.StartScrub(context.Background(), 10)
	a.ErrorIs(err, ErrParityBusy)

	cancel()
	got := drainAll(events)
	a.NotEmpty(got)
	last := got[len(got)-1]
	a.Equal(progress.KindCancelled, last.Kind)
	if a.NotNil(last.Success) {
		a.False(*last.Success)
	}

	// the lock is free again for the next run
	a.Eventually(func() bool {
		if !mutex.TryAcquire(ParityMutex) {
			return false
		}
		mutex.Release(ParityMutex)
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTerminalEventVerdicts(t *testing.T) {
	a := assert.New(t)
	killErr := errors.New("signal: killed")

	table := []struct {
		kind        string
		waitErr     error
		cancelled   bool
		wantKind    string
		wantSuccess bool
	}{
		{progress.KindSync, nil, false, progress.KindComplete, true},
		// a process that exited cleanly just before the kill landed keeps
		// its completion verdict
		{progress.KindSync, nil, true, progress.KindComplete, true},
		{progress.KindScrub, nil, true, progress.KindComplete, true},
		{progress.KindSync, killErr, true, progress.KindCancelled, false},
		{progress.KindScrub, killErr, true, progress.KindCancelled, false},
		{progress.KindSync, killErr, false, progress.KindError, false},
		{progress.KindScrub, killErr, false, progress.KindComplete, false},
	}

	for _, e := range table {
		got := terminalEvent(e.kind, e.waitErr, e.cancelled)
		a.Equal(e.wantKind, got.Kind)
		if a.NotNil(got.Success) {
			a.Equal(e.wantSuccess, *got.Success)
		}
	}
}

func TestStartUnavailableTool(t *testing.T) {
	a := assert.New(t)

	engine := NewEngine(filepath.Join(t.TempDir(), "missing"), mutx.NewGlobalLocks())

	_, err := engine.StartSync(context.Background())
	a.ErrorIs(err, ErrParityToolUnavailable)

	_, err = engine.Status()
	a.ErrorIs(err, ErrParityToolUnavailable)
}

func TestStatus(t *testing.T) {
	a := assert.New(t)

	bin := writeTool(t, `#!/bin/sh
echo "Loading state..."
echo "12 files, in 2 fragments"
echo "No differences found."
`)
	engine := NewEngine(bin, mutx.NewGlobalLocks())

	status, err := engine.Status()
	a.NoError(err)
	a.True(status.Protected)
	a.Equal(12, status.FilesCount)
}
