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

package parity

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/storbox-io/storbox/pkg/progress"
	"github.com/storbox-io/storbox/utils/exec"
	"github.com/storbox-io/storbox/utils/log"
	"github.com/storbox-io/storbox/utils/mutx"
)

// ParityMutex serializes sync and scrub system-wide, a scheduled run can
// never overlap a user-triggered one.
const ParityMutex = "ParityMutex"

var (
	// ErrParityToolUnavailable the parity binary is missing or not executable
	ErrParityToolUnavailable = errors.New("parity tool missing or not executable")
	// ErrParityBusy another sync or scrub is already running
	ErrParityBusy = errors.New("another parity operation is running")
)

// ParityProcessFailed a sync process exited non-zero.
type ParityProcessFailed struct {
	Operation string
	ExitCode  int
}

func (e *ParityProcessFailed) Error() string {
	return fmt.Sprintf("%s failed with exit code %d", e.Operation, e.ExitCode)
}

// Engine adapts the external long-running parity tool into event streams.
type Engine struct {
	Bin      string
	Executor exec.Executor
	Mutex    *mutx.GlobalLocks

	statusTimeout time.Duration
}

func NewEngine(bin string, mutex *mutx.GlobalLocks) *Engine {
	return &Engine{
		Bin:           bin,
		Executor:      &exec.CommandExecutor{},
		Mutex:         mutex,
		statusTimeout: 5 * time.Minute,
	}
}

func (e *Engine) available() error {
	info, err := os.Stat(e.Bin)
	if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
		return ErrParityToolUnavailable
	}
	return nil
}

// Status runs the one-shot status subcommand and interprets its output.
func (e *Engine) Status() (*Status, error) {
	if err := e.available(); err != nil {
		return nil, err
	}
	out, err := e.Executor.ExecuteCommandWithTimeout(e.statusTimeout, e.Bin, "status")
	if err != nil && out == "" {
		return nil, err
	}
	return ParseStatus(out), nil
}

// StartSync recomputes parity for filesystem changes since the last run.
// The stream delivers one event per output line and terminates with either
// complete{success:true} or error on non-zero exit.
func (e *Engine) StartSync(ctx context.Context) (<-chan progress.Event, error) {
	return e.start(ctx, progress.KindSync, "sync")
}

// StartScrub read-verifies intensityPercent of the protected data. The
// stream always terminates with complete, success reflecting the exit code.
func (e *Engine) StartScrub(ctx context.Context, intensityPercent int) (<-chan progress.Event, error) {
	return e.start(ctx, progress.KindScrub, "scrub", "-p", strconv.Itoa(intensityPercent))
}

// start spawns the parity process and drains its combined output on a
// dedicated goroutine so slow consumers never stall the pipe. The returned
// channel is forward-only and non-restartable; it closes right after the
// single terminal event. Cancelling ctx kills the process and terminates
// the stream with a cancelled event instead of completion.
func (e *Engine) start(ctx context.Context, kind string, arg ...string) (<-chan progress.Event, error) {
	if err := e.available(); err != nil {
		return nil, err
	}
	if !e.Mutex.TryAcquire(ParityMutex) {
		log.Info("parity operation already running, rejecting " + kind)
		return nil, ErrParityBusy
	}

	cmd, stdout, err := e.Executor.StartCommandWithStream(e.Bin, arg...)
	if err != nil {
		e.Mutex.Release(ParityMutex)
		return nil, err
	}
	log.Infof("started parity %s, pid %d", kind, cmd.Process.Pid)

	events := make(chan progress.Event, 64)
	waitDone := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			log.Warnf("parity %s cancelled, killing pid %d", kind, cmd.Process.Pid)
			_ = cmd.Process.Kill()
		case <-waitDone:
		}
	}()

	go func() {
		defer e.Mutex.Release(ParityMutex)
		defer close(events)

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			events <- progress.New(kind, line)
		}
		_ = stdout.Close()

		waitErr := cmd.Wait()
		close(waitDone)

		events <- terminalEvent(kind, waitErr, ctx.Err() != nil)
	}()

	return events, nil
}

// terminalEvent decides the single closing event of a stream. A cancelled
// context counts as cancellation only when the process actually died from
// it; a run that exited cleanly before the kill landed keeps its verdict.
func terminalEvent(kind string, waitErr error, cancelled bool) progress.Event {
	if cancelled && waitErr != nil {
		return progress.Terminal(progress.KindCancelled, fmt.Sprintf("%s cancelled", kind), false)
	}

	switch {
	case kind == progress.KindScrub:
		return progress.Terminal(progress.KindComplete, "scrub finished", waitErr == nil)
	case waitErr == nil:
		return progress.Terminal(progress.KindComplete, "sync completed", true)
	default:
		code, _ := exec.ExitStatus(waitErr)
		failure := &ParityProcessFailed{Operation: kind, ExitCode: code}
		log.Error(failure.Error())
		return progress.Terminal(progress.KindError, failure.Error(), false)
	}
}
