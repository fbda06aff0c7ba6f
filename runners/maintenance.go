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

package runners

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/storbox-io/storbox/pkg/configuration"
	"github.com/storbox-io/storbox/pkg/parity"
	"github.com/storbox-io/storbox/pkg/progress"
	"github.com/storbox-io/storbox/utils/log"
)

// Runner is a long running background task driven by the server context.
type Runner interface {
	Start(ctx context.Context) error
}

// maintenance runs the nightly parity job: a sync followed by a partial
// scrub, scheduled by a cron expression from the configuration.
type maintenance struct {
	engine *parity.Engine
	// 配置变更即重新加载调度计划
	configModifyChan chan struct{}
}

func NewMaintenance(engine *parity.Engine) Runner {
	m := &maintenance{
		engine: engine,
	}
	m.configModifyChan = make(chan struct{}, 1)
	configuration.RegisterListenerChan(m.configModifyChan)
	return m
}

func (m *maintenance) Start(ctx context.Context) error {
	c := m.schedule(ctx)
	for {
		select {
		case <-m.configModifyChan:
			log.Info("maintenance schedule reloading")
			if c != nil {
				c.Stop()
			}
			c = m.schedule(ctx)
		case <-ctx.Done():
			log.Info("maintenance runner stopped...")
			if c != nil {
				stop := c.Stop()
				<-stop.Done()
			}
			return nil
		}
	}
}

func (m *maintenance) schedule(ctx context.Context) *cron.Cron {
	if !configuration.MaintenanceEnabled() {
		log.Info("maintenance disabled, skip scheduling")
		return nil
	}
	schedule := configuration.MaintenanceSchedule()
	c := cron.New()
	_, err := c.AddFunc(schedule, func() { m.run(ctx) })
	if err != nil {
		log.Errorf("invalid maintenance schedule %s: %v", schedule, err)
		return nil
	}
	log.Infof("maintenance scheduled at %s", schedule)
	c.Start()
	return c
}

func (m *maintenance) run(ctx context.Context) {
	log.Info("maintenance run starting")
	if ok := m.drain(ctx, "sync", func() (<-chan progress.Event, error) {
		return m.engine.StartSync(ctx)
	}); !ok {
		return
	}
	m.drain(ctx, "scrub", func() (<-chan progress.Event, error) {
		return m.engine.StartScrub(ctx, configuration.ScrubPercent())
	})
	log.Info("maintenance run finished")
}

// drain consumes the engine event stream so the job can complete, and
// reports whether the operation ended successfully.
func (m *maintenance) drain(ctx context.Context, name string, start func() (<-chan progress.Event, error)) bool {
	events, err := start()
	if err != nil {
		if err == parity.ErrParityBusy {
			log.Warnf("maintenance %s skipped, parity operation already running", name)
		} else {
			log.Errorf("maintenance %s failed to start: %v", name, err)
		}
		return false
	}
	ok := false
	for e := range events {
		switch e.Kind {
		case progress.KindComplete:
			ok = e.Success != nil && *e.Success
			log.Infof("maintenance %s completed, success %t", name, ok)
		case progress.KindError:
			log.Errorf("maintenance %s failed: %s", name, e.Message)
		case progress.KindCancelled:
			log.Warnf("maintenance %s cancelled", name)
		default:
			log.Debugf("maintenance %s: %s", name, e.Message)
		}
	}
	return ok
}
