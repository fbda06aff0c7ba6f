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

package run

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/storbox-io/storbox/pkg/configuration"
	deviceManager "github.com/storbox-io/storbox/pkg/devicemanager"
	"github.com/storbox-io/storbox/pkg/metrics"
	"github.com/storbox-io/storbox/pkg/parity"
	"github.com/storbox-io/storbox/runners"
	"github.com/storbox-io/storbox/utils/log"
	"github.com/storbox-io/storbox/utils/mutx"
)

func subMain() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mutex := mutx.NewGlobalLocks()

	// 初始化磁盘管理服务
	dm := deviceManager.NewDeviceManager(mutex)
	engine := parity.NewEngine(configuration.ParityBin(), mutex)

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewStorboxCollector(dm)
	if err != nil {
		log.Errorf("unable to create metrics collector %v", err)
		return err
	}
	if err := registry.Register(collector); err != nil {
		log.Errorf("unable to register metrics collector %v", err)
		return err
	}

	// 启动定时奇偶校验维护
	maintenance := runners.NewMaintenance(engine)
	go func() {
		if err := maintenance.Start(ctx); err != nil {
			log.Errorf("maintenance runner exited %v", err)
		}
	}()

	httpAddr := config.httpAddr
	if httpAddr == "" {
		httpAddr = configuration.HttpAddr()
	}
	server := newHttpServer(dm, engine, registry)

	log.Infof("starting http server on %s", httpAddr)
	go func() {
		<-ctx.Done()
		server.shutdown()
	}()
	if err := server.start(httpAddr); err != nil {
		log.Errorf("http server exited %v", err)
		return err
	}
	return nil
}
