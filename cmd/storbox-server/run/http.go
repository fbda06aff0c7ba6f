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
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storbox-io/storbox/pkg/configuration"
	deviceManager "github.com/storbox-io/storbox/pkg/devicemanager"
	"github.com/storbox-io/storbox/pkg/parity"
	"github.com/storbox-io/storbox/pkg/progress"
)

var (
	diskManager  *deviceManager.DeviceManager
	parityEngine *parity.Engine
)

type eHttpServer struct {
	e *echo.Echo
}

func newHttpServer(dm *deviceManager.DeviceManager, engine *parity.Engine, registry *prometheus.Registry) *eHttpServer {
	diskManager = dm
	parityEngine = engine

	e := echo.New()
	e.HideBanner = true
	e.GET("/api/disks/detect", disksDetect)
	e.GET("/api/disks/info/:name", diskInfo)
	e.POST("/api/setup/auto", setupAuto)
	e.POST("/api/setup/manual", setupManual)
	e.GET("/api/status", status)
	e.GET("/api/storage/usage", storageUsage)
	e.POST("/api/parity/sync", paritySync)
	e.POST("/api/parity/scrub", parityScrub)
	e.GET("/api/parity/status", parityStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &eHttpServer{e: e}
}

func (h *eHttpServer) start(addr string) error {
	err := h.e.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (h *eHttpServer) shutdown() {
	_ = h.e.Close()
	diskManager = nil
	parityEngine = nil
}

func disksDetect(c echo.Context) error {
	inventory, err := diskManager.DiscoverDisks()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, inventory)
}

func diskInfo(c echo.Context) error {
	name := c.Param("name")
	disk, err := diskManager.DiskInfo("/dev/" + name)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, disk)
}

func setupAuto(c echo.Context) error {
	var req struct {
		Disks []string `json:"disks"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	disks := req.Disks
	if len(disks) == 0 {
		inventory, err := diskManager.DiscoverDisks()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		for _, d := range inventory.Available {
			disks = append(disks, d.Name)
		}
	}
	if len(disks) < 2 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": deviceManager.ErrInsufficientDisks.Error()})
	}
	return streamProvisioning(c, func(events progress.Sink) error {
		_, err := diskManager.SetupAutomatic(disks, events)
		return err
	})
}

func setupManual(c echo.Context) error {
	var req struct {
		ParityDisk string   `json:"parityDisk"`
		DataDisks  []string `json:"dataDisks"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.ParityDisk == "" || len(req.DataDisks) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": deviceManager.ErrInsufficientDisks.Error()})
	}
	return streamProvisioning(c, func(events progress.Sink) error {
		_, err := diskManager.SetupManual(req.ParityDisk, req.DataDisks, events)
		return err
	})
}

func status(c echo.Context) error {
	health, warnings := diskManager.Health()
	pool, err := diskManager.PoolUsage()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	resp := echo.Map{
		"health":   health,
		"warnings": warnings,
		"pool":     pool,
	}
	if parityStat, err := parityEngine.Status(); err == nil {
		resp["parity"] = parityStat
	}
	return c.JSON(http.StatusOK, resp)
}

func storageUsage(c echo.Context) error {
	pool, err := diskManager.PoolUsage()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	disks, err := diskManager.DataDiskUsage()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"pool": pool, "disks": disks})
}

func paritySync(c echo.Context) error {
	events, err := parityEngine.StartSync(c.Request().Context())
	if err != nil {
		return parityStartError(c, err)
	}
	return streamEvents(c, events)
}

func parityScrub(c echo.Context) error {
	percent := configuration.ScrubPercent()
	if p := c.QueryParam("percent"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 || v > 100 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "percent must be between 1 and 100"})
		}
		percent = v
	}
	events, err := parityEngine.StartScrub(c.Request().Context(), percent)
	if err != nil {
		return parityStartError(c, err)
	}
	return streamEvents(c, events)
}

func parityStatus(c echo.Context) error {
	stat, err := parityEngine.Status()
	if err != nil {
		if err == parity.ErrParityToolUnavailable {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stat)
}

func parityStartError(c echo.Context, err error) error {
	switch err {
	case parity.ErrParityBusy:
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case parity.ErrParityToolUnavailable:
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
}

// streamProvisioning runs a provisioning operation on its own goroutine and
// relays its progress events to the client as server-sent events, followed
// by one terminal event for the run outcome.
func streamProvisioning(c echo.Context, setup func(progress.Sink) error) error {
	ch := make(chan progress.Event, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- setup(ch)
		close(ch)
	}()

	sseHeaders(c)
	for e := range ch {
		if err := writeEvent(c, e); err != nil {
			// client is gone, keep draining so the run can finish
			for range ch {
			}
			<-errCh
			return nil
		}
	}
	if err := <-errCh; err != nil {
		return writeEvent(c, progress.Terminal(progress.KindError, err.Error(), false))
	}
	return writeEvent(c, progress.Terminal(progress.KindComplete, "provisioning complete", true))
}

func streamEvents(c echo.Context, events <-chan progress.Event) error {
	sseHeaders(c)
	for e := range events {
		if err := writeEvent(c, e); err != nil {
			// context cancellation stops the engine, just drain the rest
			for range events {
			}
			return nil
		}
	}
	return nil
}

func sseHeaders(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
}

func writeEvent(c echo.Context, e progress.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
