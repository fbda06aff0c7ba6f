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

package configuration

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/storbox-io/storbox"
	"github.com/storbox-io/storbox/utils/log"
)

// 配置文件路径
const configPath = "/etc/storbox/"

var (
	GlobalConfig       *viper.Viper
	settings           Settings
	settingsMux        sync.RWMutex
	configModifyNotice []chan<- struct{}

	opt = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
)

// Settings is everything an operator may tune. Every field has a default so
// the daemon boots on a host that was never configured.
type Settings struct {
	MinDiskSizeGb       int64  `json:"minDiskSizeGb" mapstructure:"minDiskSizeGb"`
	MinFreeSpace        string `json:"minFreeSpace" mapstructure:"minFreeSpace"`
	ParityBin           string `json:"parityBin" mapstructure:"parityBin"`
	ParityConf          string `json:"parityConf" mapstructure:"parityConf"`
	FstabPath           string `json:"fstabPath" mapstructure:"fstabPath"`
	ScrubPercent        int    `json:"scrubPercent" mapstructure:"scrubPercent"`
	MaintenanceSchedule string `json:"maintenanceSchedule" mapstructure:"maintenanceSchedule"`
	MaintenanceEnabled  bool   `json:"maintenanceEnabled" mapstructure:"maintenanceEnabled"`
	HttpAddr            string `json:"httpAddr" mapstructure:"httpAddr"`
}

func init() {
	log.Info("Loading global configuration ...")
	GlobalConfig = initConfig()
	go dynamicConfig()
}

func initConfig() *viper.Viper {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("minDiskSizeGb", int64(storbox.DefaultMinDiskSize>>30))
	v.SetDefault("minFreeSpace", storbox.DefaultMinFreeSpace)
	v.SetDefault("parityBin", storbox.DefaultParityBin)
	v.SetDefault("parityConf", storbox.DefaultParityConf)
	v.SetDefault("fstabPath", storbox.DefaultFstabPath)
	v.SetDefault("scrubPercent", storbox.DefaultScrubPercent)
	v.SetDefault("maintenanceSchedule", storbox.DefaultMaintenanceSchedule)
	v.SetDefault("maintenanceEnabled", true)
	v.SetDefault("httpAddr", ":8787")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Warnf("No configuration under %s, using defaults", configPath)
		} else {
			log.Errorf("Failed to read the configuration: %s, using defaults", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, opt); err != nil {
		log.Errorf("Failed to unmarshal the configuration: %s", err)
	} else if err := validate(s); err != nil {
		log.Errorf("Failed to validate the configuration: %s", err)
	} else {
		setSettings(s)
	}

	return v
}

func dynamicConfig() {
	GlobalConfig.WatchConfig()
	GlobalConfig.OnConfigChange(func(event fsnotify.Event) {
		log.Infof("Detect config change: %s", event.String())
		var s Settings
		if err := GlobalConfig.Unmarshal(&s, opt); err != nil {
			log.Errorf("Failed to unmarshal the configuration: %s, ignore this change", err)
			return
		}
		if err := validate(s); err != nil {
			log.Errorf("Failed to validate the configuration: %s, ignore this change", err)
			return
		}
		setSettings(s)
		for _, c := range configModifyNotice {
			log.Info("Generates the configuration change event")
			c <- struct{}{}
		}
	})
}

// RegisterListenerChan subscribes to configuration reload events.
func RegisterListenerChan(c chan<- struct{}) {
	configModifyNotice = append(configModifyNotice, c)
}

func validate(s Settings) error {
	if s.MinDiskSizeGb <= 0 {
		return fmt.Errorf("minDiskSizeGb must be positive, got %d", s.MinDiskSizeGb)
	}
	if _, err := humanize.ParseBytes(s.MinFreeSpace); err != nil {
		return fmt.Errorf("minFreeSpace %q is not a size: %v", s.MinFreeSpace, err)
	}
	if s.ScrubPercent < 1 || s.ScrubPercent > 100 {
		return fmt.Errorf("scrubPercent must be within 1..100, got %d", s.ScrubPercent)
	}
	return nil
}

func setSettings(s Settings) {
	settingsMux.Lock()
	defer settingsMux.Unlock()
	settings = s
}

// Current returns a snapshot of the active settings.
func Current() Settings {
	settingsMux.RLock()
	defer settingsMux.RUnlock()
	return settings
}

// MinDiskSize lower capacity bound in bytes for a disk to be pooled.
func MinDiskSize() uint64 {
	return uint64(Current().MinDiskSizeGb) << 30
}

// MinFreeSpace reserve of the pool placement policy, e.g. "20G".
func MinFreeSpace() string {
	return Current().MinFreeSpace
}

// ParityBin path of the parity tool binary.
func ParityBin() string {
	return Current().ParityBin
}

// ParityConf path of the generated parity configuration.
func ParityConf() string {
	return Current().ParityConf
}

// FstabPath the persistent mount table written by provisioning.
func FstabPath() string {
	return Current().FstabPath
}

// ScrubPercent scrub intensity for scheduled maintenance.
func ScrubPercent() int {
	return Current().ScrubPercent
}

// MaintenanceSchedule cron expression of the nightly sync/scrub.
func MaintenanceSchedule() string {
	return Current().MaintenanceSchedule
}

// MaintenanceEnabled toggles the background maintenance runner.
func MaintenanceEnabled() bool {
	return Current().MaintenanceEnabled
}

// HttpAddr listen address of the API server.
func HttpAddr() string {
	return Current().HttpAddr
}
