// Package rgconfig loads reader-group runtime configuration (poll
// intervals, checkpoint caps, synchronizer/controller endpoints) the
// way weed/util/config.go's ViperProxy loads seaweedfs's own TOML
// configuration: a single process-wide github.com/spf13/viper instance,
// searched across a fixed set of directories, with environment
// variables overriding file values.
package rgconfig

import (
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g.
// READERGROUP_SYNCHRONIZER_ETCDENDPOINTS.
const EnvPrefix = "readergroup"

// Config is the runtime configuration one coordinator process loads at
// startup.
type Config struct {
	GroupName             string
	SynchronizerSegmentID string

	// SynchronizerEtcdEndpoints, when non-empty, selects the etcd-backed
	// synchronizer adapter; otherwise the in-memory reference
	// implementation is used.
	SynchronizerEtcdEndpoints []string
	SynchronizerEtcdKeyPrefix string

	ControllerEndpoints []string

	MaxOutstandingCheckpointRequest uint32
	GroupRefreshTimeMillis          uint64
	AutomaticCheckpointsDisabled    bool
}

var (
	once sync.Once
	vp   *viper.Viper
)

// getViper returns the process-wide viper instance, configured once
// with the readergroup env prefix, mirroring GetViper's lazy
// initialization.
func getViper() *viper.Viper {
	once.Do(func() {
		vp = viper.New()
		vp.SetDefault("synchronizer.etcdKeyPrefix", "/readergroup/")
		vp.SetDefault("maxOutstandingCheckpointRequest", uint32(3))
		vp.SetDefault("groupRefreshTimeMillis", uint64(1000))
		vp.AutomaticEnv()
		vp.SetEnvPrefix(EnvPrefix)
		vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	})
	return vp
}

// Load reads configFileName (without extension) from the given
// directories in order, merging matches, then overlays environment
// variables. A missing file is not an error — sane defaults apply, the
// same tolerant posture LoadConfiguration takes for optional config
// files. Every call uses the one process-wide viper instance, so values
// merged and search paths added by an earlier Load stay in effect.
func Load(configFileName string, searchPaths ...string) (Config, error) {
	v := getViper()
	v.SetConfigName(configFileName)
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			glog.V(1).Infof("rgconfig: no %s config file found in %v, using defaults and env", configFileName, searchPaths)
		} else {
			return Config{}, err
		}
	}

	cfg := Config{
		GroupName:                       v.GetString("groupName"),
		SynchronizerSegmentID:           v.GetString("synchronizerSegmentId"),
		SynchronizerEtcdEndpoints:       v.GetStringSlice("synchronizer.etcdEndpoints"),
		SynchronizerEtcdKeyPrefix:       v.GetString("synchronizer.etcdKeyPrefix"),
		ControllerEndpoints:             v.GetStringSlice("controller.endpoints"),
		MaxOutstandingCheckpointRequest: uint32(v.GetInt("maxOutstandingCheckpointRequest")),
		GroupRefreshTimeMillis:          uint64(v.GetInt64("groupRefreshTimeMillis")),
		AutomaticCheckpointsDisabled:    v.GetBool("automaticCheckpointsDisabled"),
	}
	return cfg, nil
}
