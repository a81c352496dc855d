// Package conf loads and validates the engine configuration. Settings come
// from an optional YAML file, environment variables and viper defaults; the
// loaded instance is shared through Setting().
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Settings is the root configuration for the engine.
type Settings struct {
	Debug bool `yaml:"debug"` // enables debug logging everywhere

	Main struct {
		Name string    `yaml:"name"` // instance name, used in logs and metrics
		Log  LogConfig `yaml:"log"`
	} `yaml:"main"`

	Audio     AudioSettings     `yaml:"audio"`
	Streaming StreamingSettings `yaml:"streaming"`
	Quality   QualitySettings   `yaml:"quality"`
	Metrics   MetricsSettings   `yaml:"metrics"`
}

// LogConfig controls the optional engine log file.
type LogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"` // megabytes
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"` // days
}

// AudioSettings configures capture and default PCM parameters.
type AudioSettings struct {
	Source       string `yaml:"source"`       // capture device name, "default" for system default
	SampleRate   int    `yaml:"samplerate"`   // Hz
	Channels     int    `yaml:"channels"`     // interleaved channel count
	BitDepth     int    `yaml:"bitdepth"`     // bits per sample
	ChunkSamples int    `yaml:"chunksamples"` // samples per capture chunk, per channel
}

// StreamingSettings configures the streaming processor.
type StreamingSettings struct {
	MaxStreams       int     `yaml:"maxstreams"`
	BufferSamples    int     `yaml:"buffersamples"`    // initial ring capacity per channel
	MinBufferSamples int     `yaml:"minbuffersamples"` // adaptive lower bound
	MaxBufferSamples int     `yaml:"maxbuffersamples"` // adaptive upper bound
	TargetLatencyMs  float64 `yaml:"targetlatencyms"`
	MaxRecoveries    int     `yaml:"maxrecoveries"` // overrun recovery attempts before failure
	GraceMs          int     `yaml:"gracems"`       // in-flight grace period on destroy
}

// QualitySettings configures the quality assessor and its real-time monitor.
type QualitySettings struct {
	SNRMinDb          float64 `yaml:"snrmindb"`
	THDMaxDb          float64 `yaml:"thdmaxdb"`
	DynamicRangeMinDb float64 `yaml:"dynamicrangemindb"`
	PeakMax           float64 `yaml:"peakmax"`
	RMSMin            float64 `yaml:"rmsmin"`
	RMSMax            float64 `yaml:"rmsmax"`
	FFTSize           int     `yaml:"fftsize"`
	NoiseFloorDb      float64 `yaml:"noisefloordb"`
}

// MetricsSettings configures the prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port for the /metrics listener
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings instance
// and installs it as the shared instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, config paths and environment binding.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("GAMECALLS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file is fine, defaults and env cover everything.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the locations searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "gamecalls-engine"))
	}
	paths = append(paths, "/etc/gamecalls-engine")

	return paths, nil
}

// Setting returns the shared settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	instance := settingsInstance
	settingsMutex.RUnlock()
	if instance != nil {
		return instance
	}

	instance, err := Load()
	if err != nil {
		panic(fmt.Sprintf("error loading settings: %v", err))
	}
	return instance
}

// SetTestSettings installs a settings instance, for tests.
func SetTestSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
}
