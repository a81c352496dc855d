// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "GameCalls-Engine")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "gamecalls.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("audio.source", "default")
	viper.SetDefault("audio.samplerate", 44100)
	viper.SetDefault("audio.channels", 1)
	viper.SetDefault("audio.bitdepth", 16)
	viper.SetDefault("audio.chunksamples", 1024)

	viper.SetDefault("streaming.maxstreams", 16)
	viper.SetDefault("streaming.buffersamples", 8192)
	viper.SetDefault("streaming.minbuffersamples", 1024)
	viper.SetDefault("streaming.maxbuffersamples", 65536)
	viper.SetDefault("streaming.targetlatencyms", 50.0)
	viper.SetDefault("streaming.maxrecoveries", 3)
	viper.SetDefault("streaming.gracems", 250)

	viper.SetDefault("quality.snrmindb", 20.0)
	viper.SetDefault("quality.thdmaxdb", -20.0)
	viper.SetDefault("quality.dynamicrangemindb", 30.0)
	viper.SetDefault("quality.peakmax", 0.95)
	viper.SetDefault("quality.rmsmin", 0.001)
	viper.SetDefault("quality.rmsmax", 0.7)
	viper.SetDefault("quality.fftsize", 4096)
	viper.SetDefault("quality.noisefloordb", -60.0)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "localhost:9090")
}
