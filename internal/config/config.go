package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/rtcpeer/internal/domain"
)

type AudioConfig struct {
	SampleRate       int `mapstructure:"sample_rate"`
	BlockSize        int `mapstructure:"block_size"`
	RecordCapacity   int `mapstructure:"record_capacity"`
	PlaybackCapacity int `mapstructure:"playback_capacity"`
}

type SignalConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	ReadLimit    int64         `mapstructure:"read_limit"`
}

type Config struct {
	Mode               string             `mapstructure:"mode"`
	Port               int                `mapstructure:"port"`
	Secret             string             `mapstructure:"secret"`
	LogLevel           string             `mapstructure:"log_level"`
	ICEServers         []domain.ICEServer `mapstructure:"ice_servers"`
	ICETransportPolicy string             `mapstructure:"ice_transport_policy"`
	BundlePolicy       string             `mapstructure:"bundle_policy"`
	EventQueueSize     int                `mapstructure:"event_queue_size"`
	Audio              AudioConfig        `mapstructure:"audio"`
	Signal             SignalConfig       `mapstructure:"signal"`
}

// PeerConfiguration is the RTCConfiguration every session starts from.
func (c *Config) PeerConfiguration() domain.Configuration {
	return domain.Configuration{
		ICEServers:         c.ICEServers,
		ICETransportPolicy: c.ICETransportPolicy,
		BundlePolicy:       c.BundlePolicy,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("ice_transport_policy", "")
	v.SetDefault("bundle_policy", "")
	v.SetDefault("event_queue_size", 64)
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.block_size", 480)
	v.SetDefault("audio.record_capacity", 4800)
	v.SetDefault("audio.playback_capacity", 9600)
	v.SetDefault("signal.rate_limit", 50)
	v.SetDefault("signal.rate_interval", "1s")
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.read_limit", 65536)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). RTCPEER_* environment
// variables override file values, e.g. RTCPEER_AUDIO_BLOCK_SIZE.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit path. A missing file falls back to defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("RTCPEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Audio.SampleRate <= 0 || cfg.Audio.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid audio config: sample_rate=%d block_size=%d", cfg.Audio.SampleRate, cfg.Audio.BlockSize)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Int("sample_rate", cfg.Audio.SampleRate).
		Int("block_size", cfg.Audio.BlockSize).
		Msg("config ready")
	return &cfg, nil
}
