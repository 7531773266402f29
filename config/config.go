package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`
		HTTPPort string `mapstructure:"http_port"`
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   string `mapstructure:"file"`
	} `mapstructure:"logging"`

	Database struct {
		Driver string `mapstructure:"driver"` // "sqlite" | "postgres" | "mysql" | "" (in-memory)
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Org struct {
		Timezone string `mapstructure:"timezone"` // IANA, напр. "Asia/Almaty"; для ServerTime терминалов
	} `mapstructure:"org"`

	Auth struct {
		Secret       string `mapstructure:"secret"`
		TokenTTLMins int    `mapstructure:"token_ttl_minutes"`
		Disabled     bool   `mapstructure:"disabled"`
	} `mapstructure:"auth"`

	Iclock struct {
		QueueCap int `mapstructure:"queue_cap"` // защитный потолок очереди команд на устройство
	} `mapstructure:"iclock"`
}

// Load читает yaml-конфиг (path может быть пустым) и окружение PUNCHD_*.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8000")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("org.timezone", "UTC")
	v.SetDefault("auth.token_ttl_minutes", 60*8)
	v.SetDefault("iclock.queue_cap", 1000)

	v.SetEnvPrefix("PUNCHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
