package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Storage StorageConfig `mapstructure:"storage"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type GameConfig struct {
	// HeartbeatTimeout is how long a silent connection is kept before it is
	// treated as disconnected.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	// GraceWindow is how long a disconnected player may rejoin a running
	// match without forfeiting.
	GraceWindow time.Duration `mapstructure:"grace_window"`
	// Countdown is the shared countdown broadcast before a match starts.
	Countdown time.Duration `mapstructure:"countdown"`
	// SyncInterval bounds how often per-member snapshots are broadcast.
	SyncInterval     time.Duration `mapstructure:"sync_interval"`
	ChatHistoryLimit int           `mapstructure:"chat_history_limit"`
}

type StorageConfig struct {
	// Driver selects the persistence backend: file, postgres or gorm.
	Driver   string         `mapstructure:"driver"`
	DataDir  string         `mapstructure:"data_dir"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func setDefaults() {
	viper.SetDefault("server.http_address", "0.0.0.0:8080")
	viper.SetDefault("server.rpc_address", "127.0.0.1:8081")
	viper.SetDefault("server.metrics_address", "127.0.0.1:9100")
	viper.SetDefault("game.heartbeat_timeout", "30s")
	viper.SetDefault("game.grace_window", "30s")
	viper.SetDefault("game.countdown", "5s")
	viper.SetDefault("game.sync_interval", "500ms")
	viper.SetDefault("game.chat_history_limit", 200)
	viper.SetDefault("storage.driver", "file")
	viper.SetDefault("storage.data_dir", "data")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.user", "postgres")
	viper.SetDefault("storage.postgres.dbname", "yumosu")
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setDefaults()
	viper.AutomaticEnv()

	// A missing config file is fine, the defaults describe a runnable server.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = viper.Unmarshal(&config)
	return
}
