package config

import (
	"encoding/json"
	"os"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr"` // e.g. ":8080"
}

// SignerConfig holds the mnemonic material for identity provisioning.
type SignerConfig struct {
	Mnemonic   string `json:"mnemonic"`
	Passphrase string `json:"passphrase"`
}

// SessionConfig holds ceremony lifecycle defaults.
type SessionConfig struct {
	DefaultTTLSeconds    int `json:"default_ttl_seconds"`
	RetentionSeconds     int `json:"retention_seconds"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// DBConfig holds the database connection parameters. An empty Host disables
// record persistence and the service runs memory-only.
type DBConfig struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
	SSLMode  string `json:"sslmode"`
	TimeZone string `json:"timezone"`
}

// LoggerConfig holds the logging configuration.
type LoggerConfig struct {
	Level      string `json:"level"`  // e.g. "debug", "info", "warn", "error"
	Format     string `json:"format"` // "text" or "json"
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // megabytes
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig  `json:"server"`
	Signer   SignerConfig  `json:"signer"`
	Session  SessionConfig `json:"session"`
	Database DBConfig      `json:"database"`
	Logger   LoggerConfig  `json:"logger"`
}

// LoadConfig reads the configuration from a file and returns a Config struct
// with lifecycle defaults filled in.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &Config{}
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	if config.Session.DefaultTTLSeconds <= 0 {
		config.Session.DefaultTTLSeconds = 300
	}
	if config.Session.RetentionSeconds <= 0 {
		config.Session.RetentionSeconds = 3600
	}
	if config.Session.SweepIntervalSeconds <= 0 {
		config.Session.SweepIntervalSeconds = 30
	}
	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = ":8080"
	}
	if config.Logger.Level == "" {
		config.Logger.Level = "info"
	}

	return config, nil
}
