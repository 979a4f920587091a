package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dimicheck/public-api/internal/tier"
)

type Config struct {
	Server      ServerConfig      `json:"server"`
	Postgres    PostgresConfig    `json:"postgres"`
	Redis       RedisConfig       `json:"redis"`
	Tiers       []tier.Spec       `json:"tiers"`
	Gate        GateConfig        `json:"gate"`
	Eligibility EligibilityConfig `json:"eligibility"`
	// IANA name of the reference timezone for day boundaries.
	Timezone     string `json:"timezone"`
	AssetVersion string `json:"asset_version"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type GateConfig struct {
	Capacity       int `json:"capacity"`
	QueueDepth     int `json:"queue_depth"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

type EligibilityConfig struct {
	DailyThreshold int64 `json:"daily_threshold"`
	RequiredDays   int   `json:"required_days"`
	RequiredTotal  int64 `json:"required_total"`
	WindowDays     int   `json:"window_days"`
	// Whole units per day needed to keep a usage streak alive.
	StreakMinDaily int64 `json:"streak_min_daily"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	config.applyEnv()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.AssetVersion == "" {
		c.AssetVersion = "1.0.0"
	}
	if c.Gate.Capacity == 0 {
		c.Gate.Capacity = 5
	}
	if c.Gate.QueueDepth == 0 {
		c.Gate.QueueDepth = 50
	}
	if c.Gate.TimeoutSeconds == 0 {
		c.Gate.TimeoutSeconds = 10
	}
	if c.Eligibility.DailyThreshold == 0 {
		c.Eligibility.DailyThreshold = 20
	}
	if c.Eligibility.RequiredDays == 0 {
		c.Eligibility.RequiredDays = 3
	}
	if c.Eligibility.RequiredTotal == 0 {
		c.Eligibility.RequiredTotal = 150
	}
	if c.Eligibility.WindowDays == 0 {
		c.Eligibility.WindowDays = 7
	}
	if c.Eligibility.StreakMinDaily == 0 {
		c.Eligibility.StreakMinDaily = 5
	}
}

// Secrets come from the environment, not the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}
