package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Dingtalk Dingtalk `yaml:"dingtalk"`
	Notion   Notion   `yaml:"notion"`
	Polling  Polling  `yaml:"polling"`
	Logging  Logging  `yaml:"logging"`
}

type Dingtalk struct {
	AppKey    string  `yaml:"app_key"`
	AppSecret string  `yaml:"app_secret"`
	UnionID   string  `yaml:"union_id"`
	Webhook   Webhook `yaml:"webhook"`
}

type Webhook struct {
	Port   int    `yaml:"port"`
	AESKey string `yaml:"aes_key"`
	Token  string `yaml:"token"`
}

type Notion struct {
	Token                  string `yaml:"token"`
	PersonalTodoDatabaseID string `yaml:"personal_todo_database_id"`
	TeamTaskDatabaseID     string `yaml:"team_task_database_id"`
}

type Polling struct {
	IntervalSeconds int `yaml:"interval"`
}

func (p Polling) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

type Logging struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	Backups   int    `yaml:"backups"`
}

// Path returns the config file location, overridable via SYNC_CONFIG.
func Path() string {
	return getEnv("SYNC_CONFIG", "config/config.yaml")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *Config) applyDefaults() {
	if c.Polling.IntervalSeconds == 0 {
		c.Polling.IntervalSeconds = 60
	}
	if c.Dingtalk.Webhook.Port == 0 {
		c.Dingtalk.Webhook.Port = 8000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.Backups == 0 {
		c.Logging.Backups = 5
	}
}

func (c *Config) validate() error {
	required := []struct {
		key, val string
	}{
		{"dingtalk.app_key", c.Dingtalk.AppKey},
		{"dingtalk.app_secret", c.Dingtalk.AppSecret},
		{"dingtalk.union_id", c.Dingtalk.UnionID},
		{"dingtalk.webhook.aes_key", c.Dingtalk.Webhook.AESKey},
		{"dingtalk.webhook.token", c.Dingtalk.Webhook.Token},
		{"notion.token", c.Notion.Token},
		{"notion.personal_todo_database_id", c.Notion.PersonalTodoDatabaseID},
		{"notion.team_task_database_id", c.Notion.TeamTaskDatabaseID},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("config: missing %s", r.key)
		}
		// Values copied verbatim from the example config.
		if strings.HasPrefix(r.val, "your_") {
			return fmt.Errorf("config: %s still has its placeholder value %q", r.key, r.val)
		}
	}
	if c.Polling.IntervalSeconds < 0 {
		return fmt.Errorf("config: polling.interval must be positive, got %d", c.Polling.IntervalSeconds)
	}
	return nil
}
