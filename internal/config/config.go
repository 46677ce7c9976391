package config

import (
	"fmt"
	"strings"

	"github.com/gookit/config/v2"
	"github.com/gookit/config/v2/yaml"
)

type Redis struct {
	Host string `config:"host"`
	Port int    `config:"port"`
	DB   int    `config:"db"`
}

type EventSource struct {
	Port      int `config:"port"`
	StatsPort int `config:"stats_port"`
}

type SMTP struct {
	Host     string `config:"host"`
	Port     int    `config:"port"`
	From     string `config:"from"`
	Username string `config:"username"`
	Password string `config:"password"`
}

type Config struct {
	Redis       Redis       `config:"redis"`
	EventSource EventSource `config:"eventsource"`
	DBURL       string      `config:"db_url"`
	AppURL      string      `config:"app_url"`
	GitURL      string      `config:"git_url"`
	SMTP        SMTP        `config:"smtp"`
	HealthAddr  string      `config:"health_addr"`
}

func New(path string) (*Config, error) {
	var appConfig Config

	c := config.NewWithOptions("eventrelay", func(opt *config.Options) {
		opt.ParseEnv = true
		opt.DecoderConfig.TagName = "config"
	})

	c.AddDriver(yaml.Driver)

	if err := c.LoadFiles(path); err != nil {
		return nil, err
	}

	if err := c.LoadExists(strings.Replace(path, ".yml", ".local.yml", 1)); err != nil {
		return nil, err
	}

	if err := c.BindStruct("", &appConfig); err != nil {
		return nil, err
	}

	if err := appConfig.validate(); err != nil {
		return nil, err
	}

	return &appConfig, nil
}

func (c *Config) validate() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("config: redis.host is required")
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.DBURL == "" {
		return fmt.Errorf("config: db_url is required")
	}
	if c.AppURL == "" {
		return fmt.Errorf("config: app_url is required")
	}
	return nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Origin is the CORS origin advertised by the stream relay, the
// configured application URL without its trailing slash.
func (c *Config) Origin() string {
	return strings.TrimSuffix(c.AppURL, "/")
}
