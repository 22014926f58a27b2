package exporter_config

import (
	"time"

	"github.com/NordCoder/Pipewatch/internal/obs"
	"github.com/NordCoder/Pipewatch/internal/repository/gitlab"
	"github.com/NordCoder/Pipewatch/internal/repository/kafka"
	pg "github.com/NordCoder/Pipewatch/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

func (s *Server) AsServerConfig() obs.ServerConfig {
	return obs.ServerConfig{
		Addr:         s.HTTPAddr,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}
}

type Poll struct {
	Interval     time.Duration `mapstructure:"interval"`
	OverlapPages int           `mapstructure:"overlap_pages"`
	WatchMaxAge  time.Duration `mapstructure:"watch_max_age"`
}

// Source describes what to watch and with which credentials.
type Source struct {
	GroupID          int64    `mapstructure:"group_id"`
	Tokens           []string `mapstructure:"tokens"`
	IgnoredSubgroups []string `mapstructure:"ignored_subgroups"`
}

type Archive struct {
	Enable      bool      `mapstructure:"enable"`
	AutoMigrate bool      `mapstructure:"auto_migrate"`
	DB          pg.Config `mapstructure:"db"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (c *Config) AsLoggerConfig() *obs.LogConfig {
	return &obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

type Config struct {
	App     App           `mapstructure:"app"`
	Server  Server        `mapstructure:"server"`
	Source  Source        `mapstructure:"source"`
	GitLab  gitlab.Config `mapstructure:"gitlab"`
	Poll    Poll          `mapstructure:"poll"`
	Kafka   kafka.Config  `mapstructure:"kafka"`
	Archive Archive       `mapstructure:"archive"`
	OTEL    OTEL          `mapstructure:"otel"`
	Log     Log           `mapstructure:"log"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }

const (
	ErrNoGroup  ErrConfig = "source.group_id (GROUP_ID) is required"
	ErrNoTokens ErrConfig = "source.tokens (PRIVATE_ACCESS_TOKEN) is required"
	ErrInterval ErrConfig = "poll.interval must be positive"
	ErrBrokers  ErrConfig = "kafka.brokers is required when kafka.enable is set"
	ErrDSN      ErrConfig = "archive.db.dsn is required when archive.enable is set"
)

func (c *Config) Validate() error {
	switch {
	case c.Source.GroupID <= 0:
		return ErrNoGroup
	case len(c.Source.Tokens) == 0:
		return ErrNoTokens
	case c.Poll.Interval <= 0:
		return ErrInterval
	case c.Kafka.Enable && len(c.Kafka.Brokers) == 0:
		return ErrBrokers
	case c.Archive.Enable && c.Archive.DB.URL == "":
		return ErrDSN
	}
	return nil
}
