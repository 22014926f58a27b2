package exporter_config

import (
	"strings"

	"github.com/spf13/viper"
)

// Load reads the optional YAML file at path and overlays the environment.
// Nested keys map to upper-case env names with dots replaced by underscores;
// the three historical variables GROUP_ID, PRIVATE_ACCESS_TOKEN and
// IGNORED_SUBGROUPS_PATH_LIST are honoured as well.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetDefault("app.name", "pipewatch/exporter")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.http_addr", "0.0.0.0:8000")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "10s")

	v.SetDefault("source.group_id", 0)
	v.SetDefault("source.tokens", []string{})
	v.SetDefault("source.ignored_subgroups", []string{})

	v.SetDefault("gitlab.base_url", "https://gitlab.com/api/v4/")
	v.SetDefault("gitlab.request_timeout", "30s")
	v.SetDefault("gitlab.rate_limit", 10.0)
	v.SetDefault("gitlab.rate_burst", 5)
	v.SetDefault("gitlab.workers", 4)
	v.SetDefault("gitlab.token_attempts", 3)
	v.SetDefault("gitlab.insecure_skip_verify", false)

	v.SetDefault("poll.interval", "30s")
	v.SetDefault("poll.overlap_pages", 0)
	v.SetDefault("poll.watch_max_age", "0s")

	v.SetDefault("kafka.enable", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.topic", "gitlab.ci.records")
	v.SetDefault("kafka.partitions", 1)
	v.SetDefault("kafka.replication", 1)
	v.SetDefault("kafka.write_timeout", "10s")

	v.SetDefault("archive.enable", false)
	v.SetDefault("archive.auto_migrate", true)
	v.SetDefault("archive.db.dsn", "")
	v.SetDefault("archive.db.max_conns", 4)
	v.SetDefault("archive.db.min_conns", 1)
	v.SetDefault("archive.db.max_conn_lifetime", "30m")
	v.SetDefault("archive.db.max_conn_idle_time", "10m")
	v.SetDefault("archive.db.health_check_period", "30s")
	v.SetDefault("archive.db.query_timeout", "5s")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "pipewatch-exporter")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("source.group_id", "SOURCE_GROUP_ID", "GROUP_ID")
	_ = v.BindEnv("source.tokens", "SOURCE_TOKENS", "PRIVATE_ACCESS_TOKEN")
	_ = v.BindEnv("source.ignored_subgroups", "SOURCE_IGNORED_SUBGROUPS", "IGNORED_SUBGROUPS_PATH_LIST")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Source.Tokens = splitList(cfg.Source.Tokens)
	cfg.Source.IgnoredSubgroups = splitList(cfg.Source.IgnoredSubgroups)
	return &cfg, nil
}

// splitList trims entries and splits any that still carry commas, which is
// what a comma-separated env value looks like after decoding.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
