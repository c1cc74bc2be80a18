package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/squadracorsepolito/acmeview"
	"github.com/squadracorsepolito/acmeview/internal/telemetry"
	"github.com/squadracorsepolito/acmeview/view"
)

// acmeview config.toml keys.
type fileConfig struct {
	CatalogPath string `toml:"catalog_path"`
	LogLevel    string `toml:"log_level"`

	BusKind       string `toml:"bus_kind"`
	BusChannel    string `toml:"bus_channel"`
	BusBitrate    int    `toml:"bus_bitrate"`
	BusReceiveOwn bool   `toml:"bus_receive_own"`
	BusFD         bool   `toml:"bus_fd"`
	BusLocalAddr  string `toml:"bus_local_addr"`
	BusRemoteAddr string `toml:"bus_remote_addr"`
	BusQueueSize  int    `toml:"bus_queue_size"`

	Frames     []string `toml:"frames"`
	Shards     int      `toml:"shards"`
	QueueSize  int      `toml:"queue_size"`
	EditPolicy string   `toml:"edit_policy"`
	EditStep   float64  `toml:"edit_step"`

	RecorderKind        string   `toml:"recorder_kind"`
	RecorderQueueSize   int      `toml:"recorder_queue_size"`
	RecorderOnlyChanged bool     `toml:"recorder_only_changed"`
	QuestDBAddress      string   `toml:"questdb_address"`
	QuestDBTable        string   `toml:"questdb_table"`
	KafkaBrokers        []string `toml:"kafka_brokers"`
	KafkaTopic          string   `toml:"kafka_topic"`

	TelemetryEnabled     bool    `toml:"telemetry_enabled"`
	TelemetryServiceName string  `toml:"telemetry_service_name"`
	TelemetrySampleRatio float64 `toml:"telemetry_sample_ratio"`
	TelemetryInterval    string  `toml:"telemetry_metric_interval"`
}

type config struct {
	Engine *acmeview.Config

	LogLevel slog.Level

	TelemetryEnabled bool
	Telemetry        *telemetry.Config
}

func newDefaultConfig() *config {
	return &config{
		Engine: acmeview.NewDefaultConfig(),

		LogLevel: slog.LevelInfo,

		TelemetryEnabled: false,
		Telemetry:        telemetry.NewDefaultConfig(),
	}
}

// loadConfig overlays the keys defined in the TOML file at path on the defaults.
func loadConfig(path string) (*config, error) {
	cfg := newDefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load config: unknown keys %v", undecoded)
	}

	eng := cfg.Engine

	if meta.IsDefined("catalog_path") {
		eng.CatalogPath = strings.TrimSpace(raw.CatalogPath)
	}
	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw.LogLevel)); err != nil {
			return nil, fmt.Errorf("load config: log_level: %w", err)
		}
	}

	if meta.IsDefined("bus_kind") {
		eng.Bus.Kind = strings.TrimSpace(raw.BusKind)
	}
	if meta.IsDefined("bus_channel") {
		eng.Bus.Channel = strings.TrimSpace(raw.BusChannel)
	}
	if meta.IsDefined("bus_bitrate") {
		eng.Bus.Bitrate = raw.BusBitrate
	}
	if meta.IsDefined("bus_receive_own") {
		eng.Bus.ReceiveOwn = raw.BusReceiveOwn
	}
	if meta.IsDefined("bus_fd") {
		eng.Bus.FD = raw.BusFD
	}
	if meta.IsDefined("bus_local_addr") {
		eng.Bus.LocalAddr = strings.TrimSpace(raw.BusLocalAddr)
	}
	if meta.IsDefined("bus_remote_addr") {
		eng.Bus.RemoteAddr = strings.TrimSpace(raw.BusRemoteAddr)
	}
	if meta.IsDefined("bus_queue_size") {
		eng.Bus.QueueSize = raw.BusQueueSize
	}

	if meta.IsDefined("frames") {
		eng.Coordinator.Frames = raw.Frames
	}
	if meta.IsDefined("shards") {
		eng.Coordinator.Shards = raw.Shards
	}
	if meta.IsDefined("queue_size") {
		eng.Coordinator.QueueSize = raw.QueueSize
	}
	if meta.IsDefined("edit_policy") {
		policy, err := parsePolicy(raw.EditPolicy)
		if err != nil {
			return nil, fmt.Errorf("load config: edit_policy: %w", err)
		}
		eng.Coordinator.View.Policy = policy
	}
	if meta.IsDefined("edit_step") {
		eng.Coordinator.View.Step = raw.EditStep
	}

	if meta.IsDefined("recorder_kind") {
		eng.Recorder.Kind = strings.TrimSpace(raw.RecorderKind)
	}
	if meta.IsDefined("recorder_queue_size") {
		eng.Recorder.Recorder.QueueSize = raw.RecorderQueueSize
	}
	if meta.IsDefined("recorder_only_changed") {
		eng.Recorder.Recorder.OnlyChanged = raw.RecorderOnlyChanged
	}
	if meta.IsDefined("questdb_address") {
		eng.Recorder.QuestDB.Address = strings.TrimSpace(raw.QuestDBAddress)
	}
	if meta.IsDefined("questdb_table") {
		eng.Recorder.QuestDB.Table = strings.TrimSpace(raw.QuestDBTable)
	}
	if meta.IsDefined("kafka_brokers") {
		eng.Recorder.Kafka.Brokers = raw.KafkaBrokers
	}
	if meta.IsDefined("kafka_topic") {
		eng.Recorder.Kafka.Topic = strings.TrimSpace(raw.KafkaTopic)
	}

	if meta.IsDefined("telemetry_enabled") {
		cfg.TelemetryEnabled = raw.TelemetryEnabled
	}
	if meta.IsDefined("telemetry_service_name") {
		cfg.Telemetry.ServiceName = strings.TrimSpace(raw.TelemetryServiceName)
	}
	if meta.IsDefined("telemetry_sample_ratio") {
		cfg.Telemetry.TraceSampleRatio = raw.TelemetrySampleRatio
	}
	if meta.IsDefined("telemetry_metric_interval") {
		interval, err := time.ParseDuration(raw.TelemetryInterval)
		if err != nil {
			return nil, fmt.Errorf("load config: telemetry_metric_interval: %w", err)
		}
		cfg.Telemetry.MetricInterval = interval
	}

	return cfg, nil
}

func parsePolicy(s string) (view.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow_exceed", "allow-exceed":
		return view.PolicyAllowExceed, nil
	case "clamped":
		return view.PolicyClamped, nil
	default:
		return 0, fmt.Errorf("unsupported policy %q (expected allow_exceed or clamped)", s)
	}
}
