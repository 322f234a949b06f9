package config

import (
	"flag"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/andrijaa/opusrtp-streamer/internal/obs"
)

// SenderConfig holds the sender binary's external CLI contract.
type SenderConfig struct {
	Input       string `yaml:"input"`
	Remote      string `yaml:"remote"`
	IntervalMs  int    `yaml:"interval_ms"`
	MetricsBind string `yaml:"metrics_bind"`
	ConfigPath  string `yaml:"-"`
}

// ReceiverConfig holds the receiver binary's external CLI contract.
type ReceiverConfig struct {
	Port        int    `yaml:"port"`
	BufferDepth int    `yaml:"buffer_depth_ms"`
	MetricsBind string `yaml:"metrics_bind"`
	StatusBind  string `yaml:"status_bind"`
	ConfigPath  string `yaml:"-"`
}

// ParseSenderFlags parses args (typically os.Args[1:]) into a
// SenderConfig, applying a --config YAML file's values first and then
// letting any explicitly-passed flags override them.
func ParseSenderFlags(args []string) (SenderConfig, error) {
	fs := flag.NewFlagSet("sender", flag.ContinueOnError)
	cfg := SenderConfig{IntervalMs: 20}

	fs.StringVar(&cfg.Input, "input", "", "path to the PCM/WAV source file")
	fs.StringVar(&cfg.Remote, "remote", "", "receiver address host:port")
	fs.IntVar(&cfg.IntervalMs, "interval-ms", 20, "pacing interval in milliseconds")
	fs.StringVar(&cfg.MetricsBind, "metrics-bind", "", "address to expose Prometheus metrics on (empty disables)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "optional YAML file overriding the flags above")

	if err := fs.Parse(args); err != nil {
		return SenderConfig{}, obs.Wrap(obs.KindConfig, "config.ParseSenderFlags", err)
	}

	if cfg.ConfigPath != "" {
		if err := mergeYAML(cfg.ConfigPath, &cfg); err != nil {
			return SenderConfig{}, err
		}
		// Re-parse so any flag explicitly passed on the command line
		// takes precedence over the file it just loaded.
		if err := fs.Parse(args); err != nil {
			return SenderConfig{}, obs.Wrap(obs.KindConfig, "config.ParseSenderFlags", err)
		}
	}

	if cfg.Input == "" {
		return SenderConfig{}, obs.Wrap(obs.KindConfig, "config.ParseSenderFlags", errRequired("--input"))
	}
	if cfg.Remote == "" {
		return SenderConfig{}, obs.Wrap(obs.KindConfig, "config.ParseSenderFlags", errRequired("--remote"))
	}
	return cfg, nil
}

// ParseReceiverFlags parses args into a ReceiverConfig, with the same
// --config YAML override semantics as ParseSenderFlags.
func ParseReceiverFlags(args []string) (ReceiverConfig, error) {
	fs := flag.NewFlagSet("receiver", flag.ContinueOnError)
	cfg := ReceiverConfig{Port: 5004, BufferDepth: 60}

	fs.IntVar(&cfg.Port, "port", 5004, "UDP port to listen on")
	fs.IntVar(&cfg.BufferDepth, "buffer-depth-ms", 60, "jitter buffer priming depth in milliseconds")
	fs.StringVar(&cfg.MetricsBind, "metrics-bind", "", "address to expose Prometheus metrics on (empty disables)")
	fs.StringVar(&cfg.StatusBind, "status-bind", "", "address to expose the WebSocket status feed on (empty disables)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "optional YAML file overriding the flags above")

	if err := fs.Parse(args); err != nil {
		return ReceiverConfig{}, obs.Wrap(obs.KindConfig, "config.ParseReceiverFlags", err)
	}

	if cfg.ConfigPath != "" {
		if err := mergeYAML(cfg.ConfigPath, &cfg); err != nil {
			return ReceiverConfig{}, err
		}
		if err := fs.Parse(args); err != nil {
			return ReceiverConfig{}, obs.Wrap(obs.KindConfig, "config.ParseReceiverFlags", err)
		}
	}

	return cfg, nil
}

func mergeYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return obs.Wrap(obs.KindConfig, "config.mergeYAML", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return obs.Wrap(obs.KindConfig, "config.mergeYAML", err)
	}
	return nil
}

type errRequired string

func (e errRequired) Error() string { return string(e) + " is required" }
