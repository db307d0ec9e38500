package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the gateway configuration.
const (
	DefaultHTTPPort = 8800

	DefaultConversationURL = "http://127.0.0.1:8801"
	DefaultTTSURL          = "http://127.0.0.1:8810"
	DefaultSTTURL          = "http://127.0.0.1:8803"
	DefaultMonitoringURL   = "http://127.0.0.1:8900"

	DefaultConversationTimeout = 45 * time.Second
	DefaultTTSTimeout          = 25 * time.Second
	DefaultSTTTimeout          = 90 * time.Second
	DefaultMonitoringTimeout   = 30 * time.Second
)

// DefaultTopics is the broadcast topic set used when the config file does
// not provide one. It mirrors the channels the desktop clients consume.
var DefaultTopics = []string{
	"utterance",
	"emotion",
	"avatar-action",
	"audio",
	"service-status",
}

// Config holds the full gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Topics   []string       `yaml:"topics"`
	Upstream UpstreamConfig `yaml:"upstream"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	// HTTPPort is the port the API and WebSocket hub listen on (default 8800).
	HTTPPort int `yaml:"http_port"`
}

// UpstreamConfig holds one target per external collaborator.
type UpstreamConfig struct {
	Conversation Target `yaml:"conversation"`
	TTS          Target `yaml:"tts"`
	STT          Target `yaml:"stt"`
	Monitoring   Target `yaml:"monitoring"`
}

// Target is the base URL and per-request timeout for one collaborator.
type Target struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads the config file at path, fills defaults, applies environment
// overrides and validates the result. An empty path uses defaults and the
// environment only; a missing file at a non-empty path is an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("gateway config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("gateway config: parse yaml: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("gateway config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{HTTPPort: DefaultHTTPPort},
		Topics: append([]string(nil), DefaultTopics...),
		Upstream: UpstreamConfig{
			Conversation: Target{URL: DefaultConversationURL, Timeout: DefaultConversationTimeout},
			TTS:          Target{URL: DefaultTTSURL, Timeout: DefaultTTSTimeout},
			STT:          Target{URL: DefaultSTTURL, Timeout: DefaultSTTTimeout},
			Monitoring:   Target{URL: DefaultMonitoringURL, Timeout: DefaultMonitoringTimeout},
		},
	}
}

// applyEnv overrides file-provided values with environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("CONVERSATION_HTTP"); v != "" {
		cfg.Upstream.Conversation.URL = v
	}
	if v := os.Getenv("TTS_HTTP"); v != "" {
		cfg.Upstream.TTS.URL = v
	}
	if v := os.Getenv("STT_HTTP"); v != "" {
		cfg.Upstream.STT.URL = v
	}
	if v := os.Getenv("MONITORING_HTTP"); v != "" {
		cfg.Upstream.Monitoring.URL = v
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if len(cfg.Topics) == 0 {
		return fmt.Errorf("topics must not be empty")
	}
	for _, t := range cfg.Topics {
		if t == "" {
			return fmt.Errorf("topics must not contain an empty name")
		}
	}
	for name, tgt := range map[string]Target{
		"conversation": cfg.Upstream.Conversation,
		"tts":          cfg.Upstream.TTS,
		"stt":          cfg.Upstream.STT,
		"monitoring":   cfg.Upstream.Monitoring,
	} {
		if tgt.Timeout <= 0 {
			return fmt.Errorf("upstream.%s.timeout must be positive", name)
		}
		u, err := url.Parse(tgt.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("upstream.%s.url %q is not an absolute URL", name, tgt.URL)
		}
	}
	return nil
}
