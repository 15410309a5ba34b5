// Package config loads go-jarvis configuration from an optional YAML file and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file picked up from the working directory when no
// explicit path is given.
const DefaultFile = "jarvis.yaml"

// DefaultSystemPrompt is the persona given to the knowledge service.
const DefaultSystemPrompt = "You are JARVIS, an advanced AI assistant. Respond in a polite, concise manner."

// Config holds all configuration for the assistant.
// Flag parsing is done in cmd/jarvis; this struct is data only.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Assistant AssistantConfig `yaml:"assistant"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Speech    SpeechConfig    `yaml:"speech"`
	TTS       TTSConfig       `yaml:"tts"`
	Lab       LabConfig       `yaml:"lab"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Store     StoreConfig     `yaml:"store"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// AssistantConfig controls the session loop and the shutdown gate.
type AssistantConfig struct {
	SystemPrompt    string        `yaml:"system_prompt"`
	Greeting        string        `yaml:"greeting"`
	ShutdownKeyword string        `yaml:"shutdown_keyword"`
	Password        string        `yaml:"password"` // empty disables the shutdown gate
	ListenTimeout   time.Duration `yaml:"listen_timeout"`
	AuthTimeout     time.Duration `yaml:"auth_timeout"`
}

// KnowledgeConfig configures the language-model service and its retry policy.
type KnowledgeConfig struct {
	Transport   string        `yaml:"transport"` // "http" or "openai"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// SpeechConfig configures utterance capture and recognition.
type SpeechConfig struct {
	Mode             string        `yaml:"mode"` // "console" or "microphone"
	Device           string        `yaml:"device"`
	SampleRate       int           `yaml:"sample_rate"`
	SilenceThreshold float64       `yaml:"silence_threshold"`
	SilenceDuration  time.Duration `yaml:"silence_duration"`
	MaxUtterance     time.Duration `yaml:"max_utterance"`
	Model            string        `yaml:"model"`
	Language         string        `yaml:"language"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	Provider string `yaml:"provider"` // "console" or "openai"
	Voice    string `yaml:"voice"`
	Model    string `yaml:"model"`
}

// LabConfig points at the lab telemetry server.
type LabConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ListenAddr   string        `yaml:"listen_addr"` // used by "jarvis lab serve"
}

// MQTTConfig configures the IoT broker connection.
type MQTTConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ClientID     string `yaml:"client_id"`
	CommandTopic string `yaml:"command_topic"`
	StatusTopic  string `yaml:"status_topic"`
}

// BrokerURL returns the broker address as an mqtt:// URL.
func (m MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("mqtt://%s:%d", m.Host, m.Port)
}

// StoreConfig configures the history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig configures the web dashboard and control API.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns sensible defaults for every section.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Assistant: AssistantConfig{
			SystemPrompt:    DefaultSystemPrompt,
			Greeting:        "How may I assist you?",
			ShutdownKeyword: "shutdown",
			ListenTimeout:   10 * time.Second,
			AuthTimeout:     5 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			Transport:   "http",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Multiplier:  2,
		},
		Speech: SpeechConfig{
			Mode:             "console",
			SampleRate:       16000,
			SilenceThreshold: 500,
			SilenceDuration:  800 * time.Millisecond,
			MaxUtterance:     15 * time.Second,
			Model:            "whisper-1",
			Language:         "en",
		},
		TTS: TTSConfig{
			Provider: "console",
			Voice:    "onyx",
			Model:    "tts-1",
		},
		Lab: LabConfig{
			URL:          "http://localhost:8000",
			PollInterval: 2 * time.Second,
			ListenAddr:   ":8000",
		},
		MQTT: MQTTConfig{
			Host:         "localhost",
			Port:         1883,
			ClientID:     "jarvis",
			CommandTopic: "jarvis/commands",
			StatusTopic:  "jarvis/status",
		},
		Store: StoreConfig{
			Path: "jarvis.db",
		},
		Dashboard: DashboardConfig{
			Addr: ":5000",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.LoadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadEnv applies environment variable overrides.
func (c *Config) LoadEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Assistant.Password = getEnv("JARVIS_PASSWORD", c.Assistant.Password)

	c.Knowledge.APIKey = getEnv("OPENAI_API_KEY", c.Knowledge.APIKey)
	c.Knowledge.Model = getEnv("MODEL", c.Knowledge.Model)
	c.Knowledge.BaseURL = getEnv("OPENAI_BASE_URL", c.Knowledge.BaseURL)

	if url, ok := os.LookupEnv("LAB_SERVER_URL"); ok {
		c.Lab.URL = url
		c.Lab.Enabled = true
	}

	if host, ok := os.LookupEnv("MQTT_BROKER"); ok {
		c.MQTT.Host = host
		c.MQTT.Enabled = true
	}
	c.MQTT.Port = getEnvInt("MQTT_PORT", c.MQTT.Port)
	c.MQTT.CommandTopic = getEnv("MQTT_COMMAND_TOPIC", c.MQTT.CommandTopic)
	c.MQTT.StatusTopic = getEnv("MQTT_STATUS_TOPIC", c.MQTT.StatusTopic)

	c.Store.Path = getEnv("JARVIS_DB_PATH", c.Store.Path)

	if addr, ok := os.LookupEnv("JARVIS_DASHBOARD_ADDR"); ok {
		c.Dashboard.Addr = addr
		c.Dashboard.Enabled = true
	}
	c.Dashboard.Enabled = getEnvBool("JARVIS_DASHBOARD", c.Dashboard.Enabled)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Knowledge.Transport {
	case "http", "openai":
	default:
		return &Error{Field: "knowledge.transport", Message: "must be \"http\" or \"openai\", got " + strconv.Quote(c.Knowledge.Transport)}
	}
	if c.Knowledge.MaxAttempts < 1 {
		return &Error{Field: "knowledge.max_attempts", Message: "must be at least 1"}
	}
	if c.Knowledge.BaseDelay < 0 {
		return &Error{Field: "knowledge.base_delay", Message: "must not be negative"}
	}
	if c.Knowledge.Multiplier < 1 {
		return &Error{Field: "knowledge.multiplier", Message: "must be at least 1"}
	}
	switch c.Speech.Mode {
	case "console", "microphone":
	default:
		return &Error{Field: "speech.mode", Message: "must be \"console\" or \"microphone\", got " + strconv.Quote(c.Speech.Mode)}
	}
	switch c.TTS.Provider {
	case "console", "openai":
	default:
		return &Error{Field: "tts.provider", Message: "must be \"console\" or \"openai\", got " + strconv.Quote(c.TTS.Provider)}
	}
	if c.Assistant.ListenTimeout <= 0 {
		return &Error{Field: "assistant.listen_timeout", Message: "must be positive"}
	}
	if c.Assistant.AuthTimeout <= 0 {
		return &Error{Field: "assistant.auth_timeout", Message: "must be positive"}
	}
	if strings.TrimSpace(c.Assistant.ShutdownKeyword) == "" {
		return &Error{Field: "assistant.shutdown_keyword", Message: "cannot be empty"}
	}
	if c.Store.Path == "" {
		return &Error{Field: "store.path", Message: "JARVIS_DB_PATH cannot be empty"}
	}
	if c.Lab.Enabled && c.Lab.PollInterval <= 0 {
		return &Error{Field: "lab.poll_interval", Message: "must be positive"}
	}
	return nil
}

// Error represents a configuration validation error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
