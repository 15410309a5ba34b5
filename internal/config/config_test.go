package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jarvis.yaml")
	data := `
log_level: debug
assistant:
  password: friday
  listen_timeout: 4s
knowledge:
  transport: openai
  max_attempts: 5
speech:
  mode: microphone
mqtt:
  enabled: true
  host: broker.lab
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Assistant.Password != "friday" || cfg.Assistant.ListenTimeout != 4*time.Second {
		t.Errorf("assistant not loaded: %+v", cfg.Assistant)
	}
	if cfg.Knowledge.Transport != "openai" || cfg.Knowledge.MaxAttempts != 5 {
		t.Errorf("knowledge not loaded: %+v", cfg.Knowledge)
	}
	if cfg.Knowledge.Model != "gpt-4o-mini" {
		t.Error("unset fields should keep defaults")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.BrokerURL() != "mqtt://broker.lab:1883" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MODEL", "gpt-4o")
	t.Setenv("JARVIS_PASSWORD", "friday")
	t.Setenv("LAB_SERVER_URL", "http://lab:8000")
	t.Setenv("MQTT_BROKER", "mosquitto")
	t.Setenv("MQTT_PORT", "1884")
	t.Setenv("MQTT_COMMAND_TOPIC", "lab/cmd")
	t.Setenv("JARVIS_DB_PATH", "/tmp/j.db")
	t.Setenv("JARVIS_DASHBOARD_ADDR", ":8080")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Knowledge.APIKey != "sk-test" || cfg.Knowledge.Model != "gpt-4o" {
		t.Errorf("knowledge = %+v", cfg.Knowledge)
	}
	if cfg.Assistant.Password != "friday" {
		t.Error("password not applied")
	}
	if !cfg.Lab.Enabled || cfg.Lab.URL != "http://lab:8000" {
		t.Errorf("lab = %+v", cfg.Lab)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Host != "mosquitto" || cfg.MQTT.Port != 1884 || cfg.MQTT.CommandTopic != "lab/cmd" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.Store.Path != "/tmp/j.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Addr != ":8080" {
		t.Errorf("dashboard = %+v", cfg.Dashboard)
	}
}

func TestLoadEnv_BadPortKeepsDefault(t *testing.T) {
	t.Setenv("MQTT_PORT", "not-a-port")
	cfg := Default()
	cfg.LoadEnv()
	if cfg.MQTT.Port != 1883 {
		t.Errorf("port = %d", cfg.MQTT.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"transport", func(c *Config) { c.Knowledge.Transport = "grpc" }, "knowledge.transport"},
		{"attempts", func(c *Config) { c.Knowledge.MaxAttempts = 0 }, "knowledge.max_attempts"},
		{"multiplier", func(c *Config) { c.Knowledge.Multiplier = 0.5 }, "knowledge.multiplier"},
		{"mode", func(c *Config) { c.Speech.Mode = "telepathy" }, "speech.mode"},
		{"tts", func(c *Config) { c.TTS.Provider = "elevenlabs" }, "tts.provider"},
		{"listen timeout", func(c *Config) { c.Assistant.ListenTimeout = 0 }, "assistant.listen_timeout"},
		{"keyword", func(c *Config) { c.Assistant.ShutdownKeyword = "  " }, "assistant.shutdown_keyword"},
		{"db path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"poll interval", func(c *Config) { c.Lab.Enabled = true; c.Lab.PollInterval = 0 }, "lab.poll_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *Error
			if !errors.As(err, &cerr) || cerr.Field != tt.field {
				t.Errorf("Validate() = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestEmptyPasswordIsAllowed(t *testing.T) {
	cfg := Default()
	cfg.Assistant.Password = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty password should be valid, got %v", err)
	}
}
