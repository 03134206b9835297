package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "agent"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		ARI: ARIConfig{
			URL:          "http://127.0.0.1:8088/ari",
			WebsocketURL: "ws://127.0.0.1:8088/ari/events",
			Username:     "agent",
			Password:     "x",
			Trunks:       "PJSIP/%s@trunk:1",
		},
		LLM: LLMConfig{BaseURL: "http://127.0.0.1:11434/v1"},
		STT: STTConfig{URL: "ws://127.0.0.1:2700"},
		TTS: TTSConfig{PiperModel: "/models/en_US-amy-medium.onnx"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.HasPrefix(err.Error(), "config errors:") {
		t.Fatalf("expected joined errors, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.Auth.OperatorKey = "k"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Scheduling.OpenHour != 9 || c.Scheduling.CloseHour != 21 {
		t.Fatalf("expected 9-21 business window, got %d-%d", c.Scheduling.OpenHour, c.Scheduling.CloseHour)
	}
	if c.Scheduling.Buffer != 15*time.Minute {
		t.Fatalf("expected 15m buffer, got %v", c.Scheduling.Buffer)
	}
	if c.Scheduling.ReferenceZone != "Asia/Kolkata" {
		t.Fatalf("expected reference zone default, got %q", c.Scheduling.ReferenceZone)
	}
	if c.Dialer.Concurrency != 10 {
		t.Fatalf("expected dialer concurrency 10, got %d", c.Dialer.Concurrency)
	}
	if c.Session.MaxCallDuration != 30*time.Minute || c.Session.WatchdogInterval != 5*time.Minute {
		t.Fatalf("unexpected watchdog defaults: %+v", c.Session)
	}
	if c.Session.MinRecordingBytes != 1000 {
		t.Fatalf("expected min recording bytes 1000, got %d", c.Session.MinRecordingBytes)
	}
	if c.STT.Provider != "websocket" || c.TTS.Provider != "piper" {
		t.Fatalf("unexpected provider defaults: stt=%q tts=%q", c.STT.Provider, c.TTS.Provider)
	}
	if c.Session.AgentName != "Sam" || c.Session.Company != "SusaLabs" {
		t.Fatalf("unexpected persona defaults: %q/%q", c.Session.AgentName, c.Session.Company)
	}
}

func TestValidate_KeepsConfiguredPersona(t *testing.T) {
	c := validLocal()
	c.Session.AgentName = "Priya"
	c.Session.Company = "Acme"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Session.AgentName != "Priya" || c.Session.Company != "Acme" {
		t.Fatalf("persona overwritten: %q/%q", c.Session.AgentName, c.Session.Company)
	}
}

func TestValidate_RejectsInvertedBusinessWindow(t *testing.T) {
	c := validLocal()
	c.Scheduling.OpenHour = 20
	c.Scheduling.CloseHour = 10
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for inverted window")
	}
}

func TestValidate_RejectsUnknownProviders(t *testing.T) {
	c := validLocal()
	c.STT.Provider = "carrier-pigeon"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown stt provider")
	}
}

func TestValidate_OpenAIProvidersNeedNoLocalPaths(t *testing.T) {
	c := validLocal()
	c.STT = STTConfig{Provider: "openai"}
	c.TTS = TTSConfig{Provider: "openai"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.STT.Model != "whisper-1" || c.TTS.Voice != "alloy" {
		t.Fatalf("expected openai defaults, got %+v %+v", c.STT, c.TTS)
	}
}
