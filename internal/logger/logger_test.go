package logger

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	entry := WithComponent("test-component")
	if entry == nil {
		t.Fatal("expected non-nil entry")
	}

	if val, ok := entry.Data["component"]; !ok {
		t.Error("expected component field to be set")
	} else if val != "test-component" {
		t.Errorf("expected component 'test-component', got '%v'", val)
	}
}

func TestLoggerInit(t *testing.T) {
	if Logger == nil {
		t.Fatal("expected Logger to be initialized")
	}

	if Logger.Out != os.Stdout {
		t.Error("expected Logger output to be os.Stdout")
	}
}

func TestSetLevel(t *testing.T) {
	origLevel := Logger.GetLevel()
	defer Logger.SetLevel(origLevel)

	tests := []struct {
		name          string
		input         string
		expectedLevel logrus.Level
	}{
		{"debug level", "debug", logrus.DebugLevel},
		{"warn level", "warn", logrus.WarnLevel},
		{"DEBUG uppercase", "DEBUG", logrus.DebugLevel},
		{"invalid falls back to info", "chatty", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SetLevel(tt.input)
			if got != tt.expectedLevel {
				t.Errorf("expected level %v, got %v", tt.expectedLevel, got)
			}
			if Logger.GetLevel() != tt.expectedLevel {
				t.Errorf("expected logger level %v, got %v", tt.expectedLevel, Logger.GetLevel())
			}
		})
	}
}

func TestWithKey(t *testing.T) {
	entry := WithKey("fetch", "courses")
	if entry.Data["component"] != "fetch" {
		t.Errorf("expected component 'fetch', got '%v'", entry.Data["component"])
	}
	if entry.Data["cache_key"] != "courses" {
		t.Errorf("expected cache_key 'courses', got '%v'", entry.Data["cache_key"])
	}

	anon := WithKey("fetch", "")
	if anon.Data["cache_key"] != "<none>" {
		t.Errorf("expected placeholder for empty key, got '%v'", anon.Data["cache_key"])
	}
}
