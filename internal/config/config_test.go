package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.WebSocket.Address != "0.0.0.0:8080" {
		t.Errorf("expected default websocket address 0.0.0.0:8080, got %s", cfg.WebSocket.Address)
	}
	if cfg.Router.MaxServices != 8 {
		t.Errorf("expected max_services 8, got %d", cfg.Router.MaxServices)
	}
	if cfg.FramePool.BlockSize != 2048 {
		t.Errorf("expected frame_pool block_size 2048, got %d", cfg.FramePool.BlockSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config should validate, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	yaml := `
router:
  max_services: 4
frame_pool:
  block_size: 1024
websocket:
  enabled: true
  address: "0.0.0.0:9090"
  path: "/rpc"
logging:
  level: "debug"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "edgerpcd.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.WebSocket.Address != "0.0.0.0:9090" {
		t.Errorf("expected address 0.0.0.0:9090, got %s", cfg.WebSocket.Address)
	}
	if cfg.Router.MaxServices != 4 {
		t.Errorf("expected max_services 4, got %d", cfg.Router.MaxServices)
	}
	if cfg.FramePool.BlockSize != 1024 {
		t.Errorf("expected block_size 1024, got %d", cfg.FramePool.BlockSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/edgerpcd.yaml")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestValidateMaxServicesZero(t *testing.T) {
	cfg := Default()
	cfg.Router.MaxServices = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for max_services=0")
	}
}

func TestValidateMaxServicesAboveEight(t *testing.T) {
	cfg := Default()
	cfg.Router.MaxServices = 9
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for max_services=9 (exceeds the 3-bit service index)")
	}
}

func TestValidateWebSocketAddressRequired(t *testing.T) {
	cfg := Default()
	cfg.WebSocket.Address = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for enabled websocket without address")
	}
}

func TestValidateBLEFrameMaxOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.WebSocket.Enabled = false
	cfg.BLE.Enabled = true
	cfg.BLE.FrameMax = 1024
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for ble.frame_max > 512")
	}
}

func TestValidateNoTransportEnabled(t *testing.T) {
	cfg := Default()
	cfg.WebSocket.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when no transport is enabled")
	}
}
