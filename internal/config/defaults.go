package config

// Default returns a Config with sensible defaults: websocket enabled on
// all interfaces (0.0.0.0:8080, path /ws), serial and BLE disabled (they need real hardware wiring to
// mean anything), an 8-service router table, and a 2KB frame pool block.
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			MaxServices: 8,
		},
		FramePool: FramePoolConfig{
			BlockSize: 2048,
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Address: "0.0.0.0:8080",
			Path:    "/ws",
		},
		Serial: SerialConfig{
			Enabled:    false,
			Prefix:     `\xAA\x55`,
			Suffix:     `\x0D\x0A`,
			PayloadMax: 4096,
		},
		BLE: BLEConfig{
			Enabled:    false,
			FrameMax:   512,
			DeviceName: "edgerpc",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: "0.0.0.0:9090",
			Path:    "/metrics",
		},
	}
}
