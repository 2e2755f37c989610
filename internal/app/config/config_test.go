package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
hardware:
  sensors:
    - handle: 1
      name: accelerometer
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Service.MinPeriod != 10*time.Millisecond {
		t.Fatalf("min period default: %s", cfg.Service.MinPeriod)
	}
	if cfg.Service.FallbackPeriod != time.Second {
		t.Fatalf("fallback period default: %s", cfg.Service.FallbackPeriod)
	}
	if cfg.Service.PollBatch != 16 {
		t.Fatalf("poll batch default: %d", cfg.Service.PollBatch)
	}
	if cfg.Service.Transport != TransportMemory {
		t.Fatalf("transport default: %q", cfg.Service.Transport)
	}
	if cfg.Service.ChannelBufBytes != 4096 {
		t.Fatalf("channel buffer default: %d", cfg.Service.ChannelBufBytes)
	}
	if cfg.ActivityLog.Table != "sensor_activity" {
		t.Fatalf("activity table default: %q", cfg.ActivityLog.Table)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("metrics addr default: %q", cfg.Metrics.Addr)
	}
	if cfg.Hardware.Sensors[0].Vendor != "sensormux" {
		t.Fatalf("hardware vendor default: %q", cfg.Hardware.Sensors[0].Vendor)
	}
}

func TestLoadParsesValues(t *testing.T) {
	path := writeConfig(t, `
service:
  min_period: 5ms
  fallback_period: 2s
  poll_batch: 32
  transport: socketpair
  channel_buffer_bytes: 8192
hardware:
  sensors:
    - handle: 1
      name: accelerometer
      vendor: acme
      min_delay: 2ms
activity_log:
  conn_string: "postgres://localhost/sensors"
  table: power_journal
metrics:
  addr: ":9200"
dump:
  token: hunter2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.MinPeriod != 5*time.Millisecond {
		t.Fatalf("min period: %s", cfg.Service.MinPeriod)
	}
	if cfg.Service.Transport != TransportSocketPair {
		t.Fatalf("transport: %q", cfg.Service.Transport)
	}
	if cfg.ActivityLog.Table != "power_journal" {
		t.Fatalf("activity table: %q", cfg.ActivityLog.Table)
	}
	if cfg.Dump.Token != "hunter2" {
		t.Fatalf("dump token: %q", cfg.Dump.Token)
	}
	if cfg.Hardware.Sensors[0].MinDelay != 2*time.Millisecond {
		t.Fatalf("sensor min delay: %s", cfg.Hardware.Sensors[0].MinDelay)
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `
service:
  transport: pigeon
hardware:
  sensors:
    - handle: 1
      name: accelerometer
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown transport to be rejected")
	}
}

func TestLoadRejectsEmptyFleet(t *testing.T) {
	path := writeConfig(t, `
service:
  poll_batch: 8
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected empty sensor fleet to be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "service: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
