package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestNewConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"BUS_DRIVER", "TICK_INTERVAL", "GUIDED_DEMO", "MAX_LOOPS", "ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}
	c := NewConfigFromEnv()

	if c.BusDriver != BusDriverNATS || c.TickInterval != time.Second || c.MaxLoops != 5 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if !c.AutoStart() || c.LoopLimit() != 0 {
		t.Error("without guided demo the loop auto-starts and never stops")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNewConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("BUS_DRIVER", "MEMORY")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("GUIDED_DEMO", "true")
	t.Setenv("MAX_LOOPS", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	c := NewConfigFromEnv()
	if c.BusDriver != BusDriverMemory || c.TickInterval != 250*time.Millisecond {
		t.Errorf("unexpected overrides: %+v", c)
	}
	if c.AutoStart() || c.LoopLimit() != 3 {
		t.Errorf("guided demo: autostart=%v limit=%d", c.AutoStart(), c.LoopLimit())
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(c.AllowedOrigins, want) {
		t.Errorf("origins = %v, want %v", c.AllowedOrigins, want)
	}
}

func TestNewConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_LOOPS", "many")
	t.Setenv("TICK_INTERVAL", "soon")
	c := NewConfigFromEnv()
	if c.MaxLoops != 5 || c.TickInterval != time.Second {
		t.Errorf("invalid values should fall back: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	c := Config{BusDriver: "kafka", TickInterval: 0, MaxLoops: -1}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation errors")
	}
}

func TestLoad(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LIVESHOP_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIVESHOP_TEST_KEY", "")
	os.Unsetenv("LIVESHOP_TEST_KEY")
	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("LIVESHOP_TEST_KEY"); got != "from-file" {
		t.Errorf("LIVESHOP_TEST_KEY = %q", got)
	}
}

func TestBusConfig(t *testing.T) {
	c := Config{
		NATSURL:       "nats://bus:4222",
		SubjectPrefix: "demo",
		StreamName:    "DEMO_HISTORY",
		HistoryMaxAge: time.Hour,
	}
	got := c.BusConfig()
	if got.URL != c.NATSURL || got.SubjectPrefix != "demo" || got.StreamName != "DEMO_HISTORY" || got.MaxAge != time.Hour {
		t.Errorf("unexpected bus config: %+v", got)
	}
	if got.ReconnectWait == 0 || got.Replicas != 1 {
		t.Errorf("transport defaults lost: %+v", got)
	}
}
