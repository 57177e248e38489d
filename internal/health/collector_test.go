package health

import (
	"context"
	"testing"
)

func TestCollectorCollect(t *testing.T) {
	c := NewCollector()
	m := c.Collect(context.Background())

	if m.Goroutines <= 0 {
		t.Errorf("expected at least one goroutine, got %d", m.Goroutines)
	}
	if m.UptimeSeconds < 0 {
		t.Errorf("uptime must not be negative, got %d", m.UptimeSeconds)
	}
	if m.MemoryUsage < 0 || m.MemoryUsage > 100 {
		t.Errorf("memory usage out of range: %f", m.MemoryUsage)
	}
}

func TestHostInfo(t *testing.T) {
	info := HostInfo()
	for _, key := range []string{"os", "arch", "hostname", "version"} {
		if info[key] == "" {
			t.Errorf("expected %s to be populated", key)
		}
	}
}
