package httputil

import (
	"strings"
	"testing"
	"time"
)

func TestClientTimeouts(t *testing.T) {
	tests := []struct {
		name string
		tier TimeoutTier
		want time.Duration
	}{
		{"fast", TierFast, 5 * time.Second},
		{"medium", TierMedium, 30 * time.Second},
		{"slow", TierSlow, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Client(tt.tier)
			if c.Timeout != tt.want {
				t.Errorf("Client(%v).Timeout = %v, want %v", tt.tier, c.Timeout, tt.want)
			}
		})
	}
}

func TestClientsShareTransport(t *testing.T) {
	if FastClient().Transport != SlowClient().Transport {
		t.Error("tiered clients should share one transport")
	}
	if NewClient(10*time.Second).Transport != MediumClient().Transport {
		t.Error("NewClient should reuse the shared transport")
	}
}

func TestClientsAreSingletons(t *testing.T) {
	if FastClient() != FastClient() {
		t.Error("FastClient should return the same instance")
	}
	if MediumClient() != MediumClient() {
		t.Error("MediumClient should return the same instance")
	}
}

func TestNewClientDefaultsToSlowTimeout(t *testing.T) {
	c := NewClient(0)
	if c.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s for non-positive input", c.Timeout)
	}
	c = NewClient(90 * time.Second)
	if c.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", c.Timeout)
	}
}

func TestReadResponseBodyLimits(t *testing.T) {
	body := strings.NewReader(strings.Repeat("x", 100))
	data, err := ReadResponseBody(body, 10)
	if err != nil {
		t.Fatalf("ReadResponseBody: %v", err)
	}
	if len(data) != 10 {
		t.Errorf("read %d bytes, want 10", len(data))
	}
}

func TestReadResponseBodyDefaultLimit(t *testing.T) {
	body := strings.NewReader("hello")
	data, err := ReadResponseBody(body, 0)
	if err != nil {
		t.Fatalf("ReadResponseBody: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, want %q", data, "hello")
	}
}
