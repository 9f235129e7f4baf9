package discovery

import (
	"testing"
	"time"
)

func TestService_String(t *testing.T) {
	tests := []struct {
		name     string
		service  *Service
		expected string
	}{
		{
			name: "known vendor",
			service: &Service{
				Instance: "Sena WiFi Adapter",
				Hostname: "sena-wifi-adapter.local.",
				IP:       "192.168.4.16",
				Port:     80,
				Vendor:   "sena",
			},
			expected: "Sena WiFi Adapter [sena] at 192.168.4.16:80",
		},
		{
			name: "unknown vendor",
			service: &Service{
				Instance: "Office Printer",
				IP:       "192.168.1.20",
				Port:     631,
			},
			expected: "Office Printer at 192.168.1.20:631",
		},
		{
			name: "no instance name falls back to hostname",
			service: &Service{
				Hostname: "gateway.local.",
				IP:       "192.168.1.1",
				Port:     80,
			},
			expected: "gateway.local. at 192.168.1.1:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.service.String(); got != tt.expected {
				t.Errorf("Service.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestService_BaseURL(t *testing.T) {
	tests := []struct {
		name     string
		service  *Service
		expected string
	}{
		{
			name: "standard HTTP port",
			service: &Service{
				IP:   "192.168.4.16",
				Port: 80,
			},
			expected: "http://192.168.4.16:80",
		},
		{
			name: "custom port",
			service: &Service{
				IP:   "10.0.0.5",
				Port: 8080,
			},
			expected: "http://10.0.0.5:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.service.BaseURL(); got != tt.expected {
				t.Errorf("Service.BaseURL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestService_Known(t *testing.T) {
	known := &Service{Vendor: "cardo"}
	if !known.Known() {
		t.Error("Service.Known() = false for tagged service, want true")
	}

	unknown := &Service{}
	if unknown.Known() {
		t.Error("Service.Known() = true for untagged service, want false")
	}
}

func TestService_GetText(t *testing.T) {
	service := &Service{
		Text: map[string]string{
			"path":    "/",
			"srcvers": "1D90645",
		},
	}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "existing key",
			key:      "path",
			expected: "/",
		},
		{
			name:     "another existing key",
			key:      "srcvers",
			expected: "1D90645",
		},
		{
			name:     "non-existent key",
			key:      "missing",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.GetText(tt.key); got != tt.expected {
				t.Errorf("Service.GetText(%v) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestService_GetText_NilMap(t *testing.T) {
	service := &Service{
		Text: nil,
	}

	if got := service.GetText("anything"); got != "" {
		t.Errorf("Service.GetText() with nil map = %v, want empty string", got)
	}
}

func TestService_DiscoveredAt(t *testing.T) {
	now := time.Now()
	service := &Service{
		Instance:     "Sena WiFi Adapter",
		DiscoveredAt: now,
	}

	if service.DiscoveredAt != now {
		t.Errorf("Service.DiscoveredAt = %v, want %v", service.DiscoveredAt, now)
	}
}
