package audit

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	if got := ClientIP(req); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Real-IP", "192.0.2.7")
	if got := ClientIP(req); got != "192.0.2.7" {
		t.Fatalf("expected real ip, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	if got := ClientIP(req); got != "198.51.100.1" {
		t.Fatalf("expected first forwarded ip, got %q", got)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	entry := normalize(Entry{Metadata: []byte(`{"metering_point_id":"mp-1"}`)})
	if !strings.HasPrefix(entry.ID, "audit-") {
		t.Fatalf("unexpected id %q", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Fatalf("expected created at")
	}
	if len(entry.PayloadDigest) != 64 {
		t.Fatalf("expected sha256 digest, got %q", entry.PayloadDigest)
	}
	if DigestJSON(nil) != "" {
		t.Fatalf("expected empty digest for empty payload")
	}
}
