package security

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"0x29015fde8cB58126E17e5Ac46bb306a1D7339B59", true},
		{"0x29015fde8cb58126e17e5ac46bb306a1d7339b59", true},
		{"29015fde8cB58126E17e5Ac46bb306a1D7339B59", false},
		{"0x29015fde8cB58126E17e5Ac46bb306a1D7339B5", false},
		{"0x29015fde8cB58126E17e5Ac46bb306a1D7339BZZ", false},
		{"0x0000000000000000000000000000000000000000", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if _, ok := ParseAddress(tt.in); ok != tt.ok {
				t.Errorf("ParseAddress(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
		})
	}
}

func TestParseTxHash(t *testing.T) {
	good := "0x" + strings.Repeat("ab", 32)
	if h, ok := ParseTxHash(good); !ok || h.Hex() != good {
		t.Errorf("ParseTxHash(good) = %s, %v", h.Hex(), ok)
	}
	for _, bad := range []string{"", "0x1234", strings.Repeat("ab", 32), "0x" + strings.Repeat("zz", 32)} {
		if _, ok := ParseTxHash(bad); ok {
			t.Errorf("ParseTxHash(%q) accepted", bad)
		}
	}
}

func TestInflightGuard(t *testing.T) {
	g := NewInflightGuard(1)
	if !g.TryAcquire("a") {
		t.Fatal("first acquire refused")
	}
	if g.TryAcquire("a") {
		t.Error("second acquire for the same key allowed")
	}
	if !g.TryAcquire("b") {
		t.Error("other key blocked")
	}
	g.Release("a")
	if g.Inflight("a") != 0 {
		t.Errorf("Inflight(a) = %d after release", g.Inflight("a"))
	}
	if !g.TryAcquire("a") {
		t.Error("acquire after release refused")
	}
	g.Release("zzz") // releasing an unknown key is harmless
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5555", "", "203.0.113.7"},
		{"untrusted proxy ignored", "203.0.113.7:5555", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "127.0.0.1:5555", "198.51.100.1, 10.0.0.1", "198.51.100.1"},
		{"trusted proxy garbage header", "127.0.0.1:5555", "not-an-ip", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBruteForceProtector(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bf := NewBruteForceProtector(3, time.Minute)
	defer bf.Close()
	bf.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !bf.Check("1.2.3.4") {
			t.Fatalf("blocked after %d failures", i)
		}
		bf.RecordFailure("1.2.3.4")
	}
	if bf.Check("1.2.3.4") {
		t.Fatal("not blocked after max failures")
	}
	if !bf.Check("5.6.7.8") {
		t.Error("unrelated IP blocked")
	}
	now = now.Add(time.Minute)
	if !bf.Check("1.2.3.4") {
		t.Error("still blocked after block duration")
	}
	bf.RecordFailure("1.2.3.4")
	bf.RecordSuccess("1.2.3.4")
	if !bf.Check("1.2.3.4") {
		t.Error("success did not reset")
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, name := range []string{"X-Frame-Options", "X-Content-Type-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(name) == "" {
			t.Errorf("missing header %s", name)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on plain HTTP")
	}
}

func TestValidateOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if !ValidateOrigin(r, []string{"https://app.example"}) {
		t.Error("request without Origin rejected")
	}
	r.Header.Set("Origin", "https://evil.example")
	if ValidateOrigin(r, []string{"https://app.example"}) {
		t.Error("foreign origin accepted")
	}
	if !ValidateOrigin(r, nil) {
		t.Error("unrestricted list rejected origin")
	}
}

func TestAuditLoggerRateLimit(t *testing.T) {
	al, err := NewAuditLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewAuditLogger() error: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	al.now = func() time.Time { return now }
	al.windowStart = now

	al.LogSessionCreate("1.2.3.4", "0xabc", "0xdef")
	al.LogPolicyViolation("1.2.3.4", "0xabc", "bad\x00call")
	for i := 0; i < 1000; i++ {
		al.LogInflightRejected("1.2.3.4", "0xabc")
	}
	al.Close()

	f, err := os.Open(al.Path())
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var events []AuditEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad audit line: %v", err)
		}
		events = append(events, e)
	}
	if len(events) != 600 {
		t.Errorf("wrote %d events, want the per-minute cap of 600", len(events))
	}
	if events[0].EventType != "session_create" || events[0].Account != "0xabc" {
		t.Errorf("first event = %+v", events[0])
	}
	if strings.Contains(events[1].Details, "\x00") {
		t.Error("details not sanitized")
	}
}
