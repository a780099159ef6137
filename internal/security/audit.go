package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"sessionkeys/internal/constants"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	IP        string    `json:"ip,omitempty"`
	Account   string    `json:"account,omitempty"`
	Details   string    `json:"details"`
	Severity  string    `json:"severity"`
}

type AuditLogger struct {
	mu          sync.Mutex
	file        *os.File
	enc         *json.Encoder
	logDir      string
	logCount    map[string]int
	windowStart time.Time
	now         func() time.Time
}

var (
	instance *AuditLogger
	once     sync.Once
)

// GetAuditLogger returns the process-wide audit log in the per-OS data dir.
func GetAuditLogger() (*AuditLogger, error) {
	var err error
	once.Do(func() {
		var dir string
		if dir, err = getAuditLogDir(); err == nil {
			instance, err = NewAuditLogger(dir)
		}
	})
	return instance, err
}

// NewAuditLogger opens a dated audit file under dir.
func NewAuditLogger(dir string) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &AuditLogger{
		file:        file,
		enc:         json.NewEncoder(file),
		logDir:      dir,
		logCount:    make(map[string]int),
		windowStart: time.Now(),
		now:         time.Now,
	}, nil
}

func getAuditLogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", constants.AppName, "audit"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Logs", constants.AppName, "audit"), nil
	default:
		return filepath.Join(home, ".local", "share", constants.AppName, "audit"), nil
	}
}

// Log writes event unless the per-minute budget is spent or the disk is
// nearly full.
func (al *AuditLogger) Log(event AuditEvent) {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := al.now()

	if now.Sub(al.windowStart) > time.Minute {
		al.windowStart = now
		al.logCount = make(map[string]int)
	}

	totalLogs := 0
	for _, count := range al.logCount {
		totalLogs += count
	}

	if totalLogs >= constants.MaxAuditLogsPerMinute {
		return
	}
	if !al.hasEnoughDiskSpace() {
		return
	}

	al.logCount[event.EventType]++
	event.Timestamp = now
	al.enc.Encode(event) //nolint:errcheck
}

func (al *AuditLogger) LogSessionCreate(ip, account, signer string) {
	al.Log(AuditEvent{
		EventType: "session_create",
		IP:        ip,
		Account:   account,
		Details:   fmt.Sprintf("Session key %s registered", signer),
		Severity:  "info",
	})
}

func (al *AuditLogger) LogSessionCreateFailed(ip, account, reason string) {
	al.Log(AuditEvent{
		EventType: "session_create_failed",
		IP:        ip,
		Account:   account,
		Details:   SanitizeInput(reason),
		Severity:  "warning",
	})
}

func (al *AuditLogger) LogSessionRevoke(ip, account, reason string) {
	details := "Session revoked"
	if reason != "" {
		details = fmt.Sprintf("Session revoked (provider: %s)", SanitizeInput(reason))
	}
	al.Log(AuditEvent{
		EventType: "session_revoke",
		IP:        ip,
		Account:   account,
		Details:   details,
		Severity:  "info",
	})
}

func (al *AuditLogger) LogSessionTransaction(ip, account, txHash string) {
	al.Log(AuditEvent{
		EventType: "session_transaction",
		IP:        ip,
		Account:   account,
		Details:   fmt.Sprintf("Transaction %s submitted", txHash),
		Severity:  "info",
	})
}

func (al *AuditLogger) LogPolicyViolation(ip, account, reason string) {
	al.Log(AuditEvent{
		EventType: "policy_violation",
		IP:        ip,
		Account:   account,
		Details:   SanitizeInput(reason),
		Severity:  "warning",
	})
}

func (al *AuditLogger) LogInflightRejected(ip, account string) {
	al.Log(AuditEvent{
		EventType: "inflight_rejected",
		IP:        ip,
		Account:   account,
		Details:   "Concurrent session request rejected",
		Severity:  "warning",
	})
}

func (al *AuditLogger) LogAuthFailure(ip, reason string) {
	al.Log(AuditEvent{
		EventType: "auth_failure",
		IP:        ip,
		Details:   reason,
		Severity:  "warning",
	})
}

func (al *AuditLogger) LogBruteForce(ip string, attempts int) {
	al.Log(AuditEvent{
		EventType: "brute_force",
		IP:        ip,
		Details:   fmt.Sprintf("Multiple failed attempts: %d", attempts),
		Severity:  "critical",
	})
}

func (al *AuditLogger) LogInvalidRequest(ip, path, reason string) {
	al.Log(AuditEvent{
		EventType: "invalid_request",
		IP:        ip,
		Details:   fmt.Sprintf("Invalid request to %s: %s", SanitizeInput(path), reason),
		Severity:  "warning",
	})
}

func (al *AuditLogger) Path() string {
	if al.file != nil {
		return al.file.Name()
	}
	return ""
}

func (al *AuditLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file != nil {
		return al.file.Close()
	}
	return nil
}
