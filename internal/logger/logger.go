// Package logger keeps a JSON-lines journal of session lifecycle changes.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/session"
)

type LogEntry struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Account     string     `json:"account"`
	State       string     `json:"state"`
	Transition  string     `json:"transition"`
	Signer      string     `json:"signer,omitempty"`
	SessionHash string     `json:"session_hash,omitempty"`
	TxHash      string     `json:"tx_hash,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Logger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewLogger opens <dir>/<name>.log for appending. An empty dir selects
// the per-OS data directory.
func NewLogger(dir, name string) (*Logger, error) {
	if dir == "" {
		var err error
		if dir, err = getLogDir(); err != nil {
			return nil, fmt.Errorf("failed to get log directory: %w", err)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, name+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		file: file,
		enc:  json.NewEncoder(file),
		now:  time.Now,
	}, nil
}

func getLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	var logDir string
	switch runtime.GOOS {
	case "windows":
		logDir = filepath.Join(homeDir, "AppData", "Local", constants.AppName, "logs")
	case "darwin":
		logDir = filepath.Join(homeDir, "Library", "Logs", constants.AppName)
	default: // linux and others
		logDir = filepath.Join(homeDir, ".local", "share", constants.AppName, "logs")
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			logDir = filepath.Join(xdgData, constants.AppName, "logs")
		}
	}

	return logDir, nil
}

func (l *Logger) Log(entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	return l.enc.Encode(entry)
}

// LogChange is a session.Observer.
func (l *Logger) LogChange(c session.Change) {
	entry := LogEntry{
		Timestamp:  c.At,
		Account:    c.Account.Hex(),
		State:      c.State.String(),
		Transition: string(c.Transition),
	}
	if c.Signer != (common.Address{}) {
		entry.Signer = c.Signer.Hex()
	}
	if c.SessionHash != (common.Hash{}) {
		entry.SessionHash = c.SessionHash.Hex()
	}
	if c.TxHash != nil {
		entry.TxHash = c.TxHash.Hex()
	}
	if !c.ExpiresAt.IsZero() {
		exp := c.ExpiresAt.UTC()
		entry.ExpiresAt = &exp
	}
	if c.Err != nil {
		entry.Error = c.Err.Error()
	}
	l.Log(entry) //nolint:errcheck
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) GetLogPath() string {
	if l.file != nil {
		return l.file.Name()
	}
	return ""
}
