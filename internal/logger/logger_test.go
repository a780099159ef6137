package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sessionkeys/internal/session"
)

func readEntries(t *testing.T, path string) []LogEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var out []LogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad journal line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	return out
}

func TestLogChange(t *testing.T) {
	l, err := NewLogger(t.TempDir(), "journal")
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	signer := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := common.HexToHash("0xabc")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	l.LogChange(session.Change{
		Account:    account,
		State:      session.StateActive,
		Transition: session.TransitionCreated,
		Signer:     signer,
		TxHash:     &tx,
		ExpiresAt:  at.Add(24 * time.Hour),
		At:         at,
	})
	l.LogChange(session.Change{
		Account:    account,
		State:      session.StateNoSession,
		Transition: session.TransitionCreateFailed,
		Err:        errors.New("boom"),
		At:         at,
	})
	l.Close()

	entries := readEntries(t, l.GetLogPath())
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	first := entries[0]
	if first.ID == "" || first.ID == entries[1].ID {
		t.Error("entries need distinct ids")
	}
	if first.Account != account.Hex() || first.State != "active" || first.Transition != "created" {
		t.Errorf("first entry = %+v", first)
	}
	if first.Signer != signer.Hex() || first.TxHash != tx.Hex() || first.ExpiresAt == nil {
		t.Errorf("first entry details = %+v", first)
	}
	if second := entries[1]; second.Error != "boom" || second.Signer != "" || second.ExpiresAt != nil {
		t.Errorf("second entry = %+v", second)
	}
}

func TestLogStampsMissingTimestamp(t *testing.T) {
	l, err := NewLogger(t.TempDir(), "journal")
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}
	fixed := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	if err := l.Log(LogEntry{Account: "a"}); err != nil {
		t.Fatalf("Log() error: %v", err)
	}
	l.Close()

	if got := readEntries(t, l.GetLogPath())[0].Timestamp; !got.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", got, fixed)
	}
}
