package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// LogEntry is one decoded JSON log line.
type LogEntry map[string]any

// Message returns the entry's msg field.
func (e LogEntry) Message() string {
	msg, _ := e["msg"].(string)
	return msg
}

// TestLogBuffer captures JSON log output in tests. It is safe for
// concurrent writers such as operation workers.
type TestLogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset discards captured output.
func (b *TestLogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// Entries decodes every captured line, skipping blank ones.
func (b *TestLogBuffer) Entries() ([]LogEntry, error) {
	b.mu.Lock()
	raw := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()

	var entries []LogEntry
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; scanner.Scan(); line++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("log line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// Messages returns the msg field of every captured entry in order.
func (b *TestLogBuffer) Messages() ([]string, error) {
	entries, err := b.Entries()
	if err != nil {
		return nil, err
	}
	msgs := make([]string, len(entries))
	for i, e := range entries {
		msgs[i] = e.Message()
	}
	return msgs, nil
}

// Find returns the first entry whose msg equals msg.
func (b *TestLogBuffer) Find(msg string) (LogEntry, bool) {
	entries, err := b.Entries()
	if err != nil {
		return nil, false
	}
	for _, e := range entries {
		if e.Message() == msg {
			return e, true
		}
	}
	return nil, false
}
