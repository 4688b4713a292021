package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// createTestHome points WIREMUX_HOME at a fresh temp dir so tests never read
// or write the real user config.
func createTestHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WIREMUX_HOME", dir)
	return dir
}

func writeValidConfig(t *testing.T, dir string) {
	t.Helper()
	body := `[listen]
addr = "127.0.0.1:0"
transport = "tcp"

[codec]
name = "json"

[chat]
server = "127.0.0.1:7420"
transport = "tcp"
reply_timeout = "2s"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingTransmitter captures every frame handed to Transmit.
type recordingTransmitter struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recordingTransmitter) Transmit(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), p...))
	return nil
}

func (r *recordingTransmitter) take() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := r.frames
	r.frames = nil
	return frames
}
