package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingReloader struct {
	mu            sync.Mutex
	frameTimeouts []time.Duration
	slops         []uint64
	mirrorEnabled []bool
}

func (r *recordingReloader) SetFrameTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frameTimeouts = append(r.frameTimeouts, d)
}

func (r *recordingReloader) SetTimestampSlop(v uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slops = append(r.slops, v)
}

func (r *recordingReloader) SetMirrorEnabled(b bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirrorEnabled = append(r.mirrorEnabled, b)
}

func (r *recordingReloader) frameTimeoutCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frameTimeouts)
}

func TestWatcherAppliesInitialFileOnRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frameagg.toml")
	if err := os.WriteFile(path, []byte(`frame_timeout = "1s"`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	target := &recordingReloader{}
	w := NewWatcher(path, target, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for target.frameTimeoutCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if target.frameTimeoutCount() != 1 {
		t.Fatalf("frameTimeoutCount = %d, want 1", target.frameTimeoutCount())
	}
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frameagg.toml")
	if err := os.WriteFile(path, []byte(`frame_timeout = "1s"`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	target := &recordingReloader{}
	w := NewWatcher(path, target, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for target.frameTimeoutCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := os.WriteFile(path, []byte(`frame_timeout = "2s"`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline = time.Now().Add(3 * time.Second)
	for target.frameTimeoutCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if target.frameTimeoutCount() < 2 {
		t.Fatalf("frameTimeoutCount = %d, want >= 2 after file change", target.frameTimeoutCount())
	}
}
