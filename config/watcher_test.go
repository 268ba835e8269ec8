package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "services.json", `{"services": {"a": {"type": "sink"}}}`)

	loader := NewLoader()
	loader.AddLayer(path)

	var mu sync.Mutex
	var applied []*Config
	watcher := NewWatcher(loader, func(_ context.Context, cfg *Config) error {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, cfg)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer func() { _ = watcher.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte(`{"services": {"a": {"type": "sink"}, "b": {"type": "relay"}}}`), 0o600))

	require.Eventually(t, func() bool {
		return watcher.Reloads() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	last := applied[len(applied)-1]
	mu.Unlock()
	assert.Contains(t, last.Services, "b")
}

func TestWatcher_KeepsConfigOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "services.json", `{"services": {}}`)

	loader := NewLoader()
	loader.AddLayer(path)

	calls := make(chan struct{}, 10)
	watcher := NewWatcher(loader, func(context.Context, *Config) error {
		calls <- struct{}{}
		return nil
	}, nil)

	require.NoError(t, watcher.Start(context.Background()))
	defer func() { _ = watcher.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte(`{"services": `), 0o600))

	select {
	case <-calls:
		t.Fatal("broken configuration must not be applied")
	case <-time.After(400 * time.Millisecond):
	}
	assert.Zero(t, watcher.Reloads())
}

func TestWatcher_StartTwice(t *testing.T) {
	path := writeFile(t, t.TempDir(), "services.json", `{}`)
	loader := NewLoader()
	loader.AddLayer(path)

	watcher := NewWatcher(loader, func(context.Context, *Config) error { return nil }, nil)
	require.NoError(t, watcher.Start(context.Background()))
	assert.Error(t, watcher.Start(context.Background()))
	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}
