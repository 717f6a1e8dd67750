package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touchForward(t *testing.T, path string, offset time.Duration) {
	t.Helper()
	when := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(path, when, when))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")

	w, err := NewWatcher(NewLoader(), path, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	reloaded := make(chan *Config, 1)
	w.OnReload(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	touchForward(t, path, 2*time.Second)

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never fired")
	}
}

func TestWatcher_BadConfigKeepsPrevious(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")

	w, err := NewWatcher(NewLoader(), path, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	w.OnReload(func(*Config) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log: [broken"), 0o644))
	touchForward(t, path, 2*time.Second)

	select {
	case <-fired:
		t.Fatal("callback must not fire for a config that fails to load")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_StartTwiceFails(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	w, err := NewWatcher(NewLoader(), path)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher(NewLoader(), "")
	assert.Error(t, err)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	w, err := NewWatcher(NewLoader(), path)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
