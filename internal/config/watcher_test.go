package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 50 * time.Millisecond

type seedList struct {
	Commands []struct {
		Name    string `toml:"name"`
		Command string `toml:"command"`
	} `toml:"commands"`
}

func loadSeedList(path string) (seedList, error) {
	var list seedList
	data, err := os.ReadFile(path)
	if err != nil {
		return list, err
	}
	err = toml.Unmarshal(data, &list)
	return list, err
}

func seedTOML(names ...string) string {
	out := ""
	for _, n := range names {
		out += "[[commands]]\nname = \"" + n + "\"\ncommand = \"echo " + n + "\"\n"
	}
	return out
}

func names(list seedList) []string {
	out := make([]string, len(list.Commands))
	for i, c := range list.Commands {
		out[i] = c.Name
	}
	return out
}

// startWatcher writes initial content (when non-empty), starts a watcher and
// stops it at test cleanup.
func startWatcher(t *testing.T, initial string, load func(string) (seedList, error), opts ...WatcherOption[seedList]) (*Watcher[seedList], string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commands.toml")
	if initial != "" {
		writeFile(t, path, initial)
	}

	opts = append([]WatcherOption[seedList]{WithDebounce[seedList](testDebounce)}, opts...)
	w := NewFileWatcher(path, load, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	require.NoError(t, w.Start())
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })

	// Give the backend time to register the directory.
	time.Sleep(2 * testDebounce)
	return w, path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func receive(t *testing.T, ch <-chan seedList) seedList {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
		return seedList{}
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	w, path := startWatcher(t, seedTOML("build"), loadSeedList)
	got := make(chan seedList, 1)
	w.OnReload(func(l seedList) { got <- l })

	writeFile(t, path, seedTOML("build", "test"))
	assert.Equal(t, []string{"build", "test"}, names(receive(t, got)))
}

func TestWatcherFollowsFileCreatedAfterStart(t *testing.T) {
	w, path := startWatcher(t, "", loadSeedList)
	got := make(chan seedList, 1)
	w.OnReload(func(l seedList) { got <- l })

	writeFile(t, path, seedTOML("late"))
	assert.Equal(t, []string{"late"}, names(receive(t, got)))
}

func TestWatcherFollowsRenameOverFile(t *testing.T) {
	w, path := startWatcher(t, seedTOML("old"), loadSeedList)
	got := make(chan seedList, 1)
	w.OnReload(func(l seedList) { got <- l })

	tmp := path + ".tmp"
	writeFile(t, tmp, seedTOML("new"))
	require.NoError(t, os.Rename(tmp, path))
	assert.Equal(t, []string{"new"}, names(receive(t, got)))
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	w, path := startWatcher(t, seedTOML("a"), loadSeedList)
	var calls atomic.Int32
	w.OnReload(func(seedList) { calls.Add(1) })

	writeFile(t, filepath.Join(filepath.Dir(path), "other.toml"), seedTOML("b"))
	time.Sleep(6 * testDebounce)
	assert.Zero(t, calls.Load())
}

func TestWatcherDebouncesBursts(t *testing.T) {
	var loads atomic.Int32
	load := func(p string) (seedList, error) {
		loads.Add(1)
		return loadSeedList(p)
	}
	w, path := startWatcher(t, seedTOML("v0"), load)
	got := make(chan seedList, 10)
	w.OnReload(func(l seedList) { got <- l })

	for _, n := range []string{"v1", "v2", "v3", "v4"} {
		writeFile(t, path, seedTOML(n))
		time.Sleep(testDebounce / 5)
	}

	assert.Equal(t, []string{"v4"}, names(receive(t, got)))
	time.Sleep(4 * testDebounce)
	assert.Equal(t, int32(1), loads.Load())
}

func TestWatcherSharesOneLoadAcrossHandlers(t *testing.T) {
	var loads atomic.Int32
	load := func(p string) (seedList, error) {
		loads.Add(1)
		return loadSeedList(p)
	}
	w, path := startWatcher(t, seedTOML("a"), load)

	first := make(chan seedList, 1)
	second := make(chan seedList, 1)
	w.OnReload(func(l seedList) { first <- l })
	w.OnReload(func(l seedList) { second <- l })

	writeFile(t, path, seedTOML("b"))
	assert.Equal(t, []string{"b"}, names(receive(t, first)))
	assert.Equal(t, []string{"b"}, names(receive(t, second)))
	assert.Equal(t, int32(1), loads.Load())
}

func TestWatcherUnsubscribe(t *testing.T) {
	w, path := startWatcher(t, seedTOML("a"), loadSeedList)

	var removed atomic.Int32
	unsubscribe := w.OnReload(func(seedList) { removed.Add(1) })
	kept := make(chan seedList, 1)
	w.OnReload(func(l seedList) { kept <- l })
	unsubscribe()

	writeFile(t, path, seedTOML("b"))
	receive(t, kept)
	assert.Zero(t, removed.Load())
}

func TestWatcherReportsLoadErrors(t *testing.T) {
	errs := make(chan error, 1)
	w, path := startWatcher(t, seedTOML("a"), loadSeedList, WithErrorHandler[seedList](func(err error) {
		errs <- err
	}))
	var calls atomic.Int32
	w.OnReload(func(seedList) { calls.Add(1) })

	writeFile(t, path, "[[commands]\nbroken")

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for load error")
	}
	assert.Zero(t, calls.Load())
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, path := startWatcher(t, seedTOML("a"), loadSeedList)
	var calls atomic.Int32
	w.OnReload(func(seedList) { calls.Add(1) })

	require.NoError(t, w.Stop())
	writeFile(t, path, seedTOML("b"))
	time.Sleep(4 * testDebounce)
	assert.Zero(t, calls.Load())
}

func TestWatcherConcurrentSubscribers(t *testing.T) {
	w, path := startWatcher(t, seedTOML("a"), loadSeedList)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsubscribe := w.OnReload(func(seedList) {})
			unsubscribe()
		}()
	}
	done := make(chan seedList, 1)
	w.OnReload(func(l seedList) { done <- l })
	wg.Wait()

	writeFile(t, path, seedTOML("b"))
	receive(t, done)
}

func TestStopBeforeStart(t *testing.T) {
	w := NewFileWatcher("commands.toml", func(string) (seedList, error) {
		return seedList{}, errors.New("unused")
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, w.Stop())
}
