package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startWatcher(t *testing.T, roots ...string) (*Watcher, <-chan string) {
	t.Helper()
	fired := make(chan string, 16)
	w, err := New(roots, 50*time.Millisecond, func(_ context.Context, root string) {
		fired <- root
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, fired
}

func waitFor(t *testing.T, fired <-chan string) string {
	t.Helper()
	select {
	case root := <-fired:
		return root
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rerun")
		return ""
	}
}

func TestWatcher_FixtureChangeTriggersOnce(t *testing.T) {
	root := t.TempDir()
	w, fired := startWatcher(t, root)

	// A burst of writes inside the debounce window collapses into one rerun.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "1.png"), []byte{byte(i)}, 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "1.txt"), []byte("abc"), 0644))

	got := waitFor(t, fired)
	want, _ := filepath.Abs(root)
	assert.Equal(t, filepath.Clean(want), got)

	select {
	case extra := <-fired:
		t.Fatalf("unexpected second rerun for %s", extra)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, 1, w.Stats().Triggers)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	w, fired := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.swp"), []byte("x"), 0644))

	select {
	case got := <-fired:
		t.Fatalf("unexpected rerun for %s", got)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, 0, w.Stats().Events)
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	_, fired := startWatcher(t, root)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "2.gif"), []byte("x"), 0644))

	waitFor(t, fired)
}

func TestWatcher_MultipleRootsReportTheirOwnRoot(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	_, fired := startWatcher(t, a, b)

	require.NoError(t, os.WriteFile(filepath.Join(b, "x.bin"), []byte("x"), 0644))
	got := waitFor(t, fired)
	want, _ := filepath.Abs(b)
	assert.Equal(t, filepath.Clean(want), got)
}

func TestWatcher_StopIsIdempotentAndContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, err := New([]string{t.TempDir()}, 0, func(context.Context, string) {}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))

	cancel()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not exit on cancel")
	}
	w.Stop()
	w.Stop()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, 0, func(context.Context, string) {}, nil)
	assert.Error(t, err)

	_, err = New([]string{"."}, 0, nil, nil)
	assert.Error(t, err)
}

func TestStart_MissingRoot(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "absent")}, 0, func(context.Context, string) {}, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
}

func TestRootOf(t *testing.T) {
	w := &Watcher{roots: []string{"/f", "/f/qr", "/g"}}
	assert.Equal(t, "/f/qr", w.rootOf("/f/qr/1.png"))
	assert.Equal(t, "/f", w.rootOf("/f/ean/1.png"))
	assert.Equal(t, "", w.rootOf("/fx/1.png"))
}
