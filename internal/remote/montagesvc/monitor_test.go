package montagesvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"montage/internal/jobs"
	"montage/internal/logging"
	"montage/internal/storage"
)

type fakeObjects struct {
	keys []string
}

var _ storage.ObjectStore = (*fakeObjects)(nil)

func (f *fakeObjects) PutFile(_ context.Context, path, key string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeObjects) GetFile(context.Context, string, string) error { return nil }

func (f *fakeObjects) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.example.com/" + key, nil
}

func newMonitorStore(t *testing.T) *jobs.Store {
	t.Helper()
	store, err := jobs.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProcessing(t *testing.T, store *jobs.Store, id string) {
	t.Helper()
	err := store.Put(context.Background(), jobs.Record{
		ID:        id,
		Kind:      jobs.KindCircleOverlay,
		Status:    jobs.StatusProcessing,
		CreatedAt: time.Now().UTC(),
	}, time.Hour)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

// montageServer simulates submit, a scripted sequence of status responses,
// and download.
func montageServer(t *testing.T, statuses []StatusResponse) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	polls := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]string{"video_id": "vid-1"})
		case strings.HasPrefix(r.URL.Path, "/status/"):
			idx := int(polls.Add(1)) - 1
			if idx >= len(statuses) {
				idx = len(statuses) - 1
			}
			_ = json.NewEncoder(w).Encode(statuses[idx])
		case strings.HasPrefix(r.URL.Path, "/download/"):
			_, _ = w.Write([]byte("finished video"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, polls
}

func newTestMonitor(t *testing.T, server *httptest.Server, store *jobs.Store, objects *fakeObjects, interval time.Duration, attempts int) *Monitor {
	t.Helper()
	return NewMonitor(MonitorOptions{
		Client:       NewClient(server.URL),
		Store:        store,
		Objects:      objects,
		WorkDir:      t.TempDir(),
		PollInterval: interval,
		MaxAttempts:  attempts,
		Logger:       logging.NewNop(),
	})
}

func TestMonitorCompletesJob(t *testing.T) {
	server, _ := montageServer(t, []StatusResponse{
		{Status: RemoteStatusProcessing},
		{Status: RemoteStatusCompleted},
	})
	store := newMonitorStore(t)
	objects := &fakeObjects{}
	monitor := newTestMonitor(t, server, store, objects, 10*time.Millisecond, 10)

	seedProcessing(t, store, "job-1")
	if err := monitor.Delegate(context.Background(), "job-1", jobs.KindCircleOverlay, jobs.CompositeRequest{
		BackgroundURL: "https://example.com/bg.mp4",
		OverlayURL:    "https://example.com/ov.mp4",
	}); err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	monitor.Wait()

	record, ok, err := store.Get(context.Background(), "job-1")
	if err != nil || !ok {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", record.Status, record.ErrorMessage)
	}
	if record.ExternalJobID != "vid-1" {
		t.Errorf("expected external id recorded, got %q", record.ExternalJobID)
	}
	if record.ResultLocator != "job-1/montage_result.mp4" {
		t.Errorf("result locator should be the object key, got %q", record.ResultLocator)
	}
	if len(objects.keys) != 1 {
		t.Errorf("expected one upload, got %v", objects.keys)
	}
}

func TestMonitorRemoteFailure(t *testing.T) {
	server, _ := montageServer(t, []StatusResponse{
		{Status: RemoteStatusFailed, ErrorMessage: "render crashed"},
	})
	store := newMonitorStore(t)
	monitor := newTestMonitor(t, server, store, &fakeObjects{}, 5*time.Millisecond, 5)

	seedProcessing(t, store, "job-2")
	if err := monitor.Delegate(context.Background(), "job-2", jobs.KindOverlay, jobs.CompositeRequest{
		BackgroundURL: "https://example.com/bg.mp4",
		OverlayURL:    "https://example.com/ov.mp4",
	}); err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	monitor.Wait()

	record, _, err := store.Get(context.Background(), "job-2")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if record.ErrorMessage != "render crashed" {
		t.Errorf("expected remote error text, got %q", record.ErrorMessage)
	}
}

func TestMonitorTimesOutAfterFullBudget(t *testing.T) {
	const (
		interval = 20 * time.Millisecond
		attempts = 3
	)
	server, polls := montageServer(t, []StatusResponse{{Status: RemoteStatusProcessing}})
	store := newMonitorStore(t)
	monitor := newTestMonitor(t, server, store, &fakeObjects{}, interval, attempts)

	seedProcessing(t, store, "job-3")
	start := time.Now()
	if err := monitor.Delegate(context.Background(), "job-3", jobs.KindCircleOverlay, jobs.CompositeRequest{
		BackgroundURL: "https://example.com/bg.mp4",
		OverlayURL:    "https://example.com/ov.mp4",
	}); err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	monitor.Wait()
	elapsed := time.Since(start)

	if elapsed < time.Duration(attempts)*interval {
		t.Errorf("monitor gave up early: %v elapsed for %d attempts at %v", elapsed, attempts, interval)
	}
	if got := polls.Load(); got != attempts {
		t.Errorf("expected %d polls, got %d", attempts, got)
	}

	record, _, err := store.Get(context.Background(), "job-3")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if !strings.Contains(record.ErrorMessage, "did not resolve") {
		t.Errorf("expected timeout reason, got %q", record.ErrorMessage)
	}
}

func TestMonitorFailsFastOnUnknownVideo(t *testing.T) {
	polls := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]string{"video_id": "vid-1"})
		case strings.HasPrefix(r.URL.Path, "/status/"):
			polls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	store := newMonitorStore(t)
	monitor := newTestMonitor(t, server, store, &fakeObjects{}, 5*time.Millisecond, 10)

	seedProcessing(t, store, "job-5")
	if err := monitor.Delegate(context.Background(), "job-5", jobs.KindCircleOverlay, jobs.CompositeRequest{
		BackgroundURL: "https://example.com/bg.mp4",
		OverlayURL:    "https://example.com/ov.mp4",
	}); err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	monitor.Wait()

	if got := polls.Load(); got != 1 {
		t.Errorf("a 404 should stop polling on the first attempt, got %d polls", got)
	}

	record, _, err := store.Get(context.Background(), "job-5")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if !strings.Contains(record.ErrorMessage, "404") {
		t.Errorf("expected the remote status code in the reason, got %q", record.ErrorMessage)
	}
}

func TestMonitorDoesNotOverwriteTerminalJob(t *testing.T) {
	server, _ := montageServer(t, []StatusResponse{{Status: RemoteStatusCompleted}})
	store := newMonitorStore(t)
	objects := &fakeObjects{}
	monitor := newTestMonitor(t, server, store, objects, 5*time.Millisecond, 5)

	seedProcessing(t, store, "job-4")
	// A webhook already resolved the job before the poll lands.
	won, err := store.Finalize(context.Background(), "job-4", jobs.CompletedPatch("https://cdn.example.com/original", time.Now().UTC()))
	if err != nil || !won {
		t.Fatalf("seed finalize: won=%v err=%v", won, err)
	}

	if err := monitor.Delegate(context.Background(), "job-4", jobs.KindCircleOverlay, jobs.CompositeRequest{
		BackgroundURL: "https://example.com/bg.mp4",
		OverlayURL:    "https://example.com/ov.mp4",
	}); err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	monitor.Wait()

	record, _, err := store.Get(context.Background(), "job-4")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s", record.Status)
	}
	if record.ResultLocator != "https://cdn.example.com/original" {
		t.Errorf("stale poll must not replace the original result, got %q", record.ResultLocator)
	}
}
