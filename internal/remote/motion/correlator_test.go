package motion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"montage/internal/jobs"
	"montage/internal/logging"
	"montage/internal/storage"
)

type fakeFetcher struct {
	err     error
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url, destPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(destPath, []byte("motion result"), 0o644); err != nil {
		return "", err
	}
	f.fetched = append(f.fetched, url)
	return destPath, nil
}

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

type fakeThumbs struct {
	err error
}

func (f *fakeThumbs) Generate(_ context.Context, _, thumbPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(thumbPath, []byte("jpeg"), 0o644)
}

type correlatorFixture struct {
	correlator *Correlator
	store      *jobs.Store
	fetcher    *fakeFetcher
	objects    *fakeObjects
	thumbs     *fakeThumbs
}

func newCorrelatorFixture(t *testing.T) *correlatorFixture {
	t.Helper()
	store, err := jobs.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &correlatorFixture{
		store:   store,
		fetcher: &fakeFetcher{},
		objects: &fakeObjects{},
		thumbs:  &fakeThumbs{},
	}
	f.correlator = NewCorrelator(CorrelatorOptions{
		Store:   store,
		Objects: f.objects,
		Fetcher: f.fetcher,
		Thumbs:  f.thumbs,
		WorkDir: t.TempDir(),
		Logger:  logging.NewNop(),
	})
	return f
}

func (f *correlatorFixture) seed(t *testing.T, id, externalID string) {
	t.Helper()
	err := f.store.Put(context.Background(), jobs.Record{
		ID:            id,
		Kind:          jobs.KindRemoteMotion,
		Status:        jobs.StatusProcessing,
		CreatedAt:     time.Now().UTC(),
		ExternalJobID: externalID,
	}, time.Hour)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func successNotice(taskID string) Notice {
	return Notice{
		Code: 200,
		Data: NoticeData{
			TaskID:     taskID,
			State:      NoticeStateSuccess,
			ResultJSON: `{"resultUrls":["https://provider.example.com/result.mp4"]}`,
		},
	}
}

func TestHandleNoticeSuccess(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.seed(t, "job-1", "task-1")

	if err := f.correlator.HandleNotice(context.Background(), successNotice("task-1")); err != nil {
		t.Fatalf("HandleNotice failed: %v", err)
	}

	record, _, err := f.store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", record.Status, record.ErrorMessage)
	}
	if record.ResultLocator != "job-1/motion_result.mp4" {
		t.Errorf("result locator should be the object key, got %q", record.ResultLocator)
	}
	if record.ThumbnailLocator != "job-1/thumbnail.jpg" {
		t.Errorf("thumbnail locator should be the object key, got %q", record.ThumbnailLocator)
	}
	if len(f.fetcher.fetched) != 1 || f.fetcher.fetched[0] != "https://provider.example.com/result.mp4" {
		t.Errorf("unexpected fetches %v", f.fetcher.fetched)
	}
	if len(f.objects.keys) != 2 {
		t.Errorf("expected result and thumbnail uploads, got %v", f.objects.keys)
	}
}

func TestHandleNoticeThumbnailFailureIsNonFatal(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.thumbs.err = errors.New("no decodable frame")
	f.seed(t, "job-2", "task-2")

	if err := f.correlator.HandleNotice(context.Background(), successNotice("task-2")); err != nil {
		t.Fatalf("HandleNotice failed: %v", err)
	}

	record, _, err := f.store.Get(context.Background(), "job-2")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusCompleted {
		t.Fatalf("thumbnail failure must not fail the job, got %s", record.Status)
	}
	if record.ThumbnailLocator != "" {
		t.Errorf("expected empty thumbnail locator, got %q", record.ThumbnailLocator)
	}
}

func TestHandleNoticeFailureState(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.seed(t, "job-3", "task-3")

	err := f.correlator.HandleNotice(context.Background(), Notice{
		Code: 200,
		Data: NoticeData{TaskID: "task-3", State: "fail", FailMsg: "generation rejected"},
	})
	if err != nil {
		t.Fatalf("HandleNotice failed: %v", err)
	}

	record, _, err := f.store.Get(context.Background(), "job-3")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if record.ErrorMessage != "generation rejected" {
		t.Errorf("unexpected error message %q", record.ErrorMessage)
	}
}

func TestHandleNoticeUnknownTaskIgnored(t *testing.T) {
	f := newCorrelatorFixture(t)

	if err := f.correlator.HandleNotice(context.Background(), successNotice("task-unknown")); err != nil {
		t.Fatalf("unknown task must be swallowed, got %v", err)
	}
	if len(f.objects.keys) != 0 {
		t.Errorf("nothing should be uploaded for unknown tasks, got %v", f.objects.keys)
	}
}

func TestHandleNoticeDuplicateIgnored(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.seed(t, "job-4", "task-4")

	if err := f.correlator.HandleNotice(context.Background(), successNotice("task-4")); err != nil {
		t.Fatal(err)
	}
	first, _, err := f.store.Get(context.Background(), "job-4")
	if err != nil {
		t.Fatal(err)
	}

	// Second delivery of the same notice changes nothing.
	if err := f.correlator.HandleNotice(context.Background(), successNotice("task-4")); err != nil {
		t.Fatal(err)
	}
	second, _, err := f.store.Get(context.Background(), "job-4")
	if err != nil {
		t.Fatal(err)
	}
	if second.ResultLocator != first.ResultLocator || second.Status != first.Status {
		t.Errorf("duplicate notice mutated the record: %+v vs %+v", first, second)
	}
	if len(f.objects.keys) != 2 {
		t.Errorf("duplicate notice should not re-upload, got %v", f.objects.keys)
	}
}

func TestHandleNoticeNonSuccessCodeIgnored(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.seed(t, "job-5", "task-5")

	if err := f.correlator.HandleNotice(context.Background(), Notice{Code: 500, Data: NoticeData{TaskID: "task-5"}}); err != nil {
		t.Fatalf("non-success code must be swallowed, got %v", err)
	}
	record, _, err := f.store.Get(context.Background(), "job-5")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusProcessing {
		t.Errorf("record must stay processing, got %s", record.Status)
	}
}

func TestHandleNoticeMissingTaskID(t *testing.T) {
	f := newCorrelatorFixture(t)
	if err := f.correlator.HandleNotice(context.Background(), Notice{Code: 200}); err == nil {
		t.Fatal("expected error for missing taskId")
	}
}

func TestHandleNoticeBadResultJSON(t *testing.T) {
	f := newCorrelatorFixture(t)
	f.seed(t, "job-6", "task-6")

	err := f.correlator.HandleNotice(context.Background(), Notice{
		Code: 200,
		Data: NoticeData{TaskID: "task-6", State: NoticeStateSuccess, ResultJSON: "not json"},
	})
	if err != nil {
		t.Fatalf("HandleNotice failed: %v", err)
	}
	record, _, err := f.store.Get(context.Background(), "job-6")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != jobs.StatusFailed {
		t.Errorf("unparseable result should fail the job, got %s", record.Status)
	}
}
