package motion

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"montage/internal/jobs"
	"montage/internal/logging"
	"montage/internal/services"
	"montage/internal/storage"
)

// Notice is the provider's asynchronous completion payload.
type Notice struct {
	Code int        `json:"code"`
	Data NoticeData `json:"data"`
}

// NoticeData carries the task outcome.
type NoticeData struct {
	TaskID     string `json:"taskId"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson,omitempty"`
	FailMsg    string `json:"failMsg,omitempty"`
}

// NoticeStateSuccess is the provider's success state.
const NoticeStateSuccess = "success"

// Fetcher downloads the provider's result artifact.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) (string, error)
}

// Thumbnailer derives a preview image from a video file.
type Thumbnailer interface {
	Generate(ctx context.Context, videoPath, thumbPath string) error
}

// Correlator matches inbound notices to dispatched jobs via the persisted
// external task id and finalizes them. Duplicate or unknown notices are
// ignored; finalization is guarded so a late notice cannot regress a
// terminal record.
type Correlator struct {
	store      *jobs.Store
	objects    storage.ObjectStore
	fetcher    Fetcher
	thumbs     Thumbnailer
	workDir    string
	logger     *slog.Logger
}

// CorrelatorOptions configures a Correlator. Thumbs may be nil to skip
// thumbnail generation.
type CorrelatorOptions struct {
	Store      *jobs.Store
	Objects    storage.ObjectStore
	Fetcher    Fetcher
	Thumbs     Thumbnailer
	WorkDir    string
	Logger     *slog.Logger
}

// NewCorrelator constructs a correlator.
func NewCorrelator(opts CorrelatorOptions) *Correlator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Correlator{
		store:   opts.Store,
		objects: opts.Objects,
		fetcher: opts.Fetcher,
		thumbs:  opts.Thumbs,
		workDir: opts.WorkDir,
		logger:  logging.NewComponentLogger(logger, "motion-correlator"),
	}
}

// HandleNotice processes one webhook notice. It returns an error only for
// malformed notices; unknown task ids and duplicates are swallowed.
func (c *Correlator) HandleNotice(ctx context.Context, notice Notice) error {
	if notice.Code != http.StatusOK {
		c.logger.Warn("ignoring notice with non-success code", logging.Int("code", notice.Code))
		return nil
	}
	if notice.Data.TaskID == "" {
		return services.Wrap(services.ErrValidation, "webhook", "", "notice missing taskId", nil)
	}

	logger := c.logger.With(logging.String(logging.FieldExternalID, notice.Data.TaskID))

	record, found, err := c.store.FindByExternalID(ctx, notice.Data.TaskID)
	if err != nil {
		return err
	}
	if !found {
		logger.Warn("notice does not match any dispatched job")
		return nil
	}
	if record.Status.Terminal() {
		logger.Info("duplicate notice for terminal job ignored")
		return nil
	}

	logger = logger.With(logging.String(logging.FieldJobID, record.ID))

	if notice.Data.State != NoticeStateSuccess {
		message := notice.Data.FailMsg
		if message == "" {
			message = "motion provider reported failure"
		}
		c.finalize(ctx, record.ID, jobs.FailedPatch(message, time.Now().UTC()), logger)
		return nil
	}

	resultURL, err := firstResultURL(notice.Data.ResultJSON)
	if err != nil {
		c.finalize(ctx, record.ID, jobs.FailedPatch("provider result could not be parsed", time.Now().UTC()), logger)
		return nil
	}

	dest := filepath.Join(c.workDir, record.ID+"-motion.mp4")
	if _, err := c.fetcher.Fetch(ctx, resultURL, dest); err != nil {
		c.finalize(ctx, record.ID, jobs.FailedPatch(err.Error(), time.Now().UTC()), logger)
		return nil
	}
	defer os.Remove(dest)

	key := record.ID + "/motion_result.mp4"
	if err := c.objects.PutFile(ctx, dest, key); err != nil {
		c.finalize(ctx, record.ID, jobs.FailedPatch(err.Error(), time.Now().UTC()), logger)
		return nil
	}

	patch := jobs.CompletedPatch(key, time.Now().UTC())
	if thumb := c.makeThumbnail(ctx, record.ID, dest, logger); thumb != "" {
		patch.ThumbnailLocator = &thumb
	}
	c.finalize(ctx, record.ID, patch, logger)
	return nil
}

// makeThumbnail derives and uploads a preview image. Failures only log;
// thumbnails are best-effort.
func (c *Correlator) makeThumbnail(ctx context.Context, jobID, videoPath string, logger *slog.Logger) string {
	if c.thumbs == nil {
		return ""
	}
	thumbPath := filepath.Join(c.workDir, jobID+"-thumb.jpg")
	if err := c.thumbs.Generate(ctx, videoPath, thumbPath); err != nil {
		logger.Warn("thumbnail generation failed", logging.Error(err))
		return ""
	}
	defer os.Remove(thumbPath)

	key := jobID + "/thumbnail.jpg"
	if err := c.objects.PutFile(ctx, thumbPath, key); err != nil {
		logger.Warn("thumbnail upload failed", logging.Error(err))
		return ""
	}
	return key
}

func (c *Correlator) finalize(ctx context.Context, jobID string, patch jobs.Patch, logger *slog.Logger) {
	won, err := c.store.Finalize(ctx, jobID, patch)
	if err != nil {
		logger.Error("failed to finalize job from notice", logging.Error(err))
		return
	}
	if !won {
		logger.Info("job already terminal, notice discarded")
		return
	}
	logger.Info("job finalized from notice", logging.String("status", string(*patch.Status)))
}

// firstResultURL extracts the first entry of the provider's resultUrls list.
func firstResultURL(resultJSON string) (string, error) {
	var parsed struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &parsed); err != nil {
		return "", err
	}
	if len(parsed.ResultURLs) == 0 || parsed.ResultURLs[0] == "" {
		return "", services.Wrap(services.ErrRemoteService, "webhook", "", "resultUrls empty", nil)
	}
	return parsed.ResultURLs[0], nil
}
