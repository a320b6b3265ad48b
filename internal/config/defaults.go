package config

const (
	defaultWorkDir                = "~/.local/share/montage/work"
	defaultDataDir                = "~/.local/share/montage/data"
	defaultLogDir                 = "~/.local/share/montage/logs"
	defaultAPIBind                = "127.0.0.1:8642"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultTTLHours               = 24
	defaultSweepIntervalMinutes   = 10
	defaultStaleProcessingMinutes = 120
	defaultQueueDriver            = "memory"
	defaultQueueName              = "montage_jobs"
	defaultQueueWorkers           = 2
	defaultFetchMaxSizeMiB        = 512
	defaultFetchTimeoutSeconds    = 120
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultSubtitlePolicy         = "fail"
	defaultMusicBitrate           = "128k"
	defaultCircleScale            = 0.6
	defaultOverlayMargin          = 20
	defaultStorageRegion          = "us-east-1"
	defaultStorageBucket          = "montage-videos"
	defaultPresignTTLMinutes      = 60
	defaultMontagePollSeconds     = 30
	defaultMontageMaxAttempts     = 30
	defaultMotionModel            = "kling-2.6/motion-control"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Store: Store{
			TTLHours:               defaultTTLHours,
			SweepIntervalMinutes:   defaultSweepIntervalMinutes,
			StaleProcessingMinutes: defaultStaleProcessingMinutes,
		},
		Queue: Queue{
			Driver:  defaultQueueDriver,
			Name:    defaultQueueName,
			Workers: defaultQueueWorkers,
		},
		Fetch: Fetch{
			MaxSizeMiB:          defaultFetchMaxSizeMiB,
			TimeoutSeconds:      defaultFetchTimeoutSeconds,
			AllowedContentTypes: []string{"video/", "audio/", "application/octet-stream"},
		},
		Pipeline: Pipeline{
			FFmpegBinary:          defaultFFmpegBinary,
			FFprobeBinary:         defaultFFprobeBinary,
			SubtitleFailurePolicy: defaultSubtitlePolicy,
			MusicBitrate:          defaultMusicBitrate,
			CircleScale:           defaultCircleScale,
			OverlayMargin:         defaultOverlayMargin,
		},
		Storage: Storage{
			Region:            defaultStorageRegion,
			Bucket:            defaultStorageBucket,
			PresignTTLMinutes: defaultPresignTTLMinutes,
		},
		Montage: Montage{
			PollIntervalSeconds: defaultMontagePollSeconds,
			MaxAttempts:         defaultMontageMaxAttempts,
		},
		Motion: Motion{
			Model: defaultMotionModel,
		},
	}
}
