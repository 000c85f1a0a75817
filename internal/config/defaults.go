package config

const (
	defaultWorkDir          = "~/.local/share/audiomill/work"
	defaultOutputDir        = "~/.local/share/audiomill/output"
	defaultLogDir           = "~/.local/share/audiomill/logs"
	defaultAPIBind          = "127.0.0.1:7488"
	defaultSegmentSeconds   = 30
	defaultSegmentExtension = "mp4"
	defaultOutputExtension  = "mp3"
	defaultAudioQuality     = "0"
	defaultAudioBitrate     = "128k"
	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultRetentionMinutes = 60
	defaultMaxUploadMiB     = 4096
	defaultHistoryDays      = 90
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Pipeline: Pipeline{
			SegmentSeconds:   defaultSegmentSeconds,
			SegmentExtension: defaultSegmentExtension,
			OutputExtension:  defaultOutputExtension,
			AudioQuality:     defaultAudioQuality,
			AudioBitrate:     defaultAudioBitrate,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			ProbeInput:    true,
		},
		Tasks: Tasks{
			RetentionMinutes:     defaultRetentionMinutes,
			HistoryEnabled:       true,
			HistoryRetentionDays: defaultHistoryDays,
			MaxUploadMiB:         defaultMaxUploadMiB,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
