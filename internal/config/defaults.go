package config

const (
	defaultConfigPath       = "~/.config/vocalsplit/config.toml"
	defaultUploadDir        = "~/.local/share/vocalsplit/uploads"
	defaultProcessedDir     = "~/.local/share/vocalsplit/processed"
	defaultLogDir           = "~/.local/share/vocalsplit/logs"
	defaultAPIBind          = "127.0.0.1:7491"
	defaultWorkerCount      = 2
	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultSpleeterBinary   = "spleeter"
	defaultSpleeterModel    = "spleeter:5stems"
	defaultSampleRate       = 44100
	defaultChannels         = 2
	defaultMP3Quality       = 2
	defaultResultSuffix     = "_vocals"
	defaultMaxUploadBytes   = 500 * 1024 * 1024
	defaultNtfyTimeout      = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

var (
	defaultAudioExtensions = []string{"mp3", "wav", "flac", "ogg", "aac", "m4a"}
	defaultVideoExtensions = []string{"mp4", "mov", "avi", "mkv", "webm"}
)

func defaultEqualizer() []EqualizerBand {
	return []EqualizerBand{
		{FrequencyHz: 200, WidthOctave: 2, GainDB: -2},
		{FrequencyHz: 3000, WidthOctave: 1, GainDB: 3},
	}
}

// Default returns a Config populated with repository defaults. List-valued
// settings (extension allow-lists, equalizer bands) are left empty so a config
// file replaces them instead of appending; Normalize fills them in.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:    defaultUploadDir,
			ProcessedDir: defaultProcessedDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Workers: Workers{
			Count: defaultWorkerCount,
		},
		Tools: Tools{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			SpleeterBinary: defaultSpleeterBinary,
			SpleeterModel:  defaultSpleeterModel,
			SampleRate:     defaultSampleRate,
			Channels:       defaultChannels,
			MP3Quality:     defaultMP3Quality,
			Loudnorm:       true,
			ResultSuffix:   defaultResultSuffix,
		},
		Upload: Upload{
			MaxBytes: defaultMaxUploadBytes,
		},
		History: History{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			OnCompleted:    true,
			OnFailed:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
