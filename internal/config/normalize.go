package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Normalize applies defaults, environment fallbacks, and path expansion. Load
// calls it automatically; code that builds a Config by hand should call it
// before use.
func (c *Config) Normalize() error {
	return c.normalize()
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWorkers(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeUpload()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if c.Paths.ProcessedDir, err = expandPath(c.Paths.ProcessedDir); err != nil {
		return fmt.Errorf("paths.processed_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("VOCALSPLIT_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeWorkers() error {
	if value, ok := os.LookupEnv("VOCALSPLIT_WORKERS"); ok && strings.TrimSpace(value) != "" {
		count, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("VOCALSPLIT_WORKERS: %w", err)
		}
		c.Workers.Count = count
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = defaultWorkerCount
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpegBinary = orDefault(c.Tools.FFmpegBinary, defaultFFmpegBinary)
	c.Tools.FFprobeBinary = orDefault(c.Tools.FFprobeBinary, defaultFFprobeBinary)
	c.Tools.SpleeterBinary = orDefault(c.Tools.SpleeterBinary, defaultSpleeterBinary)
	c.Tools.SpleeterModel = orDefault(c.Tools.SpleeterModel, defaultSpleeterModel)
	c.Tools.ResultSuffix = orDefault(c.Tools.ResultSuffix, defaultResultSuffix)
	if c.Tools.SampleRate == 0 {
		c.Tools.SampleRate = defaultSampleRate
	}
	if c.Tools.Channels == 0 {
		c.Tools.Channels = defaultChannels
	}
	if len(c.Tools.Equalizer) == 0 {
		c.Tools.Equalizer = defaultEqualizer()
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = defaultMaxUploadBytes
	}
	c.Upload.AudioExtensions = normalizeExtensions(c.Upload.AudioExtensions, defaultAudioExtensions)
	c.Upload.VideoExtensions = normalizeExtensions(c.Upload.VideoExtensions, defaultVideoExtensions)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("VOCALSPLIT_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func normalizeExtensions(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "."))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
