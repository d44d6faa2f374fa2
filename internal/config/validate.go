package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		return errors.New("paths.upload_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ProcessedDir) == "" {
		return errors.New("paths.processed_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be positive (got %d)", c.Workers.Count)
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.SampleRate <= 0 {
		return errors.New("tools.sample_rate must be positive")
	}
	if c.Tools.Channels <= 0 {
		return errors.New("tools.channels must be positive")
	}
	if c.Tools.MP3Quality < 0 || c.Tools.MP3Quality > 9 {
		return errors.New("tools.mp3_quality must be between 0 and 9")
	}
	for i, band := range c.Tools.Equalizer {
		if band.FrequencyHz <= 0 {
			return fmt.Errorf("tools.equalizer[%d].frequency_hz must be positive", i)
		}
		if band.WidthOctave <= 0 {
			return fmt.Errorf("tools.equalizer[%d].width_octave must be positive", i)
		}
	}
	if strings.ContainsAny(c.Tools.ResultSuffix, `/\`) {
		return errors.New("tools.result_suffix must not contain path separators")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.MaxBytes < 0 {
		return errors.New("upload.max_bytes must be >= 0")
	}
	audio := make(map[string]struct{}, len(c.Upload.AudioExtensions))
	for _, ext := range c.Upload.AudioExtensions {
		audio[ext] = struct{}{}
	}
	for _, ext := range c.Upload.VideoExtensions {
		if _, dup := audio[ext]; dup {
			return fmt.Errorf("upload extension %q listed as both audio and video", ext)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
