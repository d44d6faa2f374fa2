package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const encoderProbeTimeout = 10 * time.Second

// CheckFFmpegEncoder reports whether ffmpeg was built with the named audio
// encoder. Post-processing needs libmp3lame, which minimal ffmpeg builds omit.
func CheckFFmpegEncoder(ctx context.Context, ffmpegBinary, encoder string) Status {
	result := Status{
		Name:        "FFmpeg " + encoder,
		Command:     strings.TrimSpace(ffmpegBinary),
		Description: "Required to encode the vocal track",
	}
	if result.Command == "" {
		result.Detail = "command not configured"
		return result
	}
	path, err := exec.LookPath(result.Command)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", result.Command)
		return result
	}
	result.Path = path

	probeCtx, cancel := context.WithTimeout(ctx, encoderProbeTimeout)
	defer cancel()
	output, err := exec.CommandContext(probeCtx, path, "-hide_banner", "-encoders").Output() //nolint:gosec
	if err != nil {
		result.Detail = fmt.Sprintf("list encoders: %v", err)
		return result
	}
	if !listsEncoder(output, encoder) {
		result.Detail = fmt.Sprintf("encoder %q not compiled into ffmpeg", encoder)
		return result
	}
	result.Available = true
	return result
}

// listsEncoder scans `ffmpeg -encoders` output, whose rows look like
// " A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3)".
func listsEncoder(output []byte, encoder string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == encoder {
			return true
		}
	}
	return false
}
