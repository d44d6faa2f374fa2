package stage

import (
	"path/filepath"
	"strings"

	"vocalsplit/internal/jobs"
)

// Workspace carries the file paths a job's stages hand to one another.
type Workspace struct {
	JobID     string
	InputPath string
	// BaseName is the input file name without its extension. Every artifact
	// the pipeline writes is named after it.
	BaseName  string
	MediaKind jobs.MediaKind
	OutputDir string

	// AudioPath is the audio fed to separation: the input itself for audio
	// jobs, the extracted WAV for video jobs.
	AudioPath string
	// ExtractedAudio is set when extraction wrote an intermediate file that
	// must be removed once the job ends.
	ExtractedAudio string
	StemDir        string
	VocalsPath     string
	ResultPath     string
}

// NewWorkspace derives a workspace for job writing into outputDir.
func NewWorkspace(job jobs.Job, outputDir string) *Workspace {
	base := filepath.Base(job.InputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	ws := &Workspace{
		JobID:     job.ID,
		InputPath: job.InputPath,
		BaseName:  base,
		MediaKind: job.MediaKind,
		OutputDir: outputDir,
	}
	if job.MediaKind == jobs.MediaAudio {
		ws.AudioPath = job.InputPath
	}
	return ws
}

// ArtifactPath joins name onto the output directory.
func (w *Workspace) ArtifactPath(name string) string {
	return filepath.Join(w.OutputDir, name)
}
