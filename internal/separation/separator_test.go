package separation_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"vocalsplit/internal/jobs"
	"vocalsplit/internal/separation"
	"vocalsplit/internal/services"
	"vocalsplit/internal/stage"
	"vocalsplit/internal/stageexec"
	"vocalsplit/internal/testsupport"
)

func TestBuildArgs(t *testing.T) {
	got := separation.BuildArgs("spleeter:5stems", "/processed", "/uploads/x_song.mp3")
	want := []string{"separate", "-p", "spleeter:5stems", "-o", "/processed", "/uploads/x_song.mp3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BuildArgs = %v, want %v", got, want)
	}
	if dir := separation.StemDir("/processed", "/uploads/x_song.mp3"); dir != "/processed/x_song" {
		t.Fatalf("StemDir = %q", dir)
	}
}

func TestSeparatorFindsVocals(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	input := testsupport.WriteUpload(t, cfg.Paths.UploadDir, "j1", "song.mp3")
	ws := stage.NewWorkspace(jobs.Job{ID: "j1", InputPath: input, MediaKind: jobs.MediaAudio}, cfg.Paths.ProcessedDir)

	handler := separation.NewSeparator(cfg, stageexec.NewRunner(nil, "", nil), nil)
	ctx := context.Background()
	if err := handler.Prepare(ctx, ws); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := handler.Execute(ctx, ws); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := filepath.Join(cfg.Paths.ProcessedDir, "j1_song", "vocals.wav")
	if ws.VocalsPath != want {
		t.Fatalf("vocals path = %q, want %q", ws.VocalsPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected vocals stem: %v", err)
	}
}

func TestSeparatorRequiresAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	ws := stage.NewWorkspace(jobs.Job{ID: "v", InputPath: "/uploads/v.mp4", MediaKind: jobs.MediaVideo}, cfg.Paths.ProcessedDir)

	handler := separation.NewSeparator(cfg, stageexec.NewRunner(nil, "", nil), nil)
	if err := handler.Prepare(context.Background(), ws); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without audio, got %v", err)
	}
}

func TestSeparatorZeroExitWithoutVocalsFails(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	// The ffprobe stub exits 0 without writing any stems.
	cfg.Tools.SpleeterBinary = cfg.Tools.FFprobeBinary
	input := testsupport.WriteUpload(t, cfg.Paths.UploadDir, "j3", "song.wav")
	ws := stage.NewWorkspace(jobs.Job{ID: "j3", InputPath: input, MediaKind: jobs.MediaAudio}, cfg.Paths.ProcessedDir)

	handler := separation.NewSeparator(cfg, stageexec.NewRunner(nil, "", nil), nil)
	if err := handler.Prepare(context.Background(), ws); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := handler.Execute(context.Background(), ws)
	var failure *stageexec.Failure
	if !errors.As(err, &failure) || failure.Missing != ws.VocalsPath {
		t.Fatalf("expected missing vocals failure, got %v", err)
	}
}
