package services_test

import (
	"errors"
	"strings"
	"testing"

	"vocalsplit/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "separation", "run spleeter", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"separation", "run spleeter", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if got := services.Message(err); got != "service failure" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestMessageStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrExternalTool, "post_processing", "run ffmpeg", "encode failed", errors.New("exit status 1"))
	got := services.Message(err)
	want := "post_processing: run ffmpeg: encode failed: exit status 1"
	if got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
	if services.Kind(err) != services.ErrExternalTool.Error() {
		t.Fatalf("unexpected kind %q", services.Kind(err))
	}
}

func TestMessageHandlesPlainErrors(t *testing.T) {
	if got := services.Message(errors.New("disk full")); got != "disk full" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := services.Message(nil); got != "" {
		t.Fatalf("expected empty message for nil, got %q", got)
	}
	if services.Kind(errors.New("x")) != "unknown" {
		t.Fatal("expected unknown kind for untagged error")
	}
}
