package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vocalsplit/internal/api"
	"vocalsplit/internal/apiclient"
)

func TestNewRejectsEmptyBind(t *testing.T) {
	if _, err := apiclient.New("  ", ""); err == nil {
		t.Fatal("expected error for empty bind")
	}
}

func TestNewAcceptsHostPort(t *testing.T) {
	client, err := apiclient.New("127.0.0.1:7491", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := client.BaseURL(); got != "http://127.0.0.1:7491" {
		t.Fatalf("unexpected base url %q", got)
	}
}

func TestLogsBuildsQueryAndSendsToken(t *testing.T) {
	var gotQuery url.Values
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.LogStreamResponse{
			Events: []api.LogEvent{{Timestamp: time.Now().UTC(), Level: "info", Message: "hello"}},
			Next:   42,
		})
	}))
	defer srv.Close()

	client, err := apiclient.New(srv.URL, "s3cret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := client.Logs(context.Background(), apiclient.LogQuery{
		Since:     3,
		Limit:     50,
		Follow:    true,
		Tail:      true,
		JobID:     "job-1",
		Component: "workflow",
	})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(resp.Events) != 1 || resp.Next != 42 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	for key, want := range map[string]string{
		"since":     "3",
		"limit":     "50",
		"follow":    "1",
		"tail":      "1",
		"job":       "job-1",
		"component": "workflow",
	} {
		if got := gotQuery.Get(key); got != want {
			t.Fatalf("query[%s]: expected %q, got %q", key, want, got)
		}
	}
}

func TestErrorBodyBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "job not found: nope"})
	}))
	defer srv.Close()

	client, _ := apiclient.New(srv.URL, "")
	_, err := client.JobStatus(context.Background(), "nope")
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "job not found: nope" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if apiclient.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("StatusCode: got %d", apiclient.StatusCode(err))
	}
}

func TestUploadStreamsMultipartFile(t *testing.T) {
	var gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName, gotBody = header.Filename, string(data)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.UploadResponse{Success: true, JobID: "abc"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	client, _ := apiclient.New(srv.URL, "")
	resp, err := client.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.JobID != "abc" || gotName != "song.mp3" || gotBody != "audio" {
		t.Fatalf("unexpected upload result: resp=%+v name=%q body=%q", resp, gotName, gotBody)
	}
}

func TestUnreachableDaemonIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, _ := apiclient.New(addr, "")
	_, err := client.Status(context.Background())
	if !apiclient.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if !strings.Contains(err.Error(), addr) {
		t.Fatalf("expected address in error, got %v", err)
	}
	if apiclient.IsUnavailable(errors.New("other")) {
		t.Fatal("did not expect generic error to be unavailable")
	}
}
