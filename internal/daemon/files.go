package daemon

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vocalsplit/internal/api"
	"vocalsplit/internal/fileutil"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
	"vocalsplit/internal/textutil"
)

const (
	uploadField = "file"
	// multipartOverhead covers boundaries and part headers on top of the
	// file payload itself.
	multipartOverhead = 1 << 20
	fallbackStem      = "upload"
)

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	cfg := s.daemon.cfg
	maxBytes := cfg.Upload.MaxBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expected a multipart/form-data upload")
		return
	}
	var part io.ReadCloser
	var original string
	for {
		p, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "no file provided")
			return
		}
		if err != nil {
			s.writeUploadError(w, err)
			return
		}
		if p.FormName() != uploadField {
			_ = p.Close()
			continue
		}
		part, original = p, p.FileName()
		break
	}
	defer part.Close()

	if strings.TrimSpace(original) == "" {
		s.writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	ext := filepath.Ext(original)
	kind, ok := cfg.MediaKindForExtension(ext)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unsupported file type "+strings.ToLower(ext))
		return
	}

	id := api.NewJobID()
	dst := filepath.Join(cfg.Paths.UploadDir, id+"_"+storedName(original, ext))
	written, err := fileutil.WriteLimited(dst, part, maxBytes)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}
	if written == 0 {
		_ = fileutil.RemoveIfExists(dst)
		s.writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	ctx := services.WithJobID(r.Context(), id)
	res, err := s.daemon.jobs.Submit(ctx, api.SubmitRequest{
		JobID:            id,
		InputPath:        dst,
		OriginalFilename: original,
		MediaKind:        kind,
	})
	if err != nil {
		_ = fileutil.RemoveIfExists(dst)
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "upload rejected", "upload_rejected",
			logging.String("filename", original),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no job was processed for this upload"),
		)
		s.writeServiceError(w, err)
		return
	}

	logging.WithContext(ctx, s.logger).Info("upload accepted",
		logging.EventType("upload_accepted"),
		logging.String("filename", original),
		logging.String("media_kind", kind),
		logging.Int64("bytes", written),
	)
	s.writeJSON(w, http.StatusCreated, api.UploadResponse{
		Success: true,
		JobID:   res.JobID,
		Message: "File uploaded successfully. Processing started.",
	})
}

// storedName builds the on-disk name for an upload. The stem and extension
// are sanitized separately so the extension survives a stem that sanitizes
// to nothing.
func storedName(original, ext string) string {
	stem := textutil.SecureFileName(strings.TrimSuffix(original, ext))
	if stem == "" {
		stem = fallbackStem
	}
	return stem + "." + strings.ToLower(textutil.SecureFileName(ext))
}

func (s *apiServer) writeUploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.Is(err, fileutil.ErrTooLarge) || errors.As(err, &maxErr) {
		s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
		return
	}
	s.logger.Warn("upload failed", logging.Error(err))
	s.writeError(w, http.StatusBadRequest, "upload could not be read")
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		s.writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	path := filepath.Join(s.daemon.cfg.Paths.ProcessedDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, path)
}

func (s *apiServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.jobs.Lookup(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if job.Status != jobs.StatusCompleted {
		s.writeError(w, http.StatusBadRequest, "processing not completed (job is "+job.Status.Label()+")")
		return
	}

	result, err := s.daemon.prober.Probe(r.Context(), job.ResultPath)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(services.WithJobID(r.Context(), job.ID), s.logger),
			"result inspection failed", "preview_failed",
			logging.String("path", job.ResultPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffprobe_binary in the config"),
		)
		s.writeError(w, http.StatusInternalServerError, "result could not be inspected")
		return
	}

	preview := api.PreviewResponse{
		JobID:       job.ID,
		ResultURL:   api.ResultURL(job.ResultPath),
		SizeBytes:   result.SizeBytes(),
		DurationSec: result.DurationSeconds(),
		BitRate:     result.BitRate(),
	}
	if preview.SizeBytes == 0 {
		if info, statErr := os.Stat(job.ResultPath); statErr == nil {
			preview.SizeBytes = info.Size()
		}
	}
	if stream, ok := result.PrimaryAudio(); ok {
		preview.Codec = stream.CodecName
		preview.SampleRate = stream.SampleRateHz()
		preview.Channels = stream.Channels
	}
	s.writeJSON(w, http.StatusOK, preview)
}
