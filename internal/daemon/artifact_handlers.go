package daemon

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"trackbridge/internal/api"
	"trackbridge/internal/jobs"
	"trackbridge/internal/logging"
	"trackbridge/internal/services"
	"trackbridge/internal/textutil"
)

const uploadField = "file"

// acceptedUploadExt is the only input format the collaborators read.
const acceptedUploadExt = ".npz"

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeServiceError(w, r, services.Wrap(services.ErrUploadInvalid, "upload", "", "expected multipart/form-data body", nil))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeServiceError(w, r, services.Wrap(services.ErrUploadInvalid, "upload", "", fmt.Sprintf("missing %q file field", uploadField), nil))
			return
		}
		if err != nil {
			s.writeServiceError(w, r, s.uploadReadError(err))
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		name := part.FileName()
		if strings.TrimSpace(name) == "" {
			s.writeServiceError(w, r, services.Wrap(services.ErrUploadInvalid, "upload", "", "file field has no filename", nil))
			return
		}
		if !strings.EqualFold(filepath.Ext(name), acceptedUploadExt) {
			s.writeServiceError(w, r, services.Wrap(services.ErrUploadInvalid, "upload", "", fmt.Sprintf("only %s files are accepted", acceptedUploadExt), nil))
			return
		}

		upload, err := s.store.Save(part, name)
		_ = part.Close()
		if err != nil {
			s.writeServiceError(w, r, s.uploadReadError(err))
			return
		}
		logging.WithContext(services.WithUploadID(r.Context(), upload.ID), s.log()).Info("upload stored",
			logging.String("filename", upload.OriginalName),
			logging.Int64("size", upload.Size),
			logging.String("sha256", upload.SHA256),
			logging.String(logging.FieldEventType, "upload_stored"),
		)
		s.writeJSON(w, http.StatusOK, api.UploadResponse{
			ID:       upload.ID,
			Filename: upload.OriginalName,
			Size:     upload.Size,
		})
		return
	}
}

// uploadReadError classifies failures while reading the request body. An
// oversized body is the client's fault.
func (s *apiServer) uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return services.Wrap(services.ErrUploadInvalid, "upload", "", fmt.Sprintf("upload exceeds %d MB limit", tooLarge.Limit>>20), nil)
	}
	if strings.Contains(err.Error(), "multipart") {
		return services.Wrap(services.ErrUploadInvalid, "upload", "", "malformed multipart body", err)
	}
	return fmt.Errorf("save upload: %w", err)
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, err := s.artifactJob(mux.Vars(r)["jobId"], jobs.KindExport)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if job.Status == jobs.StatusError {
		s.writeError(w, http.StatusInternalServerError, job.Message)
		return
	}
	path, ok := job.Output(jobs.OutputArchive)
	if !ok {
		s.writeServiceError(w, r, notReady(job))
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": s.archiveName(job)})
	s.serveFile(w, r, path, "application/zip", disposition)
}

// handleViewer serves the generated viewer document. A failed conversion has
// no artifact, so it reports not found with the captured failure message.
func (s *apiServer) handleViewer(w http.ResponseWriter, r *http.Request) {
	job, err := s.artifactJob(mux.Vars(r)["jobId"], jobs.KindConvert)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if job.Status == jobs.StatusError {
		s.writeError(w, http.StatusNotFound, job.Message)
		return
	}
	path, ok := job.Output(jobs.OutputViewer)
	if !ok {
		s.writeServiceError(w, r, notReady(job))
		return
	}
	s.serveFile(w, r, path, "text/html; charset=utf-8", "")
}

func (s *apiServer) artifactJob(id string, kind jobs.Kind) (jobs.Job, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return jobs.Job{}, err
	}
	if job.Kind != kind {
		return jobs.Job{}, services.Wrap(services.ErrInputMissing, "api", "", fmt.Sprintf("job %s is a %s job", job.ID, job.Kind), nil)
	}
	return job, nil
}

func notReady(job jobs.Job) error {
	return services.Wrap(services.ErrNotReady, "api", "", fmt.Sprintf("job %s is %s (%d%%)", job.ID, job.Status, job.Progress), nil)
}

// archiveName derives the download name from the uploaded file's stem.
func (s *apiServer) archiveName(job jobs.Job) string {
	name := ""
	if upload, err := s.store.Lookup(job.UploadID); err == nil {
		name = upload.OriginalName
	}
	return textutil.FileStem(name, "spatracker2") + "_blender_export.zip"
}
