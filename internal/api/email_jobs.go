package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
)

//	POST /api/email-jobs
func (s *Server) handleCreateEmailJob(w http.ResponseWriter, r *http.Request) {
	var req emailjob.CreateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.CampaignID = nil
	job, err := s.svc.EmailJobs.Create(r.Context(), OrgID(r.Context()), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, job)
}

//	GET /api/email-jobs/{id}
func (s *Server) handleGetEmailJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.EmailJobs.Get(r.Context(), OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, job)
}

// handleRetryEmailJob re-queues the job's failed recipients.
//
//	POST /api/email-jobs/{id}/retry-failed
func (s *Server) handleRetryEmailJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.svc.EmailJobs.RetryFailed(r.Context(), OrgID(r.Context()), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]any{"email_job_id": id, "requeued": n})
}

// handleUploadAttachment stores one multipart file for a later job.
//
//	POST /api/email-jobs/attachments   (multipart field "file")
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "attachment is too large")
			return
		}
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.BadRequest(w, "could not read file")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	a, err := s.svc.EmailJobs.UploadAttachment(r.Context(), OrgID(r.Context()), header.Filename, contentType, data)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, a)
}
