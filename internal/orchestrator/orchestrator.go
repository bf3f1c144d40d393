package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/flashdeck/internal/cards"
	"github.com/local/flashdeck/internal/filetype"
	mpkg "github.com/local/flashdeck/internal/metrics"
	"github.com/local/flashdeck/internal/queue"
	"github.com/local/flashdeck/internal/statuscheck"
	"github.com/local/flashdeck/internal/store"
)

// jobDirPrefix names per-job upload directories under the work dir.
const jobDirPrefix = "job-"

type Dependencies struct {
	Queue    queue.Queue
	Store    store.JobStore
	Detector *filetype.Detector
	Exporter *Exporter
	// WorkDir receives uploads, one directory per job.
	WorkDir     string
	MaxUploadMB int64
	// Checker backs GET /status; the route is absent when nil.
	Checker *statuscheck.Checker
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.Exporter == nil {
		deps.Exporter = &Exporter{Delimiter: cards.DefaultDelimiter}
	}
	if deps.MaxUploadMB <= 0 {
		deps.MaxUploadMB = 100
	}
	if deps.WorkDir == "" {
		deps.WorkDir = os.TempDir()
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", o.handleHealth)
	if o.deps.Checker != nil {
		mux.HandleFunc("GET /status", o.handleReadiness)
	}
	mux.Handle("GET /metrics", mpkg.Handler())
	mux.HandleFunc("POST /jobs", o.handleSubmit)
	mux.HandleFunc("GET /jobs/{id}", o.handleStatus)
	mux.HandleFunc("GET /jobs/{id}/analysis", o.handleAnalysis)
	mux.HandleFunc("GET /jobs/{id}/cards", o.handleCards)
	mux.HandleFunc("GET /jobs/{id}/cards.csv", o.handleCardsCSV)
	mux.HandleFunc("POST /jobs/{id}/cancel", o.handleCancel)
}

type submitResp struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func (o *Orchestrator) handleHealth(w http.ResponseWriter, r *http.Request) {
	depth, dlq, err := o.deps.Queue.Depths(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queue_depth": depth, "dlq_depth": dlq})
}

func (o *Orchestrator) handleReadiness(w http.ResponseWriter, r *http.Request) {
	sum := o.deps.Checker.Summary(r.Context())
	code := http.StatusOK
	if !sum.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}

// handleSubmit accepts a multipart upload (field "file") or a remote
// reference (field "url": http(s) or s3) and queues a deck job.
func (o *Orchestrator) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, o.deps.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	job := queue.Job{ID: uuid.NewString(), EnqueuedAt: time.Now()}

	if v := r.FormValue("threshold"); v != "" {
		th, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(th) || th < 0 || th > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be a number in [0, 1]")
			return
		}
		job.Threshold = &th
	}
	if v := r.FormValue("deep"); v != "" {
		deep, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "deep must be a boolean")
			return
		}
		job.Deep = &deep
	}
	pages, err := ParsePageList(r.FormValue("pages"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job.Pages = pages

	switch file, hdr, err := r.FormFile("file"); {
	case err == nil:
		defer file.Close()
		path, info, err := o.saveUpload(job.ID, hdr.Filename, file)
		if err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("cannot save upload")
			writeError(w, http.StatusInternalServerError, "cannot save upload")
			return
		}
		if !info.Supported() {
			_ = os.RemoveAll(filepath.Dir(path))
			writeError(w, http.StatusUnsupportedMediaType, info.Description)
			return
		}
		job.InputPath = path
		job.FileName = filepath.Base(path)
	case r.FormValue("url") != "":
		ref := r.FormValue("url")
		if !strings.HasPrefix(ref, "s3://") && !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
			writeError(w, http.StatusBadRequest, "url must be http(s):// or s3://")
			return
		}
		job.InputPath = ref
		job.FileName = filepath.Base(strings.SplitN(ref, "?", 2)[0])
	default:
		writeError(w, http.StatusBadRequest, "missing file or url")
		return
	}

	job.Chapter = strings.TrimSpace(r.FormValue("chapter"))
	if job.Chapter == "" {
		job.Chapter = strings.TrimSuffix(job.FileName, filepath.Ext(job.FileName))
	}

	payload, err := job.Encode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	start := time.Now()
	if err := o.deps.Store.SetStatus(r.Context(), job.ID, store.Status{
		Status: store.StatusQueued, Message: "queued", Start: &start,
		Metadata: map[string]interface{}{"file": job.FileName, "chapter": job.Chapter},
	}); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("status store unavailable")
		writeError(w, http.StatusServiceUnavailable, "status store unavailable")
		return
	}
	if err := o.deps.Queue.Enqueue(r.Context(), payload); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		end := time.Now()
		_ = o.deps.Store.SetStatus(r.Context(), job.ID, store.Status{Status: store.StatusFailed, Message: "queue unavailable", End: &end})
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	log.Info().
		Str("job_id", job.ID).
		Str("file", job.FileName).
		Str("chapter", job.Chapter).
		Ints("pages", job.Pages).
		Msg("job created")
	writeJSON(w, http.StatusCreated, submitResp{Status: "ok", JobID: job.ID, Message: "Deck job created"})
}

// saveUpload writes the upload to WorkDir/job-<id>/<name> and detects its type.
func (o *Orchestrator) saveUpload(jobID, name string, src io.Reader) (string, *filetype.FileTypeInfo, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	dir := filepath.Join(o.deps.WorkDir, jobDirPrefix+jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", nil, err
	}
	if err := out.Close(); err != nil {
		return "", nil, err
	}
	info, err := o.deps.Detector.Detect(path)
	if err != nil {
		return "", nil, err
	}
	return path, info, nil
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Store.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    st.Status == store.StatusCompleted,
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
	})
}

// readyStatus writes the error response and returns false unless the job
// has completed.
func (o *Orchestrator) readyStatus(w http.ResponseWriter, r *http.Request, id string) bool {
	st, ok, err := o.deps.Store.GetStatus(r.Context(), id)
	switch {
	case err != nil:
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return false
	case !ok:
		writeError(w, http.StatusNotFound, "job not found")
		return false
	case st.Status != store.StatusCompleted:
		writeJSON(w, http.StatusAccepted, map[string]any{"success": false, "job_id": id, "status": st.Status, "progress": st.Progress})
		return false
	}
	return true
}

func (o *Orchestrator) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !o.readyStatus(w, r, id) {
		return
	}
	res, err := o.deps.Store.GetAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "pages": res, "vision_pages": res.VisionCount()})
}

func (o *Orchestrator) loadCards(w http.ResponseWriter, r *http.Request, id string) ([]cards.Card, bool) {
	if !o.readyStatus(w, r, id) {
		return nil, false
	}
	cs, ok, err := o.deps.Store.GetCards(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cards lookup failed")
		return nil, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "cards not available")
		return nil, false
	}
	return cs, true
}

func (o *Orchestrator) handleCards(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cs, ok := o.loadCards(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "count": len(cs), "cards": cs})
}

func (o *Orchestrator) handleCardsCSV(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cs, ok := o.loadCards(w, r, id)
	if !ok {
		return
	}
	b, err := o.deps.Exporter.CSV(cs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "csv export failed")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=flashcards_%s.csv", id))
	_, _ = w.Write(b)
}

type cancelReq struct {
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req cancelReq
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	st, ok, err := o.deps.Store.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if st.Terminal() {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "job_id": id, "status": st.Status})
		return
	}

	if err := o.deps.Queue.CancelJob(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	msg := "Cancelled"
	if req.Reason != "" {
		msg = fmt.Sprintf("Cancelled: %s", req.Reason)
	}
	now := time.Now()
	_ = o.deps.Store.SetStatus(r.Context(), id, store.Status{Status: store.StatusCancelled, Progress: st.Progress, Message: msg, End: &now})
	log.Info().Str("job_id", id).Str("reason", req.Reason).Msg("job cancelled")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id, "status": store.StatusCancelled})
}
