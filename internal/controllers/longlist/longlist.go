// Package longlist drives the long-list screen: uploading a CV bundle,
// filtering the extracted candidates and handing the result to the short list.
package longlist

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"

	apperrors "cv-screening/internal/common/errors"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/metrics"
	"cv-screening/internal/models"
	"cv-screening/internal/screening/filter"
	"cv-screening/internal/screening/store"
)

var pdfMagic = []byte("%PDF-")

// ResumeService is the extraction collaborator.
type ResumeService interface {
	UploadResume(ctx context.Context, filename string, file io.Reader) (*models.Batch, error)
	SaveFiltered(ctx context.Context, batchID int64, records []models.CandidateRecord) error
}

// Limits bounds what Upload accepts.
type Limits struct {
	MaxBytes          int64
	AllowedExtensions []string
}

type Controller struct {
	store   *store.Store
	resumes ResumeService
	limits  Limits
	logger  logger.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

func New(st *store.Store, resumes ResumeService, limits Limits, log logger.Logger) *Controller {
	if len(limits.AllowedExtensions) == 0 {
		limits.AllowedExtensions = []string{".pdf"}
	}
	return &Controller{
		store:   st,
		resumes: resumes,
		limits:  limits,
		logger:  log.WithFields(map[string]interface{}{"component": "longlist"}),
	}
}

// View is everything the long-list screen renders.
type View struct {
	BatchID    int64                    `json:"batchId"`
	Message    string                   `json:"message,omitempty"`
	Total      int                      `json:"total"`
	Candidates []models.CandidateRecord `json:"candidates"`
	Criteria   models.FilterCriteria    `json:"criteria"`
	Options    filter.Options           `json:"options"`
	Uploading  bool                     `json:"uploading"`
	Version    uint64                   `json:"version"`
}

func (c *Controller) View() View {
	return c.viewOf(c.store.Snapshot(), c.Uploading())
}

func (c *Controller) viewOf(snap store.Snapshot, uploading bool) View {
	v := View{
		BatchID:    snap.BatchID(),
		Candidates: snap.Filtered,
		Criteria:   snap.Criteria,
		Uploading:  uploading,
		Version:    snap.Version,
	}
	var records []models.CandidateRecord
	if snap.Batch != nil {
		records = snap.Batch.Records
		v.Message = snap.Batch.Message
		v.Total = len(records)
	}
	v.Options = filter.OptionsFor(records)
	return v
}

// Mount restores the persisted state. Nothing persisted, or a failing
// backend, means an empty list.
func (c *Controller) Mount(ctx context.Context) View {
	snap, err := c.store.Restore(ctx)
	if err != nil {
		c.logger.Warn("could not restore long list", map[string]interface{}{"error": err.Error()})
	}
	return c.viewOf(snap, c.Uploading())
}

// ChangeFilter applies loosely typed control values, e.g. from a JSON body.
func (c *Controller) ChangeFilter(ctx context.Context, raw map[string]interface{}) (View, error) {
	patch, err := filter.ParseCriteria(raw)
	if err != nil {
		return c.View(), apperrors.NewInvalidFilterFormatError(err.Error())
	}
	snap, err := c.store.UpdateCriteria(ctx, patch)
	if err != nil {
		return c.View(), err
	}
	return c.viewOf(snap, c.Uploading()), nil
}

func (c *Controller) ResetFilters(ctx context.Context) View {
	return c.viewOf(c.store.ResetCriteria(ctx), c.Uploading())
}

// Upload sends one CV bundle for extraction and installs the result as the
// new batch. Only the latest upload can land: starting another one, or
// calling CancelUpload, discards this one's result. A failed upload leaves
// the current batch in place. size may be -1 when unknown.
func (c *Controller) Upload(ctx context.Context, filename string, size int64, file io.Reader) (View, error) {
	body, err := c.checkFile(filename, size, file)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return c.View(), err
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.logger.Info("superseding in-flight upload", nil)
	}
	c.generation++
	gen := c.generation
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info("uploading cv bundle", map[string]interface{}{"filename": filename, "size": size})
	batch, err := c.resumes.UploadResume(uploadCtx, filename, body)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		metrics.StaleResponsesDiscarded.WithLabelValues("upload").Inc()
		metrics.UploadsTotal.WithLabelValues("superseded").Inc()
		return c.viewLocked(), apperrors.NewUploadSupersededError()
	}
	c.cancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.UploadsTotal.WithLabelValues("cancelled").Inc()
			return c.viewLocked(), apperrors.NewUploadSupersededError()
		}
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		c.logger.Error("upload failed", map[string]interface{}{"filename": filename, "error": err.Error()})
		return c.viewLocked(), err
	}

	c.store.LoadBatch(ctx, *batch)
	metrics.UploadsTotal.WithLabelValues("success").Inc()
	metrics.UploadRows.Observe(float64(len(batch.Records)))

	c.logger.Info("batch loaded", map[string]interface{}{"batchId": batch.BatchID, "records": len(batch.Records)})
	return c.viewLocked(), nil
}

// viewLocked builds the view while c.mu is held.
func (c *Controller) viewLocked() View {
	return c.viewOf(c.store.Snapshot(), c.cancel != nil)
}

// CancelUpload abandons the in-flight upload, if any.
func (c *Controller) CancelUpload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.generation++
	return true
}

func (c *Controller) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// checkFile validates name, size and content type, returning a reader that
// still yields the whole file.
func (c *Controller) checkFile(filename string, size int64, file io.Reader) (io.Reader, error) {
	if file == nil || strings.TrimSpace(filename) == "" {
		return nil, apperrors.NewInvalidUploadFileError("no file selected")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	allowed := false
	for _, a := range c.limits.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperrors.NewInvalidUploadFileError("file extension " + ext + " is not accepted")
	}

	if size == 0 {
		return nil, apperrors.NewInvalidUploadFileError("file is empty")
	}
	if c.limits.MaxBytes > 0 && size > c.limits.MaxBytes {
		return nil, apperrors.NewUploadTooLargeError(size, c.limits.MaxBytes)
	}

	br := bufio.NewReader(file)
	head, err := br.Peek(len(pdfMagic))
	if err != nil || !bytes.Equal(head, pdfMagic) {
		return nil, apperrors.NewInvalidUploadFileError("file content is not a PDF document")
	}

	var body io.Reader = br
	if c.limits.MaxBytes > 0 {
		body = io.LimitReader(br, c.limits.MaxBytes)
	}
	return body, nil
}

// MoveToShortlist saves the filtered view with the backend and hands it,
// unchanged, to the short list.
func (c *Controller) MoveToShortlist(ctx context.Context) (models.Handoff, error) {
	snap := c.store.Snapshot()
	if snap.Batch == nil || len(snap.Filtered) == 0 {
		return models.Handoff{}, apperrors.NewNothingToShortlistError()
	}

	handoff := models.Handoff{BatchID: snap.BatchID(), Candidates: snap.Filtered}
	if err := c.resumes.SaveFiltered(ctx, handoff.BatchID, handoff.Candidates); err != nil {
		c.logger.Error("save filtered failed", map[string]interface{}{"batchId": handoff.BatchID, "error": err.Error()})
		return models.Handoff{}, err
	}

	if _, err := c.store.BeginShortlist(ctx, handoff); err != nil {
		return models.Handoff{}, err
	}

	c.logger.Info("moved to short list", map[string]interface{}{"batchId": handoff.BatchID, "candidates": len(handoff.Candidates)})
	return handoff, nil
}

// Reset abandons any upload and clears all screening state.
func (c *Controller) Reset(ctx context.Context) View {
	c.CancelUpload()
	c.store.Clear(ctx)
	return c.View()
}
