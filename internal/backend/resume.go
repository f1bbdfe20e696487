package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "cv-screening/internal/common/errors"
	httpclient "cv-screening/internal/common/http"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/validation"
	"cv-screening/internal/models"
	"cv-screening/internal/screening/ingest"
)

const (
	serviceResume = "resume"

	// UploadField is the multipart field the extraction service reads.
	UploadField = "cv_file"
)

// ResumeTimeouts bound each resume-service call.
type ResumeTimeouts struct {
	Default time.Duration
	Upload  time.Duration
	Rank    time.Duration
}

// ResumeClient talks to the extraction and ranking service.
type ResumeClient struct {
	baseClient
	timeouts   ResumeTimeouts
	normalizer *ingest.Normalizer
	logger     logger.Logger
}

func NewResumeClient(baseURL string, timeouts ResumeTimeouts, session Session, log logger.Logger, opts ...httpclient.Option) *ResumeClient {
	return &ResumeClient{
		baseClient: newBaseClient(serviceResume, baseURL, session, opts...),
		timeouts:   timeouts,
		normalizer: ingest.NewNormalizer(),
		logger:     log.WithFields(map[string]interface{}{"component": "resume-client"}),
	}
}

// UploadResume sends one PDF for extraction and returns the normalized batch.
// A cancelled ctx yields the context error unchanged.
func (c *ResumeClient) UploadResume(ctx context.Context, filename string, file io.Reader) (*models.Batch, error) {
	if c.timeouts.Upload > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.Upload)
		defer cancel()
	}

	r := httpclient.Request{
		Operation: "upload_resume",
		Method:    http.MethodPost,
		URL:       c.url("/upload-resume"),
		Token:     c.token(),
	}

	var body map[string]interface{}
	err := c.http.Upload(ctx, r, UploadField, filename, file, &body)
	c.checkUnauthorized(ctx, r, err)
	if err != nil {
		if isCancellation(err) || keepAs(err, apperrors.ErrCodeSessionExpired) {
			return nil, err
		}
		return nil, apperrors.NewUploadFailedError(err)
	}

	batch, err := c.parseUpload(body)
	if err != nil {
		return nil, apperrors.NewUploadFailedError(err)
	}

	c.logger.Info("resume extracted", map[string]interface{}{
		"filename": filename,
		"batchId":  batch.BatchID,
		"rows":     len(batch.Records),
	})
	return batch, nil
}

func (c *ResumeClient) parseUpload(body map[string]interface{}) (*models.Batch, error) {
	result, err := validation.Validate(validation.UploadResponseSchema, body)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidResponseBodyError(serviceResume, result.Summary())
	}

	batchID, err := asInt64(body["pdf_id"])
	if err != nil {
		return nil, apperrors.NewInvalidResponseBodyError(serviceResume, fmt.Sprintf("pdf_id: %v", err))
	}

	raw, _ := body["data"].([]interface{})
	rows := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if row, ok := item.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}

	records := c.normalizer.Normalize(rows)
	rowCount := len(records)
	if n, err := asInt64(body["rows"]); err == nil {
		rowCount = int(n)
	}

	return &models.Batch{
		BatchID:  batchID,
		Records:  records,
		Message:  asString(body["message"]),
		RowCount: rowCount,
	}, nil
}

// SaveFiltered records the filtered view of batchID on the backend.
func (c *ResumeClient) SaveFiltered(ctx context.Context, batchID int64, records []models.CandidateRecord) error {
	r := httpclient.Request{
		Operation: "save_filtered",
		Method:    http.MethodPost,
		URL:       c.url("/save-filtered"),
		Token:     c.token(),
		Body: map[string]interface{}{
			"pdf_id": batchID,
			"data":   wireRecords(records),
		},
	}

	if err := c.call(ctx, c.timeouts.Default, r, nil); err != nil {
		if isCancellation(err) || keepAs(err, apperrors.ErrCodeSessionExpired) {
			return err
		}
		return apperrors.NewSaveFilteredFailedError(err)
	}
	return nil
}

// RankRequest is one short-list ranking call.
type RankRequest struct {
	BatchID        int64
	Candidates     []models.CandidateRecord
	JobTemplate    string
	JobDescription string
	Weights        models.Weights
	SearchQuery    string
	SearchOperator models.SearchOperator
}

// RankResponse is the ranking service's reply.
type RankResponse struct {
	Rows             []models.RankedRow
	ExtractedJobText string
}

// Rank asks the service to score req.Candidates.
func (c *ResumeClient) Rank(ctx context.Context, req RankRequest) (*RankResponse, error) {
	if len(req.Candidates) == 0 {
		return nil, apperrors.NewInvalidRankRequestError("no candidates to rank")
	}

	jobDescription := strings.TrimSpace(req.JobDescription)
	if jobDescription == "" {
		jobDescription = models.JobTemplates[req.JobTemplate]
	}

	r := httpclient.Request{
		Operation: "rank_resumes",
		Method:    http.MethodPost,
		URL:       c.url("/rank-resumes"),
		Token:     c.token(),
		Body: map[string]interface{}{
			"pdf_id":          req.BatchID,
			"data":            wireRecords(req.Candidates),
			"job_template":    req.JobTemplate,
			"job_description": jobDescription,
			"weights":         req.Weights,
			"search_query":    req.SearchQuery,
			"search_operator": string(req.SearchOperator),
		},
	}

	var body map[string]interface{}
	if err := c.call(ctx, c.timeouts.Rank, r, &body); err != nil {
		switch {
		case isCancellation(err), keepAs(err, apperrors.ErrCodeSessionExpired):
			return nil, err
		case keepAs(err, apperrors.ErrCodeTimeout), errors.Is(err, context.DeadlineExceeded):
			return nil, apperrors.NewRankingTimeoutError()
		default:
			return nil, apperrors.NewRankingFailedError(err)
		}
	}

	resp, err := parseRank(body)
	if err != nil {
		return nil, apperrors.NewRankingFailedError(err)
	}
	return resp, nil
}

func parseRank(body map[string]interface{}) (*RankResponse, error) {
	result, err := validation.Validate(validation.RankResponseSchema, body)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidResponseBodyError(serviceResume, result.Summary())
	}

	raw, _ := body["ranked_rows"].([]interface{})
	rows := make([]models.RankedRow, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		row := models.RankedRow{
			CvID: asString(firstOf(m, "cvId", "cv_id", "id")),
			Rank: i + 1,
		}
		if rank, err := asInt64(m["rank"]); err == nil && rank > 0 {
			row.Rank = int(rank)
		}
		if score, ok := asFloat(firstOf(m, "final_score", "score")); ok {
			row.Score = score
		}
		rows = append(rows, row)
	}

	return &RankResponse{
		Rows:             rows,
		ExtractedJobText: asString(body["extracted_job_text"]),
	}, nil
}

// wireRecord is the row shape the extraction service hands out and accepts back.
type wireRecord struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	Nationality       string                   `json:"nationality"`
	Experience        int                      `json:"experience"`
	Qualification     string                   `json:"qualification"`
	Gender            string                   `json:"gender,omitempty"`
	Age               *int                     `json:"age,omitempty"`
	Email             string                   `json:"email,omitempty"`
	Phone             string                   `json:"phone,omitempty"`
	Languages         []string                 `json:"languages,omitempty"`
	Skills            []string                 `json:"skills,omitempty"`
	EmploymentHistory []models.EmploymentEntry `json:"employmentHistory,omitempty"`
}

func wireRecords(records []models.CandidateRecord) []wireRecord {
	out := make([]wireRecord, 0, len(records))
	for _, r := range records {
		out = append(out, wireRecord{
			ID:                r.CvID,
			Name:              r.Name,
			Nationality:       strings.Join(r.Nationality, ", "),
			Experience:        r.YearsOfExperience,
			Qualification:     r.HighestDegree,
			Gender:            r.Gender,
			Age:               r.Age,
			Email:             r.Email,
			Phone:             r.Phone,
			Languages:         r.Languages,
			Skills:            r.Skills,
			EmploymentHistory: r.EmploymentHistory,
		})
	}
	return out
}
