// Package shortlist drives the short-list screen: ranking parameters, the
// ranking call and the ranked table.
package shortlist

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"

	"cv-screening/internal/backend"
	apperrors "cv-screening/internal/common/errors"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/metrics"
	"cv-screening/internal/models"
	"cv-screening/internal/screening/store"
)

// Weight fields accepted by AdjustWeight.
const (
	FieldExperience     = "experience"
	FieldQualifications = "qualifications"
	FieldSkills         = "skills"
)

// Ranker is the ranking collaborator.
type Ranker interface {
	Rank(ctx context.Context, req backend.RankRequest) (*backend.RankResponse, error)
}

// Parameters are the ranking controls.
type Parameters struct {
	Weights        models.Weights        `json:"weights"`
	JobTemplate    string                `json:"jobTemplate"`
	JobDescription string                `json:"jobDescription,omitempty"`
	SearchQuery    string                `json:"searchQuery"`
	SearchOperator models.SearchOperator `json:"searchOperator"`
}

func DefaultParameters() Parameters {
	return Parameters{Weights: models.DefaultWeights(), SearchOperator: models.SearchAnd}
}

type Controller struct {
	store  *store.Store
	ranker Ranker
	logger logger.Logger

	mu         sync.Mutex
	params     Parameters
	generation uint64
	cancel     context.CancelFunc
	rankBatch  int64
}

func New(st *store.Store, ranker Ranker, log logger.Logger) *Controller {
	return &Controller{
		store:  st,
		ranker: ranker,
		logger: log.WithFields(map[string]interface{}{"component": "shortlist"}),
		params: DefaultParameters(),
	}
}

// View is everything the short-list screen renders.
type View struct {
	BatchID          int64                 `json:"batchId"`
	Ranked           bool                  `json:"ranked"`
	Ranking          bool                  `json:"ranking"`
	Rows             []models.RankedResult `json:"rows"`
	Parameters       Parameters            `json:"parameters"`
	TotalWeight      float64               `json:"totalWeight"`
	WeightsValid     bool                  `json:"weightsValid"`
	ExtractedJobText string                `json:"extractedJobText,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	params, ranking := c.params, c.cancel != nil
	c.mu.Unlock()
	return c.viewOf(c.store.Snapshot(), params, ranking)
}

func (c *Controller) viewOf(snap store.Snapshot, params Parameters, ranking bool) View {
	v := View{
		Ranked:       snap.HasRankings(),
		Ranking:      ranking,
		Rows:         rowsOf(snap),
		Parameters:   params,
		TotalWeight:  params.Weights.Total(),
		WeightsValid: params.Weights.Valid(),
	}
	if snap.Shortlist != nil {
		v.BatchID = snap.Shortlist.Handoff.BatchID
		v.ExtractedJobText = snap.Shortlist.ExtractedJobText
	}
	return v
}

// Rows returns the ranked results when the short list has been ranked,
// otherwise the hand-off, unranked.
func (c *Controller) Rows() []models.RankedResult {
	return rowsOf(c.store.Snapshot())
}

// rowsOf lists the ranked results, else the unranked hand-off, else the
// long list's filtered view when nothing was handed off yet.
func rowsOf(snap store.Snapshot) []models.RankedResult {
	if snap.HasRankings() {
		return snap.Shortlist.Rankings
	}
	records := snap.Filtered
	if snap.Shortlist != nil {
		records = snap.Shortlist.Handoff.Candidates
	}
	out := make([]models.RankedResult, 0, len(records))
	for _, r := range records {
		out = append(out, models.RankedResult{CandidateRecord: r})
	}
	return out
}

func (c *Controller) Parameters() Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// SetParameters replaces the ranking controls. Weights are checked only for
// range here; their sum is checked when ranking.
func (c *Controller) SetParameters(p Parameters) (Parameters, error) {
	if p.SearchOperator == "" {
		p.SearchOperator = models.SearchAnd
	}
	p.SearchOperator = models.SearchOperator(strings.ToLower(string(p.SearchOperator)))
	if p.SearchOperator != models.SearchAnd && p.SearchOperator != models.SearchOr {
		return c.Parameters(), apperrors.NewInvalidRankRequestError("searchOperator must be \"and\" or \"or\"")
	}
	if p.JobTemplate != "" {
		if _, ok := models.JobTemplates[p.JobTemplate]; !ok {
			return c.Parameters(), apperrors.NewInvalidRankRequestError("unknown job template " + p.JobTemplate)
		}
	}
	for _, w := range []float64{p.Weights.Experience, p.Weights.Qualifications, p.Weights.Skills} {
		if w < 0 || w > 1 || math.IsNaN(w) {
			return c.Parameters(), apperrors.NewInvalidRankRequestError("weights must be between 0 and 1")
		}
	}
	p.Weights = models.Weights{
		Experience:     models.RoundWeight(p.Weights.Experience),
		Qualifications: models.RoundWeight(p.Weights.Qualifications),
		Skills:         models.RoundWeight(p.Weights.Skills),
	}
	p.SearchQuery = strings.TrimSpace(p.SearchQuery)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = p
	return p, nil
}

// AdjustWeight steps one weight up or down by WeightStep, clamped to [0, 1].
func (c *Controller) AdjustWeight(field string, up bool) (Parameters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var w *float64
	switch strings.ToLower(field) {
	case FieldExperience:
		w = &c.params.Weights.Experience
	case FieldQualifications:
		w = &c.params.Weights.Qualifications
	case FieldSkills:
		w = &c.params.Weights.Skills
	default:
		return c.params, apperrors.NewInvalidRankRequestError("unknown weight " + field)
	}

	step := models.WeightStep
	if !up {
		step = -step
	}
	*w = models.RoundWeight(math.Min(1, math.Max(0, *w+step)))
	return c.params, nil
}

// ValidateWeights fails unless the weights sum to 1.0.
func (c *Controller) ValidateWeights() error {
	w := c.Parameters().Weights
	if !w.Valid() {
		return apperrors.NewInvalidWeightsError(w.Total())
	}
	return nil
}

// ResetRanking abandons any ranking in flight, restores default parameters
// and drops the rankings, keeping the hand-off.
func (c *Controller) ResetRanking(ctx context.Context) View {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.generation++
	}
	c.params = DefaultParameters()
	params := c.params
	c.mu.Unlock()

	return c.viewOf(c.store.ClearRankings(ctx), params, false)
}

// Rank scores the hand-off with the current parameters. Only the latest
// ranking can land; a ranking for a batch that is no longer current is
// discarded.
func (c *Controller) Rank(ctx context.Context) (View, error) {
	if err := c.ValidateWeights(); err != nil {
		metrics.RankRequestsTotal.WithLabelValues("invalid").Inc()
		return c.View(), err
	}

	params := c.Parameters()
	if params.JobTemplate == "" && strings.TrimSpace(params.JobDescription) == "" {
		metrics.RankRequestsTotal.WithLabelValues("invalid").Inc()
		return c.View(), apperrors.NewInvalidRankRequestError("select a job description")
	}

	snap := c.store.Snapshot()
	if snap.Shortlist == nil {
		return c.View(), apperrors.NewNoShortlistError()
	}
	handoff := snap.Shortlist.Handoff
	if len(handoff.Candidates) == 0 {
		metrics.RankRequestsTotal.WithLabelValues("invalid").Inc()
		return c.View(), apperrors.NewInvalidRankRequestError("the short list is empty")
	}

	rankCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	c.cancel = cancel
	c.rankBatch = handoff.BatchID
	c.mu.Unlock()

	c.logger.Info("ranking short list", map[string]interface{}{
		"batchId":     handoff.BatchID,
		"candidates":  len(handoff.Candidates),
		"jobTemplate": params.JobTemplate,
		"weights":     params.Weights,
	})

	resp, err := c.ranker.Rank(rankCtx, backend.RankRequest{
		BatchID:        handoff.BatchID,
		Candidates:     handoff.Candidates,
		JobTemplate:    params.JobTemplate,
		JobDescription: params.JobDescription,
		Weights:        params.Weights,
		SearchQuery:    params.SearchQuery,
		SearchOperator: params.SearchOperator,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		metrics.StaleResponsesDiscarded.WithLabelValues("rank").Inc()
		metrics.RankRequestsTotal.WithLabelValues("superseded").Inc()
		return c.viewOf(c.store.Snapshot(), c.params, c.cancel != nil), apperrors.NewRankSupersededError()
	}
	c.cancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.RankRequestsTotal.WithLabelValues("cancelled").Inc()
			return c.viewOf(c.store.Snapshot(), c.params, false), apperrors.NewRankSupersededError()
		}
		metrics.RankRequestsTotal.WithLabelValues("failed").Inc()
		c.logger.Error("ranking failed", map[string]interface{}{"batchId": handoff.BatchID, "error": err.Error()})
		return c.viewOf(c.store.Snapshot(), c.params, false), err
	}

	next, err := c.store.ApplyRankings(ctx, handoff.BatchID, resp.Rows, resp.ExtractedJobText)
	if err != nil {
		metrics.RankRequestsTotal.WithLabelValues("stale").Inc()
		return c.viewOf(next, c.params, false), err
	}

	metrics.RankRequestsTotal.WithLabelValues("success").Inc()
	c.logger.Info("short list ranked", map[string]interface{}{
		"batchId": handoff.BatchID,
		"ranked":  len(next.Shortlist.Rankings),
		"dropped": len(resp.Rows) - len(next.Shortlist.Rankings),
	})
	return c.viewOf(next, c.params, false), nil
}

// CancelRank abandons the in-flight ranking, if any.
func (c *Controller) CancelRank() bool {
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

// Watch follows the store until ctx ends and abandons the ranking in flight
// once its hand-off is replaced or cleared.
func (c *Controller) Watch(ctx context.Context) {
	updates, unsubscribe := c.store.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			c.dropStale(snap)
		}
	}
}

func (c *Controller) dropStale(snap store.Snapshot) {
	var batchID int64
	if snap.Shortlist != nil {
		batchID = snap.Shortlist.Handoff.BatchID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil || batchID == c.rankBatch {
		return
	}
	c.cancel()
	c.cancel = nil
	c.generation++
	c.logger.Info("abandoning ranking for a replaced hand-off", map[string]interface{}{
		"rankingBatchId": c.rankBatch,
		"currentBatchId": batchID,
	})
}
