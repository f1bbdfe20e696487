// Package store is the Record Store: the single owner of the uploaded batch,
// the live filter criteria, the filtered view derived from them and the
// short-list stage. State is replaced wholesale on every mutation and pushed
// to subscribers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	apperrors "cv-screening/internal/common/errors"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/metrics"
	"cv-screening/internal/models"
	"cv-screening/internal/persistence"
	"cv-screening/internal/screening/filter"
)

const DefaultKey = "session"

// Snapshot is one immutable state of the store. Values reachable from a
// Snapshot are never modified after publication; callers must not modify
// them either.
type Snapshot struct {
	Batch     *models.Batch            `json:"batch,omitempty"`
	Criteria  models.FilterCriteria    `json:"criteria"`
	Filtered  []models.CandidateRecord `json:"filtered"`
	Shortlist *models.Shortlist        `json:"shortlist,omitempty"`
	Version   uint64                   `json:"version"`
}

// BatchID returns the current batch id, or 0 when no batch is loaded.
func (s Snapshot) BatchID() int64 {
	if s.Batch == nil {
		return 0
	}
	return s.Batch.BatchID
}

// HasRankings reports whether the short list has been ranked.
func (s Snapshot) HasRankings() bool {
	return s.Shortlist != nil && s.Shortlist.Ranked
}

// persisted is what survives a reload.
type persisted struct {
	Batch     *models.Batch         `json:"batch"`
	Criteria  models.FilterCriteria `json:"criteria"`
	Shortlist *models.Shortlist     `json:"shortlist,omitempty"`
}

type Store struct {
	mu          sync.RWMutex
	state       Snapshot
	kv          persistence.KV
	key         string
	logger      logger.Logger
	subscribers map[int]chan Snapshot
	nextSubID   int

	// persistMu orders KV writes. written is the version last put or
	// cleared; older snapshots are never written over it.
	persistMu sync.Mutex
	written   uint64
}

// Option customizes New.
type Option func(*Store)

// WithKey sets the key state is persisted under.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func New(kv persistence.KV, log logger.Logger, opts ...Option) *Store {
	s := &Store{
		state:       Snapshot{Filtered: []models.CandidateRecord{}},
		kv:          kv,
		key:         DefaultKey,
		logger:      log.WithFields(map[string]interface{}{"component": "record-store"}),
		subscribers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ==========================
// Readers
// ==========================

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Filtered returns a copy of the filtered view.
func (s *Store) Filtered() []models.CandidateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneRecords(s.state.Filtered)
}

func (s *Store) CurrentBatchID() int64 {
	return s.Snapshot().BatchID()
}

func (s *Store) HasRankings() bool {
	return s.Snapshot().HasRankings()
}

// Subscribe returns a channel that receives the current snapshot and then
// every later one. Slow readers skip intermediate snapshots and always see
// the latest. cancel closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- s.state
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// ==========================
// Mutations
// ==========================

// SetBatch installs a freshly uploaded batch. Criteria reset, the filtered
// view becomes the whole batch and any short list from an earlier batch is
// dropped.
func (s *Store) SetBatch(ctx context.Context, records []models.CandidateRecord, batchID int64) {
	s.LoadBatch(ctx, models.Batch{BatchID: batchID, Records: records})
}

// LoadBatch is SetBatch for a whole upload result, keeping the extraction
// service's message and row count. A zero RowCount means len(Records).
func (s *Store) LoadBatch(ctx context.Context, b models.Batch) {
	batch := &models.Batch{
		BatchID:  b.BatchID,
		Records:  models.CloneRecords(b.Records),
		Message:  b.Message,
		RowCount: b.RowCount,
	}
	if batch.RowCount == 0 {
		batch.RowCount = len(batch.Records)
	}

	s.commit(ctx, "set_batch", func(cur Snapshot) (Snapshot, error) {
		return Snapshot{
			Batch:    batch,
			Filtered: models.CloneRecords(batch.Records),
		}, nil
	})
	metrics.FilteredRecords.Set(float64(len(batch.Records)))
}

// UpdateCriteria merges patch into the live criteria and recomputes the view.
// An invalid patch leaves state untouched.
func (s *Store) UpdateCriteria(ctx context.Context, patch models.CriteriaPatch) (Snapshot, error) {
	next := s.commit(ctx, "update_criteria", func(cur Snapshot) (Snapshot, error) {
		criteria := cur.Criteria.Merge(patch)
		if err := validateCriteria(criteria); err != nil {
			return cur, err
		}
		out := cur
		out.Criteria = criteria
		out.Filtered = filter.Apply(batchRecords(cur.Batch), criteria)
		return out, nil
	})
	if next.err != nil {
		return s.Snapshot(), next.err
	}
	metrics.FilterApplications.Inc()
	metrics.FilteredRecords.Set(float64(len(next.snap.Filtered)))
	return next.snap, nil
}

// ResetCriteria drops every constraint; the view becomes the whole batch.
func (s *Store) ResetCriteria(ctx context.Context) Snapshot {
	next := s.commit(ctx, "reset_criteria", func(cur Snapshot) (Snapshot, error) {
		out := cur
		out.Criteria = models.FilterCriteria{}
		out.Filtered = models.CloneRecords(batchRecords(cur.Batch))
		return out, nil
	})
	metrics.FilteredRecords.Set(float64(len(next.snap.Filtered)))
	return next.snap
}

// Clear drops all state, including what was persisted. Safe to call on an
// empty store.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.state = Snapshot{Filtered: []models.CandidateRecord{}, Version: s.state.Version + 1}
	version := s.state.Version
	s.publish(s.state)
	s.mu.Unlock()

	metrics.FilteredRecords.Set(0)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if version > s.written {
		s.written = version
	}
	err := s.kv.Delete(ctx, s.key)
	s.recordPersistence("clear", err)
}

// BeginShortlist records the hand-off from the long list. handoff.BatchID
// must be the current batch.
func (s *Store) BeginShortlist(ctx context.Context, handoff models.Handoff) (Snapshot, error) {
	next := s.commit(ctx, "begin_shortlist", func(cur Snapshot) (Snapshot, error) {
		if cur.BatchID() == 0 || cur.BatchID() != handoff.BatchID {
			return cur, apperrors.NewStaleBatchError(cur.BatchID(), handoff.BatchID)
		}
		out := cur
		out.Shortlist = &models.Shortlist{
			Handoff: models.Handoff{
				BatchID:    handoff.BatchID,
				Candidates: models.CloneRecords(handoff.Candidates),
			},
		}
		return out, nil
	})
	return next.snap, next.err
}

// ApplyRankings joins rows against the hand-off by cvId, ordered by rank.
// Rows that match no hand-off record are dropped. Rankings for any batch
// other than the hand-off's are discarded with a STALE_BATCH error.
func (s *Store) ApplyRankings(ctx context.Context, batchID int64, rows []models.RankedRow, jobText string) (Snapshot, error) {
	next := s.commit(ctx, "apply_rankings", func(cur Snapshot) (Snapshot, error) {
		if cur.Shortlist == nil {
			return cur, apperrors.NewNoShortlistError()
		}
		if cur.Shortlist.Handoff.BatchID != batchID {
			return cur, apperrors.NewStaleBatchError(cur.Shortlist.Handoff.BatchID, batchID)
		}
		out := cur
		out.Shortlist = &models.Shortlist{
			Handoff:          cur.Shortlist.Handoff,
			Rankings:         Join(cur.Shortlist.Handoff.Candidates, rows),
			Ranked:           true,
			ExtractedJobText: jobText,
		}
		return out, nil
	})

	var stdErr *apperrors.StandardError
	if errors.As(next.err, &stdErr) && stdErr.Code == apperrors.ErrCodeStaleBatch {
		metrics.StaleResponsesDiscarded.WithLabelValues("rank").Inc()
		s.logger.Warn("discarding rankings for a stale batch", map[string]interface{}{"batchId": batchID})
	}
	return next.snap, next.err
}

// ClearRankings drops the rankings but keeps the hand-off.
func (s *Store) ClearRankings(ctx context.Context) Snapshot {
	next := s.commit(ctx, "clear_rankings", func(cur Snapshot) (Snapshot, error) {
		if cur.Shortlist == nil {
			return cur, nil
		}
		out := cur
		out.Shortlist = &models.Shortlist{Handoff: cur.Shortlist.Handoff}
		return out, nil
	})
	return next.snap
}

// Join pairs each ranked row with the candidate of the same cvId and sorts
// the result by rank. Unmatched rows are dropped.
func Join(candidates []models.CandidateRecord, rows []models.RankedRow) []models.RankedResult {
	byID := make(map[string]models.CandidateRecord, len(candidates))
	for _, c := range candidates {
		byID[c.CvID] = c
	}

	out := make([]models.RankedResult, 0, len(rows))
	for _, row := range rows {
		c, ok := byID[row.CvID]
		if !ok {
			continue
		}
		out = append(out, models.RankedResult{CandidateRecord: c.Clone(), Rank: row.Rank, Score: row.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// ==========================
// Persistence
// ==========================

// Persist writes the current state. Failures are logged and counted; the
// in-memory state is authoritative either way.
func (s *Store) Persist(ctx context.Context) error {
	snap := s.Snapshot()
	return s.persist(ctx, snap)
}

// persist writes snap unless a newer version was already written or cleared.
func (s *Store) persist(ctx context.Context, snap Snapshot) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if snap.Version < s.written {
		s.logger.Debug("skipping superseded persist", map[string]interface{}{"version": snap.Version, "written": s.written})
		return nil
	}

	raw, err := json.Marshal(persisted{Batch: snap.Batch, Criteria: snap.Criteria, Shortlist: snap.Shortlist})
	if err == nil {
		err = s.kv.Put(ctx, s.key, raw)
	}
	if err == nil {
		s.written = snap.Version
	}
	s.recordPersistence("persist", err)
	if err != nil {
		return apperrors.NewPersistenceFailedError("persist", err)
	}
	return nil
}

// Restore replaces state with what was persisted. Absent, unreadable or
// incomplete data restores to an empty store and is not an error; only a
// failing backend is.
func (s *Store) Restore(ctx context.Context) (Snapshot, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, persistence.ErrNotFound) {
		s.recordPersistence("restore", nil)
		return s.replace(Snapshot{}), nil
	}
	if err != nil {
		s.recordPersistence("restore", err)
		return s.replace(Snapshot{}), apperrors.NewPersistenceFailedError("restore", err)
	}
	s.recordPersistence("restore", nil)

	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		corrupt := apperrors.NewSessionStateCorruptError(err.Error())
		s.logger.Warn("discarding corrupt persisted state", map[string]interface{}{"error": corrupt.Error()})
		return s.replace(Snapshot{}), nil
	}
	if p.Batch == nil || p.Batch.Records == nil {
		return s.replace(Snapshot{}), nil
	}

	criteria := p.Criteria
	if validateCriteria(criteria) != nil {
		criteria = models.FilterCriteria{}
	}

	next := Snapshot{
		Batch:    p.Batch,
		Criteria: criteria,
		Filtered: filter.Apply(p.Batch.Records, criteria),
	}
	if p.Shortlist != nil && p.Shortlist.Handoff.BatchID == p.Batch.BatchID {
		next.Shortlist = p.Shortlist
	}

	metrics.FilteredRecords.Set(float64(len(next.Filtered)))
	s.logger.Info("restored screening state", map[string]interface{}{
		"batchId":  p.Batch.BatchID,
		"records":  len(p.Batch.Records),
		"filtered": len(next.Filtered),
		"ranked":   next.HasRankings(),
	})
	return s.replace(next), nil
}

// ==========================
// Internals
// ==========================

type commitResult struct {
	snap Snapshot
	err  error
}

// commit computes the next state from the current one, swaps it in, publishes
// it and persists it. When fn fails nothing changes.
func (s *Store) commit(ctx context.Context, op string, fn func(Snapshot) (Snapshot, error)) commitResult {
	s.mu.Lock()
	next, err := fn(s.state)
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("store mutation rejected", map[string]interface{}{"operation": op, "error": err.Error()})
		return commitResult{snap: next, err: err}
	}
	if next.Filtered == nil {
		next.Filtered = []models.CandidateRecord{}
	}
	next.Version = s.state.Version + 1
	s.state = next
	s.publish(next)
	s.mu.Unlock()

	_ = s.persist(ctx, next)
	return commitResult{snap: next}
}

func (s *Store) replace(next Snapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.Filtered == nil {
		next.Filtered = []models.CandidateRecord{}
	}
	next.Version = s.state.Version + 1
	s.state = next
	s.publish(next)
	return next
}

// publish must be called with s.mu held.
func (s *Store) publish(snap Snapshot) {
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Store) recordPersistence(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Warn("persistence operation failed", map[string]interface{}{
			"operation": op,
			"key":       s.key,
			"error":     err.Error(),
		})
	}
	metrics.PersistenceOperations.WithLabelValues(op, status).Inc()
}

func batchRecords(b *models.Batch) []models.CandidateRecord {
	if b == nil {
		return nil
	}
	return b.Records
}

func validateCriteria(c models.FilterCriteria) error {
	if c.MinExperience != nil && *c.MinExperience < 0 {
		return apperrors.NewInvalidFilterFormatError("minExperience must not be negative")
	}
	if c.MaxExperience != nil && *c.MaxExperience < 0 {
		return apperrors.NewInvalidFilterFormatError("maxExperience must not be negative")
	}
	for field, q := range map[string]*string{"minQualification": c.MinQualification, "maxQualification": c.MaxQualification} {
		if q != nil && *q != "" && filter.QualificationRank(*q) == 0 {
			return apperrors.NewInvalidFilterFormatError(field + " is not a known qualification")
		}
	}
	return nil
}
