package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "cv-screening/internal/common/errors"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/models"
	"cv-screening/internal/persistence"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Helpers
// ==========================

func sampleRecords() []models.CandidateRecord {
	return []models.CandidateRecord{
		{CvID: "CV1", Name: "Amina", Nationality: []string{"Kenyan"}, YearsOfExperience: 7, HighestDegree: "Masters", Gender: "Female"},
		{CvID: "CV2", Name: "Raj", Nationality: []string{"Indian"}, YearsOfExperience: 5, HighestDegree: "Bachelors", Gender: "Male"},
		{CvID: "CV3", Name: "Priya", Nationality: []string{"Indian", "British"}, YearsOfExperience: 12, HighestDegree: "PhD", Gender: "Female"},
		{CvID: "CV4", Name: "Luis", Nationality: []string{"Peruvian"}, YearsOfExperience: 2, HighestDegree: "Diploma", Gender: "Male"},
	}
}

func ids(records []models.CandidateRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.CvID)
	}
	return out
}

type failingKV struct{ err error }

func (f failingKV) Put(context.Context, string, []byte) error   { return f.err }
func (f failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingKV) Delete(context.Context, string) error        { return f.err }

// gatedKV blocks every Put until release is closed.
type gatedKV struct {
	*persistence.MemoryKV
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedKV() *gatedKV {
	return &gatedKV{MemoryKV: persistence.NewMemoryKV(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedKV) Put(ctx context.Context, key string, value []byte) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.MemoryKV.Put(ctx, key, value)
}

func newStore(t *testing.T) (*Store, *persistence.MemoryKV) {
	kv := persistence.NewMemoryKV()
	return New(kv, logger.NewTestLogger(t)), kv
}

// ==========================
// Batch and criteria
// ==========================

func TestSetBatch(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	records := sampleRecords()
	s.SetBatch(ctx, records, 17)

	snap := s.Snapshot()
	assert.Equal(t, int64(17), snap.BatchID())
	assert.Equal(t, ids(records), ids(snap.Filtered))
	assert.True(t, snap.Criteria.IsEmpty())

	records[0].Name = "mutated"
	assert.Equal(t, "Amina", s.Snapshot().Batch.Records[0].Name, "store holds its own copy")
}

func TestLoadBatch_KeepsRowCount(t *testing.T) {
	tests := []struct {
		name     string
		rowCount int
		want     int
	}{
		{"reported row count kept", 5, 5},
		{"missing row count falls back to records", 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			s.LoadBatch(context.Background(), models.Batch{BatchID: 3, Records: sampleRecords(), Message: "parsed", RowCount: tt.rowCount})

			b := s.Snapshot().Batch
			require.NotNil(t, b)
			assert.Equal(t, tt.want, b.RowCount)
			assert.Equal(t, "parsed", b.Message)
			assert.Len(t, b.Records, 4)
		})
	}
}

func TestUpdateCriteria(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	s.SetBatch(ctx, sampleRecords(), 1)

	snap, err := s.UpdateCriteria(ctx, models.CriteriaPatch{SetNationality: true, Nationality: models.StringPtr("indian")})
	require.NoError(t, err)
	assert.Equal(t, []string{"CV2", "CV3"}, ids(snap.Filtered))

	snap, err = s.UpdateCriteria(ctx, models.CriteriaPatch{SetMinExperience: true, MinExperience: models.IntPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"CV3"}, ids(snap.Filtered), "criteria accumulate")

	snap, err = s.UpdateCriteria(ctx, models.CriteriaPatch{SetNationality: true, Nationality: models.StringPtr("")})
	require.NoError(t, err)
	assert.Equal(t, []string{"CV3"}, ids(snap.Filtered))
	assert.Nil(t, snap.Criteria.Nationality)

	snap = s.ResetCriteria(ctx)
	assert.Len(t, snap.Filtered, 4)
	assert.True(t, snap.Criteria.IsEmpty())
}

func TestUpdateCriteria_InvalidLeavesStateUntouched(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	s.SetBatch(ctx, sampleRecords(), 1)
	before := s.Snapshot()

	_, err := s.UpdateCriteria(ctx, models.CriteriaPatch{SetMinQualification: true, MinQualification: models.StringPtr("Wizardry")})
	require.Error(t, err)
	assert.ErrorIs(t, err, &apperrors.StandardError{Code: apperrors.ErrCodeInvalidFilterFormat})

	_, err = s.UpdateCriteria(ctx, models.CriteriaPatch{SetMinExperience: true, MinExperience: models.IntPtr(-1)})
	require.Error(t, err)

	assert.Equal(t, before, s.Snapshot())
}

func TestUpdateCriteria_WithoutBatch(t *testing.T) {
	s, _ := newStore(t)
	snap, err := s.UpdateCriteria(context.Background(), models.CriteriaPatch{SetGender: true, Gender: models.StringPtr("Male")})
	require.NoError(t, err)
	assert.Empty(t, snap.Filtered)
	assert.NotNil(t, snap.Filtered)
}

func TestFilteredReturnsCopy(t *testing.T) {
	s, _ := newStore(t)
	s.SetBatch(context.Background(), sampleRecords(), 1)

	view := s.Filtered()
	view[0].CvID = "changed"
	assert.Equal(t, "CV1", s.Filtered()[0].CvID)
}

// ==========================
// Short list
// ==========================

func TestShortlistFlow(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	s.SetBatch(ctx, sampleRecords(), 5)
	_, err := s.UpdateCriteria(ctx, models.CriteriaPatch{SetNationality: true, Nationality: models.StringPtr("Indian")})
	require.NoError(t, err)

	_, err = s.BeginShortlist(ctx, models.Handoff{BatchID: 5, Candidates: s.Filtered()})
	require.NoError(t, err)
	assert.False(t, s.HasRankings())

	rows := []models.RankedRow{
		{CvID: "CV3", Rank: 1, Score: 0.9},
		{CvID: "CV9", Rank: 2, Score: 0.8},
		{CvID: "CV2", Rank: 3, Score: 0.4},
	}
	snap, err := s.ApplyRankings(ctx, 5, rows, "Analyst")
	require.NoError(t, err)
	assert.True(t, s.HasRankings())
	require.Len(t, snap.Shortlist.Rankings, 2, "unmatched rows are dropped")
	assert.Equal(t, "CV3", snap.Shortlist.Rankings[0].CvID)
	assert.Equal(t, "Priya", snap.Shortlist.Rankings[0].Name)
	assert.Equal(t, "Analyst", snap.Shortlist.ExtractedJobText)

	snap = s.ClearRankings(ctx)
	assert.False(t, snap.HasRankings())
	assert.Len(t, snap.Shortlist.Handoff.Candidates, 2)
}

func TestApplyRankings_StaleBatch(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, err := s.ApplyRankings(ctx, 1, nil, "")
	assert.ErrorIs(t, err, &apperrors.StandardError{Code: apperrors.ErrCodeNoShortlist})

	s.SetBatch(ctx, sampleRecords(), 1)
	_, err = s.BeginShortlist(ctx, models.Handoff{BatchID: 1, Candidates: s.Filtered()})
	require.NoError(t, err)

	// a new upload replaces the batch and drops the old hand-off
	s.SetBatch(ctx, sampleRecords()[:2], 2)
	assert.Nil(t, s.Snapshot().Shortlist)

	_, err = s.BeginShortlist(ctx, models.Handoff{BatchID: 2, Candidates: s.Filtered()})
	require.NoError(t, err)

	_, err = s.ApplyRankings(ctx, 1, []models.RankedRow{{CvID: "CV1", Rank: 1}}, "")
	assert.ErrorIs(t, err, &apperrors.StandardError{Code: apperrors.ErrCodeStaleBatch})
	assert.False(t, s.HasRankings())

	_, err = s.BeginShortlist(ctx, models.Handoff{BatchID: 1})
	assert.ErrorIs(t, err, &apperrors.StandardError{Code: apperrors.ErrCodeStaleBatch})
}

func TestSetBatch_AfterRankingShowsNewBatchUnranked(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	s.SetBatch(ctx, sampleRecords(), 1)
	_, err := s.BeginShortlist(ctx, models.Handoff{BatchID: 1, Candidates: s.Filtered()})
	require.NoError(t, err)
	_, err = s.ApplyRankings(ctx, 1, []models.RankedRow{{CvID: "CV3", Rank: 1}, {CvID: "CV1", Rank: 2}}, "Analyst")
	require.NoError(t, err)
	require.True(t, s.HasRankings())

	next := []models.CandidateRecord{
		{CvID: "B1", Name: "Tomas", Nationality: []string{"Chilean"}, YearsOfExperience: 3, HighestDegree: "Masters"},
		{CvID: "B2", Name: "Mei", Nationality: []string{"Chinese"}, YearsOfExperience: 9, HighestDegree: "PhD"},
	}
	s.SetBatch(ctx, next, 2)

	snap := s.Snapshot()
	assert.False(t, snap.HasRankings())
	assert.Nil(t, snap.Shortlist)
	assert.Equal(t, int64(2), snap.BatchID())
	assert.Equal(t, []string{"B1", "B2"}, ids(snap.Filtered))

	_, err = s.ApplyRankings(ctx, 1, []models.RankedRow{{CvID: "CV3", Rank: 1}}, "")
	assert.ErrorIs(t, err, &apperrors.StandardError{Code: apperrors.ErrCodeNoShortlist})
	assert.False(t, s.HasRankings())
}

func TestJoin_SortsByRank(t *testing.T) {
	got := Join(sampleRecords(), []models.RankedRow{
		{CvID: "CV2", Rank: 3},
		{CvID: "CV4", Rank: 1},
		{CvID: "CV1", Rank: 2},
	})
	assert.Equal(t, []string{"CV4", "CV1", "CV2"}, []string{got[0].CvID, got[1].CvID, got[2].CvID})
}

// ==========================
// Clear, persist, restore
// ==========================

func TestClear(t *testing.T) {
	s, kv := newStore(t)
	ctx := context.Background()

	s.Clear(ctx)
	s.SetBatch(ctx, sampleRecords(), 1)
	s.Clear(ctx)
	s.Clear(ctx)

	snap := s.Snapshot()
	assert.Nil(t, snap.Batch)
	assert.Empty(t, snap.Filtered)
	assert.Equal(t, int64(0), s.CurrentBatchID())

	_, err := kv.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestClear_WinsOverInFlightPersist(t *testing.T) {
	ctx := context.Background()
	kv := newGatedKV()
	s := New(kv, logger.NewTestLogger(t))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SetBatch(ctx, sampleRecords(), 7)
	}()

	select {
	case <-kv.entered:
	case <-time.After(time.Second):
		t.Fatal("persist never reached the backend")
	}

	cleared := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Clear(ctx)
		close(cleared)
	}()

	select {
	case <-cleared:
		t.Fatal("clear finished while an older write was still in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(kv.release)
	wg.Wait()

	restored := New(kv, logger.NewNoOpLogger())
	snap, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Batch)
	assert.Equal(t, int64(0), snap.BatchID())
}

func TestPersist_SupersededSnapshotIsSkipped(t *testing.T) {
	s, kv := newStore(t)
	ctx := context.Background()

	s.SetBatch(ctx, sampleRecords(), 8)
	stale := s.Snapshot()
	s.Clear(ctx)

	require.NoError(t, s.persist(ctx, stale))
	_, err := kv.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	s.SetBatch(ctx, sampleRecords()[:1], 9)
	older := s.Snapshot()
	_, err = s.UpdateCriteria(ctx, models.CriteriaPatch{SetGender: true, Gender: models.StringPtr("Male")})
	require.NoError(t, err)
	require.NoError(t, s.persist(ctx, older))

	restored := New(kv, logger.NewNoOpLogger())
	snap, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Male", *snap.Criteria.Gender, "the newer criteria survive an older write")
}

func TestPersistRestore_RoundTrip(t *testing.T) {
	kv := persistence.NewMemoryKV()
	ctx := context.Background()

	first := New(kv, logger.NewNoOpLogger())
	first.SetBatch(ctx, sampleRecords(), 9)
	_, err := first.UpdateCriteria(ctx, models.CriteriaPatch{SetGender: true, Gender: models.StringPtr("Female")})
	require.NoError(t, err)
	_, err = first.BeginShortlist(ctx, models.Handoff{BatchID: 9, Candidates: first.Filtered()})
	require.NoError(t, err)
	_, err = first.ApplyRankings(ctx, 9, []models.RankedRow{{CvID: "CV1", Rank: 1, Score: 0.7}}, "")
	require.NoError(t, err)

	second := New(kv, logger.NewNoOpLogger())
	snap, err := second.Restore(ctx)
	require.NoError(t, err)

	want := first.Snapshot()
	assert.Equal(t, want.Filtered, snap.Filtered)
	assert.Equal(t, want.Criteria, snap.Criteria)
	assert.True(t, snap.HasRankings())
	assert.Equal(t, int64(9), snap.BatchID())

	require.NotEmpty(t, snap.Filtered)
	assert.NotSame(t, &want.Filtered[0], &snap.Filtered[0], "restored view is a distinct slice")
}

func TestRestore_AbsentOrCorrupt(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		raw  []byte
	}{
		{"absent", nil},
		{"corrupt", []byte("{batch")},
		{"no batch", []byte(`{"criteria":{}}`)},
		{"batch without records", []byte(`{"batch":{"batchId":3}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := persistence.NewMemoryKV()
			if tt.raw != nil {
				require.NoError(t, kv.Put(ctx, DefaultKey, tt.raw))
			}
			s := New(kv, logger.NewNoOpLogger())
			snap, err := s.Restore(ctx)
			require.NoError(t, err)
			assert.Nil(t, snap.Batch)
			assert.Empty(t, snap.Filtered)
		})
	}
}

func TestPersistenceFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	s := New(failingKV{err: errors.New("disk full")}, logger.NewTestLogger(t))

	s.SetBatch(ctx, sampleRecords(), 3)
	assert.Equal(t, int64(3), s.CurrentBatchID())

	err := s.Persist(ctx)
	assert.ErrorIs(t, err, &apperrors.StandardError{Code: apperrors.ErrCodePersistenceFailed})

	_, err = s.Restore(ctx)
	require.Error(t, err)
	assert.Nil(t, s.Snapshot().Batch)

	s.Clear(ctx)
}

func TestPersistRestore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	kv := persistence.NewRedisKV(client, "screening:state", 0)

	first := New(kv, logger.NewNoOpLogger(), WithKey("ops"))
	first.SetBatch(ctx, sampleRecords(), 4)
	assert.True(t, mr.Exists("screening:state:ops"))

	second := New(kv, logger.NewNoOpLogger(), WithKey("ops"))
	snap, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Filtered, 4)
}

// ==========================
// Subscribe
// ==========================

func TestSubscribe(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	ch, cancel := s.Subscribe()
	initial := <-ch
	assert.Nil(t, initial.Batch)

	s.SetBatch(ctx, sampleRecords(), 1)
	_, err := s.UpdateCriteria(ctx, models.CriteriaPatch{SetGender: true, Gender: models.StringPtr("Male")})
	require.NoError(t, err)

	latest := <-ch
	assert.Equal(t, []string{"CV2", "CV4"}, ids(latest.Filtered), "slow readers see the latest snapshot")
	assert.Equal(t, s.Snapshot().Version, latest.Version)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}
