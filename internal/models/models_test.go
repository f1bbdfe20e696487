package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterCriteria_Merge(t *testing.T) {
	base := FilterCriteria{Nationality: StringPtr("Indian"), MinExperience: IntPtr(3)}

	merged := base.Merge(CriteriaPatch{
		SetNationality:   true,
		Nationality:      StringPtr(""),
		SetMaxExperience: true,
		MaxExperience:    IntPtr(10),
	})

	assert.Nil(t, merged.Nationality, "empty string clears the field")
	assert.Equal(t, 3, *merged.MinExperience, "untouched fields survive")
	assert.Equal(t, 10, *merged.MaxExperience)
	assert.Equal(t, "Indian", *base.Nationality, "receiver is not modified")
}

func TestFilterCriteria_IsEmpty(t *testing.T) {
	assert.True(t, FilterCriteria{}.IsEmpty())
	assert.True(t, FilterCriteria{Gender: StringPtr("")}.IsEmpty())
	assert.False(t, FilterCriteria{MinExperience: IntPtr(0)}.IsEmpty())
}

func TestWeights(t *testing.T) {
	assert.True(t, DefaultWeights().Valid())
	assert.InDelta(t, 1.0, DefaultWeights().Total(), 1e-9)
	assert.False(t, Weights{Experience: 0.5, Qualifications: 0.4, Skills: 0.3}.Valid())
	assert.True(t, Weights{Experience: 0.1 + 0.2, Qualifications: 0.4, Skills: 0.3}.Valid())
}

func TestCandidateRecord_Clone(t *testing.T) {
	age := 30
	r := CandidateRecord{CvID: "CV1", Nationality: []string{"Indian"}, Age: &age}
	c := r.Clone()
	c.Nationality[0] = "Nepali"
	*c.Age = 31

	assert.Equal(t, "Indian", r.Nationality[0])
	assert.Equal(t, 30, *r.Age)
}

func TestUser_Display(t *testing.T) {
	assert.Equal(t, "Unknown User", User{}.DisplayName())
	assert.Equal(t, "Ana Lopez", User{FName: "Ana", LName: "Lopez"}.DisplayName())
	assert.Equal(t, "Ana", User{FName: "Ana"}.DisplayName())
	assert.Equal(t, "approved", User{CVAccess: true}.AccessStatus())
	assert.Equal(t, "rejected", User{}.AccessStatus())
}

func TestSession_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{Token: "t", ExpiresAt: now.Add(10*time.Minute + 30*time.Second)}

	assert.False(t, s.IsExpired(now))
	assert.Equal(t, 10, s.MinutesRemaining(now))
	assert.True(t, s.IsExpired(now.Add(11*time.Minute)))
	assert.Equal(t, 0, s.MinutesRemaining(now.Add(11*time.Minute)))

	var none *Session
	assert.True(t, none.IsExpired(now))
}
