package filter

import (
	"strings"

	"cv-screening/internal/models"
)

// Matches reports whether record satisfies every set field of criteria.
func Matches(record models.CandidateRecord, criteria models.FilterCriteria) bool {
	if want, ok := value(criteria.Nationality); ok {
		if !nationalityMatches(record.Nationality, want) {
			return false
		}
	}

	if criteria.MinExperience != nil && record.YearsOfExperience < *criteria.MinExperience {
		return false
	}
	if criteria.MaxExperience != nil && *criteria.MaxExperience != models.ExperienceNoUpperBound &&
		record.YearsOfExperience > *criteria.MaxExperience {
		return false
	}

	if want, ok := value(criteria.Gender); ok {
		if !strings.EqualFold(strings.TrimSpace(record.Gender), want) {
			return false
		}
	}

	if want, ok := value(criteria.MinQualification); ok {
		if QualificationRank(record.HighestDegree) < QualificationRank(want) {
			return false
		}
	}
	if want, ok := value(criteria.MaxQualification); ok {
		if QualificationRank(record.HighestDegree) > QualificationRank(want) {
			return false
		}
	}

	return true
}

// Apply returns the records that match criteria, in their original order.
// The result is always a new slice.
func Apply(records []models.CandidateRecord, criteria models.FilterCriteria) []models.CandidateRecord {
	out := make([]models.CandidateRecord, 0, len(records))
	for _, r := range records {
		if Matches(r, criteria) {
			out = append(out, r)
		}
	}
	return out
}

func nationalityMatches(nationalities []string, want string) bool {
	want = strings.ToLower(want)
	for _, n := range ParseNationalities(nationalities) {
		if strings.Contains(strings.ToLower(n), want) {
			return true
		}
	}
	return false
}

func value(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	return v, v != ""
}
