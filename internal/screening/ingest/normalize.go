// Package ingest converts the loosely typed rows returned by the extraction
// service into CandidateRecords. It runs exactly once per batch; everything
// downstream works on the typed records.
package ingest

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"cv-screening/internal/models"
	"cv-screening/internal/screening/filter"

	"github.com/microcosm-cc/bluemonday"
)

// field aliases, lowercased
var (
	idKeys          = []string{"cvid", "cv_id", "id", "resume_id"}
	nameKeys        = []string{"name", "full_name", "fullname", "candidate_name", "candidate"}
	nationalityKeys = []string{"nationality", "nationalities", "citizenship"}
	experienceKeys  = []string{"yearsofexperience", "years_of_experience", "experience", "yoe", "total_experience"}
	degreeKeys      = []string{"highestdegree", "highest_degree", "qualification", "highest_qualification", "education"}
	genderKeys      = []string{"gender", "sex"}
	ageKeys         = []string{"age"}
	emailKeys       = []string{"email", "email_address"}
	phoneKeys       = []string{"phone", "phone_number", "mobile"}
	languageKeys    = []string{"languages", "language"}
	skillKeys       = []string{"skills", "skill_set"}
	employmentKeys  = []string{"employmenthistory", "employment_history", "work_history", "work_experience"}
)

var numberPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// Normalizer strips markup from extracted text and coerces each row.
type Normalizer struct {
	policy *bluemonday.Policy
}

func NewNormalizer() *Normalizer {
	return &Normalizer{policy: bluemonday.StrictPolicy()}
}

// Normalize converts rows into records. Missing identifiers are synthesized
// as CV001, CV002, ...; repeated identifiers get a -2, -3 suffix so cvId stays
// unique within the batch. It never fails.
func (n *Normalizer) Normalize(rows []map[string]interface{}) []models.CandidateRecord {
	out := make([]models.CandidateRecord, 0, len(rows))
	seen := make(map[string]int, len(rows))

	for i, row := range rows {
		rec := n.normalizeRow(lowerKeys(row))

		if rec.CvID == "" {
			rec.CvID = fmt.Sprintf("CV%03d", i+1)
		}
		if count, dup := seen[rec.CvID]; dup {
			seen[rec.CvID] = count + 1
			rec.CvID = fmt.Sprintf("%s-%d", rec.CvID, count+1)
		}
		seen[rec.CvID]++

		out = append(out, rec)
	}
	return out
}

func (n *Normalizer) normalizeRow(row map[string]interface{}) models.CandidateRecord {
	rec := models.CandidateRecord{
		CvID:          n.text(lookup(row, idKeys)),
		Name:          n.text(lookup(row, nameKeys)),
		HighestDegree: n.text(lookup(row, degreeKeys)),
		Gender:        n.text(lookup(row, genderKeys)),
		Email:         n.text(lookup(row, emailKeys)),
		Phone:         n.text(lookup(row, phoneKeys)),
	}

	rec.Nationality = n.list(lookup(row, nationalityKeys))
	rec.Languages = n.list(lookup(row, languageKeys))
	rec.Skills = n.list(lookup(row, skillKeys))

	if years, ok := coerceInt(lookup(row, experienceKeys)); ok && years > 0 {
		rec.YearsOfExperience = years
	}
	if age, ok := coerceInt(lookup(row, ageKeys)); ok && age > 0 {
		rec.Age = &age
	}

	rec.EmploymentHistory = n.employment(lookup(row, employmentKeys))
	return rec
}

func (n *Normalizer) text(raw interface{}) string {
	var s string
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	return n.clean(s)
}

func (n *Normalizer) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(n.policy.Sanitize(s)))
}

func (n *Normalizer) list(raw interface{}) []string {
	parsed := filter.ParseNationalities(raw)
	out := make([]string, 0, len(parsed))
	for _, item := range parsed {
		if s := n.clean(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (n *Normalizer) employment(raw interface{}) []models.EmploymentEntry {
	var items []interface{}
	switch v := raw.(type) {
	case nil:
		return nil
	case []interface{}:
		items = v
	case []map[string]interface{}:
		for _, m := range v {
			items = append(items, m)
		}
	default:
		items = []interface{}{v}
	}

	var out []models.EmploymentEntry
	for _, item := range items {
		switch v := item.(type) {
		case map[string]interface{}:
			m := lowerKeys(v)
			entry := models.EmploymentEntry{
				Title:   n.text(lookup(m, []string{"title", "role", "position", "name", "company"})),
				Details: n.text(lookup(m, []string{"details", "description", "duration", "summary"})),
			}
			if company := n.text(lookup(m, []string{"company", "employer", "organization"})); company != "" && company != entry.Title {
				entry.Title = strings.TrimSpace(entry.Title + " - " + company)
			}
			if entry.Title != "" || entry.Details != "" {
				out = append(out, entry)
			}
		default:
			if s := n.text(v); s != "" {
				out = append(out, models.EmploymentEntry{Title: s})
			}
		}
	}
	return out
}

// coerceInt reads a count of whole years from numbers or text such as
// "5 years" or "3.5". Fractions are truncated.
func coerceInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int(f), true
	case string:
		match := numberPattern.FindString(v)
		if match == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}

func lowerKeys(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func lookup(row map[string]interface{}, keys []string) interface{} {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
