package filter

import (
	"sort"
	"strconv"
	"strings"

	"cv-screening/internal/models"
)

// Option is one choice of a filter control.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Options lists the choices available for each long-list control.
type Options struct {
	Nationalities  []Option `json:"nationalities"`
	Experience     []Option `json:"experience"`
	Genders        []Option `json:"genders"`
	Qualifications []Option `json:"qualifications"`
}

// OptionsFor builds control choices for a batch. Nationalities come from the
// records themselves; the rest are fixed.
func OptionsFor(records []models.CandidateRecord) Options {
	opts := Options{
		Nationalities:  []Option{{Label: "All Nationalities", Value: ""}},
		Genders:        []Option{{Label: "Select Gender", Value: ""}, {Label: "Male", Value: "Male"}, {Label: "Female", Value: "Female"}, {Label: "Other", Value: "Other"}},
		Qualifications: []Option{{Label: "All Qualifications", Value: ""}},
	}

	for i := 0; i < models.ExperienceNoUpperBound; i++ {
		s := strconv.Itoa(i)
		opts.Experience = append(opts.Experience, Option{Label: s, Value: s})
	}
	bound := strconv.Itoa(models.ExperienceNoUpperBound)
	opts.Experience = append(opts.Experience, Option{Label: bound + "+", Value: bound})

	for _, q := range CanonicalQualifications() {
		opts.Qualifications = append(opts.Qualifications, Option{Label: q, Value: q})
	}

	seen := make(map[string]string)
	for _, r := range records {
		for _, n := range r.Nationality {
			key := strings.ToLower(n)
			if _, ok := seen[key]; !ok && n != "" {
				seen[key] = n
			}
		}
	}
	names := make([]string, 0, len(seen))
	for _, n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		opts.Nationalities = append(opts.Nationalities, Option{Label: n, Value: n})
	}

	return opts
}
