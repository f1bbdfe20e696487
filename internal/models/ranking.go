package models

import "math"

// Weights are the relative importance of each ranking dimension. They must
// sum to 1.0 within WeightTolerance.
type Weights struct {
	Experience     float64 `json:"experience"`
	Qualifications float64 `json:"qualifications"`
	Skills         float64 `json:"skills"`
}

const (
	WeightStep      = 0.10
	WeightTolerance = 0.01
)

// DefaultWeights returns the initial short-list weighting.
func DefaultWeights() Weights {
	return Weights{Experience: 0.30, Qualifications: 0.40, Skills: 0.30}
}

// Total returns the weight sum rounded to two decimals.
func (w Weights) Total() float64 {
	return RoundWeight(w.Experience + w.Qualifications + w.Skills)
}

// Valid reports whether the weights sum to 1.0.
func (w Weights) Valid() bool {
	return math.Abs(w.Total()-1.0) <= WeightTolerance
}

// RoundWeight rounds to two decimal places.
func RoundWeight(v float64) float64 {
	return math.Round(v*100) / 100
}

// SearchOperator joins the terms of a short-list search query.
type SearchOperator string

const (
	SearchAnd SearchOperator = "and"
	SearchOr  SearchOperator = "or"
)

// JobTemplates are the built-in job descriptions a ranking can target.
var JobTemplates = map[string]string{
	"unv":           "UNV",
	"sc":            "SC",
	"sc_manager":    "SC Manager",
	"ic_consultant": "IC Consultant",
}

// Handoff is what the long list forwards to the short list: the batch it was
// filtered from and the filtered view, verbatim.
type Handoff struct {
	BatchID    int64             `json:"batchId"`
	Candidates []CandidateRecord `json:"candidates"`
}

// RankedRow is one row of the ranking collaborator's response.
type RankedRow struct {
	CvID  string  `json:"cvId"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// RankedResult joins a RankedRow with its CandidateRecord.
type RankedResult struct {
	CandidateRecord
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// Shortlist is the short-list stage: the hand-off and, once ranked, the results.
type Shortlist struct {
	Handoff          Handoff        `json:"handoff"`
	Rankings         []RankedResult `json:"rankings,omitempty"`
	Ranked           bool           `json:"ranked"`
	ExtractedJobText string         `json:"extractedJobText,omitempty"`
}
