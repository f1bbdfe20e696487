package models

// CandidateRecord is one extracted CV row, normalized once at ingestion.
// CvID is unique within a Batch.
type CandidateRecord struct {
	CvID              string            `json:"cvId"`
	Name              string            `json:"name"`
	Nationality       []string          `json:"nationality"`
	YearsOfExperience int               `json:"yearsOfExperience"`
	HighestDegree     string            `json:"highestDegree"`
	Gender            string            `json:"gender,omitempty"`
	Age               *int              `json:"age,omitempty"`
	Email             string            `json:"email,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	Languages         []string          `json:"languages,omitempty"`
	Skills            []string          `json:"skills,omitempty"`
	EmploymentHistory []EmploymentEntry `json:"employmentHistory,omitempty"`
}

// EmploymentEntry is one position in a candidate's history.
type EmploymentEntry struct {
	Title   string `json:"title"`
	Details string `json:"details,omitempty"`
}

// Clone returns a deep copy of r.
func (r CandidateRecord) Clone() CandidateRecord {
	out := r
	out.Nationality = append([]string(nil), r.Nationality...)
	out.Languages = append([]string(nil), r.Languages...)
	out.Skills = append([]string(nil), r.Skills...)
	out.EmploymentHistory = append([]EmploymentEntry(nil), r.EmploymentHistory...)
	if r.Age != nil {
		age := *r.Age
		out.Age = &age
	}
	return out
}

// CloneRecords deep-copies a slice of records. A nil input yields an empty slice.
func CloneRecords(in []CandidateRecord) []CandidateRecord {
	out := make([]CandidateRecord, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Batch is the full result of one successful upload.
type Batch struct {
	BatchID  int64             `json:"batchId"`
	Records  []CandidateRecord `json:"records"`
	Message  string            `json:"message,omitempty"`
	RowCount int               `json:"rowCount"`
}

