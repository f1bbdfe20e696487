package models

// ExperienceNoUpperBound is the "10+" experience option. A maximum of exactly
// this value means no upper bound; any other maximum is a literal cap.
const ExperienceNoUpperBound = 10

// FilterCriteria is the live set of long-list constraints. A nil field and an
// empty string both mean "no constraint".
type FilterCriteria struct {
	Nationality      *string `json:"nationality,omitempty"`
	MinExperience    *int    `json:"minExperience,omitempty"`
	MaxExperience    *int    `json:"maxExperience,omitempty"`
	Gender           *string `json:"gender,omitempty"`
	MinQualification *string `json:"minQualification,omitempty"`
	MaxQualification *string `json:"maxQualification,omitempty"`
}

// IsEmpty reports whether no field constrains the view.
func (c FilterCriteria) IsEmpty() bool {
	return isBlank(c.Nationality) && c.MinExperience == nil && c.MaxExperience == nil &&
		isBlank(c.Gender) && isBlank(c.MinQualification) && isBlank(c.MaxQualification)
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}

// CriteriaPatch carries the controls a caller changed. Set* flags mark which
// fields the patch touches; a touched field with a nil value clears it.
type CriteriaPatch struct {
	SetNationality      bool
	Nationality         *string
	SetMinExperience    bool
	MinExperience       *int
	SetMaxExperience    bool
	MaxExperience       *int
	SetGender           bool
	Gender              *string
	SetMinQualification bool
	MinQualification    *string
	SetMaxQualification bool
	MaxQualification    *string
}

// Merge applies p on top of c and returns the result. c is not modified.
func (c FilterCriteria) Merge(p CriteriaPatch) FilterCriteria {
	out := c
	if p.SetNationality {
		out.Nationality = normalizeString(p.Nationality)
	}
	if p.SetMinExperience {
		out.MinExperience = copyInt(p.MinExperience)
	}
	if p.SetMaxExperience {
		out.MaxExperience = copyInt(p.MaxExperience)
	}
	if p.SetGender {
		out.Gender = normalizeString(p.Gender)
	}
	if p.SetMinQualification {
		out.MinQualification = normalizeString(p.MinQualification)
	}
	if p.SetMaxQualification {
		out.MaxQualification = normalizeString(p.MaxQualification)
	}
	return out
}

func normalizeString(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// StringPtr and IntPtr are conveniences for building criteria.
func StringPtr(s string) *string { return &s }

func IntPtr(i int) *int { return &i }
