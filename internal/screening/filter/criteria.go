package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cv-screening/internal/models"
)

var ErrInvalidFilterFormat = errors.New("invalid filter format")

// ParseCriteria converts loosely typed control values into a patch. Keys that
// are present are touched; null and "" clear the constraint. Unrecognized keys
// are ignored.
func ParseCriteria(raw map[string]interface{}) (models.CriteriaPatch, error) {
	var patch models.CriteriaPatch

	if v, ok := raw["nationality"]; ok {
		s, err := parseString("nationality", v)
		if err != nil {
			return patch, err
		}
		patch.SetNationality, patch.Nationality = true, s
	}

	if v, ok := raw["minExperience"]; ok {
		n, err := parseExperience("minExperience", v)
		if err != nil {
			return patch, err
		}
		patch.SetMinExperience, patch.MinExperience = true, n
	}

	if v, ok := raw["maxExperience"]; ok {
		n, err := parseExperience("maxExperience", v)
		if err != nil {
			return patch, err
		}
		patch.SetMaxExperience, patch.MaxExperience = true, n
	}

	if v, ok := raw["gender"]; ok {
		s, err := parseString("gender", v)
		if err != nil {
			return patch, err
		}
		patch.SetGender, patch.Gender = true, s
	}

	// "qualification" is the older name of the minimum qualification control.
	for _, key := range []string{"qualification", "minQualification"} {
		if v, ok := raw[key]; ok {
			s, err := parseQualification(key, v)
			if err != nil {
				return patch, err
			}
			patch.SetMinQualification, patch.MinQualification = true, s
		}
	}

	if v, ok := raw["maxQualification"]; ok {
		s, err := parseQualification("maxQualification", v)
		if err != nil {
			return patch, err
		}
		patch.SetMaxQualification, patch.MaxQualification = true, s
	}

	return patch, nil
}

func parseString(field string, raw interface{}) (*string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidFilterFormat, field)
	}
}

func parseQualification(field string, raw interface{}) (*string, error) {
	s, err := parseString(field, raw)
	if err != nil || s == nil {
		return s, err
	}
	if QualificationRank(*s) == 0 {
		return nil, fmt.Errorf("%w: unknown qualification '%s'", ErrInvalidFilterFormat, *s)
	}
	canonical := NormalizeQualification(*s)
	return &canonical, nil
}

// parseExperience accepts whole non-negative numbers, numeric strings and the
// "10+" option label.
func parseExperience(field string, raw interface{}) (*int, error) {
	var n int
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		if v < 0 || v != float64(int(v)) {
			return nil, fmt.Errorf("%w: %s must be a whole number of years", ErrInvalidFilterFormat, field)
		}
		n = int(v)
	case int:
		n = v
	case int64:
		n = int(v)
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(v), "+")
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s '%s' is not a number", ErrInvalidFilterFormat, field, v)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidFilterFormat, field)
	}

	if n < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidFilterFormat, field)
	}
	return &n, nil
}
