package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_UploadResponse(t *testing.T) {
	tests := []struct {
		name  string
		doc   map[string]interface{}
		valid bool
		field string
	}{
		{
			name:  "full reply",
			doc:   map[string]interface{}{"message": "ok", "pdf_id": float64(12), "rows": float64(2), "data": []interface{}{map[string]interface{}{"id": "CV1"}}},
			valid: true,
		},
		{
			name:  "string pdf id",
			doc:   map[string]interface{}{"pdf_id": "12", "data": []interface{}{}},
			valid: true,
		},
		{
			name:  "missing data",
			doc:   map[string]interface{}{"message": "ok"},
			valid: false,
			field: "(root)",
		},
		{
			name:  "missing pdf id",
			doc:   map[string]interface{}{"data": []interface{}{}},
			valid: false,
			field: "(root)",
		},
		{
			name:  "rows not objects",
			doc:   map[string]interface{}{"data": []interface{}{"CV1"}},
			valid: false,
			field: "data.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Validate(UploadResponseSchema, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid, res.Summary())
			if tt.field != "" {
				assert.True(t, res.HasErrors(tt.field), res.Summary())
			}
		})
	}
}

func TestValidate_RankResponse(t *testing.T) {
	ok := map[string]interface{}{
		"ranked_rows": []interface{}{
			map[string]interface{}{"cvId": "CV1", "rank": float64(1), "score": 0.92},
			map[string]interface{}{"cv_id": "CV2", "rank": float64(2), "final_score": 0.81},
		},
		"extracted_job_text": nil,
	}
	res, err := Validate(RankResponseSchema, ok)
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Summary())

	bad := map[string]interface{}{
		"ranked_rows": []interface{}{map[string]interface{}{"rank": float64(1)}},
	}
	res, err = Validate(RankResponseSchema, bad)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.GetErrorMessages())
}

func TestValidate_EmptySchema(t *testing.T) {
	res, err := Validate(nil, map[string]interface{}{"anything": true})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("recruiter@un.org"))
	assert.False(t, ValidateEmail("recruiter@"))
	assert.False(t, ValidateEmail(""))
}

func TestValidateOTP(t *testing.T) {
	assert.True(t, ValidateOTP("123456"))
	assert.False(t, ValidateOTP("12a456"))
	assert.False(t, ValidateOTP("12"))
}
