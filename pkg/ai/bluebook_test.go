package ai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBluebookFields(t *testing.T) {
	raw := "```json\n" + `{
		"usn": " 1MS22CS001 ",
		"subject_code": "21CS34",
		"cie_marks": {"T1": {"Q1": {"a": "4", "b": "3"}}}
	}` + "\n```"

	fields, err := ParseBluebookFields(raw)
	require.NoError(t, err)
	require.Equal(t, "1MS22CS001", fields.USN)
	require.Equal(t, "21CS34", fields.SubjectCode)

	var marks map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fields.CIEMarks, &marks))
	require.Contains(t, marks, "T1")
}

func TestParseBluebookFieldsNullMarks(t *testing.T) {
	fields, err := ParseBluebookFields(`{"usn": "1MS22CS002", "subject_code": null, "cie_marks": null}`)
	require.NoError(t, err)
	require.Equal(t, "1MS22CS002", fields.USN)
	require.Empty(t, fields.SubjectCode)
}

func TestParseBluebookFieldsMalformed(t *testing.T) {
	_, err := ParseBluebookFields("the image is too blurry to read")
	require.ErrorIs(t, err, ErrMalformedResponse)
}
