package answerkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/exam-dataset/internal/fileutil"
)

func TestParseAnswerJSONNested(t *testing.T) {
	m, err := ParseAnswerJSON([]byte(`{"24_56": {"1": " b ", "2": "C"}, "bad": "x"}`))
	require.NoError(t, err)

	a, err := m.Lookup("24_56", "1")
	require.NoError(t, err)
	assert.Equal(t, "B", a)
	assert.Len(t, m, 2)

	_, err = m.Lookup("24_56", "3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseAnswerJSONList(t *testing.T) {
	m, err := ParseAnswerJSON([]byte(`[
		{"exam_id": "24_56", "problem_number": "1", "answer": "a"},
		{"exam_id": "24_56", "number": 2, "answer": "D"},
		{"exam_id": "24_56", "id": "3", "answer": ""},
		"noise"
	]`))
	require.NoError(t, err)
	assert.Equal(t, AnswerMap{
		{ExamID: "24_56", ProblemNumber: "1"}: "A",
		{ExamID: "24_56", ProblemNumber: "2"}: "D",
	}, m)
}

func TestParseAnswerYAML(t *testing.T) {
	m, err := ParseAnswerYAML([]byte("24_56:\n  1: a\n  2: E\n"))
	require.NoError(t, err)
	assert.Equal(t, "A", m[AnswerKey{ExamID: "24_56", ProblemNumber: "1"}])
	assert.Equal(t, "E", m[AnswerKey{ExamID: "24_56", ProblemNumber: "2"}])
}

func TestParseAnswerJSONInvalid(t *testing.T) {
	_, err := ParseAnswerJSON([]byte(`{`))
	assert.Error(t, err)
	_, err = ParseAnswerJSON([]byte(`"text"`))
	assert.Error(t, err)
}

func TestParseExamFilename(t *testing.T) {
	cases := map[string]ExamMeta{
		"pdfs/24_56.pdf": {ExamID: "24_56", Year: 2024, Group: "5-6"},
		"14_1113.pdf":    {ExamID: "14_1113", Year: 2014, Group: "11-13"},
		"2019_910.pdf":   {ExamID: "2019_910", Year: 2019, Group: "9-10"},
		"kangaroo.pdf":   {ExamID: "kangaroo"},
		"/tmp/24_5.pdf":  {ExamID: "24_5"},
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseExamFilename(in), in)
	}
}

func TestAnswerMapFromYearFiles(t *testing.T) {
	keys := t.TempDir()
	pdfs := t.TempDir()
	for _, name := range []string{"19_34.pdf", "19_56.pdf", "20_34.pdf", "notes.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(pdfs, name), []byte("%PDF"), 0o644))
	}
	require.NoError(t, fileutil.WriteJSON(YearPath(keys, 2019), &YearOutput{
		Year: 2019,
		GradeGroups: map[string]GroupResult{
			"3-4": {Scheme: SchemeABC, Order: []string{"A1", "A2"}, AnswersByLabel: map[string]string{"A1": "c", "A2": "D"}},
			"5-6": {Scheme: SchemeNumeric, Order: []string{"1", "2"}, AnswersByLabel: map[string]string{"2": "B"}},
		},
	}))

	m, err := AnswerMapFromYearFiles(keys, pdfs)
	require.NoError(t, err)

	assert.Equal(t, "C", m[AnswerKey{ExamID: "19_34", ProblemNumber: "1"}])
	assert.Equal(t, "D", m[AnswerKey{ExamID: "19_34.pdf", ProblemNumber: "2"}])
	_, lettered := m[AnswerKey{ExamID: "19_34", ProblemNumber: "A1"}]
	assert.False(t, lettered, "only numeric labels are keyed directly")

	assert.Equal(t, "B", m[AnswerKey{ExamID: "19_56", ProblemNumber: "2"}])
	_, ok := m[AnswerKey{ExamID: "19_56", ProblemNumber: "1"}]
	assert.False(t, ok, "no answer for label 1")
	assert.Len(t, m, 6)
}

func TestLoadAnswerMapDispatch(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "keys.json")
	yamlPath := filepath.Join(dir, "keys.yml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"x": {"1": "A"}}`), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte("x:\n  \"1\": B\n"), 0o644))

	m, err := LoadAnswerMap(jsonPath, "")
	require.NoError(t, err)
	assert.Equal(t, "A", m[AnswerKey{ExamID: "x", ProblemNumber: "1"}])

	m, err = LoadAnswerMap(yamlPath, "")
	require.NoError(t, err)
	assert.Equal(t, "B", m[AnswerKey{ExamID: "x", ProblemNumber: "1"}])

	_, err = LoadAnswerMap(filepath.Join(dir, "missing.json"), "")
	assert.Error(t, err)
}
