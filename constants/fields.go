package constants

import (
	"strings"
)

// FieldName identifies one column of a reconstructed arrest record.
type FieldName string

const (
	CaseNumber   FieldName = "case_number"
	DateOfArrest FieldName = "date_of_arrest"
	Sex          FieldName = "sex"
	Race         FieldName = "race"
	DateOfBirth  FieldName = "dob"
	Location     FieldName = "location"
	Crimes       FieldName = "crimes"
)

// allFields is the tabular column order.
var allFields = []FieldName{
	CaseNumber,
	DateOfArrest,
	Sex,
	Race,
	DateOfBirth,
	Location,
	Crimes,
}

// Columns returns the fixed column order used by tabular sinks.
func Columns() []FieldName {
	out := make([]FieldName, len(allFields))
	copy(out, allFields)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allFields))
	for i, f := range allFields {
		result[i] = string(f)
	}
	return result
}

// Canonicalize maps a field identifier or one of the labels printed on the
// source logs to its FieldName.
func Canonicalize(input string) (FieldName, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.TrimSuffix(normalized, ":")

	// labels as they appear on scanned logs
	synonyms := map[string]FieldName{
		"case number":      CaseNumber,
		"case_number":      CaseNumber,
		"date arrest":      DateOfArrest,
		"date_arrest":      DateOfArrest,
		"date of arrest":   DateOfArrest,
		"primary location": Location,
		"d.o.b":            DateOfBirth,
		"d.o.b.":           DateOfBirth,
		"date of birth":    DateOfBirth,
		"violation":        Crimes,
		"charges":          Crimes,
	}

	if f, ok := synonyms[normalized]; ok {
		return f, true
	}

	for _, f := range allFields {
		if normalized == string(f) {
			return f, true
		}
	}

	return "", false
}
