package entity

import (
	"github.com/joseph-ayodele/arrestlog/constants"
)

// Record is one reconstructed arrest. Fields the strategy could not find are
// absent rather than empty.
type Record map[constants.FieldName]string

// Get returns the value for a field and whether it was present.
func (r Record) Get(f constants.FieldName) (string, bool) {
	v, ok := r[f]
	return v, ok
}

// Row returns the record's values in the fixed column order, with "" for
// absent fields.
func (r Record) Row() []string {
	cols := constants.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = r[c]
	}
	return out
}

// StringMap returns the record keyed by plain strings, for serializers.
func (r Record) StringMap() map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		out[string(k)] = v
	}
	return out
}

// FieldStreams holds, per field, the raw values in order of appearance.
type FieldStreams map[constants.FieldName][]string

// Len returns the length of the shortest stream, which is the number of
// records positional assembly can produce. An empty map has length 0.
func (s FieldStreams) Len() int {
	if len(s) == 0 {
		return 0
	}
	n := -1
	for _, vs := range s {
		if n < 0 || len(vs) < n {
			n = len(vs)
		}
	}
	return n
}
