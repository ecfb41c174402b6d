package normalize

import (
	"regexp"

	"github.com/joseph-ayodele/arrestlog/constants"
)

var (
	// dateOfArrestPattern matches "MM/DD/YY HH:MM"; the first two digits may be split by a space.
	dateOfArrestPattern = regexp.MustCompile(`(\d{2}|\d \d)/\d{2}/\d{2} \d{2}:\d{2}`)

	// dateOfBirthPattern matches 8-10 digit dates where "/" may have been read as "1" or lost.
	dateOfBirthPattern = regexp.MustCompile(`\d{2}(/|1)?\d{2}(/|1)?\d{4}`)

	sexPattern  = regexp.MustCompile(`Sex: [a-zA-Z]`)
	racePattern = regexp.MustCompile(`Race: [a-zA-Z01]`)
)

// Rule pairs the pattern that locates a field inside a block with the repair
// applied to the matched text.
type Rule struct {
	Field   constants.FieldName
	Pattern *regexp.Regexp
	Repair  func(string) string
}

// Find scans lines in order and returns the repaired match from the first
// line the pattern matches.
func (r Rule) Find(lines []string) (string, bool) {
	for _, line := range lines {
		m := r.Pattern.FindString(line)
		if m == "" {
			continue
		}
		if r.Repair != nil {
			m = r.Repair(m)
		}
		return m, true
	}
	return "", false
}

// Apply runs the repair on a value that was located elsewhere.
func (r Rule) Apply(raw string) string {
	if r.Repair == nil {
		return raw
	}
	return r.Repair(raw)
}

var rules = map[constants.FieldName]Rule{
	constants.DateOfArrest: {Field: constants.DateOfArrest, Pattern: dateOfArrestPattern, Repair: DateOfArrest},
	constants.DateOfBirth:  {Field: constants.DateOfBirth, Pattern: dateOfBirthPattern, Repair: DateOfBirth},
	constants.Sex:          {Field: constants.Sex, Pattern: sexPattern, Repair: Sex},
	constants.Race:         {Field: constants.Race, Pattern: racePattern, Repair: Race},
}

// ruleOrder is the order block extraction evaluates the table in.
var ruleOrder = []constants.FieldName{
	constants.DateOfArrest,
	constants.DateOfBirth,
	constants.Sex,
	constants.Race,
}

// Lookup returns the rule for a field.
func Lookup(f constants.FieldName) (Rule, bool) {
	r, ok := rules[f]
	return r, ok
}

// Rules returns the pattern-driven rules in evaluation order.
func Rules() []Rule {
	out := make([]Rule, 0, len(ruleOrder))
	for _, f := range ruleOrder {
		out = append(out, rules[f])
	}
	return out
}
