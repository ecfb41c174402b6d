// Package normalize repairs raw field values cut out of OCR text.
//
// Every repair is total: a value no rule recognizes is returned unchanged.
package normalize

import (
	"strings"
	"unicode/utf8"
)

// DateOfArrest joins a day digit that OCR split off with a space:
// "0 5/20/17 20:56" -> "05/20/17 20:56".
func DateOfArrest(s string) string {
	if len(s) >= 3 && isDigit(s[0]) && s[1] == ' ' && isDigit(s[2]) {
		return s[:1] + s[2:]
	}
	return s
}

// DateOfBirth rebuilds the separators of a date of birth.
//
// Ten characters keep their digits and get "/" forced at offsets 2 and 5.
// Eight or nine characters are read as digits with lost separators and
// regrouped greedily into DD/MM/YYYY; any non-digit is dropped. The result is
// not checked for a plausible calendar date.
func DateOfBirth(s string) string {
	runes := []rune(s)
	switch len(runes) {
	case 10:
		runes[2] = '/'
		runes[5] = '/'
		return string(runes)
	case 8, 9:
		var day, month, year []rune
		for _, r := range runes {
			if r < '0' || r > '9' {
				continue
			}
			switch {
			case len(day) < 2:
				day = append(day, r)
			case len(month) < 2:
				month = append(month, r)
			case len(year) < 4:
				year = append(year, r)
			}
		}
		return string(day) + "/" + string(month) + "/" + string(year)
	default:
		return s
	}
}

// Sex upper-cases the last character of a "Sex: X" match.
func Sex(match string) string {
	return lastUpper(match)
}

// Race upper-cases the last character of a "Race: X" match and maps the
// digits OCR confuses with letter codes: "0" -> "O", "1" -> "I".
func Race(match string) string {
	switch c := lastUpper(match); c {
	case "0":
		return "O"
	case "1":
		return "I"
	default:
		return c
	}
}

// JoinCrimes keeps every line that mentions one of the statute codes and
// joins them with " | ". It returns "" when no line qualifies.
func JoinCrimes(lines []string, codes []string) string {
	var hits []string
	for _, line := range lines {
		for _, code := range codes {
			if code != "" && strings.Contains(line, code) {
				hits = append(hits, line)
				break
			}
		}
	}
	return strings.Join(hits, " | ")
}

// HasLetter reports whether s contains an ASCII letter.
func HasLetter(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}

func lastUpper(s string) string {
	r, size := utf8.DecodeLastRuneInString(s)
	if size == 0 {
		return ""
	}
	return strings.ToUpper(string(r))
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
