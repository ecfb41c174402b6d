// Package locate finds raw field values in OCR text by their printed label.
//
// Locators never fail: a missing label ends the scan, it is not an error.
package locate

import (
	"strings"
	"unicode/utf8"
)

// Kind selects how a label's value is found.
type Kind int

const (
	// SameLine fields carry their value as the last character of the label's line ("Sex: M").
	SameLine Kind = iota
	// NextLine fields carry their value on the line after the label.
	NextLine
)

func (k Kind) String() string {
	switch k {
	case SameLine:
		return "same_line"
	case NextLine:
		return "next_line"
	default:
		return "unknown"
	}
}

// ParseKind accepts the names returned by String.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "same_line", "sameline", "same-line":
		return SameLine, true
	case "next_line", "nextline", "next-line":
		return NextLine, true
	default:
		return 0, false
	}
}

// SameLineSuffix returns the trailing character of every line that starts
// with label, in document order. Case is left untouched.
//
// A value wrapped onto the following line yields the wrong character; that is
// accepted and not detected.
func SameLineSuffix(text, label string) []string {
	if label == "" {
		return nil
	}
	var values []string
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(line, label) {
			continue
		}
		r, size := utf8.DecodeLastRuneInString(line)
		if size == 0 {
			continue
		}
		values = append(values, string(r))
	}
	return values
}

// FindNextLine locates the first occurrence of label, skips to the end of
// that line and returns the following line as value. rest is the remainder of
// text starting at the value line's terminator, so a repeated call on rest
// consumes each label occurrence exactly once.
//
// ok is false when label does not occur, when no newline follows it, or when
// the value line is not newline-terminated.
func FindNextLine(text, label string) (value, rest string, ok bool) {
	if label == "" {
		return "", "", false
	}
	i := strings.Index(text, label)
	if i < 0 {
		return "", "", false
	}
	after := text[i:]
	nl := strings.IndexByte(after, '\n')
	if nl < 0 {
		return "", "", false
	}
	after = after[nl+1:]
	end := strings.IndexByte(after, '\n')
	if end < 0 {
		return "", "", false
	}
	return after[:end], after[end:], true
}

// NextLineAll collects the value line after every occurrence of label.
func NextLineAll(text, label string) []string {
	var values []string
	rest := text
	for rest != "" {
		v, r, ok := FindNextLine(rest, label)
		if !ok {
			break
		}
		values = append(values, v)
		rest = r
	}
	return values
}

// All dispatches to the locator for kind.
func All(kind Kind, text, label string) []string {
	switch kind {
	case SameLine:
		return SameLineSuffix(text, label)
	case NextLine:
		return NextLineAll(text, label)
	default:
		return nil
	}
}
