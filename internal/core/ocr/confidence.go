package ocr

import (
	"regexp"
	"strings"
)

var (
	reArrestDate = regexp.MustCompile(`\d{1,2}/\d{2}/\d{2,4}`)
	reLabel      = regexp.MustCompile(`(?i)case[ _]number|date[ _]arrest|primary location`)
	reStatute    = regexp.MustCompile(`\b(VC|PC|HS|BP)\b`)
)

// ImageConfidenceThreshold is the score under which scanned pages are logged for review.
const ImageConfidenceThreshold = 0.6

// naive heuristic confidence based on decoded text characteristics
func heuristicConfidence(txt string) float32 {
	// very simple: boost if we see arrest log artifacts
	// (labels, dates, statute codes).
	score := float32(0.2) // base
	if reLabel.MatchString(txt) {
		score += 0.3
	}
	if reArrestDate.MatchString(txt) {
		score += 0.2
	}
	if reStatute.MatchString(txt) {
		score += 0.15
	}
	if len(strings.TrimSpace(txt)) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}
