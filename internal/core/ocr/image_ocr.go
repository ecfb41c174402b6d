package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/arrestlog/constants"
)

// extractImage OCRs one scanned log page. The page is one document.
func (e *Extractor) extractImage(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.IMAGE, Method: "image-ocr", Language: e.cfg.TesseractLang}

	txt, warns, err := e.tesseractOCR(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	if err != nil {
		return res, err
	}
	res.Pages = []string{txt}

	var wordConf float32
	if e.cfg.EnableTSVConfidence {
		c, err := e.wordConfidence(ctx, path)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		}
		wordConf = c
	}
	res.Confidence = blendConfidence(wordConf, heuristicConfidence(txt))
	if res.Confidence < ImageConfidenceThreshold {
		e.logger.Warn("ocr.image.low_confidence", "path", path, "confidence", res.Confidence)
	}
	return res, nil
}

// blendConfidence favors tesseract's own word confidence when there is one.
func blendConfidence(word, heuristic float32) float32 {
	if word <= 0 {
		return min(heuristic, 1)
	}
	return min(0.7*word+0.3*heuristic, 1)
}

// tessArgs: tesseract <file> stdout -l <lang> [--psm N] [--oem N] [--tessdata-dir D]
func (e *Extractor) tessArgs(path string) []string {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

// tesseractOCR returns the page text and, on failure, the tail of stderr as a warning.
func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	out, stderr, err := e.runner.Run(ctx, e.cfg.Tesseract, e.tessArgs(path)...)
	if err != nil {
		return "", []string{strings.TrimSpace(string(tail(stderr, 512)))}, fmt.Errorf("tesseract %s: %w", filepath.Base(path), err)
	}
	// ruled lines of the log form come out as rows of dashes
	return reBoxNoise.ReplaceAllString(string(out), ""), nil, nil
}

// wordConfidence runs tesseract's TSV output and scores the page 0..1.
func (e *Extractor) wordConfidence(ctx context.Context, path string) (float32, error) {
	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, append(e.tessArgs(path), "tsv")...)
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv %s: %w", path, err)
	}
	return meanWordConfidence(string(out)), nil
}

// meanWordConfidence averages the conf column of tesseract TSV output over
// recognized words (conf -1 marks layout rows). The column is found by its
// header name. 0 means nothing was scored.
func meanWordConfidence(tsv string) float32 {
	lines := strings.Split(tsv, "\n")
	if len(lines) < 2 {
		return 0
	}
	col := -1
	for i, h := range strings.Split(strings.TrimSpace(lines[0]), "\t") {
		if h == "conf" {
			col = i
		}
	}
	if col < 0 {
		return 0
	}
	var sum float64
	var n int
	for _, ln := range lines[1:] {
		cols := strings.Split(ln, "\t")
		if len(cols) <= col {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cols[col]), 64)
		if err != nil || v < 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return float32(sum / float64(n) / 100)
}
