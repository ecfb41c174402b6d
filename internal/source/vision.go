package source

import (
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/arrestlog/internal/common"
)

// VisionPage is the text the document-AI service recognized on one page.
type VisionPage struct {
	Number int
	Text   string
}

type textAnnotation struct {
	Text string `json:"text"`
}

type visionResponse struct {
	FullTextAnnotation  *textAnnotation `json:"fullTextAnnotation"`
	FullTextAnnotation2 *textAnnotation `json:"full_text_annotation"`
	Context             struct {
		PageNumber int `json:"pageNumber"`
	} `json:"context"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type annotateFileResponse struct {
	Responses []visionResponse `json:"responses"`
}

// DecodeVision reads an AnnotateFileResponse JSON blob, one page per response.
// Both the camelCase and the snake_case spellings of fullTextAnnotation are
// accepted. A page without annotation yields empty text so numbering holds.
func DecodeVision(data []byte) ([]VisionPage, error) {
	var resp annotateFileResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: vision json: %v", common.ErrUnsupportedFormat, err)
	}
	if resp.Responses == nil {
		return nil, fmt.Errorf("%w: vision json: no responses", common.ErrUnsupportedFormat)
	}
	pages := make([]VisionPage, 0, len(resp.Responses))
	for i, r := range resp.Responses {
		if r.Error != nil && r.Error.Message != "" {
			return nil, fmt.Errorf("%w: vision page %d: %s", common.ErrSource, i+1, r.Error.Message)
		}
		num := r.Context.PageNumber
		if num <= 0 {
			num = i + 1
		}
		var text string
		switch {
		case r.FullTextAnnotation != nil:
			text = r.FullTextAnnotation.Text
		case r.FullTextAnnotation2 != nil:
			text = r.FullTextAnnotation2.Text
		}
		pages = append(pages, VisionPage{Number: num, Text: text})
	}
	return pages, nil
}
