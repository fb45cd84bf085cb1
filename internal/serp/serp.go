// Package serp defines the contract for upstream SERP providers and the
// response shapes the parser consumes.
package serp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

var (
	ErrUnauthorized      = errors.New("invalid api credential")
	ErrRateLimited       = errors.New("provider rate limit exceeded")
	ErrQuotaExceeded     = errors.New("search quota exceeded")
	ErrInvalidRequest    = errors.New("invalid request parameters")
	ErrServerUnavailable = errors.New("provider unavailable")
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Client runs one keyword query against a provider using the supplied secret.
type Client interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

type Request struct {
	Keyword        string
	Secret         string
	SearchEngineID string
	Options        domain.SearchOptions
}

// Response carries exactly one provider payload plus transport metadata.
type Response struct {
	Native   *NativeResponse
	Custom   *CustomResponse
	Raw      json.RawMessage
	Usage    *AccountUsage
	Duration time.Duration
}

// AccountUsage is harvested from optional provider response headers.
type AccountUsage struct {
	Used         int
	Remaining    int
	MonthlyLimit int
}

// NativeResponse is the native-SERP provider shape (provider A).
type NativeResponse struct {
	SearchMetadata struct {
		ID             string  `json:"id"`
		TotalTimeTaken float64 `json:"total_time_taken"`
	} `json:"search_metadata"`
	SearchInformation *SearchInformation `json:"search_information"`
	OrganicResults    []OrganicResult    `json:"organic_results"`
	Ads               []Ad               `json:"ads"`
	AnswerBox         *AnswerBox         `json:"answer_box"`
	KnowledgeGraph    json.RawMessage    `json:"knowledge_graph"`
	LocalResults      *LocalResults      `json:"local_results"`
	InlineImages      []json.RawMessage  `json:"inline_images"`
	InlineVideos      []json.RawMessage  `json:"inline_videos"`
	RelatedSearches   []json.RawMessage  `json:"related_searches"`
	RelatedQuestions  []RelatedQuestion  `json:"related_questions"`
	Error             string             `json:"error"`
}

type SearchInformation struct {
	// TotalResults may arrive as a number or a string like
	// "About 1,240,000 results".
	TotalResults json.RawMessage `json:"total_results"`
}

type OrganicResult struct {
	Position *int   `json:"position"`
	Link     string `json:"link"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

type Ad struct {
	Position *int   `json:"position"`
	Link     string `json:"link"`
	Title    string `json:"title"`
}

type AnswerBox struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

type LocalResults struct {
	Places []json.RawMessage `json:"places"`
}

type RelatedQuestion struct {
	Question      string `json:"question"`
	BlockPosition int    `json:"block_position"`
}

// CustomSearch provider shape (provider B).
type CustomResponse struct {
	Items             []CustomItem `json:"items"`
	SearchInformation struct {
		TotalResults string  `json:"totalResults"`
		SearchTime   float64 `json:"searchTime"`
	} `json:"searchInformation"`
	Error *CustomError `json:"error"`
}

type CustomItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ParseTotalResults extracts the first run of digits, tolerating thousands
// separators and prose around the number. Missing or unparseable → 0.
func ParseTotalResults(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	s := string(bytes.Trim(bytes.TrimSpace(raw), `"`))
	var n int64
	started := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			started = true
			n = n*10 + int64(r-'0')
		case (r == ',' || r == '.') && started:
			// separator inside the number
		case started:
			return n
		}
	}
	if !started {
		return 0
	}
	return n
}
