package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cuongbtq/photoshot-be/internal/domain"
)

// GenerateRequest is the body of POST /api/v1/predictions. Quantity and seed
// accept a JSON number or a numeric string.
type GenerateRequest struct {
	Theme    string          `json:"theme"`
	Prompt   string          `json:"prompt"`
	Seed     json.RawMessage `json:"seed"`
	Quantity json.RawMessage `json:"quantity"`
}

// ToGenerationRequest validates the body. A missing quantity means one photo.
func (r GenerateRequest) ToGenerationRequest() (domain.GenerationRequest, error) {
	req := domain.GenerationRequest{
		Theme:    strings.TrimSpace(r.Theme),
		Prompt:   strings.TrimSpace(r.Prompt),
		Quantity: 1,
	}

	quantity, ok, err := parseInt(r.Quantity, math.MinInt32, math.MaxInt32)
	if err != nil {
		return req, domain.Wrap(domain.ErrInvalidQuantity, err)
	}
	if ok {
		if quantity <= 0 {
			return req, domain.Wrap(domain.ErrInvalidQuantity, fmt.Errorf("quantity %d is not positive", quantity))
		}
		req.Quantity = quantity
	}

	seed, ok, err := parseInt(r.Seed, 0, math.MaxUint32)
	if err != nil {
		return req, domain.Wrap(domain.ErrInvalidRequest, fmt.Errorf("seed: %w", err))
	}
	if ok {
		req.Seed = &seed
	}

	return req, nil
}

// parseInt decodes an integral JSON number or numeric string within
// [lo, hi]. ok is false for an absent, null or empty value.
func parseInt(raw json.RawMessage, lo, hi int64) (int, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false, fmt.Errorf("invalid string %s", raw)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, false, nil
		}
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%q is not a number", text)
	}
	if f != math.Trunc(f) {
		return 0, false, fmt.Errorf("%q is not an integer", text)
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, false, fmt.Errorf("%q is out of range [%d, %d]", text, lo, hi)
	}
	return int(f), true, nil
}

// ListPredictionsRequest holds the query of GET /api/v1/predictions
type ListPredictionsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// GetPredictionRequest holds the query of GET /api/v1/predictions/:prediction_id
type GetPredictionRequest struct {
	RequireOutput bool `form:"require_output"`
}

type PredictionDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	OutputURL string `json:"output_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type GenerateResponse struct {
	Done         bool            `json:"done"`
	Requested    int             `json:"requested"`
	Launched     int             `json:"launched"`
	UsageCounter int             `json:"usage_counter"`
	Predictions  []PredictionDTO `json:"predictions"`
}

type GetPredictionResponse struct {
	Done        bool          `json:"done"`
	Prediction  PredictionDTO `json:"prediction"`
	Enhanced    bool          `json:"enhanced"`
	ArtifactKey string        `json:"artifact_key,omitempty"`
}

type ListPredictionsResponse struct {
	Predictions []PredictionDTO `json:"predictions"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

type UsageResponse struct {
	Used      int `json:"used"`
	Cap       int `json:"cap"`
	Remaining int `json:"remaining"`
}

// ErrorResponse is returned for every failure. Launched and Failed are set
// when a fan-out partially ran.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Launched *int   `json:"launched,omitempty"`
	Failed   *int   `json:"failed,omitempty"`
}
