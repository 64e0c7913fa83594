package dto

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/photoshot-be/internal/domain"
)

func TestGenerateRequest_ToGenerationRequest(t *testing.T) {
	seven := 7
	maxSeed := math.MaxUint32

	tests := []struct {
		name    string
		body    string
		want    domain.GenerationRequest
		wantErr error
	}{
		{
			name: "number quantity",
			body: `{"theme":"painting","quantity":3}`,
			want: domain.GenerationRequest{Theme: "painting", Quantity: 3},
		},
		{
			name: "string quantity and seed",
			body: `{"prompt":" a portrait of @me ","quantity":"4","seed":"7"}`,
			want: domain.GenerationRequest{Prompt: "a portrait of @me", Quantity: 4, Seed: &seven},
		},
		{
			name: "missing quantity defaults to one",
			body: `{"theme":"painting"}`,
			want: domain.GenerationRequest{Theme: "painting", Quantity: 1},
		},
		{
			name: "null seed",
			body: `{"theme":"painting","quantity":2,"seed":null}`,
			want: domain.GenerationRequest{Theme: "painting", Quantity: 2},
		},
		{
			name: "integral float",
			body: `{"theme":"painting","quantity":2.0}`,
			want: domain.GenerationRequest{Theme: "painting", Quantity: 2},
		},
		{name: "zero quantity", body: `{"quantity":0}`, wantErr: domain.ErrInvalidQuantity},
		{name: "negative quantity", body: `{"quantity":"-3"}`, wantErr: domain.ErrInvalidQuantity},
		{name: "fractional quantity", body: `{"quantity":2.5}`, wantErr: domain.ErrInvalidQuantity},
		{name: "word quantity", body: `{"quantity":"five"}`, wantErr: domain.ErrInvalidQuantity},
		{name: "boolean quantity", body: `{"quantity":true}`, wantErr: domain.ErrInvalidQuantity},
		{name: "bad seed", body: `{"quantity":1,"seed":"abc"}`, wantErr: domain.ErrInvalidRequest},
		{
			name: "seed at uint32 max",
			body: `{"prompt":"x","seed":4294967295}`,
			want: domain.GenerationRequest{Prompt: "x", Quantity: 1, Seed: &maxSeed},
		},
		{name: "seed above uint32", body: `{"quantity":1,"seed":4294967296}`, wantErr: domain.ErrInvalidRequest},
		{name: "negative seed", body: `{"quantity":1,"seed":-1}`, wantErr: domain.ErrInvalidRequest},
		{name: "huge quantity", body: `{"quantity":"3000000000"}`, wantErr: domain.ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body GenerateRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &body))

			got, err := body.ToGenerationRequest()

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInt_Messages(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "above range", raw: `4294967296`, wantErr: `"4294967296" is out of range [0, 4294967295]`},
		{name: "below range", raw: `"-5"`, wantErr: `"-5" is out of range [0, 4294967295]`},
		{name: "fraction", raw: `1.5`, wantErr: `"1.5" is not an integer`},
		{name: "not a number", raw: `"abc"`, wantErr: `"abc" is not a number`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseInt(json.RawMessage(tt.raw), 0, math.MaxUint32)
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}
