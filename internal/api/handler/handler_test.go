package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/photoshot-be/internal/api/dto"
	"github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/prediction"
	"github.com/cuongbtq/photoshot-be/internal/storage"
)

type fakeGenerator struct {
	gotReq  domain.GenerationRequest
	gotUser domain.UserAccount
	result  *prediction.GenerateResult
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, req domain.GenerationRequest, user domain.UserAccount) (*prediction.GenerateResult, error) {
	g.gotReq = req
	g.gotUser = user
	return g.result, g.err
}

type fakeReconciler struct {
	gotReq prediction.ReconcileRequest
	result *prediction.ReconcileResult
	err    error
}

func (r *fakeReconciler) Reconcile(_ context.Context, req prediction.ReconcileRequest) (*prediction.ReconcileResult, error) {
	r.gotReq = req
	return r.result, r.err
}

type testEnv struct {
	engine     *gin.Engine
	store      *storage.MemoryStore
	generator  *fakeGenerator
	reconciler *fakeReconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:      storage.NewMemoryStore(),
		generator:  &fakeGenerator{},
		reconciler: &fakeReconciler{},
	}
	env.store.PutUser(domain.UserAccount{
		ID: "u1", Paid: true, Trained: true, ModelVersionID: "owner/model:abc", UsageCounter: 30,
	})

	h := NewPredictionHandler(&Dependencies{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Generator:  env.generator,
		Reconciler: env.reconciler,
		Store:      env.store,
		Cap:        100,
	})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(ContextUserIDKey, id)
		}
		c.Next()
	})
	r.POST("/predictions", h.CreatePredictions)
	r.GET("/predictions", h.ListPredictions)
	r.GET("/predictions/:prediction_id", h.GetPrediction)
	r.GET("/usage", h.GetUsage)
	env.engine = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindInvalidQuantity, http.StatusBadRequest},
		{domain.KindPromptMissing, http.StatusBadRequest},
		{domain.KindInvalidRequest, http.StatusBadRequest},
		{domain.KindUnauthenticated, http.StatusUnauthorized},
		{domain.KindPaymentRequired, http.StatusPaymentRequired},
		{domain.KindQuotaExhausted, http.StatusForbidden},
		{domain.KindModelNotReady, http.StatusConflict},
		{domain.KindOutputNotReady, http.StatusConflict},
		{domain.KindProviderUnavailable, http.StatusBadGateway},
		{domain.KindEnhancementFailed, http.StatusBadGateway},
		{domain.KindPersistenceError, http.StatusInternalServerError},
		{domain.Kind("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForKind(tt.kind))
		})
	}
}

func TestPredictionCursor(t *testing.T) {
	cursor := &storage.PredictionCursor{CreatedAt: time.Unix(1700000000, 123456789), ID: "p|1"}

	decoded, err := DecodePredictionCursor(EncodePredictionCursor(cursor))
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, "p|1", decoded.ID)

	empty, err := DecodePredictionCursor("")
	assert.NoError(t, err)
	assert.Nil(t, empty)

	_, err = DecodePredictionCursor("!!!")
	assert.Error(t, err)

	_, err = DecodePredictionCursor("bm8tc2VwYXJhdG9y") // "no-separator"
	assert.Error(t, err)
}

func TestCreatePredictions(t *testing.T) {
	env := newTestEnv(t)
	env.generator.result = &prediction.GenerateResult{
		Requested: 3, Allowed: 3, Launched: 3, Recorded: 3, Charged: 3, UsageCounter: 33,
		Predictions: []domain.Prediction{
			{ID: "p1", OwnerID: "u1", Status: domain.StatusStarting},
			{ID: "p2", OwnerID: "u1", Status: domain.StatusStarting},
			{ID: "p3", OwnerID: "u1", Status: domain.StatusStarting},
		},
	}

	w := env.do(t, http.MethodPost, "/predictions", "u1", `{"theme":"painting","quantity":"3","seed":42}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.GenerateResponse](t, w)
	assert.True(t, resp.Done)
	assert.Equal(t, 3, resp.Launched)
	assert.Equal(t, 33, resp.UsageCounter)
	assert.Len(t, resp.Predictions, 3)

	assert.Equal(t, 3, env.generator.gotReq.Quantity)
	require.NotNil(t, env.generator.gotReq.Seed)
	assert.Equal(t, 42, *env.generator.gotReq.Seed)
	assert.Equal(t, "u1", env.generator.gotUser.ID)
	assert.Equal(t, 30, env.generator.gotUser.UsageCounter)
}

func TestCreatePredictions_Errors(t *testing.T) {
	tests := []struct {
		name         string
		user         string
		body         string
		genErr       error
		genResult    *prediction.GenerateResult
		wantStatus   int
		wantKind     domain.Kind
		wantLaunched *int
	}{
		{name: "no session", body: `{"theme":"painting"}`, wantStatus: http.StatusUnauthorized, wantKind: domain.KindUnauthenticated},
		{name: "unknown account", user: "ghost", body: `{"theme":"painting"}`, wantStatus: http.StatusUnauthorized, wantKind: domain.KindUnauthenticated},
		{name: "malformed body", user: "u1", body: `{"theme":`, wantStatus: http.StatusBadRequest, wantKind: domain.KindInvalidRequest},
		{name: "bad quantity", user: "u1", body: `{"theme":"painting","quantity":"lots"}`, wantStatus: http.StatusBadRequest, wantKind: domain.KindInvalidQuantity},
		{name: "prompt missing", user: "u1", body: `{"quantity":1}`, genErr: domain.ErrPromptMissing, wantStatus: http.StatusBadRequest, wantKind: domain.KindPromptMissing},
		{name: "payment required", user: "u1", body: `{"theme":"painting"}`, genErr: domain.ErrPaymentRequired, wantStatus: http.StatusPaymentRequired, wantKind: domain.KindPaymentRequired},
		{name: "model not ready", user: "u1", body: `{"theme":"painting"}`, genErr: domain.ErrModelNotReady, wantStatus: http.StatusConflict, wantKind: domain.KindModelNotReady},
		{name: "quota exhausted", user: "u1", body: `{"theme":"painting"}`, genErr: domain.ErrQuotaExhausted, wantStatus: http.StatusForbidden, wantKind: domain.KindQuotaExhausted},
		{
			name:         "partial launch failure",
			user:         "u1",
			body:         `{"theme":"painting","quantity":5}`,
			genErr:       domain.Wrap(domain.ErrProviderUnavailable, errors.New("2 launches failed")),
			genResult:    &prediction.GenerateResult{Requested: 5, Allowed: 5, Launched: 3, Failed: 2},
			wantStatus:   http.StatusBadGateway,
			wantKind:     domain.KindProviderUnavailable,
			wantLaunched: intPtr(3),
		},
		{
			name:       "total launch failure",
			user:       "u1",
			body:       `{"theme":"painting","quantity":2}`,
			genErr:     domain.Wrap(domain.ErrProviderUnavailable, errors.New("down")),
			genResult:  &prediction.GenerateResult{Requested: 2, Allowed: 2, Failed: 2},
			wantStatus: http.StatusBadGateway,
			wantKind:   domain.KindProviderUnavailable,
		},
		{name: "untagged error", user: "u1", body: `{"theme":"painting"}`, genErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantKind: domain.KindPersistenceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.generator.err = tt.genErr
			env.generator.result = tt.genResult

			w := env.do(t, http.MethodPost, "/predictions", tt.user, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode[dto.ErrorResponse](t, w)
			assert.Equal(t, string(tt.wantKind), resp.Error)
			assert.NotEmpty(t, resp.Message)
			if tt.wantLaunched != nil {
				require.NotNil(t, resp.Launched)
				assert.Equal(t, *tt.wantLaunched, *resp.Launched)
				require.NotNil(t, resp.Failed)
				assert.Equal(t, 2, *resp.Failed)
			} else {
				assert.Nil(t, resp.Launched)
			}
		})
	}
}

func TestGetPrediction(t *testing.T) {
	env := newTestEnv(t)
	env.reconciler.result = &prediction.ReconcileResult{
		Prediction:  domain.Prediction{ID: "p1", OwnerID: "u1", Status: domain.StatusSucceeded, OutputURL: "https://x/p1.png"},
		Enhanced:    true,
		ArtifactKey: "u1/p1.jpg",
	}

	w := env.do(t, http.MethodGet, "/predictions/p1?require_output=true", "u1", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.GetPredictionResponse](t, w)
	assert.True(t, resp.Done)
	assert.Equal(t, "succeeded", resp.Prediction.Status)
	assert.Equal(t, "u1/p1.jpg", resp.ArtifactKey)
	assert.Equal(t, prediction.ReconcileRequest{PredictionID: "p1", OwnerID: "u1", RequireOutput: true}, env.reconciler.gotReq)
}

func TestGetPrediction_Errors(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		path       string
		err        error
		wantStatus int
		wantKind   domain.Kind
	}{
		{name: "no session", path: "/predictions/p1", wantStatus: http.StatusUnauthorized, wantKind: domain.KindUnauthenticated},
		{name: "bad query", user: "u1", path: "/predictions/p1?require_output=maybe", wantStatus: http.StatusBadRequest, wantKind: domain.KindInvalidRequest},
		{name: "output not ready", user: "u1", path: "/predictions/p1?require_output=true", err: domain.ErrOutputNotReady, wantStatus: http.StatusConflict, wantKind: domain.KindOutputNotReady},
		{name: "foreign prediction", user: "u1", path: "/predictions/p2", err: domain.ErrInvalidRequest, wantStatus: http.StatusBadRequest, wantKind: domain.KindInvalidRequest},
		{name: "enhancement failed", user: "u1", path: "/predictions/p1", err: domain.Wrap(domain.ErrEnhancementFailed, errors.New("gfpgan")), wantStatus: http.StatusBadGateway, wantKind: domain.KindEnhancementFailed},
		{name: "store down", user: "u1", path: "/predictions/p1", err: domain.Wrap(domain.ErrPersistenceError, errors.New("conn")), wantStatus: http.StatusInternalServerError, wantKind: domain.KindPersistenceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.reconciler.err = tt.err

			w := env.do(t, http.MethodGet, tt.path, tt.user, "")

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode[dto.ErrorResponse](t, w)
			assert.Equal(t, string(tt.wantKind), resp.Error)
		})
	}
}

func TestListPredictions_Pagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := env.store.UpsertPrediction(ctx, domain.Prediction{ID: fmt.Sprintf("p%d", i), OwnerID: "u1", Status: domain.StatusStarting})
		require.NoError(t, err)
	}
	_, err := env.store.UpsertPrediction(ctx, domain.Prediction{ID: "other", OwnerID: "u2", Status: domain.StatusStarting})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/predictions?page_size=2", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[dto.ListPredictionsResponse](t, w)
	require.Len(t, first.Predictions, 2)
	require.NotEmpty(t, first.NextCursor)

	w = env.do(t, http.MethodGet, "/predictions?page_size=2&cursor="+first.NextCursor, "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[dto.ListPredictionsResponse](t, w)
	require.Len(t, second.Predictions, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	for _, p := range append(first.Predictions, second.Predictions...) {
		assert.Equal(t, "u1", p.UserID)
		seen[p.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestListPredictions_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/predictions?status=bogus", "u1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/predictions?cursor=%21%21", "u1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid cursor", decode[dto.ErrorResponse](t, w).Message)

	w = env.do(t, http.MethodGet, "/predictions", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/predictions?status=SUCCEEDED", "u1", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetUsage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/usage", "u1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.UsageResponse{Used: 30, Cap: 100, Remaining: 70}, decode[dto.UsageResponse](t, w))
}

func intPtr(v int) *int { return &v }
