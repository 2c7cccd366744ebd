package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse-labs/sentiment-backend/backfill"
	"github.com/marketpulse-labs/sentiment-backend/middleware"
	"github.com/marketpulse-labs/sentiment-backend/types"
	"github.com/marketpulse-labs/sentiment-backend/upstream"
)

// MockGateway is a mock for the upstream gateway
type MockGateway struct {
	mock.Mock
}

// Call mocks the Call method
func (m *MockGateway) Call(ctx context.Context, action upstream.Action, params map[string]string) (json.RawMessage, error) {
	args := m.Called(ctx, action, params)
	var payload json.RawMessage
	if v := args.Get(0); v != nil {
		payload = v.(json.RawMessage)
	}
	return payload, args.Error(1)
}

// Post mocks the Post method
func (m *MockGateway) Post(ctx context.Context, action upstream.Action, body []byte) (json.RawMessage, error) {
	args := m.Called(ctx, action, body)
	var payload json.RawMessage
	if v := args.Get(0); v != nil {
		payload = v.(json.RawMessage)
	}
	return payload, args.Error(1)
}

// MockCacheManager is a mock for cache.Manager
type MockCacheManager struct {
	mock.Mock
}

// Get mocks the Get method
func (m *MockCacheManager) Get(ctx context.Context, action, key string) (json.RawMessage, bool) {
	args := m.Called(ctx, action, key)
	var payload json.RawMessage
	if v := args.Get(0); v != nil {
		payload = v.(json.RawMessage)
	}
	return payload, args.Bool(1)
}

// Put mocks the Put method
func (m *MockCacheManager) Put(ctx context.Context, action, symbol, key string, payload json.RawMessage) {
	m.Called(ctx, action, symbol, key, payload)
}

// MockRunner is a mock for the backfill orchestrator
type MockRunner struct {
	mock.Mock
}

// Run mocks the Run method
func (m *MockRunner) Run(ctx context.Context, req backfill.Request, emitter backfill.Emitter) (*types.BackfillSummary, error) {
	args := m.Called(ctx, req, emitter)
	var summary *types.BackfillSummary
	if v := args.Get(0); v != nil {
		summary = v.(*types.BackfillSummary)
	}
	return summary, args.Error(1)
}

// MockAsyncProcessor is a mock for AsyncProcessor
type MockAsyncProcessor struct {
	mock.Mock
}

// SubmitJob mocks the SubmitJob method
func (m *MockAsyncProcessor) SubmitJob(req backfill.Request, requestID string) (string, error) {
	args := m.Called(req, requestID)
	return args.String(0), args.Error(1)
}

// GetJobStatus mocks the GetJobStatus method
func (m *MockAsyncProcessor) GetJobStatus(jobID string) (*types.BackfillJobStatus, bool) {
	args := m.Called(jobID)
	var status *types.BackfillJobStatus
	if v := args.Get(0); v != nil {
		status = v.(*types.BackfillJobStatus)
	}
	return status, args.Bool(1)
}

func setupTestHandler(t *testing.T) (*Handler, *MockGateway, *MockCacheManager, *MockRunner, *MockAsyncProcessor) {
	t.Helper()
	middleware.InitLogger()

	mockGateway := &MockGateway{}
	mockCache := &MockCacheManager{}
	mockRunner := &MockRunner{}
	mockAsync := &MockAsyncProcessor{}

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	handler := &Handler{
		Gateway:        mockGateway,
		CacheManager:   mockCache,
		Runner:         mockRunner,
		AsyncProcessor: mockAsync,
		Location:       time.FixedZone("Market", -5*3600),
		Logger:         logger,
	}

	return handler, mockGateway, mockCache, mockRunner, mockAsync
}

func queryRequest(method, target, action string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return mux.SetURLVars(req, map[string]string{"action": action})
}

func TestHandleQueryCacheMiss(t *testing.T) {
	handler, mockGateway, mockCache, _, _ := setupTestHandler(t)

	payload := json.RawMessage(`{"trending":["AAPL","TSLA"]}`)
	mockCache.On("Get", mock.Anything, "trending", mock.Anything).Return(nil, false)
	mockGateway.On("Call", mock.Anything, upstream.ActionTrending, mock.Anything).Return(payload, nil)
	mockCache.On("Put", mock.Anything, "trending", "", mock.Anything, mock.Anything).Return()

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, queryRequest(http.MethodGet, "/api/social/trending", "trending"))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "MISS", recorder.Header().Get("X-Cache"))
	assert.JSONEq(t, string(payload), recorder.Body.String())
	mockCache.AssertCalled(t, "Put", mock.Anything, "trending", "", mock.Anything, mock.Anything)
}

func TestHandleQueryCacheHit(t *testing.T) {
	handler, mockGateway, mockCache, _, _ := setupTestHandler(t)

	payload := json.RawMessage(`{"sentiment":"bullish"}`)
	mockCache.On("Get", mock.Anything, "sentiment", mock.Anything).Return(payload, true)

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, queryRequest(http.MethodGet, "/api/social/sentiment?symbol=AAPL", "sentiment"))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "HIT", recorder.Header().Get("X-Cache"))
	assert.JSONEq(t, string(payload), recorder.Body.String())
	mockGateway.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleQueryUnknownAction(t *testing.T) {
	handler, _, _, _, _ := setupTestHandler(t)

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, queryRequest(http.MethodGet, "/api/social/portfolio", "portfolio"))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleQueryUpstreamUnavailableIs502(t *testing.T) {
	handler, mockGateway, mockCache, _, _ := setupTestHandler(t)

	mockCache.On("Get", mock.Anything, "trending", mock.Anything).Return(nil, false)
	mockGateway.On("Call", mock.Anything, upstream.ActionTrending, mock.Anything).
		Return(nil, upstream.ErrUnavailable)

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, queryRequest(http.MethodGet, "/api/social/trending", "trending"))

	assert.Equal(t, http.StatusBadGateway, recorder.Code)

	var apiErr middleware.APIError
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &apiErr))
	assert.Equal(t, middleware.ErrCodeUpstreamUnavailable, apiErr.Error)
}

func TestHandleQueryUpstreamStatusPassesThrough(t *testing.T) {
	handler, mockGateway, mockCache, _, _ := setupTestHandler(t)

	mockCache.On("Get", mock.Anything, "trending", mock.Anything).Return(nil, false)
	mockGateway.On("Call", mock.Anything, upstream.ActionTrending, mock.Anything).
		Return(nil, &upstream.StatusError{Status: http.StatusTooManyRequests})

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, queryRequest(http.MethodGet, "/api/social/trending", "trending"))

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)

	var apiErr middleware.APIError
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &apiErr))
	assert.Equal(t, "Rate limited", apiErr.Message)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.UpstreamStatus)
}

func TestHandleQueryMissingParamIs400(t *testing.T) {
	handler, mockGateway, mockCache, _, _ := setupTestHandler(t)

	mockCache.On("Get", mock.Anything, "messages", mock.Anything).Return(nil, false)
	mockGateway.On("Call", mock.Anything, upstream.ActionMessages, mock.Anything).
		Return(nil, upstream.ErrMissingParam)

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, queryRequest(http.MethodGet, "/api/social/messages", "messages"))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleQuerySanitizesPayload(t *testing.T) {
	handler, mockGateway, mockCache, _, _ := setupTestHandler(t)

	dirty := json.RawMessage("{\"body\":\"clean\\u0000text\"}")
	mockCache.On("Get", mock.Anything, "stats", mock.Anything).Return(nil, false)
	mockGateway.On("Call", mock.Anything, upstream.ActionStats, mock.Anything).Return(dirty, nil)
	mockCache.On("Put", mock.Anything, "stats", mock.Anything, mock.Anything, mock.Anything).Return()

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, queryRequest(http.MethodGet, "/api/social/stats", "stats"))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"body":"cleantext"}`, recorder.Body.String())
}

func TestHandleAnalyzeRequiresPost(t *testing.T) {
	handler, _, _, _, _ := setupTestHandler(t)

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, queryRequest(http.MethodGet, "/api/social/analyze", "analyze"))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleAnalyzeForwardsBody(t *testing.T) {
	handler, mockGateway, _, _, _ := setupTestHandler(t)

	body := []byte(`{"text":"big earnings beat"}`)
	mockGateway.On("Post", mock.Anything, upstream.ActionAnalyze, body).
		Return(json.RawMessage(`{"sentiment":"bullish"}`), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/social/analyze", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"action": "analyze"})

	recorder := httptest.NewRecorder()
	handler.HandleQuery(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"sentiment":"bullish"}`, recorder.Body.String())
	assert.Empty(t, recorder.Header().Get("X-Cache"))
}

func TestHandleBackfillValidation(t *testing.T) {
	handler, _, _, _, _ := setupTestHandler(t)

	tests := []struct {
		name   string
		target string
	}{
		{"missing symbol", "/api/backfill?startDate=2025-03-10&endDate=2025-03-14"},
		{"missing dates", "/api/backfill?symbol=AAPL"},
		{"malformed date", "/api/backfill?symbol=AAPL&startDate=03-10-2025&endDate=2025-03-14"},
		{"inverted range", "/api/backfill?symbol=AAPL&startDate=2025-03-14&endDate=2025-03-10"},
		{"forceHourly over range", "/api/backfill?symbol=AAPL&startDate=2025-03-10&endDate=2025-03-14&forceHourly=true"},
		{"bad type", "/api/backfill?symbol=AAPL&startDate=2025-03-10&endDate=2025-03-10&type=everything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.HandleBackfill(recorder, httptest.NewRequest(http.MethodPost, tt.target, nil))
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func TestHandleBackfillRunsAndReturnsSummary(t *testing.T) {
	handler, _, _, mockRunner, _ := setupTestHandler(t)

	summary := &types.BackfillSummary{
		Symbol:         "AAPL",
		Mode:           types.ModeDaily,
		ProcessedDates: []string{"2025-03-10"},
	}
	mockRunner.On("Run", mock.Anything, mock.MatchedBy(func(req backfill.Request) bool {
		return req.Symbol == "AAPL" && req.Mode == types.ModeDaily && req.IngestionType == types.IngestAll
	}), mock.Anything).Return(summary, nil)

	recorder := httptest.NewRecorder()
	handler.HandleBackfill(recorder, httptest.NewRequest(http.MethodPost,
		"/api/backfill?symbol=aapl&startDate=2025-03-10&endDate=2025-03-14", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)

	var got types.BackfillSummary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, []string{"2025-03-10"}, got.ProcessedDates)
}

func TestHandleBackfillForceHourlySingleDay(t *testing.T) {
	handler, _, _, mockRunner, _ := setupTestHandler(t)

	mockRunner.On("Run", mock.Anything, mock.MatchedBy(func(req backfill.Request) bool {
		return req.Mode == types.ModeHourly
	}), mock.Anything).Return(&types.BackfillSummary{Symbol: "AAPL", Mode: types.ModeHourly}, nil)

	recorder := httptest.NewRecorder()
	handler.HandleBackfill(recorder, httptest.NewRequest(http.MethodPost,
		"/api/backfill?symbol=AAPL&startDate=2025-03-10&endDate=2025-03-10&forceHourly=true", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	mockRunner.AssertExpectations(t)
}

func TestHandleBackfillStreamEmitsNDJSON(t *testing.T) {
	handler, _, _, mockRunner, _ := setupTestHandler(t)

	summary := &types.BackfillSummary{Symbol: "AAPL", Mode: types.ModeDaily}
	mockRunner.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			emitter := args.Get(2).(backfill.Emitter)
			emitter.Emit(types.ProgressEvent{Type: types.EventStart, Symbol: "AAPL", Total: 1})
			emitter.Emit(types.ProgressEvent{Type: types.EventCreated, Symbol: "AAPL", Created: 1, Processed: 1, Total: 1})
			emitter.Emit(types.ProgressEvent{Type: types.EventComplete, Symbol: "AAPL", Summary: summary})
		}).
		Return(summary, nil)

	recorder := httptest.NewRecorder()
	handler.HandleBackfillStream(recorder, httptest.NewRequest(http.MethodGet,
		"/api/backfill/stream?symbol=AAPL&startDate=2025-03-10&endDate=2025-03-10", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/x-ndjson", recorder.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(strings.NewReader(recorder.Body.String()))
	var eventTypes []string
	for scanner.Scan() {
		var event types.ProgressEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		eventTypes = append(eventTypes, event.Type)
	}
	assert.Equal(t, []string{"start", "created", "complete"}, eventTypes)
}

func TestHandleGetJobStatus(t *testing.T) {
	handler, _, _, _, mockAsync := setupTestHandler(t)

	status := &types.BackfillJobStatus{JobID: "job_1", Symbol: "AAPL", Status: "completed"}
	mockAsync.On("GetJobStatus", "job_1").Return(status, true)
	mockAsync.On("GetJobStatus", "job_unknown").Return(nil, false)

	recorder := httptest.NewRecorder()
	handler.HandleGetJobStatus(recorder, httptest.NewRequest(http.MethodGet, "/api/backfill/jobs?job_id=job_1", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.HandleGetJobStatus(recorder, httptest.NewRequest(http.MethodGet, "/api/backfill/jobs?job_id=job_unknown", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.HandleGetJobStatus(recorder, httptest.NewRequest(http.MethodGet, "/api/backfill/jobs", nil))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleBackfillAsync(t *testing.T) {
	handler, _, _, _, mockAsync := setupTestHandler(t)

	mockAsync.On("SubmitJob", mock.Anything, mock.Anything).Return("job_42", nil)

	recorder := httptest.NewRecorder()
	handler.HandleBackfillAsync(recorder, httptest.NewRequest(http.MethodPost,
		"/api/backfill/async?symbol=AAPL&startDate=2025-03-10&endDate=2025-03-14", nil))

	assert.Equal(t, http.StatusAccepted, recorder.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "job_42", body["job_id"])
}

func TestHandleBackfillAsyncBackpressure(t *testing.T) {
	handler, _, _, _, mockAsync := setupTestHandler(t)

	mockAsync.On("SubmitJob", mock.Anything, mock.Anything).
		Return("", assert.AnError)

	recorder := httptest.NewRecorder()
	handler.HandleBackfillAsync(recorder, httptest.NewRequest(http.MethodPost,
		"/api/backfill/async?symbol=AAPL&startDate=2025-03-10&endDate=2025-03-14", nil))

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}
