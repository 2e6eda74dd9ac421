package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creditlens/creditlens/internal/core/domain"
)

type fakeAnalysisService struct {
	analyzeFn func(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisOutcome, error)
}

func (f *fakeAnalysisService) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisOutcome, error) {
	return f.analyzeFn(ctx, req)
}

func (f *fakeAnalysisService) AnalyzeByID(context.Context, string) error {
	return errors.New("not used")
}

type fakeChatService struct {
	respondFn func(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error)
	historyFn func(ctx context.Context, userID, analysisID string) ([]domain.ChatMessage, error)
}

func (f *fakeChatService) Respond(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	return f.respondFn(ctx, req)
}

func (f *fakeChatService) History(ctx context.Context, userID, analysisID string) ([]domain.ChatMessage, error) {
	return f.historyFn(ctx, userID, analysisID)
}

type fakeDirectory struct {
	byID map[string]*domain.Analysis
}

func (f *fakeDirectory) GetByID(_ context.Context, id string) (*domain.Analysis, error) {
	analysis, ok := f.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", errors.New("missing"))
	}
	return analysis, nil
}

func (f *fakeDirectory) ListByUser(_ context.Context, userID string, _ int) ([]domain.Analysis, error) {
	var out []domain.Analysis
	for _, a := range f.byID {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func newTestRouter(analysis *fakeAnalysisService, chat *fakeChatService, directory *fakeDirectory, cfg RouterConfig) http.Handler {
	if analysis == nil {
		analysis = &fakeAnalysisService{
			analyzeFn: func(context.Context, domain.AnalysisRequest) (*domain.AnalysisOutcome, error) {
				return &domain.AnalysisOutcome{AnalysisID: "a1"}, nil
			},
		}
	}
	if chat == nil {
		chat = &fakeChatService{
			respondFn: func(context.Context, domain.ChatRequest) (*domain.ChatReply, error) {
				return &domain.ChatReply{}, nil
			},
			historyFn: func(context.Context, string, string) ([]domain.ChatMessage, error) {
				return nil, nil
			},
		}
	}
	if directory == nil {
		directory = &fakeDirectory{byID: map[string]*domain.Analysis{}}
	}
	return NewRouter(analysis, chat, nil, directory, nil, cfg).Handler()
}

func authedRequest(method, target string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("Content-Type", "application/json")
	return serve(req)
}

var testHandler http.Handler

func serve(req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	testHandler.ServeHTTP(res, req)
	return res
}

func TestAnalyzeTextEndpoint(t *testing.T) {
	score := 712
	analysis := &fakeAnalysisService{
		analyzeFn: func(_ context.Context, req domain.AnalysisRequest) (*domain.AnalysisOutcome, error) {
			if req.UserID != "user-1" {
				t.Errorf("user id = %q", req.UserID)
			}
			if req.MediaType != domain.MediaTypeText || req.Text != "Credit Score: 712" {
				t.Errorf("request = %+v", req)
			}
			return &domain.AnalysisOutcome{
				AnalysisID: "a1",
				Payload:    &domain.ReportPayload{Overview: domain.Overview{Score: &score}},
			}, nil
		},
	}
	testHandler = newTestRouter(analysis, nil, nil, RouterConfig{})

	body := bytes.NewBufferString(`{"text": "Credit Score: 712"}`)
	res := authedRequest(http.MethodPost, "/v1/analyses", body)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}
	var outcome domain.AnalysisOutcome
	if err := json.Unmarshal(res.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if outcome.AnalysisID != "a1" {
		t.Fatalf("analysis id = %q", outcome.AnalysisID)
	}
}

func TestAnalyzeMultipartUpload(t *testing.T) {
	analysis := &fakeAnalysisService{
		analyzeFn: func(_ context.Context, req domain.AnalysisRequest) (*domain.AnalysisOutcome, error) {
			if req.MediaType != domain.MediaTypePDF {
				t.Errorf("media type = %s, want pdf", req.MediaType)
			}
			if string(req.Data) != "%PDF-1.7 bytes" {
				t.Errorf("data = %q", req.Data)
			}
			return &domain.AnalysisOutcome{AnalysisID: "a1"}, nil
		},
	}
	testHandler = newTestRouter(analysis, nil, nil, RouterConfig{})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "report.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.7 bytes"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", &buf)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := serve(req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}
}

func TestMissingUserHeaderRejected(t *testing.T) {
	testHandler = newTestRouter(nil, nil, nil, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(`{"text":"x"}`))
	res := serve(req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.Code)
	}
}

func TestHealthzNeedsNoIdentity(t *testing.T) {
	testHandler = newTestRouter(nil, nil, nil, RouterConfig{})

	res := serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
}

func TestErrorTaxonomyMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("bad")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrTimeout, "op", errors.New("slow")), http.StatusGatewayTimeout},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("flaky")), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrAnalysisNotFound, "op", errors.New("gone")), http.StatusNotFound},
		{domain.WrapError(domain.ErrConfiguration, "op", errors.New("no key")), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		analysis := &fakeAnalysisService{
			analyzeFn: func(context.Context, domain.AnalysisRequest) (*domain.AnalysisOutcome, error) {
				return nil, tc.err
			},
		}
		testHandler = newTestRouter(analysis, nil, nil, RouterConfig{})

		res := authedRequest(http.MethodPost, "/v1/analyses", bytes.NewBufferString(`{"text":"x"}`))
		if res.Code != tc.status {
			t.Errorf("error %v: status = %d, want %d", tc.err, res.Code, tc.status)
		}
	}
}

func TestGetAnalysisHidesForeignRecords(t *testing.T) {
	directory := &fakeDirectory{byID: map[string]*domain.Analysis{
		"mine":   {ID: "mine", UserID: "user-1", Status: domain.StatusCompleted},
		"theirs": {ID: "theirs", UserID: "someone-else", Status: domain.StatusCompleted},
	}}
	testHandler = newTestRouter(nil, nil, directory, RouterConfig{})

	res := authedRequest(http.MethodGet, "/v1/analyses/mine", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("own record: status = %d", res.Code)
	}

	res = authedRequest(http.MethodGet, "/v1/analyses/theirs", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("foreign record: status = %d, want 404", res.Code)
	}
}

func TestChatEndpoints(t *testing.T) {
	chat := &fakeChatService{
		respondFn: func(_ context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
			if req.AnalysisID != "a1" || req.UserID != "user-1" || req.Message != "what is my score?" {
				t.Errorf("chat request = %+v", req)
			}
			return &domain.ChatReply{
				AnalysisID: "a1",
				Message:    domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: "712"},
			}, nil
		},
		historyFn: func(_ context.Context, userID, analysisID string) ([]domain.ChatMessage, error) {
			return []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "q"}}, nil
		},
	}
	testHandler = newTestRouter(nil, chat, nil, RouterConfig{})

	res := authedRequest(http.MethodPost, "/v1/analyses/a1/chat", bytes.NewBufferString(`{"message":"what is my score?"}`))
	if res.Code != http.StatusOK {
		t.Fatalf("chat post: status = %d, body = %s", res.Code, res.Body.String())
	}

	res = authedRequest(http.MethodGet, "/v1/analyses/a1/chat", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("chat history: status = %d", res.Code)
	}
	var history struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(history.Messages))
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	testHandler = newTestRouter(nil, nil, nil, RouterConfig{
		RateLimitRPS:   1,
		RateLimitBurst: 1,
	})

	res1 := authedRequest(http.MethodGet, "/v1/analyses", nil)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := authedRequest(http.MethodGet, "/v1/analyses", nil)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/analyses", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("saturated request expected 503, got %d", res.Code)
	}

	close(release)
	if code := <-done; code != http.StatusNoContent {
		t.Fatalf("held request expected 204, got %d", code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	testHandler = newTestRouter(nil, nil, nil, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	res := serve(req)

	if got := res.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("request id header = %q, want req-42", got)
	}
}
