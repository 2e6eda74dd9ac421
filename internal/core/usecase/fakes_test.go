package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/creditlens/creditlens/internal/core/domain"
)

type fakeReasoning struct {
	mu sync.Mutex

	transcribeFn func(ctx context.Context, mediaType domain.MediaType, data []byte) (string, error)
	analysisFn   func(ctx context.Context, prompt string) (string, error)
	chatFn       func(ctx context.Context, system string, history []domain.ChatMessage, userMessage string) (string, error)

	transcribeCalls int
	analysisCalls   int
	chatCalls       int
}

func (f *fakeReasoning) TranscribeDocument(ctx context.Context, mediaType domain.MediaType, data []byte) (string, error) {
	f.mu.Lock()
	f.transcribeCalls++
	f.mu.Unlock()
	if f.transcribeFn == nil {
		return "", fmt.Errorf("unexpected TranscribeDocument call")
	}
	return f.transcribeFn(ctx, mediaType, data)
}

func (f *fakeReasoning) GenerateStructuredAnalysis(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.analysisCalls++
	f.mu.Unlock()
	if f.analysisFn == nil {
		return "", fmt.Errorf("unexpected GenerateStructuredAnalysis call")
	}
	return f.analysisFn(ctx, prompt)
}

func (f *fakeReasoning) CompleteChat(ctx context.Context, system string, history []domain.ChatMessage, userMessage string) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	f.mu.Unlock()
	if f.chatFn == nil {
		return "", fmt.Errorf("unexpected CompleteChat call")
	}
	return f.chatFn(ctx, system, history, userMessage)
}

func (f *fakeReasoning) calls() (transcribe, analysis, chat int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcribeCalls, f.analysisCalls, f.chatCalls
}

type memAnalysisRepo struct {
	mu      sync.Mutex
	records map[string]*domain.Analysis

	createErr error
	saveErr   error
}

func newMemAnalysisRepo() *memAnalysisRepo {
	return &memAnalysisRepo{records: make(map[string]*domain.Analysis)}
}

func (r *memAnalysisRepo) Create(_ context.Context, analysis *domain.Analysis) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *analysis
	r.records[analysis.ID] = &cp
	return nil
}

func (r *memAnalysisRepo) GetByID(_ context.Context, id string) (*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", fmt.Errorf("no analysis %s", id))
	}
	cp := *record
	return &cp, nil
}

func (r *memAnalysisRepo) UpdateStatus(_ context.Context, id string, status domain.AnalysisStatus, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[id]; ok {
		record.Status = status
		record.Error = errMessage
	}
	return nil
}

func (r *memAnalysisRepo) SaveResult(_ context.Context, id string, status domain.AnalysisStatus, payload *domain.ReportPayload, fallback bool, errMessage string) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[id]; ok {
		record.Status = status
		record.Payload = payload
		record.Fallback = fallback
		record.Error = errMessage
	}
	return nil
}

func (r *memAnalysisRepo) get(id string) *domain.Analysis {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}

func (r *memAnalysisRepo) put(analysis *domain.Analysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *analysis
	r.records[analysis.ID] = &cp
}

type memChatRepo struct {
	mu       sync.Mutex
	messages []domain.ChatMessage

	appendErr error
}

func (r *memChatRepo) Append(_ context.Context, message domain.ChatMessage) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *memChatRepo) ListByAnalysis(_ context.Context, analysisID string, limit int) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range r.messages {
		if m.AnalysisID == analysisID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memChatRepo) all() []domain.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChatMessage(nil), r.messages...)
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type capturedNotification struct {
	UserID   string
	Title    string
	Severity string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []capturedNotification
}

func (n *captureNotifier) Notify(_ context.Context, userID, title, _ string, severity string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, capturedNotification{UserID: userID, Title: title, Severity: severity})
	return nil
}

func (n *captureNotifier) last() (capturedNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return capturedNotification{}, false
	}
	return n.sent[len(n.sent)-1], true
}

type countingMetrics struct {
	mu         sync.Mutex
	analyses   map[string]int
	cacheHits  int
	cacheMiss  int
	suspicious int
	chatTurns  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		analyses:  make(map[string]int),
		chatTurns: make(map[string]int),
	}
}

func (m *countingMetrics) RecordAnalysis(outcome string, _ bool, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[outcome]++
}

func (m *countingMetrics) RecordStage(_, _ string, _ float64) {}

func (m *countingMetrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMiss++
	}
}

func (m *countingMetrics) RecordSuspiciousResult() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspicious++
}

func (m *countingMetrics) RecordChatTurn(outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatTurns[outcome]++
}

// analysisResponse renders a schema-valid model reply with the given
// raw JSON score value.
func analysisResponse(score string) string {
	return fmt.Sprintf(`{
  "overview": {
    "score": %s,
    "summary": "Credit profile in good standing with consistent on-time payments.",
    "positiveFactors": ["Long account history"],
    "negativeFactors": ["High revolving utilization"]
  },
  "disputes": {"items": [
    {"bureau": "Equifax", "accountName": "Acme Card", "accountNumber": "****1234", "issueType": "late_payment", "recommendedAction": "Dispute the late payment marker."}
  ]},
  "creditHacks": {"recommendations": [
    {"title": "Lower utilization", "description": "Pay balances before statement close.", "impact": "High", "timeframe": "1-2 months", "steps": ["Pay mid-cycle"]}
  ]},
  "creditCards": {"recommendations": [
    {"name": "Everyday Cash", "issuer": "Acme Bank", "annualFee": "$0", "apr": "24.99%%", "rewards": "2%% cash back", "approvalLikelihood": "medium", "bestFor": "Daily spending"}
  ]},
  "sideHustles": {"recommendations": [
    {"title": "Freelance bookkeeping", "description": "Remote ledger work.", "potentialEarnings": "$500/mo", "startupCost": "$0", "difficulty": "Medium", "timeCommitment": "5h/week", "skills": ["Accounting"]}
  ]}
}`, score)
}
