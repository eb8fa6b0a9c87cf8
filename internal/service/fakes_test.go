package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"insight-qa-go/internal/model"
	"insight-qa-go/pkg/piston"
	"insight-qa-go/pkg/tasks"
)

// fakeGenerator 按顺序返回预置的回复，并记录收到的提示词。
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", errors.New("no response queued")
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vec, e.err
}

type fakeSearcher struct {
	hits    []model.ScoredChunk
	lastK   int
	keyword func(query string, k int) ([]model.ScoredChunk, error)
	closed  bool
}

func (s *fakeSearcher) TopK(_ []float32, k int) []model.ScoredChunk {
	s.lastK = k
	if k < len(s.hits) {
		return s.hits[:k]
	}
	return s.hits
}

func (s *fakeSearcher) Keyword(query string, k int) ([]model.ScoredChunk, error) {
	if s.keyword != nil {
		return s.keyword(query, k)
	}
	return nil, nil
}

func (s *fakeSearcher) Close() error {
	s.closed = true
	return nil
}

type fakeQuerier struct {
	result  *model.QueryResult
	err     error
	queries []string
	// onQuery 在执行查询前调用，用于模拟并发替换
	onQuery func()
	closed  bool
}

func (q *fakeQuerier) Query(_ context.Context, query string) (*model.QueryResult, error) {
	if q.onQuery != nil {
		q.onQuery()
	}
	if q.closed {
		return nil, errors.New("sql: database is closed")
	}
	q.queries = append(q.queries, query)
	return q.result, q.err
}

func (q *fakeQuerier) Close() error {
	q.closed = true
	return nil
}

type fakeConversationRepo struct {
	mu       sync.Mutex
	history  map[string][]model.ChatMessage
	failRead bool
	deleted  []string
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{history: make(map[string][]model.ChatMessage)}
}

func (r *fakeConversationRepo) GetHistory(_ context.Context, sessionID string, m model.Modality) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return nil, errors.New("redis down")
	}
	return append([]model.ChatMessage{}, r.history[sessionID+":"+string(m)]...), nil
}

func (r *fakeConversationRepo) UpdateHistory(_ context.Context, sessionID string, m model.Modality, messages []model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[sessionID+":"+string(m)] = messages
	return nil
}

func (r *fakeConversationRepo) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, sessionID)
	for k := range r.history {
		if strings.HasPrefix(k, sessionID+":") {
			delete(r.history, k)
		}
	}
	return nil
}

type fakeCodingRepo struct {
	exercise *model.CodingExercise
	hints    int
	previous []model.PreviousExercise
	deleted  bool
}

func (r *fakeCodingRepo) GetExercise(context.Context, string) (*model.CodingExercise, error) {
	return r.exercise, nil
}

func (r *fakeCodingRepo) SaveExercise(_ context.Context, _ string, exercise *model.CodingExercise) error {
	r.exercise = exercise
	r.hints = 0
	return nil
}

func (r *fakeCodingRepo) IncrHintAttempt(context.Context, string) (int, error) {
	r.hints++
	return r.hints, nil
}

func (r *fakeCodingRepo) PreviousExercises(context.Context, string) ([]model.PreviousExercise, error) {
	return r.previous, nil
}

func (r *fakeCodingRepo) AppendPreviousExercise(_ context.Context, _ string, prev model.PreviousExercise, keep int) error {
	r.previous = append(r.previous, prev)
	if len(r.previous) > keep {
		r.previous = r.previous[len(r.previous)-keep:]
	}
	return nil
}

func (r *fakeCodingRepo) DeleteSession(context.Context, string) error {
	r.deleted = true
	r.exercise = nil
	return nil
}

type fakeInterviewRepo struct {
	interview *model.Interview
	reports   []*model.InterviewReportRecord
}

func (r *fakeInterviewRepo) GetInterview(context.Context, string) (*model.Interview, error) {
	if r.interview == nil {
		return nil, nil
	}
	cp := *r.interview
	cp.Answers = append([]model.InterviewAnswer{}, r.interview.Answers...)
	return &cp, nil
}

func (r *fakeInterviewRepo) SaveInterview(_ context.Context, _ string, interview *model.Interview) error {
	r.interview = interview
	return nil
}

func (r *fakeInterviewRepo) DeleteSession(context.Context, string) error {
	r.interview = nil
	return nil
}

func (r *fakeInterviewRepo) SaveReport(record *model.InterviewReportRecord) error {
	r.reports = append(r.reports, record)
	return nil
}

// fakeExecutor 记录提交的完整代码，由 run 决定执行结果。
type fakeExecutor struct {
	available bool
	run       func(code string) piston.Result
	codes     []string
}

func (e *fakeExecutor) Execute(_ context.Context, code, _ string) piston.Result {
	e.codes = append(e.codes, code)
	return e.run(code)
}

func (e *fakeExecutor) Available(context.Context) bool { return e.available }

type fakeArchive struct {
	mu      sync.Mutex
	puts    []string
	removed []string
}

func (a *fakeArchive) Put(_ context.Context, sessionID, modality, name string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.puts = append(a.puts, sessionID+"/"+modality+"/"+name)
	return nil
}

func (a *fakeArchive) RemoveSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removed = append(a.removed, sessionID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []tasks.IngestionEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event tasks.IngestionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type fakeMirror struct {
	replaced int
}

func (m *fakeMirror) Replace(context.Context, string, *model.IndexedArtifact) error {
	m.replaced++
	return nil
}

func (m *fakeMirror) DeleteSession(context.Context, string) error { return nil }

type fakeExtractor struct {
	text string
}

func (f fakeExtractor) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	_, _ = io.ReadAll(r)
	return f.text, nil
}

// letterEmbedder 以字母频次作为向量。
type letterEmbedder struct{}

func letterVector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	v[0] += 0.001
	return v
}

func (letterEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	return letterVector(text), nil
}

func (letterEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	return out, nil
}
