package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hguangin/soultalk-tool/internal/client"
	"github.com/hguangin/soultalk-tool/internal/jobs"
	"github.com/hguangin/soultalk-tool/internal/model"
	"github.com/hguangin/soultalk-tool/internal/provider"
	"github.com/hguangin/soultalk-tool/internal/settings"
)

// memStore is an in-memory jobs.Store.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]model.Job
	logs map[string][]model.StepLog
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[string]model.Job),
		logs: make(map[string][]model.StepLog),
	}
}

func (s *memStore) SaveJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	cp := job
	return &cp, nil
}

func (s *memStore) ListJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) AppendStepLog(ctx context.Context, entry *model.StepLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[entry.JobID] = append(s.logs[entry.JobID], *entry)
	return nil
}

func (s *memStore) GetStepLogs(ctx context.Context, jobID string) ([]model.StepLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StepLog(nil), s.logs[jobID]...), nil
}

// tuneSettings is a fixed-value Settings for tests.
type tuneSettings struct {
	retry       settings.Retry
	transOrder  []string
	alignOrder  []string
	autoCorrect bool
	autoUpload  bool
	publish     bool
	split       settings.SplitRules
}

func defaultTune() *tuneSettings {
	return &tuneSettings{
		retry:      settings.Retry{MaxAttempts: 2, Delay: time.Millisecond},
		transOrder: []string{"stt-a", "stt-b"},
		alignOrder: []string{"llm-a", "llm-b"},
		split:      settings.SplitRules{MaxRunes: 28, MaxRunesCJK: 14},
	}
}

func (s *tuneSettings) Retry() settings.Retry        { return s.retry }
func (s *tuneSettings) TranscriptionOrder() []string { return s.transOrder }
func (s *tuneSettings) AlignmentOrder() []string     { return s.alignOrder }
func (s *tuneSettings) AutoCorrect() bool            { return s.autoCorrect }
func (s *tuneSettings) AutoUpload() bool             { return s.autoUpload }
func (s *tuneSettings) NotifyOnSuccess() bool        { return true }
func (s *tuneSettings) PublishDocuments() bool       { return s.publish }
func (s *tuneSettings) Split() settings.SplitRules   { return s.split }

func (s *tuneSettings) AlignPrompt(kind model.PipelineKind) string {
	return "kind=" + string(kind) + "\nlines:\n{{LINES}}\nlyrics:\n{{LYRICS}}\nwords:\n{{TRANSCRIPT}}"
}

func (s *tuneSettings) CorrectPrompt() string {
	return "reference:\n{{LYRICS}}\ncurrent:\n{{LINES}}"
}

func (s *tuneSettings) Style(kind model.PipelineKind) map[string]any {
	return map[string]any{"theme": "dark"}
}

// sttReply scripts one Transcribe call. The last reply repeats.
type sttReply struct {
	res *model.Transcript
	err error
}

type fakeTranscriber struct {
	mu      sync.Mutex
	replies []sttReply
	calls   int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioURL, language string) (*model.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.replies) == 0 {
		return nil, errors.New("no scripted transcription")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.res, r.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// chatReply scripts one ChatCompletion call. The last reply repeats.
type chatReply struct {
	res *client.ChatResult
	err error
}

type fakeAligner struct {
	mu      sync.Mutex
	replies []chatReply
	prompts []string
}

func (f *fakeAligner) ChatCompletion(ctx context.Context, system, user string) (*client.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, user)
	if len(f.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.res, r.err
}

func (f *fakeAligner) sentPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// captionReply builds a well-formed alignment reply for the given texts.
func captionReply(texts ...string) chatReply {
	entries := make([]map[string]any, 0, len(texts))
	for i, text := range texts {
		entries = append(entries, map[string]any{
			"text":      text,
			"startTime": float64(i),
			"endTime":   float64(i) + 0.9,
		})
	}
	data, _ := json.Marshal(entries)
	return chatReply{res: &client.ChatResult{
		Content:      "captionData = " + string(data),
		FinishReason: client.FinishStop,
	}}
}

type fakeRecords struct {
	mu         sync.Mutex
	record     *client.RagicRecord
	getErr     error
	writeErr   error
	writeRefs  []string
	writes     []*model.RecordWrite
	configured bool
}

func (f *fakeRecords) GetRecord(ctx context.Context, recordRef string) (*client.RagicRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.record == nil {
		return nil, errors.New("no scripted record")
	}
	return f.record, nil
}

func (f *fakeRecords) WriteResult(ctx context.Context, recordRef string, write *model.RecordWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writeRefs = append(f.writeRefs, recordRef)
	f.writes = append(f.writes, write)
	return nil
}

func (f *fakeRecords) IsConfigured() bool { return f.configured }

func (f *fakeRecords) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeArchive struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (f *fakeArchive) PublishDocument(ctx context.Context, jobID string, doc *model.CaptionDocument) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func (f *fakeArchive) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	return f.url, nil
}

func (f *fakeArchive) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeArchive) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return f.url, nil
}

func (f *fakeArchive) GetPublicURL(key string) string { return f.url }

func (f *fakeArchive) IsConfigured() bool { return true }

// singleRegistry registers one configured provider per capability.
func singleRegistry(stt provider.Transcriber, llm provider.Aligner) *provider.Registry {
	return &provider.Registry{
		Transcribers: []provider.Entry[provider.Transcriber]{{ID: "stt-a", Client: stt, Configured: true}},
		Aligners:     []provider.Entry[provider.Aligner]{{ID: "llm-a", Client: llm, Configured: true}},
	}
}

// testTranscript is a small word-timed transcript fixture.
func testTranscript() *model.Transcript {
	return &model.Transcript{
		FullText: "hello world this is a test. here is another sentence we split.",
		Words: []model.Word{
			{Text: "hello", StartMs: 0, EndMs: 400},
			{Text: "world", StartMs: 450, EndMs: 900},
			{Text: "this", StartMs: 950, EndMs: 1200},
			{Text: "is", StartMs: 1250, EndMs: 1400},
			{Text: "a", StartMs: 1450, EndMs: 1500},
			{Text: "test", StartMs: 1550, EndMs: 1900},
		},
		Language: "en",
	}
}

// runJob creates the job through a real orchestrator and waits for a
// terminal state.
func runJob(t *testing.T, deps *Deps, tune *tuneSettings, params *model.JobParams) (*model.Job, *memStore) {
	t.Helper()
	store := newMemStore()
	o := jobs.NewOrchestrator(store, nil, nil, tune)
	o.Register(NewVideoPipeline(deps))
	o.Register(NewVoicePipeline(deps))

	job, err := o.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current, err := store.GetJob(context.Background(), job.ID)
		if err == nil && current.Status.Terminal() {
			return current, store
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", job.ID)
	return nil, nil
}

func stepNames(logs []model.StepLog) []string {
	names := make([]string, 0, len(logs))
	for _, l := range logs {
		names = append(names, l.Step+":"+string(l.Status))
	}
	return names
}

func decodeOutput(t *testing.T, job *model.Job) *model.CaptionDocument {
	t.Helper()
	if len(job.Output) == 0 {
		t.Fatal("job has no output")
	}
	var doc model.CaptionDocument
	if err := json.Unmarshal(job.Output, &doc); err != nil {
		t.Fatalf("output is not a caption document: %v", err)
	}
	return &doc
}
