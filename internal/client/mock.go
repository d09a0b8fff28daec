package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/DanielWarg/copy-paste/api/v1alpha1"
)

// mockBackend serves canned data so the pipeline can be exercised without a
// backend. Transcripts advance one status per poll so the polling path is
// observable in mock mode too.
type mockBackend struct {
	mu          sync.Mutex
	nextID      int
	transcripts map[string]*mockTranscript
	latency     time.Duration
}

type mockTranscript struct {
	title    string
	uploaded bool
	polls    int
}

// NewMock returns an in-memory Backend.
func NewMock() Backend {
	return &mockBackend{
		nextID:      1,
		transcripts: make(map[string]*mockTranscript),
		latency:     50 * time.Millisecond,
	}
}

func (m *mockBackend) delay(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return NewTimeoutError("")
	case <-time.After(m.latency):
		return nil
	}
}

func (m *mockBackend) allocID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return strconv.Itoa(id)
}

func (m *mockBackend) Ingest(ctx context.Context, inputType api.InputType, value string) (*api.IngestResponse, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	return &api.IngestResponse{EventID: "evt-" + m.allocID()}, nil
}

func (m *mockBackend) CreateRecord(ctx context.Context, req api.CreateRecordRequest) (*api.CreateRecordResponse, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	id := m.allocID()
	m.mu.Lock()
	m.transcripts[id] = &mockTranscript{title: req.Title}
	m.mu.Unlock()
	return &api.CreateRecordResponse{
		ProjectID:    "p-" + id,
		TranscriptID: id,
		Title:        req.Title,
		CreatedAt:    time.Now().Format(time.RFC3339),
	}, nil
}

func (m *mockBackend) UploadAudio(ctx context.Context, transcriptID, filename string, data []byte) (*api.UploadAudioResponse, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	t, ok := m.transcripts[transcriptID]
	if ok {
		t.uploaded = true
	}
	m.mu.Unlock()
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: userMessage(CodeNotFound, "")}
	}
	sum := sha256.Sum256(data)
	return &api.UploadAudioResponse{
		Status:    "stored",
		FileID:    "f-" + transcriptID,
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(data)),
		MimeType:  "audio/wav",
	}, nil
}

func (m *mockBackend) GetTranscript(ctx context.Context, transcriptID string) (*api.Transcript, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[transcriptID]
	if !ok || !t.uploaded {
		return nil, &Error{Code: CodeNotFound, Message: userMessage(CodeNotFound, "")}
	}
	t.polls++
	out := &api.Transcript{ID: transcriptID}
	switch {
	case t.polls == 1:
		out.Status = api.TranscriptStatusUploaded
	case t.polls < 3:
		out.Status = api.TranscriptStatusTranscribing
	default:
		out.Status = api.TranscriptStatusReady
		out.Text = "Transkriberad text för " + t.title
	}
	return out, nil
}

func (m *mockBackend) Scrub(ctx context.Context, req api.ScrubRequest) (*api.ScrubResponse, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	return &api.ScrubResponse{
		CleanText:        "[REDIGERAD] text för " + req.EventID,
		ApprovalRequired: false,
	}, nil
}

func (m *mockBackend) ScrubLegacy(ctx context.Context, req api.LegacyScrubRequest) (*api.ScrubResponse, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	return &api.ScrubResponse{
		CleanText: strings.ReplaceAll(req.Text, "Jan", "[PERSON]"),
	}, nil
}

func (m *mockBackend) GenerateDraft(ctx context.Context, req api.DraftRequest) (*api.Draft, error) {
	if err := m.delay(ctx); err != nil {
		return nil, err
	}
	return &api.Draft{
		Text: "Utkast genererat för " + req.EventID,
		Citations: []api.Citation{
			{SourceID: "mock-1", Excerpt: "Statisk källa", Confidence: 0.9},
		},
		PolicyViolations: []string{},
	}, nil
}

func (m *mockBackend) Health(ctx context.Context) error { return nil }
func (m *mockBackend) Ready(ctx context.Context) error  { return nil }
