package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/DanielWarg/copy-paste/api/v1alpha1"
	"github.com/DanielWarg/copy-paste/internal/client"
	"github.com/DanielWarg/copy-paste/internal/poller"
)

// fakeBackend records every call and replays scripted responses.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	ingestRes *api.IngestResponse
	ingestErr error

	recordRes *api.CreateRecordResponse
	recordErr error

	uploadRes *api.UploadAudioResponse
	uploadErr error

	statuses  []api.TranscriptStatus
	statusIdx int
	readyText string

	scrubRes *api.ScrubResponse
	scrubErr error

	legacyRes *api.ScrubResponse
	legacyErr error

	draftRes  *api.Draft
	draftErr  error
	draftReqs []api.DraftRequest
	scrubReqs []api.ScrubRequest
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) Ingest(ctx context.Context, inputType api.InputType, value string) (*api.IngestResponse, error) {
	f.record("ingest")
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return f.ingestRes, nil
}

func (f *fakeBackend) CreateRecord(ctx context.Context, req api.CreateRecordRequest) (*api.CreateRecordResponse, error) {
	f.record("create_record")
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return f.recordRes, nil
}

func (f *fakeBackend) UploadAudio(ctx context.Context, transcriptID, filename string, data []byte) (*api.UploadAudioResponse, error) {
	f.record("upload_audio")
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadRes, nil
}

func (f *fakeBackend) GetTranscript(ctx context.Context, transcriptID string) (*api.Transcript, error) {
	f.record("get_transcript")
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.statusIdx
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.statusIdx++
	status := f.statuses[idx]
	out := &api.Transcript{ID: transcriptID, Status: status}
	if status.Succeeded() {
		out.Text = f.readyText
	}
	return out, nil
}

func (f *fakeBackend) Scrub(ctx context.Context, req api.ScrubRequest) (*api.ScrubResponse, error) {
	f.record("scrub")
	f.mu.Lock()
	f.scrubReqs = append(f.scrubReqs, req)
	f.mu.Unlock()
	if f.scrubErr != nil {
		return nil, f.scrubErr
	}
	return f.scrubRes, nil
}

func (f *fakeBackend) ScrubLegacy(ctx context.Context, req api.LegacyScrubRequest) (*api.ScrubResponse, error) {
	f.record("scrub_legacy")
	if f.legacyErr != nil {
		return nil, f.legacyErr
	}
	return f.legacyRes, nil
}

func (f *fakeBackend) GenerateDraft(ctx context.Context, req api.DraftRequest) (*api.Draft, error) {
	f.record("generate_draft")
	f.mu.Lock()
	f.draftReqs = append(f.draftReqs, req)
	f.mu.Unlock()
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	return f.draftRes, nil
}

func (f *fakeBackend) Health(ctx context.Context) error { return nil }
func (f *fakeBackend) Ready(ctx context.Context) error  { return nil }

func happyTextBackend() *fakeBackend {
	return &fakeBackend{
		ingestRes: &api.IngestResponse{EventID: "evt-1"},
		scrubRes:  &api.ScrubResponse{CleanText: "[PERSON] höjer räntan..."},
		draftRes: &api.Draft{
			Text:             "Riksbanken höjde räntan under onsdagen.",
			Citations:        []api.Citation{{SourceID: "src-1", Excerpt: "räntebesked", Confidence: 0.8}},
			PolicyViolations: []string{},
		},
	}
}

func newTestOrchestrator(backend *fakeBackend) *Orchestrator {
	return New(backend, WithPoller(poller.NewWithCadence(backend, 2*time.Millisecond, 60)))
}

func TestSubmitTextEndToEnd(t *testing.T) {
	backend := happyTextBackend()
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{
		Kind:  api.InputTypeText,
		Value: "Riksbanken höjer räntan...",
	})
	require.NoError(t, err)

	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, "evt-1", snap.EventID)
	require.NotNil(t, snap.Draft)
	assert.NotEmpty(t, snap.Draft.Text)
	assert.NotNil(t, snap.Draft.Citations)
	assert.Equal(t, []string{"ingest", "scrub", "generate_draft"}, backend.calls)

	require.Len(t, backend.draftReqs, 1)
	assert.Equal(t, "evt-1", backend.draftReqs[0].EventID)
	assert.Equal(t, "[PERSON] höjer räntan...", backend.draftReqs[0].CleanText)
	assert.Empty(t, backend.draftReqs[0].ApprovalToken)
}

func TestSubmitParksAtApprovalGate(t *testing.T) {
	backend := happyTextBackend()
	backend.scrubRes = &api.ScrubResponse{
		CleanText:        "[PERSON] intervjuades...",
		ApprovalRequired: true,
		ApprovalToken:    "tok-1",
		SemanticRisk:     "named person detected",
	}
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "text"})
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingApproval, snap.State)
	assert.Equal(t, "[PERSON] intervjuades...", snap.CleanText)
	assert.Equal(t, "named person detected", snap.SemanticRisk)
	assert.Contains(t, snap.Progress, "named person detected")
	// no draft call until the token arrives
	assert.Equal(t, 0, backend.count("generate_draft"))

	snap, err = orch.Approve(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, StateDone, snap.State)

	require.Len(t, backend.draftReqs, 1)
	assert.Equal(t, "tok-1", backend.draftReqs[0].ApprovalToken)
}

func TestApproveWithoutPendingRun(t *testing.T) {
	orch := newTestOrchestrator(happyTextBackend())
	_, err := orch.Approve(context.Background(), "tok-1")
	assert.ErrorIs(t, err, ErrNoPendingApproval)
}

func TestApproveRequiresToken(t *testing.T) {
	backend := happyTextBackend()
	backend.scrubRes = &api.ScrubResponse{CleanText: "x", ApprovalRequired: true, ApprovalToken: "tok-1"}
	orch := newTestOrchestrator(backend)

	_, err := orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "text"})
	require.NoError(t, err)

	_, err = orch.Approve(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyToken)
	assert.Equal(t, 0, backend.count("generate_draft"))

	// the gate is still armed for a proper token
	snap, err := orch.Approve(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, StateDone, snap.State)
}

func TestProductionModeNeverFallsBack(t *testing.T) {
	backend := happyTextBackend()
	backend.scrubErr = &client.Error{Code: client.CodeValidationError, Message: "Valideringsfel. Kontrollera indata."}
	backend.legacyRes = &api.ScrubResponse{CleanText: "should never be used"}
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{
		Kind:           api.InputTypeText,
		Value:          "känslig text",
		ProductionMode: true,
	})
	require.Error(t, err)

	assert.Equal(t, StateError, snap.State)
	require.NotNil(t, snap.Err)
	// the original failure's code is preserved
	assert.Equal(t, client.CodeValidationError, snap.Err.Code)
	assert.Equal(t, 0, backend.count("scrub_legacy"))
	assert.Equal(t, 0, backend.count("generate_draft"))
}

func TestScrubFallsBackOutsideProductionMode(t *testing.T) {
	backend := happyTextBackend()
	backend.scrubErr = &client.Error{Code: client.CodeNotFound}
	backend.legacyRes = &api.ScrubResponse{CleanText: "[PERSON] (legacy)"}
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "text"})
	require.NoError(t, err)

	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, "[PERSON] (legacy)", snap.CleanText)
	assert.Equal(t, 1, backend.count("scrub_legacy"))
}

func TestScrubServerErrorDoesNotFallBack(t *testing.T) {
	backend := happyTextBackend()
	backend.scrubErr = &client.Error{Code: client.CodeServerError}
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "text"})
	require.Error(t, err)

	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, client.CodeServerError, snap.Err.Code)
	assert.Equal(t, 0, backend.count("scrub_legacy"))
}

func TestSubmitAudioEndToEnd(t *testing.T) {
	backend := happyTextBackend()
	backend.recordRes = &api.CreateRecordResponse{ProjectID: "p-1", TranscriptID: "42", Title: "clip"}
	backend.uploadRes = &api.UploadAudioResponse{Status: "stored", FileID: "f-1", SHA256: "abc", SizeBytes: 8, MimeType: "audio/wav"}
	backend.statuses = []api.TranscriptStatus{
		api.TranscriptStatusUploaded,
		api.TranscriptStatusTranscribing,
		api.TranscriptStatusTranscribing,
		api.TranscriptStatusReady,
	}
	backend.readyText = "transkriberad intervju"
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{
		Kind:     api.InputTypeAudio,
		Audio:    []byte("RIFF1234"),
		MimeType: "audio/wav",
		Filename: "intervju.wav",
	})
	require.NoError(t, err)

	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, "42", snap.TranscriptID)
	// the transcript id doubles as the event id for audio runs
	assert.Equal(t, "42", snap.EventID)
	require.NotNil(t, snap.Upload)
	assert.Equal(t, "abc", snap.Upload.SHA256)
	assert.Equal(t, 4, backend.count("get_transcript"))

	require.Len(t, backend.scrubReqs, 1)
	assert.Equal(t, "42", backend.scrubReqs[0].EventID)
}

func TestSubmitAudioTranscriptionFailureStopsPipeline(t *testing.T) {
	backend := happyTextBackend()
	backend.recordRes = &api.CreateRecordResponse{TranscriptID: "42"}
	backend.uploadRes = &api.UploadAudioResponse{Status: "stored"}
	backend.statuses = []api.TranscriptStatus{api.TranscriptStatusDeleted}
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{
		Kind:     api.InputTypeAudio,
		Audio:    []byte("RIFF1234"),
		MimeType: "audio/wav",
		Filename: "intervju.wav",
	})
	require.Error(t, err)

	assert.Equal(t, StateError, snap.State)
	// no further network calls after the terminal failure status
	assert.Equal(t, 0, backend.count("scrub"))
	assert.Equal(t, 0, backend.count("generate_draft"))
}

func TestSubmitRejectsConcurrentRun(t *testing.T) {
	backend := happyTextBackend()
	backend.scrubRes = &api.ScrubResponse{CleanText: "x", ApprovalRequired: true, ApprovalToken: "tok-1"}
	orch := newTestOrchestrator(backend)

	_, err := orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "first"})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingApproval, orch.Snapshot().State)

	_, err = orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "second"})
	assert.ErrorIs(t, err, ErrRunInFlight)
}

func TestResetAbandonsParkedRun(t *testing.T) {
	backend := happyTextBackend()
	backend.scrubRes = &api.ScrubResponse{CleanText: "x", ApprovalRequired: true, ApprovalToken: "tok-1"}
	orch := newTestOrchestrator(backend)

	_, err := orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "text"})
	require.NoError(t, err)

	orch.Reset()
	assert.Equal(t, StateIdle, orch.Snapshot().State)

	// a late token must not release anything
	_, err = orch.Approve(context.Background(), "tok-1")
	assert.ErrorIs(t, err, ErrNoPendingApproval)
	assert.Equal(t, 0, backend.count("generate_draft"))
}

func TestSubmitValidationFailureMakesNoNetworkCalls(t *testing.T) {
	backend := happyTextBackend()
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "  "})
	require.Error(t, err)

	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, client.CodeValidationError, snap.Err.Code)
	assert.Empty(t, backend.calls)
}

func TestSnapshotIsACopy(t *testing.T) {
	backend := happyTextBackend()
	orch := newTestOrchestrator(backend)

	snap, err := orch.Submit(context.Background(), Input{Kind: api.InputTypeText, Value: "text"})
	require.NoError(t, err)

	snap.Draft.Text = "mutated"
	fresh := orch.Snapshot()
	assert.NotEqual(t, "mutated", fresh.Draft.Text)
}
