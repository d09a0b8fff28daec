package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/DanielWarg/copy-paste/api/v1alpha1"
	"github.com/DanielWarg/copy-paste/internal/client"
	"github.com/DanielWarg/copy-paste/internal/poller"
)

var (
	// ErrRunInFlight is returned when a submission arrives while the active
	// run is not in a terminal state. Blocking resubmission is the caller's
	// job; this is the backstop.
	ErrRunInFlight = errors.New("a pipeline run is already in flight")
	// ErrRunAbandoned marks a step whose run was reset while it was
	// suspended; its result has been discarded.
	ErrRunAbandoned = errors.New("pipeline run was abandoned")
)

// Orchestrator drives one pipeline run at a time through
// creating → uploading → scrubbing → awaiting_approval → drafting → done.
// It owns the run record exclusively; callers observe it through snapshots.
type Orchestrator struct {
	backend client.Backend
	poller  *poller.Poller
	gate    approvalGate

	mu  sync.Mutex
	run *Run
	log *zap.SugaredLogger
}

func New(backend client.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		poller:  poller.New(backend),
		log:     zap.S().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithPoller overrides the transcript poller, mainly to shrink the cadence
// in tests.
func WithPoller(p *poller.Poller) Option {
	return func(o *Orchestrator) { o.poller = p }
}

// Submit runs the pipeline for one input. It returns when the run reaches
// done or error, or parks at awaiting_approval; in the latter case the error
// is nil and the caller continues with Approve. Exactly one run may be in
// flight.
func (o *Orchestrator) Submit(ctx context.Context, input Input) (Snapshot, error) {
	o.mu.Lock()
	if o.run != nil && !o.run.tag.Terminal() {
		o.mu.Unlock()
		return Snapshot{}, ErrRunInFlight
	}

	if apiErr := input.Validate(); apiErr != nil {
		run := &Run{
			id:             uuid.NewString(),
			input:          input,
			productionMode: input.ProductionMode,
			tag:            StateError,
			err:            apiErr,
		}
		o.run = run
		snap := run.snapshot()
		o.mu.Unlock()
		return snap, apiErr
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		id:             uuid.NewString(),
		input:          input,
		productionMode: input.ProductionMode,
		tag:            StateIdle,
		cancel:         cancel,
	}
	o.run = run
	runID := run.id
	o.mu.Unlock()

	o.log.Infof("run started run_id=%s kind=%s", runID, input.Kind)

	if input.Kind == api.InputTypeAudio {
		return o.executeAudio(runCtx, runID, input)
	}
	return o.executeIngest(runCtx, runID, input)
}

// Approve releases a run parked at the approval gate and continues with
// draft generation, carrying the supplied token. Exactly one draft call is
// made per approval.
func (o *Orchestrator) Approve(ctx context.Context, token string) (Snapshot, error) {
	o.mu.Lock()
	if o.run == nil || o.run.tag != StateAwaitingApproval {
		o.mu.Unlock()
		return Snapshot{}, ErrNoPendingApproval
	}
	runID := o.run.id
	o.mu.Unlock()

	if err := o.gate.Release(runID, token); err != nil {
		return Snapshot{}, err
	}
	o.transition(runID, "", "", func(r *Run) { r.approvalToken = token })
	return o.draft(ctx, runID, token)
}

// Reset abandons the active run. Any outstanding poll stops, and results of
// in-flight steps are discarded because their run id no longer matches.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	run := o.run
	o.run = nil
	o.mu.Unlock()

	o.gate.Disarm()
	if run != nil {
		if run.cancel != nil {
			run.cancel()
		}
		o.log.Infof("run abandoned run_id=%s", run.id)
	}
}

// Snapshot returns an immutable view of the active run, or an idle snapshot
// when none exists.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return Snapshot{State: StateIdle}
	}
	return o.run.snapshot()
}

func (o *Orchestrator) executeIngest(ctx context.Context, runID string, input Input) (Snapshot, error) {
	o.transition(runID, StateCreating, "Bearbetar...", nil)

	res, err := o.backend.Ingest(ctx, input.Kind, input.Value)
	if err != nil {
		return o.failRun(runID, client.AsError(err))
	}
	if !o.transition(runID, "", "", func(r *Run) { r.eventID = res.EventID }) {
		return Snapshot{}, ErrRunAbandoned
	}

	return o.scrubThenDraft(ctx, runID)
}

func (o *Orchestrator) executeAudio(ctx context.Context, runID string, input Input) (Snapshot, error) {
	o.transition(runID, StateCreating, "Skapar record...", nil)

	rec, err := o.backend.CreateRecord(ctx, api.CreateRecordRequest{Title: input.RecordTitle()})
	if err != nil {
		return o.failRun(runID, client.AsError(err))
	}
	if rec.TranscriptID == "" {
		return o.failRun(runID, &client.Error{
			Code:    client.CodeUnknown,
			Message: "Kunde inte skapa record - saknar transcript_id",
		})
	}
	if !o.transition(runID, StateUploading, fmt.Sprintf("Laddar upp %s...", input.Filename), func(r *Run) {
		r.projectID = rec.ProjectID
		r.transcriptID = rec.TranscriptID
	}) {
		return Snapshot{}, ErrRunAbandoned
	}

	upload, err := o.backend.UploadAudio(ctx, rec.TranscriptID, input.Filename, input.Audio)
	if err != nil {
		return o.failRun(runID, client.AsError(err))
	}
	if !o.transition(runID, "", "Väntar på transkribering...", func(r *Run) { r.upload = upload }) {
		return Snapshot{}, ErrRunAbandoned
	}

	// Scrub input is the transcript text, which does not exist until
	// transcription completes, so the poller runs before scrubbing.
	transcript, err := o.poller.Poll(ctx, rec.TranscriptID, func(status api.TranscriptStatus) {
		o.transition(runID, "", pollProgress(status), nil)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Snapshot{}, ErrRunAbandoned
		}
		return o.failRun(runID, client.AsError(err))
	}
	if !transcript.Status.Succeeded() {
		return o.failRun(runID, &client.Error{
			Code:    client.CodeUnknown,
			Message: fmt.Sprintf("Transkribering misslyckades: status=%s", transcript.Status),
		})
	}
	if !o.transition(runID, "", "", func(r *Run) {
		r.transcriptText = transcript.Text
		// The transcript id doubles as the event id for audio runs.
		r.eventID = transcript.ID
	}) {
		return Snapshot{}, ErrRunAbandoned
	}

	return o.scrubThenDraft(ctx, runID)
}

func (o *Orchestrator) scrubThenDraft(ctx context.Context, runID string) (Snapshot, error) {
	o.transition(runID, StateScrubbing, "Privacy Shield bearbetar...", nil)

	o.mu.Lock()
	if o.run == nil || o.run.id != runID {
		o.mu.Unlock()
		return Snapshot{}, ErrRunAbandoned
	}
	eventID := o.run.eventID
	productionMode := o.run.productionMode
	fallbackText := o.run.bestText()
	o.mu.Unlock()

	scrubRes, apiErr := o.scrub(ctx, eventID, productionMode, fallbackText)
	if apiErr != nil {
		return o.failRun(runID, apiErr)
	}
	if !o.transition(runID, "", "", func(r *Run) {
		r.cleanText = scrubRes.CleanText
		r.semanticRisk = scrubRes.SemanticRisk
		r.approvalToken = scrubRes.ApprovalToken
	}) {
		return Snapshot{}, ErrRunAbandoned
	}

	if scrubRes.ApprovalRequired {
		o.gate.Arm(runID)
		if !o.transition(runID, StateAwaitingApproval, approvalProgress(scrubRes.SemanticRisk), nil) {
			return Snapshot{}, ErrRunAbandoned
		}
		snap, ok := o.snapshotOf(runID)
		if !ok {
			return Snapshot{}, ErrRunAbandoned
		}
		return snap, nil
	}

	return o.draft(ctx, runID, "")
}

// scrub calls the versioned privacy endpoint and, outside production mode,
// falls back once to the legacy endpoint on a validation-style failure.
// Production mode never falls back: its entire point is that anonymization is
// verified before anything else happens, and a silent downgrade would break
// that guarantee.
func (o *Orchestrator) scrub(ctx context.Context, eventID string, productionMode bool, fallbackText string) (*api.ScrubResponse, *client.Error) {
	res, err := o.backend.Scrub(ctx, api.ScrubRequest{
		EventID:        eventID,
		ProductionMode: productionMode,
	})
	if err == nil {
		return res, nil
	}

	apiErr := client.AsError(err)
	if productionMode {
		return nil, apiErr
	}
	if apiErr.Code != client.CodeValidationError && apiErr.Code != client.CodeNotFound {
		return nil, apiErr
	}

	o.log.Infof("versioned scrub unavailable code=%s, falling back to legacy endpoint", apiErr.Code)
	res, err = o.backend.ScrubLegacy(ctx, api.LegacyScrubRequest{
		Text: fallbackText,
		Mode: "balanced",
	})
	if err != nil {
		return nil, client.AsError(err)
	}
	return res, nil
}

func (o *Orchestrator) draft(ctx context.Context, runID, approvalToken string) (Snapshot, error) {
	o.mu.Lock()
	if o.run == nil || o.run.id != runID {
		o.mu.Unlock()
		return Snapshot{}, ErrRunAbandoned
	}
	req := api.DraftRequest{
		EventID:        o.run.eventID,
		CleanText:      o.run.cleanText,
		ApprovalToken:  approvalToken,
		ProductionMode: o.run.productionMode,
	}
	o.mu.Unlock()

	o.transition(runID, StateDrafting, "Genererar utkast...", nil)

	draft, err := o.backend.GenerateDraft(ctx, req)
	if err != nil {
		return o.failRun(runID, client.AsError(err))
	}
	if !o.transition(runID, StateDone, "Klart!", func(r *Run) { r.draft = draft }) {
		return Snapshot{}, ErrRunAbandoned
	}
	snap, ok := o.snapshotOf(runID)
	if !ok {
		return Snapshot{}, ErrRunAbandoned
	}
	o.log.Infof("run done run_id=%s citations=%d", runID, len(draft.Citations))
	return snap, nil
}

// transition applies a state change keyed by run id; late results from an
// abandoned run are dropped because the id no longer matches.
func (o *Orchestrator) transition(runID string, tag StateTag, progress string, mutate func(*Run)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil || o.run.id != runID {
		return false
	}
	if tag != "" {
		o.run.tag = tag
		o.log.Infof("run=%s state=%s", runID, tag)
	}
	if progress != "" {
		o.run.progress = progress
	}
	if mutate != nil {
		mutate(o.run)
	}
	return true
}

func (o *Orchestrator) failRun(runID string, apiErr *client.Error) (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil || o.run.id != runID {
		return Snapshot{}, ErrRunAbandoned
	}
	o.run.tag = StateError
	o.run.err = apiErr
	o.run.progress = ""
	o.log.Warnf("run failed run_id=%s code=%s request_id=%s", runID, apiErr.Code, apiErr.RequestID)
	return o.run.snapshot(), apiErr
}

func (o *Orchestrator) snapshotOf(runID string) (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil || o.run.id != runID {
		return Snapshot{}, false
	}
	return o.run.snapshot(), true
}

func pollProgress(status api.TranscriptStatus) string {
	switch status {
	case api.TranscriptStatusTranscribing:
		return "Transkriberar..."
	case api.TranscriptStatusUploaded:
		return "Väntar på transkribering..."
	default:
		return ""
	}
}

func approvalProgress(semanticRisk string) string {
	if semanticRisk == "" {
		semanticRisk = "Semantic risk detected"
	}
	return fmt.Sprintf("Godkännande krävs: %s", semanticRisk)
}
