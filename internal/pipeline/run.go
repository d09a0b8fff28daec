// Package pipeline sequences ingest, privacy scrub and draft generation into
// one reviewable run, with an approval checkpoint in between when the scrub
// step flags a semantic privacy risk.
package pipeline

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	api "github.com/DanielWarg/copy-paste/api/v1alpha1"
	"github.com/DanielWarg/copy-paste/internal/client"
)

// StateTag identifies where a run is in its lifecycle. Payload fields that
// only make sense for a given tag live on the run and are populated exactly
// when the tag is reached, never before.
type StateTag string

const (
	StateIdle             StateTag = "idle"
	StateCreating         StateTag = "creating"
	StateUploading        StateTag = "uploading"
	StateScrubbing        StateTag = "scrubbing"
	StateAwaitingApproval StateTag = "awaiting_approval"
	StateDrafting         StateTag = "drafting"
	StateDone             StateTag = "done"
	StateError            StateTag = "error"
)

// Terminal reports whether a new run may replace one in this state.
func (s StateTag) Terminal() bool {
	return s == StateIdle || s == StateDone || s == StateError
}

const maxAudioBytes = 200 * 1024 * 1024

// Input is one piece of raw editorial material submitted to the pipeline.
type Input struct {
	Kind           api.InputType
	Value          string // url or pasted text
	Audio          []byte
	Filename       string
	Title          string
	MimeType       string // optional; sniffed from Audio when empty
	ProductionMode bool
}

// Validate checks the input client-side before any network call. Violations
// are validation errors without a request id, since nothing was sent.
func (in *Input) Validate() *client.Error {
	switch in.Kind {
	case api.InputTypeURL, api.InputTypeText:
		if strings.TrimSpace(in.Value) == "" {
			return client.NewValidationError("Vänligen ange URL eller text")
		}
	case api.InputTypeAudio:
		if len(in.Audio) == 0 {
			return client.NewValidationError("Välj en fil först")
		}
		if len(in.Audio) > maxAudioBytes {
			return client.NewValidationError("Filen är för stor (max 200MB)")
		}
		mime := in.MimeType
		if mime == "" {
			mime = http.DetectContentType(in.Audio)
		}
		if !strings.HasPrefix(mime, "audio/") {
			return client.NewValidationError("Välj en ljudfil (WAV, MP3, etc.)")
		}
	default:
		return client.NewValidationError("Okänd indatatyp")
	}
	return nil
}

// RecordTitle is the title used for the created record: the explicit title
// when set, otherwise the file name without its extension.
func (in *Input) RecordTitle() string {
	if t := strings.TrimSpace(in.Title); t != "" {
		return t
	}
	name := filepath.Base(in.Filename)
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" || name == "." {
		return "Audio upload"
	}
	return name
}

// Run is one attempt to turn an input into a draft. It is owned exclusively
// by the orchestrator and exposed to callers only as Snapshot copies.
type Run struct {
	id             string
	input          Input
	productionMode bool

	eventID        string
	projectID      string
	transcriptID   string
	upload         *api.UploadAudioResponse
	transcriptText string
	cleanText      string
	approvalToken  string
	semanticRisk   string
	draft          *api.Draft

	tag      StateTag
	progress string
	err      *client.Error

	cancel context.CancelFunc
}

// Snapshot is an immutable view of a run after a transition.
type Snapshot struct {
	RunID          string
	State          StateTag
	Progress       string
	ProductionMode bool
	EventID        string
	ProjectID      string
	TranscriptID   string
	Upload         *api.UploadAudioResponse
	CleanText      string
	SemanticRisk   string
	Draft          *api.Draft
	Err            *client.Error
}

func (r *Run) snapshot() Snapshot {
	s := Snapshot{
		RunID:          r.id,
		State:          r.tag,
		Progress:       r.progress,
		ProductionMode: r.productionMode,
		EventID:        r.eventID,
		ProjectID:      r.projectID,
		TranscriptID:   r.transcriptID,
		CleanText:      r.cleanText,
		SemanticRisk:   r.semanticRisk,
	}
	if r.upload != nil {
		upload := *r.upload
		s.Upload = &upload
	}
	if r.draft != nil {
		draft := *r.draft
		draft.Citations = append([]api.Citation(nil), r.draft.Citations...)
		draft.PolicyViolations = append([]string(nil), r.draft.PolicyViolations...)
		s.Draft = &draft
	}
	if r.err != nil {
		errCopy := *r.err
		s.Err = &errCopy
	}
	return s
}

// bestText is the scrub input: the raw value for url/text input, the
// transcript text for audio once transcription completed.
func (r *Run) bestText() string {
	if r.input.Kind == api.InputTypeAudio {
		return r.transcriptText
	}
	return r.input.Value
}
