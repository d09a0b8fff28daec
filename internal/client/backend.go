package client

import (
	"context"
	"net/http"

	api "github.com/DanielWarg/copy-paste/api/v1alpha1"
)

// Backend is the client interface for the copy-paste backend. Every method
// returns a classified *Error as its error value on failure.
type Backend interface {
	// Ingest registers raw url/text input and yields a tracking event id.
	Ingest(ctx context.Context, inputType api.InputType, value string) (*api.IngestResponse, error)
	// CreateRecord creates a project + transcript shell before any audio bytes are sent.
	CreateRecord(ctx context.Context, req api.CreateRecordRequest) (*api.CreateRecordResponse, error)
	// UploadAudio uploads the audio payload against a transcript id.
	UploadAudio(ctx context.Context, transcriptID, filename string, data []byte) (*api.UploadAudioResponse, error)
	// GetTranscript fetches the transcript status (and text once available).
	GetTranscript(ctx context.Context, transcriptID string) (*api.Transcript, error)
	// Scrub runs the versioned privacy-scrub step.
	Scrub(ctx context.Context, req api.ScrubRequest) (*api.ScrubResponse, error)
	// ScrubLegacy runs the pre-versioned privacy endpoint, used as a bounded
	// fallback outside production mode.
	ScrubLegacy(ctx context.Context, req api.LegacyScrubRequest) (*api.ScrubResponse, error)
	// GenerateDraft produces the final draft from scrubbed text.
	GenerateDraft(ctx context.Context, req api.DraftRequest) (*api.Draft, error)
	// Health and Ready probe backend liveness and readiness.
	Health(ctx context.Context) error
	Ready(ctx context.Context) error
}

var _ Backend = (*backend)(nil)

type backend struct {
	transport *Transport
}

// New returns a live Backend from the given config.
func New(config *Config) Backend {
	return &backend{transport: NewTransport(config)}
}

func (b *backend) Ingest(ctx context.Context, inputType api.InputType, value string) (*api.IngestResponse, error) {
	resp, apiErr := b.transport.DoJSON(ctx, http.MethodPost, "/api/v1/ingest", api.IngestRequest{
		InputType: inputType,
		Value:     value,
	})
	if apiErr != nil {
		return nil, apiErr
	}
	out := &api.IngestResponse{}
	if err := resp.Decode(out); err != nil {
		return nil, decodeError(resp, err)
	}
	return out, nil
}

func (b *backend) CreateRecord(ctx context.Context, req api.CreateRecordRequest) (*api.CreateRecordResponse, error) {
	resp, apiErr := b.transport.DoJSON(ctx, http.MethodPost, "/api/v1/record/create", req)
	if apiErr != nil {
		return nil, apiErr
	}
	out := &api.CreateRecordResponse{}
	if err := resp.Decode(out); err != nil {
		return nil, decodeError(resp, err)
	}
	return out, nil
}

func (b *backend) UploadAudio(ctx context.Context, transcriptID, filename string, data []byte) (*api.UploadAudioResponse, error) {
	resp, apiErr := b.transport.DoMultipart(ctx, http.MethodPost, "/api/v1/record/"+transcriptID+"/audio", filename, data)
	if apiErr != nil {
		return nil, apiErr
	}
	out := &api.UploadAudioResponse{}
	if err := resp.Decode(out); err != nil {
		return nil, decodeError(resp, err)
	}
	return out, nil
}

func (b *backend) GetTranscript(ctx context.Context, transcriptID string) (*api.Transcript, error) {
	resp, apiErr := b.transport.DoJSON(ctx, http.MethodGet, "/api/v1/transcripts/"+transcriptID, nil)
	if apiErr != nil {
		return nil, apiErr
	}
	out := &api.Transcript{}
	if err := resp.Decode(out); err != nil {
		return nil, decodeError(resp, err)
	}
	return out, nil
}

func (b *backend) Scrub(ctx context.Context, req api.ScrubRequest) (*api.ScrubResponse, error) {
	resp, apiErr := b.transport.DoJSON(ctx, http.MethodPost, "/api/v1/privacy/scrub", req)
	if apiErr != nil {
		return nil, apiErr
	}
	out := &api.ScrubResponse{}
	if err := resp.Decode(out); err != nil {
		return nil, decodeError(resp, err)
	}
	return out, nil
}

func (b *backend) ScrubLegacy(ctx context.Context, req api.LegacyScrubRequest) (*api.ScrubResponse, error) {
	resp, apiErr := b.transport.DoJSON(ctx, http.MethodPost, "/api/v1/privacy/mask", req)
	if apiErr != nil {
		return nil, apiErr
	}
	out := &api.ScrubResponse{}
	if err := resp.Decode(out); err != nil {
		return nil, decodeError(resp, err)
	}
	return out, nil
}

func (b *backend) GenerateDraft(ctx context.Context, req api.DraftRequest) (*api.Draft, error) {
	resp, apiErr := b.transport.DoJSON(ctx, http.MethodPost, "/api/v1/draft/generate", req)
	if apiErr != nil {
		return nil, apiErr
	}
	out := &api.Draft{}
	if err := resp.Decode(out); err != nil {
		return nil, decodeError(resp, err)
	}
	return out, nil
}

func (b *backend) Health(ctx context.Context) error {
	_, apiErr := b.transport.DoJSON(ctx, http.MethodGet, "/health", nil)
	if apiErr != nil {
		return apiErr
	}
	return nil
}

func (b *backend) Ready(ctx context.Context) error {
	_, apiErr := b.transport.DoJSON(ctx, http.MethodGet, "/ready", nil)
	if apiErr != nil {
		return apiErr
	}
	return nil
}

func decodeError(resp *Response, err error) *Error {
	return &Error{
		Code:      CodeUnknown,
		Message:   userMessage(CodeUnknown, err.Error()),
		RequestID: resp.RequestID,
	}
}
