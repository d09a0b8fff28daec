// Package v1alpha1 holds the wire types exchanged with the copy-paste
// backend. Exact payload shapes follow the backend contract; ids are opaque
// strings on the client side.
package v1alpha1

// InputType selects how the raw editorial material is submitted.
type InputType string

const (
	InputTypeURL   InputType = "url"
	InputTypeText  InputType = "text"
	InputTypeAudio InputType = "audio"
)

// TranscriptStatus is the lifecycle status reported for a transcript.
type TranscriptStatus string

const (
	TranscriptStatusUploaded     TranscriptStatus = "uploaded"
	TranscriptStatusTranscribing TranscriptStatus = "transcribing"
	TranscriptStatusReady        TranscriptStatus = "ready"
	TranscriptStatusReviewed     TranscriptStatus = "reviewed"
	TranscriptStatusDeleted      TranscriptStatus = "deleted"
	TranscriptStatusError        TranscriptStatus = "error"
)

// Terminal reports whether no further transcript transition will occur.
func (s TranscriptStatus) Terminal() bool {
	switch s {
	case TranscriptStatusReady, TranscriptStatusReviewed, TranscriptStatusDeleted, TranscriptStatusError:
		return true
	}
	return false
}

// Succeeded reports whether the transcript reached a usable state.
func (s TranscriptStatus) Succeeded() bool {
	return s == TranscriptStatusReady || s == TranscriptStatusReviewed
}

type IngestRequest struct {
	InputType InputType `json:"input_type"`
	Value     string    `json:"value"`
}

type IngestResponse struct {
	EventID string `json:"event_id"`
}

type CreateRecordRequest struct {
	Title       string `json:"title"`
	ProjectID   string `json:"project_id,omitempty"`
	Sensitivity string `json:"sensitivity,omitempty"`
	Language    string `json:"language,omitempty"`
}

type CreateRecordResponse struct {
	ProjectID    string `json:"project_id"`
	TranscriptID string `json:"transcript_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
}

// UploadAudioResponse is the receipt returned once the audio bytes are
// stored. The checksum lets the caller verify the upload without the backend
// ever echoing content.
type UploadAudioResponse struct {
	Status    string `json:"status"`
	FileID    string `json:"file_id"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
}

type Transcript struct {
	ID     string           `json:"id"`
	Status TranscriptStatus `json:"status"`
	Text   string           `json:"text,omitempty"`
}

type ScrubRequest struct {
	EventID        string `json:"event_id"`
	ProductionMode bool   `json:"production_mode"`
}

// LegacyScrubRequest is the pre-versioned privacy endpoint shape. Mode is
// "strict" or "balanced" rather than a boolean.
type LegacyScrubRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

type ScrubResponse struct {
	CleanText        string `json:"clean_text"`
	ApprovalRequired bool   `json:"approval_required"`
	ApprovalToken    string `json:"approval_token,omitempty"`
	SemanticRisk     string `json:"semantic_risk,omitempty"`
}

type DraftRequest struct {
	EventID        string `json:"event_id"`
	CleanText      string `json:"clean_text"`
	ApprovalToken  string `json:"approval_token,omitempty"`
	ProductionMode bool   `json:"production_mode"`
}

type Citation struct {
	SourceID   string  `json:"source_id"`
	Excerpt    string  `json:"excerpt"`
	Confidence float64 `json:"confidence"`
}

// Draft is the final pipeline output. PolicyViolations are content-policy
// flags attached by the draft step, distinct from privacy violations.
type Draft struct {
	Text             string     `json:"text"`
	Citations        []Citation `json:"citations"`
	PolicyViolations []string   `json:"policy_violations"`
}
