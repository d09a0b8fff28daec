// Package poller implements the transcript status polling loop. Transcription
// is a long-running backend job; the poller watches one transcript on a fixed
// cadence until it reaches a terminal status or the attempt budget runs out.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	api "github.com/DanielWarg/copy-paste/api/v1alpha1"
	"github.com/DanielWarg/copy-paste/internal/client"
)

const (
	// DefaultInterval and DefaultMaxAttempts bound the polling budget to
	// roughly two minutes. They are poller configuration, not per-call
	// parameters, so polling cost stays predictable.
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 60

	// A transcript may not be visible right after creation (read-after-write
	// lag), so not_found on the target is tolerated for the first attempts.
	notFoundGraceAttempts = 5
)

// ErrTimeout is returned when the attempt budget is exhausted without
// observing a terminal status.
var ErrTimeout = &client.Error{
	Code:    client.CodeTimeout,
	Message: "Transkribering tog för lång tid (timeout)",
}

// TranscriptGetter is the single backend operation the poller needs.
type TranscriptGetter interface {
	GetTranscript(ctx context.Context, transcriptID string) (*api.Transcript, error)
}

type Poller struct {
	getter      TranscriptGetter
	interval    time.Duration
	maxAttempts int
}

func New(getter TranscriptGetter) *Poller {
	return NewWithCadence(getter, DefaultInterval, DefaultMaxAttempts)
}

// NewWithCadence builds a poller with an explicit cadence. Production code
// uses New; tests shrink the interval.
func NewWithCadence(getter TranscriptGetter, interval time.Duration, maxAttempts int) *Poller {
	return &Poller{
		getter:      getter,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Poll fetches the transcript status until a terminal status is observed.
// onProgress, when non-nil, fires once per observed status change. The first
// fetch happens immediately; subsequent fetches wait one interval. Poll stops
// cleanly when ctx is cancelled and returns the terminal transcript snapshot
// otherwise, including for the failure statuses deleted and error — the
// caller decides what a terminal failure means.
func (p *Poller) Poll(ctx context.Context, transcriptID string, onProgress func(api.TranscriptStatus)) (*api.Transcript, error) {
	log := zap.S().Named("poller")

	ticker := jitterbug.New(p.interval, &jitterbug.Norm{Stdev: p.jitter()})
	defer ticker.Stop()

	var lastObserved api.TranscriptStatus
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		transcript, err := p.getter.GetTranscript(ctx, transcriptID)
		if err != nil {
			var apiErr *client.Error
			if errors.As(err, &apiErr) && apiErr.Code == client.CodeNotFound && attempt < notFoundGraceAttempts {
				log.Debugf("transcript not visible yet attempt=%d", attempt)
				if waitErr := wait(ctx, ticker); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}

		if transcript.Status != lastObserved {
			lastObserved = transcript.Status
			if onProgress != nil {
				onProgress(transcript.Status)
			}
		}

		if transcript.Status.Terminal() {
			log.Debugf("transcript terminal status=%s attempt=%d", transcript.Status, attempt)
			return transcript, nil
		}

		// uploaded, transcribing and unrecognized statuses all mean "not
		// done yet".
		if err := wait(ctx, ticker); err != nil {
			return nil, err
		}
	}

	log.Warnf("polling budget exhausted transcript=%s attempts=%d", transcriptID, p.maxAttempts)
	return nil, ErrTimeout
}

func wait(ctx context.Context, ticker *jitterbug.Ticker) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C:
		return nil
	}
}

// jitter keeps the tick spread small relative to the interval so short test
// cadences never produce a negative tick duration.
func (p *Poller) jitter() time.Duration {
	j := p.interval / 50
	if j > 30*time.Millisecond {
		j = 30 * time.Millisecond
	}
	return j
}
