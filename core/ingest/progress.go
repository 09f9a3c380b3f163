package ingest

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
)

type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseInserting  Phase = "inserting"
	PhaseComplete   Phase = "complete"
)

// Event is one progress frame. The complete frame embeds the final Summary.
type Event struct {
	Phase    Phase  `json:"phase"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Done     int    `json:"done,omitempty"`
	Total    int    `json:"total,omitempty"`
	Error    string `json:"error,omitempty"`
	*Summary
}

// Sink consumes progress events in order. A Send error means the consumer is gone.
type Sink interface {
	Send(Event) error
}

type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error {
	return f(e)
}

// Discard drops every event; used for buffered (non-streaming) uploads.
var Discard Sink = SinkFunc(func(Event) error { return nil })

// Percent weighs a phase over 50 points offset by its base (0 for validation, 50 for insertion).
func Percent(done, total, base int) int {
	if total <= 0 {
		return base + 50
	}
	return base + int(math.Round(float64(done)/float64(total)*50))
}

// progress enforces event ordering: phases never go back, the percentage never decreases and complete is sent once.
type progress struct {
	ctx   context.Context
	sink  Sink
	phase Phase
	last  int
}

func newProgress(ctx context.Context, sink Sink) *progress {
	if sink == nil {
		sink = Discard
	}
	return &progress{ctx: ctx, sink: sink}
}

func phaseRank(p Phase) int {
	switch p {
	case PhaseValidating:
		return 1
	case PhaseInserting:
		return 2
	case PhaseComplete:
		return 3
	}
	return 0
}

func (p *progress) emit(e Event) error {
	if err := p.ctx.Err(); err != nil {
		return errors.Wrap(core.ErrConsumerGone, err.Error())
	}
	if p.phase == PhaseComplete || phaseRank(e.Phase) < phaseRank(p.phase) {
		return errors.Errorf("progress: %s event after %s", e.Phase, p.phase)
	}
	if e.Progress < p.last {
		e.Progress = p.last
	}
	if e.Progress > 100 {
		e.Progress = 100
	}
	p.phase, p.last = e.Phase, e.Progress

	if err := p.sink.Send(e); err != nil {
		return errors.Wrap(core.ErrConsumerGone, err.Error())
	}
	return nil
}

// IsConsumerGone reports whether err stems from a cancelled or disconnected progress consumer.
func IsConsumerGone(err error) bool {
	return errors.Cause(err) == core.ErrConsumerGone
}
