package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dropstack/internal/storage"
)

// Best-effort call names, used as log and metric labels.
const (
	callStat         = "stat"
	callTag          = "tag"
	callCompensation = "compensation"
	callAudit        = "audit"
)

// sideCall is a call whose failure must never reach the caller of a lifecycle operation.
// It is only ever run through fire, which has no error result.
type sideCall struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	// fields annotates the failure log entry.
	fields func(e *zerolog.Event) *zerolog.Event
}

// fire runs call, logs and counts a failure, and returns nothing.
func (s *documentService) fire(ctx context.Context, call sideCall) {
	cctx, cancel := withTimeout(ctx, call.timeout)
	defer cancel()

	err := call.run(cctx)
	if err == nil {
		return
	}
	s.metrics.observeBestEffortFailure(call.name)
	ev := s.log.Warn()
	if call.name == callCompensation || call.name == callAudit {
		ev = s.log.Error()
	}
	if call.fields != nil {
		ev = call.fields(ev)
	}
	ev.Err(err).Str("call", call.name).Msg("best-effort call failed")
}

// statBestEffort returns the object's stat, or nil when the store could not report one.
func (s *documentService) statBestEffort(ctx context.Context, bucket, key string) *storage.ObjectStat {
	var st *storage.ObjectStat
	s.fire(ctx, sideCall{
		name:    callStat,
		timeout: s.timeouts.ObjectStore,
		run: func(ctx context.Context) error {
			got, err := s.store.Stat(ctx, bucket, key)
			if err != nil {
				return err
			}
			st = got
			return nil
		},
		fields: objectFields(bucket, key),
	})
	return st
}

func objectFields(bucket, key string) func(*zerolog.Event) *zerolog.Event {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Str("bucket", bucket).Str("object_key", key)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
