// Package fallback runs an ordered chain of alternative data-acquisition
// stages until one yields results.
package fallback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/xwell/ptgen/internal/mediainfo"
)

// Stage is one attempt in a chain. Run returns the stage's results; a
// stage succeeds only when it returns at least one element. An error, a
// timeout, and an empty slice are all the same no-result outcome.
type Stage[T any] struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) ([]T, error)
}

// Resolve tries each stage in order and returns the first non-empty
// result set. Exhausting the chain yields a uniform not-found outcome,
// never a partial result and never a panic. Each stage gets its own
// deadline; a stage timing out surfaces to the next stage, not to the
// caller.
func Resolve[T any](ctx context.Context, log zerolog.Logger, stages []Stage[T]) ([]T, error) {
	for _, stage := range stages {
		if ctx.Err() != nil {
			break
		}
		results, err := runStage(ctx, stage)
		if err != nil {
			log.Debug().Err(err).Str("stage", stage.Name).Msg("fallback stage failed")
			continue
		}
		if len(results) == 0 {
			log.Debug().Str("stage", stage.Name).Msg("fallback stage empty")
			continue
		}
		return results, nil
	}
	return nil, mediainfo.NotFoundf("no results found / 未找到结果")
}

func runStage[T any](ctx context.Context, stage Stage[T]) (results []T, err error) {
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}
	// A panicking stage counts as a failed stage; the chain moves on.
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, mediainfo.Internalf("stage %s panicked: %v", stage.Name, r)
		}
	}()
	return stage.Run(ctx)
}

// One adapts a single-value producer into a chain stage, for resource
// fetches that degrade through alternative endpoints. A nil or failed
// record is a no-result outcome.
func One(name string, timeout time.Duration, run func(ctx context.Context) (*mediainfo.Record, error)) Stage[*mediainfo.Record] {
	return Stage[*mediainfo.Record]{
		Name:    name,
		Timeout: timeout,
		Run: func(ctx context.Context) ([]*mediainfo.Record, error) {
			rec, err := run(ctx)
			if err != nil {
				return nil, err
			}
			if rec == nil || !rec.Success {
				return nil, nil
			}
			return []*mediainfo.Record{rec}, nil
		},
	}
}

// ResolveOne runs a chain of One stages and unwraps the winner.
func ResolveOne(ctx context.Context, log zerolog.Logger, stages []Stage[*mediainfo.Record]) (*mediainfo.Record, error) {
	results, err := Resolve(ctx, log, stages)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
