package orchestration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-realtime/core/logsink"
	"github.com/koscakluka/ema-realtime/internal/utils"
)

const (
	DefaultMinRating = 1
	DefaultMaxRating = 5
)

// Rate logs a rating of a logged assistant turn as a separate feedback
// record and returns the record's event id. Rating the same turn again adds
// another record.
func (e *Engine) Rate(ctx context.Context, targetEventID string, rating int) (string, error) {
	if rating < e.ratingMin || rating > e.ratingMax {
		return "", fmt.Errorf("%w: %d not in %d..%d", ErrInvalidRating, rating, e.ratingMin, e.ratingMax)
	}

	var (
		eventID string
		rateErr error
	)
	if err := e.runtime.do(ctx, "rate", func(ctx context.Context) {
		if _, ok := e.assistantEvents[targetEventID]; !ok {
			rateErr = fmt.Errorf("%w: %q", ErrUnknownTarget, targetEventID)
			return
		}

		record := logsink.NewRecord(logsink.RoleFeedback, "feedback:"+uuid.NewString(),
			fmt.Sprintf("rated %d of %d", rating, e.ratingMax))
		record.Rating = utils.Ptr(rating)
		record.TargetEventID = targetEventID
		if e.sink.Submit(ctx, record) {
			eventID = record.EventID
		}
	}); err != nil {
		return "", err
	}
	return eventID, rateErr
}
