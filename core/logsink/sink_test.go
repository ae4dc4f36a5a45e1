package logsink

import (
	"context"
	"errors"
	"testing"

	"github.com/koscakluka/ema-realtime/core/ledger"
	"github.com/koscakluka/ema-realtime/internal/utils"
)

type manualDispatcher struct {
	pending []func()
}

func (d *manualDispatcher) Dispatch(ctx context.Context, _ string, work func(context.Context) func()) {
	d.pending = append(d.pending, func() {
		if continuation := work(ctx); continuation != nil {
			continuation()
		}
	})
}

func (d *manualDispatcher) runAll() {
	for len(d.pending) > 0 {
		next := d.pending[0]
		d.pending = d.pending[1:]
		next()
	}
}

type fakeDeliverer struct {
	fail      bool
	attempts  int
	delivered []LogRecord
}

func (d *fakeDeliverer) Deliver(_ context.Context, record LogRecord) error {
	d.attempts++
	if d.fail {
		return errors.New("network unreachable")
	}
	d.delivered = append(d.delivered, record)
	return nil
}

func deliveredIDs(d *fakeDeliverer) []string {
	ids := []string{}
	for _, record := range d.delivered {
		ids = append(ids, record.EventID)
	}
	return ids
}

func assertIDs(t *testing.T, got, expected []string) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("expected ids %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected ids %v, got %v", expected, got)
		}
	}
}

func TestSubmitDropsBlankAndDuplicateRecords(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	if sink.Submit(ctx, NewRecord(RoleUser, "evt_blank", "   ")) {
		t.Fatalf("expected blank record to be dropped")
	}
	if !sink.Submit(ctx, NewRecord(RoleUser, "evt_1", "hello")) {
		t.Fatalf("expected record to be accepted")
	}
	if sink.Submit(ctx, NewRecord(RoleUser, "evt_1", "hello again")) {
		t.Fatalf("expected duplicate record to be dropped")
	}
	dispatcher.runAll()

	assertIDs(t, deliveredIDs(deliverer), []string{"evt_1"})
	if deliverer.delivered[0].Content != "hello" {
		t.Fatalf("expected first submission to win, got %q", deliverer.delivered[0].Content)
	}
}

func TestBlankRecordDoesNotClaimEventID(t *testing.T) {
	ctx := context.Background()
	shared := ledger.New()
	sink := New(&fakeDeliverer{}, &manualDispatcher{}, WithLedger(shared))

	sink.Submit(ctx, NewRecord(RoleAssistant, "resp_1", ""))
	if shared.Has("resp_1") {
		t.Fatalf("expected blank record to leave the ledger untouched")
	}
}

func TestSubmitRejectsInvalidFeedback(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	missingRating := NewRecord(RoleFeedback, "fb_1", "rated")
	missingRating.TargetEventID = "resp_1"
	if sink.Submit(ctx, missingRating) {
		t.Fatalf("expected feedback without rating to be dropped")
	}

	valid := NewRecord(RoleFeedback, "fb_2", "rated 4")
	valid.TargetEventID = "resp_1"
	valid.Rating = utils.Ptr(4)
	if !sink.Submit(ctx, valid) {
		t.Fatalf("expected valid feedback to be accepted")
	}

	unknownRole := NewRecord(Role("narrator"), "evt_x", "text")
	if sink.Submit(ctx, unknownRole) {
		t.Fatalf("expected record with unknown role to be dropped")
	}

	dispatcher.runAll()
	assertIDs(t, deliveredIDs(deliverer), []string{"fb_2"})
}

func TestFailedDeliveryIsReplayedOnReconnect(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{fail: true}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	sink.Submit(ctx, NewRecord(RoleUser, "evt_1", "one"))
	sink.Submit(ctx, NewRecord(RoleAssistant, "evt_2", "two"))
	dispatcher.runAll()

	if got := sink.Pending(); got != 2 {
		t.Fatalf("expected two pending records, got %d", got)
	}

	deliverer.fail = false
	sink.SetOnline(ctx, false)
	sink.Submit(ctx, NewRecord(RoleUser, "evt_3", "three"))
	if len(dispatcher.pending) != 0 {
		t.Fatalf("expected offline submission to skip delivery")
	}

	sink.SetOnline(ctx, true)
	dispatcher.runAll()

	assertIDs(t, deliveredIDs(deliverer), []string{"evt_1", "evt_2", "evt_3"})
	if got := sink.Pending(); got != 0 {
		t.Fatalf("expected empty queue after replay, got %d", got)
	}

	sink.SetOnline(ctx, false)
	sink.SetOnline(ctx, true)
	dispatcher.runAll()
	assertIDs(t, deliveredIDs(deliverer), []string{"evt_1", "evt_2", "evt_3"})
}

func TestFlushStopsAtFirstFailureAndKeepsOrder(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	sink.SetOnline(ctx, false)
	for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
		sink.Submit(ctx, NewRecord(RoleSystem, id, id))
	}

	deliverer.fail = true
	sink.SetOnline(ctx, true)
	dispatcher.runAll()
	if deliverer.attempts != 1 {
		t.Fatalf("expected flush to stop after the first failure, got %d attempts", deliverer.attempts)
	}
	if got := sink.Pending(); got != 3 {
		t.Fatalf("expected all records to remain queued, got %d", got)
	}

	deliverer.fail = false
	sink.Flush(ctx)
	dispatcher.runAll()
	assertIDs(t, deliveredIDs(deliverer), []string{"evt_1", "evt_2", "evt_3"})
}

func TestFlushSkipsRecordsDeliveredElsewhere(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{}
	dispatcher := &manualDispatcher{}
	queue := NewMemoryQueue()
	sink := New(deliverer, dispatcher, WithQueue(queue))

	record := NewRecord(RoleUser, "evt_1", "hello")
	sink.Submit(ctx, record)
	dispatcher.runAll()

	if err := queue.Push(record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink.Flush(ctx)
	dispatcher.runAll()

	assertIDs(t, deliveredIDs(deliverer), []string{"evt_1"})
	if queue.Len() != 0 {
		t.Fatalf("expected skipped record to leave the queue")
	}
}

func TestIdentityFallsBackToUnknownAndIsRestampedOnReplay(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	sink.Submit(ctx, NewRecord(RoleUser, "evt_1", "hello"))
	dispatcher.runAll()
	if got := deliverer.delivered[0].UserID; got != UnknownIdentity {
		t.Fatalf("expected unknown identity before issuance, got %q", got)
	}

	deliverer.fail = true
	sink.Submit(ctx, NewRecord(RoleUser, "evt_2", "hi"))
	dispatcher.runAll()

	deliverer.fail = false
	sink.SetIdentity(ctx, Identity{UserID: "user_1", SessionID: "sess_1"})
	dispatcher.runAll()

	assertIDs(t, deliveredIDs(deliverer), []string{"evt_1", "evt_2"})
	replayed := deliverer.delivered[1]
	if replayed.UserID != "user_1" || replayed.SessionID != "sess_1" {
		t.Fatalf("expected replayed record to carry the issued identity, got %q/%q", replayed.UserID, replayed.SessionID)
	}
}

func TestFailedDeliveryHoldsLaterRecordsBehindIt(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{fail: true}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	sink.Submit(ctx, NewRecord(RoleUser, "item_1", "book a flight"))
	sink.Submit(ctx, NewRecord(RoleAssistant, "resp_1", "Sure, let me check."))
	dispatcher.runAll()

	if deliverer.attempts != 1 {
		t.Fatalf("expected delivery to stop after the first failure, got %d attempts", deliverer.attempts)
	}
	if got := sink.Pending(); got != 2 {
		t.Fatalf("expected both records queued, got %d", got)
	}
	if got := sink.InFlight(); got != 0 {
		t.Fatalf("expected empty outbox, got %d", got)
	}

	deliverer.fail = false
	sink.Flush(ctx)
	dispatcher.runAll()
	assertIDs(t, deliveredIDs(deliverer), []string{"item_1", "resp_1"})
}

func TestSubmitWaitsBehindPendingRecords(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{fail: true}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	sink.Submit(ctx, NewRecord(RoleUser, "item_1", "book a flight"))
	dispatcher.runAll()

	deliverer.fail = false
	sink.Submit(ctx, NewRecord(RoleAssistant, "resp_1", "Sure, let me check."))
	dispatcher.runAll()

	assertIDs(t, deliveredIDs(deliverer), []string{"item_1", "resp_1"})
	if got := sink.Pending(); got != 0 {
		t.Fatalf("expected empty queue, got %d", got)
	}
}

func TestGoingOfflineQueuesUnsentOutbox(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	sink.Submit(ctx, NewRecord(RoleUser, "item_1", "book a flight"))
	sink.Submit(ctx, NewRecord(RoleAssistant, "resp_1", "Sure, let me check."))
	sink.SetOnline(ctx, false)
	sink.Submit(ctx, NewRecord(RoleUser, "item_2", "thanks"))
	dispatcher.runAll()

	assertIDs(t, deliveredIDs(deliverer), []string{"item_1"})
	if got := sink.Pending(); got != 2 {
		t.Fatalf("expected two queued records, got %d", got)
	}

	sink.SetOnline(ctx, true)
	dispatcher.runAll()
	assertIDs(t, deliveredIDs(deliverer), []string{"item_1", "resp_1", "item_2"})
}

func TestSetIdentityIgnoresPartialIdentity(t *testing.T) {
	sink := New(&fakeDeliverer{}, &manualDispatcher{})
	sink.SetIdentity(context.Background(), Identity{UserID: "user_1"})
	if sink.Identity().Known() {
		t.Fatalf("expected partial identity to be ignored")
	}
}

func TestSubmitDeliversOneRecordAtATime(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{}
	dispatcher := &manualDispatcher{}
	sink := New(deliverer, dispatcher)

	sink.Submit(ctx, NewRecord(RoleUser, "evt_user", "book a flight"))
	sink.Submit(ctx, NewRecord(RoleAssistant, "evt_assistant", "Sure, let me check."))

	if got := len(dispatcher.pending); got != 1 {
		t.Fatalf("expected a single delivery in flight, got %d", got)
	}
	if got := sink.InFlight(); got != 2 {
		t.Fatalf("expected two records in flight, got %d", got)
	}

	dispatcher.runAll()
	assertIDs(t, deliveredIDs(deliverer), []string{"evt_user", "evt_assistant"})
	if got := sink.InFlight(); got != 0 {
		t.Fatalf("expected empty outbox, got %d", got)
	}
}
