package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/service"
)

type sent struct {
	queue string
	body  []byte
}

func testPublisher(fail error) (*Publisher, *[]sent) {
	var out []sent
	p := NewPublisher("amqp://unused", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	p.now = func() time.Time { return time.Date(2025, 3, 10, 21, 0, 0, 0, time.UTC) }
	p.send = func(_ context.Context, queue string, body []byte) error {
		out = append(out, sent{queue, body})
		return fail
	}
	return p, &out
}

func TestDispatchPublishesEligibilityRequested(t *testing.T) {
	p, out := testPublisher(nil)
	err := p.Dispatch(context.Background(), model.OutboxTask{
		ID: "t-1", Kind: model.TaskEvaluateEligibility, StudentID: "s-1", TenantID: "dojo-sp",
	})
	require.NoError(t, err)
	require.Len(t, *out, 1)
	assert.Equal(t, EligibilityQueue, (*out)[0].queue)

	ev, err := decodeRequest((*out)[0].body)
	require.NoError(t, err)
	assert.Equal(t, EligibilityRequested{TaskID: "t-1", StudentID: "s-1", TenantID: "dojo-sp", RequestedAt: "2025-03-10T21:00:00Z"}, ev)
}

func TestDispatchRejectsUnknownKind(t *testing.T) {
	p, out := testPublisher(nil)
	err := p.Dispatch(context.Background(), model.OutboxTask{ID: "t-1", Kind: "mystery"})
	assert.Error(t, err)
	assert.Empty(t, *out)
}

func TestNotifyEligibility(t *testing.T) {
	p, out := testPublisher(nil)
	require.NoError(t, p.NotifyEligibility(context.Background(), "s-1", model.Rank{Belt: "blue", Degree: 0}))
	require.Len(t, *out, 1)
	assert.Equal(t, EligibleQueue, (*out)[0].queue)

	var ev StudentEligible
	require.NoError(t, json.Unmarshal((*out)[0].body, &ev))
	assert.Equal(t, "blue", ev.NextBelt)
	assert.Equal(t, 0, ev.NextDegree)
}

func TestPublishErrorPropagates(t *testing.T) {
	boom := errors.New("broker down")
	p, _ := testPublisher(boom)
	err := p.NotifyEligibility(context.Background(), "s-1", model.Rank{Belt: "blue"})
	assert.ErrorIs(t, err, boom)
}

type fakeEvaluator struct {
	calls []string
	res   service.Eligibility
	err   error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, studentID string, _ service.Notifier) (service.Eligibility, error) {
	f.calls = append(f.calls, studentID)
	return f.res, f.err
}

func testConsumer(eval Evaluator) *Consumer {
	return NewConsumer("amqp://unused", eval, LogNotifier{Logger: slog.Default()}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestHandleEvaluatesStudent(t *testing.T) {
	eval := &fakeEvaluator{res: service.Eligibility{StudentID: "s-1", IsEligible: true}}
	c := testConsumer(eval)
	require.NoError(t, c.Handle(context.Background(), []byte(`{"task_id":"t-1","student_id":"s-1"}`)))
	assert.Equal(t, []string{"s-1"}, eval.calls)
}

func TestHandleDropsMissingStudent(t *testing.T) {
	eval := &fakeEvaluator{err: &service.Error{Op: "eligibility.Check", Kind: service.ErrNotFound, Message: "gone"}}
	c := testConsumer(eval)
	assert.NoError(t, c.Handle(context.Background(), []byte(`{"student_id":"s-9"}`)))
}

func TestHandleRejectsBadBodies(t *testing.T) {
	eval := &fakeEvaluator{}
	c := testConsumer(eval)
	assert.Error(t, c.Handle(context.Background(), []byte(`not json`)))
	assert.Error(t, c.Handle(context.Background(), []byte(`{"task_id":"t-1"}`)))
	assert.Empty(t, eval.calls)
}

func TestHandleSurfacesEvaluationFailure(t *testing.T) {
	boom := errors.New("db down")
	c := testConsumer(&fakeEvaluator{err: boom})
	assert.ErrorIs(t, c.Handle(context.Background(), []byte(`{"student_id":"s-1"}`)), boom)
}
