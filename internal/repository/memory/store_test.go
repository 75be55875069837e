package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

var day = time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)

func TestInsertSessionIfAbsentReturnsStoredRow(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.InsertSessionIfAbsent(ctx, model.ClassSession{
				ID: string(rune('a' + i)), TemplateID: "evening", Date: day, Capacity: 2,
			})
			assert.NoError(t, err)
			ids[i] = got.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestSeatCountersStayInBounds(t *testing.T) {
	s := New()
	ctx := context.Background()
	ss, err := s.InsertSessionIfAbsent(ctx, model.ClassSession{ID: "s1", TemplateID: "evening", Date: day, Capacity: 2})
	require.NoError(t, err)

	require.NoError(t, s.IncrementBooked(ctx, ss.ID))
	require.NoError(t, s.IncrementBooked(ctx, ss.ID))
	assert.ErrorIs(t, s.IncrementBooked(ctx, ss.ID), repository.ErrSoldOut)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.DecrementBooked(ctx, ss.ID))
	}
	require.NoError(t, s.AdjustCheckedIn(ctx, ss.ID, -1))

	got, err := s.GetSession(ctx, ss.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount)
	assert.Equal(t, 0, got.CheckedInCount)
	assert.ErrorIs(t, s.IncrementBooked(ctx, "missing"), repository.ErrNotFound)
}

func TestBookingUniqueKeyAndTransitions(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := model.Booking{ID: "b1", StudentID: "ana", TemplateID: "evening", Date: day, Status: model.BookingReserved}
	require.NoError(t, s.InsertBooking(ctx, b))

	dup := b
	dup.ID = "b2"
	assert.ErrorIs(t, s.InsertBooking(ctx, dup), repository.ErrDuplicate)

	require.NoError(t, s.TransitionBooking(ctx, "b1", model.BookingReserved, model.BookingCancelled))
	assert.ErrorIs(t, s.TransitionBooking(ctx, "b1", model.BookingReserved, model.BookingCancelled), repository.ErrStaleState)
	assert.ErrorIs(t, s.TransitionBooking(ctx, "zz", model.BookingReserved, model.BookingCancelled), repository.ErrNotFound)

	found, err := s.FindBooking(ctx, "ana", "evening", day)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, found.Status)
}

func TestAttendanceBucketKeepsTotalPresent(t *testing.T) {
	s := New()
	ctx := context.Background()
	b, err := s.EnsureBucket(ctx, "ana", "dojo", "2025-03")
	require.NoError(t, err)
	again, err := s.EnsureBucket(ctx, "ana", "dojo", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, b.ID, again.ID)

	present := model.AttendanceRecord{ID: "r1", Date: day, TemplateID: "evening", Status: model.AttendancePresent}
	excused := model.AttendanceRecord{ID: "r2", Date: day, TemplateID: "late", Status: model.AttendanceExcused}
	require.NoError(t, s.AppendRecord(ctx, b.ID, present))
	require.NoError(t, s.AppendRecord(ctx, b.ID, excused))
	assert.ErrorIs(t, s.AppendRecord(ctx, b.ID, model.AttendanceRecord{ID: "r3", Date: day, TemplateID: "evening"}), repository.ErrDuplicate)

	got, _ := s.Bucket("ana", "2025-03")
	assert.Equal(t, 1, got.TotalPresent)
	assert.Equal(t, got.CountPresent(), got.TotalPresent)

	ref, err := s.LocateRecord(ctx, "ana", "evening", "2025-03", day)
	require.NoError(t, err)
	assert.Equal(t, "r1", ref.RecordID)
	assert.True(t, day.Equal(ref.Date))
	require.NoError(t, s.PullRecord(ctx, ref))
	assert.ErrorIs(t, s.PullRecord(ctx, ref), repository.ErrNotFound)

	got, _ = s.Bucket("ana", "2025-03")
	assert.Equal(t, 0, got.TotalPresent)
	assert.Len(t, got.Records, 1)

	_, err = s.LocateRecord(ctx, "ana", "evening", "2025-03", day)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestApplyPromotionComparesRank(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutStudent(model.Student{ID: "ana", RankState: model.RankState{Rank: model.Rank{Belt: "white"}}})
	entry := model.PromotionEntry{From: model.Rank{Belt: "white"}, To: model.Rank{Belt: "white", Degree: 1}, PromotedAt: day}

	require.NoError(t, s.ApplyPromotion(ctx, "ana", entry))
	assert.ErrorIs(t, s.ApplyPromotion(ctx, "ana", entry), repository.ErrStaleState)

	st, err := s.GetStudent(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, entry.To, st.RankState.Rank)
	assert.Len(t, st.RankState.History, 1)
}

func TestOutboxLeasing(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := day
	task := model.OutboxTask{ID: "t1", Kind: model.TaskEvaluateEligibility, StudentID: "ana", DedupeKey: "k", NextAttemptAt: now}
	require.NoError(t, s.EnqueueTask(ctx, task))
	dup := task
	dup.ID = "t2"
	require.NoError(t, s.EnqueueTask(ctx, dup))
	require.Len(t, s.Tasks(), 1)

	leased, err := s.LeaseTasks(ctx, "w1", 10, now, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 1)
	assert.Equal(t, 1, leased[0].Attempts)

	again, err := s.LeaseTasks(ctx, "w2", 10, now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "lease still held")

	stolen, err := s.LeaseTasks(ctx, "w2", 10, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	require.Len(t, stolen, 1)
	assert.ErrorIs(t, s.CompleteTask(ctx, "t1", "w1", now), repository.ErrStaleState)

	require.NoError(t, s.RetryTask(ctx, "t1", "w2", "broker down", now.Add(5*time.Minute), false))
	none, err := s.LeaseTasks(ctx, "w2", 10, now.Add(3*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)

	later, err := s.LeaseTasks(ctx, "w3", 10, now.Add(6*time.Minute), time.Minute)
	require.NoError(t, err)
	require.Len(t, later, 1)
	require.NoError(t, s.CompleteTask(ctx, "t1", "w3", now))
	assert.Equal(t, model.OutboxSucceeded, s.Tasks()[0].Status)
}
