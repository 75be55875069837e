package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/service"
)

// seedAttendance stores n present records for the student, one per day
// starting on first.
func seedAttendance(t *testing.T, f *fixture, studentID string, first string, n int) {
	t.Helper()
	ctx := context.Background()
	day := f.day(first)
	for i := 0; i < n; i++ {
		d := f.cal.AddDays(day, i)
		b, err := f.store.EnsureBucket(ctx, studentID, tenantID, f.cal.Month(d))
		require.NoError(t, err)
		require.NoError(t, f.store.AppendRecord(ctx, b.ID, model.AttendanceRecord{
			ID:         studentID + "-" + f.cal.Format(d),
			Date:       d,
			TemplateID: "evening",
			Status:     model.AttendancePresent,
			Method:     model.MethodTeacher,
			Snapshot:   model.ClassSnapshot{ClassName: "Adult Jiu-Jitsu", StartTime: "18:00", EndTime: "19:00"},
			RecordedAt: d,
		}))
	}
}

func TestEligibilityCountsClassesUntilThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutRule(model.GraduationRule{
		ID: "w0-w1", From: model.Rank{Belt: "white"}, To: model.Rank{Belt: "white", Degree: 1}, ClassesRequired: 30,
	})
	seedAttendance(t, f, "ana", "2025-01-06", 29)

	el, err := f.svc.Eligibility.CheckEligibility(ctx, "ana")
	require.NoError(t, err)
	assert.False(t, el.IsEligible)
	assert.Equal(t, 29, el.CountSoFar)
	assert.Equal(t, 30, el.Required)
	require.NotNil(t, el.NextRank)
	assert.Equal(t, model.Rank{Belt: "white", Degree: 1}, *el.NextRank)

	_, err = f.svc.Eligibility.Promote(ctx, "ana", "sensei")
	assert.ErrorIs(t, err, service.ErrNotEligible)
	assert.Contains(t, service.Message(err), "1 more class")

	f.setClock(monday + " 17:50")
	_, err = f.checkIn("ana", "evening")
	require.NoError(t, err)

	el, err = f.svc.Eligibility.CheckEligibility(ctx, "ana")
	require.NoError(t, err)
	assert.True(t, el.IsEligible)
	assert.Equal(t, 30, el.CountSoFar)

	promoted, err := f.svc.Eligibility.Promote(ctx, "ana", "sensei")
	require.NoError(t, err)
	assert.Equal(t, model.Rank{Belt: "white"}, promoted.Before)
	assert.Equal(t, model.Rank{Belt: "white", Degree: 1}, promoted.After)

	st, err := f.store.GetStudent(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, promoted.After, st.RankState.Rank)
	require.Len(t, st.RankState.History, 1)
	assert.Equal(t, "sensei", st.RankState.History[0].ApproverID)
	require.NotNil(t, st.RankState.LastPromotionDate)

	// No rule leaves white/1, so a second promotion is refused.
	_, err = f.svc.Eligibility.Promote(ctx, "ana", "sensei")
	assert.ErrorIs(t, err, service.ErrNotEligible)
}

func TestEligibilityCountsOnlySinceLastPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	promotedAt := f.day("2025-02-01")
	f.store.PutStudent(model.Student{
		ID: "dani", TenantID: tenantID, Name: "Dani", FinancialStatus: model.FinancialOK,
		JoinedAt: f.day("2024-01-01"),
		RankState: model.RankState{
			Rank:              model.Rank{Belt: "white", Degree: 1},
			LastPromotionDate: &promotedAt,
			History: []model.PromotionEntry{{
				From: model.Rank{Belt: "white"}, To: model.Rank{Belt: "white", Degree: 1}, PromotedAt: promotedAt,
			}},
		},
	})
	f.store.PutRule(model.GraduationRule{
		ID: "w1-w2", From: model.Rank{Belt: "white", Degree: 1}, To: model.Rank{Belt: "white", Degree: 2},
		ClassesRequired: 10, MinDaysRequired: 60,
	})
	seedAttendance(t, f, "dani", "2025-01-20", 20)

	el, err := f.svc.Eligibility.CheckEligibility(ctx, "dani")
	require.NoError(t, err)

	assert.Equal(t, 8, el.CountSoFar, "records from Feb 1 to Feb 8")
	assert.Equal(t, 37, el.DaysPassed)
	assert.Equal(t, 60, el.RequiredDays)
	assert.False(t, el.IsEligible)
}

func TestBeltChangeUsesBeltTenure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stripe := f.day("2025-02-01")
	f.store.PutRule(model.GraduationRule{
		ID: "w4-b0", From: model.Rank{Belt: "white", Degree: 4}, To: model.Rank{Belt: "blue"},
		ClassesRequired: 5, MinDaysRequired: 1,
	})
	f.store.PutBeltPolicy(model.BeltPolicy{Belt: "white", MinTenureDays: 365})
	for id, joined := range map[string]string{"eli": "2024-06-01", "fabi": "2023-06-01"} {
		f.store.PutStudent(model.Student{
			ID: id, TenantID: tenantID, Name: id, FinancialStatus: model.FinancialOK,
			JoinedAt: f.day(joined),
			RankState: model.RankState{
				Rank:              model.Rank{Belt: "white", Degree: 4},
				LastPromotionDate: &stripe,
				History: []model.PromotionEntry{{
					From: model.Rank{Belt: "white", Degree: 3}, To: model.Rank{Belt: "white", Degree: 4}, PromotedAt: stripe,
				}},
			},
		})
		seedAttendance(t, f, id, "2025-02-10", 5)
	}

	eli, err := f.svc.Eligibility.CheckEligibility(ctx, "eli")
	require.NoError(t, err)
	assert.Equal(t, 365, eli.RequiredDays)
	assert.Equal(t, 282, eli.DaysPassed)
	assert.False(t, eli.IsEligible)

	fabi, err := f.svc.Eligibility.CheckEligibility(ctx, "fabi")
	require.NoError(t, err)
	assert.True(t, fabi.IsEligible)

	list, err := f.svc.Eligibility.ListEligible(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fabi", list[0].StudentID)
}

func TestBeltTenureStartsWhenBeltWasReached(t *testing.T) {
	f := newFixture(t)
	reached := f.day("2024-12-01")
	stripe := f.day("2025-02-01")
	f.store.PutStudent(model.Student{
		ID: "gabi", TenantID: tenantID, Name: "Gabi", FinancialStatus: model.FinancialOK,
		JoinedAt: f.day("2020-01-01"),
		RankState: model.RankState{
			Rank:              model.Rank{Belt: "blue", Degree: 1},
			LastPromotionDate: &stripe,
			History: []model.PromotionEntry{
				{From: model.Rank{Belt: "white", Degree: 4}, To: model.Rank{Belt: "blue"}, PromotedAt: reached},
				{From: model.Rank{Belt: "blue"}, To: model.Rank{Belt: "blue", Degree: 1}, PromotedAt: stripe},
			},
		},
	})
	f.store.PutRule(model.GraduationRule{
		ID: "b1-p0", From: model.Rank{Belt: "blue", Degree: 1}, To: model.Rank{Belt: "purple"},
	})
	f.store.PutBeltPolicy(model.BeltPolicy{Belt: "blue", MinTenureDays: 700})

	el, err := f.svc.Eligibility.CheckEligibility(context.Background(), "gabi")
	require.NoError(t, err)

	assert.Equal(t, 99, el.DaysPassed)
	assert.Equal(t, 700, el.RequiredDays)
	assert.False(t, el.IsEligible)
}

func TestMinimumAgeNeedsKnownBirthDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutRule(model.GraduationRule{
		ID: "w0-w1", From: model.Rank{Belt: "white"}, To: model.Rank{Belt: "white", Degree: 1}, MinAge: 16,
	})

	el, err := f.svc.Eligibility.CheckEligibility(ctx, "ana")
	require.NoError(t, err)
	assert.False(t, el.AgeOK)
	assert.False(t, el.IsEligible)

	born := time.Date(2005, 6, 1, 0, 0, 0, 0, time.UTC)
	st, err := f.store.GetStudent(ctx, "ana")
	require.NoError(t, err)
	st.BirthDate = &born
	f.store.PutStudent(st)

	el, err = f.svc.Eligibility.CheckEligibility(ctx, "ana")
	require.NoError(t, err)
	assert.True(t, el.AgeOK)
	assert.True(t, el.IsEligible)
}

type recordingNotifier struct {
	calls []model.Rank
}

func (n *recordingNotifier) NotifyEligibility(_ context.Context, _ string, next model.Rank) error {
	n.calls = append(n.calls, next)
	return nil
}

func TestEvaluateNotifiesOnlyEligibleStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutRule(model.GraduationRule{
		ID: "w0-w1", From: model.Rank{Belt: "white"}, To: model.Rank{Belt: "white", Degree: 1}, ClassesRequired: 2,
	})
	seedAttendance(t, f, "ana", "2025-03-01", 2)
	n := &recordingNotifier{}

	_, err := f.svc.Eligibility.Evaluate(ctx, "carla", n)
	require.NoError(t, err)
	assert.Empty(t, n.calls)

	el, err := f.svc.Eligibility.Evaluate(ctx, "ana", n)
	require.NoError(t, err)
	assert.True(t, el.IsEligible)
	assert.Equal(t, []model.Rank{{Belt: "white", Degree: 1}}, n.calls)

	_, err = f.svc.Eligibility.Evaluate(ctx, "nobody", n)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestHighestRankHasNoNextRank(t *testing.T) {
	f := newFixture(t)

	el, err := f.svc.Eligibility.CheckEligibility(context.Background(), "ana")

	require.NoError(t, err)
	assert.Nil(t, el.NextRank)
	assert.False(t, el.IsEligible)
}
