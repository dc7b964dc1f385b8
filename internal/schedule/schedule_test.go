package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/technosupport/ppe-guard/internal/data"
)

type stubLoader struct {
	rows []data.CameraSchedule
	err  error
}

func (s *stubLoader) ListSchedules(ctx context.Context) ([]data.CameraSchedule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

type utcClock struct{}

func (utcClock) Location() *time.Location { return time.UTC }

func TestEvaluator_NoRowsMeansAlwaysOn(t *testing.T) {
	e := New(&stubLoader{}, utcClock{})
	assert.True(t, e.IsActiveNow(1))
}

func TestEvaluator_OnlyInactiveRowsMeansAlwaysOn(t *testing.T) {
	rows := []data.CameraSchedule{}
	for day := 0; day < 7; day++ {
		rows = append(rows, data.CameraSchedule{
			CCTVID: 1, DayOfWeek: day, IsActive: false,
			StartTime: midnight(), EndTime: midnight().Add(time.Hour),
		})
	}
	e := New(&stubLoader{rows: rows}, utcClock{})
	assert.NoError(t, e.Refresh(context.Background()))
	assert.True(t, e.IsActiveNow(1))
}

func TestEvaluator_FullDayWindowEveryDayIsAlwaysActive(t *testing.T) {
	rows := []data.CameraSchedule{}
	for day := 0; day < 7; day++ {
		rows = append(rows, data.CameraSchedule{
			CCTVID: 1, DayOfWeek: day, IsActive: true,
			StartTime: midnight(),
			EndTime:   midnight().Add(23*time.Hour + 59*time.Minute + 59*time.Second),
		})
	}
	e := New(&stubLoader{rows: rows}, utcClock{})
	assert.NoError(t, e.Refresh(context.Background()))
	assert.True(t, e.IsActiveNow(1))
}

func TestEvaluator_WindowOnlyOnNonExistentDayNeverMatches(t *testing.T) {
	rows := []data.CameraSchedule{
		{CCTVID: 1, DayOfWeek: 99, IsActive: true, StartTime: midnight(), EndTime: midnight().Add(23 * time.Hour)},
	}
	e := New(&stubLoader{rows: rows}, utcClock{})
	assert.NoError(t, e.Refresh(context.Background()))
	assert.False(t, e.IsActiveNow(1))
}

func midnight() time.Time {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
}
