package adminapi

import (
	"testing"

	"punchd/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWindow(t *testing.T) {
	ok := models.TimeWindow{PunchType: "CHECK_IN", StartTime: "06:00", EndTime: "10:00", DaysOfWeek: "0,1,2,3,4"}
	require.NoError(t, validateWindow(ok))

	tests := []struct {
		name string
		mut  func(*models.TimeWindow)
	}{
		{"bad punch type", func(w *models.TimeWindow) { w.PunchType = "LUNCH" }},
		{"not zero-padded", func(w *models.TimeWindow) { w.StartTime = "6:00" }},
		{"hour out of range", func(w *models.TimeWindow) { w.EndTime = "24:00" }},
		{"with seconds", func(w *models.TimeWindow) { w.StartTime = "06:00:00" }},
		{"weekday out of range", func(w *models.TimeWindow) { w.DaysOfWeek = "0,7" }},
		{"weekday not a number", func(w *models.TimeWindow) { w.DaysOfWeek = "mon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ok
			tt.mut(&w)
			assert.Error(t, validateWindow(w))
		})
	}
}

func TestOverlapWarnings(t *testing.T) {
	existing := []models.TimeWindow{
		{PunchType: "CHECK_IN", StartTime: "06:00", EndTime: "10:00", DaysOfWeek: "0,1,2,3,4", Priority: 1, IsActive: true},
		{PunchType: "CHECK_OUT", StartTime: "17:00", EndTime: "21:00", DaysOfWeek: "0,1,2,3,4", Priority: 2, IsActive: true},
	}
	existing[0].ID = 1
	existing[1].ID = 2

	// пересечение по времени и дням
	w := models.TimeWindow{PunchType: "OVERTIME_IN", StartTime: "09:00", EndTime: "12:00", DaysOfWeek: "0,1", Priority: 3}
	w.ID = 9
	warns := overlapWarnings(w, existing)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "window #1")

	// те же часы, но только выходные: общих дней нет
	w.DaysOfWeek = "5,6"
	assert.Empty(t, overlapWarnings(w, existing))

	// окно через полночь цепляет вечернее
	w = models.TimeWindow{PunchType: "OVERTIME_IN", StartTime: "20:00", EndTime: "02:00", DaysOfWeek: "", Priority: 3}
	w.ID = 9
	warns = overlapWarnings(w, existing)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "window #2")

	// неактивные окна не считаются
	existing[0].IsActive = false
	existing[1].IsActive = false
	assert.Empty(t, overlapWarnings(w, existing))
}

func TestRangesOverlap(t *testing.T) {
	assert.True(t, rangesOverlap("06:00", "10:00", "09:00", "12:00"))
	assert.True(t, rangesOverlap("06:00", "10:00", "10:00", "12:00"), "touching bounds count")
	assert.False(t, rangesOverlap("06:00", "10:00", "10:01", "12:00"))
	// overnight против утреннего хвоста
	assert.True(t, rangesOverlap("22:00", "06:00", "05:00", "08:00"))
	assert.False(t, rangesOverlap("22:00", "06:00", "10:00", "12:00"))
}

func TestDaysIntersect(t *testing.T) {
	assert.True(t, daysIntersect(nil, []int{3}), "empty means every day")
	assert.True(t, daysIntersect([]int{0, 1}, []int{1, 2}))
	assert.False(t, daysIntersect([]int{0, 1}, []int{5, 6}))
}
