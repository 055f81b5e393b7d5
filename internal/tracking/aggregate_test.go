package tracking

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"taskline/internal/domain"
)

func TestGroupBySubtask(t *testing.T) {
	subs := []domain.Subtask{{ID: "s1", Name: "Design"}, {ID: "s2", Name: "Build"}}
	logs := []domain.TimeLog{
		{SubtaskID: strp("s1"), UserID: "ana", Date: "2024-03-11", Duration: 2},
		{UserID: "ana", Date: "2024-03-11", Duration: 0.5},
		{SubtaskID: strp("s1"), UserID: "bo", Date: "2024-03-12", Duration: 1},
	}
	got := GroupBySubtask(logs, subs)
	want := []SubtaskGroup{
		{SubtaskID: "s1", Name: "Design", TotalHours: 3, Entries: []EntryLine{
			{Date: "2024-03-11", UserID: "ana", Hours: 2},
			{Date: "2024-03-12", UserID: "bo", Hours: 1},
		}},
		{Name: OtherWorkLabel, TotalHours: 0.5, Entries: []EntryLine{
			{Date: "2024-03-11", UserID: "ana", Hours: 0.5},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeOverBudget(t *testing.T) {
	task := domain.Task{PlannedHours: 2, Progress: 40, TimeLogs: []domain.TimeLog{{Duration: 3, Date: "2024-03-11"}}}
	s := Summarize(task)
	assert.True(t, s.IsOverBudget)
	assert.Equal(t, -1.0, s.Remaining)
	assert.Equal(t, 3.0, s.TotalSpent)

	task.PlannedHours = 0
	s = Summarize(task)
	assert.False(t, s.IsOverBudget)
}

func TestWeekBounds(t *testing.T) {
	for _, day := range []int{11, 13, 17} {
		mon, sun := WeekBounds(time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC))
		assert.Equal(t, "2024-03-11", FormatDate(mon))
		assert.Equal(t, "2024-03-17", FormatDate(sun))
	}
}

func TestResolveRange(t *testing.T) {
	from, to, err := ResolveRange(today, "", "")
	assert.NoError(t, err)
	assert.Equal(t, "2024-03-11", from)
	assert.Equal(t, "2024-03-17", to)

	from, to, err = ResolveRange(today, "2024-02-01", "")
	assert.NoError(t, err)
	assert.Equal(t, "2024-02-01", from)
	assert.Equal(t, "2024-02-07", to)

	_, _, err = ResolveRange(today, "2024-02-10", "2024-02-01")
	assert.Error(t, err)
}

func TestWeekly(t *testing.T) {
	logs := []domain.TimeLog{
		{TaskID: "t1", UserID: "ana", Date: "2024-03-11", Duration: 2},
		{TaskID: "t1", UserID: "ana", Date: "2024-03-12", Duration: 1.5},
		{TaskID: "t2", UserID: "ana", Date: "2024-03-12", Duration: 1},
		{TaskID: "t2", UserID: "bo", Date: "2024-03-12", Duration: 4},
		{TaskID: "t3", UserID: "ana", Date: "2024-03-18", Duration: 8},
	}
	got := Weekly("ana", "2024-03-11", "2024-03-17", logs, map[string]string{"t1": "Alpha", "t2": "Beta"})
	want := WeeklySummary{
		UserID: "ana", DateFrom: "2024-03-11", DateTo: "2024-03-17",
		TotalHours: 4.5, DaysWorked: 2, TasksWorked: 2,
		Details: []TaskHours{
			{TaskID: "t1", Task: "Alpha", Hours: 3.5, Entries: 2},
			{TaskID: "t2", Task: "Beta", Hours: 1, Entries: 1},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("weekly mismatch (-want +got):\n%s", diff)
	}
}

func TestDisplayHelpers(t *testing.T) {
	assert.Equal(t, "[Alpha] Design", DisplayName("Alpha", "Design", "sketching"))
	assert.Equal(t, "[Alpha] sketching", DisplayName("Alpha", "", "sketching"))
	assert.Equal(t, "Task: Alpha | Subtask: Design | Work: sketching | Time: 01:30",
		WorkSummary("Alpha", "Design", "sketching", 1.5))
	assert.Equal(t, 7, DaysToDeadline(strp("2024-03-20T09:00:00Z"), today))
	assert.Equal(t, -3, DaysToDeadline(strp("2024-03-10"), today))
	assert.Equal(t, 0, DaysToDeadline(nil, today))
}
