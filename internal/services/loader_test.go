package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleTSV выгрузка GitHub Projects со старыми названиями колонок.
const sampleTSV = "Title\tAssignees\tStatus\tStart date\tEnd date\tIteration\tHours Completed\n" +
	"Design schema\taidancler24\tDone\tJan 1, 2024\tJan 5, 2024\tSprint 1\t5\n" +
	"Build loader\taidancler24, DiegoG185593\tIn Progress\tJan 3, 2024\tJan 10, 2024\tSprint 1\t3.5\n" +
	"Write docs\t\tTodo\tJan 2, 2024\tJan 4, 2024\tSprint 1\t\n" +
	"Plan demo\tDiegoG185593\tTodo\tJan 15, 2024\tJan 20, 2024\tSprint 2\t2\n" +
	"Backlog idea\tparkeramber\tTodo\t\t\t\t1\n"

const sampleTotalHours = 11.5

func testReportOpts(t *testing.T) ReportOpts {
	t.Helper()
	opts := DefaultReportOpts()
	opts.OutputDir = t.TempDir()
	opts.AssigneeAliases = []Alias{
		{Login: "aidancler24", Name: "Aidan"},
		{Login: "DiegoG185593", Name: "Diego"},
		{Login: "parkeramber", Name: "Amber"},
	}
	opts.SprintChart = ChartOpts{WidthInches: 4, HeightInches: 3}
	opts.AssigneeChart = ChartOpts{WidthInches: 4, HeightInches: 3}
	return opts
}

func TestLoaderLoad(t *testing.T) {
	l := NewLoader(testReportOpts(t), nil)

	tasks, err := l.Load(strings.NewReader(sampleTSV))
	require.NoError(t, err)
	require.Len(t, tasks, 5)

	titles := make([]string, len(tasks))
	for i, task := range tasks {
		titles[i] = task.Title
	}
	assert.Equal(t, []string{"Write docs", "Design schema", "Build loader", "Plan demo", "Backlog idea"}, titles)

	assert.Equal(t, "None", tasks[0].Assignees)
	assert.Equal(t, "Aidan", tasks[1].Assignees)
	assert.Equal(t, "Aidan, Diego", tasks[2].Assignees)
	assert.Equal(t, "Amber", tasks[4].Assignees)

	assert.Equal(t, "Sprint 1", tasks[2].Sprint)
	assert.Equal(t, "No Sprint", tasks[4].Sprint)

	assert.Equal(t, 3.5, tasks[2].HoursCompleted)
	assert.Zero(t, tasks[0].HoursCompleted)

	require.NotNil(t, tasks[1].Start)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), *tasks[1].Start)
	assert.Equal(t, 4, tasks[1].Duration())

	assert.Nil(t, tasks[4].Start)
	assert.Nil(t, tasks[4].End)
	assert.False(t, tasks[4].Dated())
	assert.Zero(t, tasks[4].Duration())
}

func TestLoaderCurrentHeaders(t *testing.T) {
	l := NewLoader(testReportOpts(t), nil)
	input := "\ufeffTask\tAssignees\tStart date\tEnd date\tSprint\tStatus\tHours Completed\n" +
		"Only row\tsomeone\tFeb 1, 2024\tFeb 1, 2024\t3\tDone\t1.25\n" +
		"\t\t\t\t\t\t\n"

	tasks, err := l.Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Only row", tasks[0].Title)
	assert.Equal(t, "3", tasks[0].Sprint)
	assert.Equal(t, "someone", tasks[0].Assignees)
	assert.Zero(t, tasks[0].Duration())
}

func TestLoaderInputErrors(t *testing.T) {
	header := "Title\tAssignees\tStatus\tStart date\tEnd date\tIteration\tHours Completed\n"

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{
			name:  "empty input",
			input: "",
			want:  ErrMissingColumn,
		},
		{
			name:  "missing status column",
			input: "Title\tAssignees\tStart date\tEnd date\tIteration\tHours Completed\n",
			want:  ErrMissingColumn,
		},
		{
			name:  "bad date",
			input: header + "A\tx\tTodo\t2024-01-01\tJan 5, 2024\tSprint 1\t1\n",
			want:  ErrInvalidDate,
		},
		{
			name:  "bad hours",
			input: header + "A\tx\tTodo\tJan 1, 2024\tJan 5, 2024\tSprint 1\tmany\n",
			want:  ErrInvalidHours,
		},
		{
			name:  "end before start",
			input: header + "A\tx\tTodo\tJan 5, 2024\tJan 1, 2024\tSprint 1\t1\n",
			want:  ErrNegativeDuration,
		},
	}

	l := NewLoader(testReportOpts(t), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsInputError(err))
		})
	}
}

func TestLoaderTooManyFields(t *testing.T) {
	l := NewLoader(testReportOpts(t), nil)
	input := "Title\tAssignees\tStatus\tStart date\tEnd date\tIteration\tHours Completed\n" +
		"A\tx\tTodo\tJan 1, 2024\tJan 5, 2024\tSprint 1\t1\textra\n"

	_, err := l.Load(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestLoaderLongestAliasFirst(t *testing.T) {
	opts := testReportOpts(t)
	opts.AssigneeAliases = []Alias{
		{Login: "ann", Name: "Ann"},
		{Login: "annabel", Name: "Annabel"},
	}
	l := NewLoader(opts, nil)
	input := "Title\tAssignees\tStatus\tStart date\tEnd date\tIteration\tHours Completed\n" +
		"A\tannabel, ann\tTodo\t\t\tSprint 1\t\n"

	tasks, err := l.Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Annabel, Ann", tasks[0].Assignees)
}

func TestLoaderLoadFile(t *testing.T) {
	l := NewLoader(testReportOpts(t), nil)

	_, err := l.LoadFile("")
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = l.LoadFile(filepath.Join(t.TempDir(), "missing.tsv"))
	assert.Error(t, err)
	assert.False(t, IsInputError(err))

	path := filepath.Join(t.TempDir(), "Gantt Chart.tsv")
	require.NoError(t, os.WriteFile(path, []byte(sampleTSV), 0o644))
	tasks, err := l.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, tasks, 5)
}
