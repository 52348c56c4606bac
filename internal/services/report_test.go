package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

type fakeRecorder struct {
	mu   sync.Mutex
	runs []*models.ExportResult
	err  error
}

func (r *fakeRecorder) SaveRun(_ context.Context, res *models.ExportResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.runs = append(r.runs, res)
	return nil
}

func newTestReportService(t *testing.T, opts ReportOpts, recorder RunRecorder) *ReportService {
	t.Helper()
	s, err := NewReportService(opts, recorder, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, time.March, 1, 10, 0, 0, 0, time.Local) }
	return s
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Sprint ")
	require.NoError(t, err)
	assert.Equal(t, KindSprint, k)

	k, err = ParseKind("assignee")
	require.NoError(t, err)
	assert.Equal(t, KindAssignee, k)

	_, err = ParseKind("weekly")
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Equal(t, "gantt_chart_export_with_sprint_tables.xlsx", KindSprint.Workbook())
	assert.Equal(t, "gantt_chart_export_by_assignee_and_sprint.xlsx", KindAssignee.Workbook())
}

func TestReportSprintWorkbook(t *testing.T) {
	opts := testReportOpts(t)
	recorder := &fakeRecorder{}
	s := newTestReportService(t, opts, recorder)

	res, err := s.GenerateFrom(context.Background(), KindSprint, strings.NewReader(sampleTSV))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(opts.OutputDir, "export_2024-03-01"), res.Dir)
	assert.Equal(t, filepath.Join(res.Dir, "gantt_chart_export_with_sprint_tables.xlsx"), res.Workbook)
	assert.Equal(t, "sprint", res.Kind)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 5, res.Rows)
	assert.InDelta(t, sampleTotalHours, res.TotalHours, 1e-9)

	require.Len(t, recorder.runs, 1)
	assert.Same(t, res, recorder.runs[0])

	f := openWorkbook(t, res.Workbook)
	assert.Equal(t, []string{"Sprint 1", "Sprint 2", "No Sprint", StatusSummarySheet}, f.GetSheetList())

	rows, sheetHours := 0, 0.0
	for _, sheet := range res.Sheets {
		rows += sheet.Rows
		sheetHours += sheet.TotalHours

		totalRow := sheet.Rows + 2
		assert.Equal(t, "Total Hours", cellValue(t, f, sheet.Name, "F"+strconv.Itoa(totalRow)))
		assert.InDelta(t, sheet.TotalHours, cellFloat(t, f, sheet.Name, "G"+strconv.Itoa(totalRow)), 1e-9)
		assert.Equal(t, "TODO Count", cellValue(t, f, sheet.Name, "F"+strconv.Itoa(totalRow+2)))
	}
	assert.Equal(t, res.Rows, rows)
	assert.InDelta(t, res.TotalHours, sheetHours, 1e-9)

	assert.Equal(t, 8.5, cellFloat(t, f, "Sprint 1", "G5"))

	pics, err := f.GetPictures("Sprint 1", "I2")
	require.NoError(t, err)
	assert.Len(t, pics, 1)
	assert.FileExists(t, filepath.Join(res.Dir, "gantt_chart_Sprint_1.png"))

	// в строке без дат диаграмму рисовать не из чего
	pics, err = f.GetPictures("No Sprint", "I2")
	require.NoError(t, err)
	assert.Empty(t, pics)
	assert.Empty(t, res.Sheets[2].Image)

	assert.Equal(t, 3.0, cellFloat(t, f, StatusSummarySheet, "B2"))
	assert.Equal(t, 1.0, cellFloat(t, f, StatusSummarySheet, "B3"))
	assert.Equal(t, 1.0, cellFloat(t, f, StatusSummarySheet, "B4"))

	data, err := os.ReadFile(strings.TrimSuffix(res.Workbook, ".xlsx") + ".manifest.yaml")
	require.NoError(t, err)
	var manifest models.ExportResult
	require.NoError(t, yaml.Unmarshal(data, &manifest))
	assert.Equal(t, res.ID, manifest.ID)
	assert.Len(t, manifest.Sheets, 3)
}

func TestReportAssigneeWorkbook(t *testing.T) {
	opts := testReportOpts(t)
	s := newTestReportService(t, opts, nil)

	res, err := s.GenerateFrom(context.Background(), KindAssignee, strings.NewReader(sampleTSV))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(res.Dir, "gantt_chart_export_by_assignee_and_sprint.xlsx"), res.Workbook)
	assert.Equal(t, 5, res.Rows)

	f := openWorkbook(t, res.Workbook)
	assert.Equal(t, []string{
		"Team_Sprint_1",
		"Aidan_Sprint_1",
		"Amber_No_Sprint",
		"Diego_Sprint_1",
		"Diego_Sprint_2",
		MemberSummarySheet,
	}, f.GetSheetList())

	for _, sheet := range res.Sheets {
		totalRow := sheet.Rows + 2
		assert.InDelta(t, sheet.TotalHours, cellFloat(t, f, sheet.Name, "G"+strconv.Itoa(totalRow)), 1e-9)
		assert.Empty(t, cellValue(t, f, sheet.Name, "F"+strconv.Itoa(totalRow+2)))
	}

	assert.Equal(t, "Aidan, Diego", cellValue(t, f, "Diego_Sprint_1", "B2"))

	members, err := f.GetRows(MemberSummarySheet)
	require.NoError(t, err)
	require.Len(t, members, 5)
	assert.Equal(t, "Team", members[1][0])
}

func TestReportConfiguredMembers(t *testing.T) {
	opts := testReportOpts(t)
	opts.TeamMembers = []string{"Team", "Diego", "Nobody"}
	s := newTestReportService(t, opts, nil)

	res, err := s.GenerateFrom(context.Background(), KindAssignee, strings.NewReader(sampleTSV))
	require.NoError(t, err)

	names := make([]string, len(res.Sheets))
	for i, sheet := range res.Sheets {
		names[i] = sheet.Name
	}
	assert.Equal(t, []string{"Team_Sprint_1", "Diego_Sprint_1", "Diego_Sprint_2"}, names)
}

func TestReportGenerateFromConfiguredInput(t *testing.T) {
	opts := testReportOpts(t)
	s := newTestReportService(t, opts, nil)

	_, err := s.Generate(context.Background(), KindSprint)
	assert.ErrorIs(t, err, ErrNoInput)

	opts.InputPath = filepath.Join(t.TempDir(), "Gantt Chart.tsv")
	require.NoError(t, os.WriteFile(opts.InputPath, []byte(sampleTSV), 0o644))
	s = newTestReportService(t, opts, nil)
	assert.Equal(t, opts.InputPath, s.InputPath())

	res, err := s.Generate(context.Background(), KindSprint)
	require.NoError(t, err)
	assert.FileExists(t, res.Workbook)
}

func TestReportFailures(t *testing.T) {
	t.Run("bad input writes nothing", func(t *testing.T) {
		opts := testReportOpts(t)
		s := newTestReportService(t, opts, nil)

		bad := "Title\tAssignees\tStatus\tStart date\tEnd date\tIteration\tHours Completed\n" +
			"A\tx\tTodo\tJan 5, 2024\tJan 1, 2024\tSprint 1\t1\n"
		_, err := s.GenerateFrom(context.Background(), KindSprint, strings.NewReader(bad))
		require.Error(t, err)
		assert.True(t, IsInputError(err))

		entries, err := os.ReadDir(opts.OutputDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("unknown kind", func(t *testing.T) {
		s := newTestReportService(t, testReportOpts(t), nil)
		_, err := s.GenerateFrom(context.Background(), ReportKind("weekly"), strings.NewReader(sampleTSV))
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("canceled context", func(t *testing.T) {
		s := newTestReportService(t, testReportOpts(t), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.GenerateFrom(ctx, KindSprint, strings.NewReader(sampleTSV))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("recorder error", func(t *testing.T) {
		recErr := errors.New("db is down")
		s := newTestReportService(t, testReportOpts(t), &fakeRecorder{err: recErr})
		_, err := s.GenerateFrom(context.Background(), KindSprint, strings.NewReader(sampleTSV))
		assert.ErrorIs(t, err, recErr)
	})

	t.Run("bad palette", func(t *testing.T) {
		opts := testReportOpts(t)
		opts.SprintColors = []ColorRule{{Key: "Sprint 1", Color: "ultraviolet"}}
		_, err := NewReportService(opts, nil, nil)
		assert.Error(t, err)
	})
}

func TestReportHeaderOnlyInput(t *testing.T) {
	s := newTestReportService(t, testReportOpts(t), nil)
	header := "Title\tAssignees\tStatus\tStart date\tEnd date\tIteration\tHours Completed\n"

	res, err := s.GenerateFrom(context.Background(), KindSprint, strings.NewReader(header))
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Empty(t, res.Sheets)

	f := openWorkbook(t, res.Workbook)
	assert.Equal(t, []string{StatusSummarySheet}, f.GetSheetList())
}

func TestReportSprintLabelWithQuote(t *testing.T) {
	s := newTestReportService(t, testReportOpts(t), nil)
	input := "Title\tAssignees\tStatus\tStart date\tEnd date\tIteration\tHours Completed\n" +
		"Close quarter\taidancler24\tDone\tJan 1, 2024\tJan 5, 2024\tQ1'\t2\n"

	res, err := s.GenerateFrom(context.Background(), KindSprint, strings.NewReader(input))
	require.NoError(t, err)

	f := openWorkbook(t, res.Workbook)
	assert.Equal(t, []string{"Sprint Q1", StatusSummarySheet}, f.GetSheetList())
}

func TestReportImagePerSheet(t *testing.T) {
	s := newTestReportService(t, testReportOpts(t), nil)
	input := "Title\tAssignees\tStatus\tStart date\tEnd date\tIteration\tHours Completed\n" +
		"First\taidancler24\tDone\tJan 1, 2024\tJan 5, 2024\tA B\t1\n" +
		"Second\taidancler24\tTodo\tJan 6, 2024\tJan 9, 2024\tA_B\t2\n"

	res, err := s.GenerateFrom(context.Background(), KindSprint, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Sheets, 2)
	assert.Equal(t, "Sprint A B", res.Sheets[0].Name)
	assert.Equal(t, "Sprint A_B", res.Sheets[1].Name)

	assert.Equal(t, filepath.Join(res.Dir, "gantt_chart_Sprint_A_B.png"), res.Sheets[0].Image)
	assert.Equal(t, filepath.Join(res.Dir, "gantt_chart_Sprint_A_B~2.png"), res.Sheets[1].Image)
	assert.FileExists(t, res.Sheets[0].Image)
	assert.FileExists(t, res.Sheets[1].Image)

	pngs, err := filepath.Glob(filepath.Join(res.Dir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 2)
}

func TestFileSafe(t *testing.T) {
	assert.Equal(t, "Aidan_Sprint_1", fileSafe("Aidan Sprint/1"))
	assert.Equal(t, "a_b_c", fileSafe("a:b?c"))
}

func TestUniqueFileName(t *testing.T) {
	used := make(map[string]bool)
	assert.Equal(t, "Sprint_1", uniqueFileName(used, "Sprint_1"))
	assert.Equal(t, "sprint_1~2", uniqueFileName(used, "sprint_1"))
	assert.Equal(t, "Sprint_1~3", uniqueFileName(used, "Sprint_1"))
	assert.Equal(t, "Sprint_2", uniqueFileName(used, "Sprint_2"))
}
