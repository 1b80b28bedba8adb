package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/GouthamSPC/Screenshot2/src/document"
	"github.com/GouthamSPC/Screenshot2/src/region"
	"github.com/GouthamSPC/Screenshot2/src/screenshot"
)

var testDisplays = []screenshot.Display{
	{Index: 0, X: 0, Y: 0, Width: 64, Height: 48},
	{Index: 1, X: 64, Y: 0, Width: 32, Height: 48},
	{Index: 2, X: -40, Y: 10, Width: 40, Height: 30},
}

// fakeSink writes a small PNG per call, sized like the requested region.
type fakeSink struct {
	saved []string
	fail  map[string]error
}

func (s *fakeSink) Save(r screenshot.Region, path string) error {
	for suffix, err := range s.fail {
		if strings.HasSuffix(path, suffix) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))); err != nil {
		return err
	}
	s.saved = append(s.saved, path)
	return nil
}

type recordingReporter struct {
	lines []string
}

func (r *recordingReporter) Info(format string, args ...any) {
	r.lines = append(r.lines, "INFO "+fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Warn(format string, args ...any) {
	r.lines = append(r.lines, "WARN "+fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Error(format string, args ...any) {
	r.lines = append(r.lines, "ERROR "+fmt.Sprintf(format, args...))
}

func (r *recordingReporter) contains(sub string) bool {
	for _, l := range r.lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

// stubConverter always succeeds by writing a sibling PDF.
type stubConverter struct {
	calls int
	err   error
}

func (c *stubConverter) Convert(ctx context.Context, docPath string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	pdf := strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".pdf"
	return pdf, os.WriteFile(pdf, []byte("%PDF-1.7"), 0o644)
}

type harness struct {
	tracker  *Tracker
	sink     *fakeSink
	reporter *recordingReporter
	conv     *stubConverter
	captured []string
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	h := &harness{sink: &fakeSink{}, reporter: &recordingReporter{}, conv: &stubConverter{}}
	h.tracker = New(settings, Options{
		Displays:   func() ([]screenshot.Display, error) { return testDisplays, nil },
		Sink:       h.sink,
		Converter:  h.conv,
		Reporter:   h.reporter,
		Now:        func() time.Time { return time.Date(2024, 3, 5, 14, 30, 9, 0, time.UTC) },
		OnCaptured: func(p string) { h.captured = append(h.captured, p) },
	})
	return h
}

func TestStartNewRequiresFolder(t *testing.T) {
	h := newHarness(t, Settings{})

	err := h.tracker.StartNew("  ", "Case", "v2")
	assert.ErrorIs(t, err, ErrFolderRequired)
	assert.Equal(t, Idle, h.tracker.State())
	assert.True(t, h.reporter.contains("output folder"))
}

func TestStartNewDefaults(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{})

	require.NoError(t, h.tracker.StartNew(dir, "", ""))
	assert.Equal(t, Active, h.tracker.State())
	assert.Equal(t, 1, h.tracker.Counter())
	assert.Equal(t, filepath.Join(dir, "Evidence_v1.docx"), h.tracker.DocumentPath())

	assert.ErrorIs(t, h.tracker.StartNew(dir, "", ""), ErrAlreadyActive)
}

func TestTriggerRequiresActiveSession(t *testing.T) {
	h := newHarness(t, Settings{})

	_, err := h.tracker.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Empty(t, h.sink.saved)
}

func TestAutoIncrementSequence(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{AutoIncrement: true, IncrementStep: 2})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))

	var seen []int
	for i := 0; i < 3; i++ {
		res, err := h.tracker.Trigger(context.Background())
		require.NoError(t, err)
		seen = append(seen, res.Counter)
	}
	assert.Equal(t, []int{1, 3, 5}, seen)
	assert.Equal(t, 7, h.tracker.Counter())
}

func TestCounterUnchangedWithoutAutoIncrement(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{IncrementStep: 5})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))

	for i := 0; i < 2; i++ {
		res, err := h.tracker.Trigger(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Counter)
	}
}

func TestMultipleMonitorsProduceOrderedRecordsAndPageBreak(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{Mode: region.ModeMultiple, Monitors: []int{2, 0}, AutoIncrement: true, IncrementStep: 1})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))
	h.tracker.SetDescription("login page")

	res, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, filepath.Join(dir, "Case_1_login_page_monitor_1.png"), res.Records[0].ImagePath)
	assert.Equal(t, filepath.Join(dir, "Case_1_login_page_monitor_3.png"), res.Records[1].ImagePath)
	for _, rec := range res.Records {
		assert.Equal(t, 1, rec.Counter)
		assert.Equal(t, "login page", rec.Description)
	}

	blocks := h.tracker.doc.Blocks()
	var kinds []document.BlockKind
	for _, b := range blocks {
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []document.BlockKind{
		document.KindParagraph, document.KindImage, document.KindParagraph,
		document.KindPageBreak,
		document.KindParagraph, document.KindImage, document.KindParagraph,
	}, kinds)
	assert.Equal(t, "Screenshot 1 (Monitor 1): login page", blocks[0].Text)
	assert.Equal(t, "Screenshot 1 (Monitor 3): login page", blocks[4].Text)
	assert.Equal(t, h.tracker.ImagePaths(), h.captured)
}

func TestMultipleWithNoSelectionIsNoop(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{Mode: region.ModeMultiple, AutoIncrement: true})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))

	_, err := h.tracker.Trigger(context.Background())
	assert.ErrorIs(t, err, region.ErrNoDisplaySelected)
	assert.Equal(t, 1, h.tracker.Counter())
	assert.Equal(t, Active, h.tracker.State())
	assert.Empty(t, h.tracker.Records())
	assert.True(t, h.reporter.contains("WARN Please select at least one monitor"))
}

func TestAllMonitorsCapturesBoundingRegion(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{Mode: region.ModeAll, Timestamp: true})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))
	h.tracker.SetDescription("home")

	res, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, filepath.Join(dir, "Case_1_home_20240305_143009_all_monitors.png"), res.Records[0].ImagePath)
	assert.Equal(t, "home_20240305_143009", res.Records[0].Description)
	assert.Equal(t, "Screenshot 1 (All Monitors): home_20240305_143009", h.tracker.doc.Blocks()[0].Text)

	f, err := os.Open(res.Records[0].ImagePath)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 136, cfg.Width)
	assert.Equal(t, 48, cfg.Height)
}

func TestRecordsMatchImagePathsAfterFailures(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{Mode: region.ModeMultiple, Monitors: []int{0, 1, 2}})
	h.sink.fail = map[string]error{"monitor_2.png": errors.New("disk full")}
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))

	res, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "capture", res.Errors[0].Stage)
	assert.Len(t, res.Records, 2)
	assert.Len(t, h.tracker.Records(), len(h.tracker.ImagePaths()))

	h.sink.fail = nil
	h.tracker.SetSettings(Settings{Mode: region.ModeSingle, Monitor: 1})
	res, err = h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Errors)

	records := h.tracker.Records()
	paths := h.tracker.ImagePaths()
	require.Len(t, records, len(paths))
	for i := range records {
		assert.Equal(t, paths[i], records[i].ImagePath)
	}
}

func TestEmbedFailureKeepsRecord(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))

	// A sink that "succeeds" without writing leaves nothing to embed.
	h.tracker.opts.Sink = saverFunc(func(screenshot.Region, string) error { return nil })

	res, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "embed", res.Errors[0].Stage)
	require.Len(t, res.Records, 1)
	assert.Len(t, h.tracker.ImagePaths(), 1)
	assert.True(t, strings.HasPrefix(h.tracker.doc.Blocks()[1].Text, document.PlaceholderPrefix))
}

type saverFunc func(screenshot.Region, string) error

func (f saverFunc) Save(r screenshot.Region, path string) error { return f(r, path) }

func TestSingleMonitorOutOfRange(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{Monitor: 9, AutoIncrement: true})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))

	res, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, h.sink.saved)
	assert.True(t, h.reporter.contains("Monitor 10 is not available"))
}

func TestMultipleMonitorsAllOutOfRange(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{Mode: region.ModeMultiple, Monitors: []int{4, 5}, Monitor: 0})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))

	res, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.True(t, h.reporter.contains("Monitors 5, 6 are not available"))
	assert.False(t, h.reporter.contains("Monitor 1 is not available"))
}

func TestResumeCounter(t *testing.T) {
	tests := []struct {
		name       string
		paragraphs []string
		want       int
		wantOK     bool
	}{
		{"plain caption", []string{"intro", "Screenshot 7: login page"}, 8, true},
		{"caption with monitor label", []string{"Screenshot 12 (Monitor 2): checkout", "", ""}, 13, true},
		{"caption with all monitors", []string{"Screenshot 3 (All Monitors): x", ""}, 4, true},
		{"placeholder after caption", []string{"Screenshot 4 (Monitor 1): a", document.PlaceholderPrefix + "bad image", ""}, 5, true},
		{"unparsable last paragraph", []string{"Screenshot 7: login page", "Summary of findings"}, 1, false},
		{"screenshot without number", []string{"Screenshot notes: none"}, 1, false},
		{"empty document", nil, 1, false},
		{"only blanks", []string{"", "  "}, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResumeCounter(tt.paragraphs)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestAppendToExistingResumesCounter(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "existing.docx")
	doc := document.New()
	doc.AddParagraph("Intro", document.AlignLeft)
	doc.AddParagraph("Screenshot 7: login page", document.AlignRight)
	require.NoError(t, doc.Save(docPath))

	h := newHarness(t, Settings{})
	require.NoError(t, h.tracker.AppendToExisting(docPath))
	assert.Equal(t, 8, h.tracker.Counter())
	assert.Equal(t, Active, h.tracker.State())

	_, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Evidence_8__monitor_1.png"), h.tracker.ImagePaths()[0])
}

func TestAppendToExistingUnparsableRestartsAtOne(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "existing.docx")
	doc := document.New()
	doc.AddParagraph("Meeting notes", document.AlignLeft)
	require.NoError(t, doc.Save(docPath))

	h := newHarness(t, Settings{OutputFolder: filepath.Join(dir, "shots")})
	require.NoError(t, h.tracker.AppendToExisting(docPath))
	assert.Equal(t, 1, h.tracker.Counter())
	assert.True(t, h.reporter.contains("numbering restarts at 1"))

	_, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shots"), filepath.Dir(h.tracker.ImagePaths()[0]))
}

func TestAppendToExistingOpenFailure(t *testing.T) {
	h := newHarness(t, Settings{})

	err := h.tracker.AppendToExisting(filepath.Join(t.TempDir(), "missing.docx"))
	assert.Error(t, err)
	assert.Equal(t, Idle, h.tracker.State())
}

func TestStopWithoutStart(t *testing.T) {
	h := newHarness(t, Settings{Spreadsheet: true, PDF: true})

	report, err := h.tracker.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Saved)
	assert.True(t, h.reporter.contains("No document to save"))
	assert.Zero(t, h.conv.calls)
}

func TestStopSavesAndExports(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	h := newHarness(t, Settings{Spreadsheet: true, PDF: true, DeleteImages: true, AutoIncrement: true})
	require.NoError(t, h.tracker.StartNew(out, "Case", "v3"))
	h.tracker.SetDescription("step")
	for i := 0; i < 2; i++ {
		_, err := h.tracker.Trigger(context.Background())
		require.NoError(t, err)
	}
	images := h.tracker.ImagePaths()

	report, err := h.tracker.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Saved)
	assert.Equal(t, Idle, h.tracker.State())
	assert.FileExists(t, filepath.Join(out, "Case_v3.docx"))

	require.NotNil(t, report.Spreadsheet)
	assert.Zero(t, report.Spreadsheet.Failed())
	f, err := excelize.OpenFile(filepath.Join(out, "Case_v3.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "2", rows[2][0])

	assert.Equal(t, filepath.Join(out, "Case_v3.pdf"), report.PDFPath)
	assert.Equal(t, 1, h.conv.calls)

	assert.Equal(t, 2, report.Deleted)
	for _, p := range images {
		assert.NoFileExists(t, p)
	}
	assert.Empty(t, h.tracker.Records())

	reopened, err := document.Open(filepath.Join(out, "Case_v3.docx"))
	require.NoError(t, err)
	next, ok := ResumeCounter(reopened.Paragraphs())
	assert.True(t, ok)
	assert.Equal(t, 3, next)

	_, err = h.tracker.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, h.reporter.contains("No document to save"))
}

func TestAppendSessionExtendsSpreadsheet(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{Spreadsheet: true, AutoIncrement: true, IncrementStep: 1})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))
	for i := 0; i < 3; i++ {
		_, err := h.tracker.Trigger(context.Background())
		require.NoError(t, err)
	}
	_, err := h.tracker.Stop(context.Background())
	require.NoError(t, err)

	docPath := filepath.Join(dir, "Case_v1.docx")
	require.NoError(t, h.tracker.AppendToExisting(docPath))
	assert.Equal(t, 4, h.tracker.Counter())
	_, err = h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	report, err := h.tracker.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Spreadsheet)
	assert.True(t, report.Spreadsheet.Appended)
	assert.True(t, h.reporter.contains("Spreadsheet updated with 1 new rows"))

	f, err := excelize.OpenFile(filepath.Join(dir, "Case_v1.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, want := range []string{"1", "2", "3", "4"} {
		assert.Equal(t, want, rows[i+1][0], "row %d", i+2)
	}
}

func TestStopKeepsDocumentAfterFailedSave(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{})
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))
	_, err := h.tracker.Trigger(context.Background())
	require.NoError(t, err)

	docPath := filepath.Join(dir, "Case_v1.docx")
	require.NoError(t, os.MkdirAll(filepath.Join(docPath, "blocker"), 0o755))

	_, err = h.tracker.Stop(context.Background())
	require.Error(t, err)
	assert.Equal(t, Idle, h.tracker.State())
	assert.True(t, h.tracker.HasDocument())
	assert.Len(t, h.tracker.Records(), 1)

	require.NoError(t, os.RemoveAll(docPath))
	report, err := h.tracker.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Saved)
	assert.False(t, h.tracker.HasDocument())
	assert.FileExists(t, docPath)
}

func TestStopSkipsPDFForAppendedDocument(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "existing.docx")
	require.NoError(t, document.New().Save(docPath))

	h := newHarness(t, Settings{PDF: true})
	require.NoError(t, h.tracker.AppendToExisting(docPath))
	report, err := h.tracker.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Saved)
	assert.Empty(t, report.PDFPath)
	assert.Zero(t, h.conv.calls)
}

func TestStopReportsPDFFailureWithoutRollback(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{PDF: true})
	h.conv.err = errors.New("soffice crashed")
	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))

	report, err := h.tracker.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Saved)
	assert.Error(t, report.PDFErr)
	assert.FileExists(t, filepath.Join(dir, "Case_v1.docx"))
}

func TestConvertToPDFLeavesDocumentUntouched(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Settings{})

	_, err := h.tracker.ConvertToPDF(context.Background())
	assert.ErrorIs(t, err, ErrNoSavedDocument)

	require.NoError(t, h.tracker.StartNew(dir, "Case", "v1"))
	_, err = h.tracker.Trigger(context.Background())
	require.NoError(t, err)
	_, err = h.tracker.Stop(context.Background())
	require.NoError(t, err)

	docPath := filepath.Join(dir, "Case_v1.docx")
	before, err := os.ReadFile(docPath)
	require.NoError(t, err)

	pdf, err := h.tracker.ConvertToPDF(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, pdf)

	after, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
