// Package session owns one capture session: the counter policy, the document
// being built and the records that feed the export stage on stop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/GouthamSPC/Screenshot2/src/document"
	"github.com/GouthamSPC/Screenshot2/src/export"
	"github.com/GouthamSPC/Screenshot2/src/record"
	"github.com/GouthamSPC/Screenshot2/src/region"
	"github.com/GouthamSPC/Screenshot2/src/screenshot"
)

const (
	DefaultCaseName = "Evidence"
	DefaultVersion  = "v1"
)

var (
	ErrFolderRequired  = errors.New("output folder is required")
	ErrNotActive       = errors.New("capture is not active")
	ErrAlreadyActive   = errors.New("capture is already active")
	ErrNoSavedDocument = export.ErrNoDocument
)

// State is the tracker's position in the IDLE -> ACTIVE -> IDLE cycle.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Settings are the per-run choices that shape each trigger and the stop.
type Settings struct {
	OutputFolder  string
	CaseName      string
	Mode          region.Mode
	Monitor       int
	Monitors      []int
	Timestamp     bool
	AutoIncrement bool
	IncrementStep int
	DeleteImages  bool
	Spreadsheet   bool
	PDF           bool
}

func (s Settings) selection() region.Selection {
	return region.Selection{Mode: s.Mode, Single: s.Monitor, Multiple: s.Monitors}
}

// Saver writes one captured region to an image file.
type Saver interface {
	Save(r screenshot.Region, path string) error
}

// Reporter shows status lines to the user.
type Reporter interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Options are the collaborators of a Tracker. Zero values select the real
// display enumeration, screen capture, soffice and log output.
type Options struct {
	Displays   func() ([]screenshot.Display, error)
	Sink       Saver
	Converter  export.PDFConverter
	Reporter   Reporter
	Now        func() time.Time
	OnCaptured func(imagePath string)
}

// ItemError is a per-image failure that did not stop the operation.
type ItemError struct {
	Stage     string // capture, embed, delete
	ImagePath string
	Err       error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.ImagePath, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// TriggerResult describes one capture trigger.
type TriggerResult struct {
	Counter int
	Records []record.Record
	Errors  []ItemError
}

// StopReport describes what Stop wrote.
type StopReport struct {
	DocumentPath   string
	Saved          bool
	Spreadsheet    *export.SheetReport
	SpreadsheetErr error
	PDFPath        string
	PDFErr         error
	Deleted        int
	DeleteErrors   []ItemError
}

// Tracker is not safe for concurrent use; the event loop owns it.
type Tracker struct {
	settings Settings
	opts     Options

	state       State
	counter     int
	caseName    string
	description string
	docPath     string
	sheetPath   string
	imageDir    string
	newDoc      bool
	doc         *document.Document
	records     []record.Record
	imagePaths  []string
	lastDocPath string
}

// New returns an idle tracker.
func New(settings Settings, opts Options) *Tracker {
	if opts.Displays == nil {
		opts.Displays = screenshot.Displays
	}
	if opts.Sink == nil {
		opts.Sink = screenshot.NewSink()
	}
	if opts.Converter == nil {
		opts.Converter = export.NewOfficeConverter("")
	}
	if opts.Reporter == nil {
		opts.Reporter = logReporter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{settings: normalize(settings), opts: opts, counter: 1}
}

func normalize(s Settings) Settings {
	if s.IncrementStep < 1 {
		s.IncrementStep = 1
	}
	s.OutputFolder = strings.TrimSpace(s.OutputFolder)
	s.CaseName = strings.TrimSpace(s.CaseName)
	return s
}

func (t *Tracker) State() State { return t.state }
func (t *Tracker) Counter() int { return t.counter }
func (t *Tracker) Settings() Settings { return t.settings }
func (t *Tracker) DocumentPath() string { return t.docPath }
func (t *Tracker) Description() string { return t.description }
func (t *Tracker) LastSavedPath() string { return t.lastDocPath }

// HasDocument reports whether a document is held in memory, either for the
// active session or because its last save failed.
func (t *Tracker) HasDocument() bool { return t.doc != nil }

// Records returns a copy of the records captured since the session started.
func (t *Tracker) Records() []record.Record {
	return append([]record.Record(nil), t.records...)
}

// ImagePaths returns a copy of the image files written this session.
func (t *Tracker) ImagePaths() []string {
	return append([]string(nil), t.imagePaths...)
}

// SetSettings replaces the settings. Mode and monitor changes apply to the
// next trigger; folder and case changes apply to the next session.
func (t *Tracker) SetSettings(s Settings) {
	t.settings = normalize(s)
}

// SetDescription sets the text used in captions and filenames.
func (t *Tracker) SetDescription(desc string) {
	t.description = strings.TrimSpace(desc)
}

// StartNew begins a session writing a new document {folder}/{case}_{version}.docx.
func (t *Tracker) StartNew(folder, caseName, version string) error {
	if t.state == Active {
		t.opts.Reporter.Warn("Capture already running. Stop it before starting a new one.")
		return ErrAlreadyActive
	}
	folder = strings.TrimSpace(folder)
	if folder == "" {
		folder = t.settings.OutputFolder
	}
	if folder == "" {
		t.opts.Reporter.Warn("Please choose an output folder.")
		return ErrFolderRequired
	}
	caseName = strings.TrimSpace(caseName)
	if caseName == "" {
		caseName = DefaultCaseName
	}
	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultVersion
	}

	base := filepath.Join(folder, caseName+"_"+version)
	t.begin(document.New(), base+".docx", folder, caseName)
	t.newDoc = true
	t.counter = 1

	log.Printf("Started new capture. Document path: %s, spreadsheet path: %s", t.docPath, t.sheetPath)
	t.opts.Reporter.Info("Capture started (new document): %s", t.docPath)
	return nil
}

// AppendToExisting begins a session that appends to the document at path.
// The counter resumes after the last "Screenshot N" caption, or at 1.
func (t *Tracker) AppendToExisting(path string) error {
	if t.state == Active {
		t.opts.Reporter.Warn("Capture already running. Stop it before appending to another document.")
		return ErrAlreadyActive
	}
	doc, err := document.Open(path)
	if err != nil {
		t.opts.Reporter.Error("Could not open document: %v", err)
		return err
	}

	imageDir := t.settings.OutputFolder
	if imageDir == "" {
		imageDir = filepath.Dir(path)
	}
	caseName := t.settings.CaseName
	if caseName == "" {
		caseName = DefaultCaseName
	}
	t.begin(doc, path, imageDir, caseName)
	t.newDoc = false

	next, ok := ResumeCounter(doc.Paragraphs())
	t.counter = next
	if !ok {
		t.opts.Reporter.Warn("No screenshot caption found at the end of %s; numbering restarts at 1.", filepath.Base(path))
	}

	log.Printf("Appending to existing document: %s (next screenshot %d)", path, t.counter)
	t.opts.Reporter.Info("Capture started (appending to %s)", filepath.Base(path))
	return nil
}

func (t *Tracker) begin(doc *document.Document, docPath, imageDir, caseName string) {
	t.doc = doc
	t.docPath = docPath
	t.sheetPath = strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".xlsx"
	t.imageDir = imageDir
	t.caseName = caseName
	t.records = nil
	t.imagePaths = nil
	t.state = Active
}

var captionPattern = regexp.MustCompile(`Screenshot\s+(\d+)(?:\s*\([^)]*\))?\s*:`)

// ResumeCounter returns the counter following the caption in the last
// non-empty paragraph. Image placeholders are skipped. ok is false when no
// caption is found, in which case the counter restarts at 1.
func ResumeCounter(paragraphs []string) (next int, ok bool) {
	for i := len(paragraphs) - 1; i >= 0; i-- {
		text := strings.TrimSpace(paragraphs[i])
		if text == "" || strings.HasPrefix(text, document.PlaceholderPrefix) {
			continue
		}
		m := captionPattern.FindStringSubmatch(text)
		if m == nil {
			return 1, false
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 1, false
		}
		return n + 1, true
	}
	return 1, false
}

// Trigger captures the regions for the current mode and appends each to the
// document. All images of one trigger share the counter; the counter advances
// afterwards when auto-increment is on.
func (t *Tracker) Trigger(ctx context.Context) (TriggerResult, error) {
	if t.state != Active || t.doc == nil {
		return TriggerResult{}, ErrNotActive
	}
	if err := ctx.Err(); err != nil {
		return TriggerResult{}, err
	}

	res := TriggerResult{Counter: t.counter}

	displays, err := t.opts.Displays()
	if err != nil {
		t.opts.Reporter.Error("Could not enumerate displays: %v", err)
		return res, fmt.Errorf("enumerating displays: %w", err)
	}
	targets, err := region.Resolve(displays, t.settings.selection())
	if err != nil {
		if errors.Is(err, region.ErrNoDisplaySelected) {
			t.opts.Reporter.Warn("Please select at least one monitor in multiple-monitor mode.")
		} else {
			t.opts.Reporter.Error("Capture failed: %v", err)
		}
		return res, err
	}
	if len(targets) == 0 {
		t.warnUnavailable()
	}

	var ts time.Time
	if t.settings.Timestamp {
		ts = t.opts.Now()
	}
	desc := screenshot.StampDescription(t.description, ts)
	pageBreak := t.settings.Mode == region.ModeMultiple

	for _, target := range targets {
		name := screenshot.FileName(screenshot.NameParts{
			CaseName:    t.caseName,
			Counter:     t.counter,
			Description: t.description,
			Timestamp:   ts,
			Suffix:      target.Suffix,
		})
		path := filepath.Join(t.imageDir, name)

		if err := t.opts.Sink.Save(target.Region, path); err != nil {
			t.opts.Reporter.Error("Screenshot of %s failed: %v", target.Label, err)
			res.Errors = append(res.Errors, ItemError{Stage: "capture", ImagePath: path, Err: err})
			continue
		}

		caption := fmt.Sprintf("Screenshot %d (%s): %s", t.counter, target.Label, desc)
		if appended := t.doc.AppendCaptioned(path, caption, pageBreak); appended.Err != nil {
			t.opts.Reporter.Warn("Image %s could not be embedded: %v", filepath.Base(path), appended.Err)
			res.Errors = append(res.Errors, ItemError{Stage: "embed", ImagePath: path, Err: appended.Err})
		}

		rec := record.Record{Counter: t.counter, Description: desc, ImagePath: path}
		t.records = append(t.records, rec)
		t.imagePaths = append(t.imagePaths, path)
		res.Records = append(res.Records, rec)
		log.Printf("Captured %s: %s", target.Label, path)

		if t.opts.OnCaptured != nil {
			t.opts.OnCaptured(path)
		}
	}

	if len(res.Records) > 0 {
		t.opts.Reporter.Info("Screenshot %d captured and added to document.", t.counter)
	}
	if t.settings.AutoIncrement {
		t.counter += t.settings.IncrementStep
	}
	return res, nil
}

func (t *Tracker) warnUnavailable() {
	if t.settings.Mode != region.ModeMultiple {
		t.opts.Reporter.Warn("Monitor %d is not available.", t.settings.Monitor+1)
		return
	}
	names := make([]string, 0, len(t.settings.Monitors))
	for _, m := range t.settings.Monitors {
		names = append(names, strconv.Itoa(m+1))
	}
	t.opts.Reporter.Warn("Monitors %s are not available.", strings.Join(names, ", "))
}

// Stop ends the session and saves the document. Without a document it only
// reports that there is nothing to save. A failed save keeps the document and
// records so Stop can be retried.
func (t *Tracker) Stop(ctx context.Context) (StopReport, error) {
	t.state = Idle

	if t.doc == nil {
		t.opts.Reporter.Info("Capture ended. No document to save.")
		return StopReport{}, nil
	}

	report := StopReport{DocumentPath: t.docPath}
	if err := os.MkdirAll(filepath.Dir(t.docPath), 0o755); err != nil {
		t.opts.Reporter.Error("Could not create folder for %s: %v", t.docPath, err)
		return report, fmt.Errorf("failed to create document folder: %w", err)
	}
	if err := t.doc.Save(t.docPath); err != nil {
		t.opts.Reporter.Error("Could not save document: %v", err)
		return report, err
	}
	report.Saved = true
	t.lastDocPath = t.docPath
	t.opts.Reporter.Info("Capture complete. Document saved to: %s", t.docPath)

	if t.settings.Spreadsheet && len(t.records) > 0 {
		write := export.WriteSpreadsheet
		if !t.newDoc {
			write = export.AppendSpreadsheet
		}
		sheet, err := write(t.records, t.sheetPath)
		report.Spreadsheet = &sheet
		switch {
		case err != nil:
			report.SpreadsheetErr = err
			t.opts.Reporter.Error("Error generating spreadsheet: %v", err)
		case sheet.Failed() > 0:
			t.opts.Reporter.Warn("Spreadsheet generated with %d image errors: %s", sheet.Failed(), t.sheetPath)
		case sheet.Appended:
			t.opts.Reporter.Info("Spreadsheet updated with %d new rows: %s", len(sheet.Rows), t.sheetPath)
		default:
			t.opts.Reporter.Info("Spreadsheet with images generated: %s", t.sheetPath)
		}
	}

	if t.settings.PDF && t.newDoc {
		pdf, err := export.ConvertDocument(ctx, t.opts.Converter, t.docPath)
		if err != nil {
			report.PDFErr = err
			t.opts.Reporter.Error("Document saved. %v", err)
		} else {
			report.PDFPath = pdf
			t.opts.Reporter.Info("Document and PDF saved.")
		}
	}

	if t.settings.DeleteImages {
		for _, p := range t.imagePaths {
			if err := os.Remove(p); err != nil {
				log.Printf("Error deleting image %s: %v", p, err)
				report.DeleteErrors = append(report.DeleteErrors, ItemError{Stage: "delete", ImagePath: p, Err: err})
				continue
			}
			report.Deleted++
			log.Printf("Deleted image: %s", p)
		}
		if len(report.DeleteErrors) > 0 {
			t.opts.Reporter.Warn("%d screenshots could not be deleted.", len(report.DeleteErrors))
		}
	}

	t.doc = nil
	t.records = nil
	t.imagePaths = nil
	return report, nil
}

// ConvertToPDF converts the most recently saved document.
func (t *Tracker) ConvertToPDF(ctx context.Context) (string, error) {
	if t.lastDocPath == "" {
		t.opts.Reporter.Warn("No document has been saved yet.")
		return "", ErrNoSavedDocument
	}
	pdf, err := export.ConvertDocument(ctx, t.opts.Converter, t.lastDocPath)
	if err != nil {
		t.opts.Reporter.Error("%v", err)
		return "", err
	}
	t.opts.Reporter.Info("Document converted to PDF: %s", pdf)
	return pdf, nil
}

type logReporter struct{}

func (logReporter) Info(format string, args ...any) { log.Printf(format, args...) }
func (logReporter) Warn(format string, args ...any) { log.Printf("WARNING: "+format, args...) }
func (logReporter) Error(format string, args ...any) { log.Printf("ERROR: "+format, args...) }
