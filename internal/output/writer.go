// Package output persists batch results to timestamped artifacts. Write
// failures never touch the in-memory results, so a caller can fix the
// destination and retry the write alone.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/docflow/internal/docproc"
	"github.com/sammcj/docflow/internal/report"
)

// Format selects the serialization of a written artifact
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// ValidFormats is the closed set of output formats
var ValidFormats = map[Format]bool{
	FormatJSON: true,
	FormatCSV:  true,
	FormatText: true,
}

// CombinedPrefix names the combined artifact, suffixed with the batch timestamp
const CombinedPrefix = "combined_results"

// WriteError reports a persistence failure. The batch's results are
// unaffected; the write can be retried.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer persists artifacts into a single output directory. A directory
// lock is held around each write set so two concurrent runs cannot
// interleave artifacts.
type Writer struct {
	dir    string
	lock   *flock.Flock
	logger *logrus.Logger
}

// NewWriter creates the output directory if needed and prepares its lock
func NewWriter(dir string, logger *logrus.Logger) (*Writer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, &WriteError{Path: abs, Err: err}
	}
	return &Writer{
		dir:    abs,
		lock:   flock.New(filepath.Join(abs, ".docflow.lock")),
		logger: logger,
	}, nil
}

// Dir returns the normalised output directory
func (w *Writer) Dir() string { return w.dir }

// Timestamp renders the artifact timestamp component
func Timestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// WriteCombined persists all records into one artifact named
// <prefix>_<YYYYMMDD_HHMMSS>.<ext> and returns its path.
func (w *Writer) WriteCombined(records []docproc.MergedRecord, format Format, ts time.Time) (string, error) {
	if !ValidFormats[format] {
		return "", &docproc.ConfigError{Field: "output_format", Value: string(format),
			Msg: "must be one of json, csv, text"}
	}
	if err := w.lock.Lock(); err != nil {
		return "", &WriteError{Path: w.dir, Err: err}
	}
	defer func() { _ = w.lock.Unlock() }()

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.%s", CombinedPrefix, Timestamp(ts), extFor(format)))

	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(records, "", "  ")
	case FormatCSV:
		data, err = renderCSV(records)
	case FormatText:
		data = []byte(renderText(records))
	}
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	w.logger.WithField("path", path).Info("Combined results written")
	return path, nil
}

// ReadCombined loads a combined JSON artifact back into records
func ReadCombined(path string) ([]docproc.MergedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read combined results: %w", err)
	}
	var records []docproc.MergedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse combined results: %w", err)
	}
	return records, nil
}

// WriteIndividual persists one artifact per record, named after the source
// file's stem plus the batch timestamp.
func (w *Writer) WriteIndividual(records []docproc.MergedRecord, format Format, ts time.Time) ([]string, error) {
	if format == FormatCSV {
		return nil, &docproc.ConfigError{Field: "output_format", Value: string(format),
			Msg: "individual outputs support json and text only"}
	}
	if !ValidFormats[format] {
		return nil, &docproc.ConfigError{Field: "output_format", Value: string(format),
			Msg: "must be one of json, csv, text"}
	}
	if err := w.lock.Lock(); err != nil {
		return nil, &WriteError{Path: w.dir, Err: err}
	}
	defer func() { _ = w.lock.Unlock() }()

	paths := make([]string, 0, len(records))
	for _, record := range records {
		stem := strings.TrimSuffix(filepath.Base(record.Source), filepath.Ext(record.Source))
		path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.%s", stem, Timestamp(ts), extFor(format)))

		var data []byte
		var err error
		if format == FormatJSON {
			data, err = json.MarshalIndent(record, "", "  ")
			if err != nil {
				return paths, &WriteError{Path: path, Err: err}
			}
		} else {
			data = []byte(renderRecordText(record))
		}

		if err := os.WriteFile(path, data, 0o640); err != nil {
			return paths, &WriteError{Path: path, Err: err}
		}
		paths = append(paths, path)
	}

	w.logger.WithField("count", len(paths)).Info("Individual results written")
	return paths, nil
}

// WriteSummary persists the textual summary report alongside the combined
// artifact as summary_report_<YYYYMMDD_HHMMSS>.txt.
func (w *Writer) WriteSummary(rep report.BatchReport, ts time.Time) (string, error) {
	if err := w.lock.Lock(); err != nil {
		return "", &WriteError{Path: w.dir, Err: err}
	}
	defer func() { _ = w.lock.Unlock() }()

	path := filepath.Join(w.dir, fmt.Sprintf("summary_report_%s.txt", Timestamp(ts)))
	if err := os.WriteFile(path, []byte(rep.Summary), 0o640); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	w.logger.WithField("path", path).Info("Summary report written")
	return path, nil
}

func extFor(format Format) string {
	if format == FormatText {
		return "txt"
	}
	return string(format)
}

// csvHeader defines the flattened per-file row. Nested stage payloads are
// summarised, not exploded; the JSON artifact carries the full records.
var csvHeader = []string{
	"source", "status", "structure_status", "ocr_status",
	"elapsed_ms", "content_chars", "tables", "error",
}

func renderCSV(records []docproc.MergedRecord) ([]byte, error) {
	var b strings.Builder
	cw := csv.NewWriter(&b)

	if err := cw.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, record := range records {
		structureRes, _ := record.StageFor(docproc.StageStructure)
		ocrRes, _ := record.StageFor(docproc.StageOCR)

		tables := 0
		if structureRes.Structure != nil {
			tables = len(structureRes.Structure.Tables)
		}
		row := []string{
			record.Source,
			string(record.Status),
			string(structureRes.Status),
			string(ocrRes.Status),
			strconv.FormatInt(record.ElapsedMS(), 10),
			strconv.Itoa(len(record.Content)),
			strconv.Itoa(tables),
			firstError(record),
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func firstError(record docproc.MergedRecord) string {
	for _, stage := range []docproc.Stage{docproc.StageStructure, docproc.StageOCR} {
		if res, ok := record.StageFor(stage); ok && res.Status == docproc.StageFailure && res.Error != "" {
			return res.Error
		}
	}
	return ""
}

const textRule = "================================================================================"

func renderText(records []docproc.MergedRecord) string {
	var b strings.Builder
	for _, record := range records {
		b.WriteString(renderRecordText(record))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRecordText(record docproc.MergedRecord) string {
	var b strings.Builder
	b.WriteString(textRule + "\n")
	fmt.Fprintf(&b, "File: %s\n", record.Source)
	fmt.Fprintf(&b, "Status: %s\n", record.Status)
	fmt.Fprintf(&b, "Processed: %s\n", record.CreatedAt.Format(time.RFC3339))
	if record.Status != docproc.StatusFailure {
		fmt.Fprintf(&b, "Text:\n%s\n", record.Content)
	}
	if errMsg := firstError(record); errMsg != "" {
		fmt.Fprintf(&b, "Error: %s\n", errMsg)
	}
	b.WriteString(textRule + "\n")
	return b.String()
}
