package output

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcj/docflow/internal/docproc"
	"github.com/sammcj/docflow/internal/report"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var batchTime = time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC)

func sampleRecords() []docproc.MergedRecord {
	return []docproc.MergedRecord{
		{
			Source:  "/in/report.pdf",
			Status:  docproc.StatusSuccess,
			Content: "extracted content",
			Stages: map[docproc.Stage]docproc.StageResult{
				docproc.StageStructure: {
					Stage: docproc.StageStructure, Status: docproc.StageSuccess, ElapsedMS: 100,
					Structure: &docproc.StructurePayload{Markdown: "# md", Tables: []docproc.Table{{Caption: "t"}}},
				},
				docproc.StageOCR: {
					Stage: docproc.StageOCR, Status: docproc.StageSuccess, ElapsedMS: 200,
					OCR: &docproc.OCRPayload{Text: "extracted content", TaskType: docproc.TaskReading},
				},
			},
			CreatedAt: batchTime,
		},
		{
			Source: "/in/broken.png",
			Status: docproc.StatusFailure,
			Stages: map[docproc.Stage]docproc.StageResult{
				docproc.StageOCR: {
					Stage: docproc.StageOCR, Status: docproc.StageFailure, Error: "model crashed", ElapsedMS: 40,
				},
			},
			CreatedAt: batchTime,
		},
	}
}

func TestTimestampFormat(t *testing.T) {
	assert.Equal(t, "20260825_143005", Timestamp(batchTime))
}

func TestWriteCombinedJSONRoundTrip(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	records := sampleRecords()
	path, err := writer.WriteCombined(records, FormatJSON, batchTime)
	require.NoError(t, err)
	assert.Equal(t, "combined_results_20260825_143005.json", filepath.Base(path))

	loaded, err := ReadCombined(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, records[0].Source, loaded[0].Source)
	assert.Equal(t, records[0].Status, loaded[0].Status)
	assert.Equal(t, records[0].Content, loaded[0].Content)

	ocrRes, ok := loaded[0].StageFor(docproc.StageOCR)
	require.True(t, ok)
	require.NotNil(t, ocrRes.OCR)
	assert.Equal(t, "extracted content", ocrRes.OCR.Text)
}

func TestWriteCombinedCSV(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	path, err := writer.WriteCombined(sampleRecords(), FormatCSV, batchTime)
	require.NoError(t, err)
	assert.Equal(t, "combined_results_20260825_143005.csv", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "source,status,structure_status,ocr_status,elapsed_ms,content_chars,tables,error", lines[0])
	assert.Contains(t, lines[1], "/in/report.pdf,success,success,success,300,17,1,")
	assert.Contains(t, lines[2], "model crashed")
}

func TestWriteCombinedText(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	path, err := writer.WriteCombined(sampleRecords(), FormatText, batchTime)
	require.NoError(t, err)
	assert.Equal(t, "combined_results_20260825_143005.txt", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "File: /in/report.pdf")
	assert.Contains(t, text, "Status: success")
	assert.Contains(t, text, "extracted content")
	assert.Contains(t, text, "Error: model crashed")
	// Failed records carry no content block
	assert.NotContains(t, strings.Split(text, "File: /in/broken.png")[1], "Text:")
}

func TestWriteCombinedRejectsUnknownFormat(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = writer.WriteCombined(sampleRecords(), Format("xml"), batchTime)
	var cfgErr *docproc.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "output_format", cfgErr.Field)
}

func TestWriteIndividual(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, testLogger())
	require.NoError(t, err)

	paths, err := writer.WriteIndividual(sampleRecords(), FormatJSON, batchTime)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "report_20260825_143005.json", filepath.Base(paths[0]))
	assert.Equal(t, "broken_20260825_143005.json", filepath.Base(paths[1]))

	for _, path := range paths {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestWriteIndividualRejectsCSV(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = writer.WriteIndividual(sampleRecords(), FormatCSV, batchTime)
	assert.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	records := sampleRecords()
	rep := report.Build(records, report.Summarize(records))
	path, err := writer.WriteSummary(rep, batchTime)
	require.NoError(t, err)
	assert.Equal(t, "summary_report_20260825_143005.txt", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rep.Summary, string(data))
}

func TestNewWriterCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	writer, err := NewWriter(dir, testLogger())
	require.NoError(t, err)

	info, err := os.Stat(writer.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteFailureLeavesRecordsUsable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	writer, err := NewWriter(dir, testLogger())
	require.NoError(t, err)

	// Remove the destination after the writer exists
	require.NoError(t, os.RemoveAll(writer.Dir()))

	records := sampleRecords()
	_, err = writer.WriteCombined(records, FormatJSON, batchTime)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)

	// The records are untouched; a retry against a restored directory succeeds
	require.NoError(t, os.MkdirAll(writer.Dir(), 0o750))
	_, err = writer.WriteCombined(records, FormatJSON, batchTime)
	assert.NoError(t, err)
}
