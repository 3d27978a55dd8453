package docproc

import (
	"time"
)

// Mode defines which analysis stages a batch runs per file
type Mode string

const (
	ModeCombined      Mode = "combined"       // Structure extraction + OCR
	ModeStructureOnly Mode = "structure-only" // Document structure and tables only
	ModeOCROnly       Mode = "ocr-only"       // OCR text extraction only
)

// TaskType defines the OCR task submitted to the recognition model
type TaskType string

const (
	TaskReading              TaskType = "reading"               // Full-page text reading
	TaskDetection            TaskType = "detection"             // Text region detection
	TaskLocalizedReading     TaskType = "localized_reading"     // Reading restricted to a region
	TaskConditionalDetection TaskType = "conditional_detection" // Detection of a queried string
)

// OCRFormat defines the output representation requested from the OCR model
type OCRFormat string

const (
	OCRFormatText       OCRFormat = "TEXT"       // Linearised plain text (default)
	OCRFormatText2D     OCRFormat = "TEXT2D"     // Layout-sensitive text
	OCRFormatLines      OCRFormat = "LINES"      // Line-by-line with bounding boxes
	OCRFormatWords      OCRFormat = "WORDS"      // Word-by-word with bounding boxes
	OCRFormatParagraphs OCRFormat = "PARAGRAPHS" // Paragraph-wise with bounding boxes
	OCRFormatLatex      OCRFormat = "LATEX"      // LaTeX expressions with bounding boxes
	OCRFormatBox        OCRFormat = "BOX"        // Bounding boxes only (detection tasks)
)

// Stage identifies one analysis pass applied to a file
type Stage string

const (
	StageStructure Stage = "structure"
	StageOCR       Stage = "ocr"
)

// StageStatus is the outcome of a single collaborator call. The four values
// are a closed set; downstream statistics depend on the distinction between
// a stage that failed and a stage that was never requested or available.
type StageStatus string

const (
	StageSuccess      StageStatus = "success"
	StageFailure      StageStatus = "failure"
	StageSkipped      StageStatus = "skipped-unavailable"
	StageNotRequested StageStatus = "not-requested"
)

// RecordStatus is the per-file overall outcome derived from its stage results
type RecordStatus string

const (
	StatusSuccess RecordStatus = "success" // Every requested, available stage succeeded
	StatusPartial RecordStatus = "partial" // At least one stage succeeded, at least one failed
	StatusFailure RecordStatus = "failure" // No requested stage produced a result
)

// InputFile is a discovered input, identified by its normalised absolute path
type InputFile struct {
	Path string `json:"path"` // Normalised absolute path, the dedup and ordering key
	Ext  string `json:"ext"`  // Lower-cased extension including the dot
	Size int64  `json:"size"` // Size in bytes at discovery time
}

// Request is the per-file processing configuration. It is constructed once
// per batch invocation and applied uniformly; adapters must never retain any
// of it between calls.
type Request struct {
	Mode             Mode      `json:"mode"`
	TaskType         TaskType  `json:"task_type,omitempty"`
	OCRFormat        OCRFormat `json:"ocr_format,omitempty"`
	ExtractStructure bool      `json:"extract_structure"`
	ExtractTables    bool      `json:"extract_tables"`
	MaxTokens        int       `json:"max_tokens,omitempty"` // OCR generation budget, 0 = model default
	Languages        []string  `json:"languages,omitempty"`  // OCR language hints
}

// WantsStructure reports whether the structure stage is requested
func (r Request) WantsStructure() bool {
	return r.Mode == ModeCombined || r.Mode == ModeStructureOnly
}

// WantsOCR reports whether the OCR stage is requested
func (r Request) WantsOCR() bool {
	return r.Mode == ModeCombined || r.Mode == ModeOCROnly
}

// Region is a recognised text region with its position on the page
type Region struct {
	Text       string     `json:"text,omitempty"`
	Page       int        `json:"page,omitempty"` // 1-based page number, 0 = unknown
	Box        [4]float64 `json:"box,omitempty"`  // [x1, y1, x2, y2]
	Confidence float64    `json:"confidence,omitempty"`
}

// Section is a structural unit reported by the structure collaborator
type Section struct {
	Heading string `json:"heading,omitempty"`
	Level   int    `json:"level,omitempty"`
	Page    int    `json:"page,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Table is a table extracted by the structure collaborator
type Table struct {
	Caption  string     `json:"caption,omitempty"`
	Headers  []string   `json:"headers,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	Page     int        `json:"page,omitempty"`
	Markdown string     `json:"markdown,omitempty"`
}

// StructurePayload is the structure stage's output for one file
type StructurePayload struct {
	Markdown  string            `json:"markdown,omitempty"`
	Sections  []Section         `json:"sections,omitempty"`
	Tables    []Table           `json:"tables,omitempty"`
	PageCount int               `json:"page_count,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OCRPayload is the OCR stage's output for one file
type OCRPayload struct {
	Text       string    `json:"text,omitempty"`
	Regions    []Region  `json:"regions,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	TaskType   TaskType  `json:"task_type,omitempty"`
	Format     OCRFormat `json:"format,omitempty"`
}

// StageResult is the outcome of one collaborator call. Exactly one of
// Structure or OCR is set on success, matching the Stage field.
type StageResult struct {
	Stage     Stage             `json:"stage"`
	Status    StageStatus       `json:"status"`
	Error     string            `json:"error,omitempty"`
	ElapsedMS int64             `json:"elapsed_ms"`
	Structure *StructurePayload `json:"structure,omitempty"`
	OCR       *OCRPayload       `json:"ocr,omitempty"`
}

// MergedRecord is the per-file unification of all stage outputs. It is
// immutable once built; CreatedAt is the only field excluded from the
// determinism guarantee.
type MergedRecord struct {
	Source    string                `json:"source"`
	Stages    map[Stage]StageResult `json:"stages"`
	Content   string                `json:"content,omitempty"`
	Status    RecordStatus          `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
}

// StageFor returns the named stage result, with ok reporting presence
func (m MergedRecord) StageFor(stage Stage) (StageResult, bool) {
	res, ok := m.Stages[stage]
	return res, ok
}

// ElapsedMS returns the summed elapsed time of all executed stages
func (m MergedRecord) ElapsedMS() int64 {
	var total int64
	for _, res := range m.Stages {
		total += res.ElapsedMS
	}
	return total
}

// NotRequested builds the marker result for a stage the batch did not run.
// It is distinct from a skipped stage, which was requested but unavailable.
func NotRequested(stage Stage) StageResult {
	return StageResult{Stage: stage, Status: StageNotRequested}
}

// Skipped builds the result for a requested stage whose collaborator is
// unavailable for the whole batch.
func Skipped(stage Stage, reason string) StageResult {
	return StageResult{Stage: stage, Status: StageSkipped, Error: reason}
}

// Failed builds a failure result from an adapter-level fault
func Failed(stage Stage, err error, elapsed time.Duration) StageResult {
	res := StageResult{Stage: stage, Status: StageFailure, ElapsedMS: elapsed.Milliseconds()}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
