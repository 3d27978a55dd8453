package docproc

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid configuration value. It is raised before
// any file is touched so a bad task type or output format never starts a
// batch.
type ConfigError struct {
	Field string
	Value string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Msg)
}

// ValidModes is the closed set of processing modes
var ValidModes = map[Mode]bool{
	ModeCombined:      true,
	ModeStructureOnly: true,
	ModeOCROnly:       true,
}

// ValidTaskTypes is the closed set of OCR task types
var ValidTaskTypes = map[TaskType]bool{
	TaskReading:              true,
	TaskDetection:            true,
	TaskLocalizedReading:     true,
	TaskConditionalDetection: true,
}

// ValidOCRFormats is the closed set of OCR output formats
var ValidOCRFormats = map[OCRFormat]bool{
	OCRFormatText:       true,
	OCRFormatText2D:     true,
	OCRFormatLines:      true,
	OCRFormatWords:      true,
	OCRFormatParagraphs: true,
	OCRFormatLatex:      true,
	OCRFormatBox:        true,
}

// TaskFormats maps each task type to the output formats the model accepts
// for it. Detection tasks only produce bounding boxes.
var TaskFormats = map[TaskType][]OCRFormat{
	TaskReading: {
		OCRFormatText, OCRFormatText2D, OCRFormatLines,
		OCRFormatWords, OCRFormatParagraphs, OCRFormatLatex,
	},
	TaskDetection:            {OCRFormatBox},
	TaskLocalizedReading:     {OCRFormatText},
	TaskConditionalDetection: {OCRFormatBox},
}

// ValidateRequest rejects unrecognised modes, task types and output formats
// before any collaborator is invoked. The task/format pairing is checked here
// too: the model answers an unsupported pair with its default prompt instead
// of an error, so the pair must be refused before it ever reaches a call.
func ValidateRequest(req Request) error {
	if !ValidModes[req.Mode] {
		return &ConfigError{Field: "mode", Value: string(req.Mode),
			Msg: "must be one of combined, structure-only, ocr-only"}
	}

	if req.WantsOCR() {
		if !ValidTaskTypes[req.TaskType] {
			return &ConfigError{Field: "task_type", Value: string(req.TaskType),
				Msg: "must be one of reading, detection, localized_reading, conditional_detection"}
		}
		if !ValidOCRFormats[req.OCRFormat] {
			return &ConfigError{Field: "ocr_format", Value: string(req.OCRFormat),
				Msg: "must be one of TEXT, TEXT2D, LINES, WORDS, PARAGRAPHS, LATEX, BOX"}
		}
		if !formatAllowed(req.TaskType, req.OCRFormat) {
			return &ConfigError{Field: "ocr_format", Value: string(req.OCRFormat),
				Msg: fmt.Sprintf("not supported by task %s (allowed: %s)",
					req.TaskType, joinFormats(TaskFormats[req.TaskType]))}
		}
		if req.MaxTokens < 0 {
			return &ConfigError{Field: "max_tokens", Value: fmt.Sprintf("%d", req.MaxTokens),
				Msg: "must be zero or positive"}
		}
	}

	return nil
}

func formatAllowed(task TaskType, format OCRFormat) bool {
	for _, allowed := range TaskFormats[task] {
		if allowed == format {
			return true
		}
	}
	return false
}

func joinFormats(formats []OCRFormat) string {
	names := make([]string, 0, len(formats))
	for _, format := range formats {
		names = append(names, string(format))
	}
	return strings.Join(names, ", ")
}
