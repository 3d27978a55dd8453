package docproc

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Section markers used when both stages contribute to the combined view.
// When only one stage ran the content is exactly that stage's payload, with
// no markers.
const (
	structureHeader = "=== DOCUMENT STRUCTURE ==="
	tablesHeader    = "=== EXTRACTED TABLES ==="
	ocrHeader       = "=== OCR CONTENT ==="
)

// Merge combines the structure and OCR results for one file into a single
// record. Either result may be nil when the batch marked that stage as not
// requested. Merging is pure: identical inputs always yield an identical
// record aside from CreatedAt.
func Merge(source string, structureRes, ocrRes *StageResult, req Request) MergedRecord {
	stages := make(map[Stage]StageResult, 2)

	if structureRes != nil {
		stages[StageStructure] = *structureRes
	} else {
		stages[StageStructure] = NotRequested(StageStructure)
	}
	if ocrRes != nil {
		stages[StageOCR] = *ocrRes
	} else {
		stages[StageOCR] = NotRequested(StageOCR)
	}

	record := MergedRecord{
		Source:    source,
		Stages:    stages,
		Status:    overallStatus(stages),
		CreatedAt: time.Now().UTC(),
	}
	record.Content = norm.NFC.String(mergeContent(stages))
	return record
}

// overallStatus derives the three-way record status from the stage results.
// Skipped and not-requested stages carry no weight: a file whose only
// available stage succeeded is a success, and a file with no executed stage
// at all is a failure.
func overallStatus(stages map[Stage]StageResult) RecordStatus {
	var succeeded, failed int
	for _, res := range stages {
		switch res.Status {
		case StageSuccess:
			succeeded++
		case StageFailure:
			failed++
		}
	}

	switch {
	case succeeded > 0 && failed == 0:
		return StatusSuccess
	case succeeded > 0 && failed > 0:
		return StatusPartial
	default:
		return StatusFailure
	}
}

// mergeContent assembles the unified content view. With both stages
// successful the structural layout is preserved and OCR text is attached at
// the finest unit the structure stage exposed: per page when both sides
// carry page numbers, at document level otherwise.
func mergeContent(stages map[Stage]StageResult) string {
	structureRes := stages[StageStructure]
	ocrRes := stages[StageOCR]

	structureOK := structureRes.Status == StageSuccess && structureRes.Structure != nil
	ocrOK := ocrRes.Status == StageSuccess && ocrRes.OCR != nil

	switch {
	case structureOK && ocrOK:
		return mergeCombined(structureRes.Structure, ocrRes.OCR)
	case structureOK:
		return structureRes.Structure.Markdown
	case ocrOK:
		return ocrRes.OCR.Text
	default:
		return ""
	}
}

func mergeCombined(structure *StructurePayload, ocr *OCRPayload) string {
	var b strings.Builder

	b.WriteString(structureHeader)
	b.WriteString("\n")
	b.WriteString(structure.Markdown)
	b.WriteString("\n")

	if len(structure.Tables) > 0 {
		b.WriteString("\n")
		b.WriteString(tablesHeader)
		b.WriteString("\n")
		for i, table := range structure.Tables {
			b.WriteString(fmt.Sprintf("\nTable %d:\n", i+1))
			if table.Caption != "" {
				b.WriteString("Caption: " + table.Caption + "\n")
			}
			if table.Markdown != "" {
				b.WriteString(table.Markdown)
				b.WriteString("\n")
			} else {
				writeTableRows(&b, table)
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(ocrHeader)
	b.WriteString("\n")

	if pages := pagedOCRText(structure, ocr); len(pages) > 0 {
		for _, page := range pages {
			b.WriteString(fmt.Sprintf("\n--- Page %d ---\n", page.number))
			b.WriteString(page.text)
			b.WriteString("\n")
		}
	} else {
		b.WriteString(ocr.Text)
	}

	return b.String()
}

func writeTableRows(b *strings.Builder, table Table) {
	if len(table.Headers) > 0 {
		b.WriteString(strings.Join(table.Headers, " | "))
		b.WriteString("\n")
	}
	for _, row := range table.Rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
}

type ocrPage struct {
	number int
	text   string
}

// pagedOCRText groups OCR regions by page when the structure stage reported
// page units and every region carries a page number. An empty slice means no
// finer unit exists and the caller appends at document level.
func pagedOCRText(structure *StructurePayload, ocr *OCRPayload) []ocrPage {
	if structure.PageCount <= 0 || len(ocr.Regions) == 0 {
		return nil
	}

	byPage := make(map[int][]string)
	for _, region := range ocr.Regions {
		if region.Page <= 0 {
			return nil
		}
		if region.Text != "" {
			byPage[region.Page] = append(byPage[region.Page], region.Text)
		}
	}
	if len(byPage) == 0 {
		return nil
	}

	numbers := make([]int, 0, len(byPage))
	for n := range byPage {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	pages := make([]ocrPage, 0, len(numbers))
	for _, n := range numbers {
		pages = append(pages, ocrPage{number: n, text: strings.Join(byPage[n], "\n")})
	}
	return pages
}
