package adapters

import (
	"fmt"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/sammcj/docflow/internal/docproc"
)

// convertMarkup handles HTML and Markdown inputs without the Python
// collaborator. HTML is converted to Markdown with its tables lifted out;
// Markdown passes through with sections derived from its headings.
func convertMarkup(file docproc.InputFile) (*docproc.StructurePayload, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("read markup input: %w", err)
	}

	if file.Ext == ".md" || file.Ext == ".markdown" {
		content := string(data)
		return &docproc.StructurePayload{
			Markdown: content,
			Sections: markdownSections(content),
		}, nil
	}

	return convertHTML(string(data))
}

func convertHTML(content string) (*docproc.StructurePayload, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("convert html to markdown: %w", err)
	}

	payload := &docproc.StructurePayload{
		Markdown: markdown,
		Sections: htmlSections(doc),
		Tables:   htmlTables(doc),
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		payload.Metadata = map[string]string{"title": title}
	}
	return payload, nil
}

func htmlSections(doc *goquery.Document) []docproc.Section {
	var sections []docproc.Section
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		heading := strings.TrimSpace(sel.Text())
		if heading == "" {
			return
		}
		level := int(sel.Get(0).Data[1] - '0')
		sections = append(sections, docproc.Section{Heading: heading, Level: level})
	})
	return sections
}

func htmlTables(doc *goquery.Document) []docproc.Table {
	var tables []docproc.Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		table := docproc.Table{
			Caption: strings.TrimSpace(sel.Find("caption").First().Text()),
		}
		sel.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cells []string
			isHeader := row.Find("th").Length() > 0
			row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) == 0 {
				return
			}
			if isHeader && table.Headers == nil {
				table.Headers = cells
			} else {
				table.Rows = append(table.Rows, cells)
			}
		})
		if table.Headers != nil || len(table.Rows) > 0 {
			tables = append(tables, table)
		}
	})
	return tables
}

func markdownSections(content string) []docproc.Section {
	var sections []docproc.Section
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		heading := strings.TrimSpace(trimmed[level:])
		if heading == "" || level > 6 {
			continue
		}
		sections = append(sections, docproc.Section{Heading: heading, Level: level})
	}
	return sections
}
