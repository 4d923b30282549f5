package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// decodeHTML extracts every <table> from an HTML page into a map keyed by
// the table's id attribute (or "table_N" by position when it has none).
// Each table becomes an object sequence: column names come from the header
// row (<th> cells, falling back to the first row), cell values are the
// trimmed text content.
func decodeHTML(r io.Reader) (any, error) {
	page, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("document: parse html: %w", err)
	}

	out := make(map[string]any)
	page.Find("table").Each(func(i int, tbl *goquery.Selection) {
		name, ok := tbl.Attr("id")
		if !ok || name == "" {
			name = fmt.Sprintf("table_%d", i+1)
		}
		out[name] = tableRows(tbl)
	})

	if len(out) == 0 {
		return nil, fmt.Errorf("document: no tables found in html input")
	}
	return out, nil
}

func tableRows(tbl *goquery.Selection) []any {
	var header []string
	tbl.Find("th").Each(func(_ int, th *goquery.Selection) {
		header = append(header, strings.TrimSpace(th.Text()))
	})

	rows := tbl.Find("tr")
	start := 0
	if len(header) == 0 {
		// No <th> cells: treat the first row as the header.
		if rows.Length() == 0 {
			return nil
		}
		rows.First().Find("td").Each(func(_ int, td *goquery.Selection) {
			header = append(header, strings.TrimSpace(td.Text()))
		})
		start = 1
	}

	var out []any
	rows.Each(func(i int, tr *goquery.Selection) {
		if i < start {
			return
		}
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return // header-only row
		}
		row := make(map[string]any, len(header))
		cells.Each(func(j int, td *goquery.Selection) {
			if j < len(header) {
				row[header[j]] = strings.TrimSpace(td.Text())
			}
		})
		out = append(out, row)
	})
	return out
}
