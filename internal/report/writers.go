package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format names an output encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// Formats lists every output encoding.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatTable}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Write encodes r to w in format f.
func Write(w io.Writer, r *Report, f Format) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatTable:
		return WriteTable(w, r)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// WriteCSV writes a header line followed by one line per row.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(r.Columns))
	for _, row := range r.Rows {
		for i, col := range r.Columns {
			record[i] = formatCell(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the whole report, metadata included, as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to write json report: %w", err)
	}
	return nil
}

// WriteTable renders the rows as a text table with the summary as footer.
func WriteTable(w io.Writer, r *Report) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle("%s (%s)", r.Title, r.GeneratedAt.Format("2006-01-02 15:04:05"))
	t.Style().Title.Align = text.AlignCenter

	header := make(table.Row, len(r.Columns))
	for i, col := range r.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range r.Rows {
		cells := make(table.Row, len(r.Columns))
		for i, col := range r.Columns {
			cells[i] = formatCell(row[col])
		}
		t.AppendRow(cells)
	}

	if r.Summary != nil && len(r.Columns) > 0 {
		footer := make(table.Row, len(r.Columns))
		footer[0] = fmt.Sprintf("%d rows", r.Summary.Count)
		if len(r.Columns) > 1 {
			footer[len(r.Columns)-1] = fmt.Sprintf("sum %.2f avg %.2f", r.Summary.Sum, r.Summary.Avg)
		}
		t.AppendFooter(footer)
	}

	if _, err := io.WriteString(w, t.Render()+"\n"); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
