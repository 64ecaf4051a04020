package format

import (
	"fmt"
	"strings"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
)

// alignment is a column's rendering alignment, decided once per column from
// its SQL type family per spec.md §4.10's table rendering rules.
type alignment int

const (
	alignLeft alignment = iota
	alignRight
)

// numericFamilies is matched against a type name with any "(p[,s])"
// precision/scale suffix stripped, case-insensitively, per spec.md §4.10.
var numericFamilies = []string{
	"integer", "int", "smallint", "bigint", "tinyint",
	"decimal", "dec", "numeric",
	"float", "double", "real", "decfloat",
}

func isNumericFamily(sqlType string) bool {
	base := sqlType
	if idx := strings.IndexByte(base, '('); idx >= 0 {
		base = base[:idx]
	}
	base = strings.ToLower(strings.TrimSpace(base))
	for _, fam := range numericFamilies {
		if base == fam {
			return true
		}
	}
	return false
}

// buildTable renders rows as a table in opts.TableStyle, returning the
// rendered block, the ordered column names, a per-column null count, and the
// shown/total row counts so the caller can append a truncation banner.
//
// Truncation monotonicity (spec.md §8 property 8): rows are taken in their
// original order and simply sliced at maxDisplayRows, so a smaller cap is
// always a strict prefix of a larger cap's output.
func buildTable(rows []map[string]interface{}, meta []ColumnMeta, opts Options) (rendered string, columns []string, nullCounts map[string]int, shown, total int) {
	columns = columnOrder(rows, meta)
	aligns := columnAlignments(columns, meta)
	placeholder := opts.NullPlaceholder
	if placeholder == "" {
		placeholder = "-"
	}

	total = len(rows)
	maxRows := opts.MaxDisplayRows
	if maxRows <= 0 || maxRows > total {
		maxRows = total
	}
	shown = maxRows

	headers := make([]string, len(columns))
	hasTypes := len(meta) > 0
	typeByName := make(map[string]string, len(meta))
	for _, m := range meta {
		typeByName[m.Name] = m.Type
	}
	for i, col := range columns {
		if hasTypes {
			headers[i] = fmt.Sprintf("%s (%s)", col, typeByName[col])
		} else {
			headers[i] = col
		}
	}

	nullCounts = make(map[string]int, len(columns))
	cells := make([][]string, shown)
	for r := 0; r < shown; r++ {
		row := rows[r]
		rendered := make([]string, len(columns))
		for c, col := range columns {
			v, ok := row[col]
			if !ok || v == nil {
				nullCounts[col]++
				rendered[c] = placeholder
				continue
			}
			rendered[c] = fmt.Sprintf("%v", v)
		}
		cells[r] = rendered
	}

	var b strings.Builder
	switch opts.TableStyle {
	case config.StyleASCII:
		renderASCIITable(&b, headers, cells, aligns)
	case config.StyleGrid:
		renderGridTable(&b, headers, cells, aligns)
	case config.StyleCompact:
		renderCompactTable(&b, headers, cells, aligns)
	default:
		renderMarkdownTable(&b, headers, cells, aligns)
	}

	return b.String(), columns, nullCounts, shown, total
}

// columnOrder derives the display column order: from the result metadata's
// declared column list if present, otherwise from the first row's keys in
// map iteration order (best-effort; the gateway result already fixes an
// order the caller can't recover once in a Go map).
func columnOrder(rows []map[string]interface{}, meta []ColumnMeta) []string {
	if len(meta) > 0 {
		out := make([]string, len(meta))
		for i, m := range meta {
			out[i] = m.Name
		}
		return out
	}
	if len(rows) == 0 {
		return nil
	}
	out := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		out = append(out, k)
	}
	return out
}

func columnAlignments(columns []string, meta []ColumnMeta) []alignment {
	typeByName := make(map[string]string, len(meta))
	for _, m := range meta {
		typeByName[m.Name] = m.Type
	}
	out := make([]alignment, len(columns))
	for i, col := range columns {
		if isNumericFamily(typeByName[col]) {
			out[i] = alignRight
		} else {
			out[i] = alignLeft
		}
	}
	return out
}

func colWidths(headers []string, cells [][]string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range cells {
		for i, v := range row {
			if n := len([]rune(v)); n > widths[i] {
				widths[i] = n
			}
		}
	}
	return widths
}

func pad(s string, width int, a alignment) string {
	n := width - len([]rune(s))
	if n <= 0 {
		return s
	}
	if a == alignRight {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

func renderMarkdownTable(b *strings.Builder, headers []string, cells [][]string, aligns []alignment) {
	writeMarkdownRow(b, headers)
	seps := make([]string, len(headers))
	for i, a := range aligns {
		if a == alignRight {
			seps[i] = "---:"
		} else {
			seps[i] = "---"
		}
	}
	writeMarkdownRow(b, seps)
	for _, row := range cells {
		writeMarkdownRow(b, row)
	}
}

func writeMarkdownRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

func renderASCIITable(b *strings.Builder, headers []string, cells [][]string, aligns []alignment) {
	widths := colWidths(headers, cells)
	border := asciiBorder(widths, '+', '-')
	b.WriteString(border)
	writePaddedRow(b, headers, widths, aligns, '|')
	b.WriteString(border)
	for _, row := range cells {
		writePaddedRow(b, row, widths, aligns, '|')
	}
	b.WriteString(border)
}

func renderGridTable(b *strings.Builder, headers []string, cells [][]string, aligns []alignment) {
	widths := colWidths(headers, cells)
	b.WriteString(unicodeBorder(widths, "┌", "┬", "┐"))
	writePaddedRow(b, headers, widths, aligns, '│')
	b.WriteString(unicodeBorder(widths, "├", "┼", "┤"))
	for _, row := range cells {
		writePaddedRow(b, row, widths, aligns, '│')
	}
	b.WriteString(unicodeBorder(widths, "└", "┴", "┘"))
}

func renderCompactTable(b *strings.Builder, headers []string, cells [][]string, aligns []alignment) {
	widths := colWidths(headers, cells)
	writeCompactRow(b, headers, widths, aligns)
	for _, row := range cells {
		writeCompactRow(b, row, widths, aligns)
	}
}

func writeCompactRow(b *strings.Builder, row []string, widths []int, aligns []alignment) {
	padded := make([]string, len(row))
	for i, v := range row {
		padded[i] = pad(v, widths[i], aligns[i])
	}
	b.WriteString(strings.Join(padded, "  "))
	b.WriteString("\n")
}

func writePaddedRow(b *strings.Builder, row []string, widths []int, aligns []alignment, sep byte) {
	b.WriteByte(sep)
	for i, v := range row {
		b.WriteByte(' ')
		b.WriteString(pad(v, widths[i], aligns[i]))
		b.WriteByte(' ')
		b.WriteByte(sep)
	}
	b.WriteString("\n")
}

func asciiBorder(widths []int, corner, fill byte) string {
	var b strings.Builder
	b.WriteByte(corner)
	for _, w := range widths {
		b.WriteString(strings.Repeat(string(fill), w+2))
		b.WriteByte(corner)
	}
	b.WriteString("\n")
	return b.String()
}

func unicodeBorder(widths []int, left, mid, right string) string {
	var b strings.Builder
	b.WriteString(left)
	for i, w := range widths {
		b.WriteString(strings.Repeat("─", w+2))
		if i < len(widths)-1 {
			b.WriteString(mid)
		}
	}
	b.WriteString(right)
	b.WriteString("\n")
	return b.String()
}
