package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// TableCell is one cell of a parsed table.
type TableCell struct {
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Text     string `json:"text"`
	IsHeader bool   `json:"is_header,omitempty"`
}

// TableMeta carries detector metadata for a parsed table.
type TableMeta struct {
	Detector   string  `json:"detector,omitempty"`
	Confidence float64 `json:"confidence"`
}

// TableSchema is the read-only structure a task's draft is generated from.
type TableSchema struct {
	ID        uuid.UUID   `json:"id"`
	ProjectID uuid.UUID   `json:"project_id"`
	Page      *int        `json:"page,omitempty"`
	NRows     int         `json:"n_rows"`
	NCols     int         `json:"n_cols"`
	Cells     []TableCell `json:"cells"`
	Meta      TableMeta   `json:"meta"`
}

// Validate checks if the TableSchema has valid data.
func (t *TableSchema) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: table id", ErrEmptyID)
	}
	if t.NRows < 0 || t.NCols < 0 {
		return fmt.Errorf("%w: negative table dimensions", ErrValidation)
	}
	if t.Meta.Confidence < 0 || t.Meta.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.2f out of range", ErrValidation, t.Meta.Confidence)
	}
	for _, cell := range t.Cells {
		if cell.Row < 0 || cell.Col < 0 {
			return fmt.Errorf("%w: negative cell coordinates", ErrValidation)
		}
	}
	return nil
}

// rows groups cell texts by row number, each row ordered by column.
func (t *TableSchema) rows() (map[int][]string, []int) {
	byRow := make(map[int][]TableCell)
	for _, cell := range t.Cells {
		byRow[cell.Row] = append(byRow[cell.Row], cell)
	}

	numbers := make([]int, 0, len(byRow))
	texts := make(map[int][]string, len(byRow))
	for row, cells := range byRow {
		sort.SliceStable(cells, func(i, j int) bool { return cells[i].Col < cells[j].Col })
		line := make([]string, len(cells))
		for i, cell := range cells {
			line[i] = strings.TrimSpace(cell.Text)
		}
		texts[row] = line
		numbers = append(numbers, row)
	}
	sort.Ints(numbers)
	return texts, numbers
}

// HeaderRow returns the texts of row 0 ordered by column.
func (t *TableSchema) HeaderRow() []string {
	texts, _ := t.rows()
	return texts[0]
}

// SampleRows returns up to limit rows following the first row, in row order.
func (t *TableSchema) SampleRows(limit int) [][]string {
	texts, numbers := t.rows()
	if len(numbers) <= 1 || limit <= 0 {
		return nil
	}

	numbers = numbers[1:]
	if len(numbers) > limit {
		numbers = numbers[:limit]
	}

	samples := make([][]string, 0, len(numbers))
	for _, row := range numbers {
		samples = append(samples, texts[row])
	}
	return samples
}
