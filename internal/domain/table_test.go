package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTableSchemaRows(t *testing.T) {
	t.Parallel()

	schema := &TableSchema{
		ID:    uuid.New(),
		NRows: 5,
		NCols: 2,
		Cells: []TableCell{
			{Row: 0, Col: 1, Text: " Rate ", IsHeader: true},
			{Row: 0, Col: 0, Text: "Region", IsHeader: true},
			{Row: 2, Col: 0, Text: "South"},
			{Row: 1, Col: 1, Text: "4%"},
			{Row: 1, Col: 0, Text: "North"},
			{Row: 2, Col: 1, Text: "5%"},
			{Row: 3, Col: 0, Text: "East"},
			{Row: 4, Col: 0, Text: "West"},
		},
	}

	assert.Equal(t, []string{"Region", "Rate"}, schema.HeaderRow())
	assert.Equal(t, [][]string{{"North", "4%"}, {"South", "5%"}, {"East"}}, schema.SampleRows(3))
	assert.Len(t, schema.SampleRows(1), 1)
	assert.Nil(t, schema.SampleRows(0))
	assert.NoError(t, schema.Validate())
}

func TestTableSchemaValidate(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, (&TableSchema{}).Validate(), ErrEmptyID)
	assert.ErrorIs(t, (&TableSchema{ID: uuid.New(), NRows: -1}).Validate(), ErrValidation)
	assert.ErrorIs(t, (&TableSchema{ID: uuid.New(), Meta: TableMeta{Confidence: 1.5}}).Validate(), ErrValidation)
	assert.ErrorIs(t, (&TableSchema{ID: uuid.New(), Cells: []TableCell{{Row: -1}}}).Validate(), ErrValidation)
}

func TestEmptyTableHasNoRows(t *testing.T) {
	t.Parallel()

	schema := &TableSchema{ID: uuid.New()}
	assert.Empty(t, schema.HeaderRow())
	assert.Nil(t, schema.SampleRows(3))
}
