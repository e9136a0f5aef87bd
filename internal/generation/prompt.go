package generation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/phrazzld/guideline-api/internal/domain"
)

// PromptVersion identifies the template below. It is stored on every draft.
const PromptVersion = "v1.0"

// SampleRowLimit bounds how many data rows are shown to the model.
const SampleRowLimit = 3

// SystemInstruction is sent alongside the prompt by providers that support a
// separate system role.
const SystemInstruction = "You are an expert at analyzing tables and writing compliance guideline " +
	"descriptions. Describe the table accurately and keep every important detail from the source data."

const promptText = `Convert the following table into a faithful, concise natural language description for compliance guidelines.

INSTRUCTIONS:
- Read the table structure and content carefully
- Keep exact numbers, units and ranges
- Call out key rules, patterns and exceptions
- Do NOT invent information that is not present in the data
- Use the sections listed under RESPONSE FORMAT

TABLE INFORMATION:
- Dimensions: {{.NRows}} rows x {{.NCols}} columns
- Detection method: {{.Detector}}
- Confidence: {{.Confidence}}
- Page number: {{.Page}}

HEADER ROW:
{{.Header}}

SAMPLE DATA ROWS:
{{- range $i, $row := .Rows}}
Row {{inc $i}}: {{$row}}
{{- else}}
No data rows available
{{- end}}

RESPONSE FORMAT:
**Purpose**
[What the table contains and why it exists]

**Structure**
[How the table is organized: columns and data types]

**Key Rules**
[Main rules, requirements or patterns in the data]

**Exceptions**
[Exceptions, special cases or variations]

**Data Quality Notes**
[Observations about completeness, consistency or quality]

Generate the description now:`

var promptTemplate = template.Must(template.New("draft").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(promptText))

type promptData struct {
	NRows      int
	NCols      int
	Detector   string
	Confidence string
	Page       string
	Header     string
	Rows       []string
}

// BuildPrompt renders the drafting prompt for schema. The output depends only
// on the schema, so equal tables always produce equal prompts.
func BuildPrompt(schema *domain.TableSchema) (string, error) {
	if schema == nil {
		return "", fmt.Errorf("%w: table schema cannot be nil", domain.ErrValidation)
	}

	data := promptData{
		NRows:      schema.NRows,
		NCols:      schema.NCols,
		Detector:   schema.Meta.Detector,
		Confidence: strconv.FormatFloat(schema.Meta.Confidence, 'f', 2, 64),
		Page:       "unknown",
		Header:     "No clear headers identified",
	}
	if data.Detector == "" {
		data.Detector = "unknown"
	}
	if schema.Page != nil {
		data.Page = strconv.Itoa(*schema.Page)
	}
	if header := schema.HeaderRow(); len(header) > 0 {
		data.Header = strings.Join(header, " | ")
	}
	for _, row := range schema.SampleRows(SampleRowLimit) {
		data.Rows = append(data.Rows, strings.Join(row, " | "))
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// PromptHash is the idempotency key of a generation request.
func PromptHash(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + ":" + prompt))
	return hex.EncodeToString(sum[:])
}
