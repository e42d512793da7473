package annotate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// annotationsSchemaName is the schema name sent with structured-output
// requests.
const annotationsSchemaName = "annotations"

// annotationsSchema is the JSON schema for batch annotation output. It is
// sent to the provider as a strict response format and reused locally to
// validate what comes back. Strict mode requires every property listed in
// "required" and additionalProperties false at every level.
var annotationsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items": map[string]any{
			"type":        "array",
			"description": "One entry per input line.",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"i": map[string]any{
						"type":        "integer",
						"description": "Line number copied from the input",
					},
					"p": map[string]any{
						"type":        "string",
						"description": "Pinyin transcription with tone marks",
					},
					"t": map[string]any{
						"type":        "string",
						"description": "English translation",
					},
				},
				"required":             []string{"i", "p", "t"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"items"},
	"additionalProperties": false,
}

// annotationItem is one annotated line in model output. The same shape is
// used for JSONL stream lines and for entries in batch results.
type annotationItem struct {
	Index       int    `json:"i"`
	Pinyin      string `json:"p"`
	Translation string `json:"t"`
}

// batchResult is the parsed result of a batch annotation call.
type batchResult struct {
	Items []annotationItem `json:"items"`
}

var (
	batchSchemaOnce sync.Once
	batchSchema     *jsonschema.Schema
	batchSchemaErr  error
)

func compiledBatchSchema() (*jsonschema.Schema, error) {
	batchSchemaOnce.Do(func() {
		raw, err := json.Marshal(annotationsSchema)
		if err != nil {
			batchSchemaErr = fmt.Errorf("failed to serialize annotations schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("annotations.json", bytes.NewReader(raw)); err != nil {
			batchSchemaErr = fmt.Errorf("failed to load annotations schema: %w", err)
			return
		}
		batchSchema, batchSchemaErr = compiler.Compile("annotations.json")
	})
	return batchSchema, batchSchemaErr
}

// parseBatchResult parses and validates a batch annotation response.
func parseBatchResult(content string) (*batchResult, error) {
	raw, err := parseModelJSON(content)
	if err != nil {
		return nil, err
	}

	schema, err := compiledBatchSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode annotation output: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("annotation output does not match schema: %w", err)
	}

	var result batchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode annotation output: %w", err)
	}
	return &result, nil
}

// parseModelJSON parses JSON from model output, with lightweight recovery for
// markdown code fences and surrounding text.
func parseModelJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("failed to parse model JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(trimmed, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}
