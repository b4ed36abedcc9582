package advisory

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const opinionSchema = `{
  "type": "object",
  "required": ["content_type", "business_value", "suggested_retention_days", "action", "confidence", "reasoning"],
  "properties": {
    "content_type": {"type": "string"},
    "business_value": {"type": "integer", "minimum": 1, "maximum": 10},
    "suggested_retention_days": {"type": "integer", "minimum": 0},
    "action": {"type": "string", "enum": ["DELETE", "ARCHIVE", "COMPRESS", "PROTECT"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`

const insightsSchema = `{
  "type": "object",
  "required": ["overall_recommendation", "business_impact", "estimated_cost_savings", "risk_assessment"],
  "properties": {
    "overall_recommendation": {"type": "string"},
    "business_impact": {"type": "string"},
    "estimated_cost_savings": {"type": "string"},
    "risk_assessment": {"type": "string"}
  }
}`

var (
	opinionValidator  = mustSchema(opinionSchema)
	insightsValidator = mustSchema(insightsSchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("advisory: invalid schema: %v", err))
	}
	return schema
}

// validate checks a JSON document against one of the response schemas
func validate(schema *gojsonschema.Schema, document []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// extractJSON strips markdown fences and surrounding prose from a model reply
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
