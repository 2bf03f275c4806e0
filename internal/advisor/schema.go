package advisor

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// adviceSchema 约束模型输出的形状；越界数值在 normalize 阶段再收口。
const adviceSchema = `{
  "type": "object",
  "required": ["direction", "confidence", "riskLevel"],
  "properties": {
    "direction":  {"type": "string"},
    "confidence": {"type": "number"},
    "score":      {"type": "number"},
    "riskLevel":  {"type": "string"},
    "reasoning":  {"type": "string"},
    "technicalData": {"type": "string"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("advice.json", adviceSchema)

func validateAdviceJSON(raw string) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return compiledSchema.Validate(doc)
}
