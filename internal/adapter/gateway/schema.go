package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"ai-assist/internal/domain"
)

// querySchema describes the inbound query body. context may be any JSON
// value; anything but an object is treated as absent.
const querySchema = `{
  "type": "object",
  "properties": {
    "question": {"type": "string", "maxLength": 32768},
    "provider": {"type": "string", "maxLength": 64}
  },
  "required": ["question"]
}`

// bodyValidator checks raw request bodies against a compiled JSON Schema.
type bodyValidator struct {
	schema *jsonschema.Schema
}

func newBodyValidator(schemaJSON string) (*bodyValidator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &bodyValidator{schema: schema}, nil
}

// Validate returns ErrValidation when body is not JSON or breaks the schema.
func (v *bodyValidator) Validate(body []byte) error {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return domain.NewDomainError("gateway.validate", domain.ErrValidation, "Invalid JSON body")
	}
	if result := v.schema.Validate(data); !result.IsValid() {
		return domain.NewDomainError("gateway.validate", domain.ErrValidation, "Request body does not match schema")
	}
	return nil
}

// queryBody is the wire form of a query.
type queryBody struct {
	Question string          `json:"question"`
	Provider string          `json:"provider"`
	Context  json.RawMessage `json:"context"`
}

// decodeQuery validates and converts a raw body into a QueryRequest.
func (v *bodyValidator) decodeQuery(raw []byte) (domain.QueryRequest, error) {
	if err := v.Validate(raw); err != nil {
		return domain.QueryRequest{}, err
	}
	var body queryBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.QueryRequest{}, domain.NewDomainError("gateway.decodeQuery", domain.ErrValidation, "Invalid JSON body")
	}

	req := domain.QueryRequest{Question: body.Question, Provider: body.Provider}
	var extra map[string]any
	if err := json.Unmarshal(body.Context, &extra); err == nil && len(extra) > 0 {
		req.Context = extra
	}
	return req, nil
}
