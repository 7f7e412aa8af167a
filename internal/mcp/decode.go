package mcp

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mark3labs/mcp-go/mcp"
)

// decode converts tool arguments into a request struct through their JSON
// form and validates it when the struct implements validation.Validatable.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("invalid arguments: %w", err)
	}
	if v, ok := any(&result).(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return result, err
		}
	}
	return result, nil
}
