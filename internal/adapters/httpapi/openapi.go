package httpapi

import (
	"encoding/json"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/usecase"
)

var violationsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"error":     map[string]any{"type": "string"},
		"operation": map[string]any{"type": "string"},
		"violations": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"field", "code", "message"},
				"properties": map[string]any{
					"field":   map[string]any{"type": "string"},
					"code":    map[string]any{"type": "string"},
					"message": map[string]any{"type": "string"},
				},
			},
		},
	},
}

// openapiSpec documents the fixed routes plus one validate and one call path
// per catalog operation, with the operation's input schema as request body.
func openapiSpec(ops []usecase.CompiledOperation) map[string]any {
	paths := map[string]any{
		"/healthz": map[string]any{"get": map[string]any{"summary": "Liveness probe"}},
		"/v1/tools": map[string]any{
			"get": map[string]any{"summary": "List tools with their input schemas"},
		},
		"/v1/tools/{operation}": map[string]any{
			"get": map[string]any{"summary": "Describe one tool"},
		},
		"/v1/tool-calls": map[string]any{
			"get": map[string]any{
				"summary": "List recorded tool calls for the caller's tenant",
				"parameters": []any{
					queryParam("operation", "string"),
					queryParam("outcome", "string"),
					queryParam("after", "string"),
					queryParam("limit", "integer"),
				},
			},
		},
	}

	for _, op := range ops {
		var input map[string]any
		_ = json.Unmarshal(op.InputSchema, &input)
		delete(input, "$schema")
		body := map[string]any{
			"required": true,
			"content":  map[string]any{"application/json": map[string]any{"schema": input}},
		}
		rejected := map[string]any{
			"description": "Arguments failed validation",
			"content":     map[string]any{"application/json": map[string]any{"schema": violationsSchema}},
		}

		name := op.Operation.Name
		paths["/v1/tools/"+name+":validate"] = map[string]any{
			"post": map[string]any{
				"operationId": "validate_" + name,
				"summary":     "Validate arguments for " + name,
				"requestBody": body,
				"responses": map[string]any{
					"200": map[string]any{"description": "Normalized outbound request"},
					"422": rejected,
				},
			},
		}
		paths["/v1/tools/"+name+":call"] = map[string]any{
			"post": map[string]any{
				"operationId": name,
				"summary":     op.Operation.Description,
				"requestBody": body,
				"responses": map[string]any{
					"200": map[string]any{"description": "Upstream response"},
					"422": rejected,
					"502": map[string]any{"description": "Property-management API error"},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "pmsbridge",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"apiKey": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
			},
		},
		"security": []any{map[string]any{"apiKey": []any{}}},
		"paths":    paths,
	}
}

func queryParam(name, typ string) map[string]any {
	return map[string]any{"name": name, "in": "query", "schema": map[string]any{"type": typ}}
}
