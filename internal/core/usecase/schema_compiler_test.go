package usecase

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

func unitsOp() domain.Operation {
	return domain.Operation{
		Name:        "search_units",
		Description: "Search units.",
		Method:      "GET",
		Path:        "/pms/units",
		Page:        &domain.PageConvention{Field: "page", CallerBase: 1, UpstreamBase: 0},
		Fields: []domain.FieldSpec{
			{Name: "page", Type: domain.TypeInteger, Min: ptr(1)},
			{Name: "bedrooms", Type: domain.TypeInteger, Min: ptr(0), Max: ptr(20)},
			{Name: "is_active", Param: "isActive", Type: domain.TypeBinaryFlag},
			{Name: "arrival", Type: domain.TypeDate, DateFormat: domain.DateOnly},
			{Name: "sort_direction", Param: "sortDirection", Type: domain.TypeString, Enum: []string{"asc", "desc"}},
		},
	}
}

func TestCompileOperationRejectsInvalidDeclaration(t *testing.T) {
	op := unitsOp()
	op.Groups = []domain.ConstraintGroup{{Name: "g", Kind: domain.ExactlyOne, Fields: []string{"page", "missing"}}}
	_, err := CompileOperation(op)
	if !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestCompiledOperationNormalize(t *testing.T) {
	c, err := CompileOperation(unitsOp())
	if err != nil {
		t.Fatalf("CompileOperation: %v", err)
	}
	req, err := c.Normalize(map[string]any{"page": "1", "bedrooms": "2", "is_active": true})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if req.Params["page"] != int64(0) || req.Params["isActive"] != int64(1) {
		t.Fatalf("unexpected params %v", req.Params)
	}

	_, err = c.Normalize(map[string]any{"bedrooms": 21})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) || !verr.Has("bedrooms", domain.CodeOutOfRange) {
		t.Fatalf("want OUT_OF_RANGE on bedrooms, got %v", err)
	}
}

func TestMatchesInputSchema(t *testing.T) {
	c, err := CompileOperation(unitsOp())
	if err != nil {
		t.Fatalf("CompileOperation: %v", err)
	}

	ok := []map[string]any{
		{"page": 1, "bedrooms": "2", "is_active": "yes", "arrival": "2024-01-15"},
		{"is_active": 0, "sort_direction": "asc"},
		{},
	}
	for _, raw := range ok {
		if err := c.MatchesInputSchema(raw); err != nil {
			t.Fatalf("MatchesInputSchema(%v): %v", raw, err)
		}
	}

	bad := []map[string]any{
		{"bedrooms": 21},
		{"is_active": 2},
		{"arrival": "2024-01-15T10:00:00Z"},
		{"sort_direction": "up"},
		{"page": "one"},
	}
	for _, raw := range bad {
		err := c.MatchesInputSchema(raw)
		var mismatch *SchemaMismatch
		if !errors.As(err, &mismatch) || len(mismatch.Causes) == 0 {
			t.Fatalf("MatchesInputSchema(%v) = %v, want SchemaMismatch", raw, err)
		}
	}
}

func TestInputSchemaDocument(t *testing.T) {
	op := unitsOp()
	op.Fields = append(op.Fields, domain.FieldSpec{Name: "unit_code", Type: domain.TypeString, Required: true, Description: "Unit code."})
	c, err := CompileOperation(op)
	if err != nil {
		t.Fatalf("CompileOperation: %v", err)
	}

	var doc struct {
		Title       string                    `json:"title"`
		Description string                    `json:"description"`
		Required    []string                  `json:"required"`
		Properties  map[string]map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(c.InputSchema, &doc); err != nil {
		t.Fatalf("decode input schema: %v", err)
	}
	if doc.Title != "search_units" || doc.Description != "Search units." {
		t.Fatalf("unexpected header %+v", doc)
	}
	if len(doc.Required) != 1 || doc.Required[0] != "unit_code" {
		t.Fatalf("required = %v", doc.Required)
	}
	if len(doc.Properties) != len(op.Fields) {
		t.Fatalf("want %d properties, got %d", len(op.Fields), len(doc.Properties))
	}
	if doc.Properties["unit_code"]["description"] != "Unit code." {
		t.Fatalf("description missing: %v", doc.Properties["unit_code"])
	}
}

func TestOutboundSchemaUsesUpstreamNamesAndSkipsPathFields(t *testing.T) {
	op := domain.Operation{
		Name:   "get_unit",
		Method: "GET",
		Path:   "/pms/units/{unitId}",
		Fields: []domain.FieldSpec{
			{Name: "unit_id", Param: "unitId", Type: domain.TypeInteger, Required: true, In: domain.InPath},
			{Name: "include_descriptions", Param: "includeDescriptions", Type: domain.TypeBinaryFlag},
		},
	}
	doc := OutboundSchema(op)
	props := doc["properties"].(map[string]any)
	if _, ok := props["unitId"]; ok {
		t.Fatal("path field must not appear in outbound schema")
	}
	if _, ok := props["includeDescriptions"]; !ok {
		t.Fatalf("upstream name missing: %v", props)
	}
	if doc["additionalProperties"] != false {
		t.Fatal("outbound schema must be closed")
	}
	if _, ok := doc["required"]; ok {
		t.Fatalf("no outbound field is required: %v", doc["required"])
	}
}
