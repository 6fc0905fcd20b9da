package toolservice

import "testing"

func TestToolDefinitions(t *testing.T) {
	specs := []ToolSpec{
		{
			Name:        "browser_click",
			Description: "Click an element",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"selector": map[string]interface{}{"type": "string"},
				},
			},
		},
		{Name: "browser_snapshot", Description: "Capture page state"},
	}

	defs := ToolDefinitions(specs)
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "browser_click" || defs[0].Description != "Click an element" {
		t.Errorf("unexpected first definition: %+v", defs[0])
	}
	props, ok := defs[0].Parameters["properties"].(map[string]interface{})
	if !ok || props["selector"] == nil {
		t.Errorf("schema not carried through: %+v", defs[0].Parameters)
	}

	// A spec with no schema still produces a valid empty object schema.
	if defs[1].Parameters == nil {
		t.Fatal("expected fallback parameters for schemaless tool")
	}
	if defs[1].Parameters["type"] != "object" {
		t.Errorf("expected object fallback, got %+v", defs[1].Parameters)
	}
}

func TestToolNames(t *testing.T) {
	specs := []ToolSpec{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	names := ToolNames(specs)
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestSchemaToMap(t *testing.T) {
	if m := schemaToMap(nil); m["type"] != "object" {
		t.Errorf("expected object fallback for nil schema, got %+v", m)
	}

	src := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"url"},
		"properties": map[string]interface{}{
			"url": map[string]interface{}{"type": "string"},
		},
	}
	m := schemaToMap(src)
	if m["type"] != "object" {
		t.Errorf("expected type carried through, got %+v", m)
	}
	if _, ok := m["properties"].(map[string]interface{}); !ok {
		t.Errorf("expected properties map, got %+v", m["properties"])
	}

	// Un-marshalable input degrades to the fallback.
	if m := schemaToMap(make(chan int)); m["type"] != "object" {
		t.Errorf("expected fallback for bad schema, got %+v", m)
	}
}
