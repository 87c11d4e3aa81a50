package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

const maxErrorInput = 200

// cleanModelOutput removes wrapping models add around a JSON answer: a
// markdown code fence and a doubled opening brace.
func cleanModelOutput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

func clip(s string) string {
	if len(s) <= maxErrorInput {
		return s
	}
	return s[:maxErrorInput] + "..."
}

// GenerateSchema reflects a JSON Schema for structured output from the type
// of value. References are inlined and additional properties are rejected.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return reflector.Reflect(reflect.New(t).Interface())
}

// UnmarshalFlexible decodes a model answer into out. It accepts plain JSON,
// JSON encoded as a string, fenced JSON and JSON that jsonrepair can fix,
// tried in that order.
//
// Example:
//
//	var edges discoveredEdges
//	UnmarshalFlexible("```json\n{\"items\": []}\n```", &edges)
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		input = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(input), out); err == nil {
			return nil
		}
	}

	input = cleanModelOutput(input)
	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, clip(input))
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w (input: %s)", err, clip(input))
	}
	return nil
}
