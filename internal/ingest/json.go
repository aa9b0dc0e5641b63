package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"

	"zonewatch/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ReadingFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap flattens one level of values to strings. Nested "readings"
// or "data" objects are merged so wrapped device payloads parse too.
func ParseJSONMap(obj map[string]interface{}) *normalize.ReadingFields {
	fields := &normalize.ReadingFields{}
	for _, key := range []string{"data", "readings"} {
		if inner, ok := obj[key].(map[string]interface{}); ok {
			for k, v := range inner {
				fields.Assign(k, stringify(v))
			}
		}
	}
	for key, val := range obj {
		if _, nested := val.(map[string]interface{}); nested {
			continue
		}
		fields.Assign(key, stringify(val))
	}
	return fields
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
