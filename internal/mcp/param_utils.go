package mcp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// UnknownField is an argument the tool does not recognize
type UnknownField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

func (f UnknownField) String() string {
	return fmt.Sprintf("unknown parameter %q ignored", f.Name)
}

// knownFields lists the JSON names of a params struct
func knownFields(v interface{}) map[string]struct{} {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	known := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		known[name] = struct{}{}
	}
	return known
}

// collectUnknownFields returns the top-level keys of data that v does not
// declare, sorted by name
func collectUnknownFields(data []byte, v interface{}) ([]UnknownField, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	known := knownFields(v)
	var unknown []UnknownField
	for key, value := range raw {
		if _, ok := known[key]; ok {
			continue
		}
		unknown = append(unknown, decodeUnknownField(key, value))
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i].Name < unknown[j].Name })
	return unknown, nil
}

func decodeUnknownField(name string, data json.RawMessage) UnknownField {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		value = string(data)
	}
	return UnknownField{Name: name, Value: value}
}
