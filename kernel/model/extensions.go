package model

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Extensions carries properties outside an entity's fixed schema. They are
// collected on decode and merged back on encode so unmodeled cloud fields
// survive a store round-trip.
type Extensions map[string]interface{}

func (e Extensions) Get(key string) (interface{}, bool) {
	v, ok := e[key]
	return v, ok
}

func (e Extensions) String(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}

// jsonKeys returns the set of json field names declared on a struct type.
func jsonKeys(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = f.Name
		}
		keys[name] = struct{}{}
	}
	return keys
}

func marshalWithExtensions(core interface{}, known map[string]struct{}, ext Extensions) ([]byte, error) {
	data, err := json.Marshal(core)
	if err != nil {
		return nil, err
	}
	if len(ext) == 0 {
		return data, nil
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range ext {
		if _, isCore := known[k]; isCore {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}

func unmarshalWithExtensions(data []byte, core interface{}, known map[string]struct{}) (Extensions, error) {
	if err := json.Unmarshal(data, core); err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	var ext Extensions
	for k, v := range fields {
		if _, isCore := known[k]; isCore {
			continue
		}
		if ext == nil {
			ext = make(Extensions)
		}
		ext[k] = v
	}
	return ext, nil
}
