package kv

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/cbconsul/consul_sdk_go/internal/consulapi"
)

// verbShapes selects the decoder for each verb. Raw gets and key listings are
// refined by shapeOf from the operation's modifiers.
var verbShapes = map[Verb]Shape{
	VerbGet:        ShapeRecord,
	VerbWatch:      ShapeRecord,
	VerbGetTree:    ShapeRecords,
	VerbSet:        ShapeBool,
	VerbCAS:        ShapeBool,
	VerbLock:       ShapeBool,
	VerbUnlock:     ShapeBool,
	VerbAcquire:    ShapeBool,
	VerbRelease:    ShapeBool,
	VerbDelete:     ShapeBool,
	VerbDeleteTree: ShapeBool,
	VerbDeleteCAS:  ShapeBool,
}

type decodeFunc func(body []byte) (Value, bool)

var shapeDecoders = map[Shape]decodeFunc{
	ShapeRecord:  decodeRecord,
	ShapeRecords: decodeRecords,
	ShapeKeys:    decodeKeys,
	ShapeBool:    decodeBool,
	ShapeRaw:     decodeRaw,
}

func shapeOf(op Operation) Shape {
	if op.params.Raw != nil && *op.params.Raw {
		return ShapeRaw
	}
	if op.params.Keys != nil && *op.params.Keys {
		return ShapeKeys
	}
	if s, ok := verbShapes[op.verb]; ok {
		return s
	}
	return ShapeRaw
}

// decode interprets resp for op. found is false for 404 responses and for
// bodies that do not have the shape the operation expects. Record and key
// listings must also be labelled JSON when the backend reports a content type.
func decode(op Operation, resp *Response) (Value, bool) {
	if resp == nil || resp.StatusCode == http.StatusNotFound {
		return Value{}, false
	}
	shape := shapeOf(op)
	switch shape {
	case ShapeRecord, ShapeRecords, ShapeKeys:
		if resp.ContentType != "" && !consulapi.IsJSON(resp.ContentType) {
			return Value{}, false
		}
	}
	return shapeDecoders[shape](resp.Body)
}

func decodeRecord(body []byte) (Value, bool) {
	v, ok := decodeRecords(body)
	if !ok {
		return Value{}, false
	}
	if len(v.Records) == 0 {
		return v, true
	}
	rec := v.Records[0]
	return Value{Shape: ShapeRecord, Record: &rec}, true
}

func decodeRecords(body []byte) (Value, bool) {
	if !isJSONArray(body) {
		return Value{}, false
	}
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return Value{}, false
	}
	if records == nil {
		records = []Record{}
	}
	return Value{Shape: ShapeRecords, Records: records}, true
}

func decodeKeys(body []byte) (Value, bool) {
	if !isJSONArray(body) {
		return Value{}, false
	}
	var keys []string
	if err := json.Unmarshal(body, &keys); err != nil {
		return Value{}, false
	}
	if keys == nil {
		keys = []string{}
	}
	return Value{Shape: ShapeKeys, Keys: keys}, true
}

func decodeBool(body []byte) (Value, bool) {
	switch string(bytes.TrimSpace(body)) {
	case "true":
		return Value{Shape: ShapeBool, OK: true}, true
	case "false":
		return Value{Shape: ShapeBool, OK: false}, true
	default:
		return Value{}, false
	}
}

func decodeRaw(body []byte) (Value, bool) {
	if body == nil {
		body = []byte{}
	}
	return Value{Shape: ShapeRaw, Raw: body}, true
}

func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}
