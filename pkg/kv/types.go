package kv

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cbconsul/consul_sdk_go/internal/consulapi"
)

// Record is one stored entry as returned by the service. Value holds the
// base64 text exactly as received; use Decode to obtain the stored bytes.
type Record struct {
	Key         string `json:"Key"`
	CreateIndex uint64 `json:"CreateIndex"`
	ModifyIndex uint64 `json:"ModifyIndex"`
	LockIndex   uint64 `json:"LockIndex"`
	Flags       uint64 `json:"Flags"`
	Value       string `json:"Value"`
	Session     string `json:"Session"`
}

// Decode returns the stored bytes of the record.
func (r Record) Decode() ([]byte, error) {
	if r.Value == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(r.Value)
	if err != nil {
		return nil, fmt.Errorf("kv: decode value of %q: %w", r.Key, err)
	}
	return data, nil
}

// Locked reports whether a session currently holds the key.
func (r Record) Locked() bool {
	return r.Session != ""
}

// Metadata captures the consistency headers attached to every response.
type Metadata struct {
	Index              uint64
	KnownLeader        string
	LastContact        string
	Token              string
	TranslateAddresses *bool
}

// ExtractMetadata reads the Consul headers from h. Missing or malformed headers
// yield zero values; it never fails.
func ExtractMetadata(h http.Header) Metadata {
	meta := Metadata{
		Index:       consulapi.ParseIndex(h.Get(consulapi.HeaderIndex)),
		KnownLeader: h.Get(consulapi.HeaderKnownLeader),
		LastContact: h.Get(consulapi.HeaderLastContact),
		Token:       h.Get(consulapi.HeaderToken),
	}
	if raw := strings.TrimSpace(h.Get(consulapi.HeaderTranslateAddresses)); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			meta.TranslateAddresses = &v
		}
	}
	return meta
}

func (m Metadata) String() string {
	translate := "<unset>"
	if m.TranslateAddresses != nil {
		translate = strconv.FormatBool(*m.TranslateAddresses)
	}
	return fmt.Sprintf("%s: %d\n%s: %s\n%s: %s\n%s: %s\n%s: %s",
		consulapi.HeaderIndex, m.Index,
		consulapi.HeaderKnownLeader, m.KnownLeader,
		consulapi.HeaderLastContact, m.LastContact,
		consulapi.HeaderToken, m.Token,
		consulapi.HeaderTranslateAddresses, translate,
	)
}

// Shape is the kind of payload an operation decodes into.
type Shape int

const (
	ShapeRecord Shape = iota
	ShapeRecords
	ShapeKeys
	ShapeBool
	ShapeRaw
)

func (s Shape) String() string {
	switch s {
	case ShapeRecord:
		return "record"
	case ShapeRecords:
		return "records"
	case ShapeKeys:
		return "keys"
	case ShapeBool:
		return "bool"
	case ShapeRaw:
		return "raw"
	default:
		return "shape(" + strconv.Itoa(int(s)) + ")"
	}
}

// Value is a decoded response body. Exactly the field matching Shape is set.
// A read that expected a single record but received an empty list keeps
// ShapeRecords with an empty Records slice.
type Value struct {
	Shape   Shape
	Record  *Record
	Records []Record
	Keys    []string
	OK      bool
	Raw     []byte
}

// Result pairs a decoded value with the metadata of the response carrying it.
// Meta is zero when a default value was substituted for a missing key.
type Result struct {
	Value Value
	Meta  Metadata
}
