package settings

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"
)

var durationType = reflect.TypeOf(time.Duration(0))

type field struct {
	name  string
	names []string
	index int
}

func structFields(target any) ([]field, error) {
	t := reflect.TypeOf(target)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("settings: target must be a struct or pointer to struct, got %T", target)
	}
	return fieldsOf(t), nil
}

func fieldsOf(t reflect.Type) []field {
	var out []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, hasTag := sf.Tag.Lookup(tagName)
		if tag == "-" {
			continue
		}
		names := []string{sf.Name}
		if hasTag && strings.TrimSpace(tag) != "" {
			names = names[:0]
			for _, n := range strings.Split(tag, ",") {
				if n = strings.TrimSpace(n); n != "" {
					names = append(names, n)
				}
			}
		}
		out = append(out, field{name: sf.Name, names: names, index: i})
	}
	return out
}

func (s *Source) assign(tree map[string]any, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("settings: Load needs a non-nil pointer to struct, got %T", target)
	}
	return s.assignStruct(tree, rv.Elem(), "")
}

func (s *Source) assignStruct(tree map[string]any, rv reflect.Value, path string) error {
	for _, f := range fieldsOf(rv.Type()) {
		v, ok := s.lookup(tree, f.names)
		if !ok {
			continue
		}
		fieldPath := path + f.name
		if err := s.assignValue(rv.Field(f.index), v, fieldPath); err != nil {
			return fmt.Errorf("settings: field %s: %w", fieldPath, err)
		}
	}
	return nil
}

func (s *Source) assignValue(dst reflect.Value, v any, path string) error {
	switch t := v.(type) {
	case map[string]any:
		return s.assignTree(dst, t, path)
	case string:
		return assignLeaf(dst, t)
	default:
		return fmt.Errorf("unexpected value of type %T", v)
	}
}

func (s *Source) assignTree(dst reflect.Value, tree map[string]any, path string) error {
	switch {
	case dst.Kind() == reflect.Struct:
		return s.assignStruct(tree, dst, path+".")
	case dst.Kind() == reflect.Pointer && dst.Type().Elem().Kind() == reflect.Struct:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return s.assignStruct(tree, dst.Elem(), path+".")
	case dst.Kind() == reflect.Map && dst.Type().Key().Kind() == reflect.String && dst.Type().Elem().Kind() == reflect.String:
		flat := make(map[string]string)
		flatten(tree, "", flat)
		m := reflect.MakeMapWithSize(dst.Type(), len(flat))
		for k, v := range flat {
			m.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), reflect.ValueOf(v).Convert(dst.Type().Elem()))
		}
		dst.Set(m)
		return nil
	default:
		return fmt.Errorf("subtree cannot be assigned to %s", dst.Type())
	}
}

// flatten joins nested keys with the separator. Keys without a value are
// skipped.
func flatten(tree map[string]any, prefix string, out map[string]string) {
	for k, v := range tree {
		switch t := v.(type) {
		case map[string]any:
			flatten(t, prefix+k+separator, out)
		case string:
			out[prefix+k] = t
		}
	}
}

func assignLeaf(dst reflect.Value, raw string) error {
	switch {
	case dst.Type() == durationType:
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		dst.SetInt(int64(d))
		return nil
	case dst.Kind() == reflect.Pointer:
		elem := reflect.New(dst.Type().Elem())
		if err := assignLeaf(elem.Elem(), raw); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	case dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() != reflect.Uint8:
		parts := splitList(raw)
		out := reflect.MakeSlice(dst.Type(), len(parts), len(parts))
		for i, p := range parts {
			if err := assignLeaf(out.Index(i), p); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		dst.Set(out)
		return nil
	case dst.Kind() == reflect.String:
		dst.SetString(raw)
		return nil
	default:
		return runtime.BindStringToObject(strings.TrimSpace(raw), dst.Addr().Interface())
	}
}

func splitList(raw string) []string {
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
