package event

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxStringLength is the longest string kept verbatim in a payload
	MaxStringLength = 1000
	// MaxDataSize caps the serialized size of a sanitized payload in bytes
	MaxDataSize = 50000

	TruncatedSuffix  = "... [truncated]"
	CircularSentinel = "[Circular Reference]"
	FunctionSentinel = "[Function]"
	ChannelSentinel  = "[Channel]"
)

// Sanitize converts data into a JSON-safe deep copy. Cycles, functions and
// channels are replaced with sentinel strings, long strings are truncated, and
// payloads that serialize beyond MaxDataSize are replaced with a placeholder.
func Sanitize(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	w := &walker{ancestors: make(map[visitKey]struct{})}
	out, _ := w.walk(reflect.ValueOf(data)).(map[string]any)

	size, err := serializedSize(out)
	if err != nil {
		return map[string]any{
			"error":   "Failed to serialize data",
			"message": err.Error(),
		}
	}
	if size > MaxDataSize {
		return map[string]any{
			"error": "Data too large to serialize",
			"size":  size,
		}
	}
	return out
}

// serializedSize returns the length of v as plain JSON. HTML characters are
// counted as one byte, not as their \u003c escapes.
func serializedSize(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	// Encode terminates the value with a newline
	return buf.Len() - 1, nil
}

// TruncateString cuts s to MaxStringLength characters plus TruncatedSuffix
func TruncateString(s string) string {
	if utf8.RuneCountInString(s) <= MaxStringLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxStringLength {
			return s[:i] + TruncatedSuffix
		}
		n++
	}
	return s
}

type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

// walker tracks the containers on the current path; a container met again
// below itself is a cycle
type walker struct {
	ancestors map[visitKey]struct{}
}

func (w *walker) enter(v reflect.Value, fn func() any) any {
	key := visitKey{ptr: v.Pointer(), typ: v.Type()}
	if _, ok := w.ancestors[key]; ok {
		return CircularSentinel
	}
	w.ancestors[key] = struct{}{}
	defer delete(w.ancestors, key)
	return fn()
}

func (w *walker) walk(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return w.walk(v.Elem())
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
	}

	if v.CanInterface() {
		switch x := v.Interface().(type) {
		case time.Time:
			return x.UTC().Format(time.RFC3339Nano)
		case json.Number:
			return x
		case error:
			return Project(x).Map()
		case json.Marshaler:
			return w.marshaled(x)
		}
	}

	switch v.Kind() {
	case reflect.String:
		return TruncateString(v.String())
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if v.CanInterface() {
			return v.Interface()
		}
		return fmt.Sprint(v)
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		if v.CanInterface() {
			return v.Interface()
		}
		return f
	case reflect.Func:
		return FunctionSentinel
	case reflect.Chan:
		return ChannelSentinel
	case reflect.Map:
		return w.enter(v, func() any { return w.mapOf(v) })
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return base64.StdEncoding.EncodeToString(v.Bytes())
		}
		if v.Len() == 0 {
			return []any{}
		}
		return w.enter(v, func() any { return w.listOf(v) })
	case reflect.Array:
		return w.listOf(v)
	case reflect.Pointer:
		return w.enter(v, func() any { return w.walk(v.Elem()) })
	case reflect.Struct:
		return w.structOf(v)
	default:
		return fmt.Sprintf("[Unsupported: %s]", v.Type())
	}
}

func (w *walker) marshaled(m json.Marshaler) any {
	b, err := m.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("[Unserializable: %v]", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Sprintf("[Unserializable: %v]", err)
	}
	return w.walk(reflect.ValueOf(out))
}

func (w *walker) mapOf(v reflect.Value) map[string]any {
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out[mapKey(iter.Key())] = w.walk(iter.Value())
	}
	return out
}

func (w *walker) listOf(v reflect.Value) []any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = w.walk(v.Index(i))
	}
	return out
}

func (w *walker) structOf(v reflect.Value) map[string]any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() && !(f.Anonymous && f.Type.Kind() == reflect.Struct) {
			continue
		}
		fv := v.Field(i)

		name := f.Name
		tag, tagged := f.Tag.Lookup("json")
		if tagged {
			tagName, opts, _ := strings.Cut(tag, ",")
			if tagName == "-" && opts == "" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
			if strings.Contains(opts, "omitempty") && fv.IsZero() {
				continue
			}
		}

		val := w.walk(fv)
		if f.Anonymous && !tagged {
			if embedded, ok := val.(map[string]any); ok {
				for k, ev := range embedded {
					if _, exists := out[k]; !exists {
						out[k] = ev
					}
				}
				continue
			}
		}
		out[name] = val
	}
	return out
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if b, err := tm.MarshalText(); err == nil {
				return string(b)
			}
		}
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	}
	return fmt.Sprint(k)
}
