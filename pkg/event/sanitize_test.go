package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSanitize_RoundTripsJSONSafeValues(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{
			name: "flat values",
			data: map[string]any{"s": "hello", "n": 42.5, "b": true, "nil": nil},
		},
		{
			name: "nested containers",
			data: map[string]any{
				"selection": map[string]any{"text": "some article text", "offset": 12.0},
				"tags":      []any{"a", "b", map[string]any{"deep": []any{1.0, 2.0}}},
			},
		},
		{
			name: "string exactly at limit",
			data: map[string]any{"s": strings.Repeat("x", MaxStringLength)},
		},
		{
			name: "empty map",
			data: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.data)
			if !reflect.DeepEqual(got, tt.data) {
				t.Errorf("Sanitize() = %#v, want %#v", got, tt.data)
			}
		})
	}
}

func TestSanitize_RoundTripsDecodedJSON(t *testing.T) {
	raw := `{"article":{"title":"t","paragraphs":["one","two"]},"count":3,"ok":false,"missing":null}`
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	got := Sanitize(data)
	if !reflect.DeepEqual(got, data) {
		t.Errorf("Sanitize() = %#v, want %#v", got, data)
	}
}

func TestSanitize_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", MaxStringLength+500)
	got := Sanitize(map[string]any{"text": long, "nested": []any{long}})

	want := strings.Repeat("a", MaxStringLength) + TruncatedSuffix
	if got["text"] != want {
		t.Errorf("Sanitize() text length = %d, want %d", len(got["text"].(string)), len(want))
	}
	if nested := got["nested"].([]any); nested[0] != want {
		t.Error("Sanitize() did not truncate string inside slice")
	}
}

func TestTruncateString_CountsCharacters(t *testing.T) {
	s := strings.Repeat("é", MaxStringLength)
	if got := TruncateString(s); got != s {
		t.Error("TruncateString() cut a string of exactly MaxStringLength runes")
	}

	s = strings.Repeat("é", MaxStringLength+1)
	want := strings.Repeat("é", MaxStringLength) + TruncatedSuffix
	if got := TruncateString(s); got != want {
		t.Errorf("TruncateString() = %d bytes, want %d", len(got), len(want))
	}
}

func TestSanitize_ReplacesCycles(t *testing.T) {
	self := map[string]any{"name": "root"}
	self["self"] = self

	got := Sanitize(map[string]any{"node": self})
	node, ok := got["node"].(map[string]any)
	if !ok {
		t.Fatalf("Sanitize() node = %#v, want map", got["node"])
	}
	if node["self"] != CircularSentinel {
		t.Errorf("Sanitize() self = %#v, want %q", node["self"], CircularSentinel)
	}
	if node["name"] != "root" {
		t.Errorf("Sanitize() name = %#v, want root", node["name"])
	}
}

func TestSanitize_TopLevelSelfReference(t *testing.T) {
	data := map[string]any{}
	data["me"] = data

	got := Sanitize(data)
	if got["me"] != CircularSentinel {
		t.Errorf("Sanitize() me = %#v, want %q", got["me"], CircularSentinel)
	}
}

type listNode struct {
	Value int       `json:"value"`
	Next  *listNode `json:"next,omitempty"`
}

func TestSanitize_PointerCycle(t *testing.T) {
	a := &listNode{Value: 1}
	b := &listNode{Value: 2, Next: a}
	a.Next = b

	got := Sanitize(map[string]any{"list": a})
	first := got["list"].(map[string]any)
	second := first["next"].(map[string]any)
	if second["next"] != CircularSentinel {
		t.Errorf("Sanitize() cycle edge = %#v, want %q", second["next"], CircularSentinel)
	}
}

func TestSanitize_SharedReferenceIsNotCycle(t *testing.T) {
	shared := map[string]any{"k": "v"}
	got := Sanitize(map[string]any{"a": shared, "b": shared})

	if !reflect.DeepEqual(got["a"], shared) || !reflect.DeepEqual(got["b"], shared) {
		t.Errorf("Sanitize() = %#v, shared sibling references should be kept", got)
	}
}

func TestSanitize_Sentinels(t *testing.T) {
	got := Sanitize(map[string]any{
		"fn":  func() {},
		"ch":  make(chan int),
		"nan": math.NaN(),
		"inf": math.Inf(1),
		"c":   complex(1, 2),
	})

	if got["fn"] != FunctionSentinel {
		t.Errorf("fn = %#v, want %q", got["fn"], FunctionSentinel)
	}
	if got["ch"] != ChannelSentinel {
		t.Errorf("ch = %#v, want %q", got["ch"], ChannelSentinel)
	}
	if got["nan"] != nil || got["inf"] != nil {
		t.Errorf("non-finite floats = %#v/%#v, want nil", got["nan"], got["inf"])
	}
	if s, _ := got["c"].(string); !strings.HasPrefix(s, "[Unsupported:") {
		t.Errorf("complex = %#v, want unsupported marker", got["c"])
	}
}

func TestSanitize_StructsAndSpecialTypes(t *testing.T) {
	type inner struct {
		Tag string `json:"tag"`
	}
	type payload struct {
		inner
		Visible string `json:"visible"`
		Skipped string `json:"-"`
		Empty   string `json:"empty,omitempty"`
		hidden  string
		Plain   int
	}

	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	got := Sanitize(map[string]any{
		"p":     payload{inner: inner{Tag: "x"}, Visible: "yes", Skipped: "no", hidden: "no", Plain: 7},
		"when":  at,
		"err":   errors.New("boom"),
		"bytes": []byte("hi"),
		"raw":   json.RawMessage(`{"a":1}`),
	})

	p := got["p"].(map[string]any)
	if p["visible"] != "yes" || p["Plain"] != 7 || p["tag"] != "x" {
		t.Errorf("struct fields = %#v", p)
	}
	if _, ok := p["Skipped"]; ok {
		t.Error("json:\"-\" field was kept")
	}
	if _, ok := p["empty"]; ok {
		t.Error("omitempty field was kept")
	}
	if _, ok := p["hidden"]; ok {
		t.Error("unexported field was kept")
	}
	if got["when"] != "2024-01-15T10:30:00Z" {
		t.Errorf("time = %#v", got["when"])
	}
	if e := got["err"].(map[string]any); e["message"] != "boom" {
		t.Errorf("error projection = %#v", e)
	}
	if got["bytes"] != "aGk=" {
		t.Errorf("bytes = %#v, want base64", got["bytes"])
	}
	if r := got["raw"].(map[string]any); r["a"] != 1.0 {
		t.Errorf("raw message = %#v", r)
	}
}

func TestSanitize_OversizedPayload(t *testing.T) {
	items := make([]any, 0, 100)
	for i := 0; i < 100; i++ {
		items = append(items, strings.Repeat("z", MaxStringLength))
	}

	got := Sanitize(map[string]any{"items": items})
	if got["error"] != "Data too large to serialize" {
		t.Fatalf("Sanitize() = %#v, want size placeholder", got)
	}
	if size, _ := got["size"].(int); size <= MaxDataSize {
		t.Errorf("Sanitize() size = %v, want > %d", got["size"], MaxDataSize)
	}
}

func TestSanitize_HTMLCountsAsPlainBytes(t *testing.T) {
	markup := map[string]any{}
	for i := 0; i < 10; i++ {
		markup[fmt.Sprintf("k%d", i)] = strings.Repeat("<", 900)
	}

	// 49 entries of 995 HTML characters serialize to 49197 bytes
	nearLimit := map[string]any{}
	for i := 0; i < 49; i++ {
		nearLimit[fmt.Sprintf("k%02d", i)] = strings.Repeat("<p>&amp;", 124) + "<>&"
	}

	tests := []struct {
		name string
		data map[string]any
	}{
		{"markup well under limit", markup},
		{"html just under limit", nearLimit},
		{"url query", map[string]any{"url": "https://example.com/a?b=1&c=<2>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := serializedSize(tt.data)
			if err != nil {
				t.Fatal(err)
			}
			if size > MaxDataSize {
				t.Fatalf("fixture serializes to %d bytes, want <= %d", size, MaxDataSize)
			}
			got := Sanitize(tt.data)
			if !reflect.DeepEqual(got, tt.data) {
				t.Errorf("Sanitize() replaced a %d byte payload: %v", size, got["error"])
			}
		})
	}
}

func TestSerializedSize_Unescaped(t *testing.T) {
	size, err := serializedSize(map[string]any{"a": "<&>"})
	if err != nil {
		t.Fatal(err)
	}
	if want := len(`{"a":"<&>"}`); size != want {
		t.Errorf("serializedSize() = %d, want %d", size, want)
	}
}

func TestSanitize_Nil(t *testing.T) {
	if got := Sanitize(nil); got != nil {
		t.Errorf("Sanitize(nil) = %#v, want nil", got)
	}
}

func TestSanitize_DoesNotAliasInput(t *testing.T) {
	nested := map[string]any{"k": "v"}
	data := map[string]any{"nested": nested}

	got := Sanitize(data)
	nested["k"] = "changed"
	data["added"] = true

	if got["nested"].(map[string]any)["k"] != "v" {
		t.Error("Sanitize() result changed after nested input mutation")
	}
	if _, ok := got["added"]; ok {
		t.Error("Sanitize() result changed after top-level input mutation")
	}
}
