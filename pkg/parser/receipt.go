package parser

import (
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fastjson"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
)

// ErrNotObject is returned when a submitted body is valid JSON but not an object
var ErrNotObject = errors.New("log entry must be a JSON object")

// Receipt is a submitted log entry normalized for storage
type Receipt struct {
	Record    []byte
	Timestamp string
}

// Receiver normalizes POSTed log entries. It is safe for concurrent use.
type Receiver struct {
	parsers fastjson.ParserPool
	arenas  fastjson.ArenaPool
}

// NewReceiver creates a new receiver
func NewReceiver() *Receiver {
	return &Receiver{}
}

// Receive validates body and returns the record to append. Missing level and
// source get defaults, an error value is narrowed to name, message and stack,
// and the record is stamped with the receipt time. A timestamp sent by the
// producer is kept as clientTimestamp. All other fields pass through.
func (r *Receiver) Receive(body []byte, now time.Time) (Receipt, error) {
	p := r.parsers.Get()
	defer r.parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return Receipt{}, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return Receipt{}, ErrNotObject
	}

	a := r.arenas.Get()
	defer r.arenas.Put(a)
	defer a.Reset()

	for _, key := range []string{"level", "source", "error", "timestamp", "clientTimestamp"} {
		keepLast(obj, key)
	}

	if isMissing(obj.Get("level")) {
		obj.Set("level", a.NewString(string(event.LevelInfo)))
	}
	if isMissing(obj.Get("source")) {
		obj.Set("source", a.NewString(event.DefaultSource))
	}

	if ev := obj.Get("error"); ev != nil {
		if ev.Type() == fastjson.TypeNull {
			obj.Del("error")
		} else {
			obj.Set("error", narrowError(a, ev))
		}
	}

	if ts := obj.Get("timestamp"); ts != nil {
		obj.Set("clientTimestamp", ts)
	}
	stamp := now.UTC().Format(event.TimeFormat)
	obj.Set("timestamp", a.NewString(stamp))

	return Receipt{Record: v.MarshalTo(nil), Timestamp: stamp}, nil
}

// keepLast removes all but the final occurrence of key, the one JSON decoders
// read back
func keepLast(o *fastjson.Object, key string) {
	n := 0
	o.Visit(func(k []byte, _ *fastjson.Value) {
		if string(k) == key {
			n++
		}
	})
	for ; n > 1; n-- {
		o.Del(key)
	}
}

func isMissing(v *fastjson.Value) bool {
	return v == nil || v.Type() == fastjson.TypeNull
}

// narrowError keeps only the name, message and stack of a submitted error.
// Scalars are treated as the error message.
func narrowError(a *fastjson.Arena, v *fastjson.Value) *fastjson.Value {
	out := a.NewObject()

	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		for _, key := range []string{"name", "message", "stack"} {
			keepLast(o, key)
			if f := o.Get(key); f != nil {
				out.Set(key, f)
			}
		}
	case fastjson.TypeString:
		out.Set("message", a.NewStringBytes(v.GetStringBytes()))
	default:
		out.Set("message", a.NewString(v.String()))
	}
	return out
}
