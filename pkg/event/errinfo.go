package event

import (
	"fmt"
)

// ErrorInfo is the fixed projection of an error value carried in log payloads
type ErrorInfo struct {
	Name     string `json:"name,omitempty"`
	Message  string `json:"message,omitempty"`
	Stack    string `json:"stack,omitempty"`
	ToString string `json:"toString,omitempty"`
}

// Map returns the non-empty fields of e as a JSON-safe map
func (e ErrorInfo) Map() map[string]any {
	m := make(map[string]any, 4)
	if e.Name != "" {
		m["name"] = e.Name
	}
	if e.Message != "" {
		m["message"] = e.Message
	}
	if e.Stack != "" {
		m["stack"] = e.Stack
	}
	if e.ToString != "" {
		m["toString"] = e.ToString
	}
	return m
}

type namer interface {
	Name() string
}

type stacker interface {
	Stack() []byte
}

type stringStacker interface {
	Stack() string
}

// Project maps any value to an ErrorInfo. Missing pieces stay empty: nil
// yields the zero projection and non-error values only get ToString.
func Project(v any) ErrorInfo {
	if v == nil {
		return ErrorInfo{}
	}

	info := ErrorInfo{ToString: TruncateString(fmt.Sprint(v))}

	err, ok := v.(error)
	if !ok {
		return info
	}

	info.Message = TruncateString(err.Error())
	if n, ok := v.(namer); ok {
		info.Name = n.Name()
	} else {
		info.Name = fmt.Sprintf("%T", v)
	}

	switch s := v.(type) {
	case stacker:
		info.Stack = string(s.Stack())
	case stringStacker:
		info.Stack = s.Stack()
	}
	return info
}

// PanicError wraps a value recovered from a panic together with the stack at
// the point of recovery
type PanicError struct {
	Value any
	stack []byte
}

// NewPanicError records a recovered value and its stack
func NewPanicError(v any, stack []byte) *PanicError {
	return &PanicError{Value: v, stack: stack}
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Name reports the projection name of a recovered panic
func (p *PanicError) Name() string {
	return "panic"
}

// Stack returns the goroutine stack captured at recovery
func (p *PanicError) Stack() []byte {
	return p.stack
}

// Unwrap exposes a recovered error value to errors.Is/As
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}
