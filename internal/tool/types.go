// Package tool holds callable tool declarations, the per-turn registry, and
// the pure classification of tool HTTP responses. Execution lives in the turn
// package; everything here is side-effect free.
package tool

import (
	"context"
	"errors"
	"strings"

	"tern/internal/gemini"
)

// ErrUnknownTool is returned by Registry.Lookup when no declaration matches.
var ErrUnknownTool = errors.New("unknown tool")

// NativeFunc is an in-process tool implementation.
type NativeFunc func(ctx context.Context, args map[string]any) (any, error)

// Declaration describes one callable tool. Exactly one invocation target is
// set: an HTTP endpoint or a native function.
type Declaration struct {
	Name        string
	Description string
	// Parameters is a JSON-schema-shaped structure forwarded to the model
	// verbatim; it is not enforced client-side.
	Parameters map[string]any

	// HTTP target.
	Endpoint string
	Method   string

	// Native in-process target.
	Native NativeFunc

	// Platform marks tools provided by the application itself as opposed to
	// user-declared ones. Platform entries win name collisions.
	Platform bool

	// MutatesMemory marks tools withheld in incognito conversations.
	MutatesMemory bool
}

// Validate checks the declaration is well formed.
func (d *Declaration) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("tool name is required")
	}
	if d.Native == nil && strings.TrimSpace(d.Endpoint) == "" {
		return errors.New("tool needs an endpoint or a native function")
	}
	if d.Native != nil && d.Endpoint != "" {
		return errors.New("tool cannot have both an endpoint and a native function")
	}
	return nil
}

// FunctionDeclaration converts to the provider wire format.
func (d *Declaration) FunctionDeclaration() gemini.FunctionDeclaration {
	return gemini.FunctionDeclaration{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
	}
}
