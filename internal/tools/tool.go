// internal/tools/tool.go
package tools

import (
	"context"
	"encoding/json"

	"github.com/crissins/admit-care/internal/common/errors"
)

// Result is what a tool handler returns to the relay. Body is injected into
// the conversation as the function output; ObjectiveComplete marks the
// session's goal (a stored intake record) as reached.
type Result struct {
	Body              string
	ObjectiveComplete bool
}

// Handler executes one tool invocation. Arguments arrive exactly as the
// model produced them.
type Handler func(ctx context.Context, arguments json.RawMessage) (*Result, error)

// Descriptor describes one tool exposed to the model: its contract in the
// session.update payload plus the server-side handler that fulfils it.
type Descriptor struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Handler     Handler
}

// Set is the fixed tool registry for a gateway process. It is built once at
// startup and read concurrently by every session; it must not be mutated
// afterwards.
type Set struct {
	order  []string
	byName map[string]*Descriptor
}

func NewSet(descriptors ...*Descriptor) *Set {
	s := &Set{byName: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if _, exists := s.byName[d.Name]; exists {
			continue
		}
		s.order = append(s.order, d.Name)
		s.byName[d.Name] = d
	}
	return s
}

// Get returns the descriptor for a tool name the model asked for.
func (s *Set) Get(name string) (*Descriptor, error) {
	d, ok := s.byName[name]
	if !ok {
		return nil, errors.NewUnknownToolError(name)
	}
	return d, nil
}

// Definitions renders the tool contracts for the upstream session.update
// payload, in registration order.
func (s *Set) Definitions() []map[string]interface{} {
	defs := make([]map[string]interface{}, 0, len(s.order))
	for _, name := range s.order {
		d := s.byName[name]
		defs = append(defs, map[string]interface{}{
			"type":        "function",
			"name":        d.Name,
			"description": d.Description,
			"parameters":  json.RawMessage(d.Parameters),
		})
	}
	return defs
}
