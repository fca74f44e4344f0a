// Copyright © 2025 DBDiag Agents Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tools is the tool-invocation runtime: a registry of typed,
// read-only capabilities and the dispatch pipeline that validates
// arguments, applies guardrails, enforces deadlines, caps results, and
// records every call to the observability sink.
package tools

import (
	"context"
	"sync"
	"time"

	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

// Handler executes a tool given its decoded, validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Descriptor is a registered tool: name, schema, capability flags, and
// handler. Tools are registered at startup and never mutated.
type Descriptor struct {
	Name            string
	Description     string
	Schema          Schema
	Capabilities    map[models.CapabilityFlag]bool
	DefaultDeadline time.Duration
	Handler         Handler
	// ArgsStruct, when set, returns a fresh pointer to a typed parameter
	// struct (mapstructure/validate tagged) used for the decode-then-
	// validate step in dispatch. Optional: tools with only scalar string
	// arguments can leave it nil and rely on the generic schema check.
	ArgsStruct func() any
	// SelfValidatedSQLArgs names parameters whose SQL-shape leading
	// keyword is already enforced by the handler itself (the gateway's
	// run_readonly / run_readonly_probe). Dispatch skips only the
	// redundant leading-keyword portion of the input guardrail for these
	// parameters, so a disallowed shape surfaces as UnsafeQuery rather
	// than InputBlocked; stacked-statement and comment-escape checks
	// still apply.
	SelfValidatedSQLArgs map[string]bool
}

// Schema is a tool's typed input schema: each parameter has a name,
// type, optional default, and optional enum.
type Schema struct {
	Parameters []Parameter
}

// Parameter is one entry of a tool's input schema.
type Parameter struct {
	Name     string
	Type     string // "string" | "integer" | "number" | "boolean"
	Required bool
	Default  any
	Enum     []string
}

// JSONSchema renders the descriptor's schema as the map[string]any shape
// the reasoning service's tool catalog expects (interfaces.ToolDescriptor.Schema).
func (d Descriptor) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Schema.Parameters))
	var required []string
	for _, p := range d.Schema.Parameters {
		prop := map[string]any{"type": p.Type}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func (d Descriptor) Has(flag models.CapabilityFlag) bool {
	return d.Capabilities[flag]
}

// Registry holds every registered tool. Built once at startup, read
// concurrently thereafter.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds a tool. Names must be globally unique; registering a
// duplicate name panics, since this only ever happens at startup wiring.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		panic("tools: duplicate tool name " + d.Name)
	}
	r.tools[d.Name] = d
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns every registered tool, for building the reasoning
// service's tool catalog.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}
