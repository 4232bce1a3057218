// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import "strings"

// Hook rewrites the arguments of one tool before dispatch. Hooks must not
// mutate the input map; they return the map to use.
type Hook func(args map[string]any) map[string]any

// HookRegistry holds per-tool argument hooks in registration order.
type HookRegistry struct {
	order []string
	hooks map[string][]Hook
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[string][]Hook)}
}

// Register appends a hook for the named tool.
func (r *HookRegistry) Register(tool string, hook Hook) {
	if _, ok := r.hooks[tool]; !ok {
		r.order = append(r.order, tool)
	}
	r.hooks[tool] = append(r.hooks[tool], hook)
}

// Apply runs the registered hooks for tool over args, in order.
func (r *HookRegistry) Apply(tool string, args map[string]any) map[string]any {
	if r == nil {
		return args
	}
	for _, hook := range r.hooks[tool] {
		args = hook(args)
	}
	return args
}

// DefaultHooks returns the registry every dispatcher starts with: modifier
// key normalization for the key-press tools.
func DefaultHooks() *HookRegistry {
	r := NewHookRegistry()
	r.Register("press_keys", normalizeModifierKeys)
	r.Register("release_keys", normalizeModifierKeys)
	return r
}

// modifierKeys are accepted case-insensitively; the remote runtime only
// understands the lowercase spellings.
var modifierKeys = map[string]struct{}{
	"ctrl":  {},
	"alt":   {},
	"shift": {},
	"win":   {},
	"cmd":   {},
	"meta":  {},
	"fn":    {},
}

// normalizeModifierKeys lowercases modifier key names in the keys argument
// so callers can write "Ctrl" and "ctrl" interchangeably. Non-modifier
// keys pass through untouched.
func normalizeModifierKeys(args map[string]any) map[string]any {
	raw, ok := args["keys"]
	if !ok {
		return args
	}
	keys, ok := raw.([]string)
	if !ok {
		// Args that already went through JSON land here as []any.
		anyKeys, ok := raw.([]any)
		if !ok {
			return args
		}
		keys = make([]string, 0, len(anyKeys))
		for _, k := range anyKeys {
			s, ok := k.(string)
			if !ok {
				return args
			}
			keys = append(keys, s)
		}
	}

	normalized := make([]string, len(keys))
	for i, key := range keys {
		lower := strings.ToLower(key)
		if _, isModifier := modifierKeys[lower]; isModifier {
			normalized[i] = lower
		} else {
			normalized[i] = key
		}
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	out["keys"] = normalized
	return out
}
