// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeModifierKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		keys []string
		want []string
	}{
		{
			name: "modifiers lowercased",
			keys: []string{"Ctrl", "SHIFT", "a"},
			want: []string{"ctrl", "shift", "a"},
		},
		{
			name: "non-modifiers untouched",
			keys: []string{"Enter", "F5", "Tab"},
			want: []string{"Enter", "F5", "Tab"},
		},
		{
			name: "mixed",
			keys: []string{"Win", "Alt", "Delete"},
			want: []string{"win", "alt", "Delete"},
		},
	}

	hooks := DefaultHooks()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args := hooks.Apply("press_keys", map[string]any{"keys": tt.keys})
			assert.Equal(t, tt.want, args["keys"])
		})
	}
}

func TestNormalizeModifierKeysDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	input := map[string]any{"keys": []string{"Ctrl", "c"}}
	out := DefaultHooks().Apply("press_keys", input)

	assert.Equal(t, []string{"Ctrl", "c"}, input["keys"])
	assert.Equal(t, []string{"ctrl", "c"}, out["keys"])
}

func TestHooksOnlyApplyToRegisteredTools(t *testing.T) {
	t.Parallel()

	args := map[string]any{"keys": []string{"Ctrl"}}
	out := DefaultHooks().Apply("input_text", args)
	assert.Equal(t, []string{"Ctrl"}, out["keys"])
}

func TestHookRegistryOrder(t *testing.T) {
	t.Parallel()

	r := NewHookRegistry()
	var trace []string
	r.Register("demo", func(args map[string]any) map[string]any {
		trace = append(trace, "first")
		return args
	})
	r.Register("demo", func(args map[string]any) map[string]any {
		trace = append(trace, "second")
		return args
	})

	r.Apply("demo", nil)
	require.Equal(t, []string{"first", "second"}, trace)
}

func TestNormalizeModifierKeysHandlesAnySlices(t *testing.T) {
	t.Parallel()

	// Arguments rehydrated from JSON arrive as []any.
	args := DefaultHooks().Apply("release_keys", map[string]any{"keys": []any{"Ctrl", "x"}})
	assert.Equal(t, []string{"ctrl", "x"}, args["keys"])
}
