// resolver_test.go: Tests for plugin set validation and ordering
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namesOf(plugins []Plugin) []string {
	names := make([]string, len(plugins))
	for i, plugin := range plugins {
		names[i] = plugin.Info().Name
	}
	return names
}

func TestResolvePlugins_EmptySet(t *testing.T) {
	resolved, err := ResolvePlugins(nil)
	require.NoError(t, err)
	assert.Empty(t, resolved)

	resolved, err = ResolvePlugins([]Plugin{})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolvePlugins_RegistrationOrder(t *testing.T) {
	resolved, err := ResolvePlugins([]Plugin{plain("a", 0), plain("b", 0), plain("c", 0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, namesOf(resolved))
}

func TestResolvePlugins_PriorityOrder(t *testing.T) {
	resolved, err := ResolvePlugins([]Plugin{plain("low", 10), plain("high", -5), plain("mid", 0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, namesOf(resolved))
}

func TestResolvePlugins_DependencyBeatsPriority(t *testing.T) {
	// audit would run first on priority alone, but it depends on soft-delete
	resolved, err := ResolvePlugins([]Plugin{
		plain("audit", -100, "soft-delete"),
		plain("soft-delete", 100),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"soft-delete", "audit"}, namesOf(resolved))
}

func TestResolvePlugins_PriorityBreaksTiesAmongReady(t *testing.T) {
	resolved, err := ResolvePlugins([]Plugin{
		plain("base", 0),
		plain("second", 5, "base"),
		plain("first", -5, "base"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "first", "second"}, namesOf(resolved))
}

func TestResolvePlugins_DiamondDependencies(t *testing.T) {
	resolved, err := ResolvePlugins([]Plugin{
		plain("top", 0, "left", "right"),
		plain("left", 2, "root"),
		plain("right", 1, "root"),
		plain("root", 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "right", "left", "top"}, namesOf(resolved))
}

func TestResolvePlugins_Deterministic(t *testing.T) {
	plugins := []Plugin{
		plain("metrics", 0),
		plain("audit", 0, "soft-delete"),
		plain("soft-delete", -10),
		plain("cache", 0, "metrics"),
	}

	first, err := ResolvePlugins(plugins)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		again, err := ResolvePlugins(plugins)
		require.NoError(t, err)
		assert.Equal(t, namesOf(first), namesOf(again))
	}
}

func TestResolvePlugins_InputUntouched(t *testing.T) {
	plugins := []Plugin{plain("z", 5), plain("a", -5)}

	resolved, err := ResolvePlugins(plugins)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z"}, namesOf(resolved))

	assert.Equal(t, "z", plugins[0].Info().Name)
	assert.Equal(t, "a", plugins[1].Info().Name)
}

func TestResolvePlugins_DuplicateName(t *testing.T) {
	_, err := ResolvePlugins([]Plugin{plain("dup", 0), plain("dup", 1)})

	structured := requireErrorCode(t, err, ErrCodeDuplicatePluginName)
	assert.Equal(t, "dup", structured.Context["plugin_name"])
}

func TestResolvePlugins_MissingDependency(t *testing.T) {
	_, err := ResolvePlugins([]Plugin{plain("audit", 0, "soft-delete")})

	structured := requireErrorCode(t, err, ErrCodeMissingDependency)
	assert.Equal(t, "audit", structured.Context["plugin_name"])
	assert.Equal(t, "soft-delete", structured.Context["dependency"])
}

func TestResolvePlugins_DependencyCycle(t *testing.T) {
	_, err := ResolvePlugins([]Plugin{
		plain("a", 0, "b"),
		plain("b", 0, "c"),
		plain("c", 0, "a"),
	})
	requireErrorCode(t, err, ErrCodeDependencyCycle)
}

func TestResolvePlugins_SelfDependency(t *testing.T) {
	_, err := ResolvePlugins([]Plugin{plain("loop", 0, "loop")})
	requireErrorCode(t, err, ErrCodeDependencyCycle)
}

func TestResolvePlugins_CycleAmongSubset(t *testing.T) {
	_, err := ResolvePlugins([]Plugin{
		plain("standalone", 0),
		plain("x", 0, "y"),
		plain("y", 0, "x"),
	})

	structured := requireErrorCode(t, err, ErrCodeDependencyCycle)
	unresolved, _ := structured.Context["unresolved_plugins"].(string)
	assert.Contains(t, unresolved, "x")
	assert.Contains(t, unresolved, "y")
	assert.NotContains(t, unresolved, "standalone")
}

func TestResolvePlugins_EmptyName(t *testing.T) {
	_, err := ResolvePlugins([]Plugin{plain("ok", 0), plain("", 0)})

	structured := requireErrorCode(t, err, ErrCodeInvalidPluginName)
	assert.Equal(t, 1, structured.Context["registration_index"])
}
