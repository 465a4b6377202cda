// plugin_test.go: Tests for the plugin contract
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityOnlyPlugin struct {
	BasePlugin
}

func TestBasePlugin_Info(t *testing.T) {
	plugin := identityOnlyPlugin{BasePlugin: BasePlugin{PluginInfo: PluginInfo{
		Name:      "audit",
		Version:   "2.1.0",
		Priority:  50,
		DependsOn: []string{"soft-delete"},
	}}}

	info := plugin.Info()
	assert.Equal(t, "audit", info.Name)
	assert.Equal(t, "2.1.0", info.Version)
	assert.Equal(t, 50, info.Priority)
	assert.Equal(t, []string{"soft-delete"}, info.DependsOn)
}

func TestBasePlugin_CapabilityFreePluginRegisters(t *testing.T) {
	plugin := &identityOnlyPlugin{BasePlugin: BasePlugin{PluginInfo: PluginInfo{Name: "marker"}}}

	db, err := NewExecutor(context.Background(), &fakeConn{}, []Plugin{plugin}, nil)
	require.NoError(t, err)

	infos := db.Plugins()
	require.Len(t, infos, 1)
	assert.Equal(t, "marker", infos[0].Name)

	_, err = db.Select(context.Background(), &Query{})
	require.NoError(t, err)
	require.NoError(t, db.Destroy(context.Background()))
}
