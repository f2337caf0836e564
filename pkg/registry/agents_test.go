// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTouchAutoRegistersWithDisplayName(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "agents.json"))
	require.NoError(t, err)

	now := time.Now()
	m := r.Touch(42, "acme", "planner", "v2", now)
	require.Equal(t, "acme.planner.v2", m.DisplayName)
	require.Equal(t, now, m.FirstSeen)
}

func TestTouchUnknownAgentFallsBack(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "agents.json"))
	require.NoError(t, err)
	m := r.Touch(7, "", "", "", time.Now())
	require.Equal(t, "Unknown Agent (7)", m.DisplayName)
}

func TestSaveAndReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	r, err := Open(path)
	require.NoError(t, err)
	r.Touch(1, "ns", "name", "v1", time.Now())
	require.NoError(t, r.Save())

	r2, err := Open(path)
	require.NoError(t, err)
	m, ok := r2.Get(1)
	require.True(t, ok)
	require.Equal(t, "ns.name.v1", m.DisplayName)
}

func TestSaveKeepsBackupOfPriorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	r, err := Open(path)
	require.NoError(t, err)
	r.Touch(1, "a", "b", "c", time.Now())
	require.NoError(t, r.Save())
	r.Touch(2, "d", "e", "f", time.Now())
	require.NoError(t, r.Save())

	require.FileExists(t, path+".bak")
}
