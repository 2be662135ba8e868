package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsPackageManagerCommand(t *testing.T) {
	cases := []struct {
		argv []string
		want bool
	}{
		{[]string{"npm", "start"}, true},
		{[]string{"yarn", "dev"}, true},
		{[]string{"pnpm", "run", "dev"}, true},
		{[]string{"/usr/local/bin/npm", "start"}, true},
		{[]string{"go", "run", "."}, false},
		{nil, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DefaultIsPackageManagerCommand(c.argv), "argv=%v", c.argv)
	}
}

func TestCheckPathMissing(t *testing.T) {
	se := checkPath(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NotNil(t, se, "expected a structured error for a missing path")
	assert.Equal(t, "PATH_NOT_FOUND", se.Kind)
}

func TestCheckPathExists(t *testing.T) {
	assert.Nil(t, checkPath(t.TempDir()), "expected no error for an existing directory")
}

func TestDetectPackageManagerPrefersYarnLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yarn.lock"), []byte(""), 0o644))
	assert.Equal(t, "yarn", detectPackageManager(dir))
}

func TestDetectPackageManagerDefaultsToNpm(t *testing.T) {
	assert.Equal(t, "npm", detectPackageManager(t.TempDir()))
}

func TestCheckDeps(t *testing.T) {
	dir := t.TempDir()
	needsInstall, hasPkg, pm := CheckDeps(dir)
	assert.False(t, hasPkg, "expected hasPackageJSON=false without package.json")
	assert.False(t, needsInstall, "expected needsInstall=false without package.json")
	assert.Equal(t, "npm", pm)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))
	needsInstall, hasPkg, _ = CheckDeps(dir)
	assert.True(t, hasPkg, "expected hasPackageJSON=true")
	assert.True(t, needsInstall, "expected needsInstall=true without node_modules")

	require.NoError(t, os.Mkdir(filepath.Join(dir, "node_modules"), 0o755))
	needsInstall, _, _ = CheckDeps(dir)
	assert.False(t, needsInstall, "expected needsInstall=false once node_modules exists")
}

func TestClassifyLine(t *testing.T) {
	cases := []struct {
		line      string
		wantKind  string
		wantMatch bool
	}{
		{"Error: listen EADDRINUSE: address already in use :::5173", "PORT_IN_USE", true},
		{"Error: Cannot find module 'react'", "MISSING_DEPENDENCIES", true},
		{"open config.json: ENOENT", "FILE_NOT_FOUND", true},
		{"Server started on port 5173", "", false},
	}
	for _, c := range cases {
		kind, matched := classifyLine(c.line)
		assert.Equal(t, c.wantMatch, matched, "line=%q", c.line)
		assert.Equal(t, c.wantKind, kind, "line=%q", c.line)
	}
}

func TestCheckManifestAndDepsSkipsNonPackageManagerCommands(t *testing.T) {
	m := &LifecycleManager{}
	assert.Nil(t, m.checkManifestAndDeps(t.TempDir(), []string{"go", "run", "."}), "expected no preflight error for a non-npm command")
}

func TestCheckManifestAndDepsRejectsMissingManifest(t *testing.T) {
	m := &LifecycleManager{}
	se := m.checkManifestAndDeps(t.TempDir(), []string{"npm", "start"})
	require.NotNil(t, se)
	assert.Equal(t, "MISSING_MANIFEST", se.Kind)
}

func TestCheckManifestAndDepsRejectsMissingDeps(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))
	m := &LifecycleManager{}
	se := m.checkManifestAndDeps(dir, []string{"npm", "start"})
	require.NotNil(t, se)
	assert.Equal(t, "MISSING_DEPENDENCIES", se.Kind)
	assert.True(t, se.NeedsInstall)
}
