package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/comsys/uanodes/modules/opcua/robotics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runArgs(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCheckPrintsReport(t *testing.T) {
	code, out, errOut := runArgs(t, "--bundled", "check")
	require.Equal(t, 0, code, errOut)

	var report struct {
		OK         bool     `json:"ok"`
		Namespaces []string `json:"namespaces"`
		Sources    []struct {
			Name string `json:"name"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.OK)
	assert.Equal(t, []string{"http://opcfoundation.org/UA/", robotics.DIURI, robotics.NamespaceURI}, report.Namespaces)
	require.Len(t, report.Sources, 2)
	assert.Equal(t, "bundled:di.csv", report.Sources[0].Name)
}

func TestResolveAndDescribe(t *testing.T) {
	code, out, errOut := runArgs(t, "--bundled", "resolve", robotics.NamespaceURI, "MotionDeviceSystemType_MotionDevices")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"node_id": "ns=2;i=5002"`)
	assert.Contains(t, out, `"browse_name": "MotionDevices"`)

	code, out, errOut = runArgs(t, "--bundled", "describe", "nsu="+robotics.DIURI+";i=15063")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"browse_name": "ComponentType"`)

	code, _, errOut = runArgs(t, "--bundled", "resolve", robotics.NamespaceURI, "NoSuchType")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "NoSuchType")
}

func TestListByClass(t *testing.T) {
	code, out, errOut := runArgs(t, "--bundled", "list", "ReferenceType")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "ns=1;i=6030\tConnectsTo\n")
	assert.Contains(t, out, "ns=2;i=18179\tControls\n")
	assert.Contains(t, out, "i=45\tHasSubtype\n")
}

func TestGenerateMatchesBundledConstants(t *testing.T) {
	code, out, errOut := runArgs(t, "--bundled", "--namespace", robotics.NamespaceURI, "--package", "robotics", "generate")
	require.Equal(t, 0, code, errOut)
	assert.True(t, strings.HasPrefix(out, "// Code generated by uanodes generate; DO NOT EDIT."))
	assert.Regexp(t, `MotionDeviceSystemType_MotionDevices\s+uint32 = 5002`, out)
	assert.Regexp(t, `UserType_Level\s+uint32 = 18176`, out)
}

func TestCacheThenLoadFromCache(t *testing.T) {
	dir, err := ioutil.TempDir("", "uanodes")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	db := filepath.Join(dir, "models.db")

	code, _, errOut := runArgs(t, "--bundled", "--cache", db, "--cache-name", "robotics", "cache")
	require.Equal(t, 0, code, errOut)

	code, out, errOut := runArgs(t, "--cache", db, "--cache-name", "robotics", "resolve", robotics.NamespaceURI, "ControllerType")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"node_id": "ns=2;i=1003"`)

	code, _, errOut = runArgs(t, "--cache", db, "--cache-name", "other", "check")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")
}

func TestExportWritesFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "uanodes")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "robotics.yaml")

	code, _, errOut := runArgs(t, "--bundled", "--output", path, "export")
	require.Equal(t, 0, code, errOut)

	code, out, errOut := runArgs(t, "--model", path, "resolve", robotics.DIURI, "DeviceType")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"node_id": "ns=1;i=1002"`)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no verb", []string{"--bundled"}, "no verb"},
		{"unknown verb", []string{"--bundled", "frobnicate"}, "unknown verb"},
		{"no source", []string{"check"}, "no model source"},
		{"resolve args", []string{"--bundled", "resolve", "x"}, "resolve takes"},
		{"bad class", []string{"--bundled", "list", "Widget"}, "unknown node class"},
		{"generate namespace", []string{"--bundled", "generate"}, "--namespace"},
		{"cache target", []string{"--bundled", "cache"}, "cache needs"},
		{"bad flag", []string{"--no-such-flag", "check"}, "no-such-flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runArgs(t, tt.args...)
			assert.Equal(t, 2, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}

func TestNegatedFlagOverridesConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "uanodes")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "uanodes.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte("[model]\nbundled = true\n"), 0644))

	code, _, errOut := runArgs(t, "--config", path, "check")
	require.Equal(t, 0, code, errOut)

	code, _, errOut = runArgs(t, "--config", path, "--no-bundled", "check")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "no model source")
}

func TestHelp(t *testing.T) {
	code, out, _ := runArgs(t, "--help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "--bundled")
}
