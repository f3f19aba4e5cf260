package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cifar/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BORN_HOME", t.TempDir())
	t.Setenv("BORN_OFFLINE", "1")

	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "born-cifar "+version+"\n", out)
}

func TestSummary(t *testing.T) {
	out, err := run(t, "summary", "tiny", "--channels", "4")
	require.NoError(t, err)

	assert.Contains(t, out, "features.0")
	assert.Contains(t, out, "classifier.0")
	assert.Contains(t, out, "[1 10]")
	assert.Contains(t, out, "tiny: ")
}

func TestSummary_Carlini(t *testing.T) {
	out, err := run(t, "summary", "carlini")
	require.NoError(t, err)

	assert.Contains(t, out, "[1 128 5 5]")
	assert.Contains(t, out, "classifier.5")
}

func TestSummary_Layers(t *testing.T) {
	out, err := run(t, "summary", "--layers", "4 M (8,0) M", "--batch-norm")
	require.NoError(t, err)

	// conv, bn, relu, pool, conv, bn, relu, pool
	assert.Contains(t, out, "[1 4 16 16]")
	assert.Contains(t, out, "[1 8 7 7]")
	assert.NotContains(t, out, "classifier")
}

func TestSummary_Errors(t *testing.T) {
	_, err := run(t, "summary", "resnet")
	require.ErrorIs(t, err, errUnknownArch)

	_, err = run(t, "summary")
	require.Error(t, err)

	_, err = run(t, "summary", "tiny", "--padding", "2")
	require.Error(t, err)

	_, err = run(t, "summary", "--layers", "(8,")
	require.Error(t, err)
}

func TestKey(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"key", "cifar10"}, "cifar10\thttp"},
		{[]string{"key", "cifar10", "--adv-l2", "0.5"}, "cifar10_advl2_128\t(not registered)"},
		{[]string{"key", "cifar10", "--static", "0.03", "--dynamic", "0.1"}, "cifar10_static_8\t"},
		{[]string{"key", "cifar10", "--inf"}, "cifar10_inf\t"},
		{[]string{"key", "cifar100"}, "cifar100\thttp"},
		{[]string{"key", "carlini"}, "carlini\t"},
		{[]string{"key", "tiny"}, "cifar10_tiny\t"},
		{[]string{"key", "tiny", "--padding", "0", "--adv"}, "cifar10_tinyb_adv\t"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:], " "), func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, tt.want), "got %q, want prefix %q", out, tt.want)
		})
	}
}

func TestKey_Errors(t *testing.T) {
	_, err := run(t, "key", "cifar10", "--adv-l2", "+Inf")
	require.ErrorIs(t, err, models.ErrInvalidEpsilon)

	_, err = run(t, "key", "tiny", "--padding", "2")
	require.ErrorIs(t, err, models.ErrInvalidPadding)
}

func TestKey_Registered(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "checkpoints.yaml")
	require.NoError(t, os.WriteFile(registry, []byte("cifar10_advl2_128: advl2.pt\n"), 0o600))
	t.Setenv("BORN_CHECKPOINTS", registry)

	out, err := run(t, "key", "cifar10", "--adv-l2", "0.5")
	require.NoError(t, err)
	assert.Equal(t, "cifar10_advl2_128\t"+filepath.Join(dir, "advl2.pt")+"\n", out)
}

func TestList(t *testing.T) {
	out, err := run(t, "list")
	require.NoError(t, err)

	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "cifar10-d875770b.pth")
	assert.Contains(t, out, "cifar100-3a55a987.pth")
}

func TestFetch(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pt", "b.pt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	registry := filepath.Join(dir, "checkpoints.yaml")
	require.NoError(t, os.WriteFile(registry, []byte("a: a.pt\nb: b.pt\n"), 0o600))
	t.Setenv("BORN_CHECKPOINTS", registry)

	out, err := run(t, "fetch", "-j", "2", "b", "a")
	require.NoError(t, err)
	assert.Equal(t,
		"b\t"+filepath.Join(dir, "b.pt")+"\n"+
			"a\t"+filepath.Join(dir, "a.pt")+"\n",
		out)
}

func TestFetch_Errors(t *testing.T) {
	_, err := run(t, "fetch", "missing")
	require.ErrorContains(t, err, "missing")

	// Remote builtin while offline
	_, err = run(t, "fetch", "cifar10")
	require.Error(t, err)
}

func TestEnv(t *testing.T) {
	out, err := run(t, "env")
	require.NoError(t, err)

	for _, name := range []string{"BORN_HOME", "BORN_DEBUG", "BORN_OFFLINE", "BORN_DOWNLOAD_TIMEOUT", "BORN_CHECKPOINTS"} {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "BORN_CHECKPOINTS"), strings.Index(out, "BORN_HOME"))
}

func TestNewTable(t *testing.T) {
	var out bytes.Buffer
	table := newTable(&out, "KEY", "LOCATION")
	table.Append([]string{"a", "b"})
	table.Render()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"KEY", "LOCATION"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"a", "b"}, strings.Fields(lines[1]))
	assert.Equal(t, strings.Index(lines[0], "LOCATION"), strings.Index(lines[1], "b"))
	assert.NotContains(t, out.String(), "|")
}
