package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(content), 0o644))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     Type
	}{
		{"react-scripts in deps", `{"dependencies":{"react":"18","react-scripts":"5"}}`, TypeCRA},
		{"react-scripts in devDeps", `{"dependencies":{"react":"18"},"devDependencies":{"react-scripts":"5"}}`, TypeCRA},
		{"vite in devDeps", `{"dependencies":{"react":"18"},"devDependencies":{"vite":"5"}}`, TypeVite},
		{"cra beats vite", `{"dependencies":{"react-scripts":"5","vite":"5"}}`, TypeCRA},
		{"plain react", `{"dependencies":{"react":"18"}}`, TypeReact},
		{"react only in devDeps", `{"devDependencies":{"react":"18"}}`, TypeUnknown},
		{"no markers", `{"dependencies":{"express":"4"}}`, TypeUnknown},
		{"empty manifest", `{}`, TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.manifest)

			got, err := Classify(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_NoManifest(t *testing.T) {
	got, err := Classify(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, TypeUnknown, got)
}

func TestClassify_MalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "{")
	_, err := Classify(dir)
	assert.Error(t, err)
}

func TestMaterializeBuildPlan(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies":{"react":"18","react-dom":"18"}}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DockerfileName), []byte("stale"), 0o644))

	path, err := MaterializeBuildPlan(dir, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DockerfileName), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(content)
	assert.True(t, strings.HasPrefix(s, "FROM node:18-alpine\n"))
	assert.Contains(t, s, "RUN npm install\nENV GENERATE_SOURCEMAP=false\nRUN npm run build\n")
	assert.Contains(t, s, `CMD ["serve", "-s", "build", "-l", "3000"]`)
	assert.NotContains(t, s, "stale")
}

func TestMaterializeBuildPlan_SourceMaps(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies":{"react":"18"}}`)

	path, err := MaterializeBuildPlan(dir, PlanOptions{SourceMaps: true})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "GENERATE_SOURCEMAP")
	assert.Contains(t, string(content), "RUN npm install\nRUN npm run build\n")
}

func TestMaterializeBuildPlan_Unsupported(t *testing.T) {
	t.Run("no manifest", func(t *testing.T) {
		dir := t.TempDir()
		_, err := MaterializeBuildPlan(dir, PlanOptions{})
		assert.ErrorIs(t, err, ErrNoManifest)
		assert.ErrorIs(t, err, ErrUnsupported)

		_, statErr := os.Stat(filepath.Join(dir, DockerfileName))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("vite without production react", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, `{"devDependencies":{"vite":"5","react":"18"}}`)

		typ, err := Classify(dir)
		require.NoError(t, err)
		assert.Equal(t, TypeVite, typ)

		_, err = MaterializeBuildPlan(dir, PlanOptions{})
		assert.ErrorIs(t, err, ErrNotReact)
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}
