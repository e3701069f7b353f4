package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()

	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, content, 0o644))
}

func TestFiles_WalkCollectsSourceFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/main.go", []byte("package main\n"))
	writeFile(t, root, "src/util.go", []byte("package main\n"))
	writeFile(t, root, "docs/readme.md", []byte("# readme\n"))

	res, err := Files(context.Background(), Options{Root: root})
	require.NoError(t, err)

	// Lexical order, slash separated, relative to root.
	assert.Equal(t, []string{"docs/readme.md", "src/main.go", "src/util.go"}, res.Files)
	assert.Equal(t, Stats{}, res.Stats)
}

func TestFiles_PrunesExcludedAndHiddenDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/a.go", []byte("package a\n"))
	writeFile(t, root, "node_modules/pkg/index.js", []byte("module.exports = 1\n"))
	writeFile(t, root, ".git/config", []byte("[core]\n"))

	res, err := Files(context.Background(), Options{
		Root:        root,
		ExcludeDirs: []string{"node_modules"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"src/a.go"}, res.Files)

	// Pruned directories are never enumerated, so nothing is counted.
	assert.Equal(t, Stats{}, res.Stats)
}

func TestFiles_ExtensionFilter(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "main.go", []byte("package main\n"))
	writeFile(t, root, "readme.md", []byte("# readme\n"))

	res, err := Files(context.Background(), Options{
		Root:       root,
		Extensions: []string{".go"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, res.Files)
	assert.Equal(t, 1, res.Stats.Filtered)
}

func TestFiles_SkipsOversized(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "small.go", []byte("package a\n"))
	writeFile(t, root, "big.go", make([]byte, 2048))

	res, err := Files(context.Background(), Options{
		Root:        root,
		MaxFileSize: 1024,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"small.go"}, res.Files)
	assert.Equal(t, 1, res.Stats.Oversized)
}

func TestFiles_SkipsBinary(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "text.go", []byte("package a\n"))
	writeFile(t, root, "blob.go", []byte("MZ\x00\x01\x02binary"))

	res, err := Files(context.Background(), Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"text.go"}, res.Files)
	assert.Equal(t, 1, res.Stats.Binary)
}

func TestFiles_SkipsVendoredPaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "app.go", []byte("package a\n"))
	writeFile(t, root, "vendor/lib.go", []byte("package lib\n"))

	// No ExcludeDirs here, so the vendored path reaches the classifier.
	res, err := Files(context.Background(), Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"app.go"}, res.Files)
	assert.Equal(t, 1, res.Stats.Vendored)
}

func TestFiles_SkipsHiddenFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "app.go", []byte("package a\n"))
	writeFile(t, root, ".env", []byte("SECRET=1\n"))

	res, err := Files(context.Background(), Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"app.go"}, res.Files)
	assert.Equal(t, 1, res.Stats.Filtered)
}

func TestFiles_RootMissing(t *testing.T) {
	t.Parallel()

	_, err := Files(context.Background(), Options{Root: "/nonexistent/path"})
	assert.ErrorIs(t, err, ErrRootMissing)
}

func TestFiles_CanceledContext(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.go", []byte("package a\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Files(ctx, Options{Root: root})
	assert.ErrorIs(t, err, context.Canceled)
}

// commitFixture initializes a git repository at root and commits every
// file currently in it.
func commitFixture(t *testing.T, root string) {
	t.Helper()

	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "scan test",
			Email: "scan@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
}

func TestFiles_GitOnlyListsTrackedFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/main.go", []byte("package main\n"))
	writeFile(t, root, "docs/readme.md", []byte("# readme\n"))
	commitFixture(t, root)

	// Created after the commit, so HEAD does not know it.
	writeFile(t, root, "untracked.go", []byte("package main\n"))

	res, err := Files(context.Background(), Options{Root: root, GitOnly: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/readme.md", "src/main.go"}, res.Files)

	// The plain walk sees the untracked file.
	walked, err := Files(context.Background(), Options{Root: root})
	require.NoError(t, err)
	assert.Contains(t, walked.Files, "untracked.go")
}

func TestFiles_GitOnlySubdirectoryRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/main.go", []byte("package main\n"))
	writeFile(t, root, "docs/readme.md", []byte("# readme\n"))
	commitFixture(t, root)

	res, err := Files(context.Background(), Options{
		Root:    filepath.Join(root, "src"),
		GitOnly: true,
	})
	require.NoError(t, err)

	// Entries outside src/ are dropped, the rest are re-relativized.
	assert.Equal(t, []string{"main.go"}, res.Files)
}

func TestFiles_GitOnlyOutsideRepository(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.go", []byte("package a\n"))

	_, err := Files(context.Background(), Options{Root: root, GitOnly: true})
	assert.ErrorIs(t, err, ErrNotARepository)
}
