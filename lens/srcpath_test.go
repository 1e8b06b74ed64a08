package lens

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathTrimmer(t *testing.T) {
	t.Parallel()

	trimmer := PathTrimmer{ProjectDir: "/home/dev/proj", GoRoot: "/usr/local/go"}
	tests := []struct {
		file   string
		expect string
	}{
		{"", ""},
		{"/home/dev/proj/internal/x.go", "./internal/x.go"},
		{"/usr/local/go/src/net/http/server.go", "net/http/server.go"},
		{"/home/dev/go/pkg/mod/github.com/!patch!lens/x@v1.2.3/a.go", "github.com/PatchLens/x@v1.2.3/a.go"},
		{"/opt/other/file.go", "/opt/other/file.go"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, trimmer.Trim(tt.file), tt.file)
	}
}

func TestUnescapeModulePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"github.com/!foo/bar@v1.0.0/x.go": "github.com/Foo/bar@v1.0.0/x.go",
		"golang.org/x/mod@v0.20.0":        "golang.org/x/mod@v0.20.0",
		"github.com/a/b/c.go":             "github.com/a/b/c.go",
		"github.com/a@notaversion/x.go":   "github.com/a@notaversion/x.go",
	}
	for input, expect := range tests {
		assert.Equal(t, expect, unescapeModulePath(input), input)
	}
}

func TestFileWithinDir(t *testing.T) {
	t.Parallel()

	root := filepath.Join("/tmp", "rootA")
	tests := []struct {
		name     string
		filePath string
		want     bool
	}{
		{"direct_child", filepath.Join(root, "foo.go"), true},
		{"nested", filepath.Join(root, "sub", "dir", "bar.go"), true},
		{"directory_itself", root, true},
		{"dot_prefixed_child", filepath.Join(root, "..hidden.go"), true},
		{"sibling", filepath.Join("/var", "other", "baz.go"), false},
		{"prefix_sibling", root + "B/x.go", false},
		{"parent_escape", filepath.Join(root, "..", "other", "file.go"), false},
		{"parent", "/tmp", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := fileWithinDir(tt.filePath, root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
