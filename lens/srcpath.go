package lens

import (
	"go/build"
	"path/filepath"
	"strings"

	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
)

// PathTrimmer shortens frame file paths for display: project files become `./` relative, standard library
// files lose the GOROOT prefix, and module cache files are reduced to `module@version/file`.
type PathTrimmer struct {
	ProjectDir string
	GoRoot     string
}

// NewPathTrimmer creates a trimmer for the project directory using the build GOROOT.
func NewPathTrimmer(projectDir string) PathTrimmer {
	return PathTrimmer{ProjectDir: projectDir, GoRoot: build.Default.GOROOT}
}

// Trim returns the display form of file.
func (t PathTrimmer) Trim(file string) string {
	if file == "" {
		return ""
	}
	if t.ProjectDir != "" {
		if ok, err := fileWithinDir(file, t.ProjectDir); err == nil && ok {
			if rel, err := filepath.Rel(t.ProjectDir, file); err == nil {
				return "./" + filepath.ToSlash(rel)
			}
		}
	}

	// external file trim
	file = filepath.ToSlash(file)
	if t.GoRoot != "" {
		if ok, err := fileWithinDir(file, t.GoRoot); err == nil && ok {
			trimIndex := len(t.GoRoot) // remove goroot, but leave the `/` prefix to match below
			if t.GoRoot[trimIndex-1] == filepath.Separator {
				trimIndex--
			}
			file = strings.TrimPrefix(file[trimIndex:], "/src/")
		}
	}
	if idx := strings.Index(file, "/pkg/mod/"); idx >= 0 {
		file = unescapeModulePath(file[idx+len("/pkg/mod/"):])
	}
	return file
}

// fileWithinDir reports if filePath is dirPath or below it, comparing absolute cleaned paths.
func fileWithinDir(filePath, dirPath string) (bool, error) {
	absFile, err := filepath.Abs(filePath)
	if err != nil {
		return false, err
	}
	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absDir, absFile)
	if err != nil {
		return false, err
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../"), nil
}

// unescapeModulePath converts a module cache relative path `github.com/!foo/bar@v1.0.0/x.go` into
// `github.com/Foo/bar@v1.0.0/x.go`. Paths which are not a valid module path and version are returned unchanged.
func unescapeModulePath(p string) string {
	at := strings.IndexByte(p, '@')
	if at < 0 {
		return p
	}
	version, file, _ := strings.Cut(p[at+1:], "/")
	modPath, err := module.UnescapePath(p[:at])
	if err != nil {
		return p
	}
	if v, err := module.UnescapeVersion(version); err == nil {
		version = v
	}
	if !semver.IsValid(version) {
		return p
	}
	if file == "" {
		return modPath + "@" + version
	}
	return modPath + "@" + version + "/" + file
}
