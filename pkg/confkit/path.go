package confkit

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const maxSearchDepth = 8

// searchDirs lists this source directory and its parents up to the first one
// holding go.mod or .git. It is empty when the caller frame is unavailable.
func searchDirs() []string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return nil
	}
	var dirs []string
	dir := filepath.Dir(file)
	for i := 0; i < maxSearchDepth; i++ {
		dirs = append(dirs, dir)
		if isProjectRoot(dir) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dirs
}

// ProjectRoot locates the repository root from this source file, falling
// back to the working directory.
func ProjectRoot() (string, error) {
	for _, dir := range searchDirs() {
		if isProjectRoot(dir) {
			return dir, nil
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return ".", fmt.Errorf("getwd: %w", err)
	}
	return wd, nil
}

// MustProjectRoot returns the repository root path or panics on failure.
func MustProjectRoot() string {
	root, err := ProjectRoot()
	if err != nil {
		panic(err)
	}
	return root
}

// ProjectPath joins the repository root with the provided relative path.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// MustProjectPath returns ProjectPath(rel) and panics on failure.
func MustProjectPath(rel string) string {
	p, err := ProjectPath(rel)
	if err != nil {
		panic(err)
	}
	return p
}

func dotenvPath(dir string) string {
	return filepath.Join(dir, ".env")
}

func isProjectRoot(dir string) bool {
	return fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git"))
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
