// Package paths locates bundled datafiles (Template.zip, icon.png) next
// to the binary, in the working directory, or under a datafiles/
// directory at either location. BULLSEYE_DATA_DIR overrides the search.
package paths

import (
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"
)

// Find locates the passed datafile shortname and returns a path to open
// it at, or "" if no candidate location has it.
//
// For example, for "Template.zip" it may return
// "/opt/bullseye/datafiles/Template.zip".
func Find(fileName string) string {
	for _, path := range possiblePaths(fileName) {
		if f, err := os.Open(path); err == nil {
			f.Close()
			glog.Infof("paths.Find(%q)=%s", fileName, path)
			return path
		}
	}
	return ""
}

// Open locates the passed file in the same locations that Find would
// look, and opens it.
func Open(fileName string) (interface {
	io.ReadCloser
	io.Seeker
}, error) {
	path := Find(fileName)
	if path == "" {
		return nil, &os.PathError{Op: "open", Path: fileName, Err: os.ErrNotExist}
	}
	return os.Open(path)
}

func possiblePaths(fileName string) []string {
	var paths []string
	for _, dir := range possiblePathDirs() {
		paths = append(paths, filepath.Join(dir, fileName))
	}
	return paths
}

func possiblePathDirs() []string {
	dirs := []string{}
	if env := os.Getenv("BULLSEYE_DATA_DIR"); env != "" {
		dirs = append(dirs, env)
	}
	dirs = append(dirs, ".", "datafiles")
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		dirs = append(dirs, exeDir, filepath.Join(exeDir, "datafiles"))
	}
	return dirs
}
