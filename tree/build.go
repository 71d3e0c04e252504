package tree

import (
	"fmt"
	"os"
	"path/filepath"
)

// Build walks the filesystem rooted at path and returns the corresponding
// offered Entry tree. Symlinks are followed as ordinary entries -- os.Stat
// (not Lstat) resolves them, leaving the rest of the decision to the
// filesystem layer. Directory entries are recorded in os.ReadDir's
// enumeration order, which on every supported platform is lexical by
// name; that order is preserved verbatim on the wire and during streaming.
func Build(path string) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return buildNode(path, filepath.Base(path), info)
}

func buildNode(fullPath, name string, info os.FileInfo) (*Entry, error) {
	if !info.IsDir() {
		return File(name, uint64(info.Size())), nil
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", fullPath, err)
	}
	dir := Dir(name)
	for _, e := range entries {
		childPath := filepath.Join(fullPath, e.Name())
		childInfo, err := os.Stat(childPath)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", childPath, err)
		}
		child, err := buildNode(childPath, e.Name(), childInfo)
		if err != nil {
			return nil, err
		}
		dir.Children = append(dir.Children, child)
	}
	return dir, nil
}

// BuildOptional is Build, but a missing root path is not an error: it
// reports (nil, nil). The receiver uses this to probe for a local copy of
// each top-level offered entry when planning a resume.
func BuildOptional(path string) (*Entry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return Build(path)
}
