package tree_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kbrandt/quicsend/tree"
)

func TestBuildFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("Hello, world!"), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := tree.Build(path)
	if err != nil {
		t.Fatal(err)
	}
	if e.IsDir || e.Name != "hello.txt" || e.Size != 13 {
		t.Errorf("got %#v", e)
	}
}

func TestBuildDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("yz"), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := tree.Build(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsDir || len(e.Children) != 2 {
		t.Fatalf("got %#v", e)
	}
	if e.Children[0].Name != "b.txt" || e.Children[1].Name != "sub" {
		t.Errorf("wrong order: %s, %s", e.Children[0].Name, e.Children[1].Name)
	}
	sub := e.Children[1]
	if !sub.IsDir || len(sub.Children) != 1 || sub.Children[0].Name != "a.txt" || sub.Children[0].Size != 1 {
		t.Errorf("got %#v", sub)
	}
}

func TestBuildMissingPath(t *testing.T) {
	if _, err := tree.Build(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestBuildOptionalMissing(t *testing.T) {
	e, err := tree.BuildOptional(filepath.Join(t.TempDir(), "nope"))
	if err != nil || e != nil {
		t.Errorf("got %#v, %v", e, err)
	}
}
