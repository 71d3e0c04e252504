package tree_test

import (
	"reflect"
	"testing"

	"github.com/kbrandt/quicsend/tree"
)

func TestSkippableFileMatch(t *testing.T) {
	offered := tree.File("hello.txt", 13)
	local := tree.File("hello.txt", 13)
	got := tree.Skippable(offered, local)
	want := &tree.SkipNode{Name: "hello.txt", Skip: 13}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestSkippableNoLocal(t *testing.T) {
	offered := tree.Dir("root", tree.File("a", 1))
	local := tree.Dir("root")
	if got := tree.Skippable(offered, local); got != nil {
		t.Errorf("expected nil, got %#v", got)
	}
}

func TestSkippableVariantMismatch(t *testing.T) {
	offered := tree.File("thing", 10)
	local := tree.Dir("thing")
	if got := tree.Skippable(offered, local); got != nil {
		t.Errorf("expected nil for variant mismatch, got %#v", got)
	}
}

func TestSkippableSubtree(t *testing.T) {
	offered := tree.Dir("root",
		tree.File("file1", 10),
		tree.Dir("dir1",
			tree.File("file2", 20),
			tree.File("file3", 30),
		),
	)
	local := tree.Dir("root",
		tree.File("file1", 10),
		tree.Dir("dir1",
			tree.File("file2", 15),
		),
	)
	got := tree.Skippable(offered, local)
	want := &tree.SkipNode{
		Name: "root", IsDir: true,
		Children: []*tree.SkipNode{
			{Name: "file1", Skip: 10},
			{Name: "dir1", IsDir: true, Children: []*tree.SkipNode{
				{Name: "file2", Skip: 15},
			}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestRemoveSkippedSubtree(t *testing.T) {
	offered := tree.Dir("root",
		tree.File("file1", 10),
		tree.Dir("dir1",
			tree.File("file2", 20),
			tree.File("file3", 30),
		),
	)
	skip := &tree.SkipNode{
		Name: "root", IsDir: true,
		Children: []*tree.SkipNode{
			{Name: "file1", Skip: 10},
			{Name: "dir1", IsDir: true, Children: []*tree.SkipNode{
				{Name: "file2", Skip: 15},
			}},
		},
	}
	got := tree.RemoveSkipped(offered, skip)
	want := &tree.SendPlanNode{
		Name: "root", IsDir: true,
		Children: []*tree.SendPlanNode{
			{Name: "dir1", IsDir: true, Children: []*tree.SendPlanNode{
				{Name: "file2", Skip: 15, Size: 20},
				{Name: "file3", Skip: 0, Size: 30},
			}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
	if got.TotalSize() != 35 {
		t.Errorf("total size = %d, want 35", got.TotalSize())
	}
}

func TestRemoveSkippedNil(t *testing.T) {
	offered := tree.Dir("root", tree.File("a", 5), tree.File("b", 0))
	got := tree.RemoveSkipped(offered, nil)
	if got.TotalSize() != 5 {
		t.Errorf("total size = %d, want 5", got.TotalSize())
	}
	for _, c := range got.Children {
		if c.Skip != 0 {
			t.Errorf("expected skip=0 for %s, got %d", c.Name, c.Skip)
		}
	}
}

func TestRemoveSkippedFullySkipped(t *testing.T) {
	offered := tree.File("big.bin", 100)
	skip := &tree.SkipNode{Name: "big.bin", Skip: 100}
	if got := tree.RemoveSkipped(offered, skip); got != nil {
		t.Errorf("expected nil (fully skipped), got %#v", got)
	}
}

func TestRemoveSkippedRootMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on root name mismatch")
		}
	}()
	tree.RemoveSkipped(tree.File("a", 1), &tree.SkipNode{Name: "b", Skip: 0})
}

func TestRemoveSkippedVariantMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on variant mismatch")
		}
	}()
	tree.RemoveSkipped(tree.Dir("a"), &tree.SkipNode{Name: "a", IsDir: false})
}

func TestConservationProperty(t *testing.T) {
	offered := tree.Dir("root",
		tree.File("file1", 10),
		tree.Dir("dir1",
			tree.File("file2", 20),
			tree.File("file3", 30),
		),
	)
	local := tree.Dir("root",
		tree.File("file1", 10),
		tree.Dir("dir1",
			tree.File("file2", 15),
		),
	)
	skip := tree.Skippable(offered, local)
	plan := tree.RemoveSkipped(offered, skip)
	var skipped uint64
	var walk func(s *tree.SkipNode)
	walk = func(s *tree.SkipNode) {
		if s == nil {
			return
		}
		if !s.IsDir {
			skipped += s.Skip
			return
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(skip)
	if plan.TotalSize()+skipped != offered.TotalSize() {
		t.Errorf("conservation violated: plan=%d skipped=%d offered=%d",
			plan.TotalSize(), skipped, offered.TotalSize())
	}
}

func TestZeroByteFile(t *testing.T) {
	offered := tree.File("empty.txt", 0)
	plan := tree.RemoveSkipped(offered, nil)
	if plan == nil || plan.Size != 0 || plan.Skip != 0 {
		t.Errorf("got %#v", plan)
	}
}
