// Package tree implements the pure tree algebra the rest of this module
// builds on: the sender's offered tree, the receiver's skip tree, and the
// send plan derived from the two. All three operations (Build, Skippable,
// RemoveSkipped) are deterministic, side-effect free over their inputs
// (Build reads the filesystem but builds no global state), and
// exhaustively testable.
package tree

// Entry is an offered-tree node: either a File (name, size) or a Directory
// (name, children). Names are a single path segment; siblings within a
// Directory have unique names; Children preserves local enumeration order,
// which is also wire order and streaming order.
type Entry struct {
	Name     string
	IsDir    bool
	Size     uint64 // meaningful only when !IsDir
	Children []*Entry
}

// File constructs a leaf Entry.
func File(name string, size uint64) *Entry {
	return &Entry{Name: name, Size: size}
}

// Dir constructs a directory Entry.
func Dir(name string, children ...*Entry) *Entry {
	return &Entry{Name: name, IsDir: true, Children: children}
}

// childByName returns the child of e named name, or nil.
func (e *Entry) childByName(name string) *Entry {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// TotalSize returns the sum of file sizes in the subtree rooted at e.
func (e *Entry) TotalSize() uint64 {
	if !e.IsDir {
		return e.Size
	}
	var total uint64
	for _, c := range e.Children {
		total += c.TotalSize()
	}
	return total
}

// SkipNode is what the receiver asks the sender to omit or truncate: either
// a File{name, skip} (skip may equal the file's size, suppressing it
// entirely) or a Directory{name, children}. A SkipNode tree is always
// structurally a subtree of the corresponding Entry tree.
type SkipNode struct {
	Name     string
	IsDir    bool
	Skip     uint64 // meaningful only when !IsDir: byte prefix to omit
	Children []*SkipNode
}

func (s *SkipNode) childByName(name string) *SkipNode {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// SendPlanNode is the pruned tree describing bytes actually transmitted:
// either a File{name, skip, size} (skip is the source offset to begin
// reading, size is the file's total length) or a Directory{name, children}.
// Every File in a SendPlanNode tree has Skip < Size, except a zero-byte
// file that was not skipped, which stays in the plan with Skip == Size == 0
// so the receiver still creates it; fully skipped files and emptied
// directories are simply absent.
type SendPlanNode struct {
	Name     string
	IsDir    bool
	Skip     uint64
	Size     uint64
	Children []*SendPlanNode
}

// TotalSize returns the sum of (Size - Skip) over every File in the plan --
// the number of bytes the payload stream will carry for this subtree.
func (n *SendPlanNode) TotalSize() uint64 {
	if !n.IsDir {
		return n.Size - n.Skip
	}
	var total uint64
	for _, c := range n.Children {
		total += c.TotalSize()
	}
	return total
}
