package wire

import (
	"github.com/kbrandt/quicsend/internal/codec"
	"github.com/kbrandt/quicsend/tree"
)

const (
	entryKindFile uint8 = iota
	entryKindDir
)

func encodeEntry(w *codec.Writer, e *tree.Entry) {
	w.WriteString(e.Name)
	if e.IsDir {
		w.WriteUint8(entryKindDir)
		w.WriteUint32(uint32(len(e.Children)))
		for _, c := range e.Children {
			encodeEntry(w, c)
		}
		return
	}
	w.WriteUint8(entryKindFile)
	w.WriteUint64(e.Size)
}

func decodeEntry(r *codec.Reader) (*tree.Entry, error) {
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	kind, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if kind == entryKindDir {
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		e := tree.Dir(name)
		for i := uint32(0); i < n; i++ {
			c, err := decodeEntry(r)
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, c)
		}
		return e, nil
	}
	size, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	return tree.File(name, size), nil
}

func encodeSkipNode(w *codec.Writer, s *tree.SkipNode) {
	w.WriteString(s.Name)
	if s.IsDir {
		w.WriteUint8(entryKindDir)
		w.WriteUint32(uint32(len(s.Children)))
		for _, c := range s.Children {
			encodeSkipNode(w, c)
		}
		return
	}
	w.WriteUint8(entryKindFile)
	w.WriteUint64(s.Skip)
}

func decodeSkipNode(r *codec.Reader) (*tree.SkipNode, error) {
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	kind, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if kind == entryKindDir {
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		s := &tree.SkipNode{Name: name, IsDir: true}
		for i := uint32(0); i < n; i++ {
			c, err := decodeSkipNode(r)
			if err != nil {
				return nil, err
			}
			s.Children = append(s.Children, c)
		}
		return s, nil
	}
	skip, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &tree.SkipNode{Name: name, Skip: skip}, nil
}

// encodeOptionalSkipNode writes a presence byte followed by the node when
// present. AcceptFilesSkip.Files entries are individually optional (a
// top-level path with no local counterpart gets no skip at all).
func encodeOptionalSkipNode(w *codec.Writer, s *tree.SkipNode) {
	if s == nil {
		w.WriteUint8(0)
		return
	}
	w.WriteUint8(1)
	encodeSkipNode(w, s)
}

func decodeOptionalSkipNode(r *codec.Reader) (*tree.SkipNode, error) {
	present, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	return decodeSkipNode(r)
}

func decodeEntries(r *codec.Reader, n uint32) ([]*tree.Entry, error) {
	entries := make([]*tree.Entry, 0, n)
	for i := uint32(0); i < n; i++ {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeOptionalSkipNodes(r *codec.Reader, n uint32) ([]*tree.SkipNode, error) {
	nodes := make([]*tree.SkipNode, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := decodeOptionalSkipNode(r)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, s)
	}
	return nodes, nil
}
