package tree

import "github.com/haraldrudell/parl/perrors"

// Skippable computes the skip tree the receiver sends back to the sender:
// for each offered entry that also exists locally, how much of it can be
// omitted. It returns nil when nothing in the subtree can be skipped.
//
// Mismatched variants for the same name (a file where local has a
// directory, or vice versa) are treated as "nothing to skip" -- the
// offered entity travels in full. This is a deliberate design point, not
// an oversight: see DESIGN.md for the open question about whether it
// should instead be an error.
func Skippable(offered, local *Entry) *SkipNode {
	if offered == nil || local == nil {
		return nil
	}
	if offered.Name != local.Name {
		return nil
	}
	switch {
	case !offered.IsDir && !local.IsDir:
		return &SkipNode{Name: offered.Name, Skip: local.Size}
	case offered.IsDir && local.IsDir:
		var children []*SkipNode
		for _, oc := range offered.Children {
			lc := local.childByName(oc.Name)
			if lc == nil {
				continue
			}
			if sc := Skippable(oc, lc); sc != nil {
				children = append(children, sc)
			}
		}
		if len(children) == 0 {
			return nil
		}
		return &SkipNode{Name: offered.Name, IsDir: true, Children: children}
	default:
		// variant mismatch: file vs. directory under the same name
		return nil
	}
}

// RemoveSkipped prunes the offered tree by the skip tree, producing the
// send plan that drives the payload stream. skip may be nil, meaning
// "nothing has been skipped anywhere in this
// subtree" -- the full tree is preserved with Skip == 0 everywhere.
//
// Root-name mismatch between offered and a non-nil skip is a programming
// error: it indicates the skip tree handed back to us does not correspond
// to the offer we sent, which can only happen if calling code has wired two
// unrelated trees together. It panics rather than silently proceeding.
func RemoveSkipped(offered *Entry, skip *SkipNode) *SendPlanNode {
	if offered == nil {
		return nil
	}
	if skip == nil {
		return fullPlan(offered)
	}
	if offered.Name != skip.Name {
		panic(perrors.ErrorfPF("root name mismatch: offered %q, skip %q", offered.Name, skip.Name))
	}
	switch {
	case !offered.IsDir && !skip.IsDir:
		if offered.Size <= skip.Skip {
			return nil
		}
		return &SendPlanNode{Name: offered.Name, Skip: skip.Skip, Size: offered.Size}
	case offered.IsDir && skip.IsDir:
		var children []*SendPlanNode
		for _, oc := range offered.Children {
			var plan *SendPlanNode
			if sc := skip.childByName(oc.Name); sc != nil {
				plan = RemoveSkipped(oc, sc)
			} else {
				plan = fullPlan(oc)
			}
			if plan != nil {
				children = append(children, plan)
			}
		}
		if len(children) == 0 {
			return nil
		}
		return &SendPlanNode{Name: offered.Name, IsDir: true, Children: children}
	default:
		panic(perrors.ErrorfPF("variant mismatch for %q: offered.IsDir=%v skip.IsDir=%v", offered.Name, offered.IsDir, skip.IsDir))
	}
}

// fullPlan converts an Entry into a SendPlanNode with Skip == 0 throughout
// -- the "nothing skipped here" case. An originally empty directory stays
// in the plan (the receiver still needs to create it); only pruning by a
// skip tree can make a directory vanish, and fullPlan never prunes.
func fullPlan(e *Entry) *SendPlanNode {
	if !e.IsDir {
		return &SendPlanNode{Name: e.Name, Skip: 0, Size: e.Size}
	}
	n := &SendPlanNode{Name: e.Name, IsDir: true}
	for _, c := range e.Children {
		n.Children = append(n.Children, fullPlan(c))
	}
	return n
}
