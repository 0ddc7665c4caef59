package richcrdt

// Selection is the tagged union of local selection states: nothing
// selected, a caret, or a range between two anchors. NotSelected,
// Caret and Range are its only implementors.
type Selection interface {
	isSelection()
}

// NotSelected means the replica currently has no selection.
type NotSelected struct{}

func (NotSelected) isSelection() {}

// Caret is a single collapsed position.
type Caret struct {
	At Anchor
}

func (Caret) isSelection() {}

// Range is a non-collapsed selection between two anchors. Begin and
// End are kept in the order the user dragged them in — OrderedRange is
// responsible for presenting them in document order.
type Range struct {
	Begin Anchor
	End   Anchor
}

func (Range) isSelection() {}

// ResolvedAnchor is the live projection of an Anchor against a
// DocumentState: the paragraph/content index it currently lands on,
// found by walking the tombstone graveyard backwards then forwards
// until a live position is found (spec.md §4.4).
type ResolvedAnchor struct {
	ParagraphIndex int
	// ContentIndex is the live gap index within the paragraph's
	// contents, suitable for rendering a caret marker between runes.
	ContentIndex int
}

// ResolveAnchor projects a (possibly tombstoned) Anchor onto its
// nearest live position. A TextAnchor pointing into a live fragment
// resolves directly; one pointing into a tombstone walks backward
// through preceding nodes (in overall document order, crossing
// paragraph boundaries) looking for a live gap, then forward if the
// start of the document is reached without finding one. A
// ParagraphAnchor on a tombstoned paragraph resolves the same way,
// one paragraph at a time.
func (d *DocumentState) ResolveAnchor(a Anchor) (ResolvedAnchor, bool) {
	switch anchor := a.(type) {
	case TextAnchor:
		loc, ok := d.FindTextAnchor(anchor)
		if !ok {
			return ResolvedAnchor{}, false
		}
		return d.resolveFromLocation(loc, trailingGap(d.Paragraphs[loc.ParagraphIndex].Contents[loc.NodeIndex], anchor))
	case ParagraphAnchor:
		idx := d.ParagraphIndex(anchor.ParagraphID)
		if idx < 0 {
			return ResolvedAnchor{}, false
		}
		if !d.Paragraphs[idx].Tombstoned {
			if anchor.Relativity == AtBeginning {
				return ResolvedAnchor{ParagraphIndex: idx, ContentIndex: 0}, true
			}
			return ResolvedAnchor{ParagraphIndex: idx, ContentIndex: len(d.Paragraphs[idx].Contents)}, true
		}
		return d.walkFromParagraph(idx, anchor.Relativity == AtEnd)
	default:
		return ResolvedAnchor{}, false
	}
}

// trailingGap reports whether anchor names the gap after node's text
// (at_index == nil, the sticky tail, or at_index at the node's upper
// bound) rather than the gap before it (at_index at the node's lower
// bound). Only TextFragment/TombstoneNode carry a range; any other
// node reports false.
func trailingGap(node TextNode, anchor TextAnchor) bool {
	if anchor.AtIndex == nil {
		return true
	}
	k := *anchor.AtIndex
	switch n := node.(type) {
	case TextFragment:
		return k == n.Offset+n.Len()
	case TombstoneNode:
		return k == n.Offset+n.Length
	default:
		return false
	}
}

// resolveFromLocation projects a text-node location to the nearest
// live gap, preferring the live position immediately surrounding it.
// trailing says whether the anchor names the gap after the located
// node (vs. before it) when that node turns out to still be live.
func (d *DocumentState) resolveFromLocation(loc TextNodeLocation, trailing bool) (ResolvedAnchor, bool) {
	p := d.Paragraphs[loc.ParagraphIndex]
	if !p.Tombstoned {
		if _, ok := p.Contents[loc.NodeIndex].(TextFragment); ok {
			idx := loc.NodeIndex
			if trailing {
				idx++
			}
			return ResolvedAnchor{ParagraphIndex: loc.ParagraphIndex, ContentIndex: idx}, true
		}
	}
	// The located node is a tombstone (or its paragraph is tombstoned):
	// walk backward from just before it, then forward from just after.
	if r, ok := d.walkBackward(loc.ParagraphIndex, loc.NodeIndex); ok {
		return r, true
	}
	return d.walkForward(loc.ParagraphIndex, loc.NodeIndex)
}

func (d *DocumentState) walkFromParagraph(idx int, fromEnd bool) (ResolvedAnchor, bool) {
	back, fwd := 0, -1
	if fromEnd {
		back = len(d.Paragraphs[idx].Contents)
		fwd = back
	}
	if r, ok := d.walkBackward(idx, back); ok {
		return r, true
	}
	return d.walkForward(idx, fwd)
}

// walkBackward scans from just before (paraIdx, nodeIdx), moving
// toward the start of the document, for the first live gap: either a
// live TextFragment (landing just after it) or the beginning of a live
// paragraph.
func (d *DocumentState) walkBackward(paraIdx, nodeIdx int) (ResolvedAnchor, bool) {
	for pi := paraIdx; pi >= 0; pi-- {
		p := d.Paragraphs[pi]
		start := len(p.Contents)
		if pi == paraIdx {
			start = nodeIdx
		}
		if !p.Tombstoned {
			for ni := start - 1; ni >= 0; ni-- {
				if _, ok := p.Contents[ni].(TextFragment); ok {
					return ResolvedAnchor{ParagraphIndex: pi, ContentIndex: ni + 1}, true
				}
			}
			return ResolvedAnchor{ParagraphIndex: pi, ContentIndex: 0}, true
		}
	}
	return ResolvedAnchor{}, false
}

// walkForward is walkBackward's mirror, scanning toward the end of the
// document from just after (paraIdx, nodeIdx).
func (d *DocumentState) walkForward(paraIdx, nodeIdx int) (ResolvedAnchor, bool) {
	for pi := paraIdx; pi < len(d.Paragraphs); pi++ {
		p := d.Paragraphs[pi]
		start := 0
		if pi == paraIdx {
			start = nodeIdx + 1
		}
		if !p.Tombstoned {
			for ni := start; ni < len(p.Contents); ni++ {
				if _, ok := p.Contents[ni].(TextFragment); ok {
					return ResolvedAnchor{ParagraphIndex: pi, ContentIndex: ni}, true
				}
			}
			return ResolvedAnchor{ParagraphIndex: pi, ContentIndex: len(p.Contents)}, true
		}
	}
	return ResolvedAnchor{}, false
}

// LiveAnchor converts a (possibly tombstoned) Anchor into the concrete
// Anchor that names its live projection, preserving TextAnchor vs.
// ParagraphAnchor kind when the original target is still live and
// falling back to the walk rule from ResolveAnchor otherwise — the
// resolution spec.md §4.4 requires before emitting any op from a
// stored selection.
func (d *DocumentState) LiveAnchor(a Anchor) Anchor {
	switch anchor := a.(type) {
	case TextAnchor:
		if loc, ok := d.FindTextAnchor(anchor); ok {
			if !d.Paragraphs[loc.ParagraphIndex].Tombstoned {
				if _, ok := d.Paragraphs[loc.ParagraphIndex].Contents[loc.NodeIndex].(TextFragment); ok {
					return anchor
				}
			}
		}
	case ParagraphAnchor:
		if idx := d.ParagraphIndex(anchor.ParagraphID); idx >= 0 && !d.Paragraphs[idx].Tombstoned {
			return anchor
		}
	}
	r, ok := d.ResolveAnchor(a)
	if !ok {
		return ParagraphAnchorAt(OriginParagraphID, AtBeginning)
	}
	return d.anchorAtResolved(r)
}

// anchorAtResolved names the concrete Anchor sitting at a resolved
// live gap: a TextAnchor just past the preceding live fragment, or a
// ParagraphAnchor at the paragraph boundary when no fragment borders
// the gap on the relevant side.
func (d *DocumentState) anchorAtResolved(r ResolvedAnchor) Anchor {
	p := d.Paragraphs[r.ParagraphIndex]
	if r.ContentIndex > 0 {
		if f, ok := p.Contents[r.ContentIndex-1].(TextFragment); ok {
			if f.IsOpenEnded() {
				return AtTail(f.Node)
			}
			return AtIndexValue(f.Node, *f.OffsetAfter)
		}
	}
	if r.ContentIndex < len(p.Contents) {
		if f, ok := p.Contents[r.ContentIndex].(TextFragment); ok {
			return AtIndexValue(f.Node, f.Offset)
		}
	}
	if r.ContentIndex == 0 {
		return ParagraphAnchorAt(p.ID, AtBeginning)
	}
	return ParagraphAnchorAt(p.ID, AtEnd)
}

// OrderedRange returns a Range's two resolved endpoints in document
// order, regardless of which way the user originally dragged.
func (d *DocumentState) OrderedRange(r Range) (begin, end ResolvedAnchor, ok bool) {
	b, ok1 := d.ResolveAnchor(r.Begin)
	e, ok2 := d.ResolveAnchor(r.End)
	if !ok1 || !ok2 {
		return ResolvedAnchor{}, ResolvedAnchor{}, false
	}
	if b.ParagraphIndex > e.ParagraphIndex || (b.ParagraphIndex == e.ParagraphIndex && b.ContentIndex > e.ContentIndex) {
		b, e = e, b
	}
	return b, e, true
}
