package richcrdt

import "testing"

// Helper constructing a live TextFragment spanning the whole insertion.
func liveFragment(node NodeId, text string) TextFragment {
	return TextFragment{Node: node, Offset: 0, Text: text}
}

func ptr(v uint32) *uint32 { return &v }

// A TextAnchor pointing at a live fragment's lower bound resolves to the
// gap just before it; its upper bound resolves to the gap just after.
func TestResolveAnchorLiveFragmentBounds(t *testing.T) {
	nodeA := NodeId{OperationID: 1, ClientID: 1}
	state := &DocumentState{Paragraphs: []*Paragraph{
		{ID: OriginParagraphID, Contents: []TextNode{liveFragment(nodeA, "abc")}},
	}}

	before, ok := state.ResolveAnchor(TextAnchor{AtNode: nodeA, AtIndex: ptr(0)})
	if !ok || before != (ResolvedAnchor{ParagraphIndex: 0, ContentIndex: 0}) {
		t.Fatalf("lower-bound anchor resolved to %v, ok=%v", before, ok)
	}

	after, ok := state.ResolveAnchor(TextAnchor{AtNode: nodeA, AtIndex: ptr(3)})
	if !ok || after != (ResolvedAnchor{ParagraphIndex: 0, ContentIndex: 1}) {
		t.Fatalf("upper-bound anchor resolved to %v, ok=%v", after, ok)
	}

	tail, ok := state.ResolveAnchor(AtTail(nodeA))
	if !ok || tail != (ResolvedAnchor{ParagraphIndex: 0, ContentIndex: 1}) {
		t.Fatalf("sticky-tail anchor resolved to %v, ok=%v", tail, ok)
	}
}

// An anchor into a tombstone walks backward to the gap right after the
// nearest preceding live fragment.
func TestResolveAnchorWalksBackwardPastTombstone(t *testing.T) {
	nodeA := NodeId{OperationID: 1, ClientID: 1}
	nodeB := NodeId{OperationID: 2, ClientID: 1}
	state := &DocumentState{Paragraphs: []*Paragraph{
		{ID: OriginParagraphID, Contents: []TextNode{
			liveFragment(nodeA, "ab"),
			TombstoneNode{Node: nodeB, Offset: 0, Length: 1, Carried: []PartiallyFormattedText{{Text: "x"}}},
		}},
	}}

	r, ok := state.ResolveAnchor(AtTail(nodeB))
	if !ok {
		t.Fatalf("expected resolution to succeed")
	}
	if want := (ResolvedAnchor{ParagraphIndex: 0, ContentIndex: 1}); r != want {
		t.Errorf("resolved to %v, want %v (just after the live fragment)", r, want)
	}
}

// An anchor into a tombstoned paragraph with nothing live before it in
// the whole document walks forward instead, crossing into the next
// live paragraph — walking backward never even inspects the tombstone
// graveyard of a paragraph it itself can't land in.
func TestResolveAnchorWalksForwardAcrossParagraphs(t *testing.T) {
	nodeT := NodeId{OperationID: 1, ClientID: 1}
	nodeC := NodeId{OperationID: 2, ClientID: 1}
	state := &DocumentState{Paragraphs: []*Paragraph{
		{ID: OriginParagraphID, Tombstoned: true, Contents: []TextNode{
			TombstoneNode{Node: nodeT, Offset: 0, Length: 1, Carried: []PartiallyFormattedText{{Text: "x"}}},
		}},
		{ID: ParagraphId{OperationID: 3, ClientID: 1}, Contents: []TextNode{liveFragment(nodeC, "c")}},
	}}

	r, ok := state.ResolveAnchor(AtTail(nodeT))
	if !ok {
		t.Fatalf("expected resolution to succeed")
	}
	if want := (ResolvedAnchor{ParagraphIndex: 1, ContentIndex: 0}); r != want {
		t.Errorf("resolved to %v, want %v (forward into the next live paragraph)", r, want)
	}
}

// A ParagraphAnchor into a tombstoned paragraph walks the same way, one
// paragraph at a time, landing at the boundary of the nearest live one.
func TestResolveAnchorParagraphAnchorOnTombstonedParagraph(t *testing.T) {
	erasedID := ParagraphId{OperationID: 2, ClientID: 1}
	nodeA := NodeId{OperationID: 1, ClientID: 1}
	state := &DocumentState{Paragraphs: []*Paragraph{
		{ID: OriginParagraphID, Contents: []TextNode{liveFragment(nodeA, "ab")}},
		{ID: erasedID, Tombstoned: true},
	}}

	r, ok := state.ResolveAnchor(ParagraphAnchorAt(erasedID, AtBeginning))
	if !ok {
		t.Fatalf("expected resolution to succeed")
	}
	if want := (ResolvedAnchor{ParagraphIndex: 0, ContentIndex: 1}); r != want {
		t.Errorf("resolved to %v, want %v", r, want)
	}
}

// OrderedRange presents a reverse-dragged selection in document order.
func TestOrderedRangeSwapsReversedDrag(t *testing.T) {
	nodeA := NodeId{OperationID: 1, ClientID: 1}
	nodeB := NodeId{OperationID: 2, ClientID: 1}
	three := uint32(3)
	state := &DocumentState{Paragraphs: []*Paragraph{
		{ID: OriginParagraphID, Contents: []TextNode{
			TextFragment{Node: nodeA, Offset: 0, OffsetAfter: &three, Text: "abc"},
			liveFragment(nodeB, "def"),
		}},
	}}

	// Dragged from the tail of the second fragment back to the start of
	// the first — the reverse of document order.
	dragged := Range{Begin: AtTail(nodeB), End: AtIndexValue(nodeA, 0)}
	begin, end, ok := state.OrderedRange(dragged)
	if !ok {
		t.Fatalf("expected resolution to succeed")
	}
	if want := (ResolvedAnchor{ParagraphIndex: 0, ContentIndex: 0}); begin != want {
		t.Errorf("begin = %v, want %v", begin, want)
	}
	if want := (ResolvedAnchor{ParagraphIndex: 0, ContentIndex: 2}); end != want {
		t.Errorf("end = %v, want %v", end, want)
	}
}

// LiveAnchor passes a still-live TextAnchor through unchanged.
func TestLiveAnchorPassesThroughLiveTarget(t *testing.T) {
	log := NewOpLog()
	insertID := OpId{OperationID: 1, ClientID: 3}
	log.Put(insertID, ParagraphInsert{
		Anchor:         OriginParagraphID,
		Position:       EraseAnchorIfEmpty,
		FirstParagraph: NewParagraph{Texts: []PartiallyFormattedText{{Text: "hi"}}},
	})
	state := mustFold(t, log)

	tail := AtTail(NodeId(insertID))
	if got := state.LiveAnchor(tail); got != Anchor(tail) {
		t.Errorf("LiveAnchor(%v) = %v, want unchanged", tail, got)
	}
}

// LiveAnchor resolves a tombstoned anchor to a concrete live anchor
// rather than returning the tombstoned one verbatim.
func TestLiveAnchorFallsBackWhenTombstoned(t *testing.T) {
	log := NewOpLog()
	insertID := OpId{OperationID: 1, ClientID: 3}
	log.Put(insertID, ParagraphInsert{
		Anchor:         OriginParagraphID,
		Position:       EraseAnchorIfEmpty,
		FirstParagraph: NewParagraph{Texts: []PartiallyFormattedText{{Text: "ab"}}},
	})
	eraseID := OpId{OperationID: 2, ClientID: 3}
	two := uint32(2)
	log.Put(eraseID, Erase{
		BeginAnchor: TextAnchor{AtNode: NodeId(insertID), AtIndex: ptr(0)},
		EndAnchor:   TextAnchor{AtNode: NodeId(insertID), AtIndex: &two},
	})
	state := mustFold(t, log)

	tombstoned := AtIndexValue(NodeId(insertID), 0)
	live := state.LiveAnchor(tombstoned)
	if _, ok := live.(TextAnchor); ok {
		if live == Anchor(tombstoned) {
			t.Errorf("LiveAnchor should not return the tombstoned anchor verbatim")
		}
	}
	// Whatever it resolved to must itself resolve against the live state.
	if _, ok := state.ResolveAnchor(live); !ok {
		t.Errorf("LiveAnchor's result %v does not itself resolve", live)
	}
}
