package richcrdt

// ParagraphStyle assigns a display style to a paragraph: a small fixed
// set supplementing spec.md's unspecified paragraph_style field.
type ParagraphStyle string

const (
	StyleNormal   ParagraphStyle = "normal"
	StyleHeading1 ParagraphStyle = "heading1"
	StyleHeading2 ParagraphStyle = "heading2"
	StyleQuote    ParagraphStyle = "quote"
)

// PartiallyFormattedText is a run of text carrying the format mask that
// was running when it was inserted. Insert, SpliceInsert and a
// tombstone's Carried payload all traffic in these.
type PartiallyFormattedText struct {
	Text   string
	Format uint32
}

// TextNode is one entry in a paragraph's ordered contents: a text
// fragment, a tombstone (the grave of an erased fragment), or an
// inline format-change marker. It is a closed tagged union; TextFragment,
// TombstoneNode and FormatChangeMarker are its only implementors.
type TextNode interface {
	isTextNode()
	// NodeIDPtr returns the NodeId this node occupies, or nil for a
	// FormatChangeMarker (which carries no node identity).
	NodeIDPtr() *NodeId
}

// TextFragment is a contiguous, live text fragment belonging to the
// logical insertion identified by Node. Offset is this fragment's
// character offset within that insertion; OffsetAfter, if set, gives
// the fragment's exclusive upper offset (set when the fragment has been
// split). nil means "extends to the logical end of the insertion."
type TextFragment struct {
	Node        NodeId
	Offset      uint32
	OffsetAfter *uint32
	Text        string
	// FromSplice names the SpliceInsert/SpliceParagraphInsert that
	// created this fragment, or nil when it came from a plain
	// Insert/ParagraphInsert. A later Erase uses this to detect that an
	// unknown concurrent splice already owns this sub-range — see
	// fold.go's erase/splice race handling.
	FromSplice *ActionId
}

func (TextFragment) isTextNode() {}

// NodeIDPtr implements TextNode.
func (f TextFragment) NodeIDPtr() *NodeId { n := f.Node; return &n }

// IsOpenEnded reports whether this fragment extends to the logical end
// of its insertion (OffsetAfter == nil) — the position later appends
// attach to under sticky-tail semantics.
func (f TextFragment) IsOpenEnded() bool { return f.OffsetAfter == nil }

// Len returns the fragment's character length.
func (f TextFragment) Len() uint32 { return uint32(len([]rune(f.Text))) }

// TombstoneNode is the grave of an erased text fragment. It retains
// identity and the original formatted text, so anchors and a later
// SpliceInsert can still resolve against it.
type TombstoneNode struct {
	Node        NodeId
	Offset      uint32
	OffsetAfter *uint32
	Length      uint32
	// Carried holds the original text/format for the sub-range, set the
	// first time the folder tombstones it. See SPEC_FULL.md §4.2.
	Carried []PartiallyFormattedText
}

func (TombstoneNode) isTextNode() {}

// NodeIDPtr implements TextNode.
func (t TombstoneNode) NodeIDPtr() *NodeId { n := t.Node; return &n }

// FormatChangeMarker is an inline marker altering the running format
// state at its position. It carries no node identity of its own.
type FormatChangeMarker struct {
	Change FormatChange
}

func (FormatChangeMarker) isTextNode() {}

// NodeIDPtr implements TextNode.
func (FormatChangeMarker) NodeIDPtr() *NodeId { return nil }

// Paragraph is an ordered sequence of text nodes. A paragraph that has
// been erased becomes Tombstoned but keeps its id and Contents so
// anchors into it still resolve.
type Paragraph struct {
	ID         ParagraphId
	Contents   []TextNode
	Style      ParagraphStyle
	Tombstoned bool
}

// NewParagraph is the payload a ParagraphInsert/Insert action carries
// when describing a brand-new paragraph: its initial contents, built
// from a run of PartiallyFormattedText.
type NewParagraph struct {
	Texts []PartiallyFormattedText
	Style ParagraphStyle
}

// DocumentState is the materialized paragraph tree: an ordered sequence
// of paragraph nodes (live or tombstone) plus the local selection.
//
// Invariants (see SPEC_FULL.md §3 / DESIGN.md): exactly one paragraph
// with id OriginParagraphID, first in Paragraphs; every NodeId occurs at
// most once across all text nodes; paragraph ids are unique.
type DocumentState struct {
	Paragraphs []*Paragraph
	Selection  Selection
}

// EmptyDocumentState returns a fresh state containing only the live,
// empty origin paragraph and no selection.
func EmptyDocumentState() *DocumentState {
	return &DocumentState{
		Paragraphs: []*Paragraph{{ID: OriginParagraphID, Style: StyleNormal}},
		Selection:  NotSelected{},
	}
}

// ParagraphIndex returns the index of the paragraph with the given id,
// whether live or tombstoned, or -1 if no such paragraph has ever
// existed in this state.
func (d *DocumentState) ParagraphIndex(id ParagraphId) int {
	for i, p := range d.Paragraphs {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// FindParagraph returns the paragraph with the given id (live or
// tombstoned), or nil if none exists.
func (d *DocumentState) FindParagraph(id ParagraphId) *Paragraph {
	if i := d.ParagraphIndex(id); i >= 0 {
		return d.Paragraphs[i]
	}
	return nil
}

// TextNodeLocation names exactly where a text node occurrence lives.
type TextNodeLocation struct {
	ParagraphIndex int
	NodeIndex      int
}

// FindTextAnchor scans every paragraph's contents for the fragment or
// tombstone occurrence containing at. It searches live and tombstoned
// nodes alike (the "tombstone graveyard" of spec.md §4.3 step 1), since
// both are kept inline in paragraph order. Returns ok=false if at's
// NodeId has never been seen.
func (d *DocumentState) FindTextAnchor(at TextAnchor) (loc TextNodeLocation, ok bool) {
	for pi, p := range d.Paragraphs {
		for ni, node := range p.Contents {
			switch n := node.(type) {
			case TextFragment:
				if n.Node != at.AtNode {
					continue
				}
				length := n.Len()
				if at.AtIndex == nil {
					if n.IsOpenEnded() {
						return TextNodeLocation{pi, ni}, true
					}
					continue
				}
				if textNodeContains(n.Node, n.Offset, length, at) {
					return TextNodeLocation{pi, ni}, true
				}
			case TombstoneNode:
				if n.Node != at.AtNode {
					continue
				}
				if at.AtIndex == nil {
					if n.OffsetAfter == nil {
						return TextNodeLocation{pi, ni}, true
					}
					continue
				}
				if textNodeContains(n.Node, n.Offset, n.Length, at) {
					return TextNodeLocation{pi, ni}, true
				}
			}
		}
	}
	return TextNodeLocation{}, false
}

// IsLive reports whether the text node at loc is a live TextFragment.
func (d *DocumentState) IsLive(loc TextNodeLocation) bool {
	_, ok := d.Paragraphs[loc.ParagraphIndex].Contents[loc.NodeIndex].(TextFragment)
	return ok && !d.Paragraphs[loc.ParagraphIndex].Tombstoned
}
