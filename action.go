package richcrdt

// ParagraphInsertPosition steers how ParagraphInsert treats its anchor.
type ParagraphInsertPosition int

const (
	// BeforeAnchor inserts the new paragraph(s) immediately before the
	// anchor paragraph. Unsupported in this iteration (spec.md §7
	// UnsupportedAction); only EraseAnchorIfEmpty is implemented.
	BeforeAnchor ParagraphInsertPosition = iota
	// EraseAnchorIfEmpty turns the anchor paragraph into a tombstone iff
	// it contains no live characters; otherwise insertion proceeds and
	// the anchor is left untouched.
	EraseAnchorIfEmpty
	// AfterAnchor inserts the new paragraph(s) immediately after the
	// anchor paragraph. Unsupported in this iteration.
	AfterAnchor
)

// Action is the tagged union of edit operations a client can mint or
// ingest. Every variant below is a distinct Go type implementing this
// interface; fold.go type-switches over them.
type Action interface {
	isAction()
}

// ParagraphInsert inserts one or more new paragraphs relative to an
// existing anchor paragraph. The first paragraph reuses the action's
// OpId as its ParagraphId; AdditionalParagraphs carry pre-assigned ids
// for determinism.
type ParagraphInsert struct {
	Anchor               ParagraphId
	Position             ParagraphInsertPosition
	FirstParagraph       NewParagraph
	AdditionalParagraphs []AdditionalParagraph
}

func (ParagraphInsert) isAction() {}

// AdditionalParagraph pairs a pre-assigned ParagraphId with the
// paragraph contents to create for it.
type AdditionalParagraph struct {
	ID        ParagraphId
	Paragraph NewParagraph
}

// ParagraphSplit describes the paragraph(s) created to hold text that
// falls on the far side of an Insert that splits its anchor paragraph.
type ParagraphSplit struct {
	MiddleParagraphs []NewParagraph
	AfterParagraphID ParagraphId
	AfterTexts       []PartiallyFormattedText
	AfterStyle       ParagraphStyle
}

// Insert inserts text at a TextAnchor, optionally splitting the
// anchor's paragraph into len(Split.MiddleParagraphs)+2 paragraphs when
// Split is non-nil: (left half of the anchor paragraph with
// BeforeParagraphs appended) · (middle paragraphs) · (a new paragraph
// with Split.AfterParagraphID containing Split.AfterTexts then the
// right half of the anchor paragraph). When Split is nil both halves
// are simply rejoined around the inserted text within the original
// paragraph.
type Insert struct {
	Anchor          TextAnchor
	BeforeParagraphs []PartiallyFormattedText
	Split           *ParagraphSplit
}

func (Insert) isAction() {}

// FormatChangeAction inserts FormatChangeMarker nodes at two anchors;
// rendering applies the running mask between them.
type FormatChangeAction struct {
	BeginAnchor TextAnchor
	EndAnchor   TextAnchor
	Format      FormatChange
}

func (FormatChangeAction) isAction() {}

// ParagraphStyleChange assigns a style to the listed paragraphs.
// KnownParagraphSplices enumerates the splice actions the author knew
// about when issuing this change, so a conflict resolver can later
// detect an unknown concurrent splice that moved content out of range
// (see DESIGN.md Open Question 3 — scope kept to the targeted
// paragraphs only in this implementation).
type ParagraphStyleChange struct {
	Paragraphs            []ParagraphId
	KnownParagraphSplices []ActionId
	Style                 ParagraphStyle
}

func (ParagraphStyleChange) isAction() {}

// Erase marks the interval [BeginAnchor, EndAnchor) as tombstones.
// KnownSplices enumerates the splice actions the author knew about when
// issuing the erase; any splice not in that set that has already
// affected the interval keeps its sub-range un-tombstoned (it won the
// race) — see fold.go.
type Erase struct {
	BeginAnchor  TextAnchor
	EndAnchor    TextAnchor
	KnownSplices []ActionId
}

func (Erase) isAction() {}

// SpliceInsert re-inserts the content erased by EraseID at Anchor — the
// "paste" half of a cut-and-paste. Only the erased sub-ranges that no
// earlier SpliceInsert against the same EraseID has claimed are
// re-inserted; claimed sub-ranges are skipped. The first re-inserted
// sub-range takes this action's own OpId as its NodeId, and each
// further one takes the next entry of NewNodeIDsIfNecessary, in
// document order; see fold.go's erase/splice race handling.
type SpliceInsert struct {
	Anchor                TextAnchor
	EraseID               ActionId
	NewNodeIDsIfNecessary []NodeId
}

func (SpliceInsert) isAction() {}

// SpliceParagraphInsert is SpliceInsert's paragraph-level counterpart:
// it re-inserts an erased paragraph's worth of content and may assign
// it a new style.
type SpliceParagraphInsert struct {
	Anchor                ParagraphAnchor
	EraseID               ActionId
	NewNodeIDsIfNecessary []NodeId
	NewParagraphStyle     ParagraphStyle
}

func (SpliceParagraphInsert) isAction() {}

// UndoRedo modifies the visibility of a prior action. UndoCounterChange
// is added to the running counter for EditID across every UndoRedo
// targeting it; the edit's effects are visible iff that counter is
// even. UndoCounterChange must be non-zero.
type UndoRedo struct {
	EditID            ActionId
	UndoCounterChange int32
}

func (UndoRedo) isAction() {}
