package richcrdt

import (
	"errors"
	"testing"

	"go.uber.org/multierr"
)

// Typing into a brand-new client goes through the ParagraphAnchor path
// (spec.md §4.5's only way to put the first character into a document,
// since the origin paragraph starts empty with no NodeId to anchor a
// TextAnchor against) and leaves the caret at the sticky tail.
func TestClientAddInputFirstCharacterUsesParagraphAnchor(t *testing.T) {
	c := NewClient(1, nil)
	c.ChangeSelection(Caret{At: ParagraphAnchorAt(OriginParagraphID, AtBeginning)})

	if _, err := c.AddInput(Input{Kind: InputText, Text: "hello"}); err != nil {
		t.Fatalf("AddInput: %v", err)
	}
	rendered, err := c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "hello|"; rendered.Text != want {
		t.Errorf("render = %q, want %q", rendered.Text, want)
	}
}

// A second AddInput lands at the caret AddInput itself just moved to,
// so consecutive typing appends rather than re-anchoring at the origin.
func TestClientAddInputAppendsAtMovedCaret(t *testing.T) {
	c := NewClient(1, nil)
	c.ChangeSelection(Caret{At: ParagraphAnchorAt(OriginParagraphID, AtBeginning)})

	if _, err := c.AddInput(Input{Kind: InputText, Text: "hel"}); err != nil {
		t.Fatalf("AddInput: %v", err)
	}
	if _, err := c.AddInput(Input{Kind: InputText, Text: "lo"}); err != nil {
		t.Fatalf("AddInput: %v", err)
	}
	rendered, err := c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "hello|"; rendered.Text != want {
		t.Errorf("render = %q, want %q", rendered.Text, want)
	}
}

// A paragraph break splits the current paragraph and moves the caret to
// the beginning of the newly created after-paragraph.
func TestClientAddParagraphBreak(t *testing.T) {
	c := NewClient(1, nil)
	c.ChangeSelection(Caret{At: ParagraphAnchorAt(OriginParagraphID, AtBeginning)})

	if _, err := c.AddInput(Input{Kind: InputText, Text: "hello"}); err != nil {
		t.Fatalf("AddInput text: %v", err)
	}
	if _, err := c.AddInput(Input{Kind: InputParagraphBreak, Style: StyleNormal}); err != nil {
		t.Fatalf("AddInput break: %v", err)
	}
	if _, err := c.AddInput(Input{Kind: InputText, Text: "world"}); err != nil {
		t.Fatalf("AddInput text: %v", err)
	}
	rendered, err := c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "hello\rworld|"; rendered.Text != want {
		t.Errorf("render = %q, want %q", rendered.Text, want)
	}
}

// A paragraph break's after-paragraph keeps the style it was given.
func TestClientAddParagraphBreakCarriesStyle(t *testing.T) {
	c := NewClient(1, nil)
	c.ChangeSelection(Caret{At: ParagraphAnchorAt(OriginParagraphID, AtBeginning)})

	if _, err := c.AddInput(Input{Kind: InputText, Text: "title"}); err != nil {
		t.Fatalf("AddInput text: %v", err)
	}
	if _, err := c.AddInput(Input{Kind: InputParagraphBreak, Style: StyleHeading1}); err != nil {
		t.Fatalf("AddInput break: %v", err)
	}
	state, err := c.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	last := state.Paragraphs[len(state.Paragraphs)-1]
	if last.Style != StyleHeading1 {
		t.Errorf("after-paragraph style = %q, want %q", last.Style, StyleHeading1)
	}
}

// Typing with no selection is a silent no-op, per spec.md — there is
// nowhere to anchor the insertion.
func TestClientAddInputNoSelectionIsNoOp(t *testing.T) {
	c := NewClient(1, nil)
	id, err := c.AddInput(Input{Kind: InputText, Text: "x"})
	if err != nil {
		t.Fatalf("AddInput: %v", err)
	}
	if !id.IsZero() {
		t.Errorf("expected a zero OpId for a no-op input, got %v", id)
	}
	if c.Log().Len() != 0 {
		t.Errorf("no-op input should not append to the log")
	}
}

// A remote op naming a NodeId not yet in the log is buffered; it only
// takes effect once its dependency arrives, regardless of delivery
// order.
func TestClientIngestRemoteBuffersUntilCausallyReady(t *testing.T) {
	c := NewClient(7, nil)

	base := OpId{OperationID: 1, ClientID: 2}
	baseAction := ParagraphInsert{
		Anchor:         OriginParagraphID,
		Position:       EraseAnchorIfEmpty,
		FirstParagraph: NewParagraph{Texts: []PartiallyFormattedText{{Text: "hi"}}},
	}
	dependent := OpId{OperationID: 2, ClientID: 2}
	dependentAction := Insert{
		Anchor:           AtTail(NodeId(base)),
		BeforeParagraphs: []PartiallyFormattedText{{Text: "!"}},
	}

	// Deliver the dependent op first: it must be buffered, not applied.
	if err := c.IngestRemote(RemoteOp{ID: dependent, Action: dependentAction}); err != nil {
		t.Fatalf("IngestRemote(dependent): %v", err)
	}
	if c.Log().Has(dependent) {
		t.Fatalf("dependent op should still be pending, not in the log")
	}
	rendered, err := c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if rendered.Text != "" {
		t.Errorf("render = %q, want empty before the dependency lands", rendered.Text)
	}

	// Now deliver the dependency: draining should admit both.
	if err := c.IngestRemote(RemoteOp{ID: base, Action: baseAction}); err != nil {
		t.Fatalf("IngestRemote(base): %v", err)
	}
	if !c.Log().Has(dependent) {
		t.Fatalf("dependent op should have drained into the log once its dependency arrived")
	}
	rendered, err = c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "hi!"; rendered.Text != want {
		t.Errorf("render = %q, want %q", rendered.Text, want)
	}
}

// Re-delivering an already-logged remote op is idempotent.
func TestClientIngestRemoteIdempotent(t *testing.T) {
	c := NewClient(7, nil)
	id := OpId{OperationID: 1, ClientID: 2}
	action := ParagraphInsert{
		Anchor:         OriginParagraphID,
		Position:       EraseAnchorIfEmpty,
		FirstParagraph: NewParagraph{Texts: []PartiallyFormattedText{{Text: "x"}}},
	}
	if err := c.IngestRemote(RemoteOp{ID: id, Action: action}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if err := c.IngestRemote(RemoteOp{ID: id, Action: action}); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if c.Log().Len() != 1 {
		t.Errorf("log length = %d, want 1 after re-delivery", c.Log().Len())
	}
}

// IngestBatch keeps admitting what it can and combines every failure
// from the rest, rather than stopping at the first bad op.
func TestClientIngestBatchCombinesErrors(t *testing.T) {
	c := NewClient(7, nil)
	good := OpId{OperationID: 1, ClientID: 2}
	goodAction := ParagraphInsert{
		Anchor:         OriginParagraphID,
		Position:       EraseAnchorIfEmpty,
		FirstParagraph: NewParagraph{Texts: []PartiallyFormattedText{{Text: "ok"}}},
	}
	badPosition := OpId{OperationID: 2, ClientID: 2}
	badPositionAction := ParagraphInsert{
		Anchor:         OriginParagraphID,
		Position:       BeforeAnchor,
		FirstParagraph: NewParagraph{Texts: []PartiallyFormattedText{{Text: "nope"}}},
	}
	badUndo := OpId{OperationID: 3, ClientID: 2}
	badUndoAction := UndoRedo{EditID: good, UndoCounterChange: 0}

	err := c.IngestBatch([]RemoteOp{
		{ID: good, Action: goodAction},
		{ID: badPosition, Action: badPositionAction},
		{ID: badUndo, Action: badUndoAction},
	})
	if err == nil {
		t.Fatalf("expected a combined error from the two bad ops")
	}
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("expected 2 combined errors, got %d: %v", len(errs), err)
	}
	var crdtErr *CrdtError
	for _, e := range errs {
		if !errors.As(e, &crdtErr) {
			t.Errorf("combined error %v does not unwrap to a *CrdtError", e)
		}
	}

	if c.Log().Has(badPosition) || c.Log().Has(badUndo) {
		t.Errorf("rejected ops must not be admitted to the log")
	}
	if !c.Log().Has(good) {
		t.Errorf("the valid op in the batch should still be admitted")
	}
	rendered, err := c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "ok"; rendered.Text != want {
		t.Errorf("render = %q, want %q", rendered.Text, want)
	}
}

// Re-delivering an entire batch a second time, or ingesting it a
// paragraph-order-reversed way via causal deferral, converges to the
// same document — IngestBatch is idempotent and order-insensitive the
// same way the underlying OpLog/Fold are.
func TestClientIngestBatchIdempotentAndOrderInsensitive(t *testing.T) {
	base := OpId{OperationID: 1, ClientID: 5}
	baseAction := ParagraphInsert{
		Anchor:         OriginParagraphID,
		Position:       EraseAnchorIfEmpty,
		FirstParagraph: NewParagraph{Texts: []PartiallyFormattedText{{Text: "go"}}},
	}
	dependent := OpId{OperationID: 2, ClientID: 5}
	dependentAction := Insert{
		Anchor:           AtTail(NodeId(base)),
		BeforeParagraphs: []PartiallyFormattedText{{Text: "!"}},
	}
	batch := []RemoteOp{{ID: base, Action: baseAction}, {ID: dependent, Action: dependentAction}}
	reversed := []RemoteOp{{ID: dependent, Action: dependentAction}, {ID: base, Action: baseAction}}

	forward := NewClient(9, nil)
	if err := forward.IngestBatch(batch); err != nil {
		t.Fatalf("forward IngestBatch: %v", err)
	}
	if err := forward.IngestBatch(batch); err != nil { // re-delivery
		t.Fatalf("forward re-delivery: %v", err)
	}

	backward := NewClient(9, nil)
	if err := backward.IngestBatch(reversed); err != nil { // dependent arrives first, deferred
		t.Fatalf("backward IngestBatch: %v", err)
	}

	forwardRender, err := forward.Render()
	if err != nil {
		t.Fatalf("forward Render: %v", err)
	}
	backwardRender, err := backward.Render()
	if err != nil {
		t.Fatalf("backward Render: %v", err)
	}
	if want := "go!"; forwardRender.Text != want || backwardRender.Text != want {
		t.Errorf("renders = %q / %q, want both %q", forwardRender.Text, backwardRender.Text, want)
	}
	if forward.Log().Len() != 2 || backward.Log().Len() != 2 {
		t.Errorf("expected both logs to settle at 2 entries, got %d / %d", forward.Log().Len(), backward.Log().Len())
	}
}
