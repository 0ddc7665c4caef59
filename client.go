package richcrdt

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// InputKind distinguishes the two local-input shapes a Client accepts:
// typed text, or a paragraph break (Enter).
type InputKind int

const (
	InputText InputKind = iota
	InputParagraphBreak
)

// Input is one local edit a user performs at the current selection.
type Input struct {
	Kind  InputKind
	Text  string         // meaningful when Kind == InputText
	Style ParagraphStyle // meaningful when Kind == InputParagraphBreak; style for the new paragraph
}

// RemoteOp is one operation received from another replica: its id and
// the action it performs.
type RemoteOp struct {
	ID     OpId
	Action Action
}

// Client is the per-replica façade spec.md §5 describes: it owns one
// client's id, mints new OpIds in order, holds the append-only log, and
// serves the materialized DocumentState, re-folding lazily and only
// once per generation.
type Client struct {
	id  uint64
	log *zap.Logger

	mu        sync.Mutex
	opCounter uint64
	opLog     *OpLog
	folder    *Folder

	pending map[OpId]Action // causally-unready remote ops, buffered until ready

	// selection is the local caret/range, kept independently of cached
	// so it survives the next generation's re-fold (IngestRemote/
	// IngestBatch bump generation and invalidate cached, but the user's
	// selection did not move) — see setCaretLocked/foldLocked.
	selection  Selection
	generation uint64
	cached     *DocumentState
	cachedGen  uint64
}

// NewClient creates a fresh replica with the given client id (unique
// across the collaborating set) and an empty document containing only
// the origin paragraph.
func NewClient(clientID uint64, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		id:        clientID,
		log:       log.Named("richcrdt.client"),
		opLog:     NewOpLog(),
		folder:    NewFolder(log),
		pending:   make(map[OpId]Action),
		selection: NotSelected{},
	}
}

// ClientID returns this replica's client id.
func (c *Client) ClientID() uint64 { return c.id }

// nextOpID mints the next OpId for a locally authored action: the
// running max OperationID across the whole log (local and remote),
// plus one, paired with this client's id. Because every later action's
// references only ever name OpIds already present in the log when they
// were minted, ascending-OpId replay is always causally consistent —
// Fold never needs to defer on a locally-authored op.
func (c *Client) nextOpID() OpId {
	c.opCounter++
	max := uint64(0)
	if m, ok := c.opLog.Max(); ok {
		max = m.OperationID
	}
	if c.opCounter <= max {
		c.opCounter = max + 1
	}
	return OpId{OperationID: c.opCounter, ClientID: c.id}
}

// mint appends action under a freshly minted OpId and returns it.
func (c *Client) mint(action Action) OpId {
	id := c.nextOpID()
	c.opLog.Put(id, action)
	c.generation++
	return id
}

// mintWith is mint for actions that need to reference their own OpId
// while being constructed (e.g. a split Insert deriving its new
// paragraph's id from its own id).
func (c *Client) mintWith(build func(id OpId) Action) OpId {
	id := c.nextOpID()
	c.opLog.Put(id, build(id))
	c.generation++
	return id
}

// AddInput applies one local edit at the current selection, minting
// whatever action(s) that requires and moving the selection after the
// new content: typed text leaves a sticky-tail caret on the new node, a
// paragraph break leaves the caret at the beginning of the new
// after-paragraph.
func (c *Client) AddInput(in Input) (OpId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.foldLocked()
	if err != nil {
		return OpId{}, err
	}

	switch in.Kind {
	case InputText:
		return c.addTextInputLocked(state, in.Text)
	case InputParagraphBreak:
		return c.addParagraphBreakLocked(state, in.Style)
	default:
		return OpId{}, NewUnsupportedAction("unknown input kind")
	}
}

func (c *Client) addTextInputLocked(state *DocumentState, text string) (OpId, error) {
	if _, ok := state.Selection.(NotSelected); ok {
		return OpId{}, nil
	}
	caret, ok := state.Selection.(Caret)
	if !ok {
		return OpId{}, NewUnsupportedAction("typing over a range selection")
	}
	switch at := state.LiveAnchor(caret.At).(type) {
	case TextAnchor:
		id := c.mint(Insert{
			Anchor:           at,
			BeforeParagraphs: []PartiallyFormattedText{{Text: text}},
		})
		c.setCaretLockedAnchor(AtTail(NodeId(id)))
		return id, nil
	case ParagraphAnchor:
		id := c.mint(ParagraphInsert{
			Anchor:         at.ParagraphID,
			Position:       EraseAnchorIfEmpty,
			FirstParagraph: NewParagraph{Texts: []PartiallyFormattedText{{Text: text}}},
		})
		c.setCaretLockedAnchor(AtTail(NodeId(id)))
		return id, nil
	default:
		return OpId{}, NewUnsupportedAction("unresolved selection anchor kind")
	}
}

func (c *Client) addParagraphBreakLocked(state *DocumentState, style ParagraphStyle) (OpId, error) {
	if _, ok := state.Selection.(NotSelected); ok {
		return OpId{}, nil
	}
	caret, ok := state.Selection.(Caret)
	if !ok {
		return OpId{}, NewUnsupportedAction("paragraph break over a range selection")
	}
	anchor, ok := state.LiveAnchor(caret.At).(TextAnchor)
	if !ok {
		return OpId{}, NewUnsupportedAction("paragraph break at a paragraph boundary")
	}
	var afterID ParagraphId
	id := c.mintWith(func(id OpId) Action {
		afterID = ParagraphIdFromAdditional(id, 0)
		return Insert{
			Anchor: anchor,
			Split: &ParagraphSplit{
				AfterParagraphID: afterID,
				AfterTexts:       nil,
				AfterStyle:       style,
			},
		}
	})
	c.setCaretLockedAnchor(ParagraphAnchorAt(afterID, AtBeginning))
	return id, nil
}

// ChangeSelection sets the local selection to sel without minting any
// operation — selection state is purely local/ephemeral, never part of
// the replicated log.
func (c *Client) ChangeSelection(sel Selection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCaretLocked(sel)
}

func (c *Client) setCaretLocked(sel Selection) {
	c.selection = sel
	if cached := c.cached; cached != nil && c.cachedGen == c.generation {
		cached.Selection = sel
	}
}

// setCaretLockedAnchor is setCaretLocked for a bare Anchor: the
// AtTail/ParagraphAnchorAt calls above pass an Anchor, so wrap it as a
// Caret.
func (c *Client) setCaretLockedAnchor(a Anchor) { c.setCaretLocked(Caret{At: a}) }

// IngestRemote admits a single remote operation. If any OpId it
// references is not yet present in the log, it is buffered until a
// later IngestRemote/IngestBatch call makes it causally ready — this
// is the one place causal deferral is enforced; Fold itself assumes
// ascending-OpId replay is always ready.
func (c *Client) IngestRemote(op RemoteOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ingestLocked(op)
}

// IngestBatch admits several remote operations, continuing past
// individual failures and returning every error combined via
// multierr — an ambient addition over spec.md's single-op interface,
// useful for a resynchronizing client catching up on a backlog.
func (c *Client) IngestBatch(ops []RemoteOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs error
	for _, op := range ops {
		if err := c.ingestLocked(op); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *Client) ingestLocked(op RemoteOp) error {
	if c.opLog.Has(op.ID) {
		return nil // idempotent re-delivery
	}
	if err := validateActionShape(op.Action); err != nil {
		c.log.Error("rejecting remote op", zap.Uint64("operation_id", op.ID.OperationID), zap.Uint64("client_id", op.ID.ClientID), zap.Error(err))
		return err
	}
	c.pending[op.ID] = op.Action
	c.drainReadyLocked()
	return nil
}

// validateActionShape rejects action shapes this iteration never
// implements, before the op is even buffered — the only fatal check
// that doesn't need the document state Fold would otherwise require.
func validateActionShape(action Action) error {
	if p, ok := action.(ParagraphInsert); ok && p.Position != EraseAnchorIfEmpty {
		return NewUnsupportedAction("ParagraphInsert position other than EraseAnchorIfEmpty")
	}
	if u, ok := action.(UndoRedo); ok && u.UndoCounterChange == 0 {
		return NewInvariantViolation("UndoRedo.UndoCounterChange must be non-zero")
	}
	return nil
}

// drainReadyLocked moves every pending op whose references are now all
// present in the log into the log itself, repeating until a fixed
// point (one admission can ready another).
func (c *Client) drainReadyLocked() {
	for {
		progressed := false
		for id, action := range c.pending {
			if c.isReadyLocked(action) {
				c.opLog.Put(id, action)
				delete(c.pending, id)
				c.generation++
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// isReadyLocked reports whether every OpId action references is
// already present in the log.
func (c *Client) isReadyLocked(action Action) bool {
	for _, ref := range referencedOpIDs(action) {
		if ref.IsZero() {
			continue // the reserved origin id always exists
		}
		if !c.opLog.Has(ref) {
			return false
		}
	}
	return true
}

func referencedOpIDs(action Action) []OpId {
	var out []OpId
	addAnchor := func(a Anchor) {
		switch v := a.(type) {
		case TextAnchor:
			out = append(out, OpId(v.AtNode))
		case ParagraphAnchor:
			out = append(out, OpId(v.ParagraphID))
		}
	}
	switch a := action.(type) {
	case ParagraphInsert:
		out = append(out, OpId(a.Anchor))
	case Insert:
		addAnchor(a.Anchor)
	case FormatChangeAction:
		addAnchor(a.BeginAnchor)
		addAnchor(a.EndAnchor)
	case ParagraphStyleChange:
		for _, p := range a.Paragraphs {
			out = append(out, OpId(p))
		}
	case Erase:
		addAnchor(a.BeginAnchor)
		addAnchor(a.EndAnchor)
	case SpliceInsert:
		addAnchor(a.Anchor)
		out = append(out, a.EraseID)
	case SpliceParagraphInsert:
		out = append(out, OpId(a.Anchor.ParagraphID), a.EraseID)
	case UndoRedo:
		out = append(out, a.EditID)
	}
	return out
}

// foldLocked returns the materialized document, re-folding only when
// the log has changed since the last fold. Every call site holds c.mu
// across the call, so at most one goroutine ever runs this at a time;
// the stored selection is re-projected onto every freshly folded state
// per spec.md §4.4 invariant 7, so a caret set before a remote sync
// still resolves afterward instead of reverting to NotSelected.
func (c *Client) foldLocked() (*DocumentState, error) {
	if c.cached != nil && c.cachedGen == c.generation {
		return c.cached, nil
	}
	state, err := c.folder.Fold(c.opLog)
	if err != nil {
		return nil, err
	}
	state.Selection = c.selection
	c.cached = state
	c.cachedGen = c.generation
	return state, nil
}

// Render returns the current materialized document's test-print
// rendering, resolving the local selection against it.
func (c *Client) Render() (RenderedDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.foldLocked()
	if err != nil {
		return RenderedDocument{}, err
	}
	return Render(state), nil
}

// RenderText is Render narrowed to the flattened string spec.md §6
// calls render_text() — the form the scenario tests in fold_test.go
// assert against.
func (c *Client) RenderText() (string, error) {
	rendered, err := c.Render()
	if err != nil {
		return "", err
	}
	return rendered.Text, nil
}

// State returns the current materialized DocumentState directly, for
// callers that need structural access rather than the flattened
// rendering.
func (c *Client) State() (*DocumentState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foldLocked()
}

// Log exposes the underlying append-only operation log, primarily for
// replicating this client's history to peers.
func (c *Client) Log() *OpLog { return c.opLog }
