package richcrdt

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// allFormatMask covers every format bit this engine knows about.
const allFormatMask = uint32(FormatBold | FormatItalic)

// Folder deterministically replays an OpLog into a fresh DocumentState.
// It is the component spec.md §4.3 calls the document folder: a full
// replay from EmptyDocumentState() on every call, an explicit O(n²)
// trade-off recorded in DESIGN.md.
type Folder struct {
	// Strict enables post-fold invariant validation (an ambient addition
	// over spec.md): every violation found is aggregated via multierr
	// instead of stopping at the first.
	Strict bool
	log    *zap.Logger
}

// NewFolder returns a Folder with strict invariant checking enabled.
func NewFolder(log *zap.Logger) *Folder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Folder{Strict: true, log: log}
}

// replayCtx holds the erase/splice race bookkeeping that only needs to
// live for the duration of one Fold call; spec.md's "known_splices"
// reconciliation reads it.
type replayCtx struct {
	eraseSpans map[ActionId][]TombstoneNode
	claimed    map[ActionId][]bool
	paraSpans  map[ActionId]*Paragraph
	paraClaim  map[ActionId]bool

	// lastParaSibling and lastTailSibling chain concurrent insertions
	// that target the same anchor: since Fold always replays in
	// ascending OpId order, recording where the most recently processed
	// same-anchor insertion landed and attaching the next one
	// immediately after it reproduces spec.md §4.3's tie-break rule
	// ("the earlier-OpId insertion lands closer to the anchor; the
	// later one is inserted on its far side") without needing a
	// full sibling-ordered integrate algorithm.
	lastParaSibling map[ParagraphId]int
	lastTailSibling map[TextAnchor]NodeId

	// lastParaWinner records, per anchor, the paragraph that the first
	// (lowest-OpId) ParagraphInsert targeting it materialized this Fold
	// pass. A concurrent racer at the same still-empty anchor has no
	// node of its own to chain onto the way applyInsert's lastTailSibling
	// does, so it appends its run into this paragraph's own contents
	// instead of minting a second sibling paragraph — see
	// applyParagraphInsert.
	lastParaWinner map[ParagraphId]*Paragraph
}

func newReplayCtx() *replayCtx {
	return &replayCtx{
		eraseSpans:      make(map[ActionId][]TombstoneNode),
		claimed:         make(map[ActionId][]bool),
		paraSpans:       make(map[ActionId]*Paragraph),
		paraClaim:       make(map[ActionId]bool),
		lastParaSibling: make(map[ParagraphId]int),
		lastTailSibling: make(map[TextAnchor]NodeId),
		lastParaWinner:  make(map[ParagraphId]*Paragraph),
	}
}

// Fold replays every entry of log, in ascending OpId order, into a
// fresh DocumentState. Anchors are resolved against the state as built
// so far; an anchor naming an OpId not yet in the log is a
// LookupFailure — by the time a well-behaved Client hands Fold a log,
// every entry's next_operation_id contract (§4.5) has already ensured
// every reference resolves to something earlier in this same ascending
// order, so in practice LookupFailure here indicates the caller handed
// Fold a causally-incomplete log.
func (f *Folder) Fold(log *OpLog) (*DocumentState, error) {
	state := EmptyDocumentState()
	counters := computeUndoCounters(log)
	ctx := newReplayCtx()

	for _, entry := range log.Ordered() {
		if _, isUndo := entry.Action.(UndoRedo); isUndo {
			continue
		}
		visible := counters[entry.ID]%2 == 0
		if err := f.apply(state, entry.ID, entry.Action, visible, ctx); err != nil {
			if ce, ok := err.(*CrdtError); ok && ce.IsRecoverable() {
				f.log.Debug("op has an unresolved anchor", zap.Stringer("op", entry.ID), zap.Error(err))
			} else {
				f.log.Error("fold failed", zap.Stringer("op", entry.ID), zap.Error(err))
			}
			return nil, err
		}
	}

	if f.Strict {
		if err := validateInvariants(state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// computeUndoCounters sums UndoCounterChange across every UndoRedo
// targeting each EditID.
func computeUndoCounters(log *OpLog) map[ActionId]int32 {
	counters := make(map[ActionId]int32)
	for _, entry := range log.Ordered() {
		if u, ok := entry.Action.(UndoRedo); ok {
			counters[u.EditID] += u.UndoCounterChange
		}
	}
	return counters
}

func (f *Folder) apply(state *DocumentState, id OpId, action Action, visible bool, ctx *replayCtx) error {
	switch a := action.(type) {
	case ParagraphInsert:
		return f.applyParagraphInsert(state, id, a, visible, ctx)
	case Insert:
		return f.applyInsert(state, id, a, visible, ctx)
	case FormatChangeAction:
		return f.applyFormatChange(state, id, a, visible, ctx)
	case ParagraphStyleChange:
		return f.applyParagraphStyleChange(state, a, visible)
	case Erase:
		return f.applyErase(state, id, a, visible, ctx)
	case SpliceInsert:
		return f.applySpliceInsert(state, id, a, visible, ctx)
	case SpliceParagraphInsert:
		return f.applySpliceParagraphInsert(state, id, a, visible, ctx)
	default:
		return NewUnsupportedAction("unknown action type")
	}
}

// ---- ParagraphInsert ----

func (f *Folder) applyParagraphInsert(state *DocumentState, id OpId, a ParagraphInsert, visible bool, ctx *replayCtx) error {
	if a.Position != EraseAnchorIfEmpty {
		return NewUnsupportedAction("ParagraphInsert position other than EraseAnchorIfEmpty")
	}
	idx := state.ParagraphIndex(a.Anchor)
	if idx < 0 {
		return NewLookupFailure("paragraph", a.Anchor)
	}
	anchorPara := state.Paragraphs[idx]
	if !anchorPara.Tombstoned && paragraphIsEmpty(anchorPara) {
		ctx.paraSpans[id] = &Paragraph{
			ID:       anchorPara.ID,
			Contents: append([]TextNode(nil), anchorPara.Contents...),
			Style:    anchorPara.Style,
		}
		anchorPara.Tombstoned = true
	}

	runs := collectParagraphInsertRuns(a)
	segmentsByParagraph, _ := assignRunsAcrossParagraphs(NodeId(id), runs)

	// A second ParagraphInsert racing another one at the same anchor
	// (both typing into what was, on their own replica, an empty
	// paragraph) has no paragraph of its own to contribute: spec.md §8
	// S3 has both characters converge into one paragraph, the lower
	// OpId winning the anchor-adjacent slot and the later racer's run
	// appended into it, rather than a second paragraph joined by a
	// paragraph break that neither client actually typed.
	if winner, chained := ctx.lastParaWinner[a.Anchor]; chained {
		winner.Contents = append(winner.Contents, segmentsByParagraph[0]...)
		if !visible {
			winner.Tombstoned = true
		}
		if len(a.AdditionalParagraphs) > 0 {
			insertAt := ctx.lastParaSibling[a.Anchor]
			newParas := make([]*Paragraph, 0, len(a.AdditionalParagraphs))
			for i, ap := range a.AdditionalParagraphs {
				newParas = append(newParas, &Paragraph{ID: ap.ID, Contents: segmentsByParagraph[i+1], Style: ap.Paragraph.Style, Tombstoned: !visible})
			}
			state.Paragraphs = insertParagraphsAt(state.Paragraphs, insertAt+1, newParas)
			ctx.lastParaSibling[a.Anchor] = insertAt + len(newParas)
		}
		return nil
	}

	newParas := make([]*Paragraph, 0, 1+len(a.AdditionalParagraphs))
	winner := &Paragraph{ID: ParagraphId(id), Contents: segmentsByParagraph[0], Style: a.FirstParagraph.Style, Tombstoned: !visible}
	newParas = append(newParas, winner)
	for i, ap := range a.AdditionalParagraphs {
		newParas = append(newParas, &Paragraph{ID: ap.ID, Contents: segmentsByParagraph[i+1], Style: ap.Paragraph.Style, Tombstoned: !visible})
	}

	insertAt, chained := ctx.lastParaSibling[a.Anchor]
	if !chained {
		insertAt = idx
	}
	state.Paragraphs = insertParagraphsAt(state.Paragraphs, insertAt+1, newParas)
	ctx.lastParaSibling[a.Anchor] = insertAt + len(newParas)
	ctx.lastParaWinner[a.Anchor] = winner
	return nil
}

func collectParagraphInsertRuns(a ParagraphInsert) [][]PartiallyFormattedText {
	out := make([][]PartiallyFormattedText, 0, 1+len(a.AdditionalParagraphs))
	out = append(out, a.FirstParagraph.Texts)
	for _, ap := range a.AdditionalParagraphs {
		out = append(out, ap.Paragraph.Texts)
	}
	return out
}

// assignRunsAcrossParagraphs lays a single logical insertion's runs out
// across N paragraph-shaped chunks, sharing one NodeId and one
// increasing offset space; only the last non-empty run overall is left
// open-ended (sticky tail).
func assignRunsAcrossParagraphs(node NodeId, chunks [][]PartiallyFormattedText) ([][]TextNode, uint32) {
	lastChunk, lastRun := -1, -1
	for ci, chunk := range chunks {
		for ri, r := range chunk {
			if len([]rune(r.Text)) > 0 {
				lastChunk, lastRun = ci, ri
			}
		}
	}
	out := make([][]TextNode, len(chunks))
	offset := uint32(0)
	for ci, chunk := range chunks {
		var segs []TextNode
		segs, offset = buildRunSegments(node, chunk, offset, func(ri int) bool { return ci == lastChunk && ri == lastRun })
		out[ci] = segs
	}
	return out, offset
}

// buildRunSegments expands a run list into FormatChangeMarker+TextFragment
// pairs starting at startOffset. isTail(ri) reports whether run index ri
// is the global tail of the whole insertion (gets OffsetAfter=nil).
func buildRunSegments(node NodeId, runs []PartiallyFormattedText, startOffset uint32, isTail func(int) bool) ([]TextNode, uint32) {
	var out []TextNode
	offset := startOffset
	for i, r := range runs {
		length := uint32(len([]rune(r.Text)))
		if length == 0 {
			continue
		}
		out = append(out, FormatChangeMarker{Change: FormatChange{Mask: allFormatMask, Value: r.Format}})
		var offAfter *uint32
		if !isTail(i) {
			v := offset + length
			offAfter = &v
		}
		out = append(out, TextFragment{Node: node, Offset: offset, OffsetAfter: offAfter, Text: r.Text})
		offset += length
	}
	return out, offset
}

func paragraphIsEmpty(p *Paragraph) bool {
	for _, n := range p.Contents {
		if f, ok := n.(TextFragment); ok && f.Len() > 0 {
			return false
		}
	}
	return true
}

func insertParagraphsAt(paras []*Paragraph, at int, toInsert []*Paragraph) []*Paragraph {
	out := make([]*Paragraph, 0, len(paras)+len(toInsert))
	out = append(out, paras[:at]...)
	out = append(out, toInsert...)
	out = append(out, paras[at:]...)
	return out
}

// ---- Insert ----

func (f *Folder) applyInsert(state *DocumentState, id OpId, a Insert, visible bool, ctx *replayCtx) error {
	paraIdx, contentIdx, err := f.resolveInsertionGap(state, a.Anchor, ctx)
	if err != nil {
		return err
	}
	if a.Anchor.AtIndex == nil {
		defer func() { ctx.lastTailSibling[a.Anchor] = NodeId(id) }()
	}

	chunks := [][]PartiallyFormattedText{a.BeforeParagraphs}
	var middleParas []NewParagraph
	var afterTexts []PartiallyFormattedText
	if a.Split != nil {
		middleParas = a.Split.MiddleParagraphs
		for _, mp := range middleParas {
			chunks = append(chunks, mp.Texts)
		}
		afterTexts = a.Split.AfterTexts
		chunks = append(chunks, afterTexts)
	}
	segmentsByChunk, _ := assignRunsAcrossParagraphs(NodeId(id), chunks)

	p := state.Paragraphs[paraIdx]
	beforeSegs := segmentsByChunk[0]

	if a.Split == nil {
		p.Contents = spliceNodes(p.Contents, contentIdx, beforeSegs)
		if !visible {
			tombstoneRunNodes(p, contentIdx, len(beforeSegs))
		}
		return nil
	}

	// Split the anchor paragraph at contentIdx into left/right halves.
	left := append([]TextNode(nil), p.Contents[:contentIdx]...)
	right := append([]TextNode(nil), p.Contents[contentIdx:]...)
	left = append(left, beforeSegs...)
	p.Contents = left

	newParas := make([]*Paragraph, 0, len(middleParas)+1)
	for i, mp := range middleParas {
		newParas = append(newParas, &Paragraph{ID: ParagraphIdFromAdditional(id, i), Contents: segmentsByChunk[i+1], Style: mp.Style})
	}
	afterSegs := append(append([]TextNode(nil), segmentsByChunk[len(segmentsByChunk)-1]...), right...)
	newParas = append(newParas, &Paragraph{ID: a.Split.AfterParagraphID, Contents: afterSegs, Style: a.Split.AfterStyle})

	if !visible {
		for _, np := range newParas {
			np.Tombstoned = true
		}
	}

	state.Paragraphs = insertParagraphsAt(state.Paragraphs, paraIdx+1, newParas)
	return nil
}

// ParagraphIdFromAdditional derives a paragraph id from an action's own
// OpId and a per-paragraph index. NewParagraph carries no id of its
// own, so applyInsert uses this for the middle paragraphs of a
// splitting Insert (index i for the i-th middle paragraph); the client
// also uses index 0 to mint a paragraph break's AfterParagraphID.
func ParagraphIdFromAdditional(base OpId, idx int) ParagraphId {
	return ParagraphId{OperationID: base.OperationID, ClientID: base.ClientID + uint64(idx+1)<<32}
}

func spliceNodes(contents []TextNode, at int, toInsert []TextNode) []TextNode {
	out := make([]TextNode, 0, len(contents)+len(toInsert))
	out = append(out, contents[:at]...)
	out = append(out, toInsert...)
	out = append(out, contents[at:]...)
	return out
}

func tombstoneRunNodes(p *Paragraph, at int, count int) {
	for i := at; i < at+count; i++ {
		if f, ok := p.Contents[i].(TextFragment); ok {
			p.Contents[i] = TombstoneNode{Node: f.Node, Offset: f.Offset, OffsetAfter: f.OffsetAfter, Length: f.Len(), Carried: []PartiallyFormattedText{{Text: f.Text}}}
		}
	}
}

// resolveInsertionGap finds the paragraph/content-index the anchor's
// gap occupies, splitting the containing fragment (or tombstone) when
// at_index lands strictly inside it. A tail anchor (at_index == nil)
// already claimed by an earlier-processed insertion this Fold pass is
// redirected to that insertion's own tail, chaining concurrent
// same-anchor tail inserts in ascending-OpId order (mirrors
// lastParaSibling's chaining for ParagraphInsert).
func (f *Folder) resolveInsertionGap(state *DocumentState, at TextAnchor, ctx *replayCtx) (paraIdx, contentIdx int, err error) {
	if at.AtIndex == nil {
		if redirect, ok := ctx.lastTailSibling[at]; ok {
			at = TextAnchor{AtNode: redirect}
		}
	}
	loc, ok := state.FindTextAnchor(at)
	if !ok {
		return 0, 0, NewLookupFailure("node", at.AtNode)
	}
	p := state.Paragraphs[loc.ParagraphIndex]
	switch n := p.Contents[loc.NodeIndex].(type) {
	case TextFragment:
		length := n.Len()
		if at.AtIndex == nil {
			return loc.ParagraphIndex, loc.NodeIndex + 1, nil
		}
		k := *at.AtIndex
		if k < n.Offset || k > n.Offset+length {
			return 0, 0, NewAnchorOutOfRange(n.Node, k, n.Offset, n.Offset+length)
		}
		switch {
		case k == n.Offset:
			return loc.ParagraphIndex, loc.NodeIndex, nil
		case k == n.Offset+length:
			return loc.ParagraphIndex, loc.NodeIndex + 1, nil
		default:
			front, back := splitFragment(n, k)
			p.Contents = spliceNodes(replaceAt(p.Contents, loc.NodeIndex), loc.NodeIndex, []TextNode{front, back})
			return loc.ParagraphIndex, loc.NodeIndex + 1, nil
		}
	case TombstoneNode:
		length := n.Length
		if at.AtIndex == nil {
			return loc.ParagraphIndex, loc.NodeIndex + 1, nil
		}
		k := *at.AtIndex
		if k < n.Offset || k > n.Offset+length {
			return 0, 0, NewAnchorOutOfRange(n.Node, k, n.Offset, n.Offset+length)
		}
		switch {
		case k == n.Offset:
			return loc.ParagraphIndex, loc.NodeIndex, nil
		case k == n.Offset+length:
			return loc.ParagraphIndex, loc.NodeIndex + 1, nil
		default:
			front, back := splitTombstone(n, k)
			p.Contents = spliceNodes(replaceAt(p.Contents, loc.NodeIndex), loc.NodeIndex, []TextNode{front, back})
			return loc.ParagraphIndex, loc.NodeIndex + 1, nil
		}
	default:
		return 0, 0, NewInvariantViolation("text anchor resolved to a non-text node")
	}
}

// replaceAt removes the element at idx, returning the remaining slice
// with a gap ready for spliceNodes to fill.
func replaceAt(contents []TextNode, idx int) []TextNode {
	out := make([]TextNode, 0, len(contents)-1)
	out = append(out, contents[:idx]...)
	out = append(out, contents[idx+1:]...)
	return out
}

func splitFragment(n TextFragment, k uint32) (TextFragment, TextFragment) {
	rel := k - n.Offset
	runes := []rune(n.Text)
	frontText, backText := string(runes[:rel]), string(runes[rel:])
	kk := k
	front := TextFragment{Node: n.Node, Offset: n.Offset, OffsetAfter: &kk, Text: frontText, FromSplice: n.FromSplice}
	back := TextFragment{Node: n.Node, Offset: k, OffsetAfter: n.OffsetAfter, Text: backText, FromSplice: n.FromSplice}
	return front, back
}

func splitTombstone(n TombstoneNode, k uint32) (TombstoneNode, TombstoneNode) {
	frontLen := k - n.Offset
	backLen := n.Length - frontLen
	var frontCarried, backCarried []PartiallyFormattedText
	if n.Carried != nil {
		frontCarried, backCarried = splitCarried(n.Carried, frontLen)
	}
	kk := k
	front := TombstoneNode{Node: n.Node, Offset: n.Offset, OffsetAfter: &kk, Length: frontLen, Carried: frontCarried}
	back := TombstoneNode{Node: n.Node, Offset: k, OffsetAfter: n.OffsetAfter, Length: backLen, Carried: backCarried}
	return front, back
}

func splitCarried(carried []PartiallyFormattedText, at uint32) (front, back []PartiallyFormattedText) {
	remaining := at
	i := 0
	for ; i < len(carried); i++ {
		rl := uint32(len([]rune(carried[i].Text)))
		if remaining < rl {
			break
		}
		front = append(front, carried[i])
		remaining -= rl
	}
	if i < len(carried) {
		r := carried[i]
		runes := []rune(r.Text)
		if remaining > 0 {
			front = append(front, PartiallyFormattedText{Text: string(runes[:remaining]), Format: r.Format})
		}
		back = append(back, PartiallyFormattedText{Text: string(runes[remaining:]), Format: r.Format})
		i++
	}
	back = append(back, carried[i:]...)
	return front, back
}

// runningFormatBefore computes the format mask in effect immediately
// before content index idx, by folding every FormatChangeMarker that
// precedes it in document order.
func runningFormatBefore(p *Paragraph, idx int) uint32 {
	running := uint32(0)
	for i := 0; i < idx && i < len(p.Contents); i++ {
		if m, ok := p.Contents[i].(FormatChangeMarker); ok {
			running = m.Change.Apply(running)
		}
	}
	return running
}

// ---- FormatChangeAction ----

func (f *Folder) applyFormatChange(state *DocumentState, id OpId, a FormatChangeAction, visible bool, ctx *replayCtx) error {
	if !visible {
		return nil
	}
	beginPara, beginIdx, err := f.resolveInsertionGap(state, a.BeginAnchor, ctx)
	if err != nil {
		return err
	}
	endPara, endIdx, err := f.resolveInsertionGap(state, a.EndAnchor, ctx)
	if err != nil {
		return err
	}
	if beginPara != endPara {
		return NewUnsupportedAction("FormatChange spanning a paragraph break")
	}
	p := state.Paragraphs[beginPara]
	restore := runningFormatBefore(p, beginIdx) & a.Format.Mask
	p.Contents = spliceNodes(p.Contents, beginIdx, []TextNode{FormatChangeMarker{Change: a.Format}})
	endIdx++ // account for the marker just inserted before endIdx
	p.Contents = spliceNodes(p.Contents, endIdx, []TextNode{FormatChangeMarker{Change: FormatChange{Mask: a.Format.Mask, Value: restore}}})
	_ = id
	return nil
}

// ---- ParagraphStyleChange ----

func (f *Folder) applyParagraphStyleChange(state *DocumentState, a ParagraphStyleChange, visible bool) error {
	if !visible {
		return nil
	}
	if len(a.Paragraphs) == 0 {
		return NewInvariantViolation("ParagraphStyleChange requires at least one paragraph")
	}
	for _, pid := range a.Paragraphs {
		p := state.FindParagraph(pid)
		if p == nil {
			return NewLookupFailure("paragraph", pid)
		}
		p.Style = a.Style
	}
	return nil
}

// ---- Erase ----

func (f *Folder) applyErase(state *DocumentState, id OpId, a Erase, visible bool, ctx *replayCtx) error {
	beginPara, beginIdx, err := f.resolveInsertionGap(state, a.BeginAnchor, ctx)
	if err != nil {
		return err
	}
	endPara, endIdx, err := f.resolveInsertionGap(state, a.EndAnchor, ctx)
	if err != nil {
		return err
	}
	if beginPara != endPara {
		return NewUnsupportedAction("multi-paragraph Erase range")
	}
	if !visible {
		return nil
	}
	p := state.Paragraphs[beginPara]
	var spans []TombstoneNode
	for i := beginIdx; i < endIdx && i < len(p.Contents); i++ {
		frag, ok := p.Contents[i].(TextFragment)
		if !ok {
			continue
		}
		if frag.FromSplice != nil && !containsActionID(a.KnownSplices, *frag.FromSplice) {
			continue // an unknown concurrent splice already owns this sub-range
		}
		format := runningFormatBefore(p, i)
		tomb := TombstoneNode{Node: frag.Node, Offset: frag.Offset, OffsetAfter: frag.OffsetAfter, Length: frag.Len(), Carried: []PartiallyFormattedText{{Text: frag.Text, Format: format}}}
		p.Contents[i] = tomb
		spans = append(spans, tomb)
	}
	ctx.eraseSpans[id] = spans
	ctx.claimed[id] = make([]bool, len(spans))
	return nil
}

func containsActionID(ids []ActionId, id ActionId) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// ---- SpliceInsert ----

func (f *Folder) applySpliceInsert(state *DocumentState, id OpId, a SpliceInsert, visible bool, ctx *replayCtx) error {
	spans, ok := ctx.eraseSpans[a.EraseID]
	if !ok {
		return NewLookupFailure("erase", a.EraseID)
	}
	claimed := ctx.claimed[a.EraseID]

	var chosen []TombstoneNode
	var chosenIdx []int
	for i, span := range spans {
		if !claimed[i] {
			chosen = append(chosen, span)
			chosenIdx = append(chosenIdx, i)
		}
	}
	if len(chosen) == 0 {
		return nil
	}
	for _, i := range chosenIdx {
		claimed[i] = true
	}

	paraIdx, contentIdx, err := f.resolveInsertionGap(state, a.Anchor, ctx)
	if err != nil {
		return err
	}
	p := state.Paragraphs[paraIdx]

	var newNodes []TextNode
	extra := 0
	spliceID := id
	tailNodeID := NodeId(id)
	for i, span := range chosen {
		nodeID := NodeId(id)
		if i > 0 {
			if extra >= len(a.NewNodeIDsIfNecessary) {
				return NewInvariantViolation("SpliceInsert did not pre-allocate enough new_node_ids_if_necessary")
			}
			nodeID = a.NewNodeIDsIfNecessary[extra]
			extra++
		}
		isLast := i == len(chosen)-1
		if isLast {
			tailNodeID = nodeID
		}
		segs, _ := buildRunSegments(nodeID, span.Carried, 0, func(int) bool { return isLast })
		for j, seg := range segs {
			if tf, ok := seg.(TextFragment); ok {
				tf.FromSplice = &spliceID
				segs[j] = tf
			}
		}
		newNodes = append(newNodes, segs...)
	}
	if a.Anchor.AtIndex == nil {
		ctx.lastTailSibling[a.Anchor] = tailNodeID
	}
	if !visible {
		for i := range newNodes {
			if tf, ok := newNodes[i].(TextFragment); ok {
				newNodes[i] = TombstoneNode{Node: tf.Node, Offset: tf.Offset, OffsetAfter: tf.OffsetAfter, Length: tf.Len(), Carried: []PartiallyFormattedText{{Text: tf.Text}}}
			}
		}
	}
	p.Contents = spliceNodes(p.Contents, contentIdx, newNodes)
	return nil
}

// ---- SpliceParagraphInsert ----

func (f *Folder) applySpliceParagraphInsert(state *DocumentState, id OpId, a SpliceParagraphInsert, visible bool, ctx *replayCtx) error {
	snapshot, ok := ctx.paraSpans[a.EraseID]
	if !ok || ctx.paraClaim[a.EraseID] {
		return NewLookupFailure("paragraph erase", a.EraseID)
	}
	ctx.paraClaim[a.EraseID] = true

	idx := state.ParagraphIndex(a.Anchor.ParagraphID)
	if idx < 0 {
		return NewLookupFailure("paragraph", a.Anchor.ParagraphID)
	}

	nodeID := NodeId(id)
	runs := extractRunsFromParagraph(snapshot)
	segs, _ := buildRunSegments(nodeID, runs, 0, func(int) bool { return true })
	style := a.NewParagraphStyle
	if style == "" {
		style = snapshot.Style
	}
	newPara := &Paragraph{ID: ParagraphId(id), Contents: segs, Style: style, Tombstoned: !visible}

	insertAt := idx
	if a.Anchor.Relativity == AtEnd {
		insertAt = idx + 1
	}
	state.Paragraphs = insertParagraphsAt(state.Paragraphs, insertAt, []*Paragraph{newPara})
	return nil
}

func extractRunsFromParagraph(p *Paragraph) []PartiallyFormattedText {
	var runs []PartiallyFormattedText
	running := uint32(0)
	for _, n := range p.Contents {
		switch v := n.(type) {
		case FormatChangeMarker:
			running = v.Change.Apply(running)
		case TextFragment:
			runs = append(runs, PartiallyFormattedText{Text: v.Text, Format: running})
		}
	}
	return runs
}

// ---- Invariant validation (ambient addition) ----

func validateInvariants(state *DocumentState) error {
	var errs error
	if len(state.Paragraphs) == 0 || state.Paragraphs[0].ID != OriginParagraphID {
		errs = multierr.Append(errs, NewInvariantViolation("origin paragraph missing or not first"))
	}
	seenNode := make(map[NodeId]bool)
	seenPara := make(map[ParagraphId]bool)
	for _, p := range state.Paragraphs {
		if seenPara[p.ID] {
			errs = multierr.Append(errs, NewInvariantViolation("duplicate paragraph id "+p.ID.String()))
		}
		seenPara[p.ID] = true
		var lastOffset *uint32
		var lastNode *NodeId
		for _, n := range p.Contents {
			nid := n.NodeIDPtr()
			if nid == nil {
				continue
			}
			if lastNode != nil && *lastNode == *nid {
				// contiguity within this paragraph for the same node id
				var offset uint32
				switch v := n.(type) {
				case TextFragment:
					offset = v.Offset
				case TombstoneNode:
					offset = v.Offset
				}
				if lastOffset != nil && offset != *lastOffset {
					errs = multierr.Append(errs, NewInvariantViolation("non-contiguous split for node "+nid.String()))
				}
			}
			lastNode = nid
			var after *uint32
			switch v := n.(type) {
			case TextFragment:
				after = v.OffsetAfter
				if after == nil {
					end := v.Offset + v.Len()
					after = &end
				}
			case TombstoneNode:
				after = v.OffsetAfter
				if after == nil {
					end := v.Offset + v.Length
					after = &end
				}
			}
			lastOffset = after
			seenNode[*nid] = true
		}
	}
	return errs
}
