package richcrdt

import "strings"

// RenderedDocument is the flattened, human-readable projection of a
// DocumentState: live text only, paragraphs joined by carriage
// returns, with the local selection rendered inline using the
// notation from spec.md §6 (`|` for a caret, `[...|` for a range).
type RenderedDocument struct {
	Text string
}

// Render materializes the live text of state with the selection
// marker(s) spliced in at the resolved live positions. Format changes
// are rendered as /b.../B and /i.../I escapes bracketing the runes
// they cover.
func Render(state *DocumentState) RenderedDocument {
	var out strings.Builder
	caretPara, caretIdx := -1, -1
	rangeBeginPara, rangeBeginIdx := -1, -1
	rangeEndPara, rangeEndIdx := -1, -1

	switch sel := state.Selection.(type) {
	case Caret:
		if r, ok := state.ResolveAnchor(sel.At); ok {
			caretPara, caretIdx = r.ParagraphIndex, r.ContentIndex
		}
	case Range:
		if b, e, ok := state.OrderedRange(sel); ok {
			rangeBeginPara, rangeBeginIdx = b.ParagraphIndex, b.ContentIndex
			rangeEndPara, rangeEndIdx = e.ParagraphIndex, e.ContentIndex
		}
	}

	wrote := false
	for pi, p := range state.Paragraphs {
		if p.Tombstoned {
			continue
		}
		if wrote {
			out.WriteByte('\r')
		}
		wrote = true
		running := uint32(0)
		for ni, n := range p.Contents {
			writeMarker(&out, pi, ni, caretPara, caretIdx, rangeBeginPara, rangeBeginIdx, rangeEndPara, rangeEndIdx)
			switch v := n.(type) {
			case FormatChangeMarker:
				writeFormatTransition(&out, running, v.Change.Apply(running))
				running = v.Change.Apply(running)
			case TextFragment:
				out.WriteString(v.Text)
			case TombstoneNode:
				// Tombstones never render; they remain only for anchor
				// resolution.
			}
		}
		writeMarker(&out, pi, len(p.Contents), caretPara, caretIdx, rangeBeginPara, rangeBeginIdx, rangeEndPara, rangeEndIdx)
		writeFormatTransition(&out, running, 0)
	}
	return RenderedDocument{Text: out.String()}
}

func writeMarker(out *strings.Builder, pi, ni, caretPara, caretIdx, beginPara, beginIdx, endPara, endIdx int) {
	if pi == caretPara && ni == caretIdx {
		out.WriteByte('|')
	}
	if pi == beginPara && ni == beginIdx {
		out.WriteString("[")
	}
	if pi == endPara && ni == endIdx {
		out.WriteString("|")
	}
}

func writeFormatTransition(out *strings.Builder, from, to uint32) {
	if Has(from, FormatBold) && !Has(to, FormatBold) {
		out.WriteString("/B")
	}
	if Has(from, FormatItalic) && !Has(to, FormatItalic) {
		out.WriteString("/I")
	}
	if !Has(from, FormatItalic) && Has(to, FormatItalic) {
		out.WriteString("/i")
	}
	if !Has(from, FormatBold) && Has(to, FormatBold) {
		out.WriteString("/b")
	}
}
