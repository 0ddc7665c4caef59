// Package richcrdt implements a collaborative rich-text editing engine
// built on an operation-based CRDT: replicas exchange Actions addressed by
// anchors instead of positional indices, and any two replicas that have
// folded the same set of operations converge on byte-identical rendered
// text regardless of delivery order.
//
// # Quick Start
//
//	c := richcrdt.NewClient(3, nil)
//	c.ChangeSelection(richcrdt.Caret{At: richcrdt.ParagraphAnchorAt(richcrdt.OriginParagraphID, richcrdt.AtBeginning)})
//	if _, err := c.AddInput(richcrdt.Input{Kind: richcrdt.InputText, Text: "test text"}); err != nil {
//	    log.Fatal(err)
//	}
//	rendered, _ := c.Render()
//	fmt.Println(rendered.Text) // "test text|"
//
// # Architecture
//
// A Client owns an append-only operation log (OpLog) and the most
// recently materialized DocumentState. Local edits mint a new Action
// addressed at the client's current live selection; the Action is
// inserted into the log and the entire log is refolded by a Folder into
// a fresh DocumentState. Remote operations are ingested the same way:
// IngestRemote/IngestBatch splice an Action into the log (deferring it
// if it is not yet causally ready) and refold.
//
// # Scope
//
// This package implements the operation model, the document fold, and
// anchor/selection resolution described by the project's design
// documents. Network transport, persistence, session/identity, and a
// full undo history are out of scope; see DESIGN.md for what is and is
// not wired.
package richcrdt
