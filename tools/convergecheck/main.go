// Command convergecheck builds one shared operation log from a fixed
// set of concurrent edits, then folds every permutation of a
// replica's ingestion order concurrently and checks that every
// resulting DocumentState renders identically — an operational check
// of the "replay order doesn't affect the result" convergence property.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/falcomza/richedit-crdt"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "convergecheck:", err)
		os.Exit(1)
	}
}

func run() error {
	ops := buildSampleOps()

	perms := permutations(ops)
	renders := make([]string, len(perms))
	states := make([]*richcrdt.DocumentState, len(perms))

	g, _ := errgroup.WithContext(context.Background())
	for i, perm := range perms {
		i, perm := i, perm
		g.Go(func() error {
			log := richcrdt.NewOpLog()
			for _, op := range perm {
				log.Put(op.ID, op.Action)
			}
			folder := richcrdt.NewFolder(nil)
			state, err := folder.Fold(log)
			if err != nil {
				return fmt.Errorf("permutation %d: %w", i, err)
			}
			states[i] = state
			renders[i] = richcrdt.Render(state).Text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	want := renders[0]
	for i, got := range renders {
		if got != want {
			fmt.Printf("divergence at permutation %d\nwant: %s\ngot:  %s\nstate dump:\n%s\n", i, want, got, spew.Sdump(states[i]))
			return fmt.Errorf("replicas diverged across %d permutations", len(perms))
		}
	}
	fmt.Printf("ok: %d permutations converged to %q\n", len(perms), want)
	return nil
}

type opEntry struct {
	ID     richcrdt.OpId
	Action richcrdt.Action
}

// buildSampleOps mints a small fixed log: two clients concurrently
// typing into the same empty origin paragraph — spec.md's only way to
// put the first characters into a document — plus a third op
// appending at the sticky tail of the lower-OpId insertion, exercising
// both the paragraph- and text-anchor tie-break chaining in one log.
func buildSampleOps() []opEntry {
	firstID := richcrdt.OpId{OperationID: 1, ClientID: 1}
	return []opEntry{
		{ID: firstID, Action: richcrdt.ParagraphInsert{
			Anchor:         richcrdt.OriginParagraphID,
			Position:       richcrdt.EraseAnchorIfEmpty,
			FirstParagraph: richcrdt.NewParagraph{Texts: []richcrdt.PartiallyFormattedText{{Text: "foo"}}},
		}},
		{ID: richcrdt.OpId{OperationID: 1, ClientID: 2}, Action: richcrdt.ParagraphInsert{
			Anchor:         richcrdt.OriginParagraphID,
			Position:       richcrdt.EraseAnchorIfEmpty,
			FirstParagraph: richcrdt.NewParagraph{Texts: []richcrdt.PartiallyFormattedText{{Text: "bar"}}},
		}},
		{ID: richcrdt.OpId{OperationID: 2, ClientID: 1}, Action: richcrdt.Insert{
			Anchor:           richcrdt.AtTail(richcrdt.NodeId(firstID)),
			BeforeParagraphs: []richcrdt.PartiallyFormattedText{{Text: "!"}},
		}},
	}
}

// permutations returns every ordering of ops; Fold always replays in
// ascending OpId order regardless of ingestion order, so every
// permutation here is expected to fold to the same result — this
// exercises that property directly rather than assuming it.
func permutations(ops []opEntry) [][]opEntry {
	if len(ops) <= 1 {
		return [][]opEntry{append([]opEntry(nil), ops...)}
	}
	var out [][]opEntry
	for i := range ops {
		rest := make([]opEntry, 0, len(ops)-1)
		rest = append(rest, ops[:i]...)
		rest = append(rest, ops[i+1:]...)
		for _, p := range permutations(rest) {
			perm := append([]opEntry{ops[i]}, p...)
			out = append(out, perm)
		}
	}
	return out
}
