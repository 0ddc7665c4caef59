package richcrdt

import "fmt"

// OpId is a totally ordered pair naming an operation. Ordering is
// lexicographic: OperationID first, ClientID as a tiebreaker.
type OpId struct {
	OperationID uint64
	ClientID    uint64
}

// Less reports whether id sorts strictly before other.
func (id OpId) Less(other OpId) bool {
	if id.OperationID != other.OperationID {
		return id.OperationID < other.OperationID
	}
	return id.ClientID < other.ClientID
}

// String renders the id as "(operation_id,client_id)", matching the
// notation used throughout the design documents.
func (id OpId) String() string {
	return fmt.Sprintf("(%d,%d)", id.OperationID, id.ClientID)
}

// IsZero reports whether id is the reserved origin id (0,0).
func (id OpId) IsZero() bool {
	return id.OperationID == 0 && id.ClientID == 0
}

// NodeId names a text insertion. Reused as the OpId of the Insert
// action that created it.
type NodeId OpId

// Less reports whether id sorts strictly before other.
func (id NodeId) Less(other NodeId) bool { return OpId(id).Less(OpId(other)) }

func (id NodeId) String() string { return OpId(id).String() }

// ParagraphId names a paragraph. Reused as the OpId of the action that
// created it. OriginParagraphID is present in every replica from
// creation.
type ParagraphId OpId

// Less reports whether id sorts strictly before other.
func (id ParagraphId) Less(other ParagraphId) bool { return OpId(id).Less(OpId(other)) }

func (id ParagraphId) String() string { return OpId(id).String() }

// ActionId names an Action; it is always equal to that action's OpId.
type ActionId = OpId

// OriginParagraphID is the reserved id (0,0): the paragraph guaranteed
// to exist, as the first element, in every replica.
var OriginParagraphID = ParagraphId{OperationID: 0, ClientID: 0}
