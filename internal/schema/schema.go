package schema

import "encoding/json"

// Operation identifies what a batch does to the entities it carries.
// The integer values are the wire protocol; do not renumber.
type Operation int

const (
	OpAdd    Operation = 1
	OpDelete Operation = 2
	OpModify Operation = 3
	OpUndo   Operation = 4
	OpRedo   Operation = 5
	OpJoin   Operation = 6
)

func (op Operation) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpModify:
		return "modify"
	case OpUndo:
		return "undo"
	case OpRedo:
		return "redo"
	case OpJoin:
		return "join"
	}
	return "unknown"
}

// IsEdit reports whether the operation authors new history (and therefore
// belongs on the undo stack).
func (op Operation) IsEdit() bool {
	return op == OpAdd || op == OpDelete || op == OpModify
}

// Inverse returns the operation that reverses op. Modify inverts onto
// itself: the reversal comes from re-applying the previous descriptor,
// not from a different operation kind.
func (op Operation) Inverse() Operation {
	switch op {
	case OpAdd:
		return OpDelete
	case OpDelete:
		return OpAdd
	default:
		return OpModify
	}
}

// UndoState tags a rebroadcast batch so receivers know whether to apply it
// forward, in reverse, or as a redo replay.
type UndoState int

const (
	UndoNone UndoState = 0
	UndoUndo UndoState = 1
	UndoRedo UndoState = 2
)

// Entity type tags carried on the wire. The descriptor payload format is
// type specific and opaque to the server.
const (
	TypeLine      = "LINE"
	TypeRectangle = "RECTANGLE"
	TypeEllipse   = "ELLIPSE"
	TypeText      = "TEXT"
	TypeSegment   = "SEGMENT"
)

// Entity is one drawable item. IDs are minted by the authoring client as
// {username}/{epoch-millis}-{counter}. PreviousDescriptor is set only on
// modify batches and holds the pre-edit descriptor so an undo can restore
// it byte for byte.
type Entity struct {
	ID                 string `json:"id"`
	RoomID             int64  `json:"roomId"`
	Descriptor         string `json:"descriptor"`
	PreviousDescriptor string `json:"previousDescriptor,omitempty"`
	Type               string `json:"type"`
	Timestamp          int64  `json:"timestamp"`
}

// Batch is the wire message in both directions: one transactional group of
// entity changes plus the operation kind. RoomCode is only meaningful on a
// join; after that the connection is bound to its room.
type Batch struct {
	Entities  []Entity  `json:"entities"`
	Operation Operation `json:"operation"`
	UndoState UndoState `json:"undoState"`
	RoomCode  string    `json:"roomCode,omitempty"`
}

// Encode marshals the batch to a JSON text frame.
func (b *Batch) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// Decode parses a JSON text frame into a batch.
func Decode(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
