package document

import (
	"encoding/json"
	"errors"
	"time"
)

// State is derived from the trash flag; Purged documents no longer exist.
type State string

const (
	StateActive  State = "active"
	StateTrashed State = "trashed"
)

type Document struct {
	DocID      string          `json:"docId"`
	OwnerID    string          `json:"-"`
	Title      string          `json:"title"`
	Body       json.RawMessage `json:"body,omitempty"`
	InTrash    bool            `json:"inTrash"`
	CreatedAt  time.Time       `json:"createdAt"`
	ModifiedAt time.Time       `json:"modifiedAt"`
}

func (d Document) State() State {
	if d.InTrash {
		return StateTrashed
	}
	return StateActive
}

// Summary is a list entry: everything but the body.
type Summary struct {
	DocID      string    `json:"docId"`
	Title      string    `json:"title"`
	InTrash    bool      `json:"inTrash"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

func (d Document) Summary() Summary {
	return Summary{DocID: d.DocID, Title: d.Title, InTrash: d.InTrash, ModifiedAt: d.ModifiedAt}
}

// EmptyBody is the body of a freshly created document: an empty editor doc.
var EmptyBody = json.RawMessage(`{"type":"doc","content":[]}`)

const (
	MaxTitleLen = 200
	MaxBatch    = 100
)

type RenameRequest struct {
	Title string `json:"title"`
}

type SaveBodyRequest struct {
	Body json.RawMessage `json:"body" binding:"required"`
}

type BatchRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=100"`
}

type BatchResult struct {
	Count int `json:"count"`
}

// ErrDuplicateID is returned by a store when a generated external id is
// already taken. The lifecycle manager regenerates and retries.
var ErrDuplicateID = errors.New("document id already exists")
