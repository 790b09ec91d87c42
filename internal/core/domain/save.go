package domain

import "fmt"

// SaveRequest is the tagged union of writes the model accepts. Exactly three
// shapes exist: NewList, NewItem and Existing. The caller states which write
// it wants instead of the model sniffing the document shape.
type SaveRequest interface {
	isSaveRequest()
}

// NewList requests creation of a shopping list document.
type NewList struct {
	Title   string
	Checked bool
	Place   *Place
}

func (NewList) isSaveRequest() {}

// NewItem requests creation of an item document under an existing list.
type NewItem struct {
	// List is the owning list's id. Required.
	List    string
	Title   string
	Checked bool
}

func (NewItem) isSaveRequest() {}

// Existing requests an update of an already-identified document. The
// document must carry its current revision token.
type Existing struct {
	Doc Document
}

func (Existing) isSaveRequest() {}

// NewListDocument constructs a canonical list document: generated id,
// defaults for missing optional fields, createdAt stamped, updatedAt empty.
// The input is never mutated. An empty title is rejected here, independent
// of any caller-side validation.
func NewListDocument(req NewList) (*Document, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: list title must not be empty", ErrValidation)
	}

	place := req.Place.clone()
	if place == nil {
		place = &Place{Address: map[string]string{}}
	} else if place.Address == nil {
		place.Address = map[string]string{}
	}

	return &Document{
		ID:        NewDocumentID(TypeList),
		Type:      TypeList,
		Version:   SchemaVersion,
		Title:     req.Title,
		Checked:   req.Checked,
		Place:     place,
		CreatedAt: Timestamp(),
		UpdatedAt: "",
	}, nil
}

// NewItemDocument constructs a canonical item document. The owning list id
// comes from the request, or from listID when the request leaves it empty
// (the "current list" context of the caller).
func NewItemDocument(req NewItem, listID string) (*Document, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: item title must not be empty", ErrValidation)
	}

	owner := req.List
	if owner == "" {
		owner = listID
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: item requires an owning list", ErrValidation)
	}

	return &Document{
		ID:        NewDocumentID(TypeItem),
		Type:      TypeItem,
		Version:   SchemaVersion,
		Title:     req.Title,
		Checked:   req.Checked,
		List:      owner,
		CreatedAt: Timestamp(),
		UpdatedAt: "",
	}, nil
}
