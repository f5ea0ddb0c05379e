package composer

import "pharmacy/admin/internal/domain"

type Status int

const (
	StatusClosed Status = iota
	StatusEmpty
	StatusEditing
	StatusSubmitting
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusEditing:
		return "editing"
	case StatusSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// State is everything one open form knows. Errors always matches Draft.
type State struct {
	Status Status
	// TransactionID is set when an existing transaction is being edited.
	TransactionID string
	Catalog       *Catalog
	Draft         Draft
	Errors        Errors
}

// Event is a change to the form. User edits are the exported types; the
// open and submit lifecycle events are raised by Composer only.
type Event interface {
	isEvent()
}

type TypeChanged struct{ Type domain.TransactionType }

type LineAdded struct{}

type LineRemoved struct{ Index int }

// ProductSelected picks a catalog product for a line. An id the catalog does
// not know clears the selection.
type ProductSelected struct {
	Index     int
	ProductID string
}

type QuantityChanged struct {
	Index int
	Raw   string
}

type opened struct {
	catalog       *Catalog
	draft         Draft
	transactionID string
}

type submitStarted struct{}
type submitSucceeded struct{}
type submitFailed struct{}
type cancelled struct{}

func (TypeChanged) isEvent()     {}
func (LineAdded) isEvent()       {}
func (LineRemoved) isEvent()     {}
func (ProductSelected) isEvent() {}
func (QuantityChanged) isEvent() {}
func (opened) isEvent()          {}
func (submitStarted) isEvent()   {}
func (submitSucceeded) isEvent() {}
func (submitFailed) isEvent()    {}
func (cancelled) isEvent()       {}

// Reduce applies ev to s and revalidates. Edits are ignored while the form
// is closed or submitting; submitting an invalid draft leaves s unchanged.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case opened:
		return withDraft(State{
			Status:        StatusEmpty,
			TransactionID: ev.transactionID,
			Catalog:       ev.catalog,
		}, ev.draft)
	case cancelled, submitSucceeded:
		return State{Status: StatusClosed}
	case submitStarted:
		if !editable(s) || !s.Errors.Empty() {
			return s
		}
		s.Status = StatusSubmitting
		return s
	case submitFailed:
		if s.Status != StatusSubmitting {
			return s
		}
		s.Status = StatusEditing
		return s
	}

	if !editable(s) {
		return s
	}
	var d Draft
	switch ev := ev.(type) {
	case TypeChanged:
		d = s.Draft.WithType(ev.Type)
	case LineAdded:
		d = s.Draft.AddLine()
	case LineRemoved:
		d = s.Draft.RemoveLine(ev.Index)
	case ProductSelected:
		p, _ := s.Catalog.Find(ev.ProductID)
		d = s.Draft.SetProduct(ev.Index, p)
	case QuantityChanged:
		d = s.Draft.SetQuantity(ev.Index, ev.Raw)
	default:
		return s
	}
	s.Status = StatusEditing
	return withDraft(s, d)
}

func editable(s State) bool {
	return s.Status == StatusEmpty || s.Status == StatusEditing
}

func withDraft(s State, d Draft) State {
	s.Draft = d
	s.Errors = Validate(d)
	return s
}
