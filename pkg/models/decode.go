package models

import (
	"errors"
	"fmt"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
)

// ErrInvalidDocument marks a stored document that does not decode into a
// valid entity. Callers drop such documents rather than trusting their shape.
var ErrInvalidDocument = errors.New("invalid document")

func decodeValid(doc docstore.Document, kind string, v any) error {
	if err := doc.Decode(v); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidDocument, kind, doc.ID, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidDocument, kind, doc.ID, err)
	}
	return nil
}

// ActorFromDocument decodes and validates a users document.
func ActorFromDocument(doc docstore.Document) (Actor, error) {
	var a Actor
	if err := decodeValid(doc, "actor", &a); err != nil {
		return Actor{}, err
	}
	if a.Category != "" {
		a.Category = enums.NormalizeCategory(string(a.Category))
	}
	return a, nil
}

// RequestFromDocument decodes and validates a requests document.
func RequestFromDocument(doc docstore.Document) (ProductRequest, error) {
	var r ProductRequest
	if err := decodeValid(doc, "request", &r); err != nil {
		return ProductRequest{}, err
	}
	r.Category = enums.NormalizeCategory(string(r.Category))
	return r, nil
}

// OfferFromDocument decodes and validates an offers document. Offers written
// without a status are pending.
func OfferFromDocument(doc docstore.Document) (Offer, error) {
	var o Offer
	if err := decodeValid(doc, "offer", &o); err != nil {
		return Offer{}, err
	}
	if o.Status == "" {
		o.Status = enums.OfferStatusPending
	}
	return o, nil
}

// OrderFromDocument decodes and validates an orders document.
func OrderFromDocument(doc docstore.Document) (Order, error) {
	var o Order
	if err := decodeValid(doc, "order", &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// UpdateFromDocument decodes and validates an updates document.
func UpdateFromDocument(doc docstore.Document) (DailyUpdate, error) {
	var u DailyUpdate
	if err := decodeValid(doc, "update", &u); err != nil {
		return DailyUpdate{}, err
	}
	return u, nil
}

// DecodeAll decodes every document, returning the valid entities and one
// error per rejected document.
func DecodeAll[T any](docs []docstore.Document, decode func(docstore.Document) (T, error)) ([]T, []error) {
	out := make([]T, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		v, err := decode(doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errs
}
