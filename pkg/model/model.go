// Package model defines the entity contract shared by repositories.
package model

import "reflect"

// Entity is a record identified by a value of type P.
type Entity[P comparable] interface {
	// GetID returns the identifier.
	GetID() P
	// SetID replaces the identifier.
	SetID(id P)
	// IDType returns the runtime type of P.
	IDType() reflect.Type
}

// Model carries an identifier and satisfies Entity when embedded by pointer.
//
//	type Widget struct {
//		model.Model[int64]
//		Name string
//	}
type Model[P comparable] struct {
	ID P `json:"id" db:"id"`
}

// GetID returns the identifier.
func (m *Model[P]) GetID() P {
	return m.ID
}

// SetID replaces the identifier.
func (m *Model[P]) SetID(id P) {
	m.ID = id
}

// IDType returns the runtime type of the identifier.
func (m *Model[P]) IDType() reflect.Type {
	return IDTypeOf[P]()
}

// IDTypeOf returns the runtime type of P without needing an instance.
func IDTypeOf[P comparable]() reflect.Type {
	return reflect.TypeFor[P]()
}

// HasID reports whether e carries a non-zero identifier.
func HasID[P comparable](e Entity[P]) bool {
	if e == nil {
		return false
	}
	var zero P
	return e.GetID() != zero
}
