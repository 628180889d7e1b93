package model

import (
	"errors"
	"fmt"
	"slices"
)

// Check validates the shape of m against the models already registered.
// All problems are reported together.
func Check(m *Model, existing []*Model) error {
	if m == nil {
		return ErrMissingNamespace
	}
	if m.Namespace == "" {
		return ErrMissingNamespace
	}

	var errs []error
	if slices.ContainsFunc(existing, func(o *Model) bool { return o.Namespace == m.Namespace }) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateNamespace, m.Namespace))
	}
	for k, r := range m.Reducers {
		if r == nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNilReducer, k))
		}
	}
	for k, e := range m.Effects {
		if e.Body == nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNilEffect, k))
		}
	}
	for k, s := range m.Subscriptions {
		if s == nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNilSubscription, k))
		}
	}
	return errors.Join(errs...)
}
