package entrystore

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator checks the shape of an entry before it is committed.
type Validator interface {
	Validate(e Entry) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(e Entry) error

func (f ValidatorFunc) Validate(e Entry) error {
	return f(e)
}

// NopValidator accepts every entry.
var NopValidator = ValidatorFunc(func(Entry) error { return nil })

// StructValidator validates entries by their `validate` struct tags.
type StructValidator struct {
	v *validator.Validate
}

func NewStructValidator() *StructValidator {
	return &StructValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// RegisterValidation exposes custom tag registration of the underlying validator.
func (sv *StructValidator) RegisterValidation(tag string, fn validator.Func) error {
	return sv.v.RegisterValidation(tag, fn)
}

func (sv *StructValidator) Validate(e Entry) error {
	if err := sv.v.Struct(e); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEntry, e.EntryType(), err)
	}
	return nil
}
