package service

import (
	"fmt"

	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/errors"
)

// Factory creates services of one type
type Factory struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Attributes  AttributeSchema `json:"attributes,omitempty"`
	New         Constructor     `json:"-"`
}

// Validate checks that the factory can be registered
func (f *Factory) Validate() error {
	if f == nil || f.Type == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: factory type is required", errors.ErrInvalidConfig),
			"Factory", "Validate", "type check")
	}
	if f.New == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: factory %s has no constructor", errors.ErrInvalidConfig, f.Type),
			"Factory", "Validate", "constructor check")
	}
	if _, err := f.Attributes.compile(); err != nil {
		return errors.Wrap(err, "Factory", "Validate", "attribute schema for "+f.Type)
	}
	return nil
}

// InterceptorConstructor builds an interceptor from its declared attributes
type InterceptorConstructor func(attrs map[string]any, deps *Dependencies) (endpoint.Interceptor, error)

// InterceptorFactory creates interceptors of one type
type InterceptorFactory struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	New         InterceptorConstructor `json:"-"`
}

// Validate checks that the interceptor factory can be registered
func (f *InterceptorFactory) Validate() error {
	if f == nil || f.Type == "" || f.New == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: interceptor factory needs a type and a constructor", errors.ErrInvalidConfig),
			"InterceptorFactory", "Validate", "definition check")
	}
	return nil
}
