package util

import (
	"reflect"

	"github.com/pkg/errors"
)

// IsStructInitialized checks whether all exported pointer, interface, map and
// slice fields of the given struct are non-nil, skipping field names listed in
// skip. It is used for readiness checks of dependency containers.
func IsStructInitialized(s interface{}, skip ...string) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return errors.New("struct pointer is nil")
		}
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return errors.Errorf("expected struct, got %s", v.Kind())
	}

	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || skipped[field.Name] {
			continue
		}

		value := v.Field(i)
		switch value.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			if value.IsNil() {
				return errors.Errorf("field %q is not initialized", field.Name)
			}
		default:
			// value types are always considered initialized
		}
	}

	return nil
}
