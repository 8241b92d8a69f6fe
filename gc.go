package arena

import (
	"reflect"
	"sync"
)

var pointerTypes sync.Map // reflect.Type -> bool

// HoldsPointers reports whether values of T may hold Go pointers. Such
// values must not live in block memory, which the garbage collector does
// not scan.
func HoldsPointers[T any]() bool {
	t := reflect.TypeFor[T]()
	if v, ok := pointerTypes.Load(t); ok {
		return v.(bool)
	}
	r := hasPointers(t)
	pointerTypes.Store(t, r)
	return r
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// makeSlice allocates n values of T on the Go heap, or returns nil when
// the runtime refuses the size.
func makeSlice[T any](n uint64) (s []T) {
	defer func() {
		if recover() != nil {
			s = nil
		}
	}()
	return make([]T, n)
}
