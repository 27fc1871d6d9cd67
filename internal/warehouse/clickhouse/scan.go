package clickhouse

import "reflect"

// newScanTarget allocates a pointer of the driver-reported scan type.
func newScanTarget(t reflect.Type) any {
	if t == nil {
		var v any
		return &v
	}
	return reflect.New(t).Interface()
}

// deref returns the value behind a pointer from newScanTarget.
func deref(p any) any {
	v := reflect.ValueOf(p)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil
	}
	return v.Elem().Interface()
}
