package pipeline

import (
	"context"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
)

// Transform modifies a record between read and write. Returning a nil
// record drops it from the batch. Transforms run in the order given.
type Transform func(ctx context.Context, record *core.Record) (*core.Record, error)

// FieldMapperTransform renames fields according to mapping. Unmapped
// fields are kept; field order is preserved.
//
// Example:
//
//	runner := NewRunner(svc, src, w, WithTransforms(
//	    FieldMapperTransform(map[string]string{"user_id": "id"}),
//	))
func FieldMapperTransform(mapping map[string]string) Transform {
	return func(ctx context.Context, record *core.Record) (*core.Record, error) {
		out := core.NewRecord()
		for _, f := range record.Fields() {
			name := f.Name
			if mapped, ok := mapping[name]; ok {
				name = mapped
			}
			out.Set(name, f.Value)
		}
		return out, nil
	}
}

// FilterTransform keeps only the records predicate accepts
func FilterTransform(predicate func(*core.Record) bool) Transform {
	return func(ctx context.Context, record *core.Record) (*core.Record, error) {
		if predicate(record) {
			return record, nil
		}
		return nil, nil
	}
}

// TypeConverterTransform converts the value of field with converter
func TypeConverterTransform(field string, converter func(interface{}) (interface{}, error)) Transform {
	return func(ctx context.Context, record *core.Record) (*core.Record, error) {
		value, ok := record.Get(field)
		if !ok {
			return record, nil
		}
		converted, err := converter(value)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to convert field").
				WithDetail("field", field)
		}
		record.Set(field, converted)
		return record, nil
	}
}
