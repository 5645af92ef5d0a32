package avs

import (
	"encoding/binary"
	"reflect"
)

// Field 记录中一个字段的字节位置
type Field struct {
	Name   string
	Offset int
	Width  int
}

// Layout 记录的字节布局。嵌套结构体展开为点分名称，数组（包括结构体数组）作为一个字段
func Layout(record any) []Field {
	fields, _ := layoutValues(record)
	return fields
}

// FieldOffset 查找字段偏移，不存在时返回 -1
func FieldOffset(record any, name string) int {
	for _, f := range Layout(record) {
		if f.Name == name {
			return f.Offset
		}
	}
	return -1
}

func layoutValues(record any) ([]Field, []any) {
	v := reflect.Indirect(reflect.ValueOf(record))
	var (
		fields []Field
		values []any
	)
	offset := 0
	var walk func(v reflect.Value, prefix string)
	walk = func(v reflect.Value, prefix string) {
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			fv := v.Field(i)
			name := sf.Name
			if prefix != "" {
				name = prefix + "." + name
			}
			if fv.Kind() == reflect.Struct {
				walk(fv, name)
				continue
			}
			width := binary.Size(fv.Interface())
			fields = append(fields, Field{Name: name, Offset: offset, Width: width})
			values = append(values, fv.Interface())
			offset += width
		}
	}
	walk(v, "")
	return fields, values
}
