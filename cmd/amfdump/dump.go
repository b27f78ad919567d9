package main

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/classmap"
)

// dumper prints decoded values as an indented tree. A value reached a
// second time is printed as a back reference to its first id.
type dumper struct {
	out    io.Writer
	mapper *classmap.Mapper
	seen   map[any]int
}

type sliceID struct {
	ptr uintptr
	len int
}

func newDumper(out io.Writer, mapper *classmap.Mapper) *dumper {
	return &dumper{out: out, mapper: mapper, seen: make(map[any]int)}
}

// Dump prints one top-level value.
func (d *dumper) Dump(v any) {
	d.value(v, 0)
	fmt.Fprintln(d.out)
}

// visit reports a back reference for an already printed value, or assigns
// the next id.
func (d *dumper) visit(v any) (id int, seen bool) {
	var key any = v
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		key = sliceID{ptr: rv.Pointer(), len: rv.Len()}
	} else if !rv.Comparable() {
		return 0, false
	}
	if id, ok := d.seen[key]; ok {
		return id, true
	}
	id = len(d.seen) + 1
	d.seen[key] = id
	return id, false
}

func (d *dumper) indent(depth int) string {
	return strings.Repeat("  ", depth)
}

func (d *dumper) value(v any, depth int) {
	switch v := v.(type) {
	case nil:
		fmt.Fprint(d.out, "null")
	case bool, float64, int32:
		fmt.Fprint(d.out, v)
	case string:
		fmt.Fprintf(d.out, "%q", v)
	case time.Time:
		fmt.Fprint(d.out, v.Format(time.RFC3339Nano))
	case []byte:
		fmt.Fprintf(d.out, "bytes(%d) %x", len(v), v)
	case []any:
		if len(v) == 0 {
			fmt.Fprint(d.out, "[]")
			return
		}
		id, seen := d.visit(v)
		if seen {
			fmt.Fprintf(d.out, "&%d", id)
			return
		}
		fmt.Fprintf(d.out, "#%d [\n", id)
		for _, item := range v {
			fmt.Fprint(d.out, d.indent(depth+1))
			d.value(item, depth+1)
			fmt.Fprintln(d.out)
		}
		fmt.Fprintf(d.out, "%s]", d.indent(depth))
	case *amf.Object:
		id, seen := d.visit(v)
		if seen {
			fmt.Fprintf(d.out, "&%d", id)
			return
		}
		if v.ClassName == "" {
			fmt.Fprintf(d.out, "#%d object {\n", id)
		} else {
			fmt.Fprintf(d.out, "#%d object %q {\n", id, v.ClassName)
		}
		d.members(v.Members, depth)
	case *amf.Mapping:
		id, seen := d.visit(v)
		if seen {
			fmt.Fprintf(d.out, "&%d", id)
			return
		}
		fmt.Fprintf(d.out, "#%d mapping {\n", id)
		for i, item := range v.Dense {
			fmt.Fprintf(d.out, "%s%d: ", d.indent(depth+1), i)
			d.value(item, depth+1)
			fmt.Fprintln(d.out)
		}
		d.members(v.Assoc, depth)
	case *amf.Dictionary:
		id, seen := d.visit(v)
		if seen {
			fmt.Fprintf(d.out, "&%d", id)
			return
		}
		fmt.Fprintf(d.out, "#%d dictionary {\n", id)
		for _, entry := range v.Entries {
			fmt.Fprint(d.out, d.indent(depth+1))
			d.value(entry.Key, depth+1)
			fmt.Fprint(d.out, " => ")
			d.value(entry.Value, depth+1)
			fmt.Fprintln(d.out)
		}
		fmt.Fprintf(d.out, "%s}", d.indent(depth))
	default:
		d.native(v, depth)
	}
}

// members prints ordered properties and the closing brace.
func (d *dumper) members(props *amf.Properties, depth int) {
	if props != nil {
		for key, item := range props.AllFromFront() {
			fmt.Fprintf(d.out, "%s%s: ", d.indent(depth+1), key)
			d.value(item, depth+1)
			fmt.Fprintln(d.out)
		}
	}
	fmt.Fprintf(d.out, "%s}", d.indent(depth))
}

// native prints a mapped native value through the mapper.
func (d *dumper) native(v any, depth int) {
	id, seen := d.visit(v)
	if seen {
		fmt.Fprintf(d.out, "&%d", id)
		return
	}
	props, err := d.mapper.Properties(v)
	if err != nil {
		fmt.Fprintf(d.out, "%v", v)
		return
	}
	name, _ := d.mapper.ClassName(v)
	fmt.Fprintf(d.out, "#%d %T %q {\n", id, v, name)
	if dynamic := d.mapper.DynamicProperties(v); dynamic != nil {
		for key, item := range dynamic.AllFromFront() {
			props.Set(key, item)
		}
	}
	d.members(props, depth)
}
