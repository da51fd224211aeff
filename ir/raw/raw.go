// Package raw holds the undecoded PDF object model shared by the scanner,
// the xref resolver, the parser and the incremental writer.
package raw

import (
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
}

// Rectangle is a PDF rectangle normalised so that LLX <= URX and LLY <= URY.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// RectFromArray reads a four-number array into a normalised rectangle.
func RectFromArray(o Object) (Rectangle, bool) {
	arr, ok := o.(*ArrayObj)
	if !ok || arr.Len() != 4 {
		return Rectangle{}, false
	}
	var v [4]float64
	for i := range v {
		f, ok := AsNumber(arr.Items[i])
		if !ok {
			return Rectangle{}, false
		}
		v[i] = f
	}
	r := Rectangle{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r, true
}

// AsName returns the value of a name object.
func AsName(o Object) (string, bool) {
	n, ok := o.(NameObj)
	if !ok {
		return "", false
	}
	return n.Val, true
}

// AsNumber returns the numeric value of a number object as float64.
func AsNumber(o Object) (float64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// AsInt returns the integer value of a number object. Reals are truncated.
func AsInt(o Object) (int64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	if n.IsInt {
		return n.I, true
	}
	return int64(n.F), true
}

// SortedKeys returns dictionary keys in lexical order so serialization is stable.
func SortedKeys(d *DictObj) []string {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
