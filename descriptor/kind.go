package descriptor

import "fmt"

// Tag discriminates the value-kind variants carried in signatures.
// Values match the wire encoding.
type Tag uint8

const (
	TagNumber    Tag = 0x01
	TagBoolean   Tag = 0x02
	TagStringRef Tag = 0x03
	TagHandle    Tag = 0x04
	TagSlice     Tag = 0x05
)

var tagNames = [...]string{
	TagNumber:    "number",
	TagBoolean:   "boolean",
	TagStringRef: "string",
	TagHandle:    "handle",
	TagSlice:     "slice",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) && tagNames[t] != "" {
		return tagNames[t]
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(t))
}

// ValueKind describes one element of an export signature. It is a closed
// variant: Tag selects which of the remaining fields carry meaning.
type ValueKind struct {
	// Elem is the element kind of a Slice.
	Elem *ValueKind

	// StructID is the target struct id of a Handle.
	StructID uint32

	Tag Tag

	// Width is a Number's width in bits: 8, 16, 32 or 64.
	Width uint8

	// Signed is a Number's signedness.
	Signed bool

	// Owned marks a StringRef argument whose buffer the module takes
	// ownership of; the glue must not free it after the call.
	Owned bool
}

// Number returns an integer kind of the given width in bits.
func Number(width uint8, signed bool) ValueKind {
	return ValueKind{Tag: TagNumber, Width: width, Signed: signed}
}

// Boolean returns the boolean kind. It crosses the boundary as 0 or 1.
func Boolean() ValueKind {
	return ValueKind{Tag: TagBoolean}
}

// StringRef returns the string kind. Strings cross the boundary as a
// pointer+length pair over UTF-8 bytes in linear memory.
func StringRef(owned bool) ValueKind {
	return ValueKind{Tag: TagStringRef, Owned: owned}
}

// Handle returns an opaque reference kind targeting the struct with the
// given id. The id must resolve against a declared struct definition.
func Handle(structID uint32) ValueKind {
	return ValueKind{Tag: TagHandle, StructID: structID}
}

// Slice returns a sequence kind over the given element kind.
func Slice(elem ValueKind) ValueKind {
	return ValueKind{Tag: TagSlice, Elem: &elem}
}

// String renders the kind in WIT-like vocabulary: u32, s64, bool, string,
// handle<id>, list<elem>.
func (k ValueKind) String() string {
	switch k.Tag {
	case TagNumber:
		if k.Signed {
			return fmt.Sprintf("s%d", k.Width)
		}
		return fmt.Sprintf("u%d", k.Width)
	case TagBoolean:
		return "bool"
	case TagStringRef:
		return "string"
	case TagHandle:
		return fmt.Sprintf("handle<%d>", k.StructID)
	case TagSlice:
		return fmt.Sprintf("list<%s>", k.Elem)
	default:
		return k.Tag.String()
	}
}
