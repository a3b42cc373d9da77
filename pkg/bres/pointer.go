package bres

import (
	"errors"
	"fmt"
)

// Pointer errors.
var (
	ErrUnresolved      = errors.New("pointer is not resolved")
	ErrAlreadyResolved = errors.New("pointer is already resolved")
)

// Section identifies which part of a container a Location addresses.
type Section uint8

const (
	SectionNone Section = iota
	SectionHeader
	SectionOffsetTable
	SectionString
	SectionData
	SectionRemovable
	SectionExternal
)

// String returns the section name.
func (s Section) String() string {
	switch s {
	case SectionNone:
		return "None"
	case SectionHeader:
		return "Header"
	case SectionOffsetTable:
		return "OffsetTable"
	case SectionString:
		return "String"
	case SectionData:
		return "Data"
	case SectionRemovable:
		return "Removable"
	case SectionExternal:
		return "External"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Location is a resolved address: a buffer handle plus a byte offset.
//
// Header and Data share the bulk buffer, so Off is a bulk offset for both.
// Index selects the string (String), the chunk (Removable) or the file
// context slot (External).
type Location struct {
	Section Section
	Index   int
	Off     int64
}

// Nil reports whether l is the zero Location.
func (l Location) Nil() bool {
	return l.Section == SectionNone
}

// Add returns l advanced by n bytes.
func (l Location) Add(n int64) Location {
	l.Off += n
	return l
}

func (l Location) String() string {
	return fmt.Sprintf("%s[%d]+%d", l.Section, l.Index, l.Off)
}

// Pointer is a relocatable value: either an unresolved offset or a resolved
// Location, never both.
type Pointer struct {
	offset   int64
	loc      Location
	resolved bool
}

// Unresolved returns a pointer holding a raw offset.
func Unresolved(offset int64) Pointer {
	return Pointer{offset: offset}
}

// ResolvedAt returns a pointer already resolved to loc.
func ResolvedAt(loc Location) Pointer {
	return Pointer{loc: loc, resolved: true}
}

// IsResolved reports which interpretation is valid.
func (p Pointer) IsResolved() bool {
	return p.resolved
}

// Offset returns the raw offset; valid only while unresolved.
func (p Pointer) Offset() (int64, error) {
	if p.resolved {
		return 0, ErrAlreadyResolved
	}
	return p.offset, nil
}

// Location returns the resolved location; valid only once resolved.
func (p Pointer) Location() (Location, error) {
	if !p.resolved {
		return Location{}, ErrUnresolved
	}
	return p.loc, nil
}

// Resolve converts the stored offset into a location at base+offset inside
// the buffer identified by section and index.
func (p *Pointer) Resolve(section Section, index int, base int64) error {
	if p.resolved {
		return ErrAlreadyResolved
	}
	*p = ResolvedAt(Location{Section: section, Index: index, Off: base + p.offset})
	return nil
}

// Unresolve stores location - base back as an offset.
func (p *Pointer) Unresolve(base int64) error {
	if !p.resolved {
		return ErrUnresolved
	}
	*p = Unresolved(p.loc.Off - base)
	return nil
}

// Entry is one offset-table entry: Outer addresses a pointer field, Inner is
// the resolved value of that field.
type Entry struct {
	Outer    Pointer
	Inner    Pointer
	External bool
	Err      error
}
