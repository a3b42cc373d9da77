package bres

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// errSkip marks a location that is deliberately left unresolved.
var errSkip = errors.New("skip")

// Resolve runs pointer fix-up over the offset table in index order.
// Once the processed bit is set it does nothing. The returned error combines
// the per-entry failures, which never stop the pass.
func (c *Container) Resolve() error {
	if c.header.Processed() {
		return nil
	}
	for i := range c.entries {
		c.resolveEntry(i)
	}
	c.markProcessed()
	return c.entryErrs
}

func (c *Container) markProcessed() {
	c.header.Version |= versionProcessedBit
	binary.LittleEndian.PutUint16(c.bulk[versionFieldOffset:], c.header.Version)
}

func (c *Container) resolveEntry(i int) {
	e := &c.entries[i]
	if e.Outer.IsResolved() || e.Err != nil {
		return
	}
	raw, _ := e.Outer.Offset()

	field, external, err := c.locate(raw, false)
	if err != nil {
		if !errors.Is(err, errSkip) {
			c.fail(i, err)
		}
		return
	}
	if err := e.Outer.Resolve(field.Section, field.Index, field.Off-raw); err != nil {
		c.fail(i, err)
		return
	}
	e.External = external

	// External fields belong to the other file's own pass. Entry 0 addresses
	// the table itself.
	if external || i == 0 {
		return
	}
	c.resolveInner(i, field)
}

// resolveInner resolves the value stored in the field an entry addresses.
func (c *Container) resolveInner(i int, field Location) {
	if field.Section == SectionString {
		return
	}
	raw, err := c.ReadPointer(field)
	if err != nil {
		c.fail(i, fmt.Errorf("reading field at %s: %w", field, err))
		return
	}
	if raw == 0 {
		return
	}

	e := &c.entries[i]
	e.Inner = Unresolved(raw)
	target, external, err := c.locate(raw, true)
	if err != nil {
		if !errors.Is(err, errSkip) {
			c.fail(i, err)
		}
		return
	}
	if err := e.Inner.Resolve(target.Section, target.Index, target.Off-raw); err != nil {
		c.fail(i, err)
		return
	}
	c.relocs[field] = target

	if !external && target.Section == SectionRemovable {
		c.resolveNested(target)
	}
}

// resolveNested follows a pointer stored inside a removable chunk when it
// targets another removable chunk. Only one extra level is followed.
func (c *Container) resolveNested(field Location) {
	if _, ok := c.relocs[field]; ok {
		return
	}
	raw, err := c.ReadPointer(field)
	if err != nil || raw == 0 {
		return
	}
	target, external, err := c.locate(raw, true)
	if err != nil || external || target.Section != SectionRemovable {
		return
	}
	c.relocs[field] = target
}

func (c *Container) fail(i int, err error) {
	err = fmt.Errorf("entry %d: %w", i, err)
	c.entries[i].Err = err
	c.entryErrs = multierr.Append(c.entryErrs, err)
}

// locate maps a stored pointer value to a Location. inner selects the
// classification used for values read out of pointer fields.
func (c *Container) locate(raw int64, inner bool) (Location, bool, error) {
	off := raw - c.header.OriginValue()
	if off < 0 || off >= c.layout.fileSize {
		loc, err := c.locateExternal(raw)
		return loc, true, err
	}
	loc, err := c.classify(off, inner)
	return loc, false, err
}

// locateExternal addresses a value that lies outside this file. Bit 31
// selects the context slot; the low bits minus that context's origin give
// the file offset there. Without a registered context the origin is zero.
func (c *Container) locateExternal(raw int64) (Location, error) {
	slot := 0
	if raw&originSlotBit != 0 {
		slot = 1
	}
	if slot == c.header.ContextSlot() {
		return Location{}, fmt.Errorf("%w: value %#x is outside its own file", ErrExternalContext, raw)
	}
	off := raw & originValueMask
	if ctx := c.opts.contexts[slot]; ctx != nil {
		off -= ctx.header.OriginValue()
		if off < 0 || off >= ctx.layout.fileSize {
			return Location{}, fmt.Errorf("%w: offset %d outside context %d", ErrExternalContext, off, slot)
		}
	}
	return Location{Section: SectionExternal, Index: slot, Off: off}, nil
}

// classify places a file offset into its section.
func (c *Container) classify(off int64, inner bool) (Location, error) {
	l := c.layout
	switch {
	case off < l.headerSize:
		return Location{Section: SectionHeader, Off: off}, nil
	case off < l.offsetTableStart:
		return Location{}, fmt.Errorf("%w: %d between header and offset table", ErrOutOfBounds, off)
	case off < l.offsetTableEnd:
		return Location{Section: SectionOffsetTable, Off: off - l.offsetTableStart}, nil
	case off < l.stringEnd:
		// The first string-table byte is the header's own name, not a string.
		if inner && off == l.offsetTableEnd {
			return Location{}, errSkip
		}
		return c.extractString(off)
	case off < l.unremovableEnd:
		return Location{Section: SectionData, Off: off - l.dataShift()}, nil
	}

	if c.chunks.Len() == 0 {
		return Location{}, fmt.Errorf("%w: %d past unremovable data", ErrOutOfBounds, off)
	}
	idx, err := c.chunks.Find(off)
	if err != nil {
		return Location{}, err
	}
	return Location{Section: SectionRemovable, Index: idx, Off: off - int64(c.chunks.chunks[idx].Offset)}, nil
}

// extractString copies the length-prefixed string at file offset off into
// string storage.
func (c *Container) extractString(off int64) (Location, error) {
	if c.stringBuf == nil {
		return Location{}, errSkip
	}
	pos := off - c.layout.offsetTableEnd
	if pos < 4 {
		return Location{}, errSkip
	}
	n := int64(binary.LittleEndian.Uint32(c.stringBuf[pos-4:]))
	if n > int64(c.opts.maxStringLen) || pos+n > int64(len(c.stringBuf)) {
		return Location{}, errSkip
	}
	idx := c.strings.intern(off, c.stringBuf[pos:pos+n])
	return Location{Section: SectionString, Index: idx}, nil
}
