package bres_test

import (
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/bres/brestest"
)

func dataLoc(c *bres.Container, r brestest.Ref) bres.Location {
	return c.Data().Add(r.Off)
}

func TestHelloContainer(t *testing.T) {
	b := brestest.New()
	b.SkipSelfEntry = true
	rec := b.Alloc(16)
	hello := b.AddString("hello")
	b.AddEntry(rec)
	b.AddEntry(hello)

	c, err := b.Load("hello.bdae")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.Header().NumOffsets; got != 2 {
		t.Fatalf("NumOffsets = %d, want 2", got)
	}
	entries := c.Entries()
	loc, err := entries[1].Outer.Location()
	if err != nil {
		t.Fatalf("entry 1 unresolved: %v", err)
	}
	if loc.Section != bres.SectionString {
		t.Fatalf("entry 1 section = %s, want String", loc.Section)
	}
	if got := c.String(loc); got != "hello" {
		t.Errorf("entry 1 string = %q, want %q", got, "hello")
	}
	loc0, err := entries[0].Outer.Location()
	if err != nil || loc0.Section != bres.SectionData {
		t.Errorf("entry 0 = %v, %v; want Data", loc0, err)
	}
	if entries[0].Inner.IsResolved() {
		t.Error("entry 0 inner pointer should not be resolved")
	}
}

func buildRecords(origin uint32) (*brestest.Builder, brestest.Ref) {
	b := brestest.New()
	b.Origin = origin
	rec := b.Alloc(24)
	child := b.Alloc(8)
	b.PutU32(child, 7)
	b.PutPtr(rec, b.AddString("node"))
	b.PutPtr(rec.Add(8), child)
	b.PutU32(rec.Add(16), 42)
	return b, rec
}

func TestCursorFollowsPointers(t *testing.T) {
	for _, origin := range []uint32{0, 0x1000, 0x3FFF0000} {
		b, rec := buildRecords(origin)
		c, err := b.Load("records.bdae")
		if err != nil {
			t.Fatalf("origin %#x: Load: %v", origin, err)
		}
		if errs := c.EntryErrors(); len(errs) != 0 {
			t.Fatalf("origin %#x: entry errors: %v", origin, errs)
		}

		cur := c.Cursor(dataLoc(c, rec))
		if got := cur.Str(); got != "node" {
			t.Errorf("origin %#x: name = %q", origin, got)
		}
		if got := cur.Ptr().U32(); got != 7 {
			t.Errorf("origin %#x: child value = %d", origin, got)
		}
		if got := cur.U32(); got != 42 {
			t.Errorf("origin %#x: trailing value = %d", origin, got)
		}
		if err := cur.Err(); err != nil {
			t.Errorf("origin %#x: cursor error: %v", origin, err)
		}
		if got := c.Relocations(); got != 2 {
			t.Errorf("origin %#x: Relocations() = %d, want 2", origin, got)
		}
	}
}

func TestResolveIsFixedPoint(t *testing.T) {
	b, _ := buildRecords(0x200)
	c, err := b.Load("records.bdae")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Header().Processed() {
		t.Fatal("processed bit not set after load")
	}
	before := c.Entries()
	strs := c.Strings().Len()
	relocs := c.Relocations()

	if err := c.Resolve(); err != nil {
		t.Fatalf("guarded Resolve: %v", err)
	}
	bres.ClearProcessed(c)
	if err := c.Resolve(); err != nil {
		t.Fatalf("unguarded Resolve: %v", err)
	}

	if !reflect.DeepEqual(before, c.Entries()) {
		t.Error("entries changed on second resolve")
	}
	if c.Strings().Len() != strs || c.Relocations() != relocs {
		t.Errorf("state changed: strings %d->%d relocs %d->%d", strs, c.Strings().Len(), relocs, c.Relocations())
	}
}

func TestDeferredResolve(t *testing.T) {
	b, rec := buildRecords(0)
	c, err := b.Load("records.bdae", bres.WithDeferredResolve())
	if err != nil {
		t.Fatal(err)
	}
	if c.Header().Processed() || c.Relocations() != 0 {
		t.Fatal("deferred load should not resolve")
	}
	if err := c.Resolve(); err != nil {
		t.Fatal(err)
	}
	if got := c.Cursor(dataLoc(c, rec)).Str(); got != "node" {
		t.Errorf("name = %q", got)
	}
}

func TestStringRoundTrip(t *testing.T) {
	words := []string{"root", "Bip01_Spine", "", "mat_body", "tex/body.tga"}
	for _, origin := range []uint32{0, 0x7000} {
		b := brestest.New()
		b.Origin = origin
		refs := make([]brestest.Ref, len(words))
		for i, w := range words {
			refs[i] = b.AddString(w)
			b.PutPtr(b.Alloc(8), refs[i])
		}
		file := b.Bytes()
		c, err := bres.Parse("strings.bdae", file)
		if err != nil {
			t.Fatal(err)
		}

		seen := 0
		for _, e := range c.Entries() {
			if loc, err := e.Inner.Location(); err != nil || loc.Section != bres.SectionString {
				continue
			}
			seen++
		}
		if seen != len(words) {
			t.Fatalf("origin %#x: %d string entries, want %d", origin, seen, len(words))
		}
		for i, ref := range refs {
			off := b.FileOffset(ref)
			n := binary.LittleEndian.Uint32(file[off-4:])
			want := string(file[off : off+int64(n)])
			got := c.Cursor(c.Data().Add(int64(i * 8))).Str()
			if got != want || got != words[i] {
				t.Errorf("origin %#x: string %d = %q, want %q", origin, i, got, want)
			}
		}
	}
}

func TestStringLimit(t *testing.T) {
	b := brestest.New()
	field := b.Alloc(8)
	b.PutPtr(field, b.AddString(strings.Repeat("a", 300)))

	c, err := b.Load("anim.bdae", bres.WithMaxStringLen(bres.AnimationMaxStringLen))
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Cursor(dataLoc(c, field)).Str(); got != "" {
		t.Errorf("long string = %d bytes, want empty", len(got))
	}
	if errs := c.EntryErrors(); len(errs) != 0 {
		t.Errorf("long string should not be an error: %v", errs)
	}

	c, err = b.Load("anim.bdae", bres.WithStrings(false))
	if err != nil {
		t.Fatal(err)
	}
	if c.Strings().Len() != 0 {
		t.Errorf("strings extracted with extraction disabled")
	}
}

func TestHeaderNameQuirk(t *testing.T) {
	b := brestest.New()
	b.AddString("model_name")
	field := b.Alloc(8)
	b.PutPtr(field, brestest.Ref{Sec: brestest.Strings, Off: 0})

	c, err := b.Load("quirk.bdae")
	if err != nil {
		t.Fatal(err)
	}
	e := c.Entries()[1]
	if !e.Outer.IsResolved() {
		t.Fatal("outer pointer should be resolved")
	}
	if e.Inner.IsResolved() {
		t.Error("pointer at the first string-table byte should be skipped")
	}
	if len(c.EntryErrors()) != 0 {
		t.Errorf("unexpected errors: %v", c.EntryErrors())
	}
}

func TestInvalidSignature(t *testing.T) {
	b, _ := buildRecords(0)
	data := b.Bytes()
	copy(data, "BDAE")
	if _, err := bres.Parse("bad.bdae", data); !errors.Is(err, bres.ErrInvalidSignature) {
		t.Errorf("got %v, want ErrInvalidSignature", err)
	}
	if _, err := bres.Parse("short.bdae", data[:40]); !errors.Is(err, bres.ErrTruncated) {
		t.Errorf("got %v, want ErrTruncated", err)
	}
}

func TestCorruptCounts(t *testing.T) {
	tests := []struct {
		name  string
		field int
		value uint32
	}{
		{"huge chunk count", 68, 0x7FFFFFFF},
		{"chunks past removable size", 68, 64},
		{"huge offset count", 16, 0x7FFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, _ := removableFixture(false)
			data := b.Bytes()
			binary.LittleEndian.PutUint32(data[tt.field:], tt.value)
			if _, err := bres.Parse("corrupt.bdae", data); !errors.Is(err, bres.ErrInvalidLayout) {
				t.Errorf("got %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func removableFixture(separated bool) (*brestest.Builder, brestest.Ref, brestest.Ref) {
	b := brestest.New()
	b.Separated = separated
	b.RelatedSize = 16
	c0 := b.AddChunk(32)
	c1 := b.AddChunk(48)
	b.PutU32(brestest.ChunkRef(c1, 8), 99)
	b.PutU32(brestest.ChunkRef(c1, 40), 1234)

	direct := b.Alloc(8)
	b.PutPtr(direct, brestest.ChunkRef(c1, 8))

	// data -> chunk 0 -> chunk 1, the second hop unlisted.
	nested := b.Alloc(8)
	b.PutPtr(nested, brestest.ChunkRef(c0, 16))
	b.PutUnlistedPtr(brestest.ChunkRef(c0, 16), brestest.ChunkRef(c1, 40))

	// A listed pointer that lives inside a chunk.
	b.PutPtr(brestest.ChunkRef(c0, 0), brestest.ChunkRef(c1, 8))
	return b, direct, nested
}

func TestRemovableChunks(t *testing.T) {
	for _, separated := range []bool{false, true} {
		b, direct, nested := removableFixture(separated)
		c, err := b.Load("chunks.bdae")
		if err != nil {
			t.Fatalf("separated=%v: %v", separated, err)
		}
		if errs := c.EntryErrors(); len(errs) != 0 {
			t.Fatalf("separated=%v: entry errors: %v", separated, errs)
		}
		if c.Chunks().Len() != 2 || c.Chunks().Separated() != separated {
			t.Fatalf("separated=%v: chunk table %d %v", separated, c.Chunks().Len(), c.Chunks().Separated())
		}

		p := c.Cursor(dataLoc(c, direct)).Ptr()
		if p.Location().Section != bres.SectionRemovable || p.Location().Index != 1 {
			t.Errorf("separated=%v: direct target %v", separated, p.Location())
		}
		if got := p.U32(); got != 99 {
			t.Errorf("separated=%v: direct value %d", separated, got)
		}
		if got := c.Cursor(dataLoc(c, nested)).Ptr().Ptr().U32(); got != 1234 {
			t.Errorf("separated=%v: nested value %d", separated, got)
		}
		inChunk := c.Cursor(bres.Location{Section: bres.SectionRemovable, Index: 0}).Ptr()
		if got := inChunk.U32(); got != 99 {
			t.Errorf("separated=%v: in-chunk pointer value %d", separated, got)
		}
		// direct, nested (outer + one hop), in-chunk
		if got := c.Relocations(); got != 4 {
			t.Errorf("separated=%v: Relocations() = %d, want 4", separated, got)
		}
	}
}

func TestUnresolvableChunkIsRecoverable(t *testing.T) {
	b, direct, _ := removableFixture(false)
	bad := b.Alloc(8)
	b.PutPtr(bad, brestest.Ref{Sec: brestest.Meta, Off: 4})

	c, err := b.Load("chunks.bdae")
	if err != nil {
		t.Fatalf("load should survive a bad entry: %v", err)
	}
	errs := c.EntryErrors()
	if len(errs) != 1 || !errors.Is(errs[0], bres.ErrChunkNotFound) {
		t.Fatalf("EntryErrors() = %v, want one ErrChunkNotFound", errs)
	}
	if got := c.Cursor(dataLoc(c, direct)).Ptr().U32(); got != 99 {
		t.Errorf("other entries should still resolve, got %d", got)
	}
}

func TestExternalReferences(t *testing.T) {
	base := brestest.New()
	rec := base.Alloc(16)
	base.PutU32(rec, 1234)
	base.PutPtr(rec.Add(8), base.AddString("shared"))
	baseC, err := base.Load("base.bdae")
	if err != nil {
		t.Fatal(err)
	}
	recOff := base.FileOffset(rec)

	comp := brestest.New()
	comp.Slot = 1
	comp.Origin = 0x40000000
	field := comp.Alloc(8)
	comp.PutRawPtr(field, brestest.ExternalRaw(0, recOff, 0))
	comp.AddRawEntry(brestest.ExternalRaw(0, recOff, 0))

	c, err := comp.Load("anim.bdae", bres.WithContext(0, baseC))
	if err != nil {
		t.Fatal(err)
	}
	if errs := c.EntryErrors(); len(errs) != 0 {
		t.Fatalf("entry errors: %v", errs)
	}

	entries := c.Entries()
	if entries[1].External {
		t.Error("field inside the companion should not be external")
	}
	if !entries[2].External {
		t.Error("raw entry into the base file should be external")
	}
	if entries[2].Inner.IsResolved() {
		t.Error("external entries are not chased")
	}

	p := c.Cursor(dataLoc(c, field)).Ptr()
	if p.Container() != baseC {
		t.Fatal("pointer should land in the base container")
	}
	if got := p.U32(); got != 1234 {
		t.Errorf("external value = %d", got)
	}
	p.Skip(4)
	if got := p.Str(); got != "shared" {
		t.Errorf("external string = %q", got)
	}
}

func TestExternalWithoutContext(t *testing.T) {
	comp := brestest.New()
	comp.Slot = 1
	comp.Origin = 0x40000000
	field := comp.Alloc(8)
	comp.PutRawPtr(field, brestest.ExternalRaw(0, 0x100, 0))

	c, err := comp.Load("anim.bdae")
	if err != nil {
		t.Fatal(err)
	}
	cur := c.Cursor(dataLoc(c, field))
	cur.Ptr()
	if !errors.Is(cur.Err(), bres.ErrExternalContext) {
		t.Errorf("got %v, want ErrExternalContext", cur.Err())
	}
}
