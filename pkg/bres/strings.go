package bres

// StringStorage owns every string extracted from the string table.
// It only grows; an index handed out stays valid for the container's life.
type StringStorage struct {
	values   []string
	byOffset map[int64]int
}

func newStringStorage() *StringStorage {
	return &StringStorage{byOffset: make(map[int64]int)}
}

// intern stores the string that starts at file offset off, once.
func (s *StringStorage) intern(off int64, b []byte) int {
	if idx, ok := s.byOffset[off]; ok {
		return idx
	}
	s.values = append(s.values, string(b))
	idx := len(s.values) - 1
	s.byOffset[off] = idx
	return idx
}

// Get returns string i, or "" when out of range.
func (s *StringStorage) Get(i int) string {
	if i < 0 || i >= len(s.values) {
		return ""
	}
	return s.values[i]
}

// Len returns the number of stored strings.
func (s *StringStorage) Len() int {
	return len(s.values)
}

// All returns a copy of the stored strings in extraction order.
func (s *StringStorage) All() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}
