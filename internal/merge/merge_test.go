package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type span struct {
	Begin, End int64
	Label      string
}

func spanKey(s span) uint64 {
	return NewHasher().Int(s.Begin).Int(s.End).Sum()
}

func TestDedupe_KeepsFirstByStructuralKey(t *testing.T) {
	a := []span{{0, 10, "a"}, {10, 20, "a"}}
	b := []span{{10, 20, "b"}, {20, 30, "b"}}

	merged := Dedupe(spanKey, a, b)

	assert.Equal(t, []span{{0, 10, "a"}, {10, 20, "a"}, {20, 30, "b"}}, merged)
}

func TestDedupe_Idempotent(t *testing.T) {
	a := []span{{0, 10, ""}, {5, 6, ""}}
	b := []span{{5, 6, ""}, {7, 8, ""}}

	once := Dedupe(spanKey, a, b)
	twice := Dedupe(spanKey, a, once)

	assert.Equal(t, once, twice)
}

func TestDedupe_Empty(t *testing.T) {
	assert.Empty(t, Dedupe(spanKey))
	assert.Empty(t, Dedupe(spanKey, nil, []span{}))
}

func TestHasher_FieldOrderMatters(t *testing.T) {
	h1 := NewHasher().Float(1).Float(2).Sum()
	h2 := NewHasher().Float(2).Float(1).Sum()
	assert.NotEqual(t, h1, h2)

	s1 := NewHasher().String("ab").String("c").Sum()
	s2 := NewHasher().String("a").String("bc").Sum()
	assert.NotEqual(t, s1, s2)
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"Jane", "face-1", "Jane"}, []string{"John", "face-1"})
	assert.Equal(t, []string{"Jane", "face-1", "John"}, got)
}
