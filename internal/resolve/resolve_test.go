package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

type mapCanonical map[string]domain.CardID

func (m mapCanonical) Lookup(name string) (domain.CardID, bool) {
	id, ok := m[name]
	return id, ok
}

type mapOverrides map[string]domain.CardID

func (m mapOverrides) Get(id string) (domain.CardID, bool) {
	to, ok := m[id]
	return to, ok
}

var testCanonical = mapCanonical{
	"Sinister Serpent": 89631139,
	"Dark Magician":    46986414,
	"GOAT Champion":    11111111,
	"Monster Reborn":   83764718,
}

func TestResolve_ExactName(t *testing.T) {
	got := Resolve(46986414, "Dark Magician", testCanonical, NewSuffixSet(DefaultSuffixes...), nil)
	assert.Equal(t, domain.NameMatch(46986414), got)
}

func TestResolve_NoSuffixNoMatch(t *testing.T) {
	for _, name := range []string{"Unknown Card", "", "dark magician"} {
		got := Resolve(55555555, name, testCanonical, NewSuffixSet(DefaultSuffixes...), nil)
		assert.Equal(t, domain.NoMatch(), got, name)
	}
}

func TestResolve_ScenarioA_SuffixStripped(t *testing.T) {
	got := Resolve(511000818, "Sinister Serpent GOAT", testCanonical, NewSuffixSet(DefaultSuffixes...), nil)
	assert.Equal(t, domain.ResolveName, got.Kind)
	assert.Equal(t, domain.CardID(89631139), got.Canonical)
	assert.Equal(t, " GOAT", got.Suffix)
}

func TestResolve_ScenarioB_ManualOverridesNameMatch(t *testing.T) {
	ov := mapOverrides{"99999999": 12345678}
	got := Resolve(99999999, "Sinister Serpent GOAT", testCanonical, NewSuffixSet(DefaultSuffixes...), ov)
	assert.Equal(t, domain.ManualMatch(12345678), got)

	// 即使名称精确命中，人工映射也优先。
	ov = mapOverrides{"89631139": 12345678}
	got = Resolve(89631139, "Sinister Serpent", testCanonical, NewSuffixSet(DefaultSuffixes...), ov)
	assert.Equal(t, domain.ManualMatch(12345678), got)
}

func TestResolve_SuffixAnchoredAtEnd(t *testing.T) {
	// "GOAT Champion" 中间含 GOAT 文本，但不是结尾后缀。
	got := Resolve(511000001, "GOAT Champion Deluxe", testCanonical, NewSuffixSet(" GOAT"), nil)
	assert.Equal(t, domain.NoMatch(), got)

	got = Resolve(511000002, "Monster GOAT Reborn", testCanonical, NewSuffixSet(" GOAT"), nil)
	assert.Equal(t, domain.NoMatch(), got, "中间出现的后缀文本不能被剥离")

	got = Resolve(511000003, "GOAT Champion GOAT", testCanonical, NewSuffixSet(" GOAT"), nil)
	assert.Equal(t, domain.CardID(11111111), got.Canonical, "只剥离结尾的一次出现")
}

func TestResolve_SingleStripNotRecursive(t *testing.T) {
	got := Resolve(511000004, "Dark Magician GOAT GOAT", testCanonical, NewSuffixSet(" GOAT"), nil)
	assert.Equal(t, domain.NoMatch(), got)
}

func TestResolve_FirstDeclaredSuffixWins(t *testing.T) {
	canon := mapCanonical{
		"Card (X)": 1,
		"Card":     2,
	}
	// "Card (X) Y" 可剥 " Y" -> "Card (X)"，也可剥 " (X) Y" -> "Card"。
	got := Resolve(500000000, "Card (X) Y", canon, NewSuffixSet(" Y", " (X) Y"), nil)
	assert.Equal(t, domain.CardID(1), got.Canonical)

	got = Resolve(500000000, "Card (X) Y", canon, NewSuffixSet(" (X) Y", " Y"), nil)
	assert.Equal(t, domain.CardID(2), got.Canonical)
}

func TestResolve_SuffixThatDoesNotMatchContinues(t *testing.T) {
	// 第一个后缀能剥但剥完不命中，应继续尝试下一个。
	canon := mapCanonical{"Monster Reborn": 83764718}
	got := Resolve(500000001, "Monster Reborn (Pre-Errata)", canon, NewSuffixSet(")", " (Pre-Errata)"), nil)
	assert.Equal(t, domain.CardID(83764718), got.Canonical)
	assert.Equal(t, " (Pre-Errata)", got.Suffix)
}

func TestNewSuffixSet_DedupeKeepOrder(t *testing.T) {
	s := NewSuffixSet(" GOAT", "", " (Anime)", " GOAT")
	assert.Equal(t, []string{" GOAT", " (Anime)"}, s.list)
}

func TestResolver_DelegatesToResolve(t *testing.T) {
	r := Resolver{Canonical: testCanonical, Suffixes: NewSuffixSet(DefaultSuffixes...)}
	assert.Equal(t, domain.CardID(46986414), r.Resolve(400000000, "Dark Magician (Anime)").Canonical)
}
