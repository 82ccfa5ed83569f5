package cardindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/EDOSync/internal/cdb"
	"github.com/John-Robertt/EDOSync/internal/cdb/cdbtest"
	"github.com/John-Robertt/EDOSync/internal/domain"
)

type memSource struct {
	name    string
	records []domain.CardRecord
	err     error
}

func (s memSource) Name() string { return s.name }

func (s memSource) ListRecords(ctx context.Context) ([]domain.CardRecord, error) {
	return s.records, s.err
}

func TestBuild_FirstWriteWinsAcrossSources(t *testing.T) {
	core := memSource{name: "core", records: []domain.CardRecord{
		{ID: 89631139, Name: "Sinister Serpent"},
		{ID: 46986414, Name: "Dark Magician"},
	}}
	exp := memSource{name: "exp", records: []domain.CardRecord{
		{ID: 89631139, Name: "Renamed Later"},          // 重复 id：保留 core 的名称
		{ID: 12345678, Name: "Sinister Serpent"},       // 重复名称：保留先出现的 canonical id
		{ID: 511000818, Name: "Sinister Serpent GOAT"}, // 非 canonical：只进 Names
		{ID: 300000001, Name: "Dark Magician"},         // 非 canonical 同名：不影响 Canonical
	}}

	idx, warnings, err := Build(context.Background(), []RecordSource{core, exp}, DefaultThreshold)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "Sinister Serpent", idx.Name(89631139))
	assert.Equal(t, "Sinister Serpent GOAT", idx.Name(511000818))

	id, ok := idx.Lookup("Sinister Serpent")
	require.True(t, ok)
	assert.Equal(t, domain.CardID(89631139), id)

	id, ok = idx.Lookup("Dark Magician")
	require.True(t, ok)
	assert.Equal(t, domain.CardID(46986414), id)

	_, ok = idx.Lookup("Sinister Serpent GOAT")
	assert.False(t, ok)

	assert.Equal(t, []domain.CardID{12345678, 46986414, 89631139, 300000001, 511000818}, idx.IDs())
}

func TestBuild_SkipsUnreadableSourceWithWarning(t *testing.T) {
	bad := memSource{name: "broken.cdb", err: errors.New("file is not a database")}
	good := memSource{name: "core", records: []domain.CardRecord{{ID: 1, Name: "A"}}}

	idx, warnings, err := Build(context.Background(), []RecordSource{bad, good}, 0)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "broken.cdb", warnings[0].Source)
	assert.Equal(t, DefaultThreshold, idx.Threshold)
	assert.Equal(t, "A", idx.Name(1))
}

func TestBuild_MissingCDBFileContinues(t *testing.T) {
	root := t.TempDir()
	cdbtest.WriteFixture(t, filepath.Join(root, "cards.cdb"), []domain.CardRecord{
		{ID: 89631139, Name: "Sinister Serpent"},
		{ID: 511000818, Name: "Sinister Serpent GOAT"},
	})

	sources := []RecordSource{
		cdb.Source{Path: filepath.Join(root, "missing.cdb")},
		cdb.Source{Path: filepath.Join(root, "cards.cdb")},
	}
	idx, warnings, err := Build(context.Background(), sources, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Source, "missing.cdb")

	id, ok := idx.Lookup("Sinister Serpent")
	require.True(t, ok)
	assert.Equal(t, domain.CardID(89631139), id)
}

func TestBuild_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Build(ctx, []RecordSource{memSource{name: "core"}}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_DeterministicThreshold(t *testing.T) {
	src := memSource{name: "core", records: []domain.CardRecord{
		{ID: 99999999, Name: "Edge"},
		{ID: 100000000, Name: "Over"},
	}}
	idx, _, err := Build(context.Background(), []RecordSource{src}, DefaultThreshold)
	require.NoError(t, err)
	id, ok := idx.Lookup("Edge")
	assert.True(t, ok)
	assert.Equal(t, domain.CardID(99999999), id)
	_, ok = idx.Lookup("Over")
	assert.False(t, ok)
}
