package indexer

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/typeindex/internal/query"
	"github.com/mvp-joe/typeindex/internal/scanner"
	"github.com/mvp-joe/typeindex/internal/source"
	"github.com/mvp-joe/typeindex/internal/storage"
)

// Test Plan for the sample tree (testdata/csharp):
// - Ignored build output is not indexed
// - Partial class declarations in two files merge into one type, across forced rebuilds
// - Subclass lookup is direct only; the hierarchy walks the full chain
// - Usage examples skip the commented call and the declaration

var sampleRoot = filepath.Join("..", "..", "testdata", "csharp")

func buildSample(t *testing.T) (*storage.Store, *scanner.Scanner) {
	t.Helper()

	sc, err := scanner.New(scanner.Options{
		Roots:  []string{sampleRoot},
		Ignore: []string{"obj/**"},
	})
	require.NoError(t, err)

	store := storage.NewTestStore(t)
	stats, err := New(store, sc, nil, Config{}, nil, nil).Build(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 4, stats.FilesParsed)
	require.Zero(t, stats.FilesFailed)
	return store, sc
}

func heroMethods(t *testing.T, e *query.Engine) []string {
	t.Helper()
	defs, err := e.GetClassDefinition(context.Background(), "Game.Core.Hero")
	require.NoError(t, err)
	require.Len(t, defs, 1)

	var names []string
	for _, m := range defs[0].Methods {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

func TestSampleTree_Counts(t *testing.T) {
	t.Parallel()

	store, _ := buildSample(t)
	counts, err := store.Counts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, counts.Namespaces)
	assert.Equal(t, 6, counts.Types)
	assert.Equal(t, 1, counts.Interfaces)
	assert.Equal(t, 6, counts.Methods)
	assert.Equal(t, 3, counts.Properties)
	assert.Equal(t, 3, counts.Inheritance)
	assert.Equal(t, 1, counts.Implements)

	defs, err := query.NewEngine(store).GetClassDefinition(context.Background(), "ShouldNotBeIndexed")
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestSampleTree_PartialTypesMerge(t *testing.T) {
	t.Parallel()

	store, sc := buildSample(t)
	e := query.NewEngine(store)
	want := []string{"ChangeHeroGold", "GetSkillValue", "Initialize"}
	assert.Equal(t, want, heroMethods(t, e))

	for i := 0; i < 2; i++ {
		_, err := New(store, sc, nil, Config{Workers: 1}, nil, nil).Build(context.Background(), Options{Force: true})
		require.NoError(t, err)
		assert.Equal(t, want, heroMethods(t, e), "rebuild %d", i+1)
	}

	defs, err := e.GetClassDefinition(context.Background(), "Game.Core.Hero")
	require.NoError(t, err)
	assert.Equal(t, "MBObjectBase", defs[0].BaseType)
	assert.Equal(t, []string{"IHeroInfo"}, defs[0].Interfaces)
}

func TestSampleTree_Relationships(t *testing.T) {
	t.Parallel()

	store, _ := buildSample(t)
	e := query.NewEngine(store)
	ctx := context.Background()

	subs, err := e.FindSubclasses(ctx, "CampaignBehaviorBase")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Game.Campaign.Behaviors.ClanBehavior", subs[0].Type.FullName)

	h, err := e.GetTypeHierarchy(ctx, "RaidBehavior")
	require.NoError(t, err)
	require.Len(t, h.Ancestors, 2)
	assert.Equal(t, "Game.Campaign.Behaviors.ClanBehavior", h.Ancestors[0].Key)
	assert.Equal(t, "Game.Campaign.Behaviors.CampaignBehaviorBase", h.Ancestors[1].Key)

	impls, err := e.FindImplementations(ctx, "IHeroInfo")
	require.NoError(t, err)
	require.Len(t, impls, 1)
	assert.Equal(t, "Game.Core.Hero", impls[0].Type.FullName)
}

func TestSampleTree_UsageExamples(t *testing.T) {
	t.Parallel()

	_, sc := buildSample(t)
	reader, err := source.NewReader(source.Options{Scanner: sc})
	require.NoError(t, err)
	t.Cleanup(reader.Close)

	res, err := reader.FindUsageExamples(context.Background(), "ChangeHeroGold", 5)
	require.NoError(t, err)
	require.Len(t, res.Examples, 1)
	assert.Equal(t, "Behaviors.cs", filepath.Base(res.Examples[0].Path))
	assert.Equal(t, 13, res.Examples[0].Line)
}
