package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/typeindex/internal/scanner"
)

// Test Plan for Reader:
// - ReadSource without a term returns numbered lines, capped at 500 with truncation flagged
// - ReadSource with contextLines=2 and one match on line 50 returns lines 48-52 with 50 marked
// - ReadSource returns at most 5 windows and counts every match
// - Overlapping windows merge into one
// - Term matching is case-insensitive; no matches yields no windows
// - Missing paths fall back to root-relative joins, then filename search
// - Unresolvable paths return ErrFileNotFound
// - Files outside the source roots are never served, whether absolute or reached through ".."
// - Edited files are re-read instead of served stale from cache
// - FindUsageExamples skips comments and declarations, adds 3 lines of context, stops at max
// - FindUsageExamples matches a dotted target by full text and filters on its last segment
// - FindUsageExamples reports a timeout with partial results

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func numberedFile(n int, match map[int]string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if text, ok := match[i]; ok {
			b.WriteString(text)
		} else {
			fmt.Fprintf(&b, "line %d", i)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func newReader(t *testing.T, root string, timeout time.Duration) *Reader {
	t.Helper()
	sc, err := scanner.New(scanner.Options{Roots: []string{root}})
	require.NoError(t, err)
	r, err := NewReader(Options{Scanner: sc, UsageTimeout: timeout})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func lineNumbers(lines []Line) []int {
	var out []int
	for _, l := range lines {
		out = append(out, l.Number)
	}
	return out
}

func TestReadSource_WholeFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	small := filepath.Join(root, "Small.cs")
	big := filepath.Join(root, "Big.cs")
	writeFile(t, small, "a\nb\nc\n")
	writeFile(t, big, numberedFile(600, nil))
	r := newReader(t, root, 0)

	view, err := r.ReadSource(context.Background(), small, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, view.TotalLines)
	assert.False(t, view.Truncated)
	assert.Equal(t, []Line{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}, {Number: 3, Text: "c"}}, view.Lines)

	view, err = r.ReadSource(context.Background(), big, "", 10)
	require.NoError(t, err)
	assert.Len(t, view.Lines, MaxLines)
	assert.True(t, view.Truncated)
	assert.Equal(t, 600, view.TotalLines)
	assert.Equal(t, "line 500", view.Lines[MaxLines-1].Text)
}

func TestReadSource_SingleMatchWindow(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "Hero.cs")
	writeFile(t, path, numberedFile(100, map[int]string{50: "    public void AddGold(int amount)"}))
	r := newReader(t, root, 0)

	view, err := r.ReadSource(context.Background(), path, "addgold", 2)
	require.NoError(t, err)

	require.Len(t, view.Windows, 1)
	w := view.Windows[0]
	assert.Equal(t, 48, w.Start)
	assert.Equal(t, 52, w.End)
	assert.Equal(t, []int{48, 49, 50, 51, 52}, lineNumbers(w.Lines))
	for _, l := range w.Lines {
		assert.Equal(t, l.Number == 50, l.Match, "line %d", l.Number)
	}
	assert.Equal(t, 1, view.TotalMatches)
	assert.Nil(t, view.Lines)
}

func TestReadSource_WindowCap(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	matches := make(map[int]string)
	for i := 10; i <= 90; i += 10 {
		matches[i] = "Gold += 1;"
	}
	path := filepath.Join(root, "Many.cs")
	writeFile(t, path, numberedFile(100, matches))
	r := newReader(t, root, 0)

	view, err := r.ReadSource(context.Background(), path, "gold", 2)
	require.NoError(t, err)
	assert.Len(t, view.Windows, MaxWindows)
	assert.Equal(t, 9, view.TotalMatches)
	assert.Equal(t, 48, view.Windows[4].Start)
}

func TestReadSource_MergesOverlappingWindows(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "Near.cs")
	writeFile(t, path, numberedFile(30, map[int]string{10: "Gold", 13: "gold", 25: "GOLD"}))
	r := newReader(t, root, 0)

	view, err := r.ReadSource(context.Background(), path, "Gold", 2)
	require.NoError(t, err)
	require.Len(t, view.Windows, 2)

	assert.Equal(t, []int{8, 9, 10, 11, 12, 13, 14, 15}, lineNumbers(view.Windows[0].Lines))
	assert.Equal(t, 8, view.Windows[0].Start)
	assert.Equal(t, 15, view.Windows[0].End)
	assert.True(t, view.Windows[0].Lines[2].Match)
	assert.True(t, view.Windows[0].Lines[5].Match)

	assert.Equal(t, []int{23, 24, 25, 26, 27}, lineNumbers(view.Windows[1].Lines))
}

func TestReadSource_NoMatches(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "Hero.cs")
	writeFile(t, path, "class Hero {}\n")
	r := newReader(t, root, 0)

	view, err := r.ReadSource(context.Background(), path, "Settlement", 5)
	require.NoError(t, err)
	assert.Empty(t, view.Windows)
	assert.Equal(t, 0, view.TotalMatches)
}

func TestReadSource_PathFallbacks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	actual := filepath.Join(root, "Core", "Party", "MobileParty.cs")
	writeFile(t, actual, "class MobileParty {}\n")
	r := newReader(t, root, 0)

	view, err := r.ReadSource(context.Background(), "Core/Party/MobileParty.cs", "", 0)
	require.NoError(t, err)
	assert.Equal(t, actual, view.Path)

	view, err = r.ReadSource(context.Background(), "/some/other/checkout/MobileParty.cs", "", 0)
	require.NoError(t, err)
	assert.Equal(t, actual, view.Path)
	assert.Equal(t, "/some/other/checkout/MobileParty.cs", view.Requested)

	_, err = r.ReadSource(context.Background(), "Nowhere.cs", "", 0)
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = r.ReadSource(context.Background(), "", "", 0)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestReadSource_StaysInsideRoots(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := filepath.Join(base, "src")
	inside := filepath.Join(root, "Hero.cs")
	outside := filepath.Join(base, "secrets.txt")
	writeFile(t, inside, "class Hero {}\n")
	writeFile(t, outside, "password\n")
	r := newReader(t, root, 0)

	_, err := r.ReadSource(context.Background(), outside, "", 0)
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = r.ReadSource(context.Background(), "../secrets.txt", "", 0)
	assert.ErrorIs(t, err, ErrFileNotFound)

	// An outside path whose base name exists under a root resolves to that file.
	writeFile(t, filepath.Join(base, "Hero.cs"), "class Decoy {}\n")
	view, err := r.ReadSource(context.Background(), filepath.Join(base, "Hero.cs"), "", 0)
	require.NoError(t, err)
	assert.Equal(t, inside, view.Path)

	view, err = r.ReadSource(context.Background(), inside, "", 0)
	require.NoError(t, err)
	assert.Equal(t, inside, view.Path)
}

func TestReadSource_RereadsChangedFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "Hero.cs")
	writeFile(t, path, "one\n")
	r := newReader(t, root, 0)

	view, err := r.ReadSource(context.Background(), path, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, view.TotalLines)

	writeFile(t, path, "one\ntwo\nthree\n")
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	view, err = r.ReadSource(context.Background(), path, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, view.TotalLines)
}

const usageHero = `namespace Game.Core
{
    public class Hero
    {
        public void AddGold(int amount)
        {
            Gold += amount;
        }
    }
}
`

const usageCampaign = `namespace Game.Campaign
{
    public class Rewards
    {
        // hero.AddGold(10); old reward
        public void Grant(Hero hero)
        {
            hero.AddGold(100);
            Log("granted");
        }

        public void GrantTwice(Hero hero)
        {
            hero.AddGold(1); hero.AddGold(2);
        }
    }
}
`

func TestFindUsageExamples(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Core", "Hero.cs"), usageHero)
	writeFile(t, filepath.Join(root, "Campaign", "Rewards.cs"), usageCampaign)
	writeFile(t, filepath.Join(root, "Campaign", "notes.txt"), "hero.AddGold(5) in plain text")
	r := newReader(t, root, 0)

	res, err := r.FindUsageExamples(context.Background(), "AddGold", 5)
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 2, res.FilesScanned)

	require.Len(t, res.Examples, 2)
	first := res.Examples[0]
	assert.Equal(t, filepath.Join(root, "Campaign", "Rewards.cs"), first.Path)
	assert.Equal(t, 8, first.Line)
	assert.Equal(t, 5, first.Window.Start)
	assert.Equal(t, 11, first.Window.End)
	assert.True(t, first.Window.Lines[3].Match)

	assert.Equal(t, 14, res.Examples[1].Line)
}

func TestFindUsageExamples_StopsAtMax(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("Caller%d.cs", i)), "class C {\n    void M() { hero.AddGold(1); }\n}\n")
	}
	r := newReader(t, root, 0)

	res, err := r.FindUsageExamples(context.Background(), "AddGold", 2)
	require.NoError(t, err)
	assert.Len(t, res.Examples, 2)
	assert.Equal(t, 2, res.FilesScanned)
}

func TestFindUsageExamples_DottedTarget(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Actions.cs"), `public static class GiveGoldAction
{
    public static void ApplyBetweenCharacters(Hero giver, Hero receiver, int amount)
    {
    }
}

public class Trade
{
    void Pay() { GiveGoldAction.ApplyBetweenCharacters(a, b, 10); }
    void Other() { ApplyBetweenCharacters(a, b, 10); }
}
`)
	r := newReader(t, root, 0)

	res, err := r.FindUsageExamples(context.Background(), "GiveGoldAction.ApplyBetweenCharacters", 5)
	require.NoError(t, err)
	require.Len(t, res.Examples, 1)
	assert.Equal(t, 10, res.Examples[0].Line)
}

func TestFindUsageExamples_Timeout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.cs"), "hero.AddGold(1);\n")
	r := newReader(t, root, time.Nanosecond)

	time.Sleep(time.Millisecond)
	res, err := r.FindUsageExamples(context.Background(), "AddGold", 5)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Empty(t, res.Examples)
}

func TestFindUsageExamples_CancelledByCaller(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.cs"), "hero.AddGold(1);\n")
	r := newReader(t, root, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.FindUsageExamples(ctx, "AddGold", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildWindows_ClampsAtFileEdges(t *testing.T) {
	t.Parallel()

	lines := []string{"a", "b", "c"}
	windows := buildWindows(lines, []int{0, 2}, 10, MaxWindows)
	require.Len(t, windows, 1)
	assert.Equal(t, 1, windows[0].Start)
	assert.Equal(t, 3, windows[0].End)
	assert.Equal(t, []int{1, 2, 3}, lineNumbers(windows[0].Lines))
}
