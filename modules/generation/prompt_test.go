package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"static-ad-server/modules/common/model"
)

func TestBuildRatioPrompts(t *testing.T) {
	prompts := BuildRatioPrompts("  A serum bottle on marble  ", map[string]string{
		"primary":   "#FF0000",
		"secondary": "#FFFFFF",
		"accent":    "",
	})

	require.Len(t, prompts, 3)
	markers := map[model.Ratio]string{
		model.RatioSquare:     "[1:1",
		model.RatioVertical:   "[9:16",
		model.RatioHorizontal: "[16:9",
	}
	for ratio, marker := range markers {
		p := prompts[ratio]
		require.True(t, strings.HasPrefix(p, "A serum bottle on marble\n\n"), ratio)
		require.Contains(t, p, marker)
		require.Contains(t, p, "- primary: red")
		require.Contains(t, p, "- secondary: white")
		require.NotContains(t, p, "accent")
		require.NotContains(t, p, "#")
		require.Contains(t, p, "IDENTICAL across every ratio")
	}
}

func TestBuildRatioPromptsWithoutBrandColors(t *testing.T) {
	prompts := BuildRatioPrompts("base", nil)
	require.NotContains(t, prompts[model.RatioSquare], "[BRAND COLORS]")
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Glow Serum - Fresh start", displayName("Glow Serum", "Fresh start", 0))
	require.Equal(t, "Glow Serum #3", displayName("Glow Serum", " ", 2))
	require.Equal(t, "Fresh start", displayName("", "Fresh start", 0))

	long := strings.Repeat("a", 80)
	name := displayName("P", long, 0)
	require.True(t, strings.HasSuffix(name, "..."))
	require.Len(t, name, len("P - ")+60+3)
}

func TestFixNotes(t *testing.T) {
	require.Equal(t, "Fix request: wrong logo", fixNotes(nil, " wrong logo "))
	require.Equal(t, "spring\n\nFix request: wrong logo", fixNotes(strPtr("spring"), "wrong logo"))
}
