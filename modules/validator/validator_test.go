package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"static-ad-server/modules/common/model"
)

func TestValidateStripsColorCodesAndFixesTypos(t *testing.T) {
	in := model.CopyResponse{
		Headline:     "Recomended by chefs",
		CalloutTexts: []string{"Fresh daily", "Premiun qualty"},
		CTAText:      "Shop now",
		ImagePrompt:  "Bottle on a #FF5733 background, recomended lighting, accents in #0af",
	}

	res := Validate(in, map[string]string{"primary": "#ff5733"})

	require.NotRegexp(t, `#[0-9a-fA-F]{3,6}`, res.Copy.ImagePrompt)
	require.Contains(t, res.Copy.ImagePrompt, "recommended")
	require.Contains(t, res.Copy.ImagePrompt, "red-orange (brand primary color)")
	require.Equal(t, "Recommended by chefs", res.Copy.Headline)
	require.Equal(t, []string{"Fresh daily", "Premium quality"}, res.Copy.CalloutTexts)
	require.GreaterOrEqual(t, len(res.Issues), 2)

	// 입력은 그대로
	require.Equal(t, "Premiun qualty", in.CalloutTexts[1])
}

func TestValidateStripsColorCodesWithAlpha(t *testing.T) {
	cases := map[string]string{
		"eight digit": "backdrop #FF5733CC glow",
		"four digit":  "backdrop #F53C glow",
	}

	for name, prompt := range cases {
		t.Run(name, func(t *testing.T) {
			res := Validate(model.CopyResponse{Headline: "Hi", ImagePrompt: prompt}, nil)
			require.NotContains(t, res.Copy.ImagePrompt, "#")
			require.Len(t, res.Issues, 1)
		})
	}

	res := Validate(model.CopyResponse{Headline: "Hi", ImagePrompt: "glow in #FF5733CC"}, map[string]string{"primary": "#ff5733"})
	require.Contains(t, res.Copy.ImagePrompt, "(brand primary color)")
	require.Equal(t, ColorName("#FF5733"), ColorName("#ff5733cc"))
	require.Equal(t, ColorName("#f53"), ColorName("#F53C"))
}

func TestValidateIsIdempotent(t *testing.T) {
	in := model.CopyResponse{
		Headline:     "DEFINATELY delicous",
		Subheadline:  "We guarentee it",
		BodyText:     "Made untill perfect",
		CalloutTexts: []string{"Excelent taste", "excelent  taste"},
		CTAText:      "Recieve yours",
		ImagePrompt:  "A plain bottle on #333 marble with #F5F5DC highlights",
	}

	first := Validate(in, nil)
	require.NotEmpty(t, first.Issues)
	require.Equal(t, "DEFINITELY delicious", first.Copy.Headline)

	second := Validate(first.Copy, nil)
	require.Empty(t, second.Issues)
	require.Equal(t, first.Copy, second.Copy)
	// 보고 전용 항목은 다시 보고된다
	require.Equal(t, first.Warnings, second.Warnings)
}

func TestValidateWarnings(t *testing.T) {
	res := Validate(model.CopyResponse{
		CalloutTexts: []string{"Free shipping", "  free   SHIPPING ", "Vegan"},
		ImagePrompt:  "Show a generic bottle with a white label on a kitchen counter",
	}, nil)

	require.Empty(t, res.Issues)
	require.Len(t, res.Warnings, 2)
	require.True(t, strings.HasPrefix(res.Warnings[0], "duplicate callout text"))
	require.Contains(t, res.Warnings[1], "generic product")

	res = Validate(model.CopyResponse{
		ImagePrompt: "Show the generic bottle exactly as in the reference photo",
	}, nil)
	require.Empty(t, res.Warnings)
}

func TestTypoFixIsWholeWord(t *testing.T) {
	res := Validate(model.CopyResponse{Headline: "Sandwich wich style"}, nil)
	require.Equal(t, "Sandwich which style", res.Copy.Headline)
	require.Len(t, res.Issues, 1)
}

func TestColorName(t *testing.T) {
	cases := map[string]string{
		"#FF5733": "red-orange",
		"#ffffff": "white",
		"#fff":    "white",
		"#1a1a1a": "near-black",
		"#777777": "gray",
		"#0a1f5c": "dark blue",
		"#bbdefb": "light blue",
		"#2e7d32": "green",
		"#zzzzzz": "neutral",
	}
	for token, want := range cases {
		require.Equal(t, want, ColorName(token), token)
	}
}
