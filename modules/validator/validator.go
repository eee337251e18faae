// Package validator cleans and lints AI-produced ad copy before it is used for image generation.
package validator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"static-ad-server/modules/common/model"
)

// Result - 검증 결과
// Issues는 실제로 고친 항목, Warnings는 고치지 않고 보고만 하는 항목이다.
// 이미 정리된 결과를 다시 넣으면 Issues는 비어 있다.
type Result struct {
	Copy     model.CopyResponse
	Issues   []string
	Warnings []string
}

var (
	hexColorPattern = regexp.MustCompile(`#(?:[0-9a-fA-F]{8}|[0-9a-fA-F]{6}|[0-9a-fA-F]{4}|[0-9a-fA-F]{3})\b`)

	genericProductPattern = regexp.MustCompile(`(?i)\b(a|an|the)\s+(generic|typical|standard|plain|simple|ordinary|nondescript|unbranded)\s+(product|bottle|box|package|packaging|jar|can|tube|container|item|bag|pouch)\b`)
	referencePattern      = regexp.MustCompile(`(?i)\b(reference|provided|supplied|uploaded|attached)\s+(product\s+)?(photo|image|picture)\b`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// typos - AI가 자주 틀리는 철자
var typos = map[string]string{
	"recomended":  "recommended",
	"seperate":    "separate",
	"definately":  "definitely",
	"occured":     "occurred",
	"accomodate":  "accommodate",
	"untill":      "until",
	"wich":        "which",
	"recieve":     "receive",
	"acheive":     "achieve",
	"beleive":     "believe",
	"guarentee":   "guarantee",
	"excelent":    "excellent",
	"profesional": "professional",
	"experiance":  "experience",
	"availble":    "available",
	"premiun":     "premium",
	"qualty":      "quality",
	"delicous":    "delicious",
}

var typoPatterns = compileTypoPatterns()

func compileTypoPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(typos))
	for wrong := range typos {
		patterns[wrong] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(wrong) + `\b`)
	}
	return patterns
}

// Validate - 복사본을 정리하고 문제 목록을 반환한다 (입력은 바꾸지 않음)
func Validate(in model.CopyResponse, brandColors map[string]string) Result {
	result := Result{Copy: in}
	result.Copy.CalloutTexts = append([]string(nil), in.CalloutTexts...)

	// 1. 색상 코드 제거
	result.Copy.ImagePrompt = replaceColorCodes(result.Copy.ImagePrompt, brandColors, &result.Issues)

	// 2. 오타 수정
	fields := []struct {
		name  string
		value *string
	}{
		{"image_prompt", &result.Copy.ImagePrompt},
		{"headline", &result.Copy.Headline},
		{"subheadline", &result.Copy.Subheadline},
		{"body_text", &result.Copy.BodyText},
		{"cta_text", &result.Copy.CTAText},
	}
	for _, f := range fields {
		*f.value = fixTypos(*f.value, f.name, &result.Issues)
	}
	for i := range result.Copy.CalloutTexts {
		result.Copy.CalloutTexts[i] = fixTypos(result.Copy.CalloutTexts[i], fmt.Sprintf("callout_texts[%d]", i), &result.Issues)
	}

	// 3. 보고 전용 검사
	result.Warnings = append(result.Warnings, duplicateCallouts(result.Copy.CalloutTexts)...)
	if describesGenericProduct(result.Copy.ImagePrompt) {
		result.Warnings = append(result.Warnings, "image prompt describes a generic product instead of referencing the supplied product photo")
	}

	return result
}

func replaceColorCodes(prompt string, brandColors map[string]string, issues *[]string) string {
	roles := brandRoles(brandColors)

	return hexColorPattern.ReplaceAllStringFunc(prompt, func(token string) string {
		name := ColorName(token)
		if role, ok := roles[normalizeHex(token)]; ok {
			name = fmt.Sprintf("%s (brand %s color)", name, role)
		}
		*issues = append(*issues, fmt.Sprintf("replaced color code %s with %q", token, name))
		return name
	})
}

func brandRoles(brandColors map[string]string) map[string]string {
	roles := map[string]string{}
	keys := make([]string, 0, len(brandColors))
	for k := range brandColors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, role := range keys {
		hex := normalizeHex(strings.TrimSpace(brandColors[role]))
		if hex == "" {
			continue
		}
		if _, taken := roles[hex]; !taken {
			roles[hex] = role
		}
	}
	return roles
}

func fixTypos(text, field string, issues *[]string) string {
	if text == "" {
		return text
	}

	wrongs := make([]string, 0, len(typoPatterns))
	for wrong := range typoPatterns {
		wrongs = append(wrongs, wrong)
	}
	sort.Strings(wrongs)

	for _, wrong := range wrongs {
		pattern := typoPatterns[wrong]
		if !pattern.MatchString(text) {
			continue
		}
		right := typos[wrong]
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			return matchCase(match, right)
		})
		*issues = append(*issues, fmt.Sprintf("fixed typo %q -> %q in %s", wrong, right, field))
	}
	return text
}

// matchCase - 원문 대소문자 모양을 유지
func matchCase(original, replacement string) string {
	switch {
	case original == strings.ToUpper(original):
		return strings.ToUpper(replacement)
	case original[:1] == strings.ToUpper(original[:1]):
		return strings.ToUpper(replacement[:1]) + replacement[1:]
	default:
		return replacement
	}
}

func duplicateCallouts(callouts []string) []string {
	seen := map[string]bool{}
	reported := map[string]bool{}
	var warnings []string

	for _, c := range callouts {
		key := strings.ToLower(strings.TrimSpace(whitespacePattern.ReplaceAllString(c, " ")))
		if key == "" {
			continue
		}
		if seen[key] && !reported[key] {
			reported[key] = true
			warnings = append(warnings, fmt.Sprintf("duplicate callout text %q", strings.TrimSpace(c)))
		}
		seen[key] = true
	}
	return warnings
}

func describesGenericProduct(prompt string) bool {
	return genericProductPattern.MatchString(prompt) && !referencePattern.MatchString(prompt)
}

// exactColors - 정확히 일치하는 이름이 있는 색상
var exactColors = map[string]string{
	"000000": "black",
	"ffffff": "white",
	"ff0000": "red",
	"00ff00": "bright green",
	"0000ff": "blue",
	"ffff00": "yellow",
	"00ffff": "cyan",
	"ff00ff": "magenta",
	"ffa500": "orange",
	"800080": "purple",
	"ffc0cb": "pink",
	"808080": "gray",
	"c0c0c0": "silver",
	"a52a2a": "brown",
	"008080": "teal",
	"000080": "navy blue",
	"800000": "maroon",
	"808000": "olive",
	"ffd700": "gold",
	"f5f5dc": "beige",
	"40e0d0": "turquoise",
	"e6e6fa": "lavender",
	"ff7f50": "coral",
	"fffdd0": "cream",
}

// ColorName - #RRGGBB / #RGB 토큰을 사람이 읽는 색 이름으로 근사
// 정확한 이름이 없으면 밝기(299R+587G+114B)/1000와 우세 채널로 이름을 만든다.
func ColorName(token string) string {
	hex := normalizeHex(token)
	if hex == "" {
		return "neutral"
	}
	if name, ok := exactColors[hex]; ok {
		return name
	}

	r, _ := strconv.ParseUint(hex[0:2], 16, 8)
	g, _ := strconv.ParseUint(hex[2:4], 16, 8)
	b, _ := strconv.ParseUint(hex[4:6], 16, 8)
	rf, gf, bf := float64(r), float64(g), float64(b)

	brightness := (299*rf + 587*gf + 114*bf) / 1000
	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))

	if maxC-minC < 24 {
		switch {
		case brightness > 230:
			return "off-white"
		case brightness > 170:
			return "light gray"
		case brightness > 90:
			return "gray"
		case brightness > 40:
			return "charcoal gray"
		default:
			return "near-black"
		}
	}

	name := hueName(rf, gf, bf, maxC, minC)
	switch {
	case brightness > 190:
		return "light " + name
	case brightness < 70:
		return "dark " + name
	}
	return name
}

func hueName(r, g, b, maxC, minC float64) string {
	delta := maxC - minC
	var hue float64
	switch maxC {
	case r:
		hue = math.Mod((g-b)/delta, 6) * 60
	case g:
		hue = ((b-r)/delta + 2) * 60
	default:
		hue = ((r-g)/delta + 4) * 60
	}
	if hue < 0 {
		hue += 360
	}

	switch {
	case hue < 10:
		return "red"
	case hue < 25:
		return "red-orange"
	case hue < 45:
		return "orange"
	case hue < 70:
		return "yellow"
	case hue < 90:
		return "yellow-green"
	case hue < 160:
		return "green"
	case hue < 200:
		return "teal"
	case hue < 250:
		return "blue"
	case hue < 290:
		return "purple"
	case hue < 335:
		return "pink"
	default:
		return "red"
	}
}

func normalizeHex(token string) string {
	hex := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(token), "#"))
	// 알파 채널은 색 이름에 영향을 주지 않는다
	switch len(hex) {
	case 3, 4:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6, 8:
		hex = hex[:6]
	default:
		return ""
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return ""
		}
	}
	return hex
}
