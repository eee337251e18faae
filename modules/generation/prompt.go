package generation

import (
	"fmt"
	"sort"
	"strings"

	"static-ad-server/modules/common/model"
	"static-ad-server/modules/validator"
)

// 비율별 구도 지시사항
var ratioInstructions = map[model.Ratio]string{
	model.RatioSquare: "[1:1 SQUARE AD - FEED POST]\n" +
		"This is a SQUARE format ad for social feeds.\n" +
		"✓ Product centered or on a strong diagonal, filling 50-70% of the frame\n" +
		"✓ Balanced negative space on all sides for headline and callouts\n" +
		"✓ Clean background that keeps the product readable at thumbnail size",
	model.RatioVertical: "[9:16 VERTICAL AD - STORIES / REELS]\n" +
		"This is a VERTICAL format ad - use the height for layered storytelling.\n" +
		"✓ Product in the middle third, clear space at top for the headline\n" +
		"✓ Leave the bottom 20% calm for the call-to-action\n" +
		"✓ Layers of depth from top to bottom guide the eye to the product",
	model.RatioHorizontal: "[16:9 HORIZONTAL AD - BANNER / VIDEO COVER]\n" +
		"This is a WIDE format ad - use the width for context and atmosphere.\n" +
		"✓ Product positioned off-center (rule of thirds)\n" +
		"✓ The open side of the frame holds space for copy\n" +
		"✓ Background extends the scene without distracting from the product",
}

const consistencyInstruction = "[CONSISTENCY]\n" +
	"⚠️ This image is one of three aspect ratios of the SAME ad.\n" +
	"⚠️ Keep the product, color palette, lighting and mood IDENTICAL across every ratio - only the framing changes.\n" +
	"⚠️ Use the attached reference images for the exact product appearance."

// BuildRatioPrompts - 정리된 기본 프롬프트에 비율/브랜드 색상 지시를 붙인다
// 색상은 코드 대신 이름으로만 전달한다.
func BuildRatioPrompts(base string, brandColors map[string]string) map[model.Ratio]string {
	colors := describeColors(brandColors)

	prompts := make(map[model.Ratio]string, len(model.Ratios))
	for _, ratio := range model.Ratios {
		var b strings.Builder
		b.WriteString(strings.TrimSpace(base))
		b.WriteString("\n\n")
		b.WriteString(ratioInstructions[ratio])
		if colors != "" {
			b.WriteString("\n\n[BRAND COLORS]\n")
			b.WriteString(colors)
		}
		b.WriteString("\n\n")
		b.WriteString(consistencyInstruction)
		prompts[ratio] = b.String()
	}
	return prompts
}

func describeColors(brandColors map[string]string) string {
	if len(brandColors) == 0 {
		return ""
	}

	roles := make([]string, 0, len(brandColors))
	for role := range brandColors {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	lines := make([]string, 0, len(roles))
	for _, role := range roles {
		if strings.TrimSpace(brandColors[role]) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", role, validator.ColorName(brandColors[role])))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Use the brand palette throughout the scene:\n" + strings.Join(lines, "\n")
}

// displayName - 목록에 보일 이름 (상품명 - 헤드라인)
func displayName(productName, headline string, index int) string {
	headline = strings.TrimSpace(headline)
	if headline == "" {
		return fmt.Sprintf("%s #%d", productName, index+1)
	}
	if r := []rune(headline); len(r) > 60 {
		headline = strings.TrimSpace(string(r[:60])) + "..."
	}
	if productName == "" {
		return headline
	}
	return productName + " - " + headline
}

// fixNotes - 수정 요청을 원본 메모에 덧붙인다
func fixNotes(original *string, description string) string {
	note := "Fix request: " + strings.TrimSpace(description)
	if original == nil || strings.TrimSpace(*original) == "" {
		return note
	}
	return strings.TrimSpace(*original) + "\n\n" + note
}
