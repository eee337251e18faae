package copywriter

import (
	"fmt"
	"sort"
	"strings"

	"static-ad-server/modules/common/model"
)

const systemInstruction = `You are a senior direct-response copywriter and art director for static social media ads.
You write short, punchy, on-brand copy and a detailed image-generation prompt for each ad.
Rules:
- Never include hex color codes in any field; describe colors with words.
- The image prompt must reference the provided product photo instead of describing a generic product.
- Keep headline under 8 words, subheadline under 14 words, each callout under 5 words, CTA under 4 words.
- Return only JSON matching the response schema.`

// angles - 변형마다 다른 설득 포인트를 쓰도록 인덱스별로 지정
var angles = []string{
	"lead with the primary customer benefit",
	"frame a pain point and show the product as the solution",
	"use social proof and trust signals",
	"create urgency around an offer or limited availability",
	"sell the lifestyle and emotional aspiration",
	"spotlight one standout product feature in detail",
}

// Angle - 변형 인덱스에 해당하는 카피 방향
func Angle(index int) string {
	if index < 0 {
		index = -index
	}
	return angles[index%len(angles)]
}

func contextBlock(in Input) string {
	var b strings.Builder

	b.WriteString("BRAND\n")
	fmt.Fprintf(&b, "- Name: %s\n", in.Brand.Name)
	writeOptional(&b, "Description", in.Brand.Description)
	writeOptional(&b, "Voice", in.Brand.Voice)
	writeOptional(&b, "Target audience", in.Brand.Audience)
	if len(in.Brand.Colors) > 0 {
		roles := make([]string, 0, len(in.Brand.Colors))
		for role := range in.Brand.Colors {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		fmt.Fprintf(&b, "- Brand color roles: %s (describe them in words, never as codes)\n", strings.Join(roles, ", "))
	}

	b.WriteString("\nPRODUCT\n")
	fmt.Fprintf(&b, "- Name: %s\n", in.Product.Name)
	writeOptional(&b, "Description", in.Product.Description)
	if len(in.Product.Features) > 0 {
		fmt.Fprintf(&b, "- Features: %s\n", strings.Join(in.Product.Features, "; "))
	}
	if in.Product.Price != nil {
		fmt.Fprintf(&b, "- Price: %.2f\n", *in.Product.Price)
	}

	b.WriteString("\nAD CONCEPT\n")
	fmt.Fprintf(&b, "- Name: %s\n", in.Concept.Name)
	writeOptional(&b, "Description", in.Concept.Description)
	writeOptional(&b, "Style", in.Concept.Style)

	if notes := strings.TrimSpace(in.Notes); notes != "" {
		fmt.Fprintf(&b, "\nUSER NOTES\n%s\n", notes)
	}
	return b.String()
}

func writeOptional(b *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "- %s: %s\n", label, value)
	}
}

// BuildBulkPrompt - N개 변형을 한 번에 요청
func BuildBulkPrompt(in Input, count int) string {
	var b strings.Builder
	b.WriteString(contextBlock(in))
	fmt.Fprintf(&b, "\nWrite %d distinct ad variations. Each variation must take a different angle:\n", count)
	for i := 0; i < count; i++ {
		fmt.Fprintf(&b, "%d. %s\n", i+1, Angle(i))
	}
	b.WriteString("\nReturn them in the \"variations\" array in the same order.")
	return b.String()
}

// BuildSinglePrompt - 변형 하나 (인덱스별 방향 지정)
func BuildSinglePrompt(in Input, index int) string {
	var b strings.Builder
	b.WriteString(contextBlock(in))
	fmt.Fprintf(&b, "\nWrite ad variation #%d. Angle: %s.", index+1, Angle(index))
	return b.String()
}

// BuildFixPrompt - 기존 결과의 문제를 고친 새 버전 요청
func BuildFixPrompt(original model.CopyResponse, description string, hasImage bool) string {
	var b strings.Builder
	b.WriteString("ORIGINAL AD\n")
	fmt.Fprintf(&b, "- Headline: %s\n", original.Headline)
	fmt.Fprintf(&b, "- Subheadline: %s\n", original.Subheadline)
	fmt.Fprintf(&b, "- Body: %s\n", original.BodyText)
	fmt.Fprintf(&b, "- Callouts: %s\n", strings.Join(original.CalloutTexts, " | "))
	fmt.Fprintf(&b, "- CTA: %s\n", original.CTAText)
	fmt.Fprintf(&b, "- Image prompt: %s\n", original.ImagePrompt)

	fmt.Fprintf(&b, "\nTHE USER REPORTED THESE PROBLEMS\n%s\n", strings.TrimSpace(description))
	if hasImage {
		b.WriteString("\nThe attached image is the original square ad. Use it to see what went wrong.\n")
	}
	b.WriteString("\nReturn a corrected version of the full ad. Keep everything the user did not complain about.")
	return b.String()
}
