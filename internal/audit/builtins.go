package audit

import (
	"regexp"
	"strings"

	"ContentPipeline/internal/domain"
)

// DefaultDimensions is the stock audit configuration: five weighted
// dimensions summing to 100.
func DefaultDimensions() []DimensionSpec {
	return []DimensionSpec{
		{
			Name:   "content_completeness",
			Weight: 25,
			Checks: []string{
				"title_present",
				"body_min_length",
				"category_assigned",
				"classification_confident",
			},
		},
		{
			Name:   "seo_optimization",
			Weight: 25,
			Checks: []string{
				"meta_description_present",
				"meta_description_length",
				"seo_title_length",
				"keywords_present",
			},
		},
		{
			Name:   "technical_health",
			Weight: 20,
			Checks: []string{
				"page_html_present",
				"assets_validated",
				"slug_well_formed",
			},
		},
		{
			Name:   "user_experience",
			Weight: 15,
			Checks: []string{
				"images_have_alt",
				"heading_present",
				"reading_length_reasonable",
			},
		},
		{
			Name:   "brand_consistency",
			Weight: 15,
			Checks: []string{
				"template_assigned",
				"palette_assigned",
			},
		},
	}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func check(passed bool, severity domain.Severity, description, recommendation string) domain.CheckResult {
	result := domain.CheckResult{Passed: passed, Severity: severity, Description: description}
	if !passed {
		result.Recommendation = recommendation
	}
	return result
}

func registerBuiltins(r *Registry) {
	r.Register("title_present", func(in Input) domain.CheckResult {
		return check(strings.TrimSpace(in.Page.Title) != "",
			domain.SeverityCritical,
			"composed page carries a title",
			"regenerate the page with a non-empty title")
	})

	r.Register("body_min_length", func(in Input) domain.CheckResult {
		return check(in.Page.WordCount >= 300,
			domain.SeverityHigh,
			"page body has at least 300 words",
			"expand the article body to at least 300 words")
	})

	r.Register("category_assigned", func(in Input) domain.CheckResult {
		return check(in.Item.Category != nil && *in.Item.Category != "",
			domain.SeverityHigh,
			"classification assigned a category",
			"re-run classification to assign a category")
	})

	r.Register("classification_confident", func(in Input) domain.CheckResult {
		cls := in.Item.Payload.Classification
		return check(cls != nil && cls.Confidence >= 0.6,
			domain.SeverityMedium,
			"classification confidence is at least 0.6",
			"review the category manually; classifier confidence is low")
	})

	r.Register("meta_description_present", func(in Input) domain.CheckResult {
		seo := in.Item.Payload.SEO
		return check(seo != nil && strings.TrimSpace(seo.MetaDescription) != "",
			domain.SeverityCritical,
			"meta description is present",
			"generate a meta description")
	})

	r.Register("meta_description_length", func(in Input) domain.CheckResult {
		length := 0
		if seo := in.Item.Payload.SEO; seo != nil {
			length = len(seo.MetaDescription)
		}
		return check(length >= 50 && length <= 160,
			domain.SeverityMedium,
			"meta description is 50-160 characters",
			"rewrite the meta description to 50-160 characters")
	})

	r.Register("seo_title_length", func(in Input) domain.CheckResult {
		length := 0
		if seo := in.Item.Payload.SEO; seo != nil {
			length = len(seo.Title)
		}
		return check(length >= 10 && length <= 70,
			domain.SeverityMedium,
			"SEO title is 10-70 characters",
			"rewrite the SEO title to 10-70 characters")
	})

	r.Register("keywords_present", func(in Input) domain.CheckResult {
		seo := in.Item.Payload.SEO
		return check(seo != nil && len(seo.Keywords) > 0,
			domain.SeverityLow,
			"SEO keywords are present",
			"add target keywords")
	})

	r.Register("page_html_present", func(in Input) domain.CheckResult {
		return check(strings.TrimSpace(in.Page.HTML) != "",
			domain.SeverityCritical,
			"composed page HTML is present",
			"re-run composition; the page body is empty")
	})

	r.Register("assets_validated", func(in Input) domain.CheckResult {
		passed := true
		for _, asset := range in.Assets {
			if !asset.Validated {
				passed = false
				break
			}
		}
		return check(passed,
			domain.SeverityHigh,
			"all referenced assets passed validation",
			"re-run asset validation for failing assets")
	})

	r.Register("slug_well_formed", func(in Input) domain.CheckResult {
		return check(slugPattern.MatchString(in.Page.Slug),
			domain.SeverityHigh,
			"page slug is lowercase-hyphenated",
			"regenerate the slug as lowercase words joined by hyphens")
	})

	r.Register("images_have_alt", func(in Input) domain.CheckResult {
		passed := true
		for _, asset := range in.Assets {
			if asset.Alt == "" {
				passed = false
				break
			}
		}
		return check(passed,
			domain.SeverityMedium,
			"every image carries alt text",
			"add alt text to images lacking it")
	})

	r.Register("heading_present", func(in Input) domain.CheckResult {
		html := strings.ToLower(in.Page.HTML)
		return check(strings.Contains(html, "<h1"),
			domain.SeverityMedium,
			"page contains a top-level heading",
			"add an h1 heading to the page")
	})

	r.Register("reading_length_reasonable", func(in Input) domain.CheckResult {
		return check(in.Page.WordCount <= 5000,
			domain.SeverityLow,
			"page stays under 5000 words",
			"split the article; it exceeds 5000 words")
	})

	r.Register("template_assigned", func(in Input) domain.CheckResult {
		return check(in.Design.Template != "",
			domain.SeverityHigh,
			"a design template is assigned",
			"re-run design assignment")
	})

	r.Register("palette_assigned", func(in Input) domain.CheckResult {
		return check(in.Design.Palette != "",
			domain.SeverityLow,
			"a color palette is assigned",
			"assign a palette in the design stage")
	})
}
