package domain

import "time"

// ContentItem is the unit of work moving through the pipeline.
type ContentItem struct {
	ID              string
	Status          Status
	Category        *string
	Payload         Payload
	ErrorLog        []ErrorEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessingStart *time.Time
	ProcessingEnd   *time.Time
}

// ErrorEntry records one stage failure. The log is append-only.
type ErrorEntry struct {
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload is the accumulated output of all completed stages. Sections
// are optional and additive: a later stage fills its own section and
// never clears an earlier one.
type Payload struct {
	Classification *ClassificationOutput `json:"classification,omitempty"`
	Design         *DesignOutput         `json:"design,omitempty"`
	Assets         *AssetOutput          `json:"assets,omitempty"`
	Page           *PageOutput           `json:"page,omitempty"`
	SEO            *SEOOutput            `json:"seo,omitempty"`
}

// ClassificationOutput is produced by the classification agent.
type ClassificationOutput struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags,omitempty"`
}

// DesignOutput is produced by the design-assignment agent.
type DesignOutput struct {
	Template string `json:"template"`
	Palette  string `json:"palette,omitempty"`
}

// AssetOutput is produced by the asset-validation agent.
type AssetOutput struct {
	Images    []AssetRef `json:"images,omitempty"`
	Validated bool       `json:"validated"`
}

// AssetRef points at one validated asset.
type AssetRef struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// PageOutput is produced by the composition agent.
type PageOutput struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	HTML      string `json:"html"`
	WordCount int    `json:"wordCount"`
}

// SEOOutput is produced by the SEO-synthesis agent.
type SEOOutput struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"metaDescription"`
	Keywords        []string `json:"keywords,omitempty"`
	CanonicalPath   string   `json:"canonicalPath,omitempty"`
}

// Merge overlays other's populated sections onto p and returns the
// result. Sections absent in other survive untouched, so merging is
// additive across stages.
func (p Payload) Merge(other Payload) Payload {
	if other.Classification != nil {
		p.Classification = other.Classification
	}
	if other.Design != nil {
		p.Design = other.Design
	}
	if other.Assets != nil {
		p.Assets = other.Assets
	}
	if other.Page != nil {
		p.Page = other.Page
	}
	if other.SEO != nil {
		p.SEO = other.SEO
	}
	return p
}

// ContentPatch carries the optional fields a status transition may set
// alongside the status change itself.
type ContentPatch struct {
	Category        *string
	Payload         *Payload
	ProcessingStart *time.Time
	ProcessingEnd   *time.Time
	ErrorEntry      *ErrorEntry
}

// AgentRequest is the uniform request every stage agent receives.
type AgentRequest struct {
	ContentID string  `json:"content_id"`
	Payload   Payload `json:"payload"`
}

// AgentResponse is the uniform response every stage agent returns.
type AgentResponse struct {
	Success bool     `json:"success"`
	Output  *Payload `json:"output,omitempty"`
	Error   string   `json:"error,omitempty"`
}
