package verify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// Verifier fetches a published page and checks that it is reachable
// and carries the expected head markers.
type Verifier struct {
	http *http.Client
}

var _ ports.PageVerifier = (*Verifier)(nil)

// NewVerifier creates a reusable verification client.
func NewVerifier() *Verifier {
	return &Verifier{http: &http.Client{Timeout: 10 * time.Second}}
}

// Verify fetches url and inspects the document head. A transport
// error propagates; an HTTP error status comes back as unreachable so
// the caller can distinguish "site down" from "page wrong".
func (v *Verifier) Verify(ctx context.Context, url string) (domain.VerificationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("new request: %w", err)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	result := domain.VerificationResult{StatusCode: resp.StatusCode}
	if resp.StatusCode >= 400 {
		return result, nil
	}
	result.Reachable = true

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return result, fmt.Errorf("parse page: %w", err)
	}

	result.TitleFound = strings.TrimSpace(doc.Find("title").First().Text()) != ""
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		result.DescriptionFound = strings.TrimSpace(desc) != ""
	}
	return result, nil
}
