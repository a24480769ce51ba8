package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"classics-portal/internal/types"
)

// NormalizeKeyword folds a search keyword to NFKC and trims surrounding
// space, so full-width Latin letters and digits match their ASCII forms and
// composed and decomposed kana compare equal.
func NormalizeKeyword(keyword string) string {
	return strings.TrimSpace(norm.NFKC.String(keyword))
}

// Search runs a full-text search with GET /search?keyword=
func (c *Client) Search(ctx context.Context, keyword string) ([]types.SearchResult, error) {
	keyword = NormalizeKeyword(keyword)
	if keyword == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "search keyword is empty", nil)
	}

	var results []types.SearchResult
	path := "/search?keyword=" + url.QueryEscape(keyword)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, false, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Hit is one navigable search match: a document and the 1-based page to open it at
type Hit struct {
	DocumentID types.DocumentID
	Title      string
	Page       int
	Contexts   []string
}

// Hits flattens search results into per-page hits in result order.
// Title-only matches open at page 1.
func Hits(results []types.SearchResult) []Hit {
	var hits []Hit
	for _, r := range results {
		if len(r.Matches.PageMatches) == 0 {
			hit := Hit{DocumentID: r.ID, Title: r.DocumentTitle, Page: 1}
			for _, m := range r.Matches.TitleMatches {
				hit.Contexts = append(hit.Contexts, m.Context)
			}
			hits = append(hits, hit)
			continue
		}
		for _, pm := range r.Matches.PageMatches {
			hit := Hit{DocumentID: r.ID, Title: r.DocumentTitle, Page: pm.PageNumber}
			for _, m := range pm.Matches {
				hit.Contexts = append(hit.Contexts, m.Context)
			}
			hits = append(hits, hit)
		}
	}
	return hits
}
