// Package pdf counts the pages of stored documents. It stands in for the
// viewer's document-load callback when the editor runs headless.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"time"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/patrickmn/go-cache"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/singleflight"

	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

const (
	// DefaultCacheExpiration is how long a page count stays cached
	DefaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = time.Hour
)

// FileFetcher downloads the raw file of a document by title
type FileFetcher interface {
	FetchDocumentFile(ctx context.Context, title string) ([]byte, error)
}

// Probe resolves page counts of stored PDF documents.
// Counts are cached per title and concurrent lookups of one title share a download.
type Probe struct {
	fetcher FileFetcher
	counts  *cache.Cache
	group   singleflight.Group
}

// NewProbe creates a Probe. A non-positive ttl uses DefaultCacheExpiration.
func NewProbe(fetcher FileFetcher, ttl time.Duration) *Probe {
	if ttl <= 0 {
		ttl = DefaultCacheExpiration
	}
	return &Probe{
		fetcher: fetcher,
		counts:  cache.New(ttl, cacheCleanupInterval),
	}
}

// PageCount returns the number of pages of the PDF stored under title.
// Concurrent calls for one title share a download that outlives the caller
// that started it; each caller still returns when its own ctx is done.
func (p *Probe) PageCount(ctx context.Context, title string) (int, error) {
	if !types.IsPDFTitle(title) {
		return 0, types.NewAppErrorWithDetails(types.ErrInvalidInput, "document is not a PDF", title, nil)
	}
	if n, ok := p.counts.Get(title); ok {
		return n.(int), nil
	}

	flight := context.WithoutCancel(ctx)
	ch := p.group.DoChan(title, func() (interface{}, error) {
		if n, ok := p.counts.Get(title); ok {
			return n.(int), nil
		}

		data, err := p.fetcher.FetchDocumentFile(flight, title)
		if err != nil {
			return nil, err
		}
		n, err := CountPages(data)
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrPDF, "failed to count pages", title, err)
		}
		p.counts.Set(title, n, cache.DefaultExpiration)
		return n, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return 0, types.NewAppError(types.ErrNetwork, "page count cancelled", ctx.Err())
	case res = <-ch:
	}
	val, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		logger.Warn("page count probe failed", logger.String("title", title), logger.Err(err))
		return 0, err
	}

	n, ok := val.(int)
	if !ok {
		return 0, fmt.Errorf("unexpected return type from singleflight: %T", val)
	}
	logger.Debug("page count resolved", logger.String("title", title), logger.Int("pages", n), logger.Bool("shared", shared))
	return n, nil
}

// Forget drops the cached count of title, e.g. after the file was replaced
func (p *Probe) Forget(title string) {
	p.counts.Delete(title)
}

// CountPages counts the pages of an in-memory PDF. pdfcpu is tried first in
// relaxed validation mode; files it rejects go through ledongthuc/pdf, which
// tolerates more broken cross-reference tables.
func CountPages(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty file")
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err == nil && n > 0 {
		return n, nil
	}
	logger.Debug("pdfcpu could not count pages, trying fallback reader", logger.Err(err))

	n, fallbackErr := countWithReader(data)
	if fallbackErr != nil {
		if err != nil {
			return 0, fmt.Errorf("%v; fallback: %w", err, fallbackErr)
		}
		return 0, fallbackErr
	}
	return n, nil
}

func countWithReader(data []byte) (n int, err error) {
	// the reader panics on some malformed object streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	n = r.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return n, nil
}
