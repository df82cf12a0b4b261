package collector

import (
	"context"
	"fmt"

	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/retry"
)

type keywordRequest struct {
	Keywords []string `json:"keywords"`
	An       bool     `json:"an"`
}

type keywordResponse struct {
	Data struct {
		Keywords map[string]*domain.KeywordStats `json:"keywords"`
	} `json:"data"`
}

// KeywordStats posts one batch of keywords to the statistics service.
func (hc *HTTPCollector) KeywordStats(ctx context.Context, keywords []string) (map[string]*domain.KeywordStats, error) {
	if len(keywords) == 0 {
		return map[string]*domain.KeywordStats{}, nil
	}

	var resp keywordResponse
	err := retry.Do(ctx, hc.opts.Retry, func(ctx context.Context) error {
		if err := hc.keywordLimiter.Wait(ctx); err != nil {
			return err
		}
		resp = keywordResponse{}
		return hc.postJSON(ctx, hc.opts.KeywordsURL, keywordRequest{Keywords: keywords, An: false}, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("keyword stats: %w", err)
	}

	if resp.Data.Keywords == nil {
		return map[string]*domain.KeywordStats{}, nil
	}
	return resp.Data.Keywords, nil
}
