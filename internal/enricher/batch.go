package enricher

import (
	"context"
	"sort"

	"github.com/qepting91/wb-harvester/internal/domain"
)

// EnrichAll queries every SEO keyword in a single call and returns the merged
// full-catalog rows sorted by monthly frequency, highest first. Keywords are
// sent as given; repeated keywords are not removed. A keyword is kept only
// when its top-level product count is positive.
func (e *Enricher) EnrichAll(ctx context.Context, keywords []string) ([]domain.BatchRow, error) {
	if len(keywords) == 0 {
		return nil, ErrEmpty
	}

	stats, err := e.source.KeywordStats(ctx, keywords)
	if err != nil {
		return nil, err
	}

	res := Filter(keywords, stats, func(s *domain.KeywordStats) bool {
		return s.ProductCount.Int() > 0
	})
	if len(res.Keywords) == 0 {
		return nil, ErrEmpty
	}

	e.audit(res)
	return Merge(res), nil
}

// Merge builds batch rows. Top-level fields win; cluster values fill in
// the displayed columns when the top-level value is zero or absent.
func Merge(res Result) []domain.BatchRow {
	rows := make([]domain.BatchRow, 0, len(res.Keywords))
	for _, k := range res.Keywords {
		s := res.Stats[k]

		var freq, common domain.Frequencies
		if s.Freq != nil {
			freq = *s.Freq
		}
		if s.Cluster != nil && s.Cluster.FreqCommon != nil {
			common = *s.Cluster.FreqCommon
		}

		rows = append(rows, domain.BatchRow{
			Keyword:          k,
			ProductCount:     productCount(s),
			YearlyFrequency:  firstNonZero(s.Freq365.Int(), common.KeywordCount.Int()),
			MonthlyFrequency: firstNonZero(freq.Monthly.Int(), common.Monthly.Int()),
			WeeklyFrequency:  firstNonZero(freq.Weekly.Int(), common.Weekly.Int()),
			WeeklyTrend:      firstNonZero(freq.WeeklyTrend.Int(), common.WeeklyTrend.Int()),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].MonthlyFrequency > rows[j].MonthlyFrequency
	})
	return rows
}

func productCount(s *domain.KeywordStats) int {
	if n := s.ProductCount.Int(); n != 0 {
		return n
	}
	if s.Cluster != nil {
		return s.Cluster.ProductCount.Int()
	}
	return 0
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
