package domain

import (
	"context"
	"time"
)

// CategoryNode is one entry of the catalog tree. Children hold arena indexes
// into CategoryTree.Nodes.
type CategoryNode struct {
	ID       int
	Name     string
	Shard    string
	Path     string
	Query    string
	SEO      string
	Children []int
}

// CategoryTree stores the catalog as an arena of nodes.
type CategoryTree struct {
	Nodes []CategoryNode
	Roots []int
}

// Add appends a node to the arena and returns its index.
func (t *CategoryTree) Add(n CategoryNode) int {
	n.ID = len(t.Nodes)
	t.Nodes = append(t.Nodes, n)
	return n.ID
}

// CategoryDescriptor carries what is needed to request listing pages.
type CategoryDescriptor struct {
	Name  string `json:"name"`
	Shard string `json:"shard"`
	Query string `json:"query"`
	Path  string `json:"path,omitempty"`
}

// ListingPage is one page of product names. An empty Names slice means the
// listing is exhausted.
type ListingPage struct {
	Number int
	Names  []string
}

// EnrichedRow is one line of a category report.
type EnrichedRow struct {
	Name         string `json:"name"`
	ProductCount int    `json:"product_count"`
	Frequency    int    `json:"frequency"`
}

// BatchRow is one line of the full-catalog report.
type BatchRow struct {
	Keyword          string
	ProductCount     int
	YearlyFrequency  int
	MonthlyFrequency int
	WeeklyFrequency  int
	WeeklyTrend      int
}

// KeywordStats mirrors the statistics service payload for a single keyword.
// Numeric fields absent in the payload stay zero.
type KeywordStats struct {
	ProductCount Count        `json:"product_count"`
	Freq365      Count        `json:"freq365"`
	Freq         *Frequencies `json:"freq"`
	Cluster      *Cluster     `json:"cluster"`
}

// Cluster groups a keyword with its aggregate metrics. A nil cluster marks
// the keyword unusable.
type Cluster struct {
	ProductCount Count        `json:"product_count"`
	FreqSyn      *Frequencies `json:"freq_syn"`
	FreqCommon   *Frequencies `json:"freq_common"`
}

type Frequencies struct {
	KeywordCount Count `json:"keyword_count"`
	Monthly      Count `json:"monthly"`
	Weekly       Count `json:"weekly"`
	WeeklyTrend  Count `json:"weekly_trend"`
}

// HarvestRun accumulates rows for one category. Rows are append-only.
type HarvestRun struct {
	ID        string
	URL       string
	Target    CategoryDescriptor
	Page      int
	StartedAt time.Time

	rows []EnrichedRow
}

// Append adds rows to the accumulator.
func (r *HarvestRun) Append(rows ...EnrichedRow) {
	r.rows = append(r.rows, rows...)
}

// Rows returns a copy of the accumulated rows.
func (r *HarvestRun) Rows() []EnrichedRow {
	out := make([]EnrichedRow, len(r.rows))
	copy(out, r.rows)
	return out
}

// Len reports how many rows were accumulated so far.
func (r *HarvestRun) Len() int {
	return len(r.rows)
}

// ReportArtifact is a report file written by the report sink.
type ReportArtifact struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// RunRecord is the persisted summary of a finished run.
type RunRecord struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	URL       string        `json:"url,omitempty"`
	Category  string        `json:"category,omitempty"`
	Reason    string        `json:"reason"`
	Success   bool          `json:"success"`
	Rows      int           `json:"rows"`
	Pages     int           `json:"pages"`
	Elapsed   time.Duration `json:"elapsed"`
	StartedAt time.Time     `json:"started_at"`
	Report    string        `json:"report,omitempty"`
	Top       []EnrichedRow `json:"top,omitempty"`
}

// CatalogSource fetches the full category tree.
type CatalogSource interface {
	FetchCatalog(ctx context.Context) (*CategoryTree, error)
}

// ListingSource fetches one listing page for a category.
type ListingSource interface {
	FetchPage(ctx context.Context, category CategoryDescriptor, page int) (ListingPage, error)
}

// KeywordSource queries the keyword statistics service. Entries the service
// returned as null are present with a nil value.
type KeywordSource interface {
	KeywordStats(ctx context.Context, keywords []string) (map[string]*KeywordStats, error)
}

// Collector defines the interface for data fetching
type Collector interface {
	CatalogSource
	ListingSource
	KeywordSource
}
