// Package aggregate computes per-merchant rating statistics from product samples.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/storage"
)

// Stats are the rating statistics of one merchant. Rating fields are nil when no sample has a rating.
type Stats struct {
	ProductCount      int
	SumReviewCount    int
	WeightedAvgRating *float64
	SimpleAvgRating   *float64
	MedianRating      *float64
	MinRating         *float64
	MaxRating         *float64
}

// Compute derives Stats from samples. Returns nil for an empty sample set.
func Compute(samples []*models.ProductSample) *Stats {
	if len(samples) == 0 {
		return nil
	}

	stats := &Stats{ProductCount: len(samples)}
	var ratings []float64
	var weightedSum float64
	var weight int
	for _, s := range samples {
		if s.ReviewCount != nil {
			stats.SumReviewCount += *s.ReviewCount
		}
		if s.Rating == nil {
			continue
		}
		ratings = append(ratings, *s.Rating)
		// Rows missing either field are left out of the weighted mean entirely
		if s.ReviewCount != nil {
			weightedSum += *s.Rating * float64(*s.ReviewCount)
			weight += *s.ReviewCount
		}
	}

	if weight > 0 {
		stats.WeightedAvgRating = round3(weightedSum / float64(weight))
	}
	if len(ratings) == 0 {
		return stats
	}

	sort.Float64s(ratings)
	var sum float64
	for _, r := range ratings {
		sum += r
	}
	stats.SimpleAvgRating = round3(sum / float64(len(ratings)))
	stats.MedianRating = round3(median(ratings))
	stats.MinRating = models.Float64Ptr(ratings[0])
	stats.MaxRating = models.Float64Ptr(ratings[len(ratings)-1])
	return stats
}

// median of a sorted, non-empty slice
func median(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func round3(v float64) *float64 {
	r := math.Round(v*1000) / 1000
	return &r
}

// Engine recomputes and stores merchant aggregates
type Engine struct {
	products   storage.ProductStore
	aggregates storage.AggregateStore
	log        *logrus.Entry
	now        func() time.Time
}

// NewEngine creates an Engine
func NewEngine(products storage.ProductStore, aggregates storage.AggregateStore, log *logrus.Logger) *Engine {
	return &Engine{
		products:   products,
		aggregates: aggregates,
		log:        log.WithField("component", "aggregate"),
		now:        time.Now,
	}
}

// Aggregate recomputes the statistics of merchantID and replaces the stored aggregate.
// Returns nil, nil when the merchant has no samples; nothing is written then.
func (e *Engine) Aggregate(ctx context.Context, merchantID string) (*models.BrandAggregate, error) {
	samples, err := e.products.ListProducts(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list samples for merchant %s: %w", merchantID, err)
	}
	stats := Compute(samples)
	if stats == nil {
		return nil, nil
	}

	agg := &models.BrandAggregate{
		MerchantID:        merchantID,
		ProductCount:      stats.ProductCount,
		SumReviewCount:    stats.SumReviewCount,
		WeightedAvgRating: stats.WeightedAvgRating,
		SimpleAvgRating:   stats.SimpleAvgRating,
		MedianRating:      stats.MedianRating,
		MinRating:         stats.MinRating,
		MaxRating:         stats.MaxRating,
		ComputedAt:        e.now().UTC(),
	}
	if err := e.aggregates.PutAggregate(agg); err != nil {
		return nil, fmt.Errorf("store aggregate for merchant %s: %w", merchantID, err)
	}
	e.log.WithFields(logrus.Fields{"merchant_id": merchantID, "product_count": agg.ProductCount}).Debug("Aggregate stored")
	return agg, nil
}
