package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestProductSample_NeedsExtraction(t *testing.T) {
	tests := []struct {
		name   string
		sample ProductSample
		want   bool
	}{
		{"empty", ProductSample{}, true},
		{"rating only", ProductSample{Rating: Float64Ptr(4.5)}, true},
		{"count only", ProductSample{ReviewCount: IntPtr(3)}, true},
		{"both", ProductSample{Rating: Float64Ptr(4.5), ReviewCount: IntPtr(3)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sample.NeedsExtraction())
		})
	}
}

func TestProductSample_OmitsAbsentRating(t *testing.T) {
	data, err := json.Marshal(ProductSample{ID: "p1", URL: "https://x.test/products/a"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "rating")
	assert.NotContains(t, string(data), "review_count")
}

func TestBrandAggregate_YAMLKeepsNullStats(t *testing.T) {
	agg := BrandAggregate{
		MerchantID:   "m1",
		ProductCount: 2,
		ComputedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	out, err := yaml.Marshal(agg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "weighted_avg_rating: null")
	assert.Contains(t, string(out), "product_count: 2")
}
