package models

import "time"

// Merchant is a brand being evaluated. Domain holds the resolved origin (scheme + host)
type Merchant struct {
	ID                  string         `json:"id" yaml:"id"`
	Name                string         `json:"name" yaml:"name"`
	Domain              string         `json:"domain,omitempty" yaml:"domain,omitempty"`
	IsShopify           bool           `json:"is_shopify" yaml:"is_shopify"`
	Status              MerchantStatus `json:"status" yaml:"status"`
	Instagram           string         `json:"instagram,omitempty" yaml:"instagram,omitempty"`
	InstagramLastPostAt *time.Time     `json:"instagram_last_post_at,omitempty" yaml:"instagram_last_post_at,omitempty"`
	InstagramActive30d  *bool          `json:"instagram_active_30d,omitempty" yaml:"instagram_active_30d,omitempty"`
	InstagramSource     string         `json:"instagram_source,omitempty" yaml:"instagram_source,omitempty"`
	InstagramError      string         `json:"instagram_error,omitempty" yaml:"instagram_error,omitempty"`
	Notes               string         `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt           time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" yaml:"updated_at"`
}

// ProductSample is a single product page belonging to a merchant.
// URL is unique within the merchant
type ProductSample struct {
	ID          string           `json:"id"`
	MerchantID  string           `json:"merchant_id"`
	URL         string           `json:"url"`
	Title       string           `json:"title,omitempty"`
	Rating      *float64         `json:"rating,omitempty"`       // 0.0 - 5.5, two decimals
	ReviewCount *int             `json:"review_count,omitempty"` // Non-negative
	Source      ExtractionSource `json:"source,omitempty"`
	Widget      string           `json:"widget,omitempty"`
	Evidence    string           `json:"evidence,omitempty"`
	FetchedAt   *time.Time       `json:"fetched_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NeedsExtraction reports whether the sample is still missing its rating or its review count
func (p *ProductSample) NeedsExtraction() bool {
	return p.Rating == nil || p.ReviewCount == nil
}

// ContactEmail is a discovered contact address. Address is lowercase and unique within the merchant
type ContactEmail struct {
	ID                   string             `json:"id"`
	MerchantID           string             `json:"merchant_id"`
	Address              string             `json:"address"`
	Type                 EmailType          `json:"type"`
	SourceURL            string             `json:"source_url,omitempty"`
	Evidence             string             `json:"evidence,omitempty"` // At most 500 chars
	VerifiedSyntax       bool               `json:"verified_syntax"`
	VerifiedMX           bool               `json:"verified_mx"`
	VerificationStatus   VerificationStatus `json:"verification_status,omitempty"`
	VerificationScore    *float64           `json:"verification_score,omitempty"`
	VerificationProvider string             `json:"verification_provider,omitempty"`
	VerifiedAt           *time.Time         `json:"verified_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

// PolicySnapshot holds return and shipping terms for a merchant (one per merchant)
type PolicySnapshot struct {
	MerchantID            string     `json:"merchant_id"`
	ReturnPolicyURL       string     `json:"return_policy_url,omitempty"`
	ShippingPolicyURL     string     `json:"shipping_policy_url,omitempty"`
	ReturnWindowDays      *int       `json:"return_window_days,omitempty"`
	FreeShipping          *bool      `json:"free_shipping,omitempty"`
	FreeShippingAlways    *bool      `json:"free_shipping_always,omitempty"`
	FreeShippingThreshold *float64   `json:"free_shipping_threshold,omitempty"`
	ShippingCurrency      string     `json:"shipping_currency,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
	Evidence              string     `json:"evidence,omitempty"`
	ComputedAt            *time.Time `json:"computed_at,omitempty"`
}

// RobotsCacheEntry stores the raw robots.txt text for a bare domain
type RobotsCacheEntry struct {
	Domain    string    `json:"domain"`
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at"`
}

// BrandAggregate holds the rating statistics for a merchant, fully recomputed on each run
type BrandAggregate struct {
	MerchantID        string    `json:"merchant_id" yaml:"merchant_id"`
	ProductCount      int       `json:"product_count" yaml:"product_count"`
	SumReviewCount    int       `json:"sum_review_count" yaml:"sum_review_count"`
	WeightedAvgRating *float64  `json:"weighted_avg_rating" yaml:"weighted_avg_rating"`
	SimpleAvgRating   *float64  `json:"simple_avg_rating" yaml:"simple_avg_rating"`
	MedianRating      *float64  `json:"median_rating" yaml:"median_rating"`
	MinRating         *float64  `json:"min_rating" yaml:"min_rating"`
	MaxRating         *float64  `json:"max_rating" yaml:"max_rating"`
	ComputedAt        time.Time `json:"computed_at" yaml:"computed_at"`
}

// Float64Ptr returns a pointer to v
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v
func BoolPtr(v bool) *bool { return &v }

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time { return &t }
