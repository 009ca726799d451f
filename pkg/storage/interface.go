package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/ratings-crawler/pkg/models"
)

// MerchantStore handles merchant records
type MerchantStore interface {
	// CreateMerchant assigns an ID when empty, stamps timestamps and stores the merchant
	CreateMerchant(m *models.Merchant) error

	// GetMerchant returns utils.ErrNotFound when the merchant does not exist
	GetMerchant(id string) (*models.Merchant, error)

	// UpdateMerchant replaces the stored merchant and refreshes UpdatedAt
	UpdateMerchant(m *models.Merchant) error

	// ListMerchants returns merchants accepted by keep (all when keep is nil), oldest first
	ListMerchants(ctx context.Context, keep func(*models.Merchant) bool) ([]*models.Merchant, error)
}

// ProductStore handles product samples. URLs are unique within a merchant.
type ProductStore interface {
	// AddProductURL creates a URL-only sample. Returns false when the merchant already has that URL
	AddProductURL(merchantID, productURL string) (bool, error)

	// ListProducts returns every sample of a merchant
	ListProducts(ctx context.Context, merchantID string) ([]*models.ProductSample, error)

	// ListAllProducts returns samples across merchants accepted by keep (all when keep is nil)
	ListAllProducts(ctx context.Context, keep func(*models.ProductSample) bool) ([]*models.ProductSample, error)

	// UpdateProduct replaces a stored sample, keyed by merchant and URL
	UpdateProduct(p *models.ProductSample) error
}

// EmailStore handles contact emails. Addresses are lowercase and unique within a merchant.
type EmailStore interface {
	// UpsertEmail creates the email, or fills the empty SourceURL/Evidence of an existing one.
	// Returns true when a new record was created
	UpsertEmail(e *models.ContactEmail) (bool, error)

	// ListEmails returns every email of a merchant
	ListEmails(ctx context.Context, merchantID string) ([]*models.ContactEmail, error)

	// ListAllEmails returns emails across merchants accepted by keep (all when keep is nil)
	ListAllEmails(ctx context.Context, keep func(*models.ContactEmail) bool) ([]*models.ContactEmail, error)

	// UpdateEmail replaces a stored email, keyed by merchant and address
	UpdateEmail(e *models.ContactEmail) error
}

// PolicyStore handles the one-per-merchant policy snapshot
type PolicyStore interface {
	// GetPolicy returns utils.ErrNotFound when no snapshot exists yet
	GetPolicy(merchantID string) (*models.PolicySnapshot, error)
	PutPolicy(p *models.PolicySnapshot) error
}

// RobotsStore persists raw robots.txt text keyed by bare domain
type RobotsStore interface {
	// GetRobots returns utils.ErrNotFound when the domain has never been cached
	GetRobots(domain string) (*models.RobotsCacheEntry, error)
	PutRobots(entry *models.RobotsCacheEntry) error
}

// AggregateStore handles the one-per-merchant rating statistics
type AggregateStore interface {
	// GetAggregate returns utils.ErrNotFound when no aggregate was computed yet
	GetAggregate(merchantID string) (*models.BrandAggregate, error)

	// PutAggregate replaces all fields of the merchant's aggregate
	PutAggregate(a *models.BrandAggregate) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// KeyCount returns the number of stored records
	KeyCount() int

	// WriteProductURLs writes every known product URL, one per line, to filePath
	WriteProductURLs(ctx context.Context, filePath string) (int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// Store combines all store interfaces for components that need full access
type Store interface {
	MerchantStore
	ProductStore
	EmailStore
	PolicyStore
	RobotsStore
	AggregateStore
	StoreAdmin
}
