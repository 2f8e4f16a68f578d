package search

import (
	"context"
	"log"

	"planforge/api/internal/store"
)

// ClientStore is the database-backed fallback for client lookup.
type ClientStore interface {
	SearchClients(ctx context.Context, q string, limit int) ([]store.ClientHit, error)
}

// Service answers client lookups, preferring Meilisearch and falling
// back to a Postgres ILIKE scan when the search engine is down.
type Service struct {
	meili *Meili
	db    ClientStore
}

// New builds the search facade. meili may be nil when no search engine
// is configured; every lookup then goes to the database.
func New(m *Meili, db ClientStore) *Service {
	return &Service{meili: m, db: db}
}

// Index pushes one client record to the search engine. Failures are
// logged and swallowed: indexing lags behind the database harmlessly.
func (s *Service) Index(rec ClientRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexClient(rec); err != nil {
		log.Printf("search: index client %s: %v", rec.ID, err)
	}
}

// Search looks up clients by name, email or company.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]store.ClientHit, error) {
	if limit <= 0 {
		limit = 20
	}

	if s.meili != nil && s.meili.Healthy() {
		recs, err := s.meili.Search(q, limit)
		if err == nil {
			hits := make([]store.ClientHit, 0, len(recs))
			for _, r := range recs {
				hits = append(hits, store.ClientHit{
					UserEmail:   r.Email,
					FirstName:   r.FirstName,
					LastName:    r.LastName,
					CompanyName: r.CompanyName,
					Forms:       r.Forms,
				})
			}
			return hits, nil
		}
		log.Printf("search: meilisearch failed, falling back to database: %v", err)
	}

	return s.db.SearchClients(ctx, q, limit)
}

// Close releases search engine resources.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}
