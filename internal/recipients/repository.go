// Package recipients reads owner whitelists to derive the trust-tier
// feature. Contact management itself is an external concern; this
// repository only needs lookups plus an upsert for seeding.
package recipients

import (
	"context"
	"time"

	"arcpay/internal/docstore"
	"arcpay/internal/domain"
)

const collection = "recipients"

// Entry is one whitelisted recipient for an owner.
type Entry struct {
	OwnerRef     string    `json:"ownerRef"`
	RecipientRef string    `json:"recipientRef"`
	Name         string    `json:"name,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	AddedAt      time.Time `json:"addedAt"`
}

type Repository struct {
	store docstore.Store
	now   func() time.Time
}

func New(store docstore.Store) *Repository {
	return &Repository{store: store, now: time.Now}
}

// Upsert replaces the entry for (owner, recipient) or appends a new one.
func (r *Repository) Upsert(ctx context.Context, e Entry) error {
	if e.AddedAt.IsZero() {
		e.AddedAt = r.now().UTC()
	}
	return docstore.UpdateSlice(ctx, r.store, collection, func(items []Entry) ([]Entry, bool, error) {
		for i := range items {
			if items[i].OwnerRef == e.OwnerRef && items[i].RecipientRef == e.RecipientRef {
				items[i] = e
				return items, true, nil
			}
		}
		return append(items, e), true, nil
	})
}

// TierFor classifies a recipient: trusted when on the owner's own
// whitelist, known when whitelisted by any other owner, unknown otherwise.
func (r *Repository) TierFor(ctx context.Context, ownerRef, recipientRef string) (domain.TrustTier, error) {
	items, err := docstore.LoadSlice[Entry](ctx, r.store, collection)
	if err != nil {
		return domain.TierUnknown, err
	}
	tier := domain.TierUnknown
	for _, e := range items {
		if e.RecipientRef != recipientRef {
			continue
		}
		if e.OwnerRef == ownerRef {
			return domain.TierTrusted, nil
		}
		tier = domain.TierKnown
	}
	return tier, nil
}
