package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/supplyvend/api/internal/platform/firestore"
)

const eventsCollection = "webhookEvents"

type eventDocument struct {
	RecordedAt time.Time `firestore:"recordedAt"`
	ExpiresAt  time.Time `firestore:"expiresAt"`
}

// FirestoreStore persists processed-event markers in Firestore so dedup
// survives restarts and is shared across instances.
type FirestoreStore struct {
	provider *pfirestore.Provider
}

// NewFirestoreStore constructs a Firestore-backed Store.
func NewFirestoreStore(provider *pfirestore.Provider) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency store requires firestore provider")
	}
	return &FirestoreStore{provider: provider}, nil
}

// Seen implements Store. A Create race between two deliveries of the same
// event resolves to exactly one loser, which observes AlreadyExists.
func (s *FirestoreStore) Seen(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return false, err
	}

	ref := client.Collection(eventsCollection).Doc(key)
	seen := false
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			// fall through to create
		case codes.OK:
			var doc eventDocument
			if decodeErr := snap.DataTo(&doc); decodeErr == nil && now.Before(doc.ExpiresAt) {
				seen = true
				return nil
			}
		default:
			return err
		}
		seen = false
		return tx.Set(ref, eventDocument{RecordedAt: now, ExpiresAt: now.Add(ttl)})
	})
	if err != nil {
		return false, pfirestore.WrapError("webhookEvents.seen", err)
	}
	return seen, nil
}
