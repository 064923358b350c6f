package roles

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps one role document per identity under the configured
// users collection, mirroring the mobile client's layout.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore binds the store to the client and collection name.
func NewFirestoreStore(client *firestore.Client, collection string) (*FirestoreStore, error) {
	if client == nil {
		return nil, errors.New("firestore client is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = "users"
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

type roleDoc struct {
	Role string `firestore:"role"`
}

// GetRole reads the identity's role document.
func (s *FirestoreStore) GetRole(ctx context.Context, identityID string) (string, error) {
	snap, err := s.client.Collection(s.collection).Doc(identityID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", err
	}

	var doc roleDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", err
	}
	if doc.Role == "" {
		return "", ErrNotFound
	}
	return doc.Role, nil
}

// SetRole writes the role field, creating the document when absent.
func (s *FirestoreStore) SetRole(ctx context.Context, identityID, role string) error {
	_, err := s.client.Collection(s.collection).Doc(identityID).Set(ctx, map[string]any{
		"role": role,
	}, firestore.MergeAll)
	return err
}
