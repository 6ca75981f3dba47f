package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"chatbridge/internal/metrics"
)

const (
	defaultTitle   = "New Chat"
	titleRuneLimit = 20
)

// Creator issues a new upstream conversation and returns its identifier.
type Creator interface {
	CreateConversation(ctx context.Context, credential, title string) (string, error)
}

// Resolver maps an opaque credential to a persistent upstream conversation
// id, creating one on first use. Creation is serialized per credential, so
// concurrent first requests for the same credential perform exactly one
// upstream call; later requests hit the cache without any network activity.
type Resolver struct {
	store   *Store
	creator Creator
}

// NewResolver constructs a resolver backed by the given store and creator.
func NewResolver(store *Store, creator Creator) *Resolver {
	return &Resolver{store: store, creator: creator}
}

// GetOrCreate returns the conversation id for the credential, creating an
// upstream conversation titled after seedText on first use. A failed
// creation fails the calling request and is not retried here; the pending
// entry is dropped so a subsequent request may attempt creation again.
func (r *Resolver) GetOrCreate(ctx context.Context, credential, seedText string) (string, error) {
	e, owner := r.store.lookupOrBegin(credential)
	if !owner {
		select {
		case <-e.ready:
			return e.id, e.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	id, err := r.creator.CreateConversation(ctx, credential, deriveTitle(seedText))
	if err != nil {
		e.err = fmt.Errorf("create upstream conversation: %w", err)
		r.store.evict(credential, e)
		close(e.ready)
		return "", e.err
	}

	e.id = id
	close(e.ready)
	metrics.SessionsCreatedTotal.Inc()
	logrus.WithField("conversation_id", id).Debug("created upstream conversation")
	return id, nil
}

// deriveTitle builds the upstream conversation title from the first user
// message: at most 20 runes, ellipsis-suffixed when truncated.
func deriveTitle(seed string) string {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return defaultTitle
	}
	runes := []rune(seed)
	if len(runes) <= titleRuneLimit {
		return seed
	}
	return string(runes[:titleRuneLimit]) + "..."
}
