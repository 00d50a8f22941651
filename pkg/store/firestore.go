package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on Cloud Firestore. Each session is one
// document; the message log lives inside the document, so a replace is a
// single document write and Firestore transactions give the compare-and-swap
// the compactor needs.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	mu         sync.RWMutex
	closed     bool
}

// FirestoreConfig holds Firestore connection configuration.
type FirestoreConfig struct {
	// ProjectID is the GCP project (required).
	ProjectID string
	// Collection is the sessions collection name (default: "sessions").
	Collection string
	// CredentialsFile is an optional service-account key path; omitted means
	// application default credentials.
	CredentialsFile string
}

// NewFirestoreStore connects to Firestore.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "sessions"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	return &FirestoreStore{client: client, collection: collection}, nil
}

func (f *FirestoreStore) doc(threadID string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(threadID)
}

func (f *FirestoreStore) checkOpen() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrStoreClosed
	}
	return nil
}

// FindByThreadID retrieves a session by thread id.
func (f *FirestoreStore) FindByThreadID(ctx context.Context, threadID string) (*Session, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	snap, err := f.doc(threadID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := snap.DataTo(&sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Messages == nil {
		sess.Messages = []Message{}
	}
	return &sess, nil
}

// Insert creates a new session document.
func (f *FirestoreStore) Insert(ctx context.Context, sess *Session) error {
	if err := f.checkOpen(); err != nil {
		return err
	}

	_, err := f.doc(sess.ThreadID).Create(ctx, sess)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AppendMessages appends messages and bumps the version inside a
// transaction.
func (f *FirestoreStore) AppendMessages(ctx context.Context, threadID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := f.checkOpen(); err != nil {
		return err
	}

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(f.doc(threadID))
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrSessionNotFound
			}
			return err
		}

		var sess Session
		if err := snap.DataTo(&sess); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}

		sess.Messages = append(sess.Messages, msgs...)
		sess.Version++
		sess.UpdatedAt = time.Now().UTC()
		return tx.Set(f.doc(threadID), &sess)
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("append messages: %w", err)
	}
	return nil
}

// ReplaceMessages swaps the message log if the stored version matches.
func (f *FirestoreStore) ReplaceMessages(ctx context.Context, threadID string, fromVersion int64, msgs []Message, summarized bool) error {
	if err := f.checkOpen(); err != nil {
		return err
	}

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(f.doc(threadID))
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrSessionNotFound
			}
			return err
		}

		var sess Session
		if err := snap.DataTo(&sess); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if sess.Version != fromVersion {
			return ErrVersionConflict
		}

		sess.Messages = make([]Message, len(msgs))
		copy(sess.Messages, msgs)
		sess.Summarized = summarized
		sess.Version++
		sess.UpdatedAt = time.Now().UTC()
		return tx.Set(f.doc(threadID), &sess)
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("replace messages: %w", err)
	}
	return nil
}

// SetTitle updates the session title.
func (f *FirestoreStore) SetTitle(ctx context.Context, threadID, title string) error {
	if err := f.checkOpen(); err != nil {
		return err
	}

	_, err := f.doc(threadID).Update(ctx, []firestore.Update{
		{Path: "title", Value: title},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrSessionNotFound
		}
		return fmt.Errorf("set title: %w", err)
	}
	return nil
}

// ListSummaries returns thread ids and titles for every session document.
func (f *FirestoreStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	iter := f.client.Collection(f.collection).Select("threadId", "title").Documents(ctx)
	defer iter.Stop()

	var out []Summary
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}

		data := snap.Data()
		summary := Summary{}
		if id, ok := data["threadId"].(string); ok {
			summary.ThreadID = id
		}
		if title, ok := data["title"].(string); ok {
			summary.Title = title
		}
		out = append(out, summary)
	}
	return out, nil
}

// Close releases the Firestore client.
func (f *FirestoreStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.client.Close()
}
