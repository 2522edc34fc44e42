// Package history persists per-user conversation turns, replayed into
// prompts by the chat service.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketHistory = []byte("chat_history")

// Message is one role-tagged conversation turn.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage stamps a turn with the current time.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
	}
}

// Store keeps one ordered message list per user identity.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the history store at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored turns for a user, oldest first. A user with no
// history yields an empty slice.
func (s *Store) Get(userID string) ([]Message, error) {
	var msgs []Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketHistory).Get([]byte(userID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &msgs)
	})
	if err != nil {
		return nil, fmt.Errorf("reading history for %s: %w", userID, err)
	}
	return msgs, nil
}

// Put replaces a user's history with msgs, keeping at most limit trailing
// turns (limit <= 0 keeps everything).
func (s *Store) Put(userID string, msgs []Message, limit int) error {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding history for %s: %w", userID, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHistory).Put([]byte(userID), data)
	})
	if err != nil {
		return fmt.Errorf("writing history for %s: %w", userID, err)
	}
	return nil
}
