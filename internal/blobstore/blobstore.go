// Package blobstore is the object store for raw uploads and derived
// artifacts (markdown files, extracted images), backed by bbolt.
package blobstore

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.etcd.io/bbolt"
)

var (
	bucketObjects = []byte("objects")
	bucketMeta    = []byte("object_meta")
)

// Store is a bucketed key/value blob store with stable object names.
type Store struct {
	db            *bbolt.DB
	publicBaseURL string
}

// Open opens (or creates) the blob store at dbPath. publicBaseURL prefixes
// the public URLs handed out for stored objects.
func Open(dbPath, publicBaseURL string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketObjects, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upload stores data under prefix/name and returns the object name.
func (s *Store) Upload(data []byte, prefix, name, contentType string) (string, error) {
	objectName := path.Join(prefix, name)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Put([]byte(objectName), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(objectName), []byte(contentType))
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", objectName, err)
	}
	return objectName, nil
}

// Download returns the raw bytes stored under objectName.
func (s *Store) Download(objectName string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketObjects).Get([]byte(objectName))
		if v == nil {
			return fmt.Errorf("object %s not found", objectName)
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ContentType returns the stored content type for objectName, empty when
// unknown.
func (s *Store) ContentType(objectName string) string {
	var ct string
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get([]byte(objectName)); v != nil {
			ct = string(v)
		}
		return nil
	})
	return ct
}

// UploadDir stores every object in files under prefix, returning the
// public URL of each stored object keyed by its original name. Used for
// the image directories produced by the structuring step.
func (s *Store) UploadDir(files map[string][]byte, prefix string) (map[string]string, error) {
	urls := make(map[string]string, len(files))
	for name, data := range files {
		objectName, err := s.Upload(data, prefix, name, contentTypeForName(name))
		if err != nil {
			return nil, err
		}
		urls[name] = s.PublicURL(objectName)
	}
	return urls, nil
}

// PublicURL returns the public URL for a stored object.
func (s *Store) PublicURL(objectName string) string {
	return s.publicBaseURL + "/" + objectName
}

// PublicBaseURL returns the configured URL prefix.
func (s *Store) PublicBaseURL() string {
	return s.publicBaseURL
}

func contentTypeForName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
