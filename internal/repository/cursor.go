package repository

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"blogCPT/internal/docstore"
	"blogCPT/internal/models"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor builds the opaque marker for the page that follows post.
func EncodeCursor(post models.Post) string {
	return base64.RawURLEncoding.EncodeToString([]byte(post.CreatedAt + "|" + post.ID))
}

// DecodeCursor reverses EncodeCursor into a store cursor on createdAt. An
// empty createdAt stands for a post stored without one and decodes to a nil
// cursor value.
func DecodeCursor(cursor string) (docstore.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return docstore.Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return docstore.Cursor{}, fmt.Errorf("%w: malformed", ErrInvalidCursor)
	}

	if createdAt == "" {
		return docstore.Cursor{Value: nil, ID: id}, nil
	}

	at, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return docstore.Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	return docstore.Cursor{Value: at, ID: id}, nil
}
