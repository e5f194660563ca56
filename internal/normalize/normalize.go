// Package normalize turns raw store documents into canonical entities.
//
// Stores hand back timestamps as strings, boxed timestamps exposing Time()
// or plain time.Time values. Every representation ends up as a string in
// models.TimeLayout; anything unusable becomes "". Nothing here panics.
package normalize

import (
	"time"

	"blogCPT/internal/docstore"
	"blogCPT/internal/models"
)

// Timestamp renders v in the canonical layout.
func Timestamp(v any) (out string) {
	defer func() {
		// A boxed timestamp with a nil receiver can panic inside Time().
		if recover() != nil {
			out = ""
		}
	}()

	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return format(t)
	case *time.Time:
		if t == nil {
			return ""
		}
		return format(*t)
	case interface{ Time() time.Time }:
		return format(t.Time())
	}
	return ""
}

func format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(models.TimeLayout)
}

// String returns v when it is a string and "" otherwise.
func String(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(models.Category); ok {
		return string(s)
	}
	return ""
}

func Post(doc docstore.Document) models.Post {
	f := doc.Fields
	return models.Post{
		ID:        doc.ID,
		Title:     String(f["title"]),
		Content:   String(f["content"]),
		Author:    String(f["author"]),
		AuthorID:  String(f["authorId"]),
		Category:  models.Category(String(f["category"])),
		ImageURL:  String(f["imageUrl"]),
		CreatedAt: Timestamp(f["createdAt"]),
		UpdatedAt: Timestamp(f["updatedAt"]),
	}
}

func Comment(doc docstore.Document) models.Comment {
	f := doc.Fields
	return models.Comment{
		ID:        doc.ID,
		PostID:    String(f["postId"]),
		Author:    String(f["author"]),
		AuthorID:  String(f["authorId"]),
		Content:   String(f["content"]),
		CreatedAt: Timestamp(f["createdAt"]),
	}
}

func Posts(docs []docstore.Document) []models.Post {
	posts := make([]models.Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, Post(doc))
	}
	return posts
}

func Comments(docs []docstore.Document) []models.Comment {
	comments := make([]models.Comment, 0, len(docs))
	for _, doc := range docs {
		comments = append(comments, Comment(doc))
	}
	return comments
}
