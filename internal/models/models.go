package models

// TimeLayout is the canonical ISO-8601 form used for every timestamp field.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Collection names in the document store.
const (
	CollectionPosts    = "posts"
	CollectionComments = "comments"
)

// AnonymousAuthor is the display name used for comments left while signed out.
const AnonymousAuthor = "anonymous"

type Category string

const (
	CategoryNature Category = "nature"
	CategoryFood   Category = "food"
	CategoryTravel Category = "travel"
)

var Categories = []Category{CategoryNature, CategoryFood, CategoryTravel}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Post struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Author    string   `json:"author"`
	AuthorID  string   `json:"authorId"`
	Category  Category `json:"category"`
	ImageURL  string   `json:"imageUrl,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

type Comment struct {
	ID        string `json:"id"`
	PostID    string `json:"postId"`
	Author    string `json:"author"`
	AuthorID  string `json:"authorId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

type AuthUser struct {
	UID         string  `json:"uid"`
	DisplayName *string `json:"displayName"`
	Email       *string `json:"email"`
	PhotoURL    *string `json:"photoURL"`
}

// Equal reports whether both identities carry the same payload. Two nil users are equal.
func (u *AuthUser) Equal(other *AuthUser) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.UID == other.UID &&
		equalStringPtr(u.DisplayName, other.DisplayName) &&
		equalStringPtr(u.Email, other.Email) &&
		equalStringPtr(u.PhotoURL, other.PhotoURL)
}

// Name returns the display name, or the email when no name is set.
func (u *AuthUser) Name() string {
	if u == nil {
		return AnonymousAuthor
	}
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	if u.Email != nil && *u.Email != "" {
		return *u.Email
	}
	return AnonymousAuthor
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type PostsPage struct {
	Posts      []Post `json:"posts"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type CreatePostRequest struct {
	Title    string   `json:"title" validate:"required,max=200"`
	Content  string   `json:"content" validate:"required"`
	Author   string   `json:"author"`
	AuthorID string   `json:"authorId" validate:"required"`
	Category Category `json:"category" validate:"required,oneof=nature food travel"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// UpdatePostRequest is a partial update: nil fields are left untouched.
type UpdatePostRequest struct {
	Title    *string   `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Content  *string   `json:"content,omitempty" validate:"omitempty,min=1"`
	Category *Category `json:"category,omitempty" validate:"omitempty,oneof=nature food travel"`
	ImageURL *string   `json:"imageUrl,omitempty"`
}

func (r UpdatePostRequest) Empty() bool {
	return r.Title == nil && r.Content == nil && r.Category == nil && r.ImageURL == nil
}

type CreateCommentRequest struct {
	PostID   string `json:"postId" validate:"required"`
	Author   string `json:"author"`
	AuthorID string `json:"authorId"`
	Content  string `json:"content" validate:"required,max=2000"`
}
