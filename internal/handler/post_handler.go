package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"blogCPT/internal/models"
	"blogCPT/internal/service"
)

const maxPageSize = 50

type PostView struct {
	models.Post
	CreatedAgo string `json:"createdAgo,omitempty"`
	UpdatedAgo string `json:"updatedAgo,omitempty"`
}

type CommentView struct {
	models.Comment
	CreatedAgo string `json:"createdAgo,omitempty"`
}

type PostsGetResponse struct {
	Posts      []PostView `json:"posts"`
	HasMore    bool       `json:"hasMore"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type PostDetailResponse struct {
	Post     PostView      `json:"post"`
	Comments []CommentView `json:"comments"`
	CanEdit  bool          `json:"canEdit"`
}

type ImageResponse struct {
	PostID   string `json:"postId"`
	ImageURL string `json:"imageUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// ago renders a canonical timestamp relative to now. Unparseable input gives "".
func (h *Handlers) ago(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ""
	}
	return humanize.RelTime(t, h.Clock.Now(), "ago", "from now")
}

func (h *Handlers) postView(p models.Post) PostView {
	return PostView{Post: p, CreatedAgo: h.ago(p.CreatedAt), UpdatedAgo: h.ago(p.UpdatedAt)}
}

func (h *Handlers) commentViews(comments []models.Comment) []CommentView {
	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, CommentView{Comment: c, CreatedAgo: h.ago(c.CreatedAt)})
	}
	return views
}

func (h *Handlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, models.Categories, http.StatusOK)
}

func (h *Handlers) GetPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := service.ListPostsRequest{Cursor: q.Get("cursor"), Refresh: forceRefresh(r)}
	if raw := q.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > maxPageSize {
			WriteError(w, fmt.Sprintf("pageSize должен быть от 1 до %d", maxPageSize), http.StatusBadRequest)
			return
		}
		req.PageSize = size
	}
	if raw := q.Get("category"); raw != "" {
		category := models.Category(raw)
		if !category.Valid() {
			WriteError(w, "Неизвестная категория", http.StatusBadRequest)
			return
		}
		req.Category = category
	}

	page, err := h.PostService.ListPosts(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	response := PostsGetResponse{
		Posts:      make([]PostView, 0, len(page.Posts)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
	for _, p := range page.Posts {
		response.Posts = append(response.Posts, h.postView(p))
	}

	writeSuccess(w, response, http.StatusOK)
}

func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]

	detail, err := h.PostService.GetPost(r.Context(), postID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	canEdit := false
	if s := SessionFrom(r.Context()); s != nil {
		canEdit = s.State.Owns(detail.Post.AuthorID)
	}

	writeSuccess(w, PostDetailResponse{
		Post:     h.postView(*detail.Post),
		Comments: h.commentViews(detail.Comments),
		CanEdit:  canEdit,
	}, http.StatusOK)
}

func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		WriteError(w, "Требуется авторизация", http.StatusUnauthorized)
		return
	}

	var req models.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}
	req.AuthorID = user.UID
	req.Author = user.Name()

	if err := h.Validate.Struct(req); err != nil {
		WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	post, err := h.PostService.CreatePost(r.Context(), user, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, h.postView(*post), http.StatusCreated)
}

func (h *Handlers) UpdatePost(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.authorizeOwner(w, r)
	if !ok {
		return
	}

	var req models.UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}
	if req.Empty() {
		WriteError(w, "Нет полей для обновления", http.StatusBadRequest)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.PostService.UpdatePost(r.Context(), postID, req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	detail, err := h.PostService.GetPost(r.Context(), postID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, h.postView(*detail.Post), http.StatusOK)
}

func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.authorizeOwner(w, r)
	if !ok {
		return
	}

	if err := h.PostService.DeletePost(r.Context(), postID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, MessageResponse{Message: "Пост успешно удален"}, http.StatusOK)
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.authorizeOwner(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(h.Cfg.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, fmt.Sprintf("Файл слишком большой (макс. %d MB)",
				h.Cfg.MaxUploadSize/(1024*1024)), http.StatusRequestEntityTooLarge)
		} else {
			WriteError(w, "Ошибка при обработке файла", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		WriteError(w, "Не удалось получить файл", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		WriteError(w, "Неподдерживаемый тип файла. Разрешены: JPEG, PNG, GIF, WebP", http.StatusBadRequest)
		return
	}

	imageURL, err := h.PostService.AttachImage(r.Context(), postID, header.Filename, file, header.Size)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, ImageResponse{
		PostID:   postID,
		ImageURL: imageURL,
		FileName: header.Filename,
		FileSize: header.Size,
		MimeType: contentType,
	}, http.StatusCreated)
}

// authorizeOwner lets the request through only when the signed-in user wrote
// the post named in the path.
func (h *Handlers) authorizeOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	postID := mux.Vars(r)["id"]

	s := SessionFrom(r.Context())
	if s == nil || !s.State.SignedIn() {
		WriteError(w, "Требуется авторизация", http.StatusUnauthorized)
		return "", false
	}

	post, err := h.PostService.FindPost(r.Context(), postID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return "", false
	}

	if !s.State.Owns(post.AuthorID) {
		WriteError(w, "Доступ запрещен", http.StatusForbidden)
		return "", false
	}
	return postID, true
}

func currentUser(r *http.Request) *models.AuthUser {
	s := SessionFrom(r.Context())
	if s == nil {
		return nil
	}
	return s.State.Current()
}
