package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type CreateCommentBody struct {
	Content string `json:"content" validate:"required,max=2000"`
}

func (h *Handlers) GetComments(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]

	comments, err := h.CommentService.ListComments(r.Context(), postID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, h.commentViews(comments), http.StatusOK)
}

// CreateComment is open to everyone; signed-out visitors comment as anonymous.
func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]

	var body CreateCommentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}
	if err := h.Validate.Struct(body); err != nil {
		WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	comment, err := h.CommentService.AddComment(r.Context(), postID, currentUser(r), body.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, CommentView{Comment: *comment, CreatedAgo: h.ago(comment.CreatedAt)}, http.StatusCreated)
}
