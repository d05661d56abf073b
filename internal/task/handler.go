package task

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatpro016-oss/task-dashboard/internal/middleware"
	"github.com/chatpro016-oss/task-dashboard/internal/response"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing;
// larger parts spill to temp files.
const maxMultipartMemory = 8 << 20

// Handler holds HTTP handlers for task endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new task Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List godoc
//
//	@Summary		List tasks
//	@Description	Returns the caller's tasks, newest first. Admins may pass scope=all to see every task with owner emails; non-admins asking for scope=all get their own tasks.
//	@Tags			tasks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			scope	query		string	false	"own or all"
//	@Success		200		{object}	response.Envelope{data=Listing}
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/tasks [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	scope := ParseScope(r.URL.Query().Get("scope"))
	listing, err := h.svc.List(r.Context(), actorID, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, listing)
}

// Create godoc
//
//	@Summary		Add a task
//	@Description	Creates a task from a multipart form: required "text" field, optional "image" file (image/*, max 5MB).
//	@Tags			tasks
//	@Accept			mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			text	formData	string	true	"Task text"
//	@Param			image	formData	file	false	"Image attachment"
//	@Success		201		{object}	response.Envelope{data=Task}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		422		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Router			/tasks [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	upload, err := parseForm(r)
	if err != nil {
		response.BadRequest(w, "invalid form data")
		return
	}
	if upload != nil {
		defer upload.close()
	}

	var img *ImageUpload
	if upload != nil {
		img = &upload.ImageUpload
	}

	t, err := h.svc.Create(r.Context(), actorID, r.FormValue("text"), img)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, t)
}

// Update godoc
//
//	@Summary		Edit a task
//	@Description	Updates a task from a multipart form. Sending an "image" file replaces the attachment, remove_image=1 clears it, and omitting both keeps it as is.
//	@Tags			tasks
//	@Accept			mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id				path		string	true	"Task id"
//	@Param			text			formData	string	true	"Task text"
//	@Param			image			formData	file	false	"Replacement image"
//	@Param			remove_image	formData	string	false	"Set to 1 to remove the image"
//	@Success		200				{object}	response.Envelope{data=Task}
//	@Failure		400				{object}	response.Envelope
//	@Failure		401				{object}	response.Envelope
//	@Failure		403				{object}	response.Envelope
//	@Failure		404				{object}	response.Envelope
//	@Failure		422				{object}	response.Envelope
//	@Failure		502				{object}	response.Envelope
//	@Router			/tasks/{id} [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		response.BadRequest(w, "missing task id")
		return
	}

	upload, err := parseForm(r)
	if err != nil {
		response.BadRequest(w, "invalid form data")
		return
	}
	if upload != nil {
		defer upload.close()
	}

	action := KeepImage()
	switch {
	case upload != nil:
		action = ReplaceImage(&upload.ImageUpload)
	case r.FormValue("remove_image") == "1":
		action = RemoveImage()
	}

	t, err := h.svc.Update(r.Context(), actorID, taskID, r.FormValue("text"), action)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, t)
}

// Delete godoc
//
//	@Summary		Delete a task
//	@Description	Removes the task and its stored image.
//	@Tags			tasks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Task id"
//	@Success		200	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/tasks/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		response.BadRequest(w, "missing task id")
		return
	}

	if err := h.svc.Delete(r.Context(), actorID, taskID); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]bool{"deleted": true})
}

// actor pulls the authenticated user id injected by the auth middleware.
func actor(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(middleware.UserIDKey).(string)
	return id, ok && id != ""
}

// formUpload bundles an ImageUpload with the multipart file it reads from.
type formUpload struct {
	ImageUpload
	file interface{ Close() error }
}

func (f *formUpload) close() { _ = f.file.Close() }

// parseForm reads the request form and returns the image upload when a
// non-empty file part named "image" was sent. Plain form posts without a
// file are fine too.
func parseForm(r *http.Request) (*formUpload, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/") {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, err
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if header.Size == 0 {
		_ = file.Close()
		return nil, nil
	}

	return &formUpload{
		ImageUpload: ImageUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		},
		file: file,
	}, nil
}

// writeError maps service errors to HTTP statuses. Storage and persist
// failures surface their provider message in the envelope.
func writeError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	var sErr *StorageError
	var pErr *PersistError
	switch {
	case errors.As(err, &vErr):
		response.UnprocessableEntity(w, vErr.Reason)
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "task not found")
	case errors.Is(err, ErrForbidden):
		response.Forbidden(w, "not allowed")
	case errors.As(err, &sErr):
		response.BadGateway(w, sErr.Error())
	case errors.As(err, &pErr):
		response.Error(w, http.StatusInternalServerError, pErr.Error())
	default:
		response.InternalError(w)
	}
}
