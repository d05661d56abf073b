// Package task implements task CRUD with optional image attachments stored
// in an object store.
package task

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Task is a single to-do item owned by one user.
type Task struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Text      string    `json:"text"`
	ImageURL  *string   `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// OwnedTask is a task annotated with its owner's email for the admin view.
type OwnedTask struct {
	Task
	OwnerEmail string `json:"ownerEmail,omitempty"`
}

// Scope selects whose tasks a listing returns.
type Scope int

const (
	// ScopeOwn lists only the caller's tasks.
	ScopeOwn Scope = iota
	// ScopeAll lists every task; admin-only, coerced to ScopeOwn otherwise.
	ScopeAll
)

// ParseScope maps the query-string value to a Scope. Anything other than
// "all" means own.
func ParseScope(s string) Scope {
	if s == "all" {
		return ScopeAll
	}
	return ScopeOwn
}

// ImageUpload carries a file selected for upload.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ImageActionKind discriminates the three image-edit cases.
type ImageActionKind int

const (
	// ImageKeep leaves the stored image untouched.
	ImageKeep ImageActionKind = iota
	// ImageReplace uploads a new image and drops the old one.
	ImageReplace
	// ImageRemove drops the stored image without a replacement.
	ImageRemove
)

// ImageAction is the tagged image-edit variant threaded through updates.
// Upload is non-nil exactly when Kind is ImageReplace.
type ImageAction struct {
	Kind   ImageActionKind
	Upload *ImageUpload
}

// KeepImage returns the no-op image action.
func KeepImage() ImageAction { return ImageAction{Kind: ImageKeep} }

// ReplaceImage returns an action that swaps in the uploaded file.
func ReplaceImage(u *ImageUpload) ImageAction {
	return ImageAction{Kind: ImageReplace, Upload: u}
}

// RemoveImage returns an action that clears the stored image.
func RemoveImage() ImageAction { return ImageAction{Kind: ImageRemove} }

// ErrNotFound is returned when the referenced task does not exist.
var ErrNotFound = errors.New("task not found")

// ErrForbidden is returned when the actor is neither the owner nor an admin.
var ErrForbidden = errors.New("not allowed to modify this task")

// ValidationError reports bad input caught before any external call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StorageError wraps a failure from the object store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// PersistError wraps a failure from the database.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }
