package task

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/chatpro016-oss/task-dashboard/internal/storage"
)

// Store is the persistence surface the service needs; satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, owner, text string, imageURL *string) (*Task, error)
	GetByID(ctx context.Context, id string) (*Task, error)
	UpdateText(ctx context.Context, id, text string) error
	UpdateTextAndImage(ctx context.Context, id, text string, imageURL *string) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, owner string) ([]Task, error)
	ListAll(ctx context.Context) ([]Task, error)
}

// Admins answers allow-list membership; satisfied by *admin.Repository.
type Admins interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Directory resolves user ids to emails; satisfied by *profile.Repository.
type Directory interface {
	EmailsByUserIDs(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Listing is the result of a list query plus the resolved view.
type Listing struct {
	Scope   Scope       `json:"-"`
	IsAdmin bool        `json:"isAdmin"`
	Tasks   []OwnedTask `json:"tasks"`
}

// Service contains the business logic for task management. Every mutation
// runs the same sequence: validate, upload if needed, persist, then clean up
// any object the committed row no longer references.
type Service struct {
	repo      Store
	store     storage.Storage
	admins    Admins
	directory Directory
	bucket    string
}

// NewService creates a new task Service. bucket must match the bucket the
// storage backend serves public URLs from.
func NewService(repo Store, store storage.Storage, admins Admins, directory Directory, bucket string) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		admins:    admins,
		directory: directory,
		bucket:    bucket,
	}
}

// Create adds a task for actor, uploading the image first when one was sent
// so the row never references a nonexistent object.
func (s *Service) Create(ctx context.Context, actorID, text string, upload *ImageUpload) (*Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Reason: "task text required"}
	}

	var imageURL *string
	if upload != nil {
		url, err := s.uploadImage(ctx, actorID, upload)
		if err != nil {
			return nil, err
		}
		imageURL = &url
	}

	t, err := s.repo.Create(ctx, actorID, text, imageURL)
	if err != nil {
		return nil, &PersistError{Op: "create task", Err: err}
	}
	return t, nil
}

// Update edits a task's text and applies the image action. image_url is only
// written for Replace and Remove; Keep can never clear an existing image.
// The replaced or removed object is deleted only after the row update
// commits, and a cleanup failure is logged rather than surfaced.
func (s *Service) Update(ctx context.Context, actorID, taskID, text string, action ImageAction) (*Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Reason: "task text required"}
	}

	t, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, t.Owner); err != nil {
		return nil, err
	}

	var newImageURL *string
	switch action.Kind {
	case ImageKeep:
		// nothing to do
	case ImageReplace:
		// Scoped to the row owner, not the acting admin.
		url, err := s.uploadImage(ctx, t.Owner, action.Upload)
		if err != nil {
			return nil, err
		}
		newImageURL = &url
	case ImageRemove:
		newImageURL = nil
	}

	if action.Kind == ImageKeep {
		err = s.repo.UpdateText(ctx, taskID, text)
	} else {
		err = s.repo.UpdateTextAndImage(ctx, taskID, text, newImageURL)
	}
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistError{Op: "update task", Err: err}
	}

	if action.Kind != ImageKeep && t.ImageURL != nil {
		s.removeObjectForURL(ctx, t.Owner, *t.ImageURL)
	}

	updated := *t
	updated.Text = text
	if action.Kind != ImageKeep {
		updated.ImageURL = newImageURL
	}
	return &updated, nil
}

// Delete removes a task and its stored image. The object goes first, so a
// reader can never see a deleted row whose object lingers as an orphan.
func (s *Service) Delete(ctx context.Context, actorID, taskID string) error {
	t, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, t.Owner); err != nil {
		return err
	}

	if t.ImageURL != nil {
		s.removeObjectForURL(ctx, t.Owner, *t.ImageURL)
	}

	if err := s.repo.Delete(ctx, taskID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return &PersistError{Op: "delete task", Err: err}
	}
	return nil
}

// List returns tasks for the resolved view. A non-admin asking for ScopeAll
// is silently downgraded to ScopeOwn. The all-tasks view carries owner
// emails resolved in one batch lookup.
func (s *Service) List(ctx context.Context, actorID string, scope Scope) (*Listing, error) {
	isAdmin, err := s.admins.IsAdmin(ctx, actorID)
	if err != nil {
		return nil, &PersistError{Op: "resolve view", Err: err}
	}
	if scope == ScopeAll && !isAdmin {
		scope = ScopeOwn
	}

	var tasks []Task
	if scope == ScopeAll {
		tasks, err = s.repo.ListAll(ctx)
	} else {
		tasks, err = s.repo.ListByOwner(ctx, actorID)
	}
	if err != nil {
		return nil, &PersistError{Op: "list tasks", Err: err}
	}

	listing := &Listing{Scope: scope, IsAdmin: isAdmin, Tasks: make([]OwnedTask, len(tasks))}
	for i, t := range tasks {
		listing.Tasks[i] = OwnedTask{Task: t}
	}

	if scope == ScopeAll {
		emails, err := s.directory.EmailsByUserIDs(ctx, distinctOwners(tasks))
		if err != nil {
			// Labels are decorative; the listing itself already succeeded.
			log.Printf("task: resolve owner emails: %v", err)
			return listing, nil
		}
		for i := range listing.Tasks {
			listing.Tasks[i].OwnerEmail = emails[listing.Tasks[i].Owner]
		}
	}
	return listing, nil
}

// authorize permits the mutation when actor owns the task or is an admin.
func (s *Service) authorize(ctx context.Context, actorID, ownerID string) error {
	if actorID == ownerID {
		return nil
	}
	isAdmin, err := s.admins.IsAdmin(ctx, actorID)
	if err != nil {
		return &PersistError{Op: "check admin", Err: err}
	}
	if !isAdmin {
		return ErrForbidden
	}
	return nil
}

// uploadImage validates the file, streams it to a fresh key under owner's
// namespace, and returns the public URL.
func (s *Service) uploadImage(ctx context.Context, owner string, upload *ImageUpload) (string, error) {
	if err := ValidateImage(upload.ContentType, upload.Size); err != nil {
		return "", err
	}

	key := storage.BuildKey(owner, upload.Filename)
	if err := s.store.Upload(ctx, key, upload.Reader, upload.Size, upload.ContentType); err != nil {
		return "", &StorageError{Op: "upload", Err: err}
	}
	return s.store.PublicURL(key), nil
}

// removeObjectForURL best-effort deletes the object a stored URL points at.
// The key must sit under owner's namespace, so a stale or forged URL cannot
// remove someone else's object. Failures are logged, never escalated: the
// row mutation has already committed.
func (s *Service) removeObjectForURL(ctx context.Context, owner, imageURL string) {
	key, ok := storage.KeyFromPublicURL(imageURL, s.bucket)
	if !ok || !storage.OwnedBy(key, owner) {
		return
	}
	if err := s.store.Remove(ctx, []string{key}); err != nil {
		log.Printf("task: remove object %q: %v", key, err)
	}
}

// distinctOwners returns the unique owner ids in listing order.
func distinctOwners(tasks []Task) []string {
	seen := make(map[string]struct{}, len(tasks))
	owners := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.Owner]; ok {
			continue
		}
		seen[t.Owner] = struct{}{}
		owners = append(owners, t.Owner)
	}
	return owners
}
