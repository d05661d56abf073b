package task

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBucket = "task-images"
	testBase   = "http://store.local/" + testBucket
)

type textUpdate struct {
	id   string
	text string
}

type imageUpdate struct {
	id       string
	text     string
	imageURL *string
}

type fakeRepo struct {
	tasks  []Task
	nextID int

	getCalls  int
	listCalls int

	createErr error
	updateErr error
	deleteErr error

	textUpdates  []textUpdate
	imageUpdates []imageUpdate
	deletedIDs   []string
}

func (r *fakeRepo) Create(_ context.Context, owner, text string, imageURL *string) (*Task, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	t := Task{
		ID:        fmt.Sprintf("task-%d", r.nextID),
		Owner:     owner,
		Text:      text,
		ImageURL:  imageURL,
		CreatedAt: time.Now(),
	}
	r.tasks = append(r.tasks, t)
	return &t, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*Task, error) {
	r.getCalls++
	for _, t := range r.tasks {
		if t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) UpdateText(_ context.Context, id, text string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.textUpdates = append(r.textUpdates, textUpdate{id: id, text: text})
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			r.tasks[i].Text = text
			return nil
		}
	}
	return ErrNotFound
}

func (r *fakeRepo) UpdateTextAndImage(_ context.Context, id, text string, imageURL *string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.imageUpdates = append(r.imageUpdates, imageUpdate{id: id, text: text, imageURL: imageURL})
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			r.tasks[i].Text = text
			r.tasks[i].ImageURL = imageURL
			return nil
		}
	}
	return ErrNotFound
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			r.deletedIDs = append(r.deletedIDs, id)
			return nil
		}
	}
	return ErrNotFound
}

func (r *fakeRepo) ListByOwner(_ context.Context, owner string) ([]Task, error) {
	r.listCalls++
	out := []Task{}
	for _, t := range r.tasks {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAll(_ context.Context) ([]Task, error) {
	r.listCalls++
	return append([]Task{}, r.tasks...), nil
}

type uploadCall struct {
	key         string
	contentType string
	size        int64
}

type fakeStorage struct {
	uploads []uploadCall
	removes [][]string

	uploadErr error
	removeErr error
}

func (s *fakeStorage) Upload(_ context.Context, key string, _ io.Reader, size int64, contentType string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads = append(s.uploads, uploadCall{key: key, contentType: contentType, size: size})
	return nil
}

func (s *fakeStorage) Remove(_ context.Context, keys []string) error {
	s.removes = append(s.removes, keys)
	return s.removeErr
}

func (s *fakeStorage) PublicURL(key string) string {
	return testBase + "/" + key
}

type fakeAdmins struct {
	admins map[string]bool
	err    error
}

func (a *fakeAdmins) IsAdmin(_ context.Context, userID string) (bool, error) {
	return a.admins[userID], a.err
}

type fakeDirectory struct {
	emails map[string]string
	calls  [][]string
	err    error
}

func (d *fakeDirectory) EmailsByUserIDs(_ context.Context, userIDs []string) (map[string]string, error) {
	d.calls = append(d.calls, userIDs)
	if d.err != nil {
		return nil, d.err
	}
	return d.emails, nil
}

type fixture struct {
	repo   *fakeRepo
	store  *fakeStorage
	admins *fakeAdmins
	dir    *fakeDirectory
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:   &fakeRepo{},
		store:  &fakeStorage{},
		admins: &fakeAdmins{admins: map[string]bool{}},
		dir:    &fakeDirectory{emails: map[string]string{}},
	}
	f.svc = NewService(f.repo, f.store, f.admins, f.dir, testBucket)
	return f
}

func (f *fixture) seedTask(owner, text string, imageKey string) Task {
	f.repo.nextID++
	t := Task{
		ID:        fmt.Sprintf("task-%d", f.repo.nextID),
		Owner:     owner,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if imageKey != "" {
		url := testBase + "/" + imageKey
		t.ImageURL = &url
	}
	f.repo.tasks = append(f.repo.tasks, t)
	return t
}

func pngUpload(size int64) *ImageUpload {
	return &ImageUpload{
		Filename:    "pic.png",
		ContentType: "image/png",
		Size:        size,
		Reader:      strings.NewReader("pngdata"),
	}
}

func TestCreateWithoutImage(t *testing.T) {
	f := newFixture()

	created, err := f.svc.Create(context.Background(), "u1", "buy milk", nil)
	require.NoError(t, err)
	assert.Nil(t, created.ImageURL)
	assert.Empty(t, f.store.uploads)

	listing, err := f.svc.List(context.Background(), "u1", ScopeOwn)
	require.NoError(t, err)
	require.Len(t, listing.Tasks, 1)
	assert.Equal(t, "buy milk", listing.Tasks[0].Text)
	assert.Nil(t, listing.Tasks[0].ImageURL)
}

func TestCreateUploadsBeforePersist(t *testing.T) {
	f := newFixture()

	created, err := f.svc.Create(context.Background(), "u1", "with pic", pngUpload(1024))
	require.NoError(t, err)
	require.NotNil(t, created.ImageURL)

	require.Len(t, f.store.uploads, 1)
	up := f.store.uploads[0]
	assert.True(t, strings.HasPrefix(up.key, "u1/"))
	assert.Equal(t, "image/png", up.contentType)
	assert.Equal(t, testBase+"/"+up.key, *created.ImageURL)
}

func TestCreateRejectsOversizedImage(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), "u1", "too big", pngUpload(6*1024*1024))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, f.store.uploads, "no object may be uploaded")
	assert.Empty(t, f.repo.tasks, "no row may be created")
}

func TestCreateRejectsEmptyText(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), "u1", "   \t ", pngUpload(10))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, f.store.uploads)
	assert.Empty(t, f.repo.tasks)
}

func TestCreateUploadFailureAbortsPersist(t *testing.T) {
	f := newFixture()
	f.store.uploadErr = fmt.Errorf("bucket unreachable")

	_, err := f.svc.Create(context.Background(), "u1", "text", pngUpload(10))

	var sErr *StorageError
	require.ErrorAs(t, err, &sErr)
	assert.Empty(t, f.repo.tasks)
}

func TestUpdateKeepNeverTouchesImage(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "old text", "u1/existing.jpg")

	updated, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new text", KeepImage())
	require.NoError(t, err)

	assert.Equal(t, *seeded.ImageURL, *updated.ImageURL)
	assert.Len(t, f.repo.textUpdates, 1)
	assert.Empty(t, f.repo.imageUpdates, "keep must not write image_url")
	assert.Empty(t, f.store.removes, "keep must not delete the object")
}

func TestUpdateKeepOnImagelessTask(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "old", "")

	updated, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new", KeepImage())
	require.NoError(t, err)
	assert.Nil(t, updated.ImageURL)
	assert.Empty(t, f.store.removes)
}

func TestUpdateRemoveClearsAndDeletesOld(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "old", "u1/existing.jpg")

	updated, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new", RemoveImage())
	require.NoError(t, err)

	assert.Nil(t, updated.ImageURL)
	require.Len(t, f.repo.imageUpdates, 1)
	assert.Nil(t, f.repo.imageUpdates[0].imageURL)

	require.Len(t, f.store.removes, 1)
	assert.Equal(t, []string{"u1/existing.jpg"}, f.store.removes[0])
}

func TestUpdateRemoveWithoutPriorImage(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "old", "")

	_, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new", RemoveImage())
	require.NoError(t, err)
	assert.Empty(t, f.store.removes, "nothing to clean up")
}

func TestUpdateReplaceDeletesOldKeyExactlyOnce(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "old", "u1/old-object.jpg")

	updated, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new", ReplaceImage(pngUpload(100)))
	require.NoError(t, err)

	require.Len(t, f.store.uploads, 1)
	newKey := f.store.uploads[0].key
	assert.NotEqual(t, "u1/old-object.jpg", newKey)
	assert.True(t, strings.HasPrefix(newKey, "u1/"))
	require.NotNil(t, updated.ImageURL)
	assert.Equal(t, testBase+"/"+newKey, *updated.ImageURL)

	require.Len(t, f.store.removes, 1, "old key deleted exactly once")
	assert.Equal(t, []string{"u1/old-object.jpg"}, f.store.removes[0])
}

func TestUpdateReplaceByAdminScopesKeyToOwner(t *testing.T) {
	f := newFixture()
	f.admins.admins["a1"] = true
	seeded := f.seedTask("u1", "old", "u1/old.jpg")

	_, err := f.svc.Update(context.Background(), "a1", seeded.ID, "moderated", ReplaceImage(pngUpload(50)))
	require.NoError(t, err)

	require.Len(t, f.store.uploads, 1)
	assert.True(t, strings.HasPrefix(f.store.uploads[0].key, "u1/"),
		"upload must live under the owner, not the acting admin")
}

func TestUpdateEmptyTextMakesNoExternalCalls(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "old", "u1/img.jpg")

	_, err := f.svc.Update(context.Background(), "u1", seeded.ID, "  ", ReplaceImage(pngUpload(10)))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, f.repo.getCalls)
	assert.Empty(t, f.store.uploads)
	assert.Empty(t, f.repo.textUpdates)
	assert.Empty(t, f.repo.imageUpdates)
}

func TestUpdateForbiddenForStranger(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "old", "")

	_, err := f.svc.Update(context.Background(), "u2", seeded.ID, "hijack", ReplaceImage(pngUpload(10)))
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.store.uploads)
	assert.Empty(t, f.repo.imageUpdates)
}

func TestUpdateNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Update(context.Background(), "u1", "missing", "text", KeepImage())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUploadFailureAbortsPersist(t *testing.T) {
	f := newFixture()
	f.store.uploadErr = fmt.Errorf("timeout")
	seeded := f.seedTask("u1", "old", "u1/old.jpg")

	_, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new", ReplaceImage(pngUpload(10)))

	var sErr *StorageError
	require.ErrorAs(t, err, &sErr)
	assert.Empty(t, f.repo.imageUpdates, "persist must not run after a failed upload")
	assert.Empty(t, f.store.removes, "old object must survive a failed replace")
}

func TestUpdatePersistFailureSkipsCleanup(t *testing.T) {
	f := newFixture()
	f.repo.updateErr = fmt.Errorf("connection reset")
	seeded := f.seedTask("u1", "old", "u1/old.jpg")

	_, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new", RemoveImage())

	var pErr *PersistError
	require.ErrorAs(t, err, &pErr)
	assert.Empty(t, f.store.removes, "still-referenced object must not be deleted")
}

func TestUpdateCleanupFailureNotSurfaced(t *testing.T) {
	f := newFixture()
	f.store.removeErr = fmt.Errorf("object store down")
	seeded := f.seedTask("u1", "old", "u1/old.jpg")

	updated, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new", RemoveImage())
	require.NoError(t, err, "cleanup failure must not be reported")
	assert.Nil(t, updated.ImageURL)
}

func TestUpdateSkipsForeignKeyedObject(t *testing.T) {
	f := newFixture()
	// Stored URL points into another owner's namespace; the guard must refuse.
	seeded := f.seedTask("u1", "old", "u2/stolen.jpg")

	_, err := f.svc.Update(context.Background(), "u1", seeded.ID, "new", RemoveImage())
	require.NoError(t, err)
	assert.Empty(t, f.store.removes)
}

func TestDeleteRemovesRowAndObject(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "old", "u1/img.jpg")

	require.NoError(t, f.svc.Delete(context.Background(), "u1", seeded.ID))

	assert.Equal(t, []string{seeded.ID}, f.repo.deletedIDs)
	require.Len(t, f.store.removes, 1)
	assert.Equal(t, []string{"u1/img.jpg"}, f.store.removes[0])
}

func TestAdminDeletesOtherOwnersTask(t *testing.T) {
	f := newFixture()
	f.admins.admins["a1"] = true
	seeded := f.seedTask("u1", "owned by u1", "u1/img.jpg")

	require.NoError(t, f.svc.Delete(context.Background(), "a1", seeded.ID))

	require.Len(t, f.store.removes, 1)
	assert.Equal(t, []string{"u1/img.jpg"}, f.store.removes[0])

	listing, err := f.svc.List(context.Background(), "u1", ScopeOwn)
	require.NoError(t, err)
	assert.Empty(t, listing.Tasks)
}

func TestDeleteForbiddenForStranger(t *testing.T) {
	f := newFixture()
	seeded := f.seedTask("u1", "text", "u1/img.jpg")

	err := f.svc.Delete(context.Background(), "u2", seeded.ID)
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.store.removes)
	assert.Empty(t, f.repo.deletedIDs)
}

func TestListNonAdminAllCoercedToOwn(t *testing.T) {
	f := newFixture()
	f.seedTask("u1", "one", "")
	f.seedTask("u2", "two", "")

	listing, err := f.svc.List(context.Background(), "u2", ScopeAll)
	require.NoError(t, err)

	assert.Equal(t, ScopeOwn, listing.Scope)
	assert.False(t, listing.IsAdmin)
	require.Len(t, listing.Tasks, 1)
	assert.Equal(t, "u2", listing.Tasks[0].Owner)
	assert.Empty(t, f.dir.calls, "own scope must not hit the directory")
}

func TestListAdminAllBatchResolvesEmails(t *testing.T) {
	f := newFixture()
	f.admins.admins["a1"] = true
	f.dir.emails = map[string]string{"u1": "u1@example.com", "u2": "u2@example.com"}
	f.seedTask("u1", "one", "")
	f.seedTask("u2", "two", "")
	f.seedTask("u1", "three", "")

	listing, err := f.svc.List(context.Background(), "a1", ScopeAll)
	require.NoError(t, err)

	assert.Equal(t, ScopeAll, listing.Scope)
	assert.True(t, listing.IsAdmin)
	require.Len(t, listing.Tasks, 3)

	require.Len(t, f.dir.calls, 1, "one lookup for the whole page")
	assert.ElementsMatch(t, []string{"u1", "u2"}, f.dir.calls[0])

	for _, ot := range listing.Tasks {
		assert.Equal(t, f.dir.emails[ot.Owner], ot.OwnerEmail)
	}
}

func TestListDirectoryFailureStillReturnsTasks(t *testing.T) {
	f := newFixture()
	f.admins.admins["a1"] = true
	f.dir.err = fmt.Errorf("profiles unavailable")
	f.seedTask("u1", "one", "")

	listing, err := f.svc.List(context.Background(), "a1", ScopeAll)
	require.NoError(t, err)
	require.Len(t, listing.Tasks, 1)
	assert.Empty(t, listing.Tasks[0].OwnerEmail)
}
