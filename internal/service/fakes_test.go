package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// The fakes below are in-memory implementations of the repository
// interfaces. They reproduce the constraint behaviour of the SQLite tables
// (unique keys, foreign keys) closely enough for the service rules to be
// tested without a database.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- users ----

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	// set to a non-nil error to simulate a database failure
	lookupErr error
	createErr error
	updateErr error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

// add stores u as-is (ID included) and returns it.
func (f *fakeUserRepo) add(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := u
	f.users[u.ID] = &copied
	return &u
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Provider == user.Provider && u.ExternalID == user.ExternalID {
			return apperror.Conflict("user", user.ExternalID)
		}
		if u.Email != nil && user.Email != nil && *u.Email == *user.Email {
			return apperror.Conflict("user", *user.Email)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	if user.Role == "" {
		user.Role = model.RoleContributor
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByExternalID(_ context.Context, provider, externalID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, u := range f.users {
		if u.Provider == provider && u.ExternalID == externalID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", externalID)
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, u := range f.users {
		if u.Email != nil && *u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	u.ExternalID = user.ExternalID
	u.Provider = user.Provider
	u.DisplayName = user.DisplayName
	u.AvatarURL = user.AvatarURL
	u.Discriminator = user.Discriminator
	u.Email = user.Email
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeUserRepo) SetRole(_ context.Context, id string, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Role = role
	return nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- items and likes ----

type likeKey struct{ userID, itemID string }

// fakeStore backs both the item and the like fakes, so that likes can check
// "foreign keys" and deletes can cascade.
type fakeStore struct {
	mu     sync.Mutex
	items  map[string]*model.Item
	likes  map[likeKey]bool
	nextID int

	// calls counts every ledger mutation attempt (insert or delete).
	calls int

	// lastList is the options of the most recent List call.
	lastList repository.ListOptions
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items: make(map[string]*model.Item),
		likes: make(map[likeKey]bool),
	}
}

func (s *fakeStore) Items() *fakeItemRepo { return &fakeItemRepo{s} }
func (s *fakeStore) Likes() *fakeLikeRepo { return &fakeLikeRepo{s} }

// addItem stores a public or pending item by authorID and returns its id.
func (s *fakeStore) addItem(authorID string, public bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("item-%d", s.nextID)
	author := authorID
	s.items[id] = &model.Item{
		ID:          id,
		AuthorID:    &author,
		Location:    "somewhere",
		Description: "something",
		GameVersion: "1.0",
		ShardID:     "eu-1",
		IsPublic:    public,
		CreatedAt:   time.Now().UTC(),
	}
	return id
}

func (s *fakeStore) likeCount(itemID string) int {
	n := 0
	for k := range s.likes {
		if k.itemID == itemID {
			n++
		}
	}
	return n
}

func (s *fakeStore) ledgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.likes)
}

func (s *fakeStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeItemRepo struct{ s *fakeStore }

var _ repository.ItemRepository = (*fakeItemRepo)(nil)

func (r *fakeItemRepo) Create(_ context.Context, item *model.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextID++
	item.ID = fmt.Sprintf("item-%d", r.s.nextID)
	item.CreatedAt = time.Now().UTC()
	copied := *item
	r.s.items[item.ID] = &copied
	return nil
}

func (r *fakeItemRepo) GetByID(_ context.Context, id string) (*model.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return nil, apperror.NotFound("item", id)
	}
	copied := *it
	return &copied, nil
}

func (r *fakeItemRepo) GetView(_ context.Context, id, viewerID string) (*model.ItemView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return nil, apperror.NotFound("item", id)
	}
	return &model.ItemView{
		Item:      *it,
		LikeCount: r.s.likeCount(id),
		HasLiked:  r.s.likes[likeKey{viewerID, id}],
	}, nil
}

func (r *fakeItemRepo) List(_ context.Context, opts repository.ListOptions) ([]model.ItemView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lastList = opts
	out := []model.ItemView{}
	for _, it := range r.s.items {
		out = append(out, model.ItemView{Item: *it, LikeCount: r.s.likeCount(it.ID)})
	}
	return out, nil
}

func (r *fakeItemRepo) Filters(_ context.Context) (*model.Filters, error) {
	return &model.Filters{GameVersions: []string{"1.0"}, Shards: map[string][]string{"1.0": {"eu-1"}}}, nil
}

func (r *fakeItemRepo) DeleteWithLikes(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[id]; !ok {
		return apperror.NotFound("item", id)
	}
	for k := range r.s.likes {
		if k.itemID == id {
			delete(r.s.likes, k)
		}
	}
	delete(r.s.items, id)
	return nil
}

type fakeLikeRepo struct{ s *fakeStore }

var _ repository.LikeRepository = (*fakeLikeRepo)(nil)

func (r *fakeLikeRepo) Insert(_ context.Context, userID, itemID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	if _, ok := r.s.items[itemID]; !ok {
		return apperror.NotFound("item", itemID)
	}
	k := likeKey{userID, itemID}
	if r.s.likes[k] {
		return apperror.Conflict("item", itemID)
	}
	r.s.likes[k] = true
	return nil
}

func (r *fakeLikeRepo) Delete(_ context.Context, userID, itemID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	delete(r.s.likes, likeKey{userID, itemID})
	return nil
}

func (r *fakeLikeRepo) Exists(_ context.Context, userID, itemID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.likes[likeKey{userID, itemID}], nil
}

func (r *fakeLikeRepo) Count(_ context.Context, itemID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.likeCount(itemID), nil
}

// ---- like-count cache ----

// fakeCounts is a map-backed cache.LikeCounts with the same generation rule
// as cache.Redis. getErr simulates an outage.
type fakeCounts struct {
	mu          sync.Mutex
	values      map[string]int
	gens        map[string]int64
	getErr      error
	invalidated []string
	dropped     int // Sets refused because the generation moved
}

func newFakeCounts() *fakeCounts {
	return &fakeCounts{values: make(map[string]int), gens: make(map[string]int64)}
}

func (c *fakeCounts) Get(_ context.Context, itemID string) (int, bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return 0, false, 0, c.getErr
	}
	n, ok := c.values[itemID]
	return n, ok, c.gens[itemID], nil
}

func (c *fakeCounts) Set(_ context.Context, itemID string, count int, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[itemID] != gen {
		c.dropped++
		return nil
	}
	c.values[itemID] = count
	return nil
}

func (c *fakeCounts) Invalidate(_ context.Context, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[itemID]++
	delete(c.values, itemID)
	c.invalidated = append(c.invalidated, itemID)
	return nil
}

// ---- sessions ----

func sessionFor(userID string, role model.Role) *model.Session {
	return &model.Session{UserID: userID, Role: role}
}
