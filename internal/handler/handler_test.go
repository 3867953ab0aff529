package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/item-atlas/internal/auth"
	"github.com/sakif/item-atlas/internal/cache"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository/sqlite"
	"github.com/sakif/item-atlas/internal/service"
)

// testEnv is the full service stack over an in-memory SQLite database.
type testEnv struct {
	db     *sqlite.DB
	tokens *auth.TokenService
	auth   *service.AuthService
	items  *ItemHandler
	users  *UserHandler
	logger *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	counts := cache.Nop{}

	itemService := service.NewItemService(db.Items(), counts, logger)
	likeService := service.NewLikeService(db.Items(), db.Likes(), counts, nil, logger)

	return &testEnv{
		db:     db,
		tokens: tokens,
		auth:   service.NewAuthService(db.Users(), tokens, nil, logger),
		items:  NewItemHandler(itemService, likeService, logger),
		users:  NewUserHandler(service.NewUserService(db.Users(), logger), logger),
		logger: logger,
	}
}

// addUser stores a user with role and returns its session.
func (e *testEnv) addUser(t *testing.T, externalID string, role model.Role) *model.Session {
	t.Helper()
	u := &model.User{
		ExternalID:  externalID,
		Provider:    auth.ProviderDiscord,
		DisplayName: "user-" + externalID,
		Role:        role,
	}
	require.NoError(t, e.db.Users().Create(context.Background(), u))
	return &model.Session{UserID: u.ID, Role: role, DisplayName: u.DisplayName}
}

// addItem stores an item by session's user.
func (e *testEnv) addItem(t *testing.T, author *model.Session, public bool) string {
	t.Helper()
	item := &model.Item{
		AuthorID:    &author.UserID,
		Location:    "Old Mill",
		Description: "under the plank",
		GameVersion: "1.2",
		ShardID:     "eu-1",
		IsPublic:    public,
	}
	require.NoError(t, e.db.Items().Create(context.Background(), item))
	return item.ID
}

// withSession is a test middleware standing in for auth.OptionalAuth.
func withSession(s *model.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s != nil {
				r = r.WithContext(auth.WithSession(r.Context(), s))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// serve routes one request through a chi router that knows only pattern.
// body is JSON-encoded unless it is nil or already a string.
func serve(t *testing.T, method, pattern, path string, h http.HandlerFunc, s *model.Session, body any) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.With(withSession(s)).Method(method, pattern, h)

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}
