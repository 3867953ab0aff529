package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository"
)

var _ repository.ItemRepository = (*ItemDB)(nil)

// ItemDB is the items table.
type ItemDB struct {
	conn *sql.DB
}

const itemColumns = `i.id, i.author_id, i.location, i.description, i.game_version, i.shard_id,
	i.image_path, i.preview_image_path, i.is_public, i.created_at`

// viewSelect joins an item with its author and derives the like data.
//
// DERIVED LIKE COUNT:
// There is no counter column. like_count is COUNT(*) over the likes table at
// read time, so it can never drift from the ledger. has_liked needs the viewer
// id as its first bind parameter; an empty viewer never matches a row.
const viewSelect = `SELECT ` + itemColumns + `,
	COALESCE(u.display_name, ''), COALESCE(u.avatar_url, ''),
	(SELECT COUNT(*) FROM likes l WHERE l.item_id = i.id) AS like_count,
	EXISTS (SELECT 1 FROM likes l WHERE l.item_id = i.id AND l.user_id = ?) AS has_liked
	FROM items i
	LEFT JOIN users u ON u.id = i.author_id`

func scanItem(s rowScanner) (*model.Item, error) {
	var it model.Item
	err := s.Scan(
		&it.ID, &it.AuthorID, &it.Location, &it.Description, &it.GameVersion, &it.ShardID,
		&it.ImagePath, &it.PreviewImagePath, &it.IsPublic, &it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanItemView(s rowScanner) (*model.ItemView, error) {
	var v model.ItemView
	err := s.Scan(
		&v.ID, &v.AuthorID, &v.Location, &v.Description, &v.GameVersion, &v.ShardID,
		&v.ImagePath, &v.PreviewImagePath, &v.IsPublic, &v.CreatedAt,
		&v.AuthorName, &v.AuthorAvatarURL, &v.LikeCount, &v.HasLiked,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a new item. ID and CreatedAt are filled in on the caller's
// struct; a CreatedAt that is already set is kept (imports, tests).
func (r *ItemDB) Create(ctx context.Context, item *model.Item) error {
	item.ID = xid.New().String()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO items (id, author_id, location, description, game_version, shard_id,
		                    image_path, preview_image_path, is_public, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.AuthorID,
		item.Location,
		item.Description,
		item.GameVersion,
		item.ShardID,
		item.ImagePath,
		item.PreviewImagePath,
		boolToInt(item.IsPublic),
		item.CreatedAt,
	)
	if err != nil {
		// author_id points at a user that is not in the directory
		if mapped := mapConstraintError(err, "user", derefOr(item.AuthorID, "")); mapped != err {
			return mapped
		}
		return fmt.Errorf("sqlite: creating item: %w", err)
	}

	return nil
}

// GetByID retrieves a bare item; used for ownership checks before a delete.
func (r *ItemDB) GetByID(ctx context.Context, id string) (*model.Item, error) {
	item, err := scanItem(r.conn.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("item", id)
		}
		return nil, fmt.Errorf("sqlite: getting item %s: %w", id, err)
	}
	return item, nil
}

// GetView retrieves one item with author data and like information for viewerID.
func (r *ItemDB) GetView(ctx context.Context, id, viewerID string) (*model.ItemView, error) {
	view, err := scanItemView(r.conn.QueryRowContext(ctx,
		viewSelect+` WHERE i.id = ?`, viewerID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("item", id)
		}
		return nil, fmt.Errorf("sqlite: getting item view %s: %w", id, err)
	}
	return view, nil
}

// List returns items matching opts, joined with author and like data.
//
// ORDERING:
//   - recent:   created_at DESC
//   - favorite: like_count DESC, then created_at DESC for ties
//
// id DESC is the last key in both so pages never shuffle between requests.
//
// VISIBILITY:
// Public items are listed to everyone. Pending (non-public) items are listed
// only to their author and to administrators.
func (r *ItemDB) List(ctx context.Context, opts repository.ListOptions) ([]model.ItemView, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = repository.DefaultLimit
	}
	if limit > repository.MaxLimit {
		limit = repository.MaxLimit
	}
	offset := max(opts.Offset, 0)

	var where []string
	args := []any{opts.ViewerID}

	if opts.GameVersion != "" {
		where = append(where, "i.game_version = ?")
		args = append(args, opts.GameVersion)
	}
	if opts.ShardID != "" {
		where = append(where, "i.shard_id = ?")
		args = append(args, opts.ShardID)
	}
	if !opts.ViewerIsAdmin {
		if opts.ViewerID != "" {
			where = append(where, "(i.is_public = 1 OR i.author_id = ?)")
			args = append(args, opts.ViewerID)
		} else {
			where = append(where, "i.is_public = 1")
		}
	}

	query := viewSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy(opts.Sort) + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items: %w", err)
	}
	defer rows.Close()

	items := make([]model.ItemView, 0, limit)
	for rows.Next() {
		v, err := scanItemView(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning item row: %w", err)
		}
		items = append(items, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating items: %w", err)
	}

	return items, nil
}

// orderBy maps a sort option onto a fixed ORDER BY clause. Only these
// constant strings ever reach the query text.
func orderBy(sort string) string {
	if sort == repository.SortFavorite {
		return "like_count DESC, i.created_at DESC, i.id DESC"
	}
	return "i.created_at DESC, i.id DESC"
}

// Filters returns every game version and the shards seen for each.
func (r *ItemDB) Filters(ctx context.Context) (*model.Filters, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT DISTINCT game_version, shard_id FROM items
		 ORDER BY game_version ASC, shard_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing item filters: %w", err)
	}
	defer rows.Close()

	f := &model.Filters{
		GameVersions: make([]string, 0),
		Shards:       make(map[string][]string),
	}
	for rows.Next() {
		var version, shard string
		if err := rows.Scan(&version, &shard); err != nil {
			return nil, fmt.Errorf("sqlite: scanning filter row: %w", err)
		}
		if _, seen := f.Shards[version]; !seen {
			f.GameVersions = append(f.GameVersions, version)
		}
		f.Shards[version] = append(f.Shards[version], shard)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating filters: %w", err)
	}

	return f, nil
}

// DeleteWithLikes removes an item and all of its likes atomically.
//
// Both deletes run in one transaction: either the item and every like
// pointing at it are gone, or nothing changed. The ON DELETE CASCADE on
// likes.item_id covers the same ground at the storage level.
//
// A concurrent delete that got there first leaves 0 rows to remove; that is
// reported as apperror.ErrNotFound and the (empty) transaction is rolled back.
func (r *ItemDB) DeleteWithLikes(ctx context.Context, id string) error {
	return withTx(ctx, r.conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting likes of item %s: %w", id, err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting item %s: %w", id, err)
		}
		return expectOneRow(result, "item", id)
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
