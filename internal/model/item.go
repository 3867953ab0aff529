package model

import "time"

// Item is a submitted item location: a point of interest in the game world,
// tied to one game version and one server shard.
//
// AuthorID is a pointer because the author can be removed from the directory;
// the row then keeps living with a NULL author (ON DELETE SET NULL).
//
// Item has no like counter. The number of likes is derived from the likes
// table at read time (see ItemView).
type Item struct {
	ID               string    `json:"id"`
	AuthorID         *string   `json:"authorId,omitempty"`
	Location         string    `json:"location"`
	Description      string    `json:"description"`
	GameVersion      string    `json:"gameVersion"`
	ShardID          string    `json:"shardId"`
	ImagePath        *string   `json:"imagePath,omitempty"`
	PreviewImagePath *string   `json:"previewImagePath,omitempty"`
	IsPublic         bool      `json:"isPublic"`
	CreatedAt        time.Time `json:"createdAt"`
}

// OwnedBy reports whether userID is the item's author.
func (i *Item) OwnedBy(userID string) bool {
	return i.AuthorID != nil && userID != "" && *i.AuthorID == userID
}

// ItemView is an Item joined with the fields the list needs:
// the author's display data, the derived like count and whether the
// requesting user has liked it.
type ItemView struct {
	Item
	AuthorName      string `json:"author,omitempty"`
	AuthorAvatarURL string `json:"avatarUrl,omitempty"`
	LikeCount       int    `json:"likes"`
	HasLiked        bool   `json:"hasLiked"`
}

// Like records that a user likes an item. (UserID, ItemID) is the primary key.
type Like struct {
	UserID    string    `json:"userId"`
	ItemID    string    `json:"itemId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filters lists the values the item list can be narrowed down by:
// every game version, and the shard ids seen for each of them.
type Filters struct {
	GameVersions []string            `json:"gameVersions"`
	Shards       map[string][]string `json:"shards"`
}
