package model

import (
	"encoding/json"
	"strings"
)

// Reddit fullname prefixes used in parent references.
const (
	commentPrefix = "t1_"
	postPrefix    = "t3_"
)

// ParentKind says what a comment replies to.
type ParentKind int

const (
	// ParentPost means the comment replies to the post itself (or the
	// reference is empty or unrecognised).
	ParentPost ParentKind = iota
	// ParentComment means the comment replies to another comment.
	ParentComment
)

// ParentRef is a parsed parent reference.
type ParentRef struct {
	Kind ParentKind
	ID   string // comment id without prefix; empty for ParentPost
}

// ParseParentRef parses a raw parent reference such as "t1_abc" or "t3_xyz".
// Anything that is not a "t1_" reference is treated as a reply to the post.
func ParseParentRef(raw string) ParentRef {
	raw = strings.TrimSpace(raw)
	if id, ok := strings.CutPrefix(raw, commentPrefix); ok && id != "" {
		return ParentRef{Kind: ParentComment, ID: id}
	}
	return ParentRef{Kind: ParentPost}
}

// Comment is a single comment. Replies is populated once, by the tree
// builder, and must be treated as read-only afterwards.
type Comment struct {
	CommentID  string          `json:"comment_id"`
	ParentID   string          `json:"parent_id"`
	Author     string          `json:"author,omitempty"`
	Body       string          `json:"body"`
	Score      *int            `json:"score,omitempty"`
	CreatedUTC json.RawMessage `json:"created_utc,omitempty"`
	Replies    []*Comment      `json:"replies"`
}

// Parent returns the parsed parent reference of the comment.
func (c *Comment) Parent() ParentRef {
	return ParseParentRef(c.ParentID)
}

// PostHeader holds the non-comment fields of a post.
type PostHeader struct {
	PostID     string          `json:"post_id"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	Author     string          `json:"author"`
	CreatedUTC json.RawMessage `json:"created_utc,omitempty"`
	Subreddit  string          `json:"subreddit"`
}

// Post is a processed post: normalized header plus root comments with their
// reply trees attached.
type Post struct {
	PostHeader
	Comments []*Comment `json:"comments"`
}

// RawPost is a post as read from the sample file, with a flat comment list.
type RawPost struct {
	PostHeader
	Comments []*Comment `json:"comments"`
}

// Sample is the top-level sample document.
type Sample struct {
	Posts []RawPost `json:"posts"`
}

// Chunk is a size-bounded view of a post. The header is a copy; comments are
// shared with the source post.
type Chunk struct {
	PostHeader
	Comments []*Comment `json:"comments"`
	IsChunk  bool       `json:"is_chunk,omitempty"`
	Index    *int       `json:"chunk_index,omitempty"`
}

// Partial reports whether the chunk holds only part of its post.
func (c Chunk) Partial() bool {
	return c.IsChunk
}

// ChunkIndex returns the position of the chunk, 0 for a whole-document chunk.
func (c Chunk) ChunkIndex() int {
	if c.Index == nil {
		return 0
	}
	return *c.Index
}
