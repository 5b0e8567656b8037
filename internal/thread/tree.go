package thread

import (
	"github.com/sells-group/thread-annotator/internal/model"
)

// BuildTree attaches every comment to its parent and returns the roots in
// input order. Comments replying to the post, with an empty parent, or with
// a parent id that is not in the input become roots. Duplicate ids resolve
// to the last comment seen. Parent references are assumed acyclic, which
// holds for comment threads since a comment cannot reply to a descendant.
//
// Bodies are normalized with n in the same pass. If n is nil, bodies are
// left as they are.
func BuildTree(flat []*model.Comment, n Normalizer) []*model.Comment {
	if n == nil {
		n = NopNormalizer{}
	}

	index := make(map[string]*model.Comment, len(flat))
	for _, c := range flat {
		if c == nil {
			continue
		}
		index[c.CommentID] = c
	}

	for _, c := range flat {
		if c == nil {
			continue
		}
		c.Replies = []*model.Comment{}
		c.Body = n.Normalize(c.Body)
	}

	roots := make([]*model.Comment, 0, len(flat))
	for _, c := range flat {
		if c == nil {
			continue
		}
		ref := c.Parent()
		if ref.Kind == model.ParentComment {
			if parent, ok := index[ref.ID]; ok {
				parent.Replies = append(parent.Replies, c)
				continue
			}
		}
		roots = append(roots, c)
	}
	return roots
}

// Flatten returns every comment reachable from roots, depth-first, parents
// before their replies.
func Flatten(roots []*model.Comment) []*model.Comment {
	var out []*model.Comment
	var walk func([]*model.Comment)
	walk = func(cs []*model.Comment) {
		for _, c := range cs {
			out = append(out, c)
			walk(c.Replies)
		}
	}
	walk(roots)
	return out
}

// Stats describes the shape of a comment set and the anomalies the tree
// builder recovered from.
type Stats struct {
	Comments   int `json:"comments"`
	Roots      int `json:"roots"`
	Orphans    int `json:"orphans"`
	Duplicates int `json:"duplicates"`
	MaxDepth   int `json:"max_depth"`
}

// Analyze computes Stats for a flat comment list before it is built into a
// tree. An orphan is a comment whose parent comment id is not in the list.
func Analyze(flat []*model.Comment) Stats {
	seen := make(map[string]bool, len(flat))
	var s Stats
	for _, c := range flat {
		if c == nil {
			continue
		}
		s.Comments++
		if seen[c.CommentID] {
			s.Duplicates++
		}
		seen[c.CommentID] = true
	}
	for _, c := range flat {
		if c == nil {
			continue
		}
		ref := c.Parent()
		switch {
		case ref.Kind != model.ParentComment:
			s.Roots++
		case !seen[ref.ID]:
			s.Roots++
			s.Orphans++
		}
	}
	return s
}

// Depth returns the depth of the deepest comment under roots (1 for a flat
// thread, 0 for none).
func Depth(roots []*model.Comment) int {
	best := 0
	for _, c := range roots {
		if d := 1 + Depth(c.Replies); d > best {
			best = d
		}
	}
	return best
}
