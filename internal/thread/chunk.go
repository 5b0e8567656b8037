package thread

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/thread-annotator/internal/model"
)

// DefaultMaxChunkBytes is the default serialized-size budget of a chunk.
const DefaultMaxChunkBytes = 12000

// ErrInvalidBudget is returned when the chunk budget is not positive.
var ErrInvalidBudget = eris.New("thread: chunk budget must be positive")

// Chunk splits a processed post into chunks whose serialized size stays
// within maxBytes. A post that already fits is returned as a single,
// unmarked chunk. Otherwise root comments (with their reply subtrees) are
// packed in order; a root comment that is larger than the budget on its own
// still gets a chunk to itself. At least one chunk is always returned.
func Chunk(post *model.Post, maxBytes int) ([]model.Chunk, error) {
	if maxBytes <= 0 {
		return nil, ErrInvalidBudget
	}
	if post == nil {
		return nil, eris.New("thread: chunk nil post")
	}

	full, err := json.Marshal(post)
	if err != nil {
		return nil, eris.Wrap(err, "thread: marshal post")
	}
	if len(full) <= maxBytes {
		return []model.Chunk{{PostHeader: post.PostHeader, Comments: post.Comments}}, nil
	}

	baseSize, err := sizeOf(post.PostHeader)
	if err != nil {
		return nil, err
	}

	var chunks []model.Chunk
	flush := func(comments []*model.Comment) {
		idx := len(chunks)
		chunks = append(chunks, model.Chunk{
			PostHeader: post.PostHeader,
			Comments:   comments,
			IsChunk:    true,
			Index:      &idx,
		})
	}

	current := []*model.Comment{}
	running := baseSize
	for _, c := range post.Comments {
		size, err := sizeOf(c)
		if err != nil {
			return nil, err
		}
		if running+size > maxBytes && len(current) > 0 {
			flush(current)
			current = []*model.Comment{}
			running = baseSize
		}
		current = append(current, c)
		running += size
	}
	if len(current) > 0 || len(chunks) == 0 {
		flush(current)
	}
	return chunks, nil
}

func sizeOf(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, eris.Wrap(err, "thread: marshal for size")
	}
	return len(data), nil
}
