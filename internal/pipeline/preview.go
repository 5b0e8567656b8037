package pipeline

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/thread-annotator/internal/model"
	"github.com/sells-group/thread-annotator/internal/thread"
)

// ChunkInfo describes one chunk of a previewed post.
type ChunkInfo struct {
	Index    int  `json:"index"`
	Partial  bool `json:"partial"`
	Comments int  `json:"comments"`
	Bytes    int  `json:"bytes"`
}

// PostPreview reports how a post is built and chunked, without analysing it.
type PostPreview struct {
	PostID string       `json:"post_id"`
	Stats  thread.Stats `json:"stats"`
	Chunks []ChunkInfo  `json:"chunks"`
}

// Preview builds and chunks every post with the given budget.
func Preview(posts []model.RawPost, maxBytes int) ([]PostPreview, error) {
	pre := thread.NewPreprocessor()
	out := make([]PostPreview, 0, len(posts))
	for i, raw := range posts {
		post, stats := pre.Process(raw, i)
		chunks, err := thread.Chunk(post, maxBytes)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: chunk post %s", post.PostID)
		}
		pv := PostPreview{PostID: post.PostID, Stats: stats, Chunks: make([]ChunkInfo, len(chunks))}
		for j, c := range chunks {
			data, err := json.Marshal(c)
			if err != nil {
				return nil, eris.Wrapf(err, "pipeline: size chunk %d of %s", j, post.PostID)
			}
			pv.Chunks[j] = ChunkInfo{
				Index:    c.ChunkIndex(),
				Partial:  c.Partial(),
				Comments: len(thread.Flatten(c.Comments)),
				Bytes:    len(data),
			}
		}
		out = append(out, pv)
	}
	return out, nil
}
