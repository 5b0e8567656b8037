package thread

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/thread-annotator/internal/model"
)

func testPost(n int, bodySize int) *model.Post {
	roots := make([]*model.Comment, n)
	for i := range roots {
		roots[i] = &model.Comment{
			CommentID: fmt.Sprintf("c%d", i),
			ParentID:  "t3_p1",
			Body:      strings.Repeat("x", bodySize),
			Replies: []*model.Comment{{
				CommentID: fmt.Sprintf("r%d", i),
				ParentID:  fmt.Sprintf("t1_c%d", i),
				Body:      "reply",
				Replies:   []*model.Comment{},
			}},
		}
	}
	return &model.Post{
		PostHeader: model.PostHeader{PostID: "p1", Title: "Title", Body: "Body", Author: "op", Subreddit: "golang"},
		Comments:   roots,
	}
}

func chunkComments(chunks []model.Chunk) []*model.Comment {
	var out []*model.Comment
	for _, c := range chunks {
		out = append(out, c.Comments...)
	}
	return out
}

func TestChunk_UnderBudgetSingleChunk(t *testing.T) {
	t.Parallel()

	post := testPost(3, 10)
	chunks, err := Chunk(post, DefaultMaxChunkBytes)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.False(t, chunks[0].Partial())
	assert.Nil(t, chunks[0].Index)
	assert.Equal(t, post.Comments, chunks[0].Comments)

	whole, err := json.Marshal(post)
	require.NoError(t, err)
	got, err := json.Marshal(chunks[0])
	require.NoError(t, err)
	assert.Equal(t, string(whole), string(got))
}

func TestChunk_ExactBudgetIsSingleChunk(t *testing.T) {
	t.Parallel()

	post := testPost(2, 50)
	whole, err := json.Marshal(post)
	require.NoError(t, err)

	chunks, err := Chunk(post, len(whole))
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.False(t, chunks[0].Partial())
}

func TestChunk_OverBudgetSplitsInOrder(t *testing.T) {
	t.Parallel()

	post := testPost(20, 200)
	budget := 1200
	chunks, err := Chunk(post, budget)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, post.Comments, chunkComments(chunks))

	for i, c := range chunks {
		assert.True(t, c.Partial())
		assert.Equal(t, i, c.ChunkIndex())
		assert.Equal(t, post.PostHeader, c.PostHeader)
		assert.NotEmpty(t, c.Comments)

		// Size accounting mirrors the chunker: header plus each comment.
		size, err := sizeOf(c.PostHeader)
		require.NoError(t, err)
		for _, cm := range c.Comments {
			s, err := sizeOf(cm)
			require.NoError(t, err)
			size += s
		}
		if len(c.Comments) > 1 {
			assert.LessOrEqual(t, size, budget, "chunk %d", i)
		}
	}
}

func TestChunk_OversizedCommentSitsAlone(t *testing.T) {
	t.Parallel()

	post := testPost(3, 10)
	post.Comments[1].Body = strings.Repeat("y", 5000)

	chunks, err := Chunk(post, 1000)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []*model.Comment{post.Comments[0]}, chunks[0].Comments)
	assert.Equal(t, []*model.Comment{post.Comments[1]}, chunks[1].Comments)
	assert.Equal(t, []*model.Comment{post.Comments[2]}, chunks[2].Comments)
}

func TestChunk_OversizedHeaderNoComments(t *testing.T) {
	t.Parallel()

	post := testPost(0, 0)
	post.Body = strings.Repeat("z", 500)

	chunks, err := Chunk(post, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Partial())
	assert.Empty(t, chunks[0].Comments)
	assert.NotNil(t, chunks[0].Comments)
}

func TestChunk_PropertyNoLossNoDuplicates(t *testing.T) {
	t.Parallel()

	for _, budget := range []int{50, 300, 700, 2000, 100000} {
		for _, n := range []int{0, 1, 5, 17} {
			post := testPost(n, 120)
			chunks, err := Chunk(post, budget)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			got := chunkComments(chunks)
			if len(post.Comments) == 0 {
				assert.Empty(t, got)
				continue
			}
			assert.Equal(t, post.Comments, got, "budget=%d n=%d", budget, n)
		}
	}
}

func TestChunk_InvalidBudget(t *testing.T) {
	t.Parallel()

	_, err := Chunk(testPost(1, 1), 0)
	assert.ErrorIs(t, err, ErrInvalidBudget)

	_, err = Chunk(nil, 10)
	assert.Error(t, err)
}
