package thread

import (
	"fmt"

	"github.com/sells-group/thread-annotator/internal/model"
)

// Preprocessor turns raw sample posts into processed posts.
type Preprocessor struct {
	Normalizer Normalizer
}

// NewPreprocessor returns a Preprocessor using TextNormalizer.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{Normalizer: TextNormalizer{}}
}

// Process normalizes the header, builds the comment tree and reports the
// anomalies found in the comment list. index is the position of the post in
// its sample and names posts without an id.
func (p *Preprocessor) Process(raw model.RawPost, index int) (*model.Post, Stats) {
	n := p.Normalizer
	if n == nil {
		n = NopNormalizer{}
	}

	header := raw.PostHeader
	if header.PostID == "" {
		header.PostID = fmt.Sprintf("unknown_%d", index)
	}
	header.Title = n.Normalize(header.Title)
	header.Body = n.Normalize(header.Body)

	stats := Analyze(raw.Comments)
	roots := BuildTree(raw.Comments, n)
	stats.MaxDepth = Depth(roots)

	return &model.Post{PostHeader: header, Comments: roots}, stats
}
