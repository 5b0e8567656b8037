package analysis

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/thread-annotator/internal/model"
)

func testChunks() []model.Chunk {
	return []model.Chunk{{
		PostHeader: model.PostHeader{PostID: "p1", Title: "Robots in the delivery room", Body: "Would you trust one?"},
		Comments: []*model.Comment{
			{CommentID: "c1", ParentID: "t3_p1", Body: "No way", Replies: []*model.Comment{}},
		},
	}}
}

func testTemplate() model.Template {
	var tmpl model.Template
	tmpl.Set("field_a", model.FieldSchema(`{"type":"object","properties":{"label":{"type":"string"}}}`))
	tmpl.Set("field_b", model.FieldSchema(`{"type":"object"}`))
	return tmpl
}

// forField matches prompts rendered for the named field.
func forField(name string) any {
	return mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "populate the '"+name+"' field")
	})
}

type sinkSpy struct {
	records []model.ExhaustedField
}

func (s *sinkSpy) RecordExhausted(_ context.Context, rec model.ExhaustedField) error {
	s.records = append(s.records, rec)
	return nil
}
