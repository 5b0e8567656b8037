package notion

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/thread-annotator/internal/model"
)

// SchemaProperty is the rich-text property holding a field's JSON schema.
const SchemaProperty = "Schema"

// QueryAll fetches all pages from a Notion database, following cursors.
// The next page is fetched in the background while the current one is
// appended.
func QueryAll(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	type result struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}

	var all []notionapi.Page
	var pending <-chan result
	req := &notionapi.DatabaseQueryRequest{}

	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error
		if pending != nil {
			r := <-pending
			resp, err = r.resp, r.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, req)
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			break
		}

		next := &notionapi.DatabaseQueryRequest{StartCursor: resp.NextCursor}
		ch := make(chan result, 1)
		pending = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, next)
			ch <- result{resp: r, err: e}
		}()
	}
	return all, nil
}

// LoadTemplate builds a template from a database where each page title is a
// field name and its Schema property holds the field's JSON schema. Fields
// are ordered by page creation time. A blank schema becomes {}.
func LoadTemplate(ctx context.Context, c Client, dbID string) (model.Template, error) {
	pages, err := QueryAll(ctx, c, dbID)
	if err != nil {
		return model.Template{}, eris.Wrapf(err, "notion: load template %s", dbID)
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].CreatedTime.Before(pages[j].CreatedTime)
	})

	var tmpl model.Template
	for _, p := range pages {
		name := strings.TrimSpace(pageTitle(p))
		if name == "" {
			continue
		}
		if name == model.PostIDKey {
			return model.Template{}, eris.Errorf("notion: field %q is reserved", name)
		}
		raw := strings.TrimSpace(richText(p.Properties[SchemaProperty]))
		if raw == "" {
			raw = "{}"
		}
		if !json.Valid([]byte(raw)) {
			return model.Template{}, eris.Errorf("notion: field %q has invalid schema JSON", name)
		}
		tmpl.Set(name, model.FieldSchema(raw))
	}
	return tmpl, nil
}

func pageTitle(p notionapi.Page) string {
	for _, prop := range p.Properties {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			return plainText(tp.Title)
		}
	}
	return ""
}

func richText(prop notionapi.Property) string {
	if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
		return plainText(rtp.RichText)
	}
	return ""
}

func plainText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}
