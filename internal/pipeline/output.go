package pipeline

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/thread-annotator/internal/model"
)

// OutputFormat names an encoding for persisted analyses.
type OutputFormat string

const (
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
	OutputXLSX OutputFormat = "xlsx"
)

// ParseOutputFormat validates a configured format. Empty means JSON.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "":
		return OutputJSON, nil
	case OutputJSON, OutputYAML, OutputXLSX:
		return f, nil
	default:
		return "", eris.Errorf("pipeline: unknown output format %q", s)
	}
}

// WriteAnalyses writes analyses to path in the given format. The output is
// staged in a temporary file in the same directory and renamed over path only
// once encoding succeeds, so a failed write leaves any previous file intact.
func WriteAnalyses(path string, format OutputFormat, analyses []model.PostAnalysis) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp_analysis_*")
	if err != nil {
		return eris.Wrapf(err, "pipeline: create output %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if err := EncodeAnalyses(tmp, format, analyses); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "pipeline: chmod output %s", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "pipeline: sync output %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "pipeline: close output %s", path)
	}
	return eris.Wrapf(os.Rename(tmpName, path), "pipeline: rename output %s", path)
}

// EncodeAnalyses writes analyses to w. JSON is an indented array, YAML a
// sequence of mappings, XLSX one row per post with one column per field.
func EncodeAnalyses(w io.Writer, format OutputFormat, analyses []model.PostAnalysis) error {
	if analyses == nil {
		analyses = []model.PostAnalysis{}
	}
	switch format {
	case OutputJSON, "":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(analyses), "pipeline: encode json output")
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(analyses); err != nil {
			return eris.Wrap(err, "pipeline: encode yaml output")
		}
		return eris.Wrap(enc.Close(), "pipeline: encode yaml output")
	case OutputXLSX:
		return encodeXLSX(w, analyses)
	default:
		return eris.Errorf("pipeline: unknown output format %q", format)
	}
}

func encodeXLSX(w io.Writer, analyses []model.PostAnalysis) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("analysis")
	if err != nil {
		return eris.Wrap(err, "pipeline: add xlsx sheet")
	}

	columns := fieldColumns(analyses)
	header := sheet.AddRow()
	header.AddCell().SetString("post_id")
	for _, name := range columns {
		header.AddCell().SetString(name)
	}

	for _, a := range analyses {
		row := sheet.AddRow()
		row.AddCell().SetString(a.PostID)
		for _, name := range columns {
			cell := row.AddCell()
			v, ok := a.Get(name)
			if !ok {
				continue
			}
			data, err := json.Marshal(v)
			if err != nil {
				return eris.Wrapf(err, "pipeline: encode cell %s/%s", a.PostID, name)
			}
			cell.SetString(string(data))
		}
	}
	return eris.Wrap(f.Write(w), "pipeline: write xlsx")
}

// fieldColumns lists field names in order of first appearance.
func fieldColumns(analyses []model.PostAnalysis) []string {
	seen := map[string]bool{}
	var cols []string
	for _, a := range analyses {
		for _, fv := range a.Fields {
			if fv.Name == "post_id" || seen[fv.Name] {
				continue
			}
			seen[fv.Name] = true
			cols = append(cols, fv.Name)
		}
	}
	return cols
}
