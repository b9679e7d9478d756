package words

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	models "github.com/CodeAndHammer/lockcards/internal/models"
	util "github.com/CodeAndHammer/lockcards/internal/util"
)

// Source loads the word list of one language.
type Source interface {
	Load(ctx context.Context, lang models.Language) ([]models.WordEntry, error)
}

// DirSource reads word files from a local directory.
type DirSource struct {
	Dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

func (s *DirSource) Load(ctx context.Context, lang models.Language) ([]models.WordEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file := filepath.Join(s.Dir, lang.Source)
	util.LogInfoCtx(ctx, "Loading %s words from %s", lang.Name, file)

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return Decode(ctx, lang.Source, data)
}

// HTTPSource fetches word files relative to a base URL.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Load(ctx context.Context, lang models.Language) ([]models.WordEntry, error) {
	url := s.BaseURL + "/" + strings.TrimLeft(lang.Source, "/")
	util.LogInfoCtx(ctx, "Fetching %s words from %s", lang.Name, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return Decode(ctx, path.Base(url), data)
}

// Decode parses a word file, choosing the format by file extension. JSON may be a bare
// array of entries or an object with a "words" array.
func Decode(ctx context.Context, name string, data []byte) ([]models.WordEntry, error) {
	var entries []models.WordEntry
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		var err error
		if entries, err = decodeExcel(data); err != nil {
			return nil, err
		}
	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var wl models.WordList
			if err := json.Unmarshal(trimmed, &wl); err != nil {
				return nil, fmt.Errorf("decode %s: %w", name, err)
			}
			entries = wl.Words
		} else if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}

	entries = lo.Filter(entries, func(entry models.WordEntry, _ int) bool {
		if strings.TrimSpace(entry.Key) == "" {
			util.LogWarnCtx(ctx, "Skipping entry with empty headword (meaning %q)", entry.Meaning)
			return false
		}
		return true
	})
	entries = lo.UniqBy(entries, func(entry models.WordEntry) string { return entry.Key })

	util.LogInfoCtx(ctx, "Successfully loaded %d words from %s", len(entries), name)
	return entries, nil
}

// decodeExcel reads the first sheet: A headword, B meaning, C example sentences,
// D translations. Multiple sentences in one cell are newline-separated. Row 1 is a header.
func decodeExcel(data []byte) ([]models.WordEntry, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	entries := make([]models.WordEntry, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		entries = append(entries, models.WordEntry{
			Key:                 strings.TrimSpace(cell(row, 0)),
			Meaning:             strings.TrimSpace(cell(row, 1)),
			ExampleSentences:    splitLines(cell(row, 2)),
			TranslatedSentences: splitLines(cell(row, 3)),
		})
	}
	return entries, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func splitLines(s string) []string {
	lines := lo.Map(strings.Split(s, "\n"), func(line string, _ int) string {
		return strings.TrimSpace(line)
	})
	return lo.Compact(lines)
}
