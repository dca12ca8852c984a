package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// Import reads fetcher output from JSON files. A path may be a file or a
// directory whose *.json files are read in name order.
type Import struct {
	paths []string
}

// NewImport creates a new JSON import collector.
func NewImport(paths []string) *Import {
	return &Import{paths: paths}
}

func (i *Import) Name() SourceType { return SourceImport }

func (i *Import) Collect(ctx context.Context) (Batch, error) {
	files, err := expandPaths(i.paths)
	if err != nil {
		return Batch{}, err
	}

	var batch Batch
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		b, err := readFile(path)
		if err != nil {
			return batch, err
		}
		batch.Games = append(batch.Games, b.Games...)
		batch.Videos = append(batch.Videos, b.Videos...)
	}
	return batch, nil
}

func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat import path %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("list import dir %s: %w", p, err)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

func readFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open import file %s: %w", path, err)
	}
	defer f.Close()

	b, err := DecodeBatch(f)
	if err != nil {
		return Batch{}, fmt.Errorf("decode import file %s: %w", path, err)
	}
	return b, nil
}

// DecodeBatch reads either an object with "games" and "videos" arrays or a
// bare array of game records.
func DecodeBatch(r io.Reader) (Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Batch{}, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Batch{}, nil
	}

	if strings.HasPrefix(string(data), "[") {
		var games []catalog.RawGame
		if err := json.Unmarshal(data, &games); err != nil {
			return Batch{}, err
		}
		return Batch{Games: games}, nil
	}

	var doc struct {
		Games  []catalog.RawGame  `json:"games"`
		Videos []catalog.RawVideo `json:"videos"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Batch{}, err
	}
	return Batch{Games: doc.Games, Videos: doc.Videos}, nil
}
