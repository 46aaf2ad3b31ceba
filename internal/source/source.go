// Package source loads travel knowledge documents from a directory:
// product sheets and FAQ sets from YAML or JSON files, policies from
// Markdown. Each document carries a content hash so the change detector
// can diff loads against the index manifest.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/angeless/travelcs/internal/chunk"
	kberrors "github.com/angeless/travelcs/internal/errors"
)

// Well-known file stems inside the documents directory.
const (
	productsStem = "products"
	faqsStem     = "faqs"
)

// DirLoader loads documents from a directory tree.
//
// Layout:
//
//	documents/
//	  products.yaml    product records (or .yml/.json)
//	  faqs.yaml        FAQ records (or .yml/.json)
//	  policies/*.md    one policy document per file
//
// Markdown files directly in the root are treated as policies too.
type DirLoader struct {
	dir string
}

// NewDirLoader creates a loader rooted at dir.
func NewDirLoader(dir string) (*DirLoader, error) {
	if dir == "" {
		return nil, kberrors.ConfigError("documents directory is required", nil)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, kberrors.ConfigError(fmt.Sprintf("documents directory %s not readable", dir), err)
	}
	if !info.IsDir() {
		return nil, kberrors.ConfigError(fmt.Sprintf("%s is not a directory", dir), nil)
	}
	return &DirLoader{dir: dir}, nil
}

// Load reads every document in the directory. Records missing required
// fields are logged and skipped; an unreadable or unparseable file fails
// the load. Output is sorted by document id.
func (l *DirLoader) Load(ctx context.Context) ([]*chunk.Document, error) {
	var docs []*chunk.Document

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, kberrors.ConfigError(fmt.Sprintf("read documents directory %s", l.dir), err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(l.dir, entry.Name())

		if entry.IsDir() {
			sub, err := l.loadPolicyDir(ctx, path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, sub...)
			continue
		}

		stem, ext := splitName(entry.Name())
		switch {
		case stem == productsStem && structuredExt(ext):
			loaded, err := loadProducts(path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
		case stem == faqsStem && structuredExt(ext):
			loaded, err := loadFAQs(path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
		case ext == ".md":
			doc, err := loadPolicy(path)
			if err != nil {
				return nil, err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		default:
			slog.Debug("source_file_skipped", slog.String("path", path))
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	slog.Info("documents_loaded",
		slog.String("dir", l.dir),
		slog.Int("count", len(docs)))
	return docs, nil
}

// loadPolicyDir loads every Markdown file in a subdirectory.
func (l *DirLoader) loadPolicyDir(ctx context.Context, dir string) ([]*chunk.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, kberrors.ConfigError(fmt.Sprintf("read policy directory %s", dir), err)
	}

	var docs []*chunk.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		doc, err := loadPolicy(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func splitName(name string) (stem, ext string) {
	ext = strings.ToLower(filepath.Ext(name))
	return strings.TrimSuffix(name, filepath.Ext(name)), ext
}

func structuredExt(ext string) bool {
	return ext == ".yaml" || ext == ".yml" || ext == ".json"
}
