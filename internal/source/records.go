package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/angeless/travelcs/internal/chunk"
	kberrors "github.com/angeless/travelcs/internal/errors"
)

// ProductRecord is one product entry in products.yaml.
type ProductRecord struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Price        float64  `yaml:"price" json:"price"`
	Duration     int      `yaml:"duration" json:"duration"`
	Destination  []string `yaml:"destination" json:"destination"`
	Highlights   []string `yaml:"highlights" json:"highlights"`
	Visa         string   `yaml:"visa" json:"visa"`
	Inclusions   []string `yaml:"inclusions" json:"inclusions"`
	Cancellation string   `yaml:"cancellation" json:"cancellation"`
}

// FAQRecord is one FAQ entry in faqs.yaml.
type FAQRecord struct {
	ID       string   `yaml:"id" json:"id"`
	Question string   `yaml:"question" json:"question"`
	Answer   string   `yaml:"answer" json:"answer"`
	Category string   `yaml:"category" json:"category"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// decodeFile unmarshals a YAML or JSON file into out.
func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kberrors.ConfigError(fmt.Sprintf("read %s", path), err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, out); err != nil {
			return kberrors.DocumentFormatError(path, fmt.Sprintf("parse %s", path), err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return kberrors.DocumentFormatError(path, fmt.Sprintf("parse %s", path), err)
	}
	return nil
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime().UTC()
}

// loadProducts converts product records into documents. The rendered text
// is deterministic, so an unchanged record hashes to an unchanged document.
func loadProducts(path string) ([]*chunk.Document, error) {
	var records []ProductRecord
	if err := decodeFile(path, &records); err != nil {
		return nil, err
	}

	mod := fileModTime(path)
	docs := make([]*chunk.Document, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" || rec.Name == "" {
			slog.Warn("product_record_skipped",
				slog.String("path", path),
				slog.String("id", rec.ID))
			continue
		}

		content := renderProduct(rec)
		docs = append(docs, &chunk.Document{
			ID:         rec.ID,
			Type:       chunk.DocTypeProduct,
			RawContent: content,
			Metadata: map[string]string{
				"name":  rec.Name,
				"price": strconv.FormatFloat(rec.Price, 'f', -1, 64),
				"visa":  rec.Visa,
			},
			SourceHash: chunk.HashContent(content),
			UpdatedAt:  mod,
		})
	}
	return docs, nil
}

// renderProduct flattens a product record into indexable text.
func renderProduct(rec ProductRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "产品：%s\n", rec.Name)
	if rec.Price > 0 {
		fmt.Fprintf(&b, "价格：%s元\n", strconv.FormatFloat(rec.Price, 'f', -1, 64))
	}
	if rec.Duration > 0 {
		fmt.Fprintf(&b, "行程天数：%d天\n", rec.Duration)
	}
	if len(rec.Destination) > 0 {
		fmt.Fprintf(&b, "目的地：%s\n", strings.Join(rec.Destination, "、"))
	}
	if len(rec.Highlights) > 0 {
		fmt.Fprintf(&b, "亮点：%s\n", strings.Join(rec.Highlights, "、"))
	}
	if rec.Visa != "" {
		fmt.Fprintf(&b, "签证：%s\n", rec.Visa)
	}
	if len(rec.Inclusions) > 0 {
		fmt.Fprintf(&b, "费用包含：%s\n", strings.Join(rec.Inclusions, "、"))
	}
	if rec.Cancellation != "" {
		fmt.Fprintf(&b, "退改规则：%s\n", rec.Cancellation)
	}
	return strings.TrimRight(b.String(), "\n")
}

// loadFAQs converts FAQ records into documents.
func loadFAQs(path string) ([]*chunk.Document, error) {
	var records []FAQRecord
	if err := decodeFile(path, &records); err != nil {
		return nil, err
	}

	mod := fileModTime(path)
	docs := make([]*chunk.Document, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" || rec.Question == "" || rec.Answer == "" {
			slog.Warn("faq_record_skipped",
				slog.String("path", path),
				slog.String("id", rec.ID))
			continue
		}

		content := fmt.Sprintf("问：%s\n答：%s", rec.Question, rec.Answer)
		meta := map[string]string{
			"question": rec.Question,
			"answer":   rec.Answer,
		}
		if rec.Category != "" {
			meta["category"] = rec.Category
		}
		if len(rec.Keywords) > 0 {
			meta["keywords"] = strings.Join(rec.Keywords, ",")
		}

		docs = append(docs, &chunk.Document{
			ID:         rec.ID,
			Type:       chunk.DocTypeFAQ,
			RawContent: content,
			Metadata:   meta,
			SourceHash: chunk.HashContent(content),
			UpdatedAt:  mod,
		})
	}
	return docs, nil
}

// loadPolicy reads a Markdown policy file. The document id is the file
// stem, the title the first heading. An empty file yields nil, not an
// error.
func loadPolicy(path string) (*chunk.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kberrors.ConfigError(fmt.Sprintf("read %s", path), err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}

	stem, _ := splitName(filepath.Base(path))
	title := ""
	body := content
	if strings.HasPrefix(content, "#") {
		line, rest, _ := strings.Cut(content, "\n")
		title = strings.TrimSpace(strings.TrimLeft(line, "# "))
		body = strings.TrimSpace(rest)
		if body == "" {
			body = title
		}
	}

	meta := map[string]string{}
	if title != "" {
		meta["title"] = title
	}

	return &chunk.Document{
		ID:         stem,
		Type:       chunk.DocTypePolicy,
		RawContent: body,
		Metadata:   meta,
		SourceHash: chunk.HashContent(content),
		UpdatedAt:  fileModTime(path),
	}, nil
}
