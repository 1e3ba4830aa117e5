package chunker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/stacklok/envector-mcp/pkg/logger"
)

// Language selects which files a path load picks up.
type Language string

const (
	// LanguageDocument loads markdown and plain text.
	LanguageDocument Language = "document"
	// LanguagePython loads Python sources.
	LanguagePython Language = "python"
	// LanguagePDF extracts the text layer of PDF files.
	LanguagePDF Language = "pdf"
	// LanguageAll loads every supported format.
	LanguageAll Language = "all"
)

var extensions = map[Language][]string{
	LanguageDocument: {".md", ".mdx", ".txt"},
	LanguagePython:   {".py"},
	LanguagePDF:      {".pdf"},
}

// ParseLanguage resolves a language name. An empty name is LanguageDocument.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	if l == "" {
		return LanguageDocument, nil
	}
	if _, ok := extensions[l]; ok || l == LanguageAll {
		return l, nil
	}
	return "", fmt.Errorf("%w: unknown language %q", ErrUnsupportedFormat, s)
}

// Extensions returns the file extensions the language covers.
func (l Language) Extensions() []string {
	if l == LanguageAll {
		var all []string
		for _, k := range []Language{LanguageDocument, LanguagePython, LanguagePDF} {
			all = append(all, extensions[k]...)
		}
		return all
	}
	return extensions[l]
}

func (l Language) matches(path string) bool {
	return slices.Contains(l.Extensions(), strings.ToLower(filepath.Ext(path)))
}

// LoadText wraps raw text as a document. An empty source gets a stable
// content-derived name.
func LoadText(text, source string, metadata map[string]any) Document {
	if source == "" {
		sum := sha256.Sum256([]byte(text))
		source = "text-" + hex.EncodeToString(sum[:])[:12]
	}
	return Document{Source: source, Text: strings.ToValidUTF8(text, ""), Metadata: metadata}
}

// LoadPath loads a single file, or every matching file under a directory.
// Paths with a component starting with "." are skipped. Sources are
// slash-separated paths relative to the directory, or the base name for a file.
func LoadPath(ctx context.Context, path string, lang Language) ([]Document, error) {
	if _, ok := extensions[lang]; !ok && lang != LanguageAll {
		return nil, fmt.Errorf("%w: unknown language %q", ErrUnsupportedFormat, lang)
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		if !lang.matches(path) {
			return nil, fmt.Errorf("%w: %s is not a %s file (%s)",
				ErrUnsupportedFormat, path, lang, strings.Join(lang.Extensions(), ", "))
		}
		doc, err := loadFile(path, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}

	var docs []Document
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if hidden(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !lang.matches(p) {
			return nil
		}

		doc, err := loadFile(p, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no %s files under %s", ErrDocumentNotFound, lang, path)
	}

	logger.Infof("Loaded %d documents from %s", len(docs), path)
	return docs, nil
}

func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func loadFile(path, source string) (Document, error) {
	var (
		text string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = readPDF(path)
	} else {
		var data []byte
		data, err = os.ReadFile(path) // #nosec G304 - caller chose the path
		text = string(data)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Document{Source: source, Text: strings.ToValidUTF8(text, "")}, nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extracting text: %v", ErrUnsupportedFormat, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
