package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	appErr "github.com/askbase/askbase/internal/pkg/errors"
)

// DetectFileType normalizes the declared type, falling back to the
// filename extension. The declared type wins when both are present.
// Unsupported types are rejected up front so an upload fails at the API
// instead of later in the ingest queue.
func DetectFileType(filename, fileType string) (string, error) {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	if ft == "" {
		if idx := strings.LastIndex(filename, "."); idx >= 0 {
			ft = strings.ToLower(filename[idx+1:])
		}
	}
	switch ft {
	case "txt", "md", "markdown", "docx", "pdf":
		return ft, nil
	default:
		return "", fmt.Errorf("%w: %s", appErr.ErrUnsupportedFormat, ft)
	}
}

// Parse extracts UTF-8 plain text from an uploaded file.
func Parse(filename, fileType string, data []byte) (string, error) {
	ft, err := DetectFileType(filename, fileType)
	if err != nil {
		return "", err
	}
	switch ft {
	case "txt":
		return parseText(data)
	case "md", "markdown":
		return parseMarkdown(data)
	case "docx":
		return parseDocx(data)
	case "pdf":
		return parsePDF(data)
	default:
		return "", fmt.Errorf("%w: %s", appErr.ErrUnsupportedFormat, ft)
	}
}

func parseText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8", appErr.ErrCorruptFile)
	}
	return string(data), nil
}

func parseMarkdown(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8", appErr.ErrCorruptFile)
	}
	md := goldmark.New()
	reader := text.NewReader(data)
	doc := md.Parser().Parse(reader)

	var parts []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if fenced, ok := node.(*ast.FencedCodeBlock); ok {
			var code strings.Builder
			for i := 0; i < fenced.Lines().Len(); i++ {
				line := fenced.Lines().At(i)
				code.Write(line.Value(data))
			}
			if s := strings.TrimSpace(code.String()); s != "" {
				parts = append(parts, s)
			}
			continue
		}
		if txt := extractText(node, data); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// docx is a zip archive; the document body lives in word/document.xml and
// the visible text in <w:t> runs, one paragraph per <w:p>.
func parseDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrCorruptFile, err)
	}
	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: missing word/document.xml", appErr.ErrCorruptFile)
	}
	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrCorruptFile, err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sb strings.Builder
	var inText bool
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", appErr.ErrCorruptFile, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrCorruptFile, err)
	}
	body, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrCorruptFile, err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, body); err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrCorruptFile, err)
	}
	return sb.String(), nil
}
