package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	gomail "github.com/emersion/go-message/mail"
	"github.com/ledongthuc/pdf"
)

const (
	// pdfTextCap bounds the extracted text per PDF attachment.
	pdfTextCap = 4096
	// pdfByteCeiling bounds the cumulative PDF bytes ingested per item.
	pdfByteCeiling = 20 << 20

	truncationMarker = "\n[truncated]"
)

var (
	// ErrOversizeBlob means the item's PDF attachments exceed the ingestion ceiling.
	ErrOversizeBlob = errors.New("attachments exceed ingestion ceiling")
	// ErrAttachmentParse means an attachment could not be parsed for text.
	ErrAttachmentParse = errors.New("attachment parse failed")
	// ErrInvalidSummary means the AI answered with something that is not a
	// valid summary document.
	ErrInvalidSummary = errors.New("invalid summary response")
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// extractPlainText turns a stored raw message into the plain text fed to the
// prompt: the message body (HTML stripped when no plain part exists) followed
// by bounded text from PDF attachments.
func extractPlainText(raw []byte) (string, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("message parse failed: %w", err)
	}

	var plain, html strings.Builder
	var pdfSections []string
	var pdfBytes int64

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("message part read failed: %w", err)
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch contentType {
			case "text/plain":
				plain.Write(body)
			case "text/html":
				html.Write(body)
			}

		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			if contentType != "application/pdf" && !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
				continue
			}

			data, err := io.ReadAll(part.Body)
			if err != nil {
				return "", fmt.Errorf("attachment %s: %w", filename, ErrAttachmentParse)
			}

			pdfBytes += int64(len(data))
			if pdfBytes > pdfByteCeiling {
				return "", fmt.Errorf("attachment %s pushes total to %d bytes: %w", filename, pdfBytes, ErrOversizeBlob)
			}

			text, err := extractPDFText(data)
			if err != nil {
				return "", fmt.Errorf("attachment %s: %w", filename, ErrAttachmentParse)
			}
			pdfSections = append(pdfSections, fmt.Sprintf("[attachment: %s]\n%s", filename, truncateWithMarker(text, pdfTextCap)))
		}
	}

	body := strings.TrimSpace(plain.String())
	if body == "" && html.Len() > 0 {
		body = stripHTML(html.String())
	}

	sections := append([]string{body}, pdfSections...)
	return strings.TrimSpace(strings.Join(sections, "\n\n")), nil
}

func extractPDFText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plainText)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func truncateWithMarker(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back up to a rune boundary so the cut never emits invalid UTF-8.
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + truncationMarker
}

func stripHTML(s string) string {
	out := htmlTagPattern.ReplaceAllString(s, " ")
	// Unescape HTML entities (basic ones)
	out = strings.ReplaceAll(out, "&nbsp;", " ")
	out = strings.ReplaceAll(out, "&lt;", "<")
	out = strings.ReplaceAll(out, "&gt;", ">")
	out = strings.ReplaceAll(out, "&amp;", "&")
	out = strings.ReplaceAll(out, "&quot;", "\"")
	return strings.Join(strings.Fields(out), " ")
}
