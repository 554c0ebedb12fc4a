package mailbox

import (
	"bytes"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// TextBody decodes a raw RFC 5322 message and returns its inline text
// joined by newlines. Plain text parts win; HTML parts are only used, as
// rendered text, when the message has no plain part. If the message cannot
// be parsed the raw bytes are returned as text.
func TextBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return string(raw)
	}
	defer mr.Close()

	var plain, html []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			if len(plain)+len(html) == 0 {
				return string(raw)
			}
			break
		}
		if part == nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		// A missing Content-Type means text/plain.
		contentType, _, _ := h.ContentType()
		if contentType != "" && !strings.HasPrefix(contentType, "text/") {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		if contentType == "text/html" {
			html = append(html, htmlText(body))
			continue
		}
		plain = append(plain, string(body))
	}

	if len(plain) > 0 {
		return strings.Join(plain, "\n")
	}
	return strings.Join(html, "\n")
}

// htmlText renders the visible text of an HTML part, one line per block of
// text. Styles and scripts are dropped so colours like #333333 never reach
// code extraction.
func htmlText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("head, style, script, noscript").Remove()
	doc.Find("br, p, div, tr, td, li, h1, h2, h3, h4, table").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
