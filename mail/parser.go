package mail

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/emersion/go-message"
	"golang.org/x/net/html/charset"

	"github.com/c360studio/traceline/llm"
)

// subjectPattern finds the work item marker in a subject line. Reply and
// forward prefixes are irrelevant because the marker may sit anywhere.
var subjectPattern = regexp.MustCompile(`(?i)\[workitem-([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\]`)

// Structured-reply fields: case-insensitive, any order, terminated by a
// pipe or end of line.
var (
	statusPattern  = regexp.MustCompile(`(?i)\bSTATUS\s*:\s*([^|\r\n]+)`)
	commentPattern = regexp.MustCompile(`(?i)\bCOMMENT\s*:\s*([^|\r\n]+)`)
	timePattern    = regexp.MustCompile(`(?i)\bTIME\s*:\s*([^|\r\n]+)`)
)

const maxCommentLength = 2000

// WorkItemIDFromSubject extracts the work item id from a subject line.
func WorkItemIDFromSubject(subject string) (string, bool) {
	m := subjectPattern.FindStringSubmatch(strings.ToLower(subject))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseStructured applies the STATUS/COMMENT/TIME grammar to a reply body.
// The second return is false when no field yielded a usable value.
func ParseStructured(body string) (*llm.WorkInstruction, bool) {
	instruction := &llm.WorkInstruction{}

	if m := statusPattern.FindStringSubmatch(body); m != nil {
		// Status words normalize through the same alias table the LLM
		// extraction path uses; unknown words are dropped.
		instruction.Status = llm.NormalizeStatus(m[1])
	}
	if m := commentPattern.FindStringSubmatch(body); m != nil {
		comment := strings.TrimSpace(m[1])
		if len(comment) > maxCommentLength {
			comment = comment[:maxCommentLength]
		}
		instruction.Comment = comment
	}
	if m := timePattern.FindStringSubmatch(body); m != nil {
		if hours, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64); err == nil && hours >= 0 {
			instruction.TimeSpentHours = hours
		}
	}

	if instruction.IsEmpty() {
		return nil, false
	}
	return instruction, true
}

// ExtractTextBody pulls a plain-text body out of a raw RFC 822 message.
// text/plain parts win; HTML-only messages are converted to markdown.
// Part bodies are decoded per their declared charset, falling back to
// reading the bytes as-is when the charset is unknown.
func ExtractTextBody(raw []byte) (string, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", err
	}

	var plain, html string
	collectParts(entity, &plain, &html)

	if plain != "" {
		return strings.TrimSpace(plain), nil
	}
	if html != "" {
		converter := md.NewConverter("", true, nil)
		text, err := converter.ConvertString(html)
		if err != nil {
			return strings.TrimSpace(html), nil
		}
		return strings.TrimSpace(text), nil
	}
	return "", nil
}

// collectParts walks the MIME tree recording the first text/plain and
// text/html bodies it finds.
func collectParts(entity *message.Entity, plain, html *string) {
	mediaType, params, err := entity.Header.ContentType()
	if err != nil {
		mediaType = "text/plain"
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil {
				return
			}
			collectParts(part, plain, html)
		}
	}

	switch {
	case strings.EqualFold(mediaType, "text/plain") && *plain == "":
		*plain = decodeBody(entity.Body, params["charset"])
	case strings.EqualFold(mediaType, "text/html") && *html == "":
		*html = decodeBody(entity.Body, params["charset"])
	}
}

// decodeBody reads a part body honoring its declared charset. Unknown or
// broken charsets degrade to reading the raw bytes.
func decodeBody(body io.Reader, label string) string {
	if label != "" && !strings.EqualFold(label, "utf-8") {
		if decoded, err := charset.NewReaderLabel(label, body); err == nil {
			body = decoded
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return ""
	}
	return string(data)
}
