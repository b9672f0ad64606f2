// Package mbox implements an api.Source that reads messages from an mbox archive file.
package mbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"

	gombox "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/mailtext"
)

// MessageError reports a single message that could not be parsed.
// Iteration continues after it.
type MessageError struct {
	// Index is the zero-based position of the message in the archive.
	Index int
	Err   error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message %d: %v", e.Index, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// Archive is an mbox file on disk.
type Archive struct {
	path   string
	logger *slog.Logger
}

// Open checks that path is a readable regular file and returns an Archive for it.
// The file is not held open; every call to Messages reopens it.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("opening archive: %s is not a regular file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	_ = f.Close()

	return &Archive{
		path:   path,
		logger: logger.With("component", "mbox", "path", path),
	}, nil
}

// Path returns the archive location.
func (a *Archive) Path() string { return a.path }

// Messages streams the archive from the start. Malformed messages are yielded
// as a nil message with a *MessageError. Any other error ends the sequence.
func (a *Archive) Messages() iter.Seq2[*api.Message, error] {
	return func(yield func(*api.Message, error) bool) {
		f, err := os.Open(a.path)
		if err != nil {
			yield(nil, fmt.Errorf("opening archive: %w", err))
			return
		}
		defer f.Close()

		r := gombox.NewReader(f)
		for i := 0; ; i++ {
			raw, err := r.NextMessage()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("reading archive: %w", err))
				return
			}

			msg, err := Parse(raw)
			if err != nil {
				a.logger.Debug("skipping malformed message", "index", i, "error", err)
				if !yield(nil, &MessageError{Index: i, Err: err}) {
					return
				}
				continue
			}

			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Parse reads a single RFC 5322 message and flattens its body into text.
// The first plain text part wins; HTML is only used when there is none.
func Parse(r io.Reader) (*api.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing headers: %w", err)
	}
	defer mr.Close()

	// Undecodable encoded-words fall back to the raw header value.
	subject, _ := mr.Header.Subject()
	from, _ := mr.Header.Text("From")
	date, _ := mr.Header.Date()

	body, err := extractBody(mr)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return &api.Message{
		Subject: strings.TrimSpace(subject),
		From:    from,
		Body:    body,
		Date:    date,
	}, nil
}

// bodyParts collects the best text candidates found while walking a MIME tree.
type bodyParts struct {
	plain string
	html  string
}

func extractBody(mr *mail.Reader) (string, error) {
	var parts bodyParts
	if err := walk(mr, &parts); err != nil {
		return "", err
	}
	if strings.TrimSpace(parts.plain) != "" {
		return mailtext.Normalize(parts.plain), nil
	}
	if parts.html != "" {
		return mailtext.StripHTML(parts.html), nil
	}
	return "", nil
}

func walk(mr *mail.Reader, parts *bodyParts) error {
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return fmt.Errorf("reading part: %w", err)
		}

		h := entityHeader(p.Header)
		mediaType, _, err := h.ContentType()
		if err != nil {
			mediaType = "text/plain"
		}
		if mediaType != "text/plain" && mediaType != "text/html" {
			continue
		}
		if disp, _, _ := h.ContentDisposition(); disp == "attachment" {
			continue
		}

		text, err := decodePart(p.Body)
		if err != nil {
			return err
		}
		switch mediaType {
		case "text/plain":
			if parts.plain == "" {
				parts.plain = text
			}
		case "text/html":
			if parts.html == "" {
				parts.html = text
			}
		}
	}
}

// entityHeader unwraps the MIME header behind a part's inline or attachment view.
func entityHeader(h mail.PartHeader) message.Header {
	switch h := h.(type) {
	case *mail.InlineHeader:
		return h.Header
	case *mail.AttachmentHeader:
		return h.Header
	}
	return message.Header{}
}

// decodePart drains a part body that go-message already decoded to UTF-8.
func decodePart(r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("decoding part: %w", err)
	}
	return buf.String(), nil
}
