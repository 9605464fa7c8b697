// Package mail decodes stored .eml files into parser inputs: MIME
// multipart walking, transfer-encoding decode, encoded-word subjects, HTML
// body stripping, and PDF attachment collection.
package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"strings"

	"golang.org/x/net/html"

	"github.com/stevelea/ev-charging-extractor/internal/parse"
	"github.com/stevelea/ev-charging-extractor/internal/receipt"
)

// Parse decodes a raw RFC 5322 message into a parser input. Plain-text
// parts win over HTML; HTML-only messages are stripped to text. PDF
// attachments are carried along for the invoice parsers.
func Parse(raw []byte) (parse.Input, error) {
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return parse.Input{}, fmt.Errorf("reading message: %w", err)
	}

	in := parse.Input{
		Source:  receipt.SourceEmail,
		Sender:  msg.Header.Get("From"),
		Subject: decodeSubject(msg.Header.Get("Subject")),
	}

	var plain, htmlBody strings.Builder
	if err := walkPart(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"),
		msg.Header.Get("Content-Disposition"), msg.Body, &plain, &htmlBody, &in.Attachments); err != nil {
		return parse.Input{}, fmt.Errorf("decoding body: %w", err)
	}

	in.Text = plain.String()
	if strings.TrimSpace(in.Text) == "" && htmlBody.Len() > 0 {
		in.Text = StripHTML(htmlBody.String())
	}
	return in, nil
}

// walkPart recurses through the MIME tree, routing each leaf part to the
// plain-text buffer, the HTML buffer or the attachment list.
func walkPart(contentType, encoding, disposition string, body io.Reader,
	plain, htmlBody *strings.Builder, attachments *[]parse.Attachment) error {

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// unlabeled bodies are treated as plain text
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart message without boundary")
		}
		reader := multipart.NewReader(body, boundary)
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading part: %w", err)
			}
			err = walkPart(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"),
				part.Header.Get("Content-Disposition"), part, plain, htmlBody, attachments)
			part.Close()
			if err != nil {
				return err
			}
		}
	}

	data, err := io.ReadAll(decodeTransfer(body, encoding))
	if err != nil {
		return fmt.Errorf("reading part body: %w", err)
	}

	switch {
	case mediaType == "application/pdf" || strings.HasSuffix(strings.ToLower(filename(disposition, params)), ".pdf"):
		*attachments = append(*attachments, parse.Attachment{
			Filename: filename(disposition, params),
			Data:     data,
		})
	case mediaType == "text/plain":
		plain.Write(data)
		plain.WriteByte('\n')
	case mediaType == "text/html":
		htmlBody.Write(data)
	}
	return nil
}

func decodeTransfer(body io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newLineStripper(body))
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}

// newLineStripper removes CR/LF so base64 bodies wrapped at 76 columns
// decode cleanly.
func newLineStripper(r io.Reader) io.Reader {
	data, err := io.ReadAll(r)
	if err != nil {
		return r
	}
	data = bytes.ReplaceAll(data, []byte("\r"), nil)
	data = bytes.ReplaceAll(data, []byte("\n"), nil)
	return bytes.NewReader(data)
}

func filename(disposition string, typeParams map[string]string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	return typeParams["name"]
}

func decodeSubject(subject string) string {
	decoder := mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(subject)
	if err != nil {
		return subject
	}
	return decoded
}

// StripHTML flattens an HTML body to whitespace-normalized text, skipping
// script and style content.
func StripHTML(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var out strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(out.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "tr", "li":
				out.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				out.Write(tokenizer.Text())
				out.WriteByte(' ')
			}
		}
	}
}
