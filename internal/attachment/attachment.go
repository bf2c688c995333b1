// Package attachment normalises captured media into the inline payload sent to the provider.
package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

const (
	DefaultImageMIME = "image/jpeg"
	DefaultAudioMIME = "audio/webm"
)

// MaxSize caps how much of a blob is read.
const MaxSize = 20 << 20

var ErrEncoding = errors.New("attachment encoding failed")

// EncodingError reports why a blob could not be turned into a Payload.
type EncodingError struct {
	Kind Kind
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s attachment: %v", e.Kind, e.Err)
}

func (e *EncodingError) Unwrap() []error { return []error{ErrEncoding, e.Err} }

// Media is a finished capture waiting to be sent. Body is either raw bytes
// or a browser data URL ("data:<mime>;base64,<data>"). When Encoded is set,
// a Body that is not a data URL is bare base64 text and is forwarded as is.
type Media struct {
	Kind     Kind
	MIMEType string
	Body     io.Reader
	Encoded  bool
}

// Payload is the transport form of one attachment. Data is standard base64.
type Payload struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Decoded returns the raw bytes of the payload.
func (p Payload) Decoded() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// Select picks the single attachment that accompanies a message. An image
// takes precedence over an audio clip.
func Select(image, audio *Media) *Media {
	if image != nil {
		return image
	}
	return audio
}

// Encode reads m.Body to completion and wraps it into a Payload.
func Encode(ctx context.Context, m Media) (Payload, error) {
	if m.Kind != KindImage && m.Kind != KindAudio {
		return Payload{}, &EncodingError{Kind: m.Kind, Err: fmt.Errorf("unsupported kind %q", m.Kind)}
	}
	if m.Body == nil {
		return Payload{}, &EncodingError{Kind: m.Kind, Err: errors.New("no data")}
	}

	raw, err := readAll(ctx, m.Body)
	if err != nil {
		return Payload{}, &EncodingError{Kind: m.Kind, Err: err}
	}
	if len(raw) == 0 {
		return Payload{}, &EncodingError{Kind: m.Kind, Err: errors.New("empty blob")}
	}

	mimeType := m.MIMEType
	var data string
	if header, body, ok := splitDataURL(raw); ok {
		if _, err := base64.StdEncoding.DecodeString(body); err != nil {
			return Payload{}, &EncodingError{Kind: m.Kind, Err: fmt.Errorf("malformed data URL: %w", err)}
		}
		if mimeType == "" {
			mimeType = header
		}
		data = body
	} else if m.Encoded {
		data = strings.TrimSpace(string(raw))
		if _, err := base64.StdEncoding.DecodeString(data); err != nil {
			return Payload{}, &EncodingError{Kind: m.Kind, Err: fmt.Errorf("malformed base64: %w", err)}
		}
	} else {
		data = base64.StdEncoding.EncodeToString(raw)
	}

	if mimeType == "" {
		mimeType = defaultMIME(m.Kind)
	}
	return Payload{MIMEType: mimeType, Data: data}, nil
}

func defaultMIME(k Kind) string {
	if k == KindAudio {
		return DefaultAudioMIME
	}
	return DefaultImageMIME
}

// readAll is io.ReadAll bounded by MaxSize and abandoned when ctx is done.
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
		done <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if len(res.data) > MaxSize {
			return nil, fmt.Errorf("blob exceeds %d bytes", MaxSize)
		}
		return res.data, nil
	}
}

// splitDataURL returns the media type and base64 body of a data URL.
func splitDataURL(raw []byte) (mimeType, body string, ok bool) {
	s := string(raw)
	if !strings.HasPrefix(s, "data:") {
		return "", "", false
	}
	header, body, found := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !found || !strings.HasSuffix(header, ";base64") {
		return "", "", false
	}
	mimeType = strings.TrimSuffix(header, ";base64")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType, strings.TrimSpace(body), true
}
