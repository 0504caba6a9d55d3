// Package jupyter provides the typed Jupyter message model: envelope
// headers, HMAC-signed wire encoding, and the content variants exchanged on
// the shell and iopub channels. It is grounded on
// _examples/crackcomm-go-jupyter/jupyter, generalized to cover every
// message kind the kernel adapter needs to dispatch on.
package jupyter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Version is the Jupyter messaging protocol version this package speaks.
const Version = "5.3"

// ErrInvalidSignature is returned when a received message's HMAC signature
// does not match the configured key.
var ErrInvalidSignature = errors.New("jupyter: invalid message signature")

// Header is the envelope header shared by every Jupyter message.
// https://jupyter-protocol.readthedocs.io/en/latest/messaging.html#general-message-format
type Header struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// HasID reports whether the header is non-zero. A zero Header marks the
// absence of a parent (messages with no parent are logged, not failed).
func (h Header) HasID() bool { return h.MsgID != "" }

// RawEnvelope is the wire-shape of a Jupyter message before its Content is
// parsed into a typed variant.
type RawEnvelope struct {
	Header       Header                 `json:"header"`
	ParentHeader Header                 `json:"parent_header"`
	Metadata     map[string]interface{} `json:"metadata"`
	Content      json.RawMessage        `json:"content"`
}

// Envelope is a Jupyter message with its Content not yet encoded, ready to
// sign and send.
type Envelope struct {
	Header       Header
	ParentHeader Header
	Metadata     map[string]interface{}
	Content      interface{}
}

// NewHeader builds a Header for a freshly originated message.
func NewHeader(msgType, session string) Header {
	return Header{
		MsgID:    uuid.New().String(),
		Username: "knitj",
		Session:  session,
		Date:     time.Now().UTC().Format(time.RFC3339Nano),
		MsgType:  msgType,
		Version:  Version,
	}
}

// Encode signs and JSON-marshals the envelope into the 5-part Jupyter wire
// format (signature, header, parent_header, metadata, content). The
// caller prepends the "<IDS|MSG>" delimiter frame itself.
func (e *Envelope) Encode(signKey []byte) ([][]byte, error) {
	parts := make([][]byte, 5)
	values := []interface{}{e.Header, e.ParentHeader, e.Metadata, e.Content}
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding jupyter message part %d", i)
		}
		parts[1+i] = b
	}
	if len(signKey) > 0 {
		sig, err := sign(parts[1:], signKey)
		if err != nil {
			return nil, err
		}
		parts[0] = sig
	}
	return parts, nil
}

func sign(parts [][]byte, key []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	sig := make([]byte, hex.EncodedLen(mac.Size()))
	hex.Encode(sig, mac.Sum(nil))
	return sig, nil
}

// DecodeRaw parses the 6-frame wire format (delimiter, signature, header,
// parent_header, metadata, content) starting from the delimiter frame,
// verifying the signature if signKey is non-empty.
func DecodeRaw(frames [][]byte, signKey []byte) (*RawEnvelope, error) {
	idx, err := findDelimiter(frames)
	if err != nil {
		return nil, err
	}
	if len(signKey) > 0 {
		if err := verify(frames, idx, signKey); err != nil {
			return nil, err
		}
	}
	var raw RawEnvelope
	fields := []interface{}{&raw.Header, &raw.ParentHeader, &raw.Metadata, &raw.Content}
	for i, f := range fields {
		part := frames[idx+2+i]
		if len(part) == 0 {
			continue
		}
		if err := json.Unmarshal(part, f); err != nil {
			return nil, errors.Wrapf(err, "decoding jupyter message part %d", i)
		}
	}
	return &raw, nil
}

func findDelimiter(frames [][]byte) (int, error) {
	for i, f := range frames {
		if string(f) == "<IDS|MSG>" {
			return i, nil
		}
	}
	return 0, errors.New("jupyter: delimiter frame not found")
}

func verify(frames [][]byte, idx int, key []byte) error {
	mac := hmac.New(sha256.New, key)
	for _, part := range frames[idx+2 : idx+6] {
		mac.Write(part)
	}
	sig := make([]byte, hex.DecodedLen(len(frames[idx+1])))
	if _, err := hex.Decode(sig, frames[idx+1]); err != nil {
		return errors.Wrap(err, "decoding signature")
	}
	if !hmac.Equal(mac.Sum(nil), sig) {
		return ErrInvalidSignature
	}
	return nil
}
