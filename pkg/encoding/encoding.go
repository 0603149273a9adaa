package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/ulikunitz/xz/lzma"
)

const (
	payloadHeaderRaw  = 0x00
	payloadHeaderLzma = 0x30
)

var ErrInvalidPayload = errors.New("encoding: invalid payload header")

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): the same entry
// always serializes to the same bytes, which keeps addresses stable.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("encoding: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("encoding: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodePayload prefixes body with a one byte header. When compress is set
// the body is LZMA compressed, but only if that actually makes it smaller.
func EncodePayload(body []byte, compress bool) ([]byte, error) {
	if compress {
		compressed, err := compressWithLzma(body)
		if err != nil {
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		if len(compressed) < len(body) {
			return append([]byte{payloadHeaderLzma}, compressed...), nil
		}
	}

	encoded := make([]byte, 1, len(body)+1)
	encoded[0] = payloadHeaderRaw
	return append(encoded, body...), nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(payload []byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}

	switch payload[0] {
	case payloadHeaderRaw:
		return payload[1:], nil
	case payloadHeaderLzma:
		return decompressWithLzma(payload[1:])
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidPayload, payload[0])
	}
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open lzma reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return out, nil
}
