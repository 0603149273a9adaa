package linkindex

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/i5heu/ouroboros-courses/pkg/types"
)

// Field numbers of the stored edge record.
const (
	fieldTarget    protowire.Number = 1
	fieldTag       protowire.Number = 2
	fieldCreated   protowire.Number = 3
	fieldRemoved   protowire.Number = 4
	fieldRemovedAt protowire.Number = 5
)

// record is the value stored under an edge key. Base, link type and the edge
// ID live in the key.
type record struct {
	Target    types.Address
	Tag       string
	Created   int64
	Removed   bool
	RemovedAt int64
}

func encodeRecord(r record) []byte {
	b := make([]byte, 0, types.AddressSize+len(r.Tag)+24)
	b = protowire.AppendTag(b, fieldTarget, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Target[:])
	b = protowire.AppendTag(b, fieldTag, protowire.BytesType)
	b = protowire.AppendString(b, r.Tag)
	b = protowire.AppendTag(b, fieldCreated, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Created))
	if r.Removed {
		b = protowire.AppendTag(b, fieldRemoved, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
		b = protowire.AppendTag(b, fieldRemovedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.RemovedAt))
	}
	return b
}

var errMalformedRecord = errors.New("linkindex: malformed edge record")

func decodeRecord(b []byte) (record, error) {
	var r record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return record{}, fmt.Errorf("%w: %v", errMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldTarget && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return record{}, fmt.Errorf("%w: %v", errMalformedRecord, protowire.ParseError(n))
			}
			target, err := types.AddressFromBytes(v)
			if err != nil {
				return record{}, fmt.Errorf("%w: %v", errMalformedRecord, err)
			}
			r.Target = target
			b = b[n:]
		case num == fieldTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return record{}, fmt.Errorf("%w: %v", errMalformedRecord, protowire.ParseError(n))
			}
			r.Tag = v
			b = b[n:]
		case typ == protowire.VarintType && (num == fieldCreated || num == fieldRemoved || num == fieldRemovedAt):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return record{}, fmt.Errorf("%w: %v", errMalformedRecord, protowire.ParseError(n))
			}
			switch num {
			case fieldCreated:
				r.Created = int64(v)
			case fieldRemoved:
				r.Removed = protowire.DecodeBool(v)
			case fieldRemovedAt:
				r.RemovedAt = int64(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return record{}, fmt.Errorf("%w: %v", errMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}
