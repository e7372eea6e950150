package fhe

import (
	"github.com/nulltea/latpir/pir"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"google.golang.org/protobuf/encoding/protowire"
)

// galoisKeyField is the field number of the repeated bytes field carrying one
// marshaled GaloisKey in a key set.
const galoisKeyField protowire.Number = 1

// MarshalGaloisKeys frames the keys as a protobuf message with a single repeated
// bytes field.
func MarshalGaloisKeys(gks []*rlwe.GaloisKey) ([]byte, error) {
	var data []byte
	for _, gk := range gks {
		raw, err := gk.MarshalBinary()
		if err != nil {
			return nil, pir.ErrCrypto.Wrap(err)
		}
		data = protowire.AppendTag(data, galoisKeyField, protowire.BytesType)
		data = protowire.AppendBytes(data, raw)
	}
	return data, nil
}

// UnmarshalGaloisKeys parses a key set framed by MarshalGaloisKeys. Every key
// must have the shape of a default rotation key for params.
func UnmarshalGaloisKeys(params bgv.Parameters, data []byte) ([]*rlwe.GaloisKey, error) {
	var gks []*rlwe.GaloisKey
	if len(data) == 0 {
		return gks, nil
	}
	layout, err := galoisKeyLayout(params)
	if err != nil {
		return nil, err
	}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, pir.ErrInvalidArgument.New("malformed key set: %v", protowire.ParseError(n))
		}
		data = data[n:]
		if num != galoisKeyField || typ != protowire.BytesType {
			if n = protowire.ConsumeFieldValue(num, typ, data); n < 0 {
				return nil, pir.ErrInvalidArgument.New("malformed key set: %v", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		raw, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, pir.ErrInvalidArgument.New("malformed key set: %v", protowire.ParseError(n))
		}
		data = data[n:]

		if len(raw) != layout.size() {
			return nil, pir.ErrInvalidArgument.New("rotation key %d of %d bytes, expected %d", len(gks), len(raw), layout.size())
		}
		gk := rlwe.NewGaloisKey(params)
		if err := layout.decode(raw, gk.UnmarshalBinary); err != nil {
			return nil, err
		}
		gks = append(gks, gk)
	}
	return gks, nil
}
