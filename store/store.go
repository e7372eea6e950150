// Package store reads and writes record databases in the PIRDatabase wire format:
//
//	message Item { bytes value = 1; }
//	message PIRDatabase { repeated Item item = 1; }
package store

import (
	"os"
	"path/filepath"

	"github.com/nulltea/latpir/pir"
	"github.com/zeebo/blake3"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	itemField  protowire.Number = 1
	valueField protowire.Number = 1
)

// Database is a decoded record store.
type Database struct {
	Records    [][]byte
	RecordSize int
	// Digest is the blake3 hash of the encoded file.
	Digest [32]byte
}

// Marshal encodes records as a PIRDatabase message.
func Marshal(records [][]byte) []byte {
	var data []byte
	for _, r := range records {
		var item []byte
		item = protowire.AppendTag(item, valueField, protowire.BytesType)
		item = protowire.AppendBytes(item, r)
		data = protowire.AppendTag(data, itemField, protowire.BytesType)
		data = protowire.AppendBytes(data, item)
	}
	return data
}

// Unmarshal decodes a PIRDatabase message. Every record must have the same
// non-zero size and the store must not be empty.
func Unmarshal(data []byte) (*Database, error) {
	db := &Database{Digest: blake3.Sum256(data)}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, pir.ErrConfig.New("malformed database: %v", protowire.ParseError(n))
		}
		data = data[n:]
		if num != itemField || typ != protowire.BytesType {
			if n = protowire.ConsumeFieldValue(num, typ, data); n < 0 {
				return nil, pir.ErrConfig.New("malformed database: %v", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		item, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, pir.ErrConfig.New("malformed database: %v", protowire.ParseError(n))
		}
		data = data[n:]

		value, err := unmarshalItem(item)
		if err != nil {
			return nil, err
		}
		if len(db.Records) == 0 {
			db.RecordSize = len(value)
		} else if len(value) != db.RecordSize {
			return nil, pir.ErrConfig.New("database item size inconsistent: item %d has %d bytes, expected %d",
				len(db.Records), len(value), db.RecordSize)
		}
		db.Records = append(db.Records, value)
	}

	if len(db.Records) == 0 {
		return nil, pir.ErrConfig.New("database is empty")
	}
	if db.RecordSize == 0 {
		return nil, pir.ErrConfig.New("database items are empty")
	}
	return db, nil
}

func unmarshalItem(data []byte) ([]byte, error) {
	var value []byte
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, pir.ErrConfig.New("malformed database item: %v", protowire.ParseError(n))
		}
		data = data[n:]
		if num != valueField || typ != protowire.BytesType {
			if n = protowire.ConsumeFieldValue(num, typ, data); n < 0 {
				return nil, pir.ErrConfig.New("malformed database item: %v", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, pir.ErrConfig.New("malformed database item: %v", protowire.ParseError(n))
		}
		data = data[n:]
		// Last one wins, as for any proto3 scalar field.
		value = append([]byte(nil), v...)
	}
	return value, nil
}

func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pir.ErrConfig.Wrap(err)
	}
	return Unmarshal(data)
}

// Save writes records to path through a temporary file in the same directory,
// so that a watcher on path never observes a partial database.
func Save(path string, records [][]byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(Marshal(records)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
