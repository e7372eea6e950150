package store_test

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nulltea/latpir/core"
	"github.com/nulltea/latpir/pir"
	"github.com/nulltea/latpir/store"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestSaveLoad(t *testing.T) {
	records, err := core.RandomRecords(17, 9, 1)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "db.bin")

	require.NoError(t, store.Save(path, records))
	db, err := store.Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, db.RecordSize)
	if diff := cmp.Diff(records, db.Records); diff != "" {
		t.Fatalf("records differ (-want +got):\n%s", diff)
	}

	again, err := store.Load(path)
	require.NoError(t, err)
	require.Equal(t, db.Digest, again.Digest)
}

func TestMarshalWireFormat(t *testing.T) {
	data := store.Marshal([][]byte{{0xAA, 0xBB}})
	// item = 1 (bytes) { value = 1 (bytes) [AA BB] }
	require.Equal(t, []byte{0x0a, 0x04, 0x0a, 0x02, 0xAA, 0xBB}, data)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	var item []byte
	item = protowire.AppendTag(item, 2, protowire.VarintType)
	item = protowire.AppendVarint(item, 99)
	item = protowire.AppendTag(item, 1, protowire.BytesType)
	item = protowire.AppendBytes(item, []byte{7})

	var data []byte
	data = protowire.AppendTag(data, 3, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("ignored"))
	data = protowire.AppendTag(data, 1, protowire.BytesType)
	data = protowire.AppendBytes(data, item)

	db, err := store.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{7}}, db.Records)
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := store.Unmarshal(nil)
	require.True(t, pir.ErrConfig.Has(err))

	_, err = store.Unmarshal(store.Marshal([][]byte{{1, 2}, {3}}))
	require.True(t, pir.ErrConfig.Has(err))
	require.ErrorContains(t, err, "database item size inconsistent")

	_, err = store.Unmarshal(store.Marshal([][]byte{{}, {}}))
	require.True(t, pir.ErrConfig.Has(err))

	_, err = store.Unmarshal([]byte{0x0a, 0x05, 0x01})
	require.True(t, pir.ErrConfig.Has(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := store.Load(filepath.Join(t.TempDir(), "missing"))
	require.True(t, pir.ErrConfig.Has(err))
	require.ErrorIs(t, err, fs.ErrNotExist)
}
