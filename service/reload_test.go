package service_test

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/nulltea/latpir/pir"
	"github.com/nulltea/latpir/service"
	"github.com/nulltea/latpir/store"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
)

func loadInto(srv *pir.Server[pir.PlainPoly, pir.PlainPoly]) service.LoadFunc {
	return func(ctx context.Context, db *store.Database) error {
		params := testParams()
		params.RecordCount = len(db.Records)
		params.RecordSize = db.RecordSize
		return srv.Load(ctx, params, db.Records)
	}
}

func retrieveAll(t *testing.T, srv *pir.Server[pir.PlainPoly, pir.PlainPoly]) [][]byte {
	params, _, err := srv.Params()
	require.NoError(t, err)
	pc, err := pir.NewClient(params, pir.NewPlainCryptor)
	require.NoError(t, err)

	records := make([][]byte, params.RecordCount)
	for i := range records {
		q, pos, err := pc.Query(i)
		require.NoError(t, err)
		reply, err := srv.Answer(context.Background(), q)
		require.NoError(t, err)
		records[i], err = pc.Decode(reply, pos)
		require.NoError(t, err)
	}
	return records
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bin")
	require.NoError(t, store.Save(path, testRecords))

	srv := pir.NewServer(pir.NewPlainScheme)
	scope := tally.NewTestScope("", nil)
	r := service.NewReloader(path, loadInto(srv), logr.Discard(), scope)
	ctx := context.Background()

	changed, err := r.Reload(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, testRecords, retrieveAll(t, srv))

	changed, err = r.Reload(ctx)
	require.NoError(t, err)
	require.False(t, changed)

	require.NoError(t, os.WriteFile(path, store.Marshal([][]byte{{1, 2}, {3}}), 0o644))
	_, err = r.Reload(ctx)
	require.ErrorContains(t, err, "database item size inconsistent")
	require.Equal(t, testRecords, retrieveAll(t, srv))

	require.Equal(t, int64(1), counterValue(scope, "reloads", map[string]string{"result": "ok"}))
	require.Equal(t, int64(1), counterValue(scope, "reloads", map[string]string{"result": "error"}))
}

func TestReloadOnSignalAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bin")
	require.NoError(t, store.Save(path, testRecords))

	srv := pir.NewServer(pir.NewPlainScheme)
	r := service.NewReloader(path, loadInto(srv), logr.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.Reload(ctx)
	require.NoError(t, err)

	signals := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, signals) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	digestOf := func() [32]byte {
		_, d, _ := srv.Params()
		return d
	}

	before := digestOf()
	second := [][]byte{{1, 2}, {3, 4}, {5, 6}}
	require.NoError(t, os.WriteFile(path, store.Marshal(second), 0o644))
	signals <- syscall.SIGHUP
	require.Eventually(t, func() bool { return digestOf() != before }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, second, retrieveAll(t, srv))

	before = digestOf()
	third := [][]byte{{9, 9, 9}, {8, 8, 8}}
	require.NoError(t, store.Save(path, third))
	require.Eventually(t, func() bool { return digestOf() != before }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, third, retrieveAll(t, srv))
}
