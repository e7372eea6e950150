package service_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/nulltea/latpir/pir"
	"github.com/nulltea/latpir/service"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
)

func testParams() pir.Parameters {
	return pir.Parameters{
		RecordCount:          4,
		RecordSize:           2,
		PolyDegree:           8,
		PlaintextModulusBits: 4,
		Dimensionality:       2,
		Dimensions:           []int{2, 2},
	}
}

var testRecords = [][]byte{{0xAA, 0xBB}, {0xCC, 0xDD}, {0xEE, 0xFF}, {0x11, 0x22}}

func newTestService(t *testing.T) (*service.Client, *pir.Server[pir.PlainPoly, pir.PlainPoly], tally.TestScope) {
	srv := pir.NewServer(pir.NewPlainScheme)
	require.NoError(t, srv.Load(context.Background(), testParams(), testRecords))

	scope := tally.NewTestScope("", nil)
	handler, err := service.NewHandler(service.NewPIRService(srv, service.WithScope(scope)))
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return service.NewClient(ts.URL), srv, scope
}

func counterValue(scope tally.TestScope, name string, tags map[string]string) int64 {
	var total int64
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() != name {
			continue
		}
		match := true
		for k, v := range tags {
			if c.Tags()[k] != v {
				match = false
			}
		}
		if match {
			total += c.Value()
		}
	}
	return total
}

func TestGetParams(t *testing.T) {
	client, srv, _ := newTestService(t)

	params, digest, err := client.GetParams(context.Background())
	require.NoError(t, err)
	require.Equal(t, testParams(), params)

	_, want, err := srv.Params()
	require.NoError(t, err)
	require.Equal(t, want[:], digest)
}

func TestPrivateQuery(t *testing.T) {
	client, _, scope := newTestService(t)
	ctx := context.Background()

	params, _, err := client.GetParams(ctx)
	require.NoError(t, err)
	pc, err := pir.NewClient(params, pir.NewPlainCryptor)
	require.NoError(t, err)

	for i, want := range testRecords {
		q, pos, err := pc.Query(i)
		require.NoError(t, err)
		reply, err := client.PrivateQuery(ctx, q)
		require.NoError(t, err)
		record, err := pc.Decode(reply, pos)
		require.NoError(t, err)
		require.Equal(t, want, record)
	}
	require.Equal(t, int64(len(testRecords)), counterValue(scope, "queries", nil))
	require.Zero(t, counterValue(scope, "failures", nil))
}

func TestPrivateQueryRejected(t *testing.T) {
	client, _, scope := newTestService(t)
	ctx := context.Background()

	other := testParams()
	other.PolyDegree = 16
	pc, err := pir.NewClient(other, pir.NewPlainCryptor)
	require.NoError(t, err)
	q, _, err := pc.Query(0)
	require.NoError(t, err)

	_, err = client.PrivateQuery(ctx, q)
	require.ErrorContains(t, err, "different parameters")
	require.Equal(t, int64(1), counterValue(scope, "failures", map[string]string{"class": "invalid_argument"}))

	q.Fingerprint = nil
	_, err = client.PrivateQuery(ctx, q)
	require.Error(t, err)
	require.Equal(t, int64(2), counterValue(scope, "failures", nil))
	require.Zero(t, counterValue(scope, "queries", nil))
}

func TestGetParamsBeforeLoad(t *testing.T) {
	handler, err := service.NewHandler(service.NewPIRService(pir.NewServer(pir.NewPlainScheme)))
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	_, _, err = service.NewClient(ts.URL).GetParams(context.Background())
	require.ErrorContains(t, err, "no database loaded")
}
