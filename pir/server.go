package pir

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/nulltea/latpir/core"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"
)

// Query is what a client sends for one retrieval.
type Query struct {
	Index       []byte `json:"index"`
	GaloisKeys  []byte `json:"galois_keys"`
	Fingerprint []byte `json:"fingerprint"`
}

// Reply carries the serialized reply ciphertexts in order.
type Reply struct {
	Ciphertexts [][]byte `json:"ciphertexts"`
}

type serverState[C, P any] struct {
	params      Parameters
	scheme      Scheme[C, P]
	db          *Database[P]
	fingerprint []byte
}

// Server answers queries against the current database. The database is replaced
// wholesale by Load and published with a single atomic swap.
type Server[C, P any] struct {
	newScheme SchemeFactory[C, P]
	state     atomic.Pointer[serverState[C, P]]
	log       logr.Logger
	workers   int
}

type serverOptions struct {
	log     logr.Logger
	workers int
}

type ServerOption func(*serverOptions)

func WithLogger(log logr.Logger) ServerOption {
	return func(o *serverOptions) { o.log = log }
}

// WithWorkers bounds the goroutines used for preprocessing and reply generation.
// Zero means GOMAXPROCS.
func WithWorkers(n int) ServerOption {
	return func(o *serverOptions) { o.workers = n }
}

func NewServer[C, P any](newScheme SchemeFactory[C, P], opts ...ServerOption) *Server[C, P] {
	o := serverOptions{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server[C, P]{newScheme: newScheme, log: o.log, workers: o.workers}
}

// Load builds a database from records off to the side and swaps it in. On error
// the previous database keeps being served.
func (s *Server[C, P]) Load(ctx context.Context, params Parameters, records [][]byte) (err error) {
	_, span := core.StartSpan(ctx, "pir.Load", nil, attribute.Int("records", len(records)))
	defer func() { span.EndWithError(err) }()

	g, err := params.Geometry()
	if err != nil {
		return err
	}
	scheme, err := s.newScheme(g)
	if err != nil {
		return ErrConfig.Wrap(err)
	}
	db, err := BuildDatabase(scheme, g, records, s.workers)
	if err != nil {
		return err
	}

	s.state.Store(&serverState[C, P]{
		params:      params,
		scheme:      scheme,
		db:          db,
		fingerprint: Fingerprint(g, scheme.Moduli()),
	})
	s.log.Info("database loaded",
		"records", params.RecordCount,
		"recordSize", params.RecordSize,
		"plaintexts", db.Used,
		"dimensions", g.Dimensions,
		"digest", fmt.Sprintf("%x", db.Digest[:8]))
	return nil
}

// Params returns the published parameters and the digest of the loaded records.
func (s *Server[C, P]) Params() (Parameters, [32]byte, error) {
	st := s.state.Load()
	if st == nil {
		return Parameters{}, [32]byte{}, ErrConfig.New("no database loaded")
	}
	return st.params, st.db.Digest, nil
}

// Answer expands the query and contracts the current database against it. The
// database snapshot is taken once, so a concurrent Load never affects a query in
// flight.
func (s *Server[C, P]) Answer(ctx context.Context, q Query) (Reply, error) {
	st := s.state.Load()
	if st == nil {
		return Reply{}, ErrConfig.New("no database loaded")
	}
	g := st.db.Geometry

	ctx, span := core.StartSpan(ctx, "pir.Answer", nil,
		attribute.Int("records", g.Params.RecordCount),
		attribute.IntSlice("dimensions", g.Dimensions))
	reply, err := s.answer(ctx, st, q, span)
	span.EndWithError(err)
	return reply, err
}

func (s *Server[C, P]) answer(ctx context.Context, st *serverState[C, P], q Query, parent *core.Span) (Reply, error) {
	g := st.db.Geometry
	if !bytes.Equal(q.Fingerprint, st.fingerprint) {
		return Reply{}, ErrInvalidArgument.New("query was built for different parameters")
	}
	ct, err := st.scheme.UnmarshalCiphertext(q.Index)
	if err != nil {
		return Reply{}, ErrInvalidArgument.Wrap(err)
	}
	ev, err := st.scheme.NewEvaluator(q.GaloisKeys, ExpansionGaloisElements(g))
	if err != nil {
		return Reply{}, err
	}

	selectors, err := core.WithSpan(ctx, "pir.ExpandQuery", parent, func(context.Context, *core.Span) ([][]C, error) {
		return ExpandQuery(ev, g, ct)
	})
	if err != nil {
		return Reply{}, ErrCrypto.Wrap(err)
	}
	cts, err := core.WithSpan(ctx, "pir.GenerateReply", parent, func(context.Context, *core.Span) ([]C, error) {
		return GenerateReply(ev, st.scheme, st.db, selectors, s.workers)
	})
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Ciphertexts: make([][]byte, len(cts))}
	for i, ct := range cts {
		if reply.Ciphertexts[i], err = st.scheme.MarshalCiphertext(ct); err != nil {
			return Reply{}, ErrCrypto.Wrap(err)
		}
	}
	return reply, nil
}
