// Package service exposes a pir.Server over JSON-RPC.
//
// Two methods are served at a single HTTP endpoint:
//
//	PIRService.GetParams     returns the published parameters and the database digest
//	PIRService.PrivateQuery  answers one encrypted query
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/rpc"
	rpcjson "github.com/gorilla/rpc/json"
	"github.com/nulltea/latpir/pir"
	"github.com/paulbellamy/ratecounter"
	"github.com/uber-go/tally"
)

// Backend is the part of pir.Server the service needs.
type Backend interface {
	Params() (pir.Parameters, [32]byte, error)
	Answer(ctx context.Context, q pir.Query) (pir.Reply, error)
}

type GetParamsArgs struct{}

type GetParamsReply struct {
	Params pir.Parameters `json:"params"`
	Digest []byte         `json:"digest"`
}

type PrivateQueryArgs struct {
	Query pir.Query `json:"query"`
}

type PrivateQueryReply struct {
	Reply pir.Reply `json:"reply"`
}

// PIRService holds no per-client state; every query carries its own keys.
type PIRService struct {
	backend Backend
	log     logr.Logger
	scope   tally.Scope
	latency tally.Timer
	rate    *ratecounter.RateCounter
}

type Option func(*PIRService)

func WithLogger(log logr.Logger) Option {
	return func(s *PIRService) { s.log = log }
}

// WithScope sets the tally scope queries are counted and timed in.
func WithScope(scope tally.Scope) Option {
	return func(s *PIRService) { s.scope = scope }
}

func NewPIRService(backend Backend, opts ...Option) *PIRService {
	s := &PIRService{
		backend: backend,
		log:     logr.Discard(),
		scope:   tally.NoopScope,
		rate:    ratecounter.NewRateCounter(time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.latency = s.scope.Timer("reply_latency")
	return s
}

func (s *PIRService) GetParams(r *http.Request, _ *GetParamsArgs, reply *GetParamsReply) error {
	params, digest, err := s.backend.Params()
	if err != nil {
		return err
	}
	reply.Params = params
	reply.Digest = digest[:]
	return nil
}

func (s *PIRService) PrivateQuery(r *http.Request, args *PrivateQueryArgs, reply *PrivateQueryReply) error {
	id := uuid.New()
	log := s.log.WithValues("request", id)
	querySize := len(args.Query.Index) + len(args.Query.GaloisKeys)

	sw := s.latency.Start()
	answer, err := s.backend.Answer(r.Context(), args.Query)
	sw.Stop()
	if err != nil {
		s.scope.Tagged(map[string]string{"class": errorClass(err)}).Counter("failures").Inc(1)
		log.Error(err, "query failed", "querySize", humanize.Bytes(uint64(querySize)))
		return err
	}

	s.scope.Counter("queries").Inc(1)
	s.rate.Incr(1)
	replySize := 0
	for _, ct := range answer.Ciphertexts {
		replySize += len(ct)
	}
	s.scope.Gauge("reply_bytes").Update(float64(replySize))
	log.V(1).Info("query answered",
		"querySize", humanize.Bytes(uint64(querySize)),
		"replySize", humanize.Bytes(uint64(replySize)),
		"queriesPerMinute", s.rate.Rate())

	reply.Reply = answer
	return nil
}

// QueriesPerMinute is the number of queries answered in the last minute.
func (s *PIRService) QueriesPerMinute() int64 {
	return s.rate.Rate()
}

func errorClass(err error) string {
	switch {
	case pir.ErrInvalidArgument.Has(err):
		return "invalid_argument"
	case pir.ErrConfig.Has(err):
		return "config"
	case pir.ErrCrypto.Has(err):
		return "crypto"
	}
	return "internal"
}

// NewHandler returns the JSON-RPC handler serving svc.
func NewHandler(svc *PIRService) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(rpcjson.NewCodec(), "application/json")
	if err := server.RegisterService(svc, ""); err != nil {
		return nil, err
	}
	return server, nil
}
