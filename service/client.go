package service

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	rpcjson "github.com/gorilla/rpc/json"
	"github.com/nulltea/latpir/pir"
)

// Client calls a PIRService over HTTP.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for the JSON-RPC endpoint at url. Replies of large
// databases take a while to compute, so the timeout is generous.
func NewClient(url string) *Client {
	return &Client{url: url, http: &http.Client{Timeout: 5 * time.Minute}}
}

func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	body, err := rpcjson.EncodeClientRequest(method, args)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if err := rpcjson.DecodeClientResponse(resp.Body, reply); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: %s: %w", method, resp.Status, err)
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *Client) GetParams(ctx context.Context) (pir.Parameters, []byte, error) {
	var reply GetParamsReply
	if err := c.call(ctx, "PIRService.GetParams", &GetParamsArgs{}, &reply); err != nil {
		return pir.Parameters{}, nil, err
	}
	return reply.Params, reply.Digest, nil
}

func (c *Client) PrivateQuery(ctx context.Context, q pir.Query) (pir.Reply, error) {
	var reply PrivateQueryReply
	if err := c.call(ctx, "PIRService.PrivateQuery", &PrivateQueryArgs{Query: q}, &reply); err != nil {
		return pir.Reply{}, err
	}
	return reply.Reply, nil
}
