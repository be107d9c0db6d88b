package rpc

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/canopy-network/dualledger/controller"
	"github.com/canopy-network/dualledger/lib"
)

// Client queries a running node's RPC
type Client struct {
	rpcURL  string
	rpcPort string
	client  http.Client
}

func NewClient(rpcURL, rpcPort string, timeout time.Duration) *Client {
	return &Client{rpcURL: rpcURL, rpcPort: rpcPort, client: http.Client{Timeout: timeout}}
}

func (c *Client) Status() (p *controller.Status, err lib.ErrorI) {
	p = new(controller.Status)
	err = c.get(StatusRoutePath, p)
	return
}

func (c *Client) Transaction(hash string) (p *TxResponse, err lib.ErrorI) {
	p = new(TxResponse)
	err = c.get(strings.Replace(TxRoutePath, ":hash", hash, 1), p)
	return
}

func (c *Client) Health() (p *HealthResponse, err lib.ErrorI) {
	p = new(HealthResponse)
	err = c.get(HealthRoutePath, p)
	return
}

func (c *Client) url(path string) string {
	return c.rpcURL + colon + c.rpcPort + path
}

func (c *Client) get(path string, ptr any) lib.ErrorI {
	resp, err := c.client.Get(c.url(path))
	if err != nil {
		return ErrGetRequest(err)
	}
	defer resp.Body.Close()
	return c.unmarshal(resp, ptr)
}

func (c *Client) unmarshal(resp *http.Response, ptr any) lib.ErrorI {
	bz, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrReadBody(err)
	}
	if resp.StatusCode != http.StatusOK {
		return ErrHttpStatus(resp.Status, resp.StatusCode, bz)
	}
	return lib.UnmarshalJSON(bz, ptr)
}
