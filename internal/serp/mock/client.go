package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kitbuilder587/rankwatch/internal/serp"
)

// Client is a scriptable serp.Client: queued errors fire first, then every
// call returns Response.
type Client struct {
	Response *serp.Response
	Errors   []error
	Delay    time.Duration

	CallCount   int
	LastRequest serp.Request
	AllRequests []serp.Request

	mu sync.Mutex
}

func New() *Client {
	return &Client{}
}

func (c *Client) WithResponse(resp *serp.Response) *Client {
	c.Response = resp
	return c
}

func (c *Client) WithErrors(errs ...error) *Client {
	c.Errors = append(c.Errors, errs...)
	return c
}

func (c *Client) WithDelay(delay time.Duration) *Client {
	c.Delay = delay
	return c
}

func (c *Client) Search(ctx context.Context, req serp.Request) (*serp.Response, error) {
	c.mu.Lock()
	idx := c.CallCount
	c.CallCount++
	c.LastRequest = req
	c.AllRequests = append(c.AllRequests, req)
	delay := c.Delay
	var err error
	if idx < len(c.Errors) {
		err = c.Errors[idx]
	}
	resp := c.Response
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err != nil {
		return nil, err
	}

	if resp == nil {
		resp = &serp.Response{Native: &serp.NativeResponse{
			SearchInformation: &serp.SearchInformation{},
		}}
	}
	return resp, nil
}

func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCount = 0
	c.LastRequest = serp.Request{}
	c.AllRequests = nil
	c.Errors = nil
}
