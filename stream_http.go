package mdinc

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const defaultHTTPChunkSize = 512

// HTTPStreamRequest configures HTTPStream.
type HTTPStreamRequest struct {
	URL        string
	Client     *http.Client
	Sink       Sink
	Controller *Controller
	ChunkSize  int
	Delay      time.Duration
	Options    []Option
}

// HTTPStream fetches Markdown over HTTP(S) and streams it through a
// rendering session, applying every update to the sink.
func HTTPStream(ctx context.Context, req HTTPStreamRequest) error {
	if req.URL == "" {
		return fmt.Errorf("stream http: URL is required")
	}
	if req.Sink == nil {
		return fmt.Errorf("stream http: Sink is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	client := req.Client
	if client == nil {
		client = http.DefaultClient
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("stream http: build request: %w", err)
	}
	if httpReq.URL.Scheme != "http" && httpReq.URL.Scheme != "https" {
		return fmt.Errorf("stream http: unsupported scheme %q", httpReq.URL.Scheme)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("stream http: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stream http: status %s", resp.Status)
	}
	chunk := req.ChunkSize
	if chunk <= 0 {
		chunk = defaultHTTPChunkSize
	}
	return Simulate(SimulateRequest{
		Reader:     resp.Body,
		Sink:       req.Sink,
		Controller: req.Controller,
		ChunkSize:  chunk,
		Delay:      req.Delay,
		Options:    req.Options,
	})
}
