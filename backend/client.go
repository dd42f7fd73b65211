// Package backend implements the Orchestrator's external collaborators:
// the HTTP client pool, the directory listing fetcher, the per-file I/O
// engine, and the on-disk cache manager. These are the concrete,
// S3-compatible implementations a mountable filesystem needs behind the
// inode tree.
package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// ClientPoolConfig supplies the connection details needed to sign and issue
// requests against an S3-compatible endpoint.
type ClientPoolConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Bucket          string
	UsePathStyle    bool

	MaxIdleConnsPerHost int
	RequestTimeout      time.Duration
}

// ClientPool hands out signed HTTP clients bounded by a semaphore sized
// to the connection pool; acquisition is asynchronous (delivered via a
// callback run on its own goroutine) so callers never block the FUSE
// callback thread waiting for a free slot.
type ClientPool struct {
	cfg    ClientPoolConfig
	creds  aws.Credentials
	signer *v4.Signer
	hc     *http.Client

	sem chan struct{}
}

// NewClientPool constructs a pool backed by a single shared *http.Client
// (connection reuse is handled by the transport's keep-alive pool) and a
// SigV4 signer.
func NewClientPool(cfg ClientPoolConfig) (*ClientPool, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backend: bucket name is required")
	}

	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = 100
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: maxIdle,
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 0 // no timeout; the HTTP layer owns retries/timeouts
	}

	return &ClientPool{
		cfg: cfg,
		creds: aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
		},
		signer: v4.NewSigner(),
		hc:     &http.Client{Transport: transport, Timeout: timeout},
		sem:    make(chan struct{}, maxIdle),
	}, nil
}

// Client is a single acquired client from the pool, usable for one
// acquire/release/add-header/request sequence.
type Client struct {
	pool    *ClientPool
	headers http.Header
}

// GetClient delivers a Client asynchronously via onReady, run in its own
// goroutine so callers never block the FUSE callback thread acquiring
// one.
func (p *ClientPool) GetClient(onReady func(*Client)) {
	go func() {
		p.sem <- struct{}{}
		onReady(&Client{pool: p, headers: make(http.Header)})
	}()
}

// Acquire/Release mark the boundary of a Client's single request sequence.
// Acquire is a no-op (the slot was already taken in GetClient); Release
// returns the slot to the pool.
func (c *Client) Acquire()  {}
func (c *Client) Release() { <-c.pool.sem }

// AddOutputHeader stages a header to be sent with the next MakeRequest;
// staged headers are cleared once that request is issued.
func (c *Client) AddOutputHeader(key, value string) {
	c.headers.Set(key, value)
}

// CompletionFunc receives the outcome of MakeRequest: success, the HTTP
// status code (0 if the request never reached the server), the response
// body, its length, and the response headers. The status code lets
// callers (lookup's 404-vs-failure branch, in particular) distinguish
// "not found" from a transport/server failure.
type CompletionFunc func(success bool, statusCode int, body []byte, bodyLen int, headers http.Header)

// MakeRequest signs and issues one request. body is read fully into memory
// before signing, whatever the value of stream (which is currently not
// consulted); the outcome is always reported via completion on its own
// goroutine so the caller's FUSE callback thread is never blocked.
func (c *Client) MakeRequest(ctx context.Context, path, verb string, body io.Reader, stream bool, completion CompletionFunc) {
	go func() {
		ok, status, respBody, headers := c.doRequest(ctx, path, verb, body, stream)
		completion(ok, status, respBody, len(respBody), headers)
	}()
}

func (c *Client) doRequest(ctx context.Context, path, verb string, body io.Reader, stream bool) (bool, int, []byte, http.Header) {
	url := c.pool.requestURL(path)

	var payload []byte
	var err error
	if body != nil {
		payload, err = io.ReadAll(body)
		if err != nil {
			return false, 0, nil, nil
		}
	}

	headers := c.headers
	c.headers = make(http.Header)

	req, err := http.NewRequestWithContext(ctx, verb, url, bytes.NewReader(payload))
	if err != nil {
		return false, 0, nil, nil
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	hash := sha256.Sum256(payload)
	payloadHash := hex.EncodeToString(hash[:])

	if err := c.pool.signer.SignHTTP(ctx, c.pool.creds, req, payloadHash, "s3", c.pool.cfg.Region, time.Now()); err != nil {
		return false, 0, nil, nil
	}

	resp, err := c.pool.hc.Do(req)
	if err != nil {
		return false, 0, nil, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, resp.StatusCode, nil, resp.Header
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	return success, resp.StatusCode, respBody, resp.Header
}

// SyncRequest wraps MakeRequest with the same block-on-a-buffered-channel
// pattern FileIO's downloadSync/uploadSync use, letting Orchestrator
// operations read as a single linear function instead of threading an
// explicit continuation through every suspension point.
func (c *Client) SyncRequest(ctx context.Context, path, verb string, body io.Reader, stream bool) (ok bool, status int, respBody []byte, headers http.Header) {
	type result struct {
		ok      bool
		status  int
		body    []byte
		headers http.Header
	}
	done := make(chan result, 1)

	c.MakeRequest(ctx, path, verb, body, stream, func(ok bool, status int, body []byte, _ int, headers http.Header) {
		done <- result{ok: ok, status: status, body: body, headers: headers}
	})

	r := <-done
	return r.ok, r.status, r.body, r.headers
}

// requestURL composes the full URL for a bucket-relative path, respecting
// path-style vs. virtual-hosted addressing.
func (p *ClientPool) requestURL(path string) string {
	path = strings.TrimPrefix(path, "/")
	endpoint := strings.TrimSuffix(p.cfg.Endpoint, "/")

	if p.cfg.UsePathStyle {
		return fmt.Sprintf("%s/%s/%s", endpoint, p.cfg.Bucket, path)
	}

	scheme, rest, found := strings.Cut(endpoint, "://")
	if !found {
		return fmt.Sprintf("%s/%s/%s", endpoint, p.cfg.Bucket, path)
	}
	return fmt.Sprintf("%s://%s.%s/%s", scheme, p.cfg.Bucket, rest, path)
}

// CopySourceHeader composes the x-amz-copy-source header value for a
// rename's server-side copy phase: if keyPrefix is non-empty,
// "{bucket}{keyPrefix}{fullpath}"; else "{bucket}/{fullpath}".
func (p *ClientPool) CopySourceHeader(keyPrefix, fullpath string) string {
	if keyPrefix != "" {
		return p.cfg.Bucket + keyPrefix + fullpath
	}
	return p.cfg.Bucket + "/" + fullpath
}
