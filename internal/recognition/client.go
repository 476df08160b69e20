// Package recognition is a client for the face recognition service that
// maintains face collections. Payloads follow the Rekognition JSON shape.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kozaktomas/face-indexer/internal/metrics"
)

// Client talks to the recognition service over HTTP.
type Client struct {
	parsedURL  *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("recognition URL is required")
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid recognition URL: %w", err)
	}
	c := &Client{
		parsedURL:  parsed,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IndexFaces detects faces in image and adds up to maxFaces of them to the collection.
func (c *Client) IndexFaces(ctx context.Context, collectionID, externalImageID string, image []byte, maxFaces int) (*IndexFacesOutput, error) {
	if collectionID == "" {
		return nil, errors.New("collection id is required")
	}
	in := indexFacesInput{
		CollectionID:        collectionID,
		ExternalImageID:     externalImageID,
		Image:               imageRef{Bytes: image},
		MaxFaces:            maxFaces,
		QualityFilter:       "AUTO",
		DetectionAttributes: []string{"ALL"},
	}
	out, err := doPostJSON[IndexFacesOutput](ctx, c, "IndexFaces", in)
	if err != nil {
		metrics.RecognitionCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("index faces: %w", err)
	}
	metrics.RecognitionCalls.WithLabelValues("ok").Inc()
	c.logger.Debug("indexed composite",
		zap.String("external_image_id", externalImageID),
		zap.Int("indexed", len(out.FaceRecords)),
		zap.Int("unindexed", len(out.UnindexedFaces)))
	return out, nil
}

// ListFaces returns one page of faces stored in the collection.
// An empty NextToken in the output marks the last page.
func (c *Client) ListFaces(ctx context.Context, collectionID, token string, maxResults int) (*ListFacesOutput, error) {
	in := listFacesInput{CollectionID: collectionID, NextToken: token, MaxResults: maxResults}
	out, err := doPostJSON[ListFacesOutput](ctx, c, "ListFaces", in)
	if err != nil {
		metrics.RecognitionCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list faces: %w", err)
	}
	metrics.RecognitionCalls.WithLabelValues("ok").Inc()
	return out, nil
}

// doPostJSON sends a JSON request to the given action and unmarshals the response.
func doPostJSON[T any](ctx context.Context, c *Client, action string, requestBody any) (*T, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.parsedURL.JoinPath(action).String(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// readErrorBody reads at most 1 KiB of the response body for error messages.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 1024))
	if err != nil {
		return "(could not read body)"
	}
	return strings.TrimSpace(string(body))
}
