package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
)

// Decode reads the effective payload of resp into T.
func Decode[T any](resp *Response) (T, error) {
	var zero T
	if resp == nil {
		return zero, domain.ErrInvalidResponse
	}
	out, _, err := transport.Decode[T](resp.Body)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", domain.ErrInvalidResponse, err)
	}
	return out, nil
}

// Call sends r and decodes the response payload into T.
func Call[T any](ctx context.Context, c *Client, r Request) (T, error) {
	resp, err := c.Do(ctx, r)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](resp)
}

// GetJSON is Call for a GET without body.
func GetJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	return Call[T](ctx, c, Request{Method: http.MethodGet, Path: path})
}
