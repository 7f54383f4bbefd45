// Package backend implements the data-service collaborators used by the stores.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"finedu/content"
	"finedu/errs"
	"finedu/httpx"
)

// REST talks JSON to the remote data service under {endpoint}/rest/{kind}.
type REST[T content.Resource, I any] struct {
	kind     content.Kind
	endpoint func() string
	client   *httpx.Client
}

// NewREST builds a client for kind. endpoint is read on every call so a
// reloaded configuration takes effect immediately.
func NewREST[T content.Resource, I any](kind content.Kind, endpoint func() string, client *httpx.Client) *REST[T, I] {
	return &REST[T, I]{kind: kind, endpoint: endpoint, client: client}
}

type errorBody struct {
	Error string `json:"error"`
}

func (r *REST[T, I]) url(id string, suffix string, q url.Values) string {
	u := strings.TrimRight(r.endpoint(), "/") + "/rest/" + string(r.kind)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	u += suffix
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (r *REST[T, I]) List(ctx context.Context, f content.Filter) ([]T, error) {
	var out []T
	if err := r.do(ctx, "list", http.MethodGet, r.url("", "", f.Values()), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (r *REST[T, I]) Get(ctx context.Context, id string) (T, error) {
	var out T
	err := r.do(ctx, "get", http.MethodGet, r.url(id, "", nil), nil, &out)
	return out, err
}

func (r *REST[T, I]) Create(ctx context.Context, in I) (T, error) {
	var out T
	err := r.do(ctx, "create", http.MethodPost, r.url("", "", nil), in, &out)
	return out, err
}

func (r *REST[T, I]) Update(ctx context.Context, id string, patch content.Patch) (T, error) {
	var out T
	err := r.do(ctx, "update", http.MethodPatch, r.url(id, "", nil), patch, &out)
	return out, err
}

func (r *REST[T, I]) Delete(ctx context.Context, id string) error {
	return r.do(ctx, "delete", http.MethodDelete, r.url(id, "", nil), nil, nil)
}

func (r *REST[T, I]) IncrementViews(ctx context.Context, id string) error {
	return r.do(ctx, "views", http.MethodPost, r.url(id, "/views", nil), nil, nil)
}

func (r *REST[T, I]) do(ctx context.Context, op, method, u string, body any, out any) error {
	resource := string(r.kind)

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.New(errs.Validation, op, resource, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return errs.New(errs.Transport, op, resource, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return errs.New(errs.Transport, op, resource, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errs.New(errs.Transport, op, resource, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errs.New(errs.NotFound, op, resource, cause)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return errs.New(errs.Validation, op, resource, cause)
		default:
			return errs.New(errs.Transport, op, resource, cause)
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.New(errs.Transport, op, resource, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
