// Package transport executes HTTP/JSON requests against the two remote
// API families (the Elasticsearch management API and the Kibana/Fleet
// API) behind one request surface, with shared error decoding.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/resource"
)

const maxResponseBytes = 1 << 26 // 64 MB; saved object exports can be large

// API is the request surface the sync engine runs against.
type API interface {
	// Request performs a JSON request and decodes the response document.
	Request(ctx context.Context, method string, path string, query Query, body any) (resource.Document, error)
	// RequestRaw performs a request and returns the undecoded body, for
	// newline-delimited export streams.
	RequestRaw(ctx context.Context, method string, path string, query Query, body any) ([]byte, error)
	// Upload submits contents as a multipart file field named "file",
	// with fields added as plain form values.
	Upload(ctx context.Context, path string, query Query, filename string, contents []byte, fields map[string]string) (resource.Document, error)
}

// Query holds request query parameters. Entries with nil values are
// omitted entirely rather than sent as empty strings.
type Query map[string]any

func (q Query) Values() url.Values {
	values := url.Values{}
	for key, value := range q {
		if value == nil {
			continue
		}
		switch typed := value.(type) {
		case string:
			values.Set(key, typed)
		case bool:
			values.Set(key, strconv.FormatBool(typed))
		case int:
			values.Set(key, strconv.Itoa(typed))
		case int64:
			values.Set(key, strconv.FormatInt(typed, 10))
		case float64:
			values.Set(key, strconv.FormatFloat(typed, 'f', -1, 64))
		default:
			values.Set(key, fmt.Sprintf("%v", typed))
		}
	}
	return values
}

// gateway holds the request mechanics shared by both API families. The
// perform hook abstracts over the Elasticsearch client's transport and a
// plain net/http client.
type gateway struct {
	name     string
	baseURL  *url.URL
	headers  map[string]string
	username string
	password string
	log      *zap.Logger
	perform  func(*http.Request) (*http.Response, error)
}

func (g *gateway) Request(ctx context.Context, method string, path string, query Query, body any) (resource.Document, error) {
	raw, err := g.RequestRaw(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	return decodeDocument(raw)
}

func (g *gateway) RequestRaw(ctx context.Context, method string, path string, query Query, body any) ([]byte, error) {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, faults.NewTypedError(faults.InternalError, "failed to encode request body", err)
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	return g.execute(ctx, method, path, query, bodyReader, contentType)
}

func (g *gateway) Upload(ctx context.Context, path string, query Query, filename string, contents []byte, fields map[string]string) (resource.Document, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to build multipart upload", err)
	}
	if _, err := part.Write(contents); err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to buffer multipart upload", err)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, faults.NewTypedError(faults.InternalError, "failed to buffer multipart field", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to finalize multipart upload", err)
	}

	raw, err := g.execute(ctx, http.MethodPost, path, query, &buffer, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	return decodeDocument(raw)
}

func (g *gateway) execute(ctx context.Context, method string, path string, query Query, body io.Reader, contentType string) ([]byte, error) {
	targetURL, err := g.resolveURL(path, query)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to create request", err)
	}

	request.Header.Set("Accept", "application/json")
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	for key, value := range g.headers {
		request.Header.Set(key, value)
	}
	if g.username != "" {
		request.SetBasicAuth(g.username, g.password)
	}

	response, err := g.perform(request)
	if err != nil {
		g.log.Error("request failed",
			zap.String("api", g.name),
			zap.String("method", method),
			zap.String("url", targetURL),
			zap.Error(err))
		return nil, faults.NewTypedError(faults.TransportError,
			fmt.Sprintf("request to %s %s failed", method, targetURL), err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, faults.NewTypedError(faults.TransportError, "failed to read response body", err)
	}

	if response.StatusCode >= http.StatusBadRequest {
		statusErr := decodeStatusError(method, targetURL, response, raw)
		g.log.Error("request failed",
			zap.String("api", g.name),
			zap.String("method", method),
			zap.String("url", targetURL),
			zap.String("reason", statusErr.Reason()))
		return nil, faults.NewTypedError(categoryForStatus(response.StatusCode), statusErr.Reason(), statusErr)
	}

	return raw, nil
}

func (g *gateway) resolveURL(path string, query Query) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	parsed, err := url.Parse(path)
	if err != nil {
		return "", faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("invalid endpoint path %q", path), err)
	}
	parsed.RawQuery = query.Values().Encode()

	if g.baseURL != nil {
		parsed = g.baseURL.ResolveReference(parsed)
	}
	return parsed.String(), nil
}

func decodeDocument(raw []byte) (resource.Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return resource.Document{}, nil
	}

	var doc resource.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, faults.NewTypedError(faults.TransportError, "response body is not a JSON document", err)
	}
	return doc, nil
}
