package transport

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/config"
	"github.com/elastic-stacker/stacker/faults"
)

// Kibana talks to the Kibana and Fleet APIs. Every request carries the
// kbn-xsrf header Kibana requires on state-changing calls.
type Kibana struct {
	gateway
	httpClient *http.Client
}

var _ API = (*Kibana)(nil)

func NewKibana(cfg config.Client, log *zap.Logger) (*Kibana, error) {
	if cfg.BaseURL == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "kibana base_url is required", nil)
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, faults.NewTypedError(faults.ValidationError, "kibana base_url is not a valid URL", err)
	}

	httpTransport, err := tlsTransport(cfg)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Transport: httpTransport,
		Timeout:   timeoutOrZero(cfg.Timeout),
	}

	headers := map[string]string{"kbn-xsrf": "true"}
	for key, value := range cfg.Headers {
		headers[key] = value
	}

	kibana := &Kibana{httpClient: httpClient}
	kibana.gateway = gateway{
		name:     "kibana",
		baseURL:  baseURL,
		headers:  headers,
		username: cfg.Username,
		password: cfg.Password,
		log:      log,
		perform:  httpClient.Do,
	}
	return kibana, nil
}
