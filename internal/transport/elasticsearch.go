package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	elasticsearch7 "github.com/elastic/go-elasticsearch/v7"
	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/config"
	"github.com/elastic-stacker/stacker/faults"
)

// MinClusterVersion is the oldest Elasticsearch release the transform and
// enrich endpoints this tool drives are known to expose.
const MinClusterVersion = "7.9.0"

// Elasticsearch talks to the cluster management API. Requests are built
// generically and executed through the go-elasticsearch transport, which
// owns node addressing, authentication and retries.
type Elasticsearch struct {
	gateway
	client *elasticsearch7.Client
}

var _ API = (*Elasticsearch)(nil)

func NewElasticsearch(cfg config.Client, log *zap.Logger) (*Elasticsearch, error) {
	if cfg.BaseURL == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "elasticsearch base_url is required", nil)
	}

	httpTransport, err := tlsTransport(cfg)
	if err != nil {
		return nil, err
	}

	client, err := elasticsearch7.NewClient(elasticsearch7.Config{
		Addresses: []string{cfg.BaseURL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpTransport,
	})
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to build elasticsearch client", err)
	}

	es := &Elasticsearch{client: client}
	es.gateway = gateway{
		name:    "elasticsearch",
		headers: cfg.Headers,
		log:     log,
		perform: client.Perform,
	}
	return es, nil
}

// ClusterVersion pings the cluster root endpoint and parses the reported
// version.
func (e *Elasticsearch) ClusterVersion(ctx context.Context) (*semver.Version, error) {
	doc, err := e.Request(ctx, http.MethodGet, "/", nil, nil)
	if err != nil {
		return nil, err
	}

	versionInfo, _ := doc["version"].(map[string]any)
	number, _ := versionInfo["number"].(string)
	if number == "" {
		return nil, faults.NewTypedError(faults.TransportError, "cluster did not report a version number", nil)
	}

	parsed, err := semver.NewVersion(number)
	if err != nil {
		return nil, faults.NewTypedError(faults.TransportError,
			fmt.Sprintf("cluster reported unparseable version %q", number), err)
	}
	return parsed, nil
}

// CheckVersion logs a warning when the cluster runs below the supported
// floor. Version problems never abort a run; the per-request errors are
// authoritative.
func (e *Elasticsearch) CheckVersion(ctx context.Context, log *zap.Logger) {
	version, err := e.ClusterVersion(ctx)
	if err != nil {
		log.Debug("could not determine cluster version", zap.Error(err))
		return
	}

	floor := semver.MustParse(MinClusterVersion)
	if version.LessThan(floor) {
		log.Warn("cluster version is below the supported minimum",
			zap.String("version", version.String()),
			zap.String("minimum", MinClusterVersion))
	}
}

func tlsTransport(cfg config.Client) (http.RoundTripper, error) {
	if cfg.VerifyTLS() && cfg.CA == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS()}
	if cfg.CA != "" {
		pem, err := os.ReadFile(cfg.CA)
		if err != nil {
			return nil, faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("failed to read CA bundle %s", cfg.CA), err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("CA bundle %s contains no certificates", cfg.CA), nil)
		}
		tlsConfig.RootCAs = pool
	}

	return &http.Transport{
		TLSClientConfig:       tlsConfig,
		ResponseHeaderTimeout: timeoutOrZero(cfg.Timeout),
	}, nil
}

func timeoutOrZero(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
