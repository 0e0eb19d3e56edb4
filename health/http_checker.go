package health

import (
	"context"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
)

const requestHost = "localhost"

// HTTPChecker is a checker that queries the health-check endpoint of a
// running router over its control port.
type HTTPChecker struct {
	Address string
	Client  *http.Client
}

// Check returns the health reported by the router at Address.
func (checker *HTTPChecker) Check(ctx context.Context) Status {
	host, port, err := net.SplitHostPort(checker.Address)
	if err != nil {
		return Status{false, err.Error()}
	} else if host == "" {
		host = requestHost
	}

	client := checker.Client
	if client == nil {
		client = http.DefaultClient
	}

	var u url.URL
	u.Scheme = "http"
	u.Host = net.JoinHostPort(host, port)
	u.Path = RequestPath

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Status{false, err.Error()}
	}

	response, err := client.Do(request)
	if err != nil {
		return Status{false, err.Error()}
	}
	defer response.Body.Close()

	content, err := ioutil.ReadAll(response.Body)
	if err != nil {
		return Status{false, err.Error()}
	}

	return Status{
		200 <= response.StatusCode && response.StatusCode <= 299,
		string(content),
	}
}
