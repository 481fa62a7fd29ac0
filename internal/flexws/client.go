// Package flexws wraps the two operations of the IBKR Flex Web Service:
// submitting a report request and fetching the generated statement by
// reference code. Responses are classified from the XML envelope the
// service embeds in 200 bodies; HTTP status codes alone say nothing.
package flexws

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://gdcdyn.interactivebrokers.com/Universal/servlet"

	sendRequestPath  = "/FlexStatementService.SendRequest"
	getStatementPath = "/FlexStatementService.GetStatement"
	apiVersion       = "3"

	// The CDN in front of the service rejects requests without a User-Agent.
	userAgent = "flexfetch"

	defaultTimeout = 60 * time.Second
)

type Options struct {
	Token   string
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, fmt.Errorf("flex token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{token: token, baseURL: baseURL, http: httpClient}, nil
}

// statementResponse is the envelope both endpoints use for everything that
// is not statement data.
type statementResponse struct {
	XMLName       xml.Name `xml:"FlexStatementResponse"`
	Status        string   `xml:"Status"`
	ReferenceCode string   `xml:"ReferenceCode"`
	URL           string   `xml:"Url"`
	ErrorCode     string   `xml:"ErrorCode"`
	ErrorMessage  string   `xml:"ErrorMessage"`
}

// Submit asks the service to generate the report for queryID and returns
// the reference code to poll with. Rejections come back as *RemoteError
// with KindRejected; anything else is a transport failure.
func (c *Client) Submit(ctx context.Context, queryID string) (string, error) {
	body, err := c.get(ctx, sendRequestPath, queryID)
	if err != nil {
		return "", err
	}

	env, ok := parseEnvelope(body)
	if !ok {
		return "", fmt.Errorf("unexpected send-request response (no FlexStatementResponse envelope)")
	}
	if env.ErrorCode != "" || !strings.EqualFold(env.Status, "Success") {
		return "", &RemoteError{
			Code:    env.ErrorCode,
			Message: strings.TrimSpace(env.ErrorMessage),
			Kind:    KindRejected,
		}
	}
	reference := strings.TrimSpace(env.ReferenceCode)
	if reference == "" {
		return "", fmt.Errorf("send-request succeeded but returned no reference code")
	}
	return reference, nil
}

type FetchKind int

const (
	FetchReady FetchKind = iota
	FetchPending
	FetchFailed
)

// FetchResult is the classified outcome of one GetStatement call. Exactly
// one of Body (Ready) or Err (Pending/Failed) is set.
type FetchResult struct {
	Kind FetchKind
	Body []byte
	Err  *RemoteError
}

// Fetch retrieves the statement for a reference code. "Not ready yet" is a
// normal result (FetchPending), not an error; the error return is reserved
// for transport failures.
func (c *Client) Fetch(ctx context.Context, referenceCode string) (FetchResult, error) {
	body, err := c.get(ctx, getStatementPath, referenceCode)
	if err != nil {
		return FetchResult{}, err
	}

	// A 200 body is only statement data if it is not the error envelope.
	if env, ok := parseEnvelope(body); ok {
		remote := &RemoteError{
			Code:    env.ErrorCode,
			Message: strings.TrimSpace(env.ErrorMessage),
			Kind:    fetchErrorKind(env.ErrorCode),
		}
		if remote.Kind == KindPending {
			return FetchResult{Kind: FetchPending, Err: remote}, nil
		}
		return FetchResult{Kind: FetchFailed, Err: remote}, nil
	}
	return FetchResult{Kind: FetchReady, Body: body}, nil
}

func (c *Client) get(ctx context.Context, path, q string) ([]byte, error) {
	params := url.Values{}
	params.Set("t", c.token)
	params.Set("q", q)
	params.Set("v", apiVersion)
	endpoint := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flex service request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read flex service response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flex service returned HTTP %d", resp.StatusCode)
	}
	return body, nil
}

// parseEnvelope reports whether body is a FlexStatementResponse envelope.
// Statement payloads start with a different root element and fall through.
func parseEnvelope(body []byte) (statementResponse, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return statementResponse{}, false
	}

	dec := xml.NewDecoder(bytes.NewReader(trimmed))
	for {
		tok, err := dec.Token()
		if err != nil {
			return statementResponse{}, false
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "FlexStatementResponse" {
			return statementResponse{}, false
		}
		var env statementResponse
		if err := dec.DecodeElement(&env, &start); err != nil {
			return statementResponse{}, false
		}
		return env, true
	}
}
