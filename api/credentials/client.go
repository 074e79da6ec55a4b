package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ruteri/shardvault/api"
)

// Client talks to a credential gateway.
type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: http.DefaultClient}
}

// Put stores a credential. A gateway answer with stored=false is returned
// together with an error.
func (c *Client) Put(ctx context.Context, credential api.CredentialRequest) (*api.CredentialResponse, error) {
	body, err := json.Marshal(credential)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+CredentialsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res api.CredentialResponse
	status, err := c.do(req, &res, http.StatusCreated, http.StatusBadGateway)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated || !res.Stored {
		return &res, fmt.Errorf("credential %s was not stored", res.RecordID)
	}
	return &res, nil
}

// List returns the credentials of owner.
func (c *Client) List(ctx context.Context, owner string) ([]api.Credential, error) {
	endpoint := c.BaseURL + CredentialsPath + "?" + url.Values{"owner": {owner}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	var res []api.Credential
	if _, err := c.do(req, &res, http.StatusOK); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) do(req *http.Request, out any, accepted ...int) (int, error) {
	httpClient := c.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("could not reach gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("could not read gateway response: %w", err)
	}

	ok := false
	for _, status := range accepted {
		ok = ok || resp.StatusCode == status
	}
	if !ok {
		return resp.StatusCode, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("could not parse gateway response: %w", err)
	}
	return resp.StatusCode, nil
}
