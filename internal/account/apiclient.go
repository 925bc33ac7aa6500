package account

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ApiClient is the account/device REST client against the VPN API (§4.3).
// Grounded on the paginated devices/account_summary response shapes from
// original_source's nym-vpn-api-client crate.
type ApiClient struct {
	baseURL string
	http    *http.Client
	mnemonic MnemonicAuth
}

// MnemonicAuth supplies the bearer credential derived from the stored
// mnemonic; a nil implementation means "no mnemonic stored yet".
type MnemonicAuth interface {
	AuthToken() (string, error)
}

// NewApiClient constructs a client against the given base URL.
func NewApiClient(baseURL string, auth MnemonicAuth) *ApiClient {
	return &ApiClient{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		mnemonic: auth,
	}
}

// AccountSummaryResponse is the GET /account_summary response shape.
type AccountSummaryResponse struct {
	AccountStatus      string `json:"account_status"` // "active" | "inactive" | ...
	SubscriptionStatus string `json:"subscription_status"`
	DeviceStatus       string `json:"device_status"`
}

// ApiFailure carries the structured error fields §4.3/§7 require callers
// to be able to map ("message, message_id, code_reference_id intact").
type ApiFailure struct {
	StatusCode     int
	Message        string `json:"message"`
	MessageID      string `json:"message_id"`
	CodeReferenceID string `json:"code_reference_id"`
}

func (f *ApiFailure) Error() string {
	return fmt.Sprintf("api failure (status %d): %s [%s]", f.StatusCode, f.Message, f.MessageID)
}

// GetAccountSummary performs GET account_summary (§4.3).
func (c *ApiClient) GetAccountSummary() (*AccountSummaryResponse, error) {
	req, err := c.newRequest(http.MethodGet, "/v1/account_summary", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account_summary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
		var fail ApiFailure
		json.NewDecoder(resp.Body).Decode(&fail)
		fail.StatusCode = resp.StatusCode
		return nil, &fail
	}
	if resp.StatusCode != http.StatusOK {
		var fail ApiFailure
		json.NewDecoder(resp.Body).Decode(&fail)
		fail.StatusCode = resp.StatusCode
		return nil, &fail
	}

	var out AccountSummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode account_summary: %w", err)
	}
	return &out, nil
}

// DeviceEntry is one page entry of the GET devices response.
type DeviceEntry struct {
	DeviceIdentityKey string `json:"device_identity_key"`
	Status            string `json:"status"`
}

type devicesPage struct {
	Items []DeviceEntry `json:"items"`
	Next  string        `json:"next_page,omitempty"`
}

// FindDevice paginates GET devices looking for a matching identity key
// (§4.3: "matched by device_identity_key == base58(device_public_key)").
func (c *ApiClient) FindDevice(devicePublicKeyBase58 string) (*DeviceEntry, error) {
	page := ""
	for {
		path := "/v1/devices"
		if page != "" {
			path += "?page=" + page
		}
		req, err := c.newRequest(http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("devices request: %w", err)
		}

		var pg devicesPage
		err = json.NewDecoder(resp.Body).Decode(&pg)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode devices page: %w", err)
		}

		for _, d := range pg.Items {
			if d.DeviceIdentityKey == devicePublicKeyBase58 {
				return &d, nil
			}
		}
		if pg.Next == "" {
			return nil, nil // not found, caller transitions device=NotRegistered
		}
		page = pg.Next
	}
}

// RegisterDevice performs the device registration POST (§4.3).
func (c *ApiClient) RegisterDevice(devicePublicKeyBase58 string) error {
	body, _ := json.Marshal(map[string]string{"device_identity_key": devicePublicKeyBase58})
	req, err := c.newRequest(http.MethodPost, "/v1/devices", body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var fail ApiFailure
		json.NewDecoder(resp.Body).Decode(&fail)
		fail.StatusCode = resp.StatusCode
		return &fail
	}
	return nil
}

func (c *ApiClient) newRequest(method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.mnemonic != nil {
		if tok, err := c.mnemonic.AuthToken(); err == nil && tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}
