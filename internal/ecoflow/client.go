package ecoflow

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"smartplug-telemetry-backend/config"
)

const (
	deviceListPath  = "/iot-open/sign/device/list"
	deviceQuotaPath = "/iot-open/sign/device/quota/all"
)

// APIError is a vendor response with a non-"0" application code.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %s (Code: %s)", e.Message, e.Code)
}

// Device is one entry from the vendor device list.
type Device struct {
	SN       string `json:"sn"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Status   string `json:"status"`
	FullInfo Quota  `json:"full_info"`
}

// Online reports the device's online flag from the raw payload, if present.
func (d Device) Online() *bool {
	if v, ok := d.FullInfo.Bool("online"); ok {
		return &v
	}
	return nil
}

// ProductName reports the vendor product name from the raw payload.
func (d Device) ProductName() string {
	v, _ := d.FullInfo.String("productName")
	return v
}

// DeviceWithQuota pairs a device with its live quota snapshot. QuotaError
// carries a per-device fetch failure; a failed quota never fails the sweep.
type DeviceWithQuota struct {
	Device
	Quota      Quota   `json:"quota"`
	QuotaError *string `json:"quota_error"`
}

// Client talks to the EcoFlow open API using its signed-request scheme.
type Client struct {
	baseURL   string
	accessKey string
	secretKey string
	http      *http.Client
	limiter   *rate.Limiter

	// Overridable for tests.
	now   func() time.Time
	nonce func() string
}

// NewClient creates a vendor API client from configuration.
func NewClient(cfg *config.VendorConfig) *Client {
	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1)
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: limiter,
		now:     time.Now,
		nonce:   randomNonce,
	}
}

// DeviceList fetches all devices registered under the account.
func (c *Client) DeviceList(ctx context.Context) ([]Device, error) {
	data, err := c.get(ctx, deviceListPath, nil)
	if err != nil {
		return nil, err
	}

	var raw []Quota
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device list: %w", err)
	}

	devices := make([]Device, 0, len(raw))
	for _, info := range raw {
		devices = append(devices, mapDevice(info))
	}
	return devices, nil
}

// DeviceQuota fetches the live telemetry snapshot for one device.
func (c *Client) DeviceQuota(ctx context.Context, sn string) (Quota, error) {
	data, err := c.get(ctx, deviceQuotaPath, map[string]string{"sn": sn})
	if err != nil {
		return nil, err
	}

	var quota Quota
	if err := json.Unmarshal(data, &quota); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quota for %s: %w", sn, err)
	}
	return quota, nil
}

// DevicesWithQuota fetches the device list and then each device's quota
// with an independent call. A quota failure is recorded on the entry and
// the sweep continues.
func (c *Client) DevicesWithQuota(ctx context.Context) ([]DeviceWithQuota, error) {
	devices, err := c.DeviceList(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]DeviceWithQuota, 0, len(devices))
	for _, d := range devices {
		entry := DeviceWithQuota{Device: d, Quota: Quota{}}
		if d.SN != "" {
			quota, err := c.DeviceQuota(ctx, d.SN)
			if err != nil {
				msg := err.Error()
				entry.QuotaError = &msg
			} else {
				entry.Quota = quota
			}
		}
		results = append(results, entry)
	}
	return results, nil
}

func mapDevice(info Quota) Device {
	d := Device{FullInfo: info}
	d.SN, _ = info.String("sn")
	if name, ok := info.String("deviceName"); ok && name != "" {
		d.Name = name
	} else {
		d.Name = "Unnamed Device"
	}
	if m, ok := info.String("model"); ok {
		d.Model = m
	} else {
		d.Model = "Unknown"
	}
	if s, ok := info.String("status"); ok {
		d.Status = s
	} else {
		d.Status = "Unknown"
	}
	return d
}

// get performs one signed GET and unwraps the vendor envelope.
func (c *Client) get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	timestamp := c.now().UnixMilli()
	nonce := c.nonce()
	sign := signature(c.secretKey, c.accessKey, nonce, timestamp, params)

	reqURL := c.baseURL + path
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accessKey", c.accessKey)
	req.Header.Set("timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("nonce", nonce)
	req.Header.Set("sign", sign)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}

	if envelope.Code != "0" {
		return nil, &APIError{Code: envelope.Code, Message: envelope.Message}
	}
	return envelope.Data, nil
}

// signature canonicalizes the query parameters, appends the access key,
// nonce and millisecond timestamp, and HMAC-SHA256s the result with the
// shared secret.
func signature(secret, accessKey, nonce string, timestamp int64, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}

	canonical := fmt.Sprintf("accessKey=%s&nonce=%s&timestamp=%d", accessKey, nonce, timestamp)
	if len(parts) > 0 {
		canonical = strings.Join(parts, "&") + "&" + canonical
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// randomNonce returns a 6-digit zero-padded random nonce.
func randomNonce() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// crypto/rand only fails when the platform source is broken.
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
