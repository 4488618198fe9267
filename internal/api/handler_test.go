package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartplug-telemetry-backend/config"
	"smartplug-telemetry-backend/internal/ecoflow"
)

// mockVendor is a mock implementation of the VendorAPI interface.
type mockVendor struct {
	DeviceListFunc       func(ctx context.Context) ([]ecoflow.Device, error)
	DevicesWithQuotaFunc func(ctx context.Context) ([]ecoflow.DeviceWithQuota, error)
}

func (m *mockVendor) DeviceList(ctx context.Context) ([]ecoflow.Device, error) {
	return m.DeviceListFunc(ctx)
}

func (m *mockVendor) DevicesWithQuota(ctx context.Context) ([]ecoflow.DeviceWithQuota, error) {
	return m.DevicesWithQuotaFunc(ctx)
}

func testRouter(client VendorAPI) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(&config.ServerConfig{
		RateLimitPerSec: 100,
		RateLimitBurst:  100,
		CacheTTLSeconds: 1,
	}, client)
}

func TestGetDeviceList(t *testing.T) {
	vendor := &mockVendor{
		DeviceListFunc: func(ctx context.Context) ([]ecoflow.Device, error) {
			return []ecoflow.Device{
				{SN: "X1", Name: "Office Plug", Model: "Smart Plug", Status: "1"},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/device_list", nil)
	testRouter(vendor).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var devices []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "X1", devices[0]["sn"])
	assert.Equal(t, "Office Plug", devices[0]["name"])
}

func TestGetDeviceListError(t *testing.T) {
	vendor := &mockVendor{
		DeviceListFunc: func(ctx context.Context) ([]ecoflow.Device, error) {
			return nil, errors.New("vendor unreachable")
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/device_list", nil)
	testRouter(vendor).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "vendor unreachable", body["error"])
}

func TestGetDevicesDataReportsQuotaErrorsInBand(t *testing.T) {
	quotaErr := "API Error: device not online (Code: 6404)"
	vendor := &mockVendor{
		DevicesWithQuotaFunc: func(ctx context.Context) ([]ecoflow.DeviceWithQuota, error) {
			return []ecoflow.DeviceWithQuota{
				{
					Device: ecoflow.Device{SN: "X1", Name: "Office Plug"},
					Quota:  ecoflow.Quota{"2_1.watts": 1500.0},
				},
				{
					Device:     ecoflow.Device{SN: "X2", Name: "Broken Plug"},
					Quota:      ecoflow.Quota{},
					QuotaError: &quotaErr,
				},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/devices_data", nil)
	testRouter(vendor).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var devices []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 2)

	assert.Nil(t, devices[0]["quota_error"])
	quota, ok := devices[0]["quota"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1500.0, quota["2_1.watts"])

	assert.Equal(t, quotaErr, devices[1]["quota_error"])
}

func TestResponseCaching(t *testing.T) {
	calls := 0
	vendor := &mockVendor{
		DeviceListFunc: func(ctx context.Context) ([]ecoflow.Device, error) {
			calls++
			return []ecoflow.Device{}, nil
		},
	}

	router := testRouter(vendor)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/device_list", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// Subsequent hits within the TTL are served from cache.
	assert.Equal(t, 1, calls)
}
