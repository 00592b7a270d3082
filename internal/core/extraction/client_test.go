package extraction_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nzyazin/payagent/internal/core/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		vendors []string
		wantErr bool
	}{
		{
			name:    "list",
			body:    `{"transactions":[{"vendor":"Acme","amount":500,"account_number":"123"},{"vendor":"Globex","amount":"12.50","account_number":null}]}`,
			vendors: []string{"Acme", "Globex"},
		},
		{
			name:    "single object",
			body:    `{"vendor":"Acme","amount":500,"account_number":"123","ifsc_code":"HDFC0001"}`,
			vendors: []string{"Acme"},
		},
		{
			name:    "empty",
			body:    `{"transactions":[]}`,
			vendors: nil,
		},
		{
			name:    "garbage",
			body:    `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extraction.Decode([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			var vendors []string
			for _, c := range got {
				vendors = append(vendors, c.Vendor)
			}
			assert.Equal(t, tt.vendors, vendors)
		})
	}
}

func TestDecodeKeepsNullAccount(t *testing.T) {
	got, err := extraction.Decode([]byte(`{"transactions":[{"vendor":"Globex","amount":"12.50","account_number":null}]}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].AccountNumber)
	assert.Equal(t, "12.5", got[0].Amount.String())
}

func TestClientExtract(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPath = req["file_path"]
		_, _ = w.Write([]byte(`{"transactions":[{"vendor":"Acme","amount":500,"account_number":"123"}]}`))
	}))
	defer srv.Close()

	c := extraction.NewClient(srv.URL+"/", zap.NewNop())
	got, err := c.Extract(context.Background(), "invoices/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "invoices/a.pdf", gotPath)
	require.Len(t, got, 1)
	assert.Equal(t, "123", *got[0].AccountNumber)
}

func TestClientExtractServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := extraction.NewClient(srv.URL, zap.NewNop()).Extract(context.Background(), "a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClientWithoutEndpoint(t *testing.T) {
	_, err := extraction.NewClient("", zap.NewNop()).Extract(context.Background(), "a.pdf")
	assert.ErrorIs(t, err, extraction.ErrNoEndpoint)
}
