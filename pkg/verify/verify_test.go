package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/solace-fi/create2-deployer/internal/logger"
	"github.com/solace-fi/create2-deployer/pkg/deployer"
)

const testAPIKey = "test-key"

func fakeAPI(t *testing.T, resp GenericResp, status int) (*httptest.Server, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.NoError(t, r.ParseForm())
		require.Equal(t, testAPIKey, r.Form.Get("apikey"))
		require.Equal(t, "contract", r.Form.Get("module"))
		require.Equal(t, "verifysourcecode", r.Form.Get("action"))

		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func testClient(url string) *Client {
	return NewClient(testAPIKey, url, rate.NewLimiter(rate.Inf, 1))
}

func TestVerifySourceAccepted(t *testing.T) {
	srv, calls := fakeAPI(t, GenericResp{Status: "1", Message: "OK", Result: "guid"}, http.StatusOK)

	err := testClient(srv.URL).VerifySource(context.Background(), SourceRequest{
		Address:      "0x501ace0000000000000000000000000000000001",
		ContractName: "Registry",
		Source:       "contract Registry {}",
	})
	require.NoError(t, err)
	require.Equal(t, 1, *calls)
}

func TestVerifySourceAlreadyVerified(t *testing.T) {
	srv, _ := fakeAPI(t, GenericResp{
		Status:  "0",
		Message: "NOTOK",
		Result:  "Contract source code already verified",
	}, http.StatusOK)

	err := testClient(srv.URL).VerifySource(context.Background(), SourceRequest{Address: "0x1"})
	require.NoError(t, err)
}

func TestVerifySourceRejected(t *testing.T) {
	srv, _ := fakeAPI(t, GenericResp{Status: "0", Message: "NOTOK", Result: "Invalid API key"}, http.StatusOK)

	err := testClient(srv.URL).VerifySource(context.Background(), SourceRequest{Address: "0x1"})
	require.Error(t, err)
}

func TestVerifySourceHTTPError(t *testing.T) {
	srv, _ := fakeAPI(t, GenericResp{}, http.StatusInternalServerError)

	err := testClient(srv.URL).VerifySource(context.Background(), SourceRequest{Address: "0x1"})
	require.Error(t, err)
}

func TestNotifierSwallowsFailures(t *testing.T) {
	srv, _ := fakeAPI(t, GenericResp{}, http.StatusInternalServerError)

	source := filepath.Join(t.TempDir(), "Registry.sol")
	require.NoError(t, os.WriteFile(source, []byte("contract Registry {}"), 0o644))

	var buf bytes.Buffer
	n := NewNotifier(testClient(srv.URL), "v0.8.6+commit.11564f7e", logger.NewWriter(&buf))

	// Must not panic or propagate anything.
	n.Notify(context.Background(), deployer.NotifyRequest{
		Address:      "0x501ace0000000000000000000000000000000001",
		ContractName: "Registry",
		SourcePath:   source,
	})
	require.Contains(t, buf.String(), "ignored")
}

func TestNotifierNilLogger(t *testing.T) {
	srv, _ := fakeAPI(t, GenericResp{Status: "1"}, http.StatusOK)

	source := filepath.Join(t.TempDir(), "Registry.sol")
	require.NoError(t, os.WriteFile(source, []byte("contract Registry {}"), 0o644))

	n := NewNotifier(testClient(srv.URL), "", nil)
	n.Notify(context.Background(), deployer.NotifyRequest{
		Address:      "0x501ace0000000000000000000000000000000001",
		ContractName: "Registry",
		SourcePath:   source,
	})
	n.Notify(context.Background(), deployer.NotifyRequest{
		Address:    "0x1",
		SourcePath: filepath.Join(t.TempDir(), "missing.sol"),
	})
}

func TestNotifierSkipsMissingSource(t *testing.T) {
	srv, calls := fakeAPI(t, GenericResp{Status: "1"}, http.StatusOK)

	var buf bytes.Buffer
	n := NewNotifier(testClient(srv.URL), "", logger.NewWriter(&buf))

	n.Notify(context.Background(), deployer.NotifyRequest{Address: "0x1"})
	require.Zero(t, *calls, "no source path, no submission")

	n.Notify(context.Background(), deployer.NotifyRequest{
		Address:    "0x1",
		SourcePath: filepath.Join(t.TempDir(), "missing.sol"),
	})
	require.Zero(t, *calls)
	require.Contains(t, buf.String(), "skipped")
}
