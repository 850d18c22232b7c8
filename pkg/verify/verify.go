// Package verify submits deployed contract sources to an Etherscan-style
// verification API. Verification is strictly best-effort: the deployment
// outcome never depends on it, and every failure (including "already
// verified") is logged and discarded.
package verify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/solace-fi/create2-deployer/internal/logger"
	"github.com/solace-fi/create2-deployer/pkg/deployer"
)

// GenericResp is the envelope every Etherscan-compatible endpoint returns.
type GenericResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Client talks to one Etherscan-compatible API, rate-limited to stay under
// the service's request quota.
type Client struct {
	apiKey  string
	baseURL string
	hc      *http.Client
	limiter *rate.Limiter
}

// NewClient creates a verification API client.
func NewClient(apiKey, baseURL string, limiter *rate.Limiter) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(250*time.Millisecond), 1)
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

// SourceRequest is one verifysourcecode submission.
type SourceRequest struct {
	Address         string
	ContractName    string
	Source          string
	CompilerVersion string
	ConstructorArgs string // hex without 0x
}

// VerifySource submits a contract source for verification and returns the
// service's error, if any. "Already verified" counts as success.
func (c *Client) VerifySource(ctx context.Context, req SourceRequest) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	form := url.Values{
		"apikey":                {c.apiKey},
		"module":                {"contract"},
		"action":                {"verifysourcecode"},
		"contractaddress":       {req.Address},
		"contractname":          {req.ContractName},
		"sourceCode":            {req.Source},
		"compilerversion":       {req.CompilerVersion},
		"constructorArguements": {req.ConstructorArgs}, // sic, API spelling
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verification API returned HTTP %d", resp.StatusCode)
	}

	var generic GenericResp
	if err := json.Unmarshal(body, &generic); err != nil {
		return fmt.Errorf("parse verification response: %w", err)
	}
	if generic.Status != "1" && !alreadyVerified(generic) {
		return fmt.Errorf("verification rejected: %s: %s", generic.Message, generic.Result)
	}
	return nil
}

func alreadyVerified(r GenericResp) bool {
	s := strings.ToLower(r.Result + " " + r.Message)
	return strings.Contains(s, "already verified")
}

// Notifier adapts Client to the pipeline's fire-and-forget hook.
type Notifier struct {
	client          *Client
	compilerVersion string
	log             *logger.Logger
}

// NewNotifier wraps a verification client. compilerVersion is forwarded on
// every submission.
func NewNotifier(client *Client, compilerVersion string, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Discard()
	}
	return &Notifier{client: client, compilerVersion: compilerVersion, log: log}
}

// Notify submits the deployed contract for verification, swallowing every
// failure. Missing source files are reported and skipped.
func (n *Notifier) Notify(ctx context.Context, req deployer.NotifyRequest) {
	if req.SourcePath == "" {
		return
	}
	source, err := os.ReadFile(req.SourcePath)
	if err != nil {
		n.log.Printf("Verification skipped for %s: %v", req.Address, err)
		return
	}
	err = n.client.VerifySource(ctx, SourceRequest{
		Address:         req.Address,
		ContractName:    req.ContractName,
		Source:          string(source),
		CompilerVersion: n.compilerVersion,
		ConstructorArgs: hex.EncodeToString(req.ConstructorArgs),
	})
	if err != nil {
		n.log.Printf("Verification of %s failed (ignored): %v", req.Address, err)
		return
	}
	n.log.Printf("Verification submitted for %s", req.Address)
}
