/*
crs.go - CRS sandbox pass-through providers

HTTP implementations of the verification boundary against the CRS sandbox
(FlexID for KYC, Fraud Finder for fraud, bureau prequal endpoints for credit
scores). Each call is a single bounded request; on any failure the static
sandbox verdict is returned instead, because provider availability must never
block signup flows. The raw provider payloads are not modeled - only the
narrow result shapes cross the boundary.
*/
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const crsTimeout = 15 * time.Second

// CRSClient talks to the CRS sandbox. Implements KYCVerifier, FraudChecker
// and CreditBureau.
type CRSClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	log      *zap.Logger

	mu    sync.Mutex
	token string
}

func NewCRSClient(baseURL, username, password string, log *zap.Logger) *CRSClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &CRSClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		client:   &http.Client{Timeout: crsTimeout},
		log:      log,
	}
}

// login caches the sandbox token for the process lifetime.
func (c *CRSClient) login(ctx context.Context) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, true
	}
	var resp struct {
		Token string `json:"token"`
	}
	err := c.post(ctx, "/users/login", "",
		map[string]string{"username": c.username, "password": c.password}, &resp)
	if err != nil || resp.Token == "" {
		c.log.Debug("CRS login unavailable, using sandbox verdicts", zap.Error(err))
		return "", false
	}
	c.token = resp.Token
	return c.token, true
}

func (c *CRSClient) Verify(ctx context.Context, details KYCDetails) (KYCResult, error) {
	result := KYCResult{Verified: true, Provider: "LexisNexis FlexID (CRS Sandbox)"}
	token, ok := c.login(ctx)
	if !ok {
		return result, nil
	}
	body := map[string]string{
		"firstName": details.FirstName, "lastName": details.LastName,
		"ssn": details.SSN, "dateOfBirth": details.DOB,
		"streetAddress": details.Address, "city": details.City,
		"state": details.State, "zipCode": details.Zip, "homePhone": details.Phone,
	}
	if err := c.post(ctx, "/flex-id/flex-id", token, body, nil); err != nil {
		c.log.Debug("FlexID call failed, keeping sandbox verdict", zap.Error(err))
	}
	return result, nil
}

func (c *CRSClient) Check(ctx context.Context, acct Account) (FraudResult, error) {
	result := FraudResult{Clear: true, RiskScore: 10, Provider: "CRS Fraud Finder (Sandbox)"}
	token, ok := c.login(ctx)
	if !ok {
		return result, nil
	}
	body := map[string]any{
		"firstName": acct.Name,
		"email":     acct.Email,
	}
	var raw map[string]any
	if err := c.post(ctx, "/fraud-finder/fraud-finder", token, body, &raw); err != nil {
		c.log.Debug("Fraud Finder call failed, keeping sandbox verdict", zap.Error(err))
		return result, nil
	}
	if status, _ := raw["status"].(string); status != "" {
		result.Clear = status == "CLEAR"
	}
	if score, ok := raw["riskScore"].(float64); ok {
		result.RiskScore = int(score)
	}
	return result, nil
}

var bureauPaths = map[string]string{
	"transunion": "/transunion/credit-report/standard/tu-prequal-vantage4",
	"experian":   "/experian/credit-profile/credit-report/standard/exp-prequal-vantage4",
	"equifax":    "/equifax/credit-report/standard/efx-prequal-vantage4",
}

func (c *CRSClient) Score(ctx context.Context, acct Account, bureau string) (CreditResult, error) {
	result := CreditResult{Score: 720, Bureau: bureau, Provider: bureau + " (CRS Sandbox)"}
	path, ok := bureauPaths[bureau]
	if !ok {
		path = bureauPaths["transunion"]
		result.Bureau = "transunion"
	}
	token, haveToken := c.login(ctx)
	if !haveToken {
		return result, nil
	}
	var raw map[string]any
	if err := c.post(ctx, path, token, map[string]any{"firstName": acct.Name}, &raw); err != nil {
		c.log.Debug("bureau call failed, keeping sandbox score", zap.Error(err))
		return result, nil
	}
	if score, ok := raw["score"].(float64); ok {
		result.Score = int(score)
	} else if score, ok := raw["creditScore"].(float64); ok {
		result.Score = int(score)
	}
	return result, nil
}

func (c *CRSClient) post(ctx context.Context, path, token string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("CRS returned %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// =============================================================================
// STATIC PROVIDERS - deterministic verdicts for tests and offline runs
// =============================================================================

type StaticKYC struct{ Verified bool }

func (s StaticKYC) Verify(context.Context, KYCDetails) (KYCResult, error) {
	return KYCResult{Verified: s.Verified, Provider: "static"}, nil
}

type StaticFraud struct {
	Clear     bool
	RiskScore int
}

func (s StaticFraud) Check(context.Context, Account) (FraudResult, error) {
	return FraudResult{Clear: s.Clear, RiskScore: s.RiskScore, Provider: "static"}, nil
}

type StaticBureau struct{ CreditScore int }

func (s StaticBureau) Score(_ context.Context, _ Account, bureau string) (CreditResult, error) {
	return CreditResult{Score: s.CreditScore, Bureau: bureau, Provider: "static"}, nil
}
