// Package httpcollab implements the collaborator contracts over their JSON
// HTTP surfaces. Timeouts are owned by the caller's context; these clients add
// none of their own.
package httpcollab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"agrilend-settlement/internal/domain/collab"
)

type client struct {
	base string
	hc   *http.Client
}

func (c *client) postJSON(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", collab.ErrCollaborator, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s",
			collab.ErrCollaborator, req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", collab.ErrCollaborator, err)
	}
	return nil
}

// ---- collateral registry ----

type RegistryClient struct{ client }

func NewRegistryClient(baseURL string, hc *http.Client) *RegistryClient {
	return &RegistryClient{client{base: baseURL, hc: hc}}
}

func (r *RegistryClient) Lock(ctx context.Context, tokenRef, loanRef string) error {
	return r.postJSON(ctx, "/tokens/lock", map[string]string{"token_ref": tokenRef, "loan_id": loanRef}, nil)
}

func (r *RegistryClient) Unlock(ctx context.Context, tokenRef string) error {
	return r.postJSON(ctx, "/tokens/unlock", map[string]string{"token_ref": tokenRef}, nil)
}

func (r *RegistryClient) Seize(ctx context.Context, tokenRef, recipient string) error {
	return r.postJSON(ctx, "/tokens/seize", map[string]string{"token_ref": tokenRef, "recipient": recipient}, nil)
}

// ---- price oracle ----

type OracleClient struct{ client }

func NewOracleClient(baseURL string, hc *http.Client) *OracleClient {
	return &OracleClient{client{base: baseURL, hc: hc}}
}

func (o *OracleClient) CurrentValue(ctx context.Context, collateralRef string) (collab.ValuationData, error) {
	var v collab.ValuationData
	err := o.getJSON(ctx, "/valuations/"+url.PathEscape(collateralRef), &v)
	return v, err
}

// ---- payment rail ----

type RailClient struct{ client }

func NewRailClient(baseURL string, hc *http.Client) *RailClient {
	return &RailClient{client{base: baseURL, hc: hc}}
}

func (p *RailClient) TransferIn(ctx context.Context, payer string, amount int64) (collab.TransactionRef, error) {
	var out struct {
		TxRef string `json:"tx_ref"`
	}
	err := p.postJSON(ctx, "/transfers/in", map[string]any{"payer": payer, "amount": amount}, &out)
	return collab.TransactionRef(out.TxRef), err
}

func (p *RailClient) TransferOut(ctx context.Context, payee string, amount int64) (collab.TransactionRef, error) {
	var out struct {
		TxRef string `json:"tx_ref"`
	}
	err := p.postJSON(ctx, "/transfers/out", map[string]any{"payee": payee, "amount": amount}, &out)
	return collab.TransactionRef(out.TxRef), err
}

// ---- treasury ----

type TreasuryClient struct{ client }

func NewTreasuryClient(baseURL string, hc *http.Client) *TreasuryClient {
	return &TreasuryClient{client{base: baseURL, hc: hc}}
}

func (t *TreasuryClient) RecordLoss(ctx context.Context, loanRef string, amount int64) error {
	return t.postJSON(ctx, "/losses", map[string]any{"loan_id": loanRef, "amount": amount}, nil)
}

func (t *TreasuryClient) CollectFee(ctx context.Context, loanRef string, amount int64, feeKind string) error {
	return t.postJSON(ctx, "/fees", map[string]any{"loan_id": loanRef, "amount": amount, "fee_kind": feeKind}, nil)
}
