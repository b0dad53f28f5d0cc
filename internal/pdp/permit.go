package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/schema"
)

// PermitConfig configures the Permit.io client.
type PermitConfig struct {
	APIURL      string
	PDPURL      string
	APIKey      string
	Project     string
	Environment string
	Tenant      string
	// HTTPClient is the transport wrapped with bearer authentication.
	HTTPClient *http.Client
}

// Permit talks to the Permit.io management API and cloud PDP.
type Permit struct {
	cfg    PermitConfig
	client *http.Client
}

// NewPermit constructs a Permit.io client.
func NewPermit(cfg PermitConfig) (*Permit, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("permit api key: %w", schema.ErrNotConfigured)
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	cfg.PDPURL = strings.TrimRight(strings.TrimSpace(cfg.PDPURL), "/")
	if cfg.APIURL == "" || cfg.PDPURL == "" {
		return nil, errors.New("permit api_url and pdp_url are required")
	}
	if cfg.Project == "" {
		cfg.Project = "default"
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "default"
	}
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}))
	return &Permit{cfg: cfg, client: client}, nil
}

// SyncUser creates or replaces the subject in the environment.
func (p *Permit) SyncUser(ctx context.Context, subject schema.PolicySubject) error {
	if strings.TrimSpace(subject.Key) == "" {
		return fmt.Errorf("sync user: %w", schema.ErrInvalidUser)
	}
	return p.do(ctx, http.MethodPut, p.usersURL(subject.Key), subject, nil)
}

type permitCheck struct {
	User     permitUserRef     `json:"user"`
	Action   string            `json:"action"`
	Resource permitResourceRef `json:"resource"`
}

type permitUserRef struct {
	Key string `json:"key"`
}

type permitResourceRef struct {
	Type   string `json:"type"`
	Tenant string `json:"tenant"`
}

// Check asks the PDP whether subject may perform operation on resource.
func (p *Permit) Check(ctx context.Context, subject, operation, resource string) (bool, error) {
	var out struct {
		Allow bool `json:"allow"`
	}
	body := permitCheck{
		User:     permitUserRef{Key: subject},
		Action:   operation,
		Resource: permitResourceRef{Type: resource, Tenant: p.cfg.Tenant},
	}
	if err := p.do(ctx, http.MethodPost, p.cfg.PDPURL+"/allowed", body, &out); err != nil {
		return false, err
	}
	pslog.Ctx(ctx).Debug("permit check", "subject", subject, "operation", operation, "resource", resource, "allow", out.Allow)
	return out.Allow, nil
}

// ListUsers returns the first page of subjects in the environment.
func (p *Permit) ListUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Data []User `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, p.usersURL(""), nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Data {
		if out.Data[i].Roles == nil {
			out.Data[i].Roles = []Role{}
		}
	}
	return out.Data, nil
}

// AssignRole grants role to subject.
func (p *Permit) AssignRole(ctx context.Context, subject, role, tenant string) error {
	return p.do(ctx, http.MethodPost, p.usersURL(subject)+"/roles", p.roleBody(role, tenant), nil)
}

// UnassignRole revokes role from subject.
func (p *Permit) UnassignRole(ctx context.Context, subject, role, tenant string) error {
	return p.do(ctx, http.MethodDelete, p.usersURL(subject)+"/roles", p.roleBody(role, tenant), nil)
}

func (p *Permit) roleBody(role, tenant string) Role {
	if tenant == "" {
		tenant = p.cfg.Tenant
	}
	return Role{Role: role, Tenant: tenant}
}

func (p *Permit) usersURL(key string) string {
	base := fmt.Sprintf("%s/v2/facts/%s/%s/users", p.cfg.APIURL, url.PathEscape(p.cfg.Project), url.PathEscape(p.cfg.Environment))
	if key == "" {
		return base
	}
	return base + "/" + url.PathEscape(key)
}

func (p *Permit) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("permit %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("permit %s: %w", method, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("permit %s: %w: status %d: %s", method, schema.ErrUpstream, resp.StatusCode, errorMessage(data))
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("permit %s: decode: %w", method, err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Detail != nil {
			return fmt.Sprint(body.Detail)
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
