// Package backend is a thin HTTP client for the router admin endpoints.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRejected is returned when the backend answers a mutation with success=false.
var ErrRejected = errors.New("backend rejected request")

// Client talks to the admin backend. Every endpoint lives under baseURL.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for cfg.BaseURL (e.g. http://192.168.100.1/cgi-bin/luci/admin/status/jammonitor).
func NewClient(cfg *config.BackendConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout, // zero means no client-side limit
		},
	}
}

// Ping asks the router to send one latency probe to host.
func (c *Client) Ping(ctx context.Context, host string) (model.PingReply, error) {
	var resp model.PingReply
	err := c.getJSON(ctx, "ping?host="+url.QueryEscape(host), &resp)
	return resp, err
}

// NetworkInfo returns the interface list and raw counter blobs. Interface names
// are stripped of their @parent suffix and de-duplicated.
func (c *Client) NetworkInfo(ctx context.Context) (model.NetworkInfo, error) {
	var resp model.NetworkInfo
	if err := c.getJSON(ctx, "network_info", &resp); err != nil {
		return resp, err
	}
	seen := make(map[string]struct{}, len(resp.Interfaces))
	ifaces := resp.Interfaces[:0]
	for _, name := range resp.Interfaces {
		name, _, _ = strings.Cut(name, "@")
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		ifaces = append(ifaces, name)
	}
	resp.Interfaces = ifaces
	return resp, nil
}

// VPNStatus returns the raw vpn_status document.
func (c *Client) VPNStatus(ctx context.Context) ([]byte, error) {
	return c.getRaw(ctx, "vpn_status")
}

// Endpoints discovers the vps and tunnel ping targets from vpn_status.
func (c *Client) Endpoints(ctx context.Context) (model.Endpoints, error) {
	raw, err := c.VPNStatus(ctx)
	if err != nil {
		return model.Endpoints{}, err
	}
	return ParseEndpoints(raw)
}

func (c *Client) SystemStats(ctx context.Context) (model.SystemStats, error) {
	var resp model.SystemStats
	err := c.getJSON(ctx, "system_stats", &resp)
	return resp, err
}

func (c *Client) PublicIP(ctx context.Context) (model.PublicIPReply, error) {
	var resp model.PublicIPReply
	err := c.getJSON(ctx, "public_ip", &resp)
	return resp, err
}

func (c *Client) MPTCPStatus(ctx context.Context) (model.MPTCPStatus, error) {
	var resp model.MPTCPStatus
	err := c.getJSON(ctx, "mptcp_status", &resp)
	return resp, err
}

// WANPolicy fetches the authoritative uplink categories.
func (c *Client) WANPolicy(ctx context.Context) ([]model.WANInterface, error) {
	var resp model.WANPolicy
	if err := c.getJSON(ctx, "wan_policy", &resp); err != nil {
		return nil, err
	}
	for i := range resp.Interfaces {
		if resp.Interfaces[i].Multipath == "" {
			resp.Interfaces[i].Multipath = model.CategoryDisabled
		}
	}
	return resp.Interfaces, nil
}

// SubmitPolicy posts the full category assignment.
func (c *Client) SubmitPolicy(ctx context.Context, a model.PolicyAssignment) error {
	var resp model.BackendResult
	if err := c.postJSON(ctx, "wan_policy", a, &resp); err != nil {
		return err
	}
	return resultErr(resp)
}

func (c *Client) Bypass(ctx context.Context) (model.BypassStatus, error) {
	var resp model.BypassStatus
	err := c.getJSON(ctx, "bypass", &resp)
	return resp, err
}

// SetBypass toggles VPS bypass and returns the state the backend settled on.
func (c *Client) SetBypass(ctx context.Context, enable bool) (model.BypassStatus, error) {
	var resp struct {
		model.BackendResult
		model.BypassStatus
	}
	body := map[string]bool{"enable": enable}
	if err := c.postJSON(ctx, "bypass", body, &resp); err != nil {
		return model.BypassStatus{}, err
	}
	return resp.BypassStatus, resultErr(resp.BackendResult)
}

func resultErr(r model.BackendResult) error {
	if r.Success {
		return nil
	}
	if r.Error != "" {
		return fmt.Errorf("%w: %s", ErrRejected, r.Error)
	}
	return ErrRejected
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if err := statusErr(res); err != nil {
		return nil, err
	}
	return io.ReadAll(res.Body)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := statusErr(res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(res.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func statusErr(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg != "" {
		return fmt.Errorf("request failed: %s: %s", res.Status, msg)
	}
	return fmt.Errorf("request failed: %s", res.Status)
}
