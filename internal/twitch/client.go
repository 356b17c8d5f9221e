// Package twitch talks to the Twitch kraken REST API for blocks and emotes.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/matt0x6f/twitch-session/internal/account"
	"github.com/matt0x6f/twitch-session/internal/constants"
	"github.com/matt0x6f/twitch-session/internal/emotes"
	"github.com/matt0x6f/twitch-session/internal/logger"
)

// maxBlockPages stops runaway pagination against a misbehaving server
const maxBlockPages = 50

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL       string
	HTTPClient    *http.Client
	RatePerSecond float64
	Burst         int
}

// Client is the REST backend for blocks and emotes
type Client struct {
	baseURL string
	http    *LimitedHTTPClient
}

// NewClient creates a client. Empty fields fall back to package defaults.
func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = constants.DefaultAPIBaseURL
	}
	perSecond := cfg.RatePerSecond
	if perSecond == 0 {
		perSecond = constants.APIRatePerSecond
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = constants.APIBurst
	}
	return &Client{
		baseURL: base,
		http:    NewLimitedHTTPClient(cfg.HTTPClient, perSecond, burst),
	}
}

type blocksResponse struct {
	Total  int `json:"_total"`
	Blocks []struct {
		User struct {
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
		} `json:"user"`
	} `json:"blocks"`
}

type emotesResponse struct {
	EmoticonSets map[string][]emotes.Emote `json:"emoticon_sets"`
}

// FetchBlockedUsers returns the lower-cased logins blocked by id
func (c *Client) FetchBlockedUsers(ctx context.Context, id account.Identity) ([]string, error) {
	var users []string
	offset := 0

	for page := 0; page < maxBlockPages; page++ {
		q := c.query(id)
		q.Set("limit", strconv.Itoa(constants.BlocksPageLimit))
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}

		var body blocksResponse
		if err := c.do(ctx, http.MethodGet, c.userPath(id, "blocks"), q, &body); err != nil {
			return nil, fmt.Errorf("fetch blocks for %s: %w", id.Login(), err)
		}

		for _, b := range body.Blocks {
			if b.User.Name != "" {
				users = append(users, strings.ToLower(b.User.Name))
			}
		}
		offset += len(body.Blocks)

		if len(body.Blocks) < constants.BlocksPageLimit || offset >= body.Total {
			break
		}
	}

	logger.Log.Debug().Str("user", id.Login()).Int("count", len(users)).Msg("Fetched blocked users")
	return users, nil
}

// FetchEmotes returns the emote sets available to id
func (c *Client) FetchEmotes(ctx context.Context, id account.Identity) (emotes.Sets, error) {
	var body emotesResponse
	if err := c.do(ctx, http.MethodGet, c.userPath(id, "emotes"), c.query(id), &body); err != nil {
		return nil, fmt.Errorf("fetch emotes for %s: %w", id.Login(), err)
	}
	if body.EmoticonSets == nil {
		return emotes.Sets{}, nil
	}
	return emotes.Sets(body.EmoticonSets), nil
}

// BlockUser adds target to id's blocklist
func (c *Client) BlockUser(ctx context.Context, id account.Identity, target string) error {
	if err := c.do(ctx, http.MethodPut, c.userPath(id, "blocks", target), c.query(id), nil); err != nil {
		return fmt.Errorf("block %s: %w", target, err)
	}
	return nil
}

// UnblockUser removes target from id's blocklist
func (c *Client) UnblockUser(ctx context.Context, id account.Identity, target string) error {
	if err := c.do(ctx, http.MethodDelete, c.userPath(id, "blocks", target), c.query(id), nil); err != nil {
		return fmt.Errorf("unblock %s: %w", target, err)
	}
	return nil
}

func (c *Client) userPath(id account.Identity, segments ...string) string {
	parts := []string{c.baseURL, "users", url.PathEscape(id.Login())}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(strings.ToLower(s)))
	}
	return strings.Join(parts, "/")
}

func (c *Client) query(id account.Identity) url.Values {
	q := url.Values{}
	q.Set("client_id", id.ClientID)
	q.Set("oauth_token", id.Token())
	return q
}

// do performs one request and decodes a JSON body into out when out is non-nil
func (c *Client) do(ctx context.Context, method, endpoint string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.twitchtv.v5+json")
	if cid := q.Get("client_id"); cid != "" {
		req.Header.Set("Client-ID", cid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}
