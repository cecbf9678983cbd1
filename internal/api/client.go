// Package api is the typed client for the upstream fleet API. Every call goes
// through the shared broker, which owns rate limiting.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"fleetops/internal/broker"
	"fleetops/internal/fleet"
)

const pageLimit = 20

// Submitter is the broker entry point the client depends on.
type Submitter interface {
	Submit(ctx context.Context, req broker.Request) (*broker.Response, error)
}

// Client issues authenticated JSON requests through a Submitter.
type Client struct {
	b       Submitter
	baseURL string
	token   string
}

// New returns a Client for baseURL authenticating with token.
func New(b Submitter, baseURL, token string) *Client {
	return &Client{b: b, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *Meta           `json:"meta,omitempty"`
}

// Meta is the pagination block of list responses.
type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (*Meta, error) {
	req := broker.Request{
		Method: method,
		URL:    c.baseURL + path,
		Header: http.Header{"Accept": []string{"application/json"}},
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.b.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, newError(resp.Status, resp.Body)
	}
	if out == nil {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return nil, fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return env.Meta, nil
}

// Agent is the account the token belongs to.
type Agent struct {
	Symbol       string `json:"symbol"`
	Headquarters string `json:"headquarters"`
	Credits      int64  `json:"credits"`
	ShipCount    int    `json:"shipCount"`
}

// Agent returns the authenticated agent.
func (c *Client) Agent(ctx context.Context) (Agent, error) {
	var a Agent
	_, err := c.do(ctx, http.MethodGet, "/my/agent", nil, &a)
	return a, err
}

// ListShips returns every ship of the agent, following pagination.
func (c *Client) ListShips(ctx context.Context) ([]fleet.Ship, error) {
	var all []fleet.Ship
	for page := 1; ; page++ {
		var ships []fleet.Ship
		meta, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/my/ships?page=%d&limit=%d", page, pageLimit), nil, &ships)
		if err != nil {
			return nil, err
		}
		all = append(all, ships...)
		if meta == nil || len(ships) == 0 || len(all) >= meta.Total {
			return all, nil
		}
	}
}

// Ship fetches one ship.
func (c *Client) Ship(ctx context.Context, symbol string) (fleet.Ship, error) {
	var s fleet.Ship
	_, err := c.do(ctx, http.MethodGet, "/my/ships/"+url.PathEscape(symbol), nil, &s)
	return s, err
}

func shipPath(symbol, action string) string {
	return "/my/ships/" + url.PathEscape(symbol) + "/" + action
}

// Orbit moves a docked ship into orbit.
func (c *Client) Orbit(ctx context.Context, symbol string) (fleet.Nav, error) {
	var out struct {
		Nav fleet.Nav `json:"nav"`
	}
	_, err := c.do(ctx, http.MethodPost, shipPath(symbol, "orbit"), nil, &out)
	return out.Nav, err
}

// Dock docks a ship in orbit.
func (c *Client) Dock(ctx context.Context, symbol string) (fleet.Nav, error) {
	var out struct {
		Nav fleet.Nav `json:"nav"`
	}
	_, err := c.do(ctx, http.MethodPost, shipPath(symbol, "dock"), nil, &out)
	return out.Nav, err
}

// NavigateResult is the state after a navigate call.
type NavigateResult struct {
	Fuel fleet.Fuel `json:"fuel"`
	Nav  fleet.Nav  `json:"nav"`
}

// Navigate starts a flight to waypoint.
func (c *Client) Navigate(ctx context.Context, symbol, waypoint string) (NavigateResult, error) {
	var out NavigateResult
	_, err := c.do(ctx, http.MethodPost, shipPath(symbol, "navigate"), map[string]string{"waypointSymbol": waypoint}, &out)
	return out, err
}

// Transaction is a market transaction.
type Transaction struct {
	WaypointSymbol string `json:"waypointSymbol"`
	ShipSymbol     string `json:"shipSymbol"`
	TradeSymbol    string `json:"tradeSymbol"`
	Type           string `json:"type"`
	Units          int    `json:"units"`
	PricePerUnit   int    `json:"pricePerUnit"`
	TotalPrice     int    `json:"totalPrice"`
}

// RefuelResult is the state after refuelling.
type RefuelResult struct {
	Agent       Agent       `json:"agent"`
	Fuel        fleet.Fuel  `json:"fuel"`
	Transaction Transaction `json:"transaction"`
}

// Refuel fills the tank of a docked ship.
func (c *Client) Refuel(ctx context.Context, symbol string) (RefuelResult, error) {
	var out RefuelResult
	_, err := c.do(ctx, http.MethodPost, shipPath(symbol, "refuel"), map[string]any{}, &out)
	return out, err
}

// Yield is what one extraction produced.
type Yield struct {
	Symbol string `json:"symbol"`
	Units  int    `json:"units"`
}

// ExtractResult is the state after an extraction.
type ExtractResult struct {
	Cooldown   fleet.Cooldown `json:"cooldown"`
	Extraction struct {
		ShipSymbol string `json:"shipSymbol"`
		Yield      Yield  `json:"yield"`
	} `json:"extraction"`
	Cargo fleet.Cargo `json:"cargo"`
}

// Extract mines at the ship's location, targeting survey when given.
func (c *Client) Extract(ctx context.Context, symbol string, survey *fleet.Survey) (ExtractResult, error) {
	var out ExtractResult
	var err error
	if survey != nil {
		_, err = c.do(ctx, http.MethodPost, shipPath(symbol, "extract/survey"), survey, &out)
	} else {
		_, err = c.do(ctx, http.MethodPost, shipPath(symbol, "extract"), nil, &out)
	}
	return out, err
}

// SurveyResult is the state after surveying.
type SurveyResult struct {
	Cooldown fleet.Cooldown `json:"cooldown"`
	Surveys  []fleet.Survey `json:"surveys"`
}

// CreateSurvey surveys the ship's location.
func (c *Client) CreateSurvey(ctx context.Context, symbol string) (SurveyResult, error) {
	var out SurveyResult
	_, err := c.do(ctx, http.MethodPost, shipPath(symbol, "survey"), nil, &out)
	return out, err
}

// SellResult is the state after a sale.
type SellResult struct {
	Agent       Agent       `json:"agent"`
	Cargo       fleet.Cargo `json:"cargo"`
	Transaction Transaction `json:"transaction"`
}

// Sell sells units of good from a docked ship.
func (c *Client) Sell(ctx context.Context, symbol, good string, units int) (SellResult, error) {
	var out SellResult
	_, err := c.do(ctx, http.MethodPost, shipPath(symbol, "sell"), map[string]any{"symbol": good, "units": units}, &out)
	return out, err
}

// Jettison discards units of good.
func (c *Client) Jettison(ctx context.Context, symbol, good string, units int) (fleet.Cargo, error) {
	var out struct {
		Cargo fleet.Cargo `json:"cargo"`
	}
	_, err := c.do(ctx, http.MethodPost, shipPath(symbol, "jettison"), map[string]any{"symbol": good, "units": units}, &out)
	return out.Cargo, err
}

// DeliverResult is the state after a contract delivery.
type DeliverResult struct {
	Contract fleet.Contract `json:"contract"`
	Cargo    fleet.Cargo    `json:"cargo"`
}

// Deliver hands units of good from ship to contract.
func (c *Client) Deliver(ctx context.Context, contractID, ship, good string, units int) (DeliverResult, error) {
	var out DeliverResult
	body := map[string]any{"shipSymbol": ship, "tradeSymbol": good, "units": units}
	_, err := c.do(ctx, http.MethodPost, "/my/contracts/"+url.PathEscape(contractID)+"/deliver", body, &out)
	return out, err
}

// Contract fetches a contract.
func (c *Client) Contract(ctx context.Context, id string) (fleet.Contract, error) {
	var out fleet.Contract
	_, err := c.do(ctx, http.MethodGet, "/my/contracts/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ContractResult is the agent and contract after accepting or fulfilling.
type ContractResult struct {
	Agent    Agent          `json:"agent"`
	Contract fleet.Contract `json:"contract"`
}

// AcceptContract accepts a contract offer and collects its advance payment.
func (c *Client) AcceptContract(ctx context.Context, id string) (fleet.Contract, error) {
	return c.contractAction(ctx, id, "accept")
}

// FulfillContract closes a fully delivered contract and collects the payout.
func (c *Client) FulfillContract(ctx context.Context, id string) (fleet.Contract, error) {
	return c.contractAction(ctx, id, "fulfill")
}

func (c *Client) contractAction(ctx context.Context, id, action string) (fleet.Contract, error) {
	var out ContractResult
	_, err := c.do(ctx, http.MethodPost, "/my/contracts/"+url.PathEscape(id)+"/"+action, nil, &out)
	return out.Contract, err
}

// ListWaypoints returns every waypoint of system, following pagination.
func (c *Client) ListWaypoints(ctx context.Context, system string) ([]fleet.Waypoint, error) {
	var all []fleet.Waypoint
	for page := 1; ; page++ {
		var wps []fleet.Waypoint
		path := fmt.Sprintf("/systems/%s/waypoints?page=%d&limit=%d", url.PathEscape(system), page, pageLimit)
		meta, err := c.do(ctx, http.MethodGet, path, nil, &wps)
		if err != nil {
			return nil, err
		}
		all = append(all, wps...)
		if meta == nil || len(wps) == 0 || len(all) >= meta.Total {
			return all, nil
		}
	}
}

// TradeGood is one good a market trades.
type TradeGood struct {
	Symbol        string `json:"symbol"`
	TradeVolume   int    `json:"tradeVolume"`
	SellPrice     int    `json:"sellPrice"`
	PurchasePrice int    `json:"purchasePrice"`
}

// Market is the trade listing of a marketplace.
type Market struct {
	Symbol     string        `json:"symbol"`
	TradeGoods []TradeGood   `json:"tradeGoods"`
	Imports    []fleet.Trait `json:"imports"`
	Exports    []fleet.Trait `json:"exports"`
	Exchange   []fleet.Trait `json:"exchange"`
}

// Buys reports whether the market accepts good.
func (m Market) Buys(good string) bool {
	for _, g := range m.TradeGoods {
		if g.Symbol == good {
			return true
		}
	}
	for _, list := range [][]fleet.Trait{m.Imports, m.Exchange} {
		for _, t := range list {
			if t.Symbol == good {
				return true
			}
		}
	}
	return false
}

// Market fetches the market at waypoint.
func (c *Client) Market(ctx context.Context, waypoint string) (Market, error) {
	var out Market
	path := fmt.Sprintf("/systems/%s/waypoints/%s/market", url.PathEscape(fleet.SystemOf(waypoint)), url.PathEscape(waypoint))
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}
