package zapform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"slaledger/internal/core/calendar"
	"slaledger/internal/core/order"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/logger"
)

// maxPages bounds pagination against a server that keeps returning next
const maxPages = 10000

type orderPage struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []struct {
		ID order.ID `json:"id"`
	} `json:"results"`
}

// OrderIDs lists every order id of a configuration, following next links.
// Ids are deduplicated keeping first-seen order
func (c *Client) OrderIDs(ctx context.Context, configID string, filters url.Values) ([]string, error) {
	next := fmt.Sprintf("/api/zc/%s/order/", url.PathEscape(configID))
	if len(filters) > 0 {
		next += "?" + filters.Encode()
	}
	seen := map[string]struct{}{}
	var ids []string
	for page := 0; next != "" && page < maxPages; page++ {
		var p orderPage
		if err := c.getJSON(ctx, "order_list", next, &p); err != nil {
			return ids, fmt.Errorf("list orders of %s page %d: %w", configID, page, err)
		}
		for _, r := range p.Results {
			id := r.ID.String()
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		next = strings.TrimSpace(p.Next)
		c.log.Debug().Str("config_id", configID).Int("page", page).Int("ids", len(ids)).Int("expected", p.Count).Msg("order page fetched")
	}
	return ids, nil
}

// Order fetches one order detail
func (c *Client) Order(ctx context.Context, configID, orderID string) (order.Order, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/api/zc/%s/order/%s/", url.PathEscape(configID), url.PathEscape(orderID))
	if err := c.getJSON(ctx, "order_detail", path, &raw); err != nil {
		return order.Order{}, err
	}
	return order.Decode(raw)
}

// Orders lists and fetches every order of a configuration. An order whose
// detail cannot be fetched is logged and skipped; a listing failure or a
// cancelled context is returned
func (c *Client) Orders(ctx context.Context, configID string) ([]order.Order, error) {
	ids, err := c.OrderIDs(ctx, configID, nil)
	if err != nil {
		return nil, err
	}
	log := logger.C(ctx)
	out := make([]order.Order, 0, len(ids))
	for _, id := range ids {
		o, err := c.Order(ctx, configID, id)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			log.Warn().Err(err).Str("order_id", id).Msg("order detail unavailable; skipped")
			continue
		}
		out = append(out, o)
	}
	log.Info().Int("listed", len(ids)).Int("fetched", len(out)).Msg("orders fetched")
	return out, nil
}

// Workflow fetches the workflow configuration carrying the SLA entries
func (c *Client) Workflow(ctx context.Context, configID string) (calendar.WorkflowConfig, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/api/v2/workflow/%s/", url.PathEscape(configID))
	if err := c.getJSON(ctx, "workflow", path, &raw); err != nil {
		return calendar.WorkflowConfig{}, err
	}
	return calendar.Decode(raw)
}

// ConfigName returns the display name of a configuration. Any failure
// falls back to "config_{id}"
func (c *Client) ConfigName(ctx context.Context, configID string) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	path := fmt.Sprintf("/api/zc/config/%s/", url.PathEscape(configID))
	if err := c.getJSON(ctx, "config", path, &out); err != nil || strings.TrimSpace(out.Name) == "" {
		if err != nil && !perr.IsCode(err, perr.ErrorCodeNotFound) {
			logger.C(ctx).Warn().Err(err).Msg("configuration name unavailable")
		}
		return "config_" + configID, nil
	}
	return strings.TrimSpace(out.Name), nil
}
