package dreamina

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dreamgate/dreamgate/internal/region"
)

// Credit is an account's benefit balance, split the way the commerce API
// reports it.
type Credit struct {
	GiftCredit     int `json:"gift_credit"`
	PurchaseCredit int `json:"purchase_credit"`
	VIPCredit      int `json:"vip_credit"`
	TotalCredit    int `json:"total_credit"`
}

type creditData struct {
	Credit struct {
		GiftCredit     int `json:"gift_credit"`
		PurchaseCredit int `json:"purchase_credit"`
		VIPCredit      int `json:"vip_credit"`
	} `json:"credit"`
}

// GetCredit queries the account's current benefit balance.
func (c *Client) GetCredit(ctx context.Context, token string) (Credit, error) {
	info := region.FromToken(token)
	data, err := c.post(ctx, c.commerce(info), token, "/commerce/v1/benefits/user_credit", nil, map[string]any{})
	if err != nil {
		return Credit{}, err
	}
	var cd creditData
	if err := json.Unmarshal(data, &cd); err != nil {
		return Credit{}, fmt.Errorf("decode credit response: %w", err)
	}
	credit := Credit{
		GiftCredit:     cd.Credit.GiftCredit,
		PurchaseCredit: cd.Credit.PurchaseCredit,
		VIPCredit:      cd.Credit.VIPCredit,
	}
	credit.TotalCredit = credit.GiftCredit + credit.PurchaseCredit + credit.VIPCredit
	return credit, nil
}

type receiveData struct {
	CreditReceived int `json:"receive_quota"`
}

// ReceiveCredit claims the daily free credit grant.
func (c *Client) ReceiveCredit(ctx context.Context, token string) (int, error) {
	info := region.FromToken(token)
	data, err := c.post(ctx, c.commerce(info), token, "/commerce/v1/benefits/credit_receive", nil, map[string]any{
		"time_zone": "Asia/Shanghai",
	})
	if err != nil {
		return 0, err
	}
	var rd receiveData
	if err := json.Unmarshal(data, &rd); err != nil {
		return 0, fmt.Errorf("decode receive response: %w", err)
	}
	c.logger.Info("daily credit received", slog.Int("quota", rd.CreditReceived))
	return rd.CreditReceived, nil
}

// ensureCredit checks the balance and claims the daily grant when empty.
func (c *Client) ensureCredit(ctx context.Context, token string) error {
	credit, err := c.GetCredit(ctx, token)
	if err != nil {
		return err
	}
	if credit.TotalCredit > 0 {
		return nil
	}
	c.logger.Info("credit exhausted, claiming daily grant")
	if _, err := c.ReceiveCredit(ctx, token); err != nil {
		return fmt.Errorf("claim daily credit: %w", err)
	}
	return nil
}
