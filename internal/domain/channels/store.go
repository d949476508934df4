package channels

import (
	"context"
	"fmt"

	"paygate/internal/infra/dbx"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) LoadAll(ctx context.Context) ([]Config, error) {
	rows, err := r.q.Query(ctx, `
SELECT c.id, c.client_id, c.channel, c.name, c.status,
       w.id, w.way, w.merchant_id, w.app_id, w.api_key, w.serial_no,
       w.private_key, w.notify_url, w.endpoint, w.status
FROM payment_channels c
JOIN payment_channel_pay_ways w ON w.payment_channel_id = c.id
WHERE c.status = 'enabled' AND w.status = 'enabled'
ORDER BY c.id, w.id`)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		var c Channel
		var w PayWay
		if err := rows.Scan(
			&c.ID, &c.ClientID, &c.Channel, &c.Name, &c.Status,
			&w.ID, &w.Way, &w.MerchantID, &w.AppID, &w.APIKey, &w.SerialNo,
			&w.PrivateKey, &w.NotifyURL, &w.Endpoint, &w.Status,
		); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		w.ChannelID = c.ID
		out = append(out, NewConfig(c, w))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert registers a channel and pay-way for a client, used by operators.
func (r *Repository) Upsert(ctx context.Context, c *Channel, w *PayWay) error {
	if err := r.q.QueryRow(ctx, `
INSERT INTO payment_channels (client_id, channel, name)
VALUES ($1, $2, $3)
ON CONFLICT (client_id, channel) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
RETURNING id, status`, c.ClientID, c.Channel, c.Name).Scan(&c.ID, &c.Status); err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}

	w.ChannelID = c.ID
	if err := r.q.QueryRow(ctx, `
INSERT INTO payment_channel_pay_ways
  (payment_channel_id, way, merchant_id, app_id, api_key, serial_no, private_key, notify_url, endpoint)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (payment_channel_id, way) DO UPDATE SET
  merchant_id = EXCLUDED.merchant_id,
  app_id      = EXCLUDED.app_id,
  api_key     = EXCLUDED.api_key,
  serial_no   = EXCLUDED.serial_no,
  private_key = EXCLUDED.private_key,
  notify_url  = EXCLUDED.notify_url,
  endpoint    = EXCLUDED.endpoint,
  updated_at  = now()
RETURNING id, status`,
		w.ChannelID, w.Way, w.MerchantID, w.AppID, w.APIKey, w.SerialNo, w.PrivateKey, w.NotifyURL, w.Endpoint,
	).Scan(&w.ID, &w.Status); err != nil {
		return fmt.Errorf("upsert pay way: %w", err)
	}
	return nil
}
