// Package schema carries the sqlite rendition of the goose migrations. It
// backs local sqlite runs and repository tests; postgres always goes through
// goose.
package schema

import (
	"fmt"

	"gorm.io/gorm"
)

var sqliteStatements = []string{
	`CREATE TABLE IF NOT EXISTS merchants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  email TEXT,
  subaccount_code TEXT,
  split_code TEXT,
  settlement_bank TEXT,
  settlement_account_number TEXT,
  merchant_share_percent TEXT,
  dedicated_account_number TEXT,
  dedicated_bank_name TEXT,
  dedicated_account_name TEXT,
  dedicated_account_id TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  merchant_id TEXT NOT NULL,
  customer_id TEXT,
  status TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  customer_phone TEXT,
  customer_name TEXT,
  delivery_address TEXT NOT NULL,
  cancellation_reason TEXT,
  subtotal TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  amount TEXT NOT NULL,
  platform_fee TEXT NOT NULL,
  processor_fee TEXT NOT NULL,
  merchant_amount TEXT NOT NULL,
  merchant_share_percent TEXT NOT NULL,
  platform_share_percent TEXT NOT NULL,
  fee_bearer TEXT NOT NULL,
  processor_reference TEXT,
  authorization_url TEXT,
  dedicated_account_number TEXT,
  dedicated_bank_name TEXT,
  dedicated_account_name TEXT,
  terminal_session_id TEXT,
  channel_attached_at DATETIME,
  transaction_id TEXT UNIQUE,
  payment_channel TEXT,
  paid_at DATETIME,
  payout_status TEXT NOT NULL,
  payout_reference TEXT,
  payout_failure_reason TEXT,
  payout_updated_at DATETIME,
  delivery_status TEXT NOT NULL,
  rider_id TEXT,
  delivery_notes TEXT,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  line_total TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_kind TEXT NOT NULL,
  payload TEXT NOT NULL,
  received_at DATETIME NOT NULL,
  processed_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS refunds (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  order_reference TEXT NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL,
  reason TEXT,
  processor_reference TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS ledger_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  order_reference TEXT NOT NULL,
  type TEXT NOT NULL,
  amount TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS inventory_items (
  product_id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  available_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
}

// ApplySQLite creates every table on conn if it does not exist yet.
func ApplySQLite(conn *gorm.DB) error {
	for _, stmt := range sqliteStatements {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
