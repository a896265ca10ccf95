package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMemory)
	t.Setenv("WHATSAPP_TOKEN", "")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "")
	t.Setenv("GOOGLE_SHEETS_CREDENTIALS_PATH", "")
	t.Setenv("GOOGLE_SHEET_DATABASE_ID", "")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Ledger.UnitPrice.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, 15, cfg.Ledger.PaymentCycleDays)
	assert.True(t, cfg.Ledger.QuantityTolerance.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, 5, cfg.Ledger.ConflictMaxRetries)
	assert.Equal(t, 15*time.Second, cfg.WhatsApp.Timeout)
	assert.False(t, cfg.WhatsApp.Enabled())
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMemory)
	t.Setenv("UNIT_PRICE_PER_LITER", "450.5")
	t.Setenv("PAYMENT_CYCLE_DAYS", "7")
	t.Setenv("WHATSAPP_TOKEN", "token")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "123")
	t.Setenv("META_VERIFY_TOKEN", "verify")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.True(t, cfg.Ledger.UnitPrice.Equal(decimal.RequireFromString("450.5")))
	assert.Equal(t, 7, cfg.Ledger.PaymentCycleDays)
	assert.True(t, cfg.WhatsApp.Enabled())
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMemory)
	t.Setenv("PAYMENT_CYCLE_DAYS", "fortnight")
	t.Setenv("UNIT_PRICE_PER_LITER", "cheap")

	_, err := Load("does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_CYCLE_DAYS")
	assert.Contains(t, err.Error(), "UNIT_PRICE_PER_LITER")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "8080"},
			Store:  StoreConfig{Driver: StoreDriverMemory},
			Ledger: LedgerConfig{
				UnitPrice:          decimal.NewFromInt(400),
				PaymentCycleDays:   15,
				QuantityTolerance:  decimal.RequireFromString("0.1"),
				ConflictMaxRetries: 5,
			},
			Reporting: ReportingConfig{CronSchedule: "0 20 * * *", Timezone: "UTC", NotifyConcurrency: 2},
		}
	}

	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"mongodb without uri": func(c *Config) { c.Store.Driver = StoreDriverMongoDB },
		"unknown driver":      func(c *Config) { c.Store.Driver = "postgres" },
		"zero price":          func(c *Config) { c.Ledger.UnitPrice = decimal.Zero },
		"zero cycle":          func(c *Config) { c.Ledger.PaymentCycleDays = 0 },
		"negative tolerance":  func(c *Config) { c.Ledger.QuantityTolerance = decimal.NewFromInt(-1) },
		"whatsapp w/o verify": func(c *Config) { c.WhatsApp = WhatsAppConfig{AccessToken: "t", PhoneNumberID: "1"} },
		"half sheets config":  func(c *Config) { c.Sheets.SpreadsheetID = "sheet" },
		"bad timezone":        func(c *Config) { c.Reporting.Timezone = "Mars/Olympus" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
