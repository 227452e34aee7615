package database

import (
	"testing"

	"gamemarket/internal/config"
	"gamemarket/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestOpenSQLiteMigratesTables(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         "file:database_test?mode=memory&cache=shared",
		LogLevel:    "silent",
		AutoMigrate: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, table := range []string{"wallet", "wallet_transaction", "orders", "outbox_message"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	// user_id 唯一约束
	require.NoError(t, db.Create(&model.Wallet{UserID: 1, Balance: decimal.Zero, Status: model.WalletStatusActive}).Error)
	err = db.Create(&model.Wallet{UserID: 1, Balance: decimal.Zero, Status: model.WalletStatusActive}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestDialectorFor(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite"} {
		d, err := dialectorFor(&config.DatabaseConfig{Driver: driver, Host: "localhost", Port: 1, Database: "x"})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := dialectorFor(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("silent"))
	assert.Equal(t, logger.Info, logLevel("info"))
	assert.Equal(t, logger.Warn, logLevel(""))
}
