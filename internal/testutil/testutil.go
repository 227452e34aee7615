// Package testutil 测试公用的数据库和金额断言工具
package testutil

import (
	"fmt"
	"testing"

	"gamemarket/internal/config"
	"gamemarket/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB 每个测试独立的内存 sqlite 库，已完成表结构迁移
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		LogLevel:    "silent",
		AutoMigrate: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Dec 解析金额字符串
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// AssertAmount 按数值比较金额，忽略末尾零
func AssertAmount(t *testing.T, want string, got decimal.Decimal) bool {
	t.Helper()
	return assert.True(t, Dec(want).Equal(got), "want %s, got %s", want, got.String())
}
