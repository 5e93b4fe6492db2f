package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/codeowl/platform/internal/common/database"
	"github.com/codeowl/platform/internal/common/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   uint   `gorm:"primaryKey"`
	Slug string `gorm:"uniqueIndex;size:32"`
}

func TestIsDuplicateKey_SQLite(t *testing.T) {
	db := dbtest.Open(t, &widget{})

	require.NoError(t, db.Create(&widget{Slug: "owl"}).Error)
	err := db.Create(&widget{Slug: "owl"}).Error

	require.Error(t, err)
	assert.True(t, database.IsDuplicateKey(err))
	assert.False(t, database.IsDuplicateKey(errors.New("boom")))
	assert.False(t, database.IsDuplicateKey(nil))
}

func TestIsNotFound(t *testing.T) {
	db := dbtest.Open(t, &widget{})

	var w widget
	err := db.Where("slug = ?", "missing").First(&w).Error
	assert.True(t, database.IsNotFound(err))
}

func TestSqlxSharesPool(t *testing.T) {
	db := dbtest.Open(t, &widget{})
	require.NoError(t, db.Create(&widget{Slug: "bear"}).Error)

	x, err := database.Sqlx(db)
	require.NoError(t, err)

	var slug string
	err = x.GetContext(context.Background(), &slug, x.Rebind("SELECT slug FROM widgets WHERE slug = ?"), "bear")
	require.NoError(t, err)
	assert.Equal(t, "bear", slug)
}

func TestPaginatedResult(t *testing.T) {
	p := &database.PaginatedResult{Total: 21, Page: 2, PageSize: 10}
	p.Calculate()
	assert.Equal(t, int64(3), p.TotalPages)
	assert.Equal(t, 10, database.Offset(2, 10))
	assert.Equal(t, 0, database.Offset(0, 10))
}
