package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix     = "user:%d"
	CategoryKeyPrefix = "category:%d"
	CategoriesListKey = "categories:all"
)

const (
	UserTTL       = 5 * time.Minute
	CategoriesTTL = 30 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func CategoryKey(categoryID uint) string {
	return fmt.Sprintf(CategoryKeyPrefix, categoryID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

// InvalidateUsers drops the cached entries for every id.
func InvalidateUsers(ctx context.Context, userIDs []uint) {
	if client == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, UserKey(id))
	}
	client.Del(ctx, keys...)
}

// InvalidateCategories drops the cached category list and, when given, one category entry.
func InvalidateCategories(ctx context.Context, categoryIDs ...uint) {
	Invalidate(ctx, CategoriesListKey)
	for _, id := range categoryIDs {
		Invalidate(ctx, CategoryKey(id))
	}
}
