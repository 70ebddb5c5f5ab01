package redis

import (
	"context"

	"go.uber.org/zap"
)

// HSet 设置哈希字段
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) (int64, error) {
	n, err := c.rdb.HSet(ctx, key, values...).Result()
	if err != nil {
		c.logger.Error("redis hset failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return n, err
}

// HGet 获取哈希字段值
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := c.rdb.HGet(ctx, key, field).Result()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis hget failed",
			zap.String("key", key),
			zap.String("field", field),
			zap.Error(err),
		)
	}
	return val, err
}

// HGetAll 获取哈希所有字段
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis hgetall failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return vals, err
}

// HDel 删除哈希字段
func (c *Client) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	n, err := c.rdb.HDel(ctx, key, fields...).Result()
	if err != nil {
		c.logger.Error("redis hdel failed",
			zap.String("key", key),
			zap.Strings("fields", fields),
			zap.Error(err),
		)
	}
	return n, err
}
