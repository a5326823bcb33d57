// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 的 UniversalClient，并维护一个 Lua 脚本注册表。
// 脚本在加载时通过 SCRIPT LOAD 预热，执行时优先走 EVALSHA。
type Client struct {
	client redis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 根据逗号分隔的地址列表创建客户端。
// 单地址时是普通客户端，多地址时自动切换为集群模式。
func NewClient(addrs string) (*Client, error) {
	addrList := strings.Split(addrs, ",")
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrList,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return &Client{
		client:  client,
		scripts: make(map[string]*redis.Script),
	}, nil
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级能力的调用方使用。
func (c *Client) GetClient() redis.UniversalClient {
	return c.client
}

// LoadScriptFromContent 注册一段 Lua 脚本并预加载到 Redis。
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := redis.NewScript(content)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return errors.Wrapf(err, "failed to load script %q", name)
	}

	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行一段已注册的脚本。脚本未注册时返回错误而不是静默失败。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %q is not registered", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.client.Close()
}
