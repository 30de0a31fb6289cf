package repository

import "context"

// TxKey 事务在上下文中的键
type TxKey struct{}

// TxManager 事务边界接口
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
