package repositorycache

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-shardcache/shard"
)

type targetContextKey struct{}
type noCacheContextKey struct{}
type transactionContextKey struct{}

// WithTarget routes reads made with ctx to target. Writes always go to the
// master.
func WithTarget(ctx context.Context, target shard.Target) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, targetContextKey{}, target)
}

func targetFromContext(ctx context.Context) shard.Target {
	if ctx == nil {
		return shard.Master()
	}
	if t, ok := ctx.Value(targetContextKey{}).(shard.Target); ok {
		return t
	}
	return shard.Master()
}

// WithoutCache bypasses both cache levels for operations made with ctx.
func WithoutCache(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, noCacheContextKey{}, true)
}

func cacheBypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(noCacheContextKey{}).(bool)
	return v
}

// WithTransaction attaches tx to the context. Writes made with it enlist
// their resource and defer cache maintenance until commit.
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, transactionContextKey{}, tx)
}

// TransactionFrom returns the transaction attached to ctx, if any.
func TransactionFrom(ctx context.Context) Transaction {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(transactionContextKey{}).(Transaction)
	return tx
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
