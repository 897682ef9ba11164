package pgwarehouse_test

import (
	"context"
	"testing"

	"github.com/shredsink/shredsink/internal/pgwarehouse"
	"github.com/shredsink/shredsink/internal/testutil"
)

func TestPool_Check_AgainstRealContainer(t *testing.T) {
	pg := testutil.NewPostgresContainer(t)
	defer pg.Close()

	pool, err := pgwarehouse.NewPool(t.Context(), pg.Config())
	if err != nil {
		t.Fatalf("unexpected error opening pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Check(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
