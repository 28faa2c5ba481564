package filterpipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SocketCluster/sc-crud-rethink/broker"
	"github.com/SocketCluster/sc-crud-rethink/channelnamer"
	"github.com/SocketCluster/sc-crud-rethink/resourcecache"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/store"
	"github.com/SocketCluster/sc-crud-rethink/store/memory"
)

var errDenied = errors.New("denied")

func TestPreAdmitsWithoutHookByDefault(t *testing.T) {
	reg := schema.New(map[string]schema.Model{"Product": {Fields: []string{"id"}}})
	p := New(reg, memory.New(), resourcecache.New(time.Minute, false))

	if err := p.Pre(context.Background(), schema.FilterRequest{Type: "Product"}); err != nil {
		t.Errorf("Pre error = %v, want nil", err)
	}
}

func TestPreBlocksWithoutHookWhenConfigured(t *testing.T) {
	reg := schema.New(map[string]schema.Model{"Product": {Fields: []string{"id"}}})
	p := New(reg, memory.New(), resourcecache.New(time.Minute, false), WithBlockPreByDefault(true))

	err := p.Pre(context.Background(), schema.FilterRequest{Type: "Product"})
	var blocked *Blocked
	if !errors.As(err, &blocked) || blocked.Phase != schema.PhasePre {
		t.Errorf("err = %v, want *Blocked{Phase: pre}", err)
	}
}

func TestPreRunsDeclaredHook(t *testing.T) {
	reg := schema.New(map[string]schema.Model{
		"Product": {
			Fields:    []string{"id"},
			PreFilter: func(ctx context.Context, req schema.FilterRequest) error { return errDenied },
		},
	})
	p := New(reg, memory.New(), resourcecache.New(time.Minute, false))

	err := p.Pre(context.Background(), schema.FilterRequest{Type: "Product"})
	var blocked *Blocked
	if !errors.As(err, &blocked) || !errors.Is(err, errDenied) {
		t.Errorf("err = %v, want wrapped errDenied", err)
	}
}

func TestPostFetchResourceLoadsThroughCache(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()
	_, _ = adapter.Insert(ctx, "Product", schema.Document{"id": "p1", "name": "A"})

	var sawResource schema.Document
	reg := schema.New(map[string]schema.Model{
		"Product": {
			Fields: []string{"id", "name"},
			PostFilter: func(ctx context.Context, req schema.FilterRequest) error {
				sawResource = req.Resource

				return nil
			},
		},
	})
	p := New(reg, adapter, resourcecache.New(time.Minute, false))

	if err := p.Post(ctx, schema.FilterRequest{Type: "Product", ID: "p1"}, true); err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if sawResource["name"] != "A" {
		t.Errorf("hook saw %v, want name=A", sawResource)
	}
}

func TestPostPropagatesFetchError(t *testing.T) {
	reg := schema.New(map[string]schema.Model{"Product": {Fields: []string{"id"}}})
	p := New(reg, memory.New(), resourcecache.New(time.Minute, false))

	err := p.Post(context.Background(), schema.FilterRequest{Type: "Product", ID: "missing"}, true)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want wrapped ErrNotFound", err)
	}
}

func TestEmitMiddlewareGatedByPre(t *testing.T) {
	reg := schema.New(map[string]schema.Model{
		"Product": {
			Fields:    []string{"id"},
			PreFilter: func(ctx context.Context, req schema.FilterRequest) error { return errDenied },
		},
	})
	p := New(reg, memory.New(), resourcecache.New(time.Minute, false))

	var got error
	p.EmitMiddleware()(context.Background(), broker.Request{Channel: channelnamer.Resource("Product", "p1")}, func(err error) { got = err })

	if !errors.Is(got, errDenied) {
		t.Errorf("got = %v, want wrapped errDenied", got)
	}
}

func TestPublishInMiddlewareAlwaysDenies(t *testing.T) {
	reg := schema.New(map[string]schema.Model{"Product": {Fields: []string{"id"}}})
	p := New(reg, memory.New(), resourcecache.New(time.Minute, false))

	var got error
	p.PublishInMiddleware()(context.Background(), broker.Request{Channel: channelnamer.Resource("Product", "p1")}, func(err error) { got = err })

	if !errors.Is(got, ErrPublishNotAllowed) {
		t.Errorf("got = %v, want ErrPublishNotAllowed", got)
	}
}

func TestSubscribeMiddlewareShortCircuitsOnPreDenial(t *testing.T) {
	postCalled := false
	reg := schema.New(map[string]schema.Model{
		"Product": {
			Fields:     []string{"id"},
			PreFilter:  func(ctx context.Context, req schema.FilterRequest) error { return errDenied },
			PostFilter: func(ctx context.Context, req schema.FilterRequest) error { postCalled = true; return nil },
		},
	})
	p := New(reg, memory.New(), resourcecache.New(time.Minute, false))

	var got error
	p.SubscribeMiddleware()(context.Background(), broker.Request{Channel: channelnamer.Resource("Product", "p1")}, func(err error) { got = err })

	var blocked *Blocked
	if !errors.As(got, &blocked) || blocked.Phase != schema.PhasePre {
		t.Errorf("got = %v, want *Blocked{Phase: pre}", got)
	}
	if postCalled {
		t.Error("post hook must not run when pre denies")
	}
}

func TestSubscribeMiddlewareRunsPostWithFetchedResource(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()
	_, _ = adapter.Insert(ctx, "Product", schema.Document{"id": "p1", "categoryId": "c1"})

	var sawCategory any
	reg := schema.New(map[string]schema.Model{
		"Product": {
			Fields: []string{"id", "categoryId"},
			PostFilter: func(ctx context.Context, req schema.FilterRequest) error {
				sawCategory = req.Resource["categoryId"]

				return nil
			},
		},
	})
	p := New(reg, adapter, resourcecache.New(time.Minute, false))

	var got error
	p.SubscribeMiddleware()(ctx, broker.Request{Channel: channelnamer.Resource("Product", "p1")}, func(err error) { got = err })

	if got != nil {
		t.Fatalf("got = %v, want nil", got)
	}
	if sawCategory != "c1" {
		t.Errorf("sawCategory = %v, want c1", sawCategory)
	}
}
