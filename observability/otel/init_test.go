package otel

import (
	"context"
	"testing"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "ledgerd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{Traces: true}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("api-key=abc, ,broken, tenant = ledger ")
	if len(headers) != 2 || headers["api-key"] != "abc" || headers["tenant"] != "ledger" {
		t.Fatalf("unexpected headers %+v", headers)
	}
}

func TestMergeHeadersPrefersExplicit(t *testing.T) {
	merged := mergeHeaders(map[string]string{"tenant": "env", "api-key": "env"}, map[string]string{"tenant": "cfg"})
	if merged["tenant"] != "cfg" || merged["api-key"] != "env" {
		t.Fatalf("unexpected merge %+v", merged)
	}
}
