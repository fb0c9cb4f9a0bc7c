package upstream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/upstream"
)

// stubClient is a minimal Client for registry tests.
type stubClient struct {
	kind string
}

func (s *stubClient) QuerySeries(context.Context, upstream.SeriesQuery) ([]model.Series, error) {
	return nil, nil
}

func (s *stubClient) ListEntities(context.Context, upstream.EntityQuery) ([]upstream.Entity, error) {
	return nil, nil
}

func (s *stubClient) ListMetrics(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (s *stubClient) Info() upstream.DatasourceInfo {
	return upstream.DatasourceInfo{Kind: s.kind}
}

func TestRegistryRegisterAndList(t *testing.T) {
	reg := upstream.NewRegistry()
	reg.Register("staging", &stubClient{kind: "http"})
	reg.Register("prod", &stubClient{kind: "http"})

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d datasources, want 2", len(list))
	}
	if list[0].Name != "prod" || list[1].Name != "staging" {
		t.Errorf("List() order = %s, %s, want prod, staging", list[0].Name, list[1].Name)
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := upstream.NewRegistry()
	prod := &stubClient{kind: "http"}
	reg.Register("prod", prod)

	c, err := reg.Resolve(model.ClientIdentity{Datasource: "prod", Account: "ops"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c != prod {
		t.Error("Resolve returned the wrong client")
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg := upstream.NewRegistry()

	_, err := reg.Resolve(model.ClientIdentity{Datasource: "missing"})
	if !errors.Is(err, upstream.ErrUnknownDatasource) {
		t.Fatalf("Resolve error = %v, want ErrUnknownDatasource", err)
	}
}

func TestRemoteErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&upstream.RemoteError{Datasource: "prod", Op: "series", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("RemoteError does not unwrap to its cause")
	}
	if got, want := err.Error(), "prod series: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withStatus := &upstream.RemoteError{Datasource: "prod", Op: "series", Status: 503, Err: errors.New("busy")}
	if got, want := withStatus.Error(), "prod series: status 503: busy"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
