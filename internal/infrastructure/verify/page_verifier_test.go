package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVerifyFindsHeadMarkers(t *testing.T) {
	t.Parallel()

	server := serve(t, http.StatusOK, `<html><head>
		<title>Alpha Launch</title>
		<meta name="description" content="What we learned shipping the alpha.">
	</head><body><h1>Alpha Launch</h1></body></html>`)

	result, err := NewVerifier().Verify(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Reachable || result.StatusCode != http.StatusOK {
		t.Fatalf("expected reachable 200, got %+v", result)
	}
	if !result.TitleFound || !result.DescriptionFound {
		t.Fatalf("expected both markers, got %+v", result)
	}
}

func TestVerifyMissingMarkers(t *testing.T) {
	t.Parallel()

	server := serve(t, http.StatusOK, `<html><head></head><body>bare page</body></html>`)

	result, err := NewVerifier().Verify(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Reachable {
		t.Fatalf("expected reachable, got %+v", result)
	}
	if result.TitleFound || result.DescriptionFound {
		t.Fatalf("expected no markers, got %+v", result)
	}
}

func TestVerifyErrorStatusIsUnreachableNotError(t *testing.T) {
	t.Parallel()

	server := serve(t, http.StatusNotFound, "not found")

	result, err := NewVerifier().Verify(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("an HTTP error status is a result, not an error: %v", err)
	}
	if result.Reachable {
		t.Fatalf("404 must be unreachable, got %+v", result)
	}
	if result.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", result.StatusCode)
	}
}

func TestVerifyTransportErrorPropagates(t *testing.T) {
	t.Parallel()

	server := serve(t, http.StatusOK, "")
	server.Close()

	if _, err := NewVerifier().Verify(context.Background(), server.URL); err == nil {
		t.Fatal("expected a transport error for a dead server")
	}
}
