package middleware

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

// hijackRecorder mimics the server's connection-backed response writer,
// which implements Flusher, Hijacker and ReaderFrom.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (r *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.hijacked = true
	conn, _ := net.Pipe()
	return conn, bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)), nil
}

func (r *hijackRecorder) ReadFrom(src io.Reader) (int64, error) {
	return io.Copy(r.ResponseRecorder.Body, src)
}

func TestMetricsKeepsWriterHijackable(t *testing.T) {
	handlerRan := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("response writer lost http.Hijacker through the middleware chain")
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Fatalf("hijack: %v", err)
		}
		conn.Close()
	})
	handler := Metrics(SecurityHeaders(Logger(zerolog.Nop())(inner)))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))

	if !handlerRan {
		t.Fatal("handler did not run")
	}
	if !rec.hijacked {
		t.Fatal("hijack did not reach the underlying writer")
	}
}

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/conversations", "/conversations"},
		{"/conversations/abc-123", "/conversations/:id"},
		{"/conversations/abc-123/messages", "/conversations/:id"},
		{"/users/u1", "/users/:id"},
		{"/logs/search", "/logs/search"},
		{"/health", "/health"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.path); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
