package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/The-Simomatic/Sportisimo/internal/httputil"
)

func TestHTTPNotifierPostsJSON(t *testing.T) {
	var got Notification
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.Header.Get("Content-Type") != "application/json" || json.NewDecoder(r.Body).Decode(&got) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	expires := time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)
	n := Notification{Kind: KindConfirmEmail, To: "lea@example.fr", FirstName: "Léa", Link: "http://localhost:8080/?code=abc", ExpiresAt: expires}

	require.NoError(t, NewHTTPNotifier(srv.URL+"/", "relay-token", time.Second).Send(context.Background(), n))
	require.Equal(t, "Bearer relay-token", auth)
	require.Equal(t, n, got)
}

func TestHTTPNotifierSurfacesRelayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("smtp unreachable"))
	}))
	defer srv.Close()

	err := NewHTTPNotifier(srv.URL, "", time.Second).Send(context.Background(), Notification{Kind: KindPasswordReset})
	var httpErr *httputil.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	require.True(t, httpErr.Temporary())
	require.Contains(t, httpErr.Body, "smtp unreachable")
}
