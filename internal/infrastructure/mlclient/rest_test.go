package mlclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMLClient_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req MLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := MLResponse{}
		for _, row := range req.Covariates {
			out.Predictions = append(out.Predictions, row[0]*2)
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	client := NewHTTPMLClient(srv.URL, time.Second)
	got, err := client.Predict(context.Background(), [][]float64{{1, 0}, {2.5, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, got)
}

func TestHTTPMLClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fail":
			w.WriteHeader(http.StatusInternalServerError)
		case "/short":
			w.Write([]byte(`{"predictions":[1,2]}`))
		}
	}))
	defer srv.Close()

	_, err := NewHTTPMLClient(srv.URL+"/fail", time.Second).Predict(context.Background(), [][]float64{{1}})
	assert.ErrorContains(t, err, "status: 500")

	_, err = NewHTTPMLClient(srv.URL+"/short", time.Second).Predict(context.Background(), [][]float64{{1}})
	assert.ErrorContains(t, err, "2 predictions for 1 rows")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewHTTPMLClient(srv.URL+"/short", time.Second).Predict(ctx, [][]float64{{1}})
	assert.ErrorIs(t, err, context.Canceled)
}
