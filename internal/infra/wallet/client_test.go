package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/domain"
	"dingleup-reward-service/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestCreditSendsIdempotencyKey(t *testing.T) {
	var (
		got    app.CreditRequest
		path   string
		header string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		header = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second, fastPolicy(), zerolog.Nop())
	err := client.Credit(context.Background(), app.CreditRequest{UserID: "u1", IdempotencyKey: "reward-session:s1", Coins: 40})
	require.NoError(t, err)
	require.Equal(t, "/v1/credits", path)
	require.Equal(t, "reward-session:s1", header)
	require.Equal(t, 40, got.Coins)
	require.Equal(t, "u1", got.UserID)
}

func TestCreditRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	keys := make(chan string, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotency-Key")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, fastPolicy(), zerolog.Nop())
	require.NoError(t, client.Credit(context.Background(), app.CreditRequest{UserID: "u1", IdempotencyKey: "k1", Lives: 5}))
	require.EqualValues(t, 3, calls.Load())
	close(keys)
	for key := range keys {
		require.Equal(t, "k1", key)
	}
}

func TestCreditDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad user", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, fastPolicy(), zerolog.Nop())
	err := client.Credit(context.Background(), app.CreditRequest{UserID: "u1", IdempotencyKey: "k1"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.Code)
	require.Equal(t, "bad user", statusErr.Body)
	require.ErrorIs(t, err, domain.ErrCreditRejected)
	require.EqualValues(t, 1, calls.Load())
}

func TestCreditTreatsConflictAsApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, fastPolicy(), zerolog.Nop())
	require.NoError(t, client.Credit(context.Background(), app.CreditRequest{UserID: "u1", IdempotencyKey: "k1"}))
}

func TestCreditGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, fastPolicy(), zerolog.Nop())
	err := client.Credit(context.Background(), app.CreditRequest{UserID: "u1", IdempotencyKey: "k1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrCreditRejected)
	require.EqualValues(t, 3, calls.Load())
}
