package counts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "opaque-token", OrganizationID: "org-1"}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCreateCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/inventory-counts", r.URL.Path)
		assert.Equal(t, "Bearer opaque-token", r.Header.Get("Authorization"))
		assert.Equal(t, "org-1", r.Header.Get("X-Organization-Id"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		var body CreateCountRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "loc-1", body.LocationID)
		assert.Equal(t, models.CountTypeFull, body.Type)
		require.Len(t, body.Areas, 2)
		assert.Equal(t, "Storage", body.Areas[1].Name)
		assert.Equal(t, 1, body.Areas[1].Order)

		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"c1","status":"DRAFT","areas":[{"id":"a1","name":"Bar","order":0},{"id":"a2","name":"Storage","order":1}]}}`))
	})

	count, err := c.CreateCount(context.Background(), CreateCountRequest{
		LocationID: "loc-1",
		Name:       "Weekly",
		Type:       models.CountTypeFull,
		Areas:      []AreaInput{{Name: "Bar", Order: 0}, {Name: "Storage", Order: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", count.ID)
	require.Len(t, count.Areas, 2)
	assert.Equal(t, "a2", count.Areas[1].ID)
}

func TestUpdateCount_OmitsUnsetFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/inventory-counts/c1", r.URL.Path)
		assert.Empty(t, r.Header.Get("Idempotency-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"status": "COMPLETED"}, body)

		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"c1","status":"COMPLETED"}}`))
	})

	count, err := c.UpdateCount(context.Background(), "c1", StatusUpdate(models.CountStatusCompleted))
	require.NoError(t, err)
	assert.Equal(t, models.CountStatusCompleted, count.Status)
}

func TestApproveCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "APPROVED", body["status"])
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"c1","status":"APPROVED"}}`))
	})

	count, err := c.ApproveCount(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CountStatusApproved, count.Status)
}

func TestUpdateAreaStatus_EmptyAck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory-counts/c1/areas/a1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.UpdateAreaStatus(context.Background(), "c1", "a1", models.AreaStatusCompleted))
}

func TestAddCountItem_SplitsQuantity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body AddItemRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 3, body.FullUnits)
		assert.Equal(t, 0.5, body.PartialUnit)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"ci-1"}}`))
	})

	ref, err := c.AddCountItem(context.Background(), "c1", NewAddItemRequest("a1", "p1", 3.5, ""))
	require.NoError(t, err)
	assert.Equal(t, "ci-1", ref.ID)
}

func TestErrors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"success":false,"error":"location not found"}`))
		})

		_, err := c.UpdateCount(context.Background(), "c1", StatusUpdate(models.CountStatusCompleted))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Equal(t, "location not found", apiErr.Message)
	})

	t.Run("success false", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"message":"nope"}`))
		})

		_, err := c.CreateCount(context.Background(), CreateCountRequest{LocationID: "l"})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "nope", apiErr.Message)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
		require.NoError(t, err)

		err = c.UpdateAreaStatus(context.Background(), "c1", "a1", models.AreaStatusCompleted)
		assert.Error(t, err)
	})
}

func TestExpiredTokenFailsFast(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	c.SetToken(expired)

	_, err = c.ApproveCount(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, called)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	assert.False(t, tokenExpired("", now))
	assert.False(t, tokenExpired("not-a-jwt", now))
	assert.False(t, tokenExpired(valid, now))
	assert.True(t, tokenExpired(valid, now.Add(2*time.Hour)))
}

func TestSplitQuantity(t *testing.T) {
	for _, q := range []float64{0, 0.1, 0.9, 1, 2.5, 12, 12.3, 99.99, 1e6 + 0.7} {
		full, partial := SplitQuantity(q)
		assert.Equal(t, float64(full)+partial, q, "q=%v", q)
		assert.GreaterOrEqual(t, partial, 0.0)
		assert.Less(t, partial, 1.0)
	}

	full, partial := SplitQuantity(7.5)
	assert.Equal(t, 7, full)
	assert.Equal(t, 0.5, partial)
}
