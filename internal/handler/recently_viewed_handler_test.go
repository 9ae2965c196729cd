package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/handler"
	"github.com/noah-isme/crm-activity-api/internal/models"
)

type stubRecentlyViewed struct {
	actorID     uint
	subjectType string
	limit       int
	response    dto.RecentlyViewedResponse
}

func (s *stubRecentlyViewed) Tracks(string) bool { return true }

func (s *stubRecentlyViewed) MarkViewed(context.Context, *uint, models.Subject, string) error {
	return nil
}

func (s *stubRecentlyViewed) RecentlyViewedFor(_ context.Context, actorID uint, subjectType string, limit int) (dto.RecentlyViewedResponse, error) {
	s.actorID = actorID
	s.subjectType = subjectType
	s.limit = limit
	return s.response, nil
}

func (s *stubRecentlyViewed) Forget(context.Context, models.SubjectRef) error { return nil }

func TestRecentlyViewedHandler_List(t *testing.T) {
	stub := &stubRecentlyViewed{response: dto.RecentlyViewedResponse{
		Items:    []dto.RecentlyViewedItem{{Type: "account", ID: 2, Name: "Acme"}},
		CacheHit: true,
	}}
	app := fiber.New()
	group := app.Group("/api/v1/recently-viewed", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(5))
		return c.Next()
	})
	handler.NewRecentlyViewedHandler(stub, zerolog.New(io.Discard)).Register(group)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/recently-viewed?type=accounts&limit=3", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get("X-Cache-Hit"))

	var payload struct {
		Data dto.RecentlyViewedResponse `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.Len(t, payload.Data.Items, 1)
	require.Equal(t, "Acme", payload.Data.Items[0].Name)

	require.Equal(t, uint(5), stub.actorID)
	require.Equal(t, models.SubjectAccount, stub.subjectType)
	require.Equal(t, 3, stub.limit)
}

func TestRecentlyViewedHandler_RejectsBadLimit(t *testing.T) {
	app := fiber.New()
	handler.NewRecentlyViewedHandler(&stubRecentlyViewed{}, zerolog.New(io.Discard)).Register(app.Group("/recent"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/recent?limit=ten", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
