package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/hostelmess/core/analytics"
)

func Test_analyticsApi(t *testing.T) {
	f := setup(t)
	f.env.DB.InsertComplaint(analytics.Complaint{Category: "food", Status: analytics.ComplaintPending, CreatedAt: now, UpdatedAt: now})

	paths := []string{
		"/v1/analytics/overview",
		"/v1/analytics/attendance-trends",
		"/v1/analytics/revenue-trends",
		"/v1/analytics/feedback",
		"/v1/analytics/complaints",
		"/v1/analytics/meal-popularity",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			serve(t, f.app, httpTest{method: http.MethodGet, path: path + "?month=5&year=2024", token: f.token(t, f.student), wantCode: http.StatusForbidden})
			serve(t, f.app, httpTest{method: http.MethodGet, path: path + "?month=5&year=2024", token: f.token(t, f.manager), wantCode: http.StatusOK})
			serve(t, f.app, httpTest{method: http.MethodGet, path: path + "?month=13&year=2024", token: f.token(t, f.admin), wantCode: http.StatusBadRequest})
		})
	}

	t.Run("overview", func(t *testing.T) {
		var ov analytics.Overview
		serve(t, f.app, httpTest{
			method: http.MethodGet, path: "/v1/analytics/overview?month=5&year=2024", token: f.token(t, f.admin), wantCode: http.StatusOK,
		}, &ov)
		assert.Equal(t, 2, ov.ActiveStudents)
		assert.Equal(t, 1, ov.OpenComplaints)
		assert.True(t, ov.TotalRevenue.IsZero())
	})

	t.Run("year defaults to the current one", func(t *testing.T) {
		var trends []analytics.RevenueTrend
		serve(t, f.app, httpTest{
			method: http.MethodGet, path: "/v1/analytics/revenue-trends", token: f.token(t, f.admin), wantCode: http.StatusOK,
		}, &trends)
		assert.Len(t, trends, 12)
	})
}
