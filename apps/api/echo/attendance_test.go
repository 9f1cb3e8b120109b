package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hostelmess/core/attendance"
)

func Test_attendanceApi_mark(t *testing.T) {
	f := setup(t)
	body := func(studentID, mealType string) []byte {
		return []byte(`{"student_id": "` + studentID + `", "date": "2024-05-01", "meal_type": "` + mealType + `", "present": true}`)
	}

	tests := []httpTest{
		{name: "student cannot mark", token: f.token(t, f.student), body: body(f.student.ID, "lunch"),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden)},
		{name: "invalid meal type", token: f.token(t, f.manager), body: body(f.student.ID, "supper"),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"meal_type": "must be one of breakfast, lunch or dinner"}`)},
		{name: "unknown student", token: f.token(t, f.manager), body: body("ghost", "lunch"),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "student not found"})},
		{name: "missing present", token: f.token(t, f.manager),
			body:     []byte(`{"student_id": "` + f.student.ID + `", "date": "2024-05-01", "meal_type": "lunch"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"present": "this field is required"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/v1/attendance"
			serve(t, f.app, tt)
		})
	}

	t.Run("manager marks", func(t *testing.T) {
		var rec attendance.Record
		serve(t, f.app, httpTest{
			method: http.MethodPost, path: "/v1/attendance", token: f.token(t, f.manager),
			body: body(f.student.ID, "lunch"), wantCode: http.StatusOK,
		}, &rec)
		assert.True(t, rec.Present)
		assert.True(t, rec.Approved)
		assert.Equal(t, f.manager.ID, rec.MarkedBy)
	})
}

func Test_attendanceApi_markBulk(t *testing.T) {
	f := setup(t)
	body := []byte(`{"date": "2024-05-01", "meal_type": "dinner", "entries": [
		{"student_id": "` + f.student.ID + `", "present": true},
		{"student_id": "` + f.other.ID + `", "present": false},
		{"student_id": "ghost", "present": true}
	]}`)

	var res attendance.BulkResult
	serve(t, f.app, httpTest{
		method: http.MethodPost, path: "/v1/attendance/bulk", token: f.token(t, f.admin), body: body, wantCode: http.StatusOK,
	}, &res)
	assert.Len(t, res.Records, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "ghost", res.Failures[0].StudentID)

	serve(t, f.app, httpTest{
		method: http.MethodPost, path: "/v1/attendance/bulk", token: f.token(t, f.admin),
		body: []byte(`{"date": "2024-05-01", "meal_type": "dinner", "entries": []}`), wantCode: http.StatusBadRequest,
	})
}

func Test_attendanceApi_selfMark(t *testing.T) {
	f := setup(t)
	body := func(date string) []byte {
		return []byte(`{"date": "` + date + `", "meal_type": "breakfast"}`)
	}
	path := "/v1/attendance/self"

	var self attendance.Record
	serve(t, f.app, httpTest{
		method: http.MethodPost, path: path, token: f.token(t, f.student), body: body("2024-05-03"), wantCode: http.StatusCreated,
	}, &self)
	assert.True(t, self.Present)
	assert.False(t, self.Approved)
	assert.Equal(t, f.student.ID, self.StudentID)

	tests := []httpTest{
		{name: "already confirmed", token: f.token(t, f.student), body: body("2024-05-03"),
			wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: "attendance already marked for this meal"})},
		{name: "cutoff passed", token: f.token(t, f.student), body: body("2024-05-02"),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "Cutoff passed: meals must be confirmed by 20:00, 1 day before"})},
		{name: "managers cannot self mark", token: f.token(t, f.manager), body: body("2024-05-04"),
			wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, path
			serve(t, f.app, tt)
		})
	}

	t.Run("approve", func(t *testing.T) {
		serve(t, f.app, httpTest{
			method: http.MethodPost, path: "/v1/attendance/" + self.ID + "/approve", token: f.token(t, f.student),
			wantCode: http.StatusForbidden,
		})
		var approved attendance.Record
		serve(t, f.app, httpTest{
			method: http.MethodPost, path: "/v1/attendance/" + self.ID + "/approve", token: f.token(t, f.manager),
			wantCode: http.StatusOK,
		}, &approved)
		assert.True(t, approved.Approved)
		assert.Equal(t, f.manager.ID, approved.ApprovedBy)

		serve(t, f.app, httpTest{
			method: http.MethodPost, path: "/v1/attendance/missing/approve", token: f.token(t, f.manager),
			wantCode: http.StatusNotFound,
		})
	})
}

func Test_attendanceApi_report(t *testing.T) {
	f := setup(t)
	mark := func(studentID, mealType string, present bool) {
		p := "false"
		if present {
			p = "true"
		}
		serve(t, f.app, httpTest{
			method: http.MethodPost, path: "/v1/attendance", token: f.token(t, f.manager), wantCode: http.StatusOK,
			body: []byte(`{"student_id": "` + studentID + `", "date": "2024-05-01", "meal_type": "` + mealType + `", "present": ` + p + `}`),
		})
	}
	mark(f.student.ID, "breakfast", true)
	mark(f.student.ID, "dinner", false)
	mark(f.other.ID, "lunch", true)

	t.Run("manager sees everyone", func(t *testing.T) {
		var report attendance.Report
		serve(t, f.app, httpTest{
			method: http.MethodGet, path: "/v1/attendance/report?from=2024-05-01&to=2024-05-01", token: f.token(t, f.manager),
			wantCode: http.StatusOK,
		}, &report)
		assert.Equal(t, attendance.Summary{Total: 3, Present: 2, Absent: 1}, report.Summary)
	})

	t.Run("student sees only own records", func(t *testing.T) {
		var report attendance.Report
		serve(t, f.app, httpTest{
			method: http.MethodGet, path: "/v1/attendance/report?student=" + f.other.ID, token: f.token(t, f.student),
			wantCode: http.StatusOK,
		}, &report)
		assert.Equal(t, attendance.Summary{Total: 2, Present: 1, Absent: 1}, report.Summary)
		for _, r := range report.Records {
			assert.Equal(t, f.student.ID, r.StudentID)
		}
	})

	t.Run("empty day", func(t *testing.T) {
		serve(t, f.app, httpTest{
			method: http.MethodGet, path: "/v1/attendance/report?from=2024-06-01&to=2024-06-01", token: f.token(t, f.manager),
			wantCode: http.StatusOK,
			wantData: []byte(`{"records": [], "summary": {"total": 0, "present": 0, "absent": 0}}`),
		})
	})

	t.Run("invalid filter", func(t *testing.T) {
		serve(t, f.app, httpTest{
			method: http.MethodGet, path: "/v1/attendance/report?from=01-05-2024&meal_type=tea", token: f.token(t, f.manager),
			wantCode: http.StatusBadRequest,
		})
	})
}
