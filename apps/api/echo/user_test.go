package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/hostelmess/apps/api/echo"
	"github.com/trezcool/hostelmess/core/user"
)

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	path := "/v1/users/login"
	body := func(email, pwd string) []byte {
		return []byte(`{"email": "` + email + `", "password": "` + pwd + `"}`)
	}

	tests := []httpTest{
		{name: "empty body", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "this field is required", "password": "this field is required"}`)},
		{name: "unknown email", body: body("ghost@test.in", "student-pwd"), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid credentials"})},
		{name: "wrong password", body: body("student@test.in", "nope"), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid credentials"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, path, tt.body)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("valid credentials", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, path, body(" Student@Test.in ", "student-pwd"))
		f.app.ServeHTTP(rec, req)
		if !assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
			return
		}
		var resp echoapi.LoginResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, f.student.ID, resp.User.ID)

		// the token authenticates further requests
		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_me(t *testing.T) {
	f := setup(t)
	inactive := f.student
	inactive.ID = "deactivated"

	tests := []httpTest{
		{name: "no token", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "bad token", token: "garbage", wantCode: http.StatusUnauthorized},
		{name: "unknown user", token: f.token(t, inactive), wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, httpErr{Error: "user not authenticated"})},
		{name: "student", token: f.token(t, f.student), wantCode: http.StatusOK, wantData: marshallObj(t, f.student)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodGet, "/v1/users/me"
			serve(t, f.app, tt)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	f := setup(t)
	body := []byte(`{"name": "New", "email": "new@test.in", "role": "student", "room_number": "B-12", "password": "long-enough"}`)

	tests := []httpTest{
		{name: "student cannot create", token: f.token(t, f.student), body: body, wantCode: http.StatusForbidden,
			wantData: marshallObj(t, errForbidden)},
		{name: "manager cannot create", token: f.token(t, f.manager), body: body, wantCode: http.StatusForbidden},
		{name: "duplicate email", token: f.token(t, f.admin), wantCode: http.StatusBadRequest,
			body:     []byte(`{"name": "Dup", "email": "student@test.in", "role": "student", "password": "long-enough"}`),
			wantData: []byte(`{"email": "a user with this email already exists"}`)},
		{name: "bad role", token: f.token(t, f.admin), wantCode: http.StatusBadRequest,
			body: []byte(`{"name": "X", "email": "x@test.in", "role": "chef", "password": "long-enough"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/v1/users"
			serve(t, f.app, tt)
		})
	}

	t.Run("admin creates", func(t *testing.T) {
		var usr user.User
		serve(t, f.app, httpTest{
			method: http.MethodPost, path: "/v1/users", token: f.token(t, f.admin), body: body, wantCode: http.StatusCreated,
		}, &usr)
		assert.NotEmpty(t, usr.ID)
		assert.Equal(t, "B-12", usr.RoomNumber)
		assert.True(t, usr.IsActive)
	})
}

func Test_userApi_query(t *testing.T) {
	f := setup(t)

	var students []user.User
	serve(t, f.app, httpTest{
		method: http.MethodGet, path: "/v1/users?role=student", token: f.token(t, f.manager), wantCode: http.StatusOK,
	}, &students)
	assert.Len(t, students, 2)

	serve(t, f.app, httpTest{
		method: http.MethodGet, path: "/v1/users", token: f.token(t, f.student), wantCode: http.StatusForbidden,
	})
}
