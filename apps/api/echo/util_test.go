package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/hostelmess/apps/api/echo"
	"github.com/trezcool/hostelmess/core/user"
	"github.com/trezcool/hostelmess/testutil"
)

var (
	now = time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type fixture struct {
	env     *testutil.Env
	app     *echoapi.Server
	admin   user.User
	manager user.User
	student user.User
	other   user.User
}

func setup(t *testing.T) fixture {
	env := testutil.NewEnv(t, now)
	app := echoapi.NewServer(env.Conf, echoapi.Deps{
		Logger:       env.Logger,
		Validate:     env.Validate,
		Translator:   env.Trans,
		UserSvc:      env.Users,
		Ledger:       env.Ledger,
		BillingSvc:   env.Billing,
		SettingsSvc:  env.Settings,
		AnalyticsSvc: env.Analytics,
	})
	return fixture{
		env:     env,
		app:     app,
		admin:   testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.in", user.RoleAdmin, true, "admin-pwd"),
		manager: testutil.CreateUser(t, env.UserRepo, "Manager", "manager@test.in", user.RoleManager, true),
		student: testutil.CreateUser(t, env.UserRepo, "Student", "student@test.in", user.RoleStudent, true, "student-pwd"),
		other:   testutil.CreateUser(t, env.UserRepo, "Other", "other@test.in", user.RoleStudent, true),
	}
}

func (f fixture) token(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(f.env.Conf, echoapi.GetUserClaims(f.env.Conf, usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// serve runs tt against app and decodes the response body into out, if given.
func serve(t *testing.T, app http.Handler, tt httpTest, out ...interface{}) {
	t.Helper()
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
	if len(out) > 0 && rec.Code < 300 {
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), out[0]))
	}
}
