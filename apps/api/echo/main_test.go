package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/analytics"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/syllabus"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/core/user"
	appfs "github.com/trezcool/soma/fs"
	"github.com/trezcool/soma/services/live"
	inmemdb "github.com/trezcool/soma/storage/database/inmem"
	"github.com/trezcool/soma/storage/kv/memkv"
	"github.com/trezcool/soma/testutil"
)

var errMissingTokenBody = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	srv     *Server
	conf    *core.Config
	usrRepo user.Repository
	mail    *testutil.MailSpy
	logger  *testutil.Logger
	deps    *Deps
}

func setup(t *testing.T, configure ...func(conf *core.Config)) *testApp {
	t.Helper()

	conf := core.NewTestConfig()
	for _, fn := range configure {
		fn(conf)
	}
	validate, translator := testutil.NewValidator()
	logger := new(testutil.Logger)
	mailSvc := new(testutil.MailSpy)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	planRepo := inmemdb.NewPlanRepository(db)
	sessRepo := inmemdb.NewSessionRepository(db)
	gameRepo := inmemdb.NewGamificationRepository(db)
	kv := memkv.New()

	hub := live.NewHub(logger)
	t.Cleanup(hub.Close)

	// set up services
	usrSvc := user.NewService(usrRepo, mailSvc, validate, conf)
	gameSvc := gamification.NewService(gameRepo, planRepo, sessRepo, kv, hub)
	planSvc := plan.NewService(planRepo, gameSvc, validate)
	sessSvc := session.NewService(sessRepo, planRepo, gameSvc, validate)
	timerSvc := timer.NewService(kv, sessSvc, usrSvc, hub, logger, validate)
	sylSvc, err := syllabus.NewService(planSvc, appfs.FS)
	require.NoError(t, err)
	anaSvc := analytics.NewService(planRepo, sessRepo, gameSvc, usrRepo, mailSvc, logger)

	deps := &Deps{
		Conf:         conf,
		Logger:       logger,
		Validate:     validate,
		Translator:   translator,
		RateLimiter:  kv,
		Hub:          hub,
		UserSvc:      usrSvc,
		PlanSvc:      planSvc,
		SyllabusSvc:  sylSvc,
		TimerSvc:     timerSvc,
		SessionSvc:   sessSvc,
		GameSvc:      gameSvc,
		AnalyticsSvc: anaSvc,
	}

	// set up server
	return &testApp{
		srv:     NewServer("", nil, deps),
		conf:    conf,
		usrRepo: usrRepo,
		mail:    mailSvc,
		logger:  logger,
		deps:    deps,
	}
}

func (app *testApp) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.srv.ServeHTTP(rec, req)
	return rec
}

// call sends a JSON request and decodes the JSON response into out (when not nil).
func (app *testApp) call(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var data []byte
	if body != nil {
		data = marchallObj(t, body)
	}
	rec := app.do(newAuthRequest(method, path, token, data))
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
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

func getToken(t *testing.T, app *testApp, usr user.User, origIat ...int64) string {
	t.Helper()
	token, err := app.srv.auth.GenerateToken(app.srv.auth.GetUserClaims(usr, origIat...))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
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
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v; body %s", err, rec.Body.String())
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(newAuthRequest(method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}
