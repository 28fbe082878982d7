package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/activity"
	"ecodigital/baas/baastest"
	"ecodigital/metrics"
	"ecodigital/models"
	"ecodigital/ranks"
	"ecodigital/services"
	"ecodigital/testdb"
)

type env struct {
	app      *fiber.App
	deps     *Deps
	db       *gorm.DB
	auth     *baastest.Auth
	evidence *baastest.Bucket
	company  *models.Company
	employee *models.Profile
	admin    *models.Profile
	sales    *models.Profile
	tokens   map[string]string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testdb.Open(t)
	auth := baastest.NewAuth()
	evidence := baastest.NewBucket("mission_proofs")
	avatars := baastest.NewBucket("avatars")
	log := zap.NewNop()
	m := metrics.New()

	progression := services.NewProgressionService(db, ranks.Default, log, m)
	ranking := services.NewRankingService(db, ranks.Default)
	d := &Deps{
		DB:            db,
		Ranks:         ranks.Default,
		Accounts:      services.NewAccountService(db, auth, log),
		Profiles:      services.NewProfileService(db, ranks.Default, ranking, avatars, log),
		Missions:      services.NewMissionService(db, evidence, progression, log, m),
		Ranking:       ranking,
		Feed:          services.NewFeedService(db, ranks.Default),
		Hub:           services.NewFeedHub(m),
		Engagement:    services.NewEngagementService(db, ranks.Default),
		Collaborators: services.NewCollaboratorService(db, ranks.Default),
		Provisioning:  services.NewProvisioningService(db, auth, log, m),
		Progression:   progression,
		Metrics:       m,
		Log:           log,
	}

	e := &env{
		app:      NewApp(AppConfig{MetricsToken: "scrape"}, d),
		deps:     d,
		db:       db,
		auth:     auth,
		evidence: evidence,
		tokens:   map[string]string{},
	}
	e.company = testdb.Company(t, db, "Acme")
	e.employee = testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, e.company.ID, 90)
	e.admin = testdb.Profile(t, db, "Carla Admin", models.RoleAdmin, e.company.ID, 0)
	e.sales = testdb.Profile(t, db, "Vera Vendas", models.RoleSales, "", 0)
	e.tokens["employee"] = auth.AddUser(e.employee.ID, "ana@acme.com", "Senha@123")
	e.tokens["admin"] = auth.AddUser(e.admin.ID, "carla@acme.com", "Senha@123")
	e.tokens["sales"] = auth.AddUser(e.sales.ID, "vera@eco.com", "Senha@123")
	return e
}

func (e *env) do(t *testing.T, method, path, who string, body io.Reader, contentType string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[who])
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *env) json(t *testing.T, method, path, who string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	return e.do(t, method, path, who, r, fiber.MIMEApplicationJSON)
}

func multipartImage(t *testing.T, field, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, _ = e.do(t, http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer scrape")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "ecodigital_http_request_duration_seconds")
}

func TestLoginAndMe(t *testing.T) {
	e := newEnv(t)

	status, body := e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@acme.com", "password": "Senha@123"})
	require.Equal(t, http.StatusOK, status, body)
	sess := body["session"].(map[string]any)
	e.tokens["fresh"] = sess["access_token"].(string)

	status, body = e.json(t, http.MethodGet, "/api/me", "fresh", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Iniciante Digital", body["patent"].(map[string]any)["name"])
	assert.Equal(t, "AS", body["initials"])

	status, body = e.json(t, http.MethodPost, "/api/auth/login?app=dashboard", "", map[string]string{"email": "ana@acme.com", "password": "Senha@123"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, services.ErrNotAdmin.Msg, body["error"])

	status, _ = e.json(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = e.json(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nope", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["fields"])
}

func TestMissionFlowOverHTTP(t *testing.T) {
	e := newEnv(t)
	m := testdb.Mission(t, e.db, "Limpar downloads", 10, "abrir pasta", "apagar")

	status, body := e.json(t, http.MethodGet, "/api/missions?status=new", "employee", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["missions"], 1)

	status, _ = e.json(t, http.MethodPost, "/api/missions/"+m.ID+"/start", "employee", nil)
	assert.Equal(t, http.StatusCreated, status)
	status, body = e.json(t, http.MethodPost, "/api/missions/"+m.ID+"/start", "employee", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["started"])

	r, ct := multipartImage(t, "evidence", "prova.txt", []byte("x"))
	status, _ = e.do(t, http.MethodPost, "/api/missions/"+m.ID+"/complete", "employee", r, ct)
	assert.Equal(t, http.StatusBadRequest, status)

	r, ct = multipartImage(t, "evidence", "prova.JPG", []byte{0xff, 0xd8, 0xff})
	status, body = e.do(t, http.MethodPost, "/api/missions/"+m.ID+"/complete", "employee", r, ct)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["rank_up"])
	assert.EqualValues(t, 100, body["xp_points"])
	require.Len(t, e.evidence.Keys(), 1)
	assert.True(t, strings.HasPrefix(e.evidence.Keys()[0], e.employee.ID+"/"+m.ID+"/"))

	r, ct = multipartImage(t, "evidence", "prova.jpg", []byte{0xff})
	status, _ = e.do(t, http.MethodPost, "/api/missions/"+m.ID+"/complete", "employee", r, ct)
	assert.Equal(t, http.StatusConflict, status)

	status, body = e.json(t, http.MethodGet, "/api/feed", "employee", nil)
	require.Equal(t, http.StatusOK, status)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, activity.TypeRankUp, items[0].(map[string]any)["activity_type"])

	status, body = e.json(t, http.MethodGet, "/api/ranking", "employee", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["ranking"], 1)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	e := newEnv(t)

	status, _ := e.json(t, http.MethodGet, "/api/admin/kpis", "employee", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := e.json(t, http.MethodGet, "/api/admin/kpis", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["collaborators"])

	status, body = e.json(t, http.MethodGet, "/api/admin/collaborators", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = e.json(t, http.MethodPost, "/api/admin/xp/grant", "admin",
		map[string]any{"profile_id": e.employee.ID, "amount": 15, "reason": "mutirão"})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 105, body["xp_points"])
	assert.Equal(t, true, body["rank_up"])

	status, _ = e.json(t, http.MethodPost, "/api/admin/xp/grant", "admin",
		map[string]any{"profile_id": e.sales.ID, "amount": 15})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = e.json(t, http.MethodGet, "/api/admin/engagement/weekly", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["weeks"], services.WeeklyBuckets)

	status, _ = e.json(t, http.MethodDelete, "/api/admin/collaborators/"+e.admin.ID, "admin", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCreateAccountRoute(t *testing.T) {
	e := newEnv(t)
	in := map[string]any{
		"companyName":         "Verde Ltda",
		"employeeCount":       12,
		"adminName":           "Maria Silva",
		"adminEmail":          "maria@verde.com",
		"provisionalPassword": "Provisoria1!",
	}

	status, body := e.json(t, http.MethodPost, "/api/admin/create-account", "", in)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Falha na autenticação.", body["error"])

	status, body = e.json(t, http.MethodPost, "/api/admin/create-account", "admin", in)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Apenas a equipe de Vendas pode executar esta ação.", body["error"])

	status, body = e.do(t, http.MethodPost, "/api/admin/create-account", "admin", strings.NewReader("{not json"), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.ErrSalesOnly.Msg, body["error"])

	status, body = e.do(t, http.MethodPost, "/api/admin/create-account", "sales", strings.NewReader("{not json"), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.ErrInvalidForm.Msg, body["error"])

	bad := map[string]any{"companyName": "V"}
	status, body = e.json(t, http.MethodPost, "/api/admin/create-account", "sales", bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Dados do formulário inválidos.", body["error"])

	status, body = e.json(t, http.MethodPost, "/api/admin/create-account", "sales", in)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Conta provisionada com sucesso!", body["message"])
	assert.NotEmpty(t, e.auth.Password("maria@verde.com"))
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, writeEvent(w, "feed", []activity.Item{{ID: "1", Text: "oi"}}))
	require.NoError(t, w.Flush())
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: feed\ndata: {"))
	assert.True(t, strings.HasSuffix(out, "\n\n"))
	assert.Contains(t, out, `"text":"oi"`)
}

// nextFeedEvent returns the data line of the next feed event, skipping
// keep-alive comments.
func nextFeedEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return data
		}
	}
}

func TestFeedStreamPushesSnapshots(t *testing.T) {
	e := newEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent(),
		goleak.IgnoreAnyFunction("github.com/valyala/fasthttp.updateServerDate.func1"))

	app := NewApp(AppConfig{StreamKeepAlive: 20 * time.Millisecond}, e.deps)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- app.Listener(ln) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://"+ln.Addr().String()+"/api/feed/stream?token="+e.tokens["employee"], nil)
	require.NoError(t, err)
	tr := &http.Transport{DisableKeepAlives: true}
	resp, err := (&http.Client{Transport: tr}).Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	assert.JSONEq(t, `{"items":[]}`, nextFeedEvent(t, r))

	entry := models.NewMissionCompletedEntry(e.employee.ID, &e.company.ID, "Reciclar pilhas", 30)
	require.NoError(t, e.db.Create(&entry).Error)
	e.deps.Hub.Publish(e.company.ID)

	second := nextFeedEvent(t, r)
	assert.Contains(t, second, "completou a missão Reciclar pilhas e ganhou 30 XP!")
	assert.Contains(t, second, entry.ID)

	cancel()
	resp.Body.Close()
	tr.CloseIdleConnections()
	assert.Eventually(t, func() bool { return e.deps.Hub.Subscribers(e.company.ID) == 0 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, app.Shutdown())
	require.NoError(t, <-served)
}
