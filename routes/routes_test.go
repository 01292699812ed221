package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync-fe/config"
	"civicsync-fe/controllers"
	"civicsync-fe/middlewares"
	"civicsync-fe/models"
	"civicsync-fe/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeUpstream plays the REST API, identity provider and checkout service.
type fakeUpstream struct {
	mu        sync.Mutex
	issues    []models.Issue
	users     []models.User
	payments  []models.Payment
	staff     []models.Staff
	calls     map[string]int
	failBlock bool
	failUsers bool
}

func newFakeUpstream() *fakeUpstream {
	rafi := models.Identity{Name: "Rafi", Email: "rafi@example.com"}
	mina := models.Identity{Name: "Mina", Email: "mina@example.com"}
	return &fakeUpstream{
		issues: []models.Issue{
			{ID: primitive.NewObjectID(), Title: "Broken streetlight on 5th", Status: models.Pending, Category: models.Streetlight, Reporter: rafi, CreatedAt: t0},
			{ID: primitive.NewObjectID(), Title: "Water leak near school", Status: models.Pending, Category: models.Water, Reporter: mina, IsBoosted: true, CreatedAt: t0.Add(-time.Hour)},
			{ID: primitive.NewObjectID(), Title: "Pothole on Main", Status: models.Resolved, Category: models.Road, Reporter: rafi, CreatedAt: t0.Add(-2 * time.Hour), UpdatedAt: t0},
		},
		users: []models.User{
			{ID: primitive.NewObjectID(), Name: "Rafi", Email: "rafi@example.com", Role: models.RoleCitizen, IssueCount: 2},
			{ID: primitive.NewObjectID(), Name: "Mina", Email: "mina@example.com", Role: models.RoleCitizen, IssueCount: 3},
			{ID: primitive.NewObjectID(), Name: "Ada", Email: "admin@example.com", Role: models.RoleAdmin},
			{ID: primitive.NewObjectID(), Name: "Crew", Email: "crew@example.com", Role: models.RoleStaff},
		},
		payments: []models.Payment{
			{ID: primitive.NewObjectID(), Email: "rafi@example.com", Type: models.PremiumSubscription, Amount: 1000, TransactionID: "PAY-1", PaidAt: t0},
		},
		staff: []models.Staff{
			{ID: primitive.NewObjectID(), Name: "Crew", Email: "crew@example.com"},
			{ID: primitive.NewObjectID(), Name: "Bea", Email: "bea@example.com"},
		},
		calls: make(map[string]int),
	}
}

func (f *fakeUpstream) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeUpstream) issueIndex(hex string) int {
	for i, issue := range f.issues {
		if issue.ID.Hex() == hex {
			return i
		}
	}
	return -1
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	lock := func(name string, fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls[name]++
			fn(w, r)
		}
	}

	mux.HandleFunc("GET /issues", lock("listIssues", func(w http.ResponseWriter, r *http.Request) {
		out := []models.Issue{}
		for _, issue := range f.issues {
			if e := r.URL.Query().Get("email"); e != "" && issue.Reporter.Email != e {
				continue
			}
			if e := r.URL.Query().Get("staffEmail"); e != "" && (issue.AssignedStaff == nil || issue.AssignedStaff.Email != e) {
				continue
			}
			out = append(out, issue)
		}
		writeJSON(w, http.StatusOK, out)
	}))
	mux.HandleFunc("GET /issues/{id}", lock("getIssue", func(w http.ResponseWriter, r *http.Request) {
		i := f.issueIndex(r.PathValue("id"))
		if i < 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Issue not found"})
			return
		}
		writeJSON(w, http.StatusOK, f.issues[i])
	}))
	mux.HandleFunc("POST /issues", lock("createIssue", func(w http.ResponseWriter, r *http.Request) {
		var in models.Issue
		json.NewDecoder(r.Body).Decode(&in)
		in.ID = primitive.NewObjectID()
		in.Status = models.Pending
		in.CreatedAt = t0.Add(time.Hour)
		f.issues = append(f.issues, in)
		writeJSON(w, http.StatusCreated, map[string]any{"acknowledged": true, "insertedId": in.ID.Hex()})
	}))
	mux.HandleFunc("DELETE /issues/{id}", lock("deleteIssue", func(w http.ResponseWriter, r *http.Request) {
		i := f.issueIndex(r.PathValue("id"))
		if i < 0 {
			writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 0})
			return
		}
		f.issues = append(f.issues[:i], f.issues[i+1:]...)
		writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
	}))
	mux.HandleFunc("PATCH /issues/{id}/upvote", lock("upvote", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Email string }
		json.NewDecoder(r.Body).Decode(&in)
		i := f.issueIndex(r.PathValue("id"))
		f.issues[i].Upvoters = append(f.issues[i].Upvoters, in.Email)
		f.issues[i].UpVotes++
		writeJSON(w, http.StatusOK, map[string]int{"matchedCount": 1, "modifiedCount": 1})
	}))
	mux.HandleFunc("PATCH /issues/{id}/assign", lock("assign", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			StaffID string          `json:"staffId"`
			Staff   models.Identity `json:"staff"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		i := f.issueIndex(r.PathValue("id"))
		sid, _ := primitive.ObjectIDFromHex(in.StaffID)
		f.issues[i].AssignedStaffID = &sid
		f.issues[i].AssignedStaff = &in.Staff
		writeJSON(w, http.StatusOK, map[string]int{"matchedCount": 1, "modifiedCount": 1})
	}))
	mux.HandleFunc("PATCH /issues/{id}/reject", lock("reject", func(w http.ResponseWriter, r *http.Request) {
		f.issues[f.issueIndex(r.PathValue("id"))].Status = models.Rejected
		writeJSON(w, http.StatusOK, map[string]int{"matchedCount": 1, "modifiedCount": 1})
	}))
	mux.HandleFunc("PATCH /issues/{id}/status", lock("status", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Status, Note, By string }
		json.NewDecoder(r.Body).Decode(&in)
		i := f.issueIndex(r.PathValue("id"))
		f.issues[i].Status = models.ParseIssueStatus(in.Status)
		f.issues[i].Timeline = append(f.issues[i].Timeline, models.TimelineEntry{
			Action: models.ActionStatusChanged, Status: f.issues[i].Status, Note: in.Note, By: in.By,
		})
		writeJSON(w, http.StatusOK, map[string]int{"matchedCount": 1, "modifiedCount": 1})
	}))
	mux.HandleFunc("GET /users", lock("listUsers", func(w http.ResponseWriter, r *http.Request) {
		if f.failUsers {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "down"})
			return
		}
		writeJSON(w, http.StatusOK, f.users)
	}))
	mux.HandleFunc("GET /users/{email}", lock("getUser", func(w http.ResponseWriter, r *http.Request) {
		for _, u := range f.users {
			if u.Email == r.PathValue("email") {
				writeJSON(w, http.StatusOK, u)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
	}))
	mux.HandleFunc("POST /users", lock("saveUser", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
	}))
	mux.HandleFunc("PATCH /users/{id}/block", lock("block", func(w http.ResponseWriter, r *http.Request) {
		if f.failBlock {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
			return
		}
		var in struct {
			IsBlocked bool `json:"isBlocked"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		for i := range f.users {
			if f.users[i].ID.Hex() == r.PathValue("id") {
				f.users[i].IsBlocked = in.IsBlocked
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"matchedCount": 1, "modifiedCount": 1})
	}))
	mux.HandleFunc("GET /payments", lock("listPayments", func(w http.ResponseWriter, r *http.Request) {
		out := []models.Payment{}
		for _, p := range f.payments {
			if e := r.URL.Query().Get("email"); e == "" || p.Email == e {
				out = append(out, p)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": out})
	}))
	mux.HandleFunc("DELETE /payments/{id}", lock("deletePayment", func(w http.ResponseWriter, r *http.Request) {
		for i, p := range f.payments {
			if p.ID.Hex() == r.PathValue("id") {
				f.payments = append(f.payments[:i], f.payments[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 0})
	}))
	mux.HandleFunc("PATCH /payment-success", lock("paymentSuccess", func(w http.ResponseWriter, r *http.Request) {
		p := models.Payment{
			ID:            primitive.NewObjectID(),
			Email:         "rafi@example.com",
			Type:          models.PremiumSubscription,
			Amount:        1000,
			TransactionID: "PAY-" + r.URL.Query().Get("session_id"),
			PaidAt:        t0.Add(time.Hour),
		}
		f.payments = append(f.payments, p)
		writeJSON(w, http.StatusOK, map[string]any{"payment": p})
	}))
	mux.HandleFunc("GET /staff", lock("listStaff", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.staff)
	}))
	mux.HandleFunc("POST /staff", lock("createStaff", func(w http.ResponseWriter, r *http.Request) {
		var in models.Staff
		json.NewDecoder(r.Body).Decode(&in)
		in.ID = primitive.NewObjectID()
		f.staff = append(f.staff, in)
		writeJSON(w, http.StatusCreated, map[string]any{"acknowledged": true, "insertedId": in.ID.Hex()})
	}))
	mux.HandleFunc("DELETE /staff/{id}", lock("deleteStaff", func(w http.ResponseWriter, r *http.Request) {
		for i, st := range f.staff {
			if st.ID.Hex() == r.PathValue("id") {
				f.staff = append(f.staff[:i], f.staff[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 0})
	}))
	mux.HandleFunc("POST /upload", lock("upload", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("image"); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no image"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"url": "https://i.example.com/pothole.png"}})
	}))
	mux.HandleFunc("POST /auth/signin", lock("signin", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Email, Password string }
		json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "pw" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "INVALID_PASSWORD"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"idToken": "tok-" + in.Email, "email": in.Email})
	}))
	mux.HandleFunc("POST /checkout", lock("checkout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"url": "https://pay.example.com/session/1"})
	}))
	return mux
}

type testEnv struct {
	t      *testing.T
	engine *gin.Engine
	up     *fakeUpstream
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	up := newFakeUpstream()
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{
		Env:              "test",
		PublicURL:        "http://localhost:5173",
		CORSOrigins:      []string{"http://localhost:5173"},
		APIBaseURL:       srv.URL,
		IdentityURL:      srv.URL + "/auth",
		CheckoutURL:      srv.URL + "/checkout",
		ImageHostURL:     srv.URL + "/upload",
		FetchTimeout:     2 * time.Second,
		JWTSecret:        "test-secret",
		SessionTTL:       time.Hour,
		WorkspaceIdleTTL: time.Hour,
		ReportQueue:      "report",
		DailyReportLimit: 10,
		MaxFreeIssues:    3,
		PremiumPrice:     1000,
		BoostPrice:       100,
	}
	registry := session.NewRegistry(cfg.WorkspaceIdleTTL, cfg.FetchTimeout, 0)
	h := controllers.New(cfg, session.NewRedisStore(client), registry)
	return &testEnv{t: t, engine: Setup(cfg, h, client), up: up}
}

func (e *testEnv) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) signIn(email string) *http.Cookie {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": email, "password": "pw"}, nil)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	var session *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == middlewares.SessionCookie {
			session = ck
		}
	}
	require.NotNil(e.t, session)
	return session
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type affordance struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

type issueList struct {
	Items []struct {
		ID        string     `json:"_id"`
		Title     string     `json:"title"`
		IsBlocked bool       `json:"isBlocked"`
		CanUpvote affordance `json:"canUpvote"`
	} `json:"items"`
	Page struct {
		Page       int `json:"page"`
		PageSize   int `json:"pageSize"`
		TotalItems int `json:"totalItems"`
	} `json:"page"`
	Error string `json:"error"`
}

type ticketBody struct {
	Ticket struct {
		Error  string         `json:"error"`
		ID     string         `json:"id"`
		Phase  string         `json:"phase"`
		Prompt string         `json:"prompt"`
		Result map[string]any `json:"result"`
	} `json:"ticket"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVisitorSeesBoardWithBoostedFirst(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/issues", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	list := decode[issueList](t, w)
	require.Len(t, list.Items, 3)
	assert.Equal(t, "Water leak near school", list.Items[0].Title)
	assert.Equal(t, "Broken streetlight on 5th", list.Items[1].Title)
	assert.False(t, list.Items[0].CanUpvote.Allowed)
	assert.Equal(t, "Please sign in to continue.", list.Items[0].CanUpvote.Reason)
	assert.Equal(t, 3, list.Page.TotalItems)
	assert.Equal(t, 9, list.Page.PageSize)

	w = env.do(http.MethodGet, "/api/issues?status=resolved", nil, nil)
	list = decode[issueList](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Pothole on Main", list.Items[0].Title)
}

func TestDisallowedPageSizeIsRejected(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/issues?pageSize=7", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/issues?pageSize=6&page=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[issueList](t, w).Page.Page)
}

func TestLatestResolved(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/issues/latest-resolved", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Pothole on Main")
	assert.NotContains(t, w.Body.String(), "Water leak")
}

func TestSignInAndOut(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "rafi@example.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "not-an-email", "password": "pw"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ticketBody](t, w).Fields, "email")

	cookie := env.signIn("rafi@example.com")
	assert.Equal(t, 1, env.up.callCount("saveUser"))
	w = env.do(http.MethodGet, "/api/auth/me", nil, cookie)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)

	w = env.do(http.MethodPost, "/api/auth/signout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/api/auth/me", nil, cookie)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)
}

func TestUpvoteGuards(t *testing.T) {
	env := newTestEnv(t)
	streetlight := env.up.issues[0].ID.Hex()
	leak := env.up.issues[1].ID.Hex()

	w := env.do(http.MethodPost, "/api/issues/"+streetlight+"/upvote", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	mina := env.signIn("mina@example.com")
	w = env.do(http.MethodPost, "/api/issues/"+streetlight+"/upvote", nil, mina)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", decode[ticketBody](t, w).Ticket.Phase)
	assert.Equal(t, 1, env.up.callCount("upvote"))

	w = env.do(http.MethodPost, "/api/issues/"+streetlight+"/upvote", nil, mina)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "You have already upvoted this issue.", decode[ticketBody](t, w).Error)

	w = env.do(http.MethodPost, "/api/issues/"+leak+"/upvote", nil, mina)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, env.up.callCount("upvote"))
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	streetlight := env.up.issues[0].ID.Hex()
	rafi := env.signIn("rafi@example.com")

	w := env.do(http.MethodDelete, "/api/issues/"+streetlight, nil, rafi)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	first := decode[ticketBody](t, w)
	assert.Equal(t, "confirming", first.Ticket.Phase)
	assert.Contains(t, first.Ticket.Prompt, "Broken streetlight on 5th")

	w = env.do(http.MethodPost, "/api/confirmations/"+first.Ticket.ID, map[string]bool{"confirm": false}, rafi)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decode[ticketBody](t, w).Ticket.Phase)
	assert.Zero(t, env.up.callCount("deleteIssue"))

	w = env.do(http.MethodDelete, "/api/issues/"+streetlight, nil, rafi)
	require.Equal(t, http.StatusAccepted, w.Code)
	second := decode[ticketBody](t, w)

	w = env.do(http.MethodPost, "/api/confirmations/"+second.Ticket.ID, map[string]bool{"confirm": true}, rafi)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", decode[ticketBody](t, w).Ticket.Phase)
	assert.Equal(t, 1, env.up.callCount("deleteIssue"))

	w = env.do(http.MethodPost, "/api/confirmations/"+second.Ticket.ID, map[string]bool{"confirm": true}, rafi)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, env.up.callCount("deleteIssue"))

	w = env.do(http.MethodGet, "/api/me/issues", nil, rafi)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[issueList](t, w)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, "Pothole on Main", mine.Items[0].Title)
}

func TestOthersCannotDelete(t *testing.T) {
	env := newTestEnv(t)
	mina := env.signIn("mina@example.com")
	w := env.do(http.MethodDelete, "/api/issues/"+env.up.issues[0].ID.Hex(), nil, mina)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReportIssue(t *testing.T) {
	env := newTestEnv(t)
	rafi := env.signIn("rafi@example.com")

	valid := map[string]any{
		"title":       "Overflowing bin",
		"description": "The bin at the corner has not been emptied for a week.",
		"category":    "sanitation",
		"location":    "Corner of 3rd and Pine",
		"images":      []string{"https://i.example.com/bin.jpg"},
	}
	short := map[string]any{}
	for k, v := range valid {
		short[k] = v
	}
	short["description"] = "too short"
	short["category"] = "Potholes"

	w := env.do(http.MethodPost, "/api/issues", short, rafi)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[ticketBody](t, w)
	assert.Equal(t, "Must be at least 20 characters", body.Fields["description"])
	assert.Equal(t, "Choose one of the listed categories", body.Fields["category"])
	assert.Zero(t, env.up.callCount("createIssue"))

	w = env.do(http.MethodPost, "/api/issues", valid, rafi)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[ticketBody](t, w).Ticket.Result["id"])
	assert.Equal(t, 1, env.up.callCount("createIssue"))

	mina := env.signIn("mina@example.com")
	w = env.do(http.MethodPost, "/api/issues", valid, mina)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, env.up.callCount("createIssue"))
}

func TestBoostReturnsCheckoutURLAfterConfirmation(t *testing.T) {
	env := newTestEnv(t)
	rafi := env.signIn("rafi@example.com")

	w := env.do(http.MethodPost, "/api/issues/"+env.up.issues[0].ID.Hex()+"/boost", nil, rafi)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ticket := decode[ticketBody](t, w).Ticket
	assert.Zero(t, env.up.callCount("checkout"))

	w = env.do(http.MethodPost, "/api/confirmations/"+ticket.ID, map[string]bool{"confirm": true}, rafi)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://pay.example.com/session/1", decode[ticketBody](t, w).Ticket.Result["redirectUrl"])
	assert.Equal(t, 1, env.up.callCount("checkout"))
}

func TestMyPaymentsFilter(t *testing.T) {
	env := newTestEnv(t)
	rafi := env.signIn("rafi@example.com")

	w := env.do(http.MethodGet, "/api/me/payments?type=Premium%20Subscription", nil, rafi)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "PAY-1")

	w = env.do(http.MethodGet, "/api/me/payments?type=boost", nil, rafi)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "PAY-1")
}

func TestAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	rafi := env.signIn("rafi@example.com")
	w := env.do(http.MethodGet, "/api/admin/users", nil, rafi)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := env.signIn("admin@example.com")
	w = env.do(http.MethodGet, "/api/admin/stats", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"totalIssues":3`)
}

func TestBlockRollsBackWhenWriteFails(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signIn("admin@example.com")
	rafiID := env.up.users[0].ID.Hex()

	w := env.do(http.MethodGet, "/api/admin/users?search=rafi", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)

	env.up.mu.Lock()
	env.up.failBlock = true
	env.up.mu.Unlock()

	w = env.do(http.MethodPatch, "/api/admin/users/"+rafiID+"/block", map[string]bool{"blocked": true}, admin)
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
	assert.Equal(t, "failed", decode[ticketBody](t, w).Ticket.Phase)

	// the refetch fails too, so only the restored cache can answer
	env.up.mu.Lock()
	env.up.failUsers = true
	env.up.mu.Unlock()

	w = env.do(http.MethodGet, "/api/admin/users?search=rafi", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	users := decode[issueList](t, w)
	assert.NotEmpty(t, users.Error)
	require.Len(t, users.Items, 1)
	assert.False(t, users.Items[0].IsBlocked)

	env.up.mu.Lock()
	env.up.failBlock = false
	env.up.failUsers = false
	env.up.mu.Unlock()

	w = env.do(http.MethodPatch, "/api/admin/users/"+rafiID+"/block", map[string]bool{"blocked": true}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/admin/users?search=rafi", nil, admin)
	users = decode[issueList](t, w)
	require.Len(t, users.Items, 1)
	assert.True(t, users.Items[0].IsBlocked)
	assert.True(t, strings.Contains(w.Body.String(), `"canBlock":{"allowed":true}`))
}

func (e *testEnv) confirm(ticketID string, yes bool, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, "/api/confirmations/"+ticketID, map[string]bool{"confirm": yes}, cookie)
}

func (e *testEnv) setIssueStatus(i int, status models.IssueStatus) {
	e.up.mu.Lock()
	defer e.up.mu.Unlock()
	e.up.issues[i].Status = status
}

func TestConfirmedDeleteRechecksIssueStatus(t *testing.T) {
	env := newTestEnv(t)
	streetlight := env.up.issues[0].ID.Hex()
	rafi := env.signIn("rafi@example.com")

	w := env.do(http.MethodDelete, "/api/issues/"+streetlight, nil, rafi)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ticket := decode[ticketBody](t, w).Ticket

	env.setIssueStatus(0, models.InProgress)

	w = env.confirm(ticket.ID, true, rafi)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	body := decode[ticketBody](t, w)
	assert.Equal(t, "failed", body.Ticket.Phase)
	assert.Equal(t, "Only pending issues can be changed.", body.Error)
	assert.Zero(t, env.up.callCount("deleteIssue"))

	w = env.do(http.MethodGet, "/api/issues/"+streetlight, nil, rafi)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"In-Progress"`)
}

func TestConfirmedSubscribeRefusedOnceBlocked(t *testing.T) {
	env := newTestEnv(t)
	mina := env.signIn("mina@example.com")

	w := env.do(http.MethodPost, "/api/me/subscribe", nil, mina)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ticket := decode[ticketBody](t, w).Ticket

	env.up.mu.Lock()
	env.up.users[1].IsBlocked = true
	env.up.mu.Unlock()

	w = env.confirm(ticket.ID, true, mina)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, "failed", decode[ticketBody](t, w).Ticket.Phase)
	assert.Zero(t, env.up.callCount("checkout"))
}

func TestSubscribeRedirectsToCheckout(t *testing.T) {
	env := newTestEnv(t)
	rafi := env.signIn("rafi@example.com")

	w := env.do(http.MethodPost, "/api/me/subscribe", nil, rafi)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ticket := decode[ticketBody](t, w).Ticket
	assert.Contains(t, ticket.Prompt, "premium")
	assert.Zero(t, env.up.callCount("checkout"))

	w = env.confirm(ticket.ID, true, rafi)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://pay.example.com/session/1", decode[ticketBody](t, w).Ticket.Result["redirectUrl"])
	assert.Equal(t, 1, env.up.callCount("checkout"))
}

func TestPaymentSuccessRefreshesMyPayments(t *testing.T) {
	env := newTestEnv(t)
	rafi := env.signIn("rafi@example.com")

	w := env.do(http.MethodGet, "/api/me/payments", nil, rafi)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "PAY-cs_42")

	w = env.do(http.MethodGet, "/api/payments/success", nil, rafi)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/payments/success?session_id=cs_42", nil, rafi)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "PAY-cs_42")

	w = env.do(http.MethodGet, "/api/me/payments", nil, rafi)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PAY-cs_42")
}

func TestAdminDeletesPaymentAfterConfirmation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signIn("admin@example.com")
	paymentID := env.up.payments[0].ID.Hex()

	w := env.do(http.MethodGet, "/api/admin/payments", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PAY-1")
	lists := env.up.callCount("listPayments")

	w = env.do(http.MethodDelete, "/api/admin/payments/"+paymentID, nil, admin)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	first := decode[ticketBody](t, w).Ticket
	assert.Contains(t, first.Prompt, "PAY-1")

	w = env.confirm(first.ID, false, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decode[ticketBody](t, w).Ticket.Phase)
	assert.Zero(t, env.up.callCount("deletePayment"))

	w = env.do(http.MethodGet, "/api/admin/payments", nil, admin)
	assert.Contains(t, w.Body.String(), "PAY-1")
	assert.Equal(t, lists, env.up.callCount("listPayments"), "cancelling must not refetch")

	w = env.do(http.MethodDelete, "/api/admin/payments/"+paymentID, nil, admin)
	require.Equal(t, http.StatusAccepted, w.Code)
	second := decode[ticketBody](t, w).Ticket

	w = env.confirm(second.ID, true, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", decode[ticketBody](t, w).Ticket.Phase)
	assert.Equal(t, 1, env.up.callCount("deletePayment"))

	w = env.do(http.MethodGet, "/api/admin/payments", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "PAY-1")
	assert.Equal(t, lists+1, env.up.callCount("listPayments"))
}

func TestAssignStaffUsesLatestChoice(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signIn("admin@example.com")
	streetlight := env.up.issues[0].ID.Hex()
	crew := env.up.staff[0].ID.Hex()
	bea := env.up.staff[1].ID.Hex()

	w := env.do(http.MethodPatch, "/api/admin/issues/"+streetlight+"/assign", map[string]string{"staffId": crew}, admin)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	first := decode[ticketBody](t, w).Ticket
	assert.Contains(t, first.Prompt, "Crew")

	w = env.do(http.MethodPatch, "/api/admin/issues/"+streetlight+"/assign", map[string]string{"staffId": bea}, admin)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	second := decode[ticketBody](t, w).Ticket
	assert.NotEqual(t, first.ID, second.ID)
	assert.Contains(t, second.Prompt, "Bea")

	w = env.confirm(second.ID, true, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, env.up.callCount("assign"))

	env.up.mu.Lock()
	assigned := env.up.issues[0].AssignedStaff
	env.up.mu.Unlock()
	require.NotNil(t, assigned)
	assert.Equal(t, "bea@example.com", assigned.Email)

	w = env.do(http.MethodPatch, "/api/admin/issues/"+streetlight+"/assign", map[string]string{"staffId": crew}, admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPatch, "/api/admin/issues/"+streetlight+"/assign", map[string]string{"staffId": "nope"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectIssue(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signIn("admin@example.com")
	streetlight := env.up.issues[0].ID.Hex()
	leak := env.up.issues[1].ID.Hex()

	w := env.do(http.MethodPatch, "/api/admin/issues/"+streetlight+"/reject", map[string]string{"note": "duplicate"}, admin)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ticket := decode[ticketBody](t, w).Ticket
	assert.Zero(t, env.up.callCount("reject"))

	w = env.confirm(ticket.ID, true, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, env.up.callCount("reject"))

	w = env.do(http.MethodGet, "/api/admin/issues?status=rejected", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[issueList](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Broken streetlight on 5th", list.Items[0].Title)

	// the leak moves on while the prompt is open
	w = env.do(http.MethodPatch, "/api/admin/issues/"+leak+"/reject", nil, admin)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	stale := decode[ticketBody](t, w).Ticket
	env.setIssueStatus(1, models.Working)

	w = env.confirm(stale.ID, true, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, env.up.callCount("reject"))
}

func TestStaffAdvancesAssignedIssue(t *testing.T) {
	env := newTestEnv(t)
	leak := env.up.issues[1].ID.Hex()
	env.up.mu.Lock()
	staffID := env.up.staff[0].ID
	env.up.issues[1].AssignedStaffID = &staffID
	env.up.issues[1].AssignedStaff = &models.Identity{ID: staffID.Hex(), Name: "Crew", Email: "crew@example.com"}
	env.up.mu.Unlock()

	rafi := env.signIn("rafi@example.com")
	w := env.do(http.MethodGet, "/api/staff/issues", nil, rafi)
	assert.Equal(t, http.StatusForbidden, w.Code)

	crew := env.signIn("crew@example.com")
	w = env.do(http.MethodGet, "/api/staff/issues", nil, crew)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"nextStatus":"In-Progress"`)
	assert.Contains(t, w.Body.String(), `"canAdvance":{"allowed":true}`)

	w = env.do(http.MethodPatch, "/api/staff/issues/"+leak+"/status", map[string]string{}, crew)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "This field is required", decode[ticketBody](t, w).Fields["note"])

	for _, want := range []string{"In-Progress", "Working", "Resolved", "Closed"} {
		w = env.do(http.MethodPatch, "/api/staff/issues/"+leak+"/status", map[string]string{"note": "moving on"}, crew)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, want, decode[ticketBody](t, w).Ticket.Result["status"])
	}

	w = env.do(http.MethodPatch, "/api/staff/issues/"+leak+"/status", map[string]string{"note": "again"}, crew)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 4, env.up.callCount("status"))
}

func TestStaffDirectory(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signIn("admin@example.com")

	w := env.do(http.MethodGet, "/api/admin/staff", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[issueList](t, w).Page.TotalItems)

	w = env.do(http.MethodPost, "/api/admin/staff", map[string]string{"name": "Dev", "email": "not-an-email"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/admin/staff", map[string]string{"name": "Dev", "email": "dev@example.com"}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	newID, _ := decode[ticketBody](t, w).Ticket.Result["id"].(string)
	require.NotEmpty(t, newID)

	w = env.do(http.MethodGet, "/api/admin/staff?search=dev", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dev@example.com")

	w = env.do(http.MethodDelete, "/api/admin/staff/"+newID, nil, admin)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ticket := decode[ticketBody](t, w).Ticket
	assert.Equal(t, "Remove Dev from staff?", ticket.Prompt)

	w = env.confirm(ticket.ID, true, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, env.up.callCount("deleteStaff"))

	w = env.do(http.MethodGet, "/api/admin/staff", nil, admin)
	assert.NotContains(t, w.Body.String(), "dev@example.com")
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t)
	rafi := env.signIn("rafi@example.com")

	upload := func(contentType string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="image"; filename="pothole.png"`)
		header.Set("Content-Type", contentType)
		part, err := form.CreatePart(header)
		require.NoError(t, err)
		part.Write([]byte("\x89PNG fake"))
		require.NoError(t, form.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.AddCookie(rafi)
		w := httptest.NewRecorder()
		env.engine.ServeHTTP(w, req)
		return w
	}

	w := upload("text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.up.callCount("upload"))

	w = upload("image/png")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "https://i.example.com/pothole.png")
	assert.Equal(t, 1, env.up.callCount("upload"))
}
