// Package testutil provides fakes of the notification backend for tests:
// a REST API served with gorilla/mux and a SignalR hub over WebSocket.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/scfet/notification-client/internal/model"
)

// Recorded is one request the Backend served.
type Recorded struct {
	Route         string
	Method        string
	Path          string
	Query         map[string][]string
	Authorization string
	Form          map[string][]string
	Files         map[string][]byte
}

// Backend is an in-memory notification server.
type Backend struct {
	Server *httptest.Server
	Hub    *Hub

	mu       sync.Mutex
	token    string
	password string
	user     model.User
	inbox    []model.Notification
	sent     []model.SentNotification
	groups   []model.Group
	users    map[string][]model.User
	failures map[string][]int
	delays   map[string]time.Duration
	requests []Recorded
}

// NewBackend starts a Backend that accepts token as the only valid bearer
// token. It is shut down when the test ends.
func NewBackend(t *testing.T, token string) *Backend {
	t.Helper()
	b := &Backend{
		Hub:      newHub(t),
		token:    token,
		password: "secret",
		user: model.User{
			UserID: "u-me", Email: "me@school.ru", FirstName: "Olga", LastName: "Smirnova",
			Role: model.RoleTeacher,
		},
		users:    make(map[string][]model.User),
		failures: make(map[string][]int),
		delays:   make(map[string]time.Duration),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", b.route("login", false, b.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/users/profile", b.route("profile", true, b.handleProfile)).Methods(http.MethodGet)
	api.HandleFunc("/users/{kind:students|teachers|administrators}", b.route("users", true, b.handleUsers)).Methods(http.MethodGet)
	api.HandleFunc("/groups", b.route("groups", true, b.handleGroups)).Methods(http.MethodGet)
	api.HandleFunc("/notifications/my", b.route("my", true, b.handleMy)).Methods(http.MethodGet)
	api.HandleFunc("/notifications/sent", b.route("sent", true, b.handleSent)).Methods(http.MethodGet)
	api.HandleFunc("/notifications", b.route("send", true, b.handleSend)).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/mark-as-read", b.route("mark", true, b.handleMark)).Methods(http.MethodPut)
	api.HandleFunc("/notifications/{id}/remove", b.route("remove", true, b.handleRemove)).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/{id}", b.route("get", true, b.handleGet)).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}", b.route("update", true, b.handleSend)).Methods(http.MethodPut)
	r.HandleFunc("/notificationHub/negotiate", b.Hub.handleNegotiate).Methods(http.MethodPost)
	r.HandleFunc("/notificationHub", b.Hub.handleConnect)
	r.PathPrefix("/files/").HandlerFunc(b.handleFile)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	t.Cleanup(b.Hub.Drop)
	return b
}

// APIURL is the REST root.
func (b *Backend) APIURL() string { return b.Server.URL + "/api" }

// HubURL is the hub endpoint.
func (b *Backend) HubURL() string { return b.Server.URL + "/notificationHub" }

// FileURL returns a URL serving FakeJPEG. Names starting with "missing"
// answer 404.
func (b *Backend) FileURL(name string) string { return b.Server.URL + "/files/" + name }

// SetToken changes the accepted bearer token, invalidating the old one.
func (b *Backend) SetToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

// SetUser replaces the signed-in account returned by login and profile.
func (b *Backend) SetUser(u model.User, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user = u
	b.password = password
}

// SetInbox replaces the received feed, in server order.
func (b *Backend) SetInbox(ns []model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inbox = slices.Clone(ns)
}

// Inbox returns the server's copy of the received feed.
func (b *Backend) Inbox() []model.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.inbox)
}

// SetSent replaces the sent feed.
func (b *Backend) SetSent(ns []model.SentNotification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = slices.Clone(ns)
}

// SetGroups replaces the group directory.
func (b *Backend) SetGroups(gs []model.Group) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups = slices.Clone(gs)
}

// SetUsers replaces one user directory ("students", "teachers" or
// "administrators").
func (b *Backend) SetUsers(kind string, us []model.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[kind] = slices.Clone(us)
}

// Fail makes the next calls to route answer with the given statuses, one
// per call.
func (b *Backend) Fail(route string, statuses ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = append(b.failures[route], statuses...)
}

// Delay makes every call to route wait d before answering.
func (b *Backend) Delay(route string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[route] = d
}

// Requests returns the served requests in arrival order.
func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.requests)
}

// RequestsTo filters Requests by route name.
func (b *Backend) RequestsTo(route string) []Recorded {
	var out []Recorded
	for _, r := range b.Requests() {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

func (b *Backend) route(name string, auth bool, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := Recorded{
			Route:         name,
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(32 << 20); err == nil {
				rec.Form = r.MultipartForm.Value
				rec.Files = make(map[string][]byte)
				for field, headers := range r.MultipartForm.File {
					f, err := headers[0].Open()
					if err != nil {
						continue
					}
					data, _ := io.ReadAll(f)
					f.Close()
					rec.Files[field] = data
				}
			}
		}

		b.mu.Lock()
		b.requests = append(b.requests, rec)
		delay := b.delays[name]
		status := 0
		if q := b.failures[name]; len(q) > 0 {
			status, b.failures[name] = q[0], q[1:]
		}
		token := b.token
		b.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		if auth && rec.Authorization != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
			return
		}
		h(w, r)
	}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad body"})
		return
	}

	b.mu.Lock()
	u, password, token := b.user, b.password, b.token
	b.mu.Unlock()
	if !strings.EqualFold(body.Email, u.Email) || body.Password != password {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Неверный email или пароль"})
		return
	}
	u.Token = token
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok", "data": u})
}

func (b *Backend) handleProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	u := b.user
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) handleUsers(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	q := r.URL.Query()
	b.mu.Lock()
	all := slices.Clone(b.users[kind])
	b.mu.Unlock()

	out := []model.User{}
	for _, u := range all {
		if v := q.Get("firstName"); v != "" && !strings.Contains(u.FirstName, v) {
			continue
		}
		if v := q.Get("lastName"); v != "" && !strings.Contains(u.LastName, v) {
			continue
		}
		if v := q.Get("email"); v != "" && !strings.Contains(u.Email, v) {
			continue
		}
		out = append(out, u)
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleGroups(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	b.mu.Lock()
	all := slices.Clone(b.groups)
	b.mu.Unlock()

	out := []model.Group{}
	for _, g := range all {
		if name == "" || strings.Contains(strings.ToLower(g.Name), strings.ToLower(name)) {
			out = append(out, g)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func pageParams(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	size, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = model.DefaultPageSize
	}
	return page, size
}

func paginate[T any](items []T, page, size int) model.Page[T] {
	total := len(items)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	pages := (total + size - 1) / size
	return model.Page[T]{
		Items:      slices.Clone(items[start:end]),
		TotalCount: total,
		Page:       page,
		PageSize:   size,
		TotalPages: pages,
	}
}

func (b *Backend) handleMy(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	b.mu.Lock()
	items := slices.Clone(b.inbox)
	b.mu.Unlock()
	if r.URL.Query().Get("sortOrder") == string(model.SortAscending) {
		slices.Reverse(items)
	}
	writeJSON(w, http.StatusOK, paginate(items, page, size))
}

func (b *Backend) handleSent(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	b.mu.Lock()
	items := slices.Clone(b.sent)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(items, page, size))
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.inbox {
		if n.ID == id {
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "notification not found"})
}

func (b *Backend) handleMark(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.inbox {
		if b.inbox[i].ID == id {
			b.inbox[i].IsRead = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "notification not found"})
}

func (b *Backend) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.sent, func(n model.SentNotification) bool { return n.ID == id })
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "notification not found"})
		return
	}
	b.sent = slices.Delete(b.sent, i, i+1)
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil || len(r.MultipartForm.Value["Title"]) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "title is required"})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/files/")
	if strings.HasPrefix(name, "missing") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(FakeJPEG)
}

// FakeJPEG is served for every /files/ URL.
var FakeJPEG = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0xff, 0xd9}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
