package mock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// Token is returned by successful logins and registrations
	Token = "QpwL5tke4Pnpja7X4"

	perPage = 6

	errMissingPassword = "Missing password"
	errMissingEmail    = "Missing email or username"
	errUserNotFound    = "user not found"
	errUndefinedUser   = "Note: Only defined users succeed registration"
)

type User struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
}

type support struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

var defaultSupport = support{
	URL:  "https://reqres.in/#support-heading",
	Text: "To keep ReqRes free, contributions towards server costs are appreciated!",
}

// Users is the fixed directory served by the fake
var Users = buildUsers([][3]string{
	{"george.bluth", "George", "Bluth"},
	{"janet.weaver", "Janet", "Weaver"},
	{"emma.wong", "Emma", "Wong"},
	{"eve.holt", "Eve", "Holt"},
	{"charles.morris", "Charles", "Morris"},
	{"tracey.ramos", "Tracey", "Ramos"},
	{"michael.lawson", "Michael", "Lawson"},
	{"lindsay.ferguson", "Lindsay", "Ferguson"},
	{"tobias.funke", "Tobias", "Funke"},
	{"byron.fields", "Byron", "Fields"},
	{"george.edwards", "George", "Edwards"},
	{"rachel.howell", "Rachel", "Howell"},
})

func buildUsers(rows [][3]string) []User {
	users := make([]User, len(rows))
	for i, row := range rows {
		id := i + 1
		users[i] = User{
			ID:        id,
			Email:     row[0] + "@reqres.in",
			FirstName: row[1],
			LastName:  row[2],
			Avatar:    fmt.Sprintf("https://reqres.in/img/faces/%d-image.jpg", id),
		}
	}
	return users
}

func userByID(id int) (User, bool) {
	if id < 1 || id > len(Users) {
		return User{}, false
	}
	return Users[id-1], true
}

func userByEmail(email string) (User, bool) {
	for _, u := range Users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return User{}, false
}

// registerUserRoutes wires the user-management API onto the router
func registerUserRoutes(r *Router, ids *atomic.Int64, now func() time.Time) {
	r.Handle(http.MethodGet, "/api/users", "list users", listUsers)
	r.Handle(http.MethodGet, "/api/users/{id}", "get user", getUser)
	r.Handle(http.MethodPost, "/api/users", "create user", func(req *http.Request, _ map[string]string) *MockResponse {
		return createUser(req, ids, now)
	})
	r.Handle(http.MethodPut, "/api/users/{id}", "update user", func(req *http.Request, _ map[string]string) *MockResponse {
		return updateUser(req, now)
	})
	r.Handle(http.MethodPatch, "/api/users/{id}", "patch user", func(req *http.Request, _ map[string]string) *MockResponse {
		return updateUser(req, now)
	})
	r.Handle(http.MethodDelete, "/api/users/{id}", "delete user", func(*http.Request, map[string]string) *MockResponse {
		return &MockResponse{StatusCode: http.StatusNoContent}
	})
	r.Handle(http.MethodPost, "/api/login", "login", login)
	r.Handle(http.MethodPost, "/api/register", "register", register)
}

func listUsers(req *http.Request, _ map[string]string) *MockResponse {
	page, err := strconv.Atoi(req.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	totalPages := (len(Users) + perPage - 1) / perPage

	data := []User{}
	if start := (page - 1) * perPage; start < len(Users) {
		end := start + perPage
		if end > len(Users) {
			end = len(Users)
		}
		data = Users[start:end]
	}

	return jsonResponse(http.StatusOK, map[string]any{
		"page":        page,
		"per_page":    perPage,
		"total":       len(Users),
		"total_pages": totalPages,
		"data":        data,
		"support":     defaultSupport,
	})
}

func getUser(_ *http.Request, params map[string]string) *MockResponse {
	id, err := strconv.Atoi(params["id"])
	if err != nil {
		return emptyNotFound()
	}
	user, ok := userByID(id)
	if !ok {
		return emptyNotFound()
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"data":    user,
		"support": defaultSupport,
	})
}

func createUser(req *http.Request, ids *atomic.Int64, now func() time.Time) *MockResponse {
	body, err := decodeBody(req)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err.Error())
	}
	body["id"] = strconv.FormatInt(ids.Add(1), 10)
	body["createdAt"] = timestamp(now())
	return jsonResponse(http.StatusCreated, body)
}

func updateUser(req *http.Request, now func() time.Time) *MockResponse {
	body, err := decodeBody(req)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err.Error())
	}
	body["updatedAt"] = timestamp(now())
	return jsonResponse(http.StatusOK, body)
}

type credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func readCredentials(req *http.Request) (credentials, *MockResponse) {
	var c credentials
	if req.Body == nil {
		return c, errorResponse(http.StatusBadRequest, errMissingEmail)
	}
	if err := json.NewDecoder(req.Body).Decode(&c); err != nil {
		return c, errorResponse(http.StatusBadRequest, errMissingEmail)
	}
	if c.Email == "" && c.Username == "" {
		return c, errorResponse(http.StatusBadRequest, errMissingEmail)
	}
	if c.Password == "" {
		return c, errorResponse(http.StatusBadRequest, errMissingPassword)
	}
	return c, nil
}

func login(req *http.Request, _ map[string]string) *MockResponse {
	c, fail := readCredentials(req)
	if fail != nil {
		return fail
	}
	if _, ok := userByEmail(c.Email); !ok {
		return errorResponse(http.StatusBadRequest, errUserNotFound)
	}
	return jsonResponse(http.StatusOK, map[string]any{"token": Token})
}

func register(req *http.Request, _ map[string]string) *MockResponse {
	c, fail := readCredentials(req)
	if fail != nil {
		return fail
	}
	user, ok := userByEmail(c.Email)
	if !ok {
		return errorResponse(http.StatusBadRequest, errUndefinedUser)
	}
	return jsonResponse(http.StatusOK, map[string]any{"id": user.ID, "token": Token})
}

func decodeBody(req *http.Request) (map[string]any, error) {
	body := map[string]any{}
	if req.Body == nil {
		return body, nil
	}
	dec := json.NewDecoder(req.Body)
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return body, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func jsonResponse(status int, v any) *MockResponse {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err.Error())
	}
	return &MockResponse{
		StatusCode:  status,
		ContentType: "application/json; charset=utf-8",
		Body:        data,
	}
}

func errorResponse(status int, message string) *MockResponse {
	data, _ := json.Marshal(map[string]string{"error": message})
	return &MockResponse{
		StatusCode:  status,
		ContentType: "application/json; charset=utf-8",
		Body:        data,
	}
}

func emptyNotFound() *MockResponse {
	return &MockResponse{
		StatusCode:  http.StatusNotFound,
		ContentType: "application/json; charset=utf-8",
		Body:        []byte("{}"),
	}
}
