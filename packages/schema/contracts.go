package schema

import (
	"net/http"
	"strings"
)

// EmailPattern only checks for an "@" followed by a dotted domain
const EmailPattern = `@.+\..+`

// TimestampPattern checks for an ISO-8601 date followed by a time part
const TimestampPattern = `^\d{4}-\d{2}-\d{2}T`

var (
	// User is the envelope of GET /api/users/{id}
	User = Object(map[string]*Schema{
		"data": Object(map[string]*Schema{
			"id":         Integer(),
			"email":      StringMatching(EmailPattern),
			"first_name": String(),
			"last_name":  String(),
			"avatar":     String(),
		}, "id", "email", "first_name", "last_name", "avatar"),
		"support": Object(nil),
	}, "data", "support")

	// UserList is the envelope of GET /api/users
	UserList = Object(map[string]*Schema{
		"page":    Integer(),
		"data":    Array(Object(map[string]*Schema{"id": Integer()}, "id")),
		"support": Object(nil),
	}, "page", "data")

	// CreatedUser is the envelope of POST /api/users
	CreatedUser = Object(map[string]*Schema{
		"name":      String(),
		"job":       String(),
		"id":        AnyOf(TypeString, TypeInteger),
		"createdAt": StringMatching(TimestampPattern),
	}, "name", "job", "id", "createdAt")

	// RegisterSuccess is the envelope of a successful POST /api/register
	RegisterSuccess = Object(map[string]*Schema{
		"id":    Integer(),
		"token": String(),
	}, "id", "token")

	// Token is the envelope of a successful POST /api/login
	Token = Object(map[string]*Schema{
		"token": String(),
	}, "token")

	// Error is the envelope of a rejected login or registration
	Error = Object(map[string]*Schema{
		"error": String(),
	}, "error")
)

// Contract binds a schema to an endpoint. ForError marks the contract of a
// 4xx response.
type Contract struct {
	Name     string
	Method   string
	Path     string
	Schema   *Schema
	ForError bool
}

// Contracts lists every known endpoint contract
var Contracts = []Contract{
	{Name: "user list", Method: http.MethodGet, Path: "/api/users", Schema: UserList},
	{Name: "user", Method: http.MethodGet, Path: "/api/users/{id}", Schema: User},
	{Name: "created user", Method: http.MethodPost, Path: "/api/users", Schema: CreatedUser},
	{Name: "login", Method: http.MethodPost, Path: "/api/login", Schema: Token},
	{Name: "login error", Method: http.MethodPost, Path: "/api/login", Schema: Error, ForError: true},
	{Name: "register", Method: http.MethodPost, Path: "/api/register", Schema: RegisterSuccess},
	{Name: "register error", Method: http.MethodPost, Path: "/api/register", Schema: Error, ForError: true},
}

// ForResponse returns the contract for a method, a concrete path such as
// "/api/users/2" and a status. A 4xx status picks the error contract.
func ForResponse(method, path string, status int) (Contract, bool) {
	forError := status >= 400 && status < 500
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, c := range Contracts {
		if c.ForError == forError && strings.EqualFold(c.Method, method) && matchPath(c.Path, path) {
			return c, true
		}
	}
	return Contract{}, false
}

// matchPath compares a templated path ("/api/users/{id}") with a concrete one
func matchPath(template, path string) bool {
	tparts := strings.Split(strings.Trim(template, "/"), "/")
	pparts := strings.Split(strings.Trim(path, "/"), "/")
	if len(tparts) != len(pparts) {
		return false
	}
	for i, tp := range tparts {
		if strings.HasPrefix(tp, "{") && strings.HasSuffix(tp, "}") {
			if pparts[i] == "" {
				return false
			}
			continue
		}
		if tp != pparts[i] {
			return false
		}
	}
	return true
}
