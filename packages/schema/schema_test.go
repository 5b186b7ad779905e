package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validUser = `{
	"data": {
		"id": 2,
		"email": "janet.weaver@reqres.in",
		"first_name": "Janet",
		"last_name": "Weaver",
		"avatar": "https://reqres.in/img/faces/2-image.jpg"
	},
	"support": {"url": "https://reqres.in/#support-heading", "text": "thanks"}
}`

func violationsOf(t *testing.T, err error) *ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr
}

func TestUser_Valid(t *testing.T) {
	assert.NoError(t, User.Validate([]byte(validUser)))
}

func TestUser_MissingNestedField(t *testing.T) {
	doc := `{"data": {"id": 2, "first_name": "Janet", "last_name": "Weaver", "avatar": "a"}, "support": {}}`

	verr := violationsOf(t, User.Validate([]byte(doc)))
	assert.Equal(t, []string{"data.email"}, verr.Fields())
	assert.Contains(t, verr.Error(), "email")
}

func TestUser_MissingTopLevelField(t *testing.T) {
	doc := `{"data": {"id": 2, "email": "a@b.io", "first_name": "J", "last_name": "W", "avatar": "a"}}`

	verr := violationsOf(t, User.Validate([]byte(doc)))
	assert.Equal(t, []string{"support"}, verr.Fields())
}

func TestUser_WrongTypes(t *testing.T) {
	doc := `{"data": {"id": "2", "email": "janet", "first_name": "J", "last_name": "W", "avatar": "a"}, "support": {}}`

	verr := violationsOf(t, User.Validate([]byte(doc)))
	assert.ElementsMatch(t, []string{"data.id", "data.email"}, verr.Fields())
}

func TestCreatedUser(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"string id", `{"name":"morpheus","job":"leader","id":"123","createdAt":"2024-05-01T10:00:00.000Z"}`, ""},
		{"integer id", `{"name":"morpheus","job":"leader","id":123,"createdAt":"2024-05-01T10:00:00Z"}`, ""},
		{"boolean id", `{"name":"morpheus","job":"leader","id":true,"createdAt":"2024-05-01T10:00:00Z"}`, "id"},
		{"date without time", `{"name":"morpheus","job":"leader","id":"1","createdAt":"2024-05-01"}`, "createdAt"},
		{"missing createdAt", `{"name":"morpheus","job":"leader","id":"1"}`, "createdAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CreatedUser.Validate([]byte(tt.doc))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			verr := violationsOf(t, err)
			assert.Equal(t, []string{tt.wantErr}, verr.Fields())
		})
	}
}

func TestTokenAndError(t *testing.T) {
	assert.NoError(t, Token.Validate([]byte(`{"token":"QpwL5tke4Pnpja7X4"}`)))
	assert.NoError(t, Error.Validate([]byte(`{"error":"Missing password"}`)))
	assert.NoError(t, RegisterSuccess.Validate([]byte(`{"id":4,"token":"QpwL5tke4Pnpja7X4"}`)))

	verr := violationsOf(t, Token.Validate([]byte(`{}`)))
	assert.Equal(t, []string{"token"}, verr.Fields())
	assert.Contains(t, verr.Violations[0].Message, "token")

	verr = violationsOf(t, RegisterSuccess.Validate([]byte(`{"id":"4","token":"x"}`)))
	assert.Equal(t, []string{"id"}, verr.Fields())
}

func TestUserList(t *testing.T) {
	assert.NoError(t, UserList.Validate([]byte(`{"page":2,"data":[{"id":7},{"id":8}],"support":{}}`)))

	verr := violationsOf(t, UserList.Validate([]byte(`{"page":2,"data":[{"id":"7"}]}`)))
	assert.Equal(t, []string{"data.0.id"}, verr.Fields())
}

func TestValidate_NotJSON(t *testing.T) {
	for _, doc := range []string{"", "<html>blocked</html>", "{"} {
		err := Validate(Token, []byte(doc))
		require.Error(t, err, "doc %q", doc)
		assert.Contains(t, err.Error(), "parse document")

		var verr *ValidationError
		assert.False(t, errors.As(err, &verr))
	}
}

func TestValidate_RootTypeMismatch(t *testing.T) {
	verr := violationsOf(t, Token.Validate([]byte(`[]`)))
	assert.Equal(t, []string{"(root)"}, verr.Fields())
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, Token.ValidateValue(map[string]any{"token": "abc"}))
	verr := violationsOf(t, Token.ValidateValue(map[string]any{"token": 5}))
	assert.Equal(t, []string{"token"}, verr.Fields())
}

func TestJSONSchema(t *testing.T) {
	doc := CreatedUser.JSONSchema()

	assert.Equal(t, "object", doc["type"])
	assert.ElementsMatch(t, []string{"name", "job", "id", "createdAt"}, doc["required"])

	props := doc["properties"].(map[string]any)
	assert.Equal(t, []string{"string", "integer"}, props["id"].(map[string]any)["type"])
	assert.Equal(t, TimestampPattern, props["createdAt"].(map[string]any)["pattern"])
}
