package pizzasdk

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "string detail", status: 401, body: `{"detail":"Invalid or expired token"}`, want: "Invalid or expired token"},
		{
			name:   "validation list",
			status: 422,
			body:   `{"detail":[{"loc":["body","email"],"msg":"field required"},{"loc":["query","updated_cart_Quantity"],"msg":"value is not a valid integer"}]}`,
			want:   "email: field required; updated_cart_Quantity: value is not a valid integer",
		},
		{name: "issue without location", status: 422, body: `{"detail":[{"msg":"bad"}]}`, want: "bad"},
		{name: "message fallback", status: 404, body: `{"message":"No active cart found for this user."}`, want: "No active cart found for this user."},
		{name: "not json", status: 502, body: `<html>bad gateway</html>`, want: "Bad Gateway"},
		{name: "empty", status: 500, body: ``, want: "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseErrorResponse(&http.Response{StatusCode: tt.status}, []byte(tt.body))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.want, apiErr.Detail)
			require.True(t, IsStatus(err, tt.status))
		})
	}

	require.NoError(t, parseErrorResponse(&http.Response{StatusCode: http.StatusCreated}, nil))
}

func TestEnvelope_DecodesCapitalisedMessage(t *testing.T) {
	var env envelope[[]int]
	require.NoError(t, json.Unmarshal([]byte(`{"Message":"ok","data":[1,2]}`), &env))
	require.Equal(t, "ok", env.Message)
	require.Equal(t, []int{1, 2}, env.Data)
}
