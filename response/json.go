package response

import (
	"encoding/json"
	"net/http"
)

// V1Response is the envelope for all API responses
type V1Response struct {
	Success  bool        `json:"success"`
	Messages []string    `json:"messages"`
	Result   interface{} `json:"result"`
}

// WriteResponse will write the result wrapped in the v1 envelope with the given status code
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}, statusCode ...int) {
	code := http.StatusOK
	if len(statusCode) > 0 {
		code = statusCode[0]
	}
	writeJSON(w, code, V1Response{
		Success:  true,
		Messages: []string{},
		Result:   result,
	})
}

// WriteError will write the Error wrapped in the v1 envelope, using Error.StatusCode
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	msgs := e.Messages
	if len(e.Message) > 0 {
		msgs = append([]string{e.Message}, msgs...)
	}
	writeJSON(w, e.StatusCode, V1Response{
		Success:  false,
		Messages: msgs,
		Result:   e.Result,
	})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// the envelope contains no unencodable types, ignore the error
	json.NewEncoder(w).Encode(body)
}
