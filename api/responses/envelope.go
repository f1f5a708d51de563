package responses

// Success wraps every 2xx body.
type Success struct {
	Data any `json:"data"`
}

// Problem is the client-facing part of a failed request.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Failure wraps every non-2xx body.
type Failure struct {
	Error Problem `json:"error"`
}
