package carts

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func errCartNotFound() *Error {
	return &Error{Status: 404, Code: "CART_NOT_FOUND", Message: "cart not found"}
}

func errCartCompleted() *Error {
	return &Error{Status: 400, Code: "NOT_ALLOWED", Message: "Cart has already been completed."}
}
