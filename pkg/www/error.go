package www

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is panic'ed by a handler, and RunProtected turns it into an HTTP response
type HTTPError struct {
	Code    int
	Message string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("%v %v", e.Code, e.Message)
}

// Panic with an arbitrary status code
func Panic(code int, message string) {
	panic(HTTPError{code, message})
}

// PanicBadRequestf panics with a 400 Bad Request
func PanicBadRequestf(format string, args ...any) {
	Panic(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// PanicServerErrorf panics with a 500 Internal Server Error
func PanicServerErrorf(format string, args ...any) {
	Panic(http.StatusInternalServerError, fmt.Sprintf(format, args...))
}

// Check panics with err, which RunProtected sends as a 500
func Check(err error) {
	if err != nil {
		panic(err)
	}
}

// CheckClient blames the client for err (400)
func CheckClient(err error) {
	if err != nil {
		Panic(http.StatusBadRequest, err.Error())
	}
}

// CheckNotFound maps err to a 404 if it matches notFound, and to a 400 for any other error
func CheckNotFound(err error, notFound error) {
	if err == nil {
		return
	}
	if errors.Is(err, notFound) {
		Panic(http.StatusNotFound, err.Error())
	}
	CheckClient(err)
}
