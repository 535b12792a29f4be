package httpkit

import "net/http"

// Get registers a no-body handler and uses the envelope adapter
func Get(r Router, path string, h func(*http.Request) (any, error)) {
	r.Get(path, Call(h))
}

// Head mirrors Get for HEAD so probes can check a route without a body
func Head(r Router, path string, h func(*http.Request) (any, error)) {
	r.Head(path, Call(h))
}
