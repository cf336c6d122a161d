/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httplib collects small HTTP response helpers shared by the
// server's handlers, the way the teacher's own lib/httplib does for its
// web API. subiquityd has no authentication layer (it is reached only
// over a locally-rooted Unix socket), so this trims the teacher's
// auth-header parsing and session-cookie helpers down to the
// response-shaping helpers; internal/app's meta endpoints use OK.
package httplib

import "net/http"

// Message returns a structured message response body.
func Message(msg string) interface{} {
	return map[string]string{"message": msg}
}

// OK returns a structured OK response body.
func OK() interface{} {
	return Message("OK")
}

// Methods lists every HTTP method the router may need to register a
// handler for.
var Methods = []string{
	http.MethodOptions,
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodHead,
}
