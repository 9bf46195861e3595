package adminapi

import "errors"

// errEmptyBody is returned when a webhook POST body is empty or whitespace-only.
var errEmptyBody = errors.New("adminapi: empty webhook body")
