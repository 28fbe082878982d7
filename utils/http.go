package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound API callers. Evidence uploads can be a few
// MB over mobile links, hence the generous timeout.
var HTTPClient = &http.Client{
	Timeout: 60 * time.Second,
}
