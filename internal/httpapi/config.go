package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// corsAllowedOrigins lists the origins allowed to call the API. The daemon
// serves local desktop frontends, so the default is permissive.
var corsAllowedOrigins = []string{"*"}

// SetCORSOrigins overrides the allowed origins. An empty list restores the
// permissive default.
func SetCORSOrigins(origins []string) {
	if len(origins) == 0 {
		corsAllowedOrigins = []string{"*"}
		return
	}
	corsAllowedOrigins = append([]string(nil), origins...)
}
