// Package middleware holds the gin middleware in front of the local
// listener: CORS for producer pages, request ids, and token-bucket rate
// limiting per client address.
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
