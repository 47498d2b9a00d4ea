//go:build !swagger

package httpapi

import "github.com/go-chi/chi/v5"

// MountSwagger only serves /swagger/* in builds tagged swagger.
func MountSwagger(chi.Router) {}
