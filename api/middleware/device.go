package middleware

import (
	"net/http"
	"strings"

	"github.com/davidpalacios/shopline-backend/api/responses"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

const deviceIDHeader = "X-Device-ID"

// Device extracts the device identifier every cart and session operation is
// keyed by. The header wins over a device ID carried inside the token.
func Device(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := strings.TrimSpace(r.Header.Get(deviceIDHeader))
			if deviceID == "" {
				deviceID = DeviceIDFromContext(r.Context())
			}
			if deviceID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Device-ID header is required"))
				return
			}

			ctx := WithDeviceID(r.Context(), deviceID)
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, deviceID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
