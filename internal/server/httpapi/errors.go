package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/gin-gonic/gin"
)

const (
	msgNoCredentials = "Authentication credentials were not provided."
	msgTokenInvalid  = "Token is invalid"
	msgTokenExpired  = "Token has expired"
	msgForbidden     = "You do not have permission to perform this action."
	msgSelfTarget    = "You cannot activate/deactivate yourself"
	msgNotFound      = "Not found."
	msgInvalidPage   = "Invalid page."
	msgBadJSON       = "Malformed JSON body"
	msgInternal      = "internal error"
)

// respondError translates err into a status and an {"error": ...} body.
// Unrecognised errors are logged and reported as 500 without details.
func respondError(c *gin.Context, logger logging.Logger, err error) {
	var (
		verr *common.ValidationError
		rerr *common.RequestError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Fields})
	case errors.As(err, &rerr):
		c.JSON(http.StatusBadRequest, gin.H{"error": rerr.Message})
	case errors.Is(err, common.ErrInactiveAccount):
		c.JSON(http.StatusBadRequest, nonFieldError("User account is inactive"))
	case errors.Is(err, common.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, nonFieldError("Invalid credentials"))
	case errors.Is(err, common.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgTokenExpired})
	case errors.Is(err, common.ErrInvalidSignature),
		errors.Is(err, common.ErrMalformedToken),
		errors.Is(err, common.ErrTokenRevoked),
		errors.Is(err, common.ErrorUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgTokenInvalid})
	case errors.Is(err, common.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
	case errors.Is(err, common.ErrInvalidPage):
		c.JSON(http.StatusNotFound, gin.H{"error": msgInvalidPage})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
	default:
		logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	}
}

// nonFieldError shapes a credential failure like a validation error.
func nonFieldError(msg string) gin.H {
	return gin.H{"error": gin.H{common.NonFieldErrorsKey: []string{msg}}}
}
