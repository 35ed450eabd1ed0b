package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAppError maps a service error onto the public error taxonomy. Server errors
// are recorded on the gin context for the request logger and answered with a generic message.
func RespondAppError(c *gin.Context, err error) {
	apiErr := apierr.FromError(err)
	if apiErr == nil {
		apiErr = apierr.New(http.StatusInternalServerError, "server_error", nil)
	}
	if apiErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.AbortWithStatusJSON(apiErr.Status, ErrorEnvelope{Error: APIError{Message: "internal server error", Code: apiErr.Code}})
		return
	}
	RespondError(c, apiErr.Status, apiErr.Code, apiErr.Err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondPartial answers 207: the primary write happened, the listed effects did not.
func RespondPartial(c *gin.Context, payload gin.H, pending []domainagg.PendingEffect) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["partial"] = true
	payload["pending"] = pending
	c.JSON(http.StatusMultiStatus, payload)
}

// RespondOutcome picks 207 when the outcome carries pending effects, status otherwise.
func RespondOutcome(c *gin.Context, status int, payload gin.H, out domainagg.Outcome) {
	if out.Partial() {
		RespondPartial(c, payload, out.Pending)
		return
	}
	c.JSON(status, payload)
}
