package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"paygate/internal/gateway"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "err", err.Error())
	writeJSONError(w, http.StatusInternalServerError, "internal_error", "the server encountered a problem")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "err", err.Error())
	writeJSONError(w, http.StatusBadRequest, "validation_failed", err.Error())
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized", "method", r.Method, "path", r.URL.Path, "err", err.Error())
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic", "method", r.Method, "path", r.URL.Path, "err", err.Error())
	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
	writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry after "+retryAfter.Round(time.Second).String())
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var gatewayErrors = []errorMapping{
	{gateway.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{gateway.ErrUnsupportedPayWay, http.StatusBadRequest, "unsupported_pay_way"},
	{gateway.ErrChannelNotConfigured, http.StatusUnprocessableEntity, "channel_not_configured"},
	{gateway.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{gateway.ErrRefundNotFound, http.StatusNotFound, "refund_not_found"},
	{gateway.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
	{gateway.ErrOrderNotPaid, http.StatusUnprocessableEntity, "order_not_paid"},
	{gateway.ErrRefundInProgress, http.StatusConflict, "refund_in_progress"},
	{gateway.ErrRefundAlreadyComplete, http.StatusConflict, "refund_already_complete"},
	{gateway.ErrRefundAmountExceeded, http.StatusUnprocessableEntity, "refund_amount_exceeded"},
	{gateway.ErrStorageConflict, http.StatusConflict, "storage_conflict"},
	{gateway.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
}

// gatewayErrorResponse maps orchestration failures onto HTTP statuses.
func (app *application) gatewayErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var adapterErr *gateway.AdapterError
	if errors.As(err, &adapterErr) {
		code := "channel_rejected"
		if adapterErr.Ambiguous {
			code = "channel_outcome_unknown"
		}
		app.logger.Warnw("channel call failed",
			"path", r.URL.Path,
			"channel", adapterErr.Channel,
			"pay_way", adapterErr.PayWay,
			"ambiguous", adapterErr.Ambiguous,
			"err", adapterErr.Err,
		)
		writeJSONError(w, http.StatusBadGateway, code, adapterErr.Error())
		return
	}

	for _, m := range gatewayErrors {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				app.logger.Errorw("request failed", "path", r.URL.Path, "err", err)
			}
			writeJSONError(w, m.status, m.code, err.Error())
			return
		}
	}

	app.internalServerError(w, r, err)
}
