package main

import (
	"errors"
	"net/http"

	"paygate/internal/gateway"

	"github.com/go-chi/chi/v5"
)

type refundNoParam struct {
	RefundNo string `validate:"required,numeric,max=64"`
}

// createRefundHandler godoc
//
//	@Summary		Refund a paid order
//	@Description	Refunds through the channel the order was paid with. Amount defaults to the full order amount.
//	@Tags			refunds
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		gateway.CreateRefundRequest	true	"Refund request"
//	@Success		201		{object}	gateway.RefundResult
//	@Failure		404		{object}	error
//	@Failure		409		{object}	error
//	@Failure		422		{object}	error
//	@Failure		502		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/refunds [post]
func (app *application) createRefundHandler(w http.ResponseWriter, r *http.Request) {
	var req gateway.CreateRefundRequest
	if err := readJSON(w, r, &req); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	res, err := app.gateway.CreateRefund(r.Context(), getClientFromContext(r), req)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}
	if err := app.jsonResponse(w, http.StatusCreated, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getRefundHandler(w http.ResponseWriter, r *http.Request) {
	p := refundNoParam{RefundNo: chi.URLParam(r, "refundNo")}
	if err := Validate.Struct(p); err != nil {
		app.badRequestResponse(w, r, errors.New("invalid refund number"))
		return
	}

	ref, err := app.gateway.GetRefund(r.Context(), getClientFromContext(r), p.RefundNo)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}
	if err := app.jsonResponse(w, http.StatusOK, ref); err != nil {
		app.internalServerError(w, r, err)
	}
}
