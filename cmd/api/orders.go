package main

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"paygate/internal/domain/orders"
	"paygate/internal/gateway"
	"paygate/internal/params"

	"github.com/go-chi/chi/v5"
)

type tradeNoParam struct {
	TradeNo string `validate:"required,numeric,max=64"`
}

// createOrderHandler godoc
//
//	@Summary		Create or replay a payment order
//	@Description	Issues a trade number for the merchant reference and dispatches it to the channel once. Repeating the request returns the same order.
//	@Tags			orders
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		gateway.CreateOrderRequest	true	"Order request"
//	@Success		201		{object}	gateway.OrderResult			"Order dispatched"
//	@Success		200		{object}	gateway.OrderResult			"Existing order replayed"
//	@Failure		400		{object}	error
//	@Failure		409		{object}	error
//	@Failure		502		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/orders [post]
func (app *application) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req gateway.CreateOrderRequest
	if err := readJSON(w, r, &req); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if req.Params == nil {
		req.Params = map[string]string{}
	}
	if _, ok := req.Params["client_ip"]; !ok {
		req.Params["client_ip"] = clientIP(r)
	}

	res, err := app.gateway.CreateOrder(r.Context(), getClientFromContext(r), req)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	if err := app.jsonResponse(w, status, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

// listOrdersHandler godoc
//
//	@Summary	List the client's orders
//	@Tags		orders
//	@Produce	json
//	@Param		status	query		string	false	"Filter by status"
//	@Param		page	query		int		false	"Page number"
//	@Param		limit	query		int		false	"Page size"
//	@Success	200		{object}	map[string]any
//	@Security	ApiKeyAuth
//	@Router		/orders [get]
func (app *application) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := params.ParsePagination(q)
	status := strings.TrimSpace(q.Get("status"))

	list, total, err := app.gateway.ListOrders(r.Context(), getClientFromContext(r), status, p.Limit, p.Offset)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	p.ComputeMeta(total)

	resp := struct {
		Orders     []orders.Order    `json:"orders"`
		Pagination params.Pagination `json:"pagination"`
	}{list, p}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getOrderHandler godoc
//
//	@Summary	Get an order with its refunds
//	@Tags		orders
//	@Produce	json
//	@Param		tradeNo	path		string	true	"Trade number"
//	@Success	200		{object}	gateway.OrderView
//	@Failure	404		{object}	error
//	@Security	ApiKeyAuth
//	@Router		/orders/{tradeNo} [get]
func (app *application) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	p := tradeNoParam{TradeNo: chi.URLParam(r, "tradeNo")}
	if err := Validate.Struct(p); err != nil {
		app.badRequestResponse(w, r, errors.New("invalid trade number"))
		return
	}

	view, err := app.gateway.GetOrder(r.Context(), getClientFromContext(r), p.TradeNo)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}
	if err := app.jsonResponse(w, http.StatusOK, view); err != nil {
		app.internalServerError(w, r, err)
	}
}

// clientIP strips the port RemoteAddr carries unless RealIP replaced it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
