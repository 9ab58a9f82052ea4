package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/tabdeal-exchange/wallet-ledger/internal/apperr"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
)

// creditRequestBody is the wire shape for POST /credit_request.
type creditRequestBody struct {
	SellerPhoneNumber string          `json:"seller_phone_number"`
	Amount            decimal.Decimal `json:"amount"`
}

// codeResponse is the 201 wire shape shared by /credit_request and
// /charge_sale.
type codeResponse struct {
	Code string `json:"code"`
}

// handleCreditRequest implements POST /credit_request.
func (s *Server) handleCreditRequest(w http.ResponseWriter, r *http.Request) {
	var body creditRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.log, apperr.New(apperr.KindInvalidInput, "malformed request body"))
		return
	}
	if !isValidPhoneNumber(body.SellerPhoneNumber) {
		writeError(w, s.log, apperr.New(apperr.KindInvalidInput, "seller_phone_number must be 11 characters"))
		return
	}

	cr, err := s.intake.CreateCreditRequest(body.SellerPhoneNumber, body.Amount)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, codeResponse{Code: strconv.FormatInt(cr.ID, 10)})
}

// chargeSaleBody is the wire shape for POST /charge_sale.
type chargeSaleBody struct {
	SellerPhoneNumber   string          `json:"seller_phone_number"`
	ReceiverPhoneNumber string          `json:"receiver_phone_number"`
	Amount              decimal.Decimal `json:"amount"`
}

// handleChargeSale implements POST /charge_sale.
func (s *Server) handleChargeSale(w http.ResponseWriter, r *http.Request) {
	var body chargeSaleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.log, apperr.New(apperr.KindInvalidInput, "malformed request body"))
		return
	}
	if !isValidPhoneNumber(body.SellerPhoneNumber) || !isValidPhoneNumber(body.ReceiverPhoneNumber) {
		writeError(w, s.log, apperr.New(apperr.KindInvalidInput, "phone numbers must be 11 characters"))
		return
	}

	sale, err := s.intake.CreateChargeSale(r.Context(), body.SellerPhoneNumber, body.ReceiverPhoneNumber, body.Amount)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, codeResponse{Code: sale.ID.String()})
}

// processCreditRequestBody is the wire shape for
// POST /admin/process_credit_request.
type processCreditRequestBody struct {
	Status      int    `json:"status"`
	CreditID    int64  `json:"credit_id"`
	PhoneNumber string `json:"phone_number"`
}

// msgResponse is the 202 wire shape for /admin/process_credit_request.
type msgResponse struct {
	Msg string `json:"msg"`
}

// handleProcessCreditRequest implements POST /admin/process_credit_request.
//
// status over the wire is {1,2,3}: 1 (WAITING) is a no-op echo, 2
// approves, 3 rejects. The stored CreditRequest states are their own
// enum, so this wire encoding does not line up with the stored one;
// external callers already depend on it, so it stays as is.
func (s *Server) handleProcessCreditRequest(w http.ResponseWriter, r *http.Request) {
	var body processCreditRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.log, apperr.New(apperr.KindInvalidInput, "malformed request body"))
		return
	}
	if !isValidPhoneNumber(body.PhoneNumber) {
		writeError(w, s.log, apperr.New(apperr.KindInvalidInput, "phone_number must be 11 characters"))
		return
	}
	if body.CreditID < 1 {
		writeError(w, s.log, apperr.New(apperr.KindInvalidInput, "credit_id must be >= 1"))
		return
	}

	switch body.Status {
	case 1:
		// WAITING over the wire is a no-op echo; still enforce the
		// admin-role check so an unauthorized caller can't probe request
		// existence through this branch.
		if _, err := s.requireAdmin(body.PhoneNumber); err != nil {
			writeError(w, s.log, err)
			return
		}
	case 2:
		if _, err := s.intake.ApproveCreditRequest(r.Context(), body.CreditID, body.PhoneNumber); err != nil {
			writeError(w, s.log, err)
			return
		}
	case 3:
		if _, err := s.intake.RejectCreditRequest(body.CreditID, body.PhoneNumber); err != nil {
			writeError(w, s.log, err)
			return
		}
	default:
		writeError(w, s.log, apperr.New(apperr.KindInvalidInput, "status must be 1, 2, or 3"))
		return
	}

	writeJSON(w, http.StatusAccepted, msgResponse{Msg: "done"})
}

// requireAdmin resolves phone_number and enforces the ADMIN role, for the
// no-op status==1 branch which otherwise performs no intake operation.
func (s *Server) requireAdmin(phoneNumber string) (*ledger.Account, error) {
	acct, err := s.identity.LookupAccount(phoneNumber)
	if err != nil {
		return nil, err
	}
	if acct.Role != ledger.RoleAdmin {
		return nil, apperr.New(apperr.KindPermissionDenied, "account is not an admin")
	}
	return acct, nil
}
