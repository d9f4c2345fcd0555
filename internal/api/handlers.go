package api

import (
	"net/http"
	"strconv"

	"bookswap/internal/domain"
	"bookswap/internal/models"
	"bookswap/internal/service"
)

func (s *HTTPServer) handleCreateRequest(w http.ResponseWriter, r *http.Request, caller int64) {
	var cmd service.CreateRequestCmd
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cmd.RequesterID = caller

	res, err := s.svc.Exchanges.CreateRequest(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleAcceptRequest(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var cmd service.AcceptRequestCmd
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cmd.RequestID, cmd.ReceiverID = id, caller

	res, err := s.svc.Exchanges.AcceptRequest(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleRejectRequest(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	req, err := s.svc.Exchanges.RejectRequest(r.Context(), id, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *HTTPServer) handleCancelRequest(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	req, err := s.svc.Exchanges.CancelRequest(r.Context(), id, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	view, err := s.svc.Exchanges.GetRequest(r.Context(), id, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func listQuery(r *http.Request, caller int64) (domain.RequestQuery, error) {
	q := domain.RequestQuery{UserID: caller, State: r.URL.Query().Get("state")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return q, domain.Validation("invalid limit")
		}
		q.Limit = limit
	}
	return q, nil
}

func (s *HTTPServer) handleListIncoming(w http.ResponseWriter, r *http.Request, caller int64) {
	q, err := listQuery(r, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	views, err := s.svc.Exchanges.ListIncoming(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": views})
}

func (s *HTTPServer) handleListOutgoing(w http.ResponseWriter, r *http.Request, caller int64) {
	q, err := listQuery(r, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	views, err := s.svc.Exchanges.ListOutgoing(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": views})
}

func (s *HTTPServer) handlePendingSummary(w http.ResponseWriter, r *http.Request, caller int64) {
	summary, err := s.svc.Exchanges.PendingSummary(r.Context(), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": summary})
}

func (s *HTTPServer) handleGetExchange(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ex, err := s.svc.Exchanges.GetExchange(r.Context(), id, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *HTTPServer) handleCancelExchange(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ex, err := s.svc.Exchanges.CancelExchange(r.Context(), id, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *HTTPServer) handleProposeMeeting(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var cmd service.ProposeMeetingCmd
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cmd.ExchangeID, cmd.ProposerID = id, caller

	p, err := s.svc.Meetings.Propose(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *HTTPServer) handleCurrentMeeting(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	p, err := s.svc.Meetings.Current(r.Context(), id, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleConfirmMeeting(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var cmd service.ConfirmMeetingCmd
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cmd.ExchangeID, cmd.ConfirmerID = id, caller

	p, err := s.svc.Meetings.Confirm(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleGenerateCode(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var cmd service.GenerateCodeCmd
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &cmd); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	cmd.ExchangeID, cmd.OwnerID = id, caller

	code, err := s.svc.Completion.GenerateCode(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var cmd service.CompleteCmd
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cmd.ExchangeID, cmd.CallerID = id, caller

	ex, err := s.svc.Completion.Complete(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *HTTPServer) handleRate(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var cmd service.RateCmd
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cmd.ExchangeID, cmd.RaterID = id, caller

	rating, err := s.svc.Ratings.Rate(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}

func (s *HTTPServer) handleMyRating(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	rating, err := s.svc.Ratings.Mine(r.Context(), id, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if _, err := s.svc.Exchanges.GetExchange(r.Context(), id, caller); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	msgs, err := s.svc.Messages.GetMessages(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *HTTPServer) handleSetAvailability(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body struct {
		Available *bool `json:"available"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if body.Available == nil {
		s.writeDomainError(w, r, domain.Validation("available is required"))
		return
	}

	book, err := s.svc.Books.SetAvailability(r.Context(), id, caller, *body.Available)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *HTTPServer) handleDeleteBook(w http.ResponseWriter, r *http.Request, caller int64) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.svc.Books.DeleteBook(r.Context(), id, caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSyncBook is the catalog feed. It is keyed by the catalog's book id and
// carries no end-user caller.
func (s *HTTPServer) handleSyncBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body struct {
		OwnerID   int64  `json:"owner_id"`
		Title     string `json:"title"`
		Available *bool  `json:"available"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	book := &models.Book{ID: id, OwnerID: body.OwnerID, Title: body.Title, Available: true}
	if body.Available != nil {
		book.Available = *body.Available
	}
	if err := s.svc.Books.SyncBook(r.Context(), book); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *HTTPServer) handleBookCommitted(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	committed, err := s.svc.Books.IsCommitted(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"book_id": id, "committed": committed})
}

func (s *HTTPServer) handleOfferedBusy(w http.ResponseWriter, r *http.Request, caller int64) {
	ids, err := s.svc.Books.OfferedBusy(r.Context(), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"book_ids": ids})
}

func (s *HTTPServer) handleUserRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	summary, err := s.svc.Ratings.Summary(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleMeetingPoints(w http.ResponseWriter, r *http.Request) {
	onlyEnabled := true
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeDomainError(w, r, domain.Validation("invalid enabled flag"))
			return
		}
		onlyEnabled = v
	}
	points, err := s.svc.Meetings.ListPoints(r.Context(), r.URL.Query().Get("kind"), onlyEnabled)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}
