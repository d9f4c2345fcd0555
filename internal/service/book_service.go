package service

import (
	"context"

	"bookswap/internal/domain"
	"bookswap/internal/events"
	"bookswap/internal/metrics"
	"bookswap/internal/models"

	"github.com/rs/zerolog"
)

// BookService covers the owner-side operations on a listing.
type BookService struct {
	base
	repo domain.BookStore
}

func NewBookService(repo domain.BookStore, eventBus domain.EventPublisher, notifier domain.Notifier, logger *zerolog.Logger) *BookService {
	return &BookService{
		base: newBase(eventBus, notifier, nil, logger, "book_service"),
		repo: repo,
	}
}

func (s *BookService) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return s.repo.GetBook(ctx, id)
}

// SyncBook records catalog ownership. Availability is left to the engine.
func (s *BookService) SyncBook(ctx context.Context, book *models.Book) error {
	if book.ID <= 0 || book.OwnerID <= 0 {
		return domain.Validation("book id and owner id are required")
	}
	return s.repo.UpsertBook(ctx, book)
}

func (s *BookService) SetAvailability(ctx context.Context, bookID, ownerID int64, available bool) (*models.Book, error) {
	book, err := s.repo.SetBookAvailability(ctx, bookID, ownerID, available)
	if err != nil {
		return nil, s.observe("set_availability", err)
	}
	s.observe("set_availability", nil)

	s.publish(events.EventBookAvailability, events.BookEventPayload{
		BookID:       book.ID,
		OwnerID:      book.OwnerID,
		Available:    book.Available,
		StatusReason: book.StatusReason,
	})
	return book, nil
}

// DeleteBook withdraws a listing and closes every negotiation that used it.
func (s *BookService) DeleteBook(ctx context.Context, bookID, ownerID int64) (*models.BookDeletion, error) {
	res, err := s.repo.DeleteBook(ctx, bookID, ownerID)
	if err != nil {
		return nil, s.observe("delete_book", err)
	}
	s.observe("delete_book", nil)
	metrics.AddCascadeRejections("delete", res.RejectedRequests)

	s.logger.Info().
		Int64("book_id", bookID).
		Ints64("cancelled_exchanges", res.CancelledExchanges).
		Int64("rejected_requests", res.RejectedRequests).
		Msg("book withdrawn")

	s.publish(events.EventBookWithdrawn, events.BookEventPayload{
		BookID:             res.Book.ID,
		OwnerID:            res.Book.OwnerID,
		Available:          res.Book.Available,
		StatusReason:       res.Book.StatusReason,
		CancelledExchanges: res.CancelledExchanges,
		RejectedRequests:   res.RejectedRequests,
	})
	for _, id := range res.CancelledExchanges {
		s.notify(ctx, id, "Exchange cancelled: a book in this exchange was withdrawn by its owner.")
	}
	return res, nil
}

// IsCommitted reports whether the book cannot enter a new commitment.
func (s *BookService) IsCommitted(ctx context.Context, bookID int64) (bool, error) {
	if _, err := s.repo.GetBook(ctx, bookID); err != nil {
		return false, err
	}
	return s.repo.IsBookCommitted(ctx, bookID)
}

func (s *BookService) OfferedBusy(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.OfferedBusyBooks(ctx, userID)
}
