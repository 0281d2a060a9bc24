package ticket

import "giro/pkg/platform/middleware/bankticket"

// MiddlewareAdapter exposes the ticket service through the guard middleware's
// validator interface.
type MiddlewareAdapter struct {
	service *Service
}

func NewMiddlewareAdapter(service *Service) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) Validate(rawTicket string) (*bankticket.TicketClaims, error) {
	claims, err := a.service.Validate(rawTicket)
	if err != nil {
		return nil, err
	}
	return &bankticket.TicketClaims{
		BankRef:  claims.BankRef,
		SeatID:   claims.SeatID,
		BankCode: claims.BankCode,
		TicketID: claims.ID,
	}, nil
}
