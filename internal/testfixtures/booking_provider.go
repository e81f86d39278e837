package testfixtures

import (
	"context"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/providers"
)

// BookingProvider is a scriptable fake of the calendar vendor.
type BookingProvider struct {
	// Bookings maps a booking reference to its event payload.
	Bookings map[string]*providers.BookingEvent
	// Err, when set, makes every lookup fail.
	Err error

	Lookups int
}

func NewBookingProvider() *BookingProvider {
	return &BookingProvider{Bookings: make(map[string]*providers.BookingEvent)}
}

func (p *BookingProvider) GetBooking(_ context.Context, ref string) (*providers.BookingEvent, error) {
	p.Lookups++
	if p.Err != nil {
		return nil, p.Err
	}
	event, ok := p.Bookings[ref]
	if !ok {
		return nil, apperrors.NewProvider("get booking", 404, nil)
	}
	clone := *event
	return &clone, nil
}
