// Package receipt renders a paid reservation as a PDF. Rendering is done on
// demand from durable state; nothing here ever blocks the commit protocol.
package receipt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	"github.com/openrental/reserva/internal/reservation/domain"
)

var ErrNotReceiptable = fmt.Errorf("reservation_not_receiptable")

type Generator struct{}

func NewGenerator() *Generator { return &Generator{} }

// Render produces the receipt PDF for a confirmed or completed reservation
// with a captured payment.
func (g *Generator) Render(ctx context.Context, reservation *domain.Reservation, payment *paymentdomain.Payment) (io.Reader, error) {
	if reservation.Status != domain.StatusConfirmed && reservation.Status != domain.StatusCompleted {
		return nil, ErrNotReceiptable
	}
	if payment == nil || payment.CapturedAt == nil {
		return nil, ErrNotReceiptable
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(25,
		text.NewCol(8, "Rental Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, reservation.Code, props.Text{
			Size:  12,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Supplier: "+reservation.SupplierCode, props.Text{Top: 0}),
			text.New("Pickup: "+reservation.PickupAt.Format(time.RFC1123), props.Text{Top: 5}),
			text.New("Dropoff: "+reservation.DropoffAt.Format(time.RFC1123), props.Text{Top: 10}),
			text.New(fmt.Sprintf("Rental days: %d", reservation.RentalDays), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Confirmation: "+reservation.SupplierConfirmationCode, props.Text{Top: 0}),
			text.New("Paid on: "+payment.CapturedAt.Format("2006-01-02"), props.Text{Top: 5}),
			text.New("Payment ref: "+payment.ProviderRef, props.Text{Top: 10}),
		),
	)

	if len(reservation.Drivers) > 0 {
		driver := reservation.Drivers[0]
		for _, d := range reservation.Drivers {
			if d.IsPrimary {
				driver = d
			}
		}
		m.AddRow(12,
			text.NewCol(12, "Driver: "+driver.FullName(), props.Text{Size: 10}),
		)
	}

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range reservation.PricingItems {
		m.AddRow(8,
			text.NewCol(8, item.Description, props.Text{Size: 9}),
			text.NewCol(4, item.Amount.StringFixed(2)+" "+reservation.Currency, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		col.New(8),
		text.NewCol(4,
			fmt.Sprintf("Total %s %s", reservation.TotalPrice.StringFixed(2), reservation.Currency),
			props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
