// Package sample writes a small demonstration mbox archive.
package sample

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	gombox "github.com/emersion/go-mbox"
)

// Email is one message to be written into an archive.
type Email struct {
	Subject string
	From    string
	Date    time.Time
	Body    string
	// HTML marks Body as text/html.
	HTML bool
}

var ist = time.FixedZone("IST", 5*60*60+30*60)

const zomatoSender = "orders@zomato.com"

// Orders returns three Zomato order confirmations.
func Orders() []Email {
	return []Email{
		{
			Subject: "Your Zomato order ORD123456 is confirmed",
			From:    zomatoSender,
			Date:    time.Date(2024, time.January, 15, 14, 30, 0, 0, ist),
			Body: zomatoBody(zomatoOrder{
				id: "ORD123456", date: "15 Jan 2024, 2:30 PM",
				restaurant: "Dominoes Pizza", address: "MG Road, Bangalore",
				items:    []string{"Margherita Pizza (Large) x1", "Garlic Bread x1", "Coke 500ml x1"},
				subtotal: "450.00", delivery: "40.00", discount: "50.00", total: "440.00",
				payment: "Credit Card", eta: 35,
			}),
		},
		{
			Subject: "Your Zomato order ORD123457 is confirmed",
			From:    zomatoSender,
			Date:    time.Date(2024, time.January, 20, 13, 15, 0, 0, ist),
			Body: zomatoBody(zomatoOrder{
				id: "ORD123457", date: "20 Jan 2024, 1:15 PM",
				restaurant: "Biryani House", address: "Koramangala, Bangalore",
				items:    []string{"Chicken Biryani (2 serves) x1", "Raita x1", "Shorba x1"},
				subtotal: "650.00", delivery: "60.00", discount: "30.00", total: "680.00",
				payment: "Debit Card", eta: 40,
			}),
		},
		{
			Subject: "Your Zomato order ORD123458 is confirmed",
			From:    zomatoSender,
			Date:    time.Date(2024, time.January, 25, 10, 45, 0, 0, ist),
			Body: zomatoBody(zomatoOrder{
				id: "ORD123458", date: "25 Jan 2024, 10:45 AM",
				restaurant: "Cafe Coffee Day", address: "Indiranagar, Bangalore",
				items:    []string{"Americano (Grande) x1", "Chocolate Croissant x1"},
				subtotal: "280.00", delivery: "20.00", total: "300.00",
				payment: "Wallet", eta: 25,
			}),
		},
	}
}

// Newsletter returns a message that no extractor should accept.
func Newsletter() Email {
	return Email{
		Subject: "This week's best recipes",
		From:    "newsletter@foodblog.example",
		Date:    time.Date(2024, time.January, 22, 9, 0, 0, 0, ist),
		Body:    "Hi there,\n\nFive soups to try this winter.\n\nUnsubscribe at any time.\n",
	}
}

// Default returns the demo archive contents: three orders and one unrelated message.
func Default() []Email {
	return append(Orders(), Newsletter())
}

type zomatoOrder struct {
	id, date, restaurant, address string
	items                         []string
	subtotal, delivery, discount  string
	total, payment                string
	eta                           int
}

func zomatoBody(o zomatoOrder) string {
	var b strings.Builder
	b.WriteString("Hi User,\n\nYour order has been confirmed!\n\n")
	fmt.Fprintf(&b, "Order ID: %s\nDate: %s\n\n", o.id, o.date)
	fmt.Fprintf(&b, "Restaurant: %s\nAddress: %s\n\n", o.restaurant, o.address)
	b.WriteString("Items ordered:\n")
	for _, item := range o.items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	fmt.Fprintf(&b, "\nSubtotal: ₹%s\nDelivery Charges: ₹%s\n", o.subtotal, o.delivery)
	if o.discount != "" {
		fmt.Fprintf(&b, "Promo Discount: -₹%s\n", o.discount)
	}
	fmt.Fprintf(&b, "Total Amount: ₹%s\n\n", o.total)
	fmt.Fprintf(&b, "Payment Method: %s\nStatus: Confirmed\n\n", o.payment)
	fmt.Fprintf(&b, "Estimated delivery time: %d minutes\n\n", o.eta)
	b.WriteString("Thank you for ordering with Zomato!\n\nBest regards,\nZomato\n")
	return b.String()
}

// Write encodes emails as an mbox stream.
func Write(w io.Writer, emails []Email) error {
	mw := gombox.NewWriter(w)
	for i, e := range emails {
		msg, err := mw.CreateMessage(e.From, e.Date)
		if err != nil {
			return fmt.Errorf("creating message %d: %w", i, err)
		}
		if err := writeMessage(msg, i, e); err != nil {
			return fmt.Errorf("writing message %d: %w", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing mbox: %w", err)
	}
	return nil
}

func writeMessage(w io.Writer, idx int, e Email) error {
	ctype := "text/plain"
	if e.HTML {
		ctype = "text/html"
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "From: %s\n", e.From)
	fmt.Fprintf(bw, "To: user@example.com\n")
	fmt.Fprintf(bw, "Subject: %s\n", e.Subject)
	fmt.Fprintf(bw, "Date: %s\n", e.Date.Format(time.RFC1123Z))
	fmt.Fprintf(bw, "Message-ID: <%d.%d@foodspend.sample>\n", idx, e.Date.Unix())
	fmt.Fprintf(bw, "MIME-Version: 1.0\n")
	fmt.Fprintf(bw, "Content-Type: %s; charset=utf-8\n", ctype)
	fmt.Fprintf(bw, "Content-Transfer-Encoding: 8bit\n\n")
	bw.WriteString(e.Body)
	if !strings.HasSuffix(e.Body, "\n") {
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// WriteFile writes emails to path, creating parent directories.
func WriteFile(path string, emails []Email) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating sample archive: %w", err)
	}

	if err := Write(f, emails); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
