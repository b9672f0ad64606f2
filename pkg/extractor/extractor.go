// Package extractor turns food-delivery receipt emails into orders using
// regular expression rules.
package extractor

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/mailtext"
)

// ErrNotRelevant is returned when no extractor recognises a message.
var ErrNotRelevant = errors.New("message is not a recognised receipt")

// MissingFieldError reports a mandatory field that could not be extracted.
type MissingFieldError struct {
	Extractor string
	Field     string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing or invalid %s", e.Extractor, e.Field)
}

const (
	minRestaurantLen = 3
	maxRestaurantLen = 119
)

var (
	innerSpace = regexp.MustCompile(`\s+`)
	itemBullet = regexp.MustCompile(`^[-*•]\s*`)
)

// RuleExtractor applies a single Rule.
type RuleExtractor struct {
	rule     Rule
	loc      *time.Location
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates an extractor for rule. Dates printed without a zone are read in loc.
func New(rule Rule, loc *time.Location, logger *slog.Logger) *RuleExtractor {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &RuleExtractor{
		rule:     rule,
		loc:      loc,
		validate: v,
		logger:   logger.With("component", "extractor", "extractor", rule.Name),
	}
}

// Name returns the rule name.
func (e *RuleExtractor) Name() string { return e.rule.Name }

// Classify reports whether the sender or subject mentions one of the rule's markers.
func (e *RuleExtractor) Classify(msg *api.Message) bool {
	from := strings.ToLower(msg.From)
	subject := strings.ToLower(msg.Subject)
	for _, marker := range e.rule.Markers {
		if strings.Contains(from, marker) || strings.Contains(subject, marker) {
			return true
		}
	}
	return false
}

// Extract pulls an order out of msg. It returns a *MissingFieldError when
// the order id, restaurant, total or date cannot be determined. Optional
// fields that are absent or unparseable keep their zero value.
func (e *RuleExtractor) Extract(msg *api.Message) (*api.Order, error) {
	subject := strings.TrimSpace(msg.Subject)
	body := mailtext.PlainText(msg.Body)

	order := &api.Order{
		Status:       api.StatusCompleted,
		Source:       e.rule.Name,
		RawEmailBody: msg.Body,
		EmailDate:    msg.Date,
	}

	id, ok := e.text(FieldOrderID, subject, body)
	if !ok {
		return nil, e.missing(FieldOrderID)
	}
	order.OrderID = strings.ToUpper(id)

	restaurant, ok := e.restaurant(subject, body)
	if !ok {
		return nil, e.missing(FieldRestaurant)
	}
	order.RestaurantName = restaurant

	total, ok := e.amount(FieldTotal, subject, body)
	if !ok {
		return nil, e.missing(FieldTotal)
	}
	order.TotalAmount = total

	date, ok := e.date(subject, body, msg.Date)
	if !ok {
		return nil, e.missing(FieldDate)
	}
	order.Date = date

	order.Amount, _ = e.amount(FieldAmount, subject, body)
	order.DeliveryFee, _ = e.amount(FieldDeliveryFee, subject, body)
	order.Discount, _ = e.amount(FieldDiscount, subject, body)
	order.PaymentMethod, _ = e.text(FieldPaymentMethod, subject, body)
	order.DeliveryLocation, _ = e.text(FieldDeliveryLocation, subject, body)
	order.OrderItems = e.items(subject, body)

	for _, sr := range e.rule.Statuses {
		if sr.match(subject, body) {
			order.Status = sr.Status
			break
		}
	}

	if err := e.validate.Struct(order); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, e.missing(verrs[0].Field())
		}
		return nil, fmt.Errorf("validating order: %w", err)
	}

	return order, nil
}

func (e *RuleExtractor) missing(field string) error {
	return &MissingFieldError{Extractor: e.rule.Name, Field: field}
}

// text returns the first non-empty capture for field, whitespace collapsed.
func (e *RuleExtractor) text(field, subject, body string) (string, bool) {
	for _, p := range e.rule.Fields[field] {
		v, ok := p.find(subject, body)
		if !ok {
			continue
		}
		v = strings.TrimSpace(innerSpace.ReplaceAllString(v, " "))
		if v != "" {
			return v, true
		}
	}
	return "", false
}

// amount returns the first capture for field that parses as a currency value.
func (e *RuleExtractor) amount(field, subject, body string) (decimal.Decimal, bool) {
	for _, p := range e.rule.Fields[field] {
		v, ok := p.find(subject, body)
		if !ok {
			continue
		}
		d, err := ParseAmount(v)
		if err != nil {
			e.logger.Debug("unparseable amount", "field", field, "value", v, "error", err)
			continue
		}
		return d, true
	}
	return decimal.Zero, false
}

// restaurant returns the first capture that is still a plausible name after trimming.
func (e *RuleExtractor) restaurant(subject, body string) (string, bool) {
	for _, p := range e.rule.Fields[FieldRestaurant] {
		v, ok := p.find(subject, body)
		if !ok {
			continue
		}
		name := TrimRestaurant(v, e.rule.Boilerplate)
		if n := len([]rune(name)); n >= minRestaurantLen && n <= maxRestaurantLen {
			return name, true
		}
	}
	return "", false
}

func (e *RuleExtractor) date(subject, body string, fallback time.Time) (time.Time, bool) {
	for _, p := range e.rule.Fields[FieldDate] {
		v, ok := p.find(subject, body)
		if !ok {
			continue
		}
		if t, ok := ParseDate(v, e.loc, fallback); ok {
			return t, true
		}
		e.logger.Debug("unparseable date", "value", v)
	}
	if fallback.IsZero() {
		return time.Time{}, false
	}
	return fallback.In(e.loc), true
}

// items joins a bulleted item block into one line.
func (e *RuleExtractor) items(subject, body string) string {
	for _, p := range e.rule.Fields[FieldOrderItems] {
		v, ok := p.find(subject, body)
		if !ok {
			continue
		}
		var items []string
		for _, line := range strings.Split(v, "\n") {
			line = strings.TrimSpace(itemBullet.ReplaceAllString(strings.TrimSpace(line), ""))
			if line != "" {
				items = append(items, line)
			}
		}
		if len(items) > 0 {
			return strings.Join(items, "; ")
		}
	}
	return ""
}

// TrimRestaurant cuts name at the earliest boilerplate match, collapses
// whitespace and strips surrounding punctuation.
func TrimRestaurant(name string, boilerplate []*regexp.Regexp) string {
	cut := len(name)
	for _, re := range boilerplate {
		if loc := re.FindStringIndex(name); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	name = name[:cut]
	name = innerSpace.ReplaceAllString(name, " ")
	return strings.Trim(name, " \t-:,.;!|")
}
