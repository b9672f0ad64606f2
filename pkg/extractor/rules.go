package extractor

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

//go:embed rules/default.json
var defaultRules []byte

// amountFragment replaces {{amount}} in rule patterns. It captures a currency
// symbol followed by digits, separators and decimals.
const amountFragment = `((?:₹|Rs\.?|INR)\s*-?\s*[0-9][0-9,]*(?:\.[0-9]+)*)`

// Field names a rule can extract. They match the store's column names.
const (
	FieldOrderID          = "order_id"
	FieldRestaurant       = "restaurant_name"
	FieldTotal            = "total_amount"
	FieldAmount           = "amount"
	FieldDeliveryFee      = "delivery_fee"
	FieldDiscount         = "discount"
	FieldDate             = "order_date"
	FieldPaymentMethod    = "payment_method"
	FieldDeliveryLocation = "delivery_location"
	FieldOrderItems       = "order_items"
)

var knownFields = map[string]bool{
	FieldOrderID:          true,
	FieldRestaurant:       true,
	FieldTotal:            true,
	FieldAmount:           true,
	FieldDeliveryFee:      true,
	FieldDiscount:         true,
	FieldDate:             true,
	FieldPaymentMethod:    true,
	FieldDeliveryLocation: true,
	FieldOrderItems:       true,
}

// Every rule must be able to find these.
var mandatoryFields = []string{FieldOrderID, FieldRestaurant, FieldTotal}

// Target selects the part of a message a pattern is matched against.
type Target string

const (
	InSubject Target = "subject"
	InBody    Target = "body"
)

// Pattern is a compiled regular expression whose first capture group holds the value.
type Pattern struct {
	In Target
	Re *regexp.Regexp
}

// StatusRule sets Status when its pattern matches.
type StatusRule struct {
	Status string
	Pattern
}

// Rule describes how to recognise and parse one service's receipts.
type Rule struct {
	Name    string
	Enabled bool
	// Markers are matched case-insensitively against the sender and subject.
	Markers []string
	// Fields maps a field name to patterns tried in order.
	Fields map[string][]Pattern
	// Statuses are tried in order; the first match wins.
	Statuses []StatusRule
	// Boilerplate matches phrases cut off restaurant names.
	Boilerplate []*regexp.Regexp
}

type rawPattern struct {
	In      string `json:"in"`
	Pattern string `json:"pattern"`
}

type rawStatus struct {
	Status  string `json:"status"`
	In      string `json:"in"`
	Pattern string `json:"pattern"`
}

type rawRule struct {
	Name        string                  `json:"name"`
	Enabled     *bool                   `json:"enabled"`
	Markers     []string                `json:"markers"`
	Fields      map[string][]rawPattern `json:"fields"`
	Status      []rawStatus             `json:"status"`
	Boilerplate []string                `json:"boilerplate"`
}

// DefaultRules returns the built-in rules for Zomato and Swiggy.
func DefaultRules() ([]Rule, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads rules from a JSON file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes and compiles a JSON rule list.
func ParseRules(data []byte) ([]Rule, error) {
	var raws []rawRule
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if len(raws) == 0 {
		return nil, errors.New("no rules defined")
	}

	seen := make(map[string]bool, len(raws))
	rules := make([]Rule, 0, len(raws))
	for i, raw := range raws {
		rule, err := compileRule(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, raw.Name, err)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("rule %d: duplicate name %q", i, rule.Name)
		}
		seen[rule.Name] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

// CompileBoilerplate turns phrases into case-insensitive literal matchers.
// Empty phrases are dropped.
func CompileBoilerplate(phrases []string) []*regexp.Regexp {
	var res []*regexp.Regexp
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		res = append(res, regexp.MustCompile("(?i)"+regexp.QuoteMeta(phrase)))
	}
	return res
}

func compileRule(raw rawRule) (Rule, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return Rule{}, errors.New("name is required")
	}
	if len(raw.Markers) == 0 {
		return Rule{}, errors.New("at least one marker is required")
	}

	rule := Rule{
		Name:        name,
		Enabled:     raw.Enabled == nil || *raw.Enabled,
		Fields:      make(map[string][]Pattern, len(raw.Fields)),
		Boilerplate: CompileBoilerplate(raw.Boilerplate),
	}

	for _, m := range raw.Markers {
		if m = strings.TrimSpace(m); m != "" {
			rule.Markers = append(rule.Markers, strings.ToLower(m))
		}
	}
	if len(rule.Markers) == 0 {
		return Rule{}, errors.New("markers are empty")
	}

	for field, patterns := range raw.Fields {
		if !knownFields[field] {
			return Rule{}, fmt.Errorf("unknown field %q", field)
		}
		for j, rp := range patterns {
			p, err := compilePattern(rp.In, rp.Pattern, true)
			if err != nil {
				return Rule{}, fmt.Errorf("field %s pattern %d: %w", field, j, err)
			}
			rule.Fields[field] = append(rule.Fields[field], p)
		}
	}

	for _, field := range mandatoryFields {
		if len(rule.Fields[field]) == 0 {
			return Rule{}, fmt.Errorf("no patterns for mandatory field %s", field)
		}
	}

	for j, rs := range raw.Status {
		if strings.TrimSpace(rs.Status) == "" {
			return Rule{}, fmt.Errorf("status %d: status is required", j)
		}
		p, err := compilePattern(rs.In, rs.Pattern, false)
		if err != nil {
			return Rule{}, fmt.Errorf("status %d: %w", j, err)
		}
		rule.Statuses = append(rule.Statuses, StatusRule{Status: rs.Status, Pattern: p})
	}

	return rule, nil
}

func compilePattern(in, expr string, capture bool) (Pattern, error) {
	target := Target(strings.ToLower(strings.TrimSpace(in)))
	switch target {
	case "":
		target = InBody
	case InSubject, InBody:
	default:
		return Pattern{}, fmt.Errorf("invalid target %q", in)
	}

	expr = strings.ReplaceAll(expr, "{{amount}}", amountFragment)
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid regex: %w", err)
	}
	if capture && re.NumSubexp() < 1 {
		return Pattern{}, fmt.Errorf("regex %q has no capture group", expr)
	}

	return Pattern{In: target, Re: re}, nil
}

// find returns the first capture group of p in subject or body.
func (p Pattern) find(subject, body string) (string, bool) {
	text := body
	if p.In == InSubject {
		text = subject
	}
	m := p.Re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

func (p Pattern) match(subject, body string) bool {
	if p.In == InSubject {
		return p.Re.MatchString(subject)
	}
	return p.Re.MatchString(body)
}
