package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode"

	"github.com/bosley/parley/sheet"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"
)

const (
	DefaultCountryCode = "+91"

	shortlistNameColumn  = "full_name"
	shortlistPhoneColumn = "mobile_number"
	shortlistEmailColumn = "email"
)

// ErrInvalidNumber is returned for a phone number that cannot be dialed.
var ErrInvalidNumber = errors.New("telephony: invalid phone number")

// CallCreator places outbound calls. The provider REST client's API service satisfies it.
type CallCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// CallRecorder counts outbound call attempts.
type CallRecorder interface {
	CallPlaced(err error)
}

// Candidate is one shortlisted person to call.
type Candidate struct {
	Name  string
	Phone string
	Email string
}

// ReadShortlist loads candidates from the first sheet of a shortlist
// workbook. Rows without a phone number are skipped.
func ReadShortlist(path string) ([]Candidate, error) {
	tbl, err := sheet.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load shortlist: %w", err)
	}
	if tbl.Len() == 0 {
		return nil, nil
	}
	if !tbl.Has(shortlistPhoneColumn) {
		return nil, fmt.Errorf("shortlist has no %q column", shortlistPhoneColumn)
	}

	var out []Candidate
	for i := 0; i < tbl.Len(); i++ {
		c := Candidate{
			Name:  tbl.Get(i, shortlistNameColumn),
			Phone: tbl.Get(i, shortlistPhoneColumn),
			Email: tbl.Get(i, shortlistEmailColumn),
		}
		if c.Phone == "" {
			continue
		}
		if c.Name == "" {
			c.Name = "Candidate"
		}
		out = append(out, c)
	}
	return out, nil
}

// NormalizePhone returns raw in E.164 form. A bare ten-digit number gets
// countryCode prepended.
func NormalizePhone(raw, countryCode string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, ".0")
	hasPlus := strings.HasPrefix(raw, "+")

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)

	switch {
	case hasPlus && len(digits) >= 8 && len(digits) <= 15:
		return "+" + digits, nil
	case !hasPlus && len(digits) == 10:
		if countryCode == "" {
			countryCode = DefaultCountryCode
		}
		return countryCode + digits, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
}

// Dialer places screening calls that connect back to the webhook service.
type Dialer struct {
	Calls       CallCreator
	From        string
	PublicURL   string
	CountryCode string
	Limiter     *rate.Limiter
	Metrics     CallRecorder
}

// DialResult is the outcome of one call attempt.
type DialResult struct {
	Candidate Candidate
	CallSid   string
	Err       error
}

// VoiceURL builds the webhook URL carrying the session context.
func (d *Dialer) VoiceURL(c Candidate, role, salary string) string {
	q := url.Values{}
	q.Set("candidate_name", c.Name)
	q.Set("role", role)
	q.Set("salary_range", salary)
	if c.Email != "" {
		q.Set("email", c.Email)
	}
	return strings.TrimRight(d.PublicURL, "/") + "/voice?" + q.Encode()
}

// Dial places one call and returns the provider call sid.
func (d *Dialer) Dial(ctx context.Context, c Candidate, role, salary string) (string, error) {
	to, err := NormalizePhone(c.Phone, d.CountryCode)
	if err != nil {
		return "", err
	}
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(d.From)
	params.SetUrl(d.VoiceURL(c, role, salary))
	params.SetMethod("POST")
	params.SetStatusCallback(strings.TrimRight(d.PublicURL, "/") + "/status")
	params.SetStatusCallbackMethod("POST")

	call, err := d.Calls.CreateCall(params)
	if d.Metrics != nil {
		d.Metrics.CallPlaced(err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", c.Name, err)
	}
	if call == nil || call.Sid == nil {
		return "", fmt.Errorf("failed to call %s: provider returned no call sid", c.Name)
	}
	return *call.Sid, nil
}

// DialAll calls every candidate in order, continuing past failures.
func (d *Dialer) DialAll(ctx context.Context, cands []Candidate, role, salary string) []DialResult {
	results := make([]DialResult, 0, len(cands))
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		sid, err := d.Dial(ctx, c, role, salary)
		if err != nil {
			slog.Error("Call failed", "candidate", c.Name, "error", err)
		} else {
			slog.Info("Call initiated", "candidate", c.Name, "callSid", sid)
		}
		results = append(results, DialResult{Candidate: c, CallSid: sid, Err: err})
	}
	return results
}
